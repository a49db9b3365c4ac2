package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	"github.com/yusufsyaifudin/ylog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Load reads configFile, expands ${VAR} references from the environment, applies defaults and validates.
func Load(configFile string) (cfg Config, err error) {
	fileContent, err := os.ReadFile(configFile)
	if err != nil {
		err = fmt.Errorf("error read file config %s: %w", configFile, err)
		return
	}

	cfg, err = Parse(fileContent)
	if err != nil {
		err = fmt.Errorf("config %s: %w", configFile, err)
	}

	return
}

func Parse(content []byte) (cfg Config, err error) {
	expanded := os.ExpandEnv(string(content))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(false)
	if err = dec.Decode(&cfg); err != nil {
		err = fmt.Errorf("error decode yaml: %w", err)
		return
	}

	cfg.setDefaults()
	if err = validator.Validate(cfg); err != nil {
		err = fmt.Errorf("error validate config: %w", err)
		return
	}

	return
}

// SetupLogger builds the zap logger and installs it as the global ylog logger.
func SetupLogger(cfg Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		MessageKey:     "msg",
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
		LevelKey:       "level",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}

	encoder := zapcore.NewJSONEncoder(encCfg)
	if cfg.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stderr)),
		level,
	)

	zapLog := zap.New(core)
	ylog.SetGlobalLogger(ylog.NewZap(zapLog))
	return zapLog, nil
}
