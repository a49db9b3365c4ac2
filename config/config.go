package config

import (
	"time"
)

const DefaultFile = "appwrite-ctl.yml"

type Appwrite struct {
	Endpoint  string        `yaml:"endpoint" validate:"required,url"`
	ProjectID string        `yaml:"projectId" validate:"required"`
	APIKey    string        `yaml:"apiKey" validate:"required"`
	Timeout   time.Duration `yaml:"timeout" validate:"-"`
}

type Migrations struct {
	Dir          string `yaml:"dir" validate:"required"`
	SnapshotFile string `yaml:"snapshotFile" validate:"required"`
}

// Ledger selects where applied migration ids are kept.
type Ledger struct {
	Backend string `yaml:"backend" validate:"required,oneof=appwrite postgres mysql sqlite3 memory"`

	// appwrite backend
	DatabaseID string `yaml:"databaseId" validate:"omitempty,resourceid"`
	TableID    string `yaml:"tableId" validate:"omitempty,resourceid"`

	// sql backends
	DSN      string `yaml:"dsn" validate:"required_if=Backend postgres,required_if=Backend mysql,required_if=Backend sqlite3"`
	SQLTable string `yaml:"sqlTable" validate:"omitempty,sqlident"`
	Debug    bool   `yaml:"debug" validate:"-"`
}

type Readiness struct {
	Interval    time.Duration `yaml:"interval" validate:"-"`
	MaxAttempts int           `yaml:"maxAttempts" validate:"min=1"`
}

type SchemaTool struct {
	Binary   string   `yaml:"binary" validate:"required"`
	PushArgs []string `yaml:"pushArgs" validate:"-"`
	PullArgs []string `yaml:"pullArgs" validate:"-"`
}

type Redis struct {
	Addrs    []string `yaml:"addrs" validate:"-"`
	Password string   `yaml:"password" validate:"-"`
	DB       int      `yaml:"db" validate:"min=0"`
}

// Lock is disabled unless redis addresses are set.
type Lock struct {
	Key   string        `yaml:"key" validate:"-"`
	TTL   time.Duration `yaml:"ttl" validate:"-"`
	Redis Redis         `yaml:"redis"`
}

type Tracing struct {
	ServiceName    string `yaml:"serviceName" validate:"required"`
	Environment    string `yaml:"environment" validate:"-"`
	JaegerEndpoint string `yaml:"jaegerEndpoint" validate:"omitempty,url"`
}

type Metrics struct {
	PushgatewayURL string `yaml:"pushgatewayUrl" validate:"omitempty,url"`
	Job            string `yaml:"job" validate:"required"`
}

type Log struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=json console"`
}

// Config contains application config
type Config struct {
	Appwrite   Appwrite   `yaml:"appwrite"`
	Migrations Migrations `yaml:"migrations"`
	Ledger     Ledger     `yaml:"ledger"`
	Readiness  Readiness  `yaml:"readiness"`
	SchemaTool SchemaTool `yaml:"schemaTool"`
	Lock       Lock       `yaml:"lock"`
	Tracing    Tracing    `yaml:"tracing"`
	Metrics    Metrics    `yaml:"metrics"`
	Log        Log        `yaml:"log"`
}

func (c *Config) setDefaults() {
	if c.Appwrite.Timeout <= 0 {
		c.Appwrite.Timeout = 30 * time.Second
	}

	if c.Migrations.Dir == "" {
		c.Migrations.Dir = "appwrite/migrations"
	}

	if c.Migrations.SnapshotFile == "" {
		c.Migrations.SnapshotFile = "appwrite.config.json"
	}

	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "appwrite"
	}

	if c.Readiness.Interval <= 0 {
		c.Readiness.Interval = 2 * time.Second
	}

	if c.Readiness.MaxAttempts <= 0 {
		c.Readiness.MaxAttempts = 60
	}

	if c.SchemaTool.Binary == "" {
		c.SchemaTool.Binary = "appwrite"
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "appwrite-ctl"
	}

	if c.Metrics.Job == "" {
		c.Metrics.Job = "appwrite_ctl"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}
