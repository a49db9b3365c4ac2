package migrations

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/bfbechlin/appwrite-ctl/config"
	"github.com/bfbechlin/appwrite-ctl/container"
	"github.com/bfbechlin/appwrite-ctl/migration"
	"github.com/bfbechlin/appwrite-ctl/pkg/logger"
	"github.com/mitchellh/cli"
	"github.com/yusufsyaifudin/ylog"
)

const (
	ExitSuccess = 0
	ExitErr     = 1
)

// Options is shared by every migrations command.
type Options struct {
	AppName    string
	AppVersion string

	// Registry defaults to migration.Default().
	Registry *migration.Registry

	// Out receives the human readable output, os.Stdout by default.
	Out io.Writer

	ContainerOptions []container.Option
}

// base holds what run, status and create have in common: the config flag and container setup.
type base struct {
	flags      *flag.FlagSet
	opts       Options
	configFile string
}

func newBase(name string, opts Options) *base {
	if opts.Registry == nil {
		opts.Registry = migration.Default()
	}

	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	b := &base{
		flags: flag.NewFlagSet(name, flag.ContinueOnError),
		opts:  opts,
	}

	b.flags.SetOutput(opts.Out)
	b.flags.StringVar(&b.configFile, "config", config.DefaultFile,
		"Config file to load")
	b.flags.StringVar(&b.configFile, "c", config.DefaultFile,
		"Alias for config file to load")
	return b
}

// setup parses args, loads the config, installs the logger and builds the container.
// The returned cleanup must always be called.
func (b *base) setup(ctx context.Context, command string, args []string) (_ context.Context, c *container.Container, cleanup func(), err error) {
	cleanup = func() {}

	if err = b.flags.Parse(args); err != nil {
		err = fmt.Errorf("error parsing arguments: %w", err)
		return ctx, nil, cleanup, err
	}

	cfg, err := config.Load(b.configFile)
	if err != nil {
		return ctx, nil, cleanup, err
	}

	zapLog, err := config.SetupLogger(cfg.Log)
	if err != nil {
		return ctx, nil, cleanup, err
	}

	c, err = container.Setup(ctx, cfg, b.opts.Registry, b.opts.ContainerOptions...)
	if err != nil {
		_ = zapLog.Sync()
		return ctx, nil, cleanup, fmt.Errorf("error setup container: %w", err)
	}

	ctx, err = logger.Inject(ctx, logger.LogData{
		RunID:   c.RunID(),
		Command: command,
	})
	if err != nil {
		_ = c.Close()
		_ = zapLog.Sync()
		return ctx, nil, cleanup, err
	}

	cleanup = func() {
		if _err := c.Close(); _err != nil {
			ylog.Error(ctx, "error close container", ylog.KV("error", _err))
		}

		_ = zapLog.Sync()
	}

	return ctx, c, cleanup, nil
}

func (b *base) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(b.opts.Out, format, args...)
}

var _ cli.CommandFactory = NewRunCmd(Options{})
var _ cli.CommandFactory = NewStatusCmd(Options{})
var _ cli.CommandFactory = NewCreateCmd(Options{})
