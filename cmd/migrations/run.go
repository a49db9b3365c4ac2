package migrations

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mitchellh/cli"
	"github.com/yusufsyaifudin/ylog"
)

type RunCmd struct {
	*base
}

func NewRunCmd(opts Options) cli.CommandFactory {
	return func() (cli.Command, error) {
		return &RunCmd{base: newBase("migrations run", opts)}, nil
	}
}

var _ cli.Command = (*RunCmd)(nil)

func (c *RunCmd) Help() string {
	return strings.TrimSpace(`
Usage: ` + c.opts.AppName + ` migrations run [-c appwrite-ctl.yml]

  Applies every migration version that is not yet recorded as applied, in ascending order.
  For each version the schema snapshot is pushed, the run waits until the new columns are
  available, the migration script runs and the migration id is recorded.

  The first failure stops the run and exits with a non-zero status.
`)
}

func (c *RunCmd) Synopsis() string {
	return "Apply pending migrations"
}

func (c *RunCmd) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, dep, cleanup, err := c.setup(ctx, "run", args)
	defer cleanup()
	if err != nil {
		c.printf("%s\n", err)
		return ExitErr
	}

	result, err := dep.Runner().Run(ctx)

	// metrics are pushed for failed runs too
	if _err := dep.PushMetrics(context.Background()); _err != nil {
		ylog.Warn(ctx, "push metrics failed", ylog.KV("error", _err))
	}

	for _, v := range result.Versions {
		c.printf("%-8s %-40s %s\n", v.Label, v.ID, v.State)
	}

	if err != nil {
		c.printf("%s\n", err)
		return ExitErr
	}

	c.printf("%d applied, %d already applied\n", result.Applied, result.Skipped)
	return ExitSuccess
}
