package migrations

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mitchellh/cli"
)

type StatusCmd struct {
	*base
}

func NewStatusCmd(opts Options) cli.CommandFactory {
	return func() (cli.Command, error) {
		return &StatusCmd{base: newBase("migrations status", opts)}, nil
	}
}

var _ cli.Command = (*StatusCmd)(nil)

func (c *StatusCmd) Help() string {
	return strings.TrimSpace(`
Usage: ` + c.opts.AppName + ` migrations status [-c appwrite-ctl.yml]

  Lists every migration version and whether it is applied. Nothing is created, pushed or executed.
`)
}

func (c *StatusCmd) Synopsis() string {
	return "Show applied and pending migrations"
}

func (c *StatusCmd) Run(args []string) int {
	ctx, dep, cleanup, err := c.setup(context.Background(), "status", args)
	defer cleanup()
	if err != nil {
		c.printf("%s\n", err)
		return ExitErr
	}

	entries, err := dep.Runner().Status(ctx)
	if err != nil {
		c.printf("%s\n", err)
		return ExitErr
	}

	w := tabwriter.NewWriter(c.opts.Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tID\tSTATE\tAPPLIED AT\tDESCRIPTION")
	for _, e := range entries {
		appliedAt := "-"
		if !e.AppliedAt.IsZero() {
			appliedAt = e.AppliedAt.Format(time.RFC3339)
		}

		desc := e.Description
		if e.RequiresBackup {
			desc = strings.TrimSpace("[backup] " + desc)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Label, e.ID, e.State(), appliedAt, desc)
	}

	if err = w.Flush(); err != nil {
		c.printf("%s\n", err)
		return ExitErr
	}

	return ExitSuccess
}
