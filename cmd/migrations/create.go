package migrations

import (
	"context"
	"strings"

	"github.com/mitchellh/cli"
	"github.com/yusufsyaifudin/ylog"
)

type CreateCmd struct {
	*base
}

func NewCreateCmd(opts Options) cli.CommandFactory {
	return func() (cli.Command, error) {
		return &CreateCmd{base: newBase("migrations create", opts)}, nil
	}
}

var _ cli.Command = (*CreateCmd)(nil)

func (c *CreateCmd) Help() string {
	return strings.TrimSpace(`
Usage: ` + c.opts.AppName + ` migrations create [-c appwrite-ctl.yml]

  Creates the next version directory and pulls the current project schema into it.
  Edit the snapshot, then register the migration script under the printed key.
`)
}

func (c *CreateCmd) Synopsis() string {
	return "Create the next migration version from the current schema"
}

func (c *CreateCmd) Run(args []string) int {
	ctx, dep, cleanup, err := c.setup(context.Background(), "create", args)
	defer cleanup()
	if err != nil {
		c.printf("%s\n", err)
		return ExitErr
	}

	v, err := dep.Versions().Create(ctx)
	if err != nil {
		c.printf("%s\n", err)
		return ExitErr
	}

	path, err := dep.Sync().Pull(ctx, v.Dir)
	if err != nil {
		ylog.Error(ctx, "pull schema failed, version directory left without snapshot", ylog.KV("dir", v.Dir))
		c.printf("%s\n", err)
		return ExitErr
	}

	c.printf("created %s\n  snapshot: %s\n  register the script with migration.MustRegister(%q, migration.Migration{...})\n",
		v.Dir, path, v.Label)
	return ExitSuccess
}
