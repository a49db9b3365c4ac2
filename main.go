package main

import (
	"log"
	"os"

	"github.com/mitchellh/cli"

	_ "github.com/bfbechlin/appwrite-ctl/assets/migrations/app"
	"github.com/bfbechlin/appwrite-ctl/cmd/migrations"
)

// set with -ldflags "-X main.appVersion=..."
var appVersion = "dev"

func main() {
	const appName = "appwrite-ctl"

	opts := migrations.Options{
		AppName:    appName,
		AppVersion: appVersion,
	}

	c := cli.NewCLI(appName, appVersion)
	c.Args = os.Args[1:]
	c.Autocomplete = true
	c.Commands = map[string]cli.CommandFactory{
		"migrations run":    migrations.NewRunCmd(opts),
		"migrations status": migrations.NewStatusCmd(opts),
		"migrations create": migrations.NewCreateCmd(opts),
	}

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}

	os.Exit(exitStatus)
}
