// Package app holds the migration scripts of the example project. Importing it registers them.
package app

import (
	"context"

	"github.com/bfbechlin/appwrite-ctl/migration"
)

func init() {
	migration.MustRegister("v1", migration.Migration{
		ID:          "initial-schema",
		Description: "create the main database with the users table",
		Up: func(ctx context.Context, mc *migration.Context) error {
			// the schema push already created everything
			mc.Log("initial schema is in place")
			return nil
		},
	})
}
