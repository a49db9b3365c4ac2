// Package migration is the API migration scripts are written against.
//
// A script is a Migration value registered under its version label, usually from an init func:
//
//	func init() {
//		migration.MustRegister("v3", migration.Migration{
//			ID: "add-user-email-index",
//			Up: func(ctx context.Context, mc *migration.Context) error { ... },
//		})
//	}
package migration

import (
	"context"

	"github.com/bfbechlin/appwrite-ctl/pkg/appwrite"
)

type Func func(ctx context.Context, mc *Context) error

type Migration struct {
	// ID is recorded in the applied set once Up succeeds. It must never change after the version is released.
	ID          string `validate:"required,notblank,max=255"`
	Description string `validate:"-"`

	// RequiresBackup only produces a warning before the schema push.
	RequiresBackup bool `validate:"-"`

	// Up runs exactly once per successful application and must be safe to re-attempt after a failure.
	Up Func `validate:"required"`

	// Down is kept for authors' reference; the runner never calls it.
	Down Func `validate:"-"`
}

// Context is handed to Up. Log and Error prefix every line with the version label.
type Context struct {
	Version string
	Client  *appwrite.Client
	Tables  *appwrite.TablesDB
	Log     func(msg string, args ...interface{})
	Error   func(msg string, args ...interface{})
}
