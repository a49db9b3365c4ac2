package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/bfbechlin/appwrite-ctl/migration"
	"github.com/bfbechlin/appwrite-ctl/pkg/appwrite"
)

const (
	databaseID = "main"
	usersTable = "users"
	pageSize   = 100
)

func init() {
	migration.MustRegister("v2", migration.Migration{
		ID:             "lowercase-user-email",
		Description:    "add a unique email index and lowercase existing emails",
		RequiresBackup: true,
		Up:             lowercaseEmails,
	})
}

func lowercaseEmails(ctx context.Context, mc *migration.Context) error {
	var (
		cursor  string
		updated int
	)

	for {
		queries := []string{appwrite.Limit(pageSize)}
		if cursor != "" {
			queries = append(queries, appwrite.CursorAfter(cursor))
		}

		page, err := mc.Tables.ListRows(ctx, databaseID, usersTable, queries...)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		for _, row := range page.Rows {
			email := row.String("email")
			lower := strings.ToLower(email)
			if email == lower {
				continue
			}

			_, err = mc.Tables.UpdateRow(ctx, databaseID, usersTable, row.ID, map[string]interface{}{"email": lower})
			if err != nil {
				return fmt.Errorf("update user %s: %w", row.ID, err)
			}

			updated++
		}

		if len(page.Rows) < pageSize {
			break
		}

		cursor = page.Rows[len(page.Rows)-1].ID
	}

	mc.Log("lowercased %d emails", updated)
	return nil
}
