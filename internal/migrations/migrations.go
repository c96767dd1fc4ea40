package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// Run creates the users and reviews tables. It is safe to call on every start.
func Run(ctx context.Context, db *sqlx.DB) error {
	goose.SetBaseFS(schemaFS)
	goose.SetLogger(logrus.StandardLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "sql"); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
