package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TableStat is a table name with its row count.
type TableStat struct {
	Name string
	Rows int64
}

// Stats counts the rows of every table in the database, including
// the migration bookkeeping table.
func Stats(ctx context.Context, db *sqlx.DB) ([]TableStat, error) {
	var names []string
	err := db.SelectContext(ctx, &names, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	stats := make([]TableStat, 0, len(names))
	for _, name := range names {
		var n int64
		// Names come from sqlite_master, not user input.
		if err := db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, name)); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", name, err)
		}
		stats = append(stats, TableStat{Name: name, Rows: n})
	}
	return stats, nil
}
