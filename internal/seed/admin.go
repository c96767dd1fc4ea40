package seed

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// EnsureAdmin inserts the default account unless a user with that name exists.
// An existing row is left untouched, whatever its password.
func EnsureAdmin(ctx context.Context, db *sqlx.DB, username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("unable to hash admin password: %w", err)
	}

	res, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO users (username, password) VALUES (?, ?)`, username, string(hashed))
	if err != nil {
		return fmt.Errorf("unable to seed admin user: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logrus.WithField("username", username).Info("seeded default admin account")
	}
	return nil
}
