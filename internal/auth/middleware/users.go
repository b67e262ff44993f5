package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-lessons/internal/rbac"
)

// EnsureAdmin creates the bootstrap admin account if no user with that
// name exists yet. passHash must already be a bcrypt hash.
func EnsureAdmin(ctx context.Context, db *sql.DB, username, passHash string) (created bool, err error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username=$1`, username).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)`,
		uuid.NewString(), username, passHash, rbac.RoleAdmin, time.Now().Unix())
	return err == nil, err
}
