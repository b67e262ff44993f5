package auth

import (
	"database/sql"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lessons/internal/rbac"
)

// AttachRoleFromDB replaces the token's role with the one stored for the
// subject, so demoting a user takes effect before their token expires.
// Subjects missing from the users table keep the claimed role only when
// allowClaimFallback is set (offline mode); otherwise they are refused.
func AttachRoleFromDB(db *sql.DB, allowClaimFallback bool, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)

			var role string
			err := db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, sub).Scan(&role)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, sql.ErrNoRows) && allowClaimFallback:
				next.ServeHTTP(w, r)
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				logger.Error("lookup role", zap.String("sub", sub), zap.Error(err))
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
