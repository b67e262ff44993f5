package auth

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lessons/internal/rbac"
)

const (
	guestCookie   = "me_guest_id"
	guestIDPrefix = "guest|"
	guestTTL      = 30 * 24 * time.Hour
)

// POST /auth/guest
//
// GuestLoginHandler hands out learner tokens without an account so a lesson
// can be played from a shared link. The guest id lives in a cookie; a
// returning browser keeps its sessions.
func GuestLoginHandler(a *AuthService, db *sql.DB, logger *zap.Logger) http.HandlerFunc {
	type out struct {
		AccessToken string `json:"access_token"`
		Username    string `json:"username"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var userID, username string
		if c, err := r.Cookie(guestCookie); err == nil && strings.HasPrefix(c.Value, guestIDPrefix) {
			var role string
			err := db.QueryRowContext(r.Context(), `SELECT username, role FROM users WHERE id=$1`, c.Value).Scan(&username, &role)
			if err == nil && role == rbac.RoleLearner {
				userID = c.Value
			}
		}

		if userID == "" {
			sfx := strings.ReplaceAll(uuid.NewString(), "-", "")
			userID = guestIDPrefix + sfx
			username = "guest-" + sfx[:8]
			// empty hash: guests can never log in with a password
			_, err := db.ExecContext(r.Context(),
				`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,'',$3,$4)`,
				userID, username, rbac.RoleLearner, time.Now().Unix())
			if err != nil {
				logger.Error("create guest", zap.Error(err))
				http.Error(w, "guest login failed", http.StatusInternalServerError)
				return
			}
			logger.Info("guest created", zap.String("user_id", userID))
		}

		tok, err := a.IssueJWT(userID, rbac.RoleLearner)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     guestCookie,
			Value:    userID,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
			Expires:  time.Now().Add(guestTTL),
		})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out{AccessToken: tok, Username: username})
	}
}
