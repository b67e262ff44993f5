package http

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-lessons/internal/rbac"
)

// bcryptCost is a var so tests can lower it.
var bcryptCost = 12

type userRow struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`               // defaults to learner
	Password string `json:"password,omitempty"` // required for new users
}

type upsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// POST /users/bulk
//
// Accepts a JSON array body, or a multipart "file" holding a JSON array or
// a CSV with id,username,role[,password] columns.
func BulkUpsertUsersHandler(db *sql.DB, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []userRow
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			rows, err = decodeUserFile(f)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		} else if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, "expected JSON array or multipart file", http.StatusBadRequest)
			return
		}
		if len(rows) == 0 {
			respondJSON(w, http.StatusOK, upsertResult{})
			return
		}

		res, err := upsertUsers(r.Context(), db, rows)
		var bad badRequest
		switch {
		case errors.As(err, &bad):
			http.Error(w, bad.Error(), http.StatusBadRequest)
		case err != nil:
			respondError(w, logger, err)
		default:
			logger.Info("users upserted", zap.Int("inserted", res.Inserted), zap.Int("updated", res.Updated))
			respondJSON(w, http.StatusOK, res)
		}
	}
}

// GET /users?role=
func ListUsersHandler(db *sql.DB, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := `SELECT id,username,role FROM users ORDER BY username`
		var args []any
		if role := r.URL.Query().Get("role"); role != "" {
			q = `SELECT id,username,role FROM users WHERE role=$1 ORDER BY username`
			args = append(args, role)
		}
		rows, err := db.QueryContext(r.Context(), q, args...)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		defer rows.Close()
		out := []userRow{}
		for rows.Next() {
			var u userRow
			if err := rows.Scan(&u.ID, &u.Username, &u.Role); err != nil {
				respondError(w, logger, err)
				return
			}
			out = append(out, u)
		}
		if err := rows.Err(); err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// decodeUserFile sniffs the first non-space byte to tell JSON from CSV.
func decodeUserFile(f io.Reader) ([]userRow, error) {
	br := bufio.NewReader(f)
	for {
		b, err := br.Peek(1)
		if err != nil {
			return nil, errors.New("empty file")
		}
		if b[0] != ' ' && b[0] != '\n' && b[0] != '\r' && b[0] != '\t' {
			break
		}
		_, _ = br.ReadByte()
	}
	if b, _ := br.Peek(1); b[0] == '[' {
		var rows []userRow
		if err := json.NewDecoder(br).Decode(&rows); err != nil {
			return nil, errors.New("bad json")
		}
		return rows, nil
	}
	rows, err := parseCSV(br)
	if err != nil {
		return nil, fmt.Errorf("bad csv: %w", err)
	}
	return rows, nil
}

func parseCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"username", "role"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	col := func(rec []string, name string) string {
		if i, ok := idx[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	var rows []userRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, userRow{
			ID:       col(rec, "id"),
			Username: col(rec, "username"),
			Role:     strings.ToLower(col(rec, "role")),
			Password: col(rec, "password"),
		})
	}
	return rows, nil
}

// upsertUsers matches rows by id, or by username when id is empty. New users
// need a password; existing ones keep their hash unless one is given.
func upsertUsers(ctx context.Context, db *sql.DB, rows []userRow) (res upsertResult, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	now := time.Now().Unix()
	for _, u := range rows {
		if u.Username == "" {
			return res, badRequest("username required")
		}
		if u.Role == "" {
			u.Role = rbac.RoleLearner
		}
		if !rbac.ValidRole(u.Role) {
			return res, badRequest("invalid role: " + u.Role)
		}
		var phash string
		if u.Password != "" {
			b, e := bcrypt.GenerateFromPassword([]byte(u.Password), bcryptCost)
			if e != nil {
				return res, e
			}
			phash = string(b)
		}

		var existing string
		err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id=$1 OR username=$2`, u.ID, u.Username).Scan(&existing)
		switch {
		case err == nil:
			if phash != "" {
				_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2, password_hash=$3 WHERE id=$4`,
					u.Username, u.Role, phash, existing)
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2 WHERE id=$3`,
					u.Username, u.Role, existing)
			}
			if err != nil {
				return res, err
			}
			res.Updated++
		case errors.Is(err, sql.ErrNoRows):
			if phash == "" {
				return res, badRequest("password required for new user: " + u.Username)
			}
			if u.ID == "" {
				u.ID = uuid.NewString()
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)`,
				u.ID, u.Username, phash, u.Role, now)
			if err != nil {
				return res, err
			}
			res.Inserted++
		default:
			return res, err
		}
	}
	return res, nil
}
