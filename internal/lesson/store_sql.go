package lesson

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Put(ctx context.Context, l Lesson) (Lesson, error) {
	l = normalize(l)
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	sj, err := json.Marshal(l.Scenario)
	if err != nil {
		return Lesson{}, err
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `INSERT INTO lessons (id,title,owner_id,scenario_json,version,created_at,updated_at)
		VALUES ($1,$2,$3,$4,1,$5,$6)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, owner_id=EXCLUDED.owner_id,
			scenario_json=EXCLUDED.scenario_json, version=lessons.version+1, updated_at=EXCLUDED.updated_at`,
		l.ID, l.Title, l.OwnerID, string(sj), now, now)
	if err != nil {
		return Lesson{}, err
	}
	return s.Get(ctx, l.ID)
}

func (s *SQLStore) Get(ctx context.Context, id string) (Lesson, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,title,owner_id,scenario_json,version,created_at,updated_at FROM lessons WHERE id=$1`, id)
	var (
		l  Lesson
		sj string
	)
	if err := row.Scan(&l.ID, &l.Title, &l.OwnerID, &sj, &l.Version, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lesson{}, ErrNotFound
		}
		return Lesson{}, err
	}
	if err := json.Unmarshal([]byte(sj), &l.Scenario); err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]Summary, error) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`SELECT id,title,owner_id,version,updated_at FROM lessons WHERE 1=1`)
	if opts.OwnerID != "" {
		args = append(args, opts.OwnerID)
		b.WriteString(` AND owner_id=$` + strconv.Itoa(len(args)))
	}
	if q := strings.TrimSpace(opts.Q); q != "" {
		args = append(args, strings.ToLower(q))
		b.WriteString(` AND LOWER(title) LIKE '%' || $` + strconv.Itoa(len(args)) + ` || '%'`)
	}
	args = append(args, clampLimit(opts.Limit), opts.Offset)
	b.WriteString(` ORDER BY updated_at DESC, id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args)))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Summary{}
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.Title, &sm.OwnerID, &sm.Version, &sm.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lessons WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
