package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, sess Session) error {
	sj, err := json.Marshal(sess.State)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO playback_sessions (id,lesson_id,learner_id,lesson_version,state_json,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sess.ID, sess.LessonID, sess.LearnerID, sess.LessonVersion, string(sj), sess.CreatedAt, sess.UpdatedAt)
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,lesson_id,learner_id,lesson_version,state_json,created_at,updated_at FROM playback_sessions WHERE id=$1`, id)
	var (
		sess Session
		sj   string
	)
	if err := row.Scan(&sess.ID, &sess.LessonID, &sess.LearnerID, &sess.LessonVersion, &sj, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	if err := json.Unmarshal([]byte(sj), &sess.State); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *SQLStore) Save(ctx context.Context, sess Session) error {
	sj, err := json.Marshal(sess.State)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE playback_sessions SET state_json=$1, lesson_version=$2, updated_at=$3 WHERE id=$4`,
		string(sj), sess.LessonVersion, sess.UpdatedAt, sess.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
