package queue

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"delayflow/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS tasks (
  position INTEGER PRIMARY KEY,
  id TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL,
  created_at TEXT NOT NULL,
  scheduled_for TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  completed_at TEXT,
  data TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`
	_, err := db.Exec(schema)
	return errors.Wrap(err, "ensure schema")
}

type SQLiteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo { return &SQLiteRepo{db: db} }

// DB returns the underlying database connection.
func (r *SQLiteRepo) DB() *sql.DB { return r.db }

func (r *SQLiteRepo) Load(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,name,created_at,scheduled_for,status,completed_at,data
FROM tasks ORDER BY position`)
	if err != nil {
		return nil, errors.Wrap(err, "query tasks")
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		var (
			t                       domain.Task
			created, scheduled, raw string
			status                  string
			completed               sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &created, &scheduled, &status, &completed, &raw); err != nil {
			return nil, errors.Wrap(err, "scan task")
		}
		t.Status = domain.Status(status)
		if t.CreatedAt, err = domain.ParseTime(created); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "task %q created_at", t.Name), ErrMalformed)
		}
		if t.ScheduledFor, err = domain.ParseTime(scheduled); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "task %q scheduled_for", t.Name), ErrMalformed)
		}
		if completed.Valid && completed.String != "" {
			at, err := domain.ParseTime(completed.String)
			if err != nil {
				return nil, errors.Mark(errors.Wrapf(err, "task %q completed_at", t.Name), ErrMalformed)
			}
			t.CompletedAt = &at
		}
		if err := json.Unmarshal([]byte(raw), &t.Data); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "task %q data", t.Name), ErrMalformed)
		}
		if t.Data == nil {
			t.Data = map[string]any{}
		}
		tasks = append(tasks, t)
	}
	return tasks, errors.Wrap(rows.Err(), "iterate tasks")
}

// Save replaces the stored collection inside a single transaction.
func (r *SQLiteRepo) Save(ctx context.Context, tasks []domain.Task) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return errors.Wrap(err, "clear tasks")
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO tasks (position,id,name,created_at,scheduled_for,status,completed_at,data)
VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for i, t := range tasks {
		data := t.Data
		if data == nil {
			data = map[string]any{}
		}
		var raw []byte
		if raw, err = json.Marshal(data); err != nil {
			return errors.Wrapf(err, "encode data for %q", t.Name)
		}
		var completed sql.NullString
		if t.CompletedAt != nil {
			completed = sql.NullString{String: domain.FormatTime(*t.CompletedAt), Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, i, t.ID, t.Name,
			domain.FormatTime(t.CreatedAt), domain.FormatTime(t.ScheduledFor),
			string(t.Status), completed, string(raw)); err != nil {
			return errors.Wrapf(err, "insert %q", t.Name)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}
