package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store keeps the history of finished conversions in PostgreSQL.
type Store struct {
	conn *pgx.Conn
}

// Run is one completed conversion.
type Run struct {
	ID           uuid.UUID
	VideoID      string
	InputPath    string
	OutputPath   string
	Reference    string
	FrameRate    string
	Frames       int
	FacesSwapped int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration is the wall time the conversion took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			video_id TEXT NOT NULL,
			input_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			reference TEXT NOT NULL,
			frame_rate TEXT NOT NULL,
			frames INT NOT NULL,
			faces_swapped INT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS runs_finished_at_idx ON runs (finished_at DESC);
	`)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// RecordRun saves a finished conversion. A zero ID is replaced with a fresh UUID,
// which is returned.
func (s *Store) RecordRun(ctx context.Context, r Run) (uuid.UUID, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.StartedAt.After(r.FinishedAt) {
		return uuid.Nil, errors.New("run finished before it started")
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO runs (id, video_id, input_path, output_path, reference, frame_rate,
			frames, faces_swapped, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID.String(), r.VideoID, r.InputPath, r.OutputPath, r.Reference, r.FrameRate,
		r.Frames, r.FacesSwapped, r.StartedAt, r.FinishedAt)
	if err != nil {
		return uuid.Nil, err
	}
	return r.ID, nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, video_id, input_path, output_path, reference, frame_rate,
			frames, faces_swapped, started_at, finished_at
		FROM runs ORDER BY finished_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var id string
		if err := rows.Scan(&id, &r.VideoID, &r.InputPath, &r.OutputPath, &r.Reference, &r.FrameRate,
			&r.Frames, &r.FacesSwapped, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run %q: %w", id, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Reset drops the history table. The next New recreates it.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS runs CASCADE;`)
	return err
}
