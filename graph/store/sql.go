package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name           string
	schema         []string
	upsertStep     string
	upsertCheckpnt string
}

// sqlStore implements Store and HistoryReader on database/sql. States are
// stored as JSON text; timestamps as unix milliseconds so both backends scan
// them the same way.
type sqlStore[S any] struct {
	mu      sync.RWMutex
	db      *sql.DB
	closed  bool
	dialect dialect
}

func newSQLStore[S any](ctx context.Context, db *sql.DB, d dialect) (*sqlStore[S], error) {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create %s schema: %w", d.name, err)
		}
	}
	return &sqlStore[S]{db: db, dialect: d}, nil
}

func (s *sqlStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *sqlStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.upsertStep, runID, step, nodeID, string(data), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("save step %d of %s: %w", step, runID, err)
	}
	return nil
}

func (s *sqlStore[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	if err := s.checkOpen(); err != nil {
		return state, 0, err
	}

	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT step, state FROM workflow_steps WHERE run_id = ? ORDER BY step DESC LIMIT 1`,
		runID).Scan(&step, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return state, 0, ErrNotFound
	}
	if err != nil {
		return state, 0, fmt.Errorf("load latest step of %s: %w", runID, err)
	}

	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		var zero S
		return zero, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, step, nil
}

func (s *sqlStore[S]) SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.upsertCheckpnt, cpID, string(data), step, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cpID, err)
	}
	return nil
}

func (s *sqlStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (state S, step int, err error) {
	if err := s.checkOpen(); err != nil {
		return state, 0, err
	}

	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT state, step FROM workflow_checkpoints WHERE checkpoint_id = ?`,
		cpID).Scan(&raw, &step)
	if errors.Is(err, sql.ErrNoRows) {
		return state, 0, ErrNotFound
	}
	if err != nil {
		return state, 0, fmt.Errorf("load checkpoint %s: %w", cpID, err)
	}

	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		var zero S
		return zero, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, step, nil
}

func (s *sqlStore[S]) ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT step, node_id, state, created_at FROM workflow_steps WHERE run_id = ? ORDER BY step`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("list steps of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []StepRecord[S]
	for rows.Next() {
		var (
			rec     StepRecord[S]
			raw     string
			created int64
		)
		if err := rows.Scan(&rec.Step, &rec.NodeID, &raw, &created); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &rec.State); err != nil {
			return nil, fmt.Errorf("unmarshal step %d: %w", rec.Step, err)
		}
		rec.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list steps of %s: %w", runID, err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Ping checks the connection.
func (s *sqlStore[S]) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close releases the connection pool. Closing twice is a no-op.
func (s *sqlStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
