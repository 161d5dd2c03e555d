// Package store persists workflow state after every step and under named
// checkpoints.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a run or checkpoint has nothing stored.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by SQL stores after Close.
var ErrClosed = errors.New("store is closed")

// Store persists the state of workflow runs.
//
// SaveStep is called by the engine after the reducer merged a step's delta;
// saving the same (runID, step) twice replaces the earlier record. States are
// stored by value: later mutations of the caller's state must not leak into
// the store.
type Store[S any] interface {
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the state with the highest step number of runID.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error

	LoadCheckpoint(ctx context.Context, cpID string) (state S, step int, err error)
}

// StepRecord is one persisted step.
type StepRecord[S any] struct {
	Step      int
	NodeID    string
	State     S
	CreatedAt time.Time
}

// HistoryReader lists the steps of a run in step order. All stores in this
// package implement it.
type HistoryReader[S any] interface {
	ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error)
}

// Closer is implemented by stores holding a connection.
type Closer interface {
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Backend is a store that can also list history.
type Backend[S any] interface {
	Store[S]
	HistoryReader[S]
}

// Open returns the store named by driver. dsn is a file path (or ":memory:")
// for sqlite and a go-sql-driver DSN for mysql; it is ignored for memory.
func Open[S any](driver, dsn string) (Backend[S], error) {
	switch driver {
	case "", DriverMemory:
		return NewMemStore[S](), nil
	case DriverSQLite:
		if dsn == "" {
			dsn = "agentflow.db"
		}
		st, err := NewSQLiteStore[S](dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverMySQL:
		if dsn == "" {
			return nil, errors.New("mysql store needs a DSN")
		}
		st, err := NewMySQLStore[S](dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// CloseIfCloser closes st when it holds a connection.
func CloseIfCloser(st any) error {
	if c, ok := st.(Closer); ok {
		return c.Close()
	}
	return nil
}
