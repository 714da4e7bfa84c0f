// Package journal records device-group lifecycle transitions and render
// failures in SQLite, so the diagnostics API can explain why a group is off.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/engine"
)

// Query limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// writeTimeout bounds a single journal insert.
const writeTimeout = 2 * time.Second

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrClosed is returned by queries on a journal without a database.
var ErrClosed = errors.New("journal: database closed")

// Logger defines the logging interface used by the journal.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// GroupEvent is one row of group_events.
type GroupEvent struct {
	ID         string    `json:"id"`
	Group      string    `json:"group"`
	Kind       string    `json:"kind"`
	Devices    int       `json:"devices"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Failure is one row of render_failures.
type Failure struct {
	ID         string    `json:"id"`
	Error      string    `json:"error"`
	Panic      bool      `json:"panic"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Filter selects group events.
type Filter struct {
	// Group restricts results to one group. Empty means all.
	Group string

	// Kind restricts results to one event kind. Empty means all.
	Kind string

	// Limit defaults to DefaultLimit and is capped at MaxLimit.
	Limit int
}

// Journal writes and reads the lifecycle journal.
//
// Write failures are logged and dropped; the journal never fails the caller.
//
// Thread Safety: all methods are safe for concurrent use.
type Journal struct {
	db     *sql.DB
	logger Logger
	now    func() time.Time
}

// Ensure Journal implements engine.FailureRecorder.
var _ engine.FailureRecorder = (*Journal)(nil)

// New creates a Journal over a migrated database.
//
// Parameters:
//   - db: database with the group_journal migration applied
//   - logger: diagnostics; nil disables logging
//
// Returns:
//   - *Journal: ready to record
func New(db *sql.DB, logger Logger) *Journal {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Journal{db: db, logger: logger, now: time.Now}
}

// RecordEvent stores a lifecycle transition. Its signature matches
// device.LifecycleOptions.OnEvent.
func (j *Journal) RecordEvent(ev device.Event) {
	if j.db == nil {
		return
	}
	at := ev.Time
	if at.IsZero() {
		at = j.now()
	}
	var errText any
	if ev.Err != nil {
		errText = ev.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO group_events (id, group_name, kind, devices, error, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ev.Group, string(ev.Kind), ev.Devices, errText,
		at.UTC().Format(timeFormat),
	)
	if err != nil {
		j.logger.Warn("journal write failed", "table", "group_events", "group", ev.Group, "error", err)
	}
}

// RecordFailure stores a render failure.
func (j *Journal) RecordFailure(failure error) {
	if j.db == nil || failure == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO render_failures (id, error, panic, occurred_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), failure.Error(), engine.IsPanic(failure),
		j.now().UTC().Format(timeFormat),
	)
	if err != nil {
		j.logger.Warn("journal write failed", "table", "render_failures", "error", err)
	}
}

// Events returns group events matching filter, newest first.
func (j *Journal) Events(ctx context.Context, filter Filter) ([]GroupEvent, error) {
	if j.db == nil {
		return nil, ErrClosed
	}

	query := `SELECT id, group_name, kind, devices, error, occurred_at FROM group_events WHERE 1=1`
	var args []any
	if filter.Group != "" {
		query += " AND group_name = ?"
		args = append(args, filter.Group)
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	query += " ORDER BY occurred_at DESC, rowid DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit))

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying group events: %w", err)
	}
	defer rows.Close()

	events := make([]GroupEvent, 0)
	for rows.Next() {
		var ev GroupEvent
		var errText sql.NullString
		var at string
		if err := rows.Scan(&ev.ID, &ev.Group, &ev.Kind, &ev.Devices, &errText, &at); err != nil {
			return nil, fmt.Errorf("scanning group event: %w", err)
		}
		ev.Error = errText.String
		ev.OccurredAt, _ = time.Parse(timeFormat, at) //nolint:errcheck // format is ours
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group events: %w", err)
	}
	return events, nil
}

// Failures returns render failures, newest first.
func (j *Journal) Failures(ctx context.Context, limit int) ([]Failure, error) {
	if j.db == nil {
		return nil, ErrClosed
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, error, panic, occurred_at FROM render_failures
		 ORDER BY occurred_at DESC, rowid DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying render failures: %w", err)
	}
	defer rows.Close()

	failures := make([]Failure, 0)
	for rows.Next() {
		var f Failure
		var at string
		if err := rows.Scan(&f.ID, &f.Error, &f.Panic, &at); err != nil {
			return nil, fmt.Errorf("scanning render failure: %w", err)
		}
		f.OccurredAt, _ = time.Parse(timeFormat, at) //nolint:errcheck // format is ours
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating render failures: %w", err)
	}
	return failures, nil
}

// Prune deletes entries older than before and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	if j.db == nil {
		return 0, ErrClosed
	}
	cutoff := before.UTC().Format(timeFormat)

	var total int64
	for _, table := range []string{"group_events", "render_failures"} {
		res, err := j.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE occurred_at < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports it
		total += n
	}
	return total, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
