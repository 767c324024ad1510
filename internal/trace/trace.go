// Package trace is an optional offline sink for a stepping session: it
// appends one row per visited state to a local SQLite file so a run
// can be inspected later without the terminal UI. It never feeds back
// into the machine — tick's own state is never read from or written to
// disk.
package trace

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Recorder appends visited-state rows to a SQLite database under a
// single session id, so two terminal sessions tracing the same source
// file into the same database never collide.
type Recorder struct {
	db        *sql.DB
	sessionID uuid.UUID
	seq       int
}

// Open creates (or reuses) the sqlite file at path, ensures the trace
// table exists, and starts a fresh session id for this run.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trace: opening %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: connecting to %s: %w", path, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS ticks (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	lineno     INTEGER NOT NULL,
	store_size INTEGER NOT NULL,
	stack_depth INTEGER NOT NULL,
	PRIMARY KEY (session_id, seq)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: creating schema: %w", err)
	}

	return &Recorder{db: db, sessionID: uuid.New()}, nil
}

// SessionID identifies this recorder's run; the driver shows it in the
// status line so a user can tell two sessions' rows apart later.
func (r *Recorder) SessionID() uuid.UUID { return r.sessionID }

// Record appends one row describing the state just reached.
func (r *Recorder) Record(lineno, storeSize, stackDepth int) error {
	_, err := r.db.Exec(
		`INSERT INTO ticks (session_id, seq, lineno, store_size, stack_depth) VALUES (?, ?, ?, ?, ?)`,
		r.sessionID.String(), r.seq, lineno, storeSize, stackDepth,
	)
	if err != nil {
		return fmt.Errorf("trace: recording tick %d: %w", r.seq, err)
	}
	r.seq++
	return nil
}

// Close releases the underlying database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}
