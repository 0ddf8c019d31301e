// Package journal keeps a SQLite record of the inbound event stream and the
// diagnostics it produced, so a run can be inspected or replayed later.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/protocol"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed journal persistence
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Entry is one journaled envelope
type Entry struct {
	Seq        int64
	RunID      string
	Envelope   protocol.EnvelopeRaw
	ReceivedAt time.Time
}

// RunInfo summarizes the journal of one run
type RunInfo struct {
	RunID     string
	Envelopes int
	First     time.Time
	Last      time.Time
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases and writes consistent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordEnvelope appends an inbound envelope
func (s *Store) RecordEnvelope(runID string, env protocol.EnvelopeRaw, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO envelopes (run_id, type, payload, received_at)
		VALUES (?, ?, ?, ?)
	`, runID, env.Type, string(env.Payload), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("record envelope: %w", err)
	}
	return nil
}

// RecordDiagnostics appends diagnostics in one transaction
func (s *Store) RecordDiagnostics(runID string, diags []domain.Diagnostic) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	for _, d := range diags {
		_, err := tx.Exec(`
			INSERT INTO diagnostics (run_id, command_key, command_id, kind, detail, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, int64(d.Key), d.ID, string(d.Kind), d.Detail, now)
		if err != nil {
			return fmt.Errorf("record diagnostic: %w", err)
		}
	}
	return tx.Commit()
}

// Envelopes returns the journaled envelopes of a run in arrival order
func (s *Store) Envelopes(runID string) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, type, payload, received_at
		FROM envelopes WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var payload sql.NullString
		var received int64
		if err := rows.Scan(&e.Seq, &e.RunID, &e.Envelope.Type, &payload, &received); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			e.Envelope.Payload = json.RawMessage(payload.String)
		}
		e.ReceivedAt = time.UnixMilli(received)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Diagnostics returns the journaled diagnostics of a run
func (s *Store) Diagnostics(runID string) ([]domain.Diagnostic, error) {
	rows, err := s.db.Query(`
		SELECT command_key, command_id, kind, detail
		FROM diagnostics WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var diags []domain.Diagnostic
	for rows.Next() {
		var d domain.Diagnostic
		var key int64
		var id, detail sql.NullString
		var kind string
		if err := rows.Scan(&key, &id, &kind, &detail); err != nil {
			return nil, err
		}
		d.Key = domain.Key(key)
		d.ID = id.String
		d.Kind = domain.DiagnosticKind(kind)
		d.Detail = detail.String
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

// Runs lists the journaled runs, oldest first
func (s *Store) Runs() ([]RunInfo, error) {
	rows, err := s.db.Query(`
		SELECT run_id, COUNT(*), MIN(received_at), MAX(received_at)
		FROM envelopes GROUP BY run_id ORDER BY MIN(received_at), run_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var r RunInfo
		var first, last int64
		if err := rows.Scan(&r.RunID, &r.Envelopes, &first, &last); err != nil {
			return nil, err
		}
		r.First = time.UnixMilli(first)
		r.Last = time.UnixMilli(last)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Prune deletes everything recorded before cutoff and returns the number
// of envelopes removed
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM envelopes WHERE received_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune envelopes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM diagnostics WHERE recorded_at < ?`, cutoff.UnixMilli()); err != nil {
		return 0, fmt.Errorf("prune diagnostics: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
