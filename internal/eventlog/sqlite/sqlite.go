// Package sqlite provides the durable event store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"netfabric/internal/codec"
	"netfabric/internal/eventlog"
	"netfabric/internal/identity"

	_ "modernc.org/sqlite"
)

// Store implements eventlog.Store on a single SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the event database at path.
func New(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one pooled connection keeps
	// transactions serialized and makes :memory: databases usable
	// under database/sql.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// NewFromDB wraps an already-open database handle. Used by tests that
// inject a mock driver.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		aggregate_id    TEXT NOT NULL,
		sequence        INTEGER NOT NULL,
		event_id        TEXT NOT NULL UNIQUE,
		kind            TEXT NOT NULL,
		payload         BLOB NOT NULL,
		content_id      TEXT NOT NULL,
		prev_content_id TEXT NOT NULL,
		correlation_id  TEXT NOT NULL,
		causation_id    TEXT NOT NULL,
		recorded_at     TEXT NOT NULL,
		PRIMARY KEY (aggregate_id, sequence)
	);

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS halted_streams (
		aggregate_id TEXT PRIMARY KEY,
		reason       TEXT NOT NULL,
		halted_at    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_correlation ON events(correlation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append implements eventlog.Store. The whole batch commits in one
// transaction: version check, validation, sequence assignment, and
// inserts either all take effect or none do.
func (s *Store) Append(ctx context.Context, aggregateID identity.AggregateID, expectedVersion uint64, trigger identity.Envelope, events []eventlog.Event) ([]eventlog.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.checkHalted(ctx, tx, aggregateID); err != nil {
		return nil, err
	}

	version, prev, err := streamHead(ctx, tx, aggregateID)
	if err != nil {
		return nil, err
	}
	if version != expectedVersion {
		return nil, &eventlog.ConcurrencyConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: version}
	}

	known := func(id identity.MessageID) (bool, error) {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE message_id = ?`, string(id)).Scan(&one)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to look up message %s: %w", id, err)
		}
		return true, nil
	}
	if err := eventlog.ValidateBatch(aggregateID, trigger, events, known); err != nil {
		if eventlog.HaltsStream(err) {
			// Release the doomed transaction first: it holds the
			// pool's only connection, and halt needs one.
			tx.Rollback()
			s.halt(ctx, aggregateID, err.Error())
		}
		return nil, err
	}

	sealed := eventlog.Seal(events, version, prev)

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO events (aggregate_id, sequence, event_id, kind, payload,
			content_id, prev_content_id, correlation_id, causation_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insert.Close()

	for i := range sealed {
		ev := &sealed[i]
		_, err := insert.ExecContext(ctx,
			string(ev.AggregateID), ev.Sequence, string(ev.ID), ev.Kind, []byte(ev.Payload),
			ev.ContentID.String(), ev.PrevContentID.String(),
			string(ev.CorrelationID), string(ev.CausationID),
			ev.RecordedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return nil, fmt.Errorf("failed to insert event %s: %w", ev.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO messages (message_id) VALUES (?)`, string(ev.ID)); err != nil {
			return nil, fmt.Errorf("failed to register message %s: %w", ev.ID, err)
		}
	}
	if trigger.ID != "" {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO messages (message_id) VALUES (?)`, string(trigger.ID)); err != nil {
			return nil, fmt.Errorf("failed to register trigger %s: %w", trigger.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return sealed, nil
}

// Read implements eventlog.Store, verifying the content chain.
func (s *Store) Read(ctx context.Context, aggregateID identity.AggregateID) ([]eventlog.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT aggregate_id, sequence, event_id, kind, payload,
			content_id, prev_content_id, correlation_id, causation_id, recorded_at
		FROM events WHERE aggregate_id = ? ORDER BY sequence
	`, string(aggregateID))
	if err != nil {
		return nil, fmt.Errorf("failed to query stream %s: %w", aggregateID, err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	if err := eventlog.VerifyChain(events); err != nil {
		s.halt(ctx, aggregateID, err.Error())
		return nil, err
	}
	return events, nil
}

// ReadByCorrelation implements eventlog.Store.
func (s *Store) ReadByCorrelation(ctx context.Context, correlationID identity.CorrelationID) ([]eventlog.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT aggregate_id, sequence, event_id, kind, payload,
			content_id, prev_content_id, correlation_id, causation_id, recorded_at
		FROM events WHERE correlation_id = ? ORDER BY aggregate_id, sequence
	`, string(correlationID))
	if err != nil {
		return nil, fmt.Errorf("failed to query correlation %s: %w", correlationID, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// checkHalted fails the append if the stream was previously poisoned.
func (s *Store) checkHalted(ctx context.Context, tx *sql.Tx, aggregateID identity.AggregateID) error {
	var reason string
	err := tx.QueryRowContext(ctx, `SELECT reason FROM halted_streams WHERE aggregate_id = ?`, string(aggregateID)).Scan(&reason)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check stream status: %w", err)
	}
	return &eventlog.StreamPoisonedError{AggregateID: aggregateID, Reason: reason}
}

// halt records an integrity violation outside the failed transaction
// so the mark survives the rollback.
func (s *Store) halt(ctx context.Context, aggregateID identity.AggregateID, reason string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO halted_streams (aggregate_id, reason, halted_at) VALUES (?, ?, ?)
	`, string(aggregateID), reason, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		// The stream is already failing loudly; nothing better to do here.
		return
	}
}

// streamHead returns the current version and last content id of a
// stream, or (0, zero hash) for a new stream.
func streamHead(ctx context.Context, tx *sql.Tx, aggregateID identity.AggregateID) (uint64, codec.Hash, error) {
	var (
		sequence  uint64
		contentID string
	)
	err := tx.QueryRowContext(ctx, `
		SELECT sequence, content_id FROM events
		WHERE aggregate_id = ? ORDER BY sequence DESC LIMIT 1
	`, string(aggregateID)).Scan(&sequence, &contentID)
	if err == sql.ErrNoRows {
		return 0, codec.ZeroHash, nil
	}
	if err != nil {
		return 0, codec.ZeroHash, fmt.Errorf("failed to read stream head: %w", err)
	}

	head, err := codec.ParseHash(contentID)
	if err != nil {
		return 0, codec.ZeroHash, fmt.Errorf("corrupt stream head for %s: %w", aggregateID, err)
	}
	return sequence, head, nil
}

func scanEvents(rows *sql.Rows) ([]eventlog.Event, error) {
	var events []eventlog.Event
	for rows.Next() {
		var (
			ev                   eventlog.Event
			payload              []byte
			contentID, prevID    string
			aggregateID, eventID string
			correlation, cause   string
			recordedAt           string
		)
		if err := rows.Scan(&aggregateID, &ev.Sequence, &eventID, &ev.Kind, &payload,
			&contentID, &prevID, &correlation, &cause, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		ev.AggregateID = identity.AggregateID(aggregateID)
		ev.ID = identity.EventID(eventID)
		ev.Payload = payload
		ev.CorrelationID = identity.CorrelationID(correlation)
		ev.CausationID = identity.CausationID(cause)

		var err error
		if ev.ContentID, err = codec.ParseHash(contentID); err != nil {
			return nil, fmt.Errorf("corrupt content id on event %s: %w", eventID, err)
		}
		if ev.PrevContentID, err = codec.ParseHash(prevID); err != nil {
			return nil, fmt.Errorf("corrupt prev content id on event %s: %w", eventID, err)
		}
		if ev.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("corrupt timestamp on event %s: %w", eventID, err)
		}

		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}
