// Package audit records verification outcomes in a SQLite-backed delivery
// log. Only metadata is stored (event type, endpoint, rejection reason);
// payload contents never touch disk.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record kinds.
const (
	KindDelivered = "delivered"
	KindRejected  = "rejected"
)

// Record is one row of the delivery log.
type Record struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	EventType     string    `json:"event_type,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Endpoint      string    `json:"endpoint"`
	ListenerCount int       `json:"listener_count"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Store persists delivery records.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an opened database (see storage.OpenSQLite).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordDelivery logs a verified event that was dispatched to listeners.
func (s *Store) RecordDelivery(ctx context.Context, eventType, endpoint string, listenerCount int) (string, error) {
	if eventType == "" {
		return "", fmt.Errorf("event type is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO delivery_log(id, kind, event_type, endpoint, listener_count, received_at)
VALUES(?, ?, ?, ?, ?, ?);
`, id, KindDelivered, eventType, endpoint, listenerCount, now)
	if err != nil {
		return "", fmt.Errorf("record delivery: %w", err)
	}
	return id, nil
}

// RecordRejection logs a request that failed verification.
func (s *Store) RecordRejection(ctx context.Context, reason, endpoint string) (string, error) {
	if reason == "" {
		return "", fmt.Errorf("reason is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO delivery_log(id, kind, reason, endpoint, received_at)
VALUES(?, ?, ?, ?, ?);
`, id, KindRejected, reason, endpoint, now)
	if err != nil {
		return "", fmt.Errorf("record rejection: %w", err)
	}
	return id, nil
}

// Recent returns the newest records, newest-first, up to limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, kind, event_type, reason, endpoint, listener_count, received_at
FROM delivery_log
ORDER BY received_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent deliveries: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec         Record
			eventType   sql.NullString
			reason      sql.NullString
			receivedAtS string
		)
		if err := rows.Scan(&rec.ID, &rec.Kind, &eventType, &reason, &rec.Endpoint, &rec.ListenerCount, &receivedAtS); err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		if eventType.Valid {
			rec.EventType = eventType.String
		}
		if reason.Valid {
			rec.Reason = reason.String
		}
		if t, err := time.Parse(time.RFC3339Nano, receivedAtS); err == nil {
			rec.ReceivedAt = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery records: %w", err)
	}
	return out, nil
}

// Prune deletes records older than retention and reports how many went.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}

	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM delivery_log WHERE received_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune delivery log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune delivery log: %w", err)
	}
	return n, nil
}
