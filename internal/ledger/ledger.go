// Package ledger provides an append-only history of session events.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/notify"
)

// EventType is the kind of a ledger entry. Notifier events use their topic.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventSessionStopped EventType = "session_stopped"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64          `json:"id"`
	EventID   string         `json:"event_id,omitempty"`
	EventType EventType      `json:"event_type"`
	Level     string         `json:"level,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Source    string         `json:"source,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// Ledger provides append-only event logging. Timestamps are Unix milliseconds.
type Ledger struct {
	db        *sql.DB
	sessionID string
}

// New creates a new Ledger using the provided database connection.
// Entries are tagged with sessionID.
func New(db *sql.DB, sessionID string) *Ledger {
	return &Ledger{db: db, sessionID: sessionID}
}

// SessionID returns the id entries are tagged with.
func (l *Ledger) SessionID() string {
	return l.sessionID
}

// Append adds a new entry to the ledger.
func (l *Ledger) Append(eventType EventType, message string, payload map[string]any) error {
	return l.insert(Entry{
		EventType: eventType,
		Level:     string(notify.LevelInfo),
		Timestamp: time.Now(),
		Message:   message,
		Payload:   payload,
	})
}

// Record stores a notifier event. An event already recorded is ignored.
func (l *Ledger) Record(e notify.Event) error {
	entry := Entry{
		EventID:   e.ID,
		EventType: EventType(e.Topic),
		Level:     string(e.Level),
		Timestamp: e.Time,
		Message:   e.Message,
		Payload:   e.Fields,
	}
	if src, ok := e.Fields["source"].(string); ok {
		entry.Source = src
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return l.insert(entry)
}

// Handle is a bus handler recording every event it receives.
func (l *Ledger) Handle(e notify.Event) {
	if err := l.Record(e); err != nil {
		log.Warn().Err(err).Str("topic", string(e.Topic)).Msg("Failed to record event in ledger")
	}
}

func (l *Ledger) insert(entry Entry) error {
	var payloadJSON []byte
	if entry.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err := l.db.Exec(`
		INSERT OR IGNORE INTO event_ledger
			(event_id, event_type, level, timestamp, message, payload, source, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.EventID, string(entry.EventType), entry.Level, entry.Timestamp.UnixMilli(),
		entry.Message, string(payloadJSON), entry.Source, l.sessionID)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, event_id, event_type, level, timestamp, message, payload, source, session_id FROM event_ledger`

// Recent returns the newest entries, newest first.
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	return l.query(selectColumns+` ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
}

// GetByType returns entries filtered by event type, newest first.
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	return l.query(selectColumns+`
		WHERE event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
}

// GetBySession returns entries of one session, newest first.
func (l *Ledger) GetBySession(sessionID string, limit int) ([]*Entry, error) {
	return l.query(selectColumns+`
		WHERE session_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, sessionID, limit)
}

// GetByTimeRange returns entries within a time range, newest first.
func (l *Ledger) GetByTimeRange(start, end time.Time, limit int) ([]*Entry, error) {
	return l.query(selectColumns+`
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, start.UnixMilli(), end.UnixMilli(), limit)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	result, err := l.db.Exec(`DELETE FROM event_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) query(query string, args ...any) ([]*Entry, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var eventID, level, message, payload, source, sessionID sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &eventID, &entry.EventType, &level, &timestamp,
			&message, &payload, &source, &sessionID,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		entry.EventID = eventID.String
		entry.Level = level.String
		entry.Message = message.String
		entry.Source = source.String
		entry.SessionID = sessionID.String

		if payload.Valid && payload.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payload.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
