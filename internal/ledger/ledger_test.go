package ledger

import (
	"testing"
	"time"

	"github.com/dokzlo13/ledlink/internal/db"
	"github.com/dokzlo13/ledlink/internal/notify"
)

func newLedger(t *testing.T, session string) (*Ledger, *db.DB) {
	t.Helper()
	d, err := db.Open(db.MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return New(d.DB, session), d
}

func TestAppendAndQuery(t *testing.T) {
	l, _ := newLedger(t, "s1")

	if err := l.Append(EventSessionStarted, "Session started", map[string]any{"profile": "esp32"}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	e := notify.Warning(notify.TopicLink, "Link lost").With("address", "10.0.0.1")
	e.ID = "evt-1"
	e.Time = time.Now()
	if err := l.Record(e); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	recent, err := l.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(recent))
	}

	links, err := l.GetByType(EventType(notify.TopicLink), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("GetByType() returned %d entries", len(links))
	}
	got := links[0]
	if got.EventID != "evt-1" || got.Level != "warning" || got.Message != "Link lost" {
		t.Errorf("entry = %+v", got)
	}
	if got.Payload["address"] != "10.0.0.1" || got.SessionID != "s1" {
		t.Errorf("payload/session = %v / %q", got.Payload, got.SessionID)
	}
}

func TestRecordIgnoresDuplicates(t *testing.T) {
	l, _ := newLedger(t, "s1")
	e := notify.Info(notify.TopicColor, "Color updated")
	e.ID = "same"

	for i := 0; i < 3; i++ {
		if err := l.Record(e); err != nil {
			t.Fatal(err)
		}
	}
	entries, _ := l.Recent(10)
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1", len(entries))
	}
}

func TestGetBySessionAndTimeRange(t *testing.T) {
	l, d := newLedger(t, "s1")
	other := New(d.DB, "s2")

	_ = l.Append(EventSessionStarted, "one", nil)
	_ = other.Append(EventSessionStarted, "two", nil)

	mine, err := l.GetBySession("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].Message != "one" {
		t.Errorf("GetBySession() = %v", mine)
	}

	now := time.Now()
	inRange, err := l.GetByTimeRange(now.Add(-time.Minute), now.Add(time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(inRange) != 2 {
		t.Errorf("GetByTimeRange() returned %d entries, want 2", len(inRange))
	}
}

func TestDeleteOlderThan(t *testing.T) {
	l, _ := newLedger(t, "s1")

	old := notify.Info(notify.TopicSync, "old")
	old.ID = "old"
	old.Time = time.Now().Add(-48 * time.Hour)
	fresh := notify.Info(notify.TopicSync, "fresh")
	fresh.ID = "fresh"
	fresh.Time = time.Now()
	_ = l.Record(old)
	_ = l.Record(fresh)

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d entries, want 1", deleted)
	}
	left, _ := l.Recent(10)
	if len(left) != 1 || left[0].Message != "fresh" {
		t.Errorf("remaining = %v", left)
	}
}
