package notify

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type capture struct {
	mu     sync.Mutex
	events []Event
}

func (c *capture) Publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func TestDispatcherStampsEvents(t *testing.T) {
	pub := &capture{}
	d := NewDispatcher(pub, "daemon")

	d.Notify(Event{Topic: TopicLink, Message: "Connected"})
	d.Log(Entry{Level: LevelWarning, Message: "Push failed"})

	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}

	first := pub.events[0]
	if first.ID == "" || first.Time.IsZero() {
		t.Errorf("event not stamped: %+v", first)
	}
	if first.Level != LevelInfo {
		t.Errorf("Level = %q, want info", first.Level)
	}
	if first.Fields["source"] != "daemon" {
		t.Errorf("source = %v", first.Fields["source"])
	}

	second := pub.events[1]
	if second.Topic != TopicActivity || second.Level != LevelWarning || second.Message != "Push failed" {
		t.Errorf("log entry published as %+v", second)
	}
	if second.ID == first.ID {
		t.Error("events share an ID")
	}
}

func TestEventWithCopiesFields(t *testing.T) {
	base := Error(TopicLink, "Connection failed", errors.New("timeout"))
	derived := base.With("address", "10.0.0.1")

	if _, ok := base.Fields["address"]; ok {
		t.Error("With() mutated the original event")
	}
	if derived.Fields["error"] != "timeout" || derived.Fields["address"] != "10.0.0.1" {
		t.Errorf("Fields = %v", derived.Fields)
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(Event{Message: string(rune('a' + i)), Time: time.Unix(int64(i), 0)})
	}

	got := h.Events()
	if len(got) != 3 {
		t.Fatalf("Len = %d, want 3", len(got))
	}
	for i, want := range []string{"c", "d", "e"} {
		if got[i].Message != want {
			t.Errorf("event %d = %q, want %q", i, got[i].Message, want)
		}
	}

	h.Clear()
	if h.Len() != 0 {
		t.Error("Clear() left events")
	}
}

func TestRecorderCount(t *testing.T) {
	var r Recorder
	r.Notify(Warning(TopicLink, "Link lost"))
	r.Notify(Success(TopicLink, "Connected"))
	r.Notify(Info(TopicColor, "Color updated"))

	if got := r.Count(TopicLink, ""); got != 2 {
		t.Errorf("Count(link) = %d, want 2", got)
	}
	if got := r.Count(TopicLink, LevelWarning); got != 1 {
		t.Errorf("Count(link, warning) = %d, want 1", got)
	}
}
