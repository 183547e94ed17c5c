package notify

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogEvent writes e to the global zerolog logger.
func LogEvent(e Event) {
	var ev *zerolog.Event
	switch e.Level {
	case LevelError:
		ev = log.Error()
	case LevelWarning:
		ev = log.Warn()
	case LevelSuccess, LevelInfo:
		ev = log.Info()
	default:
		ev = log.Debug()
	}
	if e.Topic == TopicActivity {
		ev = log.Debug()
	}

	ev = ev.Str("topic", string(e.Topic)).Str("event_id", e.ID)
	for k, v := range e.Fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(e.Message)
}

// DefaultHistorySize is the activity log capacity.
const DefaultHistorySize = 100

// History keeps the most recent events in memory, oldest first.
type History struct {
	mu     sync.RWMutex
	size   int
	events []Event
}

// NewHistory creates a history holding at most size events.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size, events: make([]Event, 0, size)}
}

// Add appends e, evicting the oldest event when full.
func (h *History) Add(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == h.size {
		copy(h.events, h.events[1:])
		h.events = h.events[:h.size-1]
	}
	h.events = append(h.events, e)
}

// Events returns a copy of the history.
func (h *History) Events() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Event(nil), h.events...)
}

// Len returns the number of stored events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// Clear empties the history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = h.events[:0]
}

// Recorder is a synchronous Sink that keeps everything it receives.
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	entries []Entry
}

// Notify implements Sink.
func (r *Recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Log implements Sink.
func (r *Recorder) Log(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// Events returns the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Entries returns the recorded log entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns how many events match topic and level. An empty level matches all.
func (r *Recorder) Count(topic Topic, level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Topic == topic && (level == "" || e.Level == level) {
			n++
		}
	}
	return n
}
