// Package notify defines the one-way event sink the session reports to.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Topic groups notifications by subject.
type Topic string

const (
	TopicLink       Topic = "link"
	TopicDiscovery  Topic = "discovery"
	TopicColor      Topic = "color"
	TopicPower      Topic = "power"
	TopicEffect     Topic = "effect"
	TopicSync       Topic = "sync"
	TopicValidation Topic = "validation"
	// TopicActivity carries Log entries.
	TopicActivity Topic = "activity"
)

// Event is a user-facing notification.
type Event struct {
	ID      string         `json:"id"`
	Time    time.Time      `json:"time"`
	Level   Level          `json:"level"`
	Topic   Topic          `json:"topic"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Entry is an activity log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Sink receives notifications and activity log entries. Implementations must
// not block.
type Sink interface {
	Notify(Event)
	Log(Entry)
}

// Publisher fans events out to subscribers.
type Publisher interface {
	Publish(Event)
}

// Dispatcher stamps events and hands them to a Publisher.
// Log entries are published as TopicActivity events.
type Dispatcher struct {
	pub     Publisher
	source  string
	nowFunc func() time.Time
}

// NewDispatcher creates a sink publishing to pub. source tags every event.
func NewDispatcher(pub Publisher, source string) *Dispatcher {
	return &Dispatcher{pub: pub, source: source, nowFunc: time.Now}
}

// Notify implements Sink.
func (d *Dispatcher) Notify(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = d.nowFunc()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	if d.source != "" {
		if e.Fields == nil {
			e.Fields = make(map[string]any, 1)
		}
		if _, ok := e.Fields["source"]; !ok {
			e.Fields["source"] = d.source
		}
	}
	d.pub.Publish(e)
}

// Log implements Sink.
func (d *Dispatcher) Log(entry Entry) {
	if entry.Time.IsZero() {
		entry.Time = d.nowFunc()
	}
	d.Notify(Event{
		Time:    entry.Time,
		Level:   entry.Level,
		Topic:   TopicActivity,
		Message: entry.Message,
	})
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(Event) {}
func (Nop) Log(Entry) {}

// Info builds an info event.
func Info(topic Topic, message string) Event {
	return Event{Level: LevelInfo, Topic: topic, Message: message}
}

// Success builds a success event.
func Success(topic Topic, message string) Event {
	return Event{Level: LevelSuccess, Topic: topic, Message: message}
}

// Warning builds a warning event.
func Warning(topic Topic, message string) Event {
	return Event{Level: LevelWarning, Topic: topic, Message: message}
}

// Error builds an error event carrying err in its fields.
func Error(topic Topic, message string, err error) Event {
	e := Event{Level: LevelError, Topic: topic, Message: message}
	if err != nil {
		e.Fields = map[string]any{"error": err.Error()}
	}
	return e
}

// With returns a copy of e with key set in its fields.
func (e Event) With(key string, value any) Event {
	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	e.Fields = fields
	return e
}
