// Package effect drives client-side visual effects as periodic state pushes.
package effect

import (
	"context"
	"iter"
	"time"

	"github.com/dokzlo13/ledlink/internal/color"
)

// Kind identifies an effect family.
type Kind string

const (
	KindNone    Kind = "none"
	KindRainbow Kind = "rainbow"
	KindBreathe Kind = "breathe"
	KindStrobe  Kind = "strobe"
	KindScript  Kind = "script"
)

func (k Kind) String() string {
	return string(k)
}

// Effect produces an infinite sequence of partial frames at a fixed cadence.
// Frames is called on the timeline each time the effect starts, so every
// start begins a fresh sequence.
type Effect interface {
	Kind() Kind
	Name() string
	Interval() time.Duration
	Frames(ctx context.Context, start color.State) iter.Seq[color.Partial]
}

// Session describes the running effect.
type Session struct {
	Kind      Kind          `json:"kind"`
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	StartedAt time.Time     `json:"started_at"`
	// Frame is the number of frames produced so far.
	Frame int `json:"frame"`
	// Last is the most recent frame.
	Last color.Partial `json:"last"`
	// Dropped counts frames not pushed because of the push limit.
	Dropped int `json:"dropped"`
}

// Active reports whether s describes a running effect.
func (s Session) Active() bool {
	return s.Kind != "" && s.Kind != KindNone
}
