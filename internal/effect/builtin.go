package effect

import (
	"context"
	"iter"
	"time"

	"github.com/dokzlo13/ledlink/internal/color"
)

const (
	RainbowInterval = 100 * time.Millisecond
	RainbowStep     = 5

	BreatheInterval = 50 * time.Millisecond
	BreatheStep     = 2
	BreatheMin      = 5
	BreatheMax      = color.MaxBrightness

	StrobeInterval = 200 * time.Millisecond
)

// Builtins returns the effects every engine starts with.
func Builtins() []Effect {
	return []Effect{Rainbow(), Breathe(), Strobe()}
}

type builtin struct {
	kind     Kind
	interval time.Duration
	frames   func(start color.State) iter.Seq[color.Partial]
}

func (b builtin) Kind() Kind              { return b.kind }
func (b builtin) Name() string            { return string(b.kind) }
func (b builtin) Interval() time.Duration { return b.interval }

func (b builtin) Frames(_ context.Context, start color.State) iter.Seq[color.Partial] {
	return b.frames(start)
}

// Rainbow cycles the hue by RainbowStep degrees per frame, starting at red.
// Brightness is left alone.
func Rainbow() Effect {
	return builtin{kind: KindRainbow, interval: RainbowInterval, frames: rainbowFrames}
}

func rainbowFrames(color.State) iter.Seq[color.Partial] {
	return func(yield func(color.Partial) bool) {
		for hue := 0; ; hue = (hue + RainbowStep) % 360 {
			if !yield(color.RGB(color.FromHSL(float64(hue), 1, 0.5))) {
				return
			}
		}
	}
}

// Breathe moves brightness by BreatheStep per frame between BreatheMin and
// BreatheMax, reversing at each bound. It starts upward from the current brightness.
func Breathe() Effect {
	return builtin{kind: KindBreathe, interval: BreatheInterval, frames: breatheFrames}
}

func breatheFrames(start color.State) iter.Seq[color.Partial] {
	return func(yield func(color.Partial) bool) {
		level, direction := start.Brightness, 1
		for {
			level += direction * BreatheStep
			switch {
			case level <= BreatheMin:
				level, direction = BreatheMin, 1
			case level >= BreatheMax:
				level, direction = BreatheMax, -1
			}
			if !yield(color.Brightness(level)) {
				return
			}
		}
	}
}

// Strobe alternates brightness between full and zero, starting at full.
func Strobe() Effect {
	return builtin{kind: KindStrobe, interval: StrobeInterval, frames: strobeFrames}
}

func strobeFrames(color.State) iter.Seq[color.Partial] {
	return func(yield func(color.Partial) bool) {
		for on := true; ; on = !on {
			level := 0
			if on {
				level = color.MaxBrightness
			}
			if !yield(color.Brightness(level)) {
				return
			}
		}
	}
}
