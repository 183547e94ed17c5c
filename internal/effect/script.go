package effect

import (
	"context"
	"iter"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/script"
)

// maxScriptErrors stops a script effect after this many consecutive failed frames.
const maxScriptErrors = 5

// Script wraps an effect defined in Lua.
type Script struct {
	def *script.Definition
}

// FromScript wraps a script definition.
func FromScript(def *script.Definition) *Script {
	return &Script{def: def}
}

func (s *Script) Kind() Kind              { return KindScript }
func (s *Script) Name() string            { return s.def.Name }
func (s *Script) Interval() time.Duration { return s.def.Interval }

// Frames calls the script once per frame. Ticks where the script returns nil
// or fails yield an empty frame. The sequence ends after repeated script errors.
func (s *Script) Frames(ctx context.Context, start color.State) iter.Seq[color.Partial] {
	return func(yield func(color.Partial) bool) {
		failures := 0
		for tick := 0; ; tick++ {
			p, _, err := s.def.Frame(ctx, tick, start)
			if err != nil {
				failures++
				log.Warn().Err(err).Str("effect", s.def.Name).Int("tick", tick).Msg("Script frame failed")
				if failures >= maxScriptErrors {
					log.Error().Str("effect", s.def.Name).Msg("Script effect stopped after repeated errors")
					return
				}
				// an empty frame keeps the cadence
				p = color.Partial{}
			} else {
				failures = 0
			}
			if !yield(p) {
				return
			}
		}
	}
}
