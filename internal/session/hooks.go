package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/effect"
	"github.com/dokzlo13/ledlink/internal/link"
	"github.com/dokzlo13/ledlink/internal/notify"
)

// onTransition reports every link status change. It runs on whichever
// goroutine drove the change and never touches timeline state.
func (s *Session) onTransition(t link.Transition) {
	var e notify.Event
	switch t.To {
	case link.StatusConnecting:
		e = notify.Info(notify.TopicLink, "Connecting to "+t.Address)
	case link.StatusConnected:
		e = notify.Success(notify.TopicLink, "Connected to "+t.Address)
	case link.StatusFailed:
		e = notify.Error(notify.TopicLink, "Connection to "+t.Address+" failed", t.Err)
	case link.StatusDisconnected:
		if t.Err != nil && errors.Is(t.Err, link.ErrLinkLost) {
			e = notify.Warning(notify.TopicLink, "Lost connection to "+t.Address).
				With("error", t.Err.Error())
		} else {
			e = notify.Info(notify.TopicLink, "Disconnected from "+t.Address)
		}
	default:
		return
	}
	s.notify(e.With("status", string(t.To)).With("address", t.Address))
}

// ApplyFrame implements effect.Target.
func (s *Session) ApplyFrame(_ context.Context, p color.Partial) color.State {
	s.state = s.state.Set(p)
	return s.state
}

// PushFrame implements effect.Target. Only one frame push is out at a time;
// frames produced meanwhile are dropped.
func (s *Session) PushFrame(ctx context.Context, state color.State) {
	if !s.framePush.TryLock() {
		log.Trace().Msg("Frame push in flight, dropping frame")
		return
	}
	go func() {
		defer s.framePush.Unlock()

		ctx, cancel := context.WithTimeout(ctx, link.ConnectTimeout)
		defer cancel()
		if err := s.link.Push(ctx, state); err != nil {
			log.Debug().Err(err).Msg("Effect frame push failed")
		}
	}()
}

// Idle implements syncloop.Host.
func (s *Session) Idle() bool {
	return !s.engine.Running() && s.edits == 0
}

// Current implements syncloop.Host.
func (s *Session) Current() color.State {
	return s.state
}

// Replace implements syncloop.Host.
func (s *Session) Replace(_ context.Context, state color.State) {
	s.state = state
	s.notify(notify.Info(notify.TopicSync, "Device state synchronized").
		With("state", state).
		With("hex", state.Hex()))
	go s.persist("", &state)
}

func (s *Session) onEffectFinished(session effect.Session) {
	s.activity(notify.LevelWarning, "Effect %s ended after %d frames", session.Name, session.Frame)
	state := s.state
	s.edits++
	go func() {
		ctx := context.Background()
		s.pushLastFrame(ctx, state)
		s.finishEdit(ctx, nil)
		s.persist("", &state)
	}()
}

// pushLastFrame sends the state an effect ended on. Frames may have been
// dropped while a push was out, so the device can lag behind. It waits for
// the frame push in flight so the last frame lands last.
func (s *Session) pushLastFrame(ctx context.Context, state color.State) {
	s.framePush.Lock()
	defer s.framePush.Unlock()

	ctx, cancel := context.WithTimeout(ctx, link.ConnectTimeout)
	defer cancel()
	if err := s.link.Push(ctx, state); err != nil {
		log.Warn().Err(err).Msg("Failed to push last effect frame")
	}
}
