package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/config"
	"github.com/dokzlo13/ledlink/internal/eventbus"
	"github.com/dokzlo13/ledlink/internal/ledger"
	"github.com/dokzlo13/ledlink/internal/session"
)

// ErrSessionEnded is the shutdown cause when the session timeline stops on its own.
var ErrSessionEnded = errors.New("session timeline stopped")

// App binds the device session and the services around it to one process lifetime.
type App struct {
	services *Services

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// New builds every service without starting any of them.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{services: services}, nil
}

// Start brings the services up under ctx. A failing service or a session
// timeline that stops while the app is live cancels the app with that cause.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancelCause(ctx)

	if err := a.services.Start(a.ctx, a.fail); err != nil {
		a.cancel(err)
		return err
	}
	go a.watchSession()

	link := a.Session().Link()
	log.Info().
		Str("profile", link.Profile().Name).
		Str("address", link.Address()).
		Msg("ledlink started")
	return nil
}

func (a *App) fail(err error) {
	log.Error().Err(err).Msg("Fatal error, initiating shutdown")
	a.cancel(err)
}

func (a *App) watchSession() {
	select {
	case <-a.Session().Done():
		if a.ctx.Err() == nil {
			a.fail(ErrSessionEnded)
		}
	case <-a.ctx.Done():
	}
}

// Wait blocks until the app is cancelled. It returns the cause of a failure
// and nil for a regular shutdown.
func (a *App) Wait() error {
	if a.ctx == nil {
		return nil
	}
	<-a.ctx.Done()
	if cause := context.Cause(a.ctx); !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// Stop cancels the app and shuts the services down.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")
	if a.cancel != nil {
		a.cancel(nil)
	}
	return a.services.Stop()
}

// Session returns the device session.
func (a *App) Session() *session.Session {
	return a.services.Session.Session
}

// Ledger returns the persisted event history.
func (a *App) Ledger() *ledger.Ledger {
	return a.services.Ledger
}

// Bus returns the event bus every session event is published to.
func (a *App) Bus() *eventbus.Bus {
	return a.services.Bus
}

// SignalContext is cancelled on the first SIGINT or SIGTERM. A second signal
// exits at once, for an effect push or device probe that will not give up.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()

		sig = <-signals
		log.Error().Str("signal", sig.String()).Msg("Second signal, exiting immediately")
		os.Exit(1)
	}()
	return ctx
}
