package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/ledlink/internal/config"
	"github.com/dokzlo13/ledlink/internal/ledger"
	"github.com/dokzlo13/ledlink/internal/link"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("device:\n  address: 127.0.0.1:1\n"))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Database.Path = filepath.Join(t.TempDir(), "ledlink.sqlite")
	return cfg
}

func TestAppLifecycle(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := a.Session().Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if snap.Link.Status != link.StatusDisconnected || snap.Link.Address != "127.0.0.1:1" {
		t.Errorf("link = %+v", snap.Link)
	}
	if snap.Profile != "esp32" {
		t.Errorf("Profile = %q", snap.Profile)
	}

	entries, err := a.services.Ledger.GetByType(ledger.EventSessionStarted, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("session_started entries = %d, want 1", len(entries))
	}

	if err := a.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	select {
	case <-a.Session().Done():
	case <-time.After(time.Second):
		t.Fatal("session timeline still running after Stop()")
	}
}

func TestUnknownProfileFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.Profile = "esp8266"

	if _, err := New(cfg); err == nil {
		t.Fatal("New() accepted an unknown profile")
	}
}

func TestMissingScriptFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Effects.Script = filepath.Join(t.TempDir(), "missing.lua")

	if _, err := New(cfg); err == nil {
		t.Fatal("New() accepted a missing effect script")
	}
}

func TestWaitReportsEndedSession(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer a.Stop()

	a.Session().Close(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Wait() }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionEnded) {
			t.Errorf("Wait() = %v, want ErrSessionEnded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after the session ended")
	}
}

func TestWaitAfterStopIsClean(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := a.Wait(); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}
