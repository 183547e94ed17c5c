package link

import (
	"context"
	"errors"
	"testing"

	"github.com/dokzlo13/ledlink/internal/device/devicetest"
)

type staticResolver []string

func (r staticResolver) Resolve(context.Context) ([]string, error) {
	return r, nil
}

func TestDiscoverFirstResponder(t *testing.T) {
	l, network, rec := newTestLink(t, "esp32")
	second := devicetest.New(0, 0, 0, 0)
	network.Attach("192.168.1.100", second)

	address, err := l.Discover(context.Background(), []string{"192.168.4.1", "192.168.1.100"}, 0)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	if address != "192.168.1.100" {
		t.Errorf("Discover() = %q, want 192.168.1.100", address)
	}
	if l.Status() != StatusDisconnected || len(rec.all()) != 0 {
		t.Error("Discover() changed link status")
	}
}

func TestDiscoverStopsAtFirstResponder(t *testing.T) {
	l, network, _ := newTestLink(t, "esp32")
	first := devicetest.New(0, 0, 0, 0)
	later := devicetest.New(0, 0, 0, 0)
	network.Attach("192.168.4.1", first)
	network.Attach("192.168.1.100", later)

	address, err := l.Discover(context.Background(), DefaultCandidates, 0)
	if err != nil {
		t.Fatal(err)
	}
	if address != "192.168.4.1" {
		t.Errorf("Discover() = %q", address)
	}
	if later.Requests("/api/status") != 0 {
		t.Error("Discover() kept probing after a response")
	}
}

func TestDiscoverNoDevice(t *testing.T) {
	l, network, _ := newTestLink(t, "esp32")

	_, err := l.Discover(context.Background(), DefaultCandidates, 0)
	if !errors.Is(err, ErrNoDeviceFound) {
		t.Fatalf("Discover() = %v, want ErrNoDeviceFound", err)
	}
	if network.Calls() != int64(len(DefaultCandidates)) {
		t.Errorf("probed %d addresses, want %d", network.Calls(), len(DefaultCandidates))
	}
}

func TestDiscoverResolverFirst(t *testing.T) {
	l, network, _ := newTestLink(t, "esp32")
	network.Attach("10.0.0.9:8080", devicetest.New(0, 0, 0, 0))
	network.Attach("192.168.4.1", devicetest.New(0, 0, 0, 0))
	l.SetResolver(staticResolver{"10.0.0.9:8080", "192.168.4.1"})

	address, err := l.Discover(context.Background(), []string{"192.168.4.1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if address != "10.0.0.9:8080" {
		t.Errorf("Discover() = %q, want resolver address", address)
	}
}
