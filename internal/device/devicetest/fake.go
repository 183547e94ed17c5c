// Package devicetest provides an in-memory LED device for tests.
package devicetest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrUnreachable is returned by Network for hosts without a device.
var ErrUnreachable = errors.New("host unreachable")

// Device emulates the firmware HTTP API.
type Device struct {
	mu         sync.Mutex
	red        int
	green      int
	blue       int
	brightness int
	power      bool
	effect     string
	speed      int
	autoEffect bool
	apEnabled  bool

	// fail makes every request answer 500 while set
	fail atomic.Bool

	requests sync.Map // path -> *atomic.Int64
	bodies   chan map[string]any
}

// New creates a device reporting the given color.
func New(r, g, b, brightness int) *Device {
	return &Device{
		red:        r,
		green:      g,
		blue:       b,
		brightness: brightness,
		power:      true,
		effect:     "static",
		bodies:     make(chan map[string]any, 1024),
	}
}

// SetColor changes the color as if another client had done it.
func (d *Device) SetColor(r, g, b, brightness int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.red, d.green, d.blue, d.brightness = r, g, b, brightness
}

// Color returns the current color.
func (d *Device) Color() (r, g, b, brightness int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.red, d.green, d.blue, d.brightness
}

// Power returns the current power state.
func (d *Device) Power() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.power
}

// Effect returns the firmware effect and speed.
func (d *Device) Effect() (string, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.effect, d.speed
}

// SetFailing makes the device answer every request with 500.
func (d *Device) SetFailing(fail bool) {
	d.fail.Store(fail)
}

// Requests returns how many requests hit path.
func (d *Device) Requests(path string) int64 {
	v, ok := d.requests.Load(path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Bodies yields decoded POST bodies in arrival order.
func (d *Device) Bodies() <-chan map[string]any {
	return d.bodies
}

func (d *Device) count(path string) {
	v, _ := d.requests.LoadOrStore(path, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

// ServeHTTP implements the device API.
func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.count(r.URL.Path)

	if d.fail.Load() {
		http.Error(w, "device failure", http.StatusInternalServerError)
		return
	}

	var body map[string]any
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		select {
		case d.bodies <- body:
		default:
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case r.URL.Path == "/api/status":
		writeJSON(w, map[string]any{
			"color": map[string]any{
				"red": d.red, "green": d.green, "blue": d.blue, "brightness": d.brightness,
			},
			"power":   d.power,
			"version": "v2.0.0",
			"uptime":  3725,
		})
	case r.URL.Path == "/api/led/status":
		writeJSON(w, map[string]any{
			"power": d.power, "red": d.red, "green": d.green, "blue": d.blue,
			"brightness": d.brightness, "effect": d.effect,
		})
	case (r.URL.Path == "/api/color" || r.URL.Path == "/api/led/color") && r.Method == http.MethodPost:
		d.red = intField(body, "red", "r", d.red)
		d.green = intField(body, "green", "g", d.green)
		d.blue = intField(body, "blue", "b", d.blue)
		d.brightness = intField(body, "brightness", "", d.brightness)
		writeJSON(w, map[string]any{"status": "ok"})
	case r.URL.Path == "/api/led/power" && r.Method == http.MethodPost:
		d.power, _ = body["power"].(bool)
		writeJSON(w, map[string]any{"status": "ok"})
	case r.URL.Path == "/api/led/effect" && r.Method == http.MethodPost:
		d.effect, _ = body["effect"].(string)
		d.speed = intField(body, "speed", "", 0)
		writeJSON(w, map[string]any{"status": "ok"})
	case r.URL.Path == "/api/effect":
		if r.Method == http.MethodPost {
			d.autoEffect, _ = body["enabled"].(bool)
		}
		writeJSON(w, map[string]any{"enabled": d.autoEffect})
	case r.URL.Path == "/api/ap-mode" && r.Method == http.MethodPost:
		d.apEnabled, _ = body["enable"].(bool)
		writeJSON(w, map[string]any{"status": "success", "ap_enabled": d.apEnabled})
	case r.URL.Path == "/api/ap-status":
		writeJSON(w, map[string]any{"status": "ok", "ap_enabled": d.apEnabled})
	default:
		http.NotFound(w, r)
	}
}

func intField(body map[string]any, key, alt string, fallback int) int {
	if v, ok := body[key].(float64); ok {
		return int(v)
	}
	if alt != "" {
		if v, ok := body[alt].(float64); ok {
			return int(v)
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Network routes requests by host to registered handlers, so tests can use
// addresses like "192.168.4.1" without real sockets.
type Network struct {
	mu    sync.RWMutex
	hosts map[string]http.Handler
	calls atomic.Int64
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{hosts: make(map[string]http.Handler)}
}

// Attach serves handler at host (with or without port).
func (n *Network) Attach(host string, handler http.Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hosts[host] = handler
}

// Detach removes the handler at host.
func (n *Network) Detach(host string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.hosts, host)
}

// Calls returns the number of round trips attempted, reachable or not.
func (n *Network) Calls() int64 {
	return n.calls.Load()
}

// RoundTrip implements http.RoundTripper.
func (n *Network) RoundTrip(req *http.Request) (*http.Response, error) {
	n.calls.Add(1)

	n.mu.RLock()
	handler, ok := n.hosts[req.URL.Host]
	if !ok {
		handler, ok = n.hosts[strings.Split(req.URL.Host, ":")[0]]
	}
	n.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("dial %s: %w", req.URL.Host, ErrUnreachable)
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}
