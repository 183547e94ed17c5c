package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/db"
	"github.com/dokzlo13/ledlink/internal/device"
	"github.com/dokzlo13/ledlink/internal/device/devicetest"
	"github.com/dokzlo13/ledlink/internal/effect"
	"github.com/dokzlo13/ledlink/internal/ledger"
	"github.com/dokzlo13/ledlink/internal/link"
	"github.com/dokzlo13/ledlink/internal/notify"
	"github.com/dokzlo13/ledlink/internal/session"
)

const deviceAddress = "10.30.6.226"

// fanout publishes to the history, the ledger and the stream hub synchronously.
type fanout struct {
	history *notify.History
	ledger  *ledger.Ledger
	hub     *Hub
}

func (f *fanout) Publish(e notify.Event) {
	f.history.Add(e)
	f.ledger.Handle(e)
	f.hub.Broadcast(e)
}

type testEnv struct {
	srv     *Server
	http    *httptest.Server
	device  *devicetest.Device
	history *notify.History
}

func newTestEnv(t *testing.T, profile string) *testEnv {
	t.Helper()

	p, err := device.LookupProfile(profile)
	if err != nil {
		t.Fatal(err)
	}
	network := devicetest.NewNetwork()
	dev := devicetest.New(10, 20, 30, 40)
	network.Attach(deviceAddress, dev)

	database, err := db.Open(db.MemoryPath)
	if err != nil {
		t.Fatalf("db.Open() error: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	led := ledger.New(database.DB, "test-session")

	history := notify.NewHistory(0)
	out := &fanout{history: history, ledger: led}

	sess, err := session.New(session.Options{
		Client:       device.NewClientWithTransport(p, time.Second, network),
		Sink:         notify.NewDispatcher(out, "api-test"),
		ProbeTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("session.New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go sess.Run(ctx)

	srv := NewServer(sess, Options{History: history, Ledger: led})
	out.hub = srv.Hub()
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
		sess.Close(context.Background())
		cancel()
		<-sess.Done()
	})
	return &testEnv{srv: srv, http: ts, device: dev, history: history}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := e.http.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func (e *testEnv) connect(t *testing.T) {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/connect", fmt.Sprintf(`{"address":%q}`, deviceAddress))
	if status != http.StatusOK {
		t.Fatalf("connect status = %d, body = %v", status, body)
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, "esp32")

	for _, path := range []string{"/health", "/ready"} {
		status, _ := env.do(t, http.MethodGet, path, "")
		if status != http.StatusOK {
			t.Errorf("GET %s = %d", path, status)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, "esp32")

	status, _ := env.do(t, http.MethodOptions, "/api/color", "")
	if status != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", status)
	}
}

func TestConnectAndSession(t *testing.T) {
	env := newTestEnv(t, "esp32")
	env.connect(t)

	status, body := env.do(t, http.MethodGet, "/api/session", "")
	if status != http.StatusOK {
		t.Fatalf("session status = %d", status)
	}
	linkInfo, _ := body["link"].(map[string]any)
	if linkInfo["status"] != string(link.StatusConnected) {
		t.Errorf("link = %v", linkInfo)
	}
	state, _ := body["state"].(map[string]any)
	if state["red"] != float64(10) || state["brightness"] != float64(40) {
		t.Errorf("state = %v, want the device color", state)
	}
}

func TestColorEndpoint(t *testing.T) {
	env := newTestEnv(t, "esp32")
	env.connect(t)

	tests := []struct {
		name   string
		body   string
		status int
		want   color.State
	}{
		{"channels", `{"red":300,"green":0,"blue":5}`, http.StatusOK, color.New(255, 0, 5, 40, true)},
		{"hex with brightness", `{"hex":"#00ff00","brightness":70}`, http.StatusOK, color.New(0, 255, 0, 70, true)},
		{"invalid hex", `{"hex":"#zzzzzz"}`, http.StatusBadRequest, color.State{}},
		{"bad json", `{"red":`, http.StatusBadRequest, color.State{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/api/color", tt.body)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (body %v)", status, tt.status, body)
			}
			if tt.status != http.StatusOK {
				return
			}
			r, g, b, br := env.device.Color()
			got := color.New(r, g, b, br, true)
			if !got.Equal(tt.want) {
				t.Errorf("device color = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPowerToggle(t *testing.T) {
	env := newTestEnv(t, "esp32")
	env.connect(t)

	status, body := env.do(t, http.MethodPost, "/api/power", "")
	if status != http.StatusOK || body["power"] != false {
		t.Fatalf("toggle = %d %v", status, body)
	}
	if env.device.Power() {
		t.Error("device still powered after toggle")
	}

	status, body = env.do(t, http.MethodPost, "/api/power", `{"power":true}`)
	if status != http.StatusOK || body["power"] != true {
		t.Fatalf("power on = %d %v", status, body)
	}
}

func TestEffectEndpoints(t *testing.T) {
	env := newTestEnv(t, "esp32")
	env.connect(t)

	status, body := env.do(t, http.MethodGet, "/api/effects", "")
	if status != http.StatusOK {
		t.Fatalf("effects status = %d", status)
	}
	if names, _ := body["effects"].([]any); len(names) != 3 {
		t.Errorf("effects = %v", body["effects"])
	}

	status, body = env.do(t, http.MethodPost, "/api/effect", `{"effect":"rainbow"}`)
	if status != http.StatusOK || body["name"] != "rainbow" {
		t.Errorf("start rainbow = %d %v", status, body)
	}

	status, _ = env.do(t, http.MethodPost, "/api/effect", `{"effect":"disco"}`)
	if status != http.StatusBadRequest {
		t.Errorf("unknown effect status = %d, want 400", status)
	}

	status, body = env.do(t, http.MethodPost, "/api/effect", `{"effect":"none"}`)
	if status != http.StatusOK || body["name"] != "" {
		t.Errorf("stop effect = %d %v", status, body)
	}

	status, _ = env.do(t, http.MethodPost, "/api/device-effect", `{"effect":"fade","speed":3}`)
	if status != http.StatusOK {
		t.Fatalf("device effect status = %d", status)
	}
	if name, speed := env.device.Effect(); name != "fade" || speed != 3 {
		t.Errorf("device effect = %s/%d", name, speed)
	}
}

func TestErrorStatuses(t *testing.T) {
	env := newTestEnv(t, "esp32")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"invalid address", http.MethodPost, "/api/connect", `{"address":"not a host!"}`, http.StatusBadRequest},
		{"unreachable", http.MethodPost, "/api/connect", `{"address":"10.9.9.9"}`, http.StatusBadGateway},
		{"unknown preset", http.MethodPost, "/api/preset/party", "", http.StatusBadRequest},
		{"unsupported feature", http.MethodPost, "/api/ap-mode", `{"enabled":true}`, http.StatusNotImplemented},
		{"not connected", http.MethodGet, "/api/led-status", "", http.StatusConflict},
		{"auto effect unsupported", http.MethodGet, "/api/auto-effect", "", http.StatusNotImplemented},
		{"ap status unsupported", http.MethodGet, "/api/ap-status", "", http.StatusNotImplemented},
		{"bad ledger limit", http.MethodGet, "/api/ledger?limit=x", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, tt.body)
			if status != tt.status {
				t.Errorf("status = %d, want %d (body %v)", status, tt.status, body)
			}
		})
	}
}

func TestDeviceReadbacks(t *testing.T) {
	t.Run("auto effect", func(t *testing.T) {
		env := newTestEnv(t, "esp32s3")
		env.connect(t)

		if status, body := env.do(t, http.MethodPost, "/api/auto-effect", `{"enabled":true}`); status != http.StatusOK {
			t.Fatalf("POST status = %d, body = %v", status, body)
		}
		status, body := env.do(t, http.MethodGet, "/api/auto-effect", "")
		if status != http.StatusOK || body["enabled"] != true {
			t.Errorf("GET = %d %v, want enabled", status, body)
		}
	})

	t.Run("access point", func(t *testing.T) {
		env := newTestEnv(t, "esp32c3")
		env.connect(t)

		status, body := env.do(t, http.MethodGet, "/api/ap-status", "")
		if status != http.StatusOK || body["ap_enabled"] != false {
			t.Fatalf("GET = %d %v, want ap disabled", status, body)
		}
		if status, body := env.do(t, http.MethodPost, "/api/ap-mode", `{"enabled":true}`); status != http.StatusOK {
			t.Fatalf("POST status = %d, body = %v", status, body)
		}
		status, body = env.do(t, http.MethodGet, "/api/ap-status", "")
		if status != http.StatusOK || body["ap_enabled"] != true {
			t.Errorf("GET = %d %v, want ap enabled", status, body)
		}
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", link.ErrInvalidAddress), http.StatusBadRequest},
		{color.ErrInvalidHex, http.StatusBadRequest},
		{effect.ErrUnknownEffect, http.StatusBadRequest},
		{link.ErrNoDeviceFound, http.StatusNotFound},
		{link.ErrNotConnected, http.StatusConflict},
		{link.ErrUnsupported, http.StatusNotImplemented},
		{link.ErrPushFailed, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHistoryAndLedger(t *testing.T) {
	env := newTestEnv(t, "esp32")
	env.connect(t)

	resp, err := env.http.Client().Get(env.http.URL + "/api/history")
	if err != nil {
		t.Fatal(err)
	}
	var events []notify.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(events) == 0 {
		t.Fatal("history is empty after connect")
	}

	resp, err = env.http.Client().Get(env.http.URL + "/api/ledger?limit=100")
	if err != nil {
		t.Fatal(err)
	}
	var entries []ledger.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(entries) < len(events) {
		t.Errorf("ledger has %d entries, history %d", len(entries), len(events))
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, "esp32")

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.Hub().Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("stream client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := conn.WriteJSON(map[string]string{"action": "ping"}); err != nil {
		t.Fatal(err)
	}
	env.connect(t)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var sawPong, sawConnected bool
	for !sawPong || !sawConnected {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error: %v (pong=%v connected=%v)", err, sawPong, sawConnected)
		}
		if msg["type"] == "pong" {
			sawPong = true
		}
		if msg["topic"] == string(notify.TopicLink) && msg["level"] == string(notify.LevelSuccess) {
			sawConnected = true
		}
	}
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub("http://panel.local")
	ts := httptest.NewServer(hub)
	defer ts.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	header := http.Header{"Origin": []string{"http://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("Dial() accepted a foreign origin")
	}

	header.Set("Origin", "http://panel.local")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial() with allowed origin: %v", err)
	}
	conn.Close()
}
