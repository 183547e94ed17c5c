// Package device implements the HTTP transport for the LED device API.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/color"
)

// DefaultTimeout bounds every device call.
const DefaultTimeout = 5 * time.Second

var (
	// ErrUnexpectedStatus is returned when the device answers with a non-2xx code.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrNotSupported is returned when the profile lacks the endpoint for a call.
	ErrNotSupported = errors.New("not supported by device profile")
)

// Client talks to one device firmware variant described by a Profile.
// The address is passed per call: the link owns it and may change it.
type Client struct {
	profile    Profile
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a new device client.
func NewClient(profile Profile, timeout time.Duration) *Client {
	return NewClientWithTransport(profile, timeout, nil)
}

// NewClientWithTransport creates a client using a custom round tripper
// (nil means http.DefaultTransport).
func NewClientWithTransport(profile Profile, timeout time.Duration, transport http.RoundTripper) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		profile: profile,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Profile returns the device profile.
func (c *Client) Profile() Profile {
	return c.profile
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// URL builds the request URL for address and path.
func URL(address, path string) string {
	address = strings.TrimSuffix(strings.TrimSpace(address), "/")
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	return address + path
}

func (c *Client) request(ctx context.Context, method, address, path string, body any) (*http.Response, error) {
	if path == "" {
		return nil, ErrNotSupported
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, URL(address, path), reader)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// cancelBody releases the request context once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (c *Client) getJSON(ctx context.Context, address, path string, out any) error {
	resp, err := c.request(ctx, http.MethodGet, address, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, address, path string, body any) error {
	resp, err := c.request(ctx, http.MethodPost, address, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Status fetches the device status (also used as the keep-alive probe).
func (c *Client) Status(ctx context.Context, address string) (*Status, error) {
	var status Status
	if err := c.getJSON(ctx, address, c.profile.Paths.Status, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetColor pushes color and brightness.
func (c *Client) SetColor(ctx context.Context, address string, state color.State) error {
	var body any
	switch c.profile.Encoding {
	case EncodingShort:
		body = shortColorBody{R: state.Red, G: state.Green, B: state.Blue, Brightness: state.Brightness}
	default:
		body = longColorBody{Red: state.Red, Green: state.Green, Blue: state.Blue, Brightness: state.Brightness}
	}

	if err := c.post(ctx, address, c.profile.Paths.Color, body); err != nil {
		return err
	}

	log.Debug().
		Str("address", address).
		Str("color", state.Hex()).
		Int("brightness", state.Brightness).
		Msg("Color pushed")
	return nil
}

// SetPower switches the LED on or off.
func (c *Client) SetPower(ctx context.Context, address string, on bool) error {
	return c.post(ctx, address, c.profile.Paths.Power, powerBody{Power: on})
}

// SetEffect selects a firmware-side effect. A speed <= 0 is omitted.
func (c *Client) SetEffect(ctx context.Context, address, effect string, speed int) error {
	body := effectBody{Effect: effect}
	if speed > 0 {
		body.Speed = &speed
	}
	return c.post(ctx, address, c.profile.Paths.Effect, body)
}

// LEDStatus fetches the LED state snapshot.
func (c *Client) LEDStatus(ctx context.Context, address string) (*LEDStatus, error) {
	var status LEDStatus
	if err := c.getJSON(ctx, address, c.profile.Paths.LEDStatus, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AutoEffect reports whether the firmware's built-in effect cycle is enabled.
func (c *Client) AutoEffect(ctx context.Context, address string) (bool, error) {
	var body autoEffectBody
	if err := c.getJSON(ctx, address, c.profile.Paths.AutoEffect, &body); err != nil {
		return false, err
	}
	return body.Enabled, nil
}

// SetAutoEffect toggles the firmware's built-in effect cycle.
func (c *Client) SetAutoEffect(ctx context.Context, address string, enabled bool) error {
	return c.post(ctx, address, c.profile.Paths.AutoEffect, autoEffectBody{Enabled: enabled})
}

// SetAccessPoint toggles the device hotspot and returns the reported state.
func (c *Client) SetAccessPoint(ctx context.Context, address string, enable bool) (*APStatus, error) {
	resp, err := c.request(ctx, http.MethodPost, address, c.profile.Paths.APMode, apModeBody{Enable: enable})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status APStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if status.Status != "" && status.Status != "success" && status.Status != "ok" {
		return &status, fmt.Errorf("access point change rejected: %s", status.Message)
	}
	return &status, nil
}

// AccessPoint fetches the hotspot state.
func (c *Client) AccessPoint(ctx context.Context, address string) (*APStatus, error) {
	var status APStatus
	if err := c.getJSON(ctx, address, c.profile.Paths.APStatus, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
