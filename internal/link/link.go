// Package link owns the device address and connectivity status.
package link

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/device"
)

// ConnectTimeout bounds the Connecting state.
const ConnectTimeout = 5 * time.Second

// Client is the device transport used by a link.
type Client interface {
	Profile() device.Profile
	Status(ctx context.Context, address string) (*device.Status, error)
	SetColor(ctx context.Context, address string, state color.State) error
	SetPower(ctx context.Context, address string, on bool) error
	SetEffect(ctx context.Context, address, effect string, speed int) error
	LEDStatus(ctx context.Context, address string) (*device.LEDStatus, error)
	AutoEffect(ctx context.Context, address string) (bool, error)
	SetAutoEffect(ctx context.Context, address string, enabled bool) error
	AccessPoint(ctx context.Context, address string) (*device.APStatus, error)
	SetAccessPoint(ctx context.Context, address string, enable bool) (*device.APStatus, error)
}

// Info is a point-in-time view of the link.
type Info struct {
	Address   string `json:"address"`
	Status    Status `json:"status"`
	LastError string `json:"last_error,omitempty"`
}

// Link manages the connection to a single device.
type Link struct {
	client   Client
	listener Listener
	resolver Resolver

	mu        sync.Mutex
	address   string
	status    Status
	lastError error
	// conn counts connections; it changes every time the link becomes Connected
	conn uint64

	// notifyMu is taken before mu is released so listeners see transitions in order
	notifyMu sync.Mutex

	connects singleflight.Group
}

// New creates a disconnected link. listener may be nil.
func New(client Client, listener Listener) *Link {
	return &Link{
		client:   client,
		listener: listener,
		status:   StatusDisconnected,
	}
}

// SetResolver enables name-service discovery ahead of the candidate list.
func (l *Link) SetResolver(r Resolver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolver = r
}

// Profile returns the device profile.
func (l *Link) Profile() device.Profile {
	return l.client.Profile()
}

// Status returns the current status.
func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Connected reports whether the link is connected.
func (l *Link) Connected() bool {
	return l.Status() == StatusConnected
}

// Address returns the current device address.
func (l *Link) Address() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.address
}

// SetAddress sets the address used by Retry without connecting.
func (l *Link) SetAddress(address string) error {
	address, err := ValidateAddress(address)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.address = address
	return nil
}

// LastError returns the most recent operation error, nil after a success.
func (l *Link) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastError
}

// Info returns a snapshot of the link.
func (l *Link) Info() Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	info := Info{Address: l.address, Status: l.status}
	if l.lastError != nil {
		info.LastError = l.lastError.Error()
	}
	return info
}

// ValidateAddress trims address and rejects empty or malformed values.
func ValidateAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if strings.ContainsAny(address, " \t\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return address, nil
}

// Connect probes address and moves the link to Connected on success.
// Concurrent callers share the attempt already in progress.
func (l *Link) Connect(ctx context.Context, address string) (*device.Status, error) {
	address, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}

	v, err, shared := l.connects.Do("connect", func() (any, error) {
		return l.connect(ctx, address)
	})
	if shared {
		log.Debug().Str("address", address).Msg("Joined connect in progress")
	}
	if err != nil {
		return nil, err
	}
	return v.(*device.Status), nil
}

func (l *Link) connect(ctx context.Context, address string) (*device.Status, error) {
	l.mu.Lock()
	l.address = address
	l.mu.Unlock()

	if !l.transition(nil, StatusConnecting, nil) {
		return nil, fmt.Errorf("%w: cannot connect while %s", ErrConnection, l.Status())
	}

	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	status, err := l.client.Status(ctx, address)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrConnection, address, err)
		l.setError(err)
		l.transition([]Status{StatusConnecting}, StatusFailed, err)
		return nil, err
	}

	l.setError(nil)
	if !l.transition([]Status{StatusConnecting}, StatusConnected, nil) {
		// disconnected while the probe was in flight
		return nil, fmt.Errorf("%w: %s: cancelled", ErrConnection, address)
	}

	log.Info().
		Str("address", address).
		Str("version", status.Version).
		Msg("Device connected")
	return status, nil
}

// Retry reconnects to the last known address.
func (l *Link) Retry(ctx context.Context) (*device.Status, error) {
	return l.Connect(ctx, l.Address())
}

// Disconnect moves the link to Disconnected from any state.
func (l *Link) Disconnect() {
	l.transition(nil, StatusDisconnected, nil)
}

// Probe checks the device is still reachable. A failure on a connected link
// moves it to Disconnected with ErrLinkLost. A probe that outlives its
// connection changes nothing and reports ErrNotConnected.
func (l *Link) Probe(ctx context.Context) (*device.Status, error) {
	address, conn, err := l.connection()
	if err != nil {
		return nil, err
	}

	status, err := l.client.Status(ctx, address)
	if err != nil {
		lost := fmt.Errorf("%w: %s: %w", ErrLinkLost, address, err)
		if !l.transitionFor(conn, []Status{StatusConnected}, StatusDisconnected, lost) && l.replaced(conn) {
			return nil, l.staleProbe(address)
		}
		return nil, lost
	}

	l.mu.Lock()
	stale := l.conn != conn || l.status != StatusConnected
	if !stale {
		l.lastError = nil
	}
	l.mu.Unlock()
	if stale {
		return nil, l.staleProbe(address)
	}
	return status, nil
}

func (l *Link) staleProbe(address string) error {
	log.Debug().Str("address", address).Msg("Discarding probe of a previous connection")
	return fmt.Errorf("%w: %s: connection replaced", ErrNotConnected, address)
}

// replaced reports whether conn is no longer the live connection.
func (l *Link) replaced(conn uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != conn || l.status != StatusConnected
}

// Push sends state to the device. It is a silent no-op unless connected.
// A failure leaves the status unchanged.
func (l *Link) Push(ctx context.Context, state color.State) error {
	address, err := l.connectedAddress()
	if err != nil {
		return nil
	}

	if err := l.client.SetColor(ctx, address, state); err != nil {
		err = fmt.Errorf("%w: %w", ErrPushFailed, err)
		l.setError(err)
		return err
	}
	l.setError(nil)
	return nil
}

// SetPower switches the device LED on or off.
func (l *Link) SetPower(ctx context.Context, on bool) error {
	return l.command(ctx, device.FeaturePower, func(ctx context.Context, address string) error {
		return l.client.SetPower(ctx, address, on)
	})
}

// SetDeviceEffect selects a firmware-side effect.
func (l *Link) SetDeviceEffect(ctx context.Context, name string, speed int) error {
	return l.command(ctx, device.FeatureDeviceEffects, func(ctx context.Context, address string) error {
		return l.client.SetEffect(ctx, address, name, speed)
	})
}

// SetAutoEffect toggles the firmware's built-in effect cycle.
func (l *Link) SetAutoEffect(ctx context.Context, enabled bool) error {
	return l.command(ctx, device.FeatureAutoEffect, func(ctx context.Context, address string) error {
		return l.client.SetAutoEffect(ctx, address, enabled)
	})
}

// SetAccessPoint toggles the device hotspot.
func (l *Link) SetAccessPoint(ctx context.Context, enable bool) (*device.APStatus, error) {
	var status *device.APStatus
	err := l.command(ctx, device.FeatureAccessPoint, func(ctx context.Context, address string) error {
		var err error
		status, err = l.client.SetAccessPoint(ctx, address, enable)
		return err
	})
	return status, err
}

// LEDStatus reads the LED snapshot from the device.
func (l *Link) LEDStatus(ctx context.Context) (*device.LEDStatus, error) {
	address, err := l.queryAddress(device.FeatureLEDStatus)
	if err != nil {
		return nil, err
	}
	return l.client.LEDStatus(ctx, address)
}

// AutoEffect reads whether the firmware's effect cycle is enabled.
func (l *Link) AutoEffect(ctx context.Context) (bool, error) {
	address, err := l.queryAddress(device.FeatureAutoEffect)
	if err != nil {
		return false, err
	}
	return l.client.AutoEffect(ctx, address)
}

// AccessPoint reads the hotspot state.
func (l *Link) AccessPoint(ctx context.Context) (*device.APStatus, error) {
	address, err := l.queryAddress(device.FeatureAccessPoint)
	if err != nil {
		return nil, err
	}
	return l.client.AccessPoint(ctx, address)
}

// queryAddress returns the address to read feature from. Reads leave the
// last error alone.
func (l *Link) queryAddress(feature device.Feature) (string, error) {
	if !l.Profile().Supports(feature) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, feature)
	}
	return l.connectedAddress()
}

func (l *Link) command(ctx context.Context, feature device.Feature, fn func(context.Context, string) error) error {
	if !l.Profile().Supports(feature) {
		return fmt.Errorf("%w: %s", ErrUnsupported, feature)
	}
	address, err := l.connectedAddress()
	if err != nil {
		return err
	}
	if err := fn(ctx, address); err != nil {
		err = fmt.Errorf("%w: %w", ErrPushFailed, err)
		l.setError(err)
		return err
	}
	l.setError(nil)
	return nil
}

func (l *Link) connectedAddress() (string, error) {
	address, _, err := l.connection()
	return address, err
}

// connection returns the address and id of the live connection.
func (l *Link) connection() (string, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != StatusConnected {
		return "", 0, ErrNotConnected
	}
	return l.address, l.conn, nil
}

func (l *Link) setError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastError = err
}

// transition moves to `to` if the current status is in from (any status when
// from is nil) and the move is legal. It returns false when nothing changed.
func (l *Link) transition(from []Status, to Status, cause error) bool {
	return l.transitionFor(0, from, to, cause)
}

// transitionFor is transition restricted to connection conn; 0 matches any.
// A non-nil cause becomes the last error.
func (l *Link) transitionFor(conn uint64, from []Status, to Status, cause error) bool {
	l.mu.Lock()
	current := l.status
	if conn != 0 && conn != l.conn {
		l.mu.Unlock()
		return false
	}
	if current == to || !CanTransition(current, to) || (from != nil && !contains(from, current)) {
		l.mu.Unlock()
		return current == to && from == nil
	}
	l.status = to
	if to == StatusConnected {
		l.conn++
	}
	if cause != nil {
		l.lastError = cause
	}
	t := Transition{From: current, To: to, Address: l.address, Err: cause}

	l.notifyMu.Lock()
	l.mu.Unlock()
	defer l.notifyMu.Unlock()

	event := log.Info()
	if cause != nil {
		event = log.Warn().Err(cause)
	}
	event.
		Str("address", t.Address).
		Str("from", t.From.String()).
		Str("to", t.To.String()).
		Msg("Link status changed")

	if l.listener != nil {
		l.listener(t)
	}
	return true
}

func contains(statuses []Status, s Status) bool {
	for _, have := range statuses {
		if have == s {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is a user input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAddress) || errors.Is(err, color.ErrInvalidHex)
}
