package link

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

// DefaultCandidates are the addresses firmwares commonly come up on.
var DefaultCandidates = []string{
	"192.168.4.1",
	"192.168.1.100",
	"192.168.1.101",
	"192.168.0.100",
	"192.168.0.101",
}

// DefaultProbeTimeout bounds each discovery probe.
const DefaultProbeTimeout = 2 * time.Second

// Resolver returns addresses advertised on the local network.
type Resolver interface {
	Resolve(ctx context.Context) ([]string, error)
}

// Discover probes candidates in order and returns the first address that
// answers the status endpoint. Addresses from the resolver, if any, are tried
// first. The link status is never changed.
func (l *Link) Discover(ctx context.Context, candidates []string, probeTimeout time.Duration) (string, error) {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}

	l.mu.Lock()
	resolver := l.resolver
	l.mu.Unlock()

	var ordered []string
	if resolver != nil {
		found, err := resolver.Resolve(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Name service discovery failed")
		}
		ordered = append(ordered, found...)
	}
	ordered = append(ordered, candidates...)

	seen := make(map[string]bool, len(ordered))
	for _, candidate := range ordered {
		address, err := ValidateAddress(candidate)
		if err != nil || seen[address] {
			continue
		}
		seen[address] = true

		if err := ctx.Err(); err != nil {
			return "", err
		}
		if l.probeCandidate(ctx, address, probeTimeout) {
			log.Info().Str("address", address).Msg("Device discovered")
			return address, nil
		}
	}
	return "", fmt.Errorf("%w: tried %d addresses", ErrNoDeviceFound, len(seen))
}

func (l *Link) probeCandidate(ctx context.Context, address string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := l.client.Status(ctx, address); err != nil {
		log.Debug().Err(err).Str("address", address).Msg("Discovery probe failed")
		return false
	}
	return true
}

// MDNSResolver looks up device addresses with multicast DNS.
type MDNSResolver struct {
	Service string
	Domain  string
	Timeout time.Duration
}

// Resolve queries the service and returns IPv4 addresses with their port.
func (r MDNSResolver) Resolve(ctx context.Context) ([]string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	domain := r.Domain
	if domain == "" {
		domain = "local"
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	errCh := make(chan error, 1)

	go func() {
		params := &mdns.QueryParam{
			Service:             r.Service,
			Domain:              domain,
			Timeout:             timeout,
			Entries:             entries,
			DisableIPv6:         true,
			WantUnicastResponse: true,
		}
		errCh <- mdns.Query(params)
		close(entries)
	}()

	var addresses []string
	for entry := range entries {
		if ctx.Err() != nil {
			// keep draining so the query goroutine can finish
			continue
		}
		if address := entryAddress(entry); address != "" {
			log.Debug().Str("name", entry.Name).Str("address", address).Msg("mDNS entry")
			addresses = append(addresses, address)
		}
	}

	if err := <-errCh; err != nil {
		return addresses, fmt.Errorf("mdns query %s: %w", r.Service, err)
	}
	return addresses, ctx.Err()
}

func entryAddress(entry *mdns.ServiceEntry) string {
	if entry == nil || entry.AddrV4 == nil {
		return ""
	}
	host := entry.AddrV4.String()
	if host == "" || strings.Contains(host, "nil") {
		return ""
	}
	if entry.Port != 0 && entry.Port != 80 {
		return fmt.Sprintf("%s:%d", host, entry.Port)
	}
	return host
}
