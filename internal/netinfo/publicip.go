package netinfo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/nerrad567/relaybox/internal/infrastructure/config"
	"github.com/nerrad567/relaybox/internal/infrastructure/logging"
)

// ErrPublicIPUnavailable is returned when no lookup service produced a valid address.
var ErrPublicIPUnavailable = errors.New("netinfo: public ip unavailable")

// userAgent is sent to lookup services; some reject requests without one.
const userAgent = "relaybox/1 (+public-ip-lookup)"

// maxResponseBytes bounds how much of a lookup response is read.
const maxResponseBytes = 4096

// dottedQuad matches four 1-3 digit groups not embedded in a longer number.
var dottedQuad = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)

// Lookup discovers the host's public IPv4 address through plain-text
// "what is my IP" services.
type Lookup struct {
	services   []string
	attempts   int
	retryDelay time.Duration
	client     *http.Client
	logger     *logging.Logger
}

// NewLookup creates a Lookup from configuration. A nil logger discards.
func NewLookup(cfg config.PublicIPConfig, logger *logging.Logger) *Lookup {
	if logger == nil {
		logger = logging.Discard()
	}
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &Lookup{
		services:   cfg.Services,
		attempts:   attempts,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "netinfo"),
	}
}

// PublicIP queries each service in order and returns the first valid
// address. The whole list is retried up to the configured number of
// attempts, pausing between rounds.
func (l *Lookup) PublicIP(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= l.attempts; attempt++ {
		for _, svc := range l.services {
			ip, err := l.query(ctx, svc)
			if err == nil {
				return ip, nil
			}
			if ctx.Err() != nil {
				return "", fmt.Errorf("public ip lookup: %w", ctx.Err())
			}
			l.logger.Debug("public ip service failed", "service", svc, "attempt", attempt, "error", err)
		}

		if attempt < l.attempts {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("public ip lookup: %w", ctx.Err())
			case <-time.After(l.retryDelay):
			}
		}
	}
	return "", ErrPublicIPUnavailable
}

func (l *Lookup) query(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	return extractIPv4(string(body))
}

// extractIPv4 pulls the first dotted quad out of a service response and
// validates it.
func extractIPv4(body string) (string, error) {
	match := dottedQuad.FindString(strings.TrimSpace(body))
	if match == "" {
		return "", errors.New("no address in response")
	}
	if !ValidIPv4(match) {
		return "", fmt.Errorf("invalid address %q", match)
	}
	return match, nil
}
