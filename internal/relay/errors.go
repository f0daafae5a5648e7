package relay

import (
	"errors"
	"fmt"
	"syscall"
)

// Lifecycle errors for the relay service.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, relay.ErrAlreadyRunning) {
//	    // ignore duplicate start
//	}
var (
	// ErrAlreadyRunning is returned by Start when the service is running.
	ErrAlreadyRunning = errors.New("relay: already running")

	// ErrInvalidPort is returned by Start when the port is outside 1..65535.
	ErrInvalidPort = errors.New("relay: port must be between 1 and 65535")
)

// Failure reasons reported to devices in the response envelope.
const (
	msgMissingFields    = "missing device_id or message"
	msgEndpointNotFound = "endpoint not found"
	msgInternalError    = "internal server error"
	msgStopped          = "relay stopped"
)

// BindReason classifies why the listening socket could not be bound.
type BindReason string

const (
	// BindAddressInUse means another socket already owns the address/port.
	BindAddressInUse BindReason = "address in use"

	// BindAddressNotAvailable means the address is not assigned to any
	// local interface (for example a public IP behind NAT).
	BindAddressNotAvailable BindReason = "address not available"

	// BindOther covers permission errors, unresolvable hosts and the rest.
	BindOther BindReason = "bind failed"
)

// BindError is returned by Start when the listener cannot be bound.
// The relay never retries; callers decide whether to try another address.
type BindError struct {
	Addr   string
	Reason BindReason
	Err    error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("relay: %s on %s: %v", e.Reason, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// newBindError classifies a net.Listen failure.
func newBindError(addr string, err error) *BindError {
	reason := BindOther
	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		reason = BindAddressInUse
	case errors.Is(err, syscall.EADDRNOTAVAIL):
		reason = BindAddressNotAvailable
	}
	return &BindError{Addr: addr, Reason: reason, Err: err}
}
