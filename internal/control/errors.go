package control

import "errors"

// ErrInvalidAddress is returned when the bind address is not a dotted-quad
// IPv4 address without leading zeros.
var ErrInvalidAddress = errors.New("control: invalid IPv4 bind address")
