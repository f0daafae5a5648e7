package mqtt

import "errors"

var (
	// ErrConnectionFailed wraps broker failures during Connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned while the broker link is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrInvalidTopic and ErrInvalidQoS reject a publish before it is sent.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrPublishFailed wraps oversize payloads, timeouts and broker errors.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrQueueFull is logged when the mirror starts dropping records.
	ErrQueueFull = errors.New("mqtt: mirror queue full")
)
