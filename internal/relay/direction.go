package relay

import "strings"

// Direction tells which way a log line's payload travelled.
type Direction string

const (
	// DirectionInbound is a device writing to the relay.
	DirectionInbound Direction = "inbound"
	// DirectionOutbound is the relay answering a device read.
	DirectionOutbound Direction = "outbound"
	// DirectionSystem covers lifecycle and operator lines.
	DirectionSystem Direction = "system"
)

// ClassifyLine derives the direction of a line produced by the relay or the
// control layer.
func ClassifyLine(line string) Direction {
	switch {
	case strings.HasPrefix(line, serverLabel+"["):
		return DirectionOutbound
	case strings.Contains(line, "] ->"+serverLabel+":"):
		return DirectionInbound
	default:
		return DirectionSystem
	}
}
