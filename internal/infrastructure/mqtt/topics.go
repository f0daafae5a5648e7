package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/relaybox/internal/relay"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "relaybox"

// Topics provides builders for relaybox MQTT topics.
//
//	topics := mqtt.Topics{Prefix: "relaybox"}
//	topics.Mailbox(relay.PopulationA, "dev1")
//	// Returns: "relaybox/A/dev1"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Mailbox returns the retained topic holding a device's latest record.
//
// Example: relaybox/B/sensor-7
func (t Topics) Mailbox(p relay.Population, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", t.prefix(), p, topicLevel(deviceID))
}

// SystemStatus returns the topic for the mirror's online/offline status.
//
// Example: relaybox/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// topicLevel makes an arbitrary device id safe as a single topic level.
// Level separators and wildcards are replaced with underscores.
func topicLevel(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
