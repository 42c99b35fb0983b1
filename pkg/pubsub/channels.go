package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming: messenger:user:{userID}:{stream}.
const channelFormat = "messenger:user:%s:%s"

// Streams.
const (
	StreamMessages = "messages"
	StreamPresence = "presence"
)

// Event types.
const (
	EventMessageDelivered = "message.delivered"
	EventMessageScheduled = "message.scheduled"
	EventStatusChanged    = "status.changed"
)

// Topics a Kafka-backed bus needs.
var Topics = []string{
	"messenger-" + StreamMessages,
	"messenger-" + StreamPresence,
}

// UserChannel returns the channel carrying stream events for userID.
func UserChannel(userID, stream string) string {
	return fmt.Sprintf(channelFormat, userID, stream)
}

// channelToTopicAndKey converts a channel to a Kafka topic and message key.
//
//	"messenger:user:U1:messages" -> topic "messenger-messages", key "U1"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "user" || parts[2] == "" {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return parts[0] + "-" + parts[3], parts[2], nil
}
