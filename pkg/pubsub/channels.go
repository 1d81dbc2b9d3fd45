package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming for project room fan-out between realtime nodes.
const (
	ChannelProject        = "board:project:%s"
	ChannelProjectPattern = "board:project:*"

	// KafkaProjectTopic carries every project channel; the project id is the key.
	KafkaProjectTopic = "board-project-events"
)

// EventRoomFrame is the event type for a serialized frame addressed to a room.
const EventRoomFrame = "room_frame"

// ProjectChannel returns the channel name for a project room.
func ProjectChannel(projectID string) string {
	return fmt.Sprintf(ChannelProject, projectID)
}

// ProjectFromChannel extracts the project id from a project channel name.
func ProjectFromChannel(channel string) (string, bool) {
	const prefix = "board:project:"
	if !strings.HasPrefix(channel, prefix) || len(channel) == len(prefix) {
		return "", false
	}
	return strings.TrimPrefix(channel, prefix), true
}
