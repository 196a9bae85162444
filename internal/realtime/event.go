// Package realtime fans mutation events out to websocket sessions. Each
// workspace has its own broadcast domain; an optional redis bridge links
// instances, tagged per process to suppress loopback.
package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Event is the envelope every websocket frame uses, both for broadcasts and
// for command replies.
type Event struct {
	EventType     string     `json:"event_type"`
	WorkspaceID   *uuid.UUID `json:"workspace_id"`
	ChannelID     *uuid.UUID `json:"channel_id"`
	CorrelationID *string    `json:"correlation_id"`
	ServerTS      int64      `json:"server_ts"`
	Payload       any        `json:"payload"`
}

// Broadcast event types.
const (
	EventChannelCreated  = "CHANNEL_CREATED"
	EventChannelDeleted  = "CHANNEL_DELETED"
	EventMessageCreated  = "MESSAGE_CREATED"
	EventMessageUpdated  = "MESSAGE_UPDATED"
	EventMessageDeleted  = "MESSAGE_DELETED"
	EventReactionUpdated = "REACTION_UPDATED"
	EventThreadUpdated   = "THREAD_UPDATED"
)

// NewEvent builds a broadcast envelope stamped with the current server time.
func NewEvent(eventType string, workspaceID uuid.UUID, channelID *uuid.UUID, correlationID *string, payload any) Event {
	return Event{
		EventType:     eventType,
		WorkspaceID:   &workspaceID,
		ChannelID:     channelID,
		CorrelationID: correlationID,
		ServerTS:      time.Now().UnixMilli(),
		Payload:       payload,
	}
}
