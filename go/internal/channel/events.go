package channel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates every inbound server event the client understands.
// The set is closed: consumers dispatch with an exhaustive switch, so a new
// server event is a compile-time-checked addition rather than a stringly
// registered handler.
type EventType string

const (
	EventGameUpdate           EventType = "game_update"
	EventMatchingStatus       EventType = "matching_status"
	EventMatchFound           EventType = "match_found"
	EventMatchingError        EventType = "matching_error"
	EventMatchingCancelled    EventType = "matching_cancelled"
	EventCountdownUpdate      EventType = "countdown_update"
	EventForfeitGame          EventType = "forfeit_game"
	EventRematchRequested     EventType = "rematch_requested"
	EventRematchStarted       EventType = "rematch_started"
	EventRematchDeclined      EventType = "rematch_declined"
	EventRematchError         EventType = "rematch_error"
	EventRematchCancelled     EventType = "rematch_cancelled"
	EventOpponentDisconnected EventType = "opponent_disconnected"
)

// Known reports whether t is part of the enumerated inbound set.
func (t EventType) Known() bool {
	switch t {
	case EventGameUpdate, EventMatchingStatus, EventMatchFound,
		EventMatchingError, EventMatchingCancelled,
		EventCountdownUpdate, EventForfeitGame,
		EventRematchRequested, EventRematchStarted, EventRematchDeclined,
		EventRematchError, EventRematchCancelled, EventOpponentDisconnected:
		return true
	}
	return false
}

// Event is the inbound wire envelope. Data is left raw; state-carrying
// payloads are decoded (twice, where the contract says so) by the single
// component that owns them.
type Event struct {
	ID        string          `json:"id,omitempty"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DecodeEvent parses a raw frame into an Event, rejecting unknown kinds.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("malformed event frame: %w", err)
	}
	if !ev.Type.Known() {
		return Event{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return ev, nil
}

// IntentType enumerates every outbound client intent. Intents express a
// desired action; they never mutate local state directly.
type IntentType string

const (
	IntentStartMatching  IntentType = "start_matching"
	IntentCancelMatching IntentType = "cancel_matching"
	IntentMove           IntentType = "move"
	IntentPresenceUpdate IntentType = "presence_update"
	IntentJoinRoom       IntentType = "join_game_room"
	IntentLeaveRoom      IntentType = "leave_game"
	IntentRequestRematch IntentType = "request_rematch"
	IntentAcceptRematch  IntentType = "accept_rematch"
	IntentDeclineRematch IntentType = "decline_rematch"
	IntentCancelRematch  IntentType = "cancel_rematch"
)

// Intent is the outbound wire envelope.
type Intent struct {
	ID        string     `json:"id"`
	Type      IntentType `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Data      any        `json:"data,omitempty"`
}

// NewIntent wraps a payload in an envelope with a fresh id.
func NewIntent(t IntentType, payload any) Intent {
	return Intent{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}
}
