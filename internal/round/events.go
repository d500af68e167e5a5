package round

import (
	"context"
	"encoding/json"
	"time"
)

// EventType names a push notification.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventGameStarted  EventType = "game_started"
	EventCardDrawn    EventType = "card_drawn"
	EventPlayerBusted EventType = "player_busted"
	EventTurnChanged  EventType = "turn_changed"
	EventGameFinished EventType = "game_finished"
	EventGameReset    EventType = "game_reset"
	EventGameRevealed EventType = "game_revealed"
	EventAutoReveal   EventType = "auto_reveal"
)

// EventName is the channel event name clients subscribe to.
const EventName = "gameNotify"

// RoomKey returns the push channel room for a round.
func RoomKey(roundID string) string {
	return "game:" + roundID
}

// Event is a state-change notification. It carries hints only; clients re-fetch authoritative state.
type Event struct {
	RoundID    string
	Type       EventType
	Payload    map[string]any
	OccurredAt time.Time
}

// MarshalJSON flattens the payload next to the round id and type.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+2)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["round"] = e.RoundID
	out["type"] = e.Type
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if id, ok := raw["round"].(string); ok {
		e.RoundID = id
	}
	if t, ok := raw["type"].(string); ok {
		e.Type = EventType(t)
	}
	delete(raw, "round")
	delete(raw, "type")
	e.Payload = raw
	return nil
}

// Broadcaster delivers events to every subscriber of a room. Delivery is best effort.
type Broadcaster interface {
	Publish(ctx context.Context, room string, ev Event)
}

// BroadcasterFunc adapts a function to Broadcaster.
type BroadcasterFunc func(ctx context.Context, room string, ev Event)

func (f BroadcasterFunc) Publish(ctx context.Context, room string, ev Event) {
	f(ctx, room, ev)
}

// NopBroadcaster discards every event.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(context.Context, string, Event) {}

// EventLog exposes journaled events of a round.
type EventLog interface {
	Events(roundID string) []Event
}
