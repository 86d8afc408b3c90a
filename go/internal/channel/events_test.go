package channel

import (
	"encoding/json"
	"testing"
)

func TestDecodeEventAcceptsKnownTypes(t *testing.T) {
	raw := []byte(`{"id":"e-1","type":"game_update","data":"\"{}\""}`)
	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != EventGameUpdate {
		t.Fatalf("want game_update, got %s", ev.Type)
	}
	if len(ev.Data) == 0 {
		t.Fatalf("payload dropped")
	}
}

func TestDecodeEventRejectsUnknownType(t *testing.T) {
	raw := []byte(`{"type":"spectator_joined","data":{}}`)
	if _, err := DecodeEvent(raw); err == nil {
		t.Fatalf("unknown event type accepted")
	}
}

func TestDecodeEventRejectsMalformedFrame(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{"type":`)); err == nil {
		t.Fatalf("malformed frame accepted")
	}
}

func TestKnownCoversEnumeratedSet(t *testing.T) {
	all := []EventType{
		EventGameUpdate, EventMatchingStatus, EventMatchFound,
		EventMatchingError, EventMatchingCancelled,
		EventCountdownUpdate, EventForfeitGame,
		EventRematchRequested, EventRematchStarted, EventRematchDeclined,
		EventRematchError, EventRematchCancelled, EventOpponentDisconnected,
	}
	for _, et := range all {
		if !et.Known() {
			t.Fatalf("%s should be known", et)
		}
	}
	if EventType("").Known() || EventType("bogus").Known() {
		t.Fatalf("unknown types reported as known")
	}
}

func TestNewIntentEnvelope(t *testing.T) {
	intent := NewIntent(IntentMove, MovePayload{GameID: "m-1", Player: "alice-1", Column: 3})
	if intent.ID == "" {
		t.Fatalf("intent missing id")
	}
	if intent.Timestamp.IsZero() {
		t.Fatalf("intent missing timestamp")
	}

	data, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Type string `json:"type"`
		Data struct {
			GameID string `json:"game_id"`
			Player string `json:"player"`
			Column int    `json:"column"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "move" || decoded.Data.Column != 3 || decoded.Data.Player != "alice-1" {
		t.Fatalf("wire shape wrong: %s", data)
	}
}
