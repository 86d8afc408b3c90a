package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/fourfury/go/internal/match"
)

func testSnapshot(t *testing.T, id string, moveNumber int) *match.Snapshot {
	t.Helper()
	return &match.Snapshot{
		ID:                id,
		Player1:           "Alice",
		Player1Username:   "alice-1",
		Player2:           "Bob",
		Player2Username:   "bob-2",
		MoveNumber:        moveNumber,
		Board:             match.NewBoard(),
		NextMoverUsername: "alice-1",
		Mode:              match.ModeOnline,
	}
}

// encodeUpdate builds the double-encoded transport payload: the document
// serialized to a string, then that string serialized as JSON.
func encodeUpdate(t *testing.T, snap *match.Snapshot) json.RawMessage {
	t.Helper()
	doc, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("encode document: %v", err)
	}
	raw, err := json.Marshal(string(doc))
	if err != nil {
		t.Fatalf("encode transport: %v", err)
	}
	return raw
}

func TestDecodeDocumentRoundTrip(t *testing.T) {
	want := testSnapshot(t, "m-1", 4)
	got, err := DecodeDocument(encodeUpdate(t, want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "m-1" || got.MoveNumber != 4 {
		t.Fatalf("decoded wrong document: %+v", got)
	}
}

func TestDecodeDocumentStageErrors(t *testing.T) {
	// Not a JSON string at the transport stage.
	_, err := DecodeDocument(json.RawMessage(`{"id":"m-1"}`))
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Stage != "transport" {
		t.Fatalf("want transport-stage parse error, got %v", err)
	}

	// A string whose contents are not a valid document.
	_, err = DecodeDocument(json.RawMessage(`"not json at all"`))
	if !errors.As(err, &pe) || pe.Stage != "document" {
		t.Fatalf("want document-stage parse error, got %v", err)
	}

	// A structurally valid document that fails validation.
	bad := testSnapshot(t, "m-1", 0)
	bad.Board = bad.Board[:2]
	_, err = DecodeDocument(encodeUpdate(t, bad))
	if !errors.As(err, &pe) || pe.Stage != "document" {
		t.Fatalf("want document-stage parse error for bad board, got %v", err)
	}
}

func TestApplyServerUpdateReplacesWholesale(t *testing.T) {
	store := NewStore(testSnapshot(t, "m-1", 0))

	next := testSnapshot(t, "m-1", 1)
	next.NextMoverUsername = "bob-2"
	if _, err := store.ApplyServerUpdate(encodeUpdate(t, next)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got := store.Snapshot()
	if got.MoveNumber != 1 || got.NextMoverUsername != "bob-2" {
		t.Fatalf("snapshot not replaced: %+v", got)
	}
}

func TestApplyServerUpdateRetainsPreviousOnError(t *testing.T) {
	initial := testSnapshot(t, "m-1", 2)
	store := NewStore(initial)

	if _, err := store.ApplyServerUpdate(json.RawMessage(`"garbage"`)); err == nil {
		t.Fatalf("expected parse error")
	}
	if got := store.Snapshot(); got != initial {
		t.Fatalf("snapshot changed on failed update")
	}
}

func TestApplyServerUpdateNeverReopensFinishedMatch(t *testing.T) {
	finished := testSnapshot(t, "m-1", 9)
	now := time.Now()
	finished.FinishedAt = &now
	w := match.OutcomeSeat1
	finished.Winner = &w
	store := NewStore(finished)

	stale := testSnapshot(t, "m-1", 8)
	got, err := store.ApplyServerUpdate(encodeUpdate(t, stale))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !got.Finished() {
		t.Fatalf("finished match was reopened by a stale update")
	}
	if store.Snapshot().MoveNumber != 9 {
		t.Fatalf("terminal snapshot replaced by stale update")
	}

	// A different match id is a fresh document and applies normally.
	other := testSnapshot(t, "m-2", 0)
	if _, err := store.ApplyServerUpdate(encodeUpdate(t, other)); err != nil {
		t.Fatalf("apply new match: %v", err)
	}
	if store.Snapshot().ID != "m-2" {
		t.Fatalf("new match document did not apply")
	}
}
