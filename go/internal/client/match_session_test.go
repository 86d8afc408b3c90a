package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/fourfury/go/internal/api"
	"github.com/mcdev12/fourfury/go/internal/channel"
	"github.com/mcdev12/fourfury/go/internal/identity"
	"github.com/mcdev12/fourfury/go/internal/match"
	"github.com/mcdev12/fourfury/go/internal/presence"
)

type fakeConn struct {
	mu      sync.Mutex
	emitted []channel.Intent
	events  chan channel.Event
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan channel.Event, 8)}
}

func (f *fakeConn) Emit(intent channel.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, intent)
	return nil
}

func (f *fakeConn) Events() <-chan channel.Event { return f.events }
func (f *fakeConn) Connected() bool              { return true }
func (f *fakeConn) Err() *channel.ConnError      { return nil }

func (f *fakeConn) State() channel.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return channel.StateClosed
	}
	return channel.StateOpen
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeConn) intents() []channel.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channel.Intent(nil), f.emitted...)
}

type fakeDialer struct {
	mu     sync.Mutex
	conn   *fakeConn
	dialed int
}

func (d *fakeDialer) Open(ctx context.Context) (channel.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed++
	return d.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialed
}

type nullNav struct{}

func (nullNav) ToLobby()       {}
func (nullNav) ToMatch(string) {}

func testSnapshot(id string, moveNumber int) *match.Snapshot {
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

func snapshotServer(t *testing.T, snap *match.Snapshot) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(snap)
	}))
}

func gameUpdateEvent(t *testing.T, snap *match.Snapshot) channel.Event {
	t.Helper()
	doc, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("encode document: %v", err)
	}
	raw, err := json.Marshal(string(doc))
	if err != nil {
		t.Fatalf("encode transport: %v", err)
	}
	return channel.Event{Type: channel.EventGameUpdate, Data: raw}
}

func TestRunBootstrapsJoinsAndApplies(t *testing.T) {
	srv := snapshotServer(t, testSnapshot("m-1", 0))
	defer srv.Close()

	conn := newFakeConn()
	snapshots := make(chan *match.Snapshot, 4)
	sess := NewMatchSession(Config{
		API:        api.NewClient(srv.URL),
		Dialer:     &fakeDialer{conn: conn},
		Identity:   identity.NewMemoryStore(),
		Nav:        nullNav{},
		Clock:      clockwork.NewFakeClock(),
		Username:   "alice-1",
		OnSnapshot: func(s *match.Snapshot) { snapshots <- s },
	})

	if sess.ConnState() != channel.StateClosed {
		t.Fatalf("conn state before run should be closed, got %s", sess.ConnState())
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(context.Background(), "m-1") }()

	// The room join rides on the channel as soon as it opens.
	deadline := time.Now().Add(2 * time.Second)
	for {
		intents := conn.intents()
		if len(intents) > 0 {
			if intents[0].Type != channel.IntentJoinRoom {
				t.Fatalf("first intent should join the room, got %s", intents[0].Type)
			}
			payload := intents[0].Data.(channel.RoomPayload)
			if payload.GameID != "m-1" || payload.Status != "online" {
				t.Fatalf("wrong join payload: %+v", payload)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("join intent never emitted")
		}
		time.Sleep(time.Millisecond)
	}

	if got := sess.Snapshot(); got == nil || got.MoveNumber != 0 {
		t.Fatalf("initial snapshot not stored: %+v", got)
	}
	if sess.ConnState() != channel.StateOpen {
		t.Fatalf("conn state after bootstrap should be open, got %s", sess.ConnState())
	}

	conn.events <- gameUpdateEvent(t, testSnapshot("m-1", 1))
	select {
	case s := <-snapshots:
		if s.MoveNumber != 1 {
			t.Fatalf("update not applied: %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("snapshot callback never fired")
	}

	sess.Close()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("clean close returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after close")
	}

	var sawLeave bool
	for _, intent := range conn.intents() {
		if intent.Type == channel.IntentLeaveRoom {
			sawLeave = true
		}
	}
	if !sawLeave {
		t.Fatalf("teardown did not leave the room: %+v", conn.intents())
	}
}

func TestRunFailsFatallyWhenFetchFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dialer := &fakeDialer{conn: newFakeConn()}
	sess := NewMatchSession(Config{
		API:      api.NewClient(srv.URL),
		Dialer:   dialer,
		Identity: identity.NewMemoryStore(),
		Nav:      nullNav{},
		Username: "alice-1",
	})

	if err := sess.Run(context.Background(), "m-404"); err == nil {
		t.Fatalf("missing match should fail the session")
	}
	if dialer.dialCount() != 0 {
		t.Fatalf("channel must never open when the bootstrap fetch fails")
	}
}

func TestForfeitEventReachesCallbackAndRematch(t *testing.T) {
	srv := snapshotServer(t, testSnapshot("m-1", 0))
	defer srv.Close()

	conn := newFakeConn()
	forfeits := make(chan presence.Forfeit, 1)
	sess := NewMatchSession(Config{
		API:       api.NewClient(srv.URL),
		Dialer:    &fakeDialer{conn: conn},
		Identity:  identity.NewMemoryStore(),
		Nav:       nullNav{},
		Clock:     clockwork.NewFakeClock(),
		Username:  "alice-1",
		OnForfeit: func(f presence.Forfeit) { forfeits <- f },
	})

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(context.Background(), "m-1") }()
	defer func() { sess.Close(); <-runErr }()

	data, _ := json.Marshal(map[string]string{"username": "bob-2", "message": "Bob forfeited the game"})
	conn.events <- channel.Event{Type: channel.EventForfeitGame, Data: data}

	select {
	case f := <-forfeits:
		if f.Username != "bob-2" {
			t.Fatalf("wrong forfeit: %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("forfeit callback never fired")
	}

	if sess.ForfeitMessage() != "Bob forfeited the game" {
		t.Fatalf("forfeit not recorded in monitor: %q", sess.ForfeitMessage())
	}
}

func TestRematchEventsRouteToNegotiator(t *testing.T) {
	srv := snapshotServer(t, testSnapshot("m-1", 0))
	defer srv.Close()

	conn := newFakeConn()
	sess := NewMatchSession(Config{
		API:      api.NewClient(srv.URL),
		Dialer:   &fakeDialer{conn: conn},
		Identity: identity.NewMemoryStore(),
		Nav:      nullNav{},
		Clock:    clockwork.NewFakeClock(),
		Username: "alice-1",
	})

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(context.Background(), "m-1") }()
	defer func() { sess.Close(); <-runErr }()

	data, _ := json.Marshal(map[string]string{"requestedBy": "bob-2", "requesterName": "Bob"})
	conn.events <- channel.Event{Type: channel.EventRematchRequested, Data: data}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if req := sess.Rematch(); req != nil && req.Incoming() != nil {
			if req.Incoming().RequestedByUsername != "bob-2" {
				t.Fatalf("wrong incoming request: %+v", req.Incoming())
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("rematch request never routed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunSurfacesTerminalChannelError(t *testing.T) {
	srv := snapshotServer(t, testSnapshot("m-1", 0))
	defer srv.Close()

	conn := newFakeConn()
	sess := NewMatchSession(Config{
		API:      api.NewClient(srv.URL),
		Dialer:   &fakeDialer{conn: conn},
		Identity: identity.NewMemoryStore(),
		Nav:      nullNav{},
		Clock:    clockwork.NewFakeClock(),
		Username: "alice-1",
	})

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(context.Background(), "m-1") }()

	// Stream closing with no terminal error is a clean shutdown.
	conn.Close()
	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after stream closed")
	}
}
