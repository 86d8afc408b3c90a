// Package client composes the per-match components (session store, event
// channel, move controller, presence monitor, rematch negotiator) into one
// coordinator with a single acquire/release lifecycle per match view.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fourfury/go/internal/api"
	"github.com/mcdev12/fourfury/go/internal/channel"
	"github.com/mcdev12/fourfury/go/internal/identity"
	"github.com/mcdev12/fourfury/go/internal/match"
	"github.com/mcdev12/fourfury/go/internal/moves"
	"github.com/mcdev12/fourfury/go/internal/presence"
	"github.com/mcdev12/fourfury/go/internal/rematch"
	"github.com/mcdev12/fourfury/go/internal/session"
)

// Navigator performs view transitions for the whole client. The owning
// application decides what "lobby" and "match" views actually are.
type Navigator interface {
	ToLobby()
	ToMatch(matchID string)
}

// Config wires a match session to its collaborators.
type Config struct {
	API      *api.Client
	Dialer   channel.Dialer
	Identity identity.Store
	Nav      Navigator
	Clock    clockwork.Clock
	Username string

	// OnSnapshot fires after every confirmed server update, with the new
	// authoritative snapshot. UI refresh hook only; the snapshot must not be
	// mutated.
	OnSnapshot func(*match.Snapshot)
	// OnForfeit fires when the server declares a forfeiture.
	OnForfeit func(presence.Forfeit)
	// OnConnState fires on channel connection-state transitions.
	OnConnState func(channel.StateChange)
}

// MatchSession is the live client side of one match: it mirrors the
// authoritative snapshot, submits move intents, and runs the presence and
// rematch machinery. Acquire with Run on view entry; Close on view exit.
type MatchSession struct {
	cfg   Config
	clock clockwork.Clock

	matchID string
	store   *session.Store
	conn    channel.Conn

	movesCtl  *moves.Controller
	monitor   *presence.Monitor
	rematcher *rematch.Negotiator

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewMatchSession creates an unstarted session coordinator.
func NewMatchSession(cfg Config) *MatchSession {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &MatchSession{cfg: cfg, clock: cfg.Clock}
}

// Run fetches the initial snapshot, opens the event channel, and processes
// events until the channel closes or ctx is cancelled. It returns nil after
// a clean Close and the terminal error otherwise. Every resource acquired on
// entry is released on every exit path.
func (s *MatchSession) Run(ctx context.Context, matchID string) error {
	// The one-shot snapshot fetch happens before the channel opens; its
	// failure is a fatal initialization error and the channel never opens.
	snap, err := s.cfg.API.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("initial snapshot fetch for %s: %w", matchID, err)
	}

	conn, err := s.cfg.Dialer.Open(ctx)
	if err != nil {
		return fmt.Errorf("open match channel: %w", err)
	}

	s.mu.Lock()
	s.matchID = matchID
	s.store = session.NewStore(snap)
	s.conn = conn

	s.movesCtl = moves.NewController(conn, s.store, s.cfg.Username)
	s.rematcher = rematch.NewNegotiator(rematch.Config{
		MatchID:  matchID,
		Username: s.cfg.Username,
		Conn:     conn,
		Identity: s.cfg.Identity,
		Nav:      s.cfg.Nav,
		Clock:    s.clock,
	})
	rematcher := s.rematcher
	s.monitor = presence.NewMonitor(presence.Config{
		MatchID: matchID,
		Mode:    snap.Mode,
		Conn:    conn,
		Clock:   s.clock,
		// Presence and rematch are siblings; the coordinator wires presence
		// output straight into rematch input instead of any ambient bus.
		OnChange: rematcher.HandlePresenceChange,
		OnForfeit: func(f presence.Forfeit) {
			rematcher.HandleForfeit(f)
			if s.cfg.OnForfeit != nil {
				s.cfg.OnForfeit(f)
			}
		},
	})
	s.mu.Unlock()

	defer s.teardown()

	join := channel.NewIntent(channel.IntentJoinRoom, channel.RoomPayload{
		GameID: matchID,
		Status: string(presence.StatusOnline),
	})
	if err := conn.Emit(join); err != nil {
		return fmt.Errorf("join match room: %w", err)
	}

	s.monitor.Start()
	log.Info().Str("match_id", matchID).Str("mode", string(snap.Mode)).Msg("match session started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-conn.Events():
			if !ok {
				if cerr := conn.Err(); cerr != nil {
					return cerr
				}
				return nil
			}
			s.dispatch(ev)
		}
	}
}

// dispatch routes one inbound event. The switch covers the full enumerated
// event set; matchmaking events are out of scope for a running match and are
// only logged.
func (s *MatchSession) dispatch(ev channel.Event) {
	switch ev.Type {
	case channel.EventGameUpdate:
		snap, err := s.store.ApplyServerUpdate(ev.Data)
		if err != nil {
			// Protocol error: previous snapshot retained, already logged.
			return
		}
		if s.cfg.OnSnapshot != nil {
			s.cfg.OnSnapshot(snap)
		}

	case channel.EventCountdownUpdate, channel.EventForfeitGame:
		s.monitor.HandleEvent(ev)

	case channel.EventRematchRequested, channel.EventRematchStarted,
		channel.EventRematchDeclined, channel.EventRematchError,
		channel.EventRematchCancelled, channel.EventOpponentDisconnected:
		s.rematcher.HandleEvent(ev)

	case channel.EventMatchingStatus, channel.EventMatchFound,
		channel.EventMatchingError, channel.EventMatchingCancelled:
		log.Debug().Str("type", string(ev.Type)).Msg("ignoring matchmaking event inside match session")
	}
}

// Close releases the session: leaves the room, stops the presence ticker and
// rematch timers, and closes the channel. Idempotent; safe from any
// goroutine.
func (s *MatchSession) Close() {
	s.teardown()
}

func (s *MatchSession) teardown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		conn := s.conn
		monitor := s.monitor
		rematcher := s.rematcher
		matchID := s.matchID
		s.mu.Unlock()

		if conn != nil {
			leave := channel.NewIntent(channel.IntentLeaveRoom, channel.RoomPayload{GameID: matchID})
			_ = conn.Emit(leave)
		}
		if monitor != nil {
			monitor.Stop()
		}
		if rematcher != nil {
			rematcher.Teardown()
		}
		if conn != nil {
			_ = conn.Close()
		}
		log.Info().Str("match_id", matchID).Msg("match session torn down")
	})
}

// Snapshot returns the current authoritative snapshot, or nil before Run has
// bootstrapped.
func (s *MatchSession) Snapshot() *match.Snapshot {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.Snapshot()
}

// AttemptMove validates and emits a move intent for the given column.
func (s *MatchSession) AttemptMove(column int) moves.Result {
	s.mu.Lock()
	ctl := s.movesCtl
	s.mu.Unlock()
	if ctl == nil {
		return moves.Result{Reason: moves.RejectChannelNotReady}
	}
	return ctl.AttemptMove(column)
}

// ConnState reports the channel connection state, StateClosed before Run has
// bootstrapped.
func (s *MatchSession) ConnState() channel.State {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return channel.StateClosed
	}
	return conn.State()
}

// SetVisibility relays a local page-visibility change.
func (s *MatchSession) SetVisibility(visible bool) {
	s.mu.Lock()
	monitor := s.monitor
	s.mu.Unlock()
	if monitor != nil {
		monitor.SetVisibility(visible)
	}
}

// Presence returns the current presence entries.
func (s *MatchSession) Presence() map[string]presence.Entry {
	s.mu.Lock()
	monitor := s.monitor
	s.mu.Unlock()
	if monitor == nil {
		return nil
	}
	return monitor.Entries()
}

// ForfeitMessage returns the forfeiture message, if the match was forfeited.
func (s *MatchSession) ForfeitMessage() string {
	s.mu.Lock()
	monitor := s.monitor
	s.mu.Unlock()
	if monitor == nil {
		return ""
	}
	return monitor.ForfeitMessage()
}

// Rematch exposes the rematch negotiation surface for the finished-match UI.
// Nil before Run has bootstrapped.
func (s *MatchSession) Rematch() *rematch.Negotiator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rematcher
}
