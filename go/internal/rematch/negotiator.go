// Package rematch drives the symmetric post-game handshake that either
// starts a fresh match between the same participants or returns both clients
// to the lobby.
package rematch

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fourfury/go/internal/channel"
	"github.com/mcdev12/fourfury/go/internal/identity"
	"github.com/mcdev12/fourfury/go/internal/presence"
)

// State is the negotiation status surfaced to the UI.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateWaiting    State = "waiting"
	StateDeclined   State = "declined"
	StateError      State = "error"
)

// Auto-redirect windows for transient display states.
const (
	declinedRedirectDelay = 2 * time.Second
	errorRedirectDelay    = 3500 * time.Millisecond
)

// IncomingRequest is a peer's rematch request awaiting a local decision.
type IncomingRequest struct {
	RequestedByUsername  string
	RequesterDisplayName string
}

// Navigator performs view transitions. Routing itself stays outside this
// subsystem.
type Navigator interface {
	ToLobby()
	ToMatch(matchID string)
}

// Emitter is the outbound half of the channel the negotiator needs.
type Emitter interface {
	Emit(channel.Intent) error
}

// Config wires a negotiator to one finished match.
type Config struct {
	MatchID  string
	Username string
	Conn     Emitter
	Identity identity.Store
	Nav      Navigator
	Clock    clockwork.Clock
}

// Negotiator holds the transient rematch negotiation for one finished match.
// It is discarded when a new match starts, the match is abandoned, or the
// owning view tears down.
type Negotiator struct {
	cfg   Config
	clock clockwork.Clock

	mu              sync.Mutex
	status          State
	incoming        *IncomingRequest
	errMsg          string
	redirectPending bool

	done     chan struct{}
	stopOnce sync.Once
}

// NewNegotiator creates an idle negotiator.
func NewNegotiator(cfg Config) *Negotiator {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Negotiator{
		cfg:    cfg,
		clock:  cfg.Clock,
		status: StateIdle,
		done:   make(chan struct{}),
	}
}

// Status returns the current negotiation state.
func (n *Negotiator) Status() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Incoming returns the peer's pending request, if any.
func (n *Negotiator) Incoming() *IncomingRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.incoming == nil {
		return nil
	}
	req := *n.incoming
	return &req
}

// ErrorMessage returns the user-visible error for the error display state.
func (n *Negotiator) ErrorMessage() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errMsg
}

// Request emits a rematch request. The requester reaches waiting only when
// its own request is echoed back by the server.
func (n *Negotiator) Request() {
	n.mu.Lock()
	n.status = StateRequesting
	n.mu.Unlock()
	n.emit(channel.IntentRequestRematch)
}

// Cancel withdraws the local request and returns to idle.
func (n *Negotiator) Cancel() {
	n.emit(channel.IntentCancelRematch)
	n.mu.Lock()
	n.status = StateIdle
	n.mu.Unlock()
}

// Accept accepts the peer's request. The incoming request is cleared
// optimistically; the authoritative outcome follows as a server event.
func (n *Negotiator) Accept() {
	n.emit(channel.IntentAcceptRematch)
	n.mu.Lock()
	n.incoming = nil
	n.mu.Unlock()
}

// Decline declines the peer's request, clearing it optimistically.
func (n *Negotiator) Decline() {
	n.emit(channel.IntentDeclineRematch)
	n.mu.Lock()
	n.incoming = nil
	n.mu.Unlock()
}

// Teardown cancels any pending auto-redirect timer. Idempotent; must be
// called whenever the owning view goes away.
func (n *Negotiator) Teardown() {
	n.stopOnce.Do(func() { close(n.done) })
}

type requestedPayload struct {
	RequestedBy   string `json:"requestedBy"`
	RequesterName string `json:"requesterName"`
}

type startedPayload struct {
	GameID string `json:"game_id"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// HandleEvent consumes a rematch-related server event.
func (n *Negotiator) HandleEvent(ev channel.Event) {
	switch ev.Type {
	case channel.EventRematchRequested:
		var p requestedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			log.Error().Err(err).Msg("undecodable rematch request")
			return
		}
		n.handleRequested(p)

	case channel.EventRematchStarted:
		var p startedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.GameID == "" {
			log.Error().Err(err).Msg("undecodable rematch start")
			return
		}
		n.handleStarted(p.GameID)

	case channel.EventRematchDeclined:
		n.handleDeclined()

	case channel.EventRematchError:
		var p errorPayload
		_ = json.Unmarshal(ev.Data, &p)
		if p.Message == "" {
			p.Message = "Error setting up rematch"
		}
		n.failToLobby(p.Message)

	case channel.EventRematchCancelled:
		n.mu.Lock()
		n.status = StateIdle
		n.incoming = nil
		n.mu.Unlock()

	case channel.EventOpponentDisconnected:
		n.abortIfNegotiating("Opponent left the game")
	}
}

// HandlePresenceChange aborts an in-flight negotiation when the opponent
// goes offline. Wired directly by the owning coordinator; presence and
// rematch are siblings, not parent and child.
func (n *Negotiator) HandlePresenceChange(change presence.Change) {
	if change.Username == n.cfg.Username || change.Status != presence.StatusOffline {
		return
	}
	n.abortIfNegotiating("Opponent left the game")
}

// HandleForfeit aborts any in-flight negotiation when the server declares a
// forfeiture, scheduling the lobby redirect.
func (n *Negotiator) HandleForfeit(f presence.Forfeit) {
	n.mu.Lock()
	negotiating := n.status != StateIdle || n.incoming != nil
	n.mu.Unlock()
	if negotiating {
		n.failToLobby(f.Message)
	}
}

func (n *Negotiator) handleRequested(p requestedPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p.RequestedBy == n.cfg.Username {
		// Our own request echoed back: the server accepted it.
		n.status = StateWaiting
		return
	}
	n.incoming = &IncomingRequest{
		RequestedByUsername:  p.RequestedBy,
		RequesterDisplayName: p.RequesterName,
	}
	log.Info().Str("from", p.RequestedBy).Msg("rematch requested by opponent")
}

// handleStarted rebinds the local seat to the new match. The seat comes from
// the currently stored session record, not from the event; both clients
// re-derive it independently.
func (n *Negotiator) handleStarted(newMatchID string) {
	binding, ok := n.cfg.Identity.Read(n.cfg.MatchID)
	if !ok {
		// Without a stored player record the rematch cannot be joined.
		log.Error().Str("match_id", n.cfg.MatchID).Msg("no local player record for rematch")
		n.failToLobby("Could not join the rematch. Please start a new game")
		return
	}

	n.cfg.Identity.Clear()
	if err := n.cfg.Identity.Bind(newMatchID, binding.Username, binding.Seat); err != nil {
		log.Error().Err(err).Msg("failed to rebind identity for rematch")
		n.failToLobby("Could not join the rematch. Please start a new game")
		return
	}

	n.mu.Lock()
	n.status = StateIdle
	n.incoming = nil
	n.mu.Unlock()

	log.Info().Str("match_id", newMatchID).Int("seat", binding.Seat).Msg("rematch started")
	n.cfg.Nav.ToMatch(newMatchID)
}

func (n *Negotiator) handleDeclined() {
	n.mu.Lock()
	n.status = StateDeclined
	n.incoming = nil
	n.mu.Unlock()
	n.scheduleRedirect(declinedRedirectDelay)
}

func (n *Negotiator) abortIfNegotiating(message string) {
	n.mu.Lock()
	negotiating := n.status == StateWaiting || n.incoming != nil
	n.mu.Unlock()
	if negotiating {
		n.failToLobby(message)
	}
}

func (n *Negotiator) failToLobby(message string) {
	n.mu.Lock()
	n.status = StateError
	n.errMsg = message
	n.incoming = nil
	n.mu.Unlock()
	n.scheduleRedirect(errorRedirectDelay)
}

// scheduleRedirect arms the auto-redirect to the lobby. A second terminal
// event before the timer fires must not double-schedule navigation.
func (n *Negotiator) scheduleRedirect(delay time.Duration) {
	n.mu.Lock()
	if n.redirectPending {
		n.mu.Unlock()
		return
	}
	n.redirectPending = true
	n.mu.Unlock()

	timer := n.clock.NewTimer(delay)
	go func() {
		select {
		case <-timer.Chan():
			n.mu.Lock()
			n.status = StateIdle
			n.errMsg = ""
			n.incoming = nil
			n.redirectPending = false
			n.mu.Unlock()
			n.cfg.Nav.ToLobby()
		case <-n.done:
			if !timer.Stop() {
				select {
				case <-timer.Chan():
				default:
				}
			}
		}
	}()
}

func (n *Negotiator) emit(t channel.IntentType) {
	intent := channel.NewIntent(t, channel.RematchPayload{GameID: n.cfg.MatchID})
	if err := n.cfg.Conn.Emit(intent); err != nil {
		log.Warn().Err(err).Str("intent", string(t)).Msg("rematch intent emit failed")
	}
}
