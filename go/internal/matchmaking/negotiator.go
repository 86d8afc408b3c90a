// Package matchmaking drives the pre-game handshake that pairs two waiting
// clients into a session over a dedicated event channel.
package matchmaking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fourfury/go/internal/channel"
	"github.com/mcdev12/fourfury/go/internal/identity"
	"github.com/mcdev12/fourfury/go/internal/session"
)

// Status is the matchmaking ticket state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusWaiting    Status = "waiting"
	StatusMatched    Status = "matched"
	StatusError      Status = "error"
)

// Ticket is the transient matchmaking state surfaced to the UI. It exists
// only for the duration of the handshake.
type Ticket struct {
	Status  Status
	Message string
}

// Profile identifies the local player to the matchmaking queue.
type Profile struct {
	Username    string
	DisplayName string
	SessionID   string
}

// Navigator transitions the view into the matched session.
type Navigator interface {
	ToMatch(matchID string)
}

// Config wires a negotiator to its collaborators. MatchedDelay is the short
// display pause between "match found" and navigation, letting the UI show a
// success state.
type Config struct {
	Dialer       channel.Dialer
	Identity     identity.Store
	Nav          Navigator
	Clock        clockwork.Clock
	OnUpdate     func(Ticket)
	MatchedDelay time.Duration
}

// Negotiator runs one matchmaking handshake. Create a fresh one per attempt.
type Negotiator struct {
	cfg   Config
	clock clockwork.Clock

	mu     sync.Mutex
	ticket Ticket
	conn   channel.Conn

	done     chan struct{}
	stopOnce sync.Once
}

// NewNegotiator creates an idle matchmaking negotiator.
func NewNegotiator(cfg Config) *Negotiator {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MatchedDelay == 0 {
		cfg.MatchedDelay = time.Second
	}
	return &Negotiator{
		cfg:    cfg,
		clock:  cfg.Clock,
		ticket: Ticket{Status: StatusIdle},
		done:   make(chan struct{}),
	}
}

// Ticket returns the current ticket.
func (n *Negotiator) Ticket() Ticket {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ticket
}

// Start opens the matchmaking channel and queues the local player. The seat
// binding is persisted only once a match is authoritatively found, so a
// crash mid-handshake can never leave a half-joined state behind.
func (n *Negotiator) Start(ctx context.Context, profile Profile) error {
	n.setTicket(StatusConnecting, "Connecting to server...")

	conn, err := n.cfg.Dialer.Open(ctx)
	if err != nil {
		n.setTicket(StatusError, "Failed to connect to server")
		return err
	}

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()

	n.setTicket(StatusWaiting, "Connected! Looking for opponents...")
	intent := channel.NewIntent(channel.IntentStartMatching, channel.StartMatchingPayload{
		Username:    profile.Username,
		DisplayName: profile.DisplayName,
		SessionID:   profile.SessionID,
	})
	if err := conn.Emit(intent); err != nil {
		n.fail("Failed to connect to server")
		return err
	}

	go n.loop(conn, profile)
	return nil
}

// Cancel withdraws from the queue, emitting the cancel intent before closing
// the channel, and discards the ticket.
func (n *Negotiator) Cancel() {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn != nil {
		_ = conn.Emit(channel.NewIntent(channel.IntentCancelMatching, nil))
	}
	n.setTicket(StatusIdle, "")
	n.teardown()
}

type statusPayload struct {
	Message string `json:"message"`
}

type matchFoundPayload struct {
	Game    string `json:"game"`
	Message string `json:"message"`
}

// loop holds its own reference to the conn: Cancel may nil out n.conn at
// any moment.
func (n *Negotiator) loop(conn channel.Conn, profile Profile) {
	for ev := range conn.Events() {
		switch ev.Type {
		case channel.EventMatchingStatus:
			// Server-pushed queue updates change the message, not the status.
			var p statusPayload
			if err := json.Unmarshal(ev.Data, &p); err != nil {
				log.Error().Err(err).Msg("undecodable matching status")
				continue
			}
			n.setTicket(StatusWaiting, p.Message)

		case channel.EventMatchFound:
			var p matchFoundPayload
			if err := json.Unmarshal(ev.Data, &p); err != nil {
				log.Error().Err(err).Msg("undecodable match found event")
				n.fail("Error starting game")
				return
			}
			n.handleMatchFound(p, profile)
			return

		case channel.EventMatchingError:
			var p statusPayload
			_ = json.Unmarshal(ev.Data, &p)
			if p.Message == "" {
				p.Message = "Error during matchmaking"
			}
			n.fail(p.Message)
			return

		case channel.EventMatchingCancelled:
			n.setTicket(StatusIdle, "")
			n.teardown()
			return
		}
	}

	// The event stream closed underneath us: channel error.
	switch n.Ticket().Status {
	case StatusConnecting, StatusWaiting:
		n.fail("Connection to matchmaking lost")
	}
}

// handleMatchFound decodes the embedded match document, derives the local
// seat by comparing the seat-1 username against the local username, persists
// the binding, and navigates after the display delay.
func (n *Negotiator) handleMatchFound(p matchFoundPayload, profile Profile) {
	snap, err := session.DecodeEmbedded(p.Game)
	if err != nil {
		log.Error().Err(err).Msg("undecodable match document")
		n.fail("Error starting game")
		return
	}

	seat := 2
	if snap.Player1Username == profile.Username {
		seat = 1
	}
	if err := n.cfg.Identity.Bind(snap.ID, profile.Username, seat); err != nil {
		log.Error().Err(err).Msg("failed to persist seat binding")
		n.fail("Error starting game")
		return
	}

	n.setTicket(StatusMatched, "Match found! Starting game...")
	log.Info().Str("match_id", snap.ID).Int("seat", seat).Msg("match found")

	timer := n.clock.NewTimer(n.cfg.MatchedDelay)
	select {
	case <-timer.Chan():
	case <-n.done:
		if !timer.Stop() {
			select {
			case <-timer.Chan():
			default:
			}
		}
		return
	}

	n.teardown()
	n.cfg.Nav.ToMatch(snap.ID)
}

func (n *Negotiator) fail(message string) {
	n.setTicket(StatusError, message)
	n.teardown()
}

// teardown closes the matchmaking channel and releases its subscriptions.
func (n *Negotiator) teardown() {
	n.stopOnce.Do(func() { close(n.done) })
	n.mu.Lock()
	conn := n.conn
	n.conn = nil
	n.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (n *Negotiator) setTicket(status Status, message string) {
	n.mu.Lock()
	n.ticket = Ticket{Status: status, Message: message}
	ticket := n.ticket
	n.mu.Unlock()
	if n.cfg.OnUpdate != nil {
		n.cfg.OnUpdate(ticket)
	}
}
