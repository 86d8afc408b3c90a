// Package channel owns the lifecycle of the single bidirectional event
// channel between the client and the match server: dial, implicit
// authentication, bounded auto-reconnect, and ordered delivery of the
// enumerated inbound events.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State is the externally visible connection state.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// StateChange notifies a dependent of a connection-state transition. Err is
// set only on a terminal close caused by a transport failure.
type StateChange struct {
	State State
	Err   *ConnError
}

// ConnError is a surfaced (never thrown) transport failure. EverConnected
// distinguishes "never connected" from "dropped after connecting".
type ConnError struct {
	EverConnected bool
	Attempts      int
	cause         error
}

func (e *ConnError) Error() string {
	if e.EverConnected {
		return fmt.Sprintf("channel dropped after connecting (%d reconnect attempts): %v", e.Attempts, e.cause)
	}
	return fmt.Sprintf("channel never connected: %v", e.cause)
}

func (e *ConnError) Unwrap() error { return e.cause }

// ErrNotConnected is returned by Emit when the channel is not open.
var ErrNotConnected = errors.New("channel not connected")

// Conn is the channel surface dependents hold: emit intents out, receive
// ordered events in, observe connectivity. The events channel closes exactly
// once, when the channel is torn down or the retry budget is exhausted.
type Conn interface {
	Emit(Intent) error
	Events() <-chan Event
	Connected() bool
	State() State
	Err() *ConnError
	Close() error
}

// Dialer opens a channel for one logical session.
type Dialer interface {
	Open(ctx context.Context) (Conn, error)
}

// Config holds channel configuration. Username and SessionID authenticate the
// connection implicitly via the handshake.
type Config struct {
	URL                  string
	Username             string
	SessionID            string
	MaxReconnectAttempts int
	ReconnectWait        time.Duration
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	ReadTimeout          time.Duration
	PingInterval         time.Duration
	Clock                clockwork.Clock
	OnStateChange        func(StateChange)
}

// DefaultConfig returns the channel configuration used against a real server.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		MaxReconnectAttempts: 5,
		ReconnectWait:        2 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		ReadTimeout:          60 * time.Second,
		PingInterval:         30 * time.Second,
	}
}

// Channel is the single physical connection for one logical session.
type Channel struct {
	cfg   Config
	clock clockwork.Clock

	mu            sync.Mutex
	writeMu       sync.Mutex
	conn          *websocket.Conn
	state         State
	everConnected bool
	terminalErr   *ConnError

	events     chan Event
	done       chan struct{}
	closeOnce  sync.Once
	eventsOnce sync.Once
}

// New creates a channel from cfg, filling unset fields with defaults.
func New(cfg Config) *Channel {
	def := DefaultConfig(cfg.URL)
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Channel{
		cfg:    cfg,
		clock:  cfg.Clock,
		state:  StateConnecting,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Open dials the server and starts the read loop. A failed first dial is
// terminal: the channel closes and the ConnError reports never-connected.
func (c *Channel) Open(ctx context.Context) error {
	c.notify(StateChange{State: StateConnecting})

	conn, err := c.dial(ctx)
	if err != nil {
		cerr := &ConnError{EverConnected: false, Attempts: 1, cause: err}
		c.shutdown(cerr)
		// The read loop never started, so the event stream closes here.
		c.closeEvents()
		return cerr
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.everConnected = true
	c.mu.Unlock()
	c.notify(StateChange{State: StateOpen})

	go c.pingLoop(conn)
	go c.run(ctx, conn)
	return nil
}

// Emit sends an intent over the open channel.
func (c *Channel) Emit(intent Intent) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateOpen || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to encode intent %s: %w", intent.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write intent %s: %w", intent.Type, err)
	}
	log.Debug().Str("intent", string(intent.Type)).Msg("intent emitted")
	return nil
}

// Events returns the ordered inbound event stream.
func (c *Channel) Events() <-chan Event { return c.events }

// Connected reports whether the channel is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the terminal transport error, if the channel closed because of
// one.
func (c *Channel) Err() *ConnError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminalErr
}

// Close tears the channel down: pending reconnect timers are cancelled, no
// further state changes are delivered, and the event stream closes once the
// read loop has exited. Close is idempotent.
func (c *Channel) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Channel) shutdown(cerr *ConnError) {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.state = StateClosed
		c.terminalErr = cerr
		c.mu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			c.writeMu.Unlock()
			conn.Close()
		}

		c.notify(StateChange{State: StateClosed, Err: cerr})
	})
}

// closeEvents is called only by the producer side, after the read loop has
// returned for good. Closing from shutdown would race an in-flight send.
func (c *Channel) closeEvents() {
	c.eventsOnce.Do(func() { close(c.events) })
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	header := http.Header{}
	if c.cfg.Username != "" {
		header.Set("Cookie", fmt.Sprintf("session_id=%s; username=%s", c.cfg.SessionID, c.cfg.Username))
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

// run owns the connection until it is explicitly closed or the reconnect
// budget runs out. Events are delivered in read order on a single channel;
// there is no reordering or deduplication.
func (c *Channel) run(ctx context.Context, conn *websocket.Conn) {
	defer c.closeEvents()
	for {
		readErr := c.readLoop(conn)

		select {
		case <-c.done:
			return
		default:
		}

		log.Warn().Err(readErr).Msg("channel dropped, reconnecting")
		c.setState(StateConnecting)
		c.notify(StateChange{State: StateConnecting})

		next, lastErr := c.redial(ctx)
		if next == nil {
			if lastErr == nil {
				// Close raced the reconnect; nothing to surface.
				return
			}
			cerr := &ConnError{
				EverConnected: true,
				Attempts:      c.cfg.MaxReconnectAttempts,
				cause:         lastErr,
			}
			c.shutdown(cerr)
			return
		}

		c.mu.Lock()
		c.conn = next
		c.state = StateOpen
		c.mu.Unlock()
		c.notify(StateChange{State: StateOpen})
		go c.pingLoop(next)
		conn = next
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		ev, err := DecodeEvent(raw)
		if err != nil {
			// Protocol error: log and keep the stream alive.
			log.Error().Err(err).Msg("dropping undecodable event frame")
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return nil
		}
	}
}

// redial attempts a bounded number of reconnects with linearly increasing
// delay. A nil connection with nil error means the channel was closed while
// waiting.
func (c *Channel) redial(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error = errors.New("no reconnect attempts configured")
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		timer := c.clock.NewTimer(time.Duration(attempt) * c.cfg.ReconnectWait)
		select {
		case <-timer.Chan():
		case <-c.done:
			stopAndDrainTimer(timer)
			return nil, nil
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			return nil, nil
		}

		conn, err := c.dial(ctx)
		if err == nil {
			log.Info().Int("attempt", attempt).Msg("channel reconnected")
			return conn, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
	}
	return nil, lastErr
}

func (c *Channel) pingLoop(conn *websocket.Conn) {
	ticker := c.clock.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) notify(change StateChange) {
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(change)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent
// goroutine leaks, per the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// WSDialer opens websocket channels with a fixed configuration.
type WSDialer struct {
	Config Config
}

// Open dials a new channel. At most one physical channel exists per logical
// session; callers own the returned Conn and must Close it on view exit.
func (d *WSDialer) Open(ctx context.Context) (Conn, error) {
	ch := New(d.Config)
	if err := ch.Open(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}
