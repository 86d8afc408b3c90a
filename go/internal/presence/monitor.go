// Package presence tracks both participants' visibility, mirrors the
// server's disconnection grace countdown with a local ticker, and surfaces
// forfeiture outcomes to dependents.
package presence

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fourfury/go/internal/channel"
	"github.com/mcdev12/fourfury/go/internal/match"
)

// Status is a participant's visibility state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Entry is the tracked presence state for one participant, created lazily on
// the first presence event for that username. Countdown, when present, is
// owned by the local ticker between server countdown-start and cancel events.
type Entry struct {
	Status    Status
	Countdown *int
}

// Change notifies a dependent that a participant's presence was overwritten.
type Change struct {
	Username  string
	Status    Status
	Countdown *int
}

// Forfeit is a server-declared forfeiture outcome.
type Forfeit struct {
	Username string
	Message  string
}

// Emitter is the outbound half of the channel the monitor needs.
type Emitter interface {
	Emit(channel.Intent) error
}

// Config wires a monitor to its match, channel, and dependents. OnChange and
// OnForfeit are how sibling components (the rematch negotiator in particular)
// observe presence without any global event bus.
type Config struct {
	MatchID   string
	Mode      match.Mode
	Conn      Emitter
	Clock     clockwork.Clock
	OnChange  func(Change)
	OnForfeit func(Forfeit)
}

// Monitor consumes server presence events and runs the local countdown
// ticker. It is disabled entirely for vs-AI matches, which have no presence
// concept.
type Monitor struct {
	cfg     Config
	clock   clockwork.Clock
	enabled bool

	mu      sync.Mutex
	entries map[string]Entry
	forfeit *Forfeit

	done     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a presence monitor. For Mode == ModeAI the returned
// monitor is inert: Start, SetVisibility, and HandleEvent are no-ops.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Monitor{
		cfg:     cfg,
		clock:   cfg.Clock,
		enabled: cfg.Mode != match.ModeAI,
		entries: make(map[string]Entry),
		done:    make(chan struct{}),
	}
}

// Start announces the local player's initial presence and begins the
// 1-second countdown ticker. Every Start must be paired with a Stop.
func (m *Monitor) Start() {
	if !m.enabled {
		return
	}
	m.SetVisibility(true)
	go m.runTicker()
}

// Stop halts the ticker. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// SetVisibility relays a local page-visibility change to the server.
func (m *Monitor) SetVisibility(visible bool) {
	if !m.enabled {
		return
	}
	status := StatusOnline
	if !visible {
		status = StatusOffline
	}
	intent := channel.NewIntent(channel.IntentPresenceUpdate, channel.PresencePayload{
		GameID: m.cfg.MatchID,
		Status: string(status),
	})
	if err := m.cfg.Conn.Emit(intent); err != nil {
		log.Warn().Err(err).Str("status", string(status)).Msg("presence update emit failed")
	}
}

type countdownUpdate struct {
	Username  string `json:"username"`
	Countdown *int   `json:"countdown"`
	Status    Status `json:"status"`
}

type forfeitNotice struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// HandleEvent consumes a server presence or forfeit event. Incoming events
// overwrite the participant's entire entry; partial fields are never merged.
func (m *Monitor) HandleEvent(ev channel.Event) {
	if !m.enabled {
		return
	}
	switch ev.Type {
	case channel.EventCountdownUpdate:
		var cu countdownUpdate
		if err := json.Unmarshal(ev.Data, &cu); err != nil {
			log.Error().Err(err).Msg("undecodable countdown update")
			return
		}
		m.applyUpdate(cu)

	case channel.EventForfeitGame:
		var fn forfeitNotice
		if err := json.Unmarshal(ev.Data, &fn); err != nil {
			log.Error().Err(err).Msg("undecodable forfeit notice")
			return
		}
		f := Forfeit{Username: fn.Username, Message: fn.Message}
		m.mu.Lock()
		m.forfeit = &f
		m.mu.Unlock()
		log.Info().Str("username", f.Username).Msg("forfeit declared by server")
		if m.cfg.OnForfeit != nil {
			m.cfg.OnForfeit(f)
		}
	}
}

func (m *Monitor) applyUpdate(cu countdownUpdate) {
	if cu.Username == "" {
		return
	}
	entry := Entry{Status: cu.Status}
	if cu.Countdown != nil {
		v := *cu.Countdown
		if v < 0 {
			v = 0
		}
		entry.Countdown = &v
	}

	m.mu.Lock()
	m.entries[cu.Username] = entry
	m.mu.Unlock()

	log.Debug().
		Str("username", cu.Username).
		Str("status", string(cu.Status)).
		Msg("presence entry overwritten")
	if m.cfg.OnChange != nil {
		m.cfg.OnChange(Change{Username: cu.Username, Status: cu.Status, Countdown: entry.Countdown})
	}
}

// Entries returns a copy of the current presence map.
func (m *Monitor) Entries() map[string]Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Entry, len(m.entries))
	for username, entry := range m.entries {
		if entry.Countdown != nil {
			v := *entry.Countdown
			entry.Countdown = &v
		}
		out[username] = entry
	}
	return out
}

// ForfeitMessage returns the human-readable forfeit message, if one arrived.
func (m *Monitor) ForfeitMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forfeit == nil {
		return ""
	}
	return m.forfeit.Message
}

func (m *Monitor) runTicker() {
	ticker := m.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			m.tick()
		case <-m.done:
			return
		}
	}
}

// tick decrements every running countdown by one, stopping at zero. The
// entry is retained at zero until an authoritative forfeit or cancel event.
func (m *Monitor) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for username, entry := range m.entries {
		if entry.Countdown == nil || *entry.Countdown == 0 {
			continue
		}
		v := *entry.Countdown - 1
		entry.Countdown = &v
		m.entries[username] = entry
	}
}
