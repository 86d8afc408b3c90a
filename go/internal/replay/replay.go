// Package replay plays a finished match's move history back as a timed
// animation. Replay is purely local: frames are derived from the recorded
// history and never feed back into the session store.
package replay

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fourfury/go/internal/match"
)

// Frame is one step of the replay: the board after a move was applied.
type Frame struct {
	MoveNumber int
	Board      [][]match.Cell
}

// Player animates a move history, delivering one frame per interval to the
// caller-supplied callback.
type Player struct {
	history  []match.Move
	interval time.Duration
	clock    clockwork.Clock
	onFrame  func(Frame)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewPlayer creates a replay player for the given history.
func NewPlayer(history []match.Move, interval time.Duration, clock clockwork.Clock, onFrame func(Frame)) *Player {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Player{
		history:  history,
		interval: interval,
		clock:    clock,
		onFrame:  onFrame,
	}
}

// Start begins the animation. A replay that is already running is left
// alone.
func (p *Player) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh
	p.mu.Unlock()

	go p.run(stop)
}

// Stop halts the animation before completion.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stopCh)
}

func (p *Player) run(stop chan struct{}) {
	board := match.NewBoard()
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for i, mv := range p.history {
		select {
		case <-ticker.Chan():
		case <-stop:
			return
		}

		if mv.Row < 0 || mv.Row >= match.BoardRows || mv.Col < 0 || mv.Col >= match.BoardCols {
			log.Warn().Int("row", mv.Row).Int("col", mv.Col).Msg("skipping out-of-range history move")
			continue
		}
		board[mv.Row][mv.Col] = mv.Owner
		p.onFrame(Frame{MoveNumber: i + 1, Board: cloneBoard(board)})
	}
}

func cloneBoard(board [][]match.Cell) [][]match.Cell {
	out := make([][]match.Cell, len(board))
	for i, row := range board {
		out[i] = append([]match.Cell(nil), row...)
	}
	return out
}
