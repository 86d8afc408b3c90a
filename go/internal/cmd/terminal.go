package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fourfury/go/internal/api"
	"github.com/mcdev12/fourfury/go/internal/apperr"
	"github.com/mcdev12/fourfury/go/internal/channel"
	"github.com/mcdev12/fourfury/go/internal/client"
	"github.com/mcdev12/fourfury/go/internal/identity"
	"github.com/mcdev12/fourfury/go/internal/match"
	"github.com/mcdev12/fourfury/go/internal/moves"
	"github.com/mcdev12/fourfury/go/internal/presence"
	"github.com/mcdev12/fourfury/go/internal/replay"
)

// terminal renders matches to stdout and feeds stdin commands into the
// current session. It implements client.Navigator: rematch redirects land on
// the next channel, lobby redirects end the play loop.
type terminal struct {
	api      *api.Client
	dialer   channel.Dialer
	identity identity.Store
	username string

	next   chan string
	lobby  chan struct{}
	failed chan struct{}

	failOnce  sync.Once
	lobbyOnce sync.Once

	mu      sync.Mutex
	current *client.MatchSession
}

func newTerminal(apiClient *api.Client, dialer channel.Dialer, store identity.Store, username string) *terminal {
	return &terminal{
		api:      apiClient,
		dialer:   dialer,
		identity: store,
		username: username,
		next:     make(chan string, 1),
		lobby:    make(chan struct{}),
		failed:   make(chan struct{}),
	}
}

func (t *terminal) ToMatch(matchID string) {
	select {
	case t.next <- matchID:
	default:
		log.Warn().Str("match_id", matchID).Msg("dropping duplicate navigation")
	}
}

func (t *terminal) ToLobby() {
	t.lobbyOnce.Do(func() { close(t.lobby) })
}

func (t *terminal) fail(message string) {
	t.failOnce.Do(func() {
		log.Error().Msg(message)
		close(t.failed)
	})
}

// playFrom runs match sessions starting at matchID, following rematch
// redirects until the player quits or is sent back to the lobby.
func (t *terminal) playFrom(ctx context.Context, matchID string) {
	go t.inputLoop()

	for {
		sess := client.NewMatchSession(client.Config{
			API:        t.api,
			Dialer:     t.dialer,
			Identity:   t.identity,
			Nav:        t,
			Username:   t.username,
			OnSnapshot: t.render,
			OnForfeit: func(f presence.Forfeit) {
				fmt.Println(f.Message)
			},
		})
		t.setCurrent(sess)

		runErr := make(chan error, 1)
		go func() { runErr <- sess.Run(ctx, matchID) }()

		select {
		case err := <-runErr:
			t.setCurrent(nil)
			if err != nil {
				exitOnAppError(err, "match session ended")
			}
			// Clean close with no pending navigation means the player quit.
			select {
			case matchID = <-t.next:
				continue
			default:
				return
			}
		case nextID := <-t.next:
			sess.Close()
			<-runErr
			t.setCurrent(nil)
			matchID = nextID
		case <-t.lobby:
			sess.Close()
			<-runErr
			t.setCurrent(nil)
			fmt.Println("Returned to lobby.")
			return
		case <-ctx.Done():
			sess.Close()
			<-runErr
			t.setCurrent(nil)
			return
		}
	}
}

func (t *terminal) setCurrent(sess *client.MatchSession) {
	t.mu.Lock()
	t.current = sess
	t.mu.Unlock()
}

func (t *terminal) session() *client.MatchSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// inputLoop reads single-line commands for the lifetime of the process:
// columns 1-7 drop a piece, r/a/d/c drive rematch negotiation, p replays a
// finished match, q quits.
func (t *terminal) inputLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		sess := t.session()
		if sess == nil || cmd == "" {
			continue
		}

		switch cmd {
		case "q":
			sess.Close()
			return
		case "r":
			sess.Rematch().Request()
		case "a":
			sess.Rematch().Accept()
		case "d":
			sess.Rematch().Decline()
		case "c":
			sess.Rematch().Cancel()
		case "p":
			t.replayCurrent(sess)
		default:
			col, err := strconv.Atoi(cmd)
			if err != nil || col < 1 || col > match.BoardCols {
				fmt.Println("Commands: 1-7 drop, r rematch, a accept, d decline, c cancel, p replay, q quit")
				continue
			}
			res := sess.AttemptMove(col - 1)
			if !res.Emitted {
				fmt.Println(rejectNotice(sess, res.Reason).Message)
			}
		}
	}
}

func (t *terminal) replayCurrent(sess *client.MatchSession) {
	snap := sess.Snapshot()
	if snap == nil || !snap.Finished() || len(snap.MoveHistory) == 0 {
		fmt.Println("Nothing to replay yet.")
		return
	}
	player := replay.NewPlayer(snap.MoveHistory, 0, nil, func(f replay.Frame) {
		fmt.Printf("-- move %d --\n", f.MoveNumber)
		printBoard(f.Board)
	})
	player.Start()
}

func (t *terminal) render(snap *match.Snapshot) {
	fmt.Printf("\n%s vs %s (move %d)\n", displayName(snap, 1), displayName(snap, 2), snap.MoveNumber)
	printBoard(snap.Board)

	switch {
	case snap.Finished():
		if winner, ok := snap.WinnerUsername(); ok {
			fmt.Printf("Winner: %s\n", winner)
		} else {
			fmt.Println("Draw.")
		}
		fmt.Println("r to request a rematch, p to replay, q to quit.")
	case snap.NextMoverUsername == t.username:
		fmt.Println("Your turn. Pick a column (1-7).")
	default:
		fmt.Printf("Waiting for %s to move.\n", snap.NextMoverUsername)
	}
}

func displayName(snap *match.Snapshot, seat int) string {
	if seat == 1 {
		return defaultString(snap.Player1, "player 1")
	}
	return defaultString(snap.Player2, "waiting...")
}

func printBoard(board [][]match.Cell) {
	for _, row := range board {
		for _, cell := range row {
			fmt.Printf(" %s", cellGlyph(cell))
		}
		fmt.Println()
	}
	fmt.Println(" 1 2 3 4 5 6 7")
}

func cellGlyph(cell match.Cell) string {
	switch cell {
	case match.CellSeat1:
		return "X"
	case match.CellSeat2:
		return "O"
	case match.CellWinning:
		return "*"
	default:
		return "."
	}
}

// rejectNotice maps a move rejection to the transient popup the UI shows.
func rejectNotice(sess *client.MatchSession, reason moves.RejectReason) *apperr.Error {
	switch reason {
	case moves.RejectNotYourTurn:
		return apperr.Popup("Not your turn.", 3*time.Second)
	case moves.RejectColumnFull:
		return apperr.Popup("That column is full.", 3*time.Second)
	default:
		if sess.ConnState() == channel.StateConnecting {
			return apperr.Popup("Reconnecting to the server...", 3*time.Second)
		}
		return apperr.Popup("Not connected yet, try again.", 3*time.Second)
	}
}
