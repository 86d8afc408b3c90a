// Package moves gates local move submission on turn ownership and column
// fullness before emitting a move intent. State only ever changes through
// confirmed server updates; there is no optimistic local board mutation.
package moves

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fourfury/go/internal/channel"
	"github.com/mcdev12/fourfury/go/internal/match"
)

// RejectReason explains why a move was not emitted. Rejections are
// informational, never hard errors, and never reach the network.
type RejectReason string

const (
	RejectChannelNotReady RejectReason = "channel-not-ready"
	RejectNotYourTurn     RejectReason = "not-your-turn"
	RejectColumnFull      RejectReason = "column-full"
)

// Result is the outcome of an AttemptMove call.
type Result struct {
	Emitted bool
	Reason  RejectReason
}

// SnapshotReader is the read-only view of the session store the controller
// needs.
type SnapshotReader interface {
	Snapshot() *match.Snapshot
}

// Emitter is the outbound half of the channel the controller needs.
type Emitter interface {
	Emit(channel.Intent) error
	Connected() bool
}

// Controller validates and emits move intents for the local player.
type Controller struct {
	conn     Emitter
	store    SnapshotReader
	username string
}

// NewController creates a move controller for the local stable username.
func NewController(conn Emitter, store SnapshotReader, username string) *Controller {
	return &Controller{conn: conn, store: store, username: username}
}

// AttemptMove emits a move intent for the given column when the channel is
// connected, a snapshot exists, it is the local player's turn, and the column
// has room. The client check is an optimization; the server re-validates
// every move independently.
func (c *Controller) AttemptMove(column int) Result {
	if !c.conn.Connected() {
		return c.reject(RejectChannelNotReady, column)
	}

	snap := c.store.Snapshot()
	if snap == nil {
		return c.reject(RejectChannelNotReady, column)
	}
	if snap.NextMoverUsername == "" || snap.NextMoverUsername != c.username {
		return c.reject(RejectNotYourTurn, column)
	}
	if !snap.ColumnPlayable(column) {
		return c.reject(RejectColumnFull, column)
	}

	intent := channel.NewIntent(channel.IntentMove, channel.MovePayload{
		GameID: snap.ID,
		Player: c.username,
		Column: column,
	})
	if err := c.conn.Emit(intent); err != nil {
		log.Warn().Err(err).Int("column", column).Msg("move intent emit failed")
		return Result{Reason: RejectChannelNotReady}
	}

	log.Debug().
		Str("match_id", snap.ID).
		Int("column", column).
		Int("move_number", snap.MoveNumber).
		Msg("move intent emitted")
	return Result{Emitted: true}
}

func (c *Controller) reject(reason RejectReason, column int) Result {
	log.Debug().Str("reason", string(reason)).Int("column", column).Msg("move rejected locally")
	return Result{Reason: reason}
}
