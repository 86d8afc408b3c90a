package match

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Board dimensions for a standard FourFury grid.
const (
	BoardRows = 6
	BoardCols = 7
)

// Cell represents the state of a single board cell.
type Cell int8

const (
	CellEmpty   Cell = 0
	CellSeat1   Cell = 1
	CellSeat2   Cell = 2
	CellWinning Cell = 3
)

// Mode represents how a match is played.
type Mode string

const (
	ModeLocal  Mode = "human"
	ModeAI     Mode = "ai"
	ModeOnline Mode = "online"
)

// Outcome is the terminal result of a finished match.
type Outcome int8

const (
	OutcomeDraw  Outcome = 0
	OutcomeSeat1 Outcome = 1
	OutcomeSeat2 Outcome = 2
)

// Move is one entry of the recorded move history. History is used only for
// local replay animation; it never feeds back into the snapshot.
type Move struct {
	Row   int  `json:"row"`
	Col   int  `json:"column"`
	Owner Cell `json:"player"`
}

// Snapshot is the full authoritative match document at a point in time. It is
// always replaced wholesale on server updates, never field-patched locally.
type Snapshot struct {
	ID                string     `json:"id"`
	Player1           string     `json:"player_1"`
	Player1Username   string     `json:"player_1_username"`
	Player2           string     `json:"player_2"`
	Player2Username   string     `json:"player_2_username"`
	MoveNumber        int        `json:"move_number"`
	Board             [][]Cell   `json:"board"`
	NextMoverUsername string     `json:"next_player_to_move_username"`
	Winner            *Outcome   `json:"winner"`
	FinishedAt        *time.Time `json:"finished_at"`
	Mode              Mode       `json:"mode"`
	AIDifficulty      int        `json:"ai_difficulty,omitempty"`
	MoveHistory       []Move     `json:"move_history,omitempty"`
}

// NewBoard returns an empty board with the declared grid dimensions.
func NewBoard() [][]Cell {
	return lo.Times(BoardRows, func(_ int) []Cell {
		return make([]Cell, BoardCols)
	})
}

// Validate checks the structural invariants of a decoded snapshot.
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("snapshot missing match id")
	}
	if len(s.Board) != BoardRows {
		return fmt.Errorf("board has %d rows, want %d", len(s.Board), BoardRows)
	}
	for i, row := range s.Board {
		if len(row) != BoardCols {
			return fmt.Errorf("board row %d has %d cells, want %d", i, len(row), BoardCols)
		}
	}
	if s.MoveNumber < 0 {
		return fmt.Errorf("negative move number %d", s.MoveNumber)
	}
	return nil
}

// Finished reports whether the match has reached a terminal outcome.
func (s *Snapshot) Finished() bool {
	return s.Winner != nil || s.FinishedAt != nil
}

// BothSeatsFilled reports whether two participants are bound to the match.
func (s *Snapshot) BothSeatsFilled() bool {
	return s.Player1Username != "" && s.Player2Username != ""
}

// ColumnPlayable reports whether a move into the given column could land.
// Cells in a column fill bottom-up, so the top cell decides fullness.
// Out-of-range columns are never playable.
func (s *Snapshot) ColumnPlayable(col int) bool {
	if col < 0 || col >= BoardCols {
		return false
	}
	return s.Board[0][col] == CellEmpty
}

// IsPlayable reports whether the given cell may be acted on locally. The UI
// uses this to disable cells; the server independently re-validates every move.
func (s *Snapshot) IsPlayable(row, col int) bool {
	if s.Finished() || !s.BothSeatsFilled() {
		return false
	}
	if row < 0 || row >= BoardRows || col < 0 || col >= BoardCols {
		return false
	}
	return s.Board[row][col] == CellEmpty && s.ColumnPlayable(col)
}

// SeatOf returns the seat number (1 or 2) bound to the given stable username.
func (s *Snapshot) SeatOf(username string) (int, bool) {
	switch username {
	case "":
		return 0, false
	case s.Player1Username:
		return 1, true
	case s.Player2Username:
		return 2, true
	}
	return 0, false
}

// OpponentOf returns the display name and username of the other participant.
func (s *Snapshot) OpponentOf(username string) (displayName, opponentUsername string, ok bool) {
	seat, ok := s.SeatOf(username)
	if !ok {
		return "", "", false
	}
	if seat == 1 {
		return s.Player2, s.Player2Username, s.Player2Username != ""
	}
	return s.Player1, s.Player1Username, true
}

// WinnerUsername resolves the terminal outcome to a participant username.
// The second return is false for draws and in-progress matches.
func (s *Snapshot) WinnerUsername() (string, bool) {
	if s.Winner == nil {
		return "", false
	}
	switch *s.Winner {
	case OutcomeSeat1:
		return s.Player1Username, true
	case OutcomeSeat2:
		return s.Player2Username, true
	}
	return "", false
}

// WinningCells returns the coordinates of cells marked as part of the winning
// line, in row-major order.
func (s *Snapshot) WinningCells() []Move {
	var cells []Move
	for r, row := range s.Board {
		for c, cell := range row {
			if cell == CellWinning {
				cells = append(cells, Move{Row: r, Col: c, Owner: CellWinning})
			}
		}
	}
	return cells
}
