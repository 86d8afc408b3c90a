package match

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	return &Snapshot{
		ID:                "match-1",
		Player1:           "Alice",
		Player1Username:   "alice-1",
		Player2:           "Bob",
		Player2Username:   "bob-2",
		MoveNumber:        0,
		Board:             NewBoard(),
		NextMoverUsername: "alice-1",
		Mode:              ModeOnline,
	}
}

func TestNewBoardDimensions(t *testing.T) {
	board := NewBoard()
	if len(board) != BoardRows {
		t.Fatalf("want %d rows, got %d", BoardRows, len(board))
	}
	for i, row := range board {
		if len(row) != BoardCols {
			t.Fatalf("row %d: want %d cells, got %d", i, BoardCols, len(row))
		}
		for j, cell := range row {
			if cell != CellEmpty {
				t.Fatalf("cell %d,%d not empty: %v", i, j, cell)
			}
		}
	}
}

func TestValidateRejectsBadShapes(t *testing.T) {
	snap := newTestSnapshot(t)
	if err := snap.Validate(); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}

	noID := newTestSnapshot(t)
	noID.ID = ""
	if err := noID.Validate(); err == nil {
		t.Fatalf("expected error for missing id")
	}

	shortBoard := newTestSnapshot(t)
	shortBoard.Board = shortBoard.Board[:4]
	if err := shortBoard.Validate(); err == nil {
		t.Fatalf("expected error for %d-row board", len(shortBoard.Board))
	}

	raggedRow := newTestSnapshot(t)
	raggedRow.Board[2] = raggedRow.Board[2][:3]
	if err := raggedRow.Validate(); err == nil {
		t.Fatalf("expected error for ragged row")
	}

	negative := newTestSnapshot(t)
	negative.MoveNumber = -1
	if err := negative.Validate(); err == nil {
		t.Fatalf("expected error for negative move number")
	}
}

func TestFinished(t *testing.T) {
	snap := newTestSnapshot(t)
	if snap.Finished() {
		t.Fatalf("fresh snapshot should not be finished")
	}

	won := newTestSnapshot(t)
	w := OutcomeSeat1
	won.Winner = &w
	if !won.Finished() {
		t.Fatalf("snapshot with winner should be finished")
	}

	timedOut := newTestSnapshot(t)
	now := time.Now()
	timedOut.FinishedAt = &now
	if !timedOut.Finished() {
		t.Fatalf("snapshot with finished_at should be finished")
	}
}

func TestColumnPlayable(t *testing.T) {
	snap := newTestSnapshot(t)
	if !snap.ColumnPlayable(3) {
		t.Fatalf("empty column should be playable")
	}
	if snap.ColumnPlayable(-1) || snap.ColumnPlayable(BoardCols) {
		t.Fatalf("out-of-range columns must never be playable")
	}

	// Fill column 3 top to bottom; fullness is decided by the top cell only.
	for row := 0; row < BoardRows; row++ {
		snap.Board[row][3] = CellSeat1
	}
	if snap.ColumnPlayable(3) {
		t.Fatalf("full column reported playable")
	}

	partial := newTestSnapshot(t)
	for row := 1; row < BoardRows; row++ {
		partial.Board[row][0] = CellSeat2
	}
	if !partial.ColumnPlayable(0) {
		t.Fatalf("column with open top cell should be playable")
	}
}

func TestIsPlayableGates(t *testing.T) {
	snap := newTestSnapshot(t)
	if !snap.IsPlayable(0, 0) {
		t.Fatalf("fresh two-player match should be playable")
	}

	waiting := newTestSnapshot(t)
	waiting.Player2Username = ""
	if waiting.IsPlayable(0, 0) {
		t.Fatalf("half-filled match should not be playable")
	}

	done := newTestSnapshot(t)
	w := OutcomeDraw
	done.Winner = &w
	if done.IsPlayable(0, 0) {
		t.Fatalf("finished match should not be playable")
	}
}

func TestSeatOfAndOpponent(t *testing.T) {
	snap := newTestSnapshot(t)
	if seat, ok := snap.SeatOf("alice-1"); !ok || seat != 1 {
		t.Fatalf("seat of alice-1: want 1, got %d (ok=%v)", seat, ok)
	}
	if seat, ok := snap.SeatOf("bob-2"); !ok || seat != 2 {
		t.Fatalf("seat of bob-2: want 2, got %d (ok=%v)", seat, ok)
	}
	if _, ok := snap.SeatOf("stranger"); ok {
		t.Fatalf("stranger should have no seat")
	}
	display, username, ok := snap.OpponentOf("alice-1")
	if !ok || username != "bob-2" || display != "Bob" {
		t.Fatalf("opponent of alice-1: want Bob/bob-2, got %q/%q (ok=%v)", display, username, ok)
	}
}

func TestWinnerUsername(t *testing.T) {
	snap := newTestSnapshot(t)
	if _, ok := snap.WinnerUsername(); ok {
		t.Fatalf("unfinished match has no winner")
	}

	w := OutcomeSeat2
	snap.Winner = &w
	if got, ok := snap.WinnerUsername(); !ok || got != "bob-2" {
		t.Fatalf("want bob-2, got %q (ok=%v)", got, ok)
	}

	draw := newTestSnapshot(t)
	d := OutcomeDraw
	draw.Winner = &d
	if _, ok := draw.WinnerUsername(); ok {
		t.Fatalf("draw has no winner username")
	}
}

func TestSnapshotWireFormat(t *testing.T) {
	raw := `{
		"id": "m-9",
		"player_1": "Alice",
		"player_1_username": "alice-1",
		"player_2": "Bob",
		"player_2_username": "bob-2",
		"move_number": 3,
		"board": [[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,2,0,0,0,0,0],[1,1,3,0,0,0,0]],
		"next_player_to_move_username": "bob-2",
		"winner": null,
		"finished_at": null,
		"mode": "online"
	}`
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if snap.NextMoverUsername != "bob-2" {
		t.Fatalf("next mover: want bob-2, got %q", snap.NextMoverUsername)
	}
	if snap.Board[5][2] != CellWinning {
		t.Fatalf("highlighted cell did not decode, got %v", snap.Board[5][2])
	}
	cells := snap.WinningCells()
	if len(cells) != 1 || cells[0].Row != 5 || cells[0].Col != 2 {
		t.Fatalf("winning cells: want (5,2), got %v", cells)
	}
}
