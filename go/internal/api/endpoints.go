package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcdev12/fourfury/go/internal/match"
)

// Session is the identity established by the bootstrap call. The stable
// username keys every subsequent matchmaking and move intent.
type Session struct {
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
}

type createMatchRequest struct {
	PlayerName   string     `json:"player_name"`
	Mode         match.Mode `json:"mode"`
	AIDifficulty int        `json:"ai_difficulty,omitempty"`
}

type joinMatchRequest struct {
	PlayerName string `json:"player_name"`
}

// CreateSession establishes an identity with the backend and returns the
// stable username and opaque session id. The session cookie lands in the
// client's jar and rides along on later calls.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.post(ctx, "/games/create_session/", nil, &s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if s.Username == "" || s.SessionID == "" {
		return nil, fmt.Errorf("create session: incomplete response")
	}
	return &s, nil
}

// GetMatch fetches the current authoritative snapshot for a match. Non-success
// responses come back as distinguished *apperr.Error values so the UI can
// render the correct terminal state.
func (c *Client) GetMatch(ctx context.Context, matchID string) (*match.Snapshot, error) {
	var snap match.Snapshot
	if err := c.get(ctx, fmt.Sprintf("/games/%s/", matchID), &snap); err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("get match %s: %w", matchID, err)
	}
	return &snap, nil
}

// CreateMatch starts a new match with the caller as seat 1.
func (c *Client) CreateMatch(ctx context.Context, playerName string, mode match.Mode, aiDifficulty int) (*match.Snapshot, error) {
	playerName = strings.TrimSpace(playerName)
	if err := match.ValidatePlayerName(playerName); err != nil {
		return nil, err
	}
	req := createMatchRequest{PlayerName: playerName, Mode: mode}
	if mode == match.ModeAI {
		req.AIDifficulty = aiDifficulty
	}
	var snap match.Snapshot
	if err := c.post(ctx, "/games/start/", req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// JoinMatch binds the caller to seat 2 of an existing match (the
// share-a-link flow).
func (c *Client) JoinMatch(ctx context.Context, matchID, playerName string) (*match.Snapshot, error) {
	playerName = strings.TrimSpace(playerName)
	if err := match.ValidatePlayerName(playerName); err != nil {
		return nil, err
	}
	var snap match.Snapshot
	if err := c.post(ctx, fmt.Sprintf("/games/%s/join/", matchID), joinMatchRequest{PlayerName: playerName}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
