package channel

// Outbound intent payloads, matching the wire contract the server validates.

// StartMatchingPayload begins the matchmaking handshake.
type StartMatchingPayload struct {
	Username    string `json:"player_username"`
	DisplayName string `json:"player_name"`
	SessionID   string `json:"session_id"`
}

// MovePayload submits a move intent. The server re-validates turn ownership
// and column fullness independently of any client-side check.
type MovePayload struct {
	GameID string `json:"game_id"`
	Player string `json:"player"`
	Column int    `json:"column"`
}

// PresencePayload relays a local visibility change.
type PresencePayload struct {
	GameID string `json:"game_id"`
	Status string `json:"status"`
}

// RoomPayload enters or leaves a match room. Status carries the joining
// player's initial presence.
type RoomPayload struct {
	GameID string `json:"game_id"`
	Status string `json:"status,omitempty"`
}

// RematchPayload addresses a rematch intent at a finished match.
type RematchPayload struct {
	GameID string `json:"game_id"`
}
