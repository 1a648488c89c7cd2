package server

import (
	"acquire-server/internal/acquire"
	"acquire-server/internal/board"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
// tygo:generate
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// CREATE TABLE (create_table)
// ============================================================================
// tygo:generate
type CreateTableRequest struct {
	Username      string `json:"username"`
	MaxPlayers    int    `json:"maxPlayers,omitempty"` // 0 means the server default
	RandomSeating bool   `json:"randomSeating"`
}

// tygo:generate
type CreateTableResponse struct {
	RoomCode string `json:"roomCode"`
	Token    string `json:"token"`
	PlayerID string `json:"playerId"`
}

// ============================================================================
// JOIN TABLE (join_table)
// ============================================================================
// tygo:generate
type JoinTableRequest struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

// tygo:generate
type JoinTableResponse struct {
	Success  bool   `json:"success"`
	Token    string `json:"token"`
	PlayerID string `json:"playerId"`
	Seat     int    `json:"seat"`
	Message  string `json:"message,omitempty"`
}

// ============================================================================
// RECONNECT (reconnect)
// ============================================================================
// tygo:generate
type ReconnectRequest struct {
	Token string `json:"token"`
}

// tygo:generate
type ReconnectResponse struct {
	Success  bool   `json:"success"`
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	Message  string `json:"message,omitempty"`
}

// ============================================================================
// SET READY (set_ready)
// ============================================================================
// tygo:generate
type SetReadyRequest struct {
	Ready bool `json:"ready"`
}

// ============================================================================
// START GAME (start_game) and LEAVE TABLE (leave_table)
// ============================================================================
// Both carry no payload; the connection's token identifies the player.

// ============================================================================
// LOBBY STATE (lobby_update broadcast)
// ============================================================================
// tygo:generate
type LobbyState struct {
	RoomCode      string        `json:"roomCode"`
	Players       []LobbyPlayer `json:"players"`
	PlayerCount   int           `json:"playerCount"`
	MaxPlayers    int           `json:"maxPlayers"`
	RandomSeating bool          `json:"randomSeating"`
	Status        string        `json:"status"`
	AllReady      bool          `json:"allReady"`
	CanStart      bool          `json:"canStart"`
	IsCreator     bool          `json:"isCreator"` // Personalized for each client
}

// tygo:generate
type LobbyPlayer struct {
	PlayerID  string `json:"playerId"`
	Username  string `json:"username"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
	IsYou     bool   `json:"isYou"` // Personalized for each client
}

// ============================================================================
// GAME STARTED (game_started broadcast)
// ============================================================================
// tygo:generate
type GameStartedNotification struct {
	Message string `json:"message"`
}

// ============================================================================
// EXECUTE MOVE (execute_move)
// ============================================================================
// tygo:generate
type MoveRequest struct {
	Type     acquire.MoveType          `json:"type"`
	Tile     *board.TileID             `json:"tile,omitempty"`
	Label    string                    `json:"label,omitempty"` // e.g. "5E", alternative to tile
	Hotel    acquire.HotelName         `json:"hotel,omitempty"`
	Decision acquire.Decision          `json:"decision,omitempty"`
	Order    map[acquire.HotelName]int `json:"order,omitempty"`
}

// tygo:generate
type MoveResultResponse struct {
	Success   bool               `json:"success"`
	Message   string             `json:"message,omitempty"`
	Code      string             `json:"code,omitempty"`
	Placement *acquire.Placement `json:"placement,omitempty"`
}

// ============================================================================
// GAME STATE (game_state broadcast)
// ============================================================================
// tygo:generate
type GameStateMessage struct {
	State    *acquire.ClientState `json:"state,omitempty"`
	Status   string               `json:"status"`
	Revision int64                `json:"revision"`
}

// ============================================================================
// CONNECTION STATUS (player_disconnected, player_reconnected, game_paused, game_resumed)
// ============================================================================
// tygo:generate
type PlayerStatusNotification struct {
	PlayerID  string `json:"playerId"`
	Username  string `json:"username"`
	Connected bool   `json:"connected"`
}

// tygo:generate
type GamePausedNotification struct {
	Message string `json:"message"`
}

// ============================================================================
// GAME ENDED (game_ended broadcast)
// ============================================================================
// tygo:generate
type GameEndedNotification struct {
	Standings []acquire.Standing `json:"standings"`
	Winner    string             `json:"winner"`
}
