package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"acquire-server/internal/acquire"
)

var (
	ErrRoomNotFound       = errors.New("ROOM_NOT_FOUND: Game not found")
	ErrGameAlreadyStarted = errors.New("GAME_ALREADY_STARTED: Game has already started")
	ErrRoomFull           = errors.New("ROOM_FULL: Table is full")
	ErrUsernameInvalid    = errors.New("USERNAME_INVALID: Username must be 1-20 characters")
	ErrUsernameTaken      = errors.New("USERNAME_TAKEN: Username already taken")
	ErrNotInGame          = errors.New("NOT_IN_GAME: No active game session")
	ErrNotCreator         = errors.New("NOT_CREATOR: Only the table creator can do that")
	ErrNotEnoughPlayers   = errors.New("NOT_ENOUGH_PLAYERS: At least two players are needed")
	ErrNotAllReady        = errors.New("NOT_ALL_READY: Not all players are ready")
	ErrInvalidTableSize   = errors.New("INVALID_TABLE_SIZE: Tables seat 2 to 6 players")
	ErrGameNotStarted     = errors.New("GAME_NOT_STARTED: Game hasn't started yet")
	ErrGamePaused         = errors.New("GAME_PAUSED: Game is paused due to disconnection")
	ErrGameCompleted      = errors.New("GAME_COMPLETED: Game has ended")
	ErrUseDisconnect      = errors.New("GAME_STARTED: Seats are held once the game starts")
)

const (
	maxUsernameLength = 20
	lobbyLifetime     = 10 * time.Minute
)

type GameStatus string

const (
	StatusLobby     GameStatus = "lobby"
	StatusPlaying   GameStatus = "playing"
	StatusPaused    GameStatus = "paused"
	StatusCompleted GameStatus = "completed"
)

type TableConfig struct {
	MaxPlayers    int  `json:"maxPlayers"`
	RandomSeating bool `json:"randomSeating"`
}

type PlayerSlot struct {
	PlayerID  string    `json:"playerId"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	Connected bool      `json:"connected"`
	Ready     bool      `json:"ready"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// ActiveGame is one table: the lobby seats and, once started, the game.
// mu guards every field; the rules engine is not safe for concurrent use.
type ActiveGame struct {
	mu sync.Mutex

	Game        *acquire.Game `json:"game,omitempty"`
	GameID      string        `json:"gameId"`
	RoomCode    string        `json:"roomCode"`
	Config      TableConfig   `json:"config"`
	Status      GameStatus    `json:"status"`
	Players     []PlayerSlot  `json:"players"`
	Revision    int64         `json:"revision"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	LobbyExpiry time.Time     `json:"lobbyExpiry"`

	// savedRevision is the revision the store holds; loggedSeq the last log
	// entry written to it.
	savedRevision int64
	loggedSeq     int
}

// UnmarshalJSON restores a stored table, running the game through
// acquire.Decode so a damaged blob is rejected.
func (ag *ActiveGame) UnmarshalJSON(data []byte) error {
	type alias ActiveGame
	aux := struct {
		*alias
		Game json.RawMessage `json:"game,omitempty"`
	}{alias: (*alias)(ag)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ag.Game = nil
	if len(aux.Game) > 0 && string(aux.Game) != "null" {
		g, err := acquire.Decode(aux.Game)
		if err != nil {
			return err
		}
		ag.Game = g
	}
	ag.savedRevision = ag.Revision
	if ag.Game != nil {
		ag.loggedSeq = len(ag.Game.Log)
	}
	return nil
}

func (ag *ActiveGame) touch(now time.Time) {
	ag.Revision++
	ag.UpdatedAt = now
}

// Dirty reports whether the table holds changes the store has not seen.
func (ag *ActiveGame) Dirty() bool {
	return ag.Revision != ag.savedRevision
}

func (ag *ActiveGame) slotByToken(token string) (int, *PlayerSlot) {
	for i := range ag.Players {
		if ag.Players[i].Token == token {
			return i, &ag.Players[i]
		}
	}
	return -1, nil
}

func (ag *ActiveGame) slotByID(playerID string) *PlayerSlot {
	for i := range ag.Players {
		if ag.Players[i].PlayerID == playerID {
			return &ag.Players[i]
		}
	}
	return nil
}

func (ag *ActiveGame) allReady() bool {
	if len(ag.Players) == 0 {
		return false
	}
	for _, slot := range ag.Players {
		if !slot.Ready {
			return false
		}
	}
	return true
}

func (ag *ActiveGame) canStart() bool {
	return ag.Status == StatusLobby && len(ag.Players) >= 2 && ag.allReady()
}

func (ag *ActiveGame) allConnected() bool {
	for _, slot := range ag.Players {
		if !slot.Connected {
			return false
		}
	}
	return true
}

// restore replaces the table contents with a copy loaded from the store.
func (ag *ActiveGame) restore(from *ActiveGame) {
	ag.Game = from.Game
	ag.GameID = from.GameID
	ag.Config = from.Config
	ag.Status = from.Status
	ag.Revision = from.Revision
	ag.CreatedAt = from.CreatedAt
	ag.UpdatedAt = from.UpdatedAt
	ag.LobbyExpiry = from.LobbyExpiry
	ag.savedRevision = from.Revision
	ag.loggedSeq = from.loggedSeq

	// Connection state is local to this process.
	connected := make(map[string]bool, len(ag.Players))
	for _, slot := range ag.Players {
		connected[slot.Token] = slot.Connected
	}
	ag.Players = make([]PlayerSlot, len(from.Players))
	for i, slot := range from.Players {
		slot.Connected = connected[slot.Token]
		ag.Players[i] = slot
	}
}

type GameManager struct {
	games     map[string]*ActiveGame
	usedCodes map[string]bool
	rules     acquire.Rules
	now       func() time.Time
	mu        sync.RWMutex
}

func NewGameManager(rules acquire.Rules) *GameManager {
	return &GameManager{
		games:     make(map[string]*ActiveGame),
		usedCodes: make(map[string]bool),
		rules:     rules,
		now:       time.Now,
	}
}

func (gm *GameManager) CreateGame(username string, maxPlayers int, randomSeating bool) (*ActiveGame, PlayerSlot, error) {
	username, err := validateUsernameFormat(username)
	if err != nil {
		return nil, PlayerSlot{}, err
	}
	if maxPlayers == 0 {
		maxPlayers = gm.rules.MaxPlayers
	}
	if maxPlayers < gm.rules.MinPlayers || maxPlayers > gm.rules.MaxPlayers {
		return nil, PlayerSlot{}, ErrInvalidTableSize
	}

	gm.mu.Lock()
	defer gm.mu.Unlock()

	roomCode, err := GenerateRoomCode(gm.usedCodes)
	if err != nil {
		return nil, PlayerSlot{}, err
	}
	gm.usedCodes[roomCode] = true

	now := gm.now()
	slot := PlayerSlot{
		PlayerID:  uuid.NewString(),
		Username:  username,
		Token:     uuid.NewString(),
		Connected: true,
		JoinedAt:  now,
	}
	game := &ActiveGame{
		RoomCode: roomCode,
		Status:   StatusLobby,
		Config: TableConfig{
			MaxPlayers:    maxPlayers,
			RandomSeating: randomSeating,
		},
		Players:     []PlayerSlot{slot},
		Revision:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
		LobbyExpiry: now.Add(lobbyLifetime),
	}
	gm.games[roomCode] = game

	return game, slot, nil
}

func (gm *GameManager) JoinGame(roomCode, username string) (*ActiveGame, PlayerSlot, int, error) {
	roomCode = NormalizeRoomCode(roomCode)
	if err := ValidateRoomCode(roomCode); err != nil {
		return nil, PlayerSlot{}, -1, err
	}
	username, err := validateUsernameFormat(username)
	if err != nil {
		return nil, PlayerSlot{}, -1, err
	}

	game, err := gm.GetGame(roomCode)
	if err != nil {
		return nil, PlayerSlot{}, -1, err
	}

	game.mu.Lock()
	defer game.mu.Unlock()

	if game.Status != StatusLobby {
		return nil, PlayerSlot{}, -1, ErrGameAlreadyStarted
	}
	for _, slot := range game.Players {
		if strings.EqualFold(slot.Username, username) {
			return nil, PlayerSlot{}, -1, ErrUsernameTaken
		}
	}
	if len(game.Players) >= game.Config.MaxPlayers {
		return nil, PlayerSlot{}, -1, fmt.Errorf("%w (%d/%d players)", ErrRoomFull, len(game.Players), game.Config.MaxPlayers)
	}

	now := gm.now()
	slot := PlayerSlot{
		PlayerID:  uuid.NewString(),
		Username:  username,
		Token:     uuid.NewString(),
		Connected: true,
		JoinedAt:  now,
	}
	game.Players = append(game.Players, slot)
	game.LobbyExpiry = now.Add(lobbyLifetime)
	game.touch(now)

	return game, slot, len(game.Players) - 1, nil
}

// SetReady flips a player's ready flag and reports whether the table could
// now be started.
func (gm *GameManager) SetReady(game *ActiveGame, token string, ready bool) (bool, error) {
	game.mu.Lock()
	defer game.mu.Unlock()

	if game.Status != StatusLobby {
		return false, ErrGameAlreadyStarted
	}
	_, slot := game.slotByToken(token)
	if slot == nil {
		return false, ErrNotInGame
	}

	slot.Ready = ready
	game.touch(gm.now())

	return game.canStart(), nil
}

// StartGame seats the lobby in the rules engine. Only the creator (seat 0)
// may start, once at least two players are seated and all are ready.
func (gm *GameManager) StartGame(game *ActiveGame, token string) error {
	game.mu.Lock()
	defer game.mu.Unlock()

	if game.Status != StatusLobby {
		return ErrGameAlreadyStarted
	}
	seat, _ := game.slotByToken(token)
	switch {
	case seat == -1:
		return ErrNotInGame
	case seat != 0:
		return ErrNotCreator
	case len(game.Players) < gm.rules.MinPlayers:
		return ErrNotEnoughPlayers
	case !game.allReady():
		return ErrNotAllReady
	}

	seats := make([]acquire.Seat, len(game.Players))
	for i, slot := range game.Players {
		seats[i] = acquire.Seat{ID: slot.PlayerID, Name: slot.Username}
	}

	opts := []acquire.Option{acquire.WithRules(gm.rules)}
	if game.Config.RandomSeating {
		opts = append(opts, acquire.WithRandomSeating())
	}

	gameID := uuid.NewString()
	g, err := acquire.NewGame(gameID, seats, opts...)
	if err != nil {
		return err
	}

	game.Game = g
	game.GameID = gameID
	game.Status = StatusPlaying
	if !game.allConnected() {
		game.Status = StatusPaused
	}
	game.touch(gm.now())

	return nil
}

// LeaveGame gives up a lobby seat. Seats after it shift down, so the next
// player in line becomes the creator when seat 0 leaves.
func (gm *GameManager) LeaveGame(game *ActiveGame, token string) (PlayerSlot, error) {
	game.mu.Lock()
	defer game.mu.Unlock()

	if game.Status != StatusLobby {
		return PlayerSlot{}, ErrUseDisconnect
	}
	seat, slot := game.slotByToken(token)
	if slot == nil {
		return PlayerSlot{}, ErrNotInGame
	}

	left := *slot
	game.Players = append(game.Players[:seat], game.Players[seat+1:]...)

	now := gm.now()
	if seat == 0 && len(game.Players) > 0 {
		game.Players[0].Ready = false
	}
	if len(game.Players) == 0 {
		game.LobbyExpiry = now
	}
	game.touch(now)

	return left, nil
}

// ExecuteMove runs a move for a seated player under the table lock.
func (gm *GameManager) ExecuteMove(game *ActiveGame, playerID string, move acquire.Move) (acquire.MoveResponse, error) {
	game.mu.Lock()
	defer game.mu.Unlock()

	switch game.Status {
	case StatusLobby:
		return acquire.MoveResponse{}, ErrGameNotStarted
	case StatusPaused:
		return acquire.MoveResponse{}, ErrGamePaused
	case StatusCompleted:
		return acquire.MoveResponse{}, ErrGameCompleted
	}

	move.PlayerID = playerID
	response := game.Game.ExecuteMove(move)
	if !response.Success {
		return response, nil
	}

	if game.Game.Over() {
		game.Status = StatusCompleted
	}
	game.touch(gm.now())

	return response, nil
}

func (gm *GameManager) GetGame(roomCode string) (*ActiveGame, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	game, exists := gm.games[NormalizeRoomCode(roomCode)]
	if !exists {
		return nil, ErrRoomNotFound
	}

	return game, nil
}

// ReconnectPlayer marks the token's seat connected again and resumes a paused
// game once every seat is back.
func (gm *GameManager) ReconnectPlayer(game *ActiveGame, token string) (PlayerSlot, bool, error) {
	game.mu.Lock()
	defer game.mu.Unlock()

	_, slot := game.slotByToken(token)
	if slot == nil {
		return PlayerSlot{}, false, ErrTokenNotFound
	}

	slot.Connected = true
	resumed := false
	if game.Status == StatusPaused && game.allConnected() {
		game.Status = StatusPlaying
		resumed = true
	}
	game.touch(gm.now())

	return *slot, resumed, nil
}

// MarkPlayerDisconnected flags the seat as gone and pauses a running game.
func (gm *GameManager) MarkPlayerDisconnected(game *ActiveGame, token string) (PlayerSlot, bool, error) {
	game.mu.Lock()
	defer game.mu.Unlock()

	_, slot := game.slotByToken(token)
	if slot == nil {
		return PlayerSlot{}, false, ErrTokenNotFound
	}

	slot.Connected = false
	paused := false
	if game.Status == StatusPlaying {
		game.Status = StatusPaused
		paused = true
	}
	game.touch(gm.now())

	return *slot, paused, nil
}

// AddGame registers a table restored from the store.
func (gm *GameManager) AddGame(game *ActiveGame) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	gm.games[game.RoomCode] = game
	gm.usedCodes[game.RoomCode] = true
}

func (gm *GameManager) RemoveGame(roomCode string) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	delete(gm.games, roomCode)
	delete(gm.usedCodes, roomCode)
}

func (gm *GameManager) Games() []*ActiveGame {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	games := make([]*ActiveGame, 0, len(gm.games))
	for _, g := range gm.games {
		games = append(games, g)
	}
	return games
}

func (gm *GameManager) SetUsedCodes(codes map[string]bool) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	for code, inUse := range codes {
		if inUse {
			gm.usedCodes[code] = true
		}
	}
}

// ExpiredLobbies returns lobbies past their expiry with nobody connected.
func (gm *GameManager) ExpiredLobbies(now time.Time) []string {
	var expired []string
	for _, game := range gm.Games() {
		game.mu.Lock()
		if game.Status == StatusLobby && now.After(game.LobbyExpiry) && !anyConnected(game.Players) {
			expired = append(expired, game.RoomCode)
		}
		game.mu.Unlock()
	}
	return expired
}

func anyConnected(slots []PlayerSlot) bool {
	for _, s := range slots {
		if s.Connected {
			return true
		}
	}
	return false
}

func validateUsernameFormat(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLength {
		return "", ErrUsernameInvalid
	}
	return username, nil
}
