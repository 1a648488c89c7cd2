package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"acquire-server/internal/acquire"
	"acquire-server/internal/board"
)

var (
	ErrInvalidJSON    = errors.New("INVALID_JSON: Message is not valid JSON")
	ErrInvalidPayload = errors.New("INVALID_PAYLOAD: Payload does not match message type")
	ErrRateLimited    = errors.New("RATE_LIMITED: Too many messages, slow down")
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.HelloWorldHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /games/{code}/log", s.gameLogHandler)
	mux.HandleFunc("/websocket", s.websocketHandler)

	return corsMiddleware(requestLogger(s.logger, mux))
}

func (s *Server) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Acquire server"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]string{"status": "up"}
	if s.health != nil {
		stats = s.health(r.Context())
	}
	stats["games"] = strconv.Itoa(len(s.gameManager.Games()))
	stats["connections"] = strconv.Itoa(s.connectionManager.Count())

	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, stats)
}

// gameLogHandler serves the stored event log of a table; ?after=N returns
// only entries past sequence N.
func (s *Server) gameLogHandler(w http.ResponseWriter, r *http.Request) {
	code := NormalizeRoomCode(r.PathValue("code"))
	if err := ValidateRoomCode(code); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorPayload(err))
		return
	}

	after := 0
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorPayload(ErrInvalidPayload))
			return
		}
		after = n
	}

	entries, err := s.store.GameLog(r.Context(), code, after)
	if err != nil {
		s.logger.Error("failed to read game log", zap.String("room", code), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, ErrorMessage{Message: "Failed to read game log"})
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	connectionID := uuid.NewString()
	log := s.logger.With(zap.String("conn", connectionID))
	log.Debug("new connection")

	s.connectionManager.AddConnection(connectionID, socket)
	s.connectionHealth.UpdateActivity(connectionID)
	defer s.handleDisconnect(connectionID)

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Debug("connection read ended", zap.Error(err))
			return
		}
		s.connectionHealth.UpdateActivity(connectionID)

		if !s.rateLimiter.Allow(connectionID) {
			s.sendError(socket, ctx, ErrRateLimited)
			continue
		}

		if msgType != websocket.MessageText {
			log.Debug("non-text input ignored")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(socket, ctx, ErrInvalidJSON)
			continue
		}
		if err := ValidateMessageType(msg.Type); err != nil {
			s.sendError(socket, ctx, err)
			continue
		}

		log.Debug("message", zap.String("type", msg.Type))

		switch msg.Type {
		case "ping":
			s.handlePing(socket, ctx, connectionID, msg.Payload)
		case "create_table":
			s.handleCreateTable(socket, ctx, connectionID, msg.Payload)
		case "join_table":
			s.handleJoinTable(socket, ctx, connectionID, msg.Payload)
		case "reconnect":
			s.handleReconnect(socket, ctx, connectionID, msg.Payload)
		case "set_ready":
			s.handleSetReady(socket, ctx, connectionID, msg.Payload)
		case "start_game":
			s.handleStartGame(socket, ctx, connectionID, msg.Payload)
		case "leave_table":
			s.handleLeaveTable(socket, ctx, connectionID, msg.Payload)
		case "execute_move":
			s.handleExecuteMove(socket, ctx, connectionID, msg.Payload)
		}
	}
}

// handleDisconnect cleans up after a socket closes. A seat that has since
// been taken over by another connection is left alone.
func (s *Server) handleDisconnect(connectionID string) {
	player, bound := s.connectionManager.GetPlayer(connectionID)
	s.connectionManager.RemoveConnection(connectionID)
	s.rateLimiter.RemoveConnection(connectionID)
	s.connectionHealth.RemoveConnection(connectionID)
	if !bound {
		return
	}

	game, err := s.gameManager.GetGame(player.RoomCode)
	if err != nil {
		return
	}
	slot, paused, err := s.gameManager.MarkPlayerDisconnected(game, player.Token)
	if err != nil {
		// The player left the table before the socket closed.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	s.commit(ctx, game)

	s.logger.Info("player disconnected",
		zap.String("room", game.RoomCode),
		zap.String("player", slot.PlayerID),
		zap.Bool("paused", paused),
	)

	s.broadcastToLobby(game, "player_disconnected", PlayerStatusNotification{
		PlayerID:  slot.PlayerID,
		Username:  slot.Username,
		Connected: false,
	})
	if paused {
		s.broadcastToLobby(game, "game_paused", GamePausedNotification{
			Message: fmt.Sprintf("%s disconnected. Game paused.", slot.Username),
		})
	}
	s.broadcastLobbyIfOpen(game)
}

func (s *Server) handlePing(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	if err := s.sendMessage(socket, ctx, ServerMessage{Type: "pong", Payload: struct{}{}}); err != nil {
		s.logger.Debug("failed to send pong", zap.String("conn", connectionID), zap.Error(err))
	}
}

func (s *Server) sendMessage(socket *websocket.Conn, ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return socket.Write(ctx, websocket.MessageText, data)
}

func errorPayload(err error) ErrorMessage {
	return ErrorMessage{
		Message: err.Error(),
		Code:    acquire.ErrorCode(err),
	}
}

func (s *Server) sendError(socket *websocket.Conn, ctx context.Context, err error) {
	if werr := s.sendMessage(socket, ctx, ServerMessage{Type: "error", Payload: errorPayload(err)}); werr != nil {
		s.logger.Debug("failed to send error message", zap.Error(werr))
	}
}

// broadcastToLobby sends the same message to every connected seat.
func (s *Server) broadcastToLobby(game *ActiveGame, messageType string, payload any) {
	game.mu.Lock()
	tokens := make([]string, 0, len(game.Players))
	for _, slot := range game.Players {
		tokens = append(tokens, slot.Token)
	}
	game.mu.Unlock()

	msg := ServerMessage{Type: messageType, Payload: payload}
	for _, token := range tokens {
		conn := s.connectionManager.SocketForToken(token)
		if conn == nil {
			continue
		}
		if err := s.sendMessage(conn, context.Background(), msg); err != nil {
			s.logger.Debug("broadcast failed", zap.String("type", messageType), zap.Error(err))
		}
	}
}

// currentPlayer resolves the seat bound to a connection.
func (s *Server) currentPlayer(connectionID string) (PlayerConnection, *ActiveGame, error) {
	player, ok := s.connectionManager.GetPlayer(connectionID)
	if !ok {
		return PlayerConnection{}, nil, ErrNotInGame
	}
	game, err := s.gameManager.GetGame(player.RoomCode)
	if err != nil {
		return PlayerConnection{}, nil, err
	}
	return player, game, nil
}

func (s *Server) handleCreateTable(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	// Step 1: Parse request
	var req CreateTableRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, ErrInvalidPayload)
		return
	}

	// Step 2: Open the table
	game, slot, err := s.gameManager.CreateGame(req.Username, req.MaxPlayers, req.RandomSeating)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	// Step 3: Store it before the session, which references it
	if err := s.commit(ctx, game); err != nil {
		s.gameManager.RemoveGame(game.RoomCode)
		s.sendError(socket, ctx, err)
		return
	}
	s.registerSeat(ctx, connectionID, game.RoomCode, slot)
	if err := s.store.SaveRoomCode(ctx, game.RoomCode, true); err != nil {
		s.logger.Warn("failed to save room code", zap.String("room", game.RoomCode), zap.Error(err))
	}

	s.logger.Info("table created", zap.String("room", game.RoomCode), zap.String("player", slot.PlayerID))

	// Step 4: Send response to creator
	response := ServerMessage{
		Type: "table_created",
		Payload: CreateTableResponse{
			RoomCode: game.RoomCode,
			Token:    slot.Token,
			PlayerID: slot.PlayerID,
		},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		s.logger.Debug("failed to send table_created", zap.Error(err))
		return
	}

	// Step 5: Broadcast lobby state
	s.broadcastLobbyUpdate(game)
}

// registerSeat records a new seat's session and binds it to the connection.
func (s *Server) registerSeat(ctx context.Context, connectionID, roomCode string, slot PlayerSlot) {
	session := SessionInfo{
		Token:    slot.Token,
		RoomCode: roomCode,
		PlayerID: slot.PlayerID,
		Username: slot.Username,
	}
	s.sessionManager.StoreSession(session)
	if err := s.store.SaveSession(ctx, session); err != nil {
		s.logger.Warn("failed to save session", zap.String("room", roomCode), zap.Error(err))
	}
	s.connectionManager.BindPlayer(connectionID, PlayerConnection{
		RoomCode: roomCode,
		PlayerID: slot.PlayerID,
		Token:    slot.Token,
	})
}

func (s *Server) handleJoinTable(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req JoinTableRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, ErrInvalidPayload)
		return
	}

	game, slot, seat, err := s.gameManager.JoinGame(req.RoomCode, req.Username)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}
	if err := s.commit(ctx, game); err != nil {
		s.sendError(socket, ctx, err)
		return
	}
	s.registerSeat(ctx, connectionID, game.RoomCode, slot)

	response := ServerMessage{
		Type: "table_joined",
		Payload: JoinTableResponse{
			Success:  true,
			Token:    slot.Token,
			PlayerID: slot.PlayerID,
			Seat:     seat,
		},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		s.logger.Debug("failed to send table_joined", zap.Error(err))
		return
	}

	s.broadcastLobbyUpdate(game)
}

func (s *Server) handleReconnect(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	// Step 1: Parse payload
	var req ReconnectRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, ErrInvalidPayload)
		return
	}

	// Step 2: Validate session
	session, err := s.sessionManager.GetSession(req.Token)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}
	game, err := s.gameManager.GetGame(session.RoomCode)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	// Step 3: Take the seat over from any older connection
	oldConnectionID := s.connectionManager.BindPlayer(connectionID, PlayerConnection{
		RoomCode: session.RoomCode,
		PlayerID: session.PlayerID,
		Token:    session.Token,
	})
	if oldConnectionID != "" {
		if oldConn := s.connectionManager.GetConnection(oldConnectionID); oldConn != nil {
			s.sendMessage(oldConn, context.Background(), ServerMessage{
				Type:    "disconnected_elsewhere",
				Payload: GamePausedNotification{Message: "You connected on another device"},
			})
			go oldConn.Close(websocket.StatusNormalClosure, "Connected from another device")
		}
	}

	// Step 4: Mark the seat connected
	slot, resumed, err := s.gameManager.ReconnectPlayer(game, req.Token)
	if err != nil {
		s.connectionManager.UnmapToken(req.Token)
		s.sendError(socket, ctx, err)
		return
	}
	s.commit(ctx, game)

	// Step 5: Respond to the player
	response := ServerMessage{
		Type: "reconnected",
		Payload: ReconnectResponse{
			Success:  true,
			RoomCode: session.RoomCode,
			PlayerID: slot.PlayerID,
			Message:  "Successfully reconnected",
		},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		s.logger.Debug("failed to send reconnected", zap.Error(err))
	}

	// Step 6: Tell the table
	s.broadcastToLobby(game, "player_reconnected", PlayerStatusNotification{
		PlayerID:  slot.PlayerID,
		Username:  slot.Username,
		Connected: true,
	})
	if resumed {
		s.broadcastToLobby(game, "game_resumed", GamePausedNotification{Message: "Game resumed!"})
	}

	// Step 7: Bring everyone up to date, the returning player included
	s.broadcastCurrentState(game)
}

func (s *Server) handleSetReady(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	// Step 1: Parse request
	var req SetReadyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, ErrInvalidPayload)
		return
	}

	// Step 2: Find the player's table
	player, game, err := s.currentPlayer(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	// Step 3: Set ready state
	if _, err := s.gameManager.SetReady(game, player.Token, req.Ready); err != nil {
		s.sendError(socket, ctx, err)
		return
	}
	if err := s.commit(ctx, game); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	// Step 4: Broadcast lobby update
	s.broadcastLobbyUpdate(game)
}

func (s *Server) handleStartGame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	player, game, err := s.currentPlayer(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	if err := s.gameManager.StartGame(game, player.Token); err != nil {
		s.sendError(socket, ctx, err)
		return
	}
	if err := s.commit(ctx, game); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	s.logger.Info("game started", zap.String("room", game.RoomCode))

	s.broadcastToLobby(game, "game_started", GameStartedNotification{
		Message: "Game is starting! Good luck.",
	})
	s.broadcastGameState(game)
}

func (s *Server) handleLeaveTable(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	player, game, err := s.currentPlayer(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	if _, err := s.gameManager.LeaveGame(game, player.Token); err != nil {
		s.sendError(socket, ctx, err)
		return
	}
	s.commit(ctx, game)

	s.sessionManager.RemoveSession(player.Token)
	if err := s.store.DeleteSession(ctx, player.Token); err != nil {
		s.logger.Warn("failed to delete session", zap.String("room", game.RoomCode), zap.Error(err))
	}
	s.connectionManager.UnmapToken(player.Token)

	s.sendMessage(socket, ctx, ServerMessage{
		Type:    "table_left",
		Payload: GamePausedNotification{Message: "You left the table"},
	})
	s.broadcastLobbyUpdate(game)
}

// broadcastLobbyUpdate sends personalized lobby state to all players
func (s *Server) broadcastLobbyUpdate(game *ActiveGame) {
	game.mu.Lock()
	type outbound struct {
		token string
		state LobbyState
	}
	messages := make([]outbound, 0, len(game.Players))
	for _, slot := range game.Players {
		messages = append(messages, outbound{slot.Token, buildLobbyState(game, slot.Token)})
	}
	game.mu.Unlock()

	for _, m := range messages {
		conn := s.connectionManager.SocketForToken(m.token)
		if conn == nil {
			continue
		}
		if err := s.sendMessage(conn, context.Background(), ServerMessage{Type: "lobby_update", Payload: m.state}); err != nil {
			s.logger.Debug("failed to send lobby update", zap.Error(err))
		}
	}
}

func (s *Server) broadcastLobbyIfOpen(game *ActiveGame) {
	game.mu.Lock()
	lobby := game.Status == StatusLobby
	game.mu.Unlock()
	if lobby {
		s.broadcastLobbyUpdate(game)
	}
}

// broadcastCurrentState sends whichever view matches the table's stage.
func (s *Server) broadcastCurrentState(game *ActiveGame) {
	game.mu.Lock()
	started := game.Game != nil
	game.mu.Unlock()

	if started {
		s.broadcastGameState(game)
	} else {
		s.broadcastLobbyUpdate(game)
	}
}

// buildLobbyState creates the lobby view for one seat. The caller holds
// game.mu.
func buildLobbyState(game *ActiveGame, forToken string) LobbyState {
	players := make([]LobbyPlayer, len(game.Players))
	for i, slot := range game.Players {
		players[i] = LobbyPlayer{
			PlayerID:  slot.PlayerID,
			Username:  slot.Username,
			Ready:     slot.Ready,
			Connected: slot.Connected,
			IsYou:     slot.Token == forToken,
		}
	}

	return LobbyState{
		RoomCode:      game.RoomCode,
		Players:       players,
		PlayerCount:   len(players),
		MaxPlayers:    game.Config.MaxPlayers,
		RandomSeating: game.Config.RandomSeating,
		Status:        string(game.Status),
		AllReady:      game.allReady(),
		CanStart:      game.canStart(),
		IsCreator:     len(game.Players) > 0 && game.Players[0].Token == forToken,
	}
}

// broadcastGameState sends each seat its own view of the game.
func (s *Server) broadcastGameState(game *ActiveGame) {
	game.mu.Lock()
	if game.Game == nil {
		game.mu.Unlock()
		return
	}
	type outbound struct {
		token string
		state GameStateMessage
	}
	messages := make([]outbound, 0, len(game.Players))
	for _, slot := range game.Players {
		messages = append(messages, outbound{slot.Token, buildGameStateMessage(game, slot.PlayerID)})
	}
	game.mu.Unlock()

	for _, m := range messages {
		conn := s.connectionManager.SocketForToken(m.token)
		if conn == nil {
			continue
		}
		if err := s.sendMessage(conn, context.Background(), ServerMessage{Type: "game_state", Payload: m.state}); err != nil {
			s.logger.Debug("failed to send game state", zap.Error(err))
		}
	}
}

// buildGameStateMessage creates the game view for one player. The caller
// holds game.mu.
func buildGameStateMessage(game *ActiveGame, playerID string) GameStateMessage {
	msg := GameStateMessage{
		Status:   string(game.Status),
		Revision: game.Revision,
	}
	if game.Game != nil {
		msg.State = game.Game.GetClientState(playerID)
	}
	return msg
}

// toMove turns a request into a rules engine move. A label such as "5E" may
// stand in for the numeric tile.
func (req MoveRequest) toMove() (acquire.Move, error) {
	move := acquire.Move{
		Type:     req.Type,
		Hotel:    req.Hotel,
		Decision: req.Decision,
		Order:    req.Order,
	}
	switch {
	case req.Tile != nil:
		move.Tile = *req.Tile
	case req.Label != "":
		coord, err := board.ParseCoordinate(req.Label)
		if err != nil {
			return acquire.Move{}, err
		}
		id, err := coord.TileID()
		if err != nil {
			return acquire.Move{}, err
		}
		move.Tile = id
	}
	return move, nil
}

// handleExecuteMove processes game moves from players
func (s *Server) handleExecuteMove(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	// Step 1: Parse request
	var req MoveRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, ErrInvalidPayload)
		return
	}
	move, err := req.toMove()
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	// Step 2: Find the player's table
	player, game, err := s.currentPlayer(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	// Step 3: Execute under the table lock
	response, err := s.gameManager.ExecuteMove(game, player.PlayerID, move)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	// Step 4: Handle move failure
	if !response.Success {
		s.sendMessage(socket, ctx, ServerMessage{
			Type: "move_result",
			Payload: MoveResultResponse{
				Success:   false,
				Message:   response.Message,
				Code:      response.Code,
				Placement: response.Placement,
			},
		})
		return
	}

	// Step 5: Persist; a stale write means the move was lost to a newer state
	if err := s.commit(ctx, game); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	// Step 6: Announce the end of the game
	game.mu.Lock()
	completed := game.Status == StatusCompleted
	var ended GameEndedNotification
	if completed {
		ended = GameEndedNotification{Standings: game.Game.Standings, Winner: game.Game.Winner}
	}
	game.mu.Unlock()

	if completed {
		s.logger.Info("game completed", zap.String("room", game.RoomCode), zap.String("winner", ended.Winner))
		s.broadcastToLobby(game, "game_ended", ended)
	}

	// Step 7: Broadcast game state to all players
	s.broadcastGameState(game)

	// Step 8: Confirm to the mover once state is consistent
	s.sendMessage(socket, ctx, ServerMessage{
		Type: "move_result",
		Payload: MoveResultResponse{
			Success:   true,
			Placement: response.Placement,
		},
	})
}
