package server

import (
	"sync"

	"github.com/coder/websocket"
)

type PlayerConnection struct {
	RoomCode string
	PlayerID string
	Token    string
}

type ConnectionManager struct {
	connections map[string]*websocket.Conn  // connectionID → socket
	players     map[string]PlayerConnection // connectionID → player info
	tokens      map[string]string           // token → connectionID
	mu          sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
		players:     make(map[string]PlayerConnection),
		tokens:      make(map[string]string),
	}
}

func (cm *ConnectionManager) AddConnection(id string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[id] = conn
}

// RemoveConnection forgets the socket and, if the token still points at this
// connection, the token mapping too.
func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if player, ok := cm.players[id]; ok && cm.tokens[player.Token] == id {
		delete(cm.tokens, player.Token)
	}
	delete(cm.connections, id)
	delete(cm.players, id)
}

// BindPlayer ties a connection to a seated player. It returns the connection
// previously bound to the same token, or "" if there was none.
func (cm *ConnectionManager) BindPlayer(connectionID string, player PlayerConnection) string {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	old := cm.tokens[player.Token]
	if old == connectionID {
		old = ""
	}
	if old != "" {
		delete(cm.players, old)
	}
	cm.players[connectionID] = player
	cm.tokens[player.Token] = connectionID
	return old
}

// UnmapToken drops the token binding while keeping the socket open.
func (cm *ConnectionManager) UnmapToken(token string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connID, ok := cm.tokens[token]; ok {
		delete(cm.players, connID)
		delete(cm.tokens, token)
	}
}

// GetPlayer returns the player bound to a connection.
func (cm *ConnectionManager) GetPlayer(connectionID string) (PlayerConnection, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	player, ok := cm.players[connectionID]
	return player, ok
}

// GetTokenByConnection returns token for a connection
func (cm *ConnectionManager) GetTokenByConnection(connectionID string) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.players[connectionID].Token
}

// GetConnectionByToken returns connectionID for a token
func (cm *ConnectionManager) GetConnectionByToken(token string) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.tokens[token]
}

// GetConnection returns websocket for connectionID
func (cm *ConnectionManager) GetConnection(connectionID string) *websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.connections[connectionID]
}

// SocketForToken resolves a token straight to its socket.
func (cm *ConnectionManager) SocketForToken(token string) *websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	connID, ok := cm.tokens[token]
	if !ok {
		return nil
	}
	return cm.connections[connID]
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// All returns every open socket, used to notify clients on shutdown.
func (cm *ConnectionManager) All() []*websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	conns := make([]*websocket.Conn, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	return conns
}
