package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"acquire-server/internal/acquire"
)

// memStore is an in-memory Store with the same revision check as Postgres.
type memStore struct {
	mu        sync.Mutex
	games     map[string]storedGame
	logs      map[string][]acquire.LogEntry
	sessions  map[string]SessionInfo
	codes     map[string]bool
	notes     []ChangeNotification
	failSaves error
}

type storedGame struct {
	status   GameStatus
	revision int64
	data     []byte
	updated  time.Time
}

func newMemStore() *memStore {
	return &memStore{
		games:    make(map[string]storedGame),
		logs:     make(map[string][]acquire.LogEntry),
		sessions: make(map[string]SessionInfo),
		codes:    make(map[string]bool),
	}
}

func (m *memStore) SaveGame(ctx context.Context, snap GameSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSaves != nil {
		return m.failSaves
	}
	current, exists := m.games[snap.RoomCode]
	if snap.Expected == 0 && exists {
		return fmt.Errorf("%w: %s exists", ErrStaleRevision, snap.RoomCode)
	}
	if snap.Expected != 0 && (!exists || current.revision != snap.Expected) {
		return fmt.Errorf("%w: %s", ErrStaleRevision, snap.RoomCode)
	}

	m.games[snap.RoomCode] = storedGame{
		status:   snap.Status,
		revision: snap.Revision,
		data:     snap.Data,
		updated:  time.Now(),
	}
	for _, e := range snap.Logs {
		m.logs[snap.RoomCode] = append(m.logs[snap.RoomCode], e)
	}
	m.notes = append(m.notes, ChangeNotification{RoomCode: snap.RoomCode, Revision: snap.Revision, Origin: snap.Origin})
	return nil
}

// put overwrites a stored table as another instance would.
func (m *memStore) put(game *ActiveGame) {
	data, err := json.Marshal(game)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[game.RoomCode] = storedGame{status: game.Status, revision: game.Revision, data: data, updated: time.Now()}
}

func (m *memStore) revision(roomCode string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.games[roomCode].revision
}

func (m *memStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memStore) codeInUse(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[code]
}

func (m *memStore) LoadGame(ctx context.Context, roomCode string) (*ActiveGame, error) {
	m.mu.Lock()
	stored, ok := m.games[roomCode]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotStored, roomCode)
	}

	var game ActiveGame
	if err := json.Unmarshal(stored.data, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

func (m *memStore) LoadAllActiveGames(ctx context.Context) ([]*ActiveGame, error) {
	m.mu.Lock()
	var codes []string
	for code, g := range m.games {
		if g.status != StatusCompleted {
			codes = append(codes, code)
		}
	}
	m.mu.Unlock()

	games := make([]*ActiveGame, 0, len(codes))
	for _, code := range codes {
		g, err := m.LoadGame(ctx, code)
		if err != nil {
			continue
		}
		games = append(games, g)
	}
	return games, nil
}

func (m *memStore) GameRevisions(ctx context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	revs := make(map[string]int64, len(m.games))
	for code, g := range m.games {
		revs[code] = g.revision
	}
	return revs, nil
}

func (m *memStore) DeleteGame(ctx context.Context, roomCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[roomCode]; !ok {
		return fmt.Errorf("%w: %s", ErrGameNotStored, roomCode)
	}
	delete(m.games, roomCode)
	delete(m.logs, roomCode)
	m.codes[roomCode] = false
	return nil
}

func (m *memStore) GameLog(ctx context.Context, roomCode string, afterSeq int) ([]acquire.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []acquire.LogEntry{}
	for _, e := range m.logs[roomCode] {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) SaveSession(ctx context.Context, session SessionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Token] = session
	return nil
}

func (m *memStore) LoadAllSessions(ctx context.Context) ([]SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) DeleteSession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *memStore) SaveRoomCode(ctx context.Context, code string, inUse bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[code] = inUse
	return nil
}

func (m *memStore) LoadUsedRoomCodes(ctx context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.codes))
	for k, v := range m.codes {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) CleanupOldGames(ctx context.Context, olderThan time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var codes []string
	for code, g := range m.games {
		if g.status == StatusCompleted && g.updated.Before(cutoff) {
			codes = append(codes, code)
			delete(m.games, code)
			m.codes[code] = false
		}
	}
	return codes, nil
}
