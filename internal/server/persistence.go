package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"acquire-server/internal/acquire"
)

const changeChannel = "acquire_game_changes"

var (
	ErrStaleRevision = errors.New("STALE_REVISION: Game was changed elsewhere")
	ErrGameNotStored = errors.New("ROOM_NOT_FOUND: Game not stored")
)

// GameSnapshot is a table serialized under its lock, ready to be written.
type GameSnapshot struct {
	RoomCode string
	GameID   string
	Status   GameStatus
	Revision int64
	// Expected is the revision the store must still hold; zero inserts.
	Expected int64
	Data     []byte
	Logs     []acquire.LogEntry
	Origin   string
}

// ChangeNotification is the pg_notify payload sent with every save.
type ChangeNotification struct {
	RoomCode string `json:"roomCode"`
	Revision int64  `json:"revision"`
	Origin   string `json:"origin"`
}

// Store is the durable side of the game manager.
type Store interface {
	SaveGame(ctx context.Context, snap GameSnapshot) error
	LoadGame(ctx context.Context, roomCode string) (*ActiveGame, error)
	LoadAllActiveGames(ctx context.Context) ([]*ActiveGame, error)
	GameRevisions(ctx context.Context) (map[string]int64, error)
	DeleteGame(ctx context.Context, roomCode string) error
	GameLog(ctx context.Context, roomCode string, afterSeq int) ([]acquire.LogEntry, error)

	SaveSession(ctx context.Context, session SessionInfo) error
	LoadAllSessions(ctx context.Context) ([]SessionInfo, error)
	DeleteSession(ctx context.Context, token string) error

	SaveRoomCode(ctx context.Context, code string, inUse bool) error
	LoadUsedRoomCodes(ctx context.Context) (map[string]bool, error)

	CleanupOldGames(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// snapshot serializes the table. The caller holds game.mu.
func (ag *ActiveGame) snapshot(origin string) (GameSnapshot, error) {
	data, err := json.Marshal(ag)
	if err != nil {
		return GameSnapshot{}, fmt.Errorf("failed to serialize game %s: %w", ag.RoomCode, err)
	}
	snap := GameSnapshot{
		RoomCode: ag.RoomCode,
		GameID:   ag.GameID,
		Status:   ag.Status,
		Revision: ag.Revision,
		Expected: ag.savedRevision,
		Data:     data,
		Origin:   origin,
	}
	if ag.Game != nil {
		snap.Logs = ag.Game.LogSince(ag.loggedSeq)
	}
	return snap, nil
}

// markSaved records a successful write of snap. The caller holds game.mu.
func (ag *ActiveGame) markSaved(snap GameSnapshot) {
	ag.savedRevision = snap.Revision
	if n := len(snap.Logs); n > 0 {
		ag.loggedSeq = snap.Logs[n-1].Seq
	}
}

// PersistenceManager stores tables in Postgres.
type PersistenceManager struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPersistenceManager(pool *pgxpool.Pool, logger *zap.Logger) *PersistenceManager {
	return &PersistenceManager{
		pool:   pool,
		logger: logger.Named("persistence"),
	}
}

// SaveGame writes a snapshot if the stored revision still matches, appends
// new log entries and notifies listeners, all in one transaction.
func (pm *PersistenceManager) SaveGame(ctx context.Context, snap GameSnapshot) error {
	tx, err := pm.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin save of %s: %w", snap.RoomCode, err)
	}
	defer tx.Rollback(ctx)

	var query string
	var args []any
	if snap.Expected == 0 {
		query = `
			INSERT INTO games (room_code, game_id, status, revision, game_data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (room_code) DO NOTHING
		`
		args = []any{snap.RoomCode, snap.GameID, string(snap.Status), snap.Revision, snap.Data}
	} else {
		query = `
			UPDATE games
			SET game_id = $2, status = $3, revision = $4, game_data = $5, updated_at = now()
			WHERE room_code = $1 AND revision = $6
		`
		args = []any{snap.RoomCode, snap.GameID, string(snap.Status), snap.Revision, snap.Data, snap.Expected}
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to save game %s: %w", snap.RoomCode, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s expected revision %d", ErrStaleRevision, snap.RoomCode, snap.Expected)
	}

	if len(snap.Logs) > 0 {
		batch := &pgx.Batch{}
		for _, e := range snap.Logs {
			data, err := json.Marshal(e.Data)
			if err != nil {
				return fmt.Errorf("failed to serialize log entry %d: %w", e.Seq, err)
			}
			batch.Queue(`
				INSERT INTO game_logs (room_code, seq, turn, log_type, player_id, message, data, created_at)
				VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
				ON CONFLICT (room_code, seq) DO NOTHING
			`, snap.RoomCode, e.Seq, e.Turn, string(e.Type), e.PlayerID, e.Message, data, e.At)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to write log for %s: %w", snap.RoomCode, err)
		}
	}

	payload, err := json.Marshal(ChangeNotification{
		RoomCode: snap.RoomCode,
		Revision: snap.Revision,
		Origin:   snap.Origin,
	})
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, changeChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify change of %s: %w", snap.RoomCode, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit save of %s: %w", snap.RoomCode, err)
	}
	return nil
}

func (pm *PersistenceManager) LoadGame(ctx context.Context, roomCode string) (*ActiveGame, error) {
	var data []byte
	err := pm.pool.QueryRow(ctx, `SELECT game_data FROM games WHERE room_code = $1`, roomCode).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrGameNotStored, roomCode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game %s: %w", roomCode, err)
	}

	var game ActiveGame
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, fmt.Errorf("failed to deserialize game %s: %w", roomCode, err)
	}
	return &game, nil
}

// LoadAllActiveGames returns every table that is not completed. Tables that
// fail to decode are logged and skipped.
func (pm *PersistenceManager) LoadAllActiveGames(ctx context.Context) ([]*ActiveGame, error) {
	rows, err := pm.pool.Query(ctx, `
		SELECT room_code, game_data FROM games
		WHERE status <> $1
		ORDER BY updated_at DESC
	`, string(StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to query active games: %w", err)
	}
	defer rows.Close()

	var games []*ActiveGame
	for rows.Next() {
		var (
			roomCode string
			data     []byte
		)
		if err := rows.Scan(&roomCode, &data); err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}

		game := &ActiveGame{}
		if err := json.Unmarshal(data, game); err != nil {
			pm.logger.Warn("skipping undecodable game", zap.String("room", roomCode), zap.Error(err))
			continue
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game rows: %w", err)
	}

	return games, nil
}

// GameRevisions maps every stored room code to its revision.
func (pm *PersistenceManager) GameRevisions(ctx context.Context) (map[string]int64, error) {
	rows, err := pm.pool.Query(ctx, `SELECT room_code, revision FROM games`)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	revisions := make(map[string]int64)
	for rows.Next() {
		var (
			code string
			rev  int64
		)
		if err := rows.Scan(&code, &rev); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		revisions[code] = rev
	}
	return revisions, rows.Err()
}

// DeleteGame removes a table; sessions and log rows go with it. The room code
// is freed for reuse.
func (pm *PersistenceManager) DeleteGame(ctx context.Context, roomCode string) error {
	tag, err := pm.pool.Exec(ctx, `DELETE FROM games WHERE room_code = $1`, roomCode)
	if err != nil {
		return fmt.Errorf("failed to delete game %s: %w", roomCode, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrGameNotStored, roomCode)
	}

	if err := pm.SaveRoomCode(ctx, roomCode, false); err != nil {
		pm.logger.Warn("failed to free room code", zap.String("room", roomCode), zap.Error(err))
	}
	return nil
}

// GameLog returns stored log entries after seq, oldest first.
func (pm *PersistenceManager) GameLog(ctx context.Context, roomCode string, afterSeq int) ([]acquire.LogEntry, error) {
	rows, err := pm.pool.Query(ctx, `
		SELECT seq, turn, log_type, COALESCE(player_id, ''), message, data, created_at
		FROM game_logs
		WHERE room_code = $1 AND seq > $2
		ORDER BY seq
	`, roomCode, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query log of %s: %w", roomCode, err)
	}
	defer rows.Close()

	entries := []acquire.LogEntry{}
	for rows.Next() {
		var (
			e       acquire.LogEntry
			logType string
			data    []byte
		)
		if err := rows.Scan(&e.Seq, &e.Turn, &logType, &e.PlayerID, &e.Message, &data, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		e.Type = acquire.LogType(logType)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to decode log data: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (pm *PersistenceManager) SaveSession(ctx context.Context, session SessionInfo) error {
	_, err := pm.pool.Exec(ctx, `
		INSERT INTO sessions (token, room_code, player_id, username, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (token) DO UPDATE
		SET room_code = EXCLUDED.room_code, player_id = EXCLUDED.player_id, username = EXCLUDED.username
	`, session.Token, session.RoomCode, session.PlayerID, session.Username)
	if err != nil {
		return fmt.Errorf("failed to save session for %s: %w", session.RoomCode, err)
	}
	return nil
}

func (pm *PersistenceManager) LoadAllSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := pm.pool.Query(ctx, `SELECT token, room_code, player_id, username FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SessionInfo, error) {
		var s SessionInfo
		err := row.Scan(&s.Token, &s.RoomCode, &s.PlayerID, &s.Username)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return sessions, nil
}

func (pm *PersistenceManager) DeleteSession(ctx context.Context, token string) error {
	if _, err := pm.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (pm *PersistenceManager) SaveRoomCode(ctx context.Context, code string, inUse bool) error {
	_, err := pm.pool.Exec(ctx, `
		INSERT INTO room_codes (code, in_use, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (code) DO UPDATE SET in_use = EXCLUDED.in_use
	`, code, inUse)
	if err != nil {
		return fmt.Errorf("failed to save room code %s: %w", code, err)
	}
	return nil
}

func (pm *PersistenceManager) LoadUsedRoomCodes(ctx context.Context) (map[string]bool, error) {
	rows, err := pm.pool.Query(ctx, `SELECT code, in_use FROM room_codes`)
	if err != nil {
		return nil, fmt.Errorf("failed to query room codes: %w", err)
	}
	defer rows.Close()

	usedCodes := make(map[string]bool)
	for rows.Next() {
		var (
			code  string
			inUse bool
		)
		if err := rows.Scan(&code, &inUse); err != nil {
			return nil, fmt.Errorf("failed to scan room code row: %w", err)
		}
		usedCodes[code] = inUse
	}
	return usedCodes, rows.Err()
}

// CleanupOldGames deletes completed games untouched for longer than
// olderThan, frees their room codes and returns the codes removed.
func (pm *PersistenceManager) CleanupOldGames(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-olderThan)

	tx, err := pm.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin cleanup: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		DELETE FROM games
		WHERE status = $1 AND updated_at < $2
		RETURNING room_code
	`, string(StatusCompleted), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to cleanup old games: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect cleaned games: %w", err)
	}

	for _, code := range codes {
		if _, err := tx.Exec(ctx, `UPDATE room_codes SET in_use = false WHERE code = $1`, code); err != nil {
			return nil, fmt.Errorf("failed to free room code %s: %w", code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cleanup: %w", err)
	}
	return codes, nil
}
