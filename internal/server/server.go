package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"acquire-server/internal/config"
	"acquire-server/internal/database"
)

const (
	idleTimeout       = 5 * time.Minute
	heartbeatInterval = time.Minute
	writeTimeout      = 5 * time.Second
)

type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	instanceID string

	store  Store
	listen ListenDialer
	health func(ctx context.Context) map[string]string

	connectionManager *ConnectionManager
	gameManager       *GameManager
	sessionManager    *SessionManager
	rateLimiter       *RateLimiter
	connectionHealth  *ConnectionHealth
}

type Option func(*Server)

// WithDatabase stores tables in Postgres and listens for changes made by
// other instances.
func WithDatabase(db database.Service) Option {
	return func(s *Server) {
		s.store = NewPersistenceManager(db.Pool(), s.logger)
		s.listen = PoolListener(db.Pool())
		s.health = db.Health
	}
}

func WithStore(store Store) Option {
	return func(s *Server) { s.store = store }
}

func WithListener(dial ListenDialer) Option {
	return func(s *Server) { s.listen = dial }
}

func NewServer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, *http.Server) {
	instanceID := uuid.NewString()
	s := &Server{
		cfg:               cfg,
		logger:            logger.With(zap.String("instance", instanceID[:8])),
		instanceID:        instanceID,
		connectionManager: NewConnectionManager(),
		gameManager:       NewGameManager(cfg.Rules()),
		sessionManager:    NewSessionManager(),
		rateLimiter:       NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		connectionHealth:  NewConnectionHealth(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		panic("server: no store configured")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, httpServer
}

// Restore loads tables, sessions and room codes saved by a previous run.
// Nobody is connected after a restart, so running games come back paused.
func (s *Server) Restore(ctx context.Context) error {
	games, err := s.store.LoadAllActiveGames(ctx)
	if err != nil {
		return fmt.Errorf("failed to load games: %w", err)
	}
	for _, game := range games {
		for i := range game.Players {
			game.Players[i].Connected = false
		}
		if game.Status == StatusPlaying {
			game.Status = StatusPaused
		}
		s.gameManager.AddGame(game)
		s.storeSessions(game)
		s.logger.Info("restored game", zap.String("room", game.RoomCode), zap.String("status", string(game.Status)))
	}

	usedCodes, err := s.store.LoadUsedRoomCodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load room codes: %w", err)
	}
	s.gameManager.SetUsedCodes(usedCodes)

	sessions, err := s.store.LoadAllSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	for _, session := range sessions {
		s.sessionManager.StoreSession(session)
	}

	s.logger.Info("persisted state loaded",
		zap.Int("games", len(games)),
		zap.Int("room_codes", len(usedCodes)),
		zap.Int("sessions", len(sessions)),
	)
	return nil
}

// storeSessions indexes every seat of a table by token.
func (s *Server) storeSessions(game *ActiveGame) {
	game.mu.Lock()
	defer game.mu.Unlock()
	for _, slot := range game.Players {
		s.sessionManager.StoreSession(SessionInfo{
			Token:    slot.Token,
			RoomCode: game.RoomCode,
			PlayerID: slot.PlayerID,
			Username: slot.Username,
		})
	}
}

// Run drives the background tasks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.every(ctx, s.cfg.Tasks.ReconcileInterval, s.reconcile)
		return nil
	})
	g.Go(func() error {
		s.every(ctx, s.cfg.Tasks.CleanupInterval, s.cleanup)
		return nil
	})
	g.Go(func() error {
		s.every(ctx, heartbeatInterval, s.closeIdleConnections)
		return nil
	})
	if s.listen != nil {
		notifier := NewNotifier(s.listen, s.instanceID, func(change ChangeNotification) {
			s.onRemoteChange(ctx, change)
		}, s.logger)
		g.Go(func() error { return notifier.Run(ctx) })
	}

	return g.Wait()
}

func (s *Server) every(ctx context.Context, interval time.Duration, task func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

// persist saves the table if it has unsaved changes.
func (s *Server) persist(ctx context.Context, game *ActiveGame) error {
	game.mu.Lock()
	defer game.mu.Unlock()

	if !game.Dirty() {
		return nil
	}
	snap, err := game.snapshot(s.instanceID)
	if err != nil {
		return err
	}
	if err := s.store.SaveGame(ctx, snap); err != nil {
		return err
	}
	game.markSaved(snap)
	return nil
}

// commit persists a change made by a handler. A stale write means another
// instance got there first: the local copy is replaced by the stored one.
func (s *Server) commit(ctx context.Context, game *ActiveGame) error {
	err := s.persist(ctx, game)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleRevision):
		s.logger.Warn("stale save, reloading", zap.String("room", game.RoomCode))
		if rerr := s.reloadGame(ctx, game); rerr != nil {
			s.logger.Error("reload after stale save failed", zap.String("room", game.RoomCode), zap.Error(rerr))
		}
		return err
	default:
		// Kept in memory; the reconcile task retries the write.
		s.logger.Error("failed to save game", zap.String("room", game.RoomCode), zap.Error(err))
		return nil
	}
}

// reloadGame replaces the local table with the stored one and pushes the
// result to every connected player.
func (s *Server) reloadGame(ctx context.Context, game *ActiveGame) error {
	fresh, err := s.store.LoadGame(ctx, game.RoomCode)
	if errors.Is(err, ErrGameNotStored) {
		s.dropGame(game.RoomCode)
		return nil
	}
	if err != nil {
		return err
	}

	game.mu.Lock()
	game.restore(fresh)
	game.mu.Unlock()

	s.storeSessions(game)
	s.broadcastCurrentState(game)
	return nil
}

// onRemoteChange handles a save made by another instance. Notifications at
// or behind the local revision are ignored, so repeats are harmless.
func (s *Server) onRemoteChange(ctx context.Context, change ChangeNotification) {
	log := s.logger.With(zap.String("room", change.RoomCode), zap.Int64("revision", change.Revision))

	game, err := s.gameManager.GetGame(change.RoomCode)
	if err != nil {
		fresh, err := s.store.LoadGame(ctx, change.RoomCode)
		if err != nil {
			log.Warn("failed to load remote game", zap.Error(err))
			return
		}
		for i := range fresh.Players {
			fresh.Players[i].Connected = false
		}
		s.gameManager.AddGame(fresh)
		s.storeSessions(fresh)
		log.Debug("picked up remote game")
		return
	}

	game.mu.Lock()
	current := game.Revision
	game.mu.Unlock()
	if change.Revision <= current {
		return
	}

	log.Debug("remote change, reloading", zap.Int64("local_revision", current))
	if err := s.reloadGame(ctx, game); err != nil {
		log.Warn("failed to reload game", zap.Error(err))
	}
}

// reconcile retries failed saves and reloads tables the store holds newer
// revisions of, covering notifications that were missed.
func (s *Server) reconcile(ctx context.Context) {
	saved := 0
	for _, game := range s.gameManager.Games() {
		game.mu.Lock()
		dirty := game.Dirty()
		game.mu.Unlock()
		if !dirty {
			continue
		}
		if err := s.commit(ctx, game); err == nil {
			saved++
		}
	}

	revisions, err := s.store.GameRevisions(ctx)
	if err != nil {
		s.logger.Warn("reconcile could not read revisions", zap.Error(err))
		return
	}

	reloaded := 0
	for _, game := range s.gameManager.Games() {
		stored, ok := revisions[game.RoomCode]
		if !ok {
			continue
		}
		game.mu.Lock()
		behind := stored > game.Revision
		game.mu.Unlock()
		if !behind {
			continue
		}
		if err := s.reloadGame(ctx, game); err != nil {
			s.logger.Warn("reconcile reload failed", zap.String("room", game.RoomCode), zap.Error(err))
			continue
		}
		reloaded++
	}

	if saved > 0 || reloaded > 0 {
		s.logger.Info("reconcile completed", zap.Int("saved", saved), zap.Int("reloaded", reloaded))
	}
}

// cleanup deletes completed games past the retention window and lobbies
// everyone walked away from.
func (s *Server) cleanup(ctx context.Context) {
	codes, err := s.store.CleanupOldGames(ctx, s.cfg.Tasks.CleanupAfter)
	if err != nil {
		s.logger.Error("cleanup task failed", zap.Error(err))
	} else {
		for _, code := range codes {
			s.dropGame(code)
		}
	}

	expired := s.gameManager.ExpiredLobbies(time.Now())
	for _, code := range expired {
		if err := s.store.DeleteGame(ctx, code); err != nil && !errors.Is(err, ErrGameNotStored) {
			s.logger.Warn("failed to delete expired lobby", zap.String("room", code), zap.Error(err))
			continue
		}
		s.dropGame(code)
	}

	if n := len(codes) + len(expired); n > 0 {
		s.logger.Info("cleanup task removed games", zap.Int("completed", len(codes)), zap.Int("lobbies", len(expired)))
	}
}

func (s *Server) dropGame(roomCode string) {
	s.gameManager.RemoveGame(roomCode)
	s.sessionManager.RemoveRoom(roomCode)
}

func (s *Server) closeIdleConnections(ctx context.Context) {
	for _, connID := range s.connectionHealth.GetInactiveConnections(idleTimeout) {
		if conn := s.connectionManager.GetConnection(connID); conn != nil {
			s.logger.Info("closing idle connection", zap.String("conn", connID))
			conn.Close(websocket.StatusPolicyViolation, "Idle timeout")
		}
		s.connectionHealth.RemoveConnection(connID)
	}
}

// Shutdown saves every table with pending changes and tells connected clients
// the server is going away.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	for _, game := range s.gameManager.Games() {
		if err := s.persist(ctx, game); err != nil {
			errs = append(errs, fmt.Errorf("game %s: %w", game.RoomCode, err))
		}
	}

	for _, conn := range s.connectionManager.All() {
		s.sendMessage(conn, ctx, ServerMessage{
			Type:    "server_shutdown",
			Payload: GamePausedNotification{Message: "Server is restarting. Your game has been saved."},
		})
		conn.Close(websocket.StatusGoingAway, "Server shutting down")
	}

	s.logger.Info("server state saved", zap.Int("games", len(s.gameManager.Games())), zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}
