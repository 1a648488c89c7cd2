package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"acquire-server/db"
)

// Service wraps the connection pool shared by the server.
type Service interface {
	// Health returns a map of health status information.
	Health(ctx context.Context) map[string]string

	// Pool exposes the pgx pool for queries and LISTEN connections.
	Pool() *pgxpool.Pool

	// DB returns a database/sql handle over the same pool, for goose.
	DB() *sql.DB

	// Migrate applies every pending migration.
	Migrate(ctx context.Context) error

	Close()
}

type service struct {
	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

// New connects to Postgres and verifies the connection with a ping.
func New(ctx context.Context, databaseURL string) (Service, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &service{
		pool:  pool,
		sqlDB: stdlib.OpenDBFromPool(pool),
	}, nil
}

func (s *service) Pool() *pgxpool.Pool { return s.pool }

func (s *service) DB() *sql.DB { return s.sqlDB }

func (s *service) Migrate(ctx context.Context) error {
	goose.SetBaseFS(db.Migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.sqlDB, db.MigrationsDir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	ps := s.pool.Stat()
	stats["total_connections"] = strconv.Itoa(int(ps.TotalConns()))
	stats["idle_connections"] = strconv.Itoa(int(ps.IdleConns()))
	stats["in_use"] = strconv.Itoa(int(ps.AcquiredConns()))
	stats["max_connections"] = strconv.Itoa(int(ps.MaxConns()))
	stats["empty_acquire_count"] = strconv.FormatInt(ps.EmptyAcquireCount(), 10)

	if ps.AcquiredConns() >= ps.MaxConns() {
		stats["message"] = "The database is saturated."
	}

	return stats
}

func (s *service) Close() {
	s.sqlDB.Close()
	s.pool.Close()
}
