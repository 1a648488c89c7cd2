package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter keeps a token bucket per connection so one noisy client cannot
// starve the others.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter // connectionID -> bucket
	mu       sync.Mutex
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the connection may send another message now.
func (r *RateLimiter) Allow(connectionID string) bool {
	return r.limiter(connectionID).Allow()
}

// AllowAt is Allow against an explicit clock, for tests.
func (r *RateLimiter) AllowAt(connectionID string, t time.Time) bool {
	return r.limiter(connectionID).AllowN(t, 1)
}

func (r *RateLimiter) limiter(connectionID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[connectionID]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[connectionID] = l
	}
	return l
}

// RemoveConnection drops the bucket of a closed connection.
func (r *RateLimiter) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, connectionID)
}

func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// ConnectionHealth tracks last activity time for each connection
type ConnectionHealth struct {
	lastActivity map[string]time.Time // connectionID -> last message time
	now          func() time.Time
	mu           sync.RWMutex
}

func NewConnectionHealth() *ConnectionHealth {
	return &ConnectionHealth{
		lastActivity: make(map[string]time.Time),
		now:          time.Now,
	}
}

// UpdateActivity records that a connection is active
func (h *ConnectionHealth) UpdateActivity(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity[connectionID] = h.now()
}

// IsInactive reports whether a tracked connection has been silent longer
// than timeout. Untracked connections are not inactive.
func (h *ConnectionHealth) IsInactive(connectionID string, timeout time.Duration) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	lastActivity, exists := h.lastActivity[connectionID]
	if !exists {
		return false
	}
	return h.now().Sub(lastActivity) > timeout
}

// GetInactiveConnections returns all connections inactive longer than timeout
func (h *ConnectionHealth) GetInactiveConnections(timeout time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	inactive := make([]string, 0)
	now := h.now()
	for connID, lastActivity := range h.lastActivity {
		if now.Sub(lastActivity) > timeout {
			inactive = append(inactive, connID)
		}
	}
	return inactive
}

func (h *ConnectionHealth) RemoveConnection(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastActivity, connectionID)
}

var validMessageTypes = map[string]bool{
	"ping":         true,
	"create_table": true,
	"join_table":   true,
	"reconnect":    true,
	"set_ready":    true,
	"start_game":   true,
	"leave_table":  true,
	"execute_move": true,
}

// ValidateMessageType checks if a message type is recognized
func ValidateMessageType(msgType string) error {
	if !validMessageTypes[msgType] {
		return fmt.Errorf("INVALID_MESSAGE_TYPE: Unknown message type '%s'", msgType)
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each plain HTTP request once it completes.
func requestLogger(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	})
}
