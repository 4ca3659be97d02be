package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"go.uber.org/zap"
)

// Session hands out pooled connections one logical operation at a time.
// Each call acquires a connection, health-checks it, and releases it on every
// exit path. A connection that fails the health check is discarded and a fresh
// one is acquired once before giving up.
type Session struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSession wraps an opened pool.
func NewSession(db *sql.DB, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{db: db, logger: logger}
}

// WithConn runs fn on a healthy connection.
func (s *Session) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(ctx, conn)
}

func (s *Session) acquire(ctx context.Context) (*sql.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("db: acquire connection: %w", err)
		}
		if err := conn.PingContext(ctx); err != nil {
			lastErr = err
			s.logger.Warn("discarding unhealthy connection", zap.Int("attempt", attempt+1), zap.Error(err))
			discard(conn)
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("db: connection health check: %w", lastErr)
}

// discard makes database/sql drop the connection instead of returning it to the pool.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}

// PingContext checks that the store is reachable.
func (s *Session) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying pool.
func (s *Session) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
