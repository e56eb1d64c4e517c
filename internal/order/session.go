package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// SessionManager owns the broker session. Concurrent submits that find
// the token expired collapse into a single Authenticate call; everyone
// waits for that one result.
type SessionManager struct {
	broker repository.Broker
	creds  models.Credentials
	ttl    time.Duration
	logger *logger.Logger
	clock  func() time.Time

	sf singleflight.Group

	mu      sync.RWMutex
	session *models.Session
}

// NewSessionManager creates a session manager. ttl is applied when the
// broker does not report its own expiry.
func NewSessionManager(broker repository.Broker, creds models.Credentials, ttl time.Duration, log *logger.Logger) *SessionManager {
	return &SessionManager{
		broker: broker,
		creds:  creds,
		ttl:    ttl,
		logger: log.With("session"),
		clock:  time.Now,
	}
}

// Ensure returns a live session, renewing if needed.
func (m *SessionManager) Ensure(ctx context.Context) (*models.Session, error) {
	m.mu.RLock()
	sess := m.session
	m.mu.RUnlock()
	if !sess.Expired(m.clock()) {
		return sess, nil
	}

	v, err, _ := m.sf.Do("renew", func() (interface{}, error) {
		// A waiter that lost the race may arrive after the winner
		// already renewed.
		m.mu.RLock()
		cur := m.session
		m.mu.RUnlock()
		if !cur.Expired(m.clock()) {
			return cur, nil
		}

		fresh, err := m.broker.Authenticate(ctx, m.creds)
		if err != nil {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
		if fresh.ExpiresAt.IsZero() && m.ttl > 0 {
			fresh.ExpiresAt = m.clock().Add(m.ttl)
		}

		m.mu.Lock()
		m.session = fresh
		m.mu.Unlock()

		m.logger.Info("broker session renewed",
			logger.String("expires_at", fresh.ExpiresAt.Format(time.RFC3339)))
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Session), nil
}

// Invalidate discards the current session so the next Ensure renews.
// Called when the broker rejects a token the manager thought was live.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
}

// Logout terminates the session at the broker, if one exists.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.mu.Unlock()
	if sess == nil {
		return nil
	}
	return m.broker.Logout(ctx)
}
