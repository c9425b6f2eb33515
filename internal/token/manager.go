// Package token keeps ArangoDB JWTs fresh: it caches issued tokens, shares
// concurrent fetches for the same user and refreshes before expiry.
package token

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Checker-Finance/arango-auth/internal/metrics"
	"github.com/Checker-Finance/arango-auth/pkg/auth"
	"github.com/Checker-Finance/arango-auth/pkg/utils"
)

// fetchTimeout bounds a shared fetch, which no single caller can cancel.
const fetchTimeout = 30 * time.Second

// Requester issues tokens. *auth.Client satisfies it.
type Requester interface {
	RequestTokenWithCredentials(ctx context.Context, creds auth.Credentials) (*auth.TokenResponse, error)
}

// Manager hands out cached tokens and fetches new ones when they near expiry.
type Manager struct {
	logger    *zap.Logger
	requester Requester
	store     Store
	skew      time.Duration
	group     singleflight.Group
	now       func() time.Time
}

// NewManager creates a Manager. Tokens expiring within skew are treated as stale.
func NewManager(logger *zap.Logger, requester Requester, store Store, skew time.Duration) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		logger:    logger,
		requester: requester,
		store:     store,
		skew:      skew,
		now:       time.Now,
	}
}

// GetToken returns a valid token for creds, fetching one on a miss.
func (m *Manager) GetToken(ctx context.Context, creds auth.Credentials) (Token, error) {
	tok, err := m.store.Get(ctx, creds.Username)
	if err != nil {
		m.logger.Warn("arango.token.store_get_failed",
			zap.String("user", creds.Username),
			zap.Error(err))
	}
	if tok != nil && tok.ValidFor(m.now(), m.skew) {
		metrics.IncTokenCache(true)
		return *tok, nil
	}
	metrics.IncTokenCache(false)
	return m.Refresh(ctx, creds)
}

// Refresh fetches a new token regardless of what is cached. Concurrent
// refreshes for the same credentials share a single request. A caller that
// gives up does not cancel the request for the others still waiting on it.
func (m *Manager) Refresh(ctx context.Context, creds auth.Credentials) (Token, error) {
	key := creds.Username + "\x00" + creds.Password
	ch := m.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return m.fetch(fetchCtx, creds)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
}

// Current returns the stored token for username without fetching.
func (m *Manager) Current(ctx context.Context, username string) (*Token, error) {
	return m.store.Get(ctx, username)
}

// Invalidate drops the stored token for username.
func (m *Manager) Invalidate(ctx context.Context, username string) error {
	return m.store.Delete(ctx, username)
}

// HealthCheck reports whether the backing store is reachable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}

// Skew returns the refresh margin before expiry.
func (m *Manager) Skew() time.Duration {
	return m.skew
}

func (m *Manager) fetch(ctx context.Context, creds auth.Credentials) (Token, error) {
	resp, err := m.requester.RequestTokenWithCredentials(ctx, creds)
	metrics.IncTokenRefresh(err)
	if err != nil {
		m.logger.Warn("arango.token.fetch_failed",
			zap.String("user", creds.Username),
			zap.Error(err))
		return Token{}, err
	}

	now := m.now()
	issuedAt, expiresAt, err := ParseExpiry(resp.JWT, now)
	if err != nil {
		m.logger.Warn("arango.token.claims_unreadable",
			zap.String("user", creds.Username),
			zap.Error(err))
		issuedAt, expiresAt = now, now.Add(DefaultLifetime)
	}

	tok := Token{
		Username:  creds.Username,
		JWT:       resp.JWT,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	if err := m.store.Put(ctx, tok); err != nil {
		m.logger.Warn("arango.token.store_put_failed",
			zap.String("user", creds.Username),
			zap.Error(err))
	}
	metrics.SetTokenExpiry(expiresAt)

	m.logger.Info("arango.token.refreshed",
		zap.String("user", creds.Username),
		zap.String("jwt", utils.MaskSecret(resp.JWT)),
		zap.Time("expires_at", expiresAt))
	return tok, nil
}
