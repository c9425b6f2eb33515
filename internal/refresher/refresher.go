// Package refresher keeps the service account's JWT fresh in the token store.
package refresher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/arango-auth/internal/publisher"
	"github.com/Checker-Finance/arango-auth/internal/token"
	"github.com/Checker-Finance/arango-auth/pkg/apierror"
	"github.com/Checker-Finance/arango-auth/pkg/auth"
)

// CredentialSource yields the credentials to refresh with.
type CredentialSource interface {
	Resolve(ctx context.Context) (auth.Credentials, error)
	Invalidate()
}

// TokenKeeper is the part of *token.Manager the refresher drives.
type TokenKeeper interface {
	Current(ctx context.Context, username string) (*token.Token, error)
	Refresh(ctx context.Context, creds auth.Credentials) (token.Token, error)
	Skew() time.Duration
}

// RotationPublisher announces newly issued tokens.
type RotationPublisher interface {
	PublishRotation(ctx context.Context, evt publisher.RotationEvent) error
}

// Refresher periodically refreshes the token when it nears expiry.
type Refresher struct {
	logger   *zap.Logger
	creds    CredentialSource
	keeper   TokenKeeper
	pub      RotationPublisher
	interval time.Duration
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a Refresher. pub may be nil.
func New(logger *zap.Logger, creds CredentialSource, keeper TokenKeeper, pub RotationPublisher, interval time.Duration) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		logger:   logger,
		creds:    creds,
		keeper:   keeper,
		pub:      pub,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the refresh loop in a goroutine. The first pass runs immediately.
// Later calls, and calls after Stop, do nothing.
func (r *Refresher) Start(ctx context.Context) {
	r.startOnce.Do(func() { go r.run(ctx) })
}

// Stop ends the loop and waits for the current pass to finish. It returns at
// once if the loop was never started.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.startOnce.Do(func() { close(r.doneCh) })
	<-r.doneCh
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("refresher.started", zap.Duration("interval", r.interval))
	for {
		if _, err := r.Tick(ctx); err != nil {
			r.logger.Warn("refresher.tick_failed", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-r.stopCh:
			r.logger.Info("refresher.stopped")
			return
		case <-ctx.Done():
			r.logger.Info("refresher.stopped", zap.Error(ctx.Err()))
			return
		}
	}
}

// Tick performs one refresh pass and reports whether a new token was issued.
func (r *Refresher) Tick(ctx context.Context) (bool, error) {
	creds, err := r.creds.Resolve(ctx)
	if err != nil {
		return false, err
	}

	cur, err := r.keeper.Current(ctx, creds.Username)
	if err != nil {
		r.logger.Warn("refresher.current_failed", zap.String("user", creds.Username), zap.Error(err))
	}
	if cur != nil && cur.ValidFor(r.now(), r.keeper.Skew()) {
		return false, nil
	}

	tok, err := r.keeper.Refresh(ctx, creds)
	if err != nil {
		if apierror.IsUnauthorized(err) {
			// credentials may have been rotated underneath us
			r.creds.Invalidate()
		}
		return false, err
	}

	if r.pub != nil {
		evt := publisher.RotationEvent{
			Username:  tok.Username,
			IssuedAt:  tok.IssuedAt,
			ExpiresAt: tok.ExpiresAt,
		}
		if err := r.pub.PublishRotation(ctx, evt); err != nil {
			r.logger.Warn("refresher.publish_failed", zap.Error(err))
		}
	}
	return true, nil
}
