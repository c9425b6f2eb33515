package token

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/arango-auth/pkg/apierror"
	"github.com/Checker-Finance/arango-auth/pkg/auth"
)

// ─── Test doubles ─────────────────────────────────────────────────────────────

type mockRequester struct {
	calls atomic.Int32
	fn    func(ctx context.Context, creds auth.Credentials) (*auth.TokenResponse, error)
}

func (m *mockRequester) RequestTokenWithCredentials(ctx context.Context, creds auth.Credentials) (*auth.TokenResponse, error) {
	m.calls.Add(1)
	return m.fn(ctx, creds)
}

func issuing(t *testing.T, ttl time.Duration) *mockRequester {
	return &mockRequester{fn: func(_ context.Context, creds auth.Credentials) (*auth.TokenResponse, error) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"preferred_username": creds.Username,
			"iat":                time.Now().Unix(),
			"exp":                time.Now().Add(ttl).Unix(),
		}).SignedString([]byte("k"))
		require.NoError(t, err)
		return &auth.TokenResponse{JWT: raw}, nil
	}}
}

type failingStore struct{ Store }

func (failingStore) Get(context.Context, string) (*Token, error) { return nil, errors.New("store down") }
func (failingStore) Put(context.Context, Token) error             { return errors.New("store down") }

var root = auth.Credentials{Username: "root", Password: "pw"}

// ─── GetToken ─────────────────────────────────────────────────────────────────

func TestGetToken_FetchesOnMissThenCaches(t *testing.T) {
	req := issuing(t, time.Hour)
	m := NewManager(zap.NewNop(), req, NewMemoryStore(), 5*time.Minute)

	first, err := m.GetToken(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, "root", first.Username)
	assert.WithinDuration(t, time.Now().Add(time.Hour), first.ExpiresAt, 2*time.Second)

	second, err := m.GetToken(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, first.JWT, second.JWT)
	assert.EqualValues(t, 1, req.calls.Load(), "second call should be served from the store")
}

func TestGetToken_RefreshesWithinSkew(t *testing.T) {
	req := issuing(t, time.Hour)
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), Token{
		Username:  "root",
		JWT:       "expiring-soon",
		ExpiresAt: time.Now().Add(3 * time.Minute),
	}))
	m := NewManager(nil, req, store, 5*time.Minute)

	tok, err := m.GetToken(context.Background(), root)
	require.NoError(t, err)
	assert.NotEqual(t, "expiring-soon", tok.JWT)
	assert.EqualValues(t, 1, req.calls.Load())
}

func TestGetToken_IndependentPerUser(t *testing.T) {
	req := issuing(t, time.Hour)
	m := NewManager(nil, req, nil, time.Minute)

	a, err := m.GetToken(context.Background(), auth.Credentials{Username: "alice", Password: "a"})
	require.NoError(t, err)
	b, err := m.GetToken(context.Background(), auth.Credentials{Username: "bob", Password: "b"})
	require.NoError(t, err)

	assert.NotEqual(t, a.JWT, b.JWT)
	assert.EqualValues(t, 2, req.calls.Load())
}

func TestGetToken_ErrorNotCached(t *testing.T) {
	req := &mockRequester{fn: func(context.Context, auth.Credentials) (*auth.TokenResponse, error) {
		return nil, &apierror.APIError{IsError: true, Code: 401, ErrorMessage: "bad credentials"}
	}}
	store := NewMemoryStore()
	m := NewManager(nil, req, store, time.Minute)

	_, err := m.GetToken(context.Background(), root)
	require.Error(t, err)
	assert.True(t, apierror.IsUnauthorized(err))

	cur, err := m.Current(context.Background(), "root")
	require.NoError(t, err)
	assert.Nil(t, cur)

	_, _ = m.GetToken(context.Background(), root)
	assert.EqualValues(t, 2, req.calls.Load())
}

func TestGetToken_StoreFailureStillIssues(t *testing.T) {
	req := issuing(t, time.Hour)
	m := NewManager(nil, req, failingStore{}, time.Minute)

	tok, err := m.GetToken(context.Background(), root)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.JWT)
}

func TestGetToken_OpaqueTokenGetsDefaultLifetime(t *testing.T) {
	req := &mockRequester{fn: func(context.Context, auth.Credentials) (*auth.TokenResponse, error) {
		return &auth.TokenResponse{JWT: "opaque"}, nil
	}}
	m := NewManager(nil, req, nil, time.Minute)

	tok, err := m.GetToken(context.Background(), root)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultLifetime), tok.ExpiresAt, 2*time.Second)
}

// ─── Refresh ──────────────────────────────────────────────────────────────────

func TestRefresh_ConcurrentCallersShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	req := &mockRequester{fn: func(context.Context, auth.Credentials) (*auth.TokenResponse, error) {
		entered <- struct{}{}
		<-release
		return &auth.TokenResponse{JWT: "shared"}, nil
	}}
	m := NewManager(nil, req, nil, time.Minute)

	const n = 10
	results := make([]Token, n)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = m.Refresh(context.Background(), root)
	}()
	<-entered
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.Refresh(context.Background(), root)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, req.calls.Load())
	for _, r := range results {
		assert.Equal(t, "shared", r.JWT)
	}
}

func TestRefresh_WaiterCanceled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	req := &mockRequester{fn: func(context.Context, auth.Credentials) (*auth.TokenResponse, error) {
		<-release
		return &auth.TokenResponse{JWT: "late"}, nil
	}}
	m := NewManager(nil, req, nil, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Refresh(ctx, root)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRefresh_FirstCallerCancelDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	req := &mockRequester{fn: func(ctx context.Context, _ auth.Credentials) (*auth.TokenResponse, error) {
		entered <- struct{}{}
		select {
		case <-release:
			return &auth.TokenResponse{JWT: "shared"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	m := NewManager(nil, req, nil, time.Minute)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := m.Refresh(ctxA, root)
		errA <- err
	}()
	<-entered

	type result struct {
		tok Token
		err error
	}
	resB := make(chan result, 1)
	go func() {
		tok, err := m.Refresh(context.Background(), root)
		resB <- result{tok, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "shared", b.tok.JWT)
	assert.EqualValues(t, 1, req.calls.Load())
}

func TestRefresh_IgnoresValidCache(t *testing.T) {
	req := issuing(t, time.Hour)
	m := NewManager(nil, req, nil, time.Minute)

	_, err := m.GetToken(context.Background(), root)
	require.NoError(t, err)
	_, err = m.Refresh(context.Background(), root)
	require.NoError(t, err)
	assert.EqualValues(t, 2, req.calls.Load())
}

// ─── Invalidate / Current ─────────────────────────────────────────────────────

func TestInvalidate(t *testing.T) {
	req := issuing(t, time.Hour)
	m := NewManager(nil, req, nil, time.Minute)

	_, err := m.GetToken(context.Background(), root)
	require.NoError(t, err)

	cur, err := m.Current(context.Background(), "root")
	require.NoError(t, err)
	require.NotNil(t, cur)

	require.NoError(t, m.Invalidate(context.Background(), "root"))
	cur, err = m.Current(context.Background(), "root")
	require.NoError(t, err)
	assert.Nil(t, cur)

	require.NoError(t, m.HealthCheck(context.Background()))
	assert.Equal(t, time.Minute, m.Skew())
}
