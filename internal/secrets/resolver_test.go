package secrets

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/arango-auth/pkg/auth"
	pkgsecrets "github.com/Checker-Finance/arango-auth/pkg/secrets"
)

// --- Mock Provider ---

type mockProvider struct {
	secrets map[string]map[string]string
	err     error
	calls   int
}

func (m *mockProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.secrets[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("secret not found: %s", key)
}

func newResolver(p *mockProvider) *CredentialResolver {
	return NewAWSResolver(zap.NewNop(), p, "prod/arangodb", pkgsecrets.NewCache[auth.Credentials](time.Minute))
}

// --- Tests ---

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(auth.Credentials{Username: "root", Password: ""})
	creds, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.Credentials{Username: "root", Password: ""}, creds)
	r.Invalidate()
}

func TestAWSResolver_FetchesThenCaches(t *testing.T) {
	p := &mockProvider{secrets: map[string]map[string]string{
		"prod/arangodb": {"username": "svc", "password": "pw"},
	}}
	r := newResolver(p)

	for i := 0; i < 3; i++ {
		creds, err := r.Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "svc", creds.Username)
		assert.Equal(t, "pw", creds.Password)
	}
	assert.Equal(t, 1, p.calls)
}

func TestAWSResolver_InvalidateRefetches(t *testing.T) {
	p := &mockProvider{secrets: map[string]map[string]string{
		"prod/arangodb": {"username": "svc", "password": "old"},
	}}
	r := newResolver(p)

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)

	p.secrets["prod/arangodb"] = map[string]string{"username": "svc", "password": "new"}
	r.Invalidate()

	creds, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", creds.Password)
	assert.Equal(t, 2, p.calls)
}

func TestAWSResolver_ProviderError(t *testing.T) {
	r := newResolver(&mockProvider{err: fmt.Errorf("throttled")})
	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve arango credentials")
}

func TestAWSResolver_BadSecretNotCached(t *testing.T) {
	tests := []struct {
		name    string
		secret  map[string]string
		wantErr string
	}{
		{name: "missing username", secret: map[string]string{"password": "pw"}, wantErr: "missing username"},
		{name: "missing password", secret: map[string]string{"username": "svc"}, wantErr: "missing password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{secrets: map[string]map[string]string{"prod/arangodb": tt.secret}}
			r := newResolver(p)

			_, err := r.Resolve(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			_, _ = r.Resolve(context.Background())
			assert.Equal(t, 2, p.calls, "invalid secrets must not be cached")
		})
	}
}

func TestAWSResolver_EmptyPasswordAllowed(t *testing.T) {
	p := &mockProvider{secrets: map[string]map[string]string{
		"prod/arangodb": {"username": "root", "password": ""},
	}}
	creds, err := newResolver(p).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", creds.Password)
}
