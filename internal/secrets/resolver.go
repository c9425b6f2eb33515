package secrets

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/arango-auth/pkg/auth"
	pkgsecrets "github.com/Checker-Finance/arango-auth/pkg/secrets"
)

// CredentialResolver returns the ArangoDB credentials to authenticate with.
// Static credentials win when no provider is configured; otherwise the named
// secret is fetched and cached locally to reduce API calls.
type CredentialResolver struct {
	logger     *zap.Logger
	provider   pkgsecrets.Provider
	secretName string
	cache      *pkgsecrets.Cache[auth.Credentials]
	static     *auth.Credentials
}

// NewStaticResolver returns a resolver that always yields creds.
func NewStaticResolver(creds auth.Credentials) *CredentialResolver {
	return &CredentialResolver{
		logger: zap.NewNop(),
		static: &creds,
	}
}

// NewAWSResolver returns a resolver backed by a secrets provider.
func NewAWSResolver(
	logger *zap.Logger,
	provider pkgsecrets.Provider,
	secretName string,
	cache *pkgsecrets.Cache[auth.Credentials],
) *CredentialResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialResolver{
		logger:     logger,
		provider:   provider,
		secretName: secretName,
		cache:      cache,
	}
}

// Resolve fetches or returns cached credentials.
func (r *CredentialResolver) Resolve(ctx context.Context) (auth.Credentials, error) {
	if r.static != nil {
		return *r.static, nil
	}

	if creds, ok := r.cache.Get(r.secretName); ok {
		return creds, nil
	}

	secretMap, err := r.provider.GetSecret(ctx, r.secretName)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", r.secretName),
			zap.Error(err))
		return auth.Credentials{}, fmt.Errorf("resolve arango credentials: %w", err)
	}

	creds, err := parseCredentials(secretMap)
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("parse secret %q: %w", r.secretName, err)
	}

	r.cache.Put(r.secretName, creds)
	r.logger.Info("aws.credentials_resolved",
		zap.String("secret", r.secretName),
		zap.String("user", creds.Username))
	return creds, nil
}

// Invalidate drops cached credentials so the next Resolve re-reads the
// secret, e.g. after the server rejected them.
func (r *CredentialResolver) Invalidate() {
	if r.cache != nil {
		r.cache.Bust(r.secretName)
	}
}

// parseCredentials extracts username/password. The password may be empty.
func parseCredentials(m map[string]string) (auth.Credentials, error) {
	username := m["username"]
	if username == "" {
		return auth.Credentials{}, errors.New("missing username")
	}
	password, ok := m["password"]
	if !ok {
		return auth.Credentials{}, errors.New("missing password")
	}
	return auth.Credentials{Username: username, Password: password}, nil
}
