// Package auth obtains JSON Web Tokens from an ArangoDB server.
//
// The client is stateless: every call serializes the credentials, POSTs them
// to /_open/auth through the injected transport and either decodes the token
// or returns the server's structured error. Nothing is retried.
package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/arango-auth/pkg/apierror"
	"github.com/Checker-Finance/arango-auth/pkg/serialization"
	"github.com/Checker-Finance/arango-auth/pkg/transport"
)

// TokenPath is the ArangoDB endpoint that exchanges credentials for a JWT.
const TokenPath = "/_open/auth"

// ErrMissingJWT is wrapped in a DecodeError when a success response has no token.
var ErrMissingJWT = errors.New("response has no jwt")

// Client calls the ArangoDB authentication endpoint.
type Client struct {
	logger     *zap.Logger
	transport  transport.Transport
	serializer serialization.Serializer
}

// Option configures a Client.
type Option func(*Client)

// WithSerializer replaces the default JSON serializer.
func WithSerializer(s serialization.Serializer) Option {
	return func(c *Client) { c.serializer = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client over t. The caller keeps ownership of t.
func NewClient(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		logger:     zap.NewNop(),
		transport:  t,
		serializer: serialization.NewJSON(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.serializer == nil {
		c.serializer = serialization.NewJSON()
	}
	return c
}

// RequestToken gets a JWT for username/password.
func (c *Client) RequestToken(ctx context.Context, username, password string) (*TokenResponse, error) {
	return c.RequestTokenWithCredentials(ctx, Credentials{
		Username: username,
		Password: password,
	})
}

// RequestTokenWithCredentials gets a JWT for creds.
//
// Errors are one of: the transport's own error, *apierror.APIError for a
// non-2xx status, or *serialization.DecodeError for a 2xx body without a
// usable token. The response body is drained and closed on every path.
func (c *Client) RequestTokenWithCredentials(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	payload, err := c.serializer.Serialize(creds, serialization.Options{IgnoreNullValues: false})
	if err != nil {
		return nil, fmt.Errorf("encode token request: %w", err)
	}

	resp, err := c.transport.Post(ctx, TokenPath, payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Close() }()

	if !resp.IsSuccessStatusCode() {
		apiErr := apierror.FromBody(resp.StatusCode, resp.Body)
		c.logger.Warn("arango.auth.rejected",
			zap.String("user", creds.Username),
			zap.Int("code", apiErr.Code),
			zap.Int("error_num", apiErr.ErrorNum),
			zap.String("message", apiErr.ErrorMessage))
		return nil, apiErr
	}

	var out TokenResponse
	if err := c.serializer.Deserialize(resp.Body, &out); err != nil {
		return nil, &serialization.DecodeError{Target: "TokenResponse", Err: err}
	}
	if out.JWT == "" {
		return nil, &serialization.DecodeError{Target: "TokenResponse", Err: ErrMissingJWT}
	}

	c.logger.Debug("arango.auth.token_issued", zap.String("user", creds.Username))
	return &out, nil
}
