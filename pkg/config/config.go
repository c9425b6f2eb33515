package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

// Credential sources.
const (
	CredentialSourceEnv = "env"
	CredentialSourceAWS = "aws"
)

// Run modes.
const (
	RunModeOnce  = "once"
	RunModeServe = "serve"
)

// Config holds the runtime configuration for arango-token.
type Config struct {
	ServiceName string
	Env         string
	LogLevel    string
	RunMode     string

	// ArangoDB
	Endpoint       string
	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	// Credentials come either from ARANGO_USERNAME/ARANGO_PASSWORD or from
	// an AWS Secrets Manager JSON secret {"username": "...", "password": "..."}.
	CredentialSource string
	Username         string
	Password         string
	AWSRegion        string
	SecretName       string
	CacheTTL         time.Duration
	CleanupFreq      time.Duration

	// Token keeping
	RedisAddr       string
	RedisDB         int
	RedisPass       string
	TokenKeyPrefix  string
	RefreshInterval time.Duration
	RefreshSkew     time.Duration

	// Rotation events
	NATSURL       string
	RotateSubject string

	// Ops HTTP
	Port             int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// Load loads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName:      GetEnv("SERVICE_NAME", "arango-token"),
		Env:              GetEnv("ENV", "dev"),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		RunMode:          GetEnv("RUN_MODE", RunModeOnce),
		Endpoint:         GetEnv("ARANGO_ENDPOINT", "http://localhost:8529"),
		RequestTimeout:   GetEnvDuration("ARANGO_REQUEST_TIMEOUT", 10*time.Second),
		RateLimitRPS:     GetEnvInt("ARANGO_AUTH_RPS", 5),
		RateLimitBurst:   GetEnvInt("ARANGO_AUTH_BURST", 5),
		CredentialSource: GetEnv("CREDENTIAL_SOURCE", CredentialSourceEnv),
		Username:         GetEnv("ARANGO_USERNAME", "root"),
		Password:         GetEnv("ARANGO_PASSWORD", ""),
		AWSRegion:        GetEnv("AWS_REGION", "us-east-2"),
		SecretName:       GetEnv("ARANGO_SECRET_NAME", ""),
		CacheTTL:         GetEnvDuration("CACHE_TTL", 15*time.Minute),
		CleanupFreq:      GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),
		RedisAddr:        GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          GetEnvInt("REDIS_DB", 0),
		RedisPass:        GetEnv("REDIS_PASS", ""),
		TokenKeyPrefix:   GetEnv("TOKEN_KEY_PREFIX", "arango:jwt"),
		RefreshInterval:  GetEnvDuration("REFRESH_INTERVAL", time.Minute),
		RefreshSkew:      GetEnvDuration("REFRESH_SKEW", 5*time.Minute),
		NATSURL:          GetEnv("NATS_URL", ""),
		RotateSubject:    GetEnv("ROTATE_SUBJECT", "evt.arango.jwt_rotated.v1"),
		Port:             GetEnvInt("PORT", 9040),
		HTTPReadTimeout:  GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPIdleTimeout:  GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("ARANGO_ENDPOINT is required")
	}
	switch c.CredentialSource {
	case CredentialSourceEnv:
		if c.Username == "" {
			return errors.New("ARANGO_USERNAME is required when CREDENTIAL_SOURCE=env")
		}
	case CredentialSourceAWS:
		if c.SecretName == "" {
			return errors.New("ARANGO_SECRET_NAME is required when CREDENTIAL_SOURCE=aws")
		}
		if c.CleanupFreq <= 0 {
			return errors.New("CACHE_CLEANUP_FREQ must be positive")
		}
	default:
		return fmt.Errorf("unknown CREDENTIAL_SOURCE %q", c.CredentialSource)
	}
	switch c.RunMode {
	case RunModeOnce, RunModeServe:
	default:
		return fmt.Errorf("unknown RUN_MODE %q", c.RunMode)
	}
	if c.RunMode == RunModeServe && c.RefreshInterval <= 0 {
		return errors.New("REFRESH_INTERVAL must be positive")
	}
	return nil
}
