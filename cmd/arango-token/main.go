package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/arango-auth/internal/api"
	"github.com/Checker-Finance/arango-auth/internal/publisher"
	"github.com/Checker-Finance/arango-auth/internal/refresher"
	internalsecrets "github.com/Checker-Finance/arango-auth/internal/secrets"
	"github.com/Checker-Finance/arango-auth/internal/token"
	"github.com/Checker-Finance/arango-auth/pkg/auth"
	"github.com/Checker-Finance/arango-auth/pkg/config"
	"github.com/Checker-Finance/arango-auth/pkg/logger"
	"github.com/Checker-Finance/arango-auth/pkg/rate"
	"github.com/Checker-Finance/arango-auth/pkg/secrets"
	"github.com/Checker-Finance/arango-auth/pkg/transport"
	"github.com/Checker-Finance/arango-auth/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()

	if err := cfg.Validate(); err != nil {
		logg.Fatalw("invalid configuration", "error", err)
	}
	logg.Infow("starting [arango-token]...",
		"endpoint", utils.MaskURL(cfg.Endpoint),
		"mode", cfg.RunMode,
		"credentials", cfg.CredentialSource)

	// --- Credentials ---
	stopCleaner := make(chan struct{})
	defer close(stopCleaner)
	resolver, err := newResolver(ctx, cfg, logger.L(), stopCleaner)
	if err != nil {
		logg.Fatalw("failed to init credential resolver", "error", err)
	}

	// --- ArangoDB transport + auth client ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})
	tr, err := transport.New(cfg.Endpoint,
		transport.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		transport.WithLogger(logger.L()),
		transport.WithRateLimiter(rateMgr),
	)
	if err != nil {
		logg.Fatalw("failed to init transport", "error", err)
	}
	authClient := auth.NewClient(tr, auth.WithLogger(logger.L()))

	if cfg.RunMode == config.RunModeOnce {
		code := runOnce(ctx, resolver, authClient)
		logger.Sync()
		os.Exit(code)
	}

	serve(ctx, cfg, resolver, tr, authClient)
}

func newResolver(ctx context.Context, cfg *config.Config, log *zap.Logger, stopCleaner <-chan struct{}) (*internalsecrets.CredentialResolver, error) {
	if cfg.CredentialSource == config.CredentialSourceEnv {
		return internalsecrets.NewStaticResolver(auth.Credentials{
			Username: cfg.Username,
			Password: cfg.Password,
		}), nil
	}

	awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	credCache := secrets.NewCache[auth.Credentials](cfg.CacheTTL)
	go credCache.StartCleaner(cfg.CleanupFreq, stopCleaner)
	return internalsecrets.NewAWSResolver(log, awsProvider, cfg.SecretName, credCache), nil
}

// runOnce prints a single token to stdout and returns the exit code.
func runOnce(ctx context.Context, resolver *internalsecrets.CredentialResolver, client *auth.Client) int {
	logg := logger.S()

	creds, err := resolver.Resolve(ctx)
	if err != nil {
		logg.Errorw("failed to resolve credentials", "error", err)
		return 1
	}
	resp, err := client.RequestTokenWithCredentials(ctx, creds)
	if err != nil {
		logg.Errorw("token request failed", "user", creds.Username, "error", err)
		return 1
	}
	fmt.Println(resp.JWT)
	return 0
}

func serve(
	ctx context.Context,
	cfg *config.Config,
	resolver *internalsecrets.CredentialResolver,
	tr *transport.HTTPTransport,
	client *auth.Client,
) {
	logg := logger.S()

	// --- Token store (Redis) ---
	store, err := token.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, cfg.TokenKeyPrefix)
	if err != nil {
		logg.Fatalw("failed to init token store", "error", err)
	}
	tokens := token.NewManager(logger.L(), client, store, cfg.RefreshSkew)

	checks := map[string]api.Checker{
		"store":  store,
		"arango": api.CheckFunc(arangoAvailability(tr)),
	}

	// --- NATS rotation events (optional) ---
	var nc *nats.Conn
	var pub refresher.RotationPublisher
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		pub = publisher.New(logger.L(), nc, cfg.RotateSubject, cfg.ServiceName)
		checks["nats"] = api.CheckFunc(func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats disconnected")
			}
			return nc.FlushTimeout(time.Second)
		})
	}

	// --- Refresher ---
	ref := refresher.New(logger.L(), resolver, tokens, pub, cfg.RefreshInterval)
	ref.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.HTTPReadTimeout,
		WriteTimeout:          cfg.HTTPWriteTimeout,
		IdleTimeout:           cfg.HTTPIdleTimeout,
		DisableStartupMessage: true,
	})
	username := func(ctx context.Context) (string, error) {
		creds, err := resolver.Resolve(ctx)
		return creds.Username, err
	}
	api.RegisterRoutes(app, api.NewHandler(logger.L(), tokens, username, checks))

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[arango-token] running",
		"redis", cfg.RedisAddr,
		"nats", cfg.NATSURL != "",
		"refresh_interval", cfg.RefreshInterval,
		"refresh_skew", cfg.RefreshSkew)

	<-ctx.Done()
	logg.Info("shutting down [arango-token]...")

	ref.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}

// arangoAvailability probes the server's unauthenticated availability endpoint.
func arangoAvailability(tr *transport.HTTPTransport) func(context.Context) error {
	return func(ctx context.Context) error {
		resp, err := tr.Get(ctx, "/_admin/server/availability")
		if err != nil {
			return err
		}
		defer func() { _ = resp.Close() }()
		if !resp.IsSuccessStatusCode() {
			return fmt.Errorf("arangodb availability returned %d", resp.StatusCode)
		}
		return nil
	}
}
