package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/crypto/bcrypt"

	echoapi "go.pilab.hu/fence/api/echo"
	"go.pilab.hu/fence/authcode"
	"go.pilab.hu/fence/client"
	"go.pilab.hu/fence/config"
	"go.pilab.hu/fence/internal/audit"
	"go.pilab.hu/fence/internal/backend"
	"go.pilab.hu/fence/internal/metrics"
	"go.pilab.hu/fence/internal/server"
	"go.pilab.hu/fence/keys"
	"go.pilab.hu/fence/log"
	"go.pilab.hu/fence/middleware"
	"go.pilab.hu/fence/token"
	"go.pilab.hu/fence/tracing"
	"go.pilab.hu/fence/users"
)

func main() {
	cfg, err := config.Load(os.Getenv("FENCE_CONFIG_FILE"))
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := log.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		zerolog.New(os.Stdout).With().Timestamp().Logger().Warn().
			Str("configured_log_level", cfg.LogLevel).
			Err(parseErr).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info(ctx, "Starting fence server", log.Fields{
		"http_port":        cfg.HTTPPort,
		"application_root": cfg.ApplicationRoot,
		"issuer":           cfg.Issuer,
		"store_backend":    cfg.StoreBackend,
		"log_level":        cfg.LogLevel,
	})

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Fatal(context.Background(), "Server stopped with error", err)
	}
	appLogger.Info(context.Background(), "Server gracefully stopped.")
}

func run(ctx context.Context, cfg *config.Config, appLogger log.Logger) error {
	var tracerProvider *sdktrace.TracerProvider
	if cfg.OtelEnabled {
		tp, err := tracing.InitTracerProvider(cfg.OtelServiceName, os.Stdout)
		if err != nil {
			return fmt.Errorf("failed to initialize TracerProvider: %w", err)
		}
		tracerProvider = tp
		appLogger.Info(ctx, "TracerProvider initialized.")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	stores, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.ClientsFile != "" {
		clients, err := client.LoadFile(cfg.ClientsFile)
		if err != nil {
			stores.Close(context.Background())
			return err
		}
		n, err := client.Seed(ctx, stores.Clients, clients)
		if err != nil {
			stores.Close(context.Background())
			return err
		}
		appLogger.Info(ctx, "Clients registered from file", log.Fields{"file": cfg.ClientsFile, "count": n})
	}

	registry, err := keys.LoadRegistry(cfg.KeyPairPaths())
	if err != nil {
		stores.Close(context.Background())
		return err
	}
	appLogger.Info(ctx, "Signing keys loaded", log.Fields{
		"key_ids": registry.KeyIDs(),
		"current": registry.Current().KeyID,
	})

	signer := token.NewSigner(registry, cfg.Issuer, cfg.AccessTokenLifetime)
	clientSvc := client.NewService(stores.Clients, bcrypt.DefaultCost)
	userSvc := users.NewService(stores.Users, appLogger)
	var auditLog *audit.Logger
	if cfg.AuditLog {
		auditLog = audit.New(os.Stdout, cfg.OtelServiceName)
	}
	codeSvc := authcode.NewService(stores.AuthCodes, clientSvc, signer, authcode.Options{
		Lifetime: cfg.AuthCodeLifetime,
		Logger:   appLogger,
		Recorder: m,
		Audit:    auditLog,
	})

	reaper := authcode.NewReaper(stores.AuthCodes, cfg.AuthCodeReapInterval, appLogger, m.CodesReaped)
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		reaper.Run(reaperCtx)
	}()

	var limiter *middleware.RateLimiter
	if cfg.TokenRateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.TokenRateLimit, cfg.TokenRateBurst)
	}

	checks := make(map[string]echoapi.HealthCheck, len(stores.HealthChecks))
	for name, check := range stores.HealthChecks {
		checks[name] = check
	}

	oauthAPI := echoapi.NewOAuth2API(echoapi.Deps{
		Codes:              codeSvc,
		Clients:            clientSvc,
		Users:              userSvc,
		Signer:             signer,
		Keys:               registry,
		Logger:             appLogger,
		Issuer:             cfg.Issuer,
		UserIdentityHeader: cfg.UserIdentityHeader,
	})
	e := echoapi.NewEcho(oauthAPI, echoapi.ServerOptions{
		ApplicationRoot: cfg.ApplicationRoot,
		Logger:          appLogger,
		RateLimiter:     limiter,
		OnRateLimited:   m.RateLimited,
		Gatherer:        prometheus.DefaultGatherer,
		HealthChecks:    checks,
	})

	httpServer := server.NewHTTPServer(cfg, e)
	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info(context.Background(), "Shutdown signal received")
	case err := <-serveErr:
		runErr = fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}

	stopReaper()
	<-reaperDone

	if limiter != nil {
		limiter.Close()
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err)
		}
	}

	stores.Close(shutdownCtx)

	return runErr
}
