// Command server starts the vehicle registry HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vehicle-registry/internal/api"
	"vehicle-registry/internal/auth"
	"vehicle-registry/internal/media"
	"vehicle-registry/internal/observability/logging"
	"vehicle-registry/internal/server"
	"vehicle-registry/internal/storage"
)

const (
	defaultJWTSecret    = "dev-secret-change-me"
	defaultTokenTTL     = 60 * time.Minute
	defaultAdminEmail   = "admin@example.com"
	defaultAdminPass    = "admin123"
	defaultMediaRoot    = "media"
	defaultLoginLimit   = 10
	defaultLoginWindow  = time.Minute
	defaultShutdownWait = 10 * time.Second
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	storageDriver := flag.String("storage-driver", "", "datastore driver (memory or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	mediaRoot := flag.String("media-root", "", "directory for uploaded vehicle images")
	jwtSecret := flag.String("jwt-secret", "", "secret used to sign access tokens")
	tokenTTL := flag.Duration("jwt-expire", 0, "access token lifetime")
	adminEmail := flag.String("admin-email", "", "admin login email")
	adminPassword := flag.String("admin-password", "", "admin login password")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("VEHREG_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("VEHREG_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")

	serverMode := modeValue(*mode, os.Getenv("VEHREG_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("VEHREG_ADDR"))

	secret := firstNonEmpty(*jwtSecret, os.Getenv("VEHREG_JWT_SECRET"), defaultJWTSecret)
	ttl := resolveDuration(*tokenTTL, "VEHREG_JWT_EXPIRE_MIN", defaultTokenTTL)

	dsn := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("VEHREG_STORAGE_DRIVER"), dsn)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProduction(driver, dsn, secret); err != nil {
			logger.Error("production validation failed", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	var store storage.Repository
	switch driver {
	case "memory":
		store = storage.NewMemoryStore()
	case "postgres":
		if dsn == "" {
			cancel()
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.PostgresOption
		maxConns := resolveInt(*postgresMaxConns, "VEHREG_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "VEHREG_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "VEHREG_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "VEHREG_POSTGRES_MAX_CONN_IDLE", 0)
		if maxLifetime > 0 || maxIdle > 0 {
			pgOptions = append(pgOptions, storage.WithPoolDurations(maxLifetime, maxIdle))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "VEHREG_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("VEHREG_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithApplicationName(appName))
		}
		store, err = storage.NewPostgresStore(ctx, dsn, pgOptions...)
		if err != nil {
			cancel()
			logger.Error("failed to open datastore", "error", err)
			os.Exit(1)
		}
	default:
		cancel()
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	cancel()

	admin, err := auth.NewPrincipal(
		firstNonEmpty(*adminEmail, os.Getenv("VEHREG_ADMIN_EMAIL"), defaultAdminEmail),
		firstNonEmpty(*adminPassword, os.Getenv("VEHREG_ADMIN_PASSWORD"), defaultAdminPass),
	)
	if err != nil {
		logger.Error("failed to configure admin principal", "error", err)
		os.Exit(1)
	}

	mediaDir := firstNonEmpty(*mediaRoot, os.Getenv("VEHREG_MEDIA_ROOT"), defaultMediaRoot)
	mediaManager, err := media.NewManager(mediaDir, logging.WithComponent(logger, "media"))
	if err != nil {
		logger.Error("failed to prepare media root", "error", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenService([]byte(secret), ttl)
	handler := api.NewHandler(store, tokens, admin, mediaManager, logging.WithComponent(logger, "api"))

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "VEHREG_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "VEHREG_RATE_GLOBAL_BURST"),
		LoginLimit:    resolveIntDefault(*loginLimit, "VEHREG_RATE_LOGIN_LIMIT", defaultLoginLimit),
		LoginWindow:   resolveDuration(*loginWindow, "VEHREG_RATE_LOGIN_WINDOW", defaultLoginWindow),
		RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("VEHREG_RATE_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("VEHREG_RATE_REDIS_PASSWORD")),
		RedisTimeout:  resolveDuration(*redisTimeout, "VEHREG_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	srv, err := server.New(handler, server.Config{
		Addr:      listenAddr,
		TLS:       server.TLSConfig{CertFile: firstNonEmpty(*tlsCert, os.Getenv("VEHREG_TLS_CERT")), KeyFile: firstNonEmpty(*tlsKey, os.Getenv("VEHREG_TLS_KEY"))},
		RateLimit: rateCfg,
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("VEHREG_CORS_ORIGINS"))),
		},
		MediaRoot:   mediaDir,
		Logger:      logger,
		AuditLogger: auditLogger,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("vehicle registry API listening", "addr", listenAddr, "mode", serverMode, "driver", driver)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownWait)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(shutdownCtx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	logger.Info("server stopped")
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "memory", nil
}

func validateProduction(driver, dsn, secret string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("production mode requires VEHREG_POSTGRES_DSN or DATABASE_URL to be set")
	}
	if secret == defaultJWTSecret {
		return fmt.Errorf("production mode requires VEHREG_JWT_SECRET to be set")
	}
	return nil
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("VEHREG_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveIntDefault(flagValue int, envKey string, fallback int) int {
	if value := resolveInt(flagValue, envKey); value > 0 {
		return value
	}
	return fallback
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
		if minutes, err := strconv.Atoi(strings.TrimSpace(env)); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
