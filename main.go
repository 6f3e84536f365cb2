// Command studio-core is the main entrypoint for the broadcast studio API and
// background workers. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Builds the credential vault and the destination adapter registry.
//   - Starts background jobs: the comment ingest supervisor and OAuth token
//     refreshers for Twitch/YouTube.
//   - Exposes the HTTP API with /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"github.com/joho/godotenv"
	"github.com/onairlab/studio-core/broadcast"
	"github.com/onairlab/studio-core/comments"
	"github.com/onairlab/studio-core/config"
	"github.com/onairlab/studio-core/db"
	"github.com/onairlab/studio-core/destination"
	"github.com/onairlab/studio-core/egress"
	"github.com/onairlab/studio-core/oauth"
	"github.com/onairlab/studio-core/scene"
	"github.com/onairlab/studio-core/server"
	"github.com/onairlab/studio-core/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("studio-core", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Credential vault (AES-GCM when ENCRYPTION_KEY is set, plaintext otherwise).
	vault, err := db.VaultFromEnv()
	if err != nil {
		slog.Error("vault init failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Stores and adapters
	scenes := scene.NewStore(database)
	dests := destination.NewStore(database, vault)
	commentStore := comments.NewStore(database)

	ytAdapter := destination.NewYouTubeAdapter(cfg)
	twAdapter := destination.NewTwitchAdapter(cfg)
	registry := destination.NewRegistry(ytAdapter, twAdapter, destination.RTMPAdapter{})

	orchestrator := broadcast.New(database, scenes, dests, registry,
		egress.NewHTTPClient(cfg.EgressURL),
		&egress.HTTPTrackProvider{BaseURL: cfg.RoomURL},
		nil, cfg.StorageBaseURL)

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Comment ingest: one supervisor reconciles pollers/recorders against live broadcasts.
	supervisor := &comments.Supervisor{
		DB:           database,
		Store:        commentStore,
		Destinations: dests,
		YouTube:      ytAdapter,
		PollInterval: cfg.CommentPollInterval,
		BotUsername:  os.Getenv("TWITCH_BOT_USERNAME"),
		BotOAuth:     os.Getenv("TWITCH_BOT_OAUTH"),
	}
	go supervisor.Run(ctx)

	// Centralized OAuth token refreshers
	oauth.StartRefresher(ctx, dests, destination.ProviderTwitch, 5*time.Minute, 15*time.Minute,
		func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
			res, err := twAdapter.RefreshToken(rctx, refreshToken)
			if err != nil {
				return "", "", time.Time{}, "", err
			}
			expiry := time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
			return res.AccessToken, res.RefreshToken, expiry, strings.Join(res.Scope, " "), nil
		})
	oauth.StartRefresher(ctx, dests, destination.ProviderYouTube, 10*time.Minute, 20*time.Minute,
		func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
			oc := ytAdapter.OAuthConfig()
			if oc.ClientID == "" {
				return "", "", time.Time{}, "", context.Canceled
			}
			newTok, err := oc.TokenSource(rctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
			if err != nil {
				return "", "", time.Time{}, "", err
			}
			return newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, "", nil
		})

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	deps := server.Deps{
		DB:           database,
		Cfg:          cfg,
		Scenes:       scenes,
		Destinations: dests,
		Orchestrator: orchestrator,
		Comments:     commentStore,
		YouTube:      ytAdapter,
		Twitch:       twAdapter,
	}
	go func() {
		if err := server.Start(ctx, deps, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
