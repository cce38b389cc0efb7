package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/NicolasFerec/ferelix-server/internal/auth"
	"github.com/NicolasFerec/ferelix-server/internal/config"
	"github.com/NicolasFerec/ferelix-server/internal/database"
	"github.com/NicolasFerec/ferelix-server/internal/database/migrations"
	"github.com/NicolasFerec/ferelix-server/internal/ffmpeg"
	internalhttp "github.com/NicolasFerec/ferelix-server/internal/http"
	"github.com/NicolasFerec/ferelix-server/internal/http/handlers"
	"github.com/NicolasFerec/ferelix-server/internal/jobs"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/scanner"
	"github.com/NicolasFerec/ferelix-server/internal/scheduler"
	"github.com/NicolasFerec/ferelix-server/internal/service"
	"github.com/NicolasFerec/ferelix-server/internal/transcoder"
	"github.com/NicolasFerec/ferelix-server/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ferelix server",
	Long: `Start the ferelix HTTP server and API.

The server provides:
- REST API for libraries, playback decisions, and HLS sessions
- Direct byte-range file streaming
- Admin dashboard endpoints for libraries, users, jobs, and settings
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8096, "Port to listen on")
	serveCmd.Flags().String("database", "ferelix.db", "Database DSN (file path for sqlite)")
	serveCmd.Flags().String("data-dir", "./data", "Data directory for transcode output")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Tokens signed with an ephemeral key stop verifying after a restart,
	// so a persistent deployment should set FERELIX_AUTH_SECRET_KEY.
	if cfg.Auth.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generating auth secret: %w", err)
		}
		cfg.Auth.SecretKey = hex.EncodeToString(key)
		logger.Warn("no auth secret key configured, generated an ephemeral one; sessions will not survive restarts")
	}

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Repositories
	libraryRepo := repository.NewLibraryRepository(db.DB)
	mediaRepo := repository.NewMediaFileRepository(db.DB)
	rowRepo := repository.NewRecommendationRowRepository(db.DB)
	settingsRepo := repository.NewSettingsRepository(db.DB)
	jobRepo := repository.NewTranscodingJobRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)

	// Job runtime: event bus, state registry, scheduler
	bus := jobs.NewBus()
	registry := jobs.NewRegistry(bus, logger)
	sched := scheduler.New(logger)
	sched.AddListener(registry)

	// Media probing and encoding
	prober := ffmpeg.NewProber(cfg.FFmpeg.FFprobeBinary()).WithTimeout(cfg.FFmpeg.ProbeTimeout)
	encoders := ffmpeg.NewEncoderSelector(cfg.FFmpeg.FFmpegBinary(), cfg.FFmpeg.HWAccelPriority, logger)

	sc := scanner.New(libraryRepo, mediaRepo, prober, registry, logger).
		WithBatchSize(cfg.Scanner.BatchSize)

	sessions := transcoder.NewManager(
		cfg.Storage.TranscodeRoot(),
		cfg.FFmpeg.FFmpegBinary(),
		jobRepo,
		encoders,
		bus,
		logger,
	).WithMaxAge(cfg.Transcode.SessionMaxAge)

	// Reconcile jobs that were still marked running when the previous
	// process died.
	if swept, err := sessions.CleanupStalledAtStartup(context.Background()); err != nil {
		logger.Warn("cleaning stalled transcoding jobs", slog.Any("error", err))
	} else if swept > 0 {
		logger.Info("cleaned stalled transcoding jobs on startup", slog.Int("count", swept))
	}

	// Services
	settingsService := service.NewSettingsService(settingsRepo, sched, sc, sessions, logger)
	recService := service.NewRecommendationService(db.DB, rowRepo, libraryRepo)

	tokens, err := auth.NewService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("initializing auth: %w", err)
	}
	authn := handlers.NewAuthenticator(tokens, userRepo)

	// HTTP server
	server := internalhttp.NewServer(cfg.Server, logger, version.Version)
	api := server.API()

	handlers.NewHealthHandler(db).Register(api)
	handlers.NewSetupHandler(tokens, userRepo).Register(api)
	handlers.NewAuthHandler(tokens, userRepo, authn).Register(api)
	handlers.NewLibraryHandler(authn, libraryRepo, mediaRepo).Register(api)
	handlers.NewPlaybackHandler(authn, mediaRepo).Register(api)

	hlsHandler := handlers.NewHLSHandler(authn, mediaRepo, jobRepo, sessions)
	hlsHandler.Register(api)

	handlers.NewDashboardLibraryHandler(authn, libraryRepo, sc, sched).Register(api)
	handlers.NewDashboardRowHandler(authn, rowRepo, recService).Register(api)
	handlers.NewDashboardUserHandler(authn, userRepo).Register(api)
	handlers.NewDashboardSettingsHandler(authn, settingsService).Register(api)

	jobsHandler := handlers.NewDashboardJobHandler(authn, registry, sched, logger)
	jobsHandler.Register(api)
	jobsHandler.RegisterRoutes(server.Router())

	// Media byte routes bypass huma; players authenticate with a bearer
	// header or a ?token= query parameter.
	streamHandler := handlers.NewStreamHandler(mediaRepo)
	subtitleHandler := handlers.NewSubtitleHandler(mediaRepo, sessions, cfg.Storage.SubtitleCacheDir())
	server.Router().Group(func(r chi.Router) {
		r.Use(authn.Middleware)
		streamHandler.RegisterRoutes(r)
		subtitleHandler.RegisterRoutes(r)
		hlsHandler.RegisterRoutes(r)
	})

	// Recurring jobs: library scanner and nightly maintenance
	if err := settingsService.RegisterScheduledJobs(context.Background()); err != nil {
		return fmt.Errorf("registering scheduled jobs: %w", err)
	}
	sched.Start()

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting ferelix server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
	)

	serveErr := server.ListenAndServe(ctx)

	if err := sched.Shutdown(context.Background()); err != nil {
		logger.Warn("shutting down scheduler", slog.Any("error", err))
	}

	return serveErr
}
