package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reelforge/reelforge/internal/avsync"
	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/database"
	"github.com/reelforge/reelforge/internal/ffmpeg"
	internalhttp "github.com/reelforge/reelforge/internal/http"
	"github.com/reelforge/reelforge/internal/http/handlers"
	"github.com/reelforge/reelforge/internal/httpclient"
	"github.com/reelforge/reelforge/internal/orchestrator"
	"github.com/reelforge/reelforge/internal/providers"
	"github.com/reelforge/reelforge/internal/repository"
	"github.com/reelforge/reelforge/internal/scheduler"
	"github.com/reelforge/reelforge/internal/startup"
	"github.com/reelforge/reelforge/internal/storage"
	"github.com/reelforge/reelforge/internal/util"
	"github.com/reelforge/reelforge/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reelforge server",
	Long: `Start the reelforge HTTP server and processing pipeline.

The server provides:
- REST API for creating and tracking video runs
- Artifact file serving with range request support
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "reelforge.db", "Database DSN")
	serveCmd.Flags().String("data-dir", "./data", "Storage root for generated videos")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	videoRepo := repository.NewVideoRepository(db.DB)
	segmentRepo := repository.NewSegmentRepository(db.DB)
	lockRepo := repository.NewLockRepository(db.DB)

	sandbox, err := storage.NewSandbox(cfg.Storage.BaseDir)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	if removed, err := startup.CleanupOrphanedTempFiles(logger, cfg.Storage.BaseDir, startup.DefaultCleanupAge); err != nil {
		logger.Warn("cleaning orphaned temp files", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("cleaned orphaned temp files on startup", slog.Int("removed", removed))
	}
	layout := storage.NewVideoLayout(sandbox, cfg.Server.PublicBaseURL)
	cache, err := storage.NewSegmentCache(sandbox, logger, cfg.Storage.CacheTTL, cfg.Storage.CacheHashLength)
	if err != nil {
		return fmt.Errorf("initializing segment cache: %w", err)
	}

	ffmpegBin, err := util.FindBinary(cfg.FFmpeg.BinaryPath)
	if err != nil {
		return fmt.Errorf("locating ffmpeg: %w", err)
	}
	ffprobeBin, err := util.FindBinary(cfg.FFmpeg.ProbePath)
	if err != nil {
		return fmt.Errorf("locating ffprobe: %w", err)
	}

	toolchain := ffmpeg.NewToolchain(ffmpegBin, ffprobeBin)
	prober := ffmpeg.NewProber(ffprobeBin)
	verifier := avsync.New(toolchain, logger)

	storyboardClient := providerClient(cfg.Providers.Storyboard.Timeout, logger)
	videoGenClient := providerClient(cfg.Providers.VideoGen.Timeout, logger)
	narrationClient := providerClient(cfg.Providers.Narration.Timeout, logger)

	storyboard := providers.NewStoryboardProvider(cfg.Providers.Storyboard, storyboardClient, logger)
	videoGen := providers.NewVideoGenProvider(cfg.Providers.VideoGen, videoGenClient, logger)
	narration := providers.NewNarrationProvider(cfg.Providers.Narration, narrationClient, logger)

	lockService := orchestrator.NewLockService(lockRepo, cfg.Pipeline.LockTimeout, logger)

	orch, err := orchestrator.New(orchestrator.Services{
		Videos:     videoRepo,
		Segments:   segmentRepo,
		Lock:       lockService,
		Layout:     layout,
		Cache:      cache,
		Media:      toolchain,
		Prober:     prober,
		Sync:       verifier,
		Storyboard: storyboard,
		VideoGen:   videoGen,
		Narration:  narration,
		Pipeline:   cfg.Pipeline,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("initializing orchestrator: %w", err)
	}

	runner := orchestrator.NewRunner(orch, 0, logger)
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("starting runner: %w", err)
	}
	defer runner.Stop()

	sched := scheduler.New(lockRepo, cache, runner, cfg.Storage.CacheCleanupInterval, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	handlers.NewVideoHandler(videoRepo, segmentRepo, lockService, layout, cfg.Pipeline).Register(server.API())
	handlers.NewPromptHandler(storyboard, cfg.Pipeline).Register(server.API())
	handlers.NewSystemHandler(lockService, layout, cache, map[string]*httpclient.Client{
		"storyboard": storyboardClient,
		"videogen":   videoGenClient,
		"narration":  narrationClient,
	}, version.Version).Register(server.API())
	handlers.NewFileHandler(videoRepo, layout, logger).Register(server.Router())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logger.Info("reelforge started",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Version),
	)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutting down HTTP server", slog.String("error", err.Error()))
	}
	cancel()
	return nil
}

// providerClient builds the resilient HTTP client shared pattern for one
// provider: retries with backoff plus a circuit breaker.
func providerClient(timeout time.Duration, logger *slog.Logger) *httpclient.Client {
	hc := httpclient.DefaultConfig()
	if timeout > 0 {
		hc.Timeout = timeout
	}
	hc.Logger = logger
	return httpclient.New(hc)
}
