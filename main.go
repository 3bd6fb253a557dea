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

	"github.com/gorilla/mux"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"art-studio-server/modules/common/config"
	"art-studio-server/modules/common/httputil"
	"art-studio-server/modules/common/logging"
	"art-studio-server/modules/common/redis"
	"art-studio-server/modules/history"
	"art-studio-server/modules/inference"
	"art-studio-server/modules/realtime"
	"art-studio-server/modules/studio"
)

const cleanupInterval = 5 * time.Minute

// CLI flags
var (
	portFlag    string
	envFileFlag string
)

var rootCmd = &cobra.Command{
	Use:   "art-studio",
	Short: "Art generation studio server",
	Long: `Art Studio serves isolated art generation sessions over HTTP. Each
session composes a styled prompt, generates up to four variations through a
remote text-to-image model and keeps its last five batches for download.
Batch progress is streamed over a WebSocket.

Examples:
  art-studio
  art-studio --port 9090
  art-studio --env-file ./prod.env`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVar(&portFlag, "port", "", "Port to listen on (overrides PORT)")
	rootCmd.Flags().StringVar(&envFileFlag, "env-file", "", "Path to a .env file (default ./.env)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	logging.Init("info")

	cfg, err := config.LoadConfig(envFileFlag)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Fatal().Str("key", cfgErr.Key).Msg("❌ " + cfgErr.Error())
		}
		log.Fatal().Err(err).Msg("❌ Failed to load config")
	}
	if portFlag != "" {
		cfg.Port = portFlag
	}

	logging.Init(cfg.LogLevel)
	cfg.LogSummary()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init %s backend: %w", cfg.GenerationBackend, err)
	}
	client, err := inference.NewClient(backend, cfg.GenerationTimeout)
	if err != nil {
		return err
	}

	var rdb goredis.Cmdable
	if cfg.HistoryBackend == config.HistoryRedis {
		conn, err := redis.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()
		rdb = conn
	}
	storeFactory, err := history.NewFactory(cfg, rdb)
	if err != nil {
		return err
	}

	metrics := studio.NewMetrics()
	sessions := studio.NewSessionManager(storeFactory, cfg.SessionIdleTimeout, cfg.SessionMaxAge, metrics)
	hub := realtime.NewHub()
	sessions.OnEnd(hub.CloseSession)
	sessions.StartCleanupRoutine(ctx, cleanupInterval)

	orchestrator := studio.NewOrchestrator(client, client.SeedSource(inference.RandomSeed), metrics)
	handler := studio.NewHandler(sessions, orchestrator, hub, client.Backend())

	r := mux.NewRouter()
	r.Use(httputil.EnableCORS)
	r.Use(logging.Middleware)
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// A batch of four variations holds the request open for up to four
		// generation timeouts.
		WriteTimeout: 4*cfg.GenerationTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("⚠️ Graceful shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("backend", client.Backend()).Msg("🚀 Art Studio server starting")
	log.Info().Msgf("📡 WebSocket endpoint: ws://localhost:%s/ws?session={id}", cfg.Port)
	log.Info().Msgf("❤️  Health check: http://localhost:%s/health", cfg.Port)
	log.Info().Msgf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func newBackend(ctx context.Context, cfg *config.Config) (inference.Backend, error) {
	switch cfg.GenerationBackend {
	case config.BackendImagen:
		return inference.NewImagenBackend(ctx, inference.ImagenConfig{
			APIKey:   cfg.GeminiAPIKey,
			Project:  cfg.GCPProject,
			Location: cfg.GCPLocation,
			Model:    cfg.ModelID,
		})
	default:
		return inference.NewHuggingFaceBackend(cfg.HFInferenceURL, cfg.ModelID, cfg.HuggingFaceToken, nil)
	}
}
