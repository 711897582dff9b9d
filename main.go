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

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github/itish2003/newsrag/config"
	"github/itish2003/newsrag/controller"
	"github/itish2003/newsrag/logging"
	"github/itish2003/newsrag/services"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "newsrag",
	Short: "Conversational question answering over indexed news articles",
	Long: `newsrag indexes news articles into a vector store and answers questions
about them with a retrieval-augmented pipeline that keeps per-session history.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default ./config.yaml)")
	rootCmd.SetOut(os.Stdout)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the configuration and the root logger for a command.
func loadConfig() (*config.AppConfig, *logrus.Logger, error) {
	var (
		cfg  *config.AppConfig
		path string
		err  error
	)
	if configPath == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		path = configPath
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	log.WithField("path", path).Debug("Configuration loaded")
	return cfg, log, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to assemble pipeline: %w", err)
	}
	defer a.Close()

	if err := a.index.EnsureCollection(ctx); err != nil {
		// Retried lazily on the first upsert or search.
		log.WithError(err).Warn("Warning: vector collection is not ready yet")
	}

	if dir := cfg.Ingestion.SpoolDir; dir != "" {
		watcher := services.NewSpoolWatcher(dir, a.ingest, log)
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("WATCHER: spool watcher stopped")
			}
		}()
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), controller.CORSMiddleware())
	controller.NewRAGController(a.rag, a.ingest, a.index, log).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Go Gin backend server starting on http://localhost:%s", cfg.Server.Port)
		log.Infof("Health check available at: http://localhost:%s/health", cfg.Server.Port)
		log.Infof("  POST http://localhost:%s/api/v1/sessions/:id/ask", cfg.Server.Port)
		log.Infof("  POST http://localhost:%s/api/v1/documents", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
