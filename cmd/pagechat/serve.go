package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/pagechat/internal/api"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interactive chat session over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides PORT, default 8501)")
	rootCmd.AddCommand(serveCmd)
}

// pinger is implemented by backends that can check the model server is up.
type pinger interface {
	Ping(ctx context.Context) ([]string, error)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if servePort != "" {
		cfg.Port = servePort
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if p, ok := a.backend.(pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		models, err := p.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("model server unreachable", "error", err)
		} else {
			logger.Info("model server reachable", "models", len(models))
		}
	}

	srv := api.NewServer(a.indexer, a.answerer, a.index, a.backend, logger, cfg)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2*cfg.LLMTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		srv.Close()
	}()

	logger.Info("starting pagechat", "port", cfg.Port, "provider", cfg.Provider, "model", a.backend.Model())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
