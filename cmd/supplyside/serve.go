package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chriskuech/supplyside-sub001/internal/blob"
	"github.com/chriskuech/supplyside-sub001/internal/catalog"
	"github.com/chriskuech/supplyside-sub001/internal/events"
	"github.com/chriskuech/supplyside-sub001/internal/repository"
	"github.com/chriskuech/supplyside-sub001/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the HTTP server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing store", "err", err)
			}
		}()

		var next events.Publisher = &events.NoopPublisher{}
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			next = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			logger.Info("events disabled (SUPPLYSIDE_NATS_URL not set)")
		}
		hub := server.NewHub(next)
		defer func() {
			if err := hub.Close(); err != nil {
				logger.Error("error closing publisher", "err", err)
			}
		}()

		var blobs blob.Store
		if cfg.S3Bucket != "" {
			s3, err := blob.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, cfg.S3Endpoint)
			if err != nil {
				return err
			}
			blobs = s3
			logger.Info("file storage enabled", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
		} else {
			blobs = blob.NewMemoryStore()
			logger.Info("file storage in memory (SUPPLYSIDE_S3_BUCKET not set)")
		}

		cat, err := catalog.New(st, hub)
		if err != nil {
			return err
		}
		repo := repository.New(st, hub, blobs)

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           server.New(repo, cat, hub).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
		case err := <-errCh:
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}
