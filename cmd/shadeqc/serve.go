package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shadeqc/internal/capture"
	"shadeqc/internal/config"
	"shadeqc/internal/connectors"
	"shadeqc/internal/listener"
	"shadeqc/internal/metrics"
	"shadeqc/internal/pipeline"
	"shadeqc/internal/server"
	"shadeqc/internal/session"
	"shadeqc/internal/source"
	"shadeqc/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(cfg *config.Config) *cobra.Command {
	var (
		addr     string
		location string
		mail     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the inspection source and serve the dashboard API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			if location != "" {
				cfg.SourceLocation = location
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, *cfg, mail)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR)")
	cmd.Flags().StringVar(&location, "source", "", "CSV/XLSX path or URL (default SOURCE_LOCATION)")
	cmd.Flags().BoolVar(&mail, "mail", false, "also poll the mailbox for inspection reports")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, mail bool) error {
	log := slog.Default()
	db, err := storage.Open()
	if err != nil {
		return err
	}
	defer db.Close()

	reg := metrics.NewRegistry()
	sess := session.New(db, session.Options{
		Location: cfg.SourceLocation,
		Prefix:   cfg.SourceIDPrefix,
		Loader:   source.NewFetcher(cfg),
		Metrics:  reg,
		Logger:   log,
	})
	// an unavailable source is served as such rather than failing startup
	if err := sess.Reload(ctx); err != nil {
		log.Warn("initial source load failed", slog.String("error", err.Error()))
	}

	if cfg.SourceWatch && !source.IsRemote(cfg.SourceLocation) {
		w := listener.NewSourceWatcher(cfg.SourceLocation, cfg.SourceWatchDebounce(), sess, log)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error("source watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	if mail {
		conn, err := connectors.ForProvider(cfg, cfg.MailListenerProvider)
		if err != nil {
			return err
		}
		importer := pipeline.NewImportService(db, sess, pipeline.ImportOptions{Normalizer: sess.Normalizer, Metrics: reg, Logger: log})
		l := listener.NewService(cfg, cfg.MailListenerProvider, connectors.NewFetchService(db, conn, log), importer, sess, log)
		go func() { _ = l.Run(ctx) }()
	}

	capt := capture.New(sess, capture.Options{Metrics: reg, Logger: log})
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.New(server.Options{
			Session:     sess,
			Capture:     capt,
			Metrics:     reg.Handler(),
			Logger:      log,
			ReportTitle: cfg.ReportTitle,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", slog.String("addr", cfg.HTTPAddr), slog.String("source", cfg.SourceLocation))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
