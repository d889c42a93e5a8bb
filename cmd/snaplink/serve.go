package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"snaplink/internal/bot"
	"snaplink/internal/httpapi"
	"snaplink/internal/scraper"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the redirect server, JSON API and (if configured) the Telegram bot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}
}

func (a *app) serve() error {
	log := a.log
	log.Info("Initializing components...")

	svc, store, err := a.openService()
	if err != nil {
		return err
	}
	defer a.closeStore(store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Background workers use the store; they must return before it closes.
	workers := []func(context.Context){
		func(ctx context.Context) { store.RunGC(ctx, a.cfg.GCInterval) },
	}

	if a.cfg.TelegramBotToken != "" {
		var previewer scraper.Previewer
		if a.cfg.PreviewEnabled {
			previewer = scraper.NewRodPreviewer(a.cfg.PreviewTimeout, log)
		}
		botHandler, err := bot.NewHandler(a.cfg, svc, previewer, log)
		if err != nil {
			stop()
			return err
		}
		workers = append(workers, botHandler.Start)
	} else {
		log.Info("TELEGRAM_BOT_TOKEN not set, Telegram bot disabled")
	}

	running := startWorkers(ctx, workers...)
	defer running.Wait()
	defer stop()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           httpapi.NewServer(svc, a.cfg.BaseURL, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", a.cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info("SnapLink is running. Press Ctrl+C to exit.")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
			return err
		}
	}

	log.Info("Shutting down SnapLink...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
	running.Wait()

	log.Info("SnapLink shut down gracefully.")
	return nil
}

// startWorkers runs each fn in its own goroutine. The returned WaitGroup is
// done once every fn has returned, which they do after ctx is cancelled.
func startWorkers(ctx context.Context, fns ...func(context.Context)) *sync.WaitGroup {
	var wg sync.WaitGroup
	for _, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	return &wg
}
