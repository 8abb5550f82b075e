package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"converse/pkg/clients"
	"converse/pkg/config"
	"converse/pkg/demo"
	"converse/pkg/logger"
	"converse/pkg/session"
	"converse/pkg/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the conversation worker",
	Long:  "Consumes inbound messages and transport events from the broker, runs dialog turns against the session store, publishes replies and answer events, and serves health and metrics endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.worker")

		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("Session store configuration invalid", "error", err)
			return
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		store := session.NewStore(rdb, cfg.SessionTTL)

		registry := prometheus.NewRegistry()
		metrics := worker.NewMetrics(registry)

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := worker.New(cfg, demo.New(dialogDeps(cfg)), store, log, metrics)
		statusServer := worker.NewServer(cfg.HTTPAddr, w, store, registry, log)

		go func() {
			if err := statusServer.Run(runCtx); err != nil {
				log.Error("Status server failed", "error", err)
				stop()
			}
		}()

		if err := w.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Worker runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// dialogDeps builds a client for every collaborator with a URL configured.
// Unset services leave the matching dialog calls disabled.
func dialogDeps(cfg *config.Config) demo.Deps {
	deps := demo.Deps{}
	if cfg.Contacts.URL != "" {
		deps.Contacts = clients.NewContacts(cfg.Contacts.URL, cfg.Contacts.Token)
	}
	if cfg.EventStore.URL != "" {
		deps.EventStore = clients.NewEventStore(cfg.EventStore.URL, cfg.EventStore.Token)
	}
	if cfg.ContentRepo.URL != "" {
		deps.ContentRepo = clients.NewContentRepo(cfg.ContentRepo.URL, cfg.ContentRepo.Token)
	}
	return deps
}
