package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/guild-relay/internal/api"
	"github.com/npezzotti/guild-relay/internal/config"
	"github.com/npezzotti/guild-relay/internal/database"
	"github.com/npezzotti/guild-relay/internal/gateway"
	"github.com/npezzotti/guild-relay/internal/jobs"
	"github.com/npezzotti/guild-relay/internal/persist"
	"github.com/npezzotti/guild-relay/internal/presence"
	"github.com/npezzotti/guild-relay/internal/server"
	"github.com/npezzotti/guild-relay/internal/stats"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func main() {
	logger := log.New(os.Stderr, "[guild-relay] ", log.LstdFlags)

	opts, err := config.LoadOptions()
	if err != nil {
		logger.Fatal("config:", err)
	}

	var origins stringSliceFlag
	flag.StringVar(&opts.ServerAddr, "addr", opts.ServerAddr, "server address")
	flag.StringVar(&opts.DatabaseDriver, "db-driver", opts.DatabaseDriver, "database driver (postgres or sqlite)")
	flag.StringVar(&opts.DatabaseDSN, "dsn", opts.DatabaseDSN, "database connection string")
	flag.StringVar(&opts.SigningKey, "signing-key", opts.SigningKey, "base64 encoded signing key")
	flag.Var(&origins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&opts.TypingTTL, "typing-ttl", opts.TypingTTL, "how long a typing indicator lives")
	flag.BoolVar(&opts.DeliverUnpersisted, "deliver-unpersisted", opts.DeliverUnpersisted, "relay events that could not be stored")
	flag.Parse()

	if len(origins) > 0 {
		opts.AllowedOrigins = origins
	}

	cfg, err := config.NewConfig(opts)
	if err != nil {
		logger.Fatal("config:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	gw, err := gateway.New(cfg.DiscordToken, logger)
	if err != nil {
		logger.Fatal("gateway:", err)
	}

	persister := persist.NewPersister(store, logger, statsUpdater,
		persist.WithNameResolver(gw),
		persist.WithResolveTimeout(cfg.ResolveTimeout),
	)

	registry := server.NewRegistry(logger, persister, statsUpdater, server.Options{
		PersistTimeout:     cfg.PersistTimeout,
		DeliverUnpersisted: cfg.DeliverUnpersisted,
	})

	reconciler := presence.NewReconciler(gw, registry.Broadcaster(), logger, statsUpdater)

	gw.Attach(registry.Broadcaster(), reconciler)
	if err := gw.Open(); err != nil {
		logger.Fatal("gateway open:", err)
	}
	persister.SetBotID(gw.BotID())

	scheduler := jobs.NewScheduler(logger).
		Every("typing-sweep", cfg.TypingSweepInterval, jobs.NewTypingSweeper(store, logger, statsUpdater, cfg.TypingTTL).Sweep).
		Every("presence-poll", cfg.PresencePollInterval, reconciler.Poll).
		Every("status", cfg.StatusLogInterval, jobs.NewStatusReporter(store, registry, logger).Report)

	srv := api.NewRelayApp(mux, logger, registry, store, gw, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Println("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Println("HTTP server shutdown:", err)
		}
		if err := registry.Shutdown(shutdownCtx); err != nil {
			logger.Println("registry shutdown:", err)
		}
		if err := gw.Close(); err != nil {
			logger.Println("gateway close:", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Println("server:", err)
	}

	logger.Println("shutdown complete")
}
