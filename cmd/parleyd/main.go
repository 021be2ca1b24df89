// parleyd serves dialogues to players over websocket.
// Configuration comes from PARLEY_* environment variables.
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

	"go.uber.org/zap"

	"github.com/nathoo/parley/config"
	"github.com/nathoo/parley/engine"
	"github.com/nathoo/parley/engine/conversation"
	"github.com/nathoo/parley/engine/effects"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/engine/state"
	"github.com/nathoo/parley/logging"
	"github.com/nathoo/parley/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Server, log *zap.Logger) error {
	reg := predicate.Default()
	world, err := state.LoadWorld(cfg.WorldPath)
	if err != nil {
		return err
	}
	cat, err := server.LoadAsset(cfg.AssetPath, reg)
	if err != nil {
		return err
	}
	for _, w := range cat.Warnings() {
		log.Warn("content warning", zap.String("detail", w))
	}

	hooks := effects.FromWorld(world)
	hooks.Trace = func(call conversation.HookCall, err error) {
		if err == nil {
			log.Debug("hook ran", zap.String("hook", call.Name), zap.String("initiator", string(call.Initiator)))
		}
	}

	hub := server.NewHub(server.HubConfig{
		Engine: engine.Options{
			Catalog:        cat,
			Registry:       reg,
			World:          world,
			Binder:         world,
			Hooks:          hooks,
			Logger:         log,
			MaxBranchDepth: cfg.MaxBranchDepth,
		},
		TickRate:       cfg.TickRate,
		SessionTimeout: cfg.SessionTimeout,
		Logger:         log.Named("hub"),
	})
	go hub.Run(ctx)

	if cfg.WatchAssets {
		go func() {
			if err := server.WatchAsset(ctx, cfg.AssetPath, reg, hub.SwapCatalog, log.Named("watch")); err != nil {
				log.Error("asset watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.NewMux(hub, cfg.AssetPath, log.Named("ws")),
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.ListenAddr),
			zap.Int("dialogues", cat.Len()),
			zap.Uint16("asset_version", cat.Version()))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
