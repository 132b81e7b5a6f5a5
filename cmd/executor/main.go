// Command executor runs the Order-Executor of spec.md §4.6 as a
// standalone process. Only one instance ever holds the leader lock at
// a time; an extra instance's Run returns an error at startup when the
// lock is already held.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"PerpMesh/internal/config"
	"PerpMesh/internal/exchange/bybit"
	"PerpMesh/internal/executor"
	"PerpMesh/internal/kv"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/storage"
	"PerpMesh/internal/telemetry"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	telemetry.Init()
	log := logger.With("cmd.executor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := bybit.New(config.LoadCredentials())

	db, err := storage.Open(config.LoadPersistence())
	if err != nil {
		log.Errorf("open storage: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	store := kv.New(config.LoadKV())
	defer store.Close()

	svc := executor.New(client, db, store, config.LoadTrading())

	addr := os.Getenv("EXECUTOR_METRICS_ADDR")
	if addr == "" {
		addr = ":9096"
	}
	telem := telemetry.NewServer("executor", addr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := telem.Run(ctx); err != nil {
			log.Errorf("telemetry server: %v", err)
		}
	}()

	log.Infof("executor starting, metrics on %s", addr)
	if err := svc.Run(ctx); err != nil {
		log.Errorf("executor exited with error: %v", err)
	}
	wg.Wait()
	log.Infof("executor stopped")
}
