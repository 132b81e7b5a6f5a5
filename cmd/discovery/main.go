// Command discovery runs the periodic symbol-universe survey of
// spec.md §4.1 as a standalone process.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"PerpMesh/internal/config"
	"PerpMesh/internal/discovery"
	"PerpMesh/internal/exchange/bybit"
	"PerpMesh/internal/kv"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/telemetry"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	telemetry.Init()
	log := logger.With("cmd.discovery")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := bybit.New(config.LoadCredentials())
	store := kv.New(config.LoadKV())
	defer store.Close()

	svc := discovery.New(client, store, config.LoadTrading())

	addr := os.Getenv("DISCOVERY_METRICS_ADDR")
	if addr == "" {
		addr = ":9091"
	}
	telem := telemetry.NewServer("discovery", addr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := telem.Run(ctx); err != nil {
			log.Errorf("telemetry server: %v", err)
		}
	}()

	log.Infof("discovery starting, metrics on %s", addr)
	if err := svc.Run(ctx); err != nil {
		log.Errorf("discovery exited with error: %v", err)
	}
	wg.Wait()
	log.Infof("discovery stopped")
}
