// Command scanner runs the Discovery-set-to-backtest-tasks bridge
// named in spec.md §2's data-flow line, as a standalone process.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"PerpMesh/internal/broker/amqp"
	"PerpMesh/internal/config"
	"PerpMesh/internal/kv"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/messages"
	"PerpMesh/internal/scanner"
	"PerpMesh/internal/storage"
	"PerpMesh/internal/telemetry"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	telemetry.Init()
	log := logger.With("cmd.scanner")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := amqp.Dial(config.LoadBroker())
	if err != nil {
		log.Errorf("dial broker: %v", err)
		os.Exit(1)
	}
	defer conn.Close()

	store := kv.New(config.LoadKV())
	defer store.Close()

	db, err := storage.Open(config.LoadPersistence())
	if err != nil {
		log.Errorf("open storage: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	svc := scanner.New(conn, store, db, config.LoadTrading(), messages.QueueBacktestTasks)

	addr := os.Getenv("SCANNER_METRICS_ADDR")
	if addr == "" {
		addr = ":9092"
	}
	telem := telemetry.NewServer("scanner", addr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := telem.Run(ctx); err != nil {
			log.Errorf("telemetry server: %v", err)
		}
	}()

	log.Infof("scanner starting, metrics on %s", addr)
	if err := svc.Run(ctx); err != nil {
		log.Errorf("scanner exited with error: %v", err)
	}
	wg.Wait()
	log.Infof("scanner stopped")
}
