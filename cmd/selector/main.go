// Command selector runs the Strategy-Selector of spec.md §4.4 as a
// standalone process.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"PerpMesh/internal/broker/amqp"
	"PerpMesh/internal/config"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/messages"
	"PerpMesh/internal/selector"
	"PerpMesh/internal/storage"
	"PerpMesh/internal/telemetry"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	telemetry.Init()
	log := logger.With("cmd.selector")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := amqp.Dial(config.LoadBroker())
	if err != nil {
		log.Errorf("dial broker: %v", err)
		os.Exit(1)
	}
	defer conn.Close()

	db, err := storage.Open(config.LoadPersistence())
	if err != nil {
		log.Errorf("open storage: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	svc := selector.New(db, conn, config.LoadTrading(), messages.QueueTradingSignals)

	addr := os.Getenv("SELECTOR_METRICS_ADDR")
	if addr == "" {
		addr = ":9094"
	}
	telem := telemetry.NewServer("selector", addr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := telem.Run(ctx); err != nil {
			log.Errorf("telemetry server: %v", err)
		}
	}()

	log.Infof("selector starting, metrics on %s", addr)
	if err := svc.Run(ctx); err != nil {
		log.Errorf("selector exited with error: %v", err)
	}
	wg.Wait()
	log.Infof("selector stopped")
}
