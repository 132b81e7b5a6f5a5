// Command analyzer runs the Backtest-Analyzer of spec.md §4.3 as a
// standalone process; run several for horizontal parallelism (spec.md
// §5: "prefetch=1... horizontal parallelism via process count").
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"PerpMesh/internal/analyzer"
	"PerpMesh/internal/broker/amqp"
	"PerpMesh/internal/config"
	"PerpMesh/internal/entryengine"
	"PerpMesh/internal/exchange/bybit"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/messages"
	"PerpMesh/internal/storage"
	"PerpMesh/internal/telemetry"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	telemetry.Init()
	log := logger.With("cmd.analyzer")

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

	client := bybit.New(config.LoadCredentials())
	engineCfg := entryengine.ConfigFromTrading(config.LoadTrading())

	svc := analyzer.New(client, conn, db, engineCfg, messages.QueueBacktestTasks)

	addr := os.Getenv("ANALYZER_METRICS_ADDR")
	if addr == "" {
		addr = ":9093"
	}
	telem := telemetry.NewServer("analyzer", addr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := telem.Run(ctx); err != nil {
			log.Errorf("telemetry server: %v", err)
		}
	}()

	log.Infof("analyzer starting, metrics on %s", addr)
	if err := svc.Run(ctx); err != nil {
		log.Errorf("analyzer exited with error: %v", err)
	}
	wg.Wait()
	log.Infof("analyzer stopped")
}
