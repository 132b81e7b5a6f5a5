// Command finder runs the Position-Finder of spec.md §4.5 as a
// standalone process; run several for horizontal parallelism, exactly
// as Analyzer does (spec.md §5).
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"PerpMesh/internal/broker/amqp"
	"PerpMesh/internal/config"
	"PerpMesh/internal/entryengine"
	"PerpMesh/internal/exchange/bybit"
	"PerpMesh/internal/finder"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/messages"
	"PerpMesh/internal/storage"
	"PerpMesh/internal/telemetry"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	telemetry.Init()
	log := logger.With("cmd.finder")

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

	svc := finder.New(client, conn, db, engineCfg, messages.QueueTradingSignals)

	addr := os.Getenv("FINDER_METRICS_ADDR")
	if addr == "" {
		addr = ":9095"
	}
	telem := telemetry.NewServer("finder", addr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := telem.Run(ctx); err != nil {
			log.Errorf("telemetry server: %v", err)
		}
	}()

	log.Infof("finder starting, metrics on %s", addr)
	if err := svc.Run(ctx); err != nil {
		log.Errorf("finder exited with error: %v", err)
	}
	wg.Wait()
	log.Infof("finder stopped")
}
