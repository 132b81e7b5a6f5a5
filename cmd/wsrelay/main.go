// Command wsrelay runs the optional Scanner v2 live-scanner variant of
// spec.md §5: it is not part of the minimum pipeline (REST-polling
// Scanner still owns backtest-tasks), so unlike the other five
// services it fetches its symbol set once at startup from the same
// Discovery KV entry rather than re-subscribing on every Discovery
// cycle, and exits if no discovery set has been published yet.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"PerpMesh/internal/broker/amqp"
	"PerpMesh/internal/broker/wsrelay"
	"PerpMesh/internal/config"
	"PerpMesh/internal/kv"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/messages"
	"PerpMesh/internal/telemetry"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	telemetry.Init()
	log := logger.With("cmd.wsrelay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := kv.New(config.LoadKV())
	defer store.Close()

	set, ok, err := store.LatestDiscovery(ctx)
	if err != nil {
		log.Errorf("load discovery set: %v", err)
		os.Exit(1)
	}
	if !ok || len(set.Symbols) == 0 {
		log.Errorf("no discovery set published yet; run discovery before wsrelay")
		os.Exit(1)
	}

	conn, err := amqp.Dial(config.LoadBroker())
	if err != nil {
		log.Errorf("dial broker: %v", err)
		os.Exit(1)
	}
	defer conn.Close()

	svc := wsrelay.New(conn, config.LoadRelay(), set.Symbols, messages.QueueEntrySignal)

	addr := os.Getenv("WSRELAY_METRICS_ADDR")
	if addr == "" {
		addr = ":9097"
	}
	telem := telemetry.NewServer("wsrelay", addr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := telem.Run(ctx); err != nil {
			log.Errorf("telemetry server: %v", err)
		}
	}()

	log.Infof("wsrelay starting against %d symbol(s), metrics on %s", len(set.Symbols), addr)
	if err := svc.Run(ctx); err != nil {
		log.Errorf("wsrelay exited with error: %v", err)
	}
	wg.Wait()
	log.Infof("wsrelay stopped")
}
