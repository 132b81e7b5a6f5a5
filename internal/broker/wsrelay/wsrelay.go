// Package wsrelay implements Scanner v2 of spec.md §5: an optional,
// not-in-the-minimum-pipeline live scanner that watches the exchange's
// public ticker and orderbook WebSocket feeds instead of polling REST,
// and publishes the optional entry-signal/opportunity-queue message
// (spec.md §6) the moment a symbol clears one of its signal gates.
// spec.md §5 specifies the loop's shape exactly: "a cooperative
// event-loop design with one WebSocket reader task, a ping task, and
// one heartbeat task; message handlers are non-blocking" — this
// package is that event loop. The gates themselves (Bollinger-band
// squeeze breakout, orderbook imbalance, 24h momentum) are
// supplemented from the original implementation's live-scanner
// processors (`services/scanner/processors/squeeze_detector.py`,
// `orderbook_analyzer.py`), which spec.md's distillation only
// describes as "message handlers" without naming what they score.
package wsrelay

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"PerpMesh/internal/broker/amqp"
	"PerpMesh/internal/config"
	"PerpMesh/internal/ids"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/messages"
)

var log = logger.With("broker.wsrelay")

// momentumThreshold is the minimum 24h percent move wsrelay requires
// before its momentum gate calls a direction at all; below this it
// treats the tick as noise. It sits below Discovery's default
// MIN_VOLATILITY_PCT (2.0), so a move can clear this gate without
// clearing Discovery's inclusion rule.
const momentumThreshold = 1.5

// minConfidence is the floor wsrelay will publish at; a gate that
// fires below this confidence is dropped rather than forwarded.
const minConfidence = 55.0

// bbWindow/bbStdDev are squeeze_detector.py's SqueezeDetector defaults
// (config/settings.py BB_WINDOW=20, BB_STD_DEV=2.0).
const (
	bbWindow  = 20
	bbStdDev  = 2.0
	maxPrices = bbWindow * 2
)

// squeezeRatioThreshold mirrors squeeze_detector.py: a band-width
// ratio under 0.2 against its own running max, while expanding over
// the last 3 samples, is a squeeze release; confidence is 1-ratio
// scaled to the same 0-100 range the other gates use.
const squeezeRatioThreshold = 0.2

// orderbookImbalanceThreshold is orderbook_analyzer.py's
// OB_IMBALANCE_THRESHOLD default (config/settings.py: 0.7).
const orderbookImbalanceThreshold = 0.7

// Service runs the cooperative WebSocket event loop against a fixed
// symbol set and forwards qualifying moves to the entry-signal queue.
type Service struct {
	conn    *amqp.Conn
	queue   string
	cfg     config.Relay
	symbols []string

	squeezes   map[string]*squeezeTracker
	orderbooks map[string]*orderbookTracker

	id      string
	running bool
	stopCh  chan struct{}
}

func New(conn *amqp.Conn, cfg config.Relay, symbols []string, queue string) *Service {
	return &Service{
		conn:       conn,
		cfg:        cfg,
		symbols:    symbols,
		queue:      queue,
		squeezes:   make(map[string]*squeezeTracker),
		orderbooks: make(map[string]*orderbookTracker),
		id:         ids.New(),
	}
}

// wsEnvelope is the common shape of every bybit v5 public push
// (spec.md names no wire format for this optional path, so the
// envelope follows the exchange's own documented public-topic shape).
type wsEnvelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// tickerData is the subset of a tickers.* push wsrelay needs.
type tickerData struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Price24hPcnt string `json:"price24hPcnt"`
}

// orderbookData is the subset of an orderbook.1.* push wsrelay needs:
// best bid/ask quantity at depth level 1, following
// orderbook_analyzer.py's level-1-only imbalance calculation.
type orderbookData struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
}

// wsEvent is the reader task's unified output: either a ticker or an
// orderbook update, never both.
type wsEvent struct {
	kind      string // "ticker" or "orderbook"
	symbol    string
	price     float64
	pctChange float64
	bidQty    float64
	askQty    float64
}

// Run dials the relay, subscribes to every symbol's ticker and
// orderbook topics, and reconnects with cfg.ReconnectDelay between
// attempts until ctx is cancelled or Stop is called. Each connection
// attempt runs its own reader/ping/heartbeat trio and returns when any
// of the three exits.
func (s *Service) Run(ctx context.Context) error {
	if err := s.conn.DeclareQueue(s.queue); err != nil {
		return err
	}
	s.running = true
	s.stopCh = make(chan struct{})
	log.Infof("wsrelay %s starting against %d symbol(s)", s.id, len(s.symbols))

	for s.running {
		if err := s.runSession(ctx); err != nil {
			log.Errorf("relay session ended: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
	return nil
}

func (s *Service) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// runSession owns one WebSocket connection's lifetime: subscribe, then
// run the reader/ping/heartbeat tasks until one of them errors or ctx
// is done, at which point the connection is torn down so Run's loop
// can reconnect.
func (s *Service) runSession(ctx context.Context) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(sessionCtx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := s.subscribe(conn); err != nil {
		return err
	}

	// events is the handoff between the reader task and the scoring
	// worker. Buffered and non-blocking on send so a burst of ticks
	// never stalls the reader (spec.md §5: "message handlers are
	// non-blocking").
	events := make(chan wsEvent, 64)
	errCh := make(chan error, 3)

	go s.readTask(conn, events, errCh)
	go s.pingTask(sessionCtx, conn, errCh)
	go s.heartbeatTask(sessionCtx, conn, errCh)

	for {
		select {
		case <-sessionCtx.Done():
			return nil
		case err := <-errCh:
			return err
		case ev := <-events:
			s.handle(ctx, ev)
		}
	}
}

// subscribe issues one JSON subscribe frame per symbol for both the
// ticker and level-1 orderbook topics, bybit v5 public-channel style
// ({"op":"subscribe","args":["tickers.SYMBOL","orderbook.1.SYMBOL"]}).
func (s *Service) subscribe(conn *websocket.Conn) error {
	for _, sym := range s.symbols {
		msg := map[string]any{"op": "subscribe", "args": []string{"tickers." + sym, "orderbook.1." + sym}}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

// readTask is the WebSocket reader task (spec.md §5). It owns the
// connection's read deadline and is the only goroutine that calls
// ReadMessage; every decoded push is handed to events without
// blocking on the scoring/publish path.
func (s *Service) readTask(conn *websocket.Conn, events chan<- wsEvent, errCh chan<- error) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		ev, ok := decode(raw)
		if !ok {
			continue // subscribe acks and other control frames don't decode; ignore
		}
		select {
		case events <- ev:
		default:
			log.Warnf("events channel full, dropping tick for %s", ev.symbol)
		}
	}
}

// decode turns one raw push frame into a wsEvent based on its topic
// prefix, following bybit v5's topic-naming convention.
func decode(raw []byte) (wsEvent, bool) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Topic == "" {
		return wsEvent{}, false
	}
	switch {
	case len(env.Topic) >= 8 && env.Topic[:8] == "tickers.":
		var d tickerData
		if err := json.Unmarshal(env.Data, &d); err != nil || d.Symbol == "" {
			return wsEvent{}, false
		}
		return wsEvent{kind: "ticker", symbol: d.Symbol, price: parseFloat(d.LastPrice), pctChange: parseFloat(d.Price24hPcnt) * 100}, true
	case len(env.Topic) >= 10 && env.Topic[:10] == "orderbook.":
		var d orderbookData
		if err := json.Unmarshal(env.Data, &d); err != nil || d.Symbol == "" {
			return wsEvent{}, false
		}
		var bidQty, askQty float64
		if len(d.Bids) > 0 && len(d.Bids[0]) == 2 {
			bidQty = parseFloat(d.Bids[0][1])
		}
		if len(d.Asks) > 0 && len(d.Asks[0]) == 2 {
			askQty = parseFloat(d.Asks[0][1])
		}
		return wsEvent{kind: "orderbook", symbol: d.Symbol, bidQty: bidQty, askQty: askQty}, true
	default:
		return wsEvent{}, false
	}
}

// pingTask is the ping task (spec.md §5): a periodic transport-level
// WebSocket ping, independent of the exchange-level application
// heartbeat below, keeping intermediate proxies/load balancers from
// closing an idle socket.
func (s *Service) pingTask(ctx context.Context, conn *websocket.Conn, errCh chan<- error) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				errCh <- err
				return
			}
		}
	}
}

// heartbeatTask is the heartbeat task (spec.md §5): bybit's public
// channels expect a {"op":"ping"} application-level frame on top of
// the transport-level ping above, or the server drops the
// subscription after a timeout even though the connection itself
// stays open.
func (s *Service) heartbeatTask(ctx context.Context, conn *websocket.Conn, errCh chan<- error) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]any{"op": "ping"}); err != nil {
				errCh <- err
				return
			}
		}
	}
}

// handle scores one event against whichever gate applies and, if it
// clears both the gate's own threshold and minConfidence, publishes an
// EntrySignal. Errors are logged, not propagated: one bad publish must
// not tear down the whole session (the reader task keeps running
// regardless of what handle does with its output).
func (s *Service) handle(ctx context.Context, ev wsEvent) {
	var (
		direction  string
		confidence float64
		ok         bool
	)
	switch ev.kind {
	case "ticker":
		direction, confidence, ok = s.scoreTicker(ev)
	case "orderbook":
		direction, confidence, ok = s.scoreOrderbook(ev)
	}
	if !ok {
		return
	}
	s.publish(ctx, ev.symbol, direction, confidence)
}

func (s *Service) publish(ctx context.Context, symbol, direction string, confidence float64) {
	signal := messages.EntrySignal{
		Version:    messages.SchemaVersion,
		Symbol:     symbol,
		Direction:  direction,
		Confidence: confidence,
		Timestamp:  time.Now().Unix(),
	}
	if err := signal.Validate(); err != nil {
		log.Errorf("built invalid entry signal for %s: %v", symbol, err)
		return
	}
	if err := s.conn.Publish(ctx, s.queue, signal); err != nil {
		log.Errorf("publish entry signal for %s: %v", symbol, err)
	}
}

// scoreTicker runs both the squeeze-breakout gate and the 24h-momentum
// gate over one ticker push, preferring a fired squeeze (the original
// scanner's primary live-signal source) over plain momentum.
func (s *Service) scoreTicker(ev wsEvent) (direction string, confidence float64, ok bool) {
	tracker, found := s.squeezes[ev.symbol]
	if !found {
		tracker = &squeezeTracker{}
		s.squeezes[ev.symbol] = tracker
	}
	if dir, conf, fired := tracker.update(ev.price); fired && conf >= minConfidence {
		return dir, conf, true
	}
	return scoreMomentum(ev.pctChange)
}

// scoreOrderbook runs orderbook_analyzer.py's imbalance gate.
func (s *Service) scoreOrderbook(ev wsEvent) (direction string, confidence float64, ok bool) {
	tracker, found := s.orderbooks[ev.symbol]
	if !found {
		tracker = &orderbookTracker{}
		s.orderbooks[ev.symbol] = tracker
	}
	tracker.bidQty, tracker.askQty = ev.bidQty, ev.askQty

	imbalance := tracker.imbalance()
	abs := imbalance
	if abs < 0 {
		abs = -abs
	}
	if abs < orderbookImbalanceThreshold {
		return "", 0, false
	}
	confidence = abs * 100
	if confidence < minConfidence {
		return "", 0, false
	}
	if imbalance > 0 {
		return "LONG", confidence, true // bid-side heavy: buy pressure
	}
	return "SHORT", confidence, true
}

// scoreMomentum turns a 24h percent-change reading into a
// direction/confidence call. wsrelay has no candle history to run the
// full entry engine against, so it trades the engine's multi-factor
// confluence for this single momentum signal as the last-resort gate.
func scoreMomentum(pctChange float64) (direction string, confidence float64, ok bool) {
	abs := pctChange
	if abs < 0 {
		abs = -abs
	}
	if abs < momentumThreshold {
		return "", 0, false
	}
	confidence = 50 + abs*5
	if confidence > 100 {
		confidence = 100
	}
	if confidence < minConfidence {
		return "", 0, false
	}
	if pctChange > 0 {
		return "LONG", confidence, true
	}
	return "SHORT", confidence, true
}

// squeezeTracker ports squeeze_detector.py's SqueezeDetector: a
// rolling Bollinger-band width tracked against its own running max,
// firing when the width ratio collapses under squeezeRatioThreshold
// and then expands for three consecutive samples.
type squeezeTracker struct {
	prices     []float64
	maxWidth   float64
	prevWidths []float64
}

func (t *squeezeTracker) update(price float64) (direction string, confidence float64, fired bool) {
	t.prices = append(t.prices, price)
	if len(t.prices) > maxPrices {
		t.prices = t.prices[len(t.prices)-maxPrices:]
	}
	if len(t.prices) < bbWindow {
		return "", 0, false
	}

	recent := t.prices[len(t.prices)-bbWindow:]
	mean, std := meanStd(recent)
	if mean == 0 {
		return "", 0, false
	}

	width := (2 * bbStdDev * std) / mean
	if width > t.maxWidth {
		t.maxWidth = width
	}
	t.prevWidths = append(t.prevWidths, width)
	if len(t.prevWidths) > 5 {
		t.prevWidths = t.prevWidths[len(t.prevWidths)-5:]
	}
	if t.maxWidth == 0 {
		return "", 0, false
	}

	ratio := width / t.maxWidth
	n := len(t.prevWidths)
	expanding := n >= 3 && t.prevWidths[n-1] > t.prevWidths[n-2] && t.prevWidths[n-2] > t.prevWidths[n-3]
	if ratio >= squeezeRatioThreshold || !expanding {
		return "", 0, false
	}

	confidence = (1 - ratio) * 100
	direction = "LONG"
	if price < mean {
		direction = "SHORT"
	}
	return direction, confidence, true
}

func meanStd(xs []float64) (mean, std float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}

// orderbookTracker ports orderbook_analyzer.py's imbalance formula
// over the latest level-1 bid/ask quantities.
type orderbookTracker struct {
	bidQty, askQty float64
}

func (t *orderbookTracker) imbalance() float64 {
	total := t.bidQty + t.askQty
	if total == 0 {
		return 0
	}
	return (t.bidQty - t.askQty) / total
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
