package wsrelay

import (
	"testing"

	"PerpMesh/internal/config"
)

func TestScoreMomentum_BelowThresholdYieldsNotOK(t *testing.T) {
	_, _, ok := scoreMomentum(0.4) // below the 1.5% threshold
	if ok {
		t.Fatalf("expected scoreMomentum to reject a sub-threshold move")
	}
}

func TestScoreMomentum_PositiveMoveYieldsLong(t *testing.T) {
	direction, confidence, ok := scoreMomentum(5)
	if !ok {
		t.Fatalf("expected scoreMomentum to accept a 5%% move")
	}
	if direction != "LONG" {
		t.Fatalf("expected LONG, got %s", direction)
	}
	if confidence <= 0 || confidence > 100 {
		t.Fatalf("confidence out of range: %v", confidence)
	}
}

func TestScoreMomentum_NegativeMoveYieldsShort(t *testing.T) {
	direction, _, ok := scoreMomentum(-6)
	if !ok {
		t.Fatalf("expected scoreMomentum to accept a -6%% move")
	}
	if direction != "SHORT" {
		t.Fatalf("expected SHORT, got %s", direction)
	}
}

func TestScoreMomentum_ConfidenceCapsAtOneHundred(t *testing.T) {
	_, confidence, ok := scoreMomentum(50) // extreme move, would overflow without the cap
	if !ok {
		t.Fatalf("expected scoreMomentum to accept an extreme move")
	}
	if confidence != 100 {
		t.Fatalf("expected confidence capped at 100, got %v", confidence)
	}
}

func TestParseFloat_InvalidInputYieldsZero(t *testing.T) {
	if got := parseFloat("not-a-number"); got != 0 {
		t.Fatalf("expected 0 for invalid input, got %v", got)
	}
}

func TestSqueezeTracker_InsufficientHistoryNeverFires(t *testing.T) {
	tr := &squeezeTracker{}
	for i := 0; i < bbWindow-1; i++ {
		if _, _, fired := tr.update(100); fired {
			t.Fatalf("expected no fire with fewer than bbWindow samples")
		}
	}
}

func TestSqueezeTracker_FlatPricesNeverExpandIntoAFire(t *testing.T) {
	tr := &squeezeTracker{}
	for i := 0; i < maxPrices; i++ {
		if _, _, fired := tr.update(100); fired {
			t.Fatalf("expected a perfectly flat series (zero std) to never fire")
		}
	}
}

func TestOrderbookTracker_BalancedBookYieldsZeroImbalance(t *testing.T) {
	tr := &orderbookTracker{bidQty: 100, askQty: 100}
	if got := tr.imbalance(); got != 0 {
		t.Fatalf("expected 0 imbalance for a balanced book, got %v", got)
	}
}

func TestOrderbookTracker_BidHeavyBookYieldsPositiveImbalance(t *testing.T) {
	tr := &orderbookTracker{bidQty: 900, askQty: 100}
	got := tr.imbalance()
	if got <= 0 {
		t.Fatalf("expected positive imbalance for a bid-heavy book, got %v", got)
	}
	if got < orderbookImbalanceThreshold {
		t.Fatalf("expected imbalance past the gate threshold, got %v", got)
	}
}

func TestOrderbookTracker_EmptyBookYieldsZeroImbalance(t *testing.T) {
	tr := &orderbookTracker{}
	if got := tr.imbalance(); got != 0 {
		t.Fatalf("expected 0 imbalance for an empty book, got %v", got)
	}
}

func TestService_ScoreOrderbook_BidHeavyPublishesLong(t *testing.T) {
	s := New(nil, config.Relay{}, []string{"BTCUSDT"}, "entry-signal")
	direction, confidence, ok := s.scoreOrderbook(wsEvent{kind: "orderbook", symbol: "BTCUSDT", bidQty: 950, askQty: 50})
	if !ok {
		t.Fatalf("expected a bid-heavy book to clear the gate")
	}
	if direction != "LONG" {
		t.Fatalf("expected LONG, got %s", direction)
	}
	if confidence < minConfidence {
		t.Fatalf("expected confidence past the floor, got %v", confidence)
	}
}

func TestService_ScoreOrderbook_BalancedBookDoesNotPublish(t *testing.T) {
	s := New(nil, config.Relay{}, []string{"BTCUSDT"}, "entry-signal")
	_, _, ok := s.scoreOrderbook(wsEvent{kind: "orderbook", symbol: "BTCUSDT", bidQty: 500, askQty: 500})
	if ok {
		t.Fatalf("expected a balanced book not to clear the gate")
	}
}
