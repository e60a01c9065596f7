package workflow

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. They validate the intended reconciliation semantics:
// - at-least-once gateway delivery is safe via event dedup + terminal-state no-ops
// - per-order serialization prevents racey interleavings inside the engine
// - the aggregate is a full recompute, so applying the same result twice never double-counts
//
// Full DB integration tests live in donation_reconciliation_regression_test.go (INTEGRATION_TESTS=1).

type fakeLedger struct {
	muByOrder map[string]*sync.Mutex
	mu        sync.Mutex

	orderStates map[string]string // gatewayOrderId -> created|paid|failed
	amounts     map[string]decimal.Decimal
	collected   decimal.Decimal
	transitions int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		muByOrder:   map[string]*sync.Mutex{},
		orderStates: map[string]string{},
		amounts:     map[string]decimal.Decimal{},
	}
}

func (l *fakeLedger) createOrder(orderID string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orderStates[orderID] = "created"
	l.amounts[orderID] = amount
}

// apply mirrors ApplyGatewayResult: serialize per order, no-op on terminal
// state, then transition and fully recompute the aggregate.
func (l *fakeLedger) apply(orderID string, outcome string) {
	l.mu.Lock()
	om := l.muByOrder[orderID]
	if om == nil {
		om = &sync.Mutex{}
		l.muByOrder[orderID] = om
	}
	l.mu.Unlock()

	om.Lock()
	defer om.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.orderStates[orderID]
	if state == "paid" || state == "failed" {
		return // terminal: committed no-op
	}
	l.orderStates[orderID] = outcome
	l.transitions++

	// Full recompute, never an increment.
	sum := decimal.Zero
	for id, st := range l.orderStates {
		if st == "paid" {
			sum = sum.Add(l.amounts[id])
		}
	}
	l.collected = sum
}

func TestDuplicateDeliveryAppliedOnce(t *testing.T) {
	l := newFakeLedger()
	l.createOrder("order_A", decimal.NewFromInt(500))

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.apply("order_A", "paid")
		}()
	}
	wg.Wait()

	if l.transitions != 1 {
		t.Fatalf("expected exactly 1 state transition, got %d", l.transitions)
	}
	if !l.collected.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected collected=500, got %s", l.collected)
	}
}

func TestConflictingOutcomesFirstWins(t *testing.T) {
	for run := 0; run < 100; run++ {
		l := newFakeLedger()
		l.createOrder("order_A", decimal.NewFromInt(100))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); l.apply("order_A", "paid") }()
		go func() { defer wg.Done(); l.apply("order_A", "failed") }()
		wg.Wait()

		if l.transitions != 1 {
			t.Fatalf("run=%d expected 1 transition, got %d", run, l.transitions)
		}
		state := l.orderStates["order_A"]
		if state == "paid" && !l.collected.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("run=%d paid but collected=%s", run, l.collected)
		}
		if state == "failed" && !l.collected.Equal(decimal.Zero) {
			t.Fatalf("run=%d failed but collected=%s", run, l.collected)
		}
	}
}

func TestConcurrentOrdersCommute(t *testing.T) {
	for run := 0; run < 100; run++ {
		l := newFakeLedger()
		l.createOrder("order_A", decimal.NewFromInt(100))
		l.createOrder("order_B", decimal.NewFromInt(250))
		l.createOrder("order_C", decimal.NewFromInt(75))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.apply("order_A", "paid")
				l.apply("order_B", "paid")
				l.apply("order_C", "failed")
				l.apply("order_A", "failed") // late conflicting duplicate
			}()
		}
		wg.Wait()

		want := decimal.NewFromInt(350)
		if !l.collected.Equal(want) {
			t.Fatalf("run=%d expected collected=%s, got %s", run, want, l.collected)
		}
		if l.transitions != 3 {
			t.Fatalf("run=%d expected 3 transitions, got %d", run, l.transitions)
		}
	}
}

func TestGatewayResultValidation(t *testing.T) {
	if _, err := ApplyGatewayResult(nil, nil, "order_A", GatewayResult{Outcome: "refunded"}); err == nil {
		t.Fatal("unknown outcome must be rejected")
	}
	if _, err := ApplyGatewayResult(nil, nil, "", GatewayResult{Outcome: OutcomeSuccess}); err == nil {
		t.Fatal("empty gateway order id must be rejected")
	}
}
