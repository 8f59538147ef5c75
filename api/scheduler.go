/*
scheduler.go - Automated invoice closing scheduler

PURPOSE:
  Periodically closes credit card invoices whose period has ended and
  pre-creates the invoices for the current period.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick delegates to LifecycleManager.CloseStaleInvoices
  - The sweep is idempotent, so overlapping runs are harmless

CONFIGURATION:
  - CheckInterval: How often to check (default: 24 hours)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewClosingScheduler(lifecycle)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CloseInvoices endpoint (manual sweep)
  - billing/lifecycle.go: LifecycleManager
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fluxo/finance-engine/billing"
)

// ClosingScheduler runs the invoice closing sweep on a timer.
type ClosingScheduler struct {
	Lifecycle     *billing.LifecycleManager
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewClosingScheduler creates a new scheduler.
func NewClosingScheduler(lifecycle *billing.LifecycleManager) *ClosingScheduler {
	return &ClosingScheduler{
		Lifecycle:     lifecycle,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (cs *ClosingScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.wg.Add(1)

	go cs.run()

	log.Printf("[Scheduler] Started with check interval: %v", cs.CheckInterval)
}

// Stop stops the scheduler.
func (cs *ClosingScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (cs *ClosingScheduler) run() {
	defer cs.wg.Done()

	// Run immediately on start
	cs.sweep()

	for {
		select {
		case <-cs.ticker.C:
			cs.sweep()
		case <-cs.stop:
			return
		}
	}
}

func (cs *ClosingScheduler) sweep() {
	ctx := context.Background()

	closed, err := cs.Lifecycle.CloseStaleInvoices(ctx)
	if err != nil {
		log.Printf("[Scheduler] Closing sweep failed: %v", err)
		return
	}
	if closed > 0 {
		log.Printf("[Scheduler] Closed %d invoice(s)", closed)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (cs *ClosingScheduler) RunNow() {
	cs.sweep()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (cs *ClosingScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(cs.CheckInterval)
}
