package app

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/five82/crawldeck/internal/state"
)

const defaultPollInterval = 5 * time.Second

// Poller refreshes the collection on a fixed cadence while any visible item is
// queued or running, and sits idle with no timer otherwise.
type Poller struct {
	refresh  func(context.Context)
	interval time.Duration
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	quit    chan struct{} // non-nil while active
	stopped bool
	wg      sync.WaitGroup

	inflight atomic.Bool
}

// NewPoller returns an idle poller. refresh is called from a poller goroutine
// and must return once ctx is cancelled.
func NewPoller(ctx context.Context, refresh func(context.Context), interval time.Duration, logger *log.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Poller{
		refresh:  refresh,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Observe activates the poller when snap has an active item and deactivates
// it otherwise. It never blocks, so it can be used as a store subscriber.
func (p *Poller) Observe(snap state.Snapshot) {
	p.setActive(snap.Polling())
}

// Active reports whether the timer is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quit != nil
}

func (p *Poller) setActive(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	switch {
	case active && p.quit == nil:
		p.quit = make(chan struct{})
		p.wg.Add(1)
		go p.loop(p.quit)
		p.logger.Printf("polling every %s", p.interval)
	case !active && p.quit != nil:
		close(p.quit)
		p.quit = nil
		p.logger.Printf("polling idle")
	}
}

func (p *Poller) loop(quit <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-quit:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick starts a refresh unless the previous poll refresh is still running.
func (p *Poller) tick() {
	if p.ctx.Err() != nil || !p.inflight.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inflight.Store(false)
		p.refresh(p.ctx)
	}()
}

// Stop cancels any in-flight poll refresh and waits for the poller's
// goroutines to exit. No tick fires after Stop returns and later Observe calls
// are ignored. Stop must not be called from a store subscriber.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.quit != nil {
		close(p.quit)
		p.quit = nil
	}
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
