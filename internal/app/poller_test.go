package app

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/five82/crawldeck/internal/crawlapi"
	"github.com/five82/crawldeck/internal/state"
)

var quietLogger = log.New(io.Discard, "", 0)

func activeSnapshot(version uint64) state.Snapshot {
	return state.Snapshot{
		Version: version,
		View:    state.View{Items: []crawlapi.Item{{ID: 1, Status: crawlapi.StatusRunning}}},
	}
}

func idleSnapshot(version uint64) state.Snapshot {
	return state.Snapshot{
		Version: version,
		View:    state.View{Items: []crawlapi.Item{{ID: 1, Status: crawlapi.StatusCompleted}}},
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestPoller_ActivatesAndIdles(t *testing.T) {
	var calls atomic.Int32
	p := NewPoller(context.Background(), func(context.Context) { calls.Add(1) }, 10*time.Millisecond, quietLogger)
	t.Cleanup(p.Stop)

	if p.Active() {
		t.Fatalf("new poller is active")
	}

	p.Observe(activeSnapshot(1))
	if !p.Active() {
		t.Fatalf("poller idle with a running item")
	}
	eventually(t, "first poll", func() bool { return calls.Load() >= 1 })

	p.Observe(idleSnapshot(2))
	if p.Active() {
		t.Fatalf("poller active with no queued or running items")
	}
	time.Sleep(20 * time.Millisecond)
	settled := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != settled {
		t.Fatalf("refreshes while idle: %d -> %d", settled, got)
	}
}

func TestPoller_SkipsTickWhileRefreshOutstanding(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	p := NewPoller(context.Background(), func(ctx context.Context) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
	}, 5*time.Millisecond, quietLogger)
	t.Cleanup(p.Stop)

	p.Observe(activeSnapshot(1))
	eventually(t, "first poll", func() bool { return calls.Load() == 1 })

	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("refresh calls while one outstanding = %d, want 1", got)
	}

	close(release)
	eventually(t, "next poll", func() bool { return calls.Load() >= 2 })
}

func TestPoller_StopIsSynchronous(t *testing.T) {
	var calls atomic.Int32
	p := NewPoller(context.Background(), func(context.Context) { calls.Add(1) }, 5*time.Millisecond, quietLogger)

	p.Observe(activeSnapshot(1))
	eventually(t, "first poll", func() bool { return calls.Load() >= 1 })

	p.Stop()
	after := calls.Load()
	if p.Active() {
		t.Fatalf("poller active after Stop")
	}

	p.Observe(activeSnapshot(2))
	if p.Active() {
		t.Fatalf("Observe reactivated a stopped poller")
	}
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != after {
		t.Fatalf("refresh after Stop: %d -> %d", after, got)
	}
	p.Stop()
}

func TestPoller_StopCancelsInFlightRefresh(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	p := NewPoller(context.Background(), func(ctx context.Context) {
		once.Do(func() { close(started) })
		<-ctx.Done()
	}, 5*time.Millisecond, quietLogger)

	p.Observe(activeSnapshot(1))
	<-started

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Stop did not return")
	}
}

func TestPoller_FollowsStoreSubscription(t *testing.T) {
	var calls atomic.Int32
	p := NewPoller(context.Background(), func(context.Context) { calls.Add(1) }, 5*time.Millisecond, quietLogger)
	t.Cleanup(p.Stop)

	var store state.Store
	unsubscribe := store.Subscribe(p.Observe)
	t.Cleanup(unsubscribe)

	store.Publish(activeSnapshot(1))
	eventually(t, "poll via subscription", func() bool { return calls.Load() >= 1 })

	store.Publish(idleSnapshot(2))
	if p.Active() {
		t.Fatalf("poller still active after idle snapshot")
	}
}

func TestNewPoller_DefaultInterval(t *testing.T) {
	p := NewPoller(context.Background(), func(context.Context) {}, 0, nil)
	t.Cleanup(p.Stop)
	if p.interval != defaultPollInterval {
		t.Fatalf("interval = %v, want %v", p.interval, defaultPollInterval)
	}
}
