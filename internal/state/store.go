package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/crawldeck/internal/crawlapi"
	"github.com/five82/crawldeck/internal/query"
)

// View is one page of the collection as returned by a single fetch.
type View struct {
	Items      []crawlapi.Item
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// EmptyView is the page-1 view shown before the first fetch and after a
// failed one.
func EmptyView(pageSize int) View {
	return View{Items: []crawlapi.Item{}, Page: 1, PageSize: pageSize}
}

// ShowPagination reports whether page controls should be offered.
func (v View) ShowPagination() bool {
	return v.TotalPages > 1
}

// HasActive reports whether any visible item is queued or running.
func (v View) HasActive() bool {
	for _, item := range v.Items {
		if item.Status.Active() {
			return true
		}
	}
	return false
}

// IDs returns the visible ids in display order.
func (v View) IDs() []int64 {
	ids := make([]int64, len(v.Items))
	for i, item := range v.Items {
		ids[i] = item.ID
	}
	return ids
}

// Range returns the 1-based inclusive bounds of the visible rows within the
// full collection, or 0, 0 when the page is empty.
func (v View) Range() (from, to int) {
	if len(v.Items) == 0 || v.PageSize <= 0 {
		return 0, 0
	}
	from = (v.Page-1)*v.PageSize + 1
	to = from + len(v.Items) - 1
	return from, to
}

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	View                View
	Query               query.State
	Selected            []int64 // ascending
	AllSelected         bool
	Indeterminate       bool
	Loading             bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive fetch failures
	Version             uint64
}

// Polling reports whether background refresh should be running.
func (s Snapshot) Polling() bool {
	return s.View.HasActive()
}

// IsOffline returns true when the API has been unreachable for multiple fetches.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// IsSelected reports whether id is in the selection.
func (s Snapshot) IsSelected(id int64) bool {
	for _, sel := range s.Selected {
		if sel == id {
			return true
		}
		if sel > id {
			return false
		}
	}
	return false
}

// Store holds the latest snapshot and fans it out to subscribers.
// The zero value is ready to use.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
	subs     map[int]func(Snapshot)
	nextID   int

	// pubMu orders subscriber notifications.
	pubMu sync.Mutex
}

// Publish stores snap and notifies subscribers. Snapshots whose Version is not
// newer than the stored one are dropped and Publish returns false.
// Subscribers run on the publishing goroutine and must not block or publish.
func (s *Store) Publish(snap Snapshot) bool {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if snap.Version <= s.snapshot.Version {
		s.mu.Unlock()
		return false
	}
	s.snapshot = clone(snap)
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(clone(snap))
	}
	return true
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.snapshot)
}

// Subscribe registers fn for every future publication and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(Snapshot))
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func clone(snap Snapshot) Snapshot {
	dup := snap
	dup.View.Items = cloneItems(snap.View.Items)
	if snap.Selected != nil {
		dup.Selected = append([]int64(nil), snap.Selected...)
	}
	if snap.LastError != nil {
		dup.LastError = fmt.Errorf("%w", snap.LastError)
	}
	return dup
}

func cloneItems(items []crawlapi.Item) []crawlapi.Item {
	if items == nil {
		return nil
	}
	dup := make([]crawlapi.Item, len(items))
	for i, item := range items {
		dup[i] = item
		if item.Result != nil {
			res := *item.Result
			res.BrokenLinks = append([]crawlapi.BrokenLink(nil), item.Result.BrokenLinks...)
			dup[i].Result = &res
		}
	}
	return dup
}
