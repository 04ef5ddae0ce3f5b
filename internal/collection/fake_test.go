package collection

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/five82/crawldeck/internal/crawlapi"
)

// fakeEndpoint is an in-memory crawlapi.Endpoint. List calls for a search
// term registered in gates block until the gate is closed.
type fakeEndpoint struct {
	mu        sync.Mutex
	items     []crawlapi.Item
	nextID    int64
	listCalls []crawlapi.ListQuery
	created   []string
	listErr   error
	actionErr error
	resultErr error
	gates     map[string]chan struct{}
}

var _ crawlapi.Endpoint = (*fakeEndpoint)(nil)

func newFakeEndpoint(items ...crawlapi.Item) *fakeEndpoint {
	f := &fakeEndpoint{gates: map[string]chan struct{}{}}
	for _, item := range items {
		f.items = append(f.items, item)
		if item.ID >= f.nextID {
			f.nextID = item.ID
		}
	}
	return f
}

func (f *fakeEndpoint) gate(search string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[search] = ch
	return ch
}

func (f *fakeEndpoint) calls() []crawlapi.ListQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.listCalls)
}

func (f *fakeEndpoint) setListErr(err error) {
	f.mu.Lock()
	f.listErr = err
	f.mu.Unlock()
}

func (f *fakeEndpoint) ListURLs(ctx context.Context, q crawlapi.ListQuery) (crawlapi.ListResponse, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, q)
	gate := f.gates[q.Search]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return crawlapi.ListResponse{}, &crawlapi.TransportError{Method: "GET", Path: "/urls", Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return crawlapi.ListResponse{}, f.listErr
	}
	var matched []crawlapi.Item
	for _, item := range f.items {
		if q.Search != "" && !strings.Contains(item.URL, q.Search) {
			continue
		}
		if q.Status != "" && item.Status != q.Status {
			continue
		}
		matched = append(matched, item)
	}
	size := q.PageSize
	if size <= 0 {
		size = 10
	}
	page := max(q.Page, 1)
	total := len(matched)
	start := min((page-1)*size, total)
	end := min(start+size, total)
	return crawlapi.ListResponse{
		Data:       slices.Clone(matched[start:end]),
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: (total + size - 1) / size,
	}, nil
}

func (f *fakeEndpoint) CreateURL(_ context.Context, rawURL string) (crawlapi.ActionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return crawlapi.ActionResponse{}, f.actionErr
	}
	f.nextID++
	f.created = append(f.created, rawURL)
	f.items = append(f.items, crawlapi.Item{ID: f.nextID, URL: rawURL, Status: crawlapi.StatusQueued})
	return crawlapi.ActionResponse{Message: "URL added successfully"}, nil
}

func (f *fakeEndpoint) GetURL(_ context.Context, id int64) (crawlapi.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ID == id {
			return item, nil
		}
	}
	return crawlapi.Item{}, &crawlapi.APIError{Method: "GET", Path: "/urls", StatusCode: 404, Message: "URL not found"}
}

func (f *fakeEndpoint) GetResults(_ context.Context, id int64) (crawlapi.CrawlResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resultErr != nil {
		return crawlapi.CrawlResult{}, f.resultErr
	}
	for _, item := range f.items {
		if item.ID == id && item.Result != nil {
			res := *item.Result
			res.BrokenLinks = []crawlapi.BrokenLink{{URL: "https://broken.example", StatusCode: 404}}
			return res, nil
		}
	}
	return crawlapi.CrawlResult{}, &crawlapi.APIError{StatusCode: 404, Message: "Results not found"}
}

func (f *fakeEndpoint) setStatus(id int64, status crawlapi.Status) (crawlapi.ActionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return crawlapi.ActionResponse{}, f.actionErr
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Status = status
			return crawlapi.ActionResponse{Message: "ok"}, nil
		}
	}
	return crawlapi.ActionResponse{}, &crawlapi.APIError{StatusCode: 404, Message: "URL not found"}
}

func (f *fakeEndpoint) StartCrawl(_ context.Context, id int64) (crawlapi.ActionResponse, error) {
	return f.setStatus(id, crawlapi.StatusRunning)
}

func (f *fakeEndpoint) StopCrawl(_ context.Context, id int64) (crawlapi.ActionResponse, error) {
	return f.setStatus(id, crawlapi.StatusQueued)
}

func (f *fakeEndpoint) RerunCrawl(_ context.Context, id int64) (crawlapi.ActionResponse, error) {
	return f.setStatus(id, crawlapi.StatusRunning)
}

func (f *fakeEndpoint) DeleteURL(ctx context.Context, id int64) (crawlapi.ActionResponse, error) {
	return f.BulkDelete(ctx, []int64{id})
}

func (f *fakeEndpoint) BulkDelete(_ context.Context, ids []int64) (crawlapi.ActionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return crawlapi.ActionResponse{}, f.actionErr
	}
	f.items = slices.DeleteFunc(f.items, func(item crawlapi.Item) bool {
		return slices.Contains(ids, item.ID)
	})
	return crawlapi.ActionResponse{Message: "URLs deleted successfully"}, nil
}

func (f *fakeEndpoint) BulkRerun(ctx context.Context, ids []int64) (crawlapi.ActionResponse, error) {
	for _, id := range ids {
		if _, err := f.setStatus(id, crawlapi.StatusRunning); err != nil {
			return crawlapi.ActionResponse{}, err
		}
	}
	return crawlapi.ActionResponse{Message: "Crawls restarted successfully"}, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func items(n int, status crawlapi.Status) []crawlapi.Item {
	out := make([]crawlapi.Item, n)
	for i := range out {
		out[i] = crawlapi.Item{
			ID:     int64(i + 1),
			URL:    "https://example.com/" + string(rune('a'+i)),
			Status: status,
		}
	}
	return out
}
