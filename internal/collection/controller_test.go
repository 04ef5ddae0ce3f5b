package collection

import (
	"context"
	"errors"
	"io"
	"log"
	"slices"
	"sync"
	"testing"

	"github.com/five82/crawldeck/internal/crawlapi"
	"github.com/five82/crawldeck/internal/query"
	"github.com/five82/crawldeck/internal/state"
)

func newTestController(t *testing.T, api crawlapi.Endpoint) (*Controller, *state.Store) {
	t.Helper()
	store := &state.Store{}
	c := New(api, store, Options{PageSize: 10, Logger: log.New(io.Discard, "", 0)})
	t.Cleanup(c.Close)
	return c, store
}

func TestNew_PublishesEmptyView(t *testing.T) {
	c, store := newTestController(t, newFakeEndpoint())

	snap := store.Snapshot()
	if snap.Version == 0 {
		t.Fatalf("New did not publish a snapshot")
	}
	if snap.View.Page != 1 || len(snap.View.Items) != 0 || snap.View.TotalPages != 0 {
		t.Fatalf("initial view = %#v, want empty page 1", snap.View)
	}
	if q := c.Query(); q.Sort != query.DefaultSort || q.Page != 1 || q.PageSize != 10 {
		t.Fatalf("initial query = %#v, want defaults", q)
	}
}

func TestRefresh_AppliesViewAndRecordsFailures(t *testing.T) {
	api := newFakeEndpoint(items(3, crawlapi.StatusCompleted)...)
	c, store := newTestController(t, api)
	ctx := context.Background()

	c.Refresh(ctx)
	snap := store.Snapshot()
	if len(snap.View.Items) != 3 || snap.View.Total != 3 || snap.Loading || snap.LastError != nil {
		t.Fatalf("after refresh snapshot = %#v, want 3 items, no error", snap)
	}

	c.SetPage(ctx, 2)
	boom := &crawlapi.APIError{StatusCode: 500, Message: "db down"}
	api.setListErr(boom)
	c.Refresh(ctx)
	snap = store.Snapshot()
	if !errors.Is(snap.LastError, boom) {
		t.Fatalf("LastError = %v, want db down", snap.LastError)
	}
	if snap.View.Page != 1 || len(snap.View.Items) != 0 || snap.View.Total != 0 || snap.View.TotalPages != 0 {
		t.Fatalf("failed fetch view = %#v, want empty page 1", snap.View)
	}
	if snap.ConsecutiveFailures != 1 {
		t.Fatalf("ConsecutiveFailures = %d, want 1", snap.ConsecutiveFailures)
	}

	api.setListErr(nil)
	c.SetPage(ctx, 1)
	snap = store.Snapshot()
	if snap.LastError != nil || snap.ConsecutiveFailures != 0 || len(snap.View.Items) != 3 {
		t.Fatalf("recovery snapshot = %#v, want items and cleared error", snap)
	}
}

func TestSetters_ResetPageAndSendQuery(t *testing.T) {
	api := newFakeEndpoint(items(25, crawlapi.StatusCompleted)...)
	c, _ := newTestController(t, api)
	ctx := context.Background()

	tests := []struct {
		name  string
		apply func()
		check func(crawlapi.ListQuery) bool
	}{
		{"search", func() { c.SetSearch(ctx, "example") }, func(q crawlapi.ListQuery) bool { return q.Search == "example" }},
		{"status", func() { c.SetStatusFilter(ctx, crawlapi.StatusFailed) }, func(q crawlapi.ListQuery) bool { return q.Status == crawlapi.StatusFailed }},
		{"sort", func() { c.SetSort(ctx, query.Sort{Column: query.ColumnURL, Direction: query.Asc}) }, func(q crawlapi.ListQuery) bool {
			return q.SortBy == "url" && q.SortOrder == "asc"
		}},
		{"page size", func() { c.SetPageSize(ctx, 5) }, func(q crawlapi.ListQuery) bool { return q.PageSize == 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.SetPage(ctx, 3)
			tt.apply()
			calls := api.calls()
			last := calls[len(calls)-1]
			if last.Page != 1 {
				t.Fatalf("page = %d, want reset to 1", last.Page)
			}
			if !tt.check(last) {
				t.Fatalf("list query = %#v, missing %s", last, tt.name)
			}
			if c.Query().Page != 1 {
				t.Fatalf("query page = %d, want 1", c.Query().Page)
			}
		})
	}
}

func TestToggleSort(t *testing.T) {
	c, _ := newTestController(t, newFakeEndpoint())
	ctx := context.Background()

	c.ToggleSort(ctx, query.ColumnCreatedAt)
	if got := c.Query().Sort; got != (query.Sort{Column: query.ColumnCreatedAt, Direction: query.Asc}) {
		t.Fatalf("toggle same column = %#v, want created_at asc", got)
	}
	c.ToggleSort(ctx, query.ColumnTitle)
	if got := c.Query().Sort; got != (query.Sort{Column: query.ColumnTitle, Direction: query.Asc}) {
		t.Fatalf("toggle new column = %#v, want title asc", got)
	}
	c.ToggleSort(ctx, query.ColumnTitle)
	if got := c.Query().Sort; got.Direction != query.Desc {
		t.Fatalf("toggle again = %#v, want desc", got)
	}
}

func TestSelectAll_EqualsVisibleIDs(t *testing.T) {
	api := newFakeEndpoint(items(12, crawlapi.StatusCompleted)...)
	c, store := newTestController(t, api)
	ctx := context.Background()
	c.Refresh(ctx)

	c.SelectAll(true)
	snap := store.Snapshot()
	if !slices.Equal(snap.Selected, snap.View.IDs()) {
		t.Fatalf("Selected = %v, want visible %v", snap.Selected, snap.View.IDs())
	}
	if !snap.AllSelected || snap.Indeterminate {
		t.Fatalf("flags = all:%v indeterminate:%v, want all", snap.AllSelected, snap.Indeterminate)
	}

	c.Toggle(1, false)
	snap = store.Snapshot()
	if snap.AllSelected || !snap.Indeterminate {
		t.Fatalf("flags after toggle = all:%v indeterminate:%v, want indeterminate", snap.AllSelected, snap.Indeterminate)
	}

	c.SelectAll(false)
	if n := len(store.Snapshot().Selected); n != 0 {
		t.Fatalf("Selected after deselect = %d, want 0", n)
	}
}

func TestBulkDelete_PrunesSelectionAndRefreshes(t *testing.T) {
	api := newFakeEndpoint(items(5, crawlapi.StatusCompleted)...)
	c, store := newTestController(t, api)
	ctx := context.Background()
	c.Refresh(ctx)

	c.Toggle(2, true)
	c.Toggle(4, true)
	c.Toggle(5, true)
	before := len(api.calls())

	if err := c.BulkDelete(ctx, []int64{2, 4}); err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if got := len(api.calls()) - before; got != 1 {
		t.Fatalf("refreshes after bulk delete = %d, want 1", got)
	}
	snap := store.Snapshot()
	if !slices.Equal(snap.Selected, []int64{5}) {
		t.Fatalf("Selected = %v, want [5]", snap.Selected)
	}
	for _, id := range snap.View.IDs() {
		if id == 2 || id == 4 {
			t.Fatalf("deleted id %d still visible", id)
		}
	}
}

func TestBulkRerun_ClearsSelection(t *testing.T) {
	api := newFakeEndpoint(items(3, crawlapi.StatusCompleted)...)
	c, store := newTestController(t, api)
	ctx := context.Background()
	c.Refresh(ctx)
	c.SelectAll(true)

	if err := c.BulkRerun(ctx, store.Snapshot().Selected); err != nil {
		t.Fatalf("BulkRerun: %v", err)
	}
	snap := store.Snapshot()
	if len(snap.Selected) != 0 {
		t.Fatalf("Selected = %v, want cleared", snap.Selected)
	}
	if !snap.Polling() {
		t.Fatalf("rerun items should be running and enable polling")
	}
}

func TestBulk_EmptyIDsRejected(t *testing.T) {
	api := newFakeEndpoint()
	c, _ := newTestController(t, api)

	for name, fn := range map[string]func(context.Context, []int64) error{
		"delete": c.BulkDelete,
		"rerun":  c.BulkRerun,
	} {
		err := fn(context.Background(), nil)
		if crawlapi.Classify(err) != crawlapi.KindValidation {
			t.Fatalf("bulk %s error = %v, want validation error", name, err)
		}
	}
	if n := len(api.calls()); n != 0 {
		t.Fatalf("list calls = %d, want 0", n)
	}
}

func TestAdd_TrimsAndRefreshesOnce(t *testing.T) {
	api := newFakeEndpoint()
	c, store := newTestController(t, api)
	ctx := context.Background()

	if err := c.Add(ctx, "   https://example.com   "); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !slices.Equal(api.created, []string{"https://example.com"}) {
		t.Fatalf("created = %q, want trimmed url", api.created)
	}
	if n := len(api.calls()); n != 1 {
		t.Fatalf("list calls = %d, want exactly 1", n)
	}
	snap := store.Snapshot()
	if len(snap.View.Items) != 1 || snap.View.Items[0].Status != crawlapi.StatusQueued {
		t.Fatalf("view = %#v, want the new queued item", snap.View.Items)
	}
}

func TestAdd_EmptyIsValidationError(t *testing.T) {
	api := newFakeEndpoint()
	c, _ := newTestController(t, api)

	err := c.Add(context.Background(), " \t ")
	var verr *crawlapi.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Add error = %v, want ValidationError", err)
	}
	if len(api.created) != 0 || len(api.calls()) != 0 {
		t.Fatalf("Add with empty url reached the endpoint")
	}
}

func TestStart_FailureLeavesStateUnchanged(t *testing.T) {
	api := newFakeEndpoint(items(2, crawlapi.StatusQueued)...)
	c, store := newTestController(t, api)
	ctx := context.Background()
	c.Refresh(ctx)
	c.Toggle(1, true)

	before := store.Snapshot()
	calls := len(api.calls())
	boom := &crawlapi.APIError{StatusCode: 500, Message: "Failed to update URL status"}
	api.actionErr = boom

	err := c.Start(ctx, 1)
	if !errors.Is(err, boom) {
		t.Fatalf("Start error = %v, want wrapped server error", err)
	}
	if len(api.calls()) != calls {
		t.Fatalf("failed Start triggered a refresh")
	}
	after := store.Snapshot()
	if after.Version != before.Version || !slices.Equal(after.Selected, before.Selected) {
		t.Fatalf("snapshot changed after failed Start: v%d -> v%d", before.Version, after.Version)
	}
}

func TestSingleActions_RefreshOnce(t *testing.T) {
	api := newFakeEndpoint(items(3, crawlapi.StatusQueued)...)
	c, store := newTestController(t, api)
	ctx := context.Background()
	c.Refresh(ctx)
	c.Toggle(3, true)

	steps := []struct {
		name string
		run  func() error
		want crawlapi.Status
		id   int64
	}{
		{"start", func() error { return c.Start(ctx, 1) }, crawlapi.StatusRunning, 1},
		{"stop", func() error { return c.Stop(ctx, 1) }, crawlapi.StatusQueued, 1},
		{"rerun", func() error { return c.Rerun(ctx, 2) }, crawlapi.StatusRunning, 2},
	}
	for _, step := range steps {
		before := len(api.calls())
		if err := step.run(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got := len(api.calls()) - before; got != 1 {
			t.Fatalf("%s refreshed %d times, want 1", step.name, got)
		}
		for _, item := range store.Snapshot().View.Items {
			if item.ID == step.id && item.Status != step.want {
				t.Fatalf("%s: item %d status = %s, want %s", step.name, item.ID, item.Status, step.want)
			}
		}
	}

	if err := c.Delete(ctx, 3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	snap := store.Snapshot()
	if len(snap.Selected) != 0 || slices.Contains(snap.View.IDs(), 3) {
		t.Fatalf("Delete left id 3: selected %v visible %v", snap.Selected, snap.View.IDs())
	}
}

func TestOutOfOrderResponsesResolveToLatestQuery(t *testing.T) {
	for _, order := range []string{"late-first", "early-first"} {
		t.Run(order, func(t *testing.T) {
			api := newFakeEndpoint(
				crawlapi.Item{ID: 1, URL: "https://alpha.example", Status: crawlapi.StatusCompleted},
				crawlapi.Item{ID: 2, URL: "https://beta.example", Status: crawlapi.StatusCompleted},
			)
			c, store := newTestController(t, api)
			ctx := context.Background()

			gateA := api.gate("alpha")
			gateB := api.gate("beta")

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.SetSearch(ctx, "alpha")
			}()
			waitFor(t, "alpha request", func() bool { return len(api.calls()) == 1 })

			wg.Add(1)
			go func() {
				defer wg.Done()
				c.SetSearch(ctx, "beta")
			}()
			waitFor(t, "beta request", func() bool { return len(api.calls()) == 2 })

			if order == "late-first" {
				close(gateB)
				waitFor(t, "beta applied", func() bool { return !store.Snapshot().Loading })
				close(gateA)
			} else {
				close(gateA)
				close(gateB)
			}
			wg.Wait()

			snap := store.Snapshot()
			if snap.Query.Search != "beta" {
				t.Fatalf("query search = %q, want beta", snap.Query.Search)
			}
			if len(snap.View.Items) != 1 || snap.View.Items[0].ID != 2 {
				t.Fatalf("view = %#v, want only the beta item", snap.View.Items)
			}
			if snap.Loading {
				t.Fatalf("Loading = true after all responses")
			}
		})
	}
}

func TestEmptyCollection(t *testing.T) {
	c, store := newTestController(t, newFakeEndpoint())
	c.Refresh(context.Background())

	snap := store.Snapshot()
	if snap.View.Total != 0 || snap.View.TotalPages != 0 || len(snap.View.Items) != 0 {
		t.Fatalf("view = %#v, want empty", snap.View)
	}
	if snap.View.ShowPagination() || snap.Polling() || snap.AllSelected || snap.Indeterminate {
		t.Fatalf("empty collection reports pagination, polling or selection")
	}
}

func TestClose_DiscardsInFlightAndRejectsMutations(t *testing.T) {
	api := newFakeEndpoint(items(1, crawlapi.StatusQueued)...)
	c, store := newTestController(t, api)
	api.gate("")

	done := make(chan struct{})
	go func() {
		c.Refresh(context.Background())
		close(done)
	}()
	waitFor(t, "request", func() bool { return len(api.calls()) == 1 })
	loading := store.Snapshot()

	c.Close()
	<-done

	if got := store.Snapshot(); got.Version != loading.Version || len(got.View.Items) != 0 {
		t.Fatalf("response applied after Close: %#v", got)
	}
	if err := c.Start(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close = %v, want ErrClosed", err)
	}
	if _, err := c.Details(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Details after Close = %v, want ErrClosed", err)
	}
	c.Close()
}

func TestDetails(t *testing.T) {
	api := newFakeEndpoint(
		crawlapi.Item{ID: 1, Status: crawlapi.StatusQueued},
		crawlapi.Item{ID: 2, Status: crawlapi.StatusCompleted, Result: &crawlapi.CrawlResult{Title: "Home", InternalLinks: 4}},
	)
	c, store := newTestController(t, api)
	ctx := context.Background()
	version := store.Snapshot().Version

	d, err := c.Details(ctx, 1)
	if err != nil || d.Result != nil {
		t.Fatalf("Details(1) = %#v, %v; want item without result", d, err)
	}

	d, err = c.Details(ctx, 2)
	if err != nil || d.Result == nil || len(d.Result.BrokenLinks) != 1 {
		t.Fatalf("Details(2) = %#v, %v; want full result with broken links", d, err)
	}

	api.resultErr = &crawlapi.APIError{StatusCode: 500, Message: "Failed to get broken links"}
	d, err = c.Details(ctx, 2)
	if err != nil || d.Result == nil || d.Result.Title != "Home" || d.ResultErr == nil {
		t.Fatalf("Details fallback = %#v, %v; want summary result and ResultErr", d, err)
	}

	if _, err := c.Details(ctx, 99); crawlapi.Classify(err) != crawlapi.KindServer {
		t.Fatalf("Details(99) error = %v, want server error", err)
	}
	if store.Snapshot().Version != version {
		t.Fatalf("Details published a snapshot")
	}
}
