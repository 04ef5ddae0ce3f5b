package collection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/five82/crawldeck/internal/crawlapi"
	"github.com/five82/crawldeck/internal/query"
	"github.com/five82/crawldeck/internal/selection"
	"github.com/five82/crawldeck/internal/state"
)

// ErrClosed is returned by mutations issued after Close.
var ErrClosed = errors.New("collection controller closed")

// Options configure a Controller.
type Options struct {
	PageSize int        // zero uses query.DefaultPageSize
	Sort     query.Sort // zero uses query.DefaultSort
	Logger   *log.Logger
	Now      func() time.Time
}

// Controller keeps the published view of the remote collection in step with
// the server. It is safe for concurrent use.
type Controller struct {
	api    crawlapi.Endpoint
	store  *state.Store
	logger *log.Logger
	now    func() time.Time

	base   context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	query       query.State
	view        state.View
	sel         selection.Set
	seq         uint64 // sequence number of the latest issued fetch
	loading     bool
	lastErr     error
	lastUpdated time.Time
	failures    int
	version     uint64
	closed      bool
}

// New returns a controller with the default query and an empty view. The
// initial snapshot is published immediately; no fetch is issued.
func New(api crawlapi.Endpoint, store *state.Store, opts Options) *Controller {
	q := query.Default(opts.PageSize)
	if opts.Sort.Column != "" {
		q.Sort = opts.Sort
		if q.Sort.Direction == "" {
			q.Sort.Direction = query.Asc
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if store == nil {
		store = &state.Store{}
	}

	base, cancel := context.WithCancel(context.Background())
	c := &Controller{
		api:    api,
		store:  store,
		logger: logger,
		now:    now,
		base:   base,
		cancel: cancel,
		query:  q,
		view:   state.EmptyView(q.PageSize),
	}
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.store.Publish(snap)
	return c
}

// Store returns the store the controller publishes to.
func (c *Controller) Store() *state.Store {
	return c.store
}

// Query returns the current query state.
func (c *Controller) Query() query.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Fetch makes q the current query and loads it. Only the response to the most
// recently issued fetch is applied. A failure replaces the view with the empty
// page-1 view and is recorded in the snapshot rather than returned.
func (c *Controller) Fetch(ctx context.Context, q query.State) {
	c.update(ctx, func(query.State) query.State { return q })
}

// Refresh reloads the current query.
func (c *Controller) Refresh(ctx context.Context) {
	c.update(ctx, func(q query.State) query.State { return q })
}

func (c *Controller) SetSearch(ctx context.Context, search string) {
	c.update(ctx, func(q query.State) query.State { return q.WithSearch(search) })
}

// SetStatusFilter filters by status; the empty status clears the filter.
func (c *Controller) SetStatusFilter(ctx context.Context, status crawlapi.Status) {
	c.update(ctx, func(q query.State) query.State { return q.WithStatus(status) })
}

func (c *Controller) SetSort(ctx context.Context, sort query.Sort) {
	c.update(ctx, func(q query.State) query.State { return q.WithSort(sort) })
}

// ToggleSort flips the direction when col is already sorted and otherwise
// sorts ascending by col.
func (c *Controller) ToggleSort(ctx context.Context, col query.Column) {
	c.update(ctx, func(q query.State) query.State { return q.WithSort(q.Sort.Toggle(col)) })
}

// SetPage moves to page without range checks.
func (c *Controller) SetPage(ctx context.Context, page int) {
	c.update(ctx, func(q query.State) query.State { return q.WithPage(page) })
}

func (c *Controller) SetPageSize(ctx context.Context, size int) {
	c.update(ctx, func(q query.State) query.State { return q.WithPageSize(size) })
}

func (c *Controller) update(ctx context.Context, next func(query.State) query.State) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.query = next(c.query)
	q := c.query
	c.seq++
	seq := c.seq
	c.loading = true
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.store.Publish(snap)

	fetchCtx, stop := c.bind(ctx)
	resp, err := c.api.ListURLs(fetchCtx, q.ListQuery())
	stop()

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.loading = false
	c.lastUpdated = c.now()
	if err != nil {
		c.view = state.EmptyView(q.PageSize)
		c.lastErr = err
		c.failures++
		c.logger.Printf("fetch page %d failed: %v", q.Page, err)
	} else {
		c.view = viewFrom(resp, q)
		c.lastErr = nil
		c.failures = 0
	}
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.store.Publish(snap)
}

func viewFrom(resp crawlapi.ListResponse, q query.State) state.View {
	v := state.View{
		Items:      resp.Data,
		Page:       resp.Page,
		PageSize:   resp.PageSize,
		Total:      resp.Total,
		TotalPages: resp.TotalPages,
	}
	if v.Items == nil {
		v.Items = []crawlapi.Item{}
	}
	if v.Page <= 0 {
		v.Page = q.Page
	}
	if v.PageSize <= 0 {
		v.PageSize = q.PageSize
	}
	return v
}

// Add submits a new URL. Surrounding whitespace is trimmed and an empty URL is
// rejected without a request.
func (c *Controller) Add(ctx context.Context, rawURL string) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return &crawlapi.ValidationError{Field: "url", Reason: "must not be empty"}
	}
	return c.mutate(ctx, "add url", func(ctx context.Context) error {
		_, err := c.api.CreateURL(ctx, trimmed)
		return err
	}, nil)
}

// Delete removes one item and drops it from the selection.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	return c.mutate(ctx, fmt.Sprintf("delete %d", id), func(ctx context.Context) error {
		_, err := c.api.DeleteURL(ctx, id)
		return err
	}, func() { c.sel.Remove(id) })
}

// BulkDelete removes ids in one request and drops them from the selection.
func (c *Controller) BulkDelete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return &crawlapi.ValidationError{Field: "ids", Reason: "no ids provided"}
	}
	ids = append([]int64(nil), ids...)
	return c.mutate(ctx, "bulk delete", func(ctx context.Context) error {
		_, err := c.api.BulkDelete(ctx, ids)
		return err
	}, func() { c.sel.Remove(ids...) })
}

// BulkRerun re-crawls ids in one request and clears the selection.
func (c *Controller) BulkRerun(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return &crawlapi.ValidationError{Field: "ids", Reason: "no ids provided"}
	}
	ids = append([]int64(nil), ids...)
	return c.mutate(ctx, "bulk rerun", func(ctx context.Context) error {
		_, err := c.api.BulkRerun(ctx, ids)
		return err
	}, c.sel.Clear)
}

func (c *Controller) Start(ctx context.Context, id int64) error {
	return c.mutate(ctx, fmt.Sprintf("start %d", id), func(ctx context.Context) error {
		_, err := c.api.StartCrawl(ctx, id)
		return err
	}, nil)
}

func (c *Controller) Stop(ctx context.Context, id int64) error {
	return c.mutate(ctx, fmt.Sprintf("stop %d", id), func(ctx context.Context) error {
		_, err := c.api.StopCrawl(ctx, id)
		return err
	}, nil)
}

// Rerun crawls one item again. Its previous result stays visible until the
// new crawl replaces it.
func (c *Controller) Rerun(ctx context.Context, id int64) error {
	return c.mutate(ctx, fmt.Sprintf("rerun %d", id), func(ctx context.Context) error {
		_, err := c.api.RerunCrawl(ctx, id)
		return err
	}, nil)
}

// mutate runs call and, on success, applies onSuccess under the lock and
// refreshes exactly once. Failures are returned wrapped and leave the view and
// selection untouched.
func (c *Controller) mutate(ctx context.Context, op string, call func(context.Context) error, onSuccess func()) error {
	if c.isClosed() {
		return ErrClosed
	}
	callCtx, stop := c.bind(ctx)
	err := call(callCtx)
	stop()
	if err != nil {
		if c.isClosed() {
			return ErrClosed
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if onSuccess != nil {
		onSuccess()
	}
	c.mu.Unlock()

	c.Refresh(ctx)
	return nil
}

// SelectAll selects exactly the visible items, or nothing when unchecked.
func (c *Controller) SelectAll(checked bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.sel.SelectAll(c.view.IDs(), checked)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.store.Publish(snap)
}

func (c *Controller) Toggle(id int64, checked bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.sel.Toggle(id, checked)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.store.Publish(snap)
}

// Detail is one item with its full crawl result.
type Detail struct {
	Item crawlapi.Item
	// Result includes broken links when the results endpoint answered, and
	// falls back to the summary embedded in Item otherwise.
	Result *crawlapi.CrawlResult
	// ResultErr records why the full result could not be loaded.
	ResultErr error
}

// Details loads one item and, when it has a result, its broken links. The
// published view is not affected.
func (c *Controller) Details(ctx context.Context, id int64) (Detail, error) {
	if c.isClosed() {
		return Detail{}, ErrClosed
	}
	reqCtx, stop := c.bind(ctx)
	defer stop()

	item, err := c.api.GetURL(reqCtx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("load %d: %w", id, err)
	}
	detail := Detail{Item: item, Result: item.Result}
	if item.Result == nil {
		return detail, nil
	}
	result, err := c.api.GetResults(reqCtx, id)
	if err != nil {
		c.logger.Printf("load results for %d failed, using summary: %v", id, err)
		detail.ResultErr = err
		return detail, nil
	}
	detail.Result = &result
	return detail, nil
}

// Close cancels outstanding requests. Responses arriving afterwards are
// discarded and later mutations return ErrClosed. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// bind derives a context that is also cancelled by Close.
func (c *Controller) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(c.base, cancel)
	return ctx, func() {
		stopAfter()
		cancel()
	}
}

func (c *Controller) snapshotLocked() state.Snapshot {
	c.version++
	visible := len(c.view.Items)
	return state.Snapshot{
		View:                c.view,
		Query:               c.query,
		Selected:            c.sel.IDs(),
		AllSelected:         c.sel.AllSelected(visible),
		Indeterminate:       c.sel.Indeterminate(visible),
		Loading:             c.loading,
		LastUpdated:         c.lastUpdated,
		LastError:           c.lastErr,
		ConsecutiveFailures: c.failures,
		Version:             c.version,
	}
}
