package crawlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/five82/crawldeck/internal/session"
)

// Endpoint is the remote collection contract consumed by the sync controller.
// It is implemented by *Client and can be faked in tests.
type Endpoint interface {
	ListURLs(ctx context.Context, query ListQuery) (ListResponse, error)
	CreateURL(ctx context.Context, rawURL string) (ActionResponse, error)
	GetURL(ctx context.Context, id int64) (Item, error)
	StartCrawl(ctx context.Context, id int64) (ActionResponse, error)
	StopCrawl(ctx context.Context, id int64) (ActionResponse, error)
	RerunCrawl(ctx context.Context, id int64) (ActionResponse, error)
	DeleteURL(ctx context.Context, id int64) (ActionResponse, error)
	GetResults(ctx context.Context, id int64) (CrawlResult, error)
	BulkDelete(ctx context.Context, ids []int64) (ActionResponse, error)
	BulkRerun(ctx context.Context, ids []int64) (ActionResponse, error)
}

// Ensure Client implements Endpoint at compile time.
var _ Endpoint = (*Client)(nil)

// Client talks to the crawl service HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	session   *session.Session
	logger    *log.Logger
}

const (
	defaultAPIURL    = "http://localhost:8080/api"
	defaultUserAgent = "crawldeck/0.1"
	requestTimeout   = 30 * time.Second

	// RequestIDHeader carries a per-request UUID for server-side correlation.
	RequestIDHeader = "X-Request-ID"
)

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for session invalidation notices.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds a Client for apiURL. The session supplies the bearer
// token and is invalidated when the server answers 401.
func NewClient(apiURL string, sess *session.Session, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(apiURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
		session:   sess,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListQuery configures GET /urls requests.
type ListQuery struct {
	Page      int
	PageSize  int
	Search    string
	Status    Status
	SortBy    string
	SortOrder string
}

// Values encodes the query using the endpoint's parameter names.
func (q ListQuery) Values() url.Values {
	values := url.Values{}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if search := q.Search; strings.TrimSpace(search) != "" {
		values.Set("search", search)
	}
	if q.Status != "" {
		values.Set("status", string(q.Status))
	}
	if sortBy := strings.TrimSpace(q.SortBy); sortBy != "" {
		values.Set("sort_by", sortBy)
	}
	if order := strings.TrimSpace(q.SortOrder); order != "" {
		values.Set("sort_order", order)
	}
	return values
}

// ListURLs fetches one page of the collection.
func (c *Client) ListURLs(ctx context.Context, query ListQuery) (ListResponse, error) {
	var payload ListResponse
	if err := c.do(ctx, http.MethodGet, "/urls", query.Values(), nil, &payload); err != nil {
		return ListResponse{}, err
	}
	if payload.Data == nil {
		payload.Data = []Item{}
	}
	return payload, nil
}

// CreateURL submits a new URL for crawling.
func (c *Client) CreateURL(ctx context.Context, rawURL string) (ActionResponse, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ActionResponse{}, &ValidationError{Field: "url", Reason: "must not be empty"}
	}
	return c.action(ctx, http.MethodPost, "/urls", URLRequest{URL: trimmed})
}

// GetURL fetches a single item.
func (c *Client) GetURL(ctx context.Context, id int64) (Item, error) {
	var payload Item
	if err := c.do(ctx, http.MethodGet, itemPath(id, ""), nil, nil, &payload); err != nil {
		return Item{}, err
	}
	return payload, nil
}

// StartCrawl queues a crawl for id.
func (c *Client) StartCrawl(ctx context.Context, id int64) (ActionResponse, error) {
	return c.action(ctx, http.MethodPut, itemPath(id, "start"), nil)
}

// StopCrawl stops a running crawl.
func (c *Client) StopCrawl(ctx context.Context, id int64) (ActionResponse, error) {
	return c.action(ctx, http.MethodPut, itemPath(id, "stop"), nil)
}

// RerunCrawl crawls id again. The previous result stays until replaced.
func (c *Client) RerunCrawl(ctx context.Context, id int64) (ActionResponse, error) {
	return c.action(ctx, http.MethodPut, itemPath(id, "rerun"), nil)
}

// DeleteURL removes id from the collection.
func (c *Client) DeleteURL(ctx context.Context, id int64) (ActionResponse, error) {
	return c.action(ctx, http.MethodDelete, itemPath(id, ""), nil)
}

// GetResults fetches the full crawl result including broken links.
func (c *Client) GetResults(ctx context.Context, id int64) (CrawlResult, error) {
	var payload CrawlResult
	if err := c.do(ctx, http.MethodGet, itemPath(id, "results"), nil, nil, &payload); err != nil {
		return CrawlResult{}, err
	}
	return payload, nil
}

// BulkDelete removes every id in one request.
func (c *Client) BulkDelete(ctx context.Context, ids []int64) (ActionResponse, error) {
	if len(ids) == 0 {
		return ActionResponse{}, &ValidationError{Field: "ids", Reason: "no ids provided"}
	}
	return c.action(ctx, http.MethodPost, "/bulk/delete", BulkRequest{IDs: ids})
}

// BulkRerun re-crawls every id in one request.
func (c *Client) BulkRerun(ctx context.Context, ids []int64) (ActionResponse, error) {
	if len(ids) == 0 {
		return ActionResponse{}, &ValidationError{Field: "ids", Reason: "no ids provided"}
	}
	return c.action(ctx, http.MethodPost, "/bulk/rerun", BulkRequest{IDs: ids})
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	if strings.TrimSpace(req.Username) == "" {
		return AuthResponse{}, &ValidationError{Field: "username", Reason: "must not be empty"}
	}
	var payload AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &payload); err != nil {
		return AuthResponse{}, err
	}
	return payload, nil
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	if strings.TrimSpace(req.Username) == "" {
		return AuthResponse{}, &ValidationError{Field: "username", Reason: "must not be empty"}
	}
	var payload AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &payload); err != nil {
		return AuthResponse{}, err
	}
	return payload, nil
}

// Health checks that the endpoint is reachable.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var payload HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &payload); err != nil {
		return HealthResponse{}, err
	}
	return payload, nil
}

func (c *Client) action(ctx context.Context, method, path string, body any) (ActionResponse, error) {
	var payload ActionResponse
	if err := c.do(ctx, method, path, nil, body, &payload); err != nil {
		return ActionResponse{}, err
	}
	return payload, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	reqURL := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidateSession()
		}
		return apiErr
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) invalidateSession() {
	if c.session == nil || c.session.Token() == "" {
		return
	}
	if err := c.session.Invalidate(); err != nil {
		c.logger.Printf("session invalidation failed: %v", err)
		return
	}
	c.logger.Printf("session invalidated after 401 response")
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64*1024))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload ErrorResponse
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}

func itemPath(id int64, action string) string {
	p := "/urls/" + strconv.FormatInt(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

func parseBaseURL(apiURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiURL)
	if trimmed == "" {
		trimmed = defaultAPIURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", apiURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api url %q: missing host", apiURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
