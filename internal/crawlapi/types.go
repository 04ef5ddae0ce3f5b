package crawlapi

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the lifecycle state of a crawl job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Statuses lists every job status in lifecycle order.
var Statuses = []Status{StatusQueued, StatusRunning, StatusCompleted, StatusFailed}

// ParseStatus normalizes a status string. The empty string parses to the
// empty Status, which callers treat as "no filter".
func ParseStatus(value string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if s == "" {
		return "", true
	}
	for _, known := range Statuses {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// Active reports whether the job has not reached a terminal state.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusRunning
}

// Item mirrors one entry of /urls.
type Item struct {
	ID        int64        `json:"id"`
	UserID    int64        `json:"user_id"`
	URL       string       `json:"url"`
	Status    Status       `json:"status"`
	CreatedAt string       `json:"created_at"`
	UpdatedAt string       `json:"updated_at"`
	Result    *CrawlResult `json:"result,omitempty"`
}

// ParsedCreatedAt returns the parsed CreatedAt timestamp.
func (i Item) ParsedCreatedAt() time.Time {
	return parseTime(i.CreatedAt)
}

// ParsedUpdatedAt returns the parsed UpdatedAt timestamp.
func (i Item) ParsedUpdatedAt() time.Time {
	return parseTime(i.UpdatedAt)
}

// Title returns the crawled page title, if any.
func (i Item) Title() string {
	if i.Result == nil {
		return ""
	}
	return i.Result.Title
}

// CrawlResult is the analysis summary of a completed crawl.
type CrawlResult struct {
	ID                int64        `json:"id"`
	URLID             int64        `json:"url_id"`
	Title             string       `json:"title"`
	HTMLVersion       string       `json:"html_version"`
	H1Count           int          `json:"h1_count"`
	H2Count           int          `json:"h2_count"`
	H3Count           int          `json:"h3_count"`
	H4Count           int          `json:"h4_count"`
	H5Count           int          `json:"h5_count"`
	H6Count           int          `json:"h6_count"`
	InternalLinks     int          `json:"internal_links"`
	ExternalLinks     int          `json:"external_links"`
	InaccessibleLinks int          `json:"inaccessible_links"`
	HasLoginForm      bool         `json:"has_login_form"`
	CreatedAt         string       `json:"created_at"`
	UpdatedAt         string       `json:"updated_at"`
	BrokenLinks       []BrokenLink `json:"broken_links,omitempty"`
}

// HeadingCounts returns h1..h6 counts indexed from zero.
func (r CrawlResult) HeadingCounts() [6]int {
	return [6]int{r.H1Count, r.H2Count, r.H3Count, r.H4Count, r.H5Count, r.H6Count}
}

// BrokenLink is a link that failed to resolve or returned a non-success status.
type BrokenLink struct {
	ID           int64  `json:"id"`
	ResultID     int64  `json:"result_id"`
	URL          string `json:"url"`
	StatusCode   int    `json:"status_code"`
	ErrorMessage string `json:"error_message"`
	CreatedAt    string `json:"created_at"`
}

// ListResponse mirrors the paginated /urls payload.
type ListResponse struct {
	Data       []Item `json:"data"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
}

// ActionResponse is returned by every mutating endpoint.
type ActionResponse struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// User describes the account that owns a session.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// AuthResponse is returned by /auth/login and /auth/register.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// LoginRequest is the /auth/login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the /auth/register body.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// URLRequest is the POST /urls body.
type URLRequest struct {
	URL string `json:"url"`
}

// BulkRequest is the body of the /bulk endpoints.
type BulkRequest struct {
	IDs []int64 `json:"ids"`
}

// HealthResponse mirrors /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the error body returned on non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
