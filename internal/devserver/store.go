package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/five82/crawldeck/internal/crawlapi"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS urls (
    id INTEGER PRIMARY KEY,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued'
        CHECK (status IN ('queued', 'running', 'completed', 'failed')),
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS crawl_results (
    id INTEGER PRIMARY KEY,
    url_id INTEGER NOT NULL UNIQUE REFERENCES urls(id) ON DELETE CASCADE,
    title TEXT,
    html_version TEXT,
    h1_count INTEGER DEFAULT 0,
    h2_count INTEGER DEFAULT 0,
    h3_count INTEGER DEFAULT 0,
    h4_count INTEGER DEFAULT 0,
    h5_count INTEGER DEFAULT 0,
    h6_count INTEGER DEFAULT 0,
    internal_links INTEGER DEFAULT 0,
    external_links INTEGER DEFAULT 0,
    inaccessible_links INTEGER DEFAULT 0,
    has_login_form BOOLEAN DEFAULT FALSE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS broken_links (
    id INTEGER PRIMARY KEY,
    result_id INTEGER NOT NULL REFERENCES crawl_results(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    status_code INTEGER NOT NULL,
    error_message TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_urls_user ON urls(user_id);
CREATE INDEX IF NOT EXISTS idx_urls_status ON urls(status);
CREATE INDEX IF NOT EXISTS idx_broken_links_result ON broken_links(result_id);
`

var (
	errNotFound   = errors.New("not found")
	errNotRunning = errors.New("not running")
	errConflict   = errors.New("already exists")
	errBadLogin   = errors.New("invalid credentials")
)

// sortColumns whitelists sort_by values.
var sortColumns = map[string]string{
	"created_at":     "u.created_at",
	"updated_at":     "u.updated_at",
	"url":            "u.url",
	"status":         "u.status",
	"title":          "r.title",
	"internal_links": "r.internal_links",
	"external_links": "r.external_links",
}

// Store persists users, URLs and crawl results in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens the SQLite database at path and applies the schema. An empty
// path opens a private in-memory database.
func OpenStore(path string) (*Store, error) {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", "file:"+dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser hashes password with bcrypt and inserts the account.
func (s *Store) CreateUser(ctx context.Context, username, email, password string) (crawlapi.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return crawlapi.User{}, fmt.Errorf("hash password: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)",
		username, email, string(hash))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return crawlapi.User{}, errConflict
		}
		return crawlapi.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return crawlapi.User{}, fmt.Errorf("insert user: %w", err)
	}
	return crawlapi.User{ID: id, Username: username, Email: email}, nil
}

// Authenticate checks username and password.
func (s *Store) Authenticate(ctx context.Context, username, password string) (crawlapi.User, error) {
	var user crawlapi.User
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash FROM users WHERE username = ?", username,
	).Scan(&user.ID, &user.Username, &user.Email, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawlapi.User{}, errBadLogin
		}
		return crawlapi.User{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return crawlapi.User{}, errBadLogin
	}
	return user, nil
}

// listParams are validated list query parameters.
type listParams struct {
	Page      int
	PageSize  int
	Search    string
	Status    crawlapi.Status
	SortBy    string
	SortOrder string
}

const itemColumns = `
	u.id, u.user_id, u.url, u.status, u.created_at, u.updated_at,
	r.id, r.title, r.html_version, r.h1_count, r.h2_count, r.h3_count,
	r.h4_count, r.h5_count, r.h6_count, r.internal_links, r.external_links,
	r.inaccessible_links, r.has_login_form, r.created_at, r.updated_at`

// ListURLs returns one page of userID's URLs and the total match count.
func (s *Store) ListURLs(ctx context.Context, userID int64, p listParams) ([]crawlapi.Item, int, error) {
	where := " WHERE u.user_id = ?"
	args := []any{userID}
	if p.Search != "" {
		where += " AND (u.url LIKE ? OR r.title LIKE ?)"
		like := "%" + p.Search + "%"
		args = append(args, like, like)
	}
	if p.Status != "" {
		where += " AND u.status = ?"
		args = append(args, string(p.Status))
	}
	from := " FROM urls u LEFT JOIN crawl_results r ON r.url_id = u.id"

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count urls: %w", err)
	}

	col, ok := sortColumns[p.SortBy]
	if !ok {
		col = sortColumns["created_at"]
	}
	dir := "DESC"
	if p.SortOrder == "asc" {
		dir = "ASC"
	}
	order := fmt.Sprintf(" ORDER BY %s %s, u.id %s LIMIT ? OFFSET ?", col, dir, dir)
	args = append(args, p.PageSize, (p.Page-1)*p.PageSize)

	rows, err := s.db.QueryContext(ctx, "SELECT"+itemColumns+from+where+order, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list urls: %w", err)
	}
	defer rows.Close()

	items := []crawlapi.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list urls: %w", err)
	}
	return items, total, nil
}

// GetURL returns one of userID's URLs with its result summary.
func (s *Store) GetURL(ctx context.Context, userID, id int64) (crawlapi.Item, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+itemColumns+" FROM urls u LEFT JOIN crawl_results r ON r.url_id = u.id WHERE u.id = ? AND u.user_id = ?",
		id, userID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return crawlapi.Item{}, errNotFound
	}
	return item, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (crawlapi.Item, error) {
	var (
		item                      crawlapi.Item
		created, updated          time.Time
		resultID                  sql.NullInt64
		title, htmlVersion        sql.NullString
		h1, h2, h3, h4, h5, h6    sql.NullInt64
		internal, external, inacc sql.NullInt64
		hasLogin                  sql.NullBool
		resCreated, resUpdated    sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.UserID, &item.URL, &item.Status, &created, &updated,
		&resultID, &title, &htmlVersion, &h1, &h2, &h3, &h4, &h5, &h6,
		&internal, &external, &inacc, &hasLogin, &resCreated, &resUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawlapi.Item{}, err
		}
		return crawlapi.Item{}, fmt.Errorf("scan url: %w", err)
	}
	item.CreatedAt = formatTime(created)
	item.UpdatedAt = formatTime(updated)
	if resultID.Valid {
		item.Result = &crawlapi.CrawlResult{
			ID:                resultID.Int64,
			URLID:             item.ID,
			Title:             title.String,
			HTMLVersion:       htmlVersion.String,
			H1Count:           int(h1.Int64),
			H2Count:           int(h2.Int64),
			H3Count:           int(h3.Int64),
			H4Count:           int(h4.Int64),
			H5Count:           int(h5.Int64),
			H6Count:           int(h6.Int64),
			InternalLinks:     int(internal.Int64),
			ExternalLinks:     int(external.Int64),
			InaccessibleLinks: int(inacc.Int64),
			HasLoginForm:      hasLogin.Bool,
			CreatedAt:         formatTime(resCreated.Time),
			UpdatedAt:         formatTime(resUpdated.Time),
		}
	}
	return item, nil
}

// CreateURL inserts a queued URL.
func (s *Store) CreateURL(ctx context.Context, userID int64, rawURL string) (crawlapi.Item, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO urls (user_id, url, status) VALUES (?, ?, 'queued')", userID, rawURL)
	if err != nil {
		return crawlapi.Item{}, fmt.Errorf("insert url: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return crawlapi.Item{}, fmt.Errorf("insert url: %w", err)
	}
	return s.GetURL(ctx, userID, id)
}

// SetStatus updates the status of one URL. A zero userID skips the ownership
// check and is used by crawl goroutines.
func (s *Store) SetStatus(ctx context.Context, userID, id int64, status crawlapi.Status) error {
	query := "UPDATE urls SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?"
	args := []any{string(status), id}
	if userID != 0 {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return nil
}

// OwnedIDs returns the subset of ids owned by userID, with their URLs.
func (s *Store) OwnedIDs(ctx context.Context, userID int64, ids []int64) (map[int64]string, error) {
	query, args := inClause("SELECT id, url FROM urls WHERE user_id = ? AND id IN", userID, ids)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select urls: %w", err)
	}
	defer rows.Close()

	owned := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var u string
		if err := rows.Scan(&id, &u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		owned[id] = u
	}
	return owned, rows.Err()
}

// DeleteURLs removes ids owned by userID and reports how many were deleted.
func (s *Store) DeleteURLs(ctx context.Context, userID int64, ids []int64) (int64, error) {
	query, args := inClause("DELETE FROM urls WHERE user_id = ? AND id IN", userID, ids)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete urls: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func inClause(prefix string, userID int64, ids []int64) (string, []any) {
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	marks := make([]string, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args = append(args, id)
	}
	return prefix + " (" + strings.Join(marks, ",") + ")", args
}

// SaveResult replaces the crawl result of urlID and marks it completed. It
// returns errNotRunning, writing nothing, once the URL has left running.
func (s *Store) SaveResult(ctx context.Context, urlID int64, result crawlapi.CrawlResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE urls SET status = 'completed', updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'running'", urlID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotRunning
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM crawl_results WHERE url_id = ?", urlID); err != nil {
		return fmt.Errorf("delete previous result: %w", err)
	}
	res, err = tx.ExecContext(ctx, `
		INSERT INTO crawl_results (
			url_id, title, html_version, h1_count, h2_count, h3_count,
			h4_count, h5_count, h6_count, internal_links, external_links,
			inaccessible_links, has_login_form
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		urlID, result.Title, result.HTMLVersion,
		result.H1Count, result.H2Count, result.H3Count, result.H4Count, result.H5Count, result.H6Count,
		result.InternalLinks, result.ExternalLinks, result.InaccessibleLinks, result.HasLoginForm)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	resultID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	for _, link := range result.BrokenLinks {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO broken_links (result_id, url, status_code, error_message) VALUES (?, ?, ?, ?)",
			resultID, link.URL, link.StatusCode, link.ErrorMessage); err != nil {
			return fmt.Errorf("insert broken link: %w", err)
		}
	}
	return tx.Commit()
}

// GetResults returns the full result of one of userID's URLs.
func (s *Store) GetResults(ctx context.Context, userID, id int64) (crawlapi.CrawlResult, error) {
	item, err := s.GetURL(ctx, userID, id)
	if err != nil {
		return crawlapi.CrawlResult{}, err
	}
	if item.Result == nil {
		return crawlapi.CrawlResult{}, errNotFound
	}
	result := *item.Result

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, url, status_code, error_message, created_at FROM broken_links WHERE result_id = ? ORDER BY id",
		result.ID)
	if err != nil {
		return crawlapi.CrawlResult{}, fmt.Errorf("select broken links: %w", err)
	}
	defer rows.Close()

	result.BrokenLinks = []crawlapi.BrokenLink{}
	for rows.Next() {
		var (
			link    crawlapi.BrokenLink
			message sql.NullString
			created time.Time
		)
		if err := rows.Scan(&link.ID, &link.URL, &link.StatusCode, &message, &created); err != nil {
			return crawlapi.CrawlResult{}, fmt.Errorf("scan broken link: %w", err)
		}
		link.ResultID = result.ID
		link.ErrorMessage = message.String
		link.CreatedAt = formatTime(created)
		result.BrokenLinks = append(result.BrokenLinks, link)
	}
	return result, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
