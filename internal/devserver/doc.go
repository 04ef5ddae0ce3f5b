// Package devserver implements a self-contained crawl service that speaks the
// same HTTP API crawldeck consumes. It backs local development, demos and the
// end-to-end tests of the client and sync controller.
//
// # Components
//
//   - Store: SQLite persistence (mattn/go-sqlite3) for users, URLs, crawl
//     results and broken links. Passwords are hashed with bcrypt.
//   - Analyzer: fetches a page, parses it with goquery and probes its links
//     with a bounded worker pool.
//   - Server: gin routes under /api guarded by HS256 JWT bearer tokens.
//
// # Routes
//
//	GET    /api/health
//	POST   /api/auth/login
//	POST   /api/auth/register
//	GET    /api/urls            ?page&page_size&search&status&sort_by&sort_order
//	POST   /api/urls
//	GET    /api/urls/:id
//	PUT    /api/urls/:id/start
//	PUT    /api/urls/:id/stop
//	PUT    /api/urls/:id/rerun
//	DELETE /api/urls/:id
//	GET    /api/urls/:id/results
//	POST   /api/bulk/delete
//	POST   /api/bulk/rerun
//
// Errors use the body {"error": "..."}; mutations answer {"message", "data"}.
//
// # Crawl Lifecycle
//
// Start and rerun move a URL to running and launch a crawl goroutine,
// replacing any crawl already running for it. Stop cancels the crawl and
// returns the URL to queued. A finished crawl stores its result and marks the
// URL completed; a failed one marks it failed. Deleting a URL cancels its
// crawl. Server.Close cancels every crawl and waits for them.
package devserver
