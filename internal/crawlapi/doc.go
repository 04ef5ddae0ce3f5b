// Package crawlapi provides an HTTP client for the crawl service API.
//
// # Overview
//
// The crawl service owns a paginated collection of crawl jobs. Each job tracks
// one submitted URL through queued → running → completed/failed. This package
// mirrors the service's JSON schema and exposes one method per endpoint.
//
// # Architecture
//
// The package is split into three files:
//
//   - client.go: HTTP client, request construction, response decoding
//   - types.go: data structures mirroring the API schema
//   - errors.go: the error taxonomy returned by every call
//
// # Client Usage
//
//	sess, _ := session.Load(cfg.SessionPath)
//	client, err := crawlapi.NewClient(cfg.APIURL, sess)
//	if err != nil {
//		log.Fatalf("failed to create client: %v", err)
//	}
//
//	page, err := client.ListURLs(ctx, crawlapi.ListQuery{Page: 1, PageSize: 10})
//	if err != nil {
//		log.Printf("list failed: %v", err)
//	}
//
// # Endpoints
//
//   - GET /urls: paginated list (page, page_size, search, status, sort_by, sort_order)
//   - POST /urls: create
//   - GET /urls/{id}, GET /urls/{id}/results: item and full crawl result
//   - PUT /urls/{id}/start|stop|rerun, DELETE /urls/{id}: per-item actions
//   - POST /bulk/delete, POST /bulk/rerun: bulk actions resolved as one request
//   - POST /auth/login, POST /auth/register, GET /health
//
// # Request Handling
//
// All requests:
//   - Use context for cancellation and timeout control
//   - Set Accept: application/json and User-Agent: crawldeck/0.1
//   - Carry a fresh X-Request-ID (UUID v4)
//   - Send Authorization: Bearer <token> when the session holds a token
//
// # Error Handling
//
//   - *TransportError: the request never completed (DNS, refused, timeout)
//   - *ValidationError: input rejected before sending (empty URL, no ids)
//   - *APIError: non-2xx response; Message carries the server's "error" field
//   - ErrUnauthorized: matched by errors.Is for any 401
//
// A 401 also invalidates the session, clearing the token and removing the
// session file. The client never retries; retry policy belongs to callers.
//
// # Thread Safety
//
// The Client is safe for concurrent use.
package crawlapi
