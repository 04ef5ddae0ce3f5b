// Package collection keeps a local page of the remote URL collection
// consistent with the server.
//
// The Controller owns the query (search, status filter, sort, page), issues
// list requests, runs single and bulk mutations and publishes every change to
// a state.Store.
//
// Fetches are numbered. Only the response to the most recently issued fetch
// is applied; older responses are dropped whatever order they arrive in. A
// failed fetch resets the view to the empty first page and records the error
// in the snapshot. Mutations refresh once on success and return the wrapped
// error on failure without touching the view.
//
// The controller never holds its lock across a request, so the UI, the
// poller and mutations may call it concurrently.
package collection
