package devserver_test

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/five82/crawldeck/internal/collection"
	"github.com/five82/crawldeck/internal/crawlapi"
	"github.com/five82/crawldeck/internal/devserver"
	"github.com/five82/crawldeck/internal/session"
	"github.com/five82/crawldeck/internal/state"
)

// TestControllerAgainstServer drives the real client and sync controller
// against the development server.
func TestControllerAgainstServer(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	ctx := context.Background()

	store, err := devserver.OpenStore(filepath.Join(t.TempDir(), "crawl.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	srv, err := devserver.NewServer(store, devserver.Options{
		Secret: "e2e-secret",
		Logger: quiet,
		Crawl: func(_ context.Context, target string) (crawlapi.CrawlResult, error) {
			return crawlapi.CrawlResult{
				Title:             "Title of " + target,
				InaccessibleLinks: 1,
				BrokenLinks:       []crawlapi.BrokenLink{{URL: target + "/gone", StatusCode: 404}},
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	user, err := store.CreateUser(ctx, "demo", "demo@example.com", "demo")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	sessPath := filepath.Join(t.TempDir(), "session.toml")
	sess := session.New(sessPath)
	anon, err := crawlapi.NewClient(ts.URL+"/api", sess, crawlapi.WithLogger(quiet))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	auth, err := anon.Login(ctx, crawlapi.LoginRequest{Username: "demo", Password: "demo"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := sess.Set(auth.Token, session.User{ID: auth.User.ID, Username: auth.User.Username}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if auth.User.ID != user.ID {
		t.Fatalf("logged in as %d, want %d", auth.User.ID, user.ID)
	}

	snapshots := &state.Store{}
	ctrl := collection.New(anon, snapshots, collection.Options{PageSize: 2, Logger: quiet})
	defer ctrl.Close()

	ctrl.Refresh(ctx)
	if snap := snapshots.Snapshot(); snap.LastError != nil || snap.View.Total != 0 {
		t.Fatalf("initial snapshot = %#v", snap)
	}

	for _, raw := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		if err := ctrl.Add(ctx, raw); err != nil {
			t.Fatalf("Add %s: %v", raw, err)
		}
	}
	snap := snapshots.Snapshot()
	if snap.View.Total != 3 || snap.View.TotalPages != 2 || len(snap.View.Items) != 2 {
		t.Fatalf("view after adds = %+v", snap.View)
	}
	if !snap.Polling() {
		t.Fatalf("queued items should keep polling active")
	}

	newest := snap.View.Items[0]
	if newest.URL != "https://c.example" {
		t.Fatalf("default sort should show newest first, got %s", newest.URL)
	}
	if err := ctrl.Start(ctx, newest.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		ctrl.Refresh(ctx)
		item := snapshots.Snapshot().View.Items[0]
		if item.Status == crawlapi.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("crawl did not complete, status %s", item.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	detail, err := ctrl.Details(ctx, newest.ID)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if detail.Result == nil || detail.Result.Title != "Title of https://c.example" || len(detail.Result.BrokenLinks) != 1 {
		t.Fatalf("detail = %#v", detail)
	}

	ctrl.SetStatusFilter(ctx, crawlapi.StatusCompleted)
	if snap := snapshots.Snapshot(); snap.View.Total != 1 {
		t.Fatalf("completed filter total = %d", snap.View.Total)
	}
	ctrl.SetStatusFilter(ctx, "")

	ctrl.SelectAll(true)
	if err := ctrl.BulkDelete(ctx, snapshots.Snapshot().Selected); err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	snap = snapshots.Snapshot()
	if snap.View.Total != 1 || len(snap.Selected) != 0 {
		t.Fatalf("after bulk delete total=%d selected=%v", snap.View.Total, snap.Selected)
	}

	// A token the server rejects ends the session.
	if err := sess.Set("not-a-valid-token", session.User{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ctrl.Refresh(ctx)
	snap = snapshots.Snapshot()
	if !errors.Is(snap.LastError, crawlapi.ErrUnauthorized) {
		t.Fatalf("LastError = %v, want unauthorized", snap.LastError)
	}
	if sess.Token() != "" {
		t.Fatalf("401 should clear the session")
	}
	if crawlapi.Message(snap.LastError) != "session expired" {
		t.Fatalf("Message = %q", crawlapi.Message(snap.LastError))
	}
}
