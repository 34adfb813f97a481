package history_test

import (
	"context"
	"path/filepath"
	"testing"

	"rbridge/pkg/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "transcript.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndQuery(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	store.Record("s1", "eval", "x<-1", true, "")
	store.Record("s1", "pull", "x", true, "integer")
	store.Record("s1", "eval", "y<-", false, "parse: incomplete")

	entries, err := store.Query(ctx, history.QueryOpts{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].Code != "y<-" || entries[0].OK {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[0].Detail != "parse: incomplete" {
		t.Errorf("detail = %q", entries[0].Detail)
	}
	if entries[2].Op != "eval" || entries[2].Code != "x<-1" || !entries[2].OK {
		t.Fatalf("oldest entry = %+v", entries[2])
	}
}

func TestQueryFilters(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	store.Record("s1", "eval", "a<-1", true, "")
	store.Record("s2", "eval", "b<-2", true, "")
	store.Record("s2", "assign", "c", true, "")

	entries, err := store.Query(ctx, history.QueryOpts{SessionID: "s2", Op: "eval"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].Code != "b<-2" {
		t.Fatalf("entries = %+v", entries)
	}

	entries, err = store.Query(ctx, history.QueryOpts{Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("limit ignored: %d entries", len(entries))
	}
}

func TestQueryEmptyStore(t *testing.T) {
	store := openStore(t)
	entries, err := store.Query(context.Background(), history.QueryOpts{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries from empty store", len(entries))
	}
}

func TestSessions(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	store.Record("s1", "eval", "a<-1", true, "")
	store.Record("s1", "eval", "b<-2", true, "")
	store.Record("s2", "pull", "a", true, "integer")

	sums, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sums))
	}
	// Most recently active first.
	if sums[0].SessionID != "s2" || sums[0].Ops != 1 {
		t.Fatalf("first summary = %+v", sums[0])
	}
	if sums[1].SessionID != "s1" || sums[1].Ops != 2 {
		t.Fatalf("second summary = %+v", sums[1])
	}
	if sums[1].First.IsZero() || sums[1].Last.Before(sums[1].First) {
		t.Errorf("timestamps = %v .. %v", sums[1].First, sums[1].Last)
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.db")

	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.Record("s1", "eval", "x<-1", true, "")
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store, err = history.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	entries, err := store.Query(context.Background(), history.QueryOpts{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries after reopen, want 1", len(entries))
	}
}
