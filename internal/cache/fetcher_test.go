package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roamtools/roamsync/internal/block"
)

// countingRemote fakes the backend and counts calls.
type countingRemote struct {
	pages      map[string]*block.Block
	blocks     map[string]*block.Block
	pageCalls  int
	blockCalls int
}

func (r *countingRemote) FetchPage(ctx context.Context, title string) (*block.Block, error) {
	r.pageCalls++
	if p, ok := r.pages[title]; ok {
		return p.Clone(), nil
	}
	return nil, block.ErrNotFound
}

func (r *countingRemote) FetchBlock(ctx context.Context, uid string) (*block.Block, error) {
	r.blockCalls++
	if b, ok := r.blocks[uid]; ok {
		return b.Clone(), nil
	}
	return nil, block.ErrNotFound
}

func TestFetcher_ReadThrough(t *testing.T) {
	s := testStore(t)
	remote := &countingRemote{pages: map[string]*block.Block{"Test Page": testPage()}}
	f := NewFetcher(s, remote, time.Hour, nil)
	ctx := context.Background()

	got, err := f.FetchPage(ctx, "Test Page")
	if err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}
	if got.UID != "page-1" {
		t.Errorf("root uid = %q", got.UID)
	}
	if remote.pageCalls != 1 {
		t.Fatalf("remote called %d times, want 1", remote.pageCalls)
	}

	// Second fetch is served from the store.
	if _, err := f.FetchPage(ctx, "Test Page"); err != nil {
		t.Fatalf("cached FetchPage() failed: %v", err)
	}
	if remote.pageCalls != 1 {
		t.Errorf("remote called %d times after cached fetch, want 1", remote.pageCalls)
	}
}

func TestFetcher_StaleRefetch(t *testing.T) {
	s := testStore(t)
	remote := &countingRemote{pages: map[string]*block.Block{"Test Page": testPage()}}
	f := NewFetcher(s, remote, time.Minute, nil)
	ctx := context.Background()

	if _, err := f.FetchPage(ctx, "Test Page"); err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}
	backdate(t, s, "Test Page", -time.Hour)

	if _, err := f.FetchPage(ctx, "Test Page"); err != nil {
		t.Fatalf("stale FetchPage() failed: %v", err)
	}
	if remote.pageCalls != 2 {
		t.Errorf("remote called %d times, want refetch after TTL", remote.pageCalls)
	}
}

func TestFetcher_BlockMissThenHit(t *testing.T) {
	s := testStore(t)
	remote := &countingRemote{blocks: map[string]*block.Block{
		"b7": {UID: "b7", Text: "referenced"},
	}}
	f := NewFetcher(s, remote, time.Hour, nil)
	ctx := context.Background()

	b, err := f.FetchBlock(ctx, "b7")
	if err != nil {
		t.Fatalf("FetchBlock() failed: %v", err)
	}
	if b.Text != "referenced" {
		t.Errorf("block text = %q", b.Text)
	}

	if _, err := f.FetchBlock(ctx, "b7"); err != nil {
		t.Fatalf("cached FetchBlock() failed: %v", err)
	}
	if remote.blockCalls != 1 {
		t.Errorf("remote called %d times, want 1", remote.blockCalls)
	}
}

func TestFetcher_NotFoundPassesThrough(t *testing.T) {
	s := testStore(t)
	f := NewFetcher(s, &countingRemote{}, time.Hour, nil)

	_, err := f.FetchPage(context.Background(), "Missing")
	if !errors.Is(err, block.ErrNotFound) {
		t.Errorf("got %v, want block.ErrNotFound", err)
	}
}

func TestFetcher_DefaultTTL(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "ttl.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	f := NewFetcher(s, &countingRemote{}, 0, nil)
	if f.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want DefaultTTL", f.ttl)
	}
}
