package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/roamtools/roamsync/internal/block"
)

// testStore opens a store backed by a temporary database.
func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPage() *block.Block {
	return &block.Block{
		UID:  "page-1",
		Text: "Test Page",
		Children: []*block.Block{
			{UID: "b1", Text: "first", Attrs: block.Attrs{Heading: 2}},
			{UID: "b2", Text: "second", Attrs: block.Attrs{Todo: block.TodoOpen},
				Children: []*block.Block{
					{UID: "b3", Text: "nested"},
				}},
		},
	}
}

func TestPutGetPage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.PutPageContext(ctx, "Test Page", testPage()); err != nil {
		t.Fatalf("PutPage() failed: %v", err)
	}

	got, err := s.GetPageContext(ctx, "Test Page")
	if err != nil {
		t.Fatalf("GetPage() failed: %v", err)
	}
	if got.UID != "page-1" || got.Text != "Test Page" {
		t.Errorf("root = %q/%q", got.UID, got.Text)
	}
	if len(got.Children) != 2 {
		t.Fatalf("got %d children, want 2", len(got.Children))
	}
	if got.Children[0].UID != "b1" || got.Children[1].UID != "b2" {
		t.Errorf("sibling order not preserved: %s, %s",
			got.Children[0].UID, got.Children[1].UID)
	}
	if got.Children[0].Attrs.Heading != 2 {
		t.Errorf("heading attr lost: %+v", got.Children[0].Attrs)
	}
	if got.Children[1].Attrs.Todo != block.TodoOpen {
		t.Errorf("todo attr lost: %+v", got.Children[1].Attrs)
	}
	if len(got.Children[1].Children) != 1 || got.Children[1].Children[0].Text != "nested" {
		t.Errorf("nested block lost: %+v", got.Children[1].Children)
	}
}

func TestGetPage_NotCached(t *testing.T) {
	s := testStore(t)

	_, err := s.GetPage("No Such Page")
	if !errors.Is(err, block.ErrNotFound) {
		t.Errorf("got %v, want block.ErrNotFound", err)
	}
}

func TestGetBlock_Subtree(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.PutPageContext(ctx, "Test Page", testPage()); err != nil {
		t.Fatalf("PutPage() failed: %v", err)
	}

	got, err := s.GetBlockContext(ctx, "b2")
	if err != nil {
		t.Fatalf("GetBlock() failed: %v", err)
	}
	if got.Text != "second" || len(got.Children) != 1 {
		t.Errorf("subtree = %q with %d children", got.Text, len(got.Children))
	}
}

func TestPutPage_Replaces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.PutPageContext(ctx, "Test Page", testPage()); err != nil {
		t.Fatalf("PutPage() failed: %v", err)
	}

	smaller := &block.Block{
		UID:  "page-1",
		Text: "Test Page",
		Children: []*block.Block{
			{UID: "b1", Text: "only survivor"},
		},
	}
	if err := s.PutPageContext(ctx, "Test Page", smaller); err != nil {
		t.Fatalf("PutPage() re-put failed: %v", err)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if stats.Pages != 1 || stats.Blocks != 2 {
		t.Errorf("stats = %+v, want 1 page / 2 blocks", stats)
	}
	if _, err := s.GetBlockContext(ctx, "b3"); !errors.Is(err, block.ErrNotFound) {
		t.Errorf("stale block survived re-put: %v", err)
	}
}

func TestPutPage_RejectsMissingUID(t *testing.T) {
	s := testStore(t)

	bad := &block.Block{UID: "page-1", Text: "P",
		Children: []*block.Block{{Text: "never persisted"}}}
	if err := s.PutPage("P", bad); err == nil {
		t.Error("PutPage() accepted a block without uid")
	}
}

func TestDeleteStale(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.PutPageContext(ctx, "Old Page", testPage()); err != nil {
		t.Fatalf("PutPage() failed: %v", err)
	}
	backdate(t, s, "Old Page", -2*time.Hour)

	n, err := s.DeleteStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("DeleteStale() failed: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted %d rows, want 4", n)
	}
	if _, err := s.GetPageContext(ctx, "Old Page"); !errors.Is(err, block.ErrNotFound) {
		t.Errorf("stale page survived sweep: %v", err)
	}
}

func TestClearAndStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		page := &block.Block{UID: fmt.Sprintf("p%d", i), Text: fmt.Sprintf("Page %d", i)}
		if err := s.PutPageContext(ctx, page.Text, page); err != nil {
			t.Fatalf("PutPage() failed: %v", err)
		}
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if stats.Pages != 3 || stats.Blocks != 3 {
		t.Errorf("stats = %+v, want 3 pages / 3 blocks", stats)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	stats, err = s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() after Clear failed: %v", err)
	}
	if stats.Blocks != 0 {
		t.Errorf("cache not empty after Clear: %+v", stats)
	}
}

// backdate shifts a cached page's fetched_at for staleness tests.
func backdate(t *testing.T, s *Store, title string, by time.Duration) {
	t.Helper()
	stamp := time.Now().UTC().Add(by).Format(time.RFC3339)
	if _, err := s.conn.Exec(
		`UPDATE blocks SET fetched_at = ? WHERE page_title = ?`, stamp, title); err != nil {
		t.Fatalf("failed to backdate page %q: %v", title, err)
	}
}
