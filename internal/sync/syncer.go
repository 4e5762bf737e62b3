package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/roamtools/roamsync/internal/block"
	"github.com/roamtools/roamsync/internal/diff"
	"github.com/roamtools/roamsync/internal/format"
	"github.com/roamtools/roamsync/internal/markup"
)

// syncer implements the Syncer interface.
type syncer struct {
	transport Transport
	logger    *log.Logger
}

// New creates a Syncer over a backend transport.
// If logger is nil, a default logger writing to stderr is used.
func New(transport Transport, logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{transport: transport, logger: logger}
}

// SyncFile implements Syncer.SyncFile.
func (s *syncer) SyncFile(ctx context.Context, path, title string) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read page file: %w", err)
	}
	if title == "" {
		title = TitleFromPath(path)
	}
	return s.SyncPage(ctx, title, string(src))
}

// SyncPage implements Syncer.SyncPage.
func (s *syncer) SyncPage(ctx context.Context, title, src string) (*Result, error) {
	result, _, _, err := s.plan(ctx, title, src)
	if err != nil {
		return nil, err
	}
	if !result.Changed() {
		s.logger.Printf("Page up to date: %s", title)
		return result, nil
	}

	if err := s.transport.Apply(ctx, result.Actions); err != nil {
		return nil, fmt.Errorf("failed to apply plan for %q: %w", title, err)
	}
	s.logger.Printf("Synced page: %s (%d created, %d updated, %d moved, %d deleted)",
		title, result.Created, result.Updated, result.Moved, result.Deleted)
	return result, nil
}

// Preview implements Syncer.Preview.
func (s *syncer) Preview(ctx context.Context, title, src string) (*Preview, error) {
	result, existing, desired, err := s.plan(ctx, title, src)
	if err != nil {
		return nil, err
	}

	text, err := renderDiff(ctx, title, existing, desired)
	if err != nil {
		return nil, err
	}
	return &Preview{Result: *result, Diff: text}, nil
}

// plan runs parse, fetch, align, and plan for one page.
func (s *syncer) plan(ctx context.Context, title, src string) (*Result, *block.Block, *block.Block, error) {
	if title == "" {
		return nil, nil, nil, fmt.Errorf("page title must not be empty")
	}

	desired, err := markup.Parse(src)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse markup: %w", err)
	}
	desired.Text = title

	existing, err := s.fetchExisting(ctx, title)
	if err != nil {
		return nil, nil, nil, err
	}

	corr := diff.Align(existing, desired)
	actions, err := diff.Plan(corr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to plan sync for %q: %w", title, err)
	}

	result := &Result{Page: title, Actions: actions, PageCreated: existing.UID == ""}
	for _, a := range actions {
		switch a.Op {
		case diff.OpCreateBlock:
			result.Created++
		case diff.OpUpdateBlock:
			result.Updated++
		case diff.OpMoveBlock:
			result.Moved++
		case diff.OpDeleteBlock:
			result.Deleted++
		}
	}
	return result, existing, desired, nil
}

// fetchExisting pulls the page's current state. A page that does not
// exist yet becomes an empty unpersisted root, which the planner turns
// into a create-page.
func (s *syncer) fetchExisting(ctx context.Context, title string) (*block.Block, error) {
	_, err := s.transport.PageUID(ctx, title)
	if errors.Is(err, block.ErrNotFound) {
		return &block.Block{Text: title}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up page %q: %w", title, err)
	}

	existing, err := s.transport.FetchPage(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %q: %w", title, err)
	}
	return existing, nil
}

// renderDiff renders both trees without ref resolution and produces a
// unified diff.
func renderDiff(ctx context.Context, title string, existing, desired *block.Block) (string, error) {
	formatter := format.NewFormatter(nil, format.Options{})
	before := formatter.Format(ctx, existing)
	after := formatter.Format(ctx, desired)

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: title + " (remote)",
		ToFile:   title + " (local)",
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render diff: %w", err)
	}
	return text, nil
}

// TitleFromPath derives a page title from a markup file name:
// "daily-notes.md" becomes "daily-notes".
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
