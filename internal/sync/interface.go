// Package sync pushes locally-authored pages to the Roam backend.
//
// The syncer runs the full pipeline for one page: parse the local
// markup into a desired tree, fetch the page's current state, align
// the two trees, plan the minimal action sequence, and apply it as one
// batch write. Preview runs the same pipeline but stops before apply,
// returning the plan and a unified diff of the rendered page.
package sync

import (
	"context"

	"github.com/roamtools/roamsync/internal/block"
	"github.com/roamtools/roamsync/internal/diff"
)

// Transport is the backend surface the syncer needs. *roam.Client
// satisfies it.
type Transport interface {
	// PageUID resolves a page title to its root block UID, or
	// block.ErrNotFound when the page does not exist.
	PageUID(ctx context.Context, title string) (string, error)

	// FetchPage pulls the full page subtree by title.
	FetchPage(ctx context.Context, title string) (*block.Block, error)

	// Apply executes a plan as one all-or-nothing batch write.
	Apply(ctx context.Context, actions []diff.Action) error
}

// Result summarizes one applied (or previewed) sync.
type Result struct {
	Page        string
	PageCreated bool
	Created     int
	Updated     int
	Moved       int
	Deleted     int

	// Actions is the plan that was (or would be) applied.
	Actions []diff.Action
}

// Changed reports whether the plan contained any work.
func (r *Result) Changed() bool {
	return len(r.Actions) > 0
}

// Preview is a dry-run result: the plan plus a unified diff of the
// page's rendered text before and after.
type Preview struct {
	Result
	Diff string
}

// Syncer pushes local page files to the backend.
type Syncer interface {
	// SyncFile parses a markup file and syncs it to the page named by
	// title. An empty title derives the page title from the file name.
	SyncFile(ctx context.Context, path, title string) (*Result, error)

	// SyncPage parses markup source and syncs it to the named page.
	SyncPage(ctx context.Context, title, src string) (*Result, error)

	// Preview runs the pipeline without applying and renders the
	// would-be change as a unified diff.
	Preview(ctx context.Context, title, src string) (*Preview, error)
}
