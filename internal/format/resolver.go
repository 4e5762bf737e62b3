// Package format renders fetched block trees back into hierarchical text,
// expanding embedded references up to a bounded depth.
//
// The Resolver expands ((uid)) and [[Page]] markers inside block text,
// decrementing a depth budget per hop and guarding against reference
// cycles. The Formatter walks a tree and the Resolver together to produce
// indented output (or a flat pre-order listing in legacy mode). Neither
// ever mutates the tree it renders.
package format

import (
	"context"
	"strings"

	"github.com/roamtools/roamsync/internal/block"
)

// Fetcher supplies subtrees that are not already loaded locally. The
// Resolver calls it only when the remaining depth budget is above one;
// at budget one, only locally-present targets resolve.
//
// Implementations report a missing target with block.ErrNotFound.
type Fetcher interface {
	FetchBlock(ctx context.Context, uid string) (*block.Block, error)
	FetchPage(ctx context.Context, title string) (*block.Block, error)
}

// Resolver expands embedded references inside rendered text up to a
// bounded depth. A Resolver is cheap to build per render operation and is
// not safe for concurrent use.
type Resolver struct {
	blocks  map[string]*block.Block
	pages   map[string]*block.Block
	fetcher Fetcher
}

// NewResolver returns a Resolver over the given locally-loaded trees.
// fetcher may be nil, in which case targets outside the loaded trees
// never resolve and their markers render verbatim.
func NewResolver(fetcher Fetcher, roots ...*block.Block) *Resolver {
	r := &Resolver{
		blocks:  make(map[string]*block.Block),
		pages:   make(map[string]*block.Block),
		fetcher: fetcher,
	}
	for _, root := range roots {
		r.AddTree(root)
	}
	return r
}

// AddTree indexes every UID-carrying block of a tree for local lookup.
func (r *Resolver) AddTree(root *block.Block) {
	root.Walk(func(b *block.Block) bool {
		if b.UID != "" {
			r.blocks[b.UID] = b
		}
		return true
	})
}

// AddPage indexes a page root under its title, plus its blocks by UID.
func (r *Resolver) AddPage(title string, root *block.Block) {
	r.pages[title] = root
	r.AddTree(root)
}

// ResolveText returns text with every reference marker replaced by its
// resolved content, up to level hops deep. Level 0 returns the text
// unchanged. A target that cannot be found, or that is already being
// resolved higher up the current chain, keeps its literal marker. Alias
// markers render as their display text.
func (r *Resolver) ResolveText(ctx context.Context, text string, level int) string {
	return r.resolve(ctx, text, level, make(map[string]bool))
}

func (r *Resolver) resolve(ctx context.Context, text string, level int, visited map[string]bool) string {
	if level <= 0 {
		return text
	}
	refs := block.ExtractRefs(text)
	if len(refs) == 0 {
		return text
	}

	var out strings.Builder
	last := 0
	for _, ref := range refs {
		out.WriteString(text[last:ref.Start])
		out.WriteString(r.resolveRef(ctx, ref, ref.Marker(text), level, visited))
		last = ref.End
	}
	out.WriteString(text[last:])
	return out.String()
}

// resolveRef resolves a single reference occurrence, spending one hop of
// the budget. The visited set covers the current resolution chain only:
// a diamond (two siblings referencing the same target) resolves twice,
// a cycle stops at the repeated target.
func (r *Resolver) resolveRef(ctx context.Context, ref block.Ref, marker string, level int, visited map[string]bool) string {
	if ref.Kind == block.AliasRef {
		// Aliases render their display text; the target is a link
		// destination, never spliced in.
		if alias := block.AliasText(marker); alias != "" {
			return alias
		}
		return marker
	}

	key := "block:" + ref.Target
	if ref.Kind.IsPage() {
		key = "page:" + ref.Target
	}
	if visited[key] {
		return marker
	}

	target := r.lookup(ctx, ref, level)
	if target == nil {
		return marker
	}

	visited[key] = true
	resolved := r.resolve(ctx, target.Text, level-1, visited)
	delete(visited, key)
	return resolved
}

// lookup finds the reference target locally, falling back to an external
// fetch only when more than one hop of budget remains.
func (r *Resolver) lookup(ctx context.Context, ref block.Ref, level int) *block.Block {
	if ref.Kind.IsPage() {
		if page, ok := r.pages[ref.Target]; ok {
			return page
		}
		if level > 1 && r.fetcher != nil {
			if page, err := r.fetcher.FetchPage(ctx, ref.Target); err == nil {
				r.AddPage(ref.Target, page)
				return page
			}
		}
		return nil
	}

	if b, ok := r.blocks[ref.Target]; ok {
		return b
	}
	if level > 1 && r.fetcher != nil {
		if b, err := r.fetcher.FetchBlock(ctx, ref.Target); err == nil {
			r.AddTree(b)
			return b
		}
	}
	return nil
}
