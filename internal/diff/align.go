package diff

import (
	"sort"

	"github.com/roamtools/roamsync/internal/block"
)

// DefaultMinConfidence is the minimum similarity score for two blocks to
// be considered the same logical note. Pairs scoring below it become a
// delete plus a create instead of a match.
const DefaultMinConfidence = 0.5

// Kind classifies a correspondence entry.
type Kind int

const (
	// MatchedUnchanged: the desired node matches an existing node and
	// neither its content nor anything in its subtree changed.
	MatchedUnchanged Kind = iota

	// MatchedChanged: the desired node matches an existing node but its
	// text or attributes differ byte-wise.
	MatchedChanged

	// Created: the desired node has no counterpart in the existing tree.
	Created

	// Deleted: the existing node has no counterpart in the desired tree.
	Deleted
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case MatchedUnchanged:
		return "unchanged"
	case MatchedChanged:
		return "changed"
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Entry is one node's classification within a Correspondence.
//
// Moved is orthogonal to the Kind: a matched node can be both changed and
// moved. It is set for exactly the minimal set of matched siblings whose
// relocation produces the desired order, so a single dragged block yields
// a single move.
type Entry struct {
	Existing *block.Block // nil when Kind == Created
	Desired  *block.Block // nil when Kind == Deleted
	Kind     Kind
	Moved    bool

	// OldIndex is the sibling index in the existing tree, -1 for created
	// nodes. NewIndex is the sibling index in the desired tree, -1 for
	// deleted nodes.
	OldIndex int
	NewIndex int

	// SubtreeChanged reports whether this node or any descendant was
	// changed, moved, created, or deleted.
	SubtreeChanged bool
}

// Correspondence is the output of Align: a partial bijection between
// existing-tree nodes and desired-tree nodes, plus a classification for
// every node on both sides.
type Correspondence struct {
	Existing *block.Block
	Desired  *block.Block

	entries    []*Entry
	byExisting map[*block.Block]*Entry
	byDesired  map[*block.Block]*Entry
}

// Entries returns every entry in a deterministic order: per sibling
// level, matched pairs in desired order, then deletions, then creations.
func (c *Correspondence) Entries() []*Entry {
	return c.entries
}

// ByDesired returns the entry covering a desired-tree node, or nil.
func (c *Correspondence) ByDesired(d *block.Block) *Entry {
	return c.byDesired[d]
}

// ByExisting returns the entry covering an existing-tree node, or nil.
func (c *Correspondence) ByExisting(e *block.Block) *Entry {
	return c.byExisting[e]
}

// Clean reports whether nothing at all changed between the two trees.
func (c *Correspondence) Clean() bool {
	root := c.byDesired[c.Desired]
	return root != nil && !root.SubtreeChanged
}

// Candidate is a scored (existing, desired) sibling pair considered by
// the matcher. Exposed so tie-break policies can be swapped.
type Candidate struct {
	Score         float64
	ExistingIndex int
	DesiredIndex  int
}

// Options tunes the aligner.
type Options struct {
	// MinConfidence is the minimum similarity score for a match.
	// Zero means DefaultMinConfidence.
	MinConfidence float64

	// Less orders candidates with equal scores. Nil means the default
	// policy: position-preserving pairs first, then earliest in desired
	// order, then earliest in existing order. The tie-break is a
	// heuristic; swapping it changes which of several equally-plausible
	// matches wins, never whether the result is deterministic.
	Less func(a, b Candidate) bool
}

func defaultLess(a, b Candidate) bool {
	aSame := a.ExistingIndex == a.DesiredIndex
	bSame := b.ExistingIndex == b.DesiredIndex
	if aSame != bSame {
		return aSame
	}
	if a.DesiredIndex != b.DesiredIndex {
		return a.DesiredIndex < b.DesiredIndex
	}
	return a.ExistingIndex < b.ExistingIndex
}

// Align produces the Correspondence between an existing tree and a
// desired tree using default options. Both inputs are assumed well-formed;
// neither is mutated. Align never fails: absence of a confident match is
// classification output, not an error.
func Align(existing, desired *block.Block) *Correspondence {
	return AlignWith(existing, desired, Options{})
}

// AlignWith is Align with explicit options.
func AlignWith(existing, desired *block.Block, opts Options) *Correspondence {
	if opts.MinConfidence == 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	if opts.Less == nil {
		opts.Less = defaultLess
	}

	c := &Correspondence{
		Existing:   existing,
		Desired:    desired,
		byExisting: make(map[*block.Block]*Entry),
		byDesired:  make(map[*block.Block]*Entry),
	}
	a := &aligner{corr: c, opts: opts}

	// Roots correspond by contract: the caller hands the aligner the
	// root of the document on both sides, possibly a single empty root
	// for a page that does not exist yet.
	root := &Entry{
		Existing: existing,
		Desired:  desired,
		OldIndex: 0,
		NewIndex: 0,
		Kind:     MatchedUnchanged,
	}
	if existing.Text != desired.Text || existing.Attrs != desired.Attrs {
		root.Kind = MatchedChanged
	}
	a.add(root)

	dirty := a.alignLevel(existing.Children, desired.Children)
	root.SubtreeChanged = dirty || root.Kind == MatchedChanged
	return c
}

type aligner struct {
	corr *Correspondence
	opts Options
}

func (a *aligner) add(e *Entry) {
	a.corr.entries = append(a.corr.entries, e)
	if e.Existing != nil {
		a.corr.byExisting[e.Existing] = e
	}
	if e.Desired != nil {
		a.corr.byDesired[e.Desired] = e
	}
}

// alignLevel matches the children of one corresponding pair. Same-parent
// subtrees are matched independently: a match is never proposed across
// unrelated parents. Returns whether anything at this level or below
// changed.
func (a *aligner) alignLevel(ec, dc []*block.Block) bool {
	// Score every pair at this level, keeping only confident candidates.
	var cands []Candidate
	for i, e := range ec {
		for j, d := range dc {
			score := Similarity(e, d)
			if score >= a.opts.MinConfidence {
				cands = append(cands, Candidate{Score: score, ExistingIndex: i, DesiredIndex: j})
			}
		}
	}

	// Greedy selection in descending score order; the tie-break keeps
	// the result stable under re-runs on unchanged input.
	sort.SliceStable(cands, func(x, y int) bool {
		if cands[x].Score != cands[y].Score {
			return cands[x].Score > cands[y].Score
		}
		return a.opts.Less(cands[x], cands[y])
	})

	usedE := make([]bool, len(ec))
	usedD := make([]bool, len(dc))
	type match struct{ i, j int }
	var matches []match
	for _, cand := range cands {
		if usedE[cand.ExistingIndex] || usedD[cand.DesiredIndex] {
			continue
		}
		usedE[cand.ExistingIndex] = true
		usedD[cand.DesiredIndex] = true
		matches = append(matches, match{cand.ExistingIndex, cand.DesiredIndex})
	}
	sort.Slice(matches, func(x, y int) bool { return matches[x].j < matches[y].j })

	// Nodes off the longest increasing subsequence of existing indices
	// (taken in desired order) are the ones that must relocate; keeping
	// the LIS fixed yields the minimal move set.
	existingOrder := make([]int, len(matches))
	for k, m := range matches {
		existingOrder[k] = m.i
	}
	stable := longestIncreasing(existingOrder)

	dirty := false
	for k, m := range matches {
		e, d := ec[m.i], dc[m.j]
		entry := &Entry{
			Existing: e,
			Desired:  d,
			OldIndex: m.i,
			NewIndex: m.j,
			Moved:    !stable[k],
		}
		childDirty := a.alignLevel(e.Children, d.Children)

		if e.Text != d.Text || e.Attrs != d.Attrs {
			entry.Kind = MatchedChanged
		} else {
			entry.Kind = MatchedUnchanged
		}
		entry.SubtreeChanged = entry.Kind == MatchedChanged || entry.Moved || childDirty
		if entry.SubtreeChanged {
			dirty = true
		}
		a.add(entry)
	}

	// Deletion cascades: a deleted node's descendants are not matched
	// against anything, they go down with their root.
	for i, e := range ec {
		if usedE[i] {
			continue
		}
		dirty = true
		a.addDeleted(e, i)
	}

	// Creation cascades symmetrically.
	for j, d := range dc {
		if usedD[j] {
			continue
		}
		dirty = true
		a.addCreated(d, j)
	}

	return dirty
}

func (a *aligner) addDeleted(e *block.Block, index int) {
	a.add(&Entry{
		Existing:       e,
		Kind:           Deleted,
		OldIndex:       index,
		NewIndex:       -1,
		SubtreeChanged: true,
	})
	for i, child := range e.Children {
		a.addDeleted(child, i)
	}
}

func (a *aligner) addCreated(d *block.Block, index int) {
	a.add(&Entry{
		Desired:        d,
		Kind:           Created,
		OldIndex:       -1,
		NewIndex:       index,
		SubtreeChanged: true,
	})
	for j, child := range d.Children {
		a.addCreated(child, j)
	}
}

// longestIncreasing marks the positions of one longest strictly
// increasing subsequence of seq. Among equally long subsequences it picks
// the one found by standard patience sorting, which is deterministic.
func longestIncreasing(seq []int) []bool {
	n := len(seq)
	marked := make([]bool, n)
	if n == 0 {
		return marked
	}

	length := make([]int, n) // length of the best subsequence ending at k
	prev := make([]int, n)
	best := 0
	for k := 0; k < n; k++ {
		length[k] = 1
		prev[k] = -1
		for m := 0; m < k; m++ {
			if seq[m] < seq[k] && length[m]+1 > length[k] {
				length[k] = length[m] + 1
				prev[k] = m
			}
		}
		if length[k] > length[best] {
			best = k
		}
	}

	for k := best; k >= 0; k = prev[k] {
		marked[k] = true
	}
	return marked
}
