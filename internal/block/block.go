// Package block defines the tree data model shared by the diff engine,
// the formatter, and the transport layer.
//
// A Block is one node of a hierarchical Roam document: a string of content
// plus an ordered list of children. Blocks that have been persisted to the
// remote graph carry a stable UID assigned by the store; blocks that exist
// only in a locally-authored tree have an empty UID until the first sync
// assigns one.
//
// Trees are value trees: each tree exclusively owns its nodes, no Block is
// shared between two trees, and nothing in this repository mutates a tree
// after construction. The diff engine produces a plan, it never edits the
// trees it compares.
package block

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by fetch capabilities when a block or page
// does not exist in the remote graph or the local cache.
//
// Check with errors.Is:
//
//	if errors.Is(err, block.ErrNotFound) {
//	    // render the reference marker verbatim
//	}
var ErrNotFound = errors.New("block not found")

// Todo states recognized in block text markers.
const (
	TodoOpen = "TODO"
	TodoDone = "DONE"
)

// Attrs holds block-level metadata that participates in similarity scoring
// but not in UID assignment.
type Attrs struct {
	// Heading is the heading level: 0 for plain blocks, 1-3 for h1-h3.
	Heading int

	// Todo is the checkbox state: "", TodoOpen, or TodoDone.
	Todo string
}

// Block is a node in a hierarchical document. Children order is document
// order and is significant.
type Block struct {
	// UID is the stable identifier assigned by the remote store.
	// Empty for blocks that have never been persisted.
	UID string

	// Text is the raw block content. It may contain embedded reference
	// markers such as ((uid)) or [[Page Title]].
	Text string

	// Attrs is block-level metadata (heading level, TODO state).
	Attrs Attrs

	// Children are the block's ordered child blocks.
	Children []*Block
}

// New returns a block with the given text and children.
func New(text string, children ...*Block) *Block {
	return &Block{Text: text, Children: children}
}

// Clone returns a deep copy of the block tree rooted at b.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	c := &Block{
		UID:   b.UID,
		Text:  b.Text,
		Attrs: b.Attrs,
	}
	if len(b.Children) > 0 {
		c.Children = make([]*Block, len(b.Children))
		for i, child := range b.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Walk visits b and every descendant in pre-order (document order).
// Returning false from fn stops the walk.
func (b *Block) Walk(fn func(*Block) bool) bool {
	if b == nil {
		return true
	}
	if !fn(b) {
		return false
	}
	for _, child := range b.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// Count returns the number of blocks in the tree rooted at b.
func (b *Block) Count() int {
	n := 0
	b.Walk(func(*Block) bool {
		n++
		return true
	})
	return n
}

// Index returns a map from UID to block for every block in the tree that
// carries a UID. The map is a lookup aid only; it does not own the blocks.
func (b *Block) Index() map[string]*Block {
	idx := make(map[string]*Block)
	b.Walk(func(n *Block) bool {
		if n.UID != "" {
			idx[n.UID] = n
		}
		return true
	})
	return idx
}

// SplitTodo extracts a leading {{[[TODO]]}} or {{[[DONE]]}} marker from
// block text. It returns the todo state ("" if no marker) and the text
// with the marker removed. Both the markup parser and the transport layer
// use this so local and remote trees agree on where todo state lives.
func SplitTodo(text string) (todo, rest string) {
	for _, state := range []string{TodoOpen, TodoDone} {
		marker := "{{[[" + state + "]]}}"
		if strings.HasPrefix(text, marker) {
			return state, strings.TrimLeft(strings.TrimPrefix(text, marker), " ")
		}
	}
	return "", text
}

// TodoMarker renders a todo state back into its text marker, or "" for
// the empty state.
func TodoMarker(todo string) string {
	if todo == "" {
		return ""
	}
	return "{{[[" + todo + "]]}}"
}
