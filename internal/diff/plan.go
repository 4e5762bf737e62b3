package diff

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roamtools/roamsync/internal/block"
)

// ErrBadCorrespondence indicates the Correspondence handed to Plan
// violates a diff invariant (non-injective match, a created node carrying
// a pre-existing UID, a matched existing node without a UID). This is a
// defect signal, not bad input: a Correspondence produced by Align can
// never trip it.
var ErrBadCorrespondence = errors.New("correspondence violates diff invariants")

// Op is the kind of an atomic mutation operation.
type Op string

const (
	OpCreatePage  Op = "create-page"
	OpCreateBlock Op = "create-block"
	OpUpdateBlock Op = "update-block"
	OpMoveBlock   Op = "move-block"
	OpDeleteBlock Op = "delete-block"
)

// TempUIDPrefix marks planner-local temporary references. A created block
// receives one so that its children's create operations can name their
// parent before the store has assigned real identifiers; the transport
// layer substitutes real UIDs at execution time.
const TempUIDPrefix = "tmp-"

// IsTempUID reports whether uid is a planner-local temporary reference.
func IsTempUID(uid string) bool {
	return strings.HasPrefix(uid, TempUIDPrefix)
}

// Action is one atomic mutation operation against the remote store.
type Action struct {
	Op        Op          `json:"op"`
	UID       string      `json:"uid,omitempty"`
	ParentUID string      `json:"parent_uid,omitempty"`
	Order     int         `json:"order"`
	Text      string      `json:"text,omitempty"`
	Attrs     block.Attrs `json:"attrs,omitzero"`
	Title     string      `json:"title,omitempty"`
}

// String renders the action for logs and dry-run output.
func (a Action) String() string {
	switch a.Op {
	case OpCreatePage:
		return fmt.Sprintf("create-page %q as %s", a.Title, a.UID)
	case OpCreateBlock:
		return fmt.Sprintf("create-block %s under %s at %d: %q", a.UID, a.ParentUID, a.Order, a.Text)
	case OpUpdateBlock:
		return fmt.Sprintf("update-block %s: %q", a.UID, a.Text)
	case OpMoveBlock:
		return fmt.Sprintf("move-block %s under %s at %d", a.UID, a.ParentUID, a.Order)
	case OpDeleteBlock:
		return fmt.Sprintf("delete-block %s", a.UID)
	}
	return string(a.Op)
}

// Plan converts a Correspondence into the ordered action list that
// transforms the existing tree into the desired tree.
//
// Ordering guarantees, required by a store that enforces parent-before-
// child references:
//   - a parent's create precedes every create/move of its children
//   - an update precedes a move of the same block
//   - deletes come last and name only subtree roots (store deletion is
//     recursive)
//
// Plan performs no I/O; it either returns a complete plan or fails with
// ErrBadCorrespondence. Running it twice over the same Correspondence
// yields byte-identical plans.
func Plan(corr *Correspondence) ([]Action, error) {
	if err := validate(corr); err != nil {
		return nil, err
	}

	p := &planner{corr: corr}

	rootUID := corr.Existing.UID
	if rootUID == "" {
		// The page does not exist yet; everything below hangs off the
		// freshly created page node.
		rootUID = p.newTempUID()
		p.emit(Action{Op: OpCreatePage, UID: rootUID, Title: corr.Desired.Text})
	} else if root := corr.ByDesired(corr.Desired); root != nil && root.Kind == MatchedChanged {
		p.emit(Action{
			Op:    OpUpdateBlock,
			UID:   rootUID,
			Text:  corr.Desired.Text,
			Attrs: corr.Desired.Attrs,
		})
	}

	if err := p.planLevel(corr.Existing, corr.Desired, rootUID); err != nil {
		return nil, err
	}

	return append(p.actions, p.deletes...), nil
}

type planner struct {
	corr    *Correspondence
	actions []Action
	deletes []Action
	tempSeq int
}

func (p *planner) emit(a Action) {
	p.actions = append(p.actions, a)
}

func (p *planner) newTempUID() string {
	p.tempSeq++
	return fmt.Sprintf("%s%d", TempUIDPrefix, p.tempSeq)
}

// planLevel emits operations for one corresponding sibling level.
// Desired children drive the walk; existing children only contribute
// deletions.
func (p *planner) planLevel(e, d *block.Block, parentRef string) error {
	for j, dc := range d.Children {
		entry := p.corr.ByDesired(dc)
		if entry == nil {
			return fmt.Errorf("%w: desired node %q has no entry", ErrBadCorrespondence, dc.Text)
		}

		switch entry.Kind {
		case Created:
			uid := p.newTempUID()
			p.emit(Action{
				Op:        OpCreateBlock,
				UID:       uid,
				ParentUID: parentRef,
				Order:     j,
				Text:      dc.Text,
				Attrs:     dc.Attrs,
			})
			p.planCreatedSubtree(dc, uid)

		case MatchedUnchanged, MatchedChanged:
			uid := entry.Existing.UID
			if entry.Kind == MatchedChanged {
				p.emit(Action{Op: OpUpdateBlock, UID: uid, Text: dc.Text, Attrs: dc.Attrs})
			}
			if entry.Moved {
				p.emit(Action{Op: OpMoveBlock, UID: uid, ParentUID: parentRef, Order: j})
			}
			if err := p.planLevel(entry.Existing, dc, uid); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%w: desired node %q classified %s", ErrBadCorrespondence, dc.Text, entry.Kind)
		}
	}

	for _, ec := range e.Children {
		entry := p.corr.ByExisting(ec)
		if entry == nil {
			return fmt.Errorf("%w: existing node %q has no entry", ErrBadCorrespondence, ec.Text)
		}
		if entry.Kind == Deleted {
			// One delete per subtree root; the store cascades.
			p.deletes = append(p.deletes, Action{Op: OpDeleteBlock, UID: ec.UID})
		}
	}

	return nil
}

// planCreatedSubtree emits creates for an entire new subtree, parents
// before children.
func (p *planner) planCreatedSubtree(d *block.Block, parentRef string) {
	for j, dc := range d.Children {
		uid := p.newTempUID()
		p.emit(Action{
			Op:        OpCreateBlock,
			UID:       uid,
			ParentUID: parentRef,
			Order:     j,
			Text:      dc.Text,
			Attrs:     dc.Attrs,
		})
		p.planCreatedSubtree(dc, uid)
	}
}

// validate checks the Correspondence invariants Plan depends on.
func validate(corr *Correspondence) error {
	if corr == nil || corr.Existing == nil || corr.Desired == nil {
		return fmt.Errorf("%w: missing roots", ErrBadCorrespondence)
	}

	seenExisting := make(map[*block.Block]bool)
	seenDesired := make(map[*block.Block]bool)
	for _, entry := range corr.Entries() {
		if entry.Existing != nil {
			if seenExisting[entry.Existing] {
				return fmt.Errorf("%w: existing node %q matched twice", ErrBadCorrespondence, entry.Existing.Text)
			}
			seenExisting[entry.Existing] = true
		}
		if entry.Desired != nil {
			if seenDesired[entry.Desired] {
				return fmt.Errorf("%w: desired node %q matched twice", ErrBadCorrespondence, entry.Desired.Text)
			}
			seenDesired[entry.Desired] = true
		}

		switch entry.Kind {
		case Created:
			if entry.Desired != nil && entry.Desired.UID != "" {
				return fmt.Errorf("%w: created node carries UID %s", ErrBadCorrespondence, entry.Desired.UID)
			}
		case Deleted:
			if entry.Existing != nil && entry.Existing.UID == "" {
				return fmt.Errorf("%w: deleted node %q has no UID", ErrBadCorrespondence, entry.Existing.Text)
			}
		case MatchedUnchanged, MatchedChanged:
			if entry.Existing != nil && entry.Existing.UID == "" && entry.Existing != corr.Existing {
				return fmt.Errorf("%w: matched node %q has no UID", ErrBadCorrespondence, entry.Existing.Text)
			}
		}
	}

	return nil
}
