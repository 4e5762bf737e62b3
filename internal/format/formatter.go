package format

import (
	"context"
	"strings"

	"github.com/roamtools/roamsync/internal/block"
)

// tableMarker is the block text that turns a subtree into a table: rows
// are the block's children, and cells within a row are nested
// horizontally (each cell is the first child of the previous one).
const tableMarker = "{{[[table]]}}"

// Mode selects the output shape.
type Mode int

const (
	// Hierarchical indents each block proportionally to its depth.
	Hierarchical Mode = iota

	// Flat emits all blocks as a single pre-order bullet list, for
	// backward-compatible output.
	Flat
)

// Options configures a Formatter.
type Options struct {
	// Level is the reference resolution depth budget: 0 leaves all
	// markers verbatim, 1 resolves locally-loaded targets only, higher
	// values also fetch external targets.
	Level int

	// Mode selects hierarchical or flat output.
	Mode Mode

	// TopLevelAsParagraphs renders depth-0 blocks without bullets in
	// hierarchical mode.
	TopLevelAsParagraphs bool
}

// Formatter renders a block tree to text.
type Formatter struct {
	resolver *Resolver
	opts     Options
}

// NewFormatter builds a Formatter over a Resolver. The resolver may be
// nil when opts.Level is 0.
func NewFormatter(resolver *Resolver, opts Options) *Formatter {
	return &Formatter{resolver: resolver, opts: opts}
}

// Format renders the page rooted at root. The root's own text is the
// page title and is not emitted; its children are the top-level blocks.
// The input tree is never mutated.
func (f *Formatter) Format(ctx context.Context, root *block.Block) string {
	var lines []string
	if f.opts.Mode == Flat {
		for _, child := range root.Children {
			f.formatFlat(ctx, child, &lines)
		}
	} else {
		for _, child := range root.Children {
			f.formatTop(ctx, child, &lines)
		}
	}

	out := strings.Join(lines, "\n")
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

// formatTop renders a top-level block in hierarchical mode.
func (f *Formatter) formatTop(ctx context.Context, b *block.Block, lines *[]string) {
	if b.Text == tableMarker {
		*lines = append(*lines, f.formatTable(ctx, b, 0)...)
		*lines = append(*lines, "")
		return
	}
	if isCodeBlock(b.Text) {
		f.formatFence(b.Text, 0, lines)
		for _, child := range b.Children {
			f.formatNested(ctx, child, boolDepth(f.opts.TopLevelAsParagraphs), lines)
		}
		return
	}

	if text := f.renderText(ctx, b); text != "" {
		if f.opts.TopLevelAsParagraphs {
			*lines = append(*lines, text, "")
		} else {
			*lines = append(*lines, "- "+text)
		}
	}

	for _, child := range b.Children {
		f.formatNested(ctx, child, boolDepth(f.opts.TopLevelAsParagraphs), lines)
	}
	if f.opts.TopLevelAsParagraphs && len(b.Children) > 0 {
		*lines = append(*lines, "")
	}
}

// boolDepth maps paragraph mode to the starting indent for children:
// under a paragraph, children start flush left; under a bullet, one
// level in.
func boolDepth(paragraphs bool) int {
	if paragraphs {
		return 0
	}
	return 1
}

// formatNested renders a block and its subtree as indented bullets.
// Blocks with empty text are skipped but their children still render at
// the same depth.
func (f *Formatter) formatNested(ctx context.Context, b *block.Block, depth int, lines *[]string) {
	if b.Text == tableMarker {
		*lines = append(*lines, f.formatTable(ctx, b, depth)...)
		*lines = append(*lines, "")
		return
	}
	if isCodeBlock(b.Text) {
		f.formatFence(b.Text, depth, lines)
		for _, child := range b.Children {
			f.formatNested(ctx, child, depth+1, lines)
		}
		return
	}

	text := f.renderText(ctx, b)
	childDepth := depth
	if text != "" {
		*lines = append(*lines, strings.Repeat("  ", depth)+"- "+text)
		childDepth = depth + 1
	}

	for _, child := range b.Children {
		f.formatNested(ctx, child, childDepth, lines)
	}
}

// formatFlat renders a block and its subtree as a pre-order list with no
// indentation.
func (f *Formatter) formatFlat(ctx context.Context, b *block.Block, lines *[]string) {
	if isCodeBlock(b.Text) {
		f.formatFence(b.Text, 0, lines)
	} else if text := f.renderText(ctx, b); text != "" {
		*lines = append(*lines, "- "+text)
	}
	for _, child := range b.Children {
		f.formatFlat(ctx, child, lines)
	}
}

// isCodeBlock reports whether a block's text is a fenced code block.
func isCodeBlock(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "```")
}

// formatFence emits a fenced code block verbatim: no bullet, no
// reference resolution, indented as a unit. A blank line after keeps the
// fence separated from list items around it.
func (f *Formatter) formatFence(text string, depth int, lines *[]string) {
	indent := strings.Repeat("  ", depth)
	for _, l := range strings.Split(text, "\n") {
		if l == "" {
			*lines = append(*lines, "")
			continue
		}
		*lines = append(*lines, indent+l)
	}
	*lines = append(*lines, "")
}

// renderText resolves references in a block's text and applies heading
// and todo decoration.
func (f *Formatter) renderText(ctx context.Context, b *block.Block) string {
	text := b.Text
	if f.opts.Level > 0 && f.resolver != nil {
		text = f.resolver.ResolveText(ctx, text, f.opts.Level)
	}
	if b.Attrs.Todo != "" {
		if text == "" {
			text = block.TodoMarker(b.Attrs.Todo)
		} else {
			text = block.TodoMarker(b.Attrs.Todo) + " " + text
		}
	}
	if b.Attrs.Heading > 0 {
		text = strings.Repeat("#", b.Attrs.Heading) + " " + text
	}
	return text
}

// formatTable renders a table subtree as a GFM table. Cells in a row are
// collected by following first children.
func (f *Formatter) formatTable(ctx context.Context, table *block.Block, depth int) []string {
	if len(table.Children) == 0 {
		return nil
	}

	var rows [][]string
	maxCols := 0
	for _, row := range table.Children {
		cells := f.collectRowCells(ctx, row)
		if len(cells) > maxCols {
			maxCols = len(cells)
		}
		rows = append(rows, cells)
	}

	for i := range rows {
		for len(rows[i]) < maxCols {
			rows[i] = append(rows[i], "")
		}
	}

	indent := strings.Repeat("  ", depth)
	lines := []string{
		indent + "| " + strings.Join(rows[0], " | ") + " |",
		indent + "| " + strings.Join(repeat("---", maxCols), " | ") + " |",
	}
	for _, row := range rows[1:] {
		lines = append(lines, indent+"| "+strings.Join(row, " | ")+" |")
	}
	return lines
}

// collectRowCells walks the horizontal nesting of a table row: the row
// block is the first cell, its first child the second, and so on.
func (f *Formatter) collectRowCells(ctx context.Context, row *block.Block) []string {
	var cells []string
	for current := row; current != nil; {
		text := current.Text
		if f.opts.Level > 0 && f.resolver != nil {
			text = f.resolver.ResolveText(ctx, text, f.opts.Level)
		}
		cells = append(cells, text)
		if len(current.Children) == 0 {
			break
		}
		current = current.Children[0]
	}
	return cells
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
