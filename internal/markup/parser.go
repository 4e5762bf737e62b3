// Package markup parses locally-authored outline text into a desired
// block tree.
//
// The format is the lightweight outline dialect the original client
// round-trips: top-level paragraphs and headings, "- " bullets nested by
// two-space (or tab) indentation, {{[[TODO]]}}/{{[[DONE]]}} state
// markers, and fenced code blocks kept whole. Parsed trees carry no UIDs;
// the diff engine decides which blocks correspond to already-persisted
// ones.
//
// Malformed markup is rejected here, before it can reach the diff
// engine.
package markup

import (
	"fmt"
	"strings"

	"github.com/roamtools/roamsync/internal/block"
)

// parser tracks nesting while lines are consumed.
type parser struct {
	root *block.Block

	// bulletStack[n] is the parent for a bullet at indent level n. A
	// top-level paragraph becomes the base of the stack, so bullets
	// that follow it nest beneath it, matching how the formatter
	// renders a paragraph's children flush left.
	bulletStack []*block.Block
}

// Parse converts outline text into a block tree. The returned root has
// empty text; the caller assigns the page title. Children are the
// top-level blocks in document order.
func Parse(src string) (*block.Block, error) {
	root := &block.Block{}
	p := &parser{root: root, bulletStack: []*block.Block{root}}

	lines := strings.Split(src, "\n")
	for n := 0; n < len(lines); n++ {
		line := lines[n]
		if strings.TrimSpace(line) == "" {
			continue
		}

		level, content, err := splitIndent(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}

		bullet := strings.HasPrefix(content, "- ")
		if bullet {
			content = strings.TrimPrefix(content, "- ")
		}

		b := &block.Block{}
		if strings.HasPrefix(content, "```") {
			// A fence spans multiple lines and becomes one block. The
			// opening line's prefix, bullet marker widened to spaces, is
			// the base indent shared by the interior lines.
			base := strings.ReplaceAll(line[:len(line)-len(content)], "-", " ")
			body, end, err := collectFence(lines, n, content, base)
			if err != nil {
				return nil, err
			}
			b.Text = body
			n = end
		} else {
			b.Attrs.Heading, content = splitHeading(content)
			b.Attrs.Todo, content = block.SplitTodo(content)
			b.Text = content
		}

		if err := p.attach(bullet, level, b); err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
	}

	return root, nil
}

// attach places a parsed block into the tree.
func (p *parser) attach(bullet bool, level int, b *block.Block) error {
	if !bullet {
		if level > 0 {
			return fmt.Errorf("indented text must use a '- ' bullet")
		}
		// Paragraph: always a child of the root, and the new nesting
		// base for bullets that follow.
		p.root.Children = append(p.root.Children, b)
		p.bulletStack = []*block.Block{b}
		return nil
	}

	if level >= len(p.bulletStack) {
		return fmt.Errorf("indent jumps past level %d", len(p.bulletStack)-1)
	}

	parent := p.bulletStack[level]
	parent.Children = append(parent.Children, b)
	p.bulletStack = append(p.bulletStack[:level+1], b)
	return nil
}

// splitIndent measures leading indentation. A tab or two spaces count as
// one level; stray single spaces are rejected.
func splitIndent(line string) (level int, content string, err error) {
	i := 0
	for i < len(line) {
		switch {
		case line[i] == '\t':
			level++
			i++
		case strings.HasPrefix(line[i:], "  "):
			level++
			i += 2
		case line[i] == ' ':
			return 0, "", fmt.Errorf("indentation must be tabs or two-space units")
		default:
			return level, line[i:], nil
		}
	}
	return level, "", nil
}

// splitHeading extracts a leading #/##/### prefix as a heading level.
func splitHeading(content string) (int, string) {
	for h := 3; h >= 1; h-- {
		prefix := strings.Repeat("#", h) + " "
		if strings.HasPrefix(content, prefix) {
			return h, strings.TrimPrefix(content, prefix)
		}
	}
	return 0, content
}

// collectFence gathers a fenced code block starting at lines[start] into
// a single text, fences included. Interior lines lose only the fence's
// base indent; indentation belonging to the code itself survives.
// Returns the index of the closing fence line.
func collectFence(lines []string, start int, opening, base string) (string, int, error) {
	body := []string{opening}
	for n := start + 1; n < len(lines); n++ {
		if strings.HasPrefix(strings.TrimSpace(lines[n]), "```") {
			body = append(body, strings.TrimSpace(lines[n]))
			return strings.Join(body, "\n"), n, nil
		}
		body = append(body, trimFenceBase(lines[n], base))
	}
	return "", 0, fmt.Errorf("line %d: unterminated code fence", start+1)
}

// trimFenceBase strips the fence's base indent from an interior line.
// A line indented shallower than the fence keeps none of its indent.
func trimFenceBase(line, base string) string {
	if strings.HasPrefix(line, base) {
		return line[len(base):]
	}
	return strings.TrimLeft(line, " \t")
}
