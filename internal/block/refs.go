package block

import (
	"regexp"
	"sort"
	"strings"
)

// RefKind classifies an embedded reference occurrence.
type RefKind int

const (
	// BlockRef is a ((uid)) reference to another block.
	BlockRef RefKind = iota

	// BlockEmbed is a {{[[embed]]: ((uid))}} inline embed of another block.
	BlockEmbed

	// PageRef is a [[Page Title]] reference to a page.
	PageRef

	// PageEmbed is a {{[[embed]]: [[Page Title]]}} inline embed of a page.
	PageEmbed

	// AliasRef is an [alias text](((uid))) reference with display text.
	AliasRef
)

// String returns the kind name for logging.
func (k RefKind) String() string {
	switch k {
	case BlockRef:
		return "block-ref"
	case BlockEmbed:
		return "block-embed"
	case PageRef:
		return "page-ref"
	case PageEmbed:
		return "page-embed"
	case AliasRef:
		return "alias"
	}
	return "unknown"
}

// IsPage reports whether the reference targets a page title rather than
// a block UID.
func (k RefKind) IsPage() bool {
	return k == PageRef || k == PageEmbed
}

// Ref is an embedded reference occurrence found inside a block's text.
// Start and End are byte offsets of the whole marker within the owning
// text, used to splice resolved content back in at render time.
type Ref struct {
	Kind   RefKind
	Target string
	Start  int
	End    int
}

// Marker returns the literal marker text for the reference as it appears
// in the owning block's text.
func (r Ref) Marker(text string) string {
	return text[r.Start:r.End]
}

// AliasText extracts the display text from an [alias](((uid))) marker.
// Returns "" when the marker is not an alias or the alias is empty.
func AliasText(marker string) string {
	if !strings.HasPrefix(marker, "[") {
		return ""
	}
	end := strings.Index(marker, "](((")
	if end < 1 {
		return ""
	}
	return marker[1:end]
}

// Reference marker patterns. Embeds are matched before plain refs so an
// embed marker is never reported twice as both an embed and an inner ref.
var (
	blockEmbedPattern = regexp.MustCompile(`\{\{\[\[embed\]\]: *\(\(([a-zA-Z0-9_-]+)\)\)\}\}`)
	pageEmbedPattern  = regexp.MustCompile(`\{\{\[\[embed\]\]: *\[\[([^\[\]]+)\]\]\}\}`)
	aliasPattern      = regexp.MustCompile(`\[[^\[\]]*\]\(\(\(([a-zA-Z0-9_-]+)\)\)\)`)
	blockRefPattern   = regexp.MustCompile(`\(\(([a-zA-Z0-9_-]+)\)\)`)
	pageRefPattern    = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)
)

// ExtractRefs finds every reference occurrence in text, ordered by
// position. Overlapping matches are resolved in favor of the more
// specific marker: embeds win over the refs they contain, aliases win
// over their inner block ref.
func ExtractRefs(text string) []Ref {
	var refs []Ref
	taken := make([]bool, len(text))

	add := func(kind RefKind, matches [][]int) {
		for _, m := range matches {
			start, end := m[0], m[1]
			if overlaps(taken, start, end) {
				continue
			}
			for i := start; i < end; i++ {
				taken[i] = true
			}
			refs = append(refs, Ref{
				Kind:   kind,
				Target: text[m[2]:m[3]],
				Start:  start,
				End:    end,
			})
		}
	}

	add(BlockEmbed, blockEmbedPattern.FindAllStringSubmatchIndex(text, -1))
	add(PageEmbed, pageEmbedPattern.FindAllStringSubmatchIndex(text, -1))
	add(AliasRef, aliasPattern.FindAllStringSubmatchIndex(text, -1))
	add(BlockRef, blockRefPattern.FindAllStringSubmatchIndex(text, -1))
	add(PageRef, pageRefPattern.FindAllStringSubmatchIndex(text, -1))

	sort.Slice(refs, func(i, j int) bool { return refs[i].Start < refs[j].Start })
	return refs
}

// overlaps reports whether any byte in [start, end) is already claimed.
func overlaps(taken []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if taken[i] {
			return true
		}
	}
	return false
}
