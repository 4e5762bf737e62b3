// Package diff aligns an existing block tree against a desired block tree
// and emits a minimal ordered action plan that preserves block UIDs.
//
// The engine has three layers:
//  1. Similarity scores how likely two blocks represent the same logical
//     note after an edit.
//  2. Align consumes the scores to build a Correspondence: a partial
//     bijection between the two trees plus a classification for every node.
//  3. Plan converts the Correspondence into an ordered sequence of atomic
//     mutation operations for the remote store.
//
// All three are pure functions over immutable trees. Neither input tree is
// ever mutated; applying the plan is the transport layer's job.
package diff

import (
	"strings"

	"github.com/roamtools/roamsync/internal/block"
)

// attrWeight is the share of the similarity score contributed by
// attribute equality. The remainder comes from text similarity.
const attrWeight = 0.15

// emptyPairScore is the score for two structural placeholders (both texts
// empty after normalization) whose attributes differ. It sits exactly at
// the default confidence threshold so such pairs still match, with the
// positional tie-break deciding which pairs pair up.
const emptyPairScore = DefaultMinConfidence

// cosmeticMarkup strips formatting that users toggle freely, so that
// bolding a word does not defeat matching.
var cosmeticMarkup = strings.NewReplacer(
	"**", "",
	"__", "",
	"~~", "",
	"^^", "",
	"`", "",
)

// Similarity estimates in [0, 1] how likely a and b represent the same
// logical note after an edit. The score is a pure function of the two
// blocks' text and attributes; children and UIDs are never inspected.
func Similarity(a, b *block.Block) float64 {
	ta := tokenize(a.Text)
	tb := tokenize(b.Text)
	attrsEqual := a.Attrs == b.Attrs

	if len(ta) == 0 && len(tb) == 0 {
		if attrsEqual {
			return 1.0
		}
		return emptyPairScore
	}

	score := (1 - attrWeight) * diceCoefficient(ta, tb)
	if attrsEqual {
		score += attrWeight
	}
	return score
}

// tokenize normalizes text for comparison: cosmetic markup is stripped,
// whitespace is collapsed, and case is folded.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(cosmeticMarkup.Replace(text)))
}

// diceCoefficient is the Sørensen–Dice coefficient over token multisets:
// 2·|A∩B| / (|A|+|B|). Identical token sequences score 1.0, disjoint
// ones 0.0.
func diceCoefficient(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	counts := make(map[string]int, len(a))
	for _, tok := range a {
		counts[tok]++
	}

	common := 0
	for _, tok := range b {
		if counts[tok] > 0 {
			counts[tok]--
			common++
		}
	}

	return 2 * float64(common) / float64(len(a)+len(b))
}
