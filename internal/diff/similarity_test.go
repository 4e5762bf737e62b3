package diff

import (
	"testing"

	"github.com/roamtools/roamsync/internal/block"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    *block.Block
		b    *block.Block
		min  float64
		max  float64
	}{
		{
			name: "identical blocks score 1.0",
			a:    &block.Block{Text: "review the quarterly report"},
			b:    &block.Block{Text: "review the quarterly report"},
			min:  1.0,
			max:  1.0,
		},
		{
			name: "reformatted whitespace still scores 1.0",
			a:    &block.Block{Text: "review  the\tquarterly report"},
			b:    &block.Block{Text: "review the quarterly report"},
			min:  1.0,
			max:  1.0,
		},
		{
			name: "cosmetic markup does not defeat matching",
			a:    &block.Block{Text: "review the **quarterly** report"},
			b:    &block.Block{Text: "review the quarterly report"},
			min:  1.0,
			max:  1.0,
		},
		{
			name: "small edit stays above threshold",
			a:    &block.Block{Text: "review the quarterly report"},
			b:    &block.Block{Text: "review the quarterly report today"},
			min:  DefaultMinConfidence,
			max:  0.999,
		},
		{
			name: "unrelated texts stay below threshold",
			a:    &block.Block{Text: "review the quarterly report"},
			b:    &block.Block{Text: "walk the dog"},
			min:  0,
			max:  0.49,
		},
		{
			name: "same text different attrs loses the bonus",
			a:    &block.Block{Text: "agenda", Attrs: block.Attrs{Heading: 1}},
			b:    &block.Block{Text: "agenda"},
			min:  0.8,
			max:  0.9,
		},
		{
			name: "both empty with equal attrs",
			a:    &block.Block{},
			b:    &block.Block{},
			min:  1.0,
			max:  1.0,
		},
		{
			name: "both empty with different attrs sits at threshold",
			a:    &block.Block{Attrs: block.Attrs{Todo: block.TodoOpen}},
			b:    &block.Block{},
			min:  DefaultMinConfidence,
			max:  DefaultMinConfidence,
		},
		{
			name: "empty against non-empty",
			a:    &block.Block{},
			b:    &block.Block{Text: "something"},
			min:  0,
			max:  0.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Similarity() = %v, want in [%v, %v]", got, tt.min, tt.max)
			}

			// Symmetric and pure.
			if rev := Similarity(tt.b, tt.a); rev != got {
				t.Errorf("Similarity() not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestSimilarity_IgnoresUIDs(t *testing.T) {
	a := &block.Block{UID: "aaa", Text: "same text"}
	b := &block.Block{UID: "bbb", Text: "same text"}
	if got := Similarity(a, b); got != 1.0 {
		t.Errorf("Similarity() = %v, want 1.0 regardless of UIDs", got)
	}
}
