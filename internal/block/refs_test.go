package block

import (
	"testing"
)

func TestExtractRefs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Ref
	}{
		{
			name: "no refs",
			text: "plain text with (parens) and [brackets]",
			want: nil,
		},
		{
			name: "single block ref",
			text: "see ((abc-123)) for details",
			want: []Ref{
				{Kind: BlockRef, Target: "abc-123", Start: 4, End: 15},
			},
		},
		{
			name: "multiple block refs",
			text: "((aaa)) and ((bbb))",
			want: []Ref{
				{Kind: BlockRef, Target: "aaa", Start: 0, End: 7},
				{Kind: BlockRef, Target: "bbb", Start: 12, End: 19},
			},
		},
		{
			name: "page ref",
			text: "filed under [[Project Notes]]",
			want: []Ref{
				{Kind: PageRef, Target: "Project Notes", Start: 12, End: 29},
			},
		},
		{
			name: "block embed wins over inner block ref",
			text: "{{[[embed]]: ((xyz))}}",
			want: []Ref{
				{Kind: BlockEmbed, Target: "xyz", Start: 0, End: 22},
			},
		},
		{
			name: "page embed wins over inner page ref",
			text: "{{[[embed]]: [[Inbox]]}}",
			want: []Ref{
				{Kind: PageEmbed, Target: "Inbox", Start: 0, End: 24},
			},
		},
		{
			name: "alias wins over inner block ref",
			text: "see [the plan](((def-456)))",
			want: []Ref{
				{Kind: AliasRef, Target: "def-456", Start: 4, End: 27},
			},
		},
		{
			name: "mixed refs ordered by position",
			text: "[[Inbox]] then ((aaa))",
			want: []Ref{
				{Kind: PageRef, Target: "Inbox", Start: 0, End: 9},
				{Kind: BlockRef, Target: "aaa", Start: 15, End: 22},
			},
		},
		{
			name: "empty uid is not a ref",
			text: "empty (()) marker",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractRefs(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractRefs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ref[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAliasText(t *testing.T) {
	tests := []struct {
		marker string
		want   string
	}{
		{"[the plan](((def-456)))", "the plan"},
		{"[](((def-456)))", ""},
		{"((def-456))", ""},
		{"not a marker", ""},
	}
	for _, tt := range tests {
		if got := AliasText(tt.marker); got != tt.want {
			t.Errorf("AliasText(%q) = %q, want %q", tt.marker, got, tt.want)
		}
	}
}

func TestRefMarker(t *testing.T) {
	text := "see ((abc)) here"
	refs := ExtractRefs(text)
	if len(refs) != 1 {
		t.Fatalf("expected 1 ref, got %d", len(refs))
	}
	if got := refs[0].Marker(text); got != "((abc))" {
		t.Errorf("Marker() = %q, want %q", got, "((abc))")
	}
}
