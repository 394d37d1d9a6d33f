package search

import "testing"

func sample() map[string][]Entry {
	return map[string][]Entry{
		"acme_tools": {
			{Name: "color-picker", Bucket: "acme_tools", Description: "pick palette colors"},
			{Name: "tagger", Bucket: "acme_tools", Description: "auto tag items"},
		},
		"x_bar": {
			{Name: "x_bar", Bucket: "x_bar", Type: "standard"},
		},
	}
}

func TestFuzzySearch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		first string
		count int
	}{
		{name: "exact name", query: "tagger", first: "tagger", count: 1},
		{name: "description", query: "palette", first: "color-picker", count: 1},
		{name: "empty query lists all", query: "", first: "color-picker", count: 3},
		{name: "no match", query: "zzzz", count: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := FuzzySearch(sample(), tt.query)
			if len(got) != tt.count {
				t.Fatalf("got %d results, want %d: %+v", len(got), tt.count, got)
			}
			if tt.count > 0 && got[0].Entry.Name != tt.first {
				t.Errorf("first = %q, want %q", got[0].Entry.Name, tt.first)
			}
		})
	}
}

func TestSimpleSearch(t *testing.T) {
	t.Parallel()

	got := SimpleSearch(sample(), "STANDARD")
	if len(got) != 1 || got[0].Entry.Name != "x_bar" {
		t.Fatalf("got %+v, want x_bar", got)
	}
}
