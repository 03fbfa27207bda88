package website

import "testing"

func TestSortExtensions_VulnerableFirstThenTitle(t *testing.T) {
	exts := []Extension{
		{Title: "B"},
		{Title: "A", Vulnerabilities: []Reference{NewReference("x")}},
		{Title: "C"},
	}

	SortExtensions(exts, SortByTitle)

	want := []string{"A", "B", "C"}
	for i, w := range want {
		if exts[i].Title != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, exts[i].Title)
		}
	}
	if !exts[0].IsVulnerable() {
		t.Fatal("expected vulnerable extension first")
	}
}

func TestSortExtensions_CaseInsensitive(t *testing.T) {
	exts := []Extension{
		{Title: "zeta"},
		{Title: "Alpha"},
		{Title: "beta"},
	}

	SortExtensions(exts, SortByTitle)

	if exts[0].Title != "Alpha" || exts[1].Title != "beta" || exts[2].Title != "zeta" {
		t.Fatalf("unexpected order: %+v", exts)
	}
}

func TestSortExtensions_BySlug(t *testing.T) {
	exts := []Extension{
		{Slug: "woocommerce", Title: "A WooCommerce"},
		{Slug: "akismet", Title: "Z Akismet"},
		{Slug: "jetpack", Title: "Jetpack", HasVulnerabilities: true},
	}

	SortExtensions(exts, SortBySlug)

	want := []string{"jetpack", "akismet", "woocommerce"}
	for i, w := range want {
		if exts[i].Slug != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, exts[i].Slug)
		}
	}
}

func TestSortExtensions_VulnerableGroupOrdered(t *testing.T) {
	exts := []Extension{
		{Title: "delta", Vulnerabilities: []Reference{NewReference("a")}},
		{Title: "Charlie"},
		{Title: "bravo", HasVulnerabilities: true},
	}

	SortExtensions(exts, SortByTitle)

	want := []string{"bravo", "delta", "Charlie"}
	for i, w := range want {
		if exts[i].Title != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, exts[i].Title)
		}
	}
}

func TestParseSortOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    SortOrder
		wantErr bool
	}{
		{"title", SortByTitle, false},
		{"SLUG", SortBySlug, false},
		{" slug ", SortBySlug, false},
		{"version", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSortOrder(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseSortOrder(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseSortOrder(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
