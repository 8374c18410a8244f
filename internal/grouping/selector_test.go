package grouping

import (
	"reflect"
	"testing"
	"time"
)

func TestSelectPairsSlidingWindow(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	articles := []Article{
		testArticle(1, "a", "", "", base),
		testArticle(2, "b", "", "", base.Add(30*time.Hour)),
		testArticle(3, "c", "", "", base.Add(60*time.Hour)),
		testArticle(4, "d", "", "", base.Add(-10*time.Hour)),
	}

	got := selectPairs(articles, 48*time.Hour)
	want := []pair{{lo: 0, hi: 1}, {lo: 0, hi: 3}, {lo: 1, hi: 2}, {lo: 1, hi: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected pairs: got %+v want %+v", got, want)
	}
}

func TestSelectPairsSkipsGroupedPairs(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	articles := []Article{
		groupedArticle(testArticle(1, "a", "", "", base), 5),
		groupedArticle(testArticle(2, "b", "", "", base), 6),
		testArticle(3, "c", "", "", base),
	}

	got := selectPairs(articles, time.Hour)
	want := []pair{{lo: 0, hi: 2}, {lo: 1, hi: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected pairs: got %+v want %+v", got, want)
	}
}

func TestSameSource(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want bool
	}{
		{"Hürriyet", " hürriyet ", true},
		{"NTV", "ntv", true},
		{"NTV", "CNN Türk", false},
		{"", "", false},
		{"  ", "NTV", false},
	}
	for _, tc := range cases {
		if got := sameSource(tc.a, tc.b); got != tc.want {
			t.Fatalf("sameSource(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCollapseDuplicatesKeepsLowestIDAndAnchors(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	withHash := func(a Article, hash string) Article {
		a.ContentHash = hash
		return a
	}
	articles := []Article{
		withHash(testArticle(3, "c", "", "", base), "h1"),
		withHash(testArticle(1, "a", "", "", base), "h1"),
		withHash(groupedArticle(testArticle(2, "b", "", "", base), 9), "h1"),
		testArticle(4, "d", "", "", base),
		withHash(testArticle(5, "e", "", "", base), " "),
	}

	kept, skipped := collapseDuplicates(articles)
	var ids []int64
	for _, a := range kept {
		ids = append(ids, a.ID)
	}
	if !reflect.DeepEqual(ids, []int64{1, 2, 4, 5}) || skipped != 1 {
		t.Fatalf("unexpected collapse: ids=%v skipped=%d", ids, skipped)
	}
}

func TestUnionFindRefusesAnchorMerge(t *testing.T) {
	t.Parallel()

	uf := newUnionFind(3)
	left := uf.addAnchor(10)
	right := uf.addAnchor(20)
	uf.union(0, left)
	uf.union(1, right)

	if merged, conflict := uf.union(2, 0); !merged || conflict {
		t.Fatalf("expected free node to join anchored set")
	}
	if uf.anchorOf(2) != 10 {
		t.Fatalf("expected anchor 10, got %d", uf.anchorOf(2))
	}
	if merged, conflict := uf.union(2, 1); merged || !conflict {
		t.Fatalf("expected conflict when joining two anchors")
	}
	if uf.find(0) == uf.find(1) {
		t.Fatalf("anchored sets were merged")
	}
	if merged, conflict := uf.union(0, 2); merged || conflict {
		t.Fatalf("expected no-op for nodes already joined")
	}
}

func TestPlanGroupsOrdersNewClustersBySmallestMember(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	articles := []Article{
		testArticle(1, "a", "", "", base),
		testArticle(2, "b", "", "", base),
		testArticle(3, "c", "", "", base),
		testArticle(4, "d", "", "", base),
		testArticle(5, "e", "", "", base),
	}
	components := []component{
		{members: []int{1, 3}},
		{members: []int{0, 4}},
		{members: []int{2}},
	}

	plan := planGroups(articles, components, nil, 2)
	if len(plan.creates) != 2 || plan.demoted != 0 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if !reflect.DeepEqual(plan.creates[0].newMembers, []int64{1, 5}) || !reflect.DeepEqual(plan.creates[1].newMembers, []int64{2, 4}) {
		t.Fatalf("unexpected create order: %+v", plan.creates)
	}
}

func TestExplainEligibility(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	undated := func(id int64, source string, created time.Time) Article {
		a := testArticle(id, source, "", "", base)
		a.PublishedAt = nil
		a.CreatedAt = created
		return a
	}

	cases := []struct {
		name string
		a, b Article
		want string
	}{
		{name: "eligible", a: testArticle(1, "x", "", "", base), b: testArticle(2, "y", "", "", base.Add(time.Hour)), want: ""},
		{name: "same source", a: testArticle(1, "x", "", "", base), b: testArticle(2, "X ", "", "", base), want: "same source"},
		{name: "both grouped", a: groupedArticle(testArticle(1, "x", "", "", base), 1), b: groupedArticle(testArticle(2, "y", "", "", base), 2), want: "both articles are already grouped"},
		{name: "too far apart", a: testArticle(1, "x", "", "", base), b: testArticle(2, "y", "", "", base.Add(72*time.Hour)), want: "published 72h0m0s apart, limit 48h0m0s"},
		{name: "mixed dating", a: testArticle(1, "x", "", "", base), b: undated(2, "y", base), want: "only one article has a publish time"},
		{name: "undated other day", a: undated(1, "x", base), b: undated(2, "y", base.Add(24*time.Hour)), want: "undated articles from different ingestion days"},
		{name: "undated same day", a: undated(1, "x", base), b: undated(2, "y", base.Add(time.Hour)), want: ""},
	}
	for _, tc := range cases {
		if got := ExplainEligibility(tc.a, tc.b, 48*time.Hour); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}
