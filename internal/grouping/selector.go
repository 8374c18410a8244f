package grouping

import (
	"sort"
	"strings"
	"time"

	"github.com/onuralpArsln/AINewspaper/internal/globaltime"
)

// pair holds indices into the id-ordered candidate slice, lo < hi.
type pair struct {
	lo int
	hi int
}

// collapseDuplicates drops ungrouped articles whose content hash was already
// seen on a lower id. Grouped articles are always kept since they anchor
// existing groups.
func collapseDuplicates(articles []Article) ([]Article, int) {
	ordered := append([]Article(nil), articles...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ID < ordered[j].ID
	})

	seen := make(map[string]struct{}, len(ordered))
	kept := ordered[:0]
	skipped := 0
	for _, article := range ordered {
		hash := strings.TrimSpace(article.ContentHash)
		if hash == "" {
			kept = append(kept, article)
			continue
		}
		if _, dup := seen[hash]; dup && !article.Grouped() {
			skipped++
			continue
		}
		seen[hash] = struct{}{}
		kept = append(kept, article)
	}
	return kept, skipped
}

// selectPairs returns every eligible pair in (lo, hi) order. Dated articles
// are swept in publish order so only pairs inside maxDiff are visited.
// Undated articles pair only within their UTC ingestion day.
func selectPairs(articles []Article, maxDiff time.Duration) []pair {
	var (
		pairs   []pair
		dated   []int
		undated = make(map[string][]int)
	)
	for i, article := range articles {
		if article.PublishedAt == nil || article.PublishedAt.IsZero() {
			day := globaltime.DayKey(article.CreatedAt)
			undated[day] = append(undated[day], i)
			continue
		}
		dated = append(dated, i)
	}

	add := func(i, j int) {
		if !eligible(articles[i], articles[j]) {
			return
		}
		if i > j {
			i, j = j, i
		}
		pairs = append(pairs, pair{lo: i, hi: j})
	}

	sort.SliceStable(dated, func(x, y int) bool {
		left := articles[dated[x]]
		right := articles[dated[y]]
		if !left.PublishedAt.Equal(*right.PublishedAt) {
			return left.PublishedAt.Before(*right.PublishedAt)
		}
		return left.ID < right.ID
	})
	for x := 0; x < len(dated); x++ {
		from := *articles[dated[x]].PublishedAt
		for y := x + 1; y < len(dated); y++ {
			if articles[dated[y]].PublishedAt.Sub(from) > maxDiff {
				break
			}
			add(dated[x], dated[y])
		}
	}

	for _, bucket := range undated {
		for x := 0; x < len(bucket); x++ {
			for y := x + 1; y < len(bucket); y++ {
				add(bucket[x], bucket[y])
			}
		}
	}

	sort.Slice(pairs, func(x, y int) bool {
		if pairs[x].lo != pairs[y].lo {
			return pairs[x].lo < pairs[y].lo
		}
		return pairs[x].hi < pairs[y].hi
	})
	return pairs
}

func eligible(a, b Article) bool {
	if a.Grouped() && b.Grouped() {
		return false
	}
	return !sameSource(a.SourceName, b.SourceName)
}

// sameSource compares trimmed, case-folded source names. An empty name is
// unknown and never matches.
func sameSource(a, b string) bool {
	left := strings.TrimSpace(a)
	right := strings.TrimSpace(b)
	if left == "" || right == "" {
		return false
	}
	return strings.EqualFold(left, right)
}

// ExplainEligibility reports why two articles would not be paired, or ""
// when they would.
func ExplainEligibility(a, b Article, maxDiff time.Duration) string {
	switch {
	case a.Grouped() && b.Grouped():
		return "both articles are already grouped"
	case sameSource(a.SourceName, b.SourceName):
		return "same source"
	}

	aDated := a.PublishedAt != nil && !a.PublishedAt.IsZero()
	bDated := b.PublishedAt != nil && !b.PublishedAt.IsZero()
	switch {
	case aDated && bDated:
		diff := a.PublishedAt.Sub(*b.PublishedAt)
		if diff < 0 {
			diff = -diff
		}
		if diff > maxDiff {
			return "published " + diff.String() + " apart, limit " + maxDiff.String()
		}
	case aDated != bDated:
		return "only one article has a publish time"
	default:
		if globaltime.DayKey(a.CreatedAt) != globaltime.DayKey(b.CreatedAt) {
			return "undated articles from different ingestion days"
		}
	}
	return ""
}
