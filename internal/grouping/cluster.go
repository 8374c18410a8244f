package grouping

import "sort"

// component is one connected set of candidate articles. anchor is the
// existing group id it inherits, or 0 for a brand-new cluster.
type component struct {
	anchor  int64
	members []int
}

type anchorConflict struct {
	leftArticleID  int64
	rightArticleID int64
	leftGroupID    int64
	rightGroupID   int64
	score          float64
}

type clusterResult struct {
	components []component
	conflicts  []anchorConflict
}

// buildClusters seeds the forest with one anchor node per existing group,
// applies edges in their given order and reads off components ordered by
// their lowest member index.
func buildClusters(articles []Article, edges []edge) clusterResult {
	uf := newUnionFind(len(articles))
	anchors := make(map[int64]int)
	for i, article := range articles {
		if !article.Grouped() {
			continue
		}
		groupID := *article.EventGroupID
		node, ok := anchors[groupID]
		if !ok {
			node = uf.addAnchor(groupID)
			anchors[groupID] = node
		}
		uf.union(i, node)
	}

	var result clusterResult
	for _, e := range edges {
		leftGroup, rightGroup := uf.anchorOf(e.lo), uf.anchorOf(e.hi)
		if _, conflict := uf.union(e.lo, e.hi); conflict {
			result.conflicts = append(result.conflicts, anchorConflict{
				leftArticleID:  articles[e.lo].ID,
				rightArticleID: articles[e.hi].ID,
				leftGroupID:    leftGroup,
				rightGroupID:   rightGroup,
				score:          e.score,
			})
		}
	}

	byRoot := make(map[int]int)
	for i := range articles {
		root := uf.find(i)
		idx, ok := byRoot[root]
		if !ok {
			idx = len(result.components)
			byRoot[root] = idx
			result.components = append(result.components, component{anchor: uf.anchorOf(i)})
		}
		result.components[idx].members = append(result.components[idx].members, i)
	}
	sort.SliceStable(result.components, func(i, j int) bool {
		return result.components[i].members[0] < result.components[j].members[0]
	})
	return result
}
