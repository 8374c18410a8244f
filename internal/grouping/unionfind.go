package grouping

// unionFind is a disjoint-set forest. Each root carries the existing group id
// of its set, or 0 when the set has no anchor.
type unionFind struct {
	parent []int
	size   []int
	anchor []int64
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{
		parent: make([]int, n),
		size:   make([]int, n),
		anchor: make([]int64, n),
	}
	for i := range u.parent {
		u.parent[i] = i
		u.size[i] = 1
	}
	return u
}

// addAnchor appends a synthetic node for an existing group and returns it.
func (u *unionFind) addAnchor(groupID int64) int {
	node := len(u.parent)
	u.parent = append(u.parent, node)
	u.size = append(u.size, 1)
	u.anchor = append(u.anchor, groupID)
	return node
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union joins the sets of a and b. It refuses, and reports a conflict, when
// both sets already carry different anchors.
func (u *unionFind) union(a, b int) (merged bool, conflict bool) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false, false
	}
	if u.anchor[ra] != 0 && u.anchor[rb] != 0 && u.anchor[ra] != u.anchor[rb] {
		return false, true
	}

	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
	if u.anchor[ra] == 0 {
		u.anchor[ra] = u.anchor[rb]
	}
	return true, false
}

func (u *unionFind) anchorOf(x int) int64 {
	return u.anchor[u.find(x)]
}
