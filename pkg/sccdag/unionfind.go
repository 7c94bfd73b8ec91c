package sccdag

// unionFind is a disjoint-set forest with path compression and union by
// rank. Elements are added implicitly on first use.
type unionFind[T comparable] struct {
	parent map[T]T
	rank   map[T]int
	order  []T
}

func newUnionFind[T comparable]() *unionFind[T] {
	return &unionFind[T]{
		parent: make(map[T]T),
		rank:   make(map[T]int),
	}
}

func (uf *unionFind[T]) add(x T) {
	if _, ok := uf.parent[x]; ok {
		return
	}
	uf.parent[x] = x
	uf.order = append(uf.order, x)
}

func (uf *unionFind[T]) find(x T) T {
	if _, ok := uf.parent[x]; !ok {
		uf.add(x)
		return x
	}
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x])
	}
	return uf.parent[x]
}

func (uf *unionFind[T]) union(x, y T) {
	rx, ry := uf.find(x), uf.find(y)
	if rx == ry {
		return
	}
	switch {
	case uf.rank[rx] < uf.rank[ry]:
		uf.parent[rx] = ry
	case uf.rank[rx] > uf.rank[ry]:
		uf.parent[ry] = rx
	default:
		uf.parent[ry] = rx
		uf.rank[rx]++
	}
}

// groups returns the sets with more than one member, ordered by the first
// insertion of any of their members. Members keep insertion order.
func (uf *unionFind[T]) groups() [][]T {
	index := make(map[T]int)
	var out [][]T
	for _, x := range uf.order {
		root := uf.find(x)
		i, ok := index[root]
		if !ok {
			i = len(out)
			index[root] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], x)
	}
	kept := out[:0]
	for _, g := range out {
		if len(g) > 1 {
			kept = append(kept, g)
		}
	}
	return kept
}
