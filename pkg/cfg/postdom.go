package cfg

// PostDomTree is the post-dominator tree of one function. A virtual exit
// node joins every block without successors.
type PostDomTree struct {
	blocks []string
	index  map[string]int
	exit   int

	ipdom    []int // immediate post-dominator, -1 when unreachable from the exit
	children [][]int
}

// NewPostDomTree computes post-dominators with the iterative algorithm of
// Cooper, Harvey and Kennedy run on the reversed control flow graph.
func NewPostDomTree(f *CFGInfo) *PostDomTree {
	n := len(f.Blocks)
	t := &PostDomTree{
		blocks:   make([]string, n),
		index:    make(map[string]int, n),
		exit:     n,
		ipdom:    make([]int, n+1),
		children: make([][]int, n+1),
	}
	for i, b := range f.Blocks {
		t.blocks[i] = b.ID
		t.index[b.ID] = i
	}

	// Reverse graph: successors are CFG predecessors, the virtual exit
	// precedes every block that has no CFG successor.
	revSuccs := make([][]int, n+1)
	revPreds := make([][]int, n+1)
	for i, b := range f.Blocks {
		if len(b.Successors) == 0 {
			revSuccs[t.exit] = append(revSuccs[t.exit], i)
			revPreds[i] = append(revPreds[i], t.exit)
		}
		for _, s := range b.Successors {
			j := t.index[s]
			revSuccs[j] = append(revSuccs[j], i)
			revPreds[i] = append(revPreds[i], j)
		}
	}

	// postorder of the reversed graph from the virtual exit
	ponum := make([]int, n+1)
	for i := range ponum {
		ponum[i] = -1
	}
	var order []int
	type frame struct{ node, next int }
	seen := make([]bool, n+1)
	stack := []frame{{node: t.exit}}
	seen[t.exit] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(revSuccs[top.node]) {
			s := revSuccs[top.node][top.next]
			top.next++
			if !seen[s] {
				seen[s] = true
				stack = append(stack, frame{node: s})
			}
			continue
		}
		ponum[top.node] = len(order)
		order = append(order, top.node)
		stack = stack[:len(stack)-1]
	}

	for i := range t.ipdom {
		t.ipdom[i] = -1
	}
	t.ipdom[t.exit] = t.exit

	intersect := func(a, b int) int {
		for a != b {
			for ponum[a] < ponum[b] {
				a = t.ipdom[a]
			}
			for ponum[b] < ponum[a] {
				b = t.ipdom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for k := len(order) - 1; k >= 0; k-- {
			v := order[k]
			if v == t.exit {
				continue
			}
			newIdom := -1
			for _, p := range revPreds[v] {
				if t.ipdom[p] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = p
					continue
				}
				newIdom = intersect(p, newIdom)
			}
			if newIdom != -1 && t.ipdom[v] != newIdom {
				t.ipdom[v] = newIdom
				changed = true
			}
		}
	}

	for v := 0; v < n; v++ {
		if p := t.ipdom[v]; p != -1 {
			t.children[p] = append(t.children[p], v)
		}
	}
	return t
}

// ImmediatePostDominator returns the immediate post-dominator of block, or
// "" when it is the virtual exit or the block cannot reach an exit.
func (t *PostDomTree) ImmediatePostDominator(block string) string {
	i, ok := t.index[block]
	if !ok {
		return ""
	}
	p := t.ipdom[i]
	if p == -1 || p == t.exit {
		return ""
	}
	return t.blocks[p]
}

// Dominates reports whether a post-dominates b. Every block post-dominates itself.
func (t *PostDomTree) Dominates(a, b string) bool {
	ai, ok := t.index[a]
	if !ok {
		return false
	}
	bi, ok := t.index[b]
	if !ok {
		return false
	}
	for v := bi; v != -1; v = t.ipdom[v] {
		if v == ai {
			return true
		}
		if v == t.exit {
			break
		}
	}
	return false
}

// ProperlyDominates reports whether a post-dominates b and a != b.
func (t *PostDomTree) ProperlyDominates(a, b string) bool {
	return a != b && t.Dominates(a, b)
}

// Descendants returns block and every block it post-dominates.
func (t *PostDomTree) Descendants(block string) []string {
	i, ok := t.index[block]
	if !ok {
		return nil
	}
	var out []string
	stack := []int{i}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, t.blocks[v])
		stack = append(stack, t.children[v]...)
	}
	return out
}
