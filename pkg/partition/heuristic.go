package partition

// Heuristic proposes the next pair of subsets to merge. ok is false when no
// merge is worthwhile.
type Heuristic interface {
	NextMerge(p *Partition) (a, b *Subset, ok bool)
}

// HeuristicFunc adapts a function to the Heuristic interface.
type HeuristicFunc func(p *Partition) (a, b *Subset, ok bool)

// NextMerge calls f(p).
func (f HeuristicFunc) NextMerge(p *Partition) (*Subset, *Subset, bool) { return f(p) }

// Adjust applies the merges proposed by h until the partition has no more
// subsets than its ideal thread count, h has nothing to propose, a
// proposal would close a cycle, or maxIterations merges were applied
// (0 means no limit). It returns the number of merges applied.
func Adjust(p *Partition, h Heuristic, maxIterations int) (int, error) {
	merges := 0
	for maxIterations <= 0 || merges < maxIterations {
		if p.idealThreads > 0 && p.NumSubsets() <= p.idealThreads {
			break
		}
		a, b, ok := h.NextMerge(p)
		if !ok || !p.CanMergeSubsets(a, b) {
			break
		}
		if _, err := p.MergeSubsets(a, b); err != nil {
			return merges, err
		}
		merges++
	}
	return merges, nil
}

// MinMaxHeuristic merges the cheapest pair of neighbouring subsets whose
// union stays under the per-stage cost ceiling. Neighbours are the next
// level dependents and the cousins of a subset. Ties prefer the pair with
// more dependences between them.
type MinMaxHeuristic struct {
	// Tolerance scales the cost ceiling. Values below 1 are treated as 1.
	Tolerance float64
}

// NextMerge implements Heuristic.
func (h MinMaxHeuristic) NextMerge(p *Partition) (*Subset, *Subset, bool) {
	tolerance := h.Tolerance
	if tolerance < 1 {
		tolerance = 1
	}
	ceiling := float64(p.MaxSubsetCost()) * tolerance

	var bestA, bestB *Subset
	bestCost, bestEdges := 0, 0
	for _, s := range p.Subsets() {
		candidates := append(p.NextLevelSubsets(s), p.GetCousins(s)...)
		for _, other := range candidates {
			if !p.CanMergeSubsets(s, other) {
				continue
			}
			cost := s.cost + other.cost
			if float64(cost) > ceiling {
				continue
			}
			edges := p.NumEdgesBetween(s, other) + p.NumEdgesBetween(other, s)
			if bestA == nil || cost < bestCost || (cost == bestCost && edges > bestEdges) {
				bestA, bestB = s, other
				bestCost, bestEdges = cost, edges
			}
		}
	}
	return bestA, bestB, bestA != nil
}
