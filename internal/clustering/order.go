package clustering

// order returns the cyclic walk over clusters that minimizes the total
// pushback. Small inputs are searched exhaustively; larger ones use a greedy
// nearest-neighbour walk.
func (e *Engine) order(cosim [][]float64) []int {
	n := len(cosim)
	if n > e.cfg.MaxExhaustive {
		return greedyOrder(cosim)
	}
	return exhaustiveOrder(cosim, e.cfg.Spacing)
}

// cycleCost sums cosim + spacing over adjacent pairs, including last -> first.
func cycleCost(cosim [][]float64, order []int, spacing float64) float64 {
	var cost float64
	for i := range order {
		cost += cosim[order[i]][order[(i+1)%len(order)]] + spacing
	}
	return cost
}

// exhaustiveOrder walks permutations in lexicographic order and keeps the
// first one with minimal cost. Every rotation of a cycle costs the same, so
// only permutations starting with cluster 0 are visited; the lexicographically
// first minimum always starts there.
func exhaustiveOrder(cosim [][]float64, spacing float64) []int {
	n := len(cosim)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	best := append([]int(nil), perm...)
	bestCost := cycleCost(cosim, perm, spacing)

	for nextPermutation(perm[1:]) {
		if cost := cycleCost(cosim, perm, spacing); cost < bestCost {
			bestCost = cost
			copy(best, perm)
		}
	}
	return best
}

// nextPermutation rearranges p into the next lexicographic permutation and
// reports whether one existed.
func nextPermutation(p []int) bool {
	i := len(p) - 2
	for i >= 0 && p[i] >= p[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(p) - 1
	for p[j] <= p[i] {
		j--
	}
	p[i], p[j] = p[j], p[i]
	for l, r := i+1, len(p)-1; l < r; l, r = l+1, r-1 {
		p[l], p[r] = p[r], p[l]
	}
	return true
}

// greedyOrder starts at cluster 0 and repeatedly steps to the closest
// unvisited cluster, lowest index on ties.
func greedyOrder(cosim [][]float64) []int {
	n := len(cosim)
	visited := make([]bool, n)
	order := make([]int, 0, n)

	cur := 0
	for len(order) < n {
		visited[cur] = true
		order = append(order, cur)

		next := -1
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			if next < 0 || cosim[cur][j] < cosim[cur][next] {
				next = j
			}
		}
		if next < 0 {
			break
		}
		cur = next
	}
	return order
}
