package semantic

import (
	"math"
	"sort"
)

// NoiseLabel marks points that belong to no dense cluster.
const NoiseLabel = -1

// zeroDistanceLambda stands in for 1/0 when points coincide.
const zeroDistanceLambda = 1e12

type edge struct {
	a, b int
	w    float64
}

type merge struct {
	left, right int
	dist        float64
	size        int
}

type condensedRow struct {
	parent, child int
	lambda        float64
	size          int
}

// hdbscan labels points with HDBSCAN* clusters using Euclidean distance
// and excess-of-mass selection. The root is never selected, so a single
// homogeneous blob comes back as noise. Labels run from 0 in order of
// cluster discovery; NoiseLabel marks noise.
func hdbscan(points [][]float64, minClusterSize, minSamples int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = NoiseLabel
	}
	if n < 2 || n < minClusterSize {
		return labels
	}

	dist := pairwiseDistances(points)
	mst := minimumSpanningTree(mutualReachability(dist, minSamples))
	slt := singleLinkage(n, mst)
	tree, root, next := condense(n, slt, minClusterSize)
	selected := selectClusters(tree, root, next)

	clusterIDs := make([]int, 0, len(selected))
	for c := range selected {
		clusterIDs = append(clusterIDs, c)
	}
	sort.Ints(clusterIDs)
	labelOf := make(map[int]int, len(clusterIDs))
	for i, c := range clusterIDs {
		labelOf[c] = i
	}

	parentOf := make(map[int]int, len(tree))
	for _, row := range tree {
		parentOf[row.child] = row.parent
	}
	for i := 0; i < n; i++ {
		for c := parentOf[i]; c != root; c = parentOf[c] {
			if l, ok := labelOf[c]; ok {
				labels[i] = l
				break
			}
		}
	}
	return labels
}

func pairwiseDistances(points [][]float64) [][]float64 {
	n := len(points)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var sum float64
			for k := range points[i] {
				diff := points[i][k] - points[j][k]
				sum += diff * diff
			}
			d[i][j] = math.Sqrt(sum)
			d[j][i] = d[i][j]
		}
	}
	return d
}

// mutualReachability replaces each distance with max(core(a), core(b), d(a,b)),
// where core is the distance to the minSamples-th nearest point counting the point itself.
func mutualReachability(dist [][]float64, minSamples int) [][]float64 {
	n := len(dist)
	k := minSamples
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	core := make([]float64, n)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		copy(row, dist[i])
		sort.Float64s(row)
		core[i] = row[k-1]
	}

	mr := make([][]float64, n)
	for i := range mr {
		mr[i] = make([]float64, n)
		for j := range mr[i] {
			mr[i][j] = math.Max(dist[i][j], math.Max(core[i], core[j]))
		}
	}
	return mr
}

// minimumSpanningTree runs Prim's algorithm over a dense graph and returns
// the edges sorted by weight.
func minimumSpanningTree(w [][]float64) []edge {
	n := len(w)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]edge, 0, n-1)
	current := 0
	inTree[0] = true
	for len(edges) < n-1 {
		next, nextW := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if w[current][j] < best[j] {
				best[j] = w[current][j]
				from[j] = current
			}
			if best[j] < nextW {
				next, nextW = j, best[j]
			}
		}
		inTree[next] = true
		edges = append(edges, edge{a: from[next], b: next, w: nextW})
		current = next
	}

	sort.SliceStable(edges, func(i, j int) bool { return edges[i].w < edges[j].w })
	return edges
}

// singleLinkage turns sorted MST edges into a merge tree. Leaves are 0..n-1
// and merge i creates node n+i.
func singleLinkage(n int, edges []edge) []merge {
	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	size := func(slt []merge, node int) int {
		if node < n {
			return 1
		}
		return slt[node-n].size
	}

	slt := make([]merge, 0, n-1)
	for i, e := range edges {
		ra, rb := find(e.a), find(e.b)
		node := n + i
		slt = append(slt, merge{left: ra, right: rb, dist: e.w, size: size(slt, ra) + size(slt, rb)})
		parent[ra] = node
		parent[rb] = node
	}
	return slt
}

// condense collapses the merge tree so that a split only creates new
// clusters when both sides hold at least minClusterSize points. Smaller
// sides fall out of their parent as individual points. Cluster ids start
// at n (the root) and next is one past the last id.
func condense(n int, slt []merge, minClusterSize int) (tree []condensedRow, root, next int) {
	size := func(node int) int {
		if node < n {
			return 1
		}
		return slt[node-n].size
	}
	var leaves func(node int, out []int) []int
	leaves = func(node int, out []int) []int {
		if node < n {
			return append(out, node)
		}
		m := slt[node-n]
		return leaves(m.right, leaves(m.left, out))
	}
	lambdaOf := func(d float64) float64 {
		if d > 0 {
			return 1 / d
		}
		return zeroDistanceLambda
	}

	top := 2*n - 2
	root = n
	next = n + 1
	relabel := map[int]int{top: root}
	queue := []int{top}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node < n {
			continue
		}
		m := slt[node-n]
		lambda := lambdaOf(m.dist)
		parentLabel := relabel[node]
		lc, rc := size(m.left), size(m.right)

		fallOut := func(child int) {
			for _, leaf := range leaves(child, nil) {
				tree = append(tree, condensedRow{parent: parentLabel, child: leaf, lambda: lambda, size: 1})
			}
		}

		switch {
		case lc >= minClusterSize && rc >= minClusterSize:
			for _, child := range []int{m.left, m.right} {
				relabel[child] = next
				tree = append(tree, condensedRow{parent: parentLabel, child: next, lambda: lambda, size: size(child)})
				next++
				queue = append(queue, child)
			}
		case lc < minClusterSize && rc < minClusterSize:
			fallOut(m.left)
			fallOut(m.right)
		case lc < minClusterSize:
			relabel[m.right] = parentLabel
			fallOut(m.left)
			queue = append(queue, m.right)
		default:
			relabel[m.left] = parentLabel
			fallOut(m.right)
			queue = append(queue, m.left)
		}
	}
	return tree, root, next
}

// selectClusters picks the excess-of-mass clusters, excluding the root.
func selectClusters(tree []condensedRow, root, next int) map[int]bool {
	birth := map[int]float64{root: 0}
	children := make(map[int][]int)
	for _, row := range tree {
		if row.child >= root {
			birth[row.child] = row.lambda
			children[row.parent] = append(children[row.parent], row.child)
		}
	}
	stability := make(map[int]float64, next-root)
	for _, row := range tree {
		stability[row.parent] += (row.lambda - birth[row.parent]) * float64(row.size)
	}

	selected := make(map[int]bool)
	for c := root + 1; c < next; c++ {
		selected[c] = true
	}
	var unselectBelow func(c int)
	unselectBelow = func(c int) {
		for _, child := range children[c] {
			delete(selected, child)
			unselectBelow(child)
		}
	}

	// Children always carry larger ids than their parent, so a descending
	// walk settles every subtree before its parent is considered.
	for c := next - 1; c > root; c-- {
		var subtree float64
		for _, child := range children[c] {
			subtree += stability[child]
		}
		if subtree > stability[c] {
			delete(selected, c)
			stability[c] = subtree
		} else {
			unselectBelow(c)
		}
	}
	return selected
}
