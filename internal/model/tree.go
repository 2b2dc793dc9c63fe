package model

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Node is a node of a binary decision tree. Rows with
// x[Feature] <= Threshold go left. Value is the leaf output: the
// probability of class 1 for classification trees, the fitted step for
// boosting trees.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Value     float64 `json:"value"`
	Left      *Node   `json:"left,omitempty"`
	Right     *Node   `json:"right,omitempty"`
}

func (n *Node) eval(row []float64) float64 {
	for !n.Leaf {
		if row[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// Depth returns the depth of the deepest leaf (a single leaf has depth 0).
func (n *Node) Depth() int {
	if n == nil || n.Leaf {
		return 0
	}
	l, r := n.Left.Depth(), n.Right.Depth()
	if l > r {
		return l + 1
	}
	return r + 1
}

// nodeStats are weighted sums over the rows reaching a node.
type nodeStats struct {
	w, wy, wyy float64
}

func (s *nodeStats) add(w, y float64) {
	s.w += w
	s.wy += w * y
	s.wyy += w * y * y
}

func (s nodeStats) minus(o nodeStats) nodeStats {
	return nodeStats{w: s.w - o.w, wy: s.wy - o.wy, wyy: s.wyy - o.wyy}
}

func (s nodeStats) mean() float64 {
	if s.w <= 0 {
		return 0
	}
	return s.wy / s.w
}

type criterion func(nodeStats) float64

func gini(s nodeStats) float64 {
	p := clamp01(s.mean())
	return 2 * p * (1 - p)
}

func entropy(s nodeStats) float64 {
	p := clamp01(s.mean())
	h := 0.0
	for _, q := range []float64{p, 1 - p} {
		if q > 0 {
			h -= q * math.Log2(q)
		}
	}
	return h
}

func squaredError(s nodeStats) float64 {
	if s.w <= 0 {
		return 0
	}
	m := s.wy / s.w
	v := s.wyy/s.w - m*m
	if v < 0 {
		return 0
	}
	return v
}

func clamp01(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}

// grower builds a CART tree over the rows of x, fitting target with
// per-row weights.
type grower struct {
	x           *mat.Dense
	target      []float64
	weight      []float64
	crit        criterion
	maxDepth    int
	minSplit    int
	minLeaf     int
	maxFeatures int
	rnd         *rand.Rand
	// leafValue overrides the weighted target mean used as leaf output.
	leafValue func(idx []int) float64
}

type split struct {
	gain      float64
	feature   int
	threshold float64
}

const minGain = 1e-12

func (g *grower) grow(idx []int, depth int) *Node {
	s := g.stats(idx)
	node := &Node{Leaf: true, Value: g.leaf(idx, s)}

	if s.w <= 0 || len(idx) < g.minSplit || (g.maxDepth > 0 && depth >= g.maxDepth) {
		return node
	}
	parent := g.crit(s)
	if parent <= minGain {
		return node
	}

	best := split{feature: -1}
	for _, f := range g.candidateFeatures() {
		sp := g.bestSplit(idx, f, s, parent)
		if sp.feature >= 0 && sp.gain > best.gain+minGain {
			best = sp
		}
	}
	if best.feature < 0 {
		return node
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if g.x.At(i, best.feature) <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	node.Leaf = false
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = g.grow(left, depth+1)
	node.Right = g.grow(right, depth+1)
	return node
}

func (g *grower) stats(idx []int) nodeStats {
	var s nodeStats
	for _, i := range idx {
		s.add(g.w(i), g.target[i])
	}
	return s
}

func (g *grower) w(i int) float64 {
	if g.weight == nil {
		return 1
	}
	return g.weight[i]
}

func (g *grower) leaf(idx []int, s nodeStats) float64 {
	if g.leafValue != nil {
		return g.leafValue(idx)
	}
	return s.mean()
}

func (g *grower) candidateFeatures() []int {
	_, cols := g.x.Dims()
	if g.maxFeatures <= 0 || g.maxFeatures >= cols || g.rnd == nil {
		out := make([]int, cols)
		for j := range out {
			out[j] = j
		}
		return out
	}
	out := g.rnd.Perm(cols)[:g.maxFeatures]
	sort.Ints(out)
	return out
}

func (g *grower) bestSplit(idx []int, f int, total nodeStats, parent float64) split {
	order := append([]int(nil), idx...)
	sort.SliceStable(order, func(a, b int) bool {
		return g.x.At(order[a], f) < g.x.At(order[b], f)
	})

	best := split{feature: -1}
	var left nodeStats
	for k := 0; k < len(order)-1; k++ {
		i := order[k]
		left.add(g.w(i), g.target[i])

		v, next := g.x.At(i, f), g.x.At(order[k+1], f)
		if v == next {
			continue
		}
		nl, nr := k+1, len(order)-k-1
		if nl < g.minLeaf || nr < g.minLeaf {
			continue
		}
		right := total.minus(left)
		if left.w <= 0 || right.w <= 0 {
			continue
		}

		impurity := (left.w*g.crit(left) + right.w*g.crit(right)) / total.w
		gain := parent - impurity
		if gain > best.gain {
			thr := v + (next-v)/2
			if thr >= next {
				thr = v
			}
			best = split{gain: gain, feature: f, threshold: thr}
		}
	}
	return best
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
