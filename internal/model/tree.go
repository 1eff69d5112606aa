package model

import (
	"fmt"
	"math"
)

// Tree is a fitted binary decision tree in flat array form. Node 0 is the
// root; a leaf has ChildrenLeft and ChildrenRight equal to -1. Value holds
// one entry per model output for every node, and Cover the (weighted)
// number of training samples that reached the node.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Cover         []float64   `json:"cover"`
	Value         [][]float64 `json:"value"`
}

// NumNodes returns the number of nodes.
func (t *Tree) NumNodes() int { return len(t.ChildrenLeft) }

// IsLeaf reports whether node i has no children.
func (t *Tree) IsLeaf(i int) bool { return t.ChildrenLeft[i] < 0 }

// Validate checks array shapes, covers, child links and feature indices.
// Children must have larger indices than their parent, which rules out
// cycles.
func (t *Tree) Validate(numFeatures, numOutputs int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n ||
		len(t.Cover) != n || len(t.Value) != n {
		return fmt.Errorf("tree arrays differ in length (%d nodes)", n)
	}
	for i := 0; i < n; i++ {
		if len(t.Value[i]) != numOutputs {
			return fmt.Errorf("node %d: %d values, want %d", i, len(t.Value[i]), numOutputs)
		}
		if !(t.Cover[i] > 0) {
			return fmt.Errorf("node %d: invalid cover %v", i, t.Cover[i])
		}
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l < 0 && r < 0 {
			continue
		}
		if l <= i || r <= i || l >= n || r >= n {
			return fmt.Errorf("node %d: invalid children %d/%d", i, l, r)
		}
		if f := t.Feature[i]; f < 0 || f >= numFeatures {
			return fmt.Errorf("node %d: feature %d out of range [0,%d)", i, f, numFeatures)
		}
	}
	return nil
}

// Next returns the child of internal node i that x follows. Values at or
// below the threshold go left; a missing value follows the child that saw
// more training samples.
func (t *Tree) Next(i int, x []float64) int {
	v := x[t.Feature[i]]
	l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
	if math.IsNaN(v) {
		if t.Cover[r] > t.Cover[l] {
			return r
		}
		return l
	}
	if v <= t.Threshold[i] {
		return l
	}
	return r
}

// Leaf returns the index of the leaf x lands in.
func (t *Tree) Leaf(x []float64) int {
	i := 0
	for !t.IsLeaf(i) {
		i = t.Next(i, x)
	}
	return i
}

// MaxDepth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) MaxDepth() int {
	var walk func(i, d int) int
	walk = func(i, d int) int {
		if t.IsLeaf(i) {
			return d
		}
		return max(walk(t.ChildrenLeft[i], d+1), walk(t.ChildrenRight[i], d+1))
	}
	return walk(0, 0)
}

// normalizeLeaves rescales every node value to sum to one, turning class
// counts into probabilities.
func (t *Tree) normalizeLeaves() {
	for _, v := range t.Value {
		var s float64
		for _, x := range v {
			s += x
		}
		if s <= 0 {
			continue
		}
		for k := range v {
			v[k] /= s
		}
	}
}

// Ensemble is the additive form of a tree model: for every output k the
// raw score is Base[k] + Weight * sum over trees of the leaf value. Link
// functions such as the logistic are applied by the classifier, not here.
type Ensemble struct {
	Trees       []*Tree
	Weight      float64
	Base        []float64
	NumOutputs  int
	NumFeatures int
}

// Raw returns the untransformed ensemble output for one sample.
func (e *Ensemble) Raw(x []float64) []float64 {
	out := make([]float64, e.NumOutputs)
	copy(out, e.Base)
	for _, t := range e.Trees {
		leaf := t.Value[t.Leaf(x)]
		for k := range out {
			out[k] += e.Weight * leaf[k]
		}
	}
	return out
}
