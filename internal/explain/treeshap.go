package explain

import (
	"fmt"
	"math"

	"github.com/KaramelBytes/churnflow-cli/internal/model"
)

// Attributions holds per-feature contributions for every model output.
// Values[k][i][j] is the contribution of feature j to output k for row i;
// Expected[k] is the output k averaged over the training distribution, so
// Expected[k] + sum_j Values[k][i][j] reproduces the raw model output.
type Attributions struct {
	Values   [][][]float64
	Expected []float64
}

// NumOutputs returns how many model outputs were attributed.
func (a *Attributions) NumOutputs() int { return len(a.Values) }

// Select returns the attributions of one output. Single-output models are
// returned as-is regardless of class.
func (a *Attributions) Select(class int) ([][]float64, float64, error) {
	if len(a.Values) == 1 {
		return a.Values[0], a.Expected[0], nil
	}
	if class < 0 || class >= len(a.Values) {
		return nil, 0, fmt.Errorf("class index %d out of range for %d outputs", class, len(a.Values))
	}
	return a.Values[class], a.Expected[class], nil
}

// AdditivityError reports a row whose attributions do not sum to the model
// output.
type AdditivityError struct {
	Row    int
	Output int
	Sum    float64
	Model  float64
}

func (e *AdditivityError) Error() string {
	return fmt.Sprintf("attributions for row %d output %d sum to %g but the model outputs %g (diff %g)",
		e.Row, e.Output, e.Sum, e.Model, math.Abs(e.Sum-e.Model))
}

// TreeSHAP computes exact path-dependent SHAP values for every row of X.
// Features absent from a coalition are integrated out using the training
// cover recorded at each split.
func TreeSHAP(e *model.Ensemble, X [][]float64) (*Attributions, error) {
	nOut, nFeat := e.NumOutputs, e.NumFeatures
	a := &Attributions{
		Values:   make([][][]float64, nOut),
		Expected: make([]float64, nOut),
	}
	copy(a.Expected, e.Base)
	for _, t := range e.Trees {
		ev := expectedValue(t)
		for k := range a.Expected {
			a.Expected[k] += e.Weight * ev[k]
		}
	}
	for k := range a.Values {
		a.Values[k] = make([][]float64, len(X))
	}

	phi := make([][]float64, nFeat)
	for j := range phi {
		phi[j] = make([]float64, nOut)
	}
	for i, x := range X {
		if len(x) != nFeat {
			return nil, fmt.Errorf("row %d: %d features, model expects %d", i, len(x), nFeat)
		}
		for j := range phi {
			clear(phi[j])
		}
		for _, t := range e.Trees {
			w := &walker{tree: t, x: x, phi: phi, scale: e.Weight}
			w.recurse(0, nil, 0, 1, 1, -1)
		}
		for k := 0; k < nOut; k++ {
			row := make([]float64, nFeat)
			for j := range row {
				row[j] = phi[j][k]
			}
			a.Values[k][i] = row
		}
	}
	return a, nil
}

// CheckAdditivity verifies Expected + sum of attributions against the raw
// ensemble output for every row and output.
func CheckAdditivity(e *model.Ensemble, X [][]float64, a *Attributions, tol float64) error {
	for i, x := range X {
		raw := e.Raw(x)
		for k := range raw {
			sum := a.Expected[k]
			for _, v := range a.Values[k][i] {
				sum += v
			}
			if math.Abs(sum-raw[k]) > tol*math.Max(1, math.Abs(raw[k])) {
				return &AdditivityError{Row: i, Output: k, Sum: sum, Model: raw[k]}
			}
		}
	}
	return nil
}

// expectedValue is the cover-weighted mean of the leaf values.
func expectedValue(t *model.Tree) []float64 {
	out := make([]float64, len(t.Value[0]))
	root := t.Cover[0]
	for i := 0; i < t.NumNodes(); i++ {
		if !t.IsLeaf(i) {
			continue
		}
		w := t.Cover[i] / root
		for k, v := range t.Value[i] {
			out[k] += w * v
		}
	}
	return out
}

// pathElem is one feature on the current root-to-node path. zero is the
// fraction of paths that flow through when the feature is absent, one is
// 1 when x itself follows the path and 0 otherwise, and weight is the
// proportion of feature subsets of a given cardinality on the path.
type pathElem struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

type walker struct {
	tree  *model.Tree
	x     []float64
	phi   [][]float64
	scale float64
}

func (w *walker) recurse(node int, parent []pathElem, depth int, zero, one float64, feature int) {
	path := make([]pathElem, depth+1)
	copy(path, parent[:depth])
	extendPath(path, depth, zero, one, feature)

	t := w.tree
	if t.IsLeaf(node) {
		leaf := t.Value[node]
		for i := 1; i <= depth; i++ {
			el := path[i]
			s := unwoundPathSum(path, depth, i) * (el.one - el.zero) * w.scale
			for k, v := range leaf {
				w.phi[el.feature][k] += s * v
			}
		}
		return
	}

	split := t.Feature[node]
	hot := t.Next(node, w.x)
	cold := t.ChildrenRight[node]
	if hot == cold {
		cold = t.ChildrenLeft[node]
	}
	hotZero := t.Cover[hot] / t.Cover[node]
	coldZero := t.Cover[cold] / t.Cover[node]

	inZero, inOne := 1.0, 1.0
	k := 0
	for ; k <= depth; k++ {
		if path[k].feature == split {
			break
		}
	}
	if k <= depth {
		inZero, inOne = path[k].zero, path[k].one
		unwindPath(path, depth, k)
		depth--
	}
	w.recurse(hot, path, depth+1, hotZero*inZero, inOne, split)
	w.recurse(cold, path, depth+1, coldZero*inZero, 0, split)
}

func extendPath(path []pathElem, depth int, zero, one float64, feature int) {
	path[depth] = pathElem{feature: feature, zero: zero, one: one}
	if depth == 0 {
		path[depth].weight = 1
	}
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / d
		path[i].weight = zero * path[i].weight * float64(depth-i) / d
	}
}

func unwindPath(path []pathElem, depth, idx int) {
	one, zero := path[idx].one, path[idx].zero
	next := path[depth].weight
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * d / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/d
		} else {
			path[i].weight = path[i].weight * d / (zero * float64(depth-i))
		}
	}
	for i := idx; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

func unwoundPathSum(path []pathElem, depth, idx int) float64 {
	one, zero := path[idx].one, path[idx].zero
	next := path[depth].weight
	d := float64(depth + 1)
	total := 0.0
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := next * d / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/d
		} else if zero != 0 {
			total += path[i].weight / zero / (float64(depth-i) / d)
		}
	}
	return total
}
