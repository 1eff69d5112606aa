package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// DecisionTree is a single classification tree whose leaves hold class
// probabilities.
type DecisionTree struct {
	ClassLabels []int64 `json:"classes"`
	NFeatures   int     `json:"n_features"`
	Tree        *Tree   `json:"tree"`
}

// Classes returns the class labels in output order.
func (m *DecisionTree) Classes() []int64 { return m.ClassLabels }

// PredictProba returns per-class probabilities for each row.
func (m *DecisionTree) PredictProba(X [][]float64) ([][]float64, error) {
	return predictEnsemble(m.Ensemble(), X, nil)
}

// Ensemble exposes the tree for attribution.
func (m *DecisionTree) Ensemble() *Ensemble {
	return &Ensemble{
		Trees:       []*Tree{m.Tree},
		Weight:      1,
		Base:        make([]float64, len(m.ClassLabels)),
		NumOutputs:  len(m.ClassLabels),
		NumFeatures: m.NFeatures,
	}
}

// RandomForest averages the class probabilities of its trees.
type RandomForest struct {
	ClassLabels []int64 `json:"classes"`
	NFeatures   int     `json:"n_features"`
	Trees       []*Tree `json:"trees"`
}

// Classes returns the class labels in output order.
func (m *RandomForest) Classes() []int64 { return m.ClassLabels }

// PredictProba returns the mean of the per-tree class probabilities.
func (m *RandomForest) PredictProba(X [][]float64) ([][]float64, error) {
	return predictEnsemble(m.Ensemble(), X, nil)
}

// Ensemble exposes the forest for attribution.
func (m *RandomForest) Ensemble() *Ensemble {
	return &Ensemble{
		Trees:       m.Trees,
		Weight:      1 / float64(len(m.Trees)),
		Base:        make([]float64, len(m.ClassLabels)),
		NumOutputs:  len(m.ClassLabels),
		NumFeatures: m.NFeatures,
	}
}

// GradientBoosting is a binary boosted ensemble of regression trees on the
// log-odds scale: raw = Init + LearningRate * sum of leaves.
type GradientBoosting struct {
	ClassLabels  []int64 `json:"classes"`
	NFeatures    int     `json:"n_features"`
	Init         float64 `json:"init"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []*Tree `json:"trees"`
}

// Classes returns the class labels in output order.
func (m *GradientBoosting) Classes() []int64 { return m.ClassLabels }

// PredictProba applies the logistic link to the raw score.
func (m *GradientBoosting) PredictProba(X [][]float64) ([][]float64, error) {
	return predictEnsemble(m.Ensemble(), X, func(raw []float64) []float64 {
		p := sigmoid(raw[0])
		return []float64{1 - p, p}
	})
}

// Ensemble exposes the boosted trees for attribution. Its single output is
// the log-odds of the positive class.
func (m *GradientBoosting) Ensemble() *Ensemble {
	return &Ensemble{
		Trees:       m.Trees,
		Weight:      m.LearningRate,
		Base:        []float64{m.Init},
		NumOutputs:  1,
		NumFeatures: m.NFeatures,
	}
}

// LogisticRegression is a binary linear classifier. It has no tree
// structure, so it cannot be explained with tree attributions.
type LogisticRegression struct {
	ClassLabels []int64   `json:"classes"`
	Coef        []float64 `json:"coef"`
	Intercept   float64   `json:"intercept"`
}

// Classes returns the class labels in output order.
func (m *LogisticRegression) Classes() []int64 { return m.ClassLabels }

// PredictProba returns [1-p, p] for each row.
func (m *LogisticRegression) PredictProba(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, x := range X {
		if len(x) != len(m.Coef) {
			return nil, fmt.Errorf("row %d: %d features, model expects %d", i, len(x), len(m.Coef))
		}
		z := m.Intercept
		for j, v := range x {
			z += m.Coef[j] * v
		}
		p := sigmoid(z)
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func predictEnsemble(e *Ensemble, X [][]float64, link func([]float64) []float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, x := range X {
		if len(x) != e.NumFeatures {
			return nil, fmt.Errorf("row %d: %d features, model expects %d", i, len(x), e.NumFeatures)
		}
		raw := e.Raw(x)
		if link != nil {
			raw = link(raw)
		}
		out[i] = raw
	}
	return out, nil
}

func checkClasses(classes []int64) error {
	if len(classes) < 2 {
		return fmt.Errorf("need at least two classes, got %d", len(classes))
	}
	return nil
}

func decodeDecisionTree(params json.RawMessage) (any, error) {
	var m DecisionTree
	if err := strictUnmarshal(params, &m); err != nil {
		return nil, err
	}
	if err := checkClasses(m.ClassLabels); err != nil {
		return nil, err
	}
	if m.Tree == nil {
		return nil, fmt.Errorf("missing tree")
	}
	if err := m.Tree.Validate(m.NFeatures, len(m.ClassLabels)); err != nil {
		return nil, err
	}
	m.Tree.normalizeLeaves()
	return &m, nil
}

func decodeRandomForest(params json.RawMessage) (any, error) {
	var m RandomForest
	if err := strictUnmarshal(params, &m); err != nil {
		return nil, err
	}
	if err := checkClasses(m.ClassLabels); err != nil {
		return nil, err
	}
	if len(m.Trees) == 0 {
		return nil, fmt.Errorf("forest has no trees")
	}
	for i, t := range m.Trees {
		if t == nil {
			return nil, fmt.Errorf("tree %d: missing", i)
		}
		if err := t.Validate(m.NFeatures, len(m.ClassLabels)); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		t.normalizeLeaves()
	}
	return &m, nil
}

func decodeGradientBoosting(params json.RawMessage) (any, error) {
	var m GradientBoosting
	if err := strictUnmarshal(params, &m); err != nil {
		return nil, err
	}
	if len(m.ClassLabels) != 2 {
		return nil, fmt.Errorf("gradient boosting supports binary classification only, got %d classes", len(m.ClassLabels))
	}
	if m.LearningRate <= 0 {
		return nil, fmt.Errorf("learning_rate must be positive")
	}
	for i, t := range m.Trees {
		if t == nil {
			return nil, fmt.Errorf("tree %d: missing", i)
		}
		if err := t.Validate(m.NFeatures, 1); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &m, nil
}

func decodeLogisticRegression(params json.RawMessage) (any, error) {
	var m LogisticRegression
	if err := strictUnmarshal(params, &m); err != nil {
		return nil, err
	}
	if len(m.ClassLabels) != 2 {
		return nil, fmt.Errorf("logistic regression supports binary classification only, got %d classes", len(m.ClassLabels))
	}
	if len(m.Coef) == 0 {
		return nil, fmt.Errorf("missing coef")
	}
	return &m, nil
}
