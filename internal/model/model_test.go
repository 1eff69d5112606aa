package model_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/churnflow-cli/internal/dataset"
	"github.com/KaramelBytes/churnflow-cli/internal/model"
	"github.com/KaramelBytes/churnflow-cli/internal/testutil"
)

func features(t *testing.T) *dataset.Table {
	return testutil.CleanTable(t).Without("churn")
}

func TestColumnTransformerTransform(t *testing.T) {
	ct := testutil.ChurnTransformer()
	X, err := ct.Transform(features(t))
	require.NoError(t, err)
	require.Len(t, X, 6)
	assert.Equal(t, []float64{-1, 1, 0}, X[0])
	assert.InDelta(t, 1.4, X[1][0], 1e-12)
	assert.Equal(t, []float64{0, 1}, X[1][1:])
	assert.Equal(t, []float64{0, 0, 1}, X[5], "missing age is filled with the mean")

	names, err := ct.FeatureNames()
	require.NoError(t, err)
	assert.Equal(t, testutil.ChurnFeatureNames, names)
}

func TestColumnTransformerRemainderAndNames(t *testing.T) {
	ct := &model.ColumnTransformer{
		Parts: []model.TransformerPart{
			{Name: "num", Kind: model.PartPassthrough, Columns: []string{"age"}},
		},
		Remainder:    "passthrough",
		InputColumns: []string{"customer_id", "age", "plan"},
	}
	tbl := features(t)
	X, err := ct.Transform(tbl)
	require.NoError(t, err)
	assert.Equal(t, 3, len(X[0]))
	assert.Equal(t, []float64{30, 1}, X[0][:2])
	assert.True(t, math.IsNaN(X[0][2]), "text remainder is not numeric")

	names, err := ct.FeatureNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"num__age", "remainder__customer_id", "remainder__plan"}, names)

	terse := false
	ct.VerboseNames = &terse
	names, err = ct.FeatureNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "customer_id", "plan"}, names)

	ct.InputColumns = nil
	_, err = ct.FeatureNames()
	assert.ErrorIs(t, err, model.ErrNoFeatureNames)
}

func TestColumnTransformerFunctionHasNoNames(t *testing.T) {
	ct := &model.ColumnTransformer{Parts: []model.TransformerPart{
		{Name: "log", Kind: model.PartFunction, Func: "log1p", Columns: []string{"age"}},
	}}
	X, err := ct.Transform(features(t))
	require.NoError(t, err)
	assert.InDelta(t, math.Log1p(30), X[0][0], 1e-12)
	_, err = ct.FeatureNames()
	assert.ErrorIs(t, err, model.ErrNoFeatureNames)
}

func TestColumnTransformerUnknownCategory(t *testing.T) {
	ct := testutil.ChurnTransformer()
	ct.Parts[1].Categories = [][]string{{"basic"}}
	ct.Parts[1].HandleUnknown = "error"
	_, err := ct.Transform(features(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown category "pro"`)

	ct.Parts[0].Columns = []string{"tenure"}
	_, err = ct.Transform(features(t))
	assert.ErrorContains(t, err, `column "tenure" not found`)
}

func TestTreeMissingValueFollowsLargerCover(t *testing.T) {
	tree := testutil.DepthTwoTree()
	assert.Equal(t, 2, tree.Leaf([]float64{math.NaN(), 0, math.NaN()}))
	assert.Equal(t, 4, tree.Leaf([]float64{0, 0, 1}))
	assert.Equal(t, 2, tree.MaxDepth())
}

func TestDecodeForestPipeline(t *testing.T) {
	p, err := model.Decode(bytes.NewReader(testutil.ForestPipeline(t)))
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, p.Classifier.Classes())
	_, ok := p.Preprocess.(model.FeatureNamer)
	assert.True(t, ok)

	proba, err := p.PredictProba(features(t))
	require.NoError(t, err)
	assert.InDelta(t, (0.2+1.0/7)/2, proba[0][1], 1e-12)
	assert.InDelta(t, (0.7+0.875)/2, proba[1][1], 1e-12)
	for _, row := range proba {
		assert.InDelta(t, 1, row[0]+row[1], 1e-12)
	}

	tm, ok := p.Classifier.(model.TreeModel)
	require.True(t, ok)
	e := tm.Ensemble()
	assert.Equal(t, 2, e.NumOutputs)
	assert.Equal(t, 0.5, e.Weight)
}

func TestDecodeBoostingPipeline(t *testing.T) {
	p, err := model.Decode(bytes.NewReader(testutil.ChurnPipeline(t, "gradient_boosting", testutil.BoostingParams())))
	require.NoError(t, err)
	proba, err := p.PredictProba(features(t))
	require.NoError(t, err)
	want := 1 / (1 + math.Exp(0.65))
	assert.InDelta(t, want, proba[0][1], 1e-12)
	assert.InDelta(t, 1-want, proba[0][0], 1e-12)

	e := p.Classifier.(model.TreeModel).Ensemble()
	assert.Equal(t, 1, e.NumOutputs)
	assert.InDelta(t, -0.65, e.Raw([]float64{-1, 1, 0})[0], 1e-12)
}

func TestDecodeLogisticPipeline(t *testing.T) {
	p, err := model.Decode(bytes.NewReader(testutil.ChurnPipeline(t, "logistic_regression", testutil.LogisticParams())))
	require.NoError(t, err)
	_, isTree := p.Classifier.(model.TreeModel)
	assert.False(t, isTree)
	proba, err := p.PredictProba(features(t))
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-(0.1-0.8-0.3))), proba[0][1], 1e-12)
}

func TestDecodeStructuralErrors(t *testing.T) {
	pre := testutil.StepSpec{Name: "pre", Kind: "column_transformer", Params: testutil.ChurnTransformer()}
	forest := testutil.StepSpec{Name: "model", Kind: "random_forest", Params: testutil.ForestParams()}
	broken := testutil.ForestParams()
	cyclic := testutil.DepthTwoTree()
	cyclic.ChildrenLeft[1] = 0
	broken["trees"] = []*model.Tree{cyclic}

	cases := []struct {
		name  string
		steps []testutil.StepSpec
		step  string
	}{
		{"missing pre", []testutil.StepSpec{forest}, "pre"},
		{"missing model", []testutil.StepSpec{pre}, "model"},
		{"pre cannot transform", []testutil.StepSpec{{Name: "pre", Kind: "random_forest", Params: testutil.ForestParams()}, forest}, "pre"},
		{"model cannot predict", []testutil.StepSpec{pre, {Name: "model", Kind: "column_transformer", Params: testutil.ChurnTransformer()}}, "model"},
		{"unknown kind", []testutil.StepSpec{pre, {Name: "model", Kind: "svm", Params: map[string]any{}}}, "model"},
		{"invalid tree", []testutil.StepSpec{pre, {Name: "model", Kind: "random_forest", Params: broken}}, "model"},
		{"duplicate name", []testutil.StepSpec{pre, pre, forest}, "pre"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := model.Decode(bytes.NewReader(testutil.Artifact(t, tc.steps...)))
			var serr *model.StepError
			require.True(t, errors.As(err, &serr), "got %v", err)
			assert.Equal(t, tc.step, serr.Step)
		})
	}
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	_, err := model.Decode(bytes.NewReader([]byte(`{"format":"pickle","steps":[]}`)))
	assert.ErrorContains(t, err, "unsupported artifact format")

	_, err = model.Decode(bytes.NewReader([]byte(`{"format":`)))
	assert.ErrorContains(t, err, "decode pipeline artifact")
}

func TestKindsRegistered(t *testing.T) {
	assert.Equal(t, []string{
		"column_transformer", "decision_tree", "gradient_boosting", "logistic_regression", "random_forest",
	}, model.Kinds())
}
