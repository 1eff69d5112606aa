// Package testutil holds fixtures shared by package tests: raw CSV inputs,
// cleaned tables, and small serialized pipelines with known structure.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/churnflow-cli/internal/dataset"
	"github.com/KaramelBytes/churnflow-cli/internal/model"
)

// RawCSV is a small raw export with one duplicate row.
const RawCSV = "customer_id,age,plan,Target_Churn\n" +
	"1,30,basic,Yes\n" +
	"2,42,pro,No\n" +
	"3,25,basic,yes\n" +
	"4,51,pro,No\n" +
	"4,51,pro,No\n" +
	"5,38,basic,no\n"

// ChurnFeatureNames are the output names of ChurnTransformer.
var ChurnFeatureNames = []string{"num__age", "cat__plan_basic", "cat__plan_pro"}

// WriteFile writes data to dir/name, creating dir, and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// CleanTable returns a preprocessed churn table.
func CleanTable(t testing.TB) *dataset.Table {
	t.Helper()
	tbl, err := dataset.FromRecords(
		[]string{"customer_id", "age", "plan", "churn"},
		[][]string{
			{"1", "30", "basic", "1"},
			{"2", "42", "pro", "0"},
			{"3", "25", "basic", "1"},
			{"4", "51", "pro", "0"},
			{"5", "38", "basic", "0"},
			{"6", "", "pro", "1"},
		},
	)
	if err != nil {
		t.Fatalf("build table: %v", err)
	}
	return tbl
}

// WriteCleanParquet writes CleanTable to path.
func WriteCleanParquet(t testing.TB, path string) {
	t.Helper()
	if err := dataset.WriteParquet(path, CleanTable(t)); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
}

// ChurnTransformer scales age and one-hot encodes plan; other columns are
// dropped.
func ChurnTransformer() *model.ColumnTransformer {
	return &model.ColumnTransformer{
		Parts: []model.TransformerPart{
			{Name: "num", Kind: model.PartStandardScaler, Columns: []string{"age"},
				Mean: []float64{35}, Scale: []float64{5}, Fill: []float64{35}},
			{Name: "cat", Kind: model.PartOneHot, Columns: []string{"plan"},
				Categories: [][]string{{"basic", "pro"}}, HandleUnknown: "ignore"},
		},
		Remainder: "drop",
	}
}

// Stump is a single split on feature f at thr with two leaves.
func Stump(f int, thr float64, left, right []float64, coverL, coverR float64) *model.Tree {
	root := make([]float64, len(left))
	for k := range root {
		root[k] = (left[k]*coverL + right[k]*coverR) / (coverL + coverR)
	}
	return &model.Tree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{f, -2, -2},
		Threshold:     []float64{thr, -2, -2},
		Cover:         []float64{coverL + coverR, coverL, coverR},
		Value:         [][]float64{root, left, right},
	}
}

// DepthTwoTree splits on plan_pro, then on age for basic-plan customers.
// Leaves hold class counts.
func DepthTwoTree() *model.Tree {
	return &model.Tree{
		ChildrenLeft:  []int{1, 2, -1, -1, -1},
		ChildrenRight: []int{4, 3, -1, -1, -1},
		Feature:       []int{2, 0, -2, -2, -2},
		Threshold:     []float64{0.5, 1.0, -2, -2, -2},
		Cover:         []float64{20, 12, 7, 5, 8},
		Value:         [][]float64{{9, 11}, {8, 4}, {6, 1}, {2, 3}, {1, 7}},
	}
}

// ForestParams returns random_forest params over the churn features.
func ForestParams() map[string]any {
	return map[string]any{
		"classes":    []int64{0, 1},
		"n_features": 3,
		"trees": []*model.Tree{
			Stump(0, 0, []float64{8, 2}, []float64{3, 7}, 10, 10),
			DepthTwoTree(),
		},
	}
}

// BoostingParams returns gradient_boosting params over the churn features.
func BoostingParams() map[string]any {
	return map[string]any{
		"classes":       []int64{0, 1},
		"n_features":    3,
		"init":          -0.2,
		"learning_rate": 0.5,
		"trees": []*model.Tree{
			Stump(0, 0, []float64{-0.5}, []float64{0.7}, 10, 10),
			Stump(1, 0.5, []float64{0.3}, []float64{-0.4}, 12, 8),
		},
	}
}

// LogisticParams returns logistic_regression params over the churn features.
func LogisticParams() map[string]any {
	return map[string]any{
		"classes":   []int64{0, 1},
		"coef":      []float64{0.8, -0.3, 0.4},
		"intercept": 0.1,
	}
}

// StepSpec is one step for Artifact.
type StepSpec struct {
	Name   string
	Kind   string
	Params any
}

// Artifact serializes steps as a pipeline artifact.
func Artifact(t testing.TB, steps ...StepSpec) []byte {
	t.Helper()
	a := model.Artifact{Format: model.ArtifactFormat}
	for _, s := range steps {
		raw, err := json.Marshal(s.Params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		a.Steps = append(a.Steps, model.ArtifactStep{Name: s.Name, Kind: s.Kind, Params: raw})
	}
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	return b
}

// ChurnPipeline is a serialized pre+model pipeline using the given model
// kind and params.
func ChurnPipeline(t testing.TB, kind string, params any) []byte {
	t.Helper()
	return Artifact(t,
		StepSpec{Name: model.PreprocessStep, Kind: "column_transformer", Params: ChurnTransformer()},
		StepSpec{Name: model.ModelStep, Kind: kind, Params: params},
	)
}

// ForestPipeline is ChurnPipeline with a random forest.
func ForestPipeline(t testing.TB) []byte {
	t.Helper()
	return ChurnPipeline(t, "random_forest", ForestParams())
}
