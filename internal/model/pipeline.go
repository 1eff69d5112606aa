// Package model decodes serialized churn pipelines and evaluates them: a
// preprocessing step that turns a table into a feature matrix, and a
// classifier that scores it.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/KaramelBytes/churnflow-cli/internal/dataset"
)

const (
	// ArtifactFormat identifies the serialized pipeline layout.
	ArtifactFormat = "churnflow.pipeline/v1"
	// PreprocessStep and ModelStep are the step names the explainability
	// stage looks up.
	PreprocessStep = "pre"
	ModelStep      = "model"
)

// Transformer turns a table into a numeric feature matrix.
type Transformer interface {
	Transform(t *dataset.Table) ([][]float64, error)
}

// FeatureNamer is implemented by transformers that can name their outputs.
type FeatureNamer interface {
	FeatureNames() ([]string, error)
}

// Classifier scores a feature matrix. Column k of PredictProba matches
// Classes()[k].
type Classifier interface {
	PredictProba(X [][]float64) ([][]float64, error)
	Classes() []int64
}

// TreeModel is implemented by classifiers backed by decision trees.
type TreeModel interface {
	Ensemble() *Ensemble
}

// StepError reports a structurally unusable pipeline step.
type StepError struct {
	Step   string
	Kind   string
	Reason string
	Err    error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("pipeline step %q", e.Step)
	if e.Kind != "" {
		msg += fmt.Sprintf(" (%s)", e.Kind)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// Artifact is the on-disk form of a pipeline.
type Artifact struct {
	Format string         `json:"format"`
	Steps  []ArtifactStep `json:"steps"`
}

// ArtifactStep is one named step with kind-specific parameters.
type ArtifactStep struct {
	Name   string          `json:"name"`
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// StepDecoder builds a step value from its parameters.
type StepDecoder func(params json.RawMessage) (any, error)

var kinds = map[string]StepDecoder{}

// RegisterKind makes a step kind decodable.
func RegisterKind(kind string, d StepDecoder) { kinds[kind] = d }

// Kinds lists the registered step kinds, sorted.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterKind("column_transformer", decodeColumnTransformer)
	RegisterKind("decision_tree", decodeDecisionTree)
	RegisterKind("random_forest", decodeRandomForest)
	RegisterKind("gradient_boosting", decodeGradientBoosting)
	RegisterKind("logistic_regression", decodeLogisticRegression)
}

// Step is a decoded pipeline step.
type Step struct {
	Name  string
	Kind  string
	Value any
}

// Pipeline is an ordered list of named steps with the two roles resolved.
type Pipeline struct {
	Steps      []Step
	Preprocess Transformer
	Classifier Classifier
}

// Named returns the value of the named step.
func (p *Pipeline) Named(name string) (any, bool) {
	for _, s := range p.Steps {
		if s.Name == name {
			return s.Value, true
		}
	}
	return nil, false
}

// PredictProba transforms t and scores it.
func (p *Pipeline) PredictProba(t *dataset.Table) ([][]float64, error) {
	X, err := p.Preprocess.Transform(t)
	if err != nil {
		return nil, err
	}
	return p.Classifier.PredictProba(X)
}

// Decode reads a JSON artifact and builds the pipeline.
func Decode(r io.Reader) (*Pipeline, error) {
	var a Artifact
	if err := strictDecode(r, &a); err != nil {
		return nil, fmt.Errorf("decode pipeline artifact: %w", err)
	}
	return Build(&a)
}

// Build decodes every step and resolves the preprocessing and model roles.
func Build(a *Artifact) (*Pipeline, error) {
	if a.Format != ArtifactFormat {
		return nil, fmt.Errorf("unsupported artifact format %q, want %q", a.Format, ArtifactFormat)
	}
	p := &Pipeline{}
	names := make([]string, 0, len(a.Steps))
	for _, s := range a.Steps {
		if s.Name == "" {
			return nil, &StepError{Step: s.Name, Kind: s.Kind, Reason: "step has no name"}
		}
		if _, dup := p.Named(s.Name); dup {
			return nil, &StepError{Step: s.Name, Kind: s.Kind, Reason: "duplicate step name"}
		}
		dec, ok := kinds[s.Kind]
		if !ok {
			return nil, &StepError{Step: s.Name, Kind: s.Kind,
				Reason: fmt.Sprintf("unknown kind (known: %s)", strings.Join(Kinds(), ", "))}
		}
		v, err := dec(s.Params)
		if err != nil {
			return nil, &StepError{Step: s.Name, Kind: s.Kind, Reason: "invalid params", Err: err}
		}
		p.Steps = append(p.Steps, Step{Name: s.Name, Kind: s.Kind, Value: v})
		names = append(names, s.Name)
	}

	missing := func(step string) error {
		return &StepError{Step: step, Reason: fmt.Sprintf("not found (steps: %s)", strings.Join(names, ", "))}
	}
	pre, ok := p.Named(PreprocessStep)
	if !ok {
		return nil, missing(PreprocessStep)
	}
	if p.Preprocess, ok = pre.(Transformer); !ok {
		return nil, &StepError{Step: PreprocessStep, Kind: kindOf(p, PreprocessStep), Reason: "cannot transform features"}
	}
	clf, ok := p.Named(ModelStep)
	if !ok {
		return nil, missing(ModelStep)
	}
	if p.Classifier, ok = clf.(Classifier); !ok {
		return nil, &StepError{Step: ModelStep, Kind: kindOf(p, ModelStep), Reason: "cannot predict"}
	}
	return p, nil
}

func kindOf(p *Pipeline, name string) string {
	for _, s := range p.Steps {
		if s.Name == name {
			return s.Kind
		}
	}
	return ""
}

func strictUnmarshal(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("missing params")
	}
	return strictDecode(bytes.NewReader(data), v)
}

func strictDecode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
