package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/churnflow-cli/internal/model"
	"github.com/KaramelBytes/churnflow-cli/internal/testutil"
)

func TestLoadSettingsDefaults(t *testing.T) {
	for _, k := range []string{"MODEL_URI", "MODEL_REGISTRY_DIR", "MODEL_FETCH_TIMEOUT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "mlruns", s.RegistryDir)
	assert.Equal(t, 30*time.Second, s.FetchTimeout)
	assert.ErrorIs(t, s.RequireModelURI(), ErrMissingModelURI)
	assert.Contains(t, ErrMissingModelURI.Error(), "export MODEL_URI='runs:/<RUN_ID>/model'")

	t.Setenv("MODEL_URI", "runs:/abc/model")
	t.Setenv("MODEL_FETCH_TIMEOUT", "5s")
	s, err = LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "runs:/abc/model", s.ModelURI)
	assert.Equal(t, 5*time.Second, s.FetchTimeout)
	assert.NoError(t, s.RequireModelURI())

	t.Setenv("MODEL_FETCH_TIMEOUT", "soon")
	_, err = LoadSettings()
	assert.Error(t, err)
}

func newRegistry(t *testing.T) (string, []byte) {
	dir := t.TempDir()
	art := testutil.ForestPipeline(t)
	testutil.WriteFile(t, dir, filepath.Join("0", "run123", "artifacts", "model", ArtifactFile), art)
	testutil.WriteFile(t, dir, filepath.Join("models", "churn", "1", ArtifactFile), art)
	testutil.WriteFile(t, dir, filepath.Join("models", "churn", "3", ArtifactFile), art)
	return dir, art
}

func TestResolveForms(t *testing.T) {
	dir, _ := newRegistry(t)
	s := Settings{RegistryDir: dir}

	cases := []struct{ uri, want string }{
		{"runs:/run123/model", filepath.Join(dir, "0", "run123", "artifacts", "model", ArtifactFile)},
		{"models:/churn/1", filepath.Join(dir, "models", "churn", "1", ArtifactFile)},
		{"models:/churn/latest", filepath.Join(dir, "models", "churn", "3", ArtifactFile)},
		{filepath.Join(dir, "models", "churn", "1"), filepath.Join(dir, "models", "churn", "1", ArtifactFile)},
		{
			"file://" + filepath.ToSlash(filepath.Join(dir, "models", "churn", "3", ArtifactFile)),
			filepath.Join(dir, "models", "churn", "3", ArtifactFile),
		},
	}
	for _, tc := range cases {
		loc, err := Resolve(tc.uri, s)
		require.NoError(t, err, tc.uri)
		assert.Equal(t, tc.want, loc.Path, tc.uri)
	}

	loc, err := Resolve("https://example.test/pipeline.json", s)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/pipeline.json", loc.URL)
}

func TestResolveFailures(t *testing.T) {
	dir, _ := newRegistry(t)
	s := Settings{RegistryDir: dir}
	for _, uri := range []string{
		"runs:/missing/model",
		"runs:/run123",
		"runs:/*/model",
		"models:/churn/9",
		"models:/other/latest",
		"s3://bucket/model",
		"models:/../churn/1",
		"runs:/../model",
		"runs:/run123/../../x",
		filepath.Join(dir, "nope"),
		filepath.Join(dir, "models"),
	} {
		_, err := Resolve(uri, s)
		assert.Error(t, err, uri)
	}
}

func TestLoadLocal(t *testing.T) {
	dir, _ := newRegistry(t)
	p, err := Load(context.Background(), "runs:/run123/model", Settings{RegistryDir: dir})
	require.NoError(t, err)
	assert.Len(t, p.Steps, 2)
	assert.NotNil(t, p.Preprocess)
}

func TestLoadWrapsErrors(t *testing.T) {
	dir := t.TempDir()
	noPre := testutil.Artifact(t, testutil.StepSpec{Name: "model", Kind: "random_forest", Params: testutil.ForestParams()})
	path := testutil.WriteFile(t, dir, "bad.json", noPre)

	_, err := Load(context.Background(), path, Settings{})
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, path, lerr.URI)
	var serr *model.StepError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, model.PreprocessStep, serr.Step)

	_, err = Load(context.Background(), "runs:/nothing/model", Settings{RegistryDir: dir})
	require.ErrorAs(t, err, &lerr)
}

func TestLoadHTTP(t *testing.T) {
	art := testutil.ForestPipeline(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pipeline.json" {
			http.Error(w, "no such artifact", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(art)
	}))
	defer srv.Close()

	p, err := Load(context.Background(), srv.URL+"/pipeline.json", Settings{FetchTimeout: time.Second})
	require.NoError(t, err)
	assert.NotNil(t, p.Classifier)

	_, err = Load(context.Background(), srv.URL+"/missing.json", Settings{FetchTimeout: time.Second})
	var ferr *FetchError
	require.True(t, errors.As(err, &ferr), "got %v", err)
	assert.Equal(t, http.StatusNotFound, ferr.StatusCode)
	assert.Contains(t, ferr.Body, "no such artifact")
}

func TestLoadHTTPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := Load(context.Background(), srv.URL, Settings{FetchTimeout: 50 * time.Millisecond})
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Contains(t, err.Error(), "fetch artifact")
}
