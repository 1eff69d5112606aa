// Package registry resolves model references such as runs:/<id>/model to
// a serialized pipeline and loads it.
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/churnflow-cli/internal/model"
)

// ArtifactFile is the file a model directory is expected to contain.
const ArtifactFile = "pipeline.json"

// maxArtifactBytes caps downloads.
const maxArtifactBytes = 64 << 20

// LoadError wraps any failure to resolve, fetch or decode a model reference.
type LoadError struct {
	URI string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.URI, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// FetchError reports a non-2xx response from a remote artifact store.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Location is where a reference points: a local file or a remote URL.
type Location struct {
	Path string
	URL  string
}

func (l Location) String() string {
	if l.URL != "" {
		return l.URL
	}
	return l.Path
}

// Resolve maps a model reference to a Location. Supported forms:
//
//	runs:/<run_id>/<artifact_path>   <registry>/<experiment>/<run_id>/artifacts/<artifact_path>
//	models:/<name>/<version|latest>  <registry>/models/<name>/<version>
//	file:///abs/path, plain paths
//	http://..., https://...
//
// Local directories resolve to the pipeline.json they contain.
func Resolve(uri string, s Settings) (Location, error) {
	var path string
	switch {
	case strings.HasPrefix(uri, "runs:/"):
		p, err := resolveRun(strings.TrimPrefix(uri, "runs:/"), s.RegistryDir)
		if err != nil {
			return Location{}, err
		}
		path = p
	case strings.HasPrefix(uri, "models:/"):
		p, err := resolveModel(strings.TrimPrefix(uri, "models:/"), s.RegistryDir)
		if err != nil {
			return Location{}, err
		}
		path = p
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		if _, err := url.Parse(uri); err != nil {
			return Location{}, fmt.Errorf("invalid url: %w", err)
		}
		return Location{URL: uri}, nil
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return Location{}, fmt.Errorf("invalid file url: %w", err)
		}
		path = filepath.FromSlash(u.Path)
	case strings.Contains(uri, ":/") && !filepath.IsAbs(uri) && filepath.VolumeName(uri) == "":
		scheme, _, _ := strings.Cut(uri, ":")
		return Location{}, fmt.Errorf("unsupported scheme %q", scheme)
	default:
		path = uri
	}
	info, err := os.Stat(path)
	if err != nil {
		return Location{}, fmt.Errorf("artifact not found: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, ArtifactFile)
		if _, err := os.Stat(path); err != nil {
			return Location{}, fmt.Errorf("model directory has no %s: %w", ArtifactFile, err)
		}
	}
	return Location{Path: path}, nil
}

func splitRef(ref, form string) (string, string, error) {
	head, tail, ok := strings.Cut(strings.TrimPrefix(ref, "/"), "/")
	if !ok || head == "" || tail == "" {
		return "", "", fmt.Errorf("malformed reference, want %s", form)
	}
	if strings.ContainsAny(head, `*?[\`) || head == "." || head == ".." || strings.Contains(tail, "..") {
		return "", "", fmt.Errorf("malformed reference, want %s", form)
	}
	return head, tail, nil
}

func resolveRun(ref, dir string) (string, error) {
	runID, artifact, err := splitRef(ref, "runs:/<run_id>/<artifact_path>")
	if err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*", runID, "artifacts", filepath.FromSlash(artifact)))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("run %s has no artifact %q under %s", runID, artifact, dir)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("run %s found in %d experiments under %s", runID, len(matches), dir)
	}
}

func resolveModel(ref, dir string) (string, error) {
	name, version, err := splitRef(ref, "models:/<name>/<version>")
	if err != nil {
		return "", err
	}
	base := filepath.Join(dir, "models", name)
	if version != "latest" {
		return filepath.Join(base, version), nil
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("registered model %s: %w", name, err)
	}
	var versions []int
	for _, e := range entries {
		if v, err := strconv.Atoi(e.Name()); err == nil && e.IsDir() {
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("registered model %s has no versions", name)
	}
	sort.Ints(versions)
	return filepath.Join(base, strconv.Itoa(versions[len(versions)-1])), nil
}

// Load resolves uri and decodes the pipeline it points to. Every failure is
// a *LoadError; structural problems keep their *model.StepError.
func Load(ctx context.Context, uri string, s Settings) (*model.Pipeline, error) {
	p, err := load(ctx, uri, s)
	if err != nil {
		return nil, &LoadError{URI: uri, Err: err}
	}
	return p, nil
}

func load(ctx context.Context, uri string, s Settings) (*model.Pipeline, error) {
	loc, err := Resolve(uri, s)
	if err != nil {
		return nil, err
	}
	if loc.URL != "" {
		return fetch(ctx, loc.URL, s.FetchTimeout)
	}
	f, err := os.Open(loc.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return model.Decode(f)
}

func fetch(ctx context.Context, u string, timeout time.Duration) (*model.Pipeline, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{URL: u, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return model.Decode(io.LimitReader(resp.Body, maxArtifactBytes))
}
