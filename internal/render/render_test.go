package render

import (
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() ([]string, [][]float64, [][]float64) {
	names := []string{"num__age", "cat__plan_basic", "cat__plan_pro"}
	var values, feats [][]float64
	for i := 0; i < 12; i++ {
		x := float64(i - 6)
		values = append(values, []float64{0.05 * x, 0.01 * float64(i%2), -0.2 + 0.01*x})
		feats = append(feats, []float64{x, float64(i % 2), float64(1 - i%2)})
	}
	feats[3][0] = math.NaN()
	return names, values, feats
}

func pngSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestRankOrdersByMeanAbs(t *testing.T) {
	names, values, _ := sample()
	r := Rank(names, values)
	require.Len(t, r, 3)
	assert.Equal(t, []string{"cat__plan_pro", "num__age", "cat__plan_basic"},
		[]string{r[0].Name, r[1].Name, r[2].Name})
	assert.Equal(t, 2, r[0].Index)

	shown := top(r, 2)
	assert.Equal(t, "num__age", shown[0].Name, "least important of the shown features is drawn first")
	assert.Equal(t, "cat__plan_pro", shown[1].Name)
}

func TestSummaryAndBeeswarmPNG(t *testing.T) {
	names, values, feats := sample()
	dir := filepath.Join(t.TempDir(), "reports")
	opt := DefaultOptions()

	summary := filepath.Join(dir, "shap_summary.png")
	require.NoError(t, Summary(summary, names, values, opt))
	w, h := pngSize(t, summary)
	assert.Equal(t, 1600, w)
	assert.Equal(t, 600, h)

	bee := filepath.Join(dir, "shap_beeswarm.png")
	require.NoError(t, Beeswarm(bee, names, values, feats, opt))
	w, _ = pngSize(t, bee)
	assert.Equal(t, 1600, w)

	require.NoError(t, Summary(summary, names, values, Options{DPI: 100}))
	w, _ = pngSize(t, summary)
	assert.Equal(t, 800, w, "rerun overwrites with the new resolution")
}

func TestRenderRejectsBadShape(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, Summary(filepath.Join(dir, "a.png"), nil, nil, DefaultOptions()))
	assert.Error(t, Summary(filepath.Join(dir, "a.png"), []string{"a"}, [][]float64{{1, 2}}, DefaultOptions()))
	assert.Error(t, Beeswarm(filepath.Join(dir, "b.png"), []string{"a"}, [][]float64{{1}}, nil, DefaultOptions()))
}

func TestSwarmOffsetsStayInBand(t *testing.T) {
	phi := []float64{0, 0, 0, 0, 0, 1, 1, 0.5}
	off := swarmOffsets(phi)
	assert.Equal(t, 0.0, off[0])
	for _, o := range off {
		assert.LessOrEqual(t, math.Abs(o), beeRowWidth/2+1e-12)
	}
	assert.NotEqual(t, off[1], off[2])
	assert.Equal(t, off, swarmOffsets(phi), "layout is deterministic")
}

func TestColorScale(t *testing.T) {
	raw := []float64{math.NaN()}
	for i := 0; i <= 100; i++ {
		raw = append(raw, float64(i))
	}
	raw = append(raw, 1e6)
	shade := colorScale(raw)
	assert.True(t, math.IsNaN(shade(0)))
	assert.Equal(t, 0.0, shade(1))
	assert.Equal(t, 1.0, shade(len(raw)-1))
	mid := shade(51)
	assert.Greater(t, mid, 0.3)
	assert.Less(t, mid, 0.7)

	constant := colorScale([]float64{2, 2, 2})
	assert.Equal(t, 0.5, constant(1))
}
