package profile

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/churnflow-cli/internal/dataset"
	"github.com/KaramelBytes/churnflow-cli/internal/testutil"
)

func columnByName(t *testing.T, r *Report, name string) ColumnSummary {
	t.Helper()
	for _, c := range r.Cols {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("column %q not in report", name)
	return ColumnSummary{}
}

func TestBuildChurnTable(t *testing.T) {
	rep, err := Build("churn.parquet", testutil.CleanTable(t), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 6, rep.Rows)
	assert.InDelta(t, 0.5, rep.ChurnRate, 1e-12)

	age := columnByName(t, rep, "age")
	assert.Equal(t, "numeric", age.Kind)
	assert.Equal(t, 5, age.NonNull)
	assert.Equal(t, 1, age.Missing)
	assert.Equal(t, 25.0, age.Min)
	assert.Equal(t, 51.0, age.Max)
	assert.InDelta(t, 37.2, age.Mean, 1e-9)

	plan := columnByName(t, rep, "plan")
	assert.Equal(t, "categorical", plan.Kind)
	assert.Equal(t, 2, plan.Unique)
	require.Len(t, plan.TopValues, 2)
	// Equal counts sort by value.
	assert.Equal(t, "basic", plan.TopValues[0].Value)

	require.Len(t, rep.Groups, 2)
	assert.Equal(t, GroupResult{Column: "plan", Value: "basic", Size: 3, ChurnRate: 2.0 / 3}, rep.Groups[0])
	assert.InDelta(t, 1.0/3, rep.Groups[1].ChurnRate, 1e-12)

	var ageCorr *LabelCorr
	for i := range rep.Corr {
		if rep.Corr[i].Column == "age" {
			ageCorr = &rep.Corr[i]
		}
	}
	require.NotNil(t, ageCorr)
	assert.Equal(t, 5, ageCorr.N)
	assert.Less(t, ageCorr.R, 0.0)
	for i := 1; i < len(rep.Corr); i++ {
		assert.GreaterOrEqual(t, math.Abs(rep.Corr[i-1].R), math.Abs(rep.Corr[i].R))
	}
	assert.Len(t, rep.Samples, 5)
}

func TestBuildWithoutLabel(t *testing.T) {
	tbl, err := dataset.FromRecords([]string{"plan", "notes"}, [][]string{{"basic", ""}, {"pro", ""}})
	require.NoError(t, err)

	rep, err := Build("", tbl, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(rep.ChurnRate))
	assert.Empty(t, rep.Groups)
	assert.Empty(t, rep.Corr)
	require.Len(t, rep.Warnings, 2)
	assert.Contains(t, rep.Warnings[0], `label column "churn" not present`)
	assert.Contains(t, rep.Warnings[1], `"notes" is entirely missing`)
}

func TestBuildSkipsWideCategoricals(t *testing.T) {
	tbl, err := dataset.FromRecords([]string{"id", "churn"}, [][]string{{"a", "1"}, {"b", "0"}, {"c", "1"}})
	require.NoError(t, err)
	opt := DefaultOptions()
	opt.MaxGroupValues = 2

	rep, err := Build("", tbl, opt)
	require.NoError(t, err)
	assert.Empty(t, rep.Groups)
}

func TestMarkdown(t *testing.T) {
	rep, err := Build("churn.parquet", testutil.CleanTable(t), DefaultOptions())
	require.NoError(t, err)
	md := rep.Markdown()

	for _, want := range []string{
		"[DATASET PROFILE]",
		"File: churn.parquet",
		"Churn rate: 50.0%",
		"- age: numeric (non-null 5, missing 16.7%): min 25, max 51",
		"- plan: categorical (non-null 6, missing 0.0%): top basic(3), pro(3)",
		"[CHURN RATE BY CATEGORY]",
		"  • basic (n=3): 66.7%",
		"[CORRELATION WITH LABEL]",
		"| customer_id | age | plan | churn |",
	} {
		assert.Contains(t, md, want)
	}
	assert.False(t, strings.Contains(md, "[NOTES]"))
}

func TestTruncateKeepsRunes(t *testing.T) {
	long := strings.Repeat("é", 100)
	got := truncate(long, 80)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 80, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "short", truncate("short", 80))

	tbl, err := dataset.FromRecords([]string{"note"}, [][]string{{"a" + long}})
	require.NoError(t, err)
	rep, err := Build("", tbl, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(rep.Markdown()))
}

func TestSafeVal(t *testing.T) {
	assert.Equal(t, "a/b c", safeVal("a|b\nc"))
	assert.Equal(t, "(unnamed)", safeName("  "))
}
