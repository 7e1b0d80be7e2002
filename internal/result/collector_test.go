package result_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/byase/byase-gui/internal/model"
	"github.com/byase/byase-gui/internal/result"

	"github.com/stretchr/testify/require"
)

// tree writes files (slash separated name -> content) below a new temp dir.
func tree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestCollect(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		tool     model.Tool
		given    map[string]string
		then     []string
	}{
		{
			scenario: "gen-task",
			tool:     model.ToolGenTask,
			given:    map[string]string{"task.db": "SQLite format 3\x00", "log.txt": "x"},
			then:     []string{"task.db"},
		},
		{
			scenario: "inference",
			tool:     model.ToolInference,
			given: map[string]string{
				"results/0/0_ENSG1.pickle": "data",
				"results/1/1_ENSG2.pickle": "data",
			},
			then: []string{"results/0/0_ENSG1.pickle", "results/1/1_ENSG2.pickle"},
		},
		{
			scenario: "stats",
			tool:     model.ToolStats,
			given: map[string]string{
				"stats/gene_level.csv":       "gene_id,mean,sd\nENSG1,0.5,0.1\n",
				"stats/isoform_level_a.csv":  "isoform_id,mean\n",
				"stats/other/unrelated.json": "{}",
			},
			then: []string{"stats/gene_level.csv", "stats/isoform_level_a.csv"},
		},
		{
			scenario: "plot",
			tool:     model.ToolPlot,
			given:    map[string]string{"plot/12_ENSG1/gene.html": "\n<!DOCTYPE html><html></html>"},
			then:     []string{"plot/12_ENSG1/gene.html"},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			dir := tree(t, tt.given)
			set, err := result.NewCollector(0).Collect(t.Context(), model.JobConfig{Tool: tt.tool, OutDir: dir})
			require.NoError(t, err)
			require.Equal(t, tt.tool, set.Tool)
			var expected []string
			for _, p := range tt.then {
				expected = append(expected, filepath.Join(dir, filepath.FromSlash(p)))
			}
			require.ElementsMatch(t, expected, set.Paths())
			for _, a := range set.Artifacts {
				for _, f := range a.Files {
					require.Positive(t, f.Size)
					require.True(t, filepath.IsAbs(f.Path))
				}
			}
		})
	}
}

func TestCollect_Fail(t *testing.T) {
	t.Parallel()
	type then struct {
		err    error
		reason string
	}
	var testCases = []struct {
		scenario string
		given    model.JobConfig
		files    map[string]string
		then     then
	}{
		{
			scenario: "nothing written",
			given:    model.JobConfig{Tool: model.ToolGenTask},
			then:     then{result.ErrMissingArtifact, "no file matches"},
		},
		{
			scenario: "empty file",
			given:    model.JobConfig{Tool: model.ToolGenTask},
			files:    map[string]string{"task.db": ""},
			then:     then{result.ErrCorruptArtifact, "empty file"},
		},
		{
			scenario: "csv without header",
			given:    model.JobConfig{Tool: model.ToolStats},
			files: map[string]string{
				"stats/gene_level.csv":    "\n",
				"stats/isoform_level.csv": "isoform_id,mean\n",
			},
			then: then{result.ErrCorruptArtifact, ""},
		},
		{
			scenario: "csv with broken quoting",
			given:    model.JobConfig{Tool: model.ToolStats},
			files: map[string]string{
				"stats/gene_level.csv":    "\"gene_id,mean\n",
				"stats/isoform_level.csv": "isoform_id,mean\n",
			},
			then: then{result.ErrCorruptArtifact, "unreadable csv header"},
		},
		{
			scenario: "html that is not markup",
			given:    model.JobConfig{Tool: model.ToolPlot},
			files:    map[string]string{"plot/a.html": "Traceback (most recent call last)"},
			then:     then{result.ErrCorruptArtifact, "not an html document"},
		},
		{
			scenario: "declared pattern escapes the output directory",
			given: model.JobConfig{Tool: model.ToolStats, Artifacts: []model.Artifact{
				{Name: "escape", Pattern: "../*.csv", Kind: model.ArtifactCSV},
			}},
			then: then{result.ErrMissingArtifact, "invalid pattern"},
		},
		{
			scenario: "declared csv with a wrong extension",
			given: model.JobConfig{Tool: model.ToolStats, Artifacts: []model.Artifact{
				{Name: "table", Pattern: "table.*", Kind: model.ArtifactCSV},
			}},
			files: map[string]string{"table.tsv": "a\tb\n"},
			then:  then{result.ErrCorruptArtifact, "expected .csv extension"},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			cfg := tt.given
			cfg.OutDir = tree(t, tt.files)
			_, err := result.NewCollector(2).Collect(t.Context(), cfg)
			require.ErrorIs(t, err, tt.then.err)
			var artErr *result.ArtifactError
			require.ErrorAs(t, err, &artErr)
			require.Contains(t, artErr.Reason, tt.then.reason)
		})
	}
}

func TestCollect_Aggregates(t *testing.T) {
	t.Parallel()
	dir := tree(t, map[string]string{"stats/gene_level.csv": ""})
	_, err := result.NewCollector(0).Collect(t.Context(), model.JobConfig{Tool: model.ToolStats, OutDir: dir})
	require.ErrorIs(t, err, result.ErrCorruptArtifact)
	require.ErrorIs(t, err, result.ErrMissingArtifact)

	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	require.Len(t, joined.Unwrap(), 2)

	// artifacts that passed are still reported
	dir = tree(t, map[string]string{"stats/gene_level.csv": "gene_id,mean\n"})
	set, err := result.NewCollector(0).Collect(t.Context(), model.JobConfig{Tool: model.ToolStats, OutDir: dir})
	require.ErrorIs(t, err, result.ErrMissingArtifact)
	require.NotErrorIs(t, err, result.ErrCorruptArtifact)
	_, ok := set.Artifact("gene-level")
	require.True(t, ok)
	_, ok = set.Artifact("isoform-level")
	require.False(t, ok)
}

func TestCollect_Optional(t *testing.T) {
	t.Parallel()
	dir := tree(t, map[string]string{"report.html": "<html></html>"})
	cfg := model.JobConfig{Tool: model.ToolPlot, OutDir: dir, Artifacts: []model.Artifact{
		{Name: "report", Pattern: "report.html", Kind: model.ArtifactHTML},
		{Name: "extra", Pattern: "extra/*.png", Optional: true},
	}}
	set, err := result.NewCollector(0).Collect(t.Context(), cfg)
	require.NoError(t, err)
	require.Len(t, set.Artifacts, 1)
	a, ok := set.Artifact("report")
	require.True(t, ok)
	require.Equal(t, model.ArtifactHTML, a.Kind)
	_, ok = set.Artifact("extra")
	require.False(t, ok)
}

func TestCollect_MissingDir(t *testing.T) {
	t.Parallel()
	cfg := model.JobConfig{Tool: model.ToolGenTask, OutDir: filepath.Join(t.TempDir(), "gone")}
	_, err := result.NewCollector(0).Collect(t.Context(), cfg)
	require.ErrorIs(t, err, result.ErrMissingArtifact)
}

func TestCollect_Symlink(t *testing.T) {
	t.Parallel()
	outside := tree(t, map[string]string{"task.db": "data"})
	dir := t.TempDir()
	if err := os.Symlink(filepath.Join(outside, "task.db"), filepath.Join(dir, "task.db")); err != nil {
		t.Skipf("skipped, symlinks not supported: %v", err)
	}
	_, err := result.NewCollector(0).Collect(t.Context(), model.JobConfig{Tool: model.ToolGenTask, OutDir: dir})
	require.Error(t, err)
}

func TestCollect_Canceled(t *testing.T) {
	t.Parallel()
	dir := tree(t, map[string]string{"task.db": "data"})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := result.NewCollector(0).Collect(ctx, model.JobConfig{Tool: model.ToolGenTask, OutDir: dir})
	require.ErrorIs(t, err, context.Canceled)
}
