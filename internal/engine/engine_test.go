package engine_test

import (
	"testing"
	"time"

	"github.com/byase/byase-gui/internal/engine"
	"github.com/byase/byase-gui/internal/model"

	"github.com/stretchr/testify/require"
)

func TestArgv(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    model.JobConfig
		then     []string
	}{
		{
			scenario: "gen-task",
			given: model.JobConfig{
				Tool: model.ToolGenTask, OutDir: "/o", GFF: "a.gff3", VCF: "a.vcf.gz",
				GeneFeature: "gene", Ploidy: 2, AddChromPrefix: true,
			},
			then: []string{"gen-task", "--gff", "a.gff3", "--vcf", "a.vcf.gz", "--gene-feature", "gene",
				"--ploidy", "2", "--add-chrom-prefix", "--out-dir", "/o"},
		},
		{
			scenario: "inference single end",
			given: model.JobConfig{
				Tool: model.ToolInference, OutDir: "/o", TaskDir: "/t",
				BAMs: []string{"1.bam", "2.bam"}, ReadLength: 100, Threads: 8,
			},
			then: []string{"inference", "--task-dir", "/t", "--bam", "1.bam", "--bam", "2.bam",
				"--read-length", "100", "--processes", "8", "--out-dir", "/o"},
		},
		{
			scenario: "inference paired end",
			given: model.JobConfig{
				Tool: model.ToolInference, OutDir: "/o", TaskDir: "/t", BAMs: []string{"1.bam"},
				ReadLength: 75, PairedEnd: true, InsertSizeMean: 250.5, InsertSizeStd: 30,
			},
			then: []string{"inference", "--task-dir", "/t", "--bam", "1.bam", "--read-length", "75",
				"--paired-end", "--insert-size-mean", "250.5", "--insert-size-std", "30", "--out-dir", "/o"},
		},
		{
			scenario: "resume",
			given:    model.JobConfig{Tool: model.ToolResume, OutDir: "/o", Threads: 2},
			then:     []string{"resume", "--processes", "2", "--out-dir", "/o"},
		},
		{
			scenario: "stats",
			given:    model.JobConfig{Tool: model.ToolStats, OutDir: "/o"},
			then:     []string{"stats", "--out-dir", "/o"},
		},
		{
			scenario: "plot",
			given:    model.JobConfig{Tool: model.ToolPlot, OutDir: "/o", TaskID: "12_ENSG1"},
			then:     []string{"plot", "--task-id", "12_ENSG1", "--out-dir", "/o"},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			args, err := engine.Argv(tt.given)
			require.NoError(t, err)
			require.Equal(t, tt.then, args)
		})
	}

	_, err := engine.Argv(model.JobConfig{Tool: "align"})
	require.ErrorIs(t, err, model.ErrUnknownTool)
}

func TestCommand(t *testing.T) {
	t.Parallel()
	e := engine.Engine{
		Path:        "/usr/bin/byase",
		Env:         map[string]string{"A": "engine", "B": "engine"},
		GracePeriod: time.Second,
		KillTimeout: 500 * time.Millisecond,
	}
	cfg := model.JobConfig{
		Tool:   model.ToolStats,
		OutDir: "/out",
		Env:    map[string]string{"B": "job"},
	}
	cmd, err := engine.Command(e, cfg)
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/byase", cmd.Path)
	require.Equal(t, "/out", cmd.Dir)
	require.Equal(t, time.Second, cmd.GracePeriod)
	require.Equal(t, 500*time.Millisecond, cmd.KillTimeout)

	n := len(cmd.Env)
	require.Equal(t, []string{"A=engine", "B=engine", "B=job"}, cmd.Env[n-3:])

	cfg.WorkDir = "/work"
	cmd, err = engine.Command(e, cfg)
	require.NoError(t, err)
	require.Equal(t, "/work", cmd.Dir)
}

func TestArtifacts(t *testing.T) {
	t.Parallel()
	stats := engine.Artifacts(model.JobConfig{Tool: model.ToolStats})
	require.Len(t, stats, 2)
	require.Equal(t, model.ArtifactCSV, stats[0].Kind)

	declared := []model.Artifact{{Name: "x", Pattern: "x.txt"}}
	got := engine.Artifacts(model.JobConfig{Tool: model.ToolStats, Artifacts: declared})
	require.Equal(t, declared, got)

	got[0].Name = "changed"
	require.Equal(t, "x", declared[0].Name)
}
