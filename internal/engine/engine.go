// Package engine maps a model.JobConfig onto the command line of the BYASE
// analysis executable and declares the artifacts each tool writes.
//
// Argument vector, one sub-command per tool:
//
//	byase gen-task  --gff F --vcf F [--gene-feature X] [--isoform-feature X]
//	                [--gene-name-attr X] [--isoform-name-attr X] [--ploidy N]
//	                [--sample S] [--add-chrom-prefix] --out-dir D
//	byase inference --task-dir D --bam F [--bam F ...] --read-length N
//	                [--paired-end --insert-size-mean M --insert-size-std S]
//	                [--processes N] --out-dir D
//	byase resume    [--processes N] --out-dir D
//	byase stats     --out-dir D
//	byase plot      --task-id ID --out-dir D
package engine

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/byase/byase-gui/internal/model"
	"github.com/byase/byase-gui/internal/process"
)

// Engine is the resolved invocation settings of the analysis executable.
type Engine struct {
	Path        string
	Env         map[string]string
	GracePeriod time.Duration
	KillTimeout time.Duration
}

// FromConfig builds an Engine from the session configuration.
func FromConfig(cfg model.Config) (Engine, error) {
	t, err := cfg.Timeouts()
	if err != nil {
		return Engine{}, err
	}
	return Engine{
		Path:        cfg.Engine.Path,
		Env:         maps.Clone(cfg.Engine.Env),
		GracePeriod: t.GracePeriod,
		KillTimeout: t.KillTimeout,
	}, nil
}

// Argv returns the engine arguments (without the executable) for cfg.
func Argv(cfg model.JobConfig) ([]string, error) {
	if !cfg.Tool.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownTool, cfg.Tool)
	}
	args := []string{string(cfg.Tool)}
	flag := func(name, value string) {
		if value != "" {
			args = append(args, "--"+name, value)
		}
	}
	intFlag := func(name string, value int) {
		if value > 0 {
			args = append(args, "--"+name, strconv.Itoa(value))
		}
	}

	switch cfg.Tool {
	case model.ToolGenTask:
		flag("gff", cfg.GFF)
		flag("vcf", cfg.VCF)
		flag("gene-feature", cfg.GeneFeature)
		flag("isoform-feature", cfg.IsoformFeature)
		flag("gene-name-attr", cfg.GeneNameAttr)
		flag("isoform-name-attr", cfg.IsoformNameAttr)
		intFlag("ploidy", cfg.Ploidy)
		flag("sample", cfg.Sample)
		if cfg.AddChromPrefix {
			args = append(args, "--add-chrom-prefix")
		}
	case model.ToolInference:
		flag("task-dir", cfg.TaskDir)
		for _, bam := range cfg.BAMs {
			flag("bam", bam)
		}
		intFlag("read-length", cfg.ReadLength)
		if cfg.PairedEnd {
			args = append(args, "--paired-end",
				"--insert-size-mean", strconv.FormatFloat(cfg.InsertSizeMean, 'g', -1, 64),
				"--insert-size-std", strconv.FormatFloat(cfg.InsertSizeStd, 'g', -1, 64),
			)
		}
		intFlag("processes", cfg.Threads)
	case model.ToolResume:
		intFlag("processes", cfg.Threads)
	case model.ToolPlot:
		flag("task-id", cfg.TaskID)
	}
	flag("out-dir", cfg.OutDir)
	return args, nil
}

// Command returns the process.Command running cfg with e. Environment is
// inherited from the current process, then overridden by e.Env and
// cfg.Env in that order.
func Command(e Engine, cfg model.JobConfig) (process.Command, error) {
	args, err := Argv(cfg)
	if err != nil {
		return process.Command{}, err
	}
	env := os.Environ()
	for _, m := range []map[string]string{e.Env, cfg.Env} {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			env = append(env, k+"="+m[k])
		}
	}
	dir := cfg.WorkDir
	if dir == "" {
		dir = cfg.OutDir
	}
	return process.Command{
		Path:        e.Path,
		Args:        args,
		Dir:         dir,
		Env:         env,
		GracePeriod: e.GracePeriod,
		KillTimeout: e.KillTimeout,
	}, nil
}

var defaults = map[model.Tool][]model.Artifact{
	model.ToolGenTask: {
		{Name: "annotation", Pattern: "task.db", Kind: model.ArtifactFile},
	},
	model.ToolInference: {
		{Name: "results", Pattern: "results/**/*", Kind: model.ArtifactFile},
	},
	model.ToolResume: {
		{Name: "results", Pattern: "results/**/*", Kind: model.ArtifactFile},
	},
	model.ToolStats: {
		{Name: "gene-level", Pattern: "stats/gene_level*.csv", Kind: model.ArtifactCSV},
		{Name: "isoform-level", Pattern: "stats/isoform_level*.csv", Kind: model.ArtifactCSV},
	},
	model.ToolPlot: {
		{Name: "plot", Pattern: "plot/**/*.html", Kind: model.ArtifactHTML},
	},
}

// Artifacts returns the artifacts cfg declares, or the tool defaults.
func Artifacts(cfg model.JobConfig) []model.Artifact {
	if len(cfg.Artifacts) > 0 {
		return slices.Clone(cfg.Artifacts)
	}
	return slices.Clone(defaults[cfg.Tool])
}
