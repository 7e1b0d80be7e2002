package model

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	ToolGenTask   Tool = "gen-task"
	ToolInference Tool = "inference"
	ToolResume    Tool = "resume"
	ToolStats     Tool = "stats"
	ToolPlot      Tool = "plot"

	ArtifactFile = "file"
	ArtifactCSV  = "csv"
	ArtifactHTML = "html"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"
)

const (
	DefaultGracePeriod    = 5 * time.Second
	DefaultKillTimeout    = 2 * time.Second
	DefaultSampleInterval = time.Second
	DefaultRetention      = 3600
	DefaultMaxAge         = 6 * time.Hour
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx    *cue.Context
	schema    cue.Value
	jobSchema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource, cue.Filename("config.cue"))
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	// #Job stays incomplete until tool is concrete, so only its presence
	// can be checked here
	jobSchema = compiled.LookupPath(cue.ParsePath("#Job"))
	if !jobSchema.Exists() {
		panic("config.cue: #Job not found")
	}
}

// Tool names an engine sub-command.
type Tool string

func (t Tool) Valid() bool {
	switch t {
	case ToolGenTask, ToolInference, ToolResume, ToolStats, ToolPlot:
		return true
	}
	return false
}

// Config is the session configuration of the job core.
type Config struct {
	Version  int       `json:"version" yaml:"version"` // fixed 0 for now
	Engine   Engine    `json:"engine" yaml:"engine"`
	Sampler  *Sampler  `json:"sampler,omitempty" yaml:"sampler,omitempty"`
	Progress *Progress `json:"progress,omitempty" yaml:"progress,omitempty"`
	Log      *Log      `json:"log,omitempty" yaml:"log,omitempty"`
}

// Engine describes how the analysis executable is invoked.
type Engine struct {
	Path        string            `json:"path" yaml:"path"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	GracePeriod string            `json:"grace_period,omitempty" yaml:"grace_period,omitempty"`
	KillTimeout string            `json:"kill_timeout,omitempty" yaml:"kill_timeout,omitempty"`
}

type Sampler struct {
	Interval  string `json:"interval,omitempty" yaml:"interval,omitempty"`
	Retention int    `json:"retention,omitempty" yaml:"retention,omitempty"`
	MaxAge    string `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// Progress selects the marker rule used to recognize engine progress lines.
type Progress struct {
	Version string `json:"version" yaml:"version"`
	Pattern string `json:"pattern" yaml:"pattern"`
}

type Log struct {
	Verbose *bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Output  *string `json:"output,omitempty" yaml:"output,omitempty"` // "stderr"|"stdout"|"discard"|path
}

// Timeouts holds the parsed durations of a Config with defaults applied.
type Timeouts struct {
	GracePeriod    time.Duration
	KillTimeout    time.Duration
	SampleInterval time.Duration
	MaxAge         time.Duration
	Retention      int
}

func DefaultConfig(enginePath string) Config {
	return Config{
		Version: 0,
		Engine: Engine{
			Path:        enginePath,
			GracePeriod: DefaultGracePeriod.String(),
			KillTimeout: DefaultKillTimeout.String(),
		},
		Sampler: &Sampler{
			Interval:  DefaultSampleInterval.String(),
			Retention: DefaultRetention,
			MaxAge:    DefaultMaxAge.String(),
		},
	}
}

// Timeouts parses the duration strings of c. Empty values get defaults.
func (c Config) Timeouts() (Timeouts, error) {
	t := Timeouts{
		GracePeriod:    DefaultGracePeriod,
		KillTimeout:    DefaultKillTimeout,
		SampleInterval: DefaultSampleInterval,
		MaxAge:         DefaultMaxAge,
		Retention:      DefaultRetention,
	}
	var err error
	if t.GracePeriod, err = duration("engine.grace_period", c.Engine.GracePeriod, t.GracePeriod); err != nil {
		return t, err
	}
	if t.KillTimeout, err = duration("engine.kill_timeout", c.Engine.KillTimeout, t.KillTimeout); err != nil {
		return t, err
	}
	if c.Sampler != nil {
		if t.SampleInterval, err = duration("sampler.interval", c.Sampler.Interval, t.SampleInterval); err != nil {
			return t, err
		}
		if t.MaxAge, err = duration("sampler.max_age", c.Sampler.MaxAge, t.MaxAge); err != nil {
			return t, err
		}
		if c.Sampler.Retention > 0 {
			t.Retention = c.Sampler.Retention
		}
	}
	return t, nil
}

func duration(field, s string, dflt time.Duration) (time.Duration, error) {
	if s == "" {
		return dflt, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: %w: %s", field, ErrInvalidDuration, s)
	}
	return d, nil
}

// Artifact declares one output the engine is expected to write below
// JobConfig.OutDir. Pattern is a doublestar glob relative to OutDir.
type Artifact struct {
	Name     string `json:"name" yaml:"name"`
	Pattern  string `json:"pattern" yaml:"pattern"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// JobConfig is the invocation snapshot of one engine run. It is copied on
// submission and never mutated afterwards.
type JobConfig struct {
	Tool    Tool              `json:"tool" yaml:"tool"`
	WorkDir string            `json:"work_dir,omitempty" yaml:"work_dir,omitempty"`
	OutDir  string            `json:"out_dir" yaml:"out_dir"`
	Threads int               `json:"threads,omitempty" yaml:"threads,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// gen-task
	GFF             string `json:"gff,omitempty" yaml:"gff,omitempty"`
	GeneFeature     string `json:"gene_feature,omitempty" yaml:"gene_feature,omitempty"`
	IsoformFeature  string `json:"isoform_feature,omitempty" yaml:"isoform_feature,omitempty"`
	GeneNameAttr    string `json:"gene_name_attr,omitempty" yaml:"gene_name_attr,omitempty"`
	IsoformNameAttr string `json:"isoform_name_attr,omitempty" yaml:"isoform_name_attr,omitempty"`
	VCF             string `json:"vcf,omitempty" yaml:"vcf,omitempty"`
	Ploidy          int    `json:"ploidy,omitempty" yaml:"ploidy,omitempty"`
	Sample          string `json:"sample,omitempty" yaml:"sample,omitempty"`
	AddChromPrefix  bool   `json:"add_chrom_prefix,omitempty" yaml:"add_chrom_prefix,omitempty"`

	// inference
	TaskDir        string   `json:"task_dir,omitempty" yaml:"task_dir,omitempty"`
	BAMs           []string `json:"bams,omitempty" yaml:"bams,omitempty"`
	ReadLength     int      `json:"read_length,omitempty" yaml:"read_length,omitempty"`
	PairedEnd      bool     `json:"paired_end,omitempty" yaml:"paired_end,omitempty"`
	InsertSizeMean float64  `json:"insert_size_mean,omitempty" yaml:"insert_size_mean,omitempty"`
	InsertSizeStd  float64  `json:"insert_size_std,omitempty" yaml:"insert_size_std,omitempty"`

	// plot
	TaskID string `json:"task_id,omitempty" yaml:"task_id,omitempty"`

	Artifacts []Artifact `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// Clone returns a deep copy of c.
func (c JobConfig) Clone() JobConfig {
	c.Env = maps.Clone(c.Env)
	c.BAMs = slices.Clone(c.BAMs)
	c.Artifacts = slices.Clone(c.Artifacts)
	return c
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (*Config, error) {
	var out Config
	if err := load("config.yaml", r, schema, &out); err != nil {
		return nil, err
	}
	if out.Progress != nil && out.Progress.Pattern == "" {
		out.Progress = nil
	}
	if _, err := out.Timeouts(); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadJob validates a YAML job definition from r and decodes it.
func LoadJob(r io.Reader) (*JobConfig, error) {
	var out JobConfig
	if err := load("job.yaml", r, jobSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateJob checks an in-memory JobConfig against the #Job schema.
func ValidateJob(cfg JobConfig) error {
	v := cueCtx.Encode(cfg)
	if v.Err() != nil {
		return v.Err()
	}
	return jobSchema.Unify(v).Validate(
		cue.All(),
		cue.Concrete(true),
	)
}

func load(filename string, r io.Reader, def cue.Value, out any) error {
	yamlFile, err := yaml.Extract(filename, r)
	if err != nil {
		return err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := def.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return err
	}

	return unified.Decode(out)
}
