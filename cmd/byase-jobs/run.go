package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/byase/byase-gui/internal/jobs"
	"github.com/byase/byase-gui/internal/log"
	"github.com/byase/byase-gui/internal/model"
	"github.com/byase/byase-gui/internal/service"

	"github.com/spf13/cobra"
)

const (
	formatJSON = "json"
	formatText = "text"
)

var (
	flagFormat string // value of run --format

	errInterrupted = errors.New("interrupted")
)

func doRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attrs := slog.Group("byase",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	cfgs := make([]model.JobConfig, 0, len(args))
	for _, path := range args {
		cfg, err := loadJob(path)
		if err != nil {
			return err
		}
		cfgs = append(cfgs, cfg)
	}

	write, err := statusWriter(cmd.OutOrStdout(), flagFormat)
	if err != nil {
		return err
	}
	return runJobs(ctx, config, cfgs, write)
}

// runJobs submits cfgs to a new session and hands every status to write
// until all jobs are terminal. Cancelling ctx cancels the jobs. It fails
// when a job did not complete.
func runJobs(ctx context.Context, cfg model.Config, cfgs []model.JobConfig, write func(jobs.Status) error) error {
	sup, err := service.NewSupervisor(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sup.Close(context.WithoutCancel(ctx)); err != nil {
			slog.ErrorContext(ctx, "closing session", "err", err)
		}
	}()

	sub := sup.Subscribe()
	defer sub.Close()

	pending := make(map[string]struct{}, len(cfgs))
	for _, c := range cfgs {
		st, err := sup.Submit(ctx, c)
		if err != nil {
			return err
		}
		pending[st.JobID] = struct{}{}
	}

	ids := slices.Collect(maps.Keys(pending))
	stopCancel := context.AfterFunc(ctx, func() {
		slog.WarnContext(ctx, "interrupted: cancelling jobs")
		for _, id := range ids {
			_ = sup.Cancel(id)
		}
	})
	defer stopCancel()

	var failed []string
	for len(pending) > 0 {
		st, ok := <-sub.C
		if !ok {
			break
		}
		if _, ok := pending[st.JobID]; !ok {
			continue
		}
		if err := write(st); err != nil {
			slog.WarnContext(ctx, "writing status", "err", err)
		}
		if !st.State.Terminal() {
			continue
		}
		if st.State != jobs.Completed {
			failed = append(failed, st.String())
		}
		delete(pending, st.JobID)
	}
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %d of %d jobs did not complete", errInterrupted, len(failed)+len(pending), len(cfgs))
	case len(failed) > 0:
		for _, f := range failed {
			slog.ErrorContext(ctx, "job failed", "status", f)
		}
		return fmt.Errorf("%d of %d jobs failed", len(failed), len(cfgs))
	}
	return nil
}

// loadJob reads a job file. Relative paths inside it are resolved against
// the directory of the file.
func loadJob(path string) (model.JobConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.JobConfig{}, fmt.Errorf("opening job file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadJob(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error("invalid job", slog.String("file", path), d.Attr("detail"))
		}
		return model.JobConfig{}, fmt.Errorf("parsing job %s: %w", path, err)
	}
	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return model.JobConfig{}, err
	}
	return resolvePaths(base, *cfg), nil
}

func resolvePaths(base string, cfg model.JobConfig) model.JobConfig {
	cfg = cfg.Clone()
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	for _, p := range []*string{&cfg.OutDir, &cfg.WorkDir, &cfg.GFF, &cfg.VCF, &cfg.TaskDir} {
		resolve(p)
	}
	for i := range cfg.BAMs {
		resolve(&cfg.BAMs[i])
	}
	return cfg
}

func statusWriter(w io.Writer, format string) (func(jobs.Status) error, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		return func(st jobs.Status) error {
			return enc.Encode(st)
		}, nil
	case formatText:
		return func(st jobs.Status) error {
			_, err := fmt.Fprintln(w, st.String())
			return err
		}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
