package result

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/byase/byase-gui/internal/engine"
	"github.com/byase/byase-gui/internal/model"
	"github.com/byase/byase-gui/internal/parallel"
)

const defaultWorkers = 4

// Collector validates the artifacts of a finished engine run.
type Collector struct {
	workers int
}

func NewCollector(workers int) *Collector {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Collector{workers: workers}
}

// Collect resolves the artifacts declared by cfg (or the tool defaults)
// below cfg.OutDir. Paths never leave the output directory. Every failed
// artifact is reported as an *ArtifactError; they are joined into the
// returned error.
func (c *Collector) Collect(ctx context.Context, cfg model.JobConfig) (ResultSet, error) {
	dir, err := filepath.Abs(cfg.OutDir)
	if err != nil {
		return ResultSet{}, fmt.Errorf("resolving output directory: %w", err)
	}
	set := ResultSet{Tool: cfg.Tool, Dir: dir}
	declared := engine.Artifacts(cfg)

	root, err := os.OpenRoot(dir)
	if err != nil {
		var errs []error
		for _, a := range declared {
			if !a.Optional {
				errs = append(errs, &ArtifactError{Name: a.Name, Pattern: a.Pattern, Err: ErrMissingArtifact, Reason: err.Error()})
			}
		}
		return set, errors.Join(errs...)
	}
	defer func() {
		_ = root.Close()
	}()

	results := parallel.Map(ctx, c.workers, declared, func(ctx context.Context, a model.Artifact) (Artifact, error) {
		return check(ctx, root, dir, a)
	})

	artifacts, err := parallel.Values(results)
	for _, a := range artifacts {
		if len(a.Files) == 0 {
			slog.DebugContext(ctx, "optional artifact not produced", "artifact", a.Name)
			continue
		}
		set.Artifacts = append(set.Artifacts, a)
	}
	return set, err
}

func check(ctx context.Context, root *os.Root, dir string, a model.Artifact) (Artifact, error) {
	kind := a.Kind
	if kind == "" {
		kind = model.ArtifactFile
	}
	ret := Artifact{Name: a.Name, Kind: kind}
	fail := func(sentinel error, path, reason string) (Artifact, error) {
		e := &ArtifactError{Name: a.Name, Pattern: a.Pattern, Err: sentinel, Reason: reason}
		if path != "" {
			e.Path = abs(dir, path)
		}
		return ret, e
	}

	pattern := path.Clean(filepath.ToSlash(a.Pattern))
	if !doublestar.ValidatePattern(pattern) || !fs.ValidPath(pattern) {
		return fail(ErrMissingArtifact, "", "invalid pattern")
	}
	matches, err := doublestar.Glob(root.FS(), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return fail(ErrMissingArtifact, "", err.Error())
	}
	if len(matches) == 0 {
		if a.Optional {
			return ret, nil
		}
		return fail(ErrMissingArtifact, "", "no file matches")
	}

	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return ret, err
		}
		size, reason := checkFile(root, match, kind)
		if reason != "" {
			return fail(ErrCorruptArtifact, match, reason)
		}
		ret.Files = append(ret.Files, File{Path: abs(dir, match), Size: size})
	}
	return ret, nil
}

// checkFile returns the size of name, or why it is not acceptable.
func checkFile(root *os.Root, name, kind string) (int64, string) {
	info, err := root.Stat(name)
	switch {
	case err != nil:
		return 0, err.Error()
	case !info.Mode().IsRegular():
		return 0, "not a regular file"
	case info.Size() == 0:
		return 0, "empty file"
	}

	switch kind {
	case model.ArtifactCSV:
		if !strings.EqualFold(path.Ext(name), ".csv") {
			return 0, "expected .csv extension"
		}
	case model.ArtifactHTML:
		if ext := strings.ToLower(path.Ext(name)); ext != ".html" && ext != ".htm" {
			return 0, "expected .html extension"
		}
	default:
		return info.Size(), ""
	}

	f, err := root.Open(name)
	if err != nil {
		return 0, err.Error()
	}
	defer func() {
		_ = f.Close()
	}()

	if kind == model.ArtifactCSV {
		if reason := csvHeader(f); reason != "" {
			return 0, reason
		}
	} else if reason := markup(f); reason != "" {
		return 0, reason
	}
	return info.Size(), ""
}

func csvHeader(r io.Reader) string {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return "unreadable csv header: " + err.Error()
	}
	for _, col := range header {
		if strings.TrimSpace(col) == "" {
			return "csv header has an empty column"
		}
	}
	return ""
}

func markup(r io.Reader) string {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err.Error()
	}
	head = bytes.TrimLeft(head[:n], " \t\r\n\ufeff")
	if !bytes.HasPrefix(head, []byte("<")) {
		return "not an html document"
	}
	return ""
}
