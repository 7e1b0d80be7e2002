// Package result locates and checks the artifacts an engine run wrote to
// its output directory.
//
// The collector only answers whether the declared outputs are present and
// structurally sane: a non-empty regular file matching the declared name
// pattern, a readable header row for csv artifacts and markup for html
// artifacts. Statistical content is never parsed.
package result

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/byase/byase-gui/internal/model"
)

var (
	ErrMissingArtifact = errors.New("missing artifact")
	ErrCorruptArtifact = errors.New("corrupt artifact")
)

// ArtifactError describes one artifact that failed validation. It matches
// ErrMissingArtifact or ErrCorruptArtifact with errors.Is.
type ArtifactError struct {
	Name    string
	Pattern string
	Path    string // empty when nothing matched
	Err     error
	Reason  string
}

func (e *ArtifactError) Error() string {
	where := e.Pattern
	if e.Path != "" {
		where = e.Path
	}
	return fmt.Sprintf("%s %q (%s): %s", e.Err, e.Name, where, e.Reason)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// File is one validated output file.
type File struct {
	Path string `json:"path"` // absolute
	Size int64  `json:"size"`
}

// Artifact is a declared output with the files that satisfied it.
type Artifact struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Files []File `json:"files"`
}

// ResultSet is handed to the visualization layer once a job completed.
type ResultSet struct {
	JobID     string     `json:"job_id,omitempty"`
	Tool      model.Tool `json:"tool"`
	Dir       string     `json:"dir"`
	Artifacts []Artifact `json:"artifacts"`
}

// Paths returns the files of every artifact in declaration order.
func (r ResultSet) Paths() []string {
	var ret []string
	for _, a := range r.Artifacts {
		for _, f := range a.Files {
			ret = append(ret, f.Path)
		}
	}
	return ret
}

// Artifact returns the artifact called name.
func (r ResultSet) Artifact(name string) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

func abs(dir, rel string) string {
	return filepath.Join(dir, filepath.FromSlash(rel))
}
