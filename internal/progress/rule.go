// Package progress recognizes the progress markers the engine writes to its
// output stream.
//
// The marker syntax is a versioned Rule: a regular expression with named
// groups. The built-in rule "byase/1" accepts
//
//	##PROGRESS <stage> <percent>%[ <detail>]
//	##PROGRESS <stage> <done>/<total>[ <detail>]
//
// Any line a Rule does not recognize, including a marker with a broken
// number, is reported as a raw log line. Classification never fails.
package progress

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/byase/byase-gui/internal/model"
)

const (
	DefaultVersion = "byase/1"
	DefaultPattern = `^##PROGRESS[ \t]+(?P<stage>\S+)[ \t]+(?:(?P<percent>[^\s%]+)%|(?P<done>[^\s/]+)/(?P<total>\S+))(?:[ \t]+(?P<detail>.*?))?[ \t]*$`
)

var ErrInvalidRule = errors.New("invalid progress rule")

// DefaultRule is used when the configuration does not select a rule.
var DefaultRule = MustRule(DefaultVersion, DefaultPattern)

// Kind tags a classified line.
type Kind int

const (
	KindRaw Kind = iota
	KindProgress
)

func (k Kind) String() string {
	if k == KindProgress {
		return "progress"
	}
	return "raw"
}

// Line is either a recognized progress marker or a raw log line. Event is
// only set for KindProgress; Text always holds the line without its
// terminator.
type Line struct {
	Kind  Kind
	Text  string
	Event model.ProgressEvent
}

// Rule is a compiled marker rule.
type Rule struct {
	version string
	re      *regexp.Regexp

	stage   int
	percent int
	done    int
	total   int
	detail  int
}

// NewRule compiles pattern. It must define the named group stage plus
// either percent or both done and total; detail is optional.
func NewRule(version, pattern string) (Rule, error) {
	if version == "" {
		return Rule{}, fmt.Errorf("%w: empty version", ErrInvalidRule)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("%w %s: %w", ErrInvalidRule, version, err)
	}
	r := Rule{
		version: version,
		re:      re,
		stage:   re.SubexpIndex("stage"),
		percent: re.SubexpIndex("percent"),
		done:    re.SubexpIndex("done"),
		total:   re.SubexpIndex("total"),
		detail:  re.SubexpIndex("detail"),
	}
	switch {
	case r.stage < 0:
		return Rule{}, fmt.Errorf("%w %s: missing group stage", ErrInvalidRule, version)
	case r.percent < 0 && (r.done < 0 || r.total < 0):
		return Rule{}, fmt.Errorf("%w %s: needs group percent or groups done and total", ErrInvalidRule, version)
	case (r.done < 0) != (r.total < 0):
		return Rule{}, fmt.Errorf("%w %s: groups done and total go together", ErrInvalidRule, version)
	}
	return r, nil
}

func MustRule(version, pattern string) Rule {
	r, err := NewRule(version, pattern)
	if err != nil {
		panic(err)
	}
	return r
}

// FromConfig returns the rule selected by the session configuration.
func FromConfig(cfg *model.Progress) (Rule, error) {
	if cfg == nil || cfg.Pattern == "" {
		return DefaultRule, nil
	}
	return NewRule(cfg.Version, cfg.Pattern)
}

func (r Rule) Version() string {
	return r.version
}

// Classify tags one output line. The returned event has no sequence
// number; Parser assigns them.
func (r Rule) Classify(line string) Line {
	line = strings.TrimRight(line, "\r\n")
	line = strings.ToValidUTF8(line, "�")
	raw := Line{Kind: KindRaw, Text: line}
	if r.re == nil {
		return raw
	}

	m := r.re.FindStringSubmatch(line)
	if m == nil {
		return raw
	}
	stage := m[r.stage]
	if stage == "" {
		return raw
	}
	fraction, ok := r.fraction(m)
	if !ok {
		return raw
	}

	ev := model.ProgressEvent{Stage: stage, Fraction: fraction}
	if r.detail >= 0 {
		ev.Detail = strings.TrimSpace(m[r.detail])
	}
	return Line{Kind: KindProgress, Text: line, Event: ev}
}

func (r Rule) fraction(m []string) (float64, bool) {
	if r.percent >= 0 && m[r.percent] != "" {
		p, err := strconv.ParseFloat(m[r.percent], 64)
		// ParseFloat accepts NaN and Inf
		if err != nil || math.IsNaN(p) || p < 0 || p > 100 {
			return 0, false
		}
		return p / 100, true
	}
	if r.done < 0 || m[r.done] == "" || m[r.total] == "" {
		return 0, false
	}
	done, err := strconv.ParseUint(m[r.done], 10, 64)
	if err != nil {
		return 0, false
	}
	total, err := strconv.ParseUint(m[r.total], 10, 64)
	if err != nil || total == 0 || done > total {
		return 0, false
	}
	return float64(done) / float64(total), true
}
