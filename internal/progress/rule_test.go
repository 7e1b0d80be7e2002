package progress_test

import (
	"testing"

	"github.com/byase/byase-gui/internal/model"
	"github.com/byase/byase-gui/internal/progress"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	type then struct {
		kind     progress.Kind
		stage    string
		fraction float64
		detail   string
	}
	var testCases = []struct {
		scenario string
		given    string
		then     then
	}{
		{"percent", "##PROGRESS inference 42%", then{progress.KindProgress, "inference", 0.42, ""}},
		{"percent with detail", "##PROGRESS inference 42.5% chunk 3 of 8\n", then{progress.KindProgress, "inference", 0.425, "chunk 3 of 8"}},
		{"done of total", "##PROGRESS gen-task 3/12 ENSG0001", then{progress.KindProgress, "gen-task", 0.25, "ENSG0001"}},
		{"complete", "##PROGRESS stats 100%\r\n", then{progress.KindProgress, "stats", 1, ""}},
		{"zero", "##PROGRESS stats 0/5", then{progress.KindProgress, "stats", 0, ""}},
		{"plain log line", "INFO loading 12 BAM files", then{kind: progress.KindRaw}},
		{"empty", "", then{kind: progress.KindRaw}},
		{"prefix only", "##PROGRESS", then{kind: progress.KindRaw}},
		{"missing percent sign", "##PROGRESS inference 42", then{kind: progress.KindRaw}},
		{"not a number", "##PROGRESS inference abc%", then{kind: progress.KindRaw}},
		{"over 100", "##PROGRESS inference 142%", then{kind: progress.KindRaw}},
		{"negative", "##PROGRESS inference -1%", then{kind: progress.KindRaw}},
		{"NaN", "##PROGRESS inference NaN%", then{kind: progress.KindRaw}},
		{"lower case nan", "##PROGRESS inference nan%", then{kind: progress.KindRaw}},
		{"infinity", "##PROGRESS inference Inf%", then{kind: progress.KindRaw}},
		{"zero total", "##PROGRESS inference 0/0", then{kind: progress.KindRaw}},
		{"done over total", "##PROGRESS inference 7/5", then{kind: progress.KindRaw}},
		{"garbage after percent", "##PROGRESS inference 42%%%", then{kind: progress.KindRaw}},
		{"indented marker", "  ##PROGRESS inference 42%", then{kind: progress.KindRaw}},
		{"binary garbage", "##PROGRESS \xff\xfe 1%", then{progress.KindProgress, "�", 0.01, ""}},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			line := progress.DefaultRule.Classify(tt.given)
			require.Equal(t, tt.then.kind, line.Kind)
			if tt.then.kind == progress.KindRaw {
				require.Zero(t, line.Event)
				return
			}
			require.Equal(t, tt.then.stage, line.Event.Stage)
			require.InDelta(t, tt.then.fraction, line.Event.Fraction, 1e-9)
			require.Equal(t, tt.then.detail, line.Event.Detail)
			require.Zero(t, line.Event.Seq)
		})
	}
}

func TestClassify_RawText(t *testing.T) {
	t.Parallel()
	line := progress.DefaultRule.Classify("warning: \xffbad\r\n")
	require.Equal(t, progress.KindRaw, line.Kind)
	require.Equal(t, "warning: �bad", line.Text)
	require.Equal(t, "raw", line.Kind.String())
}

func TestNewRule(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    model.Progress
		then     bool // valid
	}{
		{"percent only", model.Progress{Version: "v", Pattern: `^@(?P<stage>\w+) (?P<percent>\d+)$`}, true},
		{"counts only", model.Progress{Version: "v", Pattern: `^@(?P<stage>\w+) (?P<done>\d+) (?P<total>\d+)$`}, true},
		{"no stage", model.Progress{Version: "v", Pattern: `^@ (?P<percent>\d+)$`}, false},
		{"no number", model.Progress{Version: "v", Pattern: `^@(?P<stage>\w+)$`}, false},
		{"done without total", model.Progress{Version: "v", Pattern: `^@(?P<stage>\w+) (?P<percent>\d+) (?P<done>\d+)$`}, false},
		{"bad regexp", model.Progress{Version: "v", Pattern: `^@(?P<stage>\w+`}, false},
		{"no version", model.Progress{Pattern: `^@(?P<stage>\w+) (?P<percent>\d+)$`}, false},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			r, err := progress.FromConfig(&tt.given)
			if !tt.then {
				require.ErrorIs(t, err, progress.ErrInvalidRule)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "v", r.Version())
		})
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	r, err := progress.FromConfig(nil)
	require.NoError(t, err)
	require.Equal(t, progress.DefaultVersion, r.Version())

	r, err = progress.FromConfig(&model.Progress{
		Version: "byase/2",
		Pattern: `^@@ (?P<stage>\S+) (?P<percent>\d+)$`,
	})
	require.NoError(t, err)
	line := r.Classify("@@ plot 80")
	require.Equal(t, progress.KindProgress, line.Kind)
	require.InDelta(t, 0.8, line.Event.Fraction, 1e-9)
	require.Equal(t, progress.KindRaw, r.Classify("##PROGRESS plot 80%").Kind)
}
