package progress_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/byase/byase-gui/internal/progress"

	"github.com/stretchr/testify/require"
)

func collect(ch <-chan progress.Line) []progress.Line {
	var ret []progress.Line
	for l := range ch {
		ret = append(ret, l)
	}
	return ret
}

func TestParser(t *testing.T) {
	t.Parallel()
	out := strings.Join([]string{
		"starting BYASE",
		"##PROGRESS gen-task 10%",
		"##PROGRESS gen-task 1x0%",
		"\x00\x01\x02 garbled",
		"##PROGRESS gen-task 10%",
		"",
		"##PROGRESS gen-task 5%",
		"##PROGRESS gen-task 9/9 done",
		"no newline at the end",
	}, "\n")

	lines := collect(progress.NewParser(progress.DefaultRule).Run(t.Context(), strings.NewReader(out)))
	require.Len(t, lines, 9)

	var seqs []uint64
	var fractions []float64
	for _, l := range lines {
		if l.Kind == progress.KindProgress {
			seqs = append(seqs, l.Event.Seq)
			fractions = append(fractions, l.Event.Fraction)
		}
	}
	require.Equal(t, []uint64{1, 2, 3, 4}, seqs)
	// duplicates and regressions are passed on as they arrive
	require.Equal(t, []float64{0.1, 0.1, 0.05, 1}, fractions)
	require.Equal(t, "##PROGRESS gen-task 1x0%", lines[2].Text)
	require.Equal(t, progress.KindRaw, lines[2].Kind)
	require.Equal(t, "no newline at the end", lines[8].Text)
}

func TestParser_LongLine(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 3*progress.MaxLineSize)
	in := long + "\n##PROGRESS inference 50%\n" + long

	lines := collect(progress.NewParser(progress.DefaultRule).Run(t.Context(), strings.NewReader(in)))
	require.Len(t, lines, 3)
	require.Len(t, lines[0].Text, progress.MaxLineSize)
	require.Equal(t, progress.KindProgress, lines[1].Kind)
	require.Equal(t, uint64(1), lines[1].Event.Seq)
	require.Len(t, lines[2].Text, progress.MaxLineSize)
}

func TestParser_Cancel(t *testing.T) {
	t.Parallel()
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(t.Context())
	ch := progress.NewParser(progress.DefaultRule).Run(ctx, pr)

	go func() {
		_, _ = io.WriteString(pw, "##PROGRESS a 1%\n##PROGRESS a 2%\n")
	}()
	first := <-ch
	require.Equal(t, uint64(1), first.Event.Seq)

	cancel()
	require.NoError(t, pr.Close())
	for range ch {
	}
}
