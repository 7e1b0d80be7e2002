package progress

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
)

// MaxLineSize bounds a single line. Longer lines are truncated.
const MaxLineSize = 64 * 1024

// Parser turns an output stream into classified lines.
type Parser struct {
	rule Rule
}

func NewParser(rule Rule) *Parser {
	return &Parser{rule: rule}
}

// Run reads r line by line until EOF, a read error or ctx is done, and
// closes the returned channel afterwards. Progress events are numbered from
// 1 in line arrival order; raw lines do not consume sequence numbers.
//
// Run does not close r. A Read blocked inside r only returns once the
// writer side ends, so callers cancel ctx and close r together.
func (p *Parser) Run(ctx context.Context, r io.Reader) <-chan Line {
	out := make(chan Line)
	go func() {
		defer close(out)
		var seq uint64
		br := bufio.NewReaderSize(r, MaxLineSize)
		for {
			line, err := readLine(br)
			if len(line) > 0 || err == nil {
				l := p.rule.Classify(string(line))
				if l.Kind == KindProgress {
					seq++
					l.Event.Seq = seq
				}
				select {
				case out <- l:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
					slog.DebugContext(ctx, "reading engine output", "error", err)
				}
				return
			}
		}
	}()
	return out
}

// readLine returns the next line without its terminator. The tail of a line
// longer than MaxLineSize is dropped.
func readLine(br *bufio.Reader) ([]byte, error) {
	chunk, err := br.ReadSlice('\n')
	if !errors.Is(err, bufio.ErrBufferFull) {
		return trimEOL(chunk), err
	}
	line := append([]byte(nil), chunk...)
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = br.ReadSlice('\n')
	}
	if errors.Is(err, io.EOF) {
		// the truncated line still counts
		err = nil
	}
	return line, err
}

func trimEOL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
