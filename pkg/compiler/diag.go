package compiler

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Diag is the diagnostic sink described in spec §4.A: it formats a
// source-caret error and terminates. It is held by (not embedded
// globally into) the Lexer and Parser, per the spec's Design Notes on
// avoiding module-level mutable state — every fatal-error call site
// reaches it through an explicit field, not a package global.
type Diag struct {
	src      []byte
	filename string
	out      io.Writer
	color    bool
	exit     func(int)
}

// NewDiag builds a Diag over src, writing formatted errors to out. Color
// is enabled automatically when out is a terminal (github.com/mattn/
// go-isatty), so redirected output (CI logs, "2> file") stays plain.
func NewDiag(filename string, src []byte, out *os.File) *Diag {
	color := false
	if out != nil {
		color = isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
	}
	return &Diag{src: src, filename: filename, out: out, color: color, exit: os.Exit}
}

const (
	ansiRed   = "\x1b[1;31m"
	ansiReset = "\x1b[0m"
)

// lineAround returns the 1-based line number and the [start, end) byte
// range of the source line containing byte offset loc, found by walking
// backward and forward from loc to the nearest newlines (spec §4.A).
func (d *Diag) lineAround(loc int) (line, start, end int) {
	if loc < 0 {
		loc = 0
	}
	if loc > len(d.src) {
		loc = len(d.src)
	}
	start = bytes.LastIndexByte(d.src[:loc], '\n') + 1
	if idx := bytes.IndexByte(d.src[loc:], '\n'); idx >= 0 {
		end = loc + idx
	} else {
		end = len(d.src)
	}
	line = 1 + bytes.Count(d.src[:start], []byte{'\n'})
	return line, start, end
}

// report prints the offending source line, a caret under loc's column,
// and the formatted message, then exits with a nonzero status. It never
// returns.
func (d *Diag) report(loc int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	line, start, end := d.lineAround(loc)
	col := loc - start

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s:%d: %s\n", d.filename, line, d.src[start:end])
	for i := 0; i < col; i++ {
		buf.WriteByte(' ')
	}
	if d.color {
		fmt.Fprintf(&buf, "%s^ %s%s\n", ansiRed, msg, ansiReset)
	} else {
		fmt.Fprintf(&buf, "^ %s\n", msg)
	}
	io.Copy(d.out, bytes.NewReader(buf.Bytes()))
	d.exit(1)
}

// Errorf is the unlocated fatal error: no source position is available.
func (d *Diag) Errorf(format string, args ...any) {
	fmt.Fprintf(d.out, "%s: %s\n", d.filename, fmt.Sprintf(format, args...))
	d.exit(1)
}

// ErrorAt reports a fatal error at a byte offset into the source buffer.
func (d *Diag) ErrorAt(loc int, format string, args ...any) {
	d.report(loc, format, args...)
}

// ErrorTok reports a fatal error at the position of tok.
func (d *Diag) ErrorTok(tok *Token, format string, args ...any) {
	d.report(tok.Loc, format, args...)
}
