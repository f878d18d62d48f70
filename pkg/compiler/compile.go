package compiler

import "os"

// Compile runs the full pipeline (tokenize -> parse -> generate) over
// src and returns the emitted RISC-V assembly text. filename is used
// only for diagnostics and the .file directive; src must already be
// null-terminator-free UTF-8/ASCII source bytes. Fatal errors at any
// stage are reported through diag and terminate the process — Compile
// itself never returns an error.
func Compile(filename string, src []byte, stderr *os.File) string {
	diag := NewDiag(filename, src, stderr)
	toks := Lex(src, diag)
	globals := Parse(src, toks, diag)
	return Generate(src, globals, diag, filename)
}
