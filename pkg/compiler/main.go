// Package compiler provides a C-subset lexer, parser, and code generator
// that targets RISC-V 64-bit assembly.
//
// Pipeline: source -> Lex -> Parse -> Generate -> RISC-V assembly text.
// Every stage reports fatal errors through a *Diag and never returns an
// error value of its own; diagnostics terminate the process directly
// (spec §4.A, §7).
package compiler
