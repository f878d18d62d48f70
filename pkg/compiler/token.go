package compiler

import "fmt"

// TokenKind identifies the category of a lexed token.
type TokenKind int

const (
	EOF     TokenKind = iota // sentinel: end of input
	PUNCT                    // operator or other punctuation
	NUM                      // integer literal
	IDENT                    // identifier
	KEYWORD                  // identifier reclassified by convertKeywords
	STR                      // string literal
)

var tokenKindNames = [...]string{
	EOF:     "EOF",
	PUNCT:   "PUNCT",
	NUM:     "NUM",
	IDENT:   "IDENT",
	KEYWORD: "KEYWORD",
	STR:     "STR",
}

func (k TokenKind) String() string {
	if int(k) >= 0 && int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// keywords is consulted by convertKeywords once the full token list has
// been scanned, reclassifying every IDENT token whose lexeme matches.
var keywords = map[string]bool{
	"return":  true,
	"if":      true,
	"else":    true,
	"for":     true,
	"while":   true,
	"int":     true,
	"sizeof":  true,
	"char":    true,
	"short":   true,
	"long":    true,
	"void":    true,
	"struct":  true,
	"union":   true,
	"typedef": true,
}

// Token is a single lexical unit produced by the Lexer. Tokens form a
// singly linked list terminated by an EOF sentinel; the parser advances a
// cursor over this list (see Parser.cur) rather than consuming it
// destructively.
type Token struct {
	Kind TokenKind
	Next *Token

	Val int64 // NUM: decoded value

	Loc int // byte offset of the token's first byte in the source buffer
	Len int // length in bytes

	StrVal  []byte // STR: decoded bytes, including the trailing NUL
	StrType *Type  // STR: array_of(CHAR, len(StrVal))

	Line int // 1-based source line
}

// Text returns the token's exact source spelling.
func (t *Token) Text(src []byte) string {
	return string(src[t.Loc : t.Loc+t.Len])
}

func (t *Token) String() string {
	return fmt.Sprintf("%-7s loc=%-4d len=%-3d line=%d", t.Kind, t.Loc, t.Len, t.Line)
}

// is reports whether t is a PUNCT or KEYWORD token spelled exactly s.
func (t *Token) is(src []byte, s string) bool {
	if t.Kind != PUNCT && t.Kind != KEYWORD {
		return false
	}
	return t.Len == len(s) && t.Text(src) == s
}
