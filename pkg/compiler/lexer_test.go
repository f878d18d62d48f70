package compiler

import (
	"os"
	"testing"
)

func lexAll(t *testing.T, src string) []*Token {
	t.Helper()
	diag := NewDiag("test.c", []byte(src), os.Stderr)
	tok := Lex([]byte(src), diag)
	var out []*Token
	for ; tok != nil; tok = tok.Next {
		out = append(out, tok)
	}
	return out
}

func TestLexPunctAndNum(t *testing.T) {
	src := "1 + 22 * (3 - 4)"
	toks := lexAll(t, src)
	wantKinds := []TokenKind{NUM, PUNCT, NUM, PUNCT, PUNCT, NUM, PUNCT, NUM, PUNCT, EOF}
	if len(toks) != len(wantKinds) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(wantKinds))
	}
	for i, k := range wantKinds {
		if toks[i].Kind != k {
			t.Errorf("token %d: kind = %s, want %s", i, toks[i].Kind, k)
		}
	}
	if toks[2].Val != 22 {
		t.Errorf("token 2 value = %d, want 22", toks[2].Val)
	}
}

func TestLexTwoCharPuncts(t *testing.T) {
	for _, tc := range []struct {
		src string
		len int
	}{
		{"==", 2}, {"!=", 2}, {"<=", 2}, {">=", 2}, {"->", 2}, {"<", 1}, {"=", 1},
	} {
		toks := lexAll(t, tc.src)
		if toks[0].Len != tc.len {
			t.Errorf("Lex(%q)[0].Len = %d, want %d", tc.src, toks[0].Len, tc.len)
		}
	}
}

func TestLexKeywordsConverted(t *testing.T) {
	toks := lexAll(t, "int return_value = sizeof(int);")
	if toks[0].Kind != KEYWORD {
		t.Errorf("\"int\" kind = %s, want KEYWORD", toks[0].Kind)
	}
	if toks[1].Kind != IDENT {
		t.Errorf("\"return_value\" kind = %s, want IDENT (not a keyword prefix match)", toks[1].Kind)
	}
}

func TestLexStringEscapes(t *testing.T) {
	toks := lexAll(t, `"a\nb\x41\101"`)
	s := toks[0]
	if s.Kind != STR {
		t.Fatalf("kind = %s, want STR", s.Kind)
	}
	want := []byte{'a', '\n', 'b', 'A', 'A', 0}
	if string(s.StrVal) != string(want) {
		t.Errorf("StrVal = %v, want %v", s.StrVal, want)
	}
}

func TestLexLineAndBlockComments(t *testing.T) {
	toks := lexAll(t, "1 // comment\n/* block\ncomment */ 2")
	if len(toks) != 3 { // NUM, NUM, EOF
		t.Fatalf("got %d tokens, want 3", len(toks))
	}
	if toks[1].Line != 3 {
		t.Errorf("second NUM line = %d, want 3", toks[1].Line)
	}
}
