package compiler

import (
	"os"
	"testing"
)

func parseSrc(t *testing.T, src string) *Symbol {
	t.Helper()
	b := []byte(src)
	diag := NewDiag("test.c", b, os.Stderr)
	toks := Lex(b, diag)
	return Parse(b, toks, diag)
}

func findFunc(globals *Symbol, name string) *Symbol {
	for g := globals; g != nil; g = g.Next {
		if g.Name == name && g.IsFunction {
			return g
		}
	}
	return nil
}

func TestParseSimpleFunction(t *testing.T) {
	globals := parseSrc(t, "int main() { return 42; }")
	main := findFunc(globals, "main")
	if main == nil {
		t.Fatal("main not found among globals")
	}
	if !main.IsDefinition {
		t.Fatal("main should be a definition, not a prototype")
	}
	block, ok := main.Body.(*BlockStmt)
	if !ok || len(block.Body) != 1 {
		t.Fatalf("body = %#v, want a single-statement block", main.Body)
	}
	ret, ok := block.Body[0].(*ReturnStmt)
	if !ok {
		t.Fatalf("statement = %#v, want *ReturnStmt", block.Body[0])
	}
	num, ok := ret.Expr.(*CastExpr).Expr.(*NumExpr)
	if !ok || num.Value != 42 {
		t.Fatalf("return expr = %#v, want literal 42", ret.Expr)
	}
}

func TestParseFunctionPrototypeHasNoBody(t *testing.T) {
	globals := parseSrc(t, "int f(int x); int main() { return f(1); }")
	f := findFunc(globals, "f")
	if f == nil || f.IsDefinition {
		t.Fatalf("f = %+v, want a non-definition prototype", f)
	}
}

func TestParsePointerArithmeticScalesBySize(t *testing.T) {
	globals := parseSrc(t, "int main() { int arr[3]; int *p; p = arr; return *(p + 1); }")
	main := findFunc(globals, "main")
	block := main.Body.(*BlockStmt)
	// last statement: return *(p+1)
	ret := block.Body[len(block.Body)-1].(*ReturnStmt)
	deref, ok := ret.Expr.(*CastExpr).Expr.(*DerefExpr)
	if !ok {
		t.Fatalf("return expr = %#v, want *DerefExpr", ret.Expr)
	}
	add, ok := deref.Expr.(*AddExpr)
	if !ok {
		t.Fatalf("deref target = %#v, want *AddExpr", deref.Expr)
	}
	if !IsPointer(add.Type()) {
		t.Fatalf("pointer+int type = %v, want pointer", add.Type())
	}
	scaled, ok := add.Rhs.(*CastExpr)
	if !ok {
		t.Fatalf("pointer+int rhs = %#v, want *CastExpr", add.Rhs)
	}
	mul, ok := scaled.Expr.(*MulExpr)
	if !ok {
		t.Fatalf("scaled index = %#v, want *MulExpr", scaled.Expr)
	}
	if scale, ok := mul.Rhs.(*NumExpr); !ok || scale.Value != 4 {
		t.Fatalf("index scale = %#v, want literal 4 (sizeof(int))", mul.Rhs)
	}
}

func TestParseStructLayout(t *testing.T) {
	globals := parseSrc(t, `
		struct point { char tag; int x; int y; };
		int main() { struct point p; return p.y; }
	`)
	main := findFunc(globals, "main")
	p := main.Locals
	if p == nil {
		t.Fatal("no locals recorded for main")
	}
	st := p.Type
	if st.Size != 12 {
		t.Errorf("struct size = %d, want 12 (char tag padded out by int align, then two ints)", st.Size)
	}
	if st.Align != 4 {
		t.Errorf("struct align = %d, want 4", st.Align)
	}
}

func TestParseUndefinedVariableIsFatal(t *testing.T) {
	b := []byte("int main() { return undeclared; }")
	diag := NewDiag("test.c", b, os.Stderr)
	fatal := false
	diag.exit = func(code int) { fatal = true; panic("diag.exit") }
	defer func() {
		if r := recover(); r != nil && !fatal {
			panic(r)
		}
		if !fatal {
			t.Fatal("expected a fatal diagnostic for an undeclared variable")
		}
	}()
	toks := Lex(b, diag)
	Parse(b, toks, diag)
}
