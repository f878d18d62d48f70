package compiler

import (
	"fmt"
	"strings"
)

// CodeGen walks the AST of one compilation unit and emits RISC-V 64-bit
// assembly text, following the teacher's single strings.Builder + line/
// comment helper shape generalized from GoCPU's 16-bit ISA to RISC-V's
// register file and instruction set (spec §4.F).
type CodeGen struct {
	src        []byte
	diag       *Diag
	out        strings.Builder
	depth      int // operand-stack depth, in 8-byte slots; must return to 0 at function end
	labelCount int
	curFunc    *Symbol
	filename   string
}

func newCodeGen(src []byte, diag *Diag, filename string) *CodeGen {
	return &CodeGen{src: src, diag: diag, filename: filename}
}

func (cg *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(&cg.out, format+"\n", args...)
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.line("  # "+format, args...)
}

func (cg *CodeGen) newLabel() int {
	cg.labelCount++
	return cg.labelCount
}

// push stores a0 onto the operand stack.
func (cg *CodeGen) push() {
	cg.line("  addi sp, sp, -8")
	cg.line("  sd a0, 0(sp)")
	cg.depth++
}

// pop loads the top of the operand stack into reg.
func (cg *CodeGen) pop(reg string) {
	cg.line("  ld %s, 0(sp)", reg)
	cg.line("  addi sp, sp, 8")
	cg.depth--
}

func (cg *CodeGen) lineDirective(tok *Token) {
	if tok != nil {
		cg.line("  .loc 1 %d", tok.Line)
	}
}

//  addressing, load, store

// genAddr computes the address of an lvalue expression into a0, per
// spec §4.F's get_addr rules.
func (cg *CodeGen) genAddr(e Expr) {
	switch n := e.(type) {
	case *VarExpr:
		if n.Sym.IsLocal {
			cg.line("  addi a0, fp, %d", n.Sym.Offset)
		} else {
			cg.line("  la a0, %s", n.Sym.Name)
		}
	case *MemberExpr:
		cg.genAddr(n.Expr)
		cg.line("  addi a0, a0, %d", n.Member.Offset)
	case *DerefExpr:
		cg.genExpr(n.Expr)
	case *CommaExpr:
		cg.genExpr(n.Lhs)
		cg.genAddr(n.Rhs)
	default:
		cg.diag.ErrorTok(e.token(), "not an lvalue")
	}
}

// load emits the instruction that reads *a0 into a0, sized/signed by t.
// Arrays, structs and unions are left as addresses (spec §4.F).
func (cg *CodeGen) load(t *Type) {
	switch t.Kind {
	case TyArray, TyStruct, TyUnion:
		return
	}
	switch t.Size {
	case 1:
		cg.line("  lb a0, 0(a0)")
	case 2:
		cg.line("  lh a0, 0(a0)")
	case 4:
		cg.line("  lw a0, 0(a0)")
	default:
		cg.line("  ld a0, 0(a0)")
	}
}

// store pops a destination address into a1 and writes a0 to it, sized
// by t. Struct/union assignment is a byte-for-byte copy.
func (cg *CodeGen) store(t *Type) {
	cg.pop("a1")
	if t.Kind == TyStruct || t.Kind == TyUnion {
		for i := 0; i < t.Size; i++ {
			cg.line("  lb t0, %d(a0)", i)
			cg.line("  sb t0, %d(a1)", i)
		}
		return
	}
	switch t.Size {
	case 1:
		cg.line("  sb a0, 0(a1)")
	case 2:
		cg.line("  sh a0, 0(a1)")
	case 4:
		cg.line("  sw a0, 0(a1)")
	default:
		cg.line("  sd a0, 0(a1)")
	}
}

// isSmallInt reports whether the word-form of an arithmetic instruction
// should be used: size <= 4 and not a pointer.
func isSmallInt(t *Type) bool {
	return !IsPointer(t) && t.Size <= 4
}

//  expressions

func (cg *CodeGen) genExpr(e Expr) {
	cg.lineDirective(e.token())

	switch n := e.(type) {
	case *NumExpr:
		cg.line("  li a0, %d", n.Value)
		return
	case *VarExpr, *MemberExpr:
		cg.genAddr(e)
		cg.load(e.Type())
		return
	case *NegExpr:
		cg.genExpr(n.Expr)
		if isSmallInt(n.Type()) {
			cg.line("  negw a0, a0")
		} else {
			cg.line("  neg a0, a0")
		}
		return
	case *AddrExpr:
		cg.genAddr(n.Expr)
		return
	case *DerefExpr:
		cg.genExpr(n.Expr)
		cg.load(n.Type())
		return
	case *CastExpr:
		cg.genExpr(n.Expr)
		cg.genCast(n.Expr.Type(), n.Ty)
		return
	case *AssignExpr:
		cg.genAddr(n.Lhs)
		cg.push()
		cg.genExpr(n.Rhs)
		cg.store(n.Ty)
		return
	case *CommaExpr:
		cg.genExpr(n.Lhs)
		cg.genExpr(n.Rhs)
		return
	case *StmtExprExpr:
		for i, s := range n.Body {
			if i == len(n.Body)-1 {
				if es, ok := s.(*ExprStmt); ok {
					cg.genExpr(es.Expr)
					continue
				}
			}
			cg.genStmt(s)
		}
		return
	case *FuncallExpr:
		cg.genFuncall(n)
		return
	case *AddExpr:
		cg.genBinary(n.binary, "add")
		return
	case *SubExpr:
		cg.genBinary(n.binary, "sub")
		return
	case *MulExpr:
		cg.genBinary(n.binary, "mul")
		return
	case *DivExpr:
		cg.genBinary(n.binary, "div")
		return
	case *EqExpr:
		cg.genCompare(n.binary, "eq")
		return
	case *NeExpr:
		cg.genCompare(n.binary, "ne")
		return
	case *LtExpr:
		cg.genCompare(n.binary, "lt")
		return
	case *LeExpr:
		cg.genCompare(n.binary, "le")
		return
	}
	cg.diag.ErrorTok(e.token(), "internal error: unhandled expression %T", e)
}

// genBinary lowers RHS then LHS (pushing RHS so it survives LHS's own
// pushes), pops RHS into a1, and emits op in word form when the
// operand type allows it (spec §4.F).
func (cg *CodeGen) genBinary(n binary, op string) {
	cg.genExpr(n.Rhs)
	cg.push()
	cg.genExpr(n.Lhs)
	cg.pop("a1")

	word := isSmallInt(n.Ty)
	switch op {
	case "add":
		if word {
			cg.line("  addw a0, a0, a1")
		} else {
			cg.line("  add a0, a0, a1")
		}
	case "sub":
		if word {
			cg.line("  subw a0, a0, a1")
		} else {
			cg.line("  sub a0, a0, a1")
		}
	case "mul":
		if word {
			cg.line("  mulw a0, a0, a1")
		} else {
			cg.line("  mul a0, a0, a1")
		}
	case "div":
		if word {
			cg.line("  divw a0, a0, a1")
		} else {
			cg.line("  div a0, a0, a1")
		}
	}
}

func (cg *CodeGen) genCompare(n binary, op string) {
	cg.genExpr(n.Rhs)
	cg.push()
	cg.genExpr(n.Lhs)
	cg.pop("a1")

	switch op {
	case "eq":
		cg.line("  xor a0, a0, a1")
		cg.line("  seqz a0, a0")
	case "ne":
		cg.line("  xor a0, a0, a1")
		cg.line("  snez a0, a0")
	case "lt":
		cg.line("  slt a0, a0, a1")
	case "le":
		cg.line("  slt a0, a1, a0")
		cg.line("  xori a0, a0, 1")
	}
}

// genCast emits the sign-extension sequence for the target width whenever
// the target type is 1, 2 or 4 bytes wide, whatever the source type (for a
// value already sign-extended at that width the sequence leaves it
// unchanged). Casts to 8-byte types (long, pointers) and to VOID emit
// nothing.
func (cg *CodeGen) genCast(from, to *Type) {
	if to.Kind == TyVoid {
		return
	}
	switch to.Size {
	case 1:
		cg.line("  slli a0, a0, 56")
		cg.line("  srai a0, a0, 56")
	case 2:
		cg.line("  slli a0, a0, 48")
		cg.line("  srai a0, a0, 48")
	case 4:
		cg.line("  slli a0, a0, 32")
		cg.line("  srai a0, a0, 32")
	}
}

var argRegs = [...]string{"a0", "a1", "a2", "a3", "a4", "a5"}

func (cg *CodeGen) genFuncall(n *FuncallExpr) {
	for _, arg := range n.Args {
		cg.genExpr(arg)
		cg.push()
	}
	for i := len(n.Args) - 1; i >= 0; i-- {
		cg.pop(argRegs[i])
	}
	cg.line("  call %s", n.FuncName)
}

//  statements

func (cg *CodeGen) genStmt(s Stmt) {
	switch n := s.(type) {
	case *ExprStmt:
		cg.genExpr(n.Expr)
	case *BlockStmt:
		for _, child := range n.Body {
			cg.genStmt(child)
		}
	case *ReturnStmt:
		if n.Expr != nil {
			cg.genExpr(n.Expr)
		}
		cg.line("  j .L.return.%s", cg.curFunc.Name)
	case *IfStmt:
		label := cg.newLabel()
		cg.genExpr(n.Cond)
		cg.line("  beqz a0, .L.else.%d", label)
		cg.genStmt(n.Then)
		cg.line("  j .L.end.%d", label)
		cg.line(".L.else.%d:", label)
		if n.Else != nil {
			cg.genStmt(n.Else)
		}
		cg.line(".L.end.%d:", label)
	case *ForStmt:
		label := cg.newLabel()
		if n.Init != nil {
			cg.genStmt(n.Init)
		}
		cg.line(".L.begin.%d:", label)
		if n.Cond != nil {
			cg.genExpr(n.Cond)
			cg.line("  beqz a0, .L.end.%d", label)
		}
		cg.genStmt(n.Body)
		if n.Inc != nil {
			cg.genStmt(n.Inc)
		}
		cg.line("  j .L.begin.%d", label)
		cg.line(".L.end.%d:", label)
	default:
		cg.diag.ErrorTok(s.token(), "internal error: unhandled statement %T", s)
	}
}

//  frame layout and function emission

// assignLocalOffsets walks fn's locals (parameters first, per
// functionDef, then body declarations in declaration order), rounding
// the running offset up to each variable's alignment and recording its
// (negative) frame offset, then sets fn.FrameSize to that offset rounded
// up to 16 (spec §4.F).
func assignLocalOffsets(fn *Symbol) {
	offset := 0
	for l := fn.Locals; l != nil; l = l.Next {
		offset = roundUp(offset, l.Type.Align)
		offset += l.Type.Size
		l.Offset = -offset
	}
	fn.FrameSize = roundUp(offset, 16)
}

func (cg *CodeGen) emitFunc(fn *Symbol) {
	if !fn.IsDefinition {
		return
	}
	assignLocalOffsets(fn)
	cg.curFunc = fn
	cg.depth = 0

	cg.line("  .globl %s", fn.Name)
	cg.line("  .text")
	cg.line("%s:", fn.Name)

	cg.line("  addi sp, sp, -16")
	cg.line("  sd ra, 8(sp)")
	cg.line("  sd fp, 0(sp)")
	cg.line("  mv fp, sp")
	if fn.FrameSize > 0 {
		cg.line("  addi sp, sp, -%d", fn.FrameSize)
	}

	// t0, not a0, holds the destination address: a0 is also argRegs[0],
	// so computing the address into a0 before the first param is stored
	// would clobber the very argument being spilled. Parameters are the
	// first fn.NumParams entries of fn.Locals (functionDef appends them
	// ahead of every body declaration), each already given a real frame
	// offset by assignLocalOffsets.
	p := fn.Locals
	for i := 0; i < fn.NumParams; i++ {
		cg.line("  addi t0, fp, %d", p.Offset)
		switch p.Type.Size {
		case 1:
			cg.line("  sb %s, 0(t0)", argRegs[i])
		case 2:
			cg.line("  sh %s, 0(t0)", argRegs[i])
		case 4:
			cg.line("  sw %s, 0(t0)", argRegs[i])
		default:
			cg.line("  sd %s, 0(t0)", argRegs[i])
		}
		p = p.Next
	}

	cg.genStmt(fn.Body)

	if cg.depth != 0 {
		cg.diag.Errorf("internal error: operand stack depth %d at end of %s", cg.depth, fn.Name)
	}

	cg.line(".L.return.%s:", fn.Name)
	cg.line("  mv sp, fp")
	cg.line("  ld fp, 0(sp)")
	cg.line("  ld ra, 8(sp)")
	cg.line("  addi sp, sp, 16")
	cg.line("  ret")
}

// emitData emits the .data section for one non-function global:
// initialized bytes as .byte directives (each printable byte commented),
// otherwise .zero <size>.
func (cg *CodeGen) emitData(sym *Symbol) {
	cg.line("  .data")
	cg.line("  .globl %s", sym.Name)
	cg.line("%s:", sym.Name)
	if sym.InitData != nil {
		for _, b := range sym.InitData {
			if b >= 0x20 && b < 0x7f {
				cg.line("  .byte %d  # '%c'", b, b)
			} else {
				cg.line("  .byte %d", b)
			}
		}
		return
	}
	cg.line("  .zero %d", sym.Type.Size)
}

// Generate walks globals (the list Parse produced) and returns the
// assembled RISC-V assembly source text.
func Generate(src []byte, globals *Symbol, diag *Diag, filename string) string {
	cg := newCodeGen(src, diag, filename)
	cg.line("  .file 1 %q", filename)

	for g := globals; g != nil; g = g.Next {
		if !g.IsFunction {
			cg.emitData(g)
		}
	}
	for g := globals; g != nil; g = g.Next {
		if g.IsFunction {
			cg.emitFunc(g)
		}
	}
	return cg.out.String()
}
