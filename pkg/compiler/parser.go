package compiler

import (
	"fmt"
)

// Parser consumes the token list produced by Lex and builds an AST plus
// the symbol table of every global (function, global variable, string
// literal) it encounters. Grammar (design-level, spec §4.E):
//
//	program      ::= (typedef | function_def | global_var)*
//	declspec     ::= storage-class* type-specifier+
//	declarator   ::= "*"* ("(" declarator ")" | ident) type_suffix
//	type_suffix  ::= "(" func_params | "[" number "]" type_suffix | ε
//	compound     ::= (typedef | declaration | stmt)*  "}"
//	stmt         ::= return | if | for | while | "{" compound | expr_stmt
//	expr         ::= assign ("," expr)?
//	assign       ::= equality ("=" assign)?
//	equality     ::= relational (("==" | "!=") relational)*
//	relational   ::= add (("<" | "<=" | ">" | ">=") add)*
//	add          ::= mul (("+" | "-") mul)*
//	mul          ::= cast (("*" | "/") cast)*
//	cast         ::= "(" type_name ")" cast | unary
//	unary        ::= ("+"|"-"|"*"|"&") cast | postfix
//	postfix      ::= primary ("[" expr "]" | "." ident | "->" ident)*
//	primary      ::= "(" "{" stmt+ "}" ")" | "(" expr ")"
//	             |  "sizeof" ("(" type_name ")" | unary)
//	             |  ident ( "(" arg_list? ")" )?
//	             |  string_literal
//	             |  number
type Parser struct {
	src    []byte
	cur    *Token
	diag   *Diag
	scope  *Scope
	labels int // monotonic counter for string-literal globals (.L..<n>)

	curFunc    *Symbol // function currently being parsed, for locals/params
	curRetType *Type   // enclosing function's return type, for return-cast insertion

	globals *Symbol // linked list of every global (functions and vars), in declaration order
	tail    *Symbol
}

// NewParser builds a Parser positioned at the head of toks.
func NewParser(src []byte, toks *Token, diag *Diag) *Parser {
	return &Parser{src: src, cur: toks, diag: diag, scope: NewScope()}
}

func (p *Parser) text(tok *Token) string { return tok.Text(p.src) }

func (p *Parser) peek() *Token { return p.cur }

func (p *Parser) at(s string) bool { return p.cur.is(p.src, s) }

func (p *Parser) atKind(k TokenKind) bool { return p.cur.Kind == k }

func (p *Parser) advance() *Token {
	tok := p.cur
	if tok.Kind != EOF {
		p.cur = tok.Next
	}
	return tok
}

// skip consumes the current token if it is spelled s, otherwise reports a
// fatal error.
func (p *Parser) skip(s string) {
	if !p.at(s) {
		p.diag.ErrorTok(p.cur, "expected %q", s)
	}
	p.advance()
}

// expectIdent expects and returns an identifier token.
func (p *Parser) expectIdent() *Token {
	if !p.atKind(IDENT) {
		p.diag.ErrorTok(p.cur, "expected an identifier")
	}
	return p.advance()
}

func (p *Parser) addGlobal(sym *Symbol) {
	if p.globals == nil {
		p.globals = sym
		p.tail = sym
	} else {
		p.tail.Next = sym
		p.tail = sym
	}
}

//  declspec / type bitmap

const (
	bitVoid  = 1 << 0
	bitChar  = 1 << 2
	bitShort = 1 << 4
	bitInt   = 1 << 6
	bitLong  = 1 << 8
)

// declAttr records storage-class flags carried alongside a declspec.
type declAttr struct {
	isTypedef bool
}

// declspec parses a sequence of type (and, when attr is non-nil,
// storage-class) tokens and returns the resulting Type. struct/union/
// typedef-name specifiers are terminal: no further type tokens may
// follow them.
func (p *Parser) declspec(attr *declAttr) *Type {
	if p.atKind(KEYWORD) && p.at("struct") {
		return p.structUnionDecl(true)
	}
	if p.atKind(KEYWORD) && p.at("union") {
		return p.structUnionDecl(false)
	}
	if p.atKind(IDENT) {
		if ty := p.findTypedef(p.cur); ty != nil {
			p.advance()
			return ty
		}
	}

	bits := 0
	var ty *Type = IntType

	for p.isTypeToken() {
		if p.atKind(KEYWORD) && p.at("typedef") {
			if attr == nil {
				p.diag.ErrorTok(p.cur, "storage-class specifier not allowed in this context")
			}
			attr.isTypedef = true
			p.advance()
			continue
		}

		switch {
		case p.at("void"):
			bits += bitVoid
		case p.at("char"):
			bits += bitChar
		case p.at("short"):
			bits += bitShort
		case p.at("int"):
			bits += bitInt
		case p.at("long"):
			bits += bitLong
		}
		p.advance()

		switch bits {
		case bitVoid:
			ty = VoidType
		case bitChar:
			ty = CharType
		case bitShort, bitShort + bitInt:
			ty = ShortType
		case bitInt:
			ty = IntType
		case bitLong, bitLong + bitInt, bitLong + bitLong, bitLong + bitLong + bitInt:
			ty = LongType
		default:
			p.diag.ErrorTok(p.cur, "invalid type")
		}
	}
	return ty
}

// isTypeToken reports whether the current token can continue a declspec:
// a builtin type keyword, "typedef", or a name bound as a typedef alias.
func (p *Parser) isTypeToken() bool {
	if p.atKind(KEYWORD) {
		switch {
		case p.at("void"), p.at("char"), p.at("short"), p.at("int"), p.at("long"), p.at("typedef"):
			return true
		}
		return false
	}
	if p.atKind(IDENT) {
		return p.findTypedef(p.cur) != nil
	}
	return false
}

func (p *Parser) findTypedef(tok *Token) *Type {
	b, ok := p.scope.FindVar(p.text(tok))
	if !ok || b.Typedef == nil {
		return nil
	}
	return b.Typedef
}

//  declarator

// declarator parses "*"* ("(" declarator ")" | ident) type_suffix and
// returns the full type, with ty as the base type it decorates.
// Parenthesized declarators are handled by snapshotting the cursor
// before a placeholder recursion and replaying once the base type
// suffix is known, per spec §4.E.
func (p *Parser) declarator(ty *Type) (*Type, *Token) {
	for p.at("*") {
		p.advance()
		ty = PointerTo(ty)
	}

	if p.at("(") {
		start := p.cur
		p.advance()
		p.declarator(&Type{}) // dummy recursion to skip past the nested declarator
		p.skip(")")
		ty = p.typeSuffix(ty)

		end := p.cur
		p.cur = start.Next // replay from just inside the '('
		inner, name := p.declarator(ty)
		p.cur = end
		return inner, name
	}

	var name *Token
	if p.atKind(IDENT) {
		name = p.advance()
	}
	ty = p.typeSuffix(ty)
	return ty, name
}

// abstractDeclarator is declarator without a name, used for type_name
// (casts, sizeof(type), parameter types with no parameter name).
func (p *Parser) abstractDeclarator(ty *Type) *Type {
	for p.at("*") {
		p.advance()
		ty = PointerTo(ty)
	}
	if p.at("(") {
		start := p.cur
		p.advance()
		p.abstractDeclarator(&Type{})
		p.skip(")")
		ty = p.typeSuffix(ty)

		end := p.cur
		p.cur = start.Next
		inner := p.abstractDeclarator(ty)
		p.cur = end
		return inner
	}
	return p.typeSuffix(ty)
}

// typeName parses "(" type_name ")" style type specifications used by
// cast and sizeof.
func (p *Parser) typeName() *Type {
	ty := p.declspec(nil)
	return p.abstractDeclarator(ty)
}

// typeSuffix parses "(" func_params | "[" number "]" type_suffix | ε.
func (p *Parser) typeSuffix(ty *Type) *Type {
	if p.at("(") {
		return p.funcParams(ty)
	}
	if p.at("[") {
		p.advance()
		lenTok := p.cur
		if !p.atKind(NUM) {
			p.diag.ErrorTok(p.cur, "expected array length")
		}
		p.advance()
		p.skip("]")
		base := p.typeSuffix(ty)
		return ArrayOf(base, int(lenTok.Val))
	}
	return ty
}

// funcParams parses the parameter list of a function declarator; the
// opening "(" is consumed here.
func (p *Parser) funcParams(retTy *Type) *Type {
	p.advance() // "("
	ft := FuncType(retTy)
	var head, tail *Type
	for !p.at(")") {
		if head != nil {
			p.skip(",")
		}
		pty := p.declspec(nil)
		var pname *Token
		pty, pname = p.declarator(pty)
		pty = CopyType(pty)
		pty.Name = pname
		if head == nil {
			head = pty
			tail = pty
		} else {
			tail.Next = pty
			tail = pty
		}
	}
	p.skip(")")
	ft.Params = head
	return ft
}

//  struct / union

func (p *Parser) structUnionDecl(isStruct bool) *Type {
	p.advance() // "struct" or "union"

	var tag *Token
	if p.atKind(IDENT) {
		tag = p.advance()
	}

	if tag != nil && !p.at("{") {
		if ty, ok := p.scope.FindTag(p.text(tag)); ok {
			return ty
		}
		p.diag.ErrorTok(tag, "unknown struct/union tag")
	}

	p.skip("{")
	var head, tail *Member
	for !p.at("}") {
		mty := p.declspec(nil)
		first := true
		for !p.at(";") {
			if !first {
				p.skip(",")
			}
			first = false
			fty, name := p.declarator(mty)
			m := &Member{Name: name, Type: fty}
			if head == nil {
				head = m
				tail = m
			} else {
				tail.Next = m
				tail = m
			}
		}
		p.skip(";")
	}
	p.skip("}")

	ty := &Type{Members: head}
	if isStruct {
		ty.Kind = TyStruct
		layoutStruct(ty)
	} else {
		ty.Kind = TyUnion
		layoutUnion(ty)
	}

	if tag != nil {
		p.scope.PushTag(p.text(tag), ty)
	}
	return ty
}

// layoutStruct assigns each member's offset, rounding up to its
// alignment, and computes the struct's own size/align (spec §4.E).
func layoutStruct(ty *Type) {
	offset := 0
	align := 1
	for m := ty.Members; m != nil; m = m.Next {
		offset = roundUp(offset, m.Type.Align)
		m.Offset = offset
		offset += m.Type.Size
		if m.Type.Align > align {
			align = m.Type.Align
		}
	}
	ty.Align = align
	ty.Size = roundUp(offset, align)
}

// layoutUnion gives every member offset 0; the union's size is the
// largest member size rounded up to the largest member alignment.
func layoutUnion(ty *Type) {
	align := 1
	size := 0
	for m := ty.Members; m != nil; m = m.Next {
		m.Offset = 0
		if m.Type.Align > align {
			align = m.Type.Align
		}
		if m.Type.Size > size {
			size = m.Type.Size
		}
	}
	ty.Align = align
	ty.Size = roundUp(size, align)
}

func roundUp(n, align int) int {
	return (n + align - 1) / align * align
}

//  program

// Parse tokenizes nothing itself (tokens are supplied by Lex); it walks
// the top level and returns the accumulated global list.
func Parse(src []byte, toks *Token, diag *Diag) *Symbol {
	p := NewParser(src, toks, diag)
	for !p.atKind(EOF) {
		var attr declAttr
		baseTy := p.declspec(&attr)

		if attr.isTypedef {
			p.parseTypedef(baseTy)
			continue
		}

		first := true
		for !p.at(";") {
			if !first {
				p.skip(",")
			}
			first = false

			ty, name := p.declarator(baseTy)
			if name == nil {
				p.diag.ErrorTok(p.cur, "expected a declarator name")
			}

			if IsFunction(ty) {
				p.functionDef(ty, name)
				first = false
				break
			}
			p.globalVar(ty, name)
		}
		if p.at(";") {
			p.advance()
		}
	}
	return p.globals
}

func (p *Parser) parseTypedef(baseTy *Type) {
	first := true
	for !p.at(";") {
		if !first {
			p.skip(",")
		}
		first = false
		ty, name := p.declarator(baseTy)
		if name == nil {
			p.diag.ErrorTok(p.cur, "typedef name omitted")
		}
		p.scope.PushTypedef(p.text(name), ty)
	}
	p.skip(";")
}

func (p *Parser) globalVar(ty *Type, name *Token) {
	sym := &Symbol{Name: p.text(name), Type: ty}
	p.scope.PushVar(sym.Name, sym)
	p.addGlobal(sym)
}

// functionDef parses a function prototype or definition. ty's
// ReturnType/Params were built by typeSuffix; name is the function
// identifier. A declaration with no body (just ";") is a prototype and
// contributes no codegen output.
func (p *Parser) functionDef(ty *Type, name *Token) {
	sym := &Symbol{Name: p.text(name), Type: ty, IsFunction: true}
	p.scope.PushVar(sym.Name, sym)
	p.addGlobal(sym)

	if p.at(";") {
		p.advance()
		return
	}

	prevFunc, prevRet := p.curFunc, p.curRetType
	p.curFunc, p.curRetType = sym, ty.ReturnType
	p.scope.EnterScope()

	// Parameters are bound like any other local, and are appended to
	// Locals first so assignLocalOffsets reserves frame space for them
	// (spec §4.F's frame layout makes no distinction between a
	// parameter's slot and a declared local's slot).
	for pt := ty.Params; pt != nil; pt = pt.Next {
		psym := &Symbol{Name: "", Type: pt, IsLocal: true}
		if pt.Name != nil {
			psym.Name = p.text(pt.Name)
		}
		p.scope.PushVar(psym.Name, psym)
		p.appendLocal(psym)
		sym.NumParams++
	}

	p.skip("{")
	body := p.compoundStmt()
	sym.Body = body
	sym.IsDefinition = true

	p.scope.LeaveScope()
	p.curFunc, p.curRetType = prevFunc, prevRet
}

//  statements

func (p *Parser) compoundStmt() *BlockStmt {
	tok := p.cur
	p.scope.EnterScope()
	var body []Stmt
	for !p.at("}") {
		if (p.isTypeToken() || p.at("struct") || p.at("union")) && !(p.atKind(IDENT) && p.peekAheadIsCall()) {
			var attr declAttr
			baseTy := p.declspec(&attr)
			if attr.isTypedef {
				p.parseTypedef(baseTy)
				continue
			}
			first := true
			for !p.at(";") {
				if !first {
					p.skip(",")
				}
				first = false
				ty, name := p.declarator(baseTy)
				if name == nil {
					p.diag.ErrorTok(p.cur, "variable name omitted")
				}
				lsym := &Symbol{Name: p.text(name), Type: ty, IsLocal: true}
				p.scope.PushVar(lsym.Name, lsym)
				p.appendLocal(lsym)
				if p.at("=") {
					initTok := p.advance()
					rhs := p.assign()
					lhs := &VarExpr{base: base{Tok: name}, Sym: lsym}
					assign := &AssignExpr{base: base{Tok: initTok}, Lhs: lhs, Rhs: rhs}
					p.addType(assign)
					body = append(body, &ExprStmt{stmtBase: stmtBase{Tok: initTok}, Expr: assign})
				}
			}
			p.skip(";")
			continue
		}
		s := p.stmt()
		p.addType(s)
		body = append(body, s)
	}
	p.advance() // "}"
	p.scope.LeaveScope()
	return &BlockStmt{stmtBase: stmtBase{Tok: tok}, Body: body}
}

// peekAheadIsCall disambiguates a typedef-name used as a type from one
// shadowed/used as an ordinary identifier expression; in this subset a
// typedef name is only ever used as a type, so this always reports
// false and exists to document the distinction spec §4.E's grammar
// glosses over.
func (p *Parser) peekAheadIsCall() bool { return false }

func (p *Parser) appendLocal(sym *Symbol) {
	if p.curFunc.Locals == nil {
		p.curFunc.Locals = sym
		return
	}
	last := p.curFunc.Locals
	for last.Next != nil {
		last = last.Next
	}
	last.Next = sym
}

func (p *Parser) stmt() Stmt {
	switch {
	case p.atKind(KEYWORD) && p.at("return"):
		tok := p.advance()
		var expr Expr
		if !p.at(";") {
			expr = p.expr()
			expr = NewCast(expr, p.curRetType)
		}
		p.skip(";")
		return &ReturnStmt{stmtBase: stmtBase{Tok: tok}, Expr: expr}

	case p.atKind(KEYWORD) && p.at("if"):
		tok := p.advance()
		p.skip("(")
		cond := p.expr()
		p.skip(")")
		then := p.stmt()
		var els Stmt
		if p.atKind(KEYWORD) && p.at("else") {
			p.advance()
			els = p.stmt()
		}
		return &IfStmt{stmtBase: stmtBase{Tok: tok}, Cond: cond, Then: then, Else: els}

	case p.atKind(KEYWORD) && p.at("for"):
		tok := p.advance()
		p.skip("(")
		p.scope.EnterScope()
		var init Stmt
		if !p.at(";") {
			init = p.exprStmt()
		} else {
			p.advance()
		}
		var cond Expr
		if !p.at(";") {
			cond = p.expr()
		}
		p.skip(";")
		var inc Stmt
		if !p.at(")") {
			incExpr := p.expr()
			inc = &ExprStmt{stmtBase: stmtBase{Tok: tok}, Expr: incExpr}
		}
		p.skip(")")
		body := p.stmt()
		p.scope.LeaveScope()
		return &ForStmt{stmtBase: stmtBase{Tok: tok}, Init: init, Cond: cond, Inc: inc, Body: body}

	case p.atKind(KEYWORD) && p.at("while"):
		tok := p.advance()
		p.skip("(")
		cond := p.expr()
		p.skip(")")
		body := p.stmt()
		return &ForStmt{stmtBase: stmtBase{Tok: tok}, Cond: cond, Body: body}

	case p.at("{"):
		p.advance()
		return p.compoundStmt()

	default:
		return p.exprStmt()
	}
}

func (p *Parser) exprStmt() Stmt {
	tok := p.cur
	if p.at(";") {
		p.advance()
		return &BlockStmt{stmtBase: stmtBase{Tok: tok}}
	}
	e := p.expr()
	p.skip(";")
	return &ExprStmt{stmtBase: stmtBase{Tok: tok}, Expr: e}
}

//  expressions

func (p *Parser) expr() Expr {
	e := p.assign()
	if p.at(",") {
		tok := p.advance()
		rhs := p.expr()
		e = &CommaExpr{base: base{Tok: tok}, Lhs: e, Rhs: rhs}
		p.addType(e)
	}
	return e
}

func (p *Parser) assign() Expr {
	e := p.equality()
	if p.at("=") {
		tok := p.advance()
		rhs := p.assign()
		e = &AssignExpr{base: base{Tok: tok}, Lhs: e, Rhs: rhs}
		p.addType(e)
	}
	return e
}

func (p *Parser) equality() Expr {
	e := p.relational()
	for {
		switch {
		case p.at("=="):
			tok := p.advance()
			rhs := p.relational()
			e = &EqExpr{binary{base: base{Tok: tok}, Lhs: e, Rhs: rhs}}
		case p.at("!="):
			tok := p.advance()
			rhs := p.relational()
			e = &NeExpr{binary{base: base{Tok: tok}, Lhs: e, Rhs: rhs}}
		default:
			return e
		}
		p.addType(e)
	}
}

func (p *Parser) relational() Expr {
	e := p.add()
	for {
		switch {
		case p.at("<"):
			tok := p.advance()
			rhs := p.add()
			e = &LtExpr{binary{base: base{Tok: tok}, Lhs: e, Rhs: rhs}}
		case p.at("<="):
			tok := p.advance()
			rhs := p.add()
			e = &LeExpr{binary{base: base{Tok: tok}, Lhs: e, Rhs: rhs}}
		case p.at(">"):
			tok := p.advance()
			rhs := p.add()
			e = &LtExpr{binary{base: base{Tok: tok}, Lhs: rhs, Rhs: e}}
		case p.at(">="):
			tok := p.advance()
			rhs := p.add()
			e = &LeExpr{binary{base: base{Tok: tok}, Lhs: rhs, Rhs: e}}
		default:
			return e
		}
		p.addType(e)
	}
}

// newAdd implements the pointer-arithmetic dispatch table of spec §4.E
// for "+": int+int is a plain ADD; int+ptr is swapped to ptr+int;
// ptr+int scales the integer operand by the pointee size; ptr+ptr is an
// error.
func (p *Parser) newAdd(tok *Token, lhs, rhs Expr) Expr {
	p.addType(lhs)
	p.addType(rhs)

	if IsInteger(lhs.Type()) && IsInteger(rhs.Type()) {
		e := &AddExpr{binary{base: base{Tok: tok}, Lhs: lhs, Rhs: rhs}}
		p.addType(e)
		return e
	}
	if IsPointer(lhs.Type()) && IsPointer(rhs.Type()) {
		p.diag.ErrorTok(tok, "invalid operands: pointer + pointer")
	}
	if IsInteger(lhs.Type()) && IsPointer(rhs.Type()) {
		lhs, rhs = rhs, lhs
	}
	scale := &NumExpr{base: base{Tok: tok, Ty: LongType}, Value: int64(lhs.Type().Base.Size)}
	rhs = &MulExpr{binary{base: base{Tok: tok}, Lhs: rhs, Rhs: scale}}
	p.addType(rhs)
	e := &AddExpr{binary{base: base{Tok: tok}, Lhs: lhs, Rhs: rhs}}
	p.addType(e)
	return e
}

// newSub mirrors newAdd for "-": ptr-ptr divides by the element size and
// yields INT; ptr-int scales like ptr+int; int-ptr is an error.
func (p *Parser) newSub(tok *Token, lhs, rhs Expr) Expr {
	p.addType(lhs)
	p.addType(rhs)

	if IsInteger(lhs.Type()) && IsInteger(rhs.Type()) {
		e := &SubExpr{binary{base: base{Tok: tok}, Lhs: lhs, Rhs: rhs}}
		p.addType(e)
		return e
	}
	if IsPointer(lhs.Type()) && IsInteger(rhs.Type()) {
		scale := &NumExpr{base: base{Tok: tok, Ty: LongType}, Value: int64(lhs.Type().Base.Size)}
		scaled := &MulExpr{binary{base: base{Tok: tok}, Lhs: rhs, Rhs: scale}}
		p.addType(scaled)
		e := &SubExpr{binary{base: base{Tok: tok}, Lhs: lhs, Rhs: scaled}}
		e.Ty = lhs.Type()
		return e
	}
	if IsPointer(lhs.Type()) && IsPointer(rhs.Type()) {
		sub := &SubExpr{binary{base: base{Tok: tok}, Lhs: lhs, Rhs: rhs}}
		sub.Ty = IntType
		size := &NumExpr{base: base{Tok: tok, Ty: IntType}, Value: int64(lhs.Type().Base.Size)}
		div := &DivExpr{binary{base: base{Tok: tok}, Lhs: sub, Rhs: size}}
		p.addType(div)
		return div
	}
	p.diag.ErrorTok(tok, "invalid operands for '-'")
	return nil
}

func (p *Parser) add() Expr {
	e := p.mul()
	for {
		switch {
		case p.at("+"):
			tok := p.advance()
			rhs := p.mul()
			e = p.newAdd(tok, e, rhs)
		case p.at("-"):
			tok := p.advance()
			rhs := p.mul()
			e = p.newSub(tok, e, rhs)
		default:
			return e
		}
	}
}

func (p *Parser) mul() Expr {
	e := p.cast()
	for {
		switch {
		case p.at("*"):
			tok := p.advance()
			rhs := p.cast()
			e = &MulExpr{binary{base: base{Tok: tok}, Lhs: e, Rhs: rhs}}
		case p.at("/"):
			tok := p.advance()
			rhs := p.cast()
			e = &DivExpr{binary{base: base{Tok: tok}, Lhs: e, Rhs: rhs}}
		default:
			return e
		}
		p.addType(e)
	}
}

// looksLikeTypeNameAt reports whether tok, the token just inside an open
// "(", starts a type_name, used to disambiguate a cast from a parenthesized
// expression.
func (p *Parser) looksLikeTypeNameAt(tok *Token) bool {
	if tok.Kind == KEYWORD {
		switch tok.Text(p.src) {
		case "void", "char", "short", "int", "long", "struct", "union":
			return true
		}
		return false
	}
	if tok.Kind == IDENT {
		return p.findTypedef(tok) != nil
	}
	return false
}

func (p *Parser) cast() Expr {
	if p.at("(") && p.looksLikeTypeNameAt(p.cur.Next) {
		tok := p.advance() // "("
		ty := p.typeName()
		p.skip(")")
		inner := p.cast()
		e := NewCast(inner, ty)
		e.(*CastExpr).Tok = tok
		return e
	}
	return p.unary()
}

func (p *Parser) unary() Expr {
	switch {
	case p.at("+"):
		p.advance()
		return p.cast()
	case p.at("-"):
		tok := p.advance()
		inner := p.cast()
		e := &NegExpr{base: base{Tok: tok}, Expr: inner}
		p.addType(e)
		return e
	case p.at("&"):
		tok := p.advance()
		inner := p.cast()
		e := &AddrExpr{base: base{Tok: tok}, Expr: inner}
		p.addType(e)
		return e
	case p.at("*"):
		tok := p.advance()
		inner := p.cast()
		e := &DerefExpr{base: base{Tok: tok}, Expr: inner}
		p.addType(e)
		return e
	default:
		return p.postfix()
	}
}

func (p *Parser) postfix() Expr {
	e := p.primary()
	for {
		switch {
		case p.at("["):
			tok := p.advance()
			idx := p.expr()
			p.skip("]")
			e = p.newAdd(tok, e, idx)
			e = &DerefExpr{base: base{Tok: tok}, Expr: e}
			p.addType(e)
		case p.at("."):
			p.advance()
			e = p.structRef(e)
		case p.at("->"):
			p.advance()
			d := &DerefExpr{base: base{Tok: p.cur}, Expr: e}
			p.addType(d)
			e = p.structRef(d)
		default:
			return e
		}
	}
}

func (p *Parser) structRef(lhs Expr) Expr {
	p.addType(lhs)
	if lhs.Type().Kind != TyStruct && lhs.Type().Kind != TyUnion {
		p.diag.ErrorTok(lhs.token(), "not a struct nor a union")
	}
	nameTok := p.expectIdent()
	m := findMember(lhs.Type(), p.text(nameTok), p.src)
	if m == nil {
		p.diag.ErrorTok(nameTok, "no such member")
	}
	e := &MemberExpr{base: base{Tok: nameTok}, Expr: lhs, Member: m}
	p.addType(e)
	return e
}

func (p *Parser) primary() Expr {
	tok := p.cur

	if p.at("(") && p.cur.Next != nil && p.cur.Next.is(p.src, "{") {
		p.advance() // "("
		p.advance() // "{"
		var stmts []Stmt
		for !p.at("}") {
			s := p.stmt()
			p.addType(s)
			stmts = append(stmts, s)
		}
		p.advance() // "}"
		p.skip(")")
		if len(stmts) == 0 {
			p.diag.ErrorTok(tok, "statement expression returning void is not supported")
		}
		last, ok := stmts[len(stmts)-1].(*ExprStmt)
		if !ok {
			p.diag.ErrorTok(tok, "statement expression returning void is not supported")
		}
		e := &StmtExprExpr{base: base{Tok: tok, Ty: last.Expr.Type()}, Body: stmts}
		return e
	}

	if p.at("(") {
		p.advance()
		e := p.expr()
		p.skip(")")
		return e
	}

	if p.atKind(KEYWORD) && p.at("sizeof") {
		p.advance()
		if p.at("(") && p.looksLikeTypeNameAt(p.cur.Next) {
			p.advance()
			ty := p.typeName()
			p.skip(")")
			return &NumExpr{base: base{Tok: tok, Ty: LongType}, Value: int64(ty.Size)}
		}
		inner := p.unary()
		p.addType(inner)
		return &NumExpr{base: base{Tok: tok, Ty: LongType}, Value: int64(inner.Type().Size)}
	}

	if p.atKind(NUM) {
		p.advance()
		ty := IntType
		if tok.Val < -2147483648 || tok.Val > 2147483647 {
			ty = LongType
		}
		return &NumExpr{base: base{Tok: tok, Ty: ty}, Value: tok.Val}
	}

	if p.atKind(STR) {
		p.advance()
		sym := p.newStringLiteral(tok)
		return &VarExpr{base: base{Tok: tok, Ty: sym.Type}, Sym: sym}
	}

	if p.atKind(IDENT) {
		p.advance()
		if p.at("(") {
			return p.funcall(tok)
		}
		b, ok := p.scope.FindVar(p.text(tok))
		if !ok || b.Sym == nil {
			p.diag.ErrorTok(tok, "undefined variable")
		}
		return &VarExpr{base: base{Tok: tok, Ty: b.Sym.Type}, Sym: b.Sym}
	}

	p.diag.ErrorTok(tok, "expected an expression")
	return nil
}

// newStringLiteral installs the decoded string payload as an anonymous
// global (".L..<n>") and returns its Symbol, per spec §4.E.
func (p *Parser) newStringLiteral(tok *Token) *Symbol {
	name := fmt.Sprintf(".L..%d", p.labels)
	p.labels++
	sym := &Symbol{Name: name, Type: tok.StrType, InitData: tok.StrVal}
	p.addGlobal(sym)
	return sym
}

// funcall parses the argument list of a call whose callee name token is
// nameTok (already consumed) and the current token is "(".
func (p *Parser) funcall(nameTok *Token) Expr {
	b, ok := p.scope.FindVar(p.text(nameTok))
	if !ok || b.Sym == nil || !IsFunction(b.Sym.Type) {
		p.diag.ErrorTok(nameTok, "implicit declaration of a function")
	}
	fnType := b.Sym.Type

	p.advance() // "("
	var args []Expr
	paramTy := fnType.Params
	for !p.at(")") {
		if len(args) > 0 {
			p.skip(",")
		}
		arg := p.assign()
		p.addType(arg)
		if arg.Type().Kind == TyStruct || arg.Type().Kind == TyUnion {
			p.diag.ErrorTok(arg.token(), "passing a struct/union by value is not supported")
		}
		if paramTy != nil {
			arg = NewCast(arg, paramTy)
			paramTy = paramTy.Next
		}
		if len(args) >= 6 {
			p.diag.ErrorTok(arg.token(), "too many arguments")
		}
		args = append(args, arg)
	}
	p.skip(")")

	e := &FuncallExpr{base: base{Tok: nameTok, Ty: fnType.ReturnType}, FuncName: p.text(nameTok), FuncType: fnType, Args: args}
	return e
}

//  post-order type annotation (spec §4.B)

// addType is the recursive post-order type annotator. It is a Parser
// method (not a package-level function over a global Diag) so every
// fatal-error call site reaches diagnostics through an explicit field,
// matching the no-module-global-state decision already made for Diag
// and Scope.
func (p *Parser) addType(node Node) {
	if node == nil {
		return
	}
	if e, ok := node.(Expr); ok && e.Type() != nil {
		return
	}

	switch n := node.(type) {
	case *NumExpr:
		if n.Ty == nil {
			if n.Value >= -2147483648 && n.Value <= 2147483647 {
				n.Ty = IntType
			} else {
				n.Ty = LongType
			}
		}
	case *VarExpr:
		n.Ty = n.Sym.Type
	case *NegExpr:
		p.addType(n.Expr)
		// chibicc also inserts a NewCast of Expr to the common type here;
		// omitted because genExpr's *NegExpr case widths its negation off
		// n.Type() (set below), not off n.Expr.Type(), so the uncast operand
		// is never observed at a width that would matter.
		n.Ty = CommonType(IntType, n.Expr.Type())
	case *AddExpr:
		p.addType(n.Lhs)
		p.addType(n.Rhs)
		n.Lhs, n.Rhs, n.Ty = usualArithConv(n.Lhs, n.Rhs)
	case *SubExpr:
		p.addType(n.Lhs)
		p.addType(n.Rhs)
		n.Lhs, n.Rhs, n.Ty = usualArithConv(n.Lhs, n.Rhs)
	case *MulExpr:
		p.addType(n.Lhs)
		p.addType(n.Rhs)
		n.Lhs, n.Rhs, n.Ty = usualArithConv(n.Lhs, n.Rhs)
	case *DivExpr:
		p.addType(n.Lhs)
		p.addType(n.Rhs)
		n.Lhs, n.Rhs, n.Ty = usualArithConv(n.Lhs, n.Rhs)
	case *EqExpr:
		p.addType(n.Lhs)
		p.addType(n.Rhs)
		n.Lhs, n.Rhs, _ = usualArithConv(n.Lhs, n.Rhs)
		n.Ty = IntType
	case *NeExpr:
		p.addType(n.Lhs)
		p.addType(n.Rhs)
		n.Lhs, n.Rhs, _ = usualArithConv(n.Lhs, n.Rhs)
		n.Ty = IntType
	case *LtExpr:
		p.addType(n.Lhs)
		p.addType(n.Rhs)
		n.Lhs, n.Rhs, _ = usualArithConv(n.Lhs, n.Rhs)
		n.Ty = IntType
	case *LeExpr:
		p.addType(n.Lhs)
		p.addType(n.Rhs)
		n.Lhs, n.Rhs, _ = usualArithConv(n.Lhs, n.Rhs)
		n.Ty = IntType
	case *AssignExpr:
		p.addType(n.Lhs)
		p.addType(n.Rhs)
		if n.Lhs.Type().Kind == TyArray {
			p.diag.ErrorTok(n.Lhs.token(), "not an lvalue")
		}
		if n.Lhs.Type().Kind != TyStruct && n.Lhs.Type().Kind != TyUnion {
			n.Rhs = NewCast(n.Rhs, n.Lhs.Type())
		}
		n.Ty = n.Lhs.Type()
	case *CommaExpr:
		p.addType(n.Lhs)
		p.addType(n.Rhs)
		n.Ty = n.Rhs.Type()
	case *AddrExpr:
		p.addType(n.Expr)
		if n.Expr.Type().Kind == TyArray {
			n.Ty = PointerTo(n.Expr.Type().Base)
		} else {
			n.Ty = PointerTo(n.Expr.Type())
		}
	case *DerefExpr:
		p.addType(n.Expr)
		if n.Expr.Type().Base == nil {
			p.diag.ErrorTok(n.Tok, "invalid pointer dereference")
		}
		if n.Expr.Type().Base.Kind == TyVoid {
			p.diag.ErrorTok(n.Tok, "dereferencing a void pointer")
		}
		n.Ty = n.Expr.Type().Base
	case *MemberExpr:
		p.addType(n.Expr)
		n.Ty = n.Member.Type
	case *CastExpr:
		p.addType(n.Expr)
	case *FuncallExpr:
		for _, a := range n.Args {
			p.addType(a)
		}
		n.Ty = n.FuncType.ReturnType
	case *StmtExprExpr:
		for _, s := range n.Body {
			p.addType(s)
		}
	case *ReturnStmt:
		p.addType(n.Expr)
	case *IfStmt:
		p.addType(n.Cond)
		p.addType(n.Then)
		p.addType(n.Else)
	case *ForStmt:
		p.addType(n.Init)
		p.addType(n.Cond)
		p.addType(n.Inc)
		p.addType(n.Body)
	case *BlockStmt:
		for _, s := range n.Body {
			p.addType(s)
		}
	case *ExprStmt:
		p.addType(n.Expr)
	default:
		panic(fmt.Sprintf("addType: unreachable node type %T", node))
	}
}
