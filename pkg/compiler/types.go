package compiler

import (
	"fmt"
	"strings"
)

// TypeKind identifies the category of a Type.
type TypeKind int

const (
	TyVoid TypeKind = iota
	TyChar
	TyShort
	TyInt
	TyLong
	TyPtr
	TyFunc
	TyArray
	TyStruct
	TyUnion
)

var typeKindNames = [...]string{
	TyVoid:   "void",
	TyChar:   "char",
	TyShort:  "short",
	TyInt:    "int",
	TyLong:   "long",
	TyPtr:    "ptr",
	TyFunc:   "func",
	TyArray:  "array",
	TyStruct: "struct",
	TyUnion:  "union",
}

func (k TypeKind) String() string {
	if int(k) >= 0 && int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// Member is a single field of a STRUCT or UNION type.
type Member struct {
	Name   *Token
	Type   *Type
	Offset int
	Next   *Member
}

// Type represents a C type. Base-integer singletons (VoidType, CharType,
// ShortType, IntType, LongType) are shared; every other Type is allocated
// fresh by the constructor that builds it (PointerTo, ArrayOf, FuncType,
// or a struct/union declaration in the parser).
type Type struct {
	Kind  TypeKind
	Size  int // sizeof
	Align int // alignment, in bytes

	Base *Type // PTR, ARRAY: pointee / element type

	Name *Token // declarator name this type was built for, if any

	ArrayLen int // ARRAY: element count

	ReturnType *Type // FUNC: return type
	Params     *Type // FUNC: linked list of parameter types (via Next)
	Next       *Type // FUNC params list link

	Members *Member // STRUCT, UNION
}

// Base-integer singletons, as in original_source/type.c's TyInt and the
// rest of the family this spec adds (CHAR, SHORT, LONG, VOID).
var (
	VoidType  = &Type{Kind: TyVoid, Size: 1, Align: 1}
	CharType  = &Type{Kind: TyChar, Size: 1, Align: 1}
	ShortType = &Type{Kind: TyShort, Size: 2, Align: 2}
	IntType   = &Type{Kind: TyInt, Size: 4, Align: 4}
	LongType  = &Type{Kind: TyLong, Size: 8, Align: 8}
)

// IsInteger reports whether t is one of CHAR/SHORT/INT/LONG.
func IsInteger(t *Type) bool {
	switch t.Kind {
	case TyChar, TyShort, TyInt, TyLong:
		return true
	}
	return false
}

// IsPointer reports whether t is a pointer type.
func IsPointer(t *Type) bool {
	return t.Kind == TyPtr
}

// IsFunction reports whether t is a function type.
func IsFunction(t *Type) bool {
	return t.Kind == TyFunc
}

// PointerTo builds a new pointer type to base. Pointers are always 8
// bytes wide and 8-byte aligned, regardless of the pointee.
func PointerTo(base *Type) *Type {
	return &Type{Kind: TyPtr, Size: 8, Align: 8, Base: base}
}

// FuncType builds a new function type returning returnTy. Params is
// filled in by the caller (the parser), one entry per parameter, linked
// through Next.
func FuncType(returnTy *Type) *Type {
	return &Type{Kind: TyFunc, ReturnType: returnTy}
}

// ArrayOf builds a new array type of len elements of base.
func ArrayOf(base *Type, len int) *Type {
	return &Type{Kind: TyArray, Size: base.Size * len, Align: base.Align, Base: base, ArrayLen: len}
}

// CopyType shallow-clones t. Used when threading a parameter type through
// a function type's Params list, so that the same declared type can be
// reused as the starting point for several parameters without one
// parameter's Next link clobbering another's.
func CopyType(t *Type) *Type {
	clone := *t
	return &clone
}

// CommonType implements the usual-arithmetic promotion rule, simplified
// to pointer/LONG/INT selection as this subset requires: if either
// operand is a pointer, the result is a pointer to that operand's
// pointee; otherwise if either operand is 8 bytes wide the result is
// LONG; otherwise INT.
func CommonType(a, b *Type) *Type {
	if a.Base != nil {
		return PointerTo(a.Base)
	}
	if b.Base != nil {
		return PointerTo(b.Base)
	}
	if a.Size == 8 || b.Size == 8 {
		return LongType
	}
	return IntType
}

// NewCast wraps expr in a CAST node of type to.
func NewCast(expr Expr, to *Type) Expr {
	tok := expr.token()
	return &CastExpr{base: base{Tok: tok, Ty: to}, Expr: expr}
}

// usualArithConv applies CommonType to lhs and rhs and casts whichever
// operand does not already have the resulting type.
func usualArithConv(lhs, rhs Expr) (Expr, Expr, *Type) {
	ty := CommonType(lhs.Type(), rhs.Type())
	if lhs.Type() != ty {
		lhs = NewCast(lhs, ty)
	}
	if rhs.Type() != ty {
		rhs = NewCast(rhs, ty)
	}
	return lhs, rhs, ty
}

// findMember looks up name in a STRUCT/UNION member list.
func findMember(ty *Type, name string, src []byte) *Member {
	for m := ty.Members; m != nil; m = m.Next {
		if m.Name.Text(src) == name {
			return m
		}
	}
	return nil
}

func (t *Type) String() string {
	switch t.Kind {
	case TyPtr:
		return "*" + t.Base.String()
	case TyArray:
		return fmt.Sprintf("%s[%d]", t.Base, t.ArrayLen)
	case TyFunc:
		var params []string
		for p := t.Params; p != nil; p = p.Next {
			params = append(params, p.String())
		}
		return fmt.Sprintf("func(%s) %s", strings.Join(params, ", "), t.ReturnType)
	case TyStruct:
		return "struct"
	case TyUnion:
		return "union"
	default:
		return t.Kind.String()
	}
}
