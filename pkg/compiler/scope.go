package compiler

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// binding is what a name resolves to in the variable namespace: either a
// bound Symbol (local, global, or function) or a typedef alias, never
// both (spec §4.D: "a binding is either a variable or a typedef alias").
type binding struct {
	Sym     *Symbol
	Typedef *Type
}

// scopeFrame is one lexical frame: a variable-name→binding map (which
// also holds typedef aliases) and a struct/union-tag-name→type map,
// exactly as spec §3 describes.
type scopeFrame struct {
	vars map[string]*binding
	tags map[string]*Type
}

func newScopeFrame() *scopeFrame {
	return &scopeFrame{vars: make(map[string]*binding), tags: make(map[string]*Type)}
}

type cacheKey struct {
	gen  uint64
	name string
}

// Scope is the symbol & scope manager of spec §4.D: a stack of frames,
// innermost-first lookup, insertion always into the top frame. The
// outermost frame is pushed once by NewScope and persists for the whole
// compilation (the "global scope" of spec §4.D).
//
// FindVar/FindTag consult a small generation-keyed LRU before doing the
// linear scan (spec_full.md §4.D): every EnterScope/LeaveScope and every
// PushVar/PushTypedef/PushTag bumps gen, which makes cache entries from a
// since-changed scope configuration
// simply unreachable by key rather than something that needs explicit
// invalidation. This speeds up the common case of a name referenced
// repeatedly inside one loop body without changing lookup semantics.
type Scope struct {
	frames []*scopeFrame
	gen    uint64
	cache  *lru.Cache[cacheKey, *binding]
	tagCache *lru.Cache[cacheKey, *Type]
}

// NewScope creates a scope manager with its persistent global frame
// already pushed.
func NewScope() *Scope {
	cache, _ := lru.New[cacheKey, *binding](256)
	tagCache, _ := lru.New[cacheKey, *Type](64)
	s := &Scope{cache: cache, tagCache: tagCache}
	s.frames = append(s.frames, newScopeFrame())
	return s
}

// EnterScope pushes a fresh lexical frame.
func (s *Scope) EnterScope() {
	s.frames = append(s.frames, newScopeFrame())
	s.gen++
}

// LeaveScope pops the innermost frame. The outermost (global) frame is
// never popped.
func (s *Scope) LeaveScope() {
	if len(s.frames) <= 1 {
		return
	}
	s.frames = s.frames[:len(s.frames)-1]
	s.gen++
}

func (s *Scope) top() *scopeFrame {
	return s.frames[len(s.frames)-1]
}

// PushVar binds name to sym in the current (innermost) frame. gen is
// bumped so a FindVar cached before this declaration (possibly for the
// same name, shadowed by this one) is never returned afterward: C allows
// "use x; declare a new x; use x" within a single block, where the two
// uses must resolve differently despite no EnterScope/LeaveScope between
// them.
func (s *Scope) PushVar(name string, sym *Symbol) {
	s.top().vars[name] = &binding{Sym: sym}
	s.gen++
}

// PushTypedef binds name as a typedef alias for ty in the current frame.
func (s *Scope) PushTypedef(name string, ty *Type) {
	s.top().vars[name] = &binding{Typedef: ty}
	s.gen++
}

// PushTag binds a struct/union tag name to ty in the current frame.
func (s *Scope) PushTag(name string, ty *Type) {
	s.top().tags[name] = ty
	s.gen++
}

// FindVar resolves name to its binding, searching innermost frame first.
func (s *Scope) FindVar(name string) (*binding, bool) {
	key := cacheKey{gen: s.gen, name: name}
	if b, ok := s.cache.Get(key); ok {
		return b, true
	}
	for i := len(s.frames) - 1; i >= 0; i-- {
		if b, ok := s.frames[i].vars[name]; ok {
			s.cache.Add(key, b)
			return b, true
		}
	}
	return nil, false
}

// FindTag resolves a struct/union tag name, innermost frame first.
func (s *Scope) FindTag(name string) (*Type, bool) {
	key := cacheKey{gen: s.gen, name: name}
	if t, ok := s.tagCache.Get(key); ok {
		return t, true
	}
	for i := len(s.frames) - 1; i >= 0; i-- {
		if t, ok := s.frames[i].tags[name]; ok {
			s.tagCache.Add(key, t)
			return t, true
		}
	}
	return nil, false
}

// Symbol is the Object of spec §3: a bound name, representing a local or
// global variable, a function, or the anonymous global backing a string
// literal.
type Symbol struct {
	Name string
	Type *Type

	IsLocal      bool
	IsFunction   bool
	IsDefinition bool // false for a function prototype with no body

	Offset int // frame offset, locals only: strictly negative, see FrameSize

	InitData []byte // globals only, present when the global has an initializer

	// Locals is the function's local-variable list, via Next. Parameters
	// are the first entries of this same list (in source order, ahead of every
	// body declaration) so assignLocalOffsets gives them frame space
	// exactly like any other local; NumParams is how many of the leading
	// entries are parameters, for codegen's argument-spill loop.
	Locals    *Symbol
	NumParams int
	Body      Stmt // functions only: the parsed body (typically *BlockStmt)

	FrameSize int // functions only: multiple of 16

	Next *Symbol // list link: globals list, or Locals list
}
