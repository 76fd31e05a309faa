package bisym

import "golang.org/x/tools/go/ssa"

// OuterResolver looks up concrete-context values the compose visitor
// cannot derive from expression structure alone: register values in the
// outer state, backing objects for globals, and pointer resolution against
// the outer address space (the executor collaborator), per spec.md
// §4.C15.
type OuterResolver interface {
	// Argument returns the outer value bound to a function parameter.
	Argument(fn *ssa.Function, index int) Expr
	// Instruction returns the outer value produced by an SSA instruction.
	Instruction(instr ssa.Instruction, index int) Expr
	// Global returns the backing array for a package-level global.
	Global(g *ssa.Global) *Array
	// ResolvePointer resolves a lazily-initialized pointer against the
	// outer address space, returning a guard expression (asserting the
	// resolution is valid) and the resolved address/size/content arrays.
	ResolvePointer(outer *ExecutionState, ptr Expr) (guard Expr, addr, size, content *Array, ok bool)
}

// ComposeVisitor rewrites an expression produced inside an isolated
// execution against a concrete outer execution state, per spec.md §4.C15.
// Every visit accumulates safety obligations the caller must assert
// alongside the composed result.
type ComposeVisitor struct {
	outer    *ExecutionState
	resolver OuterResolver
	solver   Solver
	safety   []Expr
}

// NewComposeVisitor returns a visitor composing against outer, using
// resolver for register/global/pointer lookups and solver for deciding
// select conditions.
func NewComposeVisitor(outer *ExecutionState, resolver OuterResolver, solver Solver) *ComposeVisitor {
	return &ComposeVisitor{outer: outer, resolver: resolver, solver: solver}
}

// Compose rewrites e against the outer state and returns (safetyCondition,
// composedExpr), per spec.md §4.C15's stated output shape.
func (v *ComposeVisitor) Compose(e Expr) (Expr, Expr) {
	v.safety = nil
	composed := v.visit(e)

	safety := Expr(NewBoolConstantExpr(true))
	for _, s := range v.safety {
		safety = NewBinaryExpr(AND, safety, s)
	}
	return safety, composed
}

func (v *ComposeVisitor) visit(e Expr) Expr {
	switch expr := e.(type) {
	case *ConstantExpr:
		return expr
	case *ReadExpr:
		return v.visitRead(expr)
	case *SelectExpr:
		return v.visitSelect(expr)
	case *BinaryExpr:
		return NewBinaryExpr(expr.Op, v.visit(expr.LHS), v.visit(expr.RHS))
	case *CastExpr:
		return NewCastExpr(v.visit(expr.Src), expr.Width, expr.Signed)
	case *ConcatExpr:
		return NewConcatExpr(v.visit(expr.MSB), v.visit(expr.LSB))
	case *ExtractExpr:
		return NewExtractExpr(v.visit(expr.Expr), expr.Offset, expr.Width)
	case *NotExpr:
		return NewNotExpr(v.visit(expr.Expr))
	case *NotOptimizedExpr:
		return NewNotOptimizedExpr(v.visit(expr.Src))
	default:
		panic("bisym: ComposeVisitor.visit: unhandled expr type")
	}
}

// visitRead dispatches on the array's symbolic source, per spec.md §4.C15.
func (v *ComposeVisitor) visitRead(e *ReadExpr) Expr {
	idx := v.visit(e.Index)

	switch source := e.Array.Source.(type) {
	case ArgumentSource:
		return v.reindex(v.resolver.Argument(source.Func, source.Index), idx)
	case InstructionSource:
		return v.reindex(v.resolver.Instruction(source.Instr, source.Index), idx)
	case GlobalSource:
		return NewReadExpr(v.resolver.Global(source.Global), idx)
	case ConstantVectorSource, SymbolicSizeConstantSource, IrreproducibleSource:
		return NewReadExpr(v.materialize(e.Array, source), idx)
	case SymbolicSizeConstantAddressSource:
		return NewReadExpr(v.rewriteAddress(e.Array, source), idx)
	case LazyInitAddressSource:
		return v.resolveLazy(e.Array, source.Pointer, idx, 0)
	case LazyInitSizeSource:
		return v.resolveLazy(e.Array, source.Pointer, idx, 1)
	case LazyInitContentSource:
		return v.resolveLazy(e.Array, source.Pointer, idx, 2)
	default:
		panic("bisym: ComposeVisitor.visitRead: unhandled array source")
	}
}

// reindex re-anchors idx (an offset into the isolated array) onto val, an
// already-composed outer register value, by extracting the addressed byte.
func (v *ComposeVisitor) reindex(val Expr, idx Expr) Expr {
	c, ok := idx.(*ConstantExpr)
	if !ok {
		return val
	}
	offset := uint(c.Value) * Width8
	if offset+Width8 > ExprWidth(val) {
		return val
	}
	return NewExtractExpr(val, offset, Width8)
}

// materialize reuses the outer state's backing object for source if one
// was already resolved this composition, else allocates a fresh one, per
// spec.md §4.C15's "materialize or reuse" for MakeSymbolic/Irreproducible/
// Constant/SymbolicSizeConstant sources.
func (v *ComposeVisitor) materialize(array *Array, source ArraySource) *Array {
	key := source.String()
	if existing, ok := v.outer.ResolvedPointer(key); ok {
		return existing
	}
	_, outerArray := v.outer.Alloc(array.Size, source)
	v.outer.SetResolvedPointer(key, outerArray)
	return outerArray
}

// rewriteAddress rewrites a symbolic-address array through an existing
// symcrete, or introduces a fresh one, per spec.md §4.C15.
func (v *ComposeVisitor) rewriteAddress(array *Array, source SymbolicSizeConstantAddressSource) *Array {
	key := source.String()
	if existing, ok := v.outer.ResolvedPointer(key); ok {
		return existing
	}
	_, outerArray := v.outer.Alloc(array.Size, source)
	v.outer.SetResolvedPointer(key, outerArray)

	symExpr := NewReadExpr(outerArray, NewConstantExpr32(0))
	v.outer.Constraints().AddSymcrete(symExpr, outerArray)
	return outerArray
}

// resolveLazy resolves a lazy-initialization pointer against the outer
// address space via the executor collaborator, selecting one of the
// (address, size, content) arrays it returns by kind, per spec.md §4.C15.
func (v *ComposeVisitor) resolveLazy(fallback *Array, pointer Expr, idx Expr, kind int) Expr {
	composedPtr := v.visit(pointer)
	guard, addr, size, content, ok := v.resolver.ResolvePointer(v.outer, composedPtr)
	if !ok {
		return NewReadExpr(fallback, idx)
	}
	v.safety = append(v.safety, guard)

	switch kind {
	case 0:
		return NewReadExpr(addr, idx)
	case 1:
		return NewReadExpr(size, idx)
	default:
		return NewReadExpr(content, idx)
	}
}

// visitSelect evaluates the condition against the solver; if it must be
// true/false the result is the corresponding branch composed alone, else
// (TrueOrFalse) both branches are composed under opposing assumptions and
// their safety obligations combined with OR — only the branch actually
// taken at runtime needs its safety to hold, per spec.md §4.C15. A solver
// error adds a false safety obligation before both branches are composed.
func (v *ComposeVisitor) visitSelect(e *SelectExpr) Expr {
	cond := v.visit(e.Cond)

	if v.solver != nil {
		constraints := v.outer.Constraints().Constraints()
		must, err := MustBeTrue(v.solver, constraints, cond)
		var mustFalse bool
		if err == nil && !must {
			mustFalse, err = MustBeTrue(v.solver, constraints, NewNotExpr(cond))
		}
		switch {
		case err != nil:
			v.safety = append(v.safety, NewBoolConstantExpr(false))
		case must:
			return v.visit(e.True)
		case mustFalse:
			return v.visit(e.False)
		}
	}

	trueSafety, trueBranch := v.composeUnder(e.True)
	falseSafety, falseBranch := v.composeUnder(e.False)
	v.safety = append(v.safety, NewBinaryExpr(OR, trueSafety, falseSafety))
	return NewSelectExpr(cond, trueBranch, falseBranch)
}

// composeUnder composes sub in a nested safety scope and returns its
// combined (ANDed) safety obligations alongside the composed result,
// leaving the parent visitor's accumulator untouched; the caller decides
// how to fold the branch's safety back in (visitSelect ORs the two
// branches together per spec.md §4.C15).
func (v *ComposeVisitor) composeUnder(sub Expr) (Expr, Expr) {
	saved := v.safety
	v.safety = nil
	result := v.visit(sub)
	branchSafety := v.safety
	v.safety = saved

	combined := Expr(NewBoolConstantExpr(true))
	for _, s := range branchSafety {
		combined = NewBinaryExpr(AND, combined, s)
	}
	return combined, result
}
