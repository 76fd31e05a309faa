package bisym_test

import (
	"testing"

	"golang.org/x/tools/go/ssa"

	"github.com/gosymex/bisym"
	"github.com/gosymex/bisym/internal/solvertest"
)

type fakeResolver struct {
	arg      bisym.Expr
	instr    bisym.Expr
	global   *bisym.Array
	resolved bool
	guard    bisym.Expr
	addr     *bisym.Array
	size     *bisym.Array
	content  *bisym.Array
}

func (r *fakeResolver) Argument(fn *ssa.Function, index int) bisym.Expr         { return r.arg }
func (r *fakeResolver) Instruction(instr ssa.Instruction, index int) bisym.Expr { return r.instr }
func (r *fakeResolver) Global(g *ssa.Global) *bisym.Array                       { return r.global }
func (r *fakeResolver) ResolvePointer(outer *bisym.ExecutionState, ptr bisym.Expr) (bisym.Expr, *bisym.Array, *bisym.Array, *bisym.Array, bool) {
	return r.guard, r.addr, r.size, r.content, r.resolved
}

func TestComposeVisitor_Constant(t *testing.T) {
	outer := bisym.NewExecutionState(1, testFunction())
	v := bisym.NewComposeVisitor(outer, &fakeResolver{}, nil)

	c := bisym.NewConstantExpr(7, 32)
	safety, composed := v.Compose(c)

	if composed != c {
		t.Fatalf("expected constant to compose unchanged, got %v", composed)
	}
	if !bisym.IsConstantTrue(safety) {
		t.Fatalf("expected trivial safety condition, got %v", safety)
	}
}

func TestComposeVisitor_ArgumentRead(t *testing.T) {
	outer := bisym.NewExecutionState(1, testFunction())
	resolver := &fakeResolver{arg: bisym.NewConstantExpr(0x42, 32)}
	v := bisym.NewComposeVisitor(outer, resolver, nil)

	array := bisym.NewArray(1, 4, bisym.ArgumentSource{Index: 0})
	read := bisym.NewReadExpr(array, bisym.NewConstantExpr32(0))

	_, composed := v.Compose(read)
	byteVal, ok := composed.(*bisym.ConstantExpr)
	if !ok {
		t.Fatalf("expected a byte extracted from the resolved argument, got %T", composed)
	}
	if byteVal.Value != 0x42 || byteVal.Width != bisym.Width8 {
		t.Fatalf("unexpected extracted byte: value=%#x width=%d", byteVal.Value, byteVal.Width)
	}
}

func TestComposeVisitor_LazyInitAccumulatesSafety(t *testing.T) {
	outer := bisym.NewExecutionState(1, testFunction())
	guardByte := bisym.NewReadExpr(bisym.NewArray(2, 1, bisym.SymbolicSizeConstantSource{Name: "guard"}), bisym.NewConstantExpr32(0))
	guard := bisym.NewBinaryExpr(bisym.EQ, guardByte, bisym.NewConstantExpr(1, bisym.Width8))
	contentArr := bisym.NewArray(3, 1, bisym.SymbolicSizeConstantSource{Name: "content"})
	resolver := &fakeResolver{resolved: true, guard: guard, content: contentArr}
	v := bisym.NewComposeVisitor(outer, resolver, nil)

	ptr := bisym.NewConstantExpr(0x1000, 64)
	array := bisym.NewArray(4, 1, bisym.LazyInitContentSource{Pointer: ptr})
	read := bisym.NewReadExpr(array, bisym.NewConstantExpr32(0))

	safety, composed := v.Compose(read)
	if _, ok := composed.(*bisym.ReadExpr); !ok {
		t.Fatalf("expected a read against the resolved content array, got %T", composed)
	}
	if bisym.IsConstantTrue(safety) {
		t.Fatal("expected the resolved guard to surface in the safety condition")
	}
}

// steppingResolver returns a distinct guard on each successive
// ResolvePointer call, letting a test give the true and false branches of
// a select different safety obligations.
type steppingResolver struct {
	calls               int
	guards              []bisym.Expr
	addr, size, content *bisym.Array
}

func (r *steppingResolver) Argument(fn *ssa.Function, index int) bisym.Expr         { return nil }
func (r *steppingResolver) Instruction(instr ssa.Instruction, index int) bisym.Expr { return nil }
func (r *steppingResolver) Global(g *ssa.Global) *bisym.Array                       { return nil }
func (r *steppingResolver) ResolvePointer(outer *bisym.ExecutionState, ptr bisym.Expr) (bisym.Expr, *bisym.Array, *bisym.Array, *bisym.Array, bool) {
	guard := r.guards[r.calls]
	r.calls++
	return guard, r.addr, r.size, r.content, true
}

func TestComposeVisitor_SelectUnresolvedCombinesBranchSafetyWithOr(t *testing.T) {
	outer := bisym.NewExecutionState(1, testFunction())

	condByte := bisym.NewReadExpr(bisym.NewArray(6, 1, bisym.SymbolicSizeConstantSource{Name: "cond"}), bisym.NewConstantExpr32(0))
	cond := bisym.NewBinaryExpr(bisym.EQ, condByte, bisym.NewConstantExpr(1, bisym.Width8))

	trueGuardByte := bisym.NewReadExpr(bisym.NewArray(7, 1, bisym.SymbolicSizeConstantSource{Name: "trueGuard"}), bisym.NewConstantExpr32(0))
	trueGuard := bisym.NewBinaryExpr(bisym.EQ, trueGuardByte, bisym.NewConstantExpr(1, bisym.Width8))
	falseGuardByte := bisym.NewReadExpr(bisym.NewArray(8, 1, bisym.SymbolicSizeConstantSource{Name: "falseGuard"}), bisym.NewConstantExpr32(0))
	falseGuard := bisym.NewBinaryExpr(bisym.EQ, falseGuardByte, bisym.NewConstantExpr(1, bisym.Width8))

	resolver := &steppingResolver{
		guards:  []bisym.Expr{trueGuard, falseGuard},
		content: bisym.NewArray(9, 1, bisym.SymbolicSizeConstantSource{Name: "content"}),
	}
	// fake solver with no forced decisions: cond is neither must-true nor
	// must-false, so visitSelect takes the TrueOrFalse (unresolved) path.
	fake := solvertest.New()
	v := bisym.NewComposeVisitor(outer, resolver, fake)

	truePtr := bisym.NewConstantExpr(0x1000, 64)
	falsePtr := bisym.NewConstantExpr(0x2000, 64)
	trueBranch := bisym.NewReadExpr(bisym.NewArray(10, 1, bisym.LazyInitContentSource{Pointer: truePtr}), bisym.NewConstantExpr32(0))
	falseBranch := bisym.NewReadExpr(bisym.NewArray(11, 1, bisym.LazyInitContentSource{Pointer: falsePtr}), bisym.NewConstantExpr32(0))
	sel := bisym.NewSelectExpr(cond, trueBranch, falseBranch)

	safety, _ := v.Compose(sel)

	or, ok := safety.(*bisym.BinaryExpr)
	if !ok || or.Op != bisym.OR {
		t.Fatalf("expected branch safety combined with OR, got %v (%T)", safety, safety)
	}
	if or.LHS != trueGuard || or.RHS != falseGuard {
		t.Fatalf("expected OR(trueGuard, falseGuard), got OR(%v, %v)", or.LHS, or.RHS)
	}
}

func TestComposeVisitor_SelectForcedByMustBeTrue(t *testing.T) {
	outer := bisym.NewExecutionState(1, testFunction())
	condByte := bisym.NewReadExpr(bisym.NewArray(5, 1, bisym.SymbolicSizeConstantSource{Name: "cond"}), bisym.NewConstantExpr32(0))
	cond := bisym.NewBinaryExpr(bisym.EQ, condByte, bisym.NewConstantExpr(1, bisym.Width8))

	fake := solvertest.New()
	_, composedCond := bisym.NewComposeVisitor(outer, &fakeResolver{}, nil).Compose(cond)
	fake.Decisions[bisym.NewNotExpr(composedCond).String()] = false // composed cond is entailed true

	v := bisym.NewComposeVisitor(outer, &fakeResolver{}, fake)
	trueVal := bisym.NewConstantExpr(1, 32)
	falseVal := bisym.NewConstantExpr(2, 32)
	sel := bisym.NewSelectExpr(cond, trueVal, falseVal)

	_, composed := v.Compose(sel)
	if composed != trueVal {
		t.Fatalf("expected the forced-true branch, got %v", composed)
	}
}
