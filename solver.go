package bisym

// Solver represents the external logical constraint solver collaborator,
// per spec.md's "(external)" tag on the SMT layer. Implementations live
// outside this package (e.g. an SMT-LIB or Z3 binding); the engine only
// depends on this interface.
type Solver interface {
	// Solve returns the satisfiability of constraints. If satisfiable, it
	// also returns one concrete valuation per array in arrays, in order.
	Solve(constraints []Expr, arrays []*Array) (satisfiable bool, values [][]byte, err error)
}

// MayBeTrue reports whether constraints ∧ expr is satisfiable, without
// requesting a model.
func MayBeTrue(solver Solver, constraints []Expr, expr Expr) (bool, error) {
	ok, _, err := solver.Solve(append(append([]Expr(nil), constraints...), expr), nil)
	return ok, err
}

// MustBeTrue reports whether constraints ∧ ¬expr is unsatisfiable, i.e.
// expr is entailed by constraints.
func MustBeTrue(solver Solver, constraints []Expr, expr Expr) (bool, error) {
	ok, err := MayBeTrue(solver, constraints, NewNotExpr(expr))
	if err != nil {
		return false, err
	}
	return !ok, nil
}
