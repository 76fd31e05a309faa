package bisym

// Symcrete pairs a symbolic expression with the array whose concrete value
// currently stands in for it, per spec.md §3's constraint-set data model.
type Symcrete struct {
	Expr  Expr
	Array *Array
}

// ConstraintSet is a set of boolean path constraints (in representative
// form), a set of symcretes, and a concretization assignment mapping array
// ID to a concrete byte sequence. The conjunction of constraints is
// invariant to be SAT under the current concretization; AddConstraint
// forbids adding a constraint that folds to constant false.
type ConstraintSet struct {
	constraints    []Expr
	symcretes      []Symcrete
	concretization map[uint64][]byte
}

// NewConstraintSet returns an empty constraint set.
func NewConstraintSet() *ConstraintSet {
	return &ConstraintSet{concretization: make(map[uint64][]byte)}
}

// Constraints returns the live constraint list.
func (cs *ConstraintSet) Constraints() []Expr { return cs.constraints }

// Symcretes returns the live symcrete list.
func (cs *ConstraintSet) Symcretes() []Symcrete { return cs.symcretes }

// Concretization returns the concrete bytes assigned to array id, if any.
func (cs *ConstraintSet) Concretization(arrayID uint64) ([]byte, bool) {
	v, ok := cs.concretization[arrayID]
	return v, ok
}

// AddConstraint adds expr to the set, splitting a top-level logical AND
// into its two operands (matching the executor's constraint-list
// discipline). delta, if non-nil, rewrites the concretization assignment
// for the arrays it names at the same time — used when a constraint is
// only satisfiable under a refined concrete value. Adding a constraint
// that is constant false is a programming error.
func (cs *ConstraintSet) AddConstraint(expr Expr, delta map[uint64][]byte) {
	if c, ok := expr.(*ConstantExpr); ok {
		assert(c.IsTrue(), "ConstraintSet.AddConstraint: constant-false constraint")
	}
	if b, ok := expr.(*BinaryExpr); ok && b.Op == AND {
		cs.AddConstraint(b.LHS, delta)
		cs.AddConstraint(b.RHS, delta)
		return
	}
	cs.constraints = append(cs.constraints, expr)
	for id, bytes := range delta {
		cs.concretization[id] = bytes
	}
}

// AddSymcrete records that expr's concrete stand-in is array's current
// value.
func (cs *ConstraintSet) AddSymcrete(expr Expr, array *Array) {
	cs.symcretes = append(cs.symcretes, Symcrete{Expr: expr, Array: array})
}

// RewriteConcretization replaces the concrete bytes assigned to arrayID.
func (cs *ConstraintSet) RewriteConcretization(arrayID uint64, bytes []byte) {
	cs.concretization[arrayID] = bytes
}

// Clone returns an independent copy of cs.
func (cs *ConstraintSet) Clone() *ConstraintSet {
	out := &ConstraintSet{
		constraints:    append([]Expr(nil), cs.constraints...),
		symcretes:      append([]Symcrete(nil), cs.symcretes...),
		concretization: make(map[uint64][]byte, len(cs.concretization)),
	}
	for id, bytes := range cs.concretization {
		out.concretization[id] = append([]byte(nil), bytes...)
	}
	return out
}
