// Package solvertest provides a trivial in-memory Solver implementation
// for tests that need a Solver collaborator but must not depend on a real
// SMT binding. It is intentionally too weak to decide anything beyond
// literal true/false constants; callers that need MustBeTrue/MayBeTrue to
// resolve a real formula should seed Fake.Decisions instead.
package solvertest

import "github.com/gosymex/bisym"

// Fake is a Solver stand-in. Decisions maps an expression's String() to a
// forced satisfiability outcome; anything not listed is treated as
// satisfiable (the conservative default MayBeTrue/MustBeTrue expect for an
// unknown formula).
type Fake struct {
	Decisions map[string]bool
	Err       error
}

// New returns a Fake with no forced decisions.
func New() *Fake {
	return &Fake{Decisions: make(map[string]bool)}
}

func (f *Fake) Solve(constraints []bisym.Expr, arrays []*bisym.Array) (bool, [][]byte, error) {
	if f.Err != nil {
		return false, nil, f.Err
	}
	sat := true
	for _, c := range constraints {
		if v, ok := f.Decisions[c.String()]; ok {
			sat = sat && v
		}
	}
	if !sat {
		return false, nil, nil
	}
	values := make([][]byte, len(arrays))
	for i, a := range arrays {
		values[i] = make([]byte, a.Size)
	}
	return true, values, nil
}
