// Package bisym implements the core exploration engine of a bidirectional
// symbolic execution system: a scheduler that alternates forward execution,
// isolated branch execution, backward proof-obligation propagation, and
// initialization of isolated states, reasoning about reachability of marked
// program points with the help of an external SMT solver.
package bisym

import (
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

// Standard bit widths used throughout the expression algebra.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

// Solver collaborator errors. A solver returning one of these is downgraded
// to an Unknown response rather than treated as a fatal failure.
var (
	ErrSolverTimeout       = errors.New("bisym: solver timeout")
	ErrSolverCanceled      = errors.New("bisym: solver canceled")
	ErrSolverResourceLimit = errors.New("bisym: solver resource limit")
	ErrSolverUnknown       = errors.New("bisym: solver unknown")
)

// Errors surfaced by the searcher/scheduler infrastructure.
var (
	ErrNoStateAvailable       = errors.New("bisym: no state available")
	ErrNoPropagationAvailable = errors.New("bisym: no propagation available")
	ErrNoInstructionAvailable = errors.New("bisym: no instruction available")
	ErrEmptySearcher          = errors.New("bisym: selectAction called on empty searcher")
)

// assert panics if condition is false. Used for programming-error contracts
// (duplicate insert, update/remove of an absent key, and similar invariant
// violations) per the fail-fast taxonomy in SPEC_FULL.md §7.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}

// dump renders v with field names for inclusion in a panic/log message,
// since the default %v on a deeply nested state/pob is unreadable.
func dump(v interface{}) string {
	return spew.Sdump(v)
}
