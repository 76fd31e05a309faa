package bisym

// Context owns the unique caches spec.md §9 calls "global mutable state":
// target sets and target histories are content-uniqued per engine session
// rather than process-wide, so multiple engines (e.g. in tests) can run
// concurrently without sharing identity. Builders that need uniquing accept
// a *Context borrow, per the design note's recommendation.
//
// Expression equality (Expr/CompareExpr) is intentionally left structural
// rather than routed through Context: every Expr constructor already folds
// to a canonical form (see expr.go), so two structurally-equal expressions
// compare equal via CompareExpr everywhere the engine cares about equality
// (constraint sets, simplifier, compose visitor). Literal pointer-interning
// every expression node would require threading *Context through ~80 mutually
// recursive constructors for a benefit that is purely a memory/perf
// optimization, not a correctness one.
//
// Array is deliberately NOT content-uniqued here despite spec.md §3's
// "Arrays are uniqued": an Array's ID is allocated from an ExecutionState's
// per-state address counter (state.go's Alloc), not from a session-wide
// sequence, so two arrays from sibling forked states legitimately share an
// ID/Size/Source triple while denoting distinct allocations. Session-wide
// interning on that key would incorrectly coalesce them. TargetSet and
// TargetHistory get the real interning because they ARE session-wide
// content (built from Target, which has no per-state counter) and other
// components key maps on their identity (the hub's pathedPobs, the target
// forest's child map).
type Context struct {
	targetSets map[uint64][]*TargetSet
	histories  map[uint64][]*TargetHistory

	nextArrayID uint64
	nextStateID int
	nextPobID   int
}

// NewContext returns a new, empty Context for one engine session.
func NewContext() *Context {
	return &Context{
		targetSets: make(map[uint64][]*TargetSet),
		histories:  make(map[uint64][]*TargetHistory),
	}
}

// NextArrayID returns a fresh, monotonically increasing array id.
func (c *Context) NextArrayID() uint64 {
	c.nextArrayID++
	return c.nextArrayID
}

// NextStateID returns a fresh, monotonically increasing execution state id.
func (c *Context) NextStateID() int {
	c.nextStateID++
	return c.nextStateID
}

// NextPobID returns a fresh, monotonically increasing proof obligation id.
func (c *Context) NextPobID() int {
	c.nextPobID++
	return c.nextPobID
}

// UniqueTargetSet returns the canonical instance equal to ts, interning ts if
// no equal target set has been seen before in this Context. Once cached,
// equality between two target sets reduces to pointer identity, matching
// spec.md §4.C7's "content-uniqued via a global cache" requirement.
func (c *Context) UniqueTargetSet(ts *TargetSet) *TargetSet {
	h := ts.hash()
	for _, cand := range c.targetSets[h] {
		if cand.Equal(ts) {
			return cand
		}
	}
	c.targetSets[h] = append(c.targetSets[h], ts)
	return ts
}

// UniqueTargetHistory returns the canonical instance equal to h, interning it
// if no equal history has been seen before in this Context.
func (c *Context) UniqueTargetHistory(th *TargetHistory) *TargetHistory {
	key := th.hash()
	for _, cand := range c.histories[key] {
		if cand.Equal(th) {
			return cand
		}
	}
	c.histories[key] = append(c.histories[key], th)
	return th
}
