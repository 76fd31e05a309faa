package bisym

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// ErrorKind enumerates the analyzed-program error variants a
// ReproduceErrorTarget can match, per spec.md §6's "analyzed-program errors."
type ErrorKind int

const (
	ErrorKindNullPointer ErrorKind = iota
	ErrorKindOutOfBounds
	ErrorKindDivideByZero
	ErrorKindAssertionFailure
	ErrorKindReachWithError
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNullPointer:
		return "null-pointer"
	case ErrorKindOutOfBounds:
		return "out-of-bounds"
	case ErrorKindDivideByZero:
		return "divide-by-zero"
	case ErrorKindAssertionFailure:
		return "assertion-failure"
	case ErrorKindReachWithError:
		return "reach-with-error"
	default:
		return fmt.Sprintf("ErrorKind<%d>", k)
	}
}

// Target is a structured predicate on execution states, per spec.md §4.C7.
// It compares structurally and memoizes its hash on construction so target
// sets can be content-uniqued cheaply.
type Target interface {
	target()
	String() string
	hash() uint64
	Equal(other Target) bool
}

// ReachBlock targets a state whose PC (or, if AtEnd, prevPC) is block.
type ReachBlock struct {
	Block *Block
	AtEnd bool

	h uint64
}

// NewReachBlock returns a ReachBlock target, computing its hash once.
func NewReachBlock(block *Block, atEnd bool) *ReachBlock {
	t := &ReachBlock{Block: block, AtEnd: atEnd}
	t.h = hashTarget("reach", fmt.Sprintf("%p", block), atEnd)
	return t
}

func (*ReachBlock) target() {}

func (t *ReachBlock) String() string {
	if t.AtEnd {
		return fmt.Sprintf("reach-block(%s, end)", t.Block)
	}
	return fmt.Sprintf("reach-block(%s, start)", t.Block)
}

func (t *ReachBlock) hash() uint64 { return t.h }

func (t *ReachBlock) Equal(other Target) bool {
	o, ok := other.(*ReachBlock)
	return ok && o.Block == t.Block && o.AtEnd == t.AtEnd
}

// CoverBranch targets a state that has taken the branch-index'th successor
// edge out of block.
type CoverBranch struct {
	Block       *Block
	BranchIndex int

	h uint64
}

// NewCoverBranch returns a CoverBranch target, computing its hash once.
func NewCoverBranch(block *Block, branchIndex int) *CoverBranch {
	t := &CoverBranch{Block: block, BranchIndex: branchIndex}
	t.h = hashTarget("branch", fmt.Sprintf("%p", block), branchIndex)
	return t
}

func (*CoverBranch) target() {}

func (t *CoverBranch) String() string {
	return fmt.Sprintf("cover-branch(%s, %d)", t.Block, t.BranchIndex)
}

func (t *CoverBranch) hash() uint64 { return t.h }

func (t *CoverBranch) Equal(other Target) bool {
	o, ok := other.(*CoverBranch)
	return ok && o.Block == t.Block && o.BranchIndex == t.BranchIndex
}

// ReproduceErrorTarget targets a state that reached one of Kinds at
// ErrorLocation within Block, tagged by ID (the report entry it came from).
type ReproduceErrorTarget struct {
	Kinds         []ErrorKind
	ID            string
	ErrorLocation string
	Block         *Block

	h uint64
}

// NewReproduceErrorTarget returns a ReproduceErrorTarget, computing its hash
// once. Kinds is sorted so two targets built with the same kinds in a
// different order hash and compare equal.
func NewReproduceErrorTarget(kinds []ErrorKind, id, errorLocation string, block *Block) *ReproduceErrorTarget {
	sorted := append([]ErrorKind(nil), kinds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	t := &ReproduceErrorTarget{Kinds: sorted, ID: id, ErrorLocation: errorLocation, Block: block}

	h := xxhash.New()
	for _, k := range sorted {
		fmt.Fprintf(h, "k%d|", k)
	}
	fmt.Fprintf(h, "id%s|loc%s|blk%p", id, errorLocation, block)
	t.h = h.Sum64()

	return t
}

func (*ReproduceErrorTarget) target() {}

func (t *ReproduceErrorTarget) String() string {
	return fmt.Sprintf("reproduce-error(%v, %s, %s, %s)", t.Kinds, t.ID, t.ErrorLocation, t.Block)
}

func (t *ReproduceErrorTarget) hash() uint64 { return t.h }

func (t *ReproduceErrorTarget) Equal(other Target) bool {
	o, ok := other.(*ReproduceErrorTarget)
	if !ok || o.ID != t.ID || o.ErrorLocation != t.ErrorLocation || o.Block != t.Block || len(o.Kinds) != len(t.Kinds) {
		return false
	}
	for i := range t.Kinds {
		if t.Kinds[i] != o.Kinds[i] {
			return false
		}
	}
	return true
}

func hashTarget(tag string, args ...interface{}) uint64 {
	h := xxhash.New()
	fmt.Fprint(h, tag)
	for _, a := range args {
		fmt.Fprintf(h, "|%v", a)
	}
	return h.Sum64()
}

// TargetSet is an unordered set of Target, content-uniqued via a *Context so
// equality reduces to pointer identity once cached, per spec.md §4.C7.
type TargetSet struct {
	targets []Target // kept sorted by hash for a stable, order-independent comparison
}

// NewTargetSet returns a TargetSet containing the (deduplicated) targets.
func NewTargetSet(targets ...Target) *TargetSet {
	ts := &TargetSet{}
	for _, t := range targets {
		ts.add(t)
	}
	return ts
}

func (ts *TargetSet) add(t Target) {
	for _, existing := range ts.targets {
		if existing.Equal(t) {
			return
		}
	}
	ts.targets = append(ts.targets, t)
	sort.Slice(ts.targets, func(i, j int) bool { return ts.targets[i].hash() < ts.targets[j].hash() })
}

// Contains returns true if t (by structural equality) is a member.
func (ts *TargetSet) Contains(t Target) bool {
	for _, existing := range ts.targets {
		if existing.Equal(t) {
			return true
		}
	}
	return false
}

// Len returns the number of targets in the set.
func (ts *TargetSet) Len() int { return len(ts.targets) }

// Targets returns the set's members in their canonical (hash-sorted) order.
func (ts *TargetSet) Targets() []Target { return ts.targets }

// Without returns a new set with t removed, or ts itself if t is absent.
func (ts *TargetSet) Without(t Target) *TargetSet {
	if !ts.Contains(t) {
		return ts
	}
	other := &TargetSet{}
	for _, existing := range ts.targets {
		if !existing.Equal(t) {
			other.targets = append(other.targets, existing)
		}
	}
	return other
}

// hash returns a content hash over the set's members, order-independent
// since targets are kept sorted by their own hash.
func (ts *TargetSet) hash() uint64 {
	h := xxhash.New()
	for _, t := range ts.targets {
		fmt.Fprintf(h, "%d|", t.hash())
	}
	return h.Sum64()
}

// Equal returns true if ts and other contain the same targets.
func (ts *TargetSet) Equal(other *TargetSet) bool {
	if len(ts.targets) != len(other.targets) {
		return false
	}
	for i := range ts.targets {
		if !ts.targets[i].Equal(other.targets[i]) {
			return false
		}
	}
	return true
}

func (ts *TargetSet) String() string {
	return fmt.Sprintf("%v", ts.targets)
}

// TargetForest is a map from target set to child forest plus per-node
// confidence, a recursive product of unordered target sets capturing which
// combinations of targets remain to satisfy, per spec.md §4.C7.
type TargetForest struct {
	children   map[*TargetSet]*TargetForest
	confidence map[*TargetSet]float64
}

// NewTargetForest returns an empty forest.
func NewTargetForest() *TargetForest {
	return &TargetForest{
		children:   make(map[*TargetSet]*TargetForest),
		confidence: make(map[*TargetSet]float64),
	}
}

// Children returns the forest's direct target-set children.
func (f *TargetForest) Children() map[*TargetSet]*TargetForest {
	return f.children
}

// Confidence returns the confidence assigned to child ts, or 0 if absent.
func (f *TargetForest) Confidence(ts *TargetSet) float64 {
	return f.confidence[ts]
}

// AddChild installs child as ts's child forest with the given confidence.
func (f *TargetForest) AddChild(ts *TargetSet, child *TargetForest, confidence float64) {
	f.children[ts] = child
	f.confidence[ts] = confidence
}

// RemoveChild drops ts (and its confidence) from the forest.
func (f *TargetForest) RemoveChild(ts *TargetSet) {
	delete(f.children, ts)
	delete(f.confidence, ts)
}

// ReplaceChildWith swaps ts's child forest for replacement, keeping its
// existing confidence.
func (f *TargetForest) ReplaceChildWith(ts *TargetSet, replacement *TargetForest) {
	if _, ok := f.children[ts]; !ok {
		return
	}
	f.children[ts] = replacement
}

// Add extends the forest along a linear sequence of target sets: trace[0]
// becomes (or already is) a child of f, trace[1] a child of that, and so on.
// New nodes are added with confidence 1; existing nodes are left untouched.
func (f *TargetForest) Add(trace []*TargetSet) {
	node := f
	for _, ts := range trace {
		child, ok := node.children[ts]
		if !ok {
			child = NewTargetForest()
			node.AddChild(ts, child, 1)
		}
		node = child
	}
}

// StepTo replaces f's contents with the child forest keyed by any target set
// containing target — modeling a state that has reached target and moved
// past it. Returns false if no such child exists.
func (f *TargetForest) StepTo(target Target) bool {
	for ts, child := range f.children {
		if ts.Contains(target) {
			f.children = child.children
			f.confidence = child.confidence
			return true
		}
	}
	return false
}

// Block removes target from every set in the forest, dropping any child
// whose target set becomes empty as a result. Applied recursively.
func (f *TargetForest) Block(ctx *Context, target Target) {
	for ts, child := range f.children {
		child.Block(ctx, target)

		if !ts.Contains(target) {
			continue
		}
		narrowed := ts.Without(target)
		narrowed = ctx.UniqueTargetSet(narrowed)

		f.RemoveChild(ts)
		if narrowed.Len() == 0 {
			continue
		}
		if existing, ok := f.children[narrowed]; ok {
			existing.UnionWith(child)
		} else {
			f.AddChild(narrowed, child, f.confidence[ts])
		}
	}
}

// UnionWith merges other's children into f, adding confidences for target
// sets present in both and recursively unioning their child forests.
func (f *TargetForest) UnionWith(other *TargetForest) {
	for ts, child := range other.children {
		if existing, ok := f.children[ts]; ok {
			existing.UnionWith(child)
			f.confidence[ts] += other.confidence[ts]
		} else {
			f.AddChild(ts, child, other.confidence[ts])
		}
	}
}

// DivideConfidenceBy spreads each child's confidence proportionally to how
// many of the given states can (structurally) still reach it, per
// reachable(ts) returning the reachable-state count for that target set.
func (f *TargetForest) DivideConfidenceBy(reachable func(ts *TargetSet) int) {
	total := 0
	counts := make(map[*TargetSet]int, len(f.children))
	for ts := range f.children {
		n := reachable(ts)
		counts[ts] = n
		total += n
	}
	if total == 0 {
		return
	}
	for ts, n := range counts {
		f.confidence[ts] = f.confidence[ts] * float64(n) / float64(total)
	}
}

// TargetHistory is an append-only linked list of past Target steps a state
// has taken, content-uniqued via a *Context the same way TargetSet is, per
// spec.md §4.C8's "target history" field.
type TargetHistory struct {
	Target Target
	Prev   *TargetHistory

	h uint64
}

// NewTargetHistory returns a new history node appending target onto prev.
func NewTargetHistory(target Target, prev *TargetHistory) *TargetHistory {
	th := &TargetHistory{Target: target, Prev: prev}

	h := xxhash.New()
	fmt.Fprintf(h, "%d|", target.hash())
	if prev != nil {
		fmt.Fprintf(h, "%d", prev.hash())
	}
	th.h = h.Sum64()

	return th
}

func (th *TargetHistory) hash() uint64 { return th.h }

// Equal returns true if th and other represent the same sequence of targets.
func (th *TargetHistory) Equal(other *TargetHistory) bool {
	a, b := th, other
	for a != nil && b != nil {
		if !a.Target.Equal(b.Target) {
			return false
		}
		a, b = a.Prev, b.Prev
	}
	return a == nil && b == nil
}

// String returns the history from oldest to newest.
func (th *TargetHistory) String() string {
	var steps []Target
	for n := th; n != nil; n = n.Prev {
		steps = append(steps, n.Target)
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return fmt.Sprintf("%v", steps)
}
