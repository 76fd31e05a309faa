package bisym

import (
	"fmt"

	"github.com/benbjohnson/immutable"
)

// ErrorVariant classifies the error condition an ExecutionState has
// encountered, per spec.md §3. MayBeNullPointer collapses to
// MustBeNullPointer for isolated states (C12's isReachedTarget), since a
// backward search has no wider path to disprove the possibility.
type ErrorVariant int

const (
	ErrorVariantNone ErrorVariant = iota
	ErrorVariantReachable
	ErrorVariantMayBeNullPointer
	ErrorVariantMustBeNullPointer
	ErrorVariantOutOfBounds
	ErrorVariantDivideByZero
	ErrorVariantAssertionFailure
)

func (v ErrorVariant) String() string {
	switch v {
	case ErrorVariantReachable:
		return "reachable"
	case ErrorVariantMayBeNullPointer:
		return "may-be-null-pointer"
	case ErrorVariantMustBeNullPointer:
		return "must-be-null-pointer"
	case ErrorVariantOutOfBounds:
		return "out-of-bounds"
	case ErrorVariantDivideByZero:
		return "divide-by-zero"
	case ErrorVariantAssertionFailure:
		return "assertion-failure"
	default:
		return "none"
	}
}

// RoundingMode is the floating-point rounding mode in effect for an
// ExecutionState, per spec.md §3.
type RoundingMode int

const (
	RoundNearestEven RoundingMode = iota
	RoundNearestAway
	RoundTowardZero
	RoundTowardPositive
	RoundTowardNegative
)

// KInstruction names a single IR point (block + instruction index) that an
// isolated execution can be pinned to start from, per spec.md §4.C8's
// withKInstruction.
type KInstruction struct {
	Block *Block
	Index int
}

func (ki KInstruction) String() string {
	return fmt.Sprintf("%s@%d", ki.Block, ki.Index)
}

// uint64Comparer orders heap addresses. Implements immutable.Comparer.
type uint64Comparer struct{}

func (c *uint64Comparer) Compare(a, b uint64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

// StackFrame is one call frame in an ExecutionState's stack, per spec.md
// §4.C8. It mirrors the teacher's frame (function, caller link, current
// block/pc) against the C3 shadow model rather than raw *ssa types, and
// tracks the frame's own heap allocations so popFrame can free them.
type StackFrame struct {
	Func   *Function
	Caller *StackFrame
	Block  *Block
	PC     int

	allocas []uint64
}

// NewStackFrame returns a new frame for fn, positioned at its entry block.
func NewStackFrame(caller *StackFrame, fn *Function) *StackFrame {
	return &StackFrame{Func: fn, Caller: caller, Block: fn.Entry, PC: -1}
}

// Clone returns a copy of the frame.
func (f *StackFrame) Clone() *StackFrame {
	other := *f
	other.allocas = append([]uint64(nil), f.allocas...)
	return &other
}

// Jump moves the frame's cursor to dst, resetting PC.
func (f *StackFrame) Jump(dst *Block) {
	f.Block, f.PC = dst, -1
}

// ExecutionState is a path under exploration, per spec.md §3/§4.C8. It
// tracks the call stack, path constraints, an address space (external:
// modeled here only as the allocation bookkeeping popFrame needs), a
// target forest and target history, per-block multilevel visit counters,
// a resolvedPointers cache for composed lazy-init pointers, whether the
// state is isolated, stepping counters, a rounding mode, and an error
// variant.
type ExecutionState struct {
	id       int
	parent   *ExecutionState
	children []*ExecutionState

	stack []*StackFrame

	status ExecutionStatus
	reason string

	path        *Path
	constraints *ConstraintSet

	heap         *immutable.SortedMap[uint64, *Array]
	nextHeapAddr uint64

	targetForest  *TargetForest
	targetHistory *TargetHistory

	levels     map[*Block]int
	covered    map[*Block]struct{}
	coveredNew map[*Block]struct{}

	resolvedPointers map[string]*Array

	isolated  bool
	steps     int
	cpSteps   int
	queryCost int

	rounding RoundingMode
	err      ErrorVariant
}

// ExecutionStatus is the lifecycle state of an ExecutionState.
type ExecutionStatus string

const (
	ExecutionStatusRunning  = ExecutionStatus("running")
	ExecutionStatusFinished = ExecutionStatus("finished")
	ExecutionStatusPanicked = ExecutionStatus("panicked")
	ExecutionStatusFailed   = ExecutionStatus("failed")
	ExecutionStatusExited   = ExecutionStatus("exited")
)

// NewExecutionState returns a fresh, non-isolated state starting at fn's
// entry block.
func NewExecutionState(id int, fn *Function) *ExecutionState {
	s := &ExecutionState{
		id:               id,
		status:           ExecutionStatusRunning,
		heap:             immutable.NewSortedMap[uint64, *Array](&uint64Comparer{}),
		nextHeapAddr:     1,
		constraints:      NewConstraintSet(),
		targetForest:     NewTargetForest(),
		levels:           make(map[*Block]int),
		covered:          make(map[*Block]struct{}),
		coveredNew:       make(map[*Block]struct{}),
		resolvedPointers: make(map[string]*Array),
	}
	s.PushFrame(fn)
	s.path = NewPath(fn.Entry, 0)
	return s
}

func (s *ExecutionState) ID() int                        { return s.id }
func (s *ExecutionState) Parent() *ExecutionState        { return s.parent }
func (s *ExecutionState) Status() ExecutionStatus        { return s.status }
func (s *ExecutionState) Reason() string                 { return s.reason }
func (s *ExecutionState) Terminated() bool               { return s.status != ExecutionStatusRunning }
func (s *ExecutionState) Isolated() bool                 { return s.isolated }
func (s *ExecutionState) Path() *Path                    { return s.path }
func (s *ExecutionState) Constraints() *ConstraintSet    { return s.constraints }
func (s *ExecutionState) TargetForest() *TargetForest    { return s.targetForest }
func (s *ExecutionState) TargetHistory() *TargetHistory  { return s.targetHistory }
func (s *ExecutionState) RoundingMode() RoundingMode     { return s.rounding }
func (s *ExecutionState) ErrorVariant() ErrorVariant     { return s.err }
func (s *ExecutionState) SetErrorVariant(v ErrorVariant) { s.err = v }
func (s *ExecutionState) SetStatus(status ExecutionStatus, reason string) {
	s.status, s.reason = status, reason
}

// Frame returns the current (innermost) stack frame, or nil if the stack
// is empty.
func (s *ExecutionState) Frame() *StackFrame {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// CallerFrame returns the frame that called the current one, or nil.
func (s *ExecutionState) CallerFrame() *StackFrame {
	if len(s.stack) <= 1 {
		return nil
	}
	return s.stack[len(s.stack)-2]
}

// Depth returns the number of live stack frames.
func (s *ExecutionState) Depth() int { return len(s.stack) }

// allocHeapAddr returns the next unused heap address.
func (s *ExecutionState) allocHeapAddr() uint64 {
	addr := s.nextHeapAddr
	s.nextHeapAddr++
	return addr
}

// Alloc allocates a fresh array on the address space, binding it to the
// current frame so PopFrame can free it. Per spec.md §4.C8, full address-
// space semantics (aliasing, typed layout) are the external executor's
// responsibility; this only tracks identity and frame-scoped lifetime.
func (s *ExecutionState) Alloc(size uint, source ArraySource) (uint64, *Array) {
	addr := s.allocHeapAddr()
	array := NewArray(addr, size, source)
	s.heap = s.heap.Set(addr, array)
	if f := s.Frame(); f != nil {
		f.allocas = append(f.allocas, addr)
	}
	return addr, array
}

// HeapLookup returns the array allocated at addr, if any.
func (s *ExecutionState) HeapLookup(addr uint64) (*Array, bool) {
	v, ok := s.heap.Get(addr)
	if !ok {
		return nil, false
	}
	return v, true
}

// PushFrame adds a frame for fn to the top of the stack.
func (s *ExecutionState) PushFrame(fn *Function) {
	s.stack = append(s.stack, NewStackFrame(s.Frame(), fn))
}

// PopFrame removes the current frame, freeing its allocas from the
// address space, per spec.md §4.C8. Marks the state finished once the
// stack empties.
func (s *ExecutionState) PopFrame() {
	f := s.Frame()
	assert(f != nil, "ExecutionState.PopFrame: empty stack")
	for _, addr := range f.allocas {
		s.heap = s.heap.Delete(addr)
	}
	s.stack = s.stack[:len(s.stack)-1]
	if len(s.stack) == 0 {
		s.status = ExecutionStatusFinished
	}
}

// Branch deep-copies s, assigning a fresh ID and resetting coveredNew, per
// spec.md §4.C8.
func (s *ExecutionState) Branch(id int) *ExecutionState {
	stack := make([]*StackFrame, len(s.stack))
	for i := range s.stack {
		stack[i] = s.stack[i].Clone()
	}

	levels := make(map[*Block]int, len(s.levels))
	for b, n := range s.levels {
		levels[b] = n
	}
	covered := make(map[*Block]struct{}, len(s.covered))
	for b := range s.covered {
		covered[b] = struct{}{}
	}
	resolved := make(map[string]*Array, len(s.resolvedPointers))
	for k, v := range s.resolvedPointers {
		resolved[k] = v
	}

	child := &ExecutionState{
		id:               id,
		parent:           s,
		status:           s.status,
		reason:           s.reason,
		stack:            stack,
		path:             s.path.Clone(),
		constraints:      s.constraints.Clone(),
		heap:             s.heap,
		nextHeapAddr:     s.nextHeapAddr,
		targetForest:     s.targetForest,
		targetHistory:    s.targetHistory,
		levels:           levels,
		covered:          covered,
		coveredNew:       make(map[*Block]struct{}),
		resolvedPointers: resolved,
		isolated:         s.isolated,
		rounding:         s.rounding,
		err:              s.err,
	}
	s.cpSteps = 0
	s.children = append(s.children, child)
	return child
}

// WithKInstruction empties the stack and starts a new isolated state
// pointing at ki, per spec.md §4.C8.
func (s *ExecutionState) WithKInstruction(id int, ki KInstruction) *ExecutionState {
	child := &ExecutionState{
		id:               id,
		parent:           s,
		status:           ExecutionStatusRunning,
		heap:             immutable.NewSortedMap[uint64, *Array](&uint64Comparer{}),
		nextHeapAddr:     1,
		constraints:      NewConstraintSet(),
		targetForest:     NewTargetForest(),
		levels:           make(map[*Block]int),
		covered:          make(map[*Block]struct{}),
		coveredNew:       make(map[*Block]struct{}),
		resolvedPointers: make(map[string]*Array),
		isolated:         true,
	}
	child.PushFrame(ki.Block.Func)
	child.Frame().Jump(ki.Block)
	child.Frame().PC = ki.Index
	child.path = NewPath(ki.Block, ki.Index)
	return child
}

// Forked returns true once s has produced at least one child via Branch.
func (s *ExecutionState) Forked() bool { return len(s.children) > 0 }

// Children returns the states produced from s via Branch, in creation order.
// Used by RandomPathSearcher (C11) to descend the branch tree.
func (s *ExecutionState) Children() []*ExecutionState { return s.children }

// IsStuck reports whether the state's current block has been revisited
// more than bound times and the previous instruction was a terminator,
// per spec.md §4.C8.
func (s *ExecutionState) IsStuck(bound int, prevWasTerminator bool) bool {
	f := s.Frame()
	if f == nil || !prevWasTerminator {
		return false
	}
	return s.levels[f.Block] > bound
}

// IncreaseLevel bumps the multilevel/transition-level visit counter for
// the current block, driving the heuristic target calculator (C12), per
// spec.md §4.C8.
func (s *ExecutionState) IncreaseLevel() {
	if f := s.Frame(); f != nil {
		s.levels[f.Block]++
	}
}

// Level returns the current multilevel visit count for b.
func (s *ExecutionState) Level(b *Block) int { return s.levels[b] }

// MarkCovered records that b has been visited by this state (and, for a
// freshly branched state, since the last Branch call).
func (s *ExecutionState) MarkCovered(b *Block) {
	s.covered[b] = struct{}{}
	s.coveredNew[b] = struct{}{}
}

// Covered reports whether b has ever been visited by this state.
func (s *ExecutionState) Covered(b *Block) bool {
	_, ok := s.covered[b]
	return ok
}

// CoveredNew returns the blocks visited since the last Branch.
func (s *ExecutionState) CoveredNew() map[*Block]struct{} { return s.coveredNew }

// ResolvedPointer returns the array previously resolved for a lazy-init
// pointer expression keyed by its string form, used by the compose visitor
// (C15) to avoid re-resolving the same pointer twice within one state.
func (s *ExecutionState) ResolvedPointer(key string) (*Array, bool) {
	a, ok := s.resolvedPointers[key]
	return a, ok
}

// SetResolvedPointer records the resolution of a lazy-init pointer.
func (s *ExecutionState) SetResolvedPointer(key string, array *Array) {
	s.resolvedPointers[key] = array
}

// Step increments the state's stepping counter, called once per executed
// IR instruction.
func (s *ExecutionState) Step() { s.steps++; s.cpSteps++ }

// Steps returns the number of instructions executed so far.
func (s *ExecutionState) Steps() int { return s.steps }

// CallPathSteps returns instructions executed since the state last branched,
// feeding WeightedRandomSearcher's CPInstCount mode.
func (s *ExecutionState) CallPathSteps() int { return s.cpSteps }

// IncreaseQueryCost records the cost of a solver query attributed to s,
// feeding WeightedRandomSearcher's QueryCost mode.
func (s *ExecutionState) IncreaseQueryCost(cost int) { s.queryCost += cost }

// QueryCost returns the accumulated solver query cost attributed to s.
func (s *ExecutionState) QueryCost() int { return s.queryCost }
