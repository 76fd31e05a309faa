package bisym

// TargetKind classifies a block's role relative to a target's location for
// distance-weighting purposes, per spec.md §4.C12.
type TargetKind int

const (
	TargetKindNone TargetKind = iota
	TargetKindLocal
	TargetKindPre
	TargetKindPost
)

// DistanceResultKind classifies the outcome of weighing a state against a
// target, per spec.md §4.C12.
type DistanceResultKind int

const (
	DistanceDone DistanceResultKind = iota
	DistanceContinue
	DistanceMiss
)

// DistanceResult is the memoized outcome of weighing one (target, block)
// pair, per spec.md §4.C12.
type DistanceResult struct {
	Kind             DistanceResultKind
	Weight           int
	IsInsideFunction bool
}

// distanceKey identifies one memoized DistanceResult. It is compared as a
// plain map key, so Reversed takes part in both hashing and equality:
// lookups that differ only by search direction use separate cache slots.
type distanceKey struct {
	Target   Target
	Block    *Block
	Kind     TargetKind
	Reversed bool
}

// DistanceManager wraps a DistanceCalculator with the per-(target,
// block-context) result cache spec.md §4.C12 describes. The weight
// composes intra-block hops with call-graph hops (weighted by
// callGraphFactor) and a per-frame stack-depth surcharge.
type DistanceManager struct {
	dc              *DistanceCalculator
	cache           map[distanceKey]DistanceResult
	callGraphFactor int
	stackSurcharge  int
}

// NewDistanceManager returns a manager over dc using the teacher's default
// weighting constants (call-graph hops count double a same-function hop; a
// one-point surcharge per frame on the state's stack).
func NewDistanceManager(dc *DistanceCalculator) *DistanceManager {
	return &DistanceManager{dc: dc, cache: make(map[distanceKey]DistanceResult), callGraphFactor: 2, stackSurcharge: 1}
}

// Weigh returns the memoized DistanceResult for state's current block
// against target, computing and caching it on first use.
func (dm *DistanceManager) Weigh(state *ExecutionState, target *ReachBlock, reversed bool) DistanceResult {
	frame := state.Frame()
	if frame == nil {
		return DistanceResult{Kind: DistanceMiss}
	}
	kind := TargetKindLocal
	if frame.Block.Func != target.Block.Func {
		kind = TargetKindPre
	}
	key := distanceKey{Target: target, Block: frame.Block, Kind: kind, Reversed: reversed}
	if r, ok := dm.cache[key]; ok {
		return r
	}

	r := dm.compute(state, frame.Block, target, kind, reversed)
	dm.cache[key] = r
	return r
}

func (dm *DistanceManager) compute(state *ExecutionState, from *Block, target *ReachBlock, kind TargetKind, reversed bool) DistanceResult {
	if from == target.Block {
		return DistanceResult{Kind: DistanceDone, IsInsideFunction: true}
	}

	if w, ok := dm.tryGetLocalWeight(from, target, reversed); ok {
		return DistanceResult{Kind: DistanceContinue, Weight: w, IsInsideFunction: true}
	}

	w, ok := dm.distanceInCallGraph(from, target, reversed)
	if !ok {
		return DistanceResult{Kind: DistanceMiss}
	}
	return DistanceResult{Kind: DistanceContinue, Weight: w + dm.stackSurcharge*state.Depth(), IsInsideFunction: false}
}

// tryGetLocalWeight returns the intra-function block-CFG hop count from
// from to target.Block, if target is reachable within the same function.
func (dm *DistanceManager) tryGetLocalWeight(from *Block, target *ReachBlock, reversed bool) (int, bool) {
	if from.Func != target.Block.Func {
		return 0, false
	}
	var dist map[*Block]int
	if reversed {
		dist = dm.dc.BackwardDistance(from)
	} else {
		dist = dm.dc.Distance(from)
	}
	hops, ok := dist[target.Block]
	return hops, ok
}

// distanceInCallGraph returns the call-graph-scaled hop count from from's
// function to target's function, when no local path exists.
func (dm *DistanceManager) distanceInCallGraph(from *Block, target *ReachBlock, reversed bool) (int, bool) {
	var dist map[*Function]int
	if reversed {
		dist = dm.dc.FunctionBackwardDistance(from.Func)
	} else {
		dist = dm.dc.FunctionDistance(from.Func)
	}
	hops, ok := dist[target.Block.Func]
	if !ok {
		return 0, false
	}
	return hops * dm.callGraphFactor, true
}

// isReachedTarget embodies the completion predicate for each target
// variant, per spec.md §4.C12. isolated collapses MayBeNullPointer to
// MustBeNullPointer, since a backward isolated search has no wider path to
// disprove the possibility.
func IsReachedTarget(state *ExecutionState, target Target, isolated bool) bool {
	switch t := target.(type) {
	case *ReachBlock:
		frame := state.Frame()
		if frame == nil {
			return false
		}
		if t.AtEnd {
			return frame.PC == t.Block.Last && frame.Block == t.Block
		}
		return frame.Block == t.Block && frame.PC <= t.Block.First
	case *CoverBranch:
		return state.Covered(t.Block)
	case *ReproduceErrorTarget:
		variant := state.ErrorVariant()
		if variant == ErrorVariantMayBeNullPointer && isolated {
			variant = ErrorVariantMustBeNullPointer
		}
		if variant == ErrorVariantNone {
			return false
		}
		frame := state.Frame()
		return frame != nil && frame.Block == t.Block
	default:
		return false
	}
}

// TargetManager subscribes to the hub, tracking which running states are
// under active targeting and dispatching distance-classified updates, per
// spec.md §4.C12.
type TargetManager struct {
	ctx      *Context
	dm       *DistanceManager
	calc     func() []Target // TargetCalculator: recomputes candidate targets when untargeted states exhaust theirs.
	reversed bool

	targeted        map[*ExecutionState][]Target
	coveredBlocks   map[*Block]struct{}
	coveredBranches map[coveredEdge]struct{}

	addedByHistoryTarget   map[historyTargetKey]map[*ExecutionState]struct{}
	removedByHistoryTarget map[historyTargetKey]map[*ExecutionState]struct{}
}

type historyTargetKey struct {
	history *TargetHistory
	target  string
}

type coveredEdge struct {
	From, To *Block
}

// NewTargetManager returns a manager weighing states with dm and pulling
// fresh candidate targets from calc when a state's target list is
// exhausted. ctx is the engine session's shared Context, used to content-
// unique the target sets and histories updateDone produces so equality
// between them reduces to pointer identity, per spec.md §3/§9.
func NewTargetManager(ctx *Context, dm *DistanceManager, calc func() []Target, reversed bool) *TargetManager {
	return &TargetManager{
		ctx:                    ctx,
		dm:                     dm,
		calc:                   calc,
		reversed:               reversed,
		targeted:               make(map[*ExecutionState][]Target),
		coveredBlocks:          make(map[*Block]struct{}),
		coveredBranches:        make(map[coveredEdge]struct{}),
		addedByHistoryTarget:   make(map[historyTargetKey]map[*ExecutionState]struct{}),
		removedByHistoryTarget: make(map[historyTargetKey]map[*ExecutionState]struct{}),
	}
}

// AddTargets appends targets to state's current live target list, placing
// the state under active targeting.
func (tm *TargetManager) AddTargets(state *ExecutionState, targets []Target) {
	tm.targeted[state] = append(tm.targeted[state], targets...)
}

// UpdateReached marks the edge crossed by a terminator firing: a covered
// branch when the terminator has successors, or the block itself reached
// when it has none, per spec.md §4.C12.
func (tm *TargetManager) UpdateReached(state *ExecutionState, prevBlock *Block) {
	frame := state.Frame()
	if frame == nil {
		return
	}
	if len(prevBlock.SSA.Succs) > 0 {
		tm.coveredBranches[coveredEdge{From: prevBlock, To: frame.Block}] = struct{}{}
	} else {
		tm.coveredBlocks[prevBlock] = struct{}{}
	}
}

// CoveredBranch reports whether the edge from-to has been exercised.
func (tm *TargetManager) CoveredBranch(from, to *Block) bool {
	_, ok := tm.coveredBranches[coveredEdge{From: from, To: to}]
	return ok
}

// UpdateTargets classifies state against each of its live targets via the
// distance manager, electing a fresh target set from calc when state has
// none and is stuck, per spec.md §4.C12.
func (tm *TargetManager) UpdateTargets(state *ExecutionState, stuck bool) {
	targets := tm.targeted[state]
	if len(targets) == 0 && stuck && tm.calc != nil {
		targets = tm.calc()
		tm.targeted[state] = targets
	}

	for _, target := range targets {
		rb, ok := target.(*ReachBlock)
		if !ok {
			continue
		}
		result := tm.dm.Weigh(state, rb, tm.reversed)
		switch result.Kind {
		case DistanceDone:
			tm.updateDone(state, target)
		case DistanceMiss:
			tm.removeTarget(state, target)
		case DistanceContinue:
			// Live: no bookkeeping change beyond the distance cache.
		}
	}
}

func (tm *TargetManager) removeTarget(state *ExecutionState, target Target) {
	targets := tm.targeted[state]
	for i, t := range targets {
		if t == target {
			tm.targeted[state] = append(targets[:i], targets[i+1:]...)
			tm.collect(state, target, false)
			return
		}
	}
}

// updateDone steps state's target forest past target and blocks target in
// the forest of every other targeted state, per spec.md §4.C12. The block
// is unconditional: targets carry no once-only/repeatable distinction.
func (tm *TargetManager) updateDone(state *ExecutionState, target Target) {
	state.targetHistory = tm.ctx.UniqueTargetHistory(NewTargetHistory(target, state.targetHistory))
	state.targetForest.StepTo(target)
	tm.removeTarget(state, target)

	for other := range tm.targeted {
		if other == state {
			continue
		}
		other.targetForest.Block(tm.ctx, target)
	}
}

// collect records state's addition/removal against the (history, target)
// key, accumulating deltas for delivery to the active searcher, per
// spec.md §4.C12.
func (tm *TargetManager) collect(state *ExecutionState, target Target, added bool) {
	key := historyTargetKey{history: state.targetHistory, target: targetKey(target)}
	dest := tm.removedByHistoryTarget
	if added {
		dest = tm.addedByHistoryTarget
	}
	if dest[key] == nil {
		dest[key] = make(map[*ExecutionState]struct{})
	}
	dest[key][state] = struct{}{}
}

// Drain returns and clears the accumulated added/removed state sets.
func (tm *TargetManager) Drain() (added, removed map[historyTargetKey]map[*ExecutionState]struct{}) {
	added, removed = tm.addedByHistoryTarget, tm.removedByHistoryTarget
	tm.addedByHistoryTarget = make(map[historyTargetKey]map[*ExecutionState]struct{})
	tm.removedByHistoryTarget = make(map[historyTargetKey]map[*ExecutionState]struct{})
	return added, removed
}
