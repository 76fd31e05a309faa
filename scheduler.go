package bisym

// StepKind is the slot a Ticker selects between for the bidirectional
// scheduler, per spec.md §4.C14.
type StepKind int

const (
	StepForward StepKind = iota
	StepBranch
	StepBackward
	StepInitialize
)

func (k StepKind) String() string {
	switch k {
	case StepForward:
		return "forward"
	case StepBranch:
		return "branch"
	case StepBackward:
		return "backward"
	case StepInitialize:
		return "initialize"
	default:
		return "unknown"
	}
}

// Action is the unit of work BidirectionalScheduler.SelectAction produces.
type Action struct {
	Kind        StepKind
	State       *ExecutionState
	Propagation *Propagation
	Instruction KInstruction
	Targets     *TargetSet
}

// BidirectionalScheduler alternates forward execution, isolated branch
// execution, backward proof-obligation propagation, and initialization,
// via a Ticker({0,30,30,30})-driven selection over those four slots, per
// spec.md §4.C14. The Forward slot's default weight is 0 since forward
// exploration in this design is driven by whichever state the Branch
// searcher is already advancing; callers wanting pure-forward-only
// scheduling pass a non-zero Forward quota at construction.
type BidirectionalScheduler struct {
	ticker *Ticker

	forward     ForwardSearcher
	branch      ForwardSearcher
	backward    BackwardSearcher
	initializer *ConflictCoreInitializer
}

// NewBidirectionalScheduler returns a scheduler over the four delegates,
// weighted by quotas (indexed by StepKind). Passing the teacher's default
// {0,30,30,30} disables pure-forward stepping in favor of Branch/Backward/
// Initialize round-robin.
func NewBidirectionalScheduler(quotas []int, forward, branch ForwardSearcher, backward BackwardSearcher, initializer *ConflictCoreInitializer) *BidirectionalScheduler {
	return &BidirectionalScheduler{
		ticker:      NewTicker(quotas...),
		forward:     forward,
		branch:      branch,
		backward:    backward,
		initializer: initializer,
	}
}

// isEmpty reports whether the delegate for kind currently has no work.
func (s *BidirectionalScheduler) isEmpty(kind StepKind) bool {
	switch kind {
	case StepForward:
		return s.forward == nil || s.forward.SelectState() == nil
	case StepBranch:
		return s.branch == nil || s.branch.SelectState() == nil
	case StepBackward:
		return s.backward == nil || s.backward.SelectPropagation() == nil
	case StepInitialize:
		return s.initializer == nil || s.initializer.Empty()
	default:
		return true
	}
}

// Idle reports whether every slot is currently empty, i.e. SelectStep
// would hit its all-empty assertion. Callers driving a run loop should
// check this before calling SelectAction/SelectStep.
func (s *BidirectionalScheduler) Idle() bool {
	return s.isEmpty(StepForward) && s.isEmpty(StepBranch) && s.isEmpty(StepBackward) && s.isEmpty(StepInitialize)
}

// SelectStep tries the ticker's current slot; if empty, it advances the
// ticker until it finds a non-empty slot or wraps back to the start (an
// all-empty scheduler is a programming error), per spec.md §4.C14.
func (s *BidirectionalScheduler) SelectStep() StepKind {
	start := s.ticker.GetCurrent()
	kind := StepKind(start)
	if !s.isEmpty(kind) {
		return kind
	}

	for {
		s.ticker.MoveToNext()
		next := s.ticker.GetCurrent()
		if next == start {
			assert(false, "BidirectionalScheduler.SelectStep: every slot empty")
		}
		kind = StepKind(next)
		if !s.isEmpty(kind) {
			return kind
		}
	}
}

// SelectAction runs SelectStep and pulls the corresponding work item from
// the winning delegate, per spec.md §4.C14.
func (s *BidirectionalScheduler) SelectAction() Action {
	switch kind := s.SelectStep(); kind {
	case StepForward:
		return Action{Kind: kind, State: s.forward.SelectState()}
	case StepBranch:
		return Action{Kind: kind, State: s.branch.SelectState()}
	case StepBackward:
		return Action{Kind: kind, Propagation: s.backward.SelectPropagation()}
	case StepInitialize:
		inst, targets, _ := s.initializer.SelectAction()
		return Action{Kind: kind, Instruction: inst, Targets: targets}
	default:
		panic("unreachable")
	}
}

// Update routes an event to the subsearchers whose kind/isolation tag it
// matches, per spec.md §4.C14.
func (s *BidirectionalScheduler) Update(states StateEvent, propagations PropagationEvent, pobs PobEvent) {
	if s.forward != nil {
		s.forward.Update(states)
	}
	if s.branch != nil {
		s.branch.Update(states)
	}
	if s.backward != nil {
		s.backward.Update(propagations)
	}
	if s.initializer != nil {
		for _, pob := range pobs.Added {
			s.initializer.AddPob(pob)
		}
		for _, pob := range pobs.Removed {
			s.initializer.RemovePob(pob)
		}
	}
}
