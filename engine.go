package bisym

// StepExecutor performs the concrete work a scheduler Action names: a
// single forward IR step, an isolated-execution run starting at a given
// instruction, or replaying a propagation's constraints backward one
// stack frame. This is the "(external)" concrete-interpretation
// collaborator spec.md deliberately leaves unspecified; the engine only
// depends on the shape of the events it reports back.
type StepExecutor interface {
	ExecuteForward(state *ExecutionState) (StateEvent, PobEvent, error)
	ExecuteIsolated(inst KInstruction, targets *TargetSet) (StateEvent, error)
	ExecuteBackward(prop *Propagation) (PobEvent, ConflictEvent, error)
}

// EngineObserver receives per-tick counters; metrics.Metrics implements
// this shape without engine.go needing to import the metrics package.
type EngineObserver interface {
	ObserveStates(added, removed int)
	ObserveTick(slot string)
	SetPobsOpen(n int)
	ObservePropagation()
}

// Engine wires the hub, scheduler, and target/distance managers into the
// single-threaded cooperative loop described in SPEC_FULL.md §5: no locks,
// one action dispatched to the executor per Step call.
type Engine struct {
	hub       *Hub
	scheduler *BidirectionalScheduler
	executor  StepExecutor
	observer  EngineObserver
	targets   *TargetManager

	maxSteps int
	steps    int
}

// NewEngine returns an engine that dispatches scheduler actions to
// executor and reports counters to observer (may be nil). targets, if
// non-nil, receives UpdateReached calls for every forward/branch step
// (per spec.md §4.C12); it is the caller's responsibility to also
// subscribe it to hub via SubscribeTargetManager for UpdateTargets to run
// on newly admitted states.
func NewEngine(hub *Hub, scheduler *BidirectionalScheduler, executor StepExecutor, observer EngineObserver, targets *TargetManager, maxSteps int) *Engine {
	e := &Engine{hub: hub, scheduler: scheduler, executor: executor, observer: observer, targets: targets, maxSteps: maxSteps}
	if observer != nil {
		hub.Subscribe(engineObserverSubscriber{hub: hub, observer: observer})
	}
	return e
}

// Step dispatches exactly one scheduler action and folds its resulting
// event(s) back into the hub, per spec.md §4.C14's action shapes. It
// returns false once the scheduler reports Idle (no slot has work), or the
// step budget is exhausted.
func (e *Engine) Step() (bool, error) {
	if e.maxSteps > 0 && e.steps >= e.maxSteps {
		return false, nil
	}
	if e.scheduler.Idle() {
		return false, nil
	}

	action := e.scheduler.SelectAction()
	if e.observer != nil {
		e.observer.ObserveTick(action.Kind.String())
	}

	var states StateEvent
	var pobs PobEvent
	var propagations PropagationEvent

	isolated := action.Kind == StepInitialize

	switch action.Kind {
	case StepForward, StepBranch:
		if action.State == nil {
			return false, nil
		}
		var prevBlock *Block
		if frame := action.State.Frame(); frame != nil {
			prevBlock = frame.Block
		}
		var err error
		states, pobs, err = e.executor.ExecuteForward(action.State)
		if err != nil {
			return false, err
		}
		if e.targets != nil && prevBlock != nil {
			for _, added := range states.Added {
				e.targets.UpdateReached(added, prevBlock)
			}
		}

	case StepBackward:
		if action.Propagation == nil {
			return false, nil
		}
		var conflicts ConflictEvent
		var err error
		pobs, conflicts, err = e.executor.ExecuteBackward(action.Propagation)
		if err != nil {
			return false, err
		}
		propagations.Removed = append(propagations.Removed, action.Propagation)
		e.hub.RemovePropagation(action.Propagation)
		for _, c := range conflicts.Conflicts {
			e.hub.AddTargetedConflict(c)
		}

	case StepInitialize:
		if action.Instruction == (KInstruction{}) {
			return false, nil
		}
		var err error
		states, err = e.executor.ExecuteIsolated(action.Instruction, action.Targets)
		if err != nil {
			return false, err
		}

	default:
		return false, nil
	}

	e.applyStates(states, isolated)
	e.applyPobs(pobs)
	// pobs are intentionally withheld here: the hub's own fan-out
	// (stepPobs, triggered by UpdateSubscribers below) is the initializer's
	// sole feed, since it also carries pobs the hub closes internally
	// (closeRootPobsIfReached) that never round-trip through an action.
	e.scheduler.Update(states, propagations, PobEvent{})
	e.hub.UpdateSubscribers()
	e.steps++
	return true, nil
}

// applyStates queues added/removed states with the hub. Branched forward
// states and freshly isolate-executed states are distinguished per
// spec.md §4.C10, since the hub asserts a delivered batch never mixes the
// two kinds.
func (e *Engine) applyStates(event StateEvent, isolated bool) {
	for _, s := range event.Added {
		if isolated {
			e.hub.InitializeState(s)
		} else {
			e.hub.BranchState(s)
		}
	}
	for _, s := range event.Removed {
		e.hub.RemoveState(s)
	}
	if e.observer != nil {
		e.observer.ObserveStates(len(event.Added), len(event.Removed))
	}
}

func (e *Engine) applyPobs(event PobEvent) {
	for _, p := range event.Added {
		e.hub.AddPob(p)
	}
	for _, p := range event.Removed {
		e.hub.RemovePob(p)
	}
}

// Run steps the engine until Step reports no further work or an error.
func (e *Engine) Run() error {
	for {
		more, err := e.Step()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}
