package bisym

import "fmt"

// Subscriber receives the four event kinds the hub fans out on each tick,
// per spec.md §4.C10. C11's searchers, C12's target manager, and C13's
// initializer do not implement it themselves; subscribe.go's adapters wrap
// each of them (each reacting only to the events it cares about).
type Subscriber interface {
	NotifyStates(event StateEvent)
	NotifyPropagations(event PropagationEvent)
	NotifyPobs(event PobEvent)
	NotifyConflicts(event ConflictEvent)
}

// PobEvent is the (added, removed) delta for proof obligations.
type PobEvent struct {
	Added   []*ProofObligation
	Removed []*ProofObligation
}

// TargetedConflict pairs a state with the target set it conflicts against,
// surfaced by addTargetedConflict for the summary/lemma writer.
type TargetedConflict struct {
	State   *ExecutionState
	Targets *TargetSet
}

// ConflictEvent carries a batch of targeted conflicts.
type ConflictEvent struct {
	Conflicts []*TargetedConflict
}

// Hub is the object manager (C10): the single event bus other components
// subscribe to. Mutations queue in pending vectors during a tick and take
// effect atomically on updateSubscribers(), per spec.md §4.C10.
type Hub struct {
	isReachedTarget func(state *ExecutionState, target Target) bool

	states         map[*ExecutionState]struct{}
	isolatedStates map[*ExecutionState]struct{}
	leafPobs       map[*ProofObligation]struct{}
	rootPobs       map[*ProofObligation]struct{}
	reachedStates  map[string]map[*ExecutionState]struct{}
	pobs           map[string]map[*ProofObligation]struct{}
	pathedPobs     map[string]*ProofObligation
	propagations   map[string]map[*Propagation]struct{}
	targetByKey    map[string]Target

	subscribers []Subscriber

	pendingAddStates    []*ExecutionState
	pendingRemoveStates []*ExecutionState
	pendingAddPobs      []*ProofObligation
	pendingRemovePobs   []*ProofObligation
	pendingConflicts    []*TargetedConflict

	pendingAddPropagations    []*Propagation
	pendingRemovePropagations []*Propagation
}

// targetKey returns a structural key for t, so maps keyed by a target treat
// two structurally-equal-but-distinct Target values (e.g. two *ReachBlock
// built from separate NewReachBlock calls) as the same entry, per spec.md
// §3's "Targets compare structurally."
func targetKey(t Target) string { return t.String() }

func pathedPobKey(path string, location Target) string { return path + "|" + targetKey(location) }

// NewHub returns an empty hub. isReachedTarget embodies C12's completion
// predicate; the hub calls it but does not own target-variant semantics.
func NewHub(isReachedTarget func(state *ExecutionState, target Target) bool) *Hub {
	return &Hub{
		isReachedTarget: isReachedTarget,
		states:          make(map[*ExecutionState]struct{}),
		isolatedStates:  make(map[*ExecutionState]struct{}),
		leafPobs:        make(map[*ProofObligation]struct{}),
		rootPobs:        make(map[*ProofObligation]struct{}),
		reachedStates:   make(map[string]map[*ExecutionState]struct{}),
		pobs:            make(map[string]map[*ProofObligation]struct{}),
		pathedPobs:      make(map[string]*ProofObligation),
		propagations:    make(map[string]map[*Propagation]struct{}),
		targetByKey:     make(map[string]Target),
	}
}

// Subscribe registers sub to receive every future tick's events.
func (h *Hub) Subscribe(sub Subscriber) { h.subscribers = append(h.subscribers, sub) }

// OpenPobCount returns the number of proof obligations currently awaiting
// further propagation (the tree's leaves), for A3's pobs_open gauge.
func (h *Hub) OpenPobCount() int { return len(h.leafPobs) }

// BranchState queues the addition of a freshly branched state.
func (h *Hub) BranchState(state *ExecutionState) {
	h.pendingAddStates = append(h.pendingAddStates, state)
}

// RemoveState queues the removal of state.
func (h *Hub) RemoveState(state *ExecutionState) {
	h.pendingRemoveStates = append(h.pendingRemoveStates, state)
}

// AddPob queues the addition of pob.
func (h *Hub) AddPob(pob *ProofObligation) {
	h.pendingAddPobs = append(h.pendingAddPobs, pob)
}

// RemovePob queues the removal of pob.
func (h *Hub) RemovePob(pob *ProofObligation) {
	h.pendingRemovePobs = append(h.pendingRemovePobs, pob)
}

// RemovePropagation queues the removal of prop, mirroring RemovePob.
func (h *Hub) RemovePropagation(prop *Propagation) {
	h.pendingRemovePropagations = append(h.pendingRemovePropagations, prop)
}

// AddTargetedConflict queues a conflict for delivery to subscribers.
func (h *Hub) AddTargetedConflict(conflict *TargetedConflict) {
	h.pendingConflicts = append(h.pendingConflicts, conflict)
}

// InitializeState queues the addition of a freshly isolated state.
func (h *Hub) InitializeState(state *ExecutionState) {
	h.pendingAddStates = append(h.pendingAddStates, state)
}

// checkStack gates which (state, pob) pairs may become propagations: it
// pairwise compares the tail min(len(state stack)-1, len(pob.Stack)) frames,
// requiring the same function and, when the pob frame names a non-nil
// callsite, matching callsites, per spec.md §4.C10.
func checkStack(state *ExecutionState, pob *ProofObligation) bool {
	n := len(state.stack) - 1
	if len(pob.Stack) < n {
		n = len(pob.Stack)
	}
	for i := 0; i < n; i++ {
		stateFrame := state.stack[len(state.stack)-1-i]
		pobFrame := pob.Stack[len(pob.Stack)-1-i]
		if stateFrame.Func != pobFrame.Func {
			return false
		}
		if pobFrame.Block != nil && stateFrame.Caller != nil && stateFrame.Caller.Block != pobFrame.Block {
			return false
		}
	}
	return true
}

// UpdateSubscribers applies every pending mutation and fans the resulting
// events to subscribers in the 4-step order spec.md §4.C10 prescribes. It
// panics (fail-fast) if a state appears in both added and removed sets, or
// if a delivered States event mixes isolated and non-isolated states.
func (h *Hub) UpdateSubscribers() {
	h.stepStates()
	h.stepPropagations()
	h.stepPobs()
	h.stepConflicts()
}

func (h *Hub) stepStates() {
	added, removed := h.pendingAddStates, h.pendingRemoveStates
	h.pendingAddStates, h.pendingRemoveStates = nil, nil
	if len(added) == 0 && len(removed) == 0 {
		return
	}

	addedSet := make(map[*ExecutionState]struct{}, len(added))
	for _, s := range added {
		addedSet[s] = struct{}{}
	}
	for _, s := range removed {
		_, inBoth := addedSet[s]
		assert(!inBoth, "Hub.UpdateSubscribers: state in both added and removed")
	}

	if len(added) > 0 {
		isolated := added[0].Isolated()
		for _, s := range added {
			assert(s.Isolated() == isolated, "Hub.UpdateSubscribers: mixed isolated/non-isolated states in one event:\n%s", dump(s))
		}
	}

	var remainingAdded []*ExecutionState
	for _, s := range added {
		if s.Isolated() {
			h.isolatedStates[s] = struct{}{}
			h.closeIsolatedIfReached(s)
		} else {
			h.states[s] = struct{}{}
			h.closeRootPobsIfReached(s)
		}
		remainingAdded = append(remainingAdded, s)
	}
	for _, s := range removed {
		delete(h.states, s)
		delete(h.isolatedStates, s)
	}

	event := StateEvent{Added: remainingAdded, Removed: removed}
	for _, sub := range h.subscribers {
		sub.NotifyStates(event)
	}
}

// closeIsolatedIfReached handles an isolated state reaching a target with
// open pobs: it clones the state into reachedStates[target] and creates a
// gated propagation against every matching pob.
func (h *Hub) closeIsolatedIfReached(state *ExecutionState) {
	for key, pobSet := range h.pobs {
		target := h.targetByKey[key]
		if !h.isReachedTarget(state, target) {
			continue
		}
		if h.reachedStates[key] == nil {
			h.reachedStates[key] = make(map[*ExecutionState]struct{})
		}
		h.reachedStates[key][state] = struct{}{}

		for pob := range pobSet {
			if !checkStack(state, pob) {
				continue
			}
			prop := NewPropagation(state, pob)
			if h.propagations[key] == nil {
				h.propagations[key] = make(map[*Propagation]struct{})
			}
			h.propagations[key][prop] = struct{}{}
			h.pendingAddPropagations = append(h.pendingAddPropagations, prop)
			pob.RecordPropagation(state)
		}
	}
}

// closeRootPobsIfReached implements forward-true-positive closure: a
// regular state reaching a root pob's own location closes it.
func (h *Hub) closeRootPobsIfReached(state *ExecutionState) {
	for pob := range h.rootPobs {
		if h.isReachedTarget(state, pob.Target) {
			h.pendingRemovePobs = append(h.pendingRemovePobs, pob)
		}
	}
}

// stepPropagations applies pending propagation add/remove into
// h.propagations and delivers the resulting event, per spec.md §4.C10's
// "Propagations event."
func (h *Hub) stepPropagations() {
	added, removed := h.pendingAddPropagations, h.pendingRemovePropagations
	h.pendingAddPropagations, h.pendingRemovePropagations = nil, nil
	if len(added) == 0 && len(removed) == 0 {
		return
	}

	for _, prop := range removed {
		key := targetKey(prop.Pob.Target)
		delete(h.propagations[key], prop)
	}

	event := PropagationEvent{Added: added, Removed: removed}
	for _, sub := range h.subscribers {
		sub.NotifyPropagations(event)
	}
}

func (h *Hub) stepPobs() {
	added, removed := h.pendingAddPobs, h.pendingRemovePobs
	h.pendingAddPobs, h.pendingRemovePobs = nil, nil
	if len(added) == 0 && len(removed) == 0 {
		return
	}

	for _, pob := range added {
		key := targetKey(pob.Target)
		h.targetByKey[key] = pob.Target
		if h.pobs[key] == nil {
			h.pobs[key] = make(map[*ProofObligation]struct{})
		}
		h.pobs[key][pob] = struct{}{}
		h.leafPobs[pob] = struct{}{}
		if pob.Parent != nil {
			delete(h.leafPobs, pob.Parent)
		} else {
			h.rootPobs[pob] = struct{}{}
		}
		h.pathedPobs[pathedPobKey(pob.pathKey(), pob.Target)] = pob
	}
	for _, pob := range removed {
		key := targetKey(pob.Target)
		delete(h.pobs[key], pob)
		delete(h.leafPobs, pob)
		delete(h.rootPobs, pob)
		delete(h.pathedPobs, pathedPobKey(pob.pathKey(), pob.Target))
		RemovePob(pob)
	}

	event := PobEvent{Added: added, Removed: removed}
	for _, sub := range h.subscribers {
		sub.NotifyPobs(event)
	}
}

func (h *Hub) stepConflicts() {
	conflicts := h.pendingConflicts
	h.pendingConflicts = nil
	if len(conflicts) == 0 {
		return
	}
	event := ConflictEvent{Conflicts: conflicts}
	for _, sub := range h.subscribers {
		sub.NotifyConflicts(event)
	}
}

// pathKey returns a stable string key identifying pob's call-stack path,
// used to enforce pathedPobs' one-entry-per-(path,location) invariant.
func (pob *ProofObligation) pathKey() string {
	key := ""
	for _, f := range pob.Stack {
		key += fmt.Sprintf("%p;", f.Block)
	}
	return key
}
