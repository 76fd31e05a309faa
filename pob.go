package bisym

// ProofObligation is a node in the backward-search proof-obligation tree,
// per spec.md §4.C9/§3. Mutated only via makeChild (create/
// propagateToReturn); destroyed via removePob, which also erases it from
// its parent's child set.
type ProofObligation struct {
	ID       int
	Parent   *ProofObligation
	Root     *ProofObligation
	Children map[*ProofObligation]struct{}

	Stack        []*StackFrame
	Target       Target
	TargetForest *TargetForest
	Constraints  *ConstraintSet

	propagationCount        map[*ExecutionState]int
	subtreePropagationCount int
}

func newProofObligation(id int, parent *ProofObligation) *ProofObligation {
	pob := &ProofObligation{
		ID:               id,
		Parent:           parent,
		Children:         make(map[*ProofObligation]struct{}),
		propagationCount: make(map[*ExecutionState]int),
	}
	if parent == nil {
		pob.Root = pob
	} else {
		pob.Root = parent.Root
	}
	return pob
}

// makeChild installs child under pob, registering it in pob's child set and
// bumping the subtree propagation counter up the ancestor chain. Every
// mutation that grows the tree (create, propagateToReturn) goes through
// this, per spec.md §3's pob lifecycle.
func (pob *ProofObligation) makeChild(child *ProofObligation) {
	pob.Children[child] = struct{}{}
	for p := pob; p != nil; p = p.Parent {
		p.subtreePropagationCount++
	}
}

// subtractFrames returns a copy of callerStack with every frame shared with
// stateStack's call stack removed from the top, mirroring the teacher's
// CallStackFrame::subtractFrames.
func subtractFrames(callerStack, stateStack []*StackFrame) []*StackFrame {
	i := len(callerStack) - 1
	j := len(stateStack) - 1
	for i >= 0 && j >= 0 && callerStack[i].Func == stateStack[j].Func {
		i--
		j--
	}
	return append([]*StackFrame(nil), callerStack[:i+1]...)
}

// CreatePob builds a child of parent at target ReachBlock(state.path's head
// block, atStart), per spec.md §4.C9. It copies parent's stack minus frames
// shared with state's call stack, and installs composedConstraints. id must
// be freshly allocated by the caller (the hub, per C10).
func CreatePob(id int, parent *ProofObligation, state *ExecutionState, composedConstraints *ConstraintSet) *ProofObligation {
	child := newProofObligation(id, parent)
	child.Target = NewReachBlock(state.Path().HeadBlock(), false)
	child.TargetForest = state.TargetForest()
	child.Constraints = composedConstraints

	if parent != nil {
		child.Stack = subtractFrames(parent.Stack, state.stack)
	}

	child.propagationCount[state]++
	if parent != nil {
		parent.makeChild(child)
	}
	return child
}

// PropagateToReturn rewrites pob's location to returnBlock — the return
// block of the function called at callsite — and pushes callsite onto
// pob's stack, per spec.md §4.C9. Returns the new child pob (pobs are
// otherwise immutable once created; propagation produces a fresh node).
func PropagateToReturn(id int, pob *ProofObligation, callsite *Block, returnBlock *Block) *ProofObligation {
	child := newProofObligation(id, pob)
	child.Target = NewReachBlock(returnBlock, true)
	child.TargetForest = pob.TargetForest
	child.Constraints = pob.Constraints
	child.Stack = append(append([]*StackFrame(nil), pob.Stack...), &StackFrame{Block: callsite})

	pob.makeChild(child)
	return child
}

// RemovePob detaches pob from its parent's child set, per spec.md §3's
// "destroyed in removePob which also erases it from its parent's child
// set".
func RemovePob(pob *ProofObligation) {
	if pob.Parent != nil {
		delete(pob.Parent.Children, pob)
	}
}

// SubtreePropagationCount returns the number of propagations recorded
// anywhere in pob's subtree (including pob itself).
func (pob *ProofObligation) SubtreePropagationCount() int {
	return pob.subtreePropagationCount
}

// PropagationCount returns how many times state has been propagated
// against pob.
func (pob *ProofObligation) PropagationCount(state *ExecutionState) int {
	return pob.propagationCount[state]
}

// RecordPropagation bumps pob's per-state propagation counter and the
// subtree counter up the ancestor chain.
func (pob *ProofObligation) RecordPropagation(state *ExecutionState) {
	pob.propagationCount[state]++
	for p := pob; p != nil; p = p.Parent {
		p.subtreePropagationCount++
	}
}

// GetSubtree returns pob and every descendant, depth-first.
func (pob *ProofObligation) GetSubtree() []*ProofObligation {
	out := []*ProofObligation{pob}
	for child := range pob.Children {
		out = append(out, child.GetSubtree()...)
	}
	return out
}

// Propagation is an ordered (state, pob) pair with a per-pair use counter,
// per spec.md §3. The backward searchers (C11) select among live
// propagations; UseCount tracks how many times this exact pair has been
// picked, feeding RecencyRanked's least-used tie-break.
type Propagation struct {
	State    *ExecutionState
	Pob      *ProofObligation
	UseCount int
}

// NewPropagation returns a fresh (state, pob) propagation with a zero use
// count.
func NewPropagation(state *ExecutionState, pob *ProofObligation) *Propagation {
	return &Propagation{State: state, Pob: pob}
}
