package bisym

import (
	"math"
	"math/rand"
	"time"
)

// StateEvent is the (added, removed) delta the hub (C10) fans out to every
// forward searcher on each tick, per spec.md §4.C11's update contract. A
// searcher must not retain state references outside what it receives here.
type StateEvent struct {
	Added   []*ExecutionState
	Removed []*ExecutionState
}

// ForwardSearcher selects the next running state to advance one IR step.
type ForwardSearcher interface {
	// SelectState returns the next state to explore, or nil if empty.
	SelectState() *ExecutionState

	// Update applies an (added, removed) delta from the hub.
	Update(event StateEvent)
}

// removeState deletes the first pointer-equal occurrence of target from
// states, preserving order. Shared by every searcher that keeps a plain
// slice of live states.
func removeState(states []*ExecutionState, target *ExecutionState) []*ExecutionState {
	for i, s := range states {
		if s == target {
			return append(states[:i], states[i+1:]...)
		}
	}
	return states
}

// DFSSearcher always resumes the most recently added state.
type DFSSearcher struct {
	states []*ExecutionState
}

func NewDFSSearcher() *DFSSearcher { return &DFSSearcher{} }

func (s *DFSSearcher) Update(event StateEvent) {
	for _, r := range event.Removed {
		s.states = removeState(s.states, r)
	}
	s.states = append(s.states, event.Added...)
}

func (s *DFSSearcher) SelectState() *ExecutionState {
	if len(s.states) == 0 {
		return nil
	}
	return s.states[len(s.states)-1]
}

// BFSSearcher always resumes the oldest live state, round-robin fashion.
type BFSSearcher struct {
	states []*ExecutionState
	next   int
}

func NewBFSSearcher() *BFSSearcher { return &BFSSearcher{} }

func (s *BFSSearcher) Update(event StateEvent) {
	for _, r := range event.Removed {
		s.states = removeState(s.states, r)
	}
	s.states = append(s.states, event.Added...)
	if s.next >= len(s.states) {
		s.next = 0
	}
}

func (s *BFSSearcher) SelectState() *ExecutionState {
	if len(s.states) == 0 {
		return nil
	}
	state := s.states[s.next]
	s.next = (s.next + 1) % len(s.states)
	return state
}

// RandomSearcher picks uniformly among live states.
type RandomSearcher struct {
	states []*ExecutionState
	rand   *rand.Rand
}

func NewRandomSearcher(src rand.Source) *RandomSearcher {
	return &RandomSearcher{rand: rand.New(src)}
}

func (s *RandomSearcher) Update(event StateEvent) {
	for _, r := range event.Removed {
		s.states = removeState(s.states, r)
	}
	s.states = append(s.states, event.Added...)
}

func (s *RandomSearcher) SelectState() *ExecutionState {
	if len(s.states) == 0 {
		return nil
	}
	return s.states[s.rand.Intn(len(s.states))]
}

// RandomPathSearcher descends the branch tree from a randomly chosen live
// root, making an independent random binary choice at every forked node,
// until it reaches a live leaf, per spec.md §4.C11.
type RandomPathSearcher struct {
	roots map[*ExecutionState]struct{}
	live  map[*ExecutionState]struct{}
	rand  *rand.Rand
}

func NewRandomPathSearcher(src rand.Source) *RandomPathSearcher {
	return &RandomPathSearcher{
		roots: make(map[*ExecutionState]struct{}),
		live:  make(map[*ExecutionState]struct{}),
		rand:  rand.New(src),
	}
}

func (s *RandomPathSearcher) Update(event StateEvent) {
	for _, r := range event.Removed {
		delete(s.live, r)
	}
	for _, a := range event.Added {
		s.live[a] = struct{}{}
		if a.Parent() == nil || !s.reachableFromExistingRoot(a) {
			s.roots[a] = struct{}{}
		}
	}
}

func (s *RandomPathSearcher) reachableFromExistingRoot(a *ExecutionState) bool {
	for cur := a.Parent(); cur != nil; cur = cur.Parent() {
		if _, ok := s.roots[cur]; ok {
			return true
		}
	}
	return false
}

func (s *RandomPathSearcher) SelectState() *ExecutionState {
	if len(s.roots) == 0 {
		return nil
	}
	roots := make([]*ExecutionState, 0, len(s.roots))
	for r := range s.roots {
		roots = append(roots, r)
	}
	cur := roots[s.rand.Intn(len(roots))]
	for {
		if _, ok := s.live[cur]; ok && len(cur.Children()) == 0 {
			return cur
		}
		children := cur.Children()
		live := children[:0:0]
		for _, c := range children {
			if _, ok := s.live[c]; ok {
				live = append(live, c)
			}
		}
		if len(live) == 0 {
			if _, ok := s.live[cur]; ok {
				return cur
			}
			return nil
		}
		cur = live[s.rand.Intn(len(live))]
	}
}

// WeightMode selects the metric WeightedRandomSearcher uses to weigh a
// state, per spec.md §4.C11.
type WeightMode int

const (
	WeightCoveringNew WeightMode = iota
	WeightMinDistToUncovered
	WeightDepth
	WeightRP
	WeightInstCount
	WeightCPInstCount
	WeightQueryCost
)

// WeightFunc computes a state's raw (pre-normalization) weight.
type WeightFunc func(s *ExecutionState) float64

// stateWeight returns the raw weight of s under mode. minDist, when non-nil,
// supplies WeightMinDistToUncovered's per-state distance-to-nearest-
// uncovered-block metric (populated by C12's distance manager); a nil
// minDist makes that mode degrade to a constant weight.
func stateWeight(mode WeightMode, minDist func(*ExecutionState) int) WeightFunc {
	return func(s *ExecutionState) float64 {
		switch mode {
		case WeightCoveringNew:
			return float64(len(s.CoveredNew())) + 1
		case WeightMinDistToUncovered:
			if minDist == nil {
				return 1
			}
			d := minDist(s)
			return 1 / float64(d+1)
		case WeightDepth:
			return float64(s.Depth())
		case WeightRP:
			return 1 / math.Pow(2, float64(s.Depth()))
		case WeightInstCount:
			return 1 / float64(s.Steps()+1)
		case WeightCPInstCount:
			return 1 / float64(s.CallPathSteps()+1)
		case WeightQueryCost:
			return 1 / float64(s.QueryCost()+1)
		default:
			return 1
		}
	}
}

// WeightedRandomSearcher chooses among live states with C1's discrete-
// weight tree, keyed on a per-mode weight function, per spec.md §4.C11.
type WeightedRandomSearcher struct {
	tree   *WeightedTree
	weight WeightFunc
	rand   *rand.Rand
}

// NewWeightedRandomSearcher returns a searcher weighing states by mode. Pass
// minDist for WeightMinDistToUncovered; other modes ignore it.
func NewWeightedRandomSearcher(mode WeightMode, minDist func(*ExecutionState) int, src rand.Source) *WeightedRandomSearcher {
	return &WeightedRandomSearcher{
		tree:   NewWeightedTree(func(a, b interface{}) bool { return a.(*ExecutionState).ID() < b.(*ExecutionState).ID() }),
		weight: stateWeight(mode, minDist),
		rand:   rand.New(src),
	}
}

func (s *WeightedRandomSearcher) Update(event StateEvent) {
	for _, r := range event.Removed {
		if s.tree.Contains(r) {
			s.tree.Remove(r)
		}
	}
	for _, a := range event.Added {
		s.tree.Insert(a, s.weight(a))
	}
}

// Reweigh re-derives every live state's weight, used after a coverage or
// distance update that WeightMinDistToUncovered/WeightCoveringNew depend on.
func (s *WeightedRandomSearcher) Reweigh(states []*ExecutionState) {
	for _, st := range states {
		if s.tree.Contains(st) {
			s.tree.Update(st, s.weight(st))
		}
	}
}

func (s *WeightedRandomSearcher) SelectState() *ExecutionState {
	if s.tree.Len() == 0 || s.tree.TotalWeight() <= 0 {
		return nil
	}
	return s.tree.Choose(s.rand.Float64()).(*ExecutionState)
}

// BatchingSearcher keeps returning its base's last selection for up to N
// instructions or a time budget T, whichever elapses first, per spec.md
// §4.C11.
type BatchingSearcher struct {
	base   ForwardSearcher
	n      int
	budget time.Duration

	last     *ExecutionState
	count    int
	deadline time.Time
	now      func() time.Time
}

// NewBatchingSearcher wraps base, batching up to n steps or budget elapsed.
// now defaults to time.Now; tests may override it.
func NewBatchingSearcher(base ForwardSearcher, n int, budget time.Duration) *BatchingSearcher {
	return &BatchingSearcher{base: base, n: n, budget: budget, now: time.Now}
}

func (s *BatchingSearcher) Update(event StateEvent) {
	for _, r := range event.Removed {
		if s.last == r {
			s.last = nil
		}
	}
	s.base.Update(event)
}

func (s *BatchingSearcher) SelectState() *ExecutionState {
	if s.last != nil && s.count < s.n && s.now().Before(s.deadline) {
		s.count++
		return s.last
	}
	s.last = s.base.SelectState()
	s.count = 1
	s.deadline = s.now().Add(s.budget)
	return s.last
}

// IterativeDeepeningTimeSearcher wraps a base searcher whose SelectState may
// starve (return nil) under a per-round time budget; on starvation it
// widens the budget by factor and returns nil, and a successful selection
// resets the budget to its initial value, per spec.md §4.C11.
type IterativeDeepeningTimeSearcher struct {
	base    ForwardSearcher
	initial time.Duration
	factor  float64
	budget  time.Duration
}

// NewIterativeDeepeningTimeSearcher wraps base with an initial per-round
// budget that widens by factor each time base starves.
func NewIterativeDeepeningTimeSearcher(base ForwardSearcher, initial time.Duration, factor float64) *IterativeDeepeningTimeSearcher {
	return &IterativeDeepeningTimeSearcher{base: base, initial: initial, factor: factor, budget: initial}
}

func (s *IterativeDeepeningTimeSearcher) Update(event StateEvent) { s.base.Update(event) }

// Budget returns the current widened time budget, exposed so a caller can
// bound how long it spends producing candidates for base before calling
// SelectState.
func (s *IterativeDeepeningTimeSearcher) Budget() time.Duration { return s.budget }

func (s *IterativeDeepeningTimeSearcher) SelectState() *ExecutionState {
	state := s.base.SelectState()
	if state == nil {
		s.budget = time.Duration(float64(s.budget) * s.factor)
		return nil
	}
	s.budget = s.initial
	return state
}

// GuidedSearcher delegates to base, but only ever forwards states matching
// inSubset from Update, per spec.md §4.C11's "target-oriented subset".
type GuidedSearcher struct {
	base     ForwardSearcher
	inSubset func(*ExecutionState) bool
}

func NewGuidedSearcher(base ForwardSearcher, inSubset func(*ExecutionState) bool) *GuidedSearcher {
	return &GuidedSearcher{base: base, inSubset: inSubset}
}

func (s *GuidedSearcher) Update(event StateEvent) {
	filtered := StateEvent{}
	for _, a := range event.Added {
		if s.inSubset(a) {
			filtered.Added = append(filtered.Added, a)
		}
	}
	for _, r := range event.Removed {
		if s.inSubset(r) {
			filtered.Removed = append(filtered.Removed, r)
		}
	}
	if len(filtered.Added) == 0 && len(filtered.Removed) == 0 {
		return
	}
	s.base.Update(filtered)
}

func (s *GuidedSearcher) SelectState() *ExecutionState { return s.base.SelectState() }

// InterleavedSearcher round-robins SelectState across a list of searchers,
// broadcasting every Update to all of them, per spec.md §4.C11.
type InterleavedSearcher struct {
	searchers []ForwardSearcher
	next      int
}

func NewInterleavedSearcher(searchers ...ForwardSearcher) *InterleavedSearcher {
	assert(len(searchers) > 0, "NewInterleavedSearcher: no searchers")
	return &InterleavedSearcher{searchers: searchers}
}

func (s *InterleavedSearcher) Update(event StateEvent) {
	for _, sub := range s.searchers {
		sub.Update(event)
	}
}

func (s *InterleavedSearcher) SelectState() *ExecutionState {
	for i := 0; i < len(s.searchers); i++ {
		idx := (s.next + i) % len(s.searchers)
		if state := s.searchers[idx].SelectState(); state != nil {
			s.next = (idx + 1) % len(s.searchers)
			return state
		}
	}
	return nil
}
