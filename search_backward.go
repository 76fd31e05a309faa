package bisym

import "math/rand"

// PropagationEvent is the (added, removed) delta backward searchers receive
// from the hub, mirroring StateEvent's contract for forward searchers, per
// spec.md §4.C11.
type PropagationEvent struct {
	Added   []*Propagation
	Removed []*Propagation
}

// BackwardSearcher selects the next propagation to advance one backward
// step.
type BackwardSearcher interface {
	// SelectPropagation returns the next propagation to advance, or nil.
	SelectPropagation() *Propagation

	// Update applies an (added, removed) delta from the hub.
	Update(event PropagationEvent)
}

func removePropagation(props []*Propagation, target *Propagation) []*Propagation {
	for i, p := range props {
		if p == target {
			return append(props[:i], props[i+1:]...)
		}
	}
	return props
}

// RecencyRankedSearcher selects the live propagation whose per-pair use
// count is least, stopping early at zero; propagations whose use count
// exceeds maxPropagations are paused (skipped) rather than selected, per
// spec.md §4.C11.
type RecencyRankedSearcher struct {
	props           []*Propagation
	maxPropagations int
}

// NewRecencyRankedSearcher returns a searcher pausing propagations once
// UseCount exceeds maxPropagations. A non-positive maxPropagations disables
// pausing.
func NewRecencyRankedSearcher(maxPropagations int) *RecencyRankedSearcher {
	return &RecencyRankedSearcher{maxPropagations: maxPropagations}
}

func (s *RecencyRankedSearcher) Update(event PropagationEvent) {
	for _, r := range event.Removed {
		s.props = removePropagation(s.props, r)
	}
	s.props = append(s.props, event.Added...)
}

func (s *RecencyRankedSearcher) SelectPropagation() *Propagation {
	var best *Propagation
	for _, p := range s.props {
		if s.maxPropagations > 0 && p.UseCount > s.maxPropagations {
			continue
		}
		if p.UseCount == 0 {
			return p
		}
		if best == nil || p.UseCount < best.UseCount {
			best = p
		}
	}
	return best
}

// RandomPathBackwardSearcher traverses the pob tree rooted at a random live
// root, biasing at each level toward children whose subtree propagation
// count is > 0, then picks a random live propagation attached to the
// leaf it lands on, per spec.md §4.C11.
type RandomPathBackwardSearcher struct {
	roots map[*ProofObligation]struct{}
	byPob map[*ProofObligation][]*Propagation
	rand  *rand.Rand
}

func NewRandomPathBackwardSearcher(src rand.Source) *RandomPathBackwardSearcher {
	return &RandomPathBackwardSearcher{
		roots: make(map[*ProofObligation]struct{}),
		byPob: make(map[*ProofObligation][]*Propagation),
		rand:  rand.New(src),
	}
}

func (s *RandomPathBackwardSearcher) Update(event PropagationEvent) {
	for _, r := range event.Removed {
		s.byPob[r.Pob] = removePropagation(s.byPob[r.Pob], r)
		if len(s.byPob[r.Pob]) == 0 {
			delete(s.byPob, r.Pob)
		}
	}
	for _, a := range event.Added {
		s.byPob[a.Pob] = append(s.byPob[a.Pob], a)
		root := a.Pob.Root
		s.roots[root] = struct{}{}
	}
}

func (s *RandomPathBackwardSearcher) SelectPropagation() *Propagation {
	if len(s.roots) == 0 {
		return nil
	}
	roots := make([]*ProofObligation, 0, len(s.roots))
	for r := range s.roots {
		roots = append(roots, r)
	}
	cur := roots[s.rand.Intn(len(roots))]

	for {
		if len(s.byPob[cur]) > 0 && (len(cur.Children) == 0 || s.rand.Float64() < 0.5) {
			props := s.byPob[cur]
			return props[s.rand.Intn(len(props))]
		}
		if len(cur.Children) == 0 {
			if props := s.byPob[cur]; len(props) > 0 {
				return props[s.rand.Intn(len(props))]
			}
			return nil
		}

		var weighted []*ProofObligation
		for child := range cur.Children {
			if child.SubtreePropagationCount() > 0 {
				weighted = append(weighted, child)
			}
		}
		if len(weighted) == 0 {
			for child := range cur.Children {
				weighted = append(weighted, child)
			}
		}
		cur = weighted[s.rand.Intn(len(weighted))]
	}
}

// InterleavedBackwardSearcher round-robins SelectPropagation across a list
// of backward searchers, broadcasting every Update to all of them, per
// spec.md §4.C11.
type InterleavedBackwardSearcher struct {
	searchers []BackwardSearcher
	next      int
}

func NewInterleavedBackwardSearcher(searchers ...BackwardSearcher) *InterleavedBackwardSearcher {
	assert(len(searchers) > 0, "NewInterleavedBackwardSearcher: no searchers")
	return &InterleavedBackwardSearcher{searchers: searchers}
}

func (s *InterleavedBackwardSearcher) Update(event PropagationEvent) {
	for _, sub := range s.searchers {
		sub.Update(event)
	}
}

func (s *InterleavedBackwardSearcher) SelectPropagation() *Propagation {
	for i := 0; i < len(s.searchers); i++ {
		idx := (s.next + i) % len(s.searchers)
		if p := s.searchers[idx].SelectPropagation(); p != nil {
			s.next = (idx + 1) % len(s.searchers)
			return p
		}
	}
	return nil
}
