package bisym

import "fmt"

// TransitionKind tags how a Path entry's block was entered relative to the
// previous entry: crossing into a call, returning out of one, or a plain
// intra-function jump.
type TransitionKind int

const (
	TransitionNone TransitionKind = iota
	TransitionIn
	TransitionOut
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionIn:
		return "in"
	case TransitionOut:
		return "out"
	default:
		return "none"
	}
}

// PathEntry is one block visited by a Path, tagged with how it was entered.
type PathEntry struct {
	Block      *Block
	Transition TransitionKind
}

// Path is an append-only sequence of blocks visited during (isolated or
// whole-program) execution, per spec.md §4.C6. First is the instruction
// index within the head block; Last is the instruction index within the
// tail block; Next is the instruction index to execute after Last (which
// may belong to a different block than the tail, once a fresh entry is
// pushed on the following StepInstruction call).
type Path struct {
	Entries []PathEntry
	First   int
	Last    int
	Next    int
}

// NewPath returns a single-block path starting at the given instruction
// index within block.
func NewPath(block *Block, first int) *Path {
	return &Path{
		Entries: []PathEntry{{Block: block, Transition: TransitionNone}},
		First:   first,
		Last:    first,
		Next:    first,
	}
}

// HeadBlock returns the block of the first entry.
func (p *Path) HeadBlock() *Block {
	if len(p.Entries) == 0 {
		return nil
	}
	return p.Entries[0].Block
}

// TailBlock returns the block of the last entry.
func (p *Path) TailBlock() *Block {
	if len(p.Entries) == 0 {
		return nil
	}
	return p.Entries[len(p.Entries)-1].Block
}

// completedTail returns true if the tail entry's Last reached the tail
// block's final instruction index.
func (p *Path) completedTail() bool {
	tail := p.TailBlock()
	return tail != nil && p.Last == tail.Last
}

// getTransitionKindFromInst classifies the transition caused by having just
// executed prev: entering a call block's first instruction is an In
// transition, leaving a call block's last instruction is Out, anything else
// is a plain None transition.
func getTransitionKindFromInst(prev *Block, prevIndex int) TransitionKind {
	if prev == nil {
		return TransitionNone
	}
	if prev.Kind == BlockCall && prevIndex == prev.First {
		return TransitionIn
	}
	if prev.Kind == BlockCall && prevIndex == prev.Last {
		return TransitionOut
	}
	return TransitionNone
}

// StepInstruction advances the path given the block/index of the just-executed
// instruction (prevBlock, prevIndex) and the index of the instruction about to
// execute next (pc), per spec.md §4.C6. If the tail block differs from
// prevBlock, a new entry is pushed; either way Last and Next are updated.
// Returns the same *Path, mutated in place — callers that need to retain the
// pre-step path must Clone it first.
func (p *Path) StepInstruction(prevBlock *Block, prevIndex, pc int) *Path {
	if p.TailBlock() != prevBlock {
		p.Entries = append(p.Entries, PathEntry{
			Block:      prevBlock,
			Transition: getTransitionKindFromInst(prevBlock, prevIndex),
		})
	}
	p.Last = prevIndex
	p.Next = pc
	return p
}

// Clone returns an independent copy of p.
func (p *Path) Clone() *Path {
	entries := make([]PathEntry, len(p.Entries))
	copy(entries, p.Entries)
	return &Path{Entries: entries, First: p.First, Last: p.Last, Next: p.Next}
}

// Concat joins l and r into a single path, per spec.md §4.C6. It is only
// legal when l.Next lines up with r's head (l.Next == r.First), or when l
// ends at a return block whose function is one of the callees listed on r's
// first call block (bridging an isolated result back into an
// inter-procedural join). Returns nil if neither condition holds.
func Concat(l, r *Path) *Path {
	if l == nil || r == nil || len(r.Entries) == 0 {
		return nil
	}

	head := r.Entries[0]
	bridges := l.Next == r.First
	if !bridges {
		tail := l.TailBlock()
		if tail != nil && tail.Kind == BlockReturn && head.Block.Kind == BlockCall {
			if callees := head.Block.Func.Callees(head.Block); callees != nil {
				if _, ok := callees[tail.Func]; ok {
					bridges = true
				}
			}
		}
	}
	if !bridges {
		return nil
	}

	out := l.Clone()
	coalesce := l.completedTail() && out.TailBlock() == head.Block
	rest := r.Entries
	if coalesce {
		rest = rest[1:]
	}
	out.Entries = append(out.Entries, rest...)
	out.Last = r.Last
	out.Next = r.Next
	return out
}

// StackEntry is one frame reconstructed by Path.GetStack: the call block
// that made the call, and the function it entered.
type StackEntry struct {
	Callsite *Block
	Callee   *Function
}

func (e *StackEntry) String() string {
	if e.Callsite == nil {
		return fmt.Sprintf("? -> %s", e.Callee)
	}
	return fmt.Sprintf("%s -> %s", e.Callsite, e.Callee)
}

// GetStack reconstructs the call stack implied by walking the path, per
// spec.md §4.C6. In forward mode, an In transition pushes (callsite,
// callee) and a completed Out (return) transition pops. In reversed mode
// the operations mirror: In pops, and a completed Out pushes using the
// callsite recorded on the following entry (the call block that continues
// after the return).
func (p *Path) GetStack(reversed bool) []*StackEntry {
	n := len(p.Entries)
	completed := func(i int) bool {
		if i < n-1 {
			return true
		}
		return p.completedTail()
	}

	var stack []*StackEntry
	if !reversed {
		for i, e := range p.Entries {
			switch e.Transition {
			case TransitionIn:
				var callsite *Block
				if i > 0 {
					callsite = p.Entries[i-1].Block
				}
				stack = append(stack, &StackEntry{Callsite: callsite, Callee: e.Block.Func})
			case TransitionOut:
				if completed(i) && len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
			}
		}
		return stack
	}

	for i := n - 1; i >= 0; i-- {
		e := p.Entries[i]
		switch e.Transition {
		case TransitionIn:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case TransitionOut:
			if completed(i) {
				var callsite *Block
				if i+1 < n {
					callsite = p.Entries[i+1].Block
				}
				stack = append(stack, &StackEntry{Callsite: callsite, Callee: e.Block.Func})
			}
		}
	}
	return stack
}
