package bisym

// scheduledEntry is one (instruction, target-set) pair the initializer can
// hand out via SelectAction, per spec.md §4.C13.
type scheduledEntry struct {
	Instruction KInstruction
	Targets     *TargetSet
}

// ConflictCoreInitializer decides, given the currently open proof
// obligations, which IR instruction to isolate-execute next. It keeps two
// lists per eligible instruction: pending (awaiting a target becoming
// "known") and scheduled (queued for SelectAction), per spec.md §4.C13.
//
// "Known" here counts how many instructions have been scheduled for a
// target set (each pob gets its own set); an entry moves from awaiting to
// queued as soon as its set's count is above zero.
type ConflictCoreInitializer struct {
	module *Module
	dc     *DistanceCalculator
	isCut  BlockPredicate

	awaiting map[KInstruction][]*TargetSet
	queued   []scheduledEntry
	known    map[*TargetSet]int

	targetSetByPob map[*ProofObligation]*TargetSet
}

// NewConflictCoreInitializer returns an initializer that dismantles the
// call graph along blocks satisfying isCut when back-stepping from a pob's
// location.
func NewConflictCoreInitializer(module *Module, dc *DistanceCalculator, isCut BlockPredicate) *ConflictCoreInitializer {
	return &ConflictCoreInitializer{
		module:         module,
		dc:             dc,
		isCut:          isCut,
		awaiting:       make(map[KInstruction][]*TargetSet),
		known:          make(map[*TargetSet]int),
		targetSetByPob: make(map[*ProofObligation]*TargetSet),
	}
}

// AddPob schedules candidate isolate-execute start instructions for pob,
// per spec.md §4.C13.
func (c *ConflictCoreInitializer) AddPob(pob *ProofObligation) {
	rb, ok := pob.Target.(*ReachBlock)
	if !ok {
		return
	}
	targets := NewTargetSet(pob.Target)
	c.targetSetByPob[pob] = targets

	if rb.Block != rb.Block.Func.Entry {
		for _, pred := range c.dc.NearestPredicateSatisfying(rb.Block, c.isCut, false) {
			c.schedule(KInstruction{Block: pred, Index: pred.First}, targets)
		}
		return
	}

	for _, caller := range c.callersOf(rb.Block.Func) {
		c.schedule(KInstruction{Block: caller, Index: caller.First}, targets)
	}
}

// callersOf returns every block, in any function of the module, whose
// resolved callees include fn.
func (c *ConflictCoreInitializer) callersOf(fn *Function) []*Block {
	var callers []*Block
	for _, f := range c.module.Functions() {
		for block, callees := range f.callBlocks {
			if _, ok := callees[fn]; ok {
				callers = append(callers, block)
			}
		}
	}
	return callers
}

// schedule installs (inst, targets) into awaiting and raises the target
// set's known count; since that count is then above zero, the entry moves
// straight on to queued.
func (c *ConflictCoreInitializer) schedule(inst KInstruction, targets *TargetSet) {
	c.known[targets]++

	c.awaiting[inst] = append(c.awaiting[inst], targets)

	for i, ts := range c.awaiting[inst] {
		if ts == targets {
			c.queued = append(c.queued, scheduledEntry{Instruction: inst, Targets: ts})
			c.awaiting[inst] = append(c.awaiting[inst][:i], c.awaiting[inst][i+1:]...)
			break
		}
	}
}

// RemovePob drops pob's target set from awaiting, queued, and the known
// count, per spec.md §4.C13's pob-driven lifecycle.
func (c *ConflictCoreInitializer) RemovePob(pob *ProofObligation) {
	targets, ok := c.targetSetByPob[pob]
	if !ok {
		return
	}
	delete(c.targetSetByPob, pob)
	delete(c.known, targets)

	for inst, list := range c.awaiting {
		var kept []*TargetSet
		for _, ts := range list {
			if ts != targets {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(c.awaiting, inst)
		} else {
			c.awaiting[inst] = kept
		}
	}

	var kept []scheduledEntry
	for _, e := range c.queued {
		if e.Targets != targets {
			kept = append(kept, e)
		}
	}
	c.queued = kept
}

// SelectAction pops the head of queued and returns its (instruction,
// target-set), or ok=false if queued is empty.
func (c *ConflictCoreInitializer) SelectAction() (KInstruction, *TargetSet, bool) {
	if len(c.queued) == 0 {
		return KInstruction{}, nil, false
	}
	entry := c.queued[0]
	c.queued = c.queued[1:]
	return entry.Instruction, entry.Targets, true
}

// Empty is true when queued has no entries, even if awaiting does.
func (c *ConflictCoreInitializer) Empty() bool { return len(c.queued) == 0 }
