package bisym

import (
	"fmt"

	"golang.org/x/tools/go/ssa"
)

// BlockKind tags a Block by its role in a call, matching spec.md §4.C3's
// {Base, Call, Return} tagging.
type BlockKind int

const (
	// BlockBase is an ordinary block with no call/return semantics.
	BlockBase BlockKind = iota
	// BlockCall is a block that contains a call and does not end in a
	// function return.
	BlockCall
	// BlockReturn is a block whose last instruction is a function return.
	BlockReturn
)

func (k BlockKind) String() string {
	switch k {
	case BlockCall:
		return "call"
	case BlockReturn:
		return "return"
	default:
		return "base"
	}
}

// Module is the dense-ID shadow mirror of a compiled *ssa.Program: spec.md
// §4.C3's "IR shadow model." It never mutates the underlying program; it
// only builds caches the engine needs (block first/last instruction,
// per-function entry/return lists, a per-block set of statically called
// functions, function/constant ID maps). It keeps no instruction->register
// index. IDs are dense within a Module and stable for its lifetime,
// matching the §4.C3 contract.
type Module struct {
	Program *ssa.Program

	funcs      map[*ssa.Function]*Function
	funcByID   map[int]*Function
	nextFuncID int

	constByID   map[int]*ssa.Const
	idByConst   map[*ssa.Const]int
	nextConstID int
}

// NewModule returns a shadow model wrapping prog.
func NewModule(prog *ssa.Program) *Module {
	return &Module{
		Program:   prog,
		funcs:     make(map[*ssa.Function]*Function),
		funcByID:  make(map[int]*Function),
		constByID: make(map[int]*ssa.Const),
		idByConst: make(map[*ssa.Const]int),
	}
}

// Function returns (building & caching on first use) the shadow for fn.
func (m *Module) Function(fn *ssa.Function) *Function {
	if kf, ok := m.funcs[fn]; ok {
		return kf
	}

	m.nextFuncID++
	kf := &Function{
		ID:         m.nextFuncID,
		SSA:        fn,
		blockByID:  make(map[*ssa.BasicBlock]*Block),
		callBlocks: make(map[*Block]map[*Function]struct{}),
	}
	m.funcs[fn] = kf
	m.funcByID[kf.ID] = kf

	for i, b := range fn.Blocks {
		kb := &Block{
			ID:    i,
			Func:  kf,
			SSA:   b,
			First: 0,
			Last:  len(b.Instrs) - 1,
		}
		kb.Kind = blockKind(b)
		kf.Blocks = append(kf.Blocks, kb)
		kf.blockByID[b] = kb
	}
	if len(kf.Blocks) > 0 {
		kf.Entry = kf.Blocks[0]
	}
	for _, kb := range kf.Blocks {
		if kb.Kind == BlockReturn {
			kf.Returns = append(kf.Returns, kb)
		}
		for _, instr := range kb.SSA.Instrs {
			callee := m.staticCallee(instr)
			if callee == nil {
				continue
			}
			set := kf.callBlocks[kb]
			if set == nil {
				set = make(map[*Function]struct{})
				kf.callBlocks[kb] = set
			}
			set[m.Function(callee)] = struct{}{}
		}
	}
	return kf
}

// Functions returns every shadow built so far, ordered by ID. Used by C4's
// call-graph distance, which needs to enumerate the whole call graph rather
// than navigate outward from a single function.
func (m *Module) Functions() []*Function {
	funcs := make([]*Function, 0, len(m.funcByID))
	for i := 1; i <= m.nextFuncID; i++ {
		if f, ok := m.funcByID[i]; ok {
			funcs = append(funcs, f)
		}
	}
	return funcs
}

// ConstID returns a dense, stable id for a constant, assigning one on first
// use.
func (m *Module) ConstID(c *ssa.Const) int {
	if id, ok := m.idByConst[c]; ok {
		return id
	}
	m.nextConstID++
	m.idByConst[c] = m.nextConstID
	m.constByID[m.nextConstID] = c
	return m.nextConstID
}

// ConstByID reverses ConstID.
func (m *Module) ConstByID(id int) (*ssa.Const, bool) {
	c, ok := m.constByID[id]
	return c, ok
}

// staticCallee resolves the directly-called function of a call instruction,
// or nil if the call target cannot be resolved statically (indirect call,
// interface invocation, builtin). Call-target resolution beyond the static
// case belongs to the IR loader/optimizer collaborator (out of scope).
func (m *Module) staticCallee(instr ssa.Instruction) *ssa.Function {
	call, ok := instr.(ssa.CallInstruction)
	if !ok {
		return nil
	}
	common := call.Common()
	if common.IsInvoke() {
		return nil
	}
	fn, _ := common.Value.(*ssa.Function)
	return fn
}

// blockKind classifies a block by its terminator/last-instruction shape.
func blockKind(b *ssa.BasicBlock) BlockKind {
	if len(b.Instrs) == 0 {
		return BlockBase
	}
	if _, ok := b.Instrs[len(b.Instrs)-1].(*ssa.Return); ok {
		return BlockReturn
	}
	for _, instr := range b.Instrs {
		if _, ok := instr.(ssa.CallInstruction); ok {
			return BlockCall
		}
	}
	return BlockBase
}

// Function is the shadow mirror of an *ssa.Function.
type Function struct {
	ID  int
	SSA *ssa.Function

	Blocks  []*Block
	Entry   *Block
	Returns []*Block

	blockByID  map[*ssa.BasicBlock]*Block
	callBlocks map[*Block]map[*Function]struct{}
}

// String returns the function's qualified name.
func (f *Function) String() string {
	return f.SSA.String()
}

// Block returns the shadow for an *ssa.BasicBlock belonging to f.
func (f *Function) Block(b *ssa.BasicBlock) *Block {
	return f.blockByID[b]
}

// Callees returns the set of statically-resolved functions called from
// block kb, whatever its kind.
func (f *Function) Callees(kb *Block) map[*Function]struct{} {
	return f.callBlocks[kb]
}

// Block is the shadow mirror of an *ssa.BasicBlock.
type Block struct {
	ID    int
	Func  *Function
	SSA   *ssa.BasicBlock
	Kind  BlockKind
	First int // index of first instruction
	Last  int // index of last instruction
}

// String returns a human-readable block label.
func (b *Block) String() string {
	return fmt.Sprintf("%s#%d", b.Func.String(), b.ID)
}

// Instructions returns the block's instruction slice.
func (b *Block) Instructions() []ssa.Instruction {
	return b.SSA.Instrs
}

// Successors returns the shadow successors of b.
func (b *Block) Successors() []*Block {
	succs := make([]*Block, 0, len(b.SSA.Succs))
	for _, s := range b.SSA.Succs {
		succs = append(succs, b.Func.Block(s))
	}
	return succs
}

// Predecessors returns the shadow predecessors of b.
func (b *Block) Predecessors() []*Block {
	preds := make([]*Block, 0, len(b.SSA.Preds))
	for _, p := range b.SSA.Preds {
		preds = append(preds, b.Func.Block(p))
	}
	return preds
}

// IsTerminator returns true if i is the final instruction of its block.
func IsTerminator(i ssa.Instruction) bool {
	switch i.(type) {
	case *ssa.Return, *ssa.Jump, *ssa.If, *ssa.Panic:
		return true
	default:
		return false
	}
}

// IsCall returns true if i performs a call (including invoke/builtin calls).
func IsCall(i ssa.Instruction) bool {
	_, ok := i.(ssa.CallInstruction)
	return ok
}

// IsReturn returns true if i is a function return.
func IsReturn(i ssa.Instruction) bool {
	_, ok := i.(*ssa.Return)
	return ok
}
