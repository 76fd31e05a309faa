package bisym

import (
	"fmt"

	"golang.org/x/tools/go/ssa"
)

// ArraySource tags the provenance of an Array's initial (pre-update)
// content, per spec.md §4.C5's ArraySource sum type. The teacher's Array
// only ever modeled a single anonymous symbolic-or-constant byte buffer;
// bidirectional composition and lazy initialization need to know *why* an
// array exists so the compose visitor and the object manager can rebuild or
// merge it against a concrete outer context.
type ArraySource interface {
	arraySource()
	String() string
}

// ConstantVectorSource is a fully concrete array: its initial content is a
// literal byte vector (globals, string/slice literals lifted from the IR).
type ConstantVectorSource struct {
	Bytes []byte
}

func (ConstantVectorSource) arraySource() {}
func (s ConstantVectorSource) String() string {
	return fmt.Sprintf("constant(%d bytes)", len(s.Bytes))
}

// SymbolicSizeConstantSource is a symbolic input of known size: a fresh
// unconstrained array introduced at a MakeSymbolic call site or by the
// initializer when synthesizing isolated-execution starting state.
type SymbolicSizeConstantSource struct {
	Name    string
	Version int
}

func (SymbolicSizeConstantSource) arraySource() {}
func (s SymbolicSizeConstantSource) String() string {
	return fmt.Sprintf("symbolic(%s#%d)", s.Name, s.Version)
}

// SymbolicSizeConstantAddressSource models a symbolic pointer value itself
// (as opposed to the memory it points to): used when an address is
// unconstrained but must still be representable as an array for uniform
// Select/Store handling.
type SymbolicSizeConstantAddressSource struct {
	Name    string
	Version int
}

func (SymbolicSizeConstantAddressSource) arraySource() {}
func (s SymbolicSizeConstantAddressSource) String() string {
	return fmt.Sprintf("symbolic-address(%s#%d)", s.Name, s.Version)
}

// LazyInitAddressSource, LazyInitSizeSource and LazyInitContentSource model
// the three arrays a lazily-initialized pointer dereference can produce:
// the pointee's address, its size, and its content. The pointer that
// triggered lazy initialization is recorded so the compose visitor can
// later resolve it against the concrete outer heap.
type LazyInitAddressSource struct {
	Pointer Expr
}

func (LazyInitAddressSource) arraySource()     {}
func (s LazyInitAddressSource) String() string { return "lazy-init-address" }

type LazyInitSizeSource struct {
	Pointer Expr
}

func (LazyInitSizeSource) arraySource()     {}
func (s LazyInitSizeSource) String() string { return "lazy-init-size" }

type LazyInitContentSource struct {
	Pointer Expr
}

func (LazyInitContentSource) arraySource()     {}
func (s LazyInitContentSource) String() string { return "lazy-init-content" }

// ArgumentSource is an array standing for a function parameter's bytes,
// identified positionally since the concrete parameter type belongs to the
// external type-system collaborator.
type ArgumentSource struct {
	Func  *ssa.Function
	Index int
}

func (ArgumentSource) arraySource() {}
func (s ArgumentSource) String() string {
	return fmt.Sprintf("argument(%s, %d)", s.Func, s.Index)
}

// InstructionSource ties an array to the SSA instruction (and result index,
// for multi-result instructions) that produced it.
type InstructionSource struct {
	Instr ssa.Instruction
	Index int
}

func (InstructionSource) arraySource() {}
func (s InstructionSource) String() string {
	return fmt.Sprintf("instruction(%v, %d)", s.Instr, s.Index)
}

// GlobalSource ties an array to a package-level global variable.
type GlobalSource struct {
	Global *ssa.Global
}

func (GlobalSource) arraySource()     {}
func (s GlobalSource) String() string { return fmt.Sprintf("global(%s)", s.Global) }

// IrreproducibleSource marks an array whose content the engine can never
// reconstruct deterministically from a replayed test case (e.g. a read of
// wall-clock time or OS entropy lifted to a fresh symbol on every run).
type IrreproducibleSource struct {
	Name    string
	Version int
}

func (IrreproducibleSource) arraySource() {}
func (s IrreproducibleSource) String() string {
	return fmt.Sprintf("irreproducible(%s#%d)", s.Name, s.Version)
}

// Array represents an array of symbolic or concrete bytes.
type Array struct {
	ID      uint64       // unique id
	Size    uint         // width, in bytes
	Source  ArraySource  // provenance, for composition/lazy-init bookkeeping
	Updates *ArrayUpdate // linked list of symbolic updates
}

// NewArray returns a new Array of the given size and source.
func NewArray(id uint64, size uint, source ArraySource) *Array {
	return &Array{
		ID:     id,
		Size:   size,
		Source: source,
	}
}

// String returns a string representation of the array.
func (a *Array) String() string {
	if a.ID != 0 {
		return fmt.Sprintf("(array #%d %d %s)", a.ID, a.Size, a.sourceLabel())
	}
	return fmt.Sprintf("(array %d %s)", a.Size, a.sourceLabel())
}

func (a *Array) sourceLabel() string {
	if a.Source == nil {
		return "unknown"
	}
	return a.Source.String()
}

// Clone returns a copy of the array.
func (a *Array) Clone() *Array {
	return &Array{
		ID:      a.ID,
		Size:    a.Size,
		Source:  a.Source,
		Updates: a.Updates,
	}
}

// zero initializes all bytes to zero in-place. Panic if updates already exist.
func (a *Array) zero() {
	assert(a.Updates == nil, "bisym.Array: cannot zero-initialize array with updates")
	for i := uint(0); i < a.Size; i++ {
		a.storeByte(NewConstantExpr64(uint64(i)), NewConstantExpr(0, 8))
	}
}

// Select reads a value from the array.
func (a *Array) Select(offset Expr, width uint, isLittleEndian bool) Expr {
	assert(width > 0, "select: invalid width")

	offset = newZExtExpr(offset, Width64)

	if width == WidthBool {
		return NewExtractExpr(a.selectByte(offset), 0, WidthBool)
	}

	// Handle read byte-by-byte.
	var result Expr
	for i, n := uint64(0), uint64(width)/8; i != n; i++ {
		byteOffset := i
		if !isLittleEndian {
			byteOffset = (n - i - 1)
		}

		value := a.selectByte(NewBinaryExpr(ADD, offset, NewConstantExpr64(byteOffset)))
		if i == 0 {
			result = value
		} else {
			result = NewConcatExpr(value, result)
		}
	}
	return result
}

// selectByte reads a single byte from the array.
//
// Attempts to find a concrete value by traversing the array update history.
// Falls back to a read expression if either the selected index or an
// update's index is symbolic.
func (a *Array) selectByte(index Expr) Expr {
	assert(ExprWidth(index) == 64, "selectByte: invalid array index width: %d", ExprWidth(index))
	for upd := a.Updates; upd != nil; upd = upd.Next {
		cond, ok := NewBinaryExpr(EQ, index, upd.Index).(*ConstantExpr)
		if !ok {
			break // found symbolic index, exit
		} else if cond.IsTrue() {
			return upd.Value
		}
	}
	return NewReadExpr(a, index)
}

// Store writes a value at an offset. Returns a new copy of the array.
func (a *Array) Store(offset, value Expr, isLittleEndian bool) *Array {
	other := a.Clone()

	offset = newZExtExpr(offset, Width64)

	// Treat bool specially, it is the only non-byte sized write we allow.
	width := ExprWidth(value)
	assert(width > 0, "store: invalid width")
	if width == WidthBool {
		other.storeByte(offset, value)
		return other
	}

	// Otherwise, follow the slow general case.
	for i, n := uint64(0), uint64(width)/8; i != n; i++ {
		byteOffset := i
		if !isLittleEndian {
			byteOffset = (n - i - 1)
		}

		other.storeByte(NewBinaryExpr(ADD, offset, NewConstantExpr64(byteOffset)), NewExtractExpr(value, uint(i*8), Width8))
	}
	return other
}

// storeByte writes a single byte to the array.
func (a *Array) storeByte(index, value Expr) {
	assert(ExprWidth(index) == 64, "storeByte: invalid array index width: %d", ExprWidth(index))

	// Verify constant is not out of bounds.
	if index, ok := index.(*ConstantExpr); ok {
		assert(index.Value < uint64(a.Size), "storeByte: index out of bounds: %d < %d", index.Value, a.Size)
	}

	// Add update to the head of the chain.
	a.Updates = NewArrayUpdate(index, value, a.Updates)

	// Remove any previous updates to the index from the chain.
	if index, ok := index.(*ConstantExpr); ok {
		prev := a.Updates
		for upd := prev.Next; upd != nil; upd = upd.Next {
			if updIndex, ok := upd.Index.(*ConstantExpr); !ok {
				break // symbolic index
			} else if index.Value == updIndex.Value {
				prev.Next = upd.Next // matching index, remove
			} else {
				prev = upd // no matching index, continue
			}
		}
	}
}

// IsSymbolic returns true if any bytes in the array are symbolic.
func (a *Array) IsSymbolic() bool {
	if _, ok := a.Source.(ConstantVectorSource); !ok {
		// Any non-constant-vector source starts out wholly or partly
		// symbolic; update history can only narrow it.
		if a.Updates == nil {
			return true
		}
	}

	// Mark all bytes with concrete values.
	bytes := make([]bool, a.Size)
	for upd := a.Updates; upd != nil; upd = upd.Next {
		if index, ok := upd.Index.(*ConstantExpr); !ok {
			return true // found symbolic index
		} else if _, ok := upd.Value.(*ConstantExpr); ok {
			bytes[index.Value] = true // index & value are concrete
		}
	}

	for _, isConcrete := range bytes {
		if !isConcrete {
			return true
		}
	}
	return false
}

// Equal returns a boolean expression stating if a is equal to other.
func (a *Array) Equal(other *Array) Expr {
	// Length is known at runtime so verify first.
	if a.Size != other.Size {
		return NewBoolConstantExpr(false)
	} else if a.Size == 0 {
		return NewBoolConstantExpr(true)
	}

	// Check equality for every byte.
	// Exit early if any concrete byte is unequal.
	var cond Expr
	for i := uint(0); i < a.Size; i++ {
		// Select one at index from each array.
		index := NewConstantExpr64(uint64(i))
		x, y := a.selectByte(index), other.selectByte(index)

		// Compare bytes, exit if known false.
		expr := newEqExpr(x, y)
		if IsConstantFalse(expr) {
			return NewBoolConstantExpr(false)
		}

		// Initialize or join to existing constraint set.
		if i == 0 {
			cond = expr
		} else {
			cond = newAndExpr(cond, expr)
		}
	}
	return cond
}

// NotEqual returns a boolean expression stating if a is not equal to other.
func (a *Array) NotEqual(other *Array) Expr {
	// Length is known at runtime so verify first.
	if a.Size != other.Size {
		return NewBoolConstantExpr(true)
	} else if a.Size == 0 {
		return NewBoolConstantExpr(false)
	}

	// Check inequality for every byte.
	// Exit early if any concrete byte is unequal.
	var cond Expr
	for i := uint(0); i < a.Size; i++ {
		// Select one at index from each array.
		index := NewConstantExpr64(uint64(i))
		x, y := a.selectByte(index), other.selectByte(index)

		// Compare bytes, exit if known inequality.
		expr := NewNotExpr(newEqExpr(x, y))
		if IsConstantTrue(expr) {
			return NewBoolConstantExpr(true)
		}

		// Initialize or join to existing constraint set.
		if i == 0 {
			cond = expr
		} else {
			cond = newOrExpr(cond, expr)
		}
	}
	return cond
}

// CompareArray returns an integer comparing two arrays.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func CompareArray(a, b *Array) int {
	if a == nil && b != nil {
		return -1
	} else if a != nil && b == nil {
		return 1
	} else if a == nil && b == nil {
		return 0
	}

	if a.ID < b.ID {
		return -1
	} else if a.ID > b.ID {
		return 1
	}

	if a.Size < b.Size {
		return -1
	} else if a.Size > b.Size {
		return 1
	}

	if cmp := compareArraySource(a.Source, b.Source); cmp != 0 {
		return cmp
	}

	return CompareArrayUpdate(a.Updates, b.Updates)
}

// compareArraySource orders two sources by their label; sources are only
// ever compared within Array equality, where a stable total order (not a
// semantically meaningful one) is all that's required.
func compareArraySource(a, b ArraySource) int {
	as, bs := "", ""
	if a != nil {
		as = a.String()
	}
	if b != nil {
		bs = b.String()
	}
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// ArrayUpdate represents a symbolic update to an array.
type ArrayUpdate struct {
	Index Expr // byte index of update
	Value Expr // byte value to update

	Next *ArrayUpdate // linked list of next update
}

// NewArrayUpdate returns a new instance of ArrayUpdate.
func NewArrayUpdate(index, value Expr, next *ArrayUpdate) *ArrayUpdate {
	return &ArrayUpdate{
		Index: newZExtExpr(index, Width64),
		Value: newZExtExpr(value, Width8),
		Next:  next,
	}
}

// CompareArrayUpdate returns an integer comparing two array updates.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func CompareArrayUpdate(a, b *ArrayUpdate) int {
	if a == nil && b != nil {
		return -1
	} else if a != nil && b == nil {
		return 1
	} else if a == nil && b == nil {
		return 0
	}

	if cmp := CompareExpr(a.Index, b.Index); cmp != 0 {
		return cmp
	} else if cmp := CompareExpr(a.Value, b.Value); cmp != 0 {
		return cmp
	}
	return CompareArrayUpdate(a.Next, b.Next)
}
