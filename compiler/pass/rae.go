package pass

import (
	"github.com/rv64dbt/core/compiler/ir"
	"github.com/rv64dbt/core/compiler/riscv"
	"github.com/rv64dbt/core/compiler/set"
)

// rae implements register-access elimination (§4.4): within one basic
// block, it collapses redundant load_register/store_register pairs
// against the local effect chain, independently per guest register, and
// the analogous load_memory/store_memory pairs against one last-load and
// one last-store slot — the front-end's address arithmetic never leaves
// more than one live candidate address in play for the block shapes this
// pass targets, so one slot each suffices without tracking a set of
// addresses.
// hasStoreAfterException is dense over the fixed guest register space
// (riscv.GuestRegCount, including the synthetic pc/instret slots), so it
// uses a fixed-size Bitmap rather than a map keyed by a small bounded int.
type rae struct {
	lastLoad               map[int]*ir.Node
	lastStore              map[int]*ir.Node
	hasStoreAfterException set.Bitmap

	lastMemoryLoad               *ir.Node
	lastMemoryStore              *ir.Node
	memoryStoreHasExceptionAfter bool
}

func (p *rae) Start() {
	p.lastLoad = map[int]*ir.Node{}
	p.lastStore = map[int]*ir.Node{}
	p.hasStoreAfterException = set.MakeBitmap(riscv.GuestRegCount)

	p.lastMemoryLoad = nil
	p.lastMemoryStore = nil
	p.memoryStoreHasExceptionAfter = false
}

func (p *rae) Before(n *ir.Node) bool { return true }

func (p *rae) After(n *ir.Node) {
	switch n.Opcode {
	case ir.LoadRegister:
		p.load(n)
	case ir.StoreRegister:
		p.store(n)
	case ir.LoadMemory:
		p.markRegisterStoreException()
		p.memoryStoreHasExceptionAfter = true
		p.loadMemory(n)
	case ir.StoreMemory:
		p.markRegisterStoreException()
		p.storeMemory(n)
	case ir.Fence:
		p.fence()
	default:
		if ir.IsExceptionCapable(n.Opcode) {
			p.exception()
		}
	}
}

func (p *rae) load(n *ir.Node) {
	k := int(n.Attribute)
	mem := n.Operand(0)
	newMem, data := n.Value(0), n.Value(1)

	switch {
	case p.lastStore[k] != nil:
		Replace(data, p.lastStore[k].Operand(1))
		Replace(newMem, mem)
	case p.lastLoad[k] != nil:
		Replace(data, p.lastLoad[k].Value(1))
		Replace(newMem, mem)
	default:
		p.lastLoad[k] = n
	}
}

func (p *rae) store(n *ir.Node) {
	k := int(n.Attribute)

	if prev := p.lastStore[k]; prev != nil && !p.hasStoreAfterException.IsSet(k) {
		Replace(prev.Value(0), prev.Operand(0))
	}

	p.lastStore[k] = n
	p.lastLoad[k] = nil
	p.hasStoreAfterException.Clear(k)
}

// loadMemory forwards a load_memory to a prior live load_memory of the
// same address and width (§8 S4), mirroring load()'s register
// forwarding but keyed by address equality instead of a register number.
func (p *rae) loadMemory(n *ir.Node) {
	addr := n.Operand(1)
	mem := n.Operand(0)
	newMem, data := n.Value(0), n.Value(1)

	if prev := p.lastMemoryLoad; prev != nil && n.OutputType(1) == prev.OutputType(1) && sameAddress(addr, prev.Operand(1)) {
		Replace(data, prev.Value(1))
		Replace(newMem, mem)
		return
	}

	p.lastMemoryLoad = n
}

// storeMemory drops a prior live store_memory to the same address once a
// later store overwrites it with nothing read or exception-capable in
// between (§8 S5), mirroring store()'s dead-store elimination.
func (p *rae) storeMemory(n *ir.Node) {
	addr := n.Operand(1)

	if prev := p.lastMemoryStore; prev != nil && !p.memoryStoreHasExceptionAfter && sameAddress(addr, prev.Operand(1)) {
		Replace(prev.Value(0), prev.Operand(0))
	}

	p.lastMemoryStore = n
	p.lastMemoryLoad = nil
	p.memoryStoreHasExceptionAfter = false
}

// markRegisterStoreException is the load_memory/store_memory half of
// exception handling: both can fault, so a register store preceding one
// must stay observable to a handler that inspects architectural state.
// Unlike exception, it leaves register load-forwarding state alone: a
// plain memory access, unlike emulate, never writes to a guest register
// behind this pass's back, so a value already read from a register
// stays valid to forward across it. It also leaves
// memoryStoreHasExceptionAfter alone — callers that are themselves an
// intervening exception-capable access (load_memory, emulate) set that
// separately, since a store_memory must not mark its own "exception
// after" flag when it becomes the new last store.
func (p *rae) markRegisterStoreException() {
	for k := range p.lastStore {
		p.hasStoreAfterException.Set(k)
	}
}

// exception marks every register's store as no longer eliminable, drops
// register and memory load forwarding, and protects any pending
// store_memory from removal: an emulated instruction is opaque to this
// pass and may have observed or changed architectural state — including
// a register a load already forwarded from — between here and the next
// access.
func (p *rae) exception() {
	p.markRegisterStoreException()
	p.memoryStoreHasExceptionAfter = true

	p.lastLoad = map[int]*ir.Node{}
	p.lastMemoryLoad = nil
}

func (p *rae) fence() {
	p.lastLoad = map[int]*ir.Node{}
	p.lastStore = map[int]*ir.Node{}
	p.hasStoreAfterException = set.MakeBitmap(riscv.GuestRegCount)

	p.lastMemoryLoad = nil
	p.lastMemoryStore = nil
	p.memoryStoreHasExceptionAfter = false
}

// sameAddress reports whether a and b compute the same memory address.
// rae runs before local value numbering, so two address computations
// built from the same register reads are still distinct node instances
// at this point in the pipeline; this recurses through the handful of
// pure opcodes the front-end's address arithmetic ever produces (see
// front.emitLoad, front.emitStore) instead of running value numbering
// inline. Anything it doesn't recognise falls back to identity.
func sameAddress(a, b ir.Value) bool {
	if a.Equal(b) {
		return true
	}

	if a.Opcode() != b.Opcode() || a.Type() != b.Type() {
		return false
	}

	switch a.Opcode() {
	case ir.Constant:
		return a.ConstValue() == b.ConstValue()
	case ir.Add, ir.Sub, ir.Xor, ir.Or, ir.And:
		al, ar := a.Node.Operand(0), a.Node.Operand(1)
		bl, br := b.Node.Operand(0), b.Node.Operand(1)

		if ir.IsCommutativeOpcode(a.Opcode()) && sameAddress(al, br) && sameAddress(ar, bl) {
			return true
		}

		return sameAddress(al, bl) && sameAddress(ar, br)
	default:
		return false
	}
}

// RegisterAccessElimination runs the pass over g's current root.
func RegisterAccessElimination(g *ir.Graph) {
	Reset(g)
	Run(g.Root(), &rae{})
}
