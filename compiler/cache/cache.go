// Package cache implements the translation cache external collaborator
// the dispatch loop mediates (§2 item 6, §5): a small direct-mapped hot
// table absorbs repeat lookups for the handful of blocks a hot loop
// actually executes, and an overflow map retains every block compiled
// since the table last evicted it. The core never reaches into either
// tier; only the dispatch loop calls Lookup/Insert/Invalidate, same as
// the reference runtime's Ir_dbt keeping icache_tag_/icache_/inst_cache_
// entirely to itself.
package cache

import (
	"sync"

	"nikand.dev/go/heap"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"
)

const hotTableSize = 4096

// entry is one compiled block: the code the back-end produced for it and
// the sequence number of its last access, which picks an eviction victim
// once the overflow map grows past its bound.
type entry struct {
	pc   uint64
	code []byte
	seq  uint64
}

type hotSlot struct {
	tag  uint64
	code []byte
}

// Cache mirrors the reference runtime's two-tier translation cache. Entry
// points take a raw guest PC, never a *ir.Graph or basic block: by the
// time a block reaches this package it is just an opaque code buffer.
type Cache struct {
	mu  sync.Mutex
	hot [hotTableSize]hotSlot

	overflow map[uint64]*entry
	victims  heap.Heap[*entry]

	maxOverflow int
	clock       uint64
}

// New creates a cache whose overflow tier holds at most maxOverflow
// blocks before LRU eviction kicks in. The hot tier's size is fixed at
// hotTableSize, same as the reference implementation's 4096-entry arrays.
func New(maxOverflow int) *Cache {
	return &Cache{
		overflow:    make(map[uint64]*entry, maxOverflow),
		victims:     heap.Heap[*entry]{Less: func(d []*entry, i, j int) bool { return d[i].seq < d[j].seq }},
		maxOverflow: maxOverflow,
	}
}

func tag(pc uint64) int { return int((pc >> 1) & (hotTableSize - 1)) }

// Lookup returns the compiled code for pc. A hot-table hit never touches
// the overflow map or its lock-protected bookkeeping beyond the slot
// comparison; a hot-table miss that lands in the overflow map repopulates
// the hot slot so the next dispatch of pc hits directly, same as
// Ir_dbt::step falling through to compile() only on a genuine miss.
func (c *Cache) Lookup(pc uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := &c.hot[tag(pc)]
	if slot.tag == pc && slot.code != nil {
		return slot.code, true
	}

	e, ok := c.overflow[pc]
	if !ok {
		return nil, false
	}

	c.touch(e)
	c.promote(pc, e.code)

	return e.code, true
}

// Insert records freshly compiled code for pc in both tiers, evicting the
// least recently used overflow entry first if the tier is already full.
func (c *Cache) Insert(pc uint64, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.overflow[pc]; !exists && len(c.overflow) >= c.maxOverflow {
		c.evictLocked()
	}

	e := &entry{pc: pc, code: code}
	c.touch(e)

	c.overflow[pc] = e
	c.victims.Push(e)

	c.promote(pc, code)
}

// Invalidate drops pc from both tiers. The core itself implements no
// self-modifying-code coherence beyond honouring an explicit guest fence
// request (§1 Non-goals); this is the hook that request lands on.
func (c *Cache) Invalidate(pc uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.overflow, pc)

	slot := &c.hot[tag(pc)]
	if slot.tag == pc {
		*slot = hotSlot{}
	}

	tlog.Printw("cache: invalidated block", "pc", tlog.FormatNext("%#x"), pc, "from", loc.Caller(1))
}

func (c *Cache) touch(e *entry) {
	c.clock++
	e.seq = c.clock
}

func (c *Cache) promote(pc uint64, code []byte) {
	slot := &c.hot[tag(pc)]
	slot.tag = pc
	slot.code = code
}

// evictLocked drops the overflow entry with the oldest access sequence.
// Heap entries superseded by a later Insert of the same pc are skipped:
// the heap only needs to be an eviction hint, not a second source of
// truth kept in lockstep with the map.
func (c *Cache) evictLocked() {
	for c.victims.Len() > 0 {
		e := c.victims.Pop()

		current, ok := c.overflow[e.pc]
		if !ok || current != e {
			continue
		}

		delete(c.overflow, e.pc)

		slot := &c.hot[tag(e.pc)]
		if slot.tag == e.pc {
			*slot = hotSlot{}
		}

		tlog.Printw("cache: evicted block", "pc", tlog.FormatNext("%#x"), e.pc, "overflow_size", len(c.overflow))

		return
	}
}
