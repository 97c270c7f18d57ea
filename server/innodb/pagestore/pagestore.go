// Package pagestore names the buffer-pool contract the rest of the core
// consumes. The buffer pool itself, page compression, encryption, and
// physical file layout are out of scope (spec.md §1); this package defines
// only the interface shape the collaborator exposes, plus a minimal
// in-memory reference implementation so higher layers can be exercised and
// tested without a real buffer pool.
package pagestore

import (
	"sync"

	"github.com/ixrow/storage-core/server/innodb/latch"
)

// LatchMode selects how Pool.Get pins and latches the returned frame.
type LatchMode int

const (
	// ModeNoLatch returns a guard with no latch held (used for
	// allocation-status probes).
	ModeNoLatch LatchMode = iota
	ModeShared
	ModeExclusive
)

// PageID addresses a frame by (space, page-no) rather than a raw pointer,
// per spec §9's re-architecture guidance.
type PageID struct {
	SpaceID uint32
	PageNo  uint32
}

// Frame is the mutable byte buffer backing one page. Layout within Data is
// owned entirely by the record codec / page layer above this package.
type Frame struct {
	ID    PageID
	Data  []byte
	latch *latch.Latch
}

// Guard is an owned pin+latch handle returned by Pool.Get. The caller must
// call Release exactly once; Release both unlatches and unpins the frame.
// A page split or reorganize that produces a new frame returns a new Guard
// rather than mutating the caller's existing one.
type Guard struct {
	pool  *MemPool
	frame *Frame
	mode  LatchMode
}

// Frame exposes the pinned buffer for reading or writing, depending on the
// mode the guard was acquired with.
func (g *Guard) Frame() *Frame { return g.frame }

// Release unlatches and unpins the frame. Safe to call once; a second call
// is a no-op.
func (g *Guard) Release() {
	if g == nil || g.frame == nil {
		return
	}
	switch g.mode {
	case ModeShared:
		g.frame.latch.RUnlock()
	case ModeExclusive:
		g.frame.latch.Unlock()
	}
	g.pool.unpin(g.frame.ID)
	g.frame = nil
}

// Pool is the buffer-pool contract every higher layer depends on.
type Pool interface {
	// Get pins and latches the frame for (spaceID, pageNo), allocating a
	// new zero frame of size pageSize if it does not yet exist.
	Get(spaceID, pageNo uint32, mode LatchMode) (*Guard, error)
	// PageSize reports the configured page size in bytes.
	PageSize() int
}

// MemPool is a minimal in-memory Pool: a map of frames each with their own
// Latch, and a reference count used only for diagnostics (eviction is not
// implemented — out of scope, the physical buffer pool owns that policy).
type MemPool struct {
	mu       sync.Mutex
	frames   map[PageID]*entry
	pageSize int
}

type entry struct {
	frame *Frame
	pins  int
}

// NewMemPool creates an in-memory reference Pool with the given page size.
func NewMemPool(pageSize int) *MemPool {
	return &MemPool{frames: make(map[PageID]*entry), pageSize: pageSize}
}

func (p *MemPool) PageSize() int { return p.pageSize }

// Get implements Pool.
func (p *MemPool) Get(spaceID, pageNo uint32, mode LatchMode) (*Guard, error) {
	id := PageID{SpaceID: spaceID, PageNo: pageNo}

	p.mu.Lock()
	e, ok := p.frames[id]
	if !ok {
		e = &entry{frame: &Frame{ID: id, Data: make([]byte, p.pageSize), latch: latch.NewLatch()}}
		p.frames[id] = e
	}
	e.pins++
	p.mu.Unlock()

	switch mode {
	case ModeShared:
		e.frame.latch.RLock()
	case ModeExclusive:
		e.frame.latch.Lock()
	}

	return &Guard{pool: p, frame: e.frame, mode: mode}, nil
}

func (p *MemPool) unpin(id PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.frames[id]; ok {
		e.pins--
	}
}

// PinCount reports the current pin count for a page, for tests/diagnostics.
func (p *MemPool) PinCount(id PageID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.frames[id]; ok {
		return e.pins
	}
	return 0
}
