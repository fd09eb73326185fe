// Package alloc implements the dual-pool allocator from spec §4.A: a
// best-fit, split-on-alloc, coalesce-on-demand allocator over fixed-size
// arenas, with a fixed-capacity descriptor vector per pool and one mutex
// per pool (never held together, per spec §5).
package alloc

import (
	"sort"
	"sync"

	"github.com/xyproto/mimicc/internal/errs"
)

// Alignment every allocation is rounded up to.
const Alignment = 32

// SplitThreshold is the minimum remainder size that triggers splitting a
// chosen block on allocation.
const SplitThreshold = 64

// KernelOwner denotes a kernel-owned block (owner id 0).
const KernelOwner uint16 = 0

// Block is one allocator descriptor.
type Block struct {
	Addr   uint32
	Size   uint32
	Owner  uint16
	Free   bool
	Pinned bool
}

// Pool is a single best-fit arena with a fixed-capacity descriptor vector.
type Pool struct {
	mu        sync.Mutex
	base      uint32
	total     uint32
	cap       int
	blocks    []Block
	freeBytes uint32
}

// NewPool creates a pool spanning [base, base+size) with room for at most
// cap descriptors.
func NewPool(base, size uint32, cap int) *Pool {
	return &Pool{
		base:      base,
		total:     size,
		cap:       cap,
		blocks:    []Block{{Addr: base, Size: size, Owner: KernelOwner, Free: true}},
		freeBytes: size,
	}
}

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// Allocate reserves size bytes (rounded up to Alignment) for owner,
// choosing the smallest free block that fits, splitting the remainder when
// it is large enough. A split that finds no spare descriptor slot fails the
// allocation with NOMEM.
func (p *Pool) Allocate(size uint32, owner uint16) (uint32, error) {
	size = alignUp(size, Alignment)
	if size == 0 {
		size = Alignment
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	best := -1
	for i, b := range p.blocks {
		if !b.Free || b.Pinned || b.Size < size {
			continue
		}
		if best == -1 || b.Size < p.blocks[best].Size {
			best = i
		}
	}
	if best == -1 {
		return 0, errs.New(errs.NOMEM, "alloc.Allocate", "no block fits request")
	}

	chosen := p.blocks[best]
	remainder := chosen.Size - size
	if remainder >= SplitThreshold {
		if len(p.blocks) >= p.cap {
			return 0, errs.New(errs.NOMEM, "alloc.Allocate", "descriptor vector exhausted")
		}
		p.blocks[best].Size = size
		p.blocks = append(p.blocks, Block{
			Addr: chosen.Addr + size,
			Size: remainder,
			Free: true,
		})
	}
	p.blocks[best].Free = false
	p.blocks[best].Owner = owner
	p.freeBytes -= p.blocks[best].Size
	return p.blocks[best].Addr, nil
}

// Free releases the block at addr, marking it free without coalescing
// (coalescing is deferred, per spec §4.A).
func (p *Pool) Free(addr uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.blocks {
		b := &p.blocks[i]
		if b.Addr == addr && !b.Free {
			if b.Pinned {
				return errs.New(errs.PERM, "alloc.Free", "block is pinned")
			}
			b.Free = true
			p.freeBytes += b.Size
			return nil
		}
	}
	return errs.New(errs.INVAL, "alloc.Free", "no allocated block at that address")
}

// Coalesce sorts descriptors by address and merges adjacent free blocks.
func (p *Pool) Coalesce() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coalesceLocked()
}

func (p *Pool) coalesceLocked() {
	sort.Slice(p.blocks, func(i, j int) bool { return p.blocks[i].Addr < p.blocks[j].Addr })
	merged := p.blocks[:0]
	for _, b := range p.blocks {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.Free && b.Free && !last.Pinned && !b.Pinned && last.Addr+last.Size == b.Addr {
				last.Size += b.Size
				continue
			}
		}
		merged = append(merged, b)
	}
	p.blocks = merged
}

// FreeAllOwnedBy marks every non-free, non-pinned block owned by owner as
// free, then coalesces. Must be called on task termination (spec §4.A).
func (p *Pool) FreeAllOwnedBy(owner uint16) {
	p.mu.Lock()
	for i := range p.blocks {
		b := &p.blocks[i]
		if !b.Free && !b.Pinned && b.Owner == owner {
			b.Free = true
			p.freeBytes += b.Size
		}
	}
	p.coalesceLocked()
	p.mu.Unlock()
}

// SizeOf returns the size of the allocated block at addr, used by
// realloc's grow/shrink decision.
func (p *Pool) SizeOf(addr uint32) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.blocks {
		if b.Addr == addr && !b.Free {
			return b.Size, true
		}
	}
	return 0, false
}

// Pin marks the block at addr as pinned, so it is never selected by
// Allocate and never freed by Free/FreeAllOwnedBy.
func (p *Pool) Pin(addr uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.blocks {
		if p.blocks[i].Addr == addr {
			p.blocks[i].Pinned = true
			return nil
		}
	}
	return errs.New(errs.INVAL, "alloc.Pin", "no block at that address")
}

// FreeBytes returns the pool's free-byte counter.
func (p *Pool) FreeBytes() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freeBytes
}

// TotalSize returns the arena's total size.
func (p *Pool) TotalSize() uint32 { return p.total }

// Blocks returns a snapshot copy of the descriptor vector, for inspection
// and property tests.
func (p *Pool) Blocks() []Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Block, len(p.blocks))
	copy(out, p.blocks)
	return out
}

// LongestFree returns the size of the largest free block, 0 if none.
func (p *Pool) LongestFree() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var longest uint32
	for _, b := range p.blocks {
		if b.Free && b.Size > longest {
			longest = b.Size
		}
	}
	return longest
}

// Allocator owns the kernel and user pools. Holding both pools' mutexes
// simultaneously is forbidden (spec §5); every Allocator method below
// only ever touches one pool at a time.
type Allocator struct {
	Kernel *Pool
	User   *Pool
}

// New creates an Allocator with the given base addresses, sizes, and
// descriptor-vector capacities for the kernel and user pools.
func New(kernelBase, kernelSize uint32, kernelCap int, userBase, userSize uint32, userCap int) *Allocator {
	return &Allocator{
		Kernel: NewPool(kernelBase, kernelSize, kernelCap),
		User:   NewPool(userBase, userSize, userCap),
	}
}

// PoolName selects Kernel or User by name, for callers that carry a pool
// selector rather than a *Pool (e.g. the syscall dispatch table).
type PoolName uint8

const (
	PoolKernel PoolName = iota
	PoolUser
)

// Pool returns the named pool.
func (a *Allocator) Pool(name PoolName) *Pool {
	if name == PoolKernel {
		return a.Kernel
	}
	return a.User
}
