// Package task implements the fixed-capacity task table and cooperative
// priority scheduler from spec §4.B. Slot 0 is always the kernel/idle task.
package task

import (
	"sync"

	"github.com/xyproto/mimicc/internal/errs"
)

// State is a task's lifecycle state.
type State uint8

const (
	Free State = iota
	Ready
	Running
	Blocked
	Sleeping
	Zombie
)

// IdlePriority is the priority of the slot-0 kernel/idle task; it is
// always the scheduler's fallback pick.
const IdlePriority uint8 = 255

// Layout is the per-task memory layout record (spec §3), all offsets
// relative to Base.
type Layout struct {
	Base        uint32
	TotalSize   uint32
	TextStart   uint32
	TextSize    uint32
	RodataStart uint32
	RodataSize  uint32
	DataStart   uint32
	DataSize    uint32
	BssStart    uint32
	BssSize     uint32
	HeapStart   uint32
	HeapSize    uint32
	HeapUsed    uint32
	StackTop    uint32
	StackSize   uint32
}

// Regs is a saved register image, used if/when context switching between
// suspended tasks is implemented above the cooperative yield points.
type Regs struct {
	R [13]uint32 // r0-r12
	SP, LR, PC uint32
}

// TCB is a task control block.
type TCB struct {
	ID       uint16
	Name     [16]byte
	State    State
	Priority uint8
	Layout   Layout
	WakeTime uint64 // ms, valid only while State == Sleeping
	Saved    Regs
	Entry    uint32
}

// Table is the fixed-capacity task table.
type Table struct {
	mu    sync.Mutex
	tasks []TCB
}

// NewTable creates a Table with room for cap tasks; slot 0 is the
// kernel/idle task, initialized RUNNING with IdlePriority.
func NewTable(cap int) *Table {
	if cap < 1 {
		cap = 1
	}
	tasks := make([]TCB, cap)
	tasks[0] = TCB{ID: 0, State: Running, Priority: IdlePriority}
	return &Table{tasks: tasks}
}

// Alloc finds a FREE slot (never slot 0), transitions it to READY, and
// returns its id. Implements the FREE -> READY transition triggered by
// "task_alloc + loader success" (spec §4.B); callers perform the loader
// step themselves and roll back to FREE on failure via Release.
func (t *Table) Alloc(name string, priority uint8) (uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 1; i < len(t.tasks); i++ {
		if t.tasks[i].State == Free {
			t.tasks[i] = TCB{ID: uint16(i), State: Ready, Priority: priority}
			copy(t.tasks[i].Name[:], name)
			return uint16(i), nil
		}
	}
	return 0, errs.New(errs.NOMEM, "task.Alloc", "task table full")
}

// Release reverts a slot to FREE without running any reclamation; used to
// undo an Alloc whose loader step failed.
func (t *Table) Release(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(id) < len(t.tasks) {
		t.tasks[id] = TCB{ID: id, State: Free}
	}
}

// Get returns a copy of the TCB for id.
func (t *Table) Get(id uint16) (TCB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(id) >= len(t.tasks) {
		return TCB{}, errs.New(errs.INVAL, "task.Get", "no such task id")
	}
	return t.tasks[id], nil
}

// Mutate applies fn to the TCB for id under the table lock.
func (t *Table) Mutate(id uint16, fn func(*TCB)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(id) >= len(t.tasks) {
		return errs.New(errs.INVAL, "task.Mutate", "no such task id")
	}
	fn(&t.tasks[id])
	return nil
}

// Yield transitions id from RUNNING to READY.
func (t *Table) Yield(id uint16) error {
	return t.Mutate(id, func(tc *TCB) {
		if tc.State == Running {
			tc.State = Ready
		}
	})
}

// Sleep transitions id from RUNNING to SLEEPING with the given wake time.
// A sleep invoked by the kernel task (id 0) is a no-op, per spec §4.B.
func (t *Table) Sleep(id uint16, wakeTime uint64) error {
	if id == 0 {
		return nil
	}
	return t.Mutate(id, func(tc *TCB) {
		if tc.State == Running {
			tc.State = Sleeping
			tc.WakeTime = wakeTime
		}
	})
}

// Kill transitions id to ZOMBIE immediately (spec §5's "immediate
// transition"), then to FREE once reclaim has run. The caller is
// responsible for calling FreeAllOwnedBy on the user pool between the two
// steps; Kill itself only flips state, matching the allocator/task-table
// separation of concerns spec.md draws.
func (t *Table) Kill(id uint16) error {
	if id == 0 {
		return errs.New(errs.PERM, "task.Kill", "cannot kill the kernel task")
	}
	return t.Mutate(id, func(tc *TCB) {
		tc.State = Zombie
	})
}

// Reap transitions a ZOMBIE task to FREE, clearing its TCB. Call after the
// owning pool's FreeAllOwnedBy has run.
func (t *Table) Reap(id uint16) error {
	return t.Mutate(id, func(tc *TCB) {
		if tc.State == Zombie {
			*tc = TCB{ID: id, State: Free}
		}
	})
}

// Tick implements the three-step scheduler algorithm from spec §4.B under
// the table's lock, standing in for the "critical section" spec.md
// describes: (i) wake sleepers whose wake_time has arrived, (ii) pick the
// READY task with numerically smallest priority (tie-break smallest id;
// idle task is always the fallback), (iii) if the pick differs from
// current, demote current to READY and promote the pick to RUNNING.
// Returns the id of the task that should now be running.
func (t *Table) Tick(nowMs uint64, current uint16) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.tasks {
		tc := &t.tasks[i]
		if tc.State == Sleeping && tc.WakeTime <= nowMs {
			tc.State = Ready
		}
	}

	pick := uint16(0)
	bestPriority := t.tasks[0].Priority
	for i := 1; i < len(t.tasks); i++ {
		tc := &t.tasks[i]
		if tc.State != Ready {
			continue
		}
		if tc.Priority < bestPriority {
			pick = uint16(i)
			bestPriority = tc.Priority
		}
	}

	if pick != current {
		if int(current) < len(t.tasks) && t.tasks[current].State == Running {
			t.tasks[current].State = Ready
		}
		t.tasks[pick].State = Running
	}
	return pick
}

// Cap returns the table's fixed capacity.
func (t *Table) Cap() int { return len(t.tasks) }
