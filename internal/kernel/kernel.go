// Package kernel wires the allocator, task table, filesystem, and syscall
// ABI into the single explicitly constructed context object spec.md's
// Design Notes ask for (§5): no package-level mutable globals, just one
// *Ctx threaded through the loader, the syscall trampoline, and
// cmd/mimicc.
package kernel

import (
	"io"
	"os"
	"time"

	"github.com/xyproto/mimicc/internal/alloc"
	"github.com/xyproto/mimicc/internal/config"
	"github.com/xyproto/mimicc/internal/errs"
	"github.com/xyproto/mimicc/internal/fsys"
	"github.com/xyproto/mimicc/internal/mimilog"
	"github.com/xyproto/mimicc/internal/syscallabi"
	"github.com/xyproto/mimicc/internal/task"
)

// Ctx is the kernel's aggregate state: a byte-addressable simulated
// memory (standing in for the microcontroller's flash+RAM, spec §1's
// 256-520 KiB class of target), the dual-pool allocator over it, the
// task table, the open-file-handle table, and the syscall dispatch
// table the loaded programs' SVC trampoline reaches through.
type Ctx struct {
	Config *config.Config
	Mem    []byte

	Alloc    *alloc.Allocator
	Tasks    *task.Table
	Files    *fsys.Table
	FS       fsys.FS
	Syscalls *syscallabi.Table
	Logger   *mimilog.Logger

	Stdin  io.Reader
	Stdout io.Writer

	openByTask map[uint16][]int32
}

// New builds a Ctx over filesystem, with pool sizes and defaults taken
// from cfg, and registers every syscall handler spec §6 names.
func New(cfg *config.Config, filesystem fsys.FS) *Ctx {
	mem := make([]byte, cfg.KernelArenaSize+cfg.UserArenaSize)
	c := &Ctx{
		Config:     cfg,
		Mem:        mem,
		Alloc:      alloc.New(0, cfg.KernelArenaSize, cfg.KernelPoolCap, cfg.KernelArenaSize, cfg.UserArenaSize, cfg.UserPoolCap),
		Tasks:      task.NewTable(cfg.TaskTableCap),
		Files:      fsys.NewTable(filesystem),
		FS:         filesystem,
		Syscalls:   syscallabi.NewTable(),
		Logger:     mimilog.Default(),
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		openByTask: map[uint16][]int32{},
	}
	c.registerSyscalls()
	return c
}

// NowMs returns the wall-clock time in milliseconds, the same unit
// task.Table.Sleep's wake_time field uses.
func NowMs() uint64 { return uint64(time.Now().UnixMilli()) }

// readCString reads a NUL-terminated string out of simulated memory
// starting at addr, the representation every syscall that takes a path
// or buffer pointer uses.
func (c *Ctx) readCString(addr uint32) string {
	end := addr
	for int(end) < len(c.Mem) && c.Mem[end] != 0 {
		end++
	}
	return string(c.Mem[addr:end])
}

func (c *Ctx) registerSyscalls() {
	s := c.Syscalls

	s.Register(syscallabi.SysMalloc, func(taskID uint16, a syscallabi.Args) int32 {
		addr, err := c.Alloc.User.Allocate(a[0], taskID)
		if err != nil {
			return int32(errs.NOMEM)
		}
		return int32(addr)
	})
	s.Register(syscallabi.SysFree, func(_ uint16, a syscallabi.Args) int32 {
		if err := c.Alloc.User.Free(a[0]); err != nil {
			return int32(errs.KindOf(err))
		}
		return int32(errs.OK)
	})
	s.Register(syscallabi.SysRealloc, func(taskID uint16, a syscallabi.Args) int32 {
		oldAddr, newSize := a[0], a[1]
		newAddr, err := c.Alloc.User.Allocate(newSize, taskID)
		if err != nil {
			return int32(errs.NOMEM)
		}
		if oldAddr != 0 {
			if oldSize, ok := c.Alloc.User.SizeOf(oldAddr); ok {
				n := oldSize
				if newSize < n {
					n = newSize
				}
				copy(c.Mem[newAddr:newAddr+n], c.Mem[oldAddr:oldAddr+n])
				_ = c.Alloc.User.Free(oldAddr)
			}
		}
		return int32(newAddr)
	})

	s.Register(syscallabi.SysExit, func(taskID uint16, a syscallabi.Args) int32 {
		c.Files.CloseAllOwnedBy(c.openByTask[taskID])
		delete(c.openByTask, taskID)
		c.Alloc.User.FreeAllOwnedBy(taskID)
		_ = c.Tasks.Kill(taskID)
		_ = c.Tasks.Reap(taskID)
		return int32(a[0])
	})
	s.Register(syscallabi.SysYield, func(taskID uint16, _ syscallabi.Args) int32 {
		_ = c.Tasks.Yield(taskID)
		return 0
	})
	s.Register(syscallabi.SysSleep, func(taskID uint16, a syscallabi.Args) int32 {
		_ = c.Tasks.Sleep(taskID, NowMs()+uint64(a[0]))
		return 0
	})
	s.Register(syscallabi.SysTime, func(_ uint16, _ syscallabi.Args) int32 {
		return int32(NowMs())
	})

	s.Register(syscallabi.SysOpen, func(taskID uint16, a syscallabi.Args) int32 {
		path := c.readCString(a[0])
		fd, err := c.Files.Open(path, fsys.Mode(a[1]))
		if err != nil {
			return int32(errs.KindOf(err))
		}
		c.openByTask[taskID] = append(c.openByTask[taskID], fd)
		return fd
	})
	s.Register(syscallabi.SysClose, func(_ uint16, a syscallabi.Args) int32 {
		if err := c.Files.Close(int32(a[0])); err != nil {
			return int32(errs.KindOf(err))
		}
		return int32(errs.OK)
	})
	s.Register(syscallabi.SysRead, func(_ uint16, a syscallabi.Args) int32 {
		fd, addr, n := int32(a[0]), a[1], a[2]
		if int(addr+n) > len(c.Mem) {
			return int32(errs.INVAL)
		}
		got, err := c.Files.Read(fd, c.Mem[addr:addr+n])
		if err != nil {
			return int32(errs.KindOf(err))
		}
		return int32(got)
	})
	s.Register(syscallabi.SysWrite, func(_ uint16, a syscallabi.Args) int32 {
		fd, addr, n := int32(a[0]), a[1], a[2]
		if int(addr+n) > len(c.Mem) {
			return int32(errs.INVAL)
		}
		put, err := c.Files.Write(fd, c.Mem[addr:addr+n])
		if err != nil {
			return int32(errs.KindOf(err))
		}
		return int32(put)
	})
	s.Register(syscallabi.SysSeek, func(_ uint16, a syscallabi.Args) int32 {
		pos, err := c.Files.Seek(int32(a[0]), int64(int32(a[1])), fsys.Whence(a[2]))
		if err != nil {
			return int32(errs.KindOf(err))
		}
		return int32(pos)
	})

	s.Register(syscallabi.SysPutchar, func(_ uint16, a syscallabi.Args) int32 {
		c.Stdout.Write([]byte{byte(a[0])})
		return int32(a[0])
	})
	s.Register(syscallabi.SysGetchar, func(_ uint16, _ syscallabi.Args) int32 {
		var b [1]byte
		if _, err := c.Stdin.Read(b[:]); err != nil {
			return -1
		}
		return int32(b[0])
	})
	s.Register(syscallabi.SysPuts, func(_ uint16, a syscallabi.Args) int32 {
		str := c.readCString(a[0])
		n, _ := c.Stdout.Write([]byte(str + "\n"))
		return int32(n)
	})

	for _, num := range []uint32{
		syscallabi.SysGpioInit, syscallabi.SysGpioDir, syscallabi.SysGpioPut,
		syscallabi.SysGpioGet, syscallabi.SysGpioPulls,
		syscallabi.SysPwmInit, syscallabi.SysPwmSetWrap, syscallabi.SysPwmSetLevel, syscallabi.SysPwmEnable,
		syscallabi.SysAdcInit, syscallabi.SysAdcSelect, syscallabi.SysAdcRead, syscallabi.SysAdcTemp,
		syscallabi.SysSpiInit, syscallabi.SysSpiWrite, syscallabi.SysSpiRead, syscallabi.SysSpiTransfer,
		syscallabi.SysI2cInit, syscallabi.SysI2cWrite, syscallabi.SysI2cRead,
	} {
		s.Stub(num)
	}
}
