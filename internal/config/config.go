// Package config centralizes the environment-driven defaults mimicc reads
// at startup, in the same spirit as the teacher compiler's own
// environment-configured build flags.
package config

import (
	"github.com/xyproto/env/v2"
)

// Arch identifies the instruction set a MIMI targets.
type Arch uint8

const (
	ArchCortexM0Plus Arch = 0
	ArchCortexM33    Arch = 1
	ArchRiscV        Arch = 2
)

func (a Arch) String() string {
	switch a {
	case ArchCortexM0Plus:
		return "cortex-m0+"
	case ArchCortexM33:
		return "cortex-m33"
	case ArchRiscV:
		return "riscv"
	default:
		return "unknown"
	}
}

// ParseArch matches spec.md's open question about MIMI_ARCH_THUMB: this
// repository picks ArchCortexM0Plus as the canonical value 0, documented
// here rather than left ambiguous (see DESIGN.md).
func ParseArch(s string) (Arch, bool) {
	switch s {
	case "cortex-m0+", "m0+", "m0":
		return ArchCortexM0Plus, true
	case "cortex-m33", "m33":
		return ArchCortexM33, true
	case "riscv", "riscv32":
		return ArchRiscV, true
	default:
		return 0, false
	}
}

// Config holds the defaults the allocator, loader, and CLI consult when the
// caller does not override them explicitly.
type Config struct {
	KernelArenaSize uint32
	UserArenaSize   uint32
	KernelPoolCap   int
	UserPoolCap     int
	TaskTableCap    int
	DefaultStack    uint32
	DefaultHeap     uint32
	TargetArch      Arch
	Verbose         bool
}

// Load builds a Config from environment variables, falling back to defaults
// sized for the 256-520 KiB targets spec.md §1 describes.
func Load() *Config {
	archStr := env.Str("MIMICC_ARCH", "cortex-m0+")
	arch, ok := ParseArch(archStr)
	if !ok {
		arch = ArchCortexM0Plus
	}
	return &Config{
		KernelArenaSize: uint32(env.Int("MIMICC_ARENA_KERNEL", 64*1024)),
		UserArenaSize:   uint32(env.Int("MIMICC_ARENA_USER", 192*1024)),
		KernelPoolCap:   env.Int("MIMICC_POOL_CAP_KERNEL", 256),
		UserPoolCap:     env.Int("MIMICC_POOL_CAP_USER", 256),
		TaskTableCap:    env.Int("MIMICC_TASK_CAP", 16),
		DefaultStack:    uint32(env.Int("MIMICC_DEFAULT_STACK", 2048)),
		DefaultHeap:     uint32(env.Int("MIMICC_DEFAULT_HEAP", 4096)),
		TargetArch:      arch,
		Verbose:         env.Bool("MIMICC_VERBOSE"),
	}
}

// Default returns a Config populated entirely with built-in defaults,
// ignoring the environment. Useful for tests.
func Default() *Config {
	return &Config{
		KernelArenaSize: 64 * 1024,
		UserArenaSize:   192 * 1024,
		KernelPoolCap:   256,
		UserPoolCap:     256,
		TaskTableCap:    16,
		DefaultStack:    2048,
		DefaultHeap:     4096,
		TargetArch:      ArchCortexM0Plus,
	}
}
