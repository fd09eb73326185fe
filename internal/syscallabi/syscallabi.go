// Package syscallabi defines the syscall numbers loaded programs invoke
// (spec §6) and a dispatch table type the kernel context registers
// handlers into.
package syscallabi

const (
	SysExit  uint32 = 0
	SysYield uint32 = 1
	SysSleep uint32 = 2
	SysTime  uint32 = 3

	SysMalloc  uint32 = 10
	SysFree    uint32 = 11
	SysRealloc uint32 = 12

	SysOpen  uint32 = 20
	SysClose uint32 = 21
	SysRead  uint32 = 22
	SysWrite uint32 = 23
	SysSeek  uint32 = 24

	SysPutchar uint32 = 30
	SysGetchar uint32 = 31
	SysPuts    uint32 = 32

	SysGpioInit  uint32 = 40
	SysGpioDir   uint32 = 41
	SysGpioPut   uint32 = 42
	SysGpioGet   uint32 = 43
	SysGpioPulls uint32 = 44

	SysPwmInit     uint32 = 50
	SysPwmSetWrap  uint32 = 51
	SysPwmSetLevel uint32 = 52
	SysPwmEnable   uint32 = 53

	SysAdcInit   uint32 = 60
	SysAdcSelect uint32 = 61
	SysAdcRead   uint32 = 62
	SysAdcTemp   uint32 = 63

	SysSpiInit     uint32 = 70
	SysSpiWrite    uint32 = 71
	SysSpiRead     uint32 = 72
	SysSpiTransfer uint32 = 73

	SysI2cInit  uint32 = 80
	SysI2cWrite uint32 = 81
	SysI2cRead  uint32 = 82
)

// NOSYS is the return value for unrecognized syscall numbers.
const NOSYS int32 = -7

// Args are the up-to-four register arguments a syscall receives in
// r0...r3.
type Args [4]uint32

// Handler services one syscall number for a given calling task id,
// returning the value that belongs in r0.
type Handler func(taskID uint16, args Args) int32

// Table is a syscall-number-indexed dispatch table.
type Table struct {
	handlers map[uint32]Handler
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{handlers: make(map[uint32]Handler)}
}

// Register installs handler for num, replacing any previous registration.
func (t *Table) Register(num uint32, handler Handler) {
	t.handlers[num] = handler
}

// Dispatch invokes the handler registered for num, or returns NOSYS.
func (t *Table) Dispatch(num uint32, taskID uint16, args Args) int32 {
	h, ok := t.handlers[num]
	if !ok {
		return NOSYS
	}
	return h(taskID, args)
}

// Stub registers a handler that always returns NOSYS, used for syscall
// families the core reserves numbers for but does not implement, since
// peripheral access is an external collaborator (spec §1).
func (t *Table) Stub(num uint32) {
	t.Register(num, func(uint16, Args) int32 { return NOSYS })
}
