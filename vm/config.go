package vm

import (
	"io"
	"os"

	"github.com/tliron/commonlog"
)

// Config sizes and wires one machine. The zero value of any field falls
// back to the matching default, so partial literals are fine.
type Config struct {
	// StackSize is the operand stack depth in cells.
	StackSize int
	// MemorySize is the data memory size in cells.
	MemorySize int
	// CallDepth bounds the call stack.
	CallDepth int
	// StringCapacity bounds live heap strings; a full string heap
	// triggers collection before faulting.
	StringCapacity int
	// MaxInstructions bounds total executed instructions.
	MaxInstructions uint64
	// StuckLimit faults a program counter that stops advancing.
	StuckLimit int

	// LocalBase is where level-0 variable addresses land in memory.
	LocalBase uint64
	// LevelBase and LevelStride place enclosing-level addresses:
	// level n lives at LevelBase + (n-1)*LevelStride.
	LevelBase   uint64
	LevelStride uint64
	// HeapBase is the first heap address. Values below it passed to
	// string operations are string-table ids.
	HeapBase uint64

	// Debug keeps per-step bookkeeping that DumpState reports.
	Debug bool
	// Trace logs every instruction before it executes.
	Trace bool

	Output io.Writer
	Input  io.Reader
	Log    commonlog.Logger
}

// DefaultConfig returns the standard machine shape.
func DefaultConfig() Config {
	return Config{
		StackSize:       4096,
		MemorySize:      65536,
		CallDepth:       50,
		StringCapacity:  1024,
		MaxInstructions: 10_000_000,
		StuckLimit:      128,
		LocalBase:       1000,
		LevelBase:       2000,
		LevelStride:     1000,
		HeapBase:        10000,
		Output:          os.Stdout,
		Input:           os.Stdin,
		Log:             commonlog.GetLogger("arx.vm"),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.StackSize <= 0 {
		c.StackSize = def.StackSize
	}
	if c.MemorySize <= 0 {
		c.MemorySize = def.MemorySize
	}
	if c.CallDepth <= 0 {
		c.CallDepth = def.CallDepth
	}
	if c.StringCapacity <= 0 {
		c.StringCapacity = def.StringCapacity
	}
	if c.MaxInstructions == 0 {
		c.MaxInstructions = def.MaxInstructions
	}
	if c.StuckLimit <= 0 {
		c.StuckLimit = def.StuckLimit
	}
	if c.LocalBase == 0 {
		c.LocalBase = def.LocalBase
	}
	if c.LevelBase == 0 {
		c.LevelBase = def.LevelBase
	}
	if c.LevelStride == 0 {
		c.LevelStride = def.LevelStride
	}
	if c.HeapBase == 0 {
		c.HeapBase = def.HeapBase
	}
	if c.Output == nil {
		c.Output = def.Output
	}
	if c.Input == nil {
		c.Input = def.Input
	}
	if c.Log == nil {
		c.Log = commonlog.GetLogger("arx.vm")
	}
	return c
}
