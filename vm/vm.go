// Package vm executes linked bytecode modules on a stack machine with
// flat data memory, a string heap, and manifest-driven method dispatch.
package vm

import (
	"bufio"
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/arx-lang/arx/arxmod"
	"github.com/arx-lang/arx/bytecode"
)

// ---------------------------------------------------------------------------
// Machine state
// ---------------------------------------------------------------------------

// State is the machine lifecycle: Ready until the first step, then
// Running until it halts cleanly or faults.
type State int

const (
	StateReady State = iota
	StateRunning
	StateHalted
	StateFaulted
)

var stateNames = map[State]string{
	StateReady:   "ready",
	StateRunning: "running",
	StateHalted:  "halted",
	StateFaulted: "faulted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// frame is one call record. method is nil for plain CAL frames, which
// return procedure-style; dispatched frames consult the manifest return
// type to decide whether a value survives the return.
type frame struct {
	returnAddr uint64
	savedTop   int
	level      uint8
	receiver   uint64
	method     *methodInfo
}

// VM is one loaded machine. It is not safe for concurrent use.
type VM struct {
	cfg Config

	appName string
	code    []bytecode.Instruction
	strTab  []string
	classes *classRegistry
	symbols []arxmod.Symbol
	debug   *arxmod.DebugInfo

	stack  []uint64
	top    int
	memory []uint64
	frames []frame
	arena  *objectArena

	pc    uint64
	curPC uint64
	state State
	fault *FaultError

	steps    uint64
	lastPC   uint64
	stuckRun int

	out io.Writer
	in  *bufio.Reader
	log commonlog.Logger
}

// State reports the machine lifecycle state.
func (m *VM) State() State { return m.state }

// PC reports the next instruction index.
func (m *VM) PC() uint64 { return m.pc }

// Steps reports how many instructions have executed.
func (m *VM) Steps() uint64 { return m.steps }

// Fault returns the fault that stopped the machine, or nil.
func (m *VM) Fault() *FaultError {
	return m.fault
}

// AppName reports the loaded module's application name.
func (m *VM) AppName() string { return m.appName }

// Stack returns a copy of the live operand stack, bottom first.
func (m *VM) Stack() []uint64 {
	out := make([]uint64, m.top)
	copy(out, m.stack[:m.top])
	return out
}

// CallDepth reports the number of active frames.
func (m *VM) CallDepth() int { return len(m.frames) }

// Global reads a module variable by symbol name.
func (m *VM) Global(name string) (uint64, bool) {
	for _, sym := range m.symbols {
		if sym.Name == name {
			addr := m.cfg.LocalBase + sym.Address
			if addr < uint64(len(m.memory)) {
				return m.memory[addr], true
			}
			return 0, false
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Run steps the machine until it halts or faults. A clean halt returns
// nil; a fault returns the FaultError.
func (m *VM) Run() error {
	for m.state == StateReady || m.state == StateRunning {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes one instruction. It returns ErrHalted once the machine
// has stopped cleanly and the fault after the machine faults. The
// instruction budget and the stuck-pc guard halt the machine rather
// than fault it.
func (m *VM) Step() error {
	switch m.state {
	case StateHalted:
		return ErrHalted
	case StateFaulted:
		return m.fault
	}
	m.state = StateRunning
	m.curPC = m.pc

	if m.steps >= m.cfg.MaxInstructions {
		m.log.Warningf("instruction budget of %d exhausted, halting", m.cfg.MaxInstructions)
		m.state = StateHalted
		return nil
	}
	if m.pc >= uint64(len(m.code)) {
		m.faultf(FaultPCRange, "pc %d outside code of %d instructions", m.pc, len(m.code))
		return m.fault
	}
	if m.pc == m.lastPC {
		m.stuckRun++
		if m.stuckRun >= m.cfg.StuckLimit {
			m.log.Warningf("pc stuck at %d for %d steps, halting", m.pc, m.stuckRun)
			m.state = StateHalted
			return nil
		}
	} else {
		m.lastPC = m.pc
		m.stuckRun = 0
	}

	in := m.code[m.pc]
	if m.cfg.Trace {
		m.log.Debugf("%06d  %s", m.pc, in)
	}
	m.pc++
	m.steps++
	m.execute(in)

	if m.state == StateFaulted {
		return m.fault
	}
	return nil
}

func (m *VM) execute(in bytecode.Instruction) {
	switch in.Op {
	case bytecode.OpLit:
		m.push(in.Operand)

	case bytecode.OpOpr:
		m.operation(bytecode.Operation(in.Operand))

	case bytecode.OpLod:
		if addr, ok := m.cellAddr(in.Level, in.Operand); ok {
			m.push(m.memory[addr])
		}

	case bytecode.OpSto:
		v, ok := m.pop()
		if !ok {
			return
		}
		if addr, ok := m.cellAddr(in.Level, in.Operand); ok {
			m.memory[addr] = v
		}

	case bytecode.OpCal:
		if len(m.frames) >= m.cfg.CallDepth {
			m.faultf(FaultCallOverflow, "call depth %d exceeded", m.cfg.CallDepth)
			return
		}
		m.frames = append(m.frames, frame{
			returnAddr: m.pc,
			savedTop:   m.top,
			level:      in.Level,
		})
		m.pc = in.Operand

	case bytecode.OpInt:
		m.adjustStack(int64(in.Operand))

	case bytecode.OpJmp:
		m.pc = in.Operand

	case bytecode.OpJpc:
		v, ok := m.pop()
		if ok && v == 0 {
			m.pc = in.Operand
		}

	case bytecode.OpLodx:
		index, ok := m.pop()
		if !ok {
			return
		}
		if addr, ok := m.cellAddr(in.Level, in.Operand+index); ok {
			m.push(m.memory[addr])
		}

	case bytecode.OpStox:
		v, ok := m.pop()
		if !ok {
			return
		}
		index, ok := m.pop()
		if !ok {
			return
		}
		if addr, ok := m.cellAddr(in.Level, in.Operand+index); ok {
			m.memory[addr] = v
		}

	case bytecode.OpHalt:
		m.state = StateHalted

	default:
		m.faultf(FaultBadOpcode, "opcode %#x", uint8(in.Op))
	}
}

// ---------------------------------------------------------------------------
// Cells and stack
// ---------------------------------------------------------------------------

// cellAddr maps a level-qualified address into data memory. Level 0 is
// the module's flat variable region; higher levels get their own bands.
func (m *VM) cellAddr(level uint8, addr uint64) (uint64, bool) {
	var base uint64
	if level == 0 {
		base = m.cfg.LocalBase
	} else {
		base = m.cfg.LevelBase + uint64(level-1)*m.cfg.LevelStride
	}
	a := base + addr
	if a >= uint64(len(m.memory)) {
		m.faultf(FaultMemoryRange, "address %d at level %d maps to %d, memory has %d cells",
			addr, level, a, len(m.memory))
		return 0, false
	}
	return a, true
}

// adjustStack grows or shrinks the operand stack by a signed delta,
// zeroing grown cells.
func (m *VM) adjustStack(delta int64) {
	nt := m.top + int(delta)
	if nt < 0 {
		m.faultf(FaultStackUnderflow, "stack adjust by %d below empty", delta)
		return
	}
	if nt > len(m.stack) {
		m.faultf(FaultStackOverflow, "stack adjust by %d past %d cells", delta, len(m.stack))
		return
	}
	for i := m.top; i < nt; i++ {
		m.stack[i] = 0
	}
	m.top = nt
}

func (m *VM) push(v uint64) {
	if m.top >= len(m.stack) {
		m.faultf(FaultStackOverflow, "stack full at %d cells", len(m.stack))
		return
	}
	m.stack[m.top] = v
	m.top++
}

func (m *VM) pop() (uint64, bool) {
	if m.top == 0 {
		m.faultf(FaultStackUnderflow, "pop on empty stack")
		return 0, false
	}
	m.top--
	return m.stack[m.top], true
}

// pop2 pops the top two cells, returning them top-first.
func (m *VM) pop2() (b, a uint64, ok bool) {
	b, ok = m.pop()
	if !ok {
		return 0, 0, false
	}
	a, ok = m.pop()
	if !ok {
		return 0, 0, false
	}
	return b, a, true
}

func (m *VM) faultf(f Fault, format string, args ...interface{}) {
	if m.state == StateFaulted {
		return
	}
	fe := &FaultError{
		Fault: f,
		PC:    m.curPC,
		Msg:   fmt.Sprintf(format, args...),
	}
	if m.debug != nil {
		fe.Line = m.debug.LineFor(m.curPC)
	}
	m.state = StateFaulted
	m.fault = fe
	m.log.Errorf("%s", fe.Error())
}
