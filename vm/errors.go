package vm

import (
	"errors"
	"fmt"
)

// ErrHalted is returned by Step once the machine has stopped cleanly.
var ErrHalted = errors.New("vm: halted")

// Load-time errors. Faults cover everything that goes wrong after
// loading succeeds.
var (
	ErrClassCollision  = errors.New("vm: class id collision")
	ErrMethodCollision = errors.New("vm: method offset collision")
	ErrBadHierarchy    = errors.New("vm: broken class hierarchy")
)

// Fault classifies a runtime failure. A faulted machine stays
// inspectable but refuses further steps.
type Fault int

const (
	FaultNone Fault = iota
	FaultStackOverflow
	FaultStackUnderflow
	FaultCallOverflow
	FaultCallUnderflow
	FaultDivisionByZero
	FaultBadOpcode
	FaultBadOperation
	FaultPCRange
	FaultMemoryRange
	FaultBadString
	FaultBadClass
	FaultBadMethod
)

var faultNames = map[Fault]string{
	FaultNone:           "none",
	FaultStackOverflow:  "stack overflow",
	FaultStackUnderflow: "stack underflow",
	FaultCallOverflow:   "call stack overflow",
	FaultCallUnderflow:  "call stack underflow",
	FaultDivisionByZero: "division by zero",
	FaultBadOpcode:      "illegal opcode",
	FaultBadOperation:   "illegal operation",
	FaultPCRange:        "program counter out of range",
	FaultMemoryRange:    "memory access out of range",
	FaultBadString:      "bad string reference",
	FaultBadClass:       "bad class reference",
	FaultBadMethod:      "bad method reference",
}

func (f Fault) String() string {
	if name, ok := faultNames[f]; ok {
		return name
	}
	return fmt.Sprintf("fault(%d)", int(f))
}

// FaultError carries the fault class plus where it happened. Line is
// zero when the module has no debug info.
type FaultError struct {
	Fault Fault
	PC    uint64
	Line  uint32
	Msg   string
}

func (e *FaultError) Error() string {
	loc := fmt.Sprintf("at %04d", e.PC)
	if e.Line > 0 {
		loc = fmt.Sprintf("at %04d (line %d)", e.PC, e.Line)
	}
	if e.Msg == "" {
		return fmt.Sprintf("vm: %s %s", e.Fault, loc)
	}
	return fmt.Sprintf("vm: %s %s: %s", e.Fault, loc, e.Msg)
}
