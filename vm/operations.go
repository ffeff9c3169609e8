package vm

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/arx-lang/arx/arxmod"
	"github.com/arx-lang/arx/bytecode"
)

// operation dispatches one OPR instruction. Arithmetic wraps on u64
// cells; ordered comparisons treat cells as signed.
func (m *VM) operation(op bytecode.Operation) {
	switch op {
	case bytecode.OprRet:
		m.opReturn()

	// Arithmetic
	case bytecode.OprAdd:
		if b, a, ok := m.pop2(); ok {
			m.push(a + b)
		}
	case bytecode.OprSub:
		if b, a, ok := m.pop2(); ok {
			m.push(a - b)
		}
	case bytecode.OprMul:
		if b, a, ok := m.pop2(); ok {
			m.push(a * b)
		}
	case bytecode.OprDiv:
		if b, a, ok := m.pop2(); ok {
			if b == 0 {
				m.faultf(FaultDivisionByZero, "divide %d by zero", int64(a))
				return
			}
			m.push(a / b)
		}
	case bytecode.OprMod:
		if b, a, ok := m.pop2(); ok {
			if b == 0 {
				m.faultf(FaultDivisionByZero, "modulo %d by zero", int64(a))
				return
			}
			m.push(a % b)
		}
	case bytecode.OprPow:
		if b, a, ok := m.pop2(); ok {
			m.push(ipow(a, b))
		}
	case bytecode.OprNeg:
		if a, ok := m.pop(); ok {
			m.push(-a)
		}
	case bytecode.OprOdd:
		if a, ok := m.pop(); ok {
			m.push(a & 1)
		}

	// Comparison and logic
	case bytecode.OprEq:
		if b, a, ok := m.pop2(); ok {
			m.push(boolCell(a == b))
		}
	case bytecode.OprNeq:
		if b, a, ok := m.pop2(); ok {
			m.push(boolCell(a != b))
		}
	case bytecode.OprLess:
		if b, a, ok := m.pop2(); ok {
			m.push(boolCell(int64(a) < int64(b)))
		}
	case bytecode.OprLeq:
		if b, a, ok := m.pop2(); ok {
			m.push(boolCell(int64(a) <= int64(b)))
		}
	case bytecode.OprGreater:
		if b, a, ok := m.pop2(); ok {
			m.push(boolCell(int64(a) > int64(b)))
		}
	case bytecode.OprGeq:
		if b, a, ok := m.pop2(); ok {
			m.push(boolCell(int64(a) >= int64(b)))
		}
	case bytecode.OprAnd:
		if b, a, ok := m.pop2(); ok {
			m.push(boolCell(a != 0 && b != 0))
		}
	case bytecode.OprOr:
		if b, a, ok := m.pop2(); ok {
			m.push(boolCell(a != 0 || b != 0))
		}
	case bytecode.OprNot:
		if a, ok := m.pop(); ok {
			m.push(boolCell(a == 0))
		}

	// Input and output
	case bytecode.OprOutChar:
		if a, ok := m.pop(); ok {
			fmt.Fprintf(m.out, "%c", rune(uint32(a)))
		}
	case bytecode.OprOutInt:
		if a, ok := m.pop(); ok {
			fmt.Fprintf(m.out, "%d", int64(a))
		}
	case bytecode.OprOutString:
		if ref, ok := m.pop(); ok {
			if s, ok := m.resolveString(ref); ok {
				io.WriteString(m.out, s)
			}
		}
	case bytecode.OprWriteLn:
		io.WriteString(m.out, "\n")
	case bytecode.OprInChar:
		m.readChar()
	case bytecode.OprInInt:
		m.readInt()

	// Strings
	case bytecode.OprStrCreate:
		m.opStrCreate()
	case bytecode.OprStrConcat:
		if b, a, ok := m.pop2(); ok {
			sa, ok := m.resolveString(a)
			if !ok {
				return
			}
			sb, ok := m.resolveString(b)
			if !ok {
				return
			}
			if addr, ok := m.allocString(sa + sb); ok {
				m.push(addr)
			}
		}
	case bytecode.OprStrLen:
		if ref, ok := m.pop(); ok {
			if s, ok := m.resolveString(ref); ok {
				m.push(uint64(len(s)))
			}
		}
	case bytecode.OprStrEq:
		if b, a, ok := m.pop2(); ok {
			sa, ok := m.resolveString(a)
			if !ok {
				return
			}
			sb, ok := m.resolveString(b)
			if !ok {
				return
			}
			m.push(boolCell(sa == sb))
		}
	case bytecode.OprStrCmp:
		if b, a, ok := m.pop2(); ok {
			sa, ok := m.resolveString(a)
			if !ok {
				return
			}
			sb, ok := m.resolveString(b)
			if !ok {
				return
			}
			m.push(uint64(int64(strings.Compare(sa, sb))))
		}
	case bytecode.OprIntToStr:
		if a, ok := m.pop(); ok {
			if addr, ok := m.allocString(strconv.FormatInt(int64(a), 10)); ok {
				m.push(addr)
			}
		}
	case bytecode.OprStrToInt:
		if ref, ok := m.pop(); ok {
			if s, ok := m.resolveString(ref); ok {
				v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
				if err != nil {
					v = 0
				}
				m.push(uint64(v))
			}
		}

	// Objects
	case bytecode.OprObjNew:
		m.opObjNew()
	case bytecode.OprObjCallMethod:
		m.opCallMethod()

	default:
		m.faultf(FaultBadOperation, "operation %#x", uint64(op))
	}
}

func boolCell(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// ipow raises a to the b-th power with wrapping multiplication.
func ipow(a, b uint64) uint64 {
	var result uint64 = 1
	for b > 0 {
		if b&1 == 1 {
			result *= a
		}
		a *= a
		b >>= 1
	}
	return result
}

// ---------------------------------------------------------------------------
// Calls and returns
// ---------------------------------------------------------------------------

// opReturn pops the current frame. Frames from dispatched calls keep
// the top value across the return when the manifest says the method
// returns one; plain CAL frames never do.
func (m *VM) opReturn() {
	if len(m.frames) == 0 {
		m.faultf(FaultCallUnderflow, "return with no active call")
		return
	}
	f := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]

	if f.method != nil && f.method.entry.ReturnType != arxmod.TypeVoid {
		v, ok := m.pop()
		if !ok {
			return
		}
		m.top = f.savedTop
		m.push(v)
	} else {
		m.top = f.savedTop
	}
	m.pc = f.returnAddr
}

// opCallMethod dispatches OBJ_CALL_METHOD: the stack carries the
// arguments, then the receiver, then the (linked) method offset.
func (m *VM) opCallMethod() {
	offset, ok := m.pop()
	if !ok {
		return
	}
	receiver, ok := m.pop()
	if !ok {
		return
	}

	mi, ok := m.classes.methodAtOffset(offset)
	if !ok {
		m.faultf(FaultBadMethod, "no method starts at offset %d", offset)
		return
	}
	if len(m.frames) >= m.cfg.CallDepth {
		m.faultf(FaultCallOverflow, "call depth %d exceeded calling %s.%s",
			m.cfg.CallDepth, mi.owner.name(), mi.entry.Name)
		return
	}
	params := int(mi.entry.ParamCount)
	if m.top < params {
		m.faultf(FaultStackUnderflow, "%s.%s needs %d argument(s), stack has %d",
			mi.owner.name(), mi.entry.Name, params, m.top)
		return
	}

	m.frames = append(m.frames, frame{
		returnAddr: m.pc,
		savedTop:   m.top - params,
		receiver:   receiver,
		method:     mi,
	})
	m.pc = offset
}

func (m *VM) opObjNew() {
	id, ok := m.pop()
	if !ok {
		return
	}
	cls, found := m.classes.byID[uint32(id)]
	if !found {
		m.faultf(FaultBadClass, "no class with id %d", id)
		return
	}
	if addr, ok := m.allocInstance(cls); ok {
		m.push(addr)
	}
}

// opStrCreate materializes a table literal on the heap. A value that is
// already a heap string passes through unchanged.
func (m *VM) opStrCreate() {
	ref, ok := m.pop()
	if !ok {
		return
	}
	if ref >= m.cfg.HeapBase {
		if obj, ok := m.arena.get(ref); ok && obj.kind == kindString {
			m.push(ref)
			return
		}
		m.faultf(FaultBadString, "no string at heap address %d", ref)
		return
	}
	s, ok := m.resolveString(ref)
	if !ok {
		return
	}
	if addr, ok := m.allocString(s); ok {
		m.push(addr)
	}
}

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

// readChar pushes the next input byte, or zero at end of input.
func (m *VM) readChar() {
	b, err := m.in.ReadByte()
	if err != nil {
		m.push(0)
		return
	}
	m.push(uint64(b))
}

// readInt scans the next whitespace-delimited token and pushes its
// integer value, or zero when the token does not parse.
func (m *VM) readInt() {
	tok := m.readToken()
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		m.push(0)
		return
	}
	m.push(uint64(v))
}

func (m *VM) readToken() string {
	var sb strings.Builder
	for {
		b, err := m.in.ReadByte()
		if err != nil {
			return sb.String()
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			if sb.Len() > 0 {
				return sb.String()
			}
			continue
		}
		sb.WriteByte(b)
	}
}
