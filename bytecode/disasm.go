package bytecode

import (
	"fmt"
	"strings"
)

// Annotations supplies optional context for richer disassembly listings.
// All fields may be left zero.
type Annotations struct {
	Name     string            // listing header
	Strings  []string          // string table, annotates string-id pushes
	MethodAt map[uint64]string // instruction index -> "Class.Method" region headers
}

// Disassemble returns a human-readable listing of the program, one
// instruction per line with decimal instruction indices.
func Disassemble(prog []Instruction) string {
	return DisassembleAnnotated(prog, Annotations{})
}

// DisassembleAnnotated returns a listing with region headers and operand
// annotations drawn from ann.
func DisassembleAnnotated(prog []Instruction, ann Annotations) string {
	var sb strings.Builder

	if ann.Name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", ann.Name))
	}
	sb.WriteString(fmt.Sprintf("; %d instructions\n", len(prog)))

	for i := range prog {
		if name, ok := ann.MethodAt[uint64(i)]; ok {
			sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
		}
		sb.WriteString(fmt.Sprintf("%04d  %s\n", i, formatInstruction(prog, i, ann)))
	}

	return sb.String()
}

// DisassembleToLines returns the instruction lines without headers.
func DisassembleToLines(prog []Instruction) []string {
	lines := make([]string, len(prog))
	for i := range prog {
		lines[i] = fmt.Sprintf("%04d  %s", i, formatInstruction(prog, i, Annotations{}))
	}
	return lines
}

// formatInstruction renders prog[i] with any applicable trailing comment.
func formatInstruction(prog []Instruction, i int, ann Annotations) string {
	in := prog[i]

	switch {
	case in.Op == OpOpr:
		return fmt.Sprintf("%-4s %d %s", in.Op, in.Level, Operation(in.Operand))

	case in.Op == OpLit && in.Operand == CallPlaceholder && isCallSite(prog, i):
		return fmt.Sprintf("%-4s %d %d ; unresolved call site", in.Op, in.Level, in.Operand)

	case in.Op == OpLit && pushesStringID(prog, i) && in.Operand < uint64(len(ann.Strings)):
		s := ann.Strings[in.Operand]
		if len(s) > 20 {
			s = s[:17] + "..."
		}
		s = strings.ReplaceAll(s, "\n", "\\n")
		return fmt.Sprintf("%-4s %d %d ; %q", in.Op, in.Level, in.Operand, s)

	case in.Op.IsJump():
		if name, ok := ann.MethodAt[in.Operand]; ok {
			return fmt.Sprintf("%-4s %d %d ; -> %s", in.Op, in.Level, in.Operand, name)
		}
		return fmt.Sprintf("%-4s %d %d", in.Op, in.Level, in.Operand)

	default:
		return fmt.Sprintf("%-4s %d %d", in.Op, in.Level, in.Operand)
	}
}

// isCallSite reports whether prog[i] is the LIT of a LIT+OPR
// OBJ_CALL_METHOD pair.
func isCallSite(prog []Instruction, i int) bool {
	if i+1 >= len(prog) {
		return false
	}
	next := prog[i+1]
	return next.Op == OpOpr && Operation(next.Operand) == OprObjCallMethod
}

// pushesStringID reports whether prog[i] feeds a string-table id into the
// following instruction (STR_CREATE or the legacy OUTSTRING path).
func pushesStringID(prog []Instruction, i int) bool {
	if i+1 >= len(prog) {
		return false
	}
	next := prog[i+1]
	if next.Op != OpOpr {
		return false
	}
	op := Operation(next.Operand)
	return op == OprStrCreate || op == OprOutString
}
