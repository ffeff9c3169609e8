package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// InstructionSize is the fixed wire size of one instruction: one byte
// holding opcode (high nibble) and level (low nibble), followed by a
// little-endian uint64 operand.
const InstructionSize = 9

// MaxLevel is the largest scope depth the level nibble can carry.
const MaxLevel = 0xF

var (
	// ErrTruncatedCode indicates a code payload whose size is not a
	// multiple of InstructionSize.
	ErrTruncatedCode = errors.New("bytecode: truncated code payload")

	// ErrLevelRange indicates a level outside 0..MaxLevel.
	ErrLevelRange = errors.New("bytecode: level out of range")
)

// Instruction is one decoded machine instruction.
type Instruction struct {
	Op      Opcode
	Level   uint8
	Operand uint64
}

// New builds an instruction. Level must fit the 4-bit field; values
// above MaxLevel are a programming error and panic.
func New(op Opcode, level uint8, operand uint64) Instruction {
	if level > MaxLevel {
		panic(fmt.Sprintf("bytecode: level %d exceeds %d", level, MaxLevel))
	}
	return Instruction{Op: op, Level: level, Operand: operand}
}

// String renders the instruction in assembler syntax, with OPR operands
// shown by operation name.
func (in Instruction) String() string {
	if in.Op == OpOpr {
		return fmt.Sprintf("%s %d %s", in.Op, in.Level, Operation(in.Operand))
	}
	return fmt.Sprintf("%s %d %d", in.Op, in.Level, in.Operand)
}

// Put encodes the instruction into buf, which must hold at least
// InstructionSize bytes.
func (in Instruction) Put(buf []byte) {
	buf[0] = uint8(in.Op)<<4 | in.Level&0xF
	binary.LittleEndian.PutUint64(buf[1:9], in.Operand)
}

// Decode decodes one instruction from the front of buf. Unknown opcode
// nibbles are preserved; they fault at dispatch, not here.
func Decode(buf []byte) (Instruction, error) {
	if len(buf) < InstructionSize {
		return Instruction{}, fmt.Errorf("%w: need %d bytes, got %d", ErrTruncatedCode, InstructionSize, len(buf))
	}
	return Instruction{
		Op:      Opcode(buf[0] >> 4),
		Level:   buf[0] & 0xF,
		Operand: binary.LittleEndian.Uint64(buf[1:9]),
	}, nil
}

// EncodeProgram serializes a program as a flat sequence of fixed-size
// records.
func EncodeProgram(prog []Instruction) []byte {
	out := make([]byte, len(prog)*InstructionSize)
	for i, in := range prog {
		in.Put(out[i*InstructionSize:])
	}
	return out
}

// DecodeProgram deserializes a flat code payload. The payload size must
// be an exact multiple of InstructionSize.
func DecodeProgram(data []byte) ([]Instruction, error) {
	if len(data)%InstructionSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrTruncatedCode, len(data), InstructionSize)
	}
	prog := make([]Instruction, len(data)/InstructionSize)
	for i := range prog {
		in, err := Decode(data[i*InstructionSize:])
		if err != nil {
			return nil, err
		}
		prog[i] = in
	}
	return prog, nil
}
