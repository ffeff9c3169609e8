package bytecode

import "fmt"

// Opcode selects one of the machine's top-level instructions. It is a
// 4-bit field on the wire, packed into the high nibble of the first
// instruction byte.
type Opcode uint8

const (
	OpLit  Opcode = 0x0 // Push immediate operand
	OpOpr  Opcode = 0x1 // Execute Operation selected by operand
	OpLod  Opcode = 0x2 // Push memory[base(level)+operand]
	OpSto  Opcode = 0x3 // Pop into memory[base(level)+operand]
	OpCal  Opcode = 0x4 // Push call frame, jump to operand
	OpInt  Opcode = 0x5 // Grow stack by operand slots, zero-filled
	OpJmp  Opcode = 0x6 // Jump to absolute instruction index
	OpJpc  Opcode = 0x7 // Pop; jump to operand when popped value == 0
	OpLodx Opcode = 0x8 // Pop index; push memory[base(level)+operand+index]
	OpStox Opcode = 0x9 // Pop value, pop index; store to base(level)+operand+index
	OpHalt Opcode = 0xA // Stop execution
)

// OpcodeMax is the highest defined opcode. Nibbles above it decode but
// fault at dispatch.
const OpcodeMax = OpHalt

// Operation is the operand of an OPR instruction. Operations are
// organized into ranges by category.
type Operation uint64

const (
	// ========================================================================
	// Return and arithmetic (0x00-0x1F)
	// ========================================================================

	OprRet Operation = 0x00 // Return from method or procedure
	OprAdd Operation = 0x01 // Pop two, push sum
	OprSub Operation = 0x02 // Pop b, pop a, push a-b
	OprMul Operation = 0x03 // Pop two, push product
	OprDiv Operation = 0x04 // Pop b, pop a, push a/b; b == 0 faults
	OprMod Operation = 0x05 // Pop b, pop a, push a%b; b == 0 faults
	OprPow Operation = 0x06 // Pop b, pop a, push a**b
	OprNeg Operation = 0x07 // Two's-complement negate top of stack
	OprOdd Operation = 0x08 // Pop a, push a&1

	// ========================================================================
	// Comparison and logic (0x09-0x1F)
	// ========================================================================

	OprEq      Operation = 0x09 // Pop two, push 1 if equal else 0
	OprNeq     Operation = 0x0A // Pop two, push 1 if not equal else 0
	OprLess    Operation = 0x0B // Signed a < b
	OprLeq     Operation = 0x0C // Signed a <= b
	OprGreater Operation = 0x0D // Signed a > b
	OprGeq     Operation = 0x0E // Signed a >= b
	OprAnd     Operation = 0x0F // Pop two, push 1 if both nonzero
	OprOr      Operation = 0x10 // Pop two, push 1 if either nonzero
	OprNot     Operation = 0x11 // Pop a, push 1 if a == 0 else 0

	// ========================================================================
	// I/O (0x20-0x2F)
	// ========================================================================

	OprOutChar   Operation = 0x20 // Pop, write as rune
	OprOutInt    Operation = 0x21 // Pop, write signed decimal
	OprOutString Operation = 0x22 // Pop string address or table id, write bytes
	OprWriteLn   Operation = 0x23 // Write newline
	OprInChar    Operation = 0x24 // Read one byte, push it (EOF pushes 0)
	OprInInt     Operation = 0x25 // Read a line, parse signed decimal, push it

	// ========================================================================
	// Strings (0x30-0x3F)
	// ========================================================================

	OprStrCreate Operation = 0x30 // Pop table id, allocate string object, push address
	OprStrConcat Operation = 0x31 // Pop b, pop a, push address of a+b
	OprStrLen    Operation = 0x32 // Pop address, push byte length
	OprStrEq     Operation = 0x33 // Pop two addresses, push 1 if bytes equal
	OprStrCmp    Operation = 0x34 // Pop b, pop a, push -1/0/1 bytewise
	OprIntToStr  Operation = 0x35 // Pop value, push address of decimal string
	OprStrToInt  Operation = 0x36 // Pop address, push parsed value (unparsable pushes 0)

	// ========================================================================
	// Objects (0x40-0x4F)
	// ========================================================================

	OprObjNew        Operation = 0x40 // Pop class id, instantiate, push object address
	OprObjCallMethod Operation = 0x41 // Pop method offset, pop receiver, enter method
)

// CallPlaceholder is the LIT operand the code generator emits for an
// unresolved method offset. The linker patches every LIT CallPlaceholder
// that immediately precedes OPR OBJ_CALL_METHOD.
const CallPlaceholder uint64 = 0xFFFF

// OpcodeInfo provides metadata about each opcode for the disassembler,
// the assembler, and validation.
type OpcodeInfo struct {
	Name      string // Mnemonic
	StackPop  int    // Values popped (-1 = depends on operation/operand)
	StackPush int    // Values pushed (-1 = depends on operation/operand)
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpLit:  {"LIT", 0, 1},
	OpOpr:  {"OPR", -1, -1},
	OpLod:  {"LOD", 0, 1},
	OpSto:  {"STO", 1, 0},
	OpCal:  {"CAL", 0, 0},
	OpInt:  {"INT", 0, -1},
	OpJmp:  {"JMP", 0, 0},
	OpJpc:  {"JPC", 1, 0},
	OpLodx: {"LODX", 1, 1},
	OpStox: {"STOX", 2, 0},
	OpHalt: {"HALT", 0, 0},
}

// OperationInfo provides metadata about each OPR operation.
type OperationInfo struct {
	Name      string // Mnemonic used by the assembler and disassembler
	StackPop  int    // Values popped (-1 = variable: RET, OBJ_CALL_METHOD)
	StackPush int    // Values pushed
}

var operationInfoTable = map[Operation]OperationInfo{
	// Return and arithmetic
	OprRet: {"RET", -1, -1},
	OprAdd: {"ADD", 2, 1},
	OprSub: {"SUB", 2, 1},
	OprMul: {"MUL", 2, 1},
	OprDiv: {"DIV", 2, 1},
	OprMod: {"MOD", 2, 1},
	OprPow: {"POW", 2, 1},
	OprNeg: {"NEG", 1, 1},
	OprOdd: {"ODD", 1, 1},

	// Comparison and logic
	OprEq:      {"EQ", 2, 1},
	OprNeq:     {"NEQ", 2, 1},
	OprLess:    {"LESS", 2, 1},
	OprLeq:     {"LEQ", 2, 1},
	OprGreater: {"GREATER", 2, 1},
	OprGeq:     {"GEQ", 2, 1},
	OprAnd:     {"AND", 2, 1},
	OprOr:      {"OR", 2, 1},
	OprNot:     {"NOT", 1, 1},

	// I/O
	OprOutChar:   {"OUTCHAR", 1, 0},
	OprOutInt:    {"OUTINT", 1, 0},
	OprOutString: {"OUTSTRING", 1, 0},
	OprWriteLn:   {"WRITELN", 0, 0},
	OprInChar:    {"INCHAR", 0, 1},
	OprInInt:     {"ININT", 0, 1},

	// Strings
	OprStrCreate: {"STR_CREATE", 1, 1},
	OprStrConcat: {"STR_CONCAT", 2, 1},
	OprStrLen:    {"STR_LEN", 1, 1},
	OprStrEq:     {"STR_EQ", 2, 1},
	OprStrCmp:    {"STR_CMP", 2, 1},
	OprIntToStr:  {"INT_TO_STR", 1, 1},
	OprStrToInt:  {"STR_TO_INT", 1, 1},

	// Objects
	OprObjNew:        {"OBJ_NEW", 1, 1},
	OprObjCallMethod: {"OBJ_CALL_METHOD", -1, 0},
}

// operationByName is the reverse of operationInfoTable, for the assembler.
var operationByName = func() map[string]Operation {
	m := make(map[string]Operation, len(operationInfoTable))
	for op, info := range operationInfoTable {
		m[info.Name] = op
	}
	return m
}()

// opcodeByName is the reverse of opcodeInfoTable, for the assembler.
var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%X)", uint8(op))}
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether the opcode is one of the defined instructions.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsJump returns true for instructions that take an instruction index as
// operand (JMP, JPC, CAL). The assembler accepts labels for these.
func (op Opcode) IsJump() bool {
	return op == OpJmp || op == OpJpc || op == OpCal
}

// IsTerminal returns true if the opcode can end execution.
func (op Opcode) IsTerminal() bool {
	return op == OpHalt
}

// GetOperationInfo returns metadata for an OPR operation.
// Returns an OperationInfo named "UNKNOWN" if the operation is not recognized.
func GetOperationInfo(op Operation) OperationInfo {
	if info, ok := operationInfoTable[op]; ok {
		return info
	}
	return OperationInfo{Name: fmt.Sprintf("UNKNOWN(0x%X)", uint64(op))}
}

// String returns the mnemonic of an operation.
func (op Operation) String() string {
	return GetOperationInfo(op).Name
}

// Valid reports whether the operation is defined.
func (op Operation) Valid() bool {
	_, ok := operationInfoTable[op]
	return ok
}

// OperationByName resolves an operation mnemonic, for the assembler.
func OperationByName(name string) (Operation, bool) {
	op, ok := operationByName[name]
	return op, ok
}

// OpcodeByName resolves an opcode mnemonic, for the assembler.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// AllOperations returns a slice of all defined OPR operations.
func AllOperations() []Operation {
	ops := make([]Operation, 0, len(operationInfoTable))
	for op := range operationInfoTable {
		ops = append(ops, op)
	}
	return ops
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}

// OperationCount returns the number of defined OPR operations.
func OperationCount() int {
	return len(operationInfoTable)
}
