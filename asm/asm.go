// Package asm assembles textual instruction listings using Participle
// v2. The grammar is defined as Go structs with tags; assembly is two
// passes: parse, then resolve labels and operation names.
package asm

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/arx-lang/arx/bytecode"
)

var (
	ErrDuplicateLabel   = errors.New("asm: duplicate label")
	ErrUnknownLabel     = errors.New("asm: unknown label")
	ErrUnknownOperation = errors.New("asm: unknown operation")
	ErrBadOperand       = errors.New("asm: bad operand")
	ErrLevelRange       = errors.New("asm: level out of range")
)

// listing is the top-level AST node: labels and instructions in order.
type listing struct {
	Entries []*entry `parser:"@@*"`
}

// entry is either a label definition or one instruction.
type entry struct {
	Label *label       `parser:"  @@"`
	Inst  *instruction `parser:"| @@"`
}

// label: name ":"
type label struct {
	Pos  lexer.Position
	Name string `parser:"@Ident \":\""`
}

// instruction: optional listing index, mnemonic, level, operand. The
// index is accepted so disassembler output assembles back; its value is
// ignored.
type instruction struct {
	Pos      lexer.Position
	Index    *string  `parser:"(@Number)?"`
	Mnemonic string   `parser:"@Mnemonic"`
	Level    string   `parser:"@Number"`
	Operand  *operand `parser:"@@"`
}

// operand: a number, an OPR operation name, or a jump label.
type operand struct {
	Number *string `parser:"  @Number"`
	Name   *string `parser:"| @Ident"`
}

var asmLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Skip whitespace and ; comments
	{Name: "Whitespace", Pattern: `[\s]+`},
	{Name: "Comment", Pattern: `;[^\n]*`},

	// Mnemonics before Ident so they tokenize distinctly
	{Name: "Mnemonic", Pattern: `\b(LODX|STOX|LIT|OPR|LOD|STO|CAL|INT|JMP|JPC|HALT)\b`},

	{Name: "Number", Pattern: `0[xX][0-9a-fA-F]+|[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`},
	{Name: "Colon", Pattern: `:`},
})

var parser = participle.MustBuild[listing](
	participle.Lexer(asmLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// Assemble parses and resolves a listing into a program.
func Assemble(source string) ([]bytecode.Instruction, error) {
	ast, err := parser.ParseString("", source)
	if err != nil {
		return nil, fmt.Errorf("asm: %w", err)
	}
	return ast.assemble()
}

// MustAssemble is Assemble for fixtures and tests; it panics on error.
func MustAssemble(source string) []bytecode.Instruction {
	prog, err := Assemble(source)
	if err != nil {
		panic(err)
	}
	return prog
}

// assemble resolves labels to instruction indices, then builds each
// instruction.
func (l *listing) assemble() ([]bytecode.Instruction, error) {
	labels := make(map[string]uint64)
	var index uint64
	for _, e := range l.Entries {
		switch {
		case e.Label != nil:
			if _, dup := labels[e.Label.Name]; dup {
				return nil, fmt.Errorf("%w: %s at %s", ErrDuplicateLabel, e.Label.Name, e.Label.Pos)
			}
			labels[e.Label.Name] = index
		case e.Inst != nil:
			index++
		}
	}

	prog := make([]bytecode.Instruction, 0, index)
	for _, e := range l.Entries {
		if e.Inst == nil {
			continue
		}
		in, err := e.Inst.build(labels)
		if err != nil {
			return nil, err
		}
		prog = append(prog, in)
	}
	return prog, nil
}

func (i *instruction) build(labels map[string]uint64) (bytecode.Instruction, error) {
	op, ok := bytecode.OpcodeByName(i.Mnemonic)
	if !ok {
		return bytecode.Instruction{}, fmt.Errorf("asm: unknown mnemonic %q at %s", i.Mnemonic, i.Pos)
	}
	level, err := parseNumber(i.Level)
	if err != nil || level > bytecode.MaxLevel {
		return bytecode.Instruction{}, fmt.Errorf("%w: %s at %s", ErrLevelRange, i.Level, i.Pos)
	}
	operand, err := i.Operand.resolve(op, labels)
	if err != nil {
		return bytecode.Instruction{}, fmt.Errorf("%w at %s", err, i.Pos)
	}
	return bytecode.New(op, uint8(level), operand), nil
}

func (o *operand) resolve(op bytecode.Opcode, labels map[string]uint64) (uint64, error) {
	if o.Number != nil {
		v, err := parseNumber(*o.Number)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrBadOperand, *o.Number)
		}
		return v, nil
	}

	name := *o.Name
	switch {
	case op == bytecode.OpOpr:
		oper, ok := bytecode.OperationByName(name)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
		}
		return uint64(oper), nil
	case op.IsJump():
		target, ok := labels[name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownLabel, name)
		}
		return target, nil
	default:
		return 0, fmt.Errorf("%w: %s takes a numeric operand, got %q", ErrBadOperand, op, name)
	}
}

// parseNumber reads decimal or 0x-prefixed hex. Leading zeros stay
// decimal, so listing indices like 0008 parse as written.
func parseNumber(s string) (uint64, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
