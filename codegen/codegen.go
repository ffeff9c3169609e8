// Package codegen lowers an analyzed AST to bytecode plus the module
// manifest, and links method-call placeholders to real offsets.
package codegen

import (
	"fmt"

	"github.com/arx-lang/arx/arxmod"
	"github.com/arx-lang/arx/bytecode"
	"github.com/arx-lang/arx/compiler"
)

// ---------------------------------------------------------------------------
// Artifact
// ---------------------------------------------------------------------------

// CallSite records one unresolved method call: the instruction index of
// the LIT placeholder, and the names the linker resolves it with. Class
// is empty when the receiver's class was not statically known.
type CallSite struct {
	Index  int
	Class  string
	Method string
}

// Artifact is the output of code generation: everything the linker and
// the module writer need.
type Artifact struct {
	Code      []bytecode.Instruction
	Strings   []string
	Symbols   []arxmod.Symbol
	Classes   []arxmod.ClassEntry
	CallSites []CallSite
	Lines     []arxmod.LineEntry
}

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

// varInfo is one entry in the unit-scoped variable map.
type varInfo struct {
	addr uint64
	typ  compiler.Type
}

// Generator compiles a program to an Artifact. The AST must have passed
// semantic analysis; the class table argument is the analyzer's output.
type Generator struct {
	classes map[string]*compiler.ClassInfo

	code    []bytecode.Instruction
	strings []string
	sites   []CallSite
	lines   []arxmod.LineEntry

	// Unit-scoped variable addressing: every distinct name in the
	// compilation unit gets one flat address, fields and parameters
	// included. Names shared between methods share storage.
	vars     map[string]varInfo
	nextAddr uint64

	manifest []arxmod.ClassEntry
	methodID uint32

	curMethod *compiler.MethodDecl
	curLine   uint32
	lastLine  uint32

	errors []string
}

// NewGenerator creates a generator backed by the analyzer's class table.
func NewGenerator(classes map[string]*compiler.ClassInfo) *Generator {
	return &Generator{
		classes: classes,
		vars:    make(map[string]varInfo),
	}
}

// Errors returns accumulated generation errors.
func (g *Generator) Errors() []string {
	return g.errors
}

func (g *Generator) errorf(format string, args ...interface{}) {
	g.errors = append(g.errors, fmt.Sprintf(format, args...))
}

// Generate compiles prog and returns the artifact.
func Generate(prog *compiler.Program, classes map[string]*compiler.ClassInfo) (*Artifact, error) {
	g := NewGenerator(classes)
	art := g.Run(prog)
	if len(g.errors) > 0 {
		return nil, fmt.Errorf("codegen errors: %v", g.errors)
	}
	return art, nil
}

// Run walks every class and method and assembles the artifact.
func (g *Generator) Run(prog *compiler.Program) *Artifact {
	for _, cls := range prog.Classes {
		g.genClass(cls)
	}

	return &Artifact{
		Code:      g.code,
		Strings:   g.strings,
		Symbols:   g.symbolTable(),
		Classes:   g.manifest,
		CallSites: g.sites,
		Lines:     g.lines,
	}
}

// symbolTable exports the unit variable map, ordered by address.
func (g *Generator) symbolTable() []arxmod.Symbol {
	syms := make([]arxmod.Symbol, len(g.vars))
	for name, v := range g.vars {
		syms[v.addr] = arxmod.Symbol{Name: name, Address: v.addr}
	}
	return syms
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

// emit appends one instruction and returns its index.
func (g *Generator) emit(op bytecode.Opcode, operand uint64) int {
	idx := len(g.code)
	g.code = append(g.code, bytecode.New(op, 0, operand))
	if g.curLine != g.lastLine && g.curLine != 0 {
		g.lines = append(g.lines, arxmod.LineEntry{Index: uint64(idx), Line: g.curLine})
		g.lastLine = g.curLine
	}
	return idx
}

// emitOpr appends an OPR instruction.
func (g *Generator) emitOpr(op bytecode.Operation) int {
	return g.emit(bytecode.OpOpr, uint64(op))
}

// patch rewrites the operand of an already emitted instruction. Used
// for jump backpatching; method-call placeholders are left for the
// linker.
func (g *Generator) patch(index int, operand uint64) {
	g.code[index].Operand = operand
}

// here is the index the next instruction will land at.
func (g *Generator) here() uint64 {
	return uint64(len(g.code))
}

// atLine moves the current debug line.
func (g *Generator) atLine(node compiler.Node) {
	if line := node.Span().Start.Line; line > 0 {
		g.curLine = uint32(line)
	}
}

// addString appends a literal to the string table and returns its id.
// Duplicates are legal and kept.
func (g *Generator) addString(s string) uint64 {
	id := uint64(len(g.strings))
	g.strings = append(g.strings, s)
	return id
}

// declareVar returns the flat address for a name, allocating the next
// sequential address on first sight.
func (g *Generator) declareVar(name string, typ compiler.Type) uint64 {
	if v, ok := g.vars[name]; ok {
		return v.addr
	}
	addr := g.nextAddr
	g.nextAddr++
	g.vars[name] = varInfo{addr: addr, typ: typ}
	return addr
}

// lookupVar finds a declared variable.
func (g *Generator) lookupVar(name string) (varInfo, bool) {
	v, ok := g.vars[name]
	return v, ok
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (g *Generator) genClass(cls *compiler.ClassDecl) {
	entry := arxmod.ClassEntry{
		Name:          cls.Name,
		ClassID:       arxmod.HashClassName(cls.Name),
		ParentClassID: arxmod.NoParentClass,
	}
	if cls.Parent != "" {
		entry.ParentClassID = arxmod.HashClassName(cls.Parent)
	}

	// Field offsets and instance size are layout, which the linker
	// computes; the generator only names the fields. Field storage for
	// method bodies goes through the flat unit map like any variable.
	for _, f := range cls.Fields {
		entry.Fields = append(entry.Fields, arxmod.FieldEntry{Name: f.Name})
		g.declareVar(f.Name, f.Type)
	}

	for _, m := range cls.Methods {
		entry.Methods = append(entry.Methods, g.genMethod(m))
	}

	g.manifest = append(g.manifest, entry)
}

// genMethod emits one method body and returns its manifest entry.
func (g *Generator) genMethod(m *compiler.MethodDecl) arxmod.MethodEntry {
	g.curMethod = m
	g.atLine(m)

	entry := arxmod.MethodEntry{
		Name:       m.Name,
		MethodID:   g.methodID,
		Offset:     g.here(),
		ParamCount: uint16(len(m.Params)),
		ReturnType: typeID(m.ReturnType),
	}
	g.methodID++

	// Prologue: the caller leaves arguments on the stack in source
	// order, so the top of the stack is the last parameter.
	for i := len(m.Params) - 1; i >= 0; i-- {
		p := m.Params[i]
		addr := g.declareVar(p.Name, p.Type)
		g.emit(bytecode.OpSto, addr)
	}
	for _, p := range m.Params {
		entry.ParamTypes = append(entry.ParamTypes, typeID(p.Type))
	}

	g.genBlock(m.Body)

	// Epilogue: Main stops the machine, everything else returns.
	if g.isMain() {
		if !g.endsWith(bytecode.OpHalt, 0) {
			g.emit(bytecode.OpHalt, 0)
		}
	} else {
		if !g.endsWith(bytecode.OpOpr, uint64(bytecode.OprRet)) {
			g.emitOpr(bytecode.OprRet)
		}
	}

	g.curMethod = nil
	return entry
}

// isMain reports whether the method being generated is an entry point.
func (g *Generator) isMain() bool {
	return g.curMethod != nil && g.curMethod.Name == "Main"
}

// endsWith reports whether the last emitted instruction matches.
func (g *Generator) endsWith(op bytecode.Opcode, operand uint64) bool {
	if len(g.code) == 0 {
		return false
	}
	last := g.code[len(g.code)-1]
	return last.Op == op && last.Operand == operand
}

func typeID(t compiler.Type) arxmod.TypeID {
	switch {
	case t.IsVoid():
		return arxmod.TypeVoid
	case t.IsInt():
		return arxmod.TypeInt
	case t.IsString():
		return arxmod.TypeString
	default:
		return arxmod.TypeObject
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *Generator) genBlock(block *compiler.BlockStmt) {
	if block == nil {
		return
	}
	for _, stmt := range block.Stmts {
		g.genStmt(stmt)
	}
}

func (g *Generator) genStmt(stmt compiler.Stmt) {
	g.atLine(stmt)

	switch s := stmt.(type) {
	case *compiler.VarDeclStmt:
		addr := g.declareVar(s.Name, s.Type)
		if s.Init != nil {
			g.genExpr(s.Init)
			g.emit(bytecode.OpSto, addr)
		}

	case *compiler.AssignStmt:
		v, ok := g.lookupVar(s.Name)
		if !ok {
			// First sight of the name declares it, typed by its value.
			addr := g.declareVar(s.Name, g.exprType(s.Value))
			v = varInfo{addr: addr}
		}
		g.genExpr(s.Value)
		g.emit(bytecode.OpSto, v.addr)

	case *compiler.IfStmt:
		g.genIf(s)

	case *compiler.WhileStmt:
		g.genWhile(s)

	case *compiler.ReturnStmt:
		if s.Value != nil {
			g.genExpr(s.Value)
		}
		if g.isMain() {
			// Returning from the entry point stops the machine; there
			// is no frame to pop.
			g.emit(bytecode.OpHalt, 0)
		} else {
			g.emitOpr(bytecode.OprRet)
		}

	case *compiler.HaltStmt:
		g.emit(bytecode.OpHalt, 0)

	case *compiler.WriteStmt:
		g.genWriteValue(s.Arg, s.Newline)

	case *compiler.ExprStmt:
		g.genExprStmt(s)

	case *compiler.BlockStmt:
		g.genBlock(s)

	default:
		g.errorf("unsupported statement %T", stmt)
	}
}

func (g *Generator) genIf(s *compiler.IfStmt) {
	g.genExpr(s.Cond)
	jpc := g.emit(bytecode.OpJpc, 0) // target patched below

	g.genBlock(s.Then)

	if s.Else == nil {
		g.patch(jpc, g.here())
		return
	}

	jmp := g.emit(bytecode.OpJmp, 0)
	g.patch(jpc, g.here())
	g.genStmt(s.Else)
	g.patch(jmp, g.here())
}

func (g *Generator) genWhile(s *compiler.WhileStmt) {
	top := g.here()
	g.genExpr(s.Cond)
	jpc := g.emit(bytecode.OpJpc, 0)

	g.genBlock(s.Body)
	g.emit(bytecode.OpJmp, top)

	g.patch(jpc, g.here())
}

// genWriteValue emits output for write/writeln. A direct string literal
// goes through the legacy table-id path without allocating; any other
// string-typed value is already a heap address.
func (g *Generator) genWriteValue(arg compiler.Expr, newline bool) {
	if arg != nil {
		if lit, ok := arg.(*compiler.StringLit); ok {
			g.emit(bytecode.OpLit, g.addString(lit.Value))
			g.emitOpr(bytecode.OprOutString)
		} else if g.exprType(arg).IsString() {
			g.genExpr(arg)
			g.emitOpr(bytecode.OprOutString)
		} else {
			g.genExpr(arg)
			g.emitOpr(bytecode.OprOutInt)
		}
	}
	if newline {
		g.emitOpr(bytecode.OprWriteLn)
	}
}

// genExprStmt emits an expression statement. Inside Main, a bare
// literal, identifier, or binary expression prints itself with a
// newline; this mirrors the original compiler's convenience behavior
// and is shape-based on purpose.
func (g *Generator) genExprStmt(s *compiler.ExprStmt) {
	if g.isMain() && isImplicitPrint(s.Expr) {
		g.genWriteValue(s.Expr, true)
		return
	}
	g.genExpr(s.Expr)
}

func isImplicitPrint(e compiler.Expr) bool {
	switch e.(type) {
	case *compiler.IntLit, *compiler.StringLit, *compiler.Ident, *compiler.BinaryExpr:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// binaryOps maps integer binary operators to their operations.
var binaryOps = map[compiler.TokenType]bytecode.Operation{
	compiler.TokenPlus:    bytecode.OprAdd,
	compiler.TokenMinus:   bytecode.OprSub,
	compiler.TokenStar:    bytecode.OprMul,
	compiler.TokenSlash:   bytecode.OprDiv,
	compiler.TokenPercent: bytecode.OprMod,
	compiler.TokenPower:   bytecode.OprPow,
	compiler.TokenEq:      bytecode.OprEq,
	compiler.TokenNeq:     bytecode.OprNeq,
	compiler.TokenLess:    bytecode.OprLess,
	compiler.TokenLeq:     bytecode.OprLeq,
	compiler.TokenGreater: bytecode.OprGreater,
	compiler.TokenGeq:     bytecode.OprGeq,
	compiler.TokenAnd:     bytecode.OprAnd,
	compiler.TokenOr:      bytecode.OprOr,
}

// stringCompareOps maps ordered string comparisons to the operation
// applied to the STR_CMP result against zero.
var stringCompareOps = map[compiler.TokenType]bytecode.Operation{
	compiler.TokenLess:    bytecode.OprLess,
	compiler.TokenLeq:     bytecode.OprLeq,
	compiler.TokenGreater: bytecode.OprGreater,
	compiler.TokenGeq:     bytecode.OprGeq,
}

func (g *Generator) genExpr(expr compiler.Expr) {
	switch e := expr.(type) {
	case *compiler.IntLit:
		g.emit(bytecode.OpLit, uint64(e.Value))

	case *compiler.StringLit:
		// Expression position wants a real string value: materialize
		// the table literal on the heap.
		g.emit(bytecode.OpLit, g.addString(e.Value))
		g.emitOpr(bytecode.OprStrCreate)

	case *compiler.Ident:
		v, ok := g.lookupVar(e.Name)
		if !ok {
			g.errorf("line %d: undeclared variable %s reached codegen", e.Span().Start.Line, e.Name)
			return
		}
		g.emit(bytecode.OpLod, v.addr)

	case *compiler.UnaryExpr:
		g.genExpr(e.Operand)
		if e.Op == compiler.TokenMinus {
			g.emitOpr(bytecode.OprNeg)
		} else {
			g.emitOpr(bytecode.OprNot)
		}

	case *compiler.BinaryExpr:
		g.genBinary(e)

	case *compiler.NewExpr:
		g.emit(bytecode.OpLit, uint64(arxmod.HashClassName(e.ClassName)))
		g.emitOpr(bytecode.OprObjNew)

	case *compiler.MethodCallExpr:
		g.genMethodCall(e)

	case *compiler.BuiltinCallExpr:
		g.genBuiltinCall(e)

	case *compiler.FieldAccessExpr:
		g.errorf("line %d: field access survived analysis", e.Span().Start.Line)

	default:
		g.errorf("unsupported expression %T", expr)
	}
}

func (g *Generator) genBinary(e *compiler.BinaryExpr) {
	left := g.exprType(e.Left)
	right := g.exprType(e.Right)
	stringy := left.IsString() || right.IsString()
	cmpOp, ordered := stringCompareOps[e.Op]

	switch {
	case stringy && e.Op == compiler.TokenPlus:
		// Concatenation; a non-string side converts first.
		g.genStringValue(e.Left)
		g.genStringValue(e.Right)
		g.emitOpr(bytecode.OprStrConcat)

	case stringy && (e.Op == compiler.TokenEq || e.Op == compiler.TokenNeq):
		g.genExpr(e.Left)
		g.genExpr(e.Right)
		g.emitOpr(bytecode.OprStrEq)
		if e.Op == compiler.TokenNeq {
			g.emitOpr(bytecode.OprNot)
		}

	case stringy && ordered:
		// STR_CMP pushes -1/0/1; compare that against zero.
		g.genExpr(e.Left)
		g.genExpr(e.Right)
		g.emitOpr(bytecode.OprStrCmp)
		g.emit(bytecode.OpLit, 0)
		g.emitOpr(cmpOp)

	default:
		op, ok := binaryOps[e.Op]
		if !ok {
			g.errorf("line %d: unsupported binary operator %s", e.Span().Start.Line, e.Op)
			return
		}
		g.genExpr(e.Left)
		g.genExpr(e.Right)
		g.emitOpr(op)
	}
}

// genStringValue emits e as a string address, converting integers.
func (g *Generator) genStringValue(e compiler.Expr) {
	if g.exprType(e).IsString() {
		g.genExpr(e)
		return
	}
	g.genExpr(e)
	g.emitOpr(bytecode.OprIntToStr)
}

// genMethodCall emits arguments, the receiver, and the call placeholder
// the linker later patches.
func (g *Generator) genMethodCall(e *compiler.MethodCallExpr) {
	for _, arg := range e.Args {
		g.genExpr(arg)
	}
	g.genExpr(e.Receiver)

	class := ""
	if t := g.exprType(e.Receiver); t.IsObject() {
		class = t.Name
	}

	lit := g.emit(bytecode.OpLit, bytecode.CallPlaceholder)
	g.emitOpr(bytecode.OprObjCallMethod)
	g.sites = append(g.sites, CallSite{Index: lit, Class: class, Method: e.Method})
}

func (g *Generator) genBuiltinCall(e *compiler.BuiltinCallExpr) {
	for _, arg := range e.Args {
		g.genExpr(arg)
	}

	switch e.Name {
	case "len":
		g.emitOpr(bytecode.OprStrLen)
	case "str":
		g.emitOpr(bytecode.OprIntToStr)
	case "int":
		g.emitOpr(bytecode.OprStrToInt)
	case "readint":
		g.emitOpr(bytecode.OprInInt)
	case "readchar":
		g.emitOpr(bytecode.OprInChar)
	default:
		g.errorf("line %d: unknown builtin %s", e.Span().Start.Line, e.Name)
	}
}

// ---------------------------------------------------------------------------
// Static types
// ---------------------------------------------------------------------------

// exprType mirrors the analyzer's light inference so emission can pick
// string or integer operations.
func (g *Generator) exprType(expr compiler.Expr) compiler.Type {
	switch e := expr.(type) {
	case *compiler.IntLit:
		return compiler.Type{Name: compiler.TypeNameInt}
	case *compiler.StringLit:
		return compiler.Type{Name: compiler.TypeNameString}
	case *compiler.Ident:
		if v, ok := g.lookupVar(e.Name); ok {
			return v.typ
		}
		return compiler.Type{}
	case *compiler.UnaryExpr:
		return compiler.Type{Name: compiler.TypeNameInt}
	case *compiler.BinaryExpr:
		if e.Op == compiler.TokenPlus {
			if g.exprType(e.Left).IsString() || g.exprType(e.Right).IsString() {
				return compiler.Type{Name: compiler.TypeNameString}
			}
		}
		return compiler.Type{Name: compiler.TypeNameInt}
	case *compiler.NewExpr:
		return compiler.Type{Name: e.ClassName}
	case *compiler.MethodCallExpr:
		return g.methodReturnType(e)
	case *compiler.BuiltinCallExpr:
		if e.Name == "str" {
			return compiler.Type{Name: compiler.TypeNameString}
		}
		return compiler.Type{Name: compiler.TypeNameInt}
	default:
		return compiler.Type{}
	}
}

// methodReturnType resolves a call's return type through the class
// table, walking parent classes.
func (g *Generator) methodReturnType(e *compiler.MethodCallExpr) compiler.Type {
	recv := g.exprType(e.Receiver)
	if !recv.IsObject() {
		return compiler.Type{}
	}
	seen := make(map[string]bool)
	for name := recv.Name; name != "" && !seen[name]; {
		seen[name] = true
		info, ok := g.classes[name]
		if !ok {
			break
		}
		if m, ok := info.Methods[e.Method]; ok {
			return m.ReturnType
		}
		name = info.Decl.Parent
	}
	return compiler.Type{}
}
