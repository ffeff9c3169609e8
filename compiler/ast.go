package compiler

// ---------------------------------------------------------------------------
// AST
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Type is the declared type of a field, parameter, variable, or return
// value. Builtin types use the reserved names; anything else names a
// class.
type Type struct {
	Name string
}

// Builtin type names.
const (
	TypeNameInt    = "int"
	TypeNameString = "string"
)

// IsInt reports whether the type is the builtin int.
func (t Type) IsInt() bool { return t.Name == TypeNameInt }

// IsString reports whether the type is the builtin string.
func (t Type) IsString() bool { return t.Name == TypeNameString }

// IsObject reports whether the type names a class.
func (t Type) IsObject() bool {
	return t.Name != "" && t.Name != TypeNameInt && t.Name != TypeNameString
}

// IsVoid reports whether no type was declared (procedures).
func (t Type) IsVoid() bool { return t.Name == "" }

func (t Type) String() string {
	if t.Name == "" {
		return "void"
	}
	return t.Name
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// Program is the root node: every compilation unit is a list of classes.
type Program struct {
	SpanVal Span
	Classes []*ClassDecl
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// ClassDecl declares a class with fields and methods.
type ClassDecl struct {
	SpanVal Span
	Name    string
	Parent  string // empty if none
	Fields  []*FieldDecl
	Methods []*MethodDecl
}

func (n *ClassDecl) Span() Span { return n.SpanVal }
func (n *ClassDecl) node()      {}

// FieldDecl declares an instance field.
type FieldDecl struct {
	SpanVal Span
	Name    string
	Type    Type
}

func (n *FieldDecl) Span() Span { return n.SpanVal }
func (n *FieldDecl) node()      {}

// MethodDecl declares a method. Procedures (proc) have no return type;
// functions (func) declare one.
type MethodDecl struct {
	SpanVal    Span
	Name       string
	Params     []*Param
	ReturnType Type // void for proc
	Body       *BlockStmt
}

func (n *MethodDecl) Span() Span { return n.SpanVal }
func (n *MethodDecl) node()      {}

// IsFunction reports whether the method returns a value.
func (n *MethodDecl) IsFunction() bool { return !n.ReturnType.IsVoid() }

// Param is one formal parameter.
type Param struct {
	SpanVal Span
	Name    string
	Type    Type
}

func (n *Param) Span() Span { return n.SpanVal }
func (n *Param) node()      {}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// BlockStmt is a braced statement list.
type BlockStmt struct {
	SpanVal Span
	Stmts   []Stmt
}

func (n *BlockStmt) Span() Span { return n.SpanVal }
func (n *BlockStmt) node()      {}
func (n *BlockStmt) stmt()      {}

// VarDeclStmt declares a local variable with an optional initializer.
type VarDeclStmt struct {
	SpanVal Span
	Name    string
	Type    Type
	Init    Expr // nil when omitted
}

func (n *VarDeclStmt) Span() Span { return n.SpanVal }
func (n *VarDeclStmt) node()      {}
func (n *VarDeclStmt) stmt()      {}

// AssignStmt assigns to a variable.
type AssignStmt struct {
	SpanVal Span
	Name    string
	Value   Expr
}

func (n *AssignStmt) Span() Span { return n.SpanVal }
func (n *AssignStmt) node()      {}
func (n *AssignStmt) stmt()      {}

// IfStmt is a conditional with an optional else branch. Else may hold
// a BlockStmt or a nested IfStmt (else-if chains).
type IfStmt struct {
	SpanVal Span
	Cond    Expr
	Then    *BlockStmt
	Else    Stmt // nil, *BlockStmt, or *IfStmt
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// WhileStmt is a pre-tested loop.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    *BlockStmt
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// ReturnStmt returns from a method, with a value in functions.
type ReturnStmt struct {
	SpanVal Span
	Value   Expr // nil in procedures
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// HaltStmt stops the machine.
type HaltStmt struct {
	SpanVal Span
}

func (n *HaltStmt) Span() Span { return n.SpanVal }
func (n *HaltStmt) node()      {}
func (n *HaltStmt) stmt()      {}

// WriteStmt prints a value. Newline distinguishes writeln from write;
// a writeln with no argument prints only the newline.
type WriteStmt struct {
	SpanVal Span
	Arg     Expr // nil for bare writeln()
	Newline bool
}

func (n *WriteStmt) Span() Span { return n.SpanVal }
func (n *WriteStmt) node()      {}
func (n *WriteStmt) stmt()      {}

// ExprStmt is an expression used as a statement.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// IntLit is an integer literal. Character literals parse into IntLit
// carrying the character value.
type IntLit struct {
	SpanVal Span
	Value   int64
}

func (n *IntLit) Span() Span { return n.SpanVal }
func (n *IntLit) node()      {}
func (n *IntLit) expr()      {}

// StringLit is a string literal.
type StringLit struct {
	SpanVal Span
	Value   string
}

func (n *StringLit) Span() Span { return n.SpanVal }
func (n *StringLit) node()      {}
func (n *StringLit) expr()      {}

// Ident references a variable or parameter.
type Ident struct {
	SpanVal Span
	Name    string
}

func (n *Ident) Span() Span { return n.SpanVal }
func (n *Ident) node()      {}
func (n *Ident) expr()      {}

// UnaryExpr applies a prefix operator (- or !).
type UnaryExpr struct {
	SpanVal Span
	Op      TokenType
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// BinaryExpr applies an infix operator.
type BinaryExpr struct {
	SpanVal Span
	Op      TokenType
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// NewExpr instantiates a class: new ClassName().
type NewExpr struct {
	SpanVal   Span
	ClassName string
}

func (n *NewExpr) Span() Span { return n.SpanVal }
func (n *NewExpr) node()      {}
func (n *NewExpr) expr()      {}

// MethodCallExpr calls a method on a receiver: recv.Method(args).
type MethodCallExpr struct {
	SpanVal  Span
	Receiver Expr
	Method   string
	Args     []Expr
}

func (n *MethodCallExpr) Span() Span { return n.SpanVal }
func (n *MethodCallExpr) node()      {}
func (n *MethodCallExpr) expr()      {}

// FieldAccessExpr is recv.name without a call. The grammar admits it so
// the analyzer can reject it with a useful message: fields are reachable
// only through methods.
type FieldAccessExpr struct {
	SpanVal  Span
	Receiver Expr
	Name     string
}

func (n *FieldAccessExpr) Span() Span { return n.SpanVal }
func (n *FieldAccessExpr) node()      {}
func (n *FieldAccessExpr) expr()      {}

// BuiltinCallExpr calls one of the builtin functions: len, str, int,
// readint, readchar.
type BuiltinCallExpr struct {
	SpanVal Span
	Name    string
	Args    []Expr
}

func (n *BuiltinCallExpr) Span() Span { return n.SpanVal }
func (n *BuiltinCallExpr) node()      {}
func (n *BuiltinCallExpr) expr()      {}

// Builtin function names recognized in call position.
var builtinFuncs = map[string]bool{
	"len":      true,
	"str":      true,
	"int":      true,
	"readint":  true,
	"readchar": true,
}

// IsBuiltinFunc reports whether name is a builtin function.
func IsBuiltinFunc(name string) bool {
	return builtinFuncs[name]
}
