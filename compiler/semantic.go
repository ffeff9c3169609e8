package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Semantic analyzer
// ---------------------------------------------------------------------------

// ClassInfo is the collected shape of one class, produced by the first
// analysis pass and shared with later consumers.
type ClassInfo struct {
	Decl    *ClassDecl
	Fields  map[string]Type
	Methods map[string]*MethodDecl
}

// Analyzer performs semantic analysis: pass 1 collects class shapes,
// pass 2 checks method bodies.
type Analyzer struct {
	errors  []string
	classes map[string]*ClassInfo

	// Current method scope
	curClass  *ClassInfo
	curMethod *MethodDecl
	scope     map[string]Type // declared variables and parameters
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		classes: make(map[string]*ClassInfo),
	}
}

// Errors returns accumulated analysis errors.
func (a *Analyzer) Errors() []string {
	return a.errors
}

// Classes returns the collected class table, for downstream passes.
func (a *Analyzer) Classes() map[string]*ClassInfo {
	return a.classes
}

// errorAt records an error with position information.
func (a *Analyzer) errorAt(node Node, format string, args ...interface{}) {
	pos := node.Span().Start
	msg := fmt.Sprintf("line %d, column %d: %s", pos.Line, pos.Column, fmt.Sprintf(format, args...))
	a.errors = append(a.errors, msg)
}

// Analyze checks a whole program and returns its errors.
func (a *Analyzer) Analyze(prog *Program) []string {
	a.collectClasses(prog)
	for _, cls := range prog.Classes {
		info := a.classes[cls.Name]
		if info == nil || info.Decl != cls {
			continue // duplicate; already reported
		}
		a.checkClass(info)
	}
	return a.errors
}

// ---------------------------------------------------------------------------
// Pass 1: collection
// ---------------------------------------------------------------------------

func (a *Analyzer) collectClasses(prog *Program) {
	for _, cls := range prog.Classes {
		if _, exists := a.classes[cls.Name]; exists {
			a.errorAt(cls, "duplicate class %s", cls.Name)
			continue
		}

		info := &ClassInfo{
			Decl:    cls,
			Fields:  make(map[string]Type),
			Methods: make(map[string]*MethodDecl),
		}
		for _, f := range cls.Fields {
			if _, exists := info.Fields[f.Name]; exists {
				a.errorAt(f, "duplicate field %s in class %s", f.Name, cls.Name)
				continue
			}
			info.Fields[f.Name] = f.Type
		}
		for _, m := range cls.Methods {
			if _, exists := info.Methods[m.Name]; exists {
				a.errorAt(m, "duplicate method %s in class %s", m.Name, cls.Name)
				continue
			}
			info.Methods[m.Name] = m
		}
		a.classes[cls.Name] = info
	}

	// Parents must exist and chains must terminate.
	for _, cls := range prog.Classes {
		if cls.Parent == "" {
			continue
		}
		if _, ok := a.classes[cls.Parent]; !ok {
			a.errorAt(cls, "class %s extends unknown class %s", cls.Name, cls.Parent)
			continue
		}
		seen := map[string]bool{cls.Name: true}
		for cur := cls.Parent; cur != ""; {
			if seen[cur] {
				a.errorAt(cls, "inheritance cycle through class %s", cur)
				break
			}
			seen[cur] = true
			info, ok := a.classes[cur]
			if !ok {
				break
			}
			cur = info.Decl.Parent
		}
	}
}

// ---------------------------------------------------------------------------
// Pass 2: body checks
// ---------------------------------------------------------------------------

func (a *Analyzer) checkClass(info *ClassInfo) {
	a.curClass = info
	for _, method := range info.Decl.Methods {
		a.checkMethod(method)
	}
	a.curClass = nil
}

func (a *Analyzer) checkMethod(method *MethodDecl) {
	a.curMethod = method
	a.scope = make(map[string]Type)

	// Fields are plain identifiers inside the owning class's methods.
	// Inherited fields come first so the class's own declarations win.
	a.seedFields(a.curClass)

	for _, param := range method.Params {
		if _, exists := a.scope[param.Name]; exists {
			a.errorAt(param, "duplicate parameter %s", param.Name)
			continue
		}
		a.checkType(param, param.Type)
		a.scope[param.Name] = param.Type
	}
	if method.IsFunction() {
		a.checkType(method, method.ReturnType)
	}

	a.checkBlock(method.Body)

	a.curMethod = nil
	a.scope = nil
}

// seedFields loads the class's fields, ancestors first, into the
// current method scope.
func (a *Analyzer) seedFields(info *ClassInfo) {
	var chain []*ClassInfo
	seen := make(map[string]bool)
	for cur := info; cur != nil && !seen[cur.Decl.Name]; {
		seen[cur.Decl.Name] = true
		chain = append(chain, cur)
		if cur.Decl.Parent == "" {
			break
		}
		cur = a.classes[cur.Decl.Parent]
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, f := range chain[i].Decl.Fields {
			a.scope[f.Name] = f.Type
		}
	}
}

// checkType rejects type names that resolve to nothing.
func (a *Analyzer) checkType(node Node, t Type) {
	if t.IsVoid() || t.IsInt() || t.IsString() {
		return
	}
	if _, ok := a.classes[t.Name]; !ok {
		a.errorAt(node, "unknown type %s", t.Name)
	}
}

func (a *Analyzer) checkBlock(block *BlockStmt) {
	if block == nil {
		return
	}
	for _, stmt := range block.Stmts {
		a.checkStmt(stmt)
	}
}

func (a *Analyzer) checkStmt(stmt Stmt) {
	switch s := stmt.(type) {
	case *VarDeclStmt:
		a.checkType(s, s.Type)
		if _, exists := a.scope[s.Name]; exists {
			a.errorAt(s, "variable %s already declared", s.Name)
		}
		if s.Init != nil {
			got := a.inferExpr(s.Init)
			a.checkAssignable(s, s.Type, got, s.Name)
		}
		a.scope[s.Name] = s.Type

	case *AssignStmt:
		got := a.inferExpr(s.Value)
		if declared, ok := a.scope[s.Name]; ok {
			a.checkAssignable(s, declared, got, s.Name)
		} else {
			// Assignment introduces the variable, typed by its value.
			a.scope[s.Name] = got
		}

	case *IfStmt:
		a.checkCondition(s.Cond)
		a.checkBlock(s.Then)
		if s.Else != nil {
			a.checkStmt(s.Else)
		}

	case *WhileStmt:
		a.checkCondition(s.Cond)
		a.checkBlock(s.Body)

	case *ReturnStmt:
		a.checkReturn(s)

	case *HaltStmt:
		// Always legal.

	case *WriteStmt:
		if s.Arg != nil {
			t := a.inferExpr(s.Arg)
			if t.IsObject() {
				a.errorAt(s, "cannot write a value of class type %s", t.Name)
			}
		}

	case *ExprStmt:
		t := a.inferExpr(s.Expr)
		a.checkDiscard(s, t)

	case *BlockStmt:
		a.checkBlock(s)
	}
}

func (a *Analyzer) checkCondition(cond Expr) {
	if t := a.inferExpr(cond); t.IsString() || t.IsObject() {
		a.errorAt(cond, "condition must be an integer expression, got %s", t)
	}
}

func (a *Analyzer) checkReturn(s *ReturnStmt) {
	if a.curMethod == nil {
		return
	}
	isFunc := a.curMethod.IsFunction()
	if s.Value == nil {
		if isFunc {
			a.errorAt(s, "func %s must return a value", a.curMethod.Name)
		}
		return
	}
	if !isFunc {
		a.errorAt(s, "proc %s cannot return a value", a.curMethod.Name)
		a.inferExpr(s.Value)
		return
	}
	got := a.inferExpr(s.Value)
	a.checkAssignable(s, a.curMethod.ReturnType, got, "return value")
}

// checkDiscard rejects expression statements whose value would be
// silently dropped. Inside Main they print implicitly instead, matching
// the code generator.
func (a *Analyzer) checkDiscard(s *ExprStmt, t Type) {
	if t.IsVoid() {
		return // procedure call; nothing discarded
	}
	if a.curMethod != nil && a.curMethod.Name == "Main" {
		return // implicit writeln target
	}
	a.errorAt(s, "expression value is discarded; assign it or write it")
}

// checkAssignable enforces the light type discipline: int and string do
// not mix, object types must match by class name.
func (a *Analyzer) checkAssignable(node Node, want, got Type, what string) {
	if want.IsVoid() || got.IsVoid() {
		return // unknown half; an error was already reported
	}
	if want.Name == got.Name {
		return
	}
	if want.IsObject() && got.IsObject() {
		// Parent compatibility: assigning a child instance to a parent
		// variable is allowed.
		if a.isAncestor(want.Name, got.Name) {
			return
		}
	}
	a.errorAt(node, "cannot use %s value as %s for %s", got, want, what)
}

// isAncestor reports whether ancestor appears on class's parent chain.
func (a *Analyzer) isAncestor(ancestor, class string) bool {
	seen := make(map[string]bool)
	for cur := class; cur != "" && !seen[cur]; {
		seen[cur] = true
		info, ok := a.classes[cur]
		if !ok {
			return false
		}
		if cur == ancestor {
			return true
		}
		cur = info.Decl.Parent
	}
	return false
}

// ---------------------------------------------------------------------------
// Expression inference
// ---------------------------------------------------------------------------

// inferExpr checks an expression and infers its type. Void doubles as
// "unknown" after an error so cascading diagnostics stay quiet.
func (a *Analyzer) inferExpr(expr Expr) Type {
	switch e := expr.(type) {
	case *IntLit:
		return Type{Name: TypeNameInt}

	case *StringLit:
		return Type{Name: TypeNameString}

	case *Ident:
		if t, ok := a.scope[e.Name]; ok {
			return t
		}
		a.errorAt(e, "undeclared variable %s", e.Name)
		return Type{}

	case *UnaryExpr:
		t := a.inferExpr(e.Operand)
		if t.IsString() || t.IsObject() {
			a.errorAt(e, "operator %s requires an integer operand, got %s", e.Op, t)
		}
		return Type{Name: TypeNameInt}

	case *BinaryExpr:
		return a.inferBinary(e)

	case *NewExpr:
		if _, ok := a.classes[e.ClassName]; !ok {
			a.errorAt(e, "new of unknown class %s", e.ClassName)
			return Type{}
		}
		return Type{Name: e.ClassName}

	case *MethodCallExpr:
		return a.inferMethodCall(e)

	case *FieldAccessExpr:
		a.inferExpr(e.Receiver)
		a.errorAt(e, "direct field access is not allowed; fields are reachable only through methods")
		return Type{}

	case *BuiltinCallExpr:
		return a.inferBuiltin(e)

	default:
		return Type{}
	}
}

func (a *Analyzer) inferBinary(e *BinaryExpr) Type {
	left := a.inferExpr(e.Left)
	right := a.inferExpr(e.Right)

	switch e.Op {
	case TokenPlus:
		// + concatenates when either side is a string.
		if left.IsString() || right.IsString() {
			if left.IsObject() || right.IsObject() {
				a.errorAt(e, "cannot concatenate %s and %s", left, right)
			}
			return Type{Name: TypeNameString}
		}
		return Type{Name: TypeNameInt}

	case TokenEq, TokenNeq:
		if left.IsString() != right.IsString() && !left.IsVoid() && !right.IsVoid() {
			a.errorAt(e, "cannot compare %s with %s", left, right)
		}
		return Type{Name: TypeNameInt}

	case TokenLess, TokenLeq, TokenGreater, TokenGeq:
		// Ordered comparison works on two integers or two strings.
		if left.IsString() != right.IsString() && !left.IsVoid() && !right.IsVoid() {
			a.errorAt(e, "cannot compare %s with %s", left, right)
		} else if left.IsObject() || right.IsObject() {
			a.errorAt(e, "cannot compare %s with %s", left, right)
		}
		return Type{Name: TypeNameInt}

	default:
		// Arithmetic and logic want integers on both sides.
		if left.IsString() || right.IsString() || left.IsObject() || right.IsObject() {
			a.errorAt(e, "operator %s requires integer operands, got %s and %s", e.Op, left, right)
		}
		return Type{Name: TypeNameInt}
	}
}

func (a *Analyzer) inferMethodCall(e *MethodCallExpr) Type {
	recv := a.inferExpr(e.Receiver)
	for _, arg := range e.Args {
		a.inferExpr(arg)
	}

	if !recv.IsObject() {
		if !recv.IsVoid() {
			a.errorAt(e, "cannot call method %s on %s value", e.Method, recv)
		}
		return Type{}
	}

	info, ok := a.classes[recv.Name]
	if !ok {
		return Type{}
	}
	method := a.lookupMethod(info, e.Method)
	if method == nil {
		a.errorAt(e, "class %s has no method %s", recv.Name, e.Method)
		return Type{}
	}
	if len(e.Args) != len(method.Params) {
		a.errorAt(e, "method %s.%s takes %d argument(s), got %d",
			recv.Name, e.Method, len(method.Params), len(e.Args))
	}
	return method.ReturnType
}

// lookupMethod resolves a method on a class or its ancestors.
func (a *Analyzer) lookupMethod(info *ClassInfo, name string) *MethodDecl {
	seen := make(map[string]bool)
	for cur := info; cur != nil && !seen[cur.Decl.Name]; {
		seen[cur.Decl.Name] = true
		if m, ok := cur.Methods[name]; ok {
			return m
		}
		if cur.Decl.Parent == "" {
			return nil
		}
		cur = a.classes[cur.Decl.Parent]
	}
	return nil
}

func (a *Analyzer) inferBuiltin(e *BuiltinCallExpr) Type {
	argTypes := make([]Type, len(e.Args))
	for i, arg := range e.Args {
		argTypes[i] = a.inferExpr(arg)
	}

	arity := map[string]int{"len": 1, "str": 1, "int": 1, "readint": 0, "readchar": 0}
	want, ok := arity[e.Name]
	if !ok {
		a.errorAt(e, "unknown builtin %s", e.Name)
		return Type{}
	}
	if len(e.Args) != want {
		a.errorAt(e, "builtin %s takes %d argument(s), got %d", e.Name, want, len(e.Args))
		return builtinResult(e.Name)
	}

	switch e.Name {
	case "len", "int":
		if !argTypes[0].IsString() && !argTypes[0].IsVoid() {
			a.errorAt(e, "builtin %s requires a string argument, got %s", e.Name, argTypes[0])
		}
	case "str":
		if argTypes[0].IsString() || argTypes[0].IsObject() {
			a.errorAt(e, "builtin str requires an integer argument, got %s", argTypes[0])
		}
	}
	return builtinResult(e.Name)
}

func builtinResult(name string) Type {
	if name == "str" {
		return Type{Name: TypeNameString}
	}
	return Type{Name: TypeNameInt}
}

// ---------------------------------------------------------------------------
// Entry point
// ---------------------------------------------------------------------------

// Analyze runs semantic analysis on a program. The returned class table
// feeds code generation.
func Analyze(prog *Program) (map[string]*ClassInfo, []string) {
	a := NewAnalyzer()
	errs := a.Analyze(prog)
	return a.Classes(), errs
}
