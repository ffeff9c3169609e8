package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent
// ---------------------------------------------------------------------------

// maxNestingDepth bounds expression and statement recursion so hostile
// input cannot exhaust the goroutine stack.
const maxNestingDepth = 200

// Parser parses source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    []string

	depth         int
	depthReported bool
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
	if p.curToken.Type == TokenError {
		p.errorf("%s", p.curToken.Literal)
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken.Type)
	return false
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", p.curToken.Pos.Line, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, msg)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

// enterNesting bumps parse recursion depth; false means the cap was hit.
func (p *Parser) enterNesting() bool {
	p.depth++
	if p.depth > maxNestingDepth {
		if !p.depthReported {
			p.errorf("nesting too deep (limit %d)", maxNestingDepth)
			p.depthReported = true
		}
		return false
	}
	return true
}

func (p *Parser) leaveNesting() {
	p.depth--
}

// synchronize advances to the next statement boundary after an error so
// one bad statement does not cascade.
func (p *Parser) synchronize() {
	p.nextToken()
	for !p.curTokenIs(TokenEOF) {
		switch p.curToken.Type {
		case TokenSemicolon:
			p.nextToken()
			return
		case TokenRBrace, TokenVar, TokenIf, TokenWhile, TokenReturn,
			TokenHalt, TokenWrite, TokenWriteLn, TokenProc, TokenFunc, TokenClass:
			return
		}
		p.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses a compilation unit: a sequence of class
// declarations.
func (p *Parser) ParseProgram() *Program {
	startPos := p.curToken.Pos
	prog := &Program{}

	for !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenClass) {
			cls := p.parseClassDecl()
			if cls != nil {
				prog.Classes = append(prog.Classes, cls)
			}
			continue
		}
		p.errorf("expected class declaration, got %s", p.curToken.Type)
		p.synchronize()
	}

	prog.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return prog
}

// parseClassDecl parses: class Name (: Parent)? { fields methods }
func (p *Parser) parseClassDecl() *ClassDecl {
	startPos := p.curToken.Pos
	p.nextToken() // consume "class"

	if !p.curTokenIs(TokenIdent) {
		p.errorf("expected class name, got %s", p.curToken.Type)
		p.synchronize()
		return nil
	}
	cls := &ClassDecl{Name: p.curToken.Literal}
	p.nextToken()

	if p.curTokenIs(TokenColon) {
		p.nextToken()
		if !p.curTokenIs(TokenIdent) {
			p.errorf("expected parent class name after ':'")
			p.synchronize()
			return nil
		}
		cls.Parent = p.curToken.Literal
		p.nextToken()
	}

	if !p.expect(TokenLBrace) {
		p.synchronize()
		return nil
	}

	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		switch p.curToken.Type {
		case TokenVar:
			field := p.parseFieldDecl()
			if field != nil {
				cls.Fields = append(cls.Fields, field)
			}
		case TokenProc, TokenFunc:
			method := p.parseMethodDecl()
			if method != nil {
				cls.Methods = append(cls.Methods, method)
			}
		default:
			p.errorf("expected field or method declaration, got %s", p.curToken.Type)
			p.synchronize()
		}
	}

	p.expect(TokenRBrace)
	cls.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return cls
}

// parseFieldDecl parses: var name : type ;
func (p *Parser) parseFieldDecl() *FieldDecl {
	startPos := p.curToken.Pos
	p.nextToken() // consume "var"

	if !p.curTokenIs(TokenIdent) {
		p.errorf("expected field name, got %s", p.curToken.Type)
		p.synchronize()
		return nil
	}
	field := &FieldDecl{Name: p.curToken.Literal}
	p.nextToken()

	if !p.expect(TokenColon) {
		p.synchronize()
		return nil
	}
	field.Type = p.parseType()

	if !p.expect(TokenSemicolon) {
		p.synchronize()
		return nil
	}
	field.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return field
}

// parseMethodDecl parses: ("proc" | "func") Name ( params? ) (: type)? block
func (p *Parser) parseMethodDecl() *MethodDecl {
	startPos := p.curToken.Pos
	isFunc := p.curTokenIs(TokenFunc)
	p.nextToken() // consume proc/func

	if !p.curTokenIs(TokenIdent) {
		p.errorf("expected method name, got %s", p.curToken.Type)
		p.synchronize()
		return nil
	}
	method := &MethodDecl{Name: p.curToken.Literal}
	p.nextToken()

	if !p.expect(TokenLParen) {
		p.synchronize()
		return nil
	}
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		param := p.parseParam()
		if param == nil {
			p.synchronize()
			return nil
		}
		method.Params = append(method.Params, param)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		} else {
			break
		}
	}
	if !p.expect(TokenRParen) {
		p.synchronize()
		return nil
	}

	if p.curTokenIs(TokenColon) {
		if !isFunc {
			p.errorf("proc %s cannot declare a return type; use func", method.Name)
		}
		p.nextToken()
		method.ReturnType = p.parseType()
	} else if isFunc {
		p.errorf("func %s must declare a return type", method.Name)
	}

	method.Body = p.parseBlock()
	if method.Body == nil {
		return nil
	}

	method.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return method
}

// parseParam parses: name : type
func (p *Parser) parseParam() *Param {
	startPos := p.curToken.Pos
	if !p.curTokenIs(TokenIdent) {
		p.errorf("expected parameter name, got %s", p.curToken.Type)
		return nil
	}
	param := &Param{Name: p.curToken.Literal}
	p.nextToken()

	if !p.expect(TokenColon) {
		return nil
	}
	param.Type = p.parseType()
	param.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return param
}

// parseType parses a type name: int, string, or a class name.
func (p *Parser) parseType() Type {
	if !p.curTokenIs(TokenIdent) {
		p.errorf("expected type name, got %s", p.curToken.Type)
		return Type{}
	}
	t := Type{Name: p.curToken.Literal}
	p.nextToken()
	return t
}

// ---------------------------------------------------------------------------
// Statement parsing
// ---------------------------------------------------------------------------

// parseBlock parses: { stmt* }
func (p *Parser) parseBlock() *BlockStmt {
	if !p.enterNesting() {
		return nil
	}
	defer p.leaveNesting()

	startPos := p.curToken.Pos
	if !p.expect(TokenLBrace) {
		p.synchronize()
		return nil
	}

	block := &BlockStmt{}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		before := p.curToken
		stmt := p.parseStatement()
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		} else if p.curToken == before {
			// parseStatement made no progress; force it
			p.synchronize()
		}
	}

	p.expect(TokenRBrace)
	block.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return block
}

// parseStatement parses a single statement.
func (p *Parser) parseStatement() Stmt {
	if !p.enterNesting() {
		p.synchronize()
		return nil
	}
	defer p.leaveNesting()

	switch p.curToken.Type {
	case TokenVar:
		return p.parseVarDecl()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenReturn:
		return p.parseReturn()
	case TokenHalt:
		return p.parseHalt()
	case TokenWrite, TokenWriteLn:
		return p.parseWrite()
	case TokenLBrace:
		return p.parseBlock()
	case TokenIdent:
		if p.peekTokenIs(TokenAssign) {
			return p.parseAssign()
		}
		return p.parseExprStmt()
	default:
		return p.parseExprStmt()
	}
}

// parseVarDecl parses: var name : type (= expr)? ;
func (p *Parser) parseVarDecl() Stmt {
	startPos := p.curToken.Pos
	p.nextToken() // consume "var"

	if !p.curTokenIs(TokenIdent) {
		p.errorf("expected variable name, got %s", p.curToken.Type)
		p.synchronize()
		return nil
	}
	decl := &VarDeclStmt{Name: p.curToken.Literal}
	p.nextToken()

	if !p.expect(TokenColon) {
		p.synchronize()
		return nil
	}
	decl.Type = p.parseType()

	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		decl.Init = p.parseExpression()
		if decl.Init == nil {
			p.synchronize()
			return nil
		}
	}

	if !p.expect(TokenSemicolon) {
		p.synchronize()
		return nil
	}
	decl.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return decl
}

// parseAssign parses: name = expr ;
func (p *Parser) parseAssign() Stmt {
	startPos := p.curToken.Pos
	stmt := &AssignStmt{Name: p.curToken.Literal}
	p.nextToken() // consume name
	p.nextToken() // consume =

	stmt.Value = p.parseExpression()
	if stmt.Value == nil {
		p.synchronize()
		return nil
	}
	if !p.expect(TokenSemicolon) {
		p.synchronize()
		return nil
	}
	stmt.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return stmt
}

// parseIf parses: if ( expr ) block (else (if | block))?
func (p *Parser) parseIf() Stmt {
	startPos := p.curToken.Pos
	p.nextToken() // consume "if"

	if !p.expect(TokenLParen) {
		p.synchronize()
		return nil
	}
	cond := p.parseExpression()
	if cond == nil {
		p.synchronize()
		return nil
	}
	if !p.expect(TokenRParen) {
		p.synchronize()
		return nil
	}

	then := p.parseBlock()
	if then == nil {
		return nil
	}

	stmt := &IfStmt{Cond: cond, Then: then}
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		if p.curTokenIs(TokenIf) {
			stmt.Else = p.parseIf()
		} else {
			stmt.Else = p.parseBlock()
		}
	}

	stmt.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return stmt
}

// parseWhile parses: while ( expr ) block
func (p *Parser) parseWhile() Stmt {
	startPos := p.curToken.Pos
	p.nextToken() // consume "while"

	if !p.expect(TokenLParen) {
		p.synchronize()
		return nil
	}
	cond := p.parseExpression()
	if cond == nil {
		p.synchronize()
		return nil
	}
	if !p.expect(TokenRParen) {
		p.synchronize()
		return nil
	}

	body := p.parseBlock()
	if body == nil {
		return nil
	}

	return &WhileStmt{
		SpanVal: MakeSpan(startPos, p.curToken.Pos),
		Cond:    cond,
		Body:    body,
	}
}

// parseReturn parses: return expr? ;
func (p *Parser) parseReturn() Stmt {
	startPos := p.curToken.Pos
	p.nextToken() // consume "return"

	stmt := &ReturnStmt{}
	if !p.curTokenIs(TokenSemicolon) {
		stmt.Value = p.parseExpression()
		if stmt.Value == nil {
			p.synchronize()
			return nil
		}
	}
	if !p.expect(TokenSemicolon) {
		p.synchronize()
		return nil
	}
	stmt.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return stmt
}

// parseHalt parses: halt ;
func (p *Parser) parseHalt() Stmt {
	startPos := p.curToken.Pos
	p.nextToken() // consume "halt"
	if !p.expect(TokenSemicolon) {
		p.synchronize()
		return nil
	}
	return &HaltStmt{SpanVal: MakeSpan(startPos, p.curToken.Pos)}
}

// parseWrite parses: write ( expr ) ; and writeln ( expr? ) ;
func (p *Parser) parseWrite() Stmt {
	startPos := p.curToken.Pos
	newline := p.curTokenIs(TokenWriteLn)
	p.nextToken() // consume write/writeln

	if !p.expect(TokenLParen) {
		p.synchronize()
		return nil
	}

	stmt := &WriteStmt{Newline: newline}
	if !p.curTokenIs(TokenRParen) {
		stmt.Arg = p.parseExpression()
		if stmt.Arg == nil {
			p.synchronize()
			return nil
		}
	} else if !newline {
		p.errorf("write requires an argument")
	}

	if !p.expect(TokenRParen) {
		p.synchronize()
		return nil
	}
	if !p.expect(TokenSemicolon) {
		p.synchronize()
		return nil
	}
	stmt.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return stmt
}

// parseExprStmt parses: expr ;
func (p *Parser) parseExprStmt() Stmt {
	startPos := p.curToken.Pos
	expr := p.parseExpression()
	if expr == nil {
		p.synchronize()
		return nil
	}
	if !p.expect(TokenSemicolon) {
		p.synchronize()
		return nil
	}
	return &ExprStmt{
		SpanVal: MakeSpan(startPos, p.curToken.Pos),
		Expr:    expr,
	}
}

// ---------------------------------------------------------------------------
// Expression parsing (precedence climbing)
// ---------------------------------------------------------------------------

// Precedence, low to high: || < && < comparison < additive <
// multiplicative < power < unary < postfix.

// parseExpression parses a full expression.
func (p *Parser) parseExpression() Expr {
	if !p.enterNesting() {
		return nil
	}
	defer p.leaveNesting()
	return p.parseOr()
}

func (p *Parser) parseOr() Expr {
	left := p.parseAnd()
	if left == nil {
		return nil
	}
	for p.curTokenIs(TokenOr) {
		op := p.curToken.Type
		p.nextToken()
		right := p.parseAnd()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			SpanVal: MakeSpan(left.Span().Start, right.Span().End),
			Op:      op, Left: left, Right: right,
		}
	}
	return left
}

func (p *Parser) parseAnd() Expr {
	left := p.parseComparison()
	if left == nil {
		return nil
	}
	for p.curTokenIs(TokenAnd) {
		op := p.curToken.Type
		p.nextToken()
		right := p.parseComparison()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			SpanVal: MakeSpan(left.Span().Start, right.Span().End),
			Op:      op, Left: left, Right: right,
		}
	}
	return left
}

func (p *Parser) parseComparison() Expr {
	left := p.parseAdditive()
	if left == nil {
		return nil
	}
	for p.curTokenIs(TokenEq) || p.curTokenIs(TokenNeq) ||
		p.curTokenIs(TokenLess) || p.curTokenIs(TokenLeq) ||
		p.curTokenIs(TokenGreater) || p.curTokenIs(TokenGeq) {
		op := p.curToken.Type
		p.nextToken()
		right := p.parseAdditive()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			SpanVal: MakeSpan(left.Span().Start, right.Span().End),
			Op:      op, Left: left, Right: right,
		}
	}
	return left
}

func (p *Parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	if left == nil {
		return nil
	}
	for p.curTokenIs(TokenPlus) || p.curTokenIs(TokenMinus) {
		op := p.curToken.Type
		p.nextToken()
		right := p.parseMultiplicative()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			SpanVal: MakeSpan(left.Span().Start, right.Span().End),
			Op:      op, Left: left, Right: right,
		}
	}
	return left
}

func (p *Parser) parseMultiplicative() Expr {
	left := p.parsePower()
	if left == nil {
		return nil
	}
	for p.curTokenIs(TokenStar) || p.curTokenIs(TokenSlash) || p.curTokenIs(TokenPercent) {
		op := p.curToken.Type
		p.nextToken()
		right := p.parsePower()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			SpanVal: MakeSpan(left.Span().Start, right.Span().End),
			Op:      op, Left: left, Right: right,
		}
	}
	return left
}

// parsePower parses ** (right-associative).
func (p *Parser) parsePower() Expr {
	left := p.parseUnary()
	if left == nil {
		return nil
	}
	if p.curTokenIs(TokenPower) {
		p.nextToken()
		right := p.parsePower()
		if right == nil {
			return nil
		}
		return &BinaryExpr{
			SpanVal: MakeSpan(left.Span().Start, right.Span().End),
			Op:      TokenPower, Left: left, Right: right,
		}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if !p.enterNesting() {
		return nil
	}
	defer p.leaveNesting()

	if p.curTokenIs(TokenMinus) || p.curTokenIs(TokenBang) {
		pos := p.curToken.Pos
		op := p.curToken.Type
		p.nextToken()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &UnaryExpr{
			SpanVal: MakeSpan(pos, operand.Span().End),
			Op:      op,
			Operand: operand,
		}
	}
	return p.parsePostfix()
}

// parsePostfix parses method-call and field-access chains on a primary.
func (p *Parser) parsePostfix() Expr {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}

	for p.curTokenIs(TokenDot) {
		p.nextToken() // consume .
		if !p.curTokenIs(TokenIdent) {
			p.errorf("expected method name after '.', got %s", p.curToken.Type)
			return nil
		}
		name := p.curToken.Literal
		p.nextToken()

		if p.curTokenIs(TokenLParen) {
			args, ok := p.parseCallArgs()
			if !ok {
				return nil
			}
			expr = &MethodCallExpr{
				SpanVal:  MakeSpan(expr.Span().Start, p.curToken.Pos),
				Receiver: expr,
				Method:   name,
				Args:     args,
			}
		} else {
			expr = &FieldAccessExpr{
				SpanVal:  MakeSpan(expr.Span().Start, p.curToken.Pos),
				Receiver: expr,
				Name:     name,
			}
		}
	}
	return expr
}

// parseCallArgs parses: ( expr ("," expr)* ). The bool result is false
// when an argument failed to parse.
func (p *Parser) parseCallArgs() ([]Expr, bool) {
	p.nextToken() // consume (

	var args []Expr
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		arg := p.parseExpression()
		if arg == nil {
			return nil, false
		}
		args = append(args, arg)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		} else {
			break
		}
	}
	p.expect(TokenRParen)
	return args, true
}

// parsePrimary parses literals, identifiers, builtin calls, new
// expressions, and parenthesized expressions.
func (p *Parser) parsePrimary() Expr {
	switch p.curToken.Type {
	case TokenInt:
		return p.parseIntLit()

	case TokenString:
		lit := &StringLit{
			SpanVal: MakeSpan(p.curToken.Pos, p.peekToken.Pos),
			Value:   p.curToken.Literal,
		}
		p.nextToken()
		return lit

	case TokenChar:
		lit := &IntLit{
			SpanVal: MakeSpan(p.curToken.Pos, p.peekToken.Pos),
			Value:   int64([]rune(p.curToken.Literal)[0]),
		}
		p.nextToken()
		return lit

	case TokenNew:
		return p.parseNew()

	case TokenIdent:
		if IsBuiltinFunc(p.curToken.Literal) && p.peekTokenIs(TokenLParen) {
			return p.parseBuiltinCall()
		}
		ident := &Ident{
			SpanVal: MakeSpan(p.curToken.Pos, p.peekToken.Pos),
			Name:    p.curToken.Literal,
		}
		p.nextToken()
		return ident

	case TokenLParen:
		p.nextToken() // consume (
		expr := p.parseExpression()
		if expr == nil {
			return nil
		}
		p.expect(TokenRParen)
		return expr

	default:
		p.errorf("unexpected token: %s", p.curToken.Type)
		return nil
	}
}

func (p *Parser) parseIntLit() Expr {
	pos := p.curToken.Pos
	value, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		p.errorf("invalid integer: %s", p.curToken.Literal)
		value = 0
	}
	p.nextToken()
	return &IntLit{
		SpanVal: MakeSpan(pos, p.curToken.Pos),
		Value:   value,
	}
}

// parseNew parses: new ClassName ( )
func (p *Parser) parseNew() Expr {
	startPos := p.curToken.Pos
	p.nextToken() // consume "new"

	if !p.curTokenIs(TokenIdent) {
		p.errorf("expected class name after 'new', got %s", p.curToken.Type)
		return nil
	}
	name := p.curToken.Literal
	p.nextToken()

	if !p.expect(TokenLParen) {
		return nil
	}
	if !p.curTokenIs(TokenRParen) {
		p.errorf("constructor arguments are not supported")
		for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
			p.nextToken()
		}
	}
	p.expect(TokenRParen)

	return &NewExpr{
		SpanVal:   MakeSpan(startPos, p.curToken.Pos),
		ClassName: name,
	}
}

// parseBuiltinCall parses: builtin ( args )
func (p *Parser) parseBuiltinCall() Expr {
	startPos := p.curToken.Pos
	name := p.curToken.Literal
	p.nextToken() // consume name

	args, ok := p.parseCallArgs()
	if !ok {
		return nil
	}
	return &BuiltinCallExpr{
		SpanVal: MakeSpan(startPos, p.curToken.Pos),
		Name:    name,
		Args:    args,
	}
}

// ---------------------------------------------------------------------------
// Convenience entry points
// ---------------------------------------------------------------------------

// Parse parses a complete program, returning an error when the source
// has problems.
func Parse(source string) (*Program, error) {
	p := NewParser(source)
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		return nil, fmt.Errorf("parse errors: %v", p.Errors())
	}
	return prog, nil
}

// ParseExpressionString parses a single expression, for tests and tools.
func ParseExpressionString(source string) (Expr, error) {
	p := NewParser(source)
	expr := p.parseExpression()
	if len(p.Errors()) > 0 {
		return nil, fmt.Errorf("parse errors: %v", p.Errors())
	}
	if expr == nil {
		return nil, fmt.Errorf("no expression parsed")
	}
	return expr, nil
}
