package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `( ) { } , : ; . + - * / %`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenComma, ","},
		{TokenColon, ":"},
		{TokenSemicolon, ";"},
		{TokenDot, "."},
		{TokenPlus, "+"},
		{TokenMinus, "-"},
		{TokenStar, "*"},
		{TokenSlash, "/"},
		{TokenPercent, "%"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerOperators(t *testing.T) {
	input := `** == != <= >= && || = < > !`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenPower, "**"},
		{TokenEq, "=="},
		{TokenNeq, "!="},
		{TokenLeq, "<="},
		{TokenGeq, ">="},
		{TokenAnd, "&&"},
		{TokenOr, "||"},
		{TokenAssign, "="},
		{TokenLess, "<"},
		{TokenGreater, ">"},
		{TokenBang, "!"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerIntegers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"42", "42"},
		{"0", "0"},
		{"1000000", "1000000"},
		{"007", "007"},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Type != TokenInt {
			t.Errorf("Lexer(%q): type = %v, want INT", tc.input, tok.Type)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`"hello world"`, "hello world"},
		{`""`, ""},
		{`"tab\there"`, "tab\there"},
		{`"line\n"`, "line\n"},
		{`"cr\r"`, "cr\r"},
		{`"quote\"inside\""`, `quote"inside"`},
		{`"back\\slash"`, `back\slash`},
		{`"nul\0byte"`, "nul\x00byte"},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%q): type = %v, want STRING", tc.input, tok.Type)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerStringErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated at EOF", `"no closing`},
		{"unterminated at newline", "\"no closing\nx = 1;"},
		{"unknown escape", `"bad \q escape"`},
		{"lone backslash at EOF", `"trailing \`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLexer(tc.input)
			tok := l.NextToken()
			if tok.Type != TokenError {
				t.Errorf("Lexer(%q): type = %v, want ERROR", tc.input, tok.Type)
			}
		})
	}
}

func TestLexerCharLiterals(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`'a'`, "a"},
		{`'Z'`, "Z"},
		{`'0'`, "0"},
		{`' '`, " "},
		{`'\n'`, "\n"},
		{`'\t'`, "\t"},
		{`'\r'`, "\r"},
		{`'\0'`, "\x00"},
		{`'\\'`, `\`},
		{`'\''`, "'"},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Type != TokenChar {
			t.Errorf("Lexer(%q): type = %v, want CHAR", tc.input, tok.Type)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerCharLiteralErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated", `'a`},
		{"empty input after quote", `'`},
		{"two characters", `'ab'`},
		{"unknown escape", `'\q'`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLexer(tc.input)
			tok := l.NextToken()
			if tok.Type != TokenError {
				t.Errorf("Lexer(%q): type = %v, want ERROR", tc.input, tok.Type)
			}
		})
	}
}

func TestLexerKeywords(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
	}{
		{"class", TokenClass},
		{"var", TokenVar},
		{"proc", TokenProc},
		{"func", TokenFunc},
		{"if", TokenIf},
		{"else", TokenElse},
		{"while", TokenWhile},
		{"return", TokenReturn},
		{"halt", TokenHalt},
		{"write", TokenWrite},
		{"writeln", TokenWriteLn},
		{"new", TokenNew},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.input {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.input)
		}
	}
}

func TestLexerIdentifiers(t *testing.T) {
	// Type names and builtin functions are ordinary identifiers; their
	// meaning comes from position, not the lexer.
	tests := []string{
		"foo", "Counter", "x2", "_private", "snake_case",
		"int", "string", "len", "str", "readint", "readchar", "Main",
	}

	for _, input := range tests {
		l := NewLexer(input)
		tok := l.NextToken()
		if tok.Type != TokenIdent {
			t.Errorf("Lexer(%q): type = %v, want IDENT", input, tok.Type)
		}
		if tok.Literal != input {
			t.Errorf("Lexer(%q): literal = %q, want %q", input, tok.Literal, input)
		}
	}
}

func TestLexerComments(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		tokens []struct {
			typ TokenType
			lit string
		}
	}{
		{
			name:  "line comment at start",
			input: "// a comment\nfoo",
			tokens: []struct {
				typ TokenType
				lit string
			}{
				{TokenIdent, "foo"},
				{TokenEOF, ""},
			},
		},
		{
			name:  "line comment after code",
			input: "foo // trailing\nbar",
			tokens: []struct {
				typ TokenType
				lit string
			}{
				{TokenIdent, "foo"},
				{TokenIdent, "bar"},
				{TokenEOF, ""},
			},
		},
		{
			name:  "block comment between tokens",
			input: "foo /* in the middle */ bar",
			tokens: []struct {
				typ TokenType
				lit string
			}{
				{TokenIdent, "foo"},
				{TokenIdent, "bar"},
				{TokenEOF, ""},
			},
		},
		{
			name:  "block comment spanning lines",
			input: "foo /* one\ntwo\nthree */ bar",
			tokens: []struct {
				typ TokenType
				lit string
			}{
				{TokenIdent, "foo"},
				{TokenIdent, "bar"},
				{TokenEOF, ""},
			},
		},
		{
			name:  "unterminated block comment swallows rest",
			input: "foo /* never closed",
			tokens: []struct {
				typ TokenType
				lit string
			}{
				{TokenIdent, "foo"},
				{TokenEOF, ""},
			},
		},
		{
			name:  "division is not a comment",
			input: "a / b",
			tokens: []struct {
				typ TokenType
				lit string
			}{
				{TokenIdent, "a"},
				{TokenSlash, "/"},
				{TokenIdent, "b"},
				{TokenEOF, ""},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLexer(tc.input)
			for i, exp := range tc.tokens {
				tok := l.NextToken()
				if tok.Type != exp.typ {
					t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
				}
				if tok.Literal != exp.lit {
					t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
				}
			}
		})
	}
}

func TestLexerLoneAmpersandAndPipe(t *testing.T) {
	for _, input := range []string{"&", "|", "a & b", "a | b"} {
		l := NewLexer(input)
		sawError := false
		for i := 0; i < 10; i++ {
			tok := l.NextToken()
			if tok.Type == TokenError {
				sawError = true
				break
			}
			if tok.Type == TokenEOF {
				break
			}
		}
		if !sawError {
			t.Errorf("Lexer(%q): expected an ERROR token for the lone character", input)
		}
	}
}

func TestLexerLineTracking(t *testing.T) {
	input := "foo\nbar\nbaz"
	l := NewLexer(input)

	tok := l.NextToken()
	if tok.Pos.Line != 1 {
		t.Errorf("foo should be on line 1, got %d", tok.Pos.Line)
	}

	tok = l.NextToken()
	if tok.Pos.Line != 2 {
		t.Errorf("bar should be on line 2, got %d", tok.Pos.Line)
	}

	tok = l.NextToken()
	if tok.Pos.Line != 3 {
		t.Errorf("baz should be on line 3, got %d", tok.Pos.Line)
	}
}

func TestLexerColumnTracking(t *testing.T) {
	input := "ab cd"
	l := NewLexer(input)

	tok := l.NextToken()
	if tok.Pos.Column != 1 {
		t.Errorf("ab should start at column 1, got %d", tok.Pos.Column)
	}

	tok = l.NextToken()
	if tok.Pos.Column != 4 {
		t.Errorf("cd should start at column 4, got %d", tok.Pos.Column)
	}
}

func TestLexerCompleteMethod(t *testing.T) {
	input := `func add(a: int, b: int): int {
    return a + b;
}`

	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenFunc, "func"},
		{TokenIdent, "add"},
		{TokenLParen, "("},
		{TokenIdent, "a"},
		{TokenColon, ":"},
		{TokenIdent, "int"},
		{TokenComma, ","},
		{TokenIdent, "b"},
		{TokenColon, ":"},
		{TokenIdent, "int"},
		{TokenRParen, ")"},
		{TokenColon, ":"},
		{TokenIdent, "int"},
		{TokenLBrace, "{"},
		{TokenReturn, "return"},
		{TokenIdent, "a"},
		{TokenPlus, "+"},
		{TokenIdent, "b"},
		{TokenSemicolon, ";"},
		{TokenRBrace, "}"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerMethodCallChain(t *testing.T) {
	input := `c.increment().get()`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenIdent, "c"},
		{TokenDot, "."},
		{TokenIdent, "increment"},
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenDot, "."},
		{TokenIdent, "get"},
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
	}
}

func TestTokenize(t *testing.T) {
	input := "x = 42;"
	tokens := Tokenize(input)

	if len(tokens) != 5 { // x, =, 42, ;, EOF
		t.Fatalf("expected 5 tokens, got %d", len(tokens))
	}

	if tokens[0].Type != TokenIdent {
		t.Errorf("token[0] should be identifier")
	}
	if tokens[1].Type != TokenAssign {
		t.Errorf("token[1] should be assign")
	}
	if tokens[2].Type != TokenInt {
		t.Errorf("token[2] should be integer")
	}
	if tokens[3].Type != TokenSemicolon {
		t.Errorf("token[3] should be semicolon")
	}
	if tokens[4].Type != TokenEOF {
		t.Errorf("token[4] should be EOF")
	}
}

func TestTokenizeStopsOnError(t *testing.T) {
	tokens := Tokenize("a @ b")

	last := tokens[len(tokens)-1]
	if last.Type != TokenError {
		t.Errorf("last token type = %v, want ERROR", last.Type)
	}
	for _, tok := range tokens[:len(tokens)-1] {
		if tok.Type == TokenError {
			t.Errorf("error token before the last position")
		}
	}
}
