package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals and names
	TokenInt    // 42
	TokenString // "hello"
	TokenChar   // 'a', '\n' (integer-valued)
	TokenIdent  // foo, Counter

	// Keywords
	TokenClass
	TokenVar
	TokenProc
	TokenFunc
	TokenIf
	TokenElse
	TokenWhile
	TokenReturn
	TokenHalt
	TokenWrite
	TokenWriteLn
	TokenNew

	// Operators
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %
	TokenPower   // **
	TokenAssign  // =
	TokenEq      // ==
	TokenNeq     // !=
	TokenLess    // <
	TokenLeq     // <=
	TokenGreater // >
	TokenGeq     // >=
	TokenAnd     // &&
	TokenOr      // ||
	TokenBang    // !

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenColon     // :
	TokenSemicolon // ;
	TokenDot       // .
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenError:     "ERROR",
	TokenInt:       "INT",
	TokenString:    "STRING",
	TokenChar:      "CHAR",
	TokenIdent:     "IDENT",
	TokenClass:     "class",
	TokenVar:       "var",
	TokenProc:      "proc",
	TokenFunc:      "func",
	TokenIf:        "if",
	TokenElse:      "else",
	TokenWhile:     "while",
	TokenReturn:    "return",
	TokenHalt:      "halt",
	TokenWrite:     "write",
	TokenWriteLn:   "writeln",
	TokenNew:       "new",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenStar:      "*",
	TokenSlash:     "/",
	TokenPercent:   "%",
	TokenPower:     "**",
	TokenAssign:    "=",
	TokenEq:        "==",
	TokenNeq:       "!=",
	TokenLess:      "<",
	TokenLeq:       "<=",
	TokenGreater:   ">",
	TokenGeq:       ">=",
	TokenAnd:       "&&",
	TokenOr:        "||",
	TokenBang:      "!",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenComma:     ",",
	TokenColon:     ":",
	TokenSemicolon: ";",
	TokenDot:       ".",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text (decoded for strings and chars)
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var keywords = map[string]TokenType{
	"class":   TokenClass,
	"var":     TokenVar,
	"proc":    TokenProc,
	"func":    TokenFunc,
	"if":      TokenIf,
	"else":    TokenElse,
	"while":   TokenWhile,
	"return":  TokenReturn,
	"halt":    TokenHalt,
	"write":   TokenWrite,
	"writeln": TokenWriteLn,
	"new":     TokenNew,
}

// LookupIdent returns the keyword token type for an identifier, or
// TokenIdent when the name is not reserved. Type names (int, string)
// and builtins (len, str, readint, readchar) are ordinary identifiers;
// the parser gives them meaning by position.
func LookupIdent(name string) TokenType {
	if t, ok := keywords[name]; ok {
		return t
	}
	return TokenIdent
}
