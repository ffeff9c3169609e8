package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

// Lexer tokenizes source code.
type Lexer struct {
	input     string
	pos       int  // current position in input
	readPos   int  // reading position (after current char)
	ch        rune // current character
	line      int  // current line (1-based)
	lineStart int  // offset of current line start
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
	} else {
		r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
		l.ch = r
		l.pos = l.readPos
		l.readPos += size

		if r == '\n' {
			l.line++
			l.lineStart = l.readPos
		}
	}
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position. The column is derived from
// the line start so it names the character itself, not the one after.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.pos - l.lineStart + 1,
	}
}

// twoChar consumes two characters and returns a two-character token.
func (l *Lexer) twoChar(t TokenType, pos Position) Token {
	lit := string(l.ch) + string(l.peekChar())
	l.readChar()
	l.readChar()
	return Token{Type: t, Literal: lit, Pos: pos}
}

// oneChar consumes one character and returns a single-character token.
func (l *Lexer) oneChar(t TokenType, pos Position) Token {
	lit := string(l.ch)
	l.readChar()
	return Token{Type: t, Literal: lit, Pos: pos}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Literal: "", Pos: pos}

	case l.ch == '(':
		return l.oneChar(TokenLParen, pos)
	case l.ch == ')':
		return l.oneChar(TokenRParen, pos)
	case l.ch == '{':
		return l.oneChar(TokenLBrace, pos)
	case l.ch == '}':
		return l.oneChar(TokenRBrace, pos)
	case l.ch == ',':
		return l.oneChar(TokenComma, pos)
	case l.ch == ':':
		return l.oneChar(TokenColon, pos)
	case l.ch == ';':
		return l.oneChar(TokenSemicolon, pos)
	case l.ch == '.':
		return l.oneChar(TokenDot, pos)
	case l.ch == '+':
		return l.oneChar(TokenPlus, pos)
	case l.ch == '-':
		return l.oneChar(TokenMinus, pos)
	case l.ch == '%':
		return l.oneChar(TokenPercent, pos)

	case l.ch == '*':
		if l.peekChar() == '*' {
			return l.twoChar(TokenPower, pos)
		}
		return l.oneChar(TokenStar, pos)

	case l.ch == '/':
		// Comments were consumed above, so this is division.
		return l.oneChar(TokenSlash, pos)

	case l.ch == '=':
		if l.peekChar() == '=' {
			return l.twoChar(TokenEq, pos)
		}
		return l.oneChar(TokenAssign, pos)

	case l.ch == '!':
		if l.peekChar() == '=' {
			return l.twoChar(TokenNeq, pos)
		}
		return l.oneChar(TokenBang, pos)

	case l.ch == '<':
		if l.peekChar() == '=' {
			return l.twoChar(TokenLeq, pos)
		}
		return l.oneChar(TokenLess, pos)

	case l.ch == '>':
		if l.peekChar() == '=' {
			return l.twoChar(TokenGeq, pos)
		}
		return l.oneChar(TokenGreater, pos)

	case l.ch == '&':
		if l.peekChar() == '&' {
			return l.twoChar(TokenAnd, pos)
		}
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}

	case l.ch == '|':
		if l.peekChar() == '|' {
			return l.twoChar(TokenOr, pos)
		}
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}

	case l.ch == '"':
		return l.readString(pos)

	case l.ch == '\'':
		return l.readCharLiteral(pos)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifier(pos)

	default:
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}
	}
}

// skipWhitespaceAndComments skips whitespace, // line comments, and
// /* */ block comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}

		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}

		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar() // consume /
			l.readChar() // consume *
			for l.ch != 0 {
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar() // consume *
					l.readChar() // consume /
					break
				}
				l.readChar()
			}
			continue
		}

		break
	}
}

// readString reads a double-quoted string literal with escapes.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // consume opening "

	var sb strings.Builder
	for l.ch != '"' && l.ch != 0 {
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case 0:
				return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
			default:
				return Token{Type: TokenError, Literal: fmt.Sprintf("unknown escape: \\%c", l.ch), Pos: pos}
			}
			l.readChar()
			continue
		}
		if l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}

	if l.ch != '"' {
		return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
	}
	l.readChar() // consume closing "

	return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
}

// readCharLiteral reads a single-quoted character literal. The token
// literal holds the decoded character; the parser turns it into its
// integer value.
func (l *Lexer) readCharLiteral(pos Position) Token {
	l.readChar() // consume opening '

	if l.ch == 0 {
		return Token{Type: TokenError, Literal: "unterminated character literal", Pos: pos}
	}

	var ch rune
	if l.ch == '\\' {
		l.readChar()
		switch l.ch {
		case 'n':
			ch = '\n'
		case 't':
			ch = '\t'
		case 'r':
			ch = '\r'
		case '0':
			ch = 0
		case '\\':
			ch = '\\'
		case '\'':
			ch = '\''
		default:
			return Token{Type: TokenError, Literal: fmt.Sprintf("unknown escape: \\%c", l.ch), Pos: pos}
		}
		l.readChar()
	} else {
		ch = l.ch
		l.readChar()
	}

	if l.ch != '\'' {
		return Token{Type: TokenError, Literal: "unterminated character literal", Pos: pos}
	}
	l.readChar() // consume closing '

	return Token{Type: TokenChar, Literal: string(ch), Pos: pos}
}

// readNumber reads a decimal integer literal.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	return Token{Type: TokenInt, Literal: l.input[start:l.pos], Pos: pos}
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	return Token{Type: LookupIdent(literal), Literal: literal, Pos: pos}
}

// Helper functions

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns all tokens from the input.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}
