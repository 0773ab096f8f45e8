package sqlref

import "strings"

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)
	err     *ParseError
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// Err returns the first lexical error, such as an unterminated literal.
func (l *Lexer) Err() *ParseError {
	return l.err
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// currentPos returns the current position.
func (l *Lexer) currentPos() Position {
	return Position{
		Line:   l.line,
		Column: l.col,
		Offset: l.pos,
	}
}

// atEOF distinguishes a real NUL byte from end of input.
func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.currentPos()

	if l.atEOF() {
		return Token{Type: TOKEN_EOF, Pos: pos}
	}

	var tok Token
	switch l.ch {
	case '*':
		tok = Token{Type: TOKEN_STAR, Literal: "*", Pos: pos}
	case '=':
		tok = Token{Type: TOKEN_EQ, Literal: "=", Pos: pos}
	case '+', '-', '/', '%', '^', '&', '~':
		tok = Token{Type: TOKEN_OP, Literal: string(l.ch), Pos: pos}
	case '<':
		switch l.peekChar() {
		case '=', '>':
			l.readChar()
			tok = Token{Type: TOKEN_OP, Literal: "<" + string(l.ch), Pos: pos}
		default:
			tok = Token{Type: TOKEN_OP, Literal: "<", Pos: pos}
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TOKEN_OP, Literal: ">=", Pos: pos}
		} else {
			tok = Token{Type: TOKEN_OP, Literal: ">", Pos: pos}
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TOKEN_OP, Literal: "!=", Pos: pos}
		} else {
			tok = Token{Type: TOKEN_ILLEGAL, Literal: "!", Pos: pos}
		}
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			tok = Token{Type: TOKEN_OP, Literal: "||", Pos: pos}
		} else {
			tok = Token{Type: TOKEN_OP, Literal: "|", Pos: pos}
		}
	case ':':
		if l.peekChar() == ':' {
			l.readChar()
			tok = Token{Type: TOKEN_OP, Literal: "::", Pos: pos}
		} else if isLetter(l.peekChar()) {
			l.readChar()
			return Token{Type: TOKEN_PARAM, Literal: ":" + l.readIdentifier(), Pos: pos}
		} else {
			tok = Token{Type: TOKEN_ILLEGAL, Literal: ":", Pos: pos}
		}
	case '?':
		tok = Token{Type: TOKEN_PARAM, Literal: "?", Pos: pos}
	case '$':
		if isDigit(l.peekChar()) {
			l.readChar()
			return Token{Type: TOKEN_PARAM, Literal: "$" + l.readNumber(), Pos: pos}
		}
		tok = Token{Type: TOKEN_ILLEGAL, Literal: "$", Pos: pos}
	case '@':
		l.readChar()
		return Token{Type: TOKEN_PARAM, Literal: "@" + l.readIdentifier(), Pos: pos}
	case '.':
		tok = Token{Type: TOKEN_DOT, Literal: ".", Pos: pos}
	case ',':
		tok = Token{Type: TOKEN_COMMA, Literal: ",", Pos: pos}
	case ';':
		tok = Token{Type: TOKEN_SEMICOLON, Literal: ";", Pos: pos}
	case '(':
		tok = Token{Type: TOKEN_LPAREN, Literal: "(", Pos: pos}
	case ')':
		tok = Token{Type: TOKEN_RPAREN, Literal: ")", Pos: pos}
	case '\'':
		lit, ok := l.readDelimited('\'')
		if !ok {
			l.fail(pos, "unterminated string literal")
		}
		return Token{Type: TOKEN_STRING, Literal: lit, Pos: pos}
	case '"', '`':
		lit, ok := l.readDelimited(l.ch)
		if !ok {
			l.fail(pos, "unterminated quoted identifier")
		}
		return Token{Type: TOKEN_IDENT, Literal: lit, Quoted: true, Pos: pos}
	case '[':
		lit, ok := l.readDelimited(']')
		if !ok {
			l.fail(pos, "unterminated bracketed identifier")
		}
		return Token{Type: TOKEN_IDENT, Literal: lit, Quoted: true, Pos: pos}
	default:
		if isLetter(l.ch) || l.ch == '_' || l.ch == '#' {
			lit := l.readIdentifier()
			return Token{Type: LookupIdent(lit), Literal: lit, Pos: pos}
		} else if isDigit(l.ch) {
			return Token{Type: TOKEN_NUMBER, Literal: l.readNumber(), Pos: pos}
		}
		tok = Token{Type: TOKEN_ILLEGAL, Literal: string(l.ch), Pos: pos}
	}

	l.readChar()
	return tok
}

// fail records the first lexical error.
func (l *Lexer) fail(pos Position, msg string) {
	if l.err != nil {
		return
	}
	l.err = &ParseError{
		Fragment: fragmentAt(l.input, pos.Offset),
		Pos:      pos,
		Message:  msg,
	}
}

// skipWhitespaceAndComments skips whitespace and comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}

		// Line comment (-- ...)
		if l.ch == '-' && l.peekChar() == '-' {
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
			continue
		}

		// Block comment (/* ... */)
		if l.ch == '/' && l.peekChar() == '*' {
			l.skipBlockComment()
			continue
		}

		break
	}
}

// skipBlockComment skips a block comment.
func (l *Lexer) skipBlockComment() {
	pos := l.currentPos()
	l.readChar() // skip '/'
	l.readChar() // skip '*'

	for {
		if l.atEOF() {
			l.fail(pos, "unterminated block comment")
			return
		}
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar() // skip '*'
			l.readChar() // skip '/'
			return
		}
		l.readChar()
	}
}

// readDelimited reads a literal up to the closing delimiter. A doubled closing
// character stands for one literal occurrence. The bool is false when input
// ends before the closing delimiter.
func (l *Lexer) readDelimited(closing byte) (string, bool) {
	l.readChar() // skip opening delimiter

	var result strings.Builder
	for {
		if l.atEOF() {
			return result.String(), false
		}
		if l.ch == closing {
			if l.peekChar() == closing {
				result.WriteByte(closing)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // skip closing delimiter
			return result.String(), true
		}
		result.WriteByte(l.ch)
		l.readChar()
	}
}

// readIdentifier reads an unquoted identifier.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '#' || l.ch == '$' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads a numeric literal (integer, decimal, or scientific).
func (l *Lexer) readNumber() string {
	start := l.pos

	for isDigit(l.ch) {
		l.readChar()
	}

	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar() // skip '.'
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	// Exponent part (e.g., 1e10, 1E-5)
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			l.readChar() // skip 'e' or 'E'
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	return l.input[start:l.pos]
}

// isLetter returns true if ch is an ASCII letter or part of a multi-byte rune.
func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}

// isDigit returns true if ch is a digit.
func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// Tokenize returns all tokens from the input, excluding the final EOF token.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == TOKEN_EOF {
			break
		}
		tokens = append(tokens, tok)
	}
	if err := l.Err(); err != nil {
		return tokens, err
	}
	return tokens, nil
}
