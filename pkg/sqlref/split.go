package sqlref

import "strings"

// SplitTopLevel splits s on sep, ignoring separators nested inside
// parentheses or quoted text. Items are trimmed; an empty input yields nil.
//
//	SplitTopLevel("a, f(b,c), d", ',') // ["a", "f(b,c)", "d"]
func SplitTopLevel(s string, sep byte) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '[':
			quote = ']'
		case ch == '(':
			depth++
		case ch == ')':
			if depth > 0 {
				depth--
			}
		case ch == sep && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// SplitQualified splits a multi-part identifier on its first dot.
// "sales.orders" yields ("sales", "orders"); "orders" yields ("", "orders").
func SplitQualified(s string) (qualifier, name string) {
	q, n, ok := strings.Cut(s, ".")
	if !ok {
		return "", s
	}
	return q, n
}

// splitTokens splits toks on sep tokens at parenthesis depth zero.
func splitTokens(toks []Token, sep TokenType) [][]Token {
	if len(toks) == 0 {
		return nil
	}
	var parts [][]Token
	depth := 0
	start := 0
	for i, t := range toks {
		switch t.Type {
		case TOKEN_LPAREN:
			depth++
		case TOKEN_RPAREN:
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, toks[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, toks[start:])
}

// matchParen returns the index of the parenthesis closing toks[open].
// Balance is checked before parsing, so a match always exists.
func matchParen(toks []Token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch toks[i].Type {
		case TOKEN_LPAREN:
			depth++
		case TOKEN_RPAREN:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(toks) - 1
}

// render turns tokens back into compact SQL text.
func render(toks []Token) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 && needsSpace(toks[i-1], t) {
			b.WriteByte(' ')
		}
		switch t.Type {
		case TOKEN_STRING:
			b.WriteByte('\'')
			b.WriteString(strings.ReplaceAll(t.Literal, "'", "''"))
			b.WriteByte('\'')
		default:
			b.WriteString(t.Literal)
		}
	}
	return b.String()
}

func needsSpace(prev, cur Token) bool {
	switch {
	case prev.Type == TOKEN_DOT || prev.Type == TOKEN_LPAREN:
		return false
	case cur.Type == TOKEN_DOT || cur.Type == TOKEN_RPAREN || cur.Type == TOKEN_COMMA:
		return false
	case cur.Type == TOKEN_LPAREN:
		// function call: name(
		return !(prev.Type == TOKEN_IDENT || prev.Type == TOKEN_LEFT || prev.Type == TOKEN_RIGHT)
	}
	return true
}
