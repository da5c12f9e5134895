package colgraph

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// --------------------------------------------------------------------------
// Cypher Lexer: tokenises statement text into a stream of tokens.
// --------------------------------------------------------------------------

// TokenKind identifies the type of a lexer token.
type TokenKind int

const (
	// Special
	tokEOF TokenKind = iota

	// Literals
	tokIdent  // unquoted or `quoted` identifier
	tokString // 'Alice' or "Alice"
	tokInt    // 42
	tokFloat  // 3.14

	// Keywords (case-insensitive)
	tokMatch
	tokWhere
	tokReturn
	tokOrder
	tokBy
	tokSkip
	tokLimit
	tokAnd
	tokOr
	tokNot
	tokIs
	tokAs
	tokAsc
	tokDesc
	tokTrue
	tokFalse
	tokNull
	tokCreate
	tokCopy

	// Operators
	tokEq  // =
	tokNeq // <>
	tokLt  // <
	tokGt  // >
	tokLte // <=
	tokGte // >=

	// Punctuation
	tokLParen    // (
	tokRParen    // )
	tokLBracket  // [
	tokRBracket  // ]
	tokLBrace    // {
	tokRBrace    // }
	tokColon     // :
	tokSemicolon // ;
	tokDot       // .
	tokComma     // ,
	tokStar      // *
	tokDash      // -
	tokArrow     // ->
	tokLArrow    // <-
	tokParam     // $paramName
)

// Token is a single lexer token with its kind, literal text, and position.
type Token struct {
	Kind TokenKind
	Text string // raw text of the token
	Pos  int    // byte offset in the input
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d", tokenKindName(t.Kind), t.Text, t.Pos)
}

var tokenNames = map[TokenKind]string{
	tokEOF:       "end of input",
	tokIdent:     "identifier",
	tokString:    "string",
	tokInt:       "integer",
	tokFloat:     "float",
	tokMatch:     "MATCH",
	tokWhere:     "WHERE",
	tokReturn:    "RETURN",
	tokOrder:     "ORDER",
	tokBy:        "BY",
	tokSkip:      "SKIP",
	tokLimit:     "LIMIT",
	tokAnd:       "AND",
	tokOr:        "OR",
	tokNot:       "NOT",
	tokIs:        "IS",
	tokAs:        "AS",
	tokAsc:       "ASC",
	tokDesc:      "DESC",
	tokTrue:      "TRUE",
	tokFalse:     "FALSE",
	tokNull:      "NULL",
	tokCreate:    "CREATE",
	tokCopy:      "COPY",
	tokEq:        "=",
	tokNeq:       "<>",
	tokLt:        "<",
	tokGt:        ">",
	tokLte:       "<=",
	tokGte:       ">=",
	tokLParen:    "(",
	tokRParen:    ")",
	tokLBracket:  "[",
	tokRBracket:  "]",
	tokLBrace:    "{",
	tokRBrace:    "}",
	tokColon:     ":",
	tokSemicolon: ";",
	tokDot:       ".",
	tokComma:     ",",
	tokStar:      "*",
	tokDash:      "-",
	tokArrow:     "->",
	tokLArrow:    "<-",
	tokParam:     "parameter",
}

// tokenKindName returns a human-readable name for a token kind.
func tokenKindName(k TokenKind) string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return "???"
}

// keywords maps uppercase keyword text to token kind. Words that only have
// meaning inside DDL (TABLE, NODE, REL, FROM, TO, PRIMARY, KEY, IF, EXISTS)
// stay identifiers so they remain usable as names elsewhere.
var keywords = map[string]TokenKind{
	"MATCH":  tokMatch,
	"WHERE":  tokWhere,
	"RETURN": tokReturn,
	"ORDER":  tokOrder,
	"BY":     tokBy,
	"SKIP":   tokSkip,
	"LIMIT":  tokLimit,
	"AND":    tokAnd,
	"OR":     tokOr,
	"NOT":    tokNot,
	"IS":     tokIs,
	"AS":     tokAs,
	"ASC":    tokAsc,
	"DESC":   tokDesc,
	"TRUE":   tokTrue,
	"FALSE":  tokFalse,
	"NULL":   tokNull,
	"CREATE": tokCreate,
	"COPY":   tokCopy,
}

// lexer holds the state for tokenising statement text.
type lexer struct {
	input  string
	pos    int
	tokens []Token
}

// tokenize converts statement text into a slice of tokens ending in tokEOF.
func tokenize(input string) ([]Token, error) {
	l := &lexer{input: input}
	if err := l.scan(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) scan() error {
	for l.pos < len(l.input) {
		if err := l.skipSpaceAndComments(); err != nil {
			return err
		}
		if l.pos >= len(l.input) {
			break
		}

		ch := l.input[l.pos]

		switch {
		case ch == '(':
			l.emit(tokLParen, "(")
		case ch == ')':
			l.emit(tokRParen, ")")
		case ch == '[':
			l.emit(tokLBracket, "[")
		case ch == ']':
			l.emit(tokRBracket, "]")
		case ch == '{':
			l.emit(tokLBrace, "{")
		case ch == '}':
			l.emit(tokRBrace, "}")
		case ch == ':':
			l.emit(tokColon, ":")
		case ch == ';':
			l.emit(tokSemicolon, ";")
		case ch == ',':
			l.emit(tokComma, ",")
		case ch == '*':
			l.emit(tokStar, "*")
		case ch == '.':
			l.emit(tokDot, ".")

		case ch == '-':
			if l.peek(1) == '>' {
				l.emitN(tokArrow, "->", 2)
			} else {
				l.emit(tokDash, "-")
			}

		case ch == '<':
			switch l.peek(1) {
			case '-':
				l.emitN(tokLArrow, "<-", 2)
			case '=':
				l.emitN(tokLte, "<=", 2)
			case '>':
				l.emitN(tokNeq, "<>", 2)
			default:
				l.emit(tokLt, "<")
			}

		case ch == '>':
			if l.peek(1) == '=' {
				l.emitN(tokGte, ">=", 2)
			} else {
				l.emit(tokGt, ">")
			}

		case ch == '!':
			if l.peek(1) != '=' {
				return syntaxErrorf("unexpected character '!' at position %d", l.pos)
			}
			l.emitN(tokNeq, "!=", 2)

		case ch == '=':
			l.emit(tokEq, "=")

		case ch == '\'' || ch == '"':
			if err := l.scanString(ch); err != nil {
				return err
			}

		case ch == '`':
			if err := l.scanQuotedIdent(); err != nil {
				return err
			}

		case isDigit(ch):
			l.scanNumber()

		case ch == '$':
			if err := l.scanParam(); err != nil {
				return err
			}

		case isIdentStart(l.runeAt(l.pos)):
			l.scanIdentOrKeyword()

		default:
			return syntaxErrorf("unexpected character %q at position %d", l.runeAt(l.pos), l.pos)
		}
	}

	l.tokens = append(l.tokens, Token{Kind: tokEOF, Text: "", Pos: l.pos})
	return nil
}

// emit adds a single-char token and advances.
func (l *lexer) emit(kind TokenKind, text string) {
	l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Pos: l.pos})
	l.pos++
}

// emitN adds a multi-char token and advances by n.
func (l *lexer) emitN(kind TokenKind, text string, n int) {
	l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Pos: l.pos})
	l.pos += n
}

// peek returns the byte at pos+offset, or 0 if out of bounds.
func (l *lexer) peek(offset int) byte {
	idx := l.pos + offset
	if idx >= len(l.input) {
		return 0
	}
	return l.input[idx]
}

func (l *lexer) runeAt(i int) rune {
	r, _ := utf8.DecodeRuneInString(l.input[i:])
	return r
}

// skipSpaceAndComments skips whitespace, // line comments and /* */ blocks.
func (l *lexer) skipSpaceAndComments() error {
	for l.pos < len(l.input) {
		switch {
		case isWhitespace(l.input[l.pos]):
			l.pos++
		case l.input[l.pos] == '/' && l.peek(1) == '/':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		case l.input[l.pos] == '/' && l.peek(1) == '*':
			end := strings.Index(l.input[l.pos+2:], "*/")
			if end < 0 {
				return syntaxErrorf("unterminated comment starting at position %d", l.pos)
			}
			l.pos += end + 4
		default:
			return nil
		}
	}
	return nil
}

// scanString scans a single-quoted or double-quoted string literal.
func (l *lexer) scanString(quote byte) error {
	start := l.pos
	l.pos++ // skip opening quote
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			switch l.input[l.pos] {
			case '\\':
				b.WriteByte('\\')
			case '\'':
				b.WriteByte('\'')
			case '"':
				b.WriteByte('"')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte('\\')
				b.WriteByte(l.input[l.pos])
			}
			l.pos++
			continue
		}
		if ch == quote {
			l.pos++ // skip closing quote
			l.tokens = append(l.tokens, Token{Kind: tokString, Text: b.String(), Pos: start})
			return nil
		}
		b.WriteByte(ch)
		l.pos++
	}
	return syntaxErrorf("unterminated string starting at position %d", start)
}

// scanQuotedIdent scans a `backtick quoted` identifier.
func (l *lexer) scanQuotedIdent() error {
	start := l.pos
	end := strings.IndexByte(l.input[start+1:], '`')
	if end < 0 {
		return syntaxErrorf("unterminated identifier starting at position %d", start)
	}
	l.tokens = append(l.tokens, Token{Kind: tokIdent, Text: l.input[start+1 : start+1+end], Pos: start})
	l.pos = start + end + 2
	return nil
}

// scanNumber scans an integer or float literal.
func (l *lexer) scanNumber() {
	start := l.pos
	isFloat := false
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '.' && !isFloat && isDigit(l.peek(1)) {
			isFloat = true
			l.pos++
			continue
		}
		if ch == '_' && isDigit(l.peek(1)) {
			l.pos++
			continue
		}
		if !isDigit(ch) {
			break
		}
		l.pos++
	}
	text := strings.ReplaceAll(l.input[start:l.pos], "_", "")
	if isFloat {
		l.tokens = append(l.tokens, Token{Kind: tokFloat, Text: text, Pos: start})
	} else {
		l.tokens = append(l.tokens, Token{Kind: tokInt, Text: text, Pos: start})
	}
}

// scanIdentOrKeyword scans an identifier and promotes it to a keyword if it matches.
func (l *lexer) scanIdentOrKeyword() {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
	}
	text := l.input[start:l.pos]
	if kind, ok := keywords[strings.ToUpper(text)]; ok {
		l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Pos: start})
	} else {
		l.tokens = append(l.tokens, Token{Kind: tokIdent, Text: text, Pos: start})
	}
}

// scanParam scans a parameter reference: $name
func (l *lexer) scanParam() error {
	start := l.pos
	l.pos++ // skip '$'
	for l.pos < len(l.input) && isIdentPart(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos == start+1 {
		return syntaxErrorf("expected parameter name after '$' at position %d", start)
	}
	// Text stores just the name without the '$' prefix.
	l.tokens = append(l.tokens, Token{Kind: tokParam, Text: l.input[start+1 : l.pos], Pos: start})
	return nil
}

// Character classification helpers.

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
