package colgraph

import (
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Cypher Parser: recursive descent parser that turns a token stream into
// statements.
//
// Supported grammar:
//
//   Script      → Statement ( ';' Statement )* [';']
//   Statement   → CreateNode | CreateRel | Copy | Query
//   CreateNode  → CREATE NODE TABLE [IF NOT EXISTS] ident '(' NodeElem ( ',' NodeElem )* ')'
//   NodeElem    → ident Type [PRIMARY KEY] | PRIMARY KEY '(' ident ')'
//   CreateRel   → CREATE REL TABLE [IF NOT EXISTS] ident '(' FROM ident TO ident ( ',' ident Type )* ')'
//   Copy        → COPY ident FROM STRING [ '(' ident '=' Literal ( ',' ident '=' Literal )* ')' ]
//   Query       → MATCH Pattern [WHERE Expr] RETURN ReturnItems [ORDER BY OrderItems] [SKIP int] [LIMIT int]
//   Pattern     → NodePat [ RelPat NodePat ]
//   NodePat     → '(' [ident] [':' ident] ['{' PropMap '}'] ')'
//   RelPat      → '-[' [ident] [':' ident] ['{' PropMap '}'] ']->'
//               |  '<-[' ... ']-'
//   PropMap     → ident ':' (Literal | $param) ( ',' ident ':' (Literal | $param) )*
//   Expr        → OrExpr
//   OrExpr      → AndExpr ( OR AndExpr )*
//   AndExpr     → NotExpr ( AND NotExpr )*
//   NotExpr     → [NOT] Comparison
//   Comparison  → Primary [ IS [NOT] NULL | ('=' | '<>' | '<' | '>' | '<=' | '>=') Primary ]
//   Primary     → ident '.' ident
//               |  ident '(' ( '*' | Expr ( ',' Expr )* ) ')'
//               |  ident
//               |  $param
//               |  '(' Expr ')'
//               |  Literal
//   Literal     → STRING | ['-'] INT | ['-'] FLOAT | TRUE | FALSE | NULL
//   ReturnItems → ReturnItem ( ',' ReturnItem )*
//   ReturnItem  → Expr [ AS ident ]
//   OrderItems  → OrderItem ( ',' OrderItem )*
//   OrderItem   → Expr [ ASC | DESC ]
// --------------------------------------------------------------------------

// parser holds the state for parsing a token stream.
type parser struct {
	tokens []Token
	pos    int
}

// parseStatement parses exactly one statement, optionally followed by ';'.
func parseStatement(input string) (Statement, error) {
	stmts, err := parseScript(input)
	if err != nil {
		return nil, err
	}
	switch len(stmts) {
	case 0:
		return nil, syntaxErrorf("empty statement")
	case 1:
		return stmts[0], nil
	}
	return nil, syntaxErrorf("expected one statement, got %d", len(stmts))
}

// parseScript parses a ';'-separated list of statements.
func parseScript(input string) ([]Statement, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	var stmts []Statement
	for {
		for p.match(tokSemicolon) {
		}
		if p.is(tokEOF) {
			return stmts, nil
		}
		st, err := p.parseOne()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
		if !p.is(tokSemicolon) && !p.is(tokEOF) {
			return nil, p.unexpected()
		}
	}
}

// ---------------- helpers -------------------------------------------------

// cur returns the current token.
func (p *parser) cur() Token {
	if p.pos >= len(p.tokens) {
		return Token{Kind: tokEOF}
	}
	return p.tokens[p.pos]
}

// advance moves to the next token and returns the consumed one.
func (p *parser) advance() Token {
	t := p.cur()
	p.pos++
	return t
}

// expect consumes a token of the given kind or returns an error.
func (p *parser) expect(kind TokenKind) (Token, error) {
	t := p.cur()
	if t.Kind != kind {
		return t, syntaxErrorf("expected %s but got %s at position %d",
			tokenKindName(kind), describe(t), t.Pos)
	}
	p.pos++
	return t, nil
}

// is checks if the current token matches the given kind.
func (p *parser) is(kind TokenKind) bool {
	return p.cur().Kind == kind
}

// match consumes the current token if it matches the kind, returning true.
func (p *parser) match(kind TokenKind) bool {
	if p.is(kind) {
		p.pos++
		return true
	}
	return false
}

// isWord reports whether the current token is the identifier w
// (case-insensitive). DDL words are not reserved keywords.
func (p *parser) isWord(w string) bool {
	t := p.cur()
	return t.Kind == tokIdent && strings.EqualFold(t.Text, w)
}

func (p *parser) expectWord(w string) error {
	if !p.isWord(w) {
		return syntaxErrorf("expected %s but got %s at position %d", w, describe(p.cur()), p.cur().Pos)
	}
	p.pos++
	return nil
}

func (p *parser) unexpected() error {
	t := p.cur()
	return syntaxErrorf("unexpected %s at position %d", describe(t), t.Pos)
}

func describe(t Token) string {
	switch t.Kind {
	case tokEOF:
		return tokenKindName(t.Kind)
	case tokIdent, tokString, tokInt, tokFloat:
		return tokenKindName(t.Kind) + " " + strconv.Quote(t.Text)
	}
	return strconv.Quote(tokenKindName(t.Kind))
}

func (p *parser) parseOne() (Statement, error) {
	switch p.cur().Kind {
	case tokCreate:
		return p.parseCreate()
	case tokCopy:
		return p.parseCopy()
	case tokMatch:
		return p.parseQuery()
	}
	return nil, p.unexpected()
}

// ---------------- DDL -----------------------------------------------------

func (p *parser) parseCreate() (Statement, error) {
	p.advance() // CREATE
	switch {
	case p.isWord("NODE"):
		p.advance()
		if err := p.expectWord("TABLE"); err != nil {
			return nil, err
		}
		return p.parseCreateNode()
	case p.isWord("REL"):
		p.advance()
		if err := p.expectWord("TABLE"); err != nil {
			return nil, err
		}
		return p.parseCreateRel()
	}
	return nil, syntaxErrorf("expected NODE TABLE or REL TABLE after CREATE at position %d", p.cur().Pos)
}

// parseIfNotExists consumes an optional IF NOT EXISTS.
func (p *parser) parseIfNotExists() (bool, error) {
	if !p.isWord("IF") {
		return false, nil
	}
	p.advance()
	if _, err := p.expect(tokNot); err != nil {
		return false, err
	}
	if err := p.expectWord("EXISTS"); err != nil {
		return false, err
	}
	return true, nil
}

func (p *parser) parseCreateNode() (*CreateNodeTableStmt, error) {
	st := &CreateNodeTableStmt{}
	var err error
	if st.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	st.Name = name.Text
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	for {
		if p.isWord("PRIMARY") {
			p.advance()
			if err := p.expectWord("KEY"); err != nil {
				return nil, err
			}
			if _, err := p.expect(tokLParen); err != nil {
				return nil, err
			}
			col, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen); err != nil {
				return nil, err
			}
			if err := st.setPrimaryKey(col.Text); err != nil {
				return nil, err
			}
		} else {
			col, err := p.parseColumnDef()
			if err != nil {
				return nil, err
			}
			st.Columns = append(st.Columns, col)
			if p.isWord("PRIMARY") {
				p.advance()
				if err := p.expectWord("KEY"); err != nil {
					return nil, err
				}
				if err := st.setPrimaryKey(col.Name); err != nil {
					return nil, err
				}
			}
		}
		if !p.match(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return st, nil
}

func (st *CreateNodeTableStmt) setPrimaryKey(col string) error {
	if st.PrimaryKey != "" {
		return schemaErrorf("node table %q declares more than one primary key", st.Name)
	}
	st.PrimaryKey = col
	return nil
}

func (p *parser) parseCreateRel() (*CreateRelTableStmt, error) {
	st := &CreateRelTableStmt{}
	var err error
	if st.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	st.Name = name.Text
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	if err := p.expectWord("FROM"); err != nil {
		return nil, err
	}
	from, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("TO"); err != nil {
		return nil, err
	}
	to, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	st.From, st.To = from.Text, to.Text
	for p.match(tokComma) {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		st.Columns = append(st.Columns, col)
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return st, nil
}

// parseColumnDef parses: ident TYPE
func (p *parser) parseColumnDef() (Column, error) {
	name, err := p.expect(tokIdent)
	if err != nil {
		return Column{}, err
	}
	typTok, err := p.expect(tokIdent)
	if err != nil {
		return Column{}, syntaxErrorf("expected type for column %q at position %d", name.Text, p.cur().Pos)
	}
	typ, ok := ParseDataType(typTok.Text)
	if !ok {
		return Column{}, schemaErrorf("column %q: unknown type %q", name.Text, typTok.Text)
	}
	return Column{Name: name.Text, Type: typ}, nil
}

// ---------------- COPY ----------------------------------------------------

func (p *parser) parseCopy() (*CopyStmt, error) {
	p.advance() // COPY
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("FROM"); err != nil {
		return nil, err
	}
	path, err := p.expect(tokString)
	if err != nil {
		return nil, err
	}
	st := &CopyStmt{Table: name.Text, Path: path.Text}
	if p.match(tokLParen) {
		for !p.is(tokRParen) {
			key, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokEq); err != nil {
				return nil, err
			}
			val, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			if err := st.setOption(key.Text, val); err != nil {
				return nil, err
			}
			if !p.match(tokComma) {
				break
			}
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (st *CopyStmt) setOption(key string, val any) error {
	switch strings.ToUpper(key) {
	case "HEADER":
		switch v := val.(type) {
		case bool:
			st.Options.Header = v
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return syntaxErrorf("COPY option HEADER expects a boolean, got %q", v)
			}
			st.Options.Header = b
		default:
			return syntaxErrorf("COPY option HEADER expects a boolean")
		}
	case "DELIM", "DELIMITER":
		s, ok := val.(string)
		if !ok || len([]rune(s)) != 1 {
			return syntaxErrorf("COPY option DELIM expects a single character")
		}
		if s == `\t` {
			s = "\t"
		}
		st.Options.Delimiter = []rune(s)[0]
	case "FORMAT":
		s, ok := val.(string)
		if !ok {
			return syntaxErrorf("COPY option FORMAT expects a string")
		}
		st.Options.Format = s
	default:
		return syntaxErrorf("unknown COPY option %q", key)
	}
	return nil
}

// ---------------- query ---------------------------------------------------

func (p *parser) parseQuery() (*CypherQuery, error) {
	q := &CypherQuery{Limit: -1}

	// MATCH
	if _, err := p.expect(tokMatch); err != nil {
		return nil, err
	}
	pat, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	q.Match = MatchClause{Pattern: pat}

	// WHERE (optional)
	if p.match(tokWhere) {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		q.Where = &expr
	}

	// RETURN
	ret, err := p.parseReturnClause()
	if err != nil {
		return nil, err
	}
	q.Return = ret

	// ORDER BY (optional)
	if p.match(tokOrder) {
		if _, err := p.expect(tokBy); err != nil {
			return nil, err
		}
		items, err := p.parseOrderItems()
		if err != nil {
			return nil, err
		}
		q.OrderBy = items
	}

	// SKIP (optional)
	if p.match(tokSkip) {
		n, err := p.parseCount("SKIP")
		if err != nil {
			return nil, err
		}
		q.Skip = n
	}

	// LIMIT (optional)
	if p.match(tokLimit) {
		n, err := p.parseCount("LIMIT")
		if err != nil {
			return nil, err
		}
		q.Limit = n
	}

	return q, nil
}

// parseCount parses the non-negative integer after SKIP or LIMIT.
func (p *parser) parseCount(clause string) (int, error) {
	tok, err := p.expect(tokInt)
	if err != nil {
		return 0, syntaxErrorf("%s requires a non-negative integer at position %d", clause, p.cur().Pos)
	}
	n, err := strconv.Atoi(tok.Text)
	if err != nil {
		return 0, syntaxErrorf("%s value %q out of range", clause, tok.Text)
	}
	return n, nil
}

// ---------------- pattern -------------------------------------------------

func (p *parser) parsePattern() (Pattern, error) {
	pat := Pattern{}

	node, err := p.parseNodePattern()
	if err != nil {
		return pat, err
	}
	pat.Nodes = append(pat.Nodes, node)

	for p.is(tokDash) || p.is(tokLArrow) {
		rel, err := p.parseRelPattern()
		if err != nil {
			return pat, err
		}
		pat.Rels = append(pat.Rels, rel)

		node, err := p.parseNodePattern()
		if err != nil {
			return pat, err
		}
		pat.Nodes = append(pat.Nodes, node)
	}
	if p.is(tokComma) {
		return pat, syntaxErrorf("comma-separated patterns are not supported at position %d", p.cur().Pos)
	}

	return pat, nil
}

// parseNodePattern parses: '(' [ident] [':' label] ['{' propMap '}'] ')'
func (p *parser) parseNodePattern() (NodePattern, error) {
	np := NodePattern{}

	if _, err := p.expect(tokLParen); err != nil {
		return np, err
	}
	if p.is(tokIdent) {
		np.Variable = p.advance().Text
	}
	if p.match(tokColon) {
		label, err := p.expect(tokIdent)
		if err != nil {
			return np, syntaxErrorf("expected table name after ':' at position %d", p.cur().Pos)
		}
		np.Label = label.Text
		if p.is(tokColon) {
			return np, syntaxErrorf("multiple labels are not supported at position %d", p.cur().Pos)
		}
	}
	if p.match(tokLBrace) {
		props, err := p.parsePropMap()
		if err != nil {
			return np, err
		}
		np.Props = props
	}
	if _, err := p.expect(tokRParen); err != nil {
		return np, err
	}
	return np, nil
}

// parsePropMap parses: ident ':' value (',' ident ':' value)* '}'
func (p *parser) parsePropMap() ([]PropFilter, error) {
	var props []PropFilter
	for !p.is(tokRBrace) && !p.is(tokEOF) {
		keyTok, err := p.expect(tokIdent)
		if err != nil {
			return nil, syntaxErrorf("expected property key, got %s", describe(p.cur()))
		}
		if _, err := p.expect(tokColon); err != nil {
			return nil, err
		}
		var val Expression
		if p.is(tokParam) {
			val = paramExpr(p.advance().Text)
		} else {
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			val = litExpr(lit)
		}
		props = append(props, PropFilter{Key: keyTok.Text, Value: val})
		if !p.match(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	return props, nil
}

// parseLiteral parses a literal value: string, [-]int, [-]float, true, false, null.
func (p *parser) parseLiteral() (any, error) {
	neg := p.match(tokDash)
	t := p.cur()
	switch t.Kind {
	case tokInt:
		p.advance()
		text := t.Text
		if neg {
			text = "-" + text
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, syntaxErrorf("invalid integer %q at position %d", text, t.Pos)
		}
		return n, nil
	case tokFloat:
		p.advance()
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, syntaxErrorf("invalid float %q at position %d", t.Text, t.Pos)
		}
		if neg {
			f = -f
		}
		return f, nil
	}
	if neg {
		return nil, syntaxErrorf("expected number after '-' at position %d", t.Pos)
	}
	switch t.Kind {
	case tokString:
		p.advance()
		return t.Text, nil
	case tokTrue:
		p.advance()
		return true, nil
	case tokFalse:
		p.advance()
		return false, nil
	case tokNull:
		p.advance()
		return nil, nil
	}
	return nil, syntaxErrorf("expected literal, got %s at position %d", describe(t), t.Pos)
}

// parseRelPattern parses a relationship pattern:
//
//	-[r:Follows]->   (outgoing)
//	<-[r:Follows]-   (incoming)
func (p *parser) parseRelPattern() (RelPattern, error) {
	rp := RelPattern{Dir: Outgoing}

	leftArrow := p.is(tokLArrow)
	p.advance() // '-' or '<-'

	if _, err := p.expect(tokLBracket); err != nil {
		return rp, err
	}
	if p.is(tokIdent) {
		rp.Variable = p.advance().Text
	}
	if p.match(tokColon) {
		labelTok, err := p.expect(tokIdent)
		if err != nil {
			return rp, syntaxErrorf("expected relationship table after ':' at position %d", p.cur().Pos)
		}
		rp.Label = labelTok.Text
	}
	if p.is(tokStar) {
		return rp, syntaxErrorf("variable-length relationships are not supported at position %d", p.cur().Pos)
	}
	if p.match(tokLBrace) {
		props, err := p.parsePropMap()
		if err != nil {
			return rp, err
		}
		rp.Props = props
	}
	if _, err := p.expect(tokRBracket); err != nil {
		return rp, err
	}

	if leftArrow {
		if _, err := p.expect(tokDash); err != nil {
			return rp, syntaxErrorf("expected '-' to close '<-[...]-' pattern at position %d", p.cur().Pos)
		}
		rp.Dir = Incoming
		return rp, nil
	}
	if p.match(tokArrow) {
		return rp, nil
	}
	if p.is(tokDash) {
		return rp, syntaxErrorf("undirected relationships are not supported at position %d", p.cur().Pos)
	}
	return rp, syntaxErrorf("expected '->' after relationship pattern at position %d", p.cur().Pos)
}

// ---------------- RETURN --------------------------------------------------

func (p *parser) parseReturnClause() (ReturnClause, error) {
	rc := ReturnClause{}

	if _, err := p.expect(tokReturn); err != nil {
		return rc, err
	}
	if p.isWord("DISTINCT") {
		return rc, syntaxErrorf("RETURN DISTINCT is not supported at position %d", p.cur().Pos)
	}
	for {
		item, err := p.parseReturnItem()
		if err != nil {
			return rc, err
		}
		rc.Items = append(rc.Items, item)
		if !p.match(tokComma) {
			break
		}
	}
	return rc, nil
}

func (p *parser) parseReturnItem() (ReturnItem, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return ReturnItem{}, err
	}
	ri := ReturnItem{Expr: expr}
	if p.match(tokAs) {
		aliasTok, err := p.expect(tokIdent)
		if err != nil {
			return ri, syntaxErrorf("expected alias after AS at position %d", p.cur().Pos)
		}
		ri.Alias = aliasTok.Text
	}
	return ri, nil
}

// ---------------- ORDER BY ------------------------------------------------

func (p *parser) parseOrderItems() ([]OrderItem, error) {
	var items []OrderItem
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Expr: expr}
		if p.match(tokDesc) {
			item.Desc = true
		} else {
			p.match(tokAsc)
		}
		items = append(items, item)
		if !p.match(tokComma) {
			break
		}
	}
	return items, nil
}

// ---------------- expressions ---------------------------------------------

// parseExpr → parseOrExpr
func (p *parser) parseExpr() (Expression, error) {
	return p.parseOrExpr()
}

// parseOrExpr → parseAndExpr (OR parseAndExpr)*
func (p *parser) parseOrExpr() (Expression, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return Expression{}, err
	}
	if !p.is(tokOr) {
		return left, nil
	}
	operands := []Expression{left}
	for p.match(tokOr) {
		right, err := p.parseAndExpr()
		if err != nil {
			return Expression{}, err
		}
		operands = append(operands, right)
	}
	return orExpr(operands...), nil
}

// parseAndExpr → parseNotExpr (AND parseNotExpr)*
func (p *parser) parseAndExpr() (Expression, error) {
	left, err := p.parseNotExpr()
	if err != nil {
		return Expression{}, err
	}
	if !p.is(tokAnd) {
		return left, nil
	}
	operands := []Expression{left}
	for p.match(tokAnd) {
		right, err := p.parseNotExpr()
		if err != nil {
			return Expression{}, err
		}
		operands = append(operands, right)
	}
	return andExpr(operands...), nil
}

// parseNotExpr → [NOT] parseNotExpr | parseComparison
func (p *parser) parseNotExpr() (Expression, error) {
	if p.match(tokNot) {
		inner, err := p.parseNotExpr()
		if err != nil {
			return Expression{}, err
		}
		return notExpr(inner), nil
	}
	return p.parseComparison()
}

// parseComparison → parsePrimary [ IS [NOT] NULL | op parsePrimary ]
func (p *parser) parseComparison() (Expression, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return Expression{}, err
	}

	if p.match(tokIs) {
		negate := p.match(tokNot)
		if _, err := p.expect(tokNull); err != nil {
			return Expression{}, err
		}
		return isNullExpr(left, negate), nil
	}

	var op CompOp
	switch p.cur().Kind {
	case tokEq:
		op = OpEq
	case tokNeq:
		op = OpNeq
	case tokLt:
		op = OpLt
	case tokGt:
		op = OpGt
	case tokLte:
		op = OpLte
	case tokGte:
		op = OpGte
	default:
		return left, nil
	}
	p.advance() // consume operator

	right, err := p.parsePrimary()
	if err != nil {
		return Expression{}, err
	}
	return compExpr(left, op, right), nil
}

// parsePrimary parses:
//
//	ident '.' ident    → PropAccess
//	ident '(' args ')' → FuncCall
//	ident              → VarRef
//	$param             → Param
//	'(' expr ')'       → grouping
//	literal            → Literal
func (p *parser) parsePrimary() (Expression, error) {
	t := p.cur()

	switch t.Kind {
	case tokIdent:
		name := t.Text
		p.advance()

		if p.match(tokDot) {
			propTok, err := p.expect(tokIdent)
			if err != nil {
				return Expression{}, syntaxErrorf("expected property name after '.' at position %d", p.cur().Pos)
			}
			return propExpr(name, propTok.Text), nil
		}

		if p.match(tokLParen) {
			var args []Expression
			if p.match(tokStar) {
				args = append(args, Expression{Kind: ExprStar})
			} else if !p.is(tokRParen) {
				for {
					arg, err := p.parseExpr()
					if err != nil {
						return Expression{}, err
					}
					args = append(args, arg)
					if !p.match(tokComma) {
						break
					}
				}
			}
			if _, err := p.expect(tokRParen); err != nil {
				return Expression{}, err
			}
			return funcCallExpr(strings.ToLower(name), args...), nil
		}

		return varRefExpr(name), nil

	case tokParam:
		p.advance()
		return paramExpr(t.Text), nil

	case tokLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return Expression{}, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return Expression{}, err
		}
		return inner, nil
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return Expression{}, syntaxErrorf("unexpected %s at position %d", describe(t), t.Pos)
	}
	return litExpr(lit), nil
}
