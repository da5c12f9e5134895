package colgraph

// --------------------------------------------------------------------------
// Cypher AST: statement and expression types produced by the parser and
// consumed by the binder and executor. ASTs are immutable once parsed and
// are shared between executions through the statement cache.
// --------------------------------------------------------------------------

// Statement is one parsed statement: DDL, COPY, or a read query.
type Statement interface {
	statement()
}

// CreateNodeTableStmt is
//
//	CREATE NODE TABLE [IF NOT EXISTS] Name(col TYPE [PRIMARY KEY], ..., [PRIMARY KEY (col)])
type CreateNodeTableStmt struct {
	Name        string
	Columns     []Column
	PrimaryKey  string
	IfNotExists bool
}

// CreateRelTableStmt is
//
//	CREATE REL TABLE [IF NOT EXISTS] Name(FROM A TO B [, col TYPE]...)
type CreateRelTableStmt struct {
	Name        string
	From        string
	To          string
	Columns     []Column
	IfNotExists bool
}

// CopyStmt is
//
//	COPY Table FROM 'path' [(header=true, delim='|')]
type CopyStmt struct {
	Table   string
	Path    string
	Options CopyOptions
}

// CypherQuery is the top-level AST node for a read query.
//
//	MATCH <pattern> [WHERE <expr>] RETURN <items> [ORDER BY <items>] [SKIP <n>] [LIMIT <n>]
type CypherQuery struct {
	Match   MatchClause
	Where   *Expression // nil when there is no WHERE
	Return  ReturnClause
	OrderBy []OrderItem // nil when there is no ORDER BY
	Skip    int
	Limit   int // -1 means no limit
}

func (*CreateNodeTableStmt) statement() {}
func (*CreateRelTableStmt) statement()  {}
func (*CopyStmt) statement()            {}
func (*CypherQuery) statement()         {}

// MatchClause holds the pattern that follows the MATCH keyword.
type MatchClause struct {
	Pattern Pattern
}

// ---------------------------------------------------------------------------
// Pattern: a node, or node–rel–node.
//
//   (a:Person)-[f:Follows]->(b:Person)
//
// is represented as:
//   Nodes: [a, b]
//   Rels:  [f]        (len = len(Nodes)-1)
// ---------------------------------------------------------------------------

// Pattern is a sequence of node–rel–node.
type Pattern struct {
	Nodes []NodePattern
	Rels  []RelPattern // len(Rels) == len(Nodes)-1
}

// PropFilter is one entry of an inline property map: {name: 'Adam'}.
type PropFilter struct {
	Key   string
	Value Expression // literal or parameter
}

// NodePattern represents a single node in a MATCH pattern.
//
//	(n)                → Variable="n", Label=""
//	(n:Person)         → Variable="n", Label="Person"
//	(n {name:'Alice'}) → Variable="n", Props=[name='Alice']
//	()                 → anonymous node
type NodePattern struct {
	Variable string
	Label    string // node table name, may be ""
	Props    []PropFilter
}

// RelPattern represents a relationship in a MATCH pattern.
//
//	-[:Follows]->   → Label="Follows", Dir=Outgoing
//	-[f:Follows]->  → Variable="f", Label="Follows", Dir=Outgoing
//	<-[f]-          → Variable="f", Label="" (inferred), Dir=Incoming
type RelPattern struct {
	Variable string
	Label    string // rel table name, may be ""
	Dir      Direction
	Props    []PropFilter
}

// ---------------------------------------------------------------------------
// RETURN / ORDER BY
// ---------------------------------------------------------------------------

// ReturnClause holds the items after RETURN.
type ReturnClause struct {
	Items []ReturnItem
}

// ReturnItem is a single expression in the RETURN clause, optionally aliased.
//
//	RETURN a                → Expr=VarRef("a")
//	RETURN b.name           → Expr=PropAccess("b","name")
//	RETURN count(f) AS n    → Expr=FuncCall("count", VarRef("f")), Alias="n"
type ReturnItem struct {
	Expr  Expression
	Alias string // "" if no AS
}

// OrderItem is a single expression in ORDER BY.
type OrderItem struct {
	Expr Expression
	Desc bool // true for DESC, false for ASC (default)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// ExprKind distinguishes different expression types.
type ExprKind int

const (
	ExprLiteral    ExprKind = iota // string, int64, float64, bool, nil
	ExprVarRef                     // n
	ExprPropAccess                 // n.name
	ExprFuncCall                   // count(f), id(n)
	ExprComparison                 // n.age > 25
	ExprAnd                        // expr AND expr
	ExprOr                         // expr OR expr
	ExprNot                        // NOT expr
	ExprParam                      // $paramName
	ExprStar                       // * inside count(*)
	ExprIsNull                     // expr IS [NOT] NULL
)

// CompOp is a comparison operator.
type CompOp int

const (
	OpEq  CompOp = iota // =
	OpNeq               // <>
	OpLt                // <
	OpGt                // >
	OpLte               // <=
	OpGte               // >=
)

var compOpText = [...]string{OpEq: "=", OpNeq: "<>", OpLt: "<", OpGt: ">", OpLte: "<=", OpGte: ">="}

func (op CompOp) String() string { return compOpText[op] }

// Expression is a polymorphic AST node for all expression types.
// Only the fields relevant to the Kind are populated.
type Expression struct {
	Kind ExprKind

	// ExprLiteral
	LitValue any // string | float64 | int64 | bool | nil

	// ExprVarRef
	Variable string

	// ExprPropAccess
	Object   string // variable name
	Property string // property key

	// ExprFuncCall
	FuncName string
	Args     []Expression

	// ExprComparison
	Left  *Expression
	Op    CompOp
	Right *Expression

	// ExprAnd / ExprOr
	Operands []Expression

	// ExprNot / ExprIsNull
	Inner  *Expression
	Negate bool // IS NOT NULL

	// ExprParam
	ParamName string // parameter name without the '$' prefix
}

// Convenience constructors ------------------------------------------------

func litExpr(v any) Expression {
	return Expression{Kind: ExprLiteral, LitValue: v}
}

func varRefExpr(name string) Expression {
	return Expression{Kind: ExprVarRef, Variable: name}
}

func propExpr(obj, prop string) Expression {
	return Expression{Kind: ExprPropAccess, Object: obj, Property: prop}
}

func paramExpr(name string) Expression {
	return Expression{Kind: ExprParam, ParamName: name}
}

func funcCallExpr(name string, args ...Expression) Expression {
	return Expression{Kind: ExprFuncCall, FuncName: name, Args: args}
}

func compExpr(left Expression, op CompOp, right Expression) Expression {
	return Expression{Kind: ExprComparison, Left: &left, Op: op, Right: &right}
}

func andExpr(operands ...Expression) Expression {
	return Expression{Kind: ExprAnd, Operands: operands}
}

func orExpr(operands ...Expression) Expression {
	return Expression{Kind: ExprOr, Operands: operands}
}

func notExpr(inner Expression) Expression {
	return Expression{Kind: ExprNot, Inner: &inner}
}

func isNullExpr(inner Expression, negate bool) Expression {
	return Expression{Kind: ExprIsNull, Inner: &inner, Negate: negate}
}
