package colgraph

import (
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Binder: resolves a parsed MATCH query against the catalog.
//
// Binding fixes which tables every pattern element reads, which columns each
// scan must project, which parameters execution needs, and how ORDER BY maps
// onto the RETURN columns. A bound query is immutable and may be executed
// concurrently.
// ---------------------------------------------------------------------------

// boundFilter is an inline {prop: value} equality on a pattern element.
type boundFilter struct {
	col   int
	name  string
	value Expression
}

// boundNode is a node pattern resolved to a node table.
type boundNode struct {
	variable string
	schema   *NodeTableSchema
	want     []bool
	filters  []boundFilter
}

// boundHop is the relationship step of a node–rel–node pattern, expanded
// from the anchor node.
type boundHop struct {
	variable string
	schema   *RelTableSchema
	dir      Direction // direction as seen from the anchor
	want     []bool
	filters  []boundFilter
	other    boundNode
}

// boundOrder is one ORDER BY key: either an output column or an expression
// evaluated against the bindings of the row (hidden key).
type boundOrder struct {
	col  int // output column, or -1
	expr Expression
	desc bool
}

// boundQuery is a MATCH query ready for execution.
type boundQuery struct {
	text    string
	q       *CypherQuery
	columns []string
	anchor  boundNode
	hop     *boundHop
	vars    map[string]varKind

	aggregating bool
	aggs        []aggSpec // per RETURN item; fn is set for aggregates
	order       []boundOrder
	params      []string // sorted, unique
}

type varKind int

const (
	varNode varKind = iota + 1
	varRel
)

type binder struct {
	db     *DB
	bq     *boundQuery
	params map[string]bool
	nodes  map[string]*boundNode
	rel    *boundHop
}

// bindQuery resolves q against the current catalog.
func (db *DB) bindQuery(text string, q *CypherQuery) (*boundQuery, error) {
	b := &binder{
		db:     db,
		bq:     &boundQuery{text: text, q: q, vars: make(map[string]varKind)},
		params: make(map[string]bool),
		nodes:  make(map[string]*boundNode),
	}
	if err := b.bindPattern(q.Match.Pattern); err != nil {
		return nil, err
	}
	if q.Where != nil {
		if err := b.bindExpr(q.Where, false); err != nil {
			return nil, err
		}
	}
	if err := b.bindReturn(q.Return); err != nil {
		return nil, err
	}
	if err := b.bindOrder(q.OrderBy); err != nil {
		return nil, err
	}
	for name := range b.params {
		b.bq.params = append(b.bq.params, name)
	}
	sort.Strings(b.bq.params)
	return b.bq, nil
}

// ---------------- pattern -------------------------------------------------

func (b *binder) bindPattern(pat Pattern) error {
	switch {
	case len(pat.Nodes) == 1 && len(pat.Rels) == 0:
		s, err := b.resolveNodeLabel(pat.Nodes[0].Label)
		if err != nil {
			return err
		}
		n, err := b.bindNode(pat.Nodes[0], s)
		if err != nil {
			return err
		}
		b.bq.anchor = *n
	case len(pat.Nodes) == 2 && len(pat.Rels) == 1:
		if err := b.bindHop(pat.Nodes[0], pat.Rels[0], pat.Nodes[1]); err != nil {
			return err
		}
	default:
		return typeErrorf("patterns with %d relationships are not supported", len(pat.Rels))
	}
	return nil
}

func (b *binder) resolveNodeLabel(label string) (*NodeTableSchema, error) {
	if label != "" {
		return b.db.catalog.lookupNodeTable(label)
	}
	var only *NodeTableSchema
	for _, name := range b.db.catalog.names() {
		if s, err := b.db.catalog.lookupNodeTable(name); err == nil {
			if only != nil {
				return nil, typeErrorf("unlabeled node pattern is ambiguous: give a node table")
			}
			only = s
		}
	}
	if only == nil {
		return nil, notFoundErrorf("no node tables exist")
	}
	return only, nil
}

func (b *binder) bindHop(left NodePattern, rp RelPattern, right NodePattern) error {
	// Orient as source/target of the rel table.
	src, dst := left, right
	if rp.Dir == Incoming {
		src, dst = right, left
	}

	var rel *RelTableSchema
	if rp.Label != "" {
		r, err := b.db.catalog.lookupRelTable(rp.Label)
		if err != nil {
			return err
		}
		rel = r
	} else {
		cands := b.db.catalog.relTablesBetween(src.Label, dst.Label)
		switch len(cands) {
		case 0:
			return notFoundErrorf("no rel table connects %s to %s", labelOrAny(src.Label), labelOrAny(dst.Label))
		case 1:
			rel = cands[0]
		default:
			return typeErrorf("relationship between %s and %s is ambiguous: give a rel table",
				labelOrAny(src.Label), labelOrAny(dst.Label))
		}
	}
	srcSchema, err := b.endpoint(src, rel.From, rel)
	if err != nil {
		return err
	}
	dstSchema, err := b.endpoint(dst, rel.To, rel)
	if err != nil {
		return err
	}

	srcNode, err := b.bindNode(src, srcSchema)
	if err != nil {
		return err
	}
	dstNode, err := b.bindNode(dst, dstSchema)
	if err != nil {
		return err
	}

	hop := &boundHop{variable: rp.Variable, schema: rel, want: make([]bool, len(rel.Columns))}
	if hop.variable != "" {
		if err := b.declare(hop.variable, varRel); err != nil {
			return err
		}
	}
	for _, pf := range rp.Props {
		i, ok := rel.ColumnIndex(pf.Key)
		if !ok {
			return typeErrorf("rel table %s has no property %q", rel.Name, pf.Key)
		}
		if err := b.bindExpr(&pf.Value, false); err != nil {
			return err
		}
		if err := checkComparable(rel.Columns[i].Type, pf.Value); err != nil {
			return err
		}
		hop.want[i] = true
		hop.filters = append(hop.filters, boundFilter{col: i, name: rel.Columns[i].Name, value: pf.Value})
	}
	b.rel = hop

	// Scan from whichever side a primary-key filter pins, else the left.
	anchor, other, dir := srcNode, dstNode, Outgoing
	if rp.Dir == Incoming {
		anchor, other, dir = dstNode, srcNode, Incoming
	}
	if !hasPKFilter(anchor) && hasPKFilter(other) {
		anchor, other = other, anchor
		if dir == Outgoing {
			dir = Incoming
		} else {
			dir = Outgoing
		}
	}
	hop.dir = dir
	b.bq.anchor = *anchor
	hop.other = *other
	b.bq.hop = hop
	// Later references must update the copies that execution uses.
	b.rebindNodes()
	return nil
}

// rebindNodes points the variable table at the nodes stored in bq so that
// columns requested after pattern binding are projected.
func (b *binder) rebindNodes() {
	if b.bq.anchor.variable != "" {
		b.nodes[tableKey(b.bq.anchor.variable)] = &b.bq.anchor
	}
	if b.bq.hop != nil && b.bq.hop.other.variable != "" {
		b.nodes[tableKey(b.bq.hop.other.variable)] = &b.bq.hop.other
	}
	if b.bq.hop != nil {
		b.rel = b.bq.hop
	}
}

func hasPKFilter(n *boundNode) bool {
	pk := n.schema.PrimaryKeyIndex()
	for _, f := range n.filters {
		if f.col == pk {
			return true
		}
	}
	return false
}

func labelOrAny(l string) string {
	if l == "" {
		return "any node table"
	}
	return l
}

// endpoint checks that a node pattern's label agrees with the rel table.
func (b *binder) endpoint(np NodePattern, table string, rel *RelTableSchema) (*NodeTableSchema, error) {
	s, err := b.db.catalog.lookupNodeTable(table)
	if err != nil {
		return nil, err
	}
	if np.Label != "" && !strings.EqualFold(np.Label, table) {
		if _, err := b.db.catalog.lookupNodeTable(np.Label); err != nil {
			return nil, err
		}
		return nil, typeErrorf("%s connects %s to %s, not %s", rel.Name, rel.From, rel.To, np.Label)
	}
	return s, nil
}

func (b *binder) declare(v string, kind varKind) error {
	k := tableKey(v)
	if _, dup := b.bq.vars[k]; dup {
		return typeErrorf("variable %q is bound more than once", v)
	}
	b.bq.vars[k] = kind
	return nil
}

func (b *binder) bindNode(np NodePattern, s *NodeTableSchema) (*boundNode, error) {
	n := &boundNode{variable: np.Variable, schema: s, want: make([]bool, len(s.Columns))}
	if np.Variable != "" {
		if err := b.declare(np.Variable, varNode); err != nil {
			return nil, err
		}
		b.nodes[tableKey(np.Variable)] = n
	}
	for _, pf := range np.Props {
		i, ok := s.ColumnIndex(pf.Key)
		if !ok {
			return nil, typeErrorf("node table %s has no property %q", s.Name, pf.Key)
		}
		if err := b.bindExpr(&pf.Value, false); err != nil {
			return nil, err
		}
		if err := checkComparable(s.Columns[i].Type, pf.Value); err != nil {
			return nil, err
		}
		n.want[i] = true
		n.filters = append(n.filters, boundFilter{col: i, name: s.Columns[i].Name, value: pf.Value})
	}
	return n, nil
}

// ---------------- expressions ---------------------------------------------

// bindExpr validates an expression and records the columns and parameters
// it reads. allowAgg permits aggregate calls at this position.
func (b *binder) bindExpr(e *Expression, allowAgg bool) error {
	switch e.Kind {
	case ExprLiteral:
		return nil

	case ExprParam:
		b.params[e.ParamName] = true
		return nil

	case ExprVarRef:
		kind, ok := b.bq.vars[tableKey(e.Variable)]
		if !ok {
			return typeErrorf("variable %q is not defined", e.Variable)
		}
		// A whole record is returned: read every column.
		if kind == varNode {
			n := b.nodes[tableKey(e.Variable)]
			for i := range n.want {
				n.want[i] = true
			}
		} else if b.rel != nil {
			for i := range b.rel.want {
				b.rel.want[i] = true
			}
		}
		return nil

	case ExprPropAccess:
		kind, ok := b.bq.vars[tableKey(e.Object)]
		if !ok {
			return typeErrorf("variable %q is not defined", e.Object)
		}
		if kind == varNode {
			n := b.nodes[tableKey(e.Object)]
			i, ok := n.schema.ColumnIndex(e.Property)
			if !ok {
				return typeErrorf("node table %s has no property %q", n.schema.Name, e.Property)
			}
			n.want[i] = true
			return nil
		}
		i, ok := b.rel.schema.ColumnIndex(e.Property)
		if !ok {
			return typeErrorf("rel table %s has no property %q", b.rel.schema.Name, e.Property)
		}
		b.rel.want[i] = true
		return nil

	case ExprFuncCall:
		if isAggregate(e.FuncName) {
			if !allowAgg {
				return typeErrorf("aggregate %s() is not allowed here", e.FuncName)
			}
			if len(e.Args) != 1 {
				return typeErrorf("%s() takes exactly one argument", e.FuncName)
			}
			if e.Args[0].Kind == ExprStar {
				if e.FuncName != "count" {
					return typeErrorf("%s(*) is not supported", e.FuncName)
				}
				return nil
			}
			return b.bindExpr(&e.Args[0], false)
		}
		switch e.FuncName {
		case "id", "label":
			if len(e.Args) != 1 || (e.Args[0].Kind != ExprVarRef) {
				return typeErrorf("%s() takes one variable", e.FuncName)
			}
			if _, ok := b.bq.vars[tableKey(e.Args[0].Variable)]; !ok {
				return typeErrorf("variable %q is not defined", e.Args[0].Variable)
			}
			return nil
		}
		return typeErrorf("unknown function %s()", e.FuncName)

	case ExprComparison:
		if err := b.bindExpr(e.Left, false); err != nil {
			return err
		}
		if err := b.bindExpr(e.Right, false); err != nil {
			return err
		}
		return b.checkComparison(e)

	case ExprAnd, ExprOr:
		for i := range e.Operands {
			if err := b.bindExpr(&e.Operands[i], false); err != nil {
				return err
			}
		}
		return nil

	case ExprNot, ExprIsNull:
		return b.bindExpr(e.Inner, false)

	case ExprStar:
		return typeErrorf("* is only allowed in count(*)")
	}
	return typeErrorf("unsupported expression")
}

// staticClass is the comparison class of an expression whose type is known
// before execution: "num", "string", "bool", "record", or "" when unknown.
func (b *binder) staticClass(e *Expression) string {
	switch e.Kind {
	case ExprLiteral:
		return classOfValue(e.LitValue)
	case ExprPropAccess:
		var t DataType
		if b.bq.vars[tableKey(e.Object)] == varNode {
			n := b.nodes[tableKey(e.Object)]
			i, _ := n.schema.ColumnIndex(e.Property)
			t = n.schema.Columns[i].Type
		} else {
			i, _ := b.rel.schema.ColumnIndex(e.Property)
			t = b.rel.schema.Columns[i].Type
		}
		return classOfType(t)
	case ExprVarRef:
		return "record"
	case ExprComparison, ExprAnd, ExprOr, ExprNot, ExprIsNull:
		return "bool"
	case ExprFuncCall:
		switch e.FuncName {
		case "count":
			return "num"
		case "id", "label":
			return "string"
		}
	}
	return ""
}

func classOfValue(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case string:
		return "string"
	case bool:
		return "bool"
	}
	if isNumeric(v) {
		return "num"
	}
	return ""
}

func classOfType(t DataType) string {
	switch t {
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	}
	return "num"
}

func (b *binder) checkComparison(e *Expression) error {
	l, r := b.staticClass(e.Left), b.staticClass(e.Right)
	if l == "" || r == "" || l == r {
		return nil
	}
	return typeErrorf("cannot compare %s with %s", describeExpr(*e.Left, l), describeExpr(*e.Right, r))
}

func describeExpr(e Expression, class string) string {
	return exprName(e) + " (" + class + ")"
}

// checkComparable rejects inline property filters whose literal cannot be
// compared with the column.
func checkComparable(t DataType, v Expression) error {
	if v.Kind != ExprLiteral {
		return nil
	}
	c := classOfValue(v.LitValue)
	if c == "" || c == classOfType(t) {
		return nil
	}
	return typeErrorf("cannot compare %s column with %s", t, exprName(v))
}

// ---------------- RETURN / ORDER BY ---------------------------------------

func (b *binder) bindReturn(rc ReturnClause) error {
	b.bq.aggs = make([]aggSpec, len(rc.Items))
	for i := range rc.Items {
		item := &rc.Items[i]
		if item.Expr.Kind == ExprFuncCall && isAggregate(item.Expr.FuncName) {
			if err := b.bindExpr(&item.Expr, true); err != nil {
				return err
			}
			b.bq.aggs[i] = newAggSpec(item.Expr)
			b.bq.aggregating = true
		} else {
			if containsAggregate(item.Expr) {
				return typeErrorf("aggregate must be a whole RETURN item, got %s", exprName(item.Expr))
			}
			if err := b.bindExpr(&item.Expr, false); err != nil {
				return err
			}
		}
		b.bq.columns = append(b.bq.columns, returnItemName(*item))
	}
	seen := make(map[string]bool, len(b.bq.columns))
	for _, c := range b.bq.columns {
		if seen[c] {
			return typeErrorf("duplicate RETURN column %q: use AS to rename", c)
		}
		seen[c] = true
	}
	return nil
}

func (b *binder) bindOrder(items []OrderItem) error {
	for i := range items {
		oi := &items[i]
		col := b.orderColumn(oi.Expr)
		if col < 0 {
			if b.bq.aggregating {
				return typeErrorf("ORDER BY %s must name a RETURN column of an aggregating query", exprName(oi.Expr))
			}
			if containsAggregate(oi.Expr) {
				return typeErrorf("aggregate in ORDER BY must appear in RETURN")
			}
			if err := b.bindExpr(&oi.Expr, false); err != nil {
				return err
			}
		}
		b.bq.order = append(b.bq.order, boundOrder{col: col, expr: oi.Expr, desc: oi.Desc})
	}
	return nil
}

// orderColumn maps an ORDER BY expression to a RETURN column: by alias
// first, then by identical expression.
func (b *binder) orderColumn(e Expression) int {
	if e.Kind == ExprVarRef {
		for i, item := range b.bq.q.Return.Items {
			if item.Alias != "" && item.Alias == e.Variable {
				return i
			}
		}
		if _, isVar := b.bq.vars[tableKey(e.Variable)]; !isVar {
			for i, c := range b.bq.columns {
				if strings.EqualFold(c, e.Variable) {
					return i
				}
			}
			// A bare property name picks the one RETURN item reading it:
			// RETURN c.population ... ORDER BY population.
			match := -1
			for i, item := range b.bq.q.Return.Items {
				if item.Expr.Kind == ExprPropAccess && strings.EqualFold(item.Expr.Property, e.Variable) {
					if match >= 0 {
						return -1
					}
					match = i
				}
			}
			if match >= 0 {
				return match
			}
		}
	}
	name := exprName(e)
	for i, item := range b.bq.q.Return.Items {
		if exprName(item.Expr) == name {
			return i
		}
	}
	return -1
}

func containsAggregate(e Expression) bool {
	if e.Kind == ExprFuncCall && isAggregate(e.FuncName) {
		return true
	}
	for _, a := range e.Args {
		if containsAggregate(a) {
			return true
		}
	}
	for _, o := range e.Operands {
		if containsAggregate(o) {
			return true
		}
	}
	for _, p := range []*Expression{e.Left, e.Right, e.Inner} {
		if p != nil && containsAggregate(*p) {
			return true
		}
	}
	return false
}

// returnItemName computes the column name for a return item.
func returnItemName(item ReturnItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	return exprName(item.Expr)
}

// exprName returns a readable name for an expression (used as column name).
func exprName(e Expression) string {
	switch e.Kind {
	case ExprVarRef:
		return e.Variable
	case ExprPropAccess:
		return e.Object + "." + e.Property
	case ExprParam:
		return "$" + e.ParamName
	case ExprStar:
		return "*"
	case ExprLiteral:
		if s, ok := e.LitValue.(string); ok {
			return "'" + s + "'"
		}
		if e.LitValue == nil {
			return "NULL"
		}
		return FormatValue(e.LitValue)
	case ExprFuncCall:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = exprName(a)
		}
		return e.FuncName + "(" + strings.Join(args, ", ") + ")"
	case ExprComparison:
		return exprName(*e.Left) + " " + e.Op.String() + " " + exprName(*e.Right)
	case ExprAnd, ExprOr:
		sep := " AND "
		if e.Kind == ExprOr {
			sep = " OR "
		}
		parts := make([]string, len(e.Operands))
		for i, o := range e.Operands {
			parts[i] = exprName(o)
		}
		return strings.Join(parts, sep)
	case ExprNot:
		return "NOT " + exprName(*e.Inner)
	case ExprIsNull:
		if e.Negate {
			return exprName(*e.Inner) + " IS NOT NULL"
		}
		return exprName(*e.Inner) + " IS NULL"
	}
	return "expr"
}
