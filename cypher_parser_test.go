package colgraph

import (
	"errors"
	"testing"
)

func TestCypherLexer(t *testing.T) {
	tokens, err := tokenize(`MATCH (c:City) WHERE c.population >= $min AND c.name <> 'N\'YC' RETURN c.name`)
	if err != nil {
		t.Fatal(err)
	}
	var sawParam, sawString bool
	for _, tok := range tokens {
		if tok.Kind == tokParam && tok.Text == "min" {
			sawParam = true
		}
		if tok.Kind == tokString && tok.Text == "N'YC" {
			sawString = true
		}
	}
	if !sawParam {
		t.Error("expected a $min parameter token")
	}
	if !sawString {
		t.Error("expected the escaped string literal N'YC")
	}
	if tokens[len(tokens)-1].Kind != tokEOF {
		t.Error("token stream must end with EOF")
	}
}

func TestCypherParser_CreateNodeTable(t *testing.T) {
	for _, q := range []string{
		"CREATE NODE TABLE Person(name STRING, age INT64, PRIMARY KEY (name))",
		"create node table Person(name STRING PRIMARY KEY, age INT)",
	} {
		st, err := parseStatement(q)
		if err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		s, ok := st.(*CreateNodeTableStmt)
		if !ok {
			t.Fatalf("%s: expected *CreateNodeTableStmt, got %T", q, st)
		}
		if s.Name != "Person" || s.PrimaryKey != "name" || len(s.Columns) != 2 {
			t.Errorf("%s: unexpected statement %+v", q, s)
		}
		if s.Columns[1].Type != TypeInt64 {
			t.Errorf("%s: age should be INT64, got %s", q, s.Columns[1].Type)
		}
	}

	st, err := parseStatement("CREATE NODE TABLE IF NOT EXISTS City(name STRING, PRIMARY KEY (name))")
	if err != nil {
		t.Fatal(err)
	}
	if !st.(*CreateNodeTableStmt).IfNotExists {
		t.Error("expected IfNotExists")
	}
}

func TestCypherParser_CreateRelTable(t *testing.T) {
	st, err := parseStatement("CREATE REL TABLE Follows(FROM Person TO Person, since INT64)")
	if err != nil {
		t.Fatal(err)
	}
	s := st.(*CreateRelTableStmt)
	if s.Name != "Follows" || s.From != "Person" || s.To != "Person" {
		t.Errorf("unexpected statement %+v", s)
	}
	if len(s.Columns) != 1 || s.Columns[0].Name != "since" {
		t.Errorf("expected one extra column since, got %+v", s.Columns)
	}
}

func TestCypherParser_Copy(t *testing.T) {
	st, err := parseStatement("COPY Person FROM 'data/person.csv' (HEADER=true, DELIM='|')")
	if err != nil {
		t.Fatal(err)
	}
	s := st.(*CopyStmt)
	if s.Table != "Person" || s.Path != "data/person.csv" {
		t.Errorf("unexpected statement %+v", s)
	}
	if !s.Options.Header || s.Options.Delimiter != '|' {
		t.Errorf("unexpected options %+v", s.Options)
	}
}

func TestCypherParser_Match(t *testing.T) {
	st, err := parseStatement(`MATCH (a:Person)-[f:Follows]->(b:Person {name: $who})
WHERE a.age > 20 AND NOT b.age IS NULL
RETURN b.name AS name, count(a) AS followers
ORDER BY followers DESC, name SKIP 1 LIMIT 2`)
	if err != nil {
		t.Fatal(err)
	}
	q := st.(*CypherQuery)
	p := q.Match.Pattern
	if len(p.Nodes) != 2 || len(p.Rels) != 1 {
		t.Fatalf("expected node-rel-node, got %+v", p)
	}
	if p.Rels[0].Label != "Follows" || p.Rels[0].Dir != Outgoing || p.Rels[0].Variable != "f" {
		t.Errorf("unexpected rel %+v", p.Rels[0])
	}
	if len(p.Nodes[1].Props) != 1 || p.Nodes[1].Props[0].Value.Kind != ExprParam {
		t.Errorf("expected an inline $who filter, got %+v", p.Nodes[1].Props)
	}
	if q.Where == nil || q.Where.Kind != ExprAnd {
		t.Errorf("expected an AND in WHERE, got %+v", q.Where)
	}
	if len(q.Return.Items) != 2 || q.Return.Items[1].Alias != "followers" {
		t.Errorf("unexpected return items %+v", q.Return.Items)
	}
	if len(q.OrderBy) != 2 || !q.OrderBy[0].Desc || q.OrderBy[1].Desc {
		t.Errorf("unexpected order by %+v", q.OrderBy)
	}
	if q.Skip != 1 || q.Limit != 2 {
		t.Errorf("expected SKIP 1 LIMIT 2, got %d %d", q.Skip, q.Limit)
	}
}

func TestCypherParser_IncomingRel(t *testing.T) {
	st, err := parseStatement("MATCH (c:City)<-[:LivesIn]-(p) RETURN p.name")
	if err != nil {
		t.Fatal(err)
	}
	q := st.(*CypherQuery)
	if q.Match.Pattern.Rels[0].Dir != Incoming {
		t.Errorf("expected an incoming rel, got %v", q.Match.Pattern.Rels[0].Dir)
	}
	if q.Limit != -1 {
		t.Errorf("expected no limit, got %d", q.Limit)
	}
}

func TestCypherParser_Script(t *testing.T) {
	stmts, err := parseScript(`
CREATE NODE TABLE A(id INT64, PRIMARY KEY (id));;
COPY A FROM 'a.csv';
MATCH (a:A) RETURN a.id;
`)
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}
	if _, ok := stmts[2].(*CypherQuery); !ok {
		t.Errorf("expected a query last, got %T", stmts[2])
	}
}

func TestCypherParser_SyntaxErrors(t *testing.T) {
	for _, q := range []string{
		"",
		"MATCH",
		"MATCH (n:Person RETURN n",
		"MATCH (n:Person) RETURN",
		"MATCH (n:Person) WHERE RETURN n",
		"MATCH (n:Person) RETURN n LIMIT x",
		"MATCH (n:Person) RETURN n.name 'oops'",
		"MATCH (n:Person) WHERE n.name = 'unterminated RETURN n",
		"CREATE NODE TABLE (a INT64)",
		"COPY T FROM path.csv",
		"COPY T FROM 'p.csv' (DELIM='ab')",
		"MATCH (a)-[:R]->(b) RETURN a; garbage",
		"DELETE (n)",
	} {
		if _, err := parseScript(q); q != "" && !errors.Is(err, ErrSyntax) {
			t.Errorf("%q: expected ErrSyntax, got %v", q, err)
		}
		if _, err := parseStatement(q); !errors.Is(err, ErrSyntax) {
			t.Errorf("%q: parseStatement expected ErrSyntax, got %v", q, err)
		}
	}
}

func TestQueryCache(t *testing.T) {
	db := testDB(t)
	q := "MATCH (n:Person) RETURN n.name"
	a, err := db.parseCached(q)
	if err != nil {
		t.Fatal(err)
	}
	b, err := db.parseCached(q)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected the cached statement on the second parse")
	}
	stats := db.QueryCacheStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %+v", stats)
	}
}
