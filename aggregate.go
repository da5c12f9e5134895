package colgraph

// ---------------------------------------------------------------------------
// Aggregation: count, sum, min, max and avg over groups.
//
// Non-aggregate RETURN items form the group key. Groups are emitted in the
// order their first row was seen. A query with no group keys and no input
// rows still produces one row.
// ---------------------------------------------------------------------------

var aggregateFuncs = map[string]bool{
	"count": true,
	"sum":   true,
	"min":   true,
	"max":   true,
	"avg":   true,
}

func isAggregate(name string) bool { return aggregateFuncs[name] }

// aggSpec describes one aggregate RETURN item. fn is empty for items that
// are group keys.
type aggSpec struct {
	fn   string
	arg  *Expression // nil for count(*)
	name string
}

func newAggSpec(e Expression) aggSpec {
	spec := aggSpec{fn: e.FuncName, name: exprName(e)}
	if e.Args[0].Kind != ExprStar {
		arg := e.Args[0]
		spec.arg = &arg
	}
	return spec
}

// aggState accumulates the values of one aggregate within one group.
type aggState interface {
	add(v any) error
	result() any
}

func (s aggSpec) newState() aggState {
	switch s.fn {
	case "count":
		return &countState{}
	case "sum":
		return &sumState{name: s.name}
	case "min":
		return &extremeState{name: s.name, want: -1}
	case "max":
		return &extremeState{name: s.name, want: 1}
	case "avg":
		return &avgState{name: s.name}
	}
	return nil
}

type countState struct{ n int64 }

func (s *countState) add(v any) error {
	if v != nil {
		s.n++
	}
	return nil
}

func (s *countState) result() any { return s.n }

// sumState keeps an exact integer sum until a float appears.
type sumState struct {
	name    string
	i       int64
	f       float64
	isFloat bool
}

func (s *sumState) add(v any) error {
	if v == nil {
		return nil
	}
	if !s.isFloat {
		if n, ok := toInt64(v); ok {
			s.i += n
			return nil
		}
	}
	f, ok := toFloat64(v)
	if !ok {
		return typeErrorf("%s: cannot sum %s", s.name, describeValue(v))
	}
	if !s.isFloat {
		s.isFloat = true
		s.f = float64(s.i)
	}
	s.f += f
	return nil
}

func (s *sumState) result() any {
	if s.isFloat {
		return s.f
	}
	return s.i
}

// extremeState implements min (want=-1) and max (want=1).
type extremeState struct {
	name string
	want int
	best any
}

func (s *extremeState) add(v any) error {
	if v == nil {
		return nil
	}
	if s.best == nil {
		s.best = v
		return nil
	}
	cmp, ok := compareValues(v, s.best)
	if !ok {
		return typeErrorf("%s: cannot compare %s with %s", s.name, describeValue(v), describeValue(s.best))
	}
	if cmp == s.want {
		s.best = v
	}
	return nil
}

func (s *extremeState) result() any { return s.best }

type avgState struct {
	name string
	sum  float64
	n    int64
}

func (s *avgState) add(v any) error {
	if v == nil {
		return nil
	}
	f, ok := toFloat64(v)
	if !ok {
		return typeErrorf("%s: cannot average %s", s.name, describeValue(v))
	}
	s.sum += f
	s.n++
	return nil
}

func (s *avgState) result() any {
	if s.n == 0 {
		return nil
	}
	return s.sum / float64(s.n)
}

// aggGroup is one group: its key values and per-item accumulators.
type aggGroup struct {
	keys   []any // RETURN values of the group-key items (nil at aggregate slots)
	states []aggState
}

// aggregator groups projected rows.
type aggregator struct {
	specs  []aggSpec
	groups map[string]*aggGroup
	order  []*aggGroup
}

func newAggregator(specs []aggSpec) *aggregator {
	return &aggregator{specs: specs, groups: make(map[string]*aggGroup)}
}

// add feeds one input row. The caller evaluates the group-key items into
// keys (aggregate slots are ignored) and env gives the aggregate arguments.
func (a *aggregator) add(keys []any, env *evalEnv) error {
	var keyVals []any
	for i, s := range a.specs {
		if s.fn == "" {
			keyVals = append(keyVals, keys[i])
		}
	}
	k, err := groupKey(keyVals)
	if err != nil {
		return err
	}
	g, ok := a.groups[k]
	if !ok {
		g = a.newGroup(keys)
		a.groups[k] = g
		a.order = append(a.order, g)
	}
	for i, s := range a.specs {
		if s.fn == "" {
			continue
		}
		var v any = true // count(*) counts rows
		if s.arg != nil {
			if v, err = evalExpr(s.arg, env); err != nil {
				return err
			}
		}
		if err := g.states[i].add(v); err != nil {
			return err
		}
	}
	return nil
}

func (a *aggregator) newGroup(keys []any) *aggGroup {
	g := &aggGroup{keys: append([]any(nil), keys...), states: make([]aggState, len(a.specs))}
	for i, s := range a.specs {
		if s.fn != "" {
			g.states[i] = s.newState()
		}
	}
	return g
}

// rows returns one output row per group in first-seen order.
func (a *aggregator) rows() [][]any {
	if len(a.order) == 0 && !a.hasKeys() {
		a.order = append(a.order, a.newGroup(make([]any, len(a.specs))))
	}
	out := make([][]any, 0, len(a.order))
	for _, g := range a.order {
		row := make([]any, len(a.specs))
		for i, s := range a.specs {
			if s.fn == "" {
				row[i] = g.keys[i]
			} else {
				row[i] = g.states[i].result()
			}
		}
		out = append(out, row)
	}
	return out
}

func (a *aggregator) hasKeys() bool {
	for _, s := range a.specs {
		if s.fn == "" {
			return true
		}
	}
	return false
}
