package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/mstrYoda/colgraph"
)

// resolveFormat picks the output format. An empty format means an aligned
// table on a terminal and TSV when piped.
func resolveFormat(format string, w io.Writer) (string, error) {
	switch format {
	case "table", "tsv", "json":
		return format, nil
	case "":
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return "table", nil
		}
		return "tsv", nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, tsv or json)", format)
}

// printResult drains res to w in the given format and returns the row count.
func printResult(w io.Writer, res *colgraph.Result, format string) (int, error) {
	defer res.Close()
	cols := res.Columns()
	n := 0

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		for res.Next() {
			row := res.Row()
			obj := make(map[string]any, len(cols))
			for i, c := range cols {
				obj[c] = jsonValue(row.Values[i])
			}
			if err := enc.Encode(obj); err != nil {
				return n, err
			}
			n++
		}
		return n, res.Err()

	case "tsv":
		fmt.Fprintln(w, strings.Join(cols, "\t"))
		for res.Next() {
			fmt.Fprintln(w, strings.Join(cells(res.Row()), "\t"))
			n++
		}
		return n, res.Err()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	rule := make([]string, len(cols))
	for i, c := range cols {
		rule[i] = strings.Repeat("-", len(c))
	}
	fmt.Fprintln(tw, strings.Join(rule, "\t"))
	for res.Next() {
		fmt.Fprintln(tw, strings.Join(cells(res.Row()), "\t"))
		n++
	}
	if err := res.Err(); err != nil {
		return n, err
	}
	if err := tw.Flush(); err != nil {
		return n, err
	}
	fmt.Fprintf(w, "(%d %s)\n", n, plural(n, "row", "rows"))
	return n, nil
}

func cells(row colgraph.Row) []string {
	out := make([]string, len(row.Values))
	for i, v := range row.Values {
		out[i] = colgraph.FormatValue(v)
	}
	return out
}

// jsonValue renders records as their display string and passes scalars through.
func jsonValue(v any) any {
	switch x := v.(type) {
	case *colgraph.NodeRecord, *colgraph.RelRecord:
		return colgraph.FormatValue(x)
	}
	return v
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// parseParams turns --param name=value flags into query parameters. Values
// are read as integers, floats or booleans when they parse as such; quote a
// value ('30' or "30") to force a string.
func parseParams(flags []string) (map[string]any, error) {
	params := make(map[string]any, len(flags))
	for _, f := range flags {
		name, raw, ok := strings.Cut(f, "=")
		name = strings.TrimPrefix(strings.TrimSpace(name), "$")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q: want name=value", f)
		}
		params[name] = parseParamValue(raw)
	}
	return params, nil
}

func parseParamValue(raw string) any {
	if len(raw) >= 2 {
		if q := raw[0]; (q == '\'' || q == '"') && raw[len(raw)-1] == q {
			return raw[1 : len(raw)-1]
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if strings.EqualFold(raw, "null") {
		return nil
	}
	return raw
}
