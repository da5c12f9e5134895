package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mstrYoda/colgraph"
)

//go:embed demodata/*.csv
var demoData embed.FS

// demoSchema builds the demo graph. %s is the directory holding the CSVs.
const demoSchema = `
CREATE NODE TABLE Person(name STRING, age INT64, PRIMARY KEY (name));
CREATE NODE TABLE City(name STRING, population INT64, PRIMARY KEY (name));
CREATE REL TABLE Follows(FROM Person TO Person);
CREATE REL TABLE LivesIn(FROM Person TO City);
COPY Person FROM '%[1]s/person.csv';
COPY City FROM '%[1]s/city.csv';
COPY Follows FROM '%[1]s/follows.csv';
COPY LivesIn FROM '%[1]s/lives_in.csv';
`

const (
	demoCityQuery = `MATCH (c:City)
WHERE c.population > $min_population
RETURN c.name AS city, c.population AS population
ORDER BY population DESC`

	demoFollowersQuery = `MATCH (:Person)-[f:Follows]->(p2:Person)
RETURN p2.name AS person, count(f) AS num_followers
ORDER BY num_followers DESC LIMIT 1`
)

func newDemoCmd(a *app) *cobra.Command {
	var minPopulation int64
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Load the bundled Person/City graph and run the demo queries",
		Long: "Creates the demo schema in a fresh database, bulk loads the bundled CSV files\n" +
			"and runs two queries: large cities by population and the most-followed user.\n" +
			"Without --dir the database lives in a temporary directory; a --dir must be\n" +
			"missing or empty.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("dir") {
				tmp, err := os.MkdirTemp("", "colgraph-demo-")
				if err != nil {
					return err
				}
				defer os.RemoveAll(tmp)
				a.cfg.Dir = filepath.Join(tmp, "db")
			} else if err := requireEmptyDir(a.cfg.Dir); err != nil {
				return err
			}
			dataDir, err := os.MkdirTemp("", "colgraph-demo-data-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dataDir)
			if err := writeDemoData(dataDir); err != nil {
				return err
			}

			db, err := a.openDB(cmd, false)
			if err != nil {
				return err
			}
			defer db.Close()
			conn, err := db.Connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()
			return runDemo(ctx, conn, cmd.OutOrStdout(), dataDir, minPopulation)
		},
	}
	cmd.Flags().Int64Var(&minPopulation, "min-population", 1_000_000, "Population threshold for the city query")
	return cmd
}

// requireEmptyDir fails unless dir is missing or empty, so that the demo
// always builds its graph in a fresh database.
func requireEmptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("demo needs a fresh database: %s is not empty", dir)
	}
	return nil
}

func writeDemoData(dir string) error {
	entries, err := demoData.ReadDir("demodata")
	if err != nil {
		return err
	}
	for _, e := range entries {
		data, err := demoData.ReadFile("demodata/" + e.Name())
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// runDemo creates and loads the schema, then prints one line per query row.
// Any failure stops the remaining steps.
func runDemo(ctx context.Context, conn *colgraph.Conn, out io.Writer, dataDir string, minPopulation int64) error {
	results, err := conn.ExecScript(ctx, fmt.Sprintf(demoSchema, filepath.ToSlash(dataDir)), nil)
	if err != nil {
		return err
	}
	for _, res := range results {
		rows, err := res.Collect()
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Fprintln(out, r.String())
		}
	}

	res, err := conn.Query(ctx, demoCityQuery, map[string]any{"min_population": minPopulation})
	if err != nil {
		return err
	}
	for res.Next() {
		row := res.Row()
		fmt.Fprintf(out, "%s has a population of %s\n",
			colgraph.FormatValue(row.Values[0]), colgraph.FormatValue(row.Values[1]))
	}
	if err := res.Err(); err != nil {
		return err
	}
	res.Close()

	res, err = conn.Query(ctx, demoFollowersQuery, nil)
	if err != nil {
		return err
	}
	for res.Next() {
		row := res.Row()
		fmt.Fprintf(out, "%s has the most followers: %s\n",
			colgraph.FormatValue(row.Values[0]), colgraph.FormatValue(row.Values[1]))
	}
	if err := res.Err(); err != nil {
		return err
	}
	return res.Close()
}
