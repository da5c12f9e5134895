package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mstrYoda/colgraph"
	"github.com/mstrYoda/colgraph/pgsource"
)

// commandContext is cancelled on Ctrl-C so long scans stop promptly.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt)
}

func newExecCmd(a *app) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "exec <script.cypher | ->",
		Short: "Run ';'-separated statements from a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readScript(cmd, args[0])
			if err != nil {
				return err
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			format, err := resolveFormat(a.cfg.Output, cmd.OutOrStdout())
			if err != nil {
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
			results, err := conn.ExecScript(ctx, script, p)
			for _, res := range results {
				if _, perr := printResult(cmd.OutOrStdout(), res, format); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Query parameter name=value (repeatable)")
	return cmd
}

func readScript(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}

func newQueryCmd(a *app) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "query <MATCH ...>",
		Short: "Run one MATCH query and print its rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			format, err := resolveFormat(a.cfg.Output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			db, err := a.openDB(cmd, true)
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
			res, err := conn.Query(ctx, strings.Join(args, " "), p)
			if err != nil {
				return err
			}
			_, err = printResult(cmd.OutOrStdout(), res, format)
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Query parameter name=value (repeatable)")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print table row counts and store size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB(cmd, true)
			if err != nil {
				return err
			}
			defer db.Close()
			stats, err := db.Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.cfg.Output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			fmt.Fprintf(out, "database %s\n", stats.ID)
			for _, t := range stats.Tables {
				fmt.Fprintf(out, "  %-4s %-20s %d rows\n", t.Kind, t.Name, t.RowCount)
			}
			fmt.Fprintf(out, "nodes: %d, rels: %d, size: %.2f KB\n",
				stats.NodeCount, stats.RelCount, float64(stats.DiskSizeBytes)/1024)
			return nil
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check checksums, primary-key and adjacency indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB(cmd, true)
			if err != nil {
				return err
			}
			defer db.Close()
			report, err := db.VerifyIntegrity()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "checked %d tables, %d nodes, %d rels, %d cells\n",
				report.TablesChecked, report.NodesChecked, report.RelsChecked, report.CellsChecked)
			for _, e := range report.Errors {
				fmt.Fprintf(out, "  %s\n", e.Error())
			}
			if !report.OK() {
				return fmt.Errorf("%d integrity %s", len(report.Errors), plural(len(report.Errors), "error", "errors"))
			}
			fmt.Fprintln(out, "OK")
			return nil
		},
	}
}

func newMetricsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics [MATCH ...]",
		Short: "Run an optional query, then print Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd, true)
			if err != nil {
				return err
			}
			defer db.Close()
			if len(args) > 0 {
				conn, err := db.Connect()
				if err != nil {
					return err
				}
				defer conn.Close()
				res, err := conn.Query(cmd.Context(), strings.Join(args, " "), nil)
				if err != nil {
					return err
				}
				if _, err := res.Collect(); err != nil {
					return err
				}
			}
			db.Metrics().WritePrometheus(cmd.OutOrStdout())
			return nil
		},
	}
}

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dir>",
		Short: "Write a consistent copy of the database into a new directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd, true)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.BackupToDir(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", args[0])
			return nil
		},
	}
}

func newCopyPGCmd(a *app) *cobra.Command {
	var (
		dsn   string
		table string
	)
	cmd := &cobra.Command{
		Use:   "copy-pg --table T <SELECT ...>",
		Short: "Bulk load the rows of a Postgres query into a table",
		Long: "Runs a query against Postgres and copies its rows into a colgraph table.\n" +
			"Result columns are matched to table columns by name.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if table == "" {
				return fmt.Errorf("--table is required")
			}
			if dsn == "" {
				dsn = a.cfg.PostgresDSN
			}
			if dsn == "" {
				return fmt.Errorf("--dsn is required (or set COLGRAPH_PG_DSN)")
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
			src, err := pgsource.Open(ctx, dsn, strings.Join(args, " "))
			if err != nil {
				return err
			}
			defer src.Close()
			n, err := conn.CopyFrom(ctx, table, src)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), colgraph.CopyResult{Table: table, Rows: n}.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres connection string")
	cmd.Flags().StringVarP(&table, "table", "t", "", "Destination table")
	return cmd
}
