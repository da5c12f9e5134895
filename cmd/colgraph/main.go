// Command colgraph provides command-line access to a colgraph database directory.
//
//	colgraph exec schema.cypher           run DDL / COPY / MATCH statements
//	colgraph query "MATCH (p:Person) RETURN p.name"
//	colgraph demo                         load the bundled Person/City demo
//	colgraph stats | verify | metrics | backup DIR | version
//	colgraph copy-pg --table Person "SELECT name, age FROM people"
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mstrYoda/colgraph"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app is the state shared by every subcommand after flag resolution.
type app struct {
	configPath string
	dirFlag    string
	levelFlag  string
	outputFlag string

	cfg Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "colgraph",
		Short:         "Embedded columnar property-graph database",
		Long:          "Command-line interface for colgraph databases: DDL, bulk loads and MATCH queries.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a.configPath)
			if err != nil {
				return err
			}
			// Apply precedence: flag > env > file > default
			if cmd.Flags().Changed("dir") {
				cfg.Dir = a.dirFlag
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = a.levelFlag
			}
			if cmd.Flags().Changed("output") {
				cfg.Output = a.outputFlag
			}
			a.cfg = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default ./"+defaultConfigFile+" if present)")
	pf.StringVarP(&a.dirFlag, "dir", "d", "", "Database directory")
	pf.StringVar(&a.levelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVarP(&a.outputFlag, "output", "o", "", "Output format (table, tsv, json)")

	root.AddCommand(
		newExecCmd(a),
		newQueryCmd(a),
		newDemoCmd(a),
		newStatsCmd(a),
		newVerifyCmd(a),
		newMetricsCmd(a),
		newBackupCmd(a),
		newCopyPGCmd(a),
		newVersionCmd(),
	)
	return root
}

// openDB opens the configured database directory, logging to the command's
// error stream.
func (a *app) openDB(cmd *cobra.Command, readOnly bool) (*colgraph.DB, error) {
	logger, err := newLogger(a.cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	opts := a.cfg.options(logger)
	opts.ReadOnly = readOnly
	db, err := colgraph.Open(a.cfg.Dir, opts)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "colgraph version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
