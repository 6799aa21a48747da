// Package main provides the Grafito CLI entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/grafito/pkg/config"
	"github.com/orneryd/grafito/pkg/grafito"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var (
	flagPath   string
	flagConfig string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "grafito",
		Short: "Grafito - Embedded Property Graph Database",
		Long: `Grafito is a single-node property graph database layered on SQLite.

Features:
  • Cypher-like query language (MATCH/CREATE/MERGE/WITH/RETURN/CALL …)
  • Programmatic graph primitives
  • Vector similarity search with pluggable ANN backends
  • BM25 full-text search kept coherent by triggers
  • Self-describing Cypher dump/restore`,
	}
	rootCmd.PersistentFlags().StringVarP(&flagPath, "database", "d", "grafito.db", "database path (:memory: for in-memory)")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to grafito.yaml")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Grafito v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "query <cypher>",
		Short: "Run one Cypher statement and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return runQuery(cmd, db, args[0])
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "shell",
		Short: "Interactive query shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return runShell(cmd, db)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "dump [file]",
		Short: "Write the database as a Cypher script (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return db.Dump(cmd.Context(), out)
		},
	})

	restoreClear := false
	restoreCmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Execute a dump script against the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return db.Restore(cmd.Context(), f, restoreClear)
		},
	}
	restoreCmd.Flags().BoolVar(&restoreClear, "clear", false, "clear existing content before restoring")
	rootCmd.AddCommand(restoreCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return cfg, err
	}
	path := flagConfig
	if path == "" {
		if _, err := os.Stat("grafito.yaml"); err == nil {
			path = "grafito.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

func openDB() (*grafito.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return grafito.Open(flagPath, &cfg)
}

func runQuery(cmd *cobra.Command, db *grafito.DB, query string) error {
	result, err := db.ExecuteCypher(cmd.Context(), query, nil)
	if err != nil {
		return err
	}
	printResult(cmd, db, result.Columns, result.Rows)
	return nil
}

func runShell(cmd *cobra.Command, db *grafito.DB) error {
	fmt.Fprintf(cmd.OutOrStdout(), "Grafito v%s — %s\nType a query, or :quit to exit.\n", version, flagPath)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var pending strings.Builder
	for {
		prompt := "grafito> "
		if pending.Len() > 0 {
			prompt = "    ...> "
		}
		fmt.Fprint(cmd.OutOrStdout(), prompt)
		if !scanner.Scan() {
			fmt.Fprintln(cmd.OutOrStdout())
			return scanner.Err()
		}
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if pending.Len() == 0 {
			switch trimmed {
			case "":
				continue
			case ":quit", ":exit", ":q":
				return nil
			}
		}
		pending.WriteString(line)
		pending.WriteString("\n")
		if !strings.HasSuffix(trimmed, ";") {
			continue
		}
		query := strings.TrimSuffix(strings.TrimSpace(pending.String()), ";")
		pending.Reset()
		result, err := db.ExecuteCypher(context.Background(), query, nil)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			continue
		}
		printResult(cmd, db, result.Columns, result.Rows)
	}
}

func printResult(cmd *cobra.Command, db *grafito.DB, columns []string, rows [][]any) {
	out := cmd.OutOrStdout()
	if len(columns) > 0 {
		fmt.Fprintln(out, strings.Join(columns, " | "))
	}
	for _, row := range rows {
		parts := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				parts[i] = "null"
			} else {
				parts[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(out, strings.Join(parts, " | "))
	}
	if len(columns) > 0 {
		fmt.Fprintf(out, "(%d rows)\n", len(rows))
	}
}
