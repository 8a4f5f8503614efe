// Command flindoc loads a JSON document collection and queries it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// env is set up before any subcommand runs.
var env *app

var rootCmd = &cobra.Command{
	Use:   "flindoc",
	Short: "Query, aggregate and explain JSON document collections",
	Long: `flindoc loads a collection from a JSON or NDJSON file, a BadgerDB store,
or the built-in bookstore sample, and runs queries against it.

Settings come from flags, FLINDOC_* environment variables and an optional
flindoc.yaml, in that order of priority.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		file, _ := cmd.Flags().GetString("config")
		a, err := newApp(file, cmd.Flags())
		if err != nil {
			return err
		}
		env = a
		return nil
	},
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(runCmd, findCmd, countCmd, aggregateCmd, explainCmd, importCmd, shellCmd)
}

func addGlobalFlags(f *pflag.FlagSet) {
	f.String("config", "", "config file (default ./flindoc.{yaml,json,toml})")
	f.String("data", "", "JSON array or NDJSON file to load")
	f.String("store", "", "BadgerDB directory holding saved collections")
	f.String("collection", "books", "collection name")
	f.String("schema", "", "JSON Schema every loaded record must satisfy")
	f.StringArray("index", nil, "index to create, e.g. --index title --index author,published_year")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "text", "log format (text, json)")
	f.String("seq-url", "", "also send logs to this Seq server")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	if env != nil {
		err = errors.Join(err, env.Close(ctx))
	}
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
