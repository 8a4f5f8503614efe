package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/skshohagmiah/flindoc/internal/aggregate"
	"github.com/skshohagmiah/flindoc/internal/config"
	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/internal/document"
	"github.com/skshohagmiah/flindoc/internal/filter"
	"github.com/skshohagmiah/flindoc/internal/shell"
	"github.com/skshohagmiah/flindoc/internal/workload"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bookstore workload and print every result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := env.openCollection(cmd.Context())
		if err != nil {
			return err
		}
		return workload.Run(cmd.Context(), c, cmd.OutOrStdout(), env.logger)
	},
}

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Print the documents matching a filter",
	Example: `  flindoc find --filter '{"genre": "Fantasy"}' --sort price:desc --limit 3
  flindoc find --filter '{"published_year": {"$gt": 2000}}' --projection '{"title": 1, "_id": 0}'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, opts, err := queryFlags(cmd.Flags())
		if err != nil {
			return err
		}
		c, err := env.openCollection(cmd.Context())
		if err != nil {
			return err
		}
		docs, err := c.FindAll(cmd.Context(), f, opts)
		if err != nil {
			return err
		}
		return shell.WriteDocuments(cmd.OutOrStdout(), docs)
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count the documents matching a filter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, _, err := queryFlags(cmd.Flags())
		if err != nil {
			return err
		}
		c, err := env.openCollection(cmd.Context())
		if err != nil {
			return err
		}
		n, err := c.Count(cmd.Context(), f)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var explainCmd = &cobra.Command{
	Use:     "explain",
	Short:   "Show the access path chosen for a filter",
	Example: `  flindoc explain --index title --filter '{"title": "The Hobbit"}'`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, opts, err := queryFlags(cmd.Flags())
		if err != nil {
			return err
		}
		c, err := env.openCollection(cmd.Context())
		if err != nil {
			return err
		}
		exp, err := c.ExplainWith(cmd.Context(), f, opts)
		if err != nil {
			return err
		}
		shell.WriteExplanation(cmd.OutOrStdout(), exp)
		return nil
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [pipeline]",
	Short: "Run an aggregation pipeline",
	Long: `Run an aggregation pipeline given as a JSON array of stages, either as the
argument, with --pipeline, or read from a file with --file ("-" is stdin).`,
	Example: `  flindoc aggregate '[{"$group": {"_id": "$genre", "n": {"$sum": 1}}}, {"$sort": {"n": -1}}]'`,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := pipelineSource(cmd, args)
		if err != nil {
			return err
		}
		p, err := aggregate.ParsePipelineJSON(src)
		if err != nil {
			return err
		}
		c, err := env.openCollection(cmd.Context())
		if err != nil {
			return err
		}
		docs, err := c.AggregateAll(cmd.Context(), p)
		if err != nil {
			return err
		}
		return shell.WriteDocuments(cmd.OutOrStdout(), docs)
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the data file, or the sample, into the store",
	Example: `  flindoc import --store ./data --data books.json --index title --index author,published_year
  flindoc find --store ./data --filter '{"author": "J.R.R. Tolkien"}'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := env.openStore()
		if err != nil {
			return err
		}
		docs, err := env.readDocuments()
		if err != nil {
			return err
		}

		c := db.Open(env.cfg.Collection, db.WithLogger(env.logger))
		if _, err := c.InsertMany(cmd.Context(), docs); err != nil {
			return err
		}
		for _, def := range env.cfg.Indexes {
			if _, err := c.CreateIndex(config.IndexFields(def)...); err != nil {
				return fmt.Errorf("index %q: %w", def, err)
			}
		}
		if err := c.SaveTo(st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d documents into %s\n", c.Len(), c.Name())
		return nil
	},
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell on the collection",
	Long: `Start an interactive shell on the collection. With --store, changes made
in the shell are saved back when it exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := env.openCollection(cmd.Context())
		if err != nil {
			return err
		}
		history, _ := cmd.Flags().GetString("history")
		if err := shell.New(c, env.logger).Run(cmd.Context(), cmd.OutOrStdout(), history); err != nil {
			return err
		}
		if env.store == nil {
			return nil
		}
		return c.SaveTo(env.store)
	},
}

func init() {
	addQueryFlags(findCmd.Flags(), true, true)
	addQueryFlags(countCmd.Flags(), false, false)
	addQueryFlags(explainCmd.Flags(), true, false)

	aggregateCmd.Flags().String("pipeline", "", "pipeline as a JSON array")
	aggregateCmd.Flags().String("file", "", `read the pipeline from a file, "-" for stdin`)

	shellCmd.Flags().String("history", "", "file to keep command history in")
}

func addQueryFlags(f *pflag.FlagSet, options, find bool) {
	f.String("filter", "{}", "filter as a JSON object")
	if options {
		f.String("options", "", `find options as JSON, e.g. '{"sort": {"price": -1}, "limit": 5}'`)
		f.String("hint", "", `index name to use, or "$natural" for a full scan`)
	}
	if find {
		f.String("sort", "", "sort keys, e.g. price:desc,title")
		f.Int("skip", 0, "documents to skip")
		f.Int("limit", 0, "maximum documents to return (0 for all)")
		f.String("projection", "", `fields to return as JSON, e.g. '{"title": 1, "_id": 0}'`)
	}
}

// queryFlags builds a filter and find options from --filter, --options and
// the individual option flags, which take precedence over --options.
func queryFlags(flags *pflag.FlagSet) (filter.Node, db.FindOptions, error) {
	raw, _ := flags.GetString("filter")
	f, err := filter.ParseJSON([]byte(raw))
	if err != nil {
		return nil, db.FindOptions{}, err
	}

	var opts db.FindOptions
	if flags.Lookup("options") == nil {
		return f, opts, nil
	}
	if raw, _ := flags.GetString("options"); raw != "" {
		var spec map[string]any
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			return nil, opts, fmt.Errorf("%w: options: %v", db.ErrInvalidQuery, err)
		}
		if opts, err = db.ParseFindOptions(spec); err != nil {
			return nil, opts, err
		}
	}

	if flags.Changed("hint") {
		opts.Hint, _ = flags.GetString("hint")
	}
	if flags.Lookup("sort") == nil {
		return f, opts, nil
	}
	if flags.Changed("sort") {
		s, _ := flags.GetString("sort")
		if opts.Sort, err = document.ParseSortString(s); err != nil {
			return nil, opts, fmt.Errorf("%w: %v", db.ErrInvalidQuery, err)
		}
	}
	if flags.Changed("skip") {
		opts.Skip, _ = flags.GetInt("skip")
	}
	if flags.Changed("limit") {
		opts.Limit, _ = flags.GetInt("limit")
	}
	if flags.Changed("projection") {
		s, _ := flags.GetString("projection")
		var spec map[string]any
		if err := json.Unmarshal([]byte(s), &spec); err != nil {
			return nil, opts, fmt.Errorf("%w: projection: %v", db.ErrInvalidQuery, err)
		}
		if opts.Projection, err = db.ParseProjection(spec); err != nil {
			return nil, opts, err
		}
	}
	if opts.Skip < 0 || opts.Limit < 0 {
		return nil, opts, fmt.Errorf("%w: skip and limit must not be negative", db.ErrInvalidQuery)
	}
	return f, opts, nil
}

func pipelineSource(cmd *cobra.Command, args []string) ([]byte, error) {
	pipeline, _ := cmd.Flags().GetString("pipeline")
	file, _ := cmd.Flags().GetString("file")

	var sources []string
	if len(args) == 1 {
		sources = append(sources, "argument")
	}
	if pipeline != "" {
		sources = append(sources, "--pipeline")
	}
	if file != "" {
		sources = append(sources, "--file")
	}
	if len(sources) != 1 {
		return nil, fmt.Errorf("give the pipeline exactly once, got %d sources (%s)", len(sources), strings.Join(sources, ", "))
	}

	switch {
	case len(args) == 1:
		return []byte(args[0]), nil
	case pipeline != "":
		return []byte(pipeline), nil
	case file == "-":
		return io.ReadAll(cmd.InOrStdin())
	default:
		return os.ReadFile(file)
	}
}
