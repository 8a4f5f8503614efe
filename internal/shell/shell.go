// Package shell is an interactive prompt over a single collection.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/skshohagmiah/flindoc/internal/aggregate"
	"github.com/skshohagmiah/flindoc/internal/config"
	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/internal/document"
	"github.com/skshohagmiah/flindoc/internal/filter"
)

// ErrExit is returned by Execute for the exit command.
var ErrExit = errors.New("exit")

var commandNames = []string{
	"aggregate", "count", "delete", "deleteMany", "dropIndex", "exit", "explain",
	"find", "help", "index", "indexes", "insert", "update", "updateMany",
}

const help = `Commands (arguments are JSON):
  find [filter] [options]        options: {"sort":{"price":-1},"skip":0,"limit":5,"projection":{"title":1},"hint":"title_1"}
  count [filter]
  explain [filter] [options]
  aggregate <pipeline>           e.g. [{"$group":{"_id":"$genre","n":{"$sum":1}}}]
  insert <document>
  update <filter> <update>       first match; updateMany for all
  delete <filter>                first match; deleteMany for all
  index <field>[,<field>...]     create an index
  dropIndex <name>
  indexes
  help
  exit`

// Shell executes commands against a collection.
type Shell struct {
	coll   *db.Collection
	logger *slog.Logger
}

// New creates a shell over c.
func New(c *db.Collection, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Shell{coll: c, logger: logger}
}

// Run reads commands until exit or end of input. history, if set, is
// loaded at start and written back on return.
func (s *Shell) Run(ctx context.Context, out io.Writer, history string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var c []string
		for _, name := range commandNames {
			if strings.HasPrefix(name, prefix) {
				c = append(c, name)
			}
		}
		return c
	})

	if history != "" {
		if f, err := os.Open(history); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.Create(history); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}()
	}

	fmt.Fprintf(out, "flindoc shell on collection %q, type help for commands\n", s.coll.Name())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		input, err := line.Prompt(s.coll.Name() + "> ")
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		err = s.Execute(ctx, input, out)
		if errors.Is(err, ErrExit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

// Execute runs one command line, writing results to out.
func (s *Shell) Execute(ctx context.Context, input string, out io.Writer) error {
	name, rest, _ := strings.Cut(strings.TrimSpace(input), " ")
	rest = strings.TrimSpace(rest)
	s.logger.Debug("shell command", "command", name)

	switch name {
	case "help":
		fmt.Fprintln(out, help)
		return nil
	case "exit", "quit":
		return ErrExit
	case "find":
		return s.find(ctx, rest, out)
	case "count":
		return s.count(ctx, rest, out)
	case "explain":
		return s.explain(ctx, rest, out)
	case "aggregate":
		return s.aggregate(ctx, rest, out)
	case "insert":
		return s.insert(ctx, rest, out)
	case "update", "updateMany":
		return s.update(ctx, rest, out, name == "updateMany")
	case "delete", "deleteMany":
		return s.remove(ctx, rest, out, name == "deleteMany")
	case "index":
		h, err := s.coll.CreateIndex(config.IndexFields(rest)...)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, h.Name)
		return nil
	case "dropIndex":
		return s.coll.DropIndex(rest)
	case "indexes":
		for _, h := range s.coll.Indexes() {
			fmt.Fprintf(out, "%s (%s)\n", h.Name, strings.Join(h.Fields, ", "))
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s", name)
	}
}

// jsonArgs decodes up to limit whitespace-separated JSON values.
func jsonArgs(s string, limit int) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var args []any
	for {
		var v any
		if err := dec.Decode(&v); err == io.EOF {
			return args, nil
		} else if err != nil {
			return nil, fmt.Errorf("%w: %v", db.ErrInvalidQuery, err)
		}
		if len(args) == limit {
			return nil, fmt.Errorf("%w: too many arguments", db.ErrInvalidQuery)
		}
		args = append(args, v)
	}
}

func objectArg(args []any, i int, what string) (map[string]any, error) {
	if i >= len(args) {
		return nil, nil
	}
	m, ok := args[i].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", db.ErrInvalidQuery, what)
	}
	return m, nil
}

// filterAndOptions parses "[filter] [options]".
func filterAndOptions(rest string) (filter.Node, db.FindOptions, error) {
	args, err := jsonArgs(rest, 2)
	if err != nil {
		return nil, db.FindOptions{}, err
	}
	fm, err := objectArg(args, 0, "filter")
	if err != nil {
		return nil, db.FindOptions{}, err
	}
	f, err := filter.Parse(fm)
	if err != nil {
		return nil, db.FindOptions{}, err
	}
	om, err := objectArg(args, 1, "options")
	if err != nil {
		return nil, db.FindOptions{}, err
	}
	opts, err := db.ParseFindOptions(om)
	return f, opts, err
}

func (s *Shell) find(ctx context.Context, rest string, out io.Writer) error {
	f, opts, err := filterAndOptions(rest)
	if err != nil {
		return err
	}
	docs, err := s.coll.FindAll(ctx, f, opts)
	if err != nil {
		return err
	}
	return WriteDocuments(out, docs)
}

func (s *Shell) count(ctx context.Context, rest string, out io.Writer) error {
	f, _, err := filterAndOptions(rest)
	if err != nil {
		return err
	}
	n, err := s.coll.Count(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, n)
	return nil
}

func (s *Shell) explain(ctx context.Context, rest string, out io.Writer) error {
	f, opts, err := filterAndOptions(rest)
	if err != nil {
		return err
	}
	exp, err := s.coll.ExplainWith(ctx, f, opts)
	if err != nil {
		return err
	}
	WriteExplanation(out, exp)
	return nil
}

func (s *Shell) aggregate(ctx context.Context, rest string, out io.Writer) error {
	p, err := aggregate.ParsePipelineJSON([]byte(rest))
	if err != nil {
		return err
	}
	docs, err := s.coll.AggregateAll(ctx, p)
	if err != nil {
		return err
	}
	return WriteDocuments(out, docs)
}

func (s *Shell) insert(ctx context.Context, rest string, out io.Writer) error {
	args, err := jsonArgs(rest, 1)
	if err != nil {
		return err
	}
	m, err := objectArg(args, 0, "document")
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: insert needs a document", db.ErrInvalidDocument)
	}
	doc, err := document.FromMap(m)
	if err != nil {
		return fmt.Errorf("%w: %v", db.ErrInvalidDocument, err)
	}
	id, err := s.coll.Insert(ctx, doc)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id)
	return nil
}

func (s *Shell) update(ctx context.Context, rest string, out io.Writer, many bool) error {
	args, err := jsonArgs(rest, 2)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: update needs a filter and an update", db.ErrInvalidQuery)
	}
	fm, err := objectArg(args, 0, "filter")
	if err != nil {
		return err
	}
	f, err := filter.Parse(fm)
	if err != nil {
		return err
	}
	um, err := objectArg(args, 1, "update")
	if err != nil {
		return err
	}
	u, err := db.ParseUpdate(um)
	if err != nil {
		return err
	}

	var res db.UpdateResult
	if many {
		res, err = s.coll.UpdateMany(ctx, f, u)
	} else {
		res, err = s.coll.UpdateOne(ctx, f, u)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "matched %d, modified %d\n", res.MatchedCount, res.ModifiedCount)
	return nil
}

func (s *Shell) remove(ctx context.Context, rest string, out io.Writer, many bool) error {
	f, _, err := filterAndOptions(rest)
	if err != nil {
		return err
	}
	var res db.DeleteResult
	if many {
		res, err = s.coll.DeleteMany(ctx, f)
	} else {
		res, err = s.coll.DeleteOne(ctx, f)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %d\n", res.DeletedCount)
	return nil
}

// WriteDocuments prints one JSON document per line with sorted keys.
func WriteDocuments(out io.Writer, docs []db.Document) error {
	var buf bytes.Buffer
	for _, d := range docs {
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	_, err := out.Write(buf.Bytes())
	return err
}

// WriteExplanation prints exp as aligned key/value lines.
func WriteExplanation(out io.Writer, exp db.Explanation) {
	fmt.Fprintf(out, "accessPath:        %s\n", exp.AccessPath)
	if exp.Index != nil {
		fmt.Fprintf(out, "index:             %s (%s)\n", exp.Index.Name, strings.Join(exp.Index.Fields, ", "))
		fmt.Fprintf(out, "keysExamined:      %d\n", exp.KeysExamined)
	}
	fmt.Fprintf(out, "documentsExamined: %d\n", exp.DocumentsExamined)
	fmt.Fprintf(out, "documentsReturned: %d\n", exp.DocumentsReturned)
	fmt.Fprintf(out, "duration:          %s\n", exp.Duration)
}
