package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pardoc/internal/docparser"
	"github.com/roach88/pardoc/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Hashes  bool
	Version string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <doc-id>",
		Short: "Print a document in the block text format",
		Long: `Print a document in the block text format: every paragraph preceded by
a marker line carrying its id and attributes. The output can be edited and
fed back with "pardoc update".

Exit codes:
  0 - Document printed
  1 - Document or version not found
  2 - Command error

Examples:
  pardoc show 1
  pardoc show 1 --hashes
  pardoc show 1 --version 2.0 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Hashes, "hashes", false, "include content hashes in marker lines")
	cmd.Flags().StringVar(&opts.Version, "version", "", "show a historical version (major.minor)")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}
	var at *store.Version
	if opts.Version != "" {
		v, err := store.ParseVersion(opts.Version)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --version", err)
		}
		at = &v
	}

	var view DocumentView
	var text string
	err = opts.withApp(cmd, "failed to show document", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}
		view.DocID = docID

		if at != nil {
			pars, err := doc.ParagraphsAt(ctx, *at)
			if err != nil {
				return err
			}
			view.Version = *at
			view.Paragraphs = paragraphViews(pars)
			text = docparser.Text(pars, docparser.WriteOptions{Hashes: opts.Hashes})
			return nil
		}

		v, err := doc.Version(ctx)
		if err != nil {
			return err
		}
		pars, err := doc.Paragraphs(ctx)
		if err != nil {
			return err
		}
		text, err = doc.ExportMarkdown(ctx, opts.Hashes)
		if err != nil {
			return err
		}
		view.Version = v
		view.Paragraphs = paragraphViews(pars)
		return nil
	})
	if err != nil {
		return err
	}

	return opts.formatter(cmd).Result(view, text)
}

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Max int
}

// LogResult is the output of the log command.
type LogResult struct {
	DocID   int                    `json:"doc_id"`
	Version store.Version          `json:"version"`
	Entries []store.ChangelogEntry `json:"entries"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <doc-id>",
		Short: "Show the current version and changelog of a document",
		Long: `Show the current version of a document and its changelog, newest
entry first.

Exit codes:
  0 - Changelog printed
  1 - Document not found
  2 - Command error

Examples:
  pardoc log 1
  pardoc log 1 --max 10 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd, args)
		},
	}

	cmd.Flags().IntVarP(&opts.Max, "max", "n", 0, "show at most this many entries (0 = all)")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}

	result := LogResult{DocID: docID}
	err = opts.withApp(cmd, "failed to read changelog", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}
		v, err := doc.Version(ctx)
		if err != nil {
			return err
		}
		entries, err := doc.Changelog(ctx, opts.Max)
		if err != nil {
			return err
		}
		result.Version = v
		result.Entries = entries
		return nil
	})
	if err != nil {
		return err
	}
	if result.Entries == nil {
		result.Entries = []store.ChangelogEntry{}
	}

	return opts.formatter(cmd).Result(result, formatLog(result))
}

func formatLog(r LogResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document %d at version %s\n", r.DocID, r.Version)
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "%-6s %s  %-8s %s", e.Ver, e.Time, e.Op, e.ParID)
		keys := make([]string, 0, len(e.OpParams))
		for k := range e.OpParams {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, e.OpParams[k])
		}
		b.WriteString("\n")
	}
	return b.String()
}
