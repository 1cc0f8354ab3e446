package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pardoc/internal/docparser"
	"github.com/roach88/pardoc/internal/paragraph"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	TaskID string
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <doc-id>",
		Short: "Print a document with every reference expanded",
		Long: `Print a document with every reference paragraph replaced by the
content it points at. Broken references are reported inline and do not
fail the command.

With --task only the paragraph carrying that taskId is printed, following
references.

Exit codes:
  0 - Document printed
  1 - Document or task not found
  2 - Command error

Examples:
  pardoc resolve 2
  pardoc resolve 2 --task t1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.TaskID, "task", "", "print only the paragraph with this taskId")

	return cmd
}

func runResolve(opts *ResolveOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}

	var data interface{}
	var text string
	err = opts.withApp(cmd, "failed to resolve document", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}

		if opts.TaskID != "" {
			p, err := doc.ParagraphByTask(ctx, opts.TaskID)
			if err != nil {
				return err
			}
			data = paragraphView(p)
			text = docparser.Text([]paragraph.Paragraph{p}, docparser.WriteOptions{})
			return nil
		}

		items, err := doc.Dereferenced(ctx)
		if err != nil {
			return err
		}
		var b strings.Builder
		for i, r := range items {
			if i > 0 {
				b.WriteString("\n")
			}
			if r.Err != nil {
				b.WriteString("!! " + r.Err.Error() + "\n")
			}
			b.WriteString(docparser.Text([]paragraph.Paragraph{r.Paragraph}, docparser.WriteOptions{}))
		}
		data = resolvedViews(items)
		text = b.String()
		return nil
	})
	if err != nil {
		return err
	}

	return opts.formatter(cmd).Result(data, text)
}

// SectionOptions holds flags for the section command.
type SectionOptions struct {
	*RootOptions
	StartID string
	EndID   string
	Area    string
	Delete  bool
	Hashes  bool
}

// NewSectionCommand creates the section command.
func NewSectionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SectionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "section <doc-id>",
		Short: "Print or delete a range of paragraphs",
		Long: `Print the paragraphs from --start to --end inclusive, or the named
area given by --area. With --delete the range is removed instead.

Exit codes:
  0 - Section printed or deleted
  1 - Document, paragraph or area not found
  2 - Command error

Examples:
  pardoc section 1 --start 5FbDWZnK2x1t --end qI3bMx7Wk0Rj
  pardoc section 1 --area intro
  pardoc section 1 --start 5FbDWZnK2x1t --end qI3bMx7Wk0Rj --delete`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSection(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.StartID, "start", "", "first paragraph of the section")
	cmd.Flags().StringVar(&opts.EndID, "end", "", "last paragraph of the section")
	cmd.Flags().StringVar(&opts.Area, "area", "", "name of an area")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete the section")
	cmd.Flags().BoolVar(&opts.Hashes, "hashes", false, "include content hashes in marker lines")
	cmd.MarkFlagsRequiredTogether("start", "end")
	cmd.MarkFlagsOneRequired("start", "area")
	cmd.MarkFlagsMutuallyExclusive("start", "area")
	cmd.MarkFlagsMutuallyExclusive("delete", "area")

	return cmd
}

func runSection(opts *SectionOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}

	var data interface{}
	var text string
	err = opts.withApp(cmd, "failed to read section", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}

		if opts.Delete {
			res, err := doc.DeleteSection(ctx, opts.StartID, opts.EndID)
			if err != nil {
				return err
			}
			v, err := doc.Version(ctx)
			if err != nil {
				return err
			}
			view := editResultView(res, v)
			data, text = view, view.String()
			return nil
		}

		var pars []paragraph.Paragraph
		if opts.Area != "" {
			pars, err = doc.NamedSection(ctx, opts.Area)
		} else {
			pars, err = doc.Section(ctx, opts.StartID, opts.EndID)
		}
		if err != nil {
			return err
		}
		data = paragraphViews(pars)
		text = docparser.Text(pars, docparser.WriteOptions{Hashes: opts.Hashes})
		return nil
	})
	if err != nil {
		return err
	}

	return opts.formatter(cmd).Result(data, text)
}
