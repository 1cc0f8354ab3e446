package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pardoc/internal/document"
	"github.com/roach88/pardoc/internal/merge"
	"github.com/roach88/pardoc/internal/store"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Input    TextInput
	Original string
	Strict   bool
	StartID  string
	EndID    string
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <doc-id>",
		Short: "Apply an edited text export to a document",
		Long: `Apply an edited text export to a document.

The new text is diffed against the original text by paragraph id and
content, and only the differences are applied: deleted ranges first, then
inserts and modifications. The original defaults to the current export.

With --start and --end only that section is replaced by the new text.

Exit codes:
  0 - Document updated
  1 - Invalid text, duplicate ids, corrupt original or unknown section
  2 - Command error

Examples:
  pardoc show 1 > doc.md && $EDITOR doc.md && pardoc update 1 --file doc.md
  pardoc update 1 --file doc.md --original doc.orig.md --strict=false
  pardoc update 1 --file part.md --start 5FbDWZnK2x1t --end qI3bMx7Wk0Rj`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, cmd, args)
		},
	}

	opts.Input.addFlags(cmd, "new document text")
	cmd.Flags().StringVar(&opts.Original, "original", "", "file holding the text the edit started from")
	cmd.Flags().BoolVar(&opts.Strict, "strict", true, "reject any structural issue, not only critical ones (default from config)")
	cmd.Flags().StringVar(&opts.StartID, "start", "", "first paragraph of the section to replace")
	cmd.Flags().StringVar(&opts.EndID, "end", "", "last paragraph of the section to replace")
	cmd.MarkFlagsRequiredTogether("start", "end")
	cmd.MarkFlagsMutuallyExclusive("original", "start")

	return cmd
}

func runUpdate(opts *UpdateOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}
	newText, err := opts.Input.read(cmd)
	if err != nil {
		return err
	}
	original := ""
	if opts.Original != "" {
		original, err = (&TextInput{File: opts.Original}).read(cmd)
		if err != nil {
			return err
		}
	}

	var view EditResultView
	err = opts.withApp(cmd, "failed to update document", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}

		strict := app.Config.Strict
		if cmd.Flags().Changed("strict") {
			strict = opts.Strict
		}
		var res document.EditResult
		if opts.StartID != "" {
			res, err = app.Merge.UpdateSection(ctx, doc, newText, opts.StartID, opts.EndID, strict)
		} else {
			if opts.Original == "" {
				if original, err = doc.ExportMarkdown(ctx, false); err != nil {
					return err
				}
			}
			res, err = app.Merge.UpdateWhole(ctx, doc, newText, original, strict)
		}
		if err != nil {
			return err
		}

		v, err := doc.Version(ctx)
		if err != nil {
			return err
		}
		view = editResultView(res, v)
		return nil
	})
	if err != nil {
		return err
	}

	return opts.formatter(cmd).Result(view, view.String())
}

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <doc-id> <from-version> <to-version>",
		Short: "Compare two versions of a document",
		Long: `Compare two versions of a document paragraph by paragraph.

Each line is one step: insert, replace, delete, or change (same paragraph,
new content).

Exit codes:
  0 - Diff printed
  1 - Document or version not found
  2 - Command error

Examples:
  pardoc diff 1 2.0 3.1
  pardoc diff 1 0.0 4.0 --format json`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, cmd, args)
		},
	}

	return cmd
}

func runDiff(opts *DiffOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}
	from, err := store.ParseVersion(args[1])
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid from-version", err)
	}
	to, err := store.ParseVersion(args[2])
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid to-version", err)
	}

	var changes []ChangeView
	err = opts.withApp(cmd, "failed to diff versions", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}
		oldPars, err := doc.ParagraphsAt(ctx, from)
		if err != nil {
			return err
		}
		newPars, err := doc.ParagraphsAt(ctx, to)
		if err != nil {
			return err
		}
		changes = changeViews(merge.Diff(oldPars, newPars))
		return nil
	})
	if err != nil {
		return err
	}

	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		lines = append(lines, c.String())
	}
	text := strings.Join(lines, "\n")
	if len(lines) == 0 {
		text = fmt.Sprintf("Versions %s and %s are identical", from, to)
	}
	return opts.formatter(cmd).Result(changes, text)
}
