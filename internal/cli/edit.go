package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pardoc/internal/document"
	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/store"
)

// EditOptions holds flags shared by add, insert and modify.
type EditOptions struct {
	*RootOptions
	Input    TextInput
	Attrs    map[string]string
	ParID    string
	BeforeID string
	AfterID  string
}

const editExitCodes = `Exit codes:
  0 - Document updated
  1 - Document or paragraph not found, duplicate id, invalid attributes
  2 - Command error`

func (opts *EditOptions) addFlags(cmd *cobra.Command) {
	opts.Input.addFlags(cmd, "paragraph markdown")
	cmd.Flags().StringToStringVarP(&opts.Attrs, "attr", "a", nil, "paragraph attribute key=value (repeatable)")
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <doc-id>",
		Short: "Append a paragraph to a document",
		Long: `Append one paragraph to the end of a document.

The paragraph gets a new id unless --id names one.

` + editExitCodes + `

Examples:
  pardoc add 1 --text "# Introduction"
  pardoc add 1 --file intro.md --attr area=intro
  pardoc add 2 --text "" --attr rd=1 --attr rp=5FbDWZnK2x1t`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, cmd, args, "add")
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.ParID, "id", "", "paragraph id to use instead of a generated one")

	return cmd
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert <doc-id>",
		Short: "Insert a paragraph before or after another one",
		Long: `Insert one paragraph next to an existing paragraph.

` + editExitCodes + `

Examples:
  pardoc insert 1 --before 5FbDWZnK2x1t --text "New first paragraph"
  pardoc insert 1 --after 5FbDWZnK2x1t --file note.md`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, cmd, args, "insert")
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.ParID, "id", "", "paragraph id to use instead of a generated one")
	cmd.Flags().StringVar(&opts.BeforeID, "before", "", "insert before this paragraph")
	cmd.Flags().StringVar(&opts.AfterID, "after", "", "insert after this paragraph")
	cmd.MarkFlagsMutuallyExclusive("before", "after")
	cmd.MarkFlagsOneRequired("before", "after")

	return cmd
}

// NewModifyCommand creates the modify command.
func NewModifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "modify <doc-id> <par-id>",
		Short: "Replace the markdown of a paragraph",
		Long: `Replace the markdown of a paragraph.

Attributes are kept unless --attr is given, in which case they are
replaced by the given set.

` + editExitCodes + `

Examples:
  pardoc modify 1 5FbDWZnK2x1t --text "Corrected text"
  pardoc modify 1 5FbDWZnK2x1t --file para.md --attr taskId=t1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ParID = args[1]
			return runEdit(opts, cmd, args[:1], "modify")
		},
	}

	opts.addFlags(cmd)

	return cmd
}

func runEdit(opts *EditOptions, cmd *cobra.Command, args []string, op string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}
	md, err := opts.Input.read(cmd)
	if err != nil {
		return err
	}
	attrs := attrsFlag(cmd, "attr", opts.Attrs)

	var result ParagraphResult
	err = opts.withApp(cmd, "failed to "+op+" paragraph", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}

		var p paragraph.Paragraph
		switch op {
		case "add":
			p, err = doc.AddParagraph(ctx, md, attrs, opts.ParID)
		case "insert":
			pos := document.Position{BeforeID: opts.BeforeID, AfterID: opts.AfterID}
			p, err = doc.InsertParagraph(ctx, md, attrs, opts.ParID, pos)
		case "modify":
			p, err = doc.ModifyParagraph(ctx, opts.ParID, md, attrs)
		}
		if err != nil {
			return err
		}

		v, err := doc.Version(ctx)
		if err != nil {
			return err
		}
		result = ParagraphResult{Paragraph: paragraphView(p), Version: v}
		return nil
	})
	if err != nil {
		return err
	}

	past := map[string]string{"add": "Added", "insert": "Inserted", "modify": "Modified"}[op]
	text := fmt.Sprintf("%s paragraph %s (version %s)", past, result.Paragraph.ID, result.Version)
	return opts.formatter(cmd).Result(result, text)
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <doc-id> <par-id>",
		Short: "Delete a paragraph from a document",
		Long: `Delete a paragraph from the current version of a document.

Older versions keep the paragraph until it is garbage-collected.

Exit codes:
  0 - Paragraph deleted
  1 - Document or paragraph not found
  2 - Command error

Examples:
  pardoc delete 1 5FbDWZnK2x1t`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, cmd, args)
		},
	}

	return cmd
}

func runDelete(opts *EditOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}
	parID := args[1]

	var v store.Version
	err = opts.withApp(cmd, "failed to delete paragraph", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.DeleteParagraph(ctx, parID); err != nil {
			return err
		}
		cur, err := doc.Version(ctx)
		v = cur
		return err
	})
	if err != nil {
		return err
	}

	data := map[string]interface{}{"par_id": parID, "version": v}
	return opts.formatter(cmd).Result(data, fmt.Sprintf("Deleted paragraph %s (version %s)", parID, v))
}

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Input TextInput
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <doc-id>",
		Short: "Append markdown text as paragraphs",
		Long: "Split markdown text into paragraphs and append them to a document.\n\n" +
			"Blocks may carry a marker line (#- {id=\"...\" key=\"value\"}); blocks without\n" +
			"one get new ids. Text with critical issues such as duplicate ids is\n" +
			"rejected as a whole.\n\n" + editExitCodes + `

Examples:
  pardoc import 1 --file chapter.md
  cat chapter.md | pardoc import 1 --file -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, cmd, args)
		},
	}

	opts.Input.addFlags(cmd, "markdown text")

	return cmd
}

func runImport(opts *ImportOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}
	text, err := opts.Input.read(cmd)
	if err != nil {
		return err
	}

	var view EditResultView
	err = opts.withApp(cmd, "failed to import text", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}
		added, err := doc.AddText(ctx, text)
		if err != nil {
			return err
		}
		v, err := doc.Version(ctx)
		if err != nil {
			return err
		}
		res := document.EditResult{Added: added}
		if len(added) > 0 {
			res.FirstID, res.LastID = added[0].ID(), added[len(added)-1].ID()
		}
		view = editResultView(res, v)
		return nil
	})
	if err != nil {
		return err
	}

	return opts.formatter(cmd).Result(view, view.String())
}
