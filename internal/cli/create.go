package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	IgnoreExists bool
}

// CreateResult is the output of create and remove.
type CreateResult struct {
	DocID int `json:"doc_id"`
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create [doc-id]",
		Short: "Create an empty document",
		Long: `Create an empty document at version 0.0.

Without an id the document gets the next free id.

Exit codes:
  0 - Document created
  1 - Document already exists or the id is invalid
  2 - Command error

Examples:
  pardoc create
  pardoc create 12
  pardoc create 12 --ignore-exists --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.IgnoreExists, "ignore-exists", false, "succeed if the document already exists")

	return cmd
}

func runCreate(opts *CreateOptions, cmd *cobra.Command, args []string) error {
	docID := 0
	if len(args) == 1 {
		id, err := parseDocID(args[0])
		if err != nil {
			return err
		}
		docID = id
	}

	var result CreateResult
	err := opts.withApp(cmd, "failed to create document", func(ctx context.Context, app *App) error {
		if docID == 0 {
			doc, err := app.Library.CreateNext(ctx)
			if err != nil {
				return err
			}
			result.DocID = doc.ID()
			return nil
		}
		doc, err := app.Library.Create(ctx, docID, opts.IgnoreExists)
		if err != nil {
			return err
		}
		result.DocID = doc.ID()
		return nil
	})
	if err != nil {
		return err
	}

	return opts.formatter(cmd).Result(result, fmt.Sprintf("Created document %d", result.DocID))
}

// RemoveOptions holds flags for the remove command.
type RemoveOptions struct {
	*RootOptions
	IgnoreMissing bool
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RemoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "remove <doc-id>",
		Short: "Remove a document with all its versions and paragraphs",
		Long: `Remove a document with all its versions, changelog and paragraphs.

Exit codes:
  0 - Document removed
  1 - Document not found
  2 - Command error

Examples:
  pardoc remove 12
  pardoc remove 12 --ignore-missing`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.IgnoreMissing, "ignore-missing", false, "succeed if the document does not exist")

	return cmd
}

func runRemove(opts *RemoveOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}

	err = opts.withApp(cmd, "failed to remove document", func(ctx context.Context, app *App) error {
		return app.Library.Remove(ctx, docID, opts.IgnoreMissing)
	})
	if err != nil {
		return err
	}

	return opts.formatter(cmd).Result(CreateResult{DocID: docID}, fmt.Sprintf("Removed document %d", docID))
}
