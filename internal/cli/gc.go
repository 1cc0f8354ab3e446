package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// GCOptions holds flags for the gc command.
type GCOptions struct {
	*RootOptions
}

// GCResult is the output of the gc command.
type GCResult struct {
	DocID   int `json:"doc_id"`
	Deleted int `json:"deleted"`
	Kept    int `json:"kept"`
}

// NewGCCommand creates the gc command.
func NewGCCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GCOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "gc <doc-id>",
		Short: "Remove paragraph content only old versions use",
		Long: `Remove every paragraph content version that only historical versions of
the document use. The latest content of every paragraph and content other
documents still reference are kept. Historical versions that need removed
content can no longer be shown.

Exit codes:
  0 - Collection finished
  1 - Document not found
  2 - Command error

Examples:
  pardoc gc 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGC(opts, cmd, args)
		},
	}

	return cmd
}

func runGC(opts *GCOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}

	result := GCResult{DocID: docID}
	err = opts.withApp(cmd, "failed to collect document", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}
		res, err := doc.Collect(ctx)
		if err != nil {
			return err
		}
		result.Deleted, result.Kept = res.Deleted, res.Kept
		return nil
	})
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Deleted %s, kept %s still referenced",
		plural(result.Deleted, "content version"), plural(result.Kept, "content version"))
	return opts.formatter(cmd).Result(result, text)
}
