package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/settings"
)

// SettingsOptions holds flags for the settings commands.
type SettingsOptions struct {
	*RootOptions
	Input TextInput
}

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change document settings",
		Long: `Read and change the settings of a document.

Settings live in YAML paragraphs at the top of the document marked with
the settings attribute. Later settings paragraphs override earlier ones.`,
	}

	cmd.AddCommand(newSettingsGetCommand(rootOpts))
	cmd.AddCommand(newSettingsSetCommand(rootOpts))
	cmd.AddCommand(newSettingsReplaceCommand(rootOpts))

	return cmd
}

func newSettingsGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SettingsOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "get <doc-id> [key]",
		Short: "Print the merged settings or one key",
		Long: `Print the merged settings of a document as YAML, or the value of one key.

Exit codes:
  0 - Settings printed
  1 - Document or key not found
  2 - Command error

Examples:
  pardoc settings get 1
  pardoc settings get 1 macro_delimiter`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsGet(opts, cmd, args)
		},
	}
}

func runSettingsGet(opts *SettingsOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}

	var data interface{}
	err = opts.withApp(cmd, "failed to read settings", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}
		s, err := doc.Settings(ctx)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			data = s.Values()
			return nil
		}
		v, ok := s.Get(args[1])
		if !ok {
			return docerr.NotFound("setting %q", args[1]).WithDoc(docID)
		}
		data = v
		return nil
	})
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode settings", err)
	}
	return opts.formatter(cmd).Result(data, string(out))
}

func newSettingsSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SettingsOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "set <doc-id> <key> <value>",
		Short: "Set one setting, keeping the others",
		Long: `Set one setting, keeping the others. The value is read as YAML, so
numbers and booleans keep their type.

Exit codes:
  0 - Setting stored
  1 - Document not found
  2 - Command error

Examples:
  pardoc settings set 1 auto_number_headings true
  pardoc settings set 1 source_document 4`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsSet(opts, cmd, args)
		},
	}
}

func runSettingsSet(opts *SettingsOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}
	key := args[1]
	value, err := parseSettingValue(args[2])
	if err != nil {
		return err
	}

	var result ParagraphResult
	err = opts.withApp(cmd, "failed to store setting", func(ctx context.Context, app *App) error {
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}
		p, err := doc.AddSetting(ctx, key, value)
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

	return opts.formatter(cmd).Result(result, fmt.Sprintf("Set %s (version %s)", key, result.Version))
}

func newSettingsReplaceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SettingsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replace <doc-id>",
		Short: "Replace all settings with a YAML mapping",
		Long: `Replace the document settings with a YAML mapping.

Exit codes:
  0 - Settings stored
  1 - Document not found or the YAML is not a mapping
  2 - Command error

Examples:
  pardoc settings replace 1 --file settings.yaml
  pardoc settings replace 1 --text "macro_delimiter: '%%'"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsReplace(opts, cmd, args)
		},
	}

	opts.Input.addFlags(cmd, "settings YAML")

	return cmd
}

func runSettingsReplace(opts *SettingsOptions, cmd *cobra.Command, args []string) error {
	docID, err := parseDocID(args[0])
	if err != nil {
		return err
	}
	raw, err := opts.Input.read(cmd)
	if err != nil {
		return err
	}

	var result ParagraphResult
	err = opts.withApp(cmd, "failed to store settings", func(ctx context.Context, app *App) error {
		s, err := settings.Parse(raw)
		if err != nil {
			return err
		}
		doc, err := app.Document(ctx, docID)
		if err != nil {
			return err
		}
		p, err := doc.SetSettings(ctx, s)
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

	return opts.formatter(cmd).Result(result, fmt.Sprintf("Replaced settings (version %s)", result.Version))
}
