package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pardoc/internal/paragraph"
)

// TextInput holds the --text and --file flags of commands that take
// markdown.
type TextInput struct {
	Text string
	File string
}

func (in *TextInput) addFlags(cmd *cobra.Command, what string) {
	cmd.Flags().StringVarP(&in.Text, "text", "t", "", what+" as a flag value")
	cmd.Flags().StringVarP(&in.File, "file", "f", "", "read "+what+" from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("text", "file")
}

// read returns the text the flags name.
func (in *TextInput) read(cmd *cobra.Command) (string, error) {
	switch {
	case cmd.Flags().Changed("text"):
		return in.Text, nil
	case in.File == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		return string(data), nil
	case in.File != "":
		data, err := os.ReadFile(in.File)
		if err != nil {
			return "", WrapExitError(ExitCommandError, "failed to read input file", err)
		}
		return string(data), nil
	default:
		return "", WrapExitError(ExitCommandError, "missing input", errNoInput)
	}
}

// parseDocID parses a positive document id argument.
func parseDocID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, exitErrorf("invalid document id %q: must be a positive integer", s)
	}
	return id, nil
}

// attrsFlag converts a --attr flag value. Unset flags yield nil so that
// modifications keep the current attributes.
func attrsFlag(cmd *cobra.Command, name string, values map[string]string) paragraph.Attrs {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	attrs := paragraph.Attrs{}
	for k, v := range values {
		attrs[k] = v
	}
	return attrs
}

// parseSettingValue reads a command line value as a YAML scalar, so that
// numbers and booleans keep their type.
func parseSettingValue(raw string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, exitErrorf("invalid setting value %q: %v", raw, err)
	}
	if v == nil {
		return raw, nil
	}
	return v, nil
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
