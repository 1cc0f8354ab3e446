package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pardoc/internal/config"
	"github.com/roach88/pardoc/internal/store"
	"github.com/roach88/pardoc/internal/testutil"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pardoc", cmd.Use)
	assert.Contains(t, cmd.Long, "versioned paragraphs")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"create"}, {"remove"}, {"add"}, {"insert"}, {"modify"}, {"delete"}, {"import"},
		{"show"}, {"log"}, {"update"}, {"diff"}, {"resolve"}, {"section"}, {"gc"},
		{"settings", "get"}, {"settings", "set"}, {"settings", "replace"},
	}

	for _, path := range commands {
		name := strings.Join(path, " ")
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %s should exist", name)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "env-file", "root", "backend"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestUpdateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	updateCmd, _, err := cmd.Find([]string{"update"})
	require.NoError(t, err)

	strictFlag := updateCmd.Flags().Lookup("strict")
	require.NotNil(t, strictFlag)
	assert.Equal(t, "true", strictFlag.DefValue)

	fileFlag := updateCmd.Flags().Lookup("file")
	require.NotNil(t, fileFlag)
	assert.Equal(t, "f", fileFlag.Shorthand)
}

// =============================================================================
// Test harness
// =============================================================================

// cli runs commands against one data directory with an empty environment.
type cli struct {
	t       *testing.T
	root    string
	backend string
	env     map[string]string
}

func newCLI(t *testing.T) *cli {
	return &cli{t: t, root: t.TempDir(), env: map[string]string{}}
}

type result struct {
	stdout string
	stderr string
	code   int
}

func (c *cli) runWithInput(stdin string, args ...string) result {
	c.t.Helper()
	opts := &RootOptions{
		lookupEnv: func(key string) (string, bool) {
			v, ok := c.env[key]
			return v, ok
		},
	}
	args = append(args, "--root", c.root)
	if c.backend != "" {
		args = append(args, "--backend", c.backend)
	}

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), newRootCommand(opts), opts, args, strings.NewReader(stdin), &stdout, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func (c *cli) run(args ...string) result {
	c.t.Helper()
	return c.runWithInput("", args...)
}

// ok runs a command and requires it to succeed.
func (c *cli) ok(args ...string) string {
	c.t.Helper()
	r := c.run(args...)
	require.Equal(c.t, ExitSuccess, r.code, "%v failed: %s%s", args, r.stdout, r.stderr)
	return r.stdout
}

// okJSON runs a command with --format json and decodes its data into v.
func (c *cli) okJSON(v interface{}, args ...string) {
	c.t.Helper()
	out := c.ok(append(args, "--format", "json")...)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(c.t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(c.t, "ok", resp.Status)
	require.NoError(c.t, json.Unmarshal(resp.Data, v), string(resp.Data))
}

var (
	id1 = testutil.ParID(1)
	id2 = testutil.ParID(2)
	id3 = testutil.ParID(3)
	id4 = testutil.ParID(4)
	id5 = testutil.ParID(5)
)

// guide creates document 1 with three paragraphs of fixed ids.
func (c *cli) guide() {
	c.t.Helper()
	c.ok("create", "1")
	c.ok("add", "1", "--id", id1, "--text", "# Guide")
	c.ok("add", "1", "--id", id2, "--text", "First step.", "--attr", "taskId=t1")
	c.ok("add", "1", "--id", id3, "--text", "Toinen askel.", "--attr", "lang=fi")
}

// =============================================================================
// Documents
// =============================================================================

func TestShow_Golden(t *testing.T) {
	c := newCLI(t)
	c.guide()

	out := c.ok("show", "1")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "show", []byte(out))
}

func TestCreate(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, "Created document 1\n", c.ok("create"))
	assert.Equal(t, "Created document 5\n", c.ok("create", "5"))
	assert.Equal(t, "Created document 6\n", c.ok("create"))

	r := c.run("create", "5")
	assert.Equal(t, ExitFailure, r.code)
	assert.Contains(t, r.stderr, "Error [ALREADY_EXISTS]")

	assert.Equal(t, "Created document 5\n", c.ok("create", "5", "--ignore-exists"))
}

func TestRemove(t *testing.T) {
	c := newCLI(t)
	c.guide()

	assert.Equal(t, "Removed document 1\n", c.ok("remove", "1"))
	assert.Equal(t, ExitFailure, c.run("show", "1").code)
	assert.Equal(t, ExitFailure, c.run("remove", "1").code)
	c.ok("remove", "1", "--ignore-missing")
}

func TestEditCommands(t *testing.T) {
	c := newCLI(t)
	c.guide()

	var added ParagraphResult
	c.okJSON(&added, "insert", "1", "--before", id2, "--id", id4, "--text", "Before step one.")
	assert.Equal(t, id4, added.Paragraph.ID)
	assert.Equal(t, store.Version{Major: 4}, added.Version)

	var modified ParagraphResult
	c.okJSON(&modified, "modify", "1", id2, "--text", "First step, revised.")
	assert.Equal(t, "First step, revised.", modified.Paragraph.Markdown)
	assert.Equal(t, "t1", modified.Paragraph.Attrs["taskId"], "attributes kept without --attr")
	assert.Equal(t, store.Version{Major: 4, Minor: 1}, modified.Version)

	assert.Equal(t, "Deleted paragraph "+id3+" (version 5.0)\n", c.ok("delete", "1", id3))

	var doc DocumentView
	c.okJSON(&doc, "show", "1")
	ids := make([]string, 0, len(doc.Paragraphs))
	for _, p := range doc.Paragraphs {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{id1, id4, id2}, ids)
	assert.Equal(t, store.Version{Major: 5}, doc.Version)
}

func TestAdd_FromFileAndStdin(t *testing.T) {
	c := newCLI(t)
	c.ok("create", "1")

	path := filepath.Join(t.TempDir(), "para.md")
	require.NoError(t, os.WriteFile(path, []byte("From a file."), 0o644))
	c.ok("add", "1", "--file", path, "--id", id1)

	r := c.runWithInput("From stdin.", "add", "1", "--file", "-", "--id", id2)
	require.Equal(t, ExitSuccess, r.code, r.stderr)

	out := c.ok("show", "1")
	assert.Contains(t, out, "From a file.")
	assert.Contains(t, out, "From stdin.")
}

func TestImport(t *testing.T) {
	c := newCLI(t)
	c.ok("create", "1")

	text := "#- {id=\"" + id1 + "\"}\n# Title\n\n#- {id=\"" + id2 + "\" .note}\nBody\n"
	var view EditResultView
	r := c.runWithInput(text, "import", "1", "--file", "-", "--format", "json")
	require.Equal(t, ExitSuccess, r.code, r.stdout)
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, []string{id1, id2}, view.Added)
	assert.Equal(t, id1, view.FirstID)
	assert.Equal(t, id2, view.LastID)

	assert.Equal(t, text, c.ok("show", "1"))
}

func TestLog(t *testing.T) {
	c := newCLI(t)
	c.guide()
	c.ok("modify", "1", id1, "--text", "# Guide, second edition")

	var log LogResult
	c.okJSON(&log, "log", "1")
	assert.Equal(t, store.Version{Major: 3, Minor: 1}, log.Version)
	require.Len(t, log.Entries, 4)
	assert.Equal(t, store.OpModified, log.Entries[0].Op)
	assert.Equal(t, id1, log.Entries[0].ParID)

	c.okJSON(&log, "log", "1", "--max", "2")
	assert.Len(t, log.Entries, 2)

	out := c.ok("log", "1", "-n", "1")
	assert.True(t, strings.HasPrefix(out, "Document 1 at version 3.1\n"), out)
	assert.Contains(t, out, store.OpModified)
}

// =============================================================================
// Updates and diffs
// =============================================================================

func TestUpdate_EditedExport(t *testing.T) {
	c := newCLI(t)
	c.guide()

	edited := strings.Replace(c.ok("show", "1"), "First step.", "First step, edited.", 1)
	edited += "\n#-\nA new closing paragraph.\n"

	var view EditResultView
	r := c.runWithInput(edited, "update", "1", "--file", "-", "--format", "json")
	require.Equal(t, ExitSuccess, r.code, r.stdout)
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, &view))

	assert.Equal(t, []string{id2}, view.Changed)
	assert.Len(t, view.Added, 1)
	assert.Empty(t, view.Deleted)

	out := c.ok("show", "1")
	assert.Contains(t, out, "First step, edited.")
	assert.True(t, strings.HasSuffix(out, "A new closing paragraph.\n"), out)
}

func TestUpdate_WithOriginal(t *testing.T) {
	c := newCLI(t)
	c.guide()

	dir := t.TempDir()
	original := c.ok("show", "1")
	origPath := filepath.Join(dir, "orig.md")
	require.NoError(t, os.WriteFile(origPath, []byte(original), 0o644))

	// Someone else edits paragraph 3 in the meantime.
	c.ok("modify", "1", id3, "--text", "Toinen askel, korjattu.")

	newPath := filepath.Join(dir, "new.md")
	edited := strings.Replace(original, "# Guide", "# User guide", 1)
	require.NoError(t, os.WriteFile(newPath, []byte(edited), 0o644))

	assert.Equal(t, "Added 0, changed 1, deleted 0 (version 3.2)\n",
		c.ok("update", "1", "--file", newPath, "--original", origPath))

	out := c.ok("show", "1")
	assert.Contains(t, out, "# User guide")
	assert.Contains(t, out, "korjattu", "concurrent edit kept")
}

func TestUpdate_Section(t *testing.T) {
	c := newCLI(t)
	c.guide()

	section := "#- {id=\"" + id2 + "\"}\nOnly step.\n"
	r := c.runWithInput(section, "update", "1", "--file", "-", "--start", id2, "--end", id3)
	require.Equal(t, ExitSuccess, r.code, r.stderr)

	out := c.ok("show", "1")
	assert.Contains(t, out, "Only step.")
	assert.NotContains(t, out, "Toinen askel.")
	assert.Contains(t, out, "# Guide")
}

func TestUpdate_NoChanges(t *testing.T) {
	c := newCLI(t)
	c.guide()

	r := c.runWithInput(c.ok("show", "1"), "update", "1", "--file", "-")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "No changes (version 3.0)\n", r.stdout)
}

func TestDiff(t *testing.T) {
	c := newCLI(t)
	c.guide()
	c.ok("modify", "1", id2, "--text", "First step, revised.")

	assert.Equal(t, "change "+id2+"\n", c.ok("diff", "1", "3.0", "3.1"))
	assert.Equal(t, "insert after "+id2+": "+id3+"\n", c.ok("diff", "1", "2.0", "3.0"))
	assert.Equal(t, "Versions 3.1 and 3.1 are identical\n", c.ok("diff", "1", "3.1", "3.1"))

	var changes []ChangeView
	c.okJSON(&changes, "diff", "1", "0.0", "1.0")
	require.Len(t, changes, 1)
	assert.Equal(t, "insert", string(changes[0].Kind))
	assert.Equal(t, []string{id1}, changes[0].IDs)
}

// =============================================================================
// References, sections, settings
// =============================================================================

func TestResolve(t *testing.T) {
	c := newCLI(t)
	c.guide()
	c.ok("create", "2")
	c.ok("add", "2", "--id", id4, "--text", "Own text.")
	c.ok("add", "2", "--id", id5, "--text", "", "--attr", "rd=1", "--attr", "rp="+id2)

	out := c.ok("resolve", "2")
	assert.Contains(t, out, "Own text.")
	assert.Contains(t, out, "First step.")

	var items []ResolvedView
	c.okJSON(&items, "resolve", "2")
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[1].SourceDocID)
	assert.Equal(t, id2, items[1].SourceParID)
	assert.Empty(t, items[1].Error)

	assert.Contains(t, c.ok("resolve", "2", "--task", "t1"), "First step.")

	r := c.run("resolve", "2", "--task", "missing")
	assert.Equal(t, ExitFailure, r.code)
	assert.Contains(t, r.stderr, "NOT_FOUND")
}

func TestSection(t *testing.T) {
	c := newCLI(t)
	c.ok("create", "1")
	c.ok("add", "1", "--id", id1, "--text", "Before.")
	c.ok("add", "1", "--id", id2, "--text", "", "--attr", "area=intro")
	c.ok("add", "1", "--id", id3, "--text", "Inside.")
	c.ok("add", "1", "--id", id4, "--text", "", "--attr", "area_end=intro")

	var pars []ParagraphView
	c.okJSON(&pars, "section", "1", "--area", "intro")
	require.Len(t, pars, 3)
	assert.Equal(t, id2, pars[0].ID)
	assert.Equal(t, id4, pars[2].ID)

	out := c.ok("section", "1", "--start", id1, "--end", id3)
	assert.Contains(t, out, "Before.")
	assert.Contains(t, out, "Inside.")

	assert.Equal(t, "Added 0, changed 0, deleted 3 (version 7.0)\n",
		c.ok("section", "1", "--start", id2, "--end", id4, "--delete"))

	r := c.run("section", "1", "--area", "intro")
	assert.Equal(t, ExitFailure, r.code)
	assert.Contains(t, r.stderr, "INVALID_AREA")
}

func TestSettings(t *testing.T) {
	c := newCLI(t)
	c.guide()

	assert.Equal(t, "Set auto_number_headings (version 4.0)\n",
		c.ok("settings", "set", "1", "auto_number_headings", "true"))
	c.ok("settings", "set", "1", "macro_delimiter", "'%%'")

	assert.Equal(t, "true\n", c.ok("settings", "get", "1", "auto_number_headings"))

	var values map[string]interface{}
	c.okJSON(&values, "settings", "get", "1")
	assert.Equal(t, map[string]interface{}{"auto_number_headings": true, "macro_delimiter": "%%"}, values)

	r := c.run("settings", "get", "1", "missing")
	assert.Equal(t, ExitFailure, r.code)
	assert.Contains(t, r.stderr, "NOT_FOUND")

	c.ok("settings", "replace", "1", "--text", "source_document: 7")
	c.okJSON(&values, "settings", "get", "1")
	assert.Equal(t, map[string]interface{}{"source_document": float64(7)}, values)
}

func TestGC(t *testing.T) {
	c := newCLI(t)
	c.guide()
	c.ok("modify", "1", id1, "--text", "# Guide v2")
	c.ok("modify", "1", id1, "--text", "# Guide v3")

	var res GCResult
	c.okJSON(&res, "gc", "1")
	assert.Equal(t, GCResult{DocID: 1, Deleted: 2}, res)

	assert.Equal(t, "Deleted 0 content versions, kept 0 content versions still referenced\n", c.ok("gc", "1"))
	assert.Equal(t, ExitFailure, c.run("show", "1", "--version", "1.0").code)
}

// =============================================================================
// Backends and configuration
// =============================================================================

func TestBackends(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendSQLite, config.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			c := newCLI(t)
			c.backend = backend
			c.guide()
			c.ok("modify", "1", id3, "--text", "Second step.")

			var log LogResult
			c.okJSON(&log, "log", "1")
			assert.Equal(t, store.Version{Major: 3, Minor: 1}, log.Version)
			assert.Len(t, log.Entries, 4)

			out := c.ok("show", "1", "--version", "3.0")
			assert.Contains(t, out, "Toinen askel.")
			assert.Contains(t, c.ok("show", "1"), "Second step.")
		})
	}

	t.Run("sqlite file location", func(t *testing.T) {
		c := newCLI(t)
		c.backend = config.BackendSQLite
		c.ok("create", "1")
		assert.FileExists(t, filepath.Join(c.root, SQLiteFile))
	})
}

func TestConfig_FileEnvAndFlags(t *testing.T) {
	c := newCLI(t)
	dir := t.TempDir()
	metricsFile := filepath.Join(dir, "pardoc.prom")

	cfgPath := filepath.Join(dir, "pardoc.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("backend: sqlite\nmodifier_group: 7\nmetrics_file: "+metricsFile+"\n"), 0o644))
	c.env[config.EnvPrefix+"BACKEND"] = config.BackendBadger

	c.ok("create", "1", "--config", cfgPath, "--backend", config.BackendFile)
	c.ok("add", "1", "--text", "x", "--config", cfgPath, "--backend", config.BackendFile)

	// --backend beats the environment, which beats the file.
	assert.NoFileExists(t, filepath.Join(c.root, SQLiteFile))
	assert.NoDirExists(t, filepath.Join(c.root, BadgerDir))

	var log LogResult
	c.okJSON(&log, "log", "1", "--config", cfgPath, "--backend", config.BackendFile)
	require.Len(t, log.Entries, 1)
	assert.Equal(t, 7, log.Entries[0].GroupID)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pardoc_")
}

func TestVerbose_LogsToStderr(t *testing.T) {
	c := newCLI(t)
	r := c.run("create", "1", "-v")
	require.Equal(t, ExitSuccess, r.code)
	assert.Equal(t, "Created document 1\n", r.stdout)
	assert.Contains(t, r.stderr, "level=DEBUG")
	assert.Contains(t, r.stderr, "engine ready")
}

// =============================================================================
// Errors
// =============================================================================

func TestErrors(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		code  int
		label string
	}{
		{"bad document id", []string{"show", "abc"}, ExitCommandError, "COMMAND"},
		{"missing document", []string{"show", "9"}, ExitFailure, "NOT_FOUND"},
		{"missing paragraph", []string{"delete", "1", id5}, ExitFailure, "NOT_FOUND"},
		{"duplicate id", []string{"add", "1", "--id", id1, "--text", "x"}, ExitFailure, "ALREADY_EXISTS"},
		{"invalid id", []string{"add", "1", "--id", "nope", "--text", "x"}, ExitFailure, "VALIDATION"},
		{"invalid format", []string{"show", "1", "--format", "xml"}, ExitCommandError, "COMMAND"},
		{"unknown command", []string{"frobnicate"}, ExitCommandError, "COMMAND"},
		{"missing input", []string{"add", "1"}, ExitCommandError, "COMMAND"},
		{"insert without position", []string{"insert", "1", "--text", "x"}, ExitCommandError, "COMMAND"},
		{"bad version", []string{"show", "1", "--version", "one"}, ExitCommandError, "VALIDATION"},
		{"missing version", []string{"show", "1", "--version", "9.0"}, ExitFailure, "NOT_FOUND"},
		{"unknown backend", []string{"show", "1", "--backend", "postgres"}, ExitCommandError, "COMMAND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCLI(t)
			c.guide()

			r := c.run(tt.args...)
			assert.Equal(t, tt.code, r.code, r.stderr)
			assert.Contains(t, r.stderr, "Error ["+tt.label+"]")
			assert.Empty(t, r.stdout)
		})
	}
}

func TestErrors_JSON(t *testing.T) {
	c := newCLI(t)
	c.ok("create", "1")

	r := c.run("delete", "1", id1, "--format", "json")
	assert.Equal(t, ExitFailure, r.code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "failed to delete paragraph")
	assert.Equal(t, map[string]interface{}{"doc_id": float64(1), "par_id": id1}, resp.Error.Details)
}
