package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// resetFlags undoes flag values left behind by an earlier execution.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// workspace returns the flags that point a command at a fresh config
// and database.
func workspace(t *testing.T) []string {
	dir := t.TempDir()
	return []string{
		"--config", filepath.Join(dir, "wikilua.yaml"),
		"--db", filepath.Join(dir, "pages.db"),
		"--log-level", "error",
	}
}

func writeFile(t *testing.T, dir, name, text string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"wikilua", "render", "import", "repl", "--config", "--db"} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIRenderHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "render", "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"--code", "--invoke", "--function", "--arg", "--output", "--timeout", "--memory"} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIReplHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "repl", "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"--history", "Command history", "Line editing", ":page"} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIImportAndRender(t *testing.T) {
	ws := workspace(t)
	src := t.TempDir()
	writeFile(t, src, "greet.lua", `
local p = {}
function p.hello(frame)
	return "Hello, " .. (frame.args[1] or "world") .. "!"
end
return p
`)
	writeFile(t, src, "Template:Box.wiki", "[{{{1}}}]")
	page := writeFile(t, t.TempDir(), "front.wiki",
		"{{#invoke:Greet|hello|Bob}} {{Box}}\n")

	output, err := executeCommand(rootCmd, append([]string{"import", src}, ws...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "imported Module:Greet")
	assert.Contains(t, output, "imported Template:Box")

	output, err = executeCommand(rootCmd, append([]string{"import", "--title", "Main Page", page}, ws...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "imported Main Page")

	output, err = executeCommand(rootCmd, append([]string{"render", "Main Page"}, ws...)...)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Bob! {{Box}}\n", output)

	out := filepath.Join(t.TempDir(), "out.txt")
	_, err = executeCommand(rootCmd, append([]string{
		"render", "--invoke", "Module:Greet", "--function", "hello", "--arg", "Ann", "-o", out,
	}, ws...)...)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ann!", string(data))
}

func TestCLIRenderFailure(t *testing.T) {
	ws := workspace(t)
	src := t.TempDir()
	writeFile(t, src, "spin.lua", "local p = {}\nfunction p.main() while true do end end\nreturn p\n")

	_, err := executeCommand(rootCmd, append([]string{"import", src}, ws...)...)
	require.NoError(t, err)

	output, err := executeCommand(rootCmd, append([]string{
		"render", "--invoke", "Module:Spin", "--timeout", "100ms",
	}, ws...)...)
	require.Error(t, err)
	assert.Contains(t, output, "Script error")
}

func TestCLIRenderCode(t *testing.T) {
	output, err := executeCommand(rootCmd, append([]string{
		"render", "-c", "local p = {} function p.main(f) return mw.ustring.upper(f.args.x) end return p",
		"--arg", "x=grün",
	}, workspace(t)...)...)
	require.NoError(t, err)
	assert.Equal(t, "GRÜN\n", output)
}

func TestCLIRenderNeedsTarget(t *testing.T) {
	_, err := executeCommand(rootCmd, append([]string{"render"}, workspace(t)...)...)
	assert.Error(t, err)
}

func TestConsole(t *testing.T) {
	resetFlags(rootCmd)
	rootCmd.SetContext(context.Background())
	require.NoError(t, rootCmd.ParseFlags(workspace(t)))

	rt, err := openRuntime(rootCmd)
	require.NoError(t, err)
	defer rt.Close()
	c, err := newConsole(rt)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	out, err := c.eval(ctx, "=1 + 2")
	require.NoError(t, err)
	assert.Equal(t, "3", out)

	_, err = c.eval(ctx, ":args who=Eve")
	require.NoError(t, err)
	out, err = c.eval(ctx, "return 'hi ' .. frame.args.who")
	require.NoError(t, err)
	assert.Equal(t, "hi Eve", out)

	_, err = c.eval(ctx, "error('boom')")
	assert.ErrorContains(t, err, "boom")
}

func TestTitleFromFile(t *testing.T) {
	assert.Equal(t, "Module:greet", titleFromFile("greet.lua"))
	assert.Equal(t, "Template:Box", titleFromFile("Template:Box.wiki"))
	assert.Equal(t, "Module:Data", titleFromFile("Module:Data.lua"))
	assert.Equal(t, "README", titleFromFile("README"))
}
