package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/wikilua/content"
	"github.com/caffeineduck/wikilua/executor"
	"github.com/caffeineduck/wikilua/hostfunc"
)

const replModule = "Module:REPL"

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive module console",
	Long: `Start an interactive console. Each entry is the body of a module
function called with the current frame, so "return mw.ustring.upper('x')"
prints X. Start an entry with = to print an expression.

Commands:
  :page <title>   render a stored page
  :args k=v ...   set the frame arguments for following entries

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.wikilua_history)")
	rootCmd.AddCommand(replCmd)
}

// console evaluates REPL entries. Each entry is stored as a throwaway
// module in a scratch store laid over the content store.
type console struct {
	rt      *runtime
	exec    *executor.Executor
	scratch content.Overlay
	args    map[string]string
}

func newConsole(rt *runtime) (*console, error) {
	c := &console{
		rt:      rt,
		scratch: content.Overlay{Top: content.NewMemoryStore(), Base: rt.store},
		args:    map[string]string{},
	}
	exec, err := rt.newExecutorWith(c.scratch)
	if err != nil {
		return nil, err
	}
	c.exec = exec
	return c, nil
}

func (c *console) Close() error {
	return c.exec.Close()
}

// eval runs one entry and returns its printable output.
func (c *console) eval(ctx context.Context, line string) (string, error) {
	switch {
	case strings.HasPrefix(line, ":page "):
		return c.rt.renderer.RenderPage(ctx, c.exec, strings.TrimSpace(strings.TrimPrefix(line, ":page ")))
	case strings.HasPrefix(line, ":args"):
		c.args = parseArgs(strings.Fields(strings.TrimPrefix(line, ":args")))
		return "", nil
	case strings.HasPrefix(line, "="):
		line = "return " + line[1:]
	}

	page, err := c.scratch.Put(ctx, replModule,
		"local p = {}\nfunction p.main(frame)\n"+line+"\nend\nreturn p\n")
	if err != nil {
		return "", err
	}
	res := c.exec.Run(ctx, executor.Request{
		Module:   page.Title,
		ID:       page.ID,
		Function: "main",
		Frame:    &hostfunc.Frame{Title: page.Title, Args: c.args},
	})
	if res.Error != nil {
		return "", res.Error
	}
	return c.rt.renderer.Finalize(res.Output)
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".wikilua_history")
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	c, err := newConsole(rt)
	if err != nil {
		return err
	}
	defer c.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	fmt.Fprintln(stderr, "wikilua REPL (type 'exit' to quit, Ctrl+D to exit)")

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">>> ")
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">>> ")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		out, err := c.eval(cmd.Context(), line)
		if out != "" {
			fmt.Fprint(stdout, out)
			if !strings.HasSuffix(out, "\n") {
				fmt.Fprintln(stdout)
			}
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}
}
