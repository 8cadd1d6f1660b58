package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/wikilua/executor"
	"github.com/caffeineduck/wikilua/render"
	"github.com/caffeineduck/wikilua/sandbox"
)

var renderCmd = &cobra.Command{
	Use:   "render [title]",
	Short: "Render a page or a single module function",
	Long: `Render a stored page, expanding every module invocation in it, or run
one module function directly.

Examples:
  wikilua render "Main Page"
  wikilua render --invoke Module:Greet --function hello --arg Bob
  wikilua render "Main Page" -o main.html
  wikilua render -c 'local p = {} function p.main() return "hi" end return p'

Failed invocations render as a script error placeholder; the command
then exits with status 1 after printing the output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringP("code", "c", "", "Module source to run once instead of a stored module")
	renderCmd.Flags().String("invoke", "", "Module to invoke instead of rendering a page")
	renderCmd.Flags().String("function", "main", "Function to call with --invoke or --code")
	renderCmd.Flags().StringArray("arg", nil, "Frame argument name=value or positional value (repeatable)")
	renderCmd.Flags().StringP("output", "o", "", "Write output to file instead of stdout")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")
	module, _ := cmd.Flags().GetString("invoke")
	function, _ := cmd.Flags().GetString("function")
	frameArgs, _ := cmd.Flags().GetStringArray("arg")
	output, _ := cmd.Flags().GetString("output")

	targets := 0
	for _, set := range []bool{code != "", module != "", len(args) > 0} {
		if set {
			targets++
		}
	}
	if targets != 1 {
		return errors.New("give one of a page title, --invoke or --code")
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if code != "" {
		res := sandbox.Run(cmd.Context(), code, function, parseArgs(frameArgs), sandbox.Config{
			Timeout:     rt.cfg.Executor.Timeout,
			MemoryLimit: uint64(rt.cfg.Executor.MemoryLimit),
			Pages:       rt.store,
			Logger:      rt.logger,
		})
		out := res.Output
		if res.Error != nil {
			out = render.ErrorPlaceholder
		}
		if err := writeOutput(cmd, output, out); err != nil {
			return err
		}
		return res.Error
	}

	pool, err := executor.NewPool(rt.cfg.Workers, rt.newExecutor)
	if err != nil {
		return err
	}
	defer pool.Close()
	runner := render.PoolRunner{Pool: pool}

	ctx := cmd.Context()
	var out string
	var renderErr error
	if module != "" {
		out, renderErr = rt.renderer.Render(ctx, runner, module, function, parseArgs(frameArgs))
	} else {
		out, renderErr = rt.renderer.RenderPage(ctx, runner, args[0])
	}

	if err := writeOutput(cmd, output, out); err != nil {
		return err
	}
	return renderErr
}

// writeOutput writes out to path, or to stdout when path is empty.
func writeOutput(cmd *cobra.Command, path, out string) error {
	if path != "" {
		if err := atomic.WriteFile(path, strings.NewReader(out)); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	if out != "" && !strings.HasSuffix(out, "\n") {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}
