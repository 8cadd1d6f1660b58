package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/wikilua/content"
	"github.com/caffeineduck/wikilua/executor"
	"github.com/caffeineduck/wikilua/internal/config"
	"github.com/caffeineduck/wikilua/render"
)

var rootCmd = &cobra.Command{
	Use:   "wikilua",
	Short: "Offline runtime for wiki template modules",
	Long: `wikilua - Run wiki Lua modules outside the wiki.

Pages and modules live in a SQLite content store. Import them with
"wikilua import", render pages or single module functions with
"wikilua render", and experiment with "wikilua repl". Every execution
runs under a time and memory budget.`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "wikilua.yaml", "Configuration file (created with defaults if missing)")
	rootCmd.PersistentFlags().String("db", "", "Content database (overrides store.path)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Execution timeout (overrides executor.timeout)")
	rootCmd.PersistentFlags().String("memory", "", "Memory limit: 16mb, 64mb, 128mb, 256mb, 1gb")
}

// runtime is the content store, renderer and configuration shared by the
// commands.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *content.Cached
	db       *content.SQLiteStore
	renderer *render.Renderer
}

func openRuntime(cmd *cobra.Command) (*runtime, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	rt := &runtime{cfg: cfg, logger: logger}
	var backing content.Store
	if cfg.Store.Path == "" {
		backing = content.NewMemoryStore()
	} else {
		rt.db, err = content.OpenSQLite(cmd.Context(), cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		backing = rt.db
	}
	rt.store = content.NewCached(backing, int(cfg.Cache.ArticleBytes), logger)
	rt.renderer = render.New(rt.store, nil,
		render.WithLogger(logger),
		render.WithOutputCacheSize(int(cfg.Cache.OutputBytes)))
	return rt, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Store.Path, _ = flags.GetString("db")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("timeout") {
		cfg.Executor.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("memory") {
		s, _ := flags.GetString("memory")
		limit, err := config.ParseSize(s)
		if err != nil {
			return err
		}
		cfg.Executor.MemoryLimit = limit
	}
	return cfg.Validate()
}

func (rt *runtime) newExecutor() (*executor.Executor, error) {
	return rt.newExecutorWith(rt.store)
}

func (rt *runtime) newExecutorWith(src executor.SourceProvider) (*executor.Executor, error) {
	return executor.New(rt.renderer, src, rt.cfg.ExecutorOptions(rt.logger)...)
}

func (rt *runtime) Close() error {
	if rt.db != nil {
		return rt.db.Close()
	}
	return nil
}

// parseArgs turns "name=value" and bare values into frame arguments. Bare
// values are numbered from 1.
func parseArgs(list []string) map[string]string {
	args := make(map[string]string, len(list))
	n := 0
	for _, a := range list {
		if k, v, ok := strings.Cut(a, "="); ok {
			args[strings.TrimSpace(k)] = v
			continue
		}
		n++
		args[strconv.Itoa(n)] = a
	}
	return args
}
