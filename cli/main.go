package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zhaobenny/tokdash/internal/config"
	"github.com/zhaobenny/tokdash/internal/engine"
	"github.com/zhaobenny/tokdash/internal/logger"
	"github.com/zhaobenny/tokdash/internal/model"
)

var version = "0.3.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tokdash: %v\n", err)
		os.Exit(1)
	}
}

// globals are the flags shared by every command.
type globals struct {
	configPath string
	timezone   string
	filter     string
	verbose    bool
	compact    bool
	noColor    bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	var periodToken string

	cmd := &cobra.Command{
		Use:   "tokdash",
		Short: "Token usage and cost across AI coding tools",
		Long: `tokdash reads the local session logs of OpenCode, Codex, Claude Code,
Gemini CLI and OpenClaw, prices every request and reports usage per
application and model.`,
		Example: `  tokdash                      Usage for today
  tokdash --period week
  tokdash --period 14days --filter codex,claude
  tokdash export --period month --pretty
  tokdash daily --days 30
  tokdash config set cache.ttl 5m`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd, g, periodToken, false)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file (default $TOKDASH_CONFIG or ~/.tokdash.yaml)")
	pf.StringVar(&g.timezone, "timezone", "", "Timezone for day boundaries (e.g., America/New_York)")
	pf.StringVar(&g.filter, "filter", "all", `Sources: "all", "coding", "openclaw" or a comma-separated list`)
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Log scanner and cache activity to stderr")
	pf.BoolVarP(&g.compact, "compact", "c", false, "Force compact table output")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVarP(&periodToken, "period", "p", "today", `Period: "today", "week", "month" or a number of days`)

	cmd.AddCommand(
		newExportCmd(g),
		newModelsCmd(g),
		newDailyCmd(g),
		newConfigCmd(g),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig(g *globals) (*config.Config, string, error) {
	path := g.configPath
	if path == "" {
		var err error
		if path, err = config.Path(); err != nil {
			return nil, "", err
		}
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, "", err
	}
	if g.timezone != "" {
		if err := config.Set(cfg, "timezone", g.timezone); err != nil {
			return nil, "", err
		}
	}
	if g.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, path, nil
}

// openEngine builds an engine from the config and parses the source filter.
func openEngine(g *globals) (*engine.Engine, []model.SourceID, func(), error) {
	cfg, _, err := loadConfig(g)
	if err != nil {
		return nil, nil, nil, err
	}
	sources, err := model.ParseSourceSet(g.filter)
	if err != nil {
		return nil, nil, nil, err
	}

	log := slog.New(slog.DiscardHandler)
	if g.verbose {
		log = logger.New(cfg.Logging)
	}
	eng, closeFn, err := engine.FromConfig(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return eng, sources, closeFn, nil
}

// explain turns engine errors into operator-facing messages.
func explain(err error) error {
	if errors.Is(err, engine.ErrNoData) {
		return fmt.Errorf("%w (are any of the tools installed? see 'tokdash config show')", err)
	}
	return err
}
