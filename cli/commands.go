package main

import (
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zhaobenny/tokdash/cli/internal/output"
	"github.com/zhaobenny/tokdash/internal/config"
	"github.com/zhaobenny/tokdash/internal/model"
	"github.com/zhaobenny/tokdash/internal/source"
	"gopkg.in/yaml.v3"
)

func runSummary(cmd *cobra.Command, g *globals, periodToken string, byModel bool) error {
	eng, sources, closeFn, err := openEngine(g)
	if err != nil {
		return err
	}
	defer closeFn()

	sum, err := eng.GetSummary(cmd.Context(), periodToken, sources)
	if err != nil {
		return explain(err)
	}

	opts := output.TableOptions{ForceCompact: g.compact}
	if byModel {
		output.PrintModels(cmd.OutOrStdout(), sum, opts)
	} else {
		output.PrintSummary(cmd.OutOrStdout(), sum, opts)
	}
	return nil
}

func newExportCmd(g *globals) *cobra.Command {
	var (
		periodToken string
		pretty      bool
		outPath     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the usage summary as JSON",
		Example: `  tokdash export --period week --pretty
  tokdash export --period 30 --output usage.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, sources, closeFn, err := openEngine(g)
			if err != nil {
				return err
			}
			defer closeFn()

			sum, err := eng.GetSummary(cmd.Context(), periodToken, sources)
			if err != nil {
				return explain(err)
			}

			if outPath == "" {
				return output.PrintJSON(cmd.OutOrStdout(), sum, pretty)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := output.PrintJSON(f, sum, pretty); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&periodToken, "period", "p", "today", `Period: "today", "week", "month" or a number of days`)
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write output to a file instead of stdout")
	return cmd
}

func newModelsCmd(g *globals) *cobra.Command {
	var periodToken string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show usage per application and model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd, g, periodToken, true)
		},
	}
	cmd.Flags().StringVarP(&periodToken, "period", "p", "today", `Period: "today", "week", "month" or a number of days`)
	return cmd
}

func newDailyCmd(g *globals) *cobra.Command {
	var (
		days    int
		year    int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Show daily usage and streaks",
		Example: `  tokdash daily
  tokdash daily --days 90
  tokdash daily --year 2025 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, sources, closeFn, err := openEngine(g)
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := eng.GetStats(cmd.Context(), year, sources)
			if err != nil {
				return explain(err)
			}
			if jsonOut {
				return output.PrintJSON(cmd.OutOrStdout(), st, true)
			}

			shown := st.Days
			if days > 0 && len(shown) > days {
				shown = shown[:days]
			}
			w := cmd.OutOrStdout()
			output.PrintDays(w, shown, output.TableOptions{ForceCompact: g.compact})
			fmt.Fprintf(w, "Active days: %d of %d   Current streak: %d   Longest streak: %d\n",
				st.ActiveDays, st.TotalDays, st.CurrentStreak, st.LongestStreak)
			fmt.Fprintf(w, "Favorite model: %s   Total: %s\n", st.FavoriteModel, output.FormatCost(st.Totals.Cost))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 14, "Number of active days to list (0 for all)")
	cmd.Flags().IntVar(&year, "year", 0, "Calendar year (default: the last 365 days)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration and source roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(g)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# %s\n", path)
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			if _, err := w.Write(data); err != nil {
				return err
			}

			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "\nSOURCE\tENABLED\tROOT")
			for _, id := range model.AllSources {
				sc := cfg.Source(id)
				root := sc.Root
				if root == "" {
					root = source.DefaultRoot(id, home)
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\n", id, sc.IsEnabled(), root)
			}
			return tw.Flush()
		},
	}

	set := &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Set a configuration key",
		Example: "  tokdash config set sources.openclaw.enabled false\n  tokdash config set cache.ttl 5m",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if path == "" {
				var err error
				if path, err = config.Path(); err != nil {
					return err
				}
			}
			// File values only; env overrides are not saved.
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if err := config.Set(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s = %s to %s\n", args[0], args[1], path)
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tokdash version %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
