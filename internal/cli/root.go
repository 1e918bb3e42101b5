// Package cli provides the command-line interface for skystats.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/blackmichael/skystats/internal/app"
	"github.com/blackmichael/skystats/internal/config"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	limit      int
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "skystats",
	Short:         "Statistics for BlueSky accounts",
	Long:          "skystats fetches an account's profile, posts, likes and identity history from the AT Protocol and summarizes engagement, content mix, activity patterns, words and sentiment.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "skystats %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().IntVar(&limit, "limit", 0, "number of items to fetch (0 uses the configured default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(followsCmd)
	rootCmd.AddCommand(followersCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(historyCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads the configuration and builds the application. The returned
// context carries the configured report timeout.
func setup(cmd *cobra.Command) (context.Context, context.CancelFunc, *app.App, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ReportTimeout.Duration)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, nil, nil, nil, err
	}

	return ctx, func() {
		cancel()
		if err := a.Close(); err != nil {
			logger.Warn("failed to close archive", "error", err)
		}
	}, a, cfg, nil
}

// limitOr returns the --limit flag, or fallback when it is unset.
func limitOr(fallback int) int {
	if limit > 0 {
		return limit
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
