package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"market-streamer/src/analysis"
	"market-streamer/src/config"
	"market-streamer/src/models"

	"github.com/spf13/cobra"
)

// -----------------------------------------------------------------------------

func newBarsCommand(configPath *string) *cobra.Command {
	var (
		lookback time.Duration
		interval string
	)

	cmd := &cobra.Command{
		Use:   "bars SYMBOL",
		Short: "Fetch historical candles for [now - lookback, now]",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := models.ParseTimeframe(interval)
			if err != nil {
				return err
			}

			a, err := setupApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			bars, report, err := a.Service.HistoricalBars(cmd.Context(), strings.ToUpper(args[0]), lookback, tf)
			if printErr := printJSON(map[string]interface{}{"bars": bars, "summary": analysis.SummarizeBars(bars), "report": report}); printErr != nil {
				return printErr
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&lookback, "lookback", 24*time.Hour, "how far back to fetch")
	cmd.Flags().StringVar(&interval, "interval", string(models.M5), "candle interval (1m 5m 15m 30m 1h 1d 1w 1mo)")
	return cmd
}

// -----------------------------------------------------------------------------

func newQuotesCommand(configPath *string) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "quotes SYMBOL",
		Short: "Stream live quotes for a fixed duration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			quotes, report, err := a.Service.LiveQuotes(cmd.Context(), strings.ToUpper(args[0]), duration)
			if printErr := printJSON(map[string]interface{}{"quotes": quotes, "summary": analysis.SummarizeQuotes(quotes), "report": report}); printErr != nil {
				return printErr
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to listen")
	return cmd
}

// -----------------------------------------------------------------------------

func newTokenCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Obtain (or reuse the cached) streaming token and print its endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			tok, err := a.Service.TokenInfo(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "url: %s\nissued: %s\n", tok.URL, tok.Timestamp.Format(time.RFC3339))
			return nil
		},
	}
}

// -----------------------------------------------------------------------------

func newSnapshotCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot SYMBOL",
		Short: "Print the REST market-data snapshot of an equity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.Service.MarketSnapshot(cmd.Context(), strings.ToUpper(args[0]))
			if err != nil {
				return err
			}
			return printJSON(snap)
		},
	}
}

func newEarningsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "earnings SYMBOL",
		Short: "Show the last reported quarter and the estimated next earnings date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Service.Earnings(cmd.Context(), strings.ToUpper(args[0]))
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

// -----------------------------------------------------------------------------

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the YAML configuration file",
	}
	cmd.AddCommand(newConfigInitCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init PATH",
		Short: "Write a config file populated with the defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.Default()
			// Secrets come from the environment at load time.
			cfg.API.ClientSecret = ""
			cfg.API.RefreshToken = ""
			cfg.Storage.DBConnectionString = ""

			if err := cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// -----------------------------------------------------------------------------

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
