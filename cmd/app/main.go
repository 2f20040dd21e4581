package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"QuantLens/internal/di"
	"QuantLens/internal/usecase"
	"QuantLens/pkg/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "quantlens",
		Short:         "Correlation, RMT, sentiment and forecast analytics for a universe of instruments",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	root.AddCommand(newServeCmd(&configPath), newAnalyzeCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled snapshot refresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(*configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			log.Printf("env=%s prices=%s symbols=%v", cfg.Environment, cfg.Prices.Source, cfg.Analytics.Symbols)

			app, cleanup, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			defer cleanup()

			// blocks until SIGINT/SIGTERM
			return app.Run()
		},
	}
}

func newAnalyzeCmd(configPath *string) *cobra.Command {
	var (
		symbols []string
		start   string
		end     string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute one snapshot and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(*configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			req, err := analyzeRequest(symbols, start, end)
			if err != nil {
				return err
			}

			uc, cleanup, err := di.InitializeAnalytics(cfg)
			if err != nil {
				return fmt.Errorf("analytics initialization failed: %w", err)
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Analytics.Timeout)
			defer cancel()
			snap, err := uc.Snapshot(ctx, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "instruments to analyze (default: analytics.symbols)")
	cmd.Flags().StringVar(&start, "start", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last date, YYYY-MM-DD")
	return cmd
}

func analyzeRequest(symbols []string, start, end string) (usecase.Request, error) {
	req := usecase.Request{Symbols: symbols}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{{"start", start, &req.Start}, {"end", end, &req.End}} {
		if f.raw == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, f.raw)
		if err != nil {
			return req, fmt.Errorf("--%s: %w", f.name, err)
		}
		*f.dst = t
	}
	return req, nil
}
