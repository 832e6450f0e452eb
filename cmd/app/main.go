package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"FinFeed/internal/di"
	"FinFeed/internal/usecase"
	"FinFeed/pkg/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "finfeed",
		Short:        "Multi-source market data service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})
	rootCmd.AddCommand(newQuoteCmd(&configPath))
	rootCmd.AddCommand(newHistoryCmd(&configPath))

	return rootCmd
}

func newQuoteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL",
		Short: "Print the current quote for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMarketData(*configPath, func(ctx context.Context, md *usecase.MarketData) error {
				res, err := md.Quote(ctx, strings.ToUpper(args[0]))
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func newHistoryCmd(configPath *string) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "history SYMBOL",
		Short: "Print daily bars for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMarketData(*configPath, func(ctx context.Context, md *usecase.MarketData) error {
				res, err := md.Historical(ctx, strings.ToUpper(args[0]), days)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "number of days back")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	log.Printf("env=%s sink=%s cache=%s", cfg.Environment, cfg.Sink.Backend, cfg.Cache.Backend)

	// Wire DI: Initialize all dependencies
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	// Run application (blocks until signal)
	return app.Run(ctx)
}

func withMarketData(path string, fn func(context.Context, *usecase.MarketData) error) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	md, cleanup, err := di.InitializeMarketData(cfg)
	if err != nil {
		return fmt.Errorf("market data initialization failed: %w", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, md)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
