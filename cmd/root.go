// Package cmd defines and implements the CLI commands for the silkcrawl executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/silkcrawl/internal/app"
	"github.com/JakeFAU/silkcrawl/internal/config"
	"github.com/JakeFAU/silkcrawl/internal/crawler"
	"github.com/JakeFAU/silkcrawl/internal/logging"
)

// Runner is the part of the application the commands drive. Tests inject a
// fake through cli.newApp.
type Runner interface {
	Crawl(ctx context.Context, urls ...string) error
	Fetch(ctx context.Context, rawURL string) (*crawler.Page, error)
	Close() error
}

type cli struct {
	cfgFile string
	mode    string

	cfg    config.Config
	logger *zap.Logger

	newApp func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error)
}

func newCLI() *cli {
	return &cli{
		newApp: func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
			return app.New(ctx, cfg, logger)
		},
	}
}

// newRootCmd creates and configures the root command.
func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "silkcrawl",
		Short: "Fetch pages statically and render them in a browser when they need it.",
		Long: `silkcrawl loads web pages over plain HTTP, scores the markup for signs of a
client-rendered application, and re-fetches those pages in a headless browser.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("mode") {
				cfg.Crawler.Mode = c.mode
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid --mode: %w", err)
				}
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			c.cfg = cfg
			c.logger = logger
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&c.mode, "mode", "", "pipeline mode: static, dynamic or escalate")

	cmd.AddCommand(newCrawlCmd(c), newFetchCmd(c), newScoreCmd())
	return cmd
}

// buildApp constructs the application and returns a cleanup func.
func (c *cli) buildApp(ctx context.Context) (Runner, func(), error) {
	r, err := c.newApp(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return r, func() {
		if err := r.Close(); err != nil {
			c.logger.Warn("application close failed", zap.Error(err))
		}
	}, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newCLI()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
