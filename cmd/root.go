// Package cmd defines and implements the CLI commands for the finder executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-finder/internal/app"
	"github.com/JakeFAU/community-finder/internal/cache"
	"github.com/JakeFAU/community-finder/internal/config"
	"github.com/JakeFAU/community-finder/internal/scrape"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Scanner is the part of the orchestrator the commands use.
type Scanner interface {
	ScanBatch(ctx context.Context, ids []string) (scrape.Batch, error)
}

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetCache() *cache.Store
	GetScanner() Scanner
}

type appAdapter struct {
	*app.App
}

func (a appAdapter) GetScanner() Scanner {
	return a.GetOrchestrator()
}

// newApp is the application factory. It's a variable so we can
// replace it with a fake factory in our tests.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return appAdapter{a}, nil
}

type rootOptions struct {
	configFile string
	verbose    bool
	app        App
}

// close shuts the application down. Cobra skips post-run hooks when a
// command fails, so Execute calls this after every run.
func (o *rootOptions) close() {
	if o.app != nil {
		o.app.Close()
		o.app = nil
	}
}

// newRootCmd creates and configures the root command. The returned func
// closes the application services built for the run.
func newRootCmd() (*cobra.Command, func()) {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "finder",
		Short: "Find community invite links on streamer profile pages.",
		Long: `finder visits streamer "about" pages through a bounded pool of isolated
browser sessions, extracts Discord invite links and caches the results so
repeated runs skip pages that were checked recently.`,
		SilenceUsage: true,

		// Build the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if opts.verbose {
				cfg.Verbose = true
			}

			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			opts.app = appInstance

			// Store the app instance in the context for subcommands to use.
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log per-task progress")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newCacheCmd())

	return cmd, opts.close
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. An interrupt cancels the running scan;
// results already scraped are still cached.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, closeApp := newRootCmd()
	err := root.ExecuteContext(ctx)
	closeApp()
	if err != nil {
		logger, lerr := zap.NewProduction()
		if lerr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Fatal("Command execution failed", zap.Error(err))
	}
}
