// Package cli defines the enricher's cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rating-enricher/internal/config"
	"github.com/JakeFAU/rating-enricher/internal/logging"
)

type envKey struct{}

// env is what every subcommand gets after the root's pre-run hook.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

func envFrom(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey{}).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not loaded")
	}
	return e, nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "enricher",
		Short: "Adds third-party ratings to a product catalog.",
		Long: `enricher looks every catalog item up on a rating site through an
isolated, paced browser session and writes the rating and a link back
into the catalog. Large catalogs are split across independent workers
whose artifacts are merged afterwards.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, err := envFrom(cmd.Context()); err == nil {
				_ = logging.Sync(e.logger)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().String("catalog", "", "catalog JSON file")
	cmd.PersistentFlags().String("list-key", "", "top-level key of the item list (e.g. wines, beers)")
	cmd.PersistentFlags().String("name-field", "", "item field holding the search term")

	cmd.AddCommand(newEnrichCmd(), newMergeCmd(), newImportCmd())
	return cmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	logger := zap.L()
	if logger.Core().Enabled(zap.FatalLevel) {
		logger.Fatal("command failed", zap.Error(err))
	}
	fmt.Fprintf(os.Stderr, "enricher: %v\n", err)
	os.Exit(1)
}
