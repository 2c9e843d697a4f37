package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/config"
	logpkg "github.com/kailas-cloud/aiorch/internal/logger"
	"github.com/kailas-cloud/aiorch/internal/version"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	env        string
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "aiorch",
		Short:         "aiorch: LLM cache, fallback routing and semantic dedup",
		Long:          "aiorch serves model calls through a tiered response cache and per-usage-type fallback chains.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.env, "env", "e", config.GetEnv(), "environment: local, dev, docker, prod")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default config/<env>.yaml)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newRecordsCmd(opts))
	cmd.AddCommand(newPurgeScopeCmd(opts))
	cmd.AddCommand(newModelsCmd(opts))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "aiorch", version.String())
		},
	}
}

// load reads the configuration and builds the logger.
func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	var (
		cfg config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load(o.env)
	}
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(o.env, logpkg.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
