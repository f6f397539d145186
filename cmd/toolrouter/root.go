package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Nyukimin/toolrouter/internal/adapter/config"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

var (
	configPath string
	envFiles   []string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "toolrouter",
	Short: "Route natural language queries to tools",
	Long: `toolrouter resolves natural language queries into tool calls using an LLM
classifier with a rule-based fallback, runs the tools, and aggregates their
results into one reply.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFiles...); err != nil {
			return err
		}
		path := config.ResolvePath(configPath)
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("failed to load config %s: %w", path, err)
		}
		cfg = loaded

		logger.SetFormat(cfg.Log.Format)
		logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
		logger.DebugCF("main", "config.loaded", map[string]interface{}{
			"path":     path,
			"provider": cfg.LLM.Provider,
		})
		return nil
	},
}

// Execute はルートコマンドを実行
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $"+config.EnvConfigPath+" or ./config.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Dotenv files to load (default: .env)")
}
