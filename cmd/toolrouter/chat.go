package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Nyukimin/toolrouter/internal/adapter/console"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

var (
	chatHistoryFile string
	chatVerbose     bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chatbot in the terminal",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatHistoryFile, "history-file", "", "Readline history file")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "Keep info logs on stderr")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if !chatVerbose {
		logger.SetLevel(logger.WARN)
	}

	deps, err := buildDependencies(ctx, cfg)
	if err != nil {
		return err
	}

	rl, err := console.NewReadline(chatHistoryFile)
	if err != nil {
		return err
	}
	return console.New(deps.pool.Get("console"), cmd.OutOrStdout()).Run(ctx, rl)
}
