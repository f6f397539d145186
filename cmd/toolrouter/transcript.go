package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Nyukimin/toolrouter/internal/adapter/config"
	"github.com/Nyukimin/toolrouter/internal/domain/conversation"
	"github.com/Nyukimin/toolrouter/internal/infrastructure/persistence/transcript"
)

var errNoStorage = errors.New("session.storage_dir is not set")

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Inspect recorded session transcripts",
}

var transcriptShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptShow,
}

var transcriptDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptDelete,
}

func init() {
	rootCmd.AddCommand(transcriptCmd)
	transcriptCmd.AddCommand(transcriptShowCmd, transcriptDeleteCmd)
}

func transcriptRepo(c *config.Config) (*transcript.JSONRepository, error) {
	if c.Session.StorageDir == "" {
		return nil, errNoStorage
	}
	return transcript.NewJSONRepository(c.Session.StorageDir), nil
}

func runTranscriptShow(cmd *cobra.Command, args []string) error {
	repo, err := transcriptRepo(cfg)
	if err != nil {
		return err
	}
	conv, err := repo.Load(cmd.Context(), args[0])
	if errors.Is(err, conversation.ErrNotFound) {
		return fmt.Errorf("no transcript for session %q", args[0])
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tROLE\tCONTENT")
	for _, t := range conv.Turns() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.CreatedAt.Format("2006-01-02 15:04:05"), t.Role, t.Content)
	}
	return w.Flush()
}

func runTranscriptDelete(cmd *cobra.Command, args []string) error {
	repo, err := transcriptRepo(cfg)
	if err != nil {
		return err
	}
	if err := repo.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted transcript %s\n", args[0])
	return nil
}
