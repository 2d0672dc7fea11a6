package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arin/llmchat/internal/config"
	"github.com/arin/llmchat/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved chat sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st *store.Store) error {
			return printSessions(cmd.Context(), st)
		})
	},
}

var deleteSessionCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st *store.Store) error {
			if err := st.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted session %q.\n", args[0])
			return nil
		})
	},
}

func init() {
	sessionsCmd.AddCommand(deleteSessionCmd)
}

func withStore(fn func(*store.Store) error) error {
	st, err := store.Open(filepath.Join(config.Dir(), sessionsFile))
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer st.Close()
	return fn(st)
}

func printSessions(ctx context.Context, st *store.Store) error {
	list, err := st.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	dim := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)
	if len(list) == 0 {
		dim.Fprintln(os.Stderr, "No saved sessions.")
		return nil
	}

	for _, s := range list {
		dim.Fprintf(os.Stderr, "[%s] ", s.UpdatedAt.Format("2006-01-02 15:04"))
		cyan.Fprintf(os.Stderr, "%-24s ", s.Name)
		fmt.Fprintf(os.Stderr, "%3d msgs  ", s.Messages)
		dim.Fprintf(os.Stderr, "%s/%s\n", s.Provider, s.Model)
	}
	return nil
}
