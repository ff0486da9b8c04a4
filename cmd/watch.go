package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <watcher-email> <subject>",
	Short: "Get notified when a subject is sighted",
	Long: `Subscribe an email address to a subject. The subject may be given by ID or
by name; names are compared ignoring case, diacritics and dashes.

Example:
  facewatch watch me@example.com "Ann"
  facewatch watch me@example.com 42`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.watchlist().Watch(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	name := args[1]
	if s, err := a.repo.GetSubject(ctx, id); err == nil {
		name = s.Name
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s now watches %s (#%d)\n", args[0], name, id)
	return nil
}
