package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/kirkifier/internal/store"
	"github.com/andresmejia3/kirkifier/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	resetDB    bool
	resetFiles bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (run history, leftover working files)",
	Long:  "Clears kirkifier state. By default it resets everything. Use flags to clear specific components.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := resetter{
			in:    os.Stdin,
			out:   cmd.OutOrStdout(),
			ws:    workspace.New(Cfg.WorkDir),
			dbURL: Cfg.DatabaseURL,
		}
		return r.run(cmd.Context(), resetDB, resetFiles)
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Drop the run history tables")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Remove frames and audio left behind by a failed run")
	rootCmd.AddCommand(resetCmd)
}

type resetter struct {
	in    io.Reader
	out   io.Writer
	ws    *workspace.Workspace
	dbURL string
}

func (r resetter) run(ctx context.Context, db, files bool) error {
	// If no flags are set, default to clearing EVERYTHING
	if !db && !files {
		db, files = true, true
	}
	reader := bufio.NewReader(r.in)

	if db {
		if r.dbURL == "" {
			fmt.Fprintln(r.out, "ℹ️  No database configured, skipping run history.")
		} else if confirm(reader, r.out, "⚠️  Are you sure you want to DROP the run history?") {
			fmt.Fprintln(r.out, "🗑️  Clearing Database...")
			s, err := store.New(ctx, r.dbURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer s.Close(context.Background())
			if err := s.Reset(ctx); err != nil {
				return fmt.Errorf("failed to reset database: %w", err)
			}
		}
	}

	if files {
		leftovers := r.ws.Leftovers()
		switch {
		case len(leftovers) == 0:
			fmt.Fprintln(r.out, "ℹ️  No leftover working files.")
		case confirm(reader, r.out, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", strings.Join(leftovers, ", "))):
			// A running conversion owns these files.
			if err := r.ws.Acquire(); err != nil {
				return err
			}
			defer r.ws.Release()
			fmt.Fprintln(r.out, "🗑️  Clearing working files...")
			if err := r.ws.Cleanup(); err != nil {
				return fmt.Errorf("failed to remove working files: %w", err)
			}
		}
	}

	fmt.Fprintln(r.out, "✨ System Reset Complete.")
	return nil
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
