package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/andresmejia3/kirkifier/internal/store"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var errNoDatabase = errors.New("run history is disabled: set database_url or KIRKIFIER_DATABASE_URL")

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past conversions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Cfg.DatabaseURL == "" {
			return errNoDatabase
		}
		db, err := store.New(cmd.Context(), Cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close(context.Background())

		runs, err := db.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversions recorded yet.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderHistory(runs))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func renderHistory(runs []store.Run) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "FINISHED", "INPUT", "OUTPUT", "KIRK", "FPS", "FRAMES", "FACES", "TOOK"})

	for _, r := range runs {
		tw.AppendRow(table.Row{
			r.ID.String()[:8],
			r.FinishedAt.Local().Format("2006-01-02 15:04"),
			r.InputPath,
			r.OutputPath,
			filepath.Base(r.Reference),
			r.FrameRate,
			strconv.Itoa(r.Frames),
			strconv.Itoa(r.FacesSwapped),
			r.Duration().Round(time.Second).String(),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	return tw.Render()
}
