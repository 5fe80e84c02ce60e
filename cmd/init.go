package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/kirkifier/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Download and load the face models, then exit",
	Long:  "Starts the inference worker once so that model weights are fetched and cached.\nNo video is read and no working files are created.",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := func(ctx context.Context) (engine, error) {
			return worker.NewPythonWorker(ctx, 0, workerConfig(Cfg))
		}
		return runInit(cmd.Context(), start, Log, os.Stdout, os.Stderr)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(ctx context.Context, start func(context.Context) (engine, error), log *zap.Logger, stdout, stderr io.Writer) error {
	fmt.Fprintln(stderr, "🧠 Loading face models (first run downloads weights)...")
	eng, err := start(ctx)
	if err != nil {
		c := &converter{stderr: stderr}
		return c.fail("Model initialization failed", err, nil)
	}
	if err := eng.Close(); err != nil {
		log.Debug("worker exited uncleanly", zap.Error(err))
	}
	fmt.Fprintln(stdout, "initialized!!")
	return nil
}
