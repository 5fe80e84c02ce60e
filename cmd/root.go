package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/kirkifier/internal/config"
	"github.com/andresmejia3/kirkifier/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Cfg is the resolved configuration shared by subcommands
	Cfg *config.Config
	// Log is the process-wide structured logger
	Log *zap.Logger
	// cfgFile is the --config flag
	cfgFile string
)

// Version is the application version.
const Version = "0.1.0"

const usage = "Usage: kirkifier <input_video> <output_video>"

var rootCmd = &cobra.Command{
	Use:     "kirkifier <input_video> <output_video>",
	Short:   "Swap every face in a video with a Kirk",
	Long:    "Extracts the frames of a video, replaces every detected face with one reference face\nchosen at random for the run, and reassembles the video with its original audio.",
	Version: Version,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return errors.New(usage)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		Log, err = logging.New(Cfg.LogLevel, os.Stderr)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if Log != nil {
			_ = Log.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return newConverter(Cfg, Log).run(cmd.Context(), args[0], args[1])
	},
}

// reportedError marks an error whose box was already printed.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func Execute() {
	// Ctrl+C cancels the context, which kills ffmpeg and the python worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a TOML config file (default: $KIRKIFIER_CONFIG or ./kirkifier.toml)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
