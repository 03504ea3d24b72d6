package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/config"
)

var (
	configFlag   string
	logLevelFlag string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pangu",
	Short: "Chat with precomputed Pangu-Weather forecasts",
	Long: `pangu answers natural-language questions about the forecast average
temperature over China. A language model reasons in Thought/Action/Observation
steps and looks up precomputed Pangu-Weather statistics through a single tool.

Model backends:
  openai  - any OpenAI-compatible endpoint (default, e.g. vLLM or llama-server)
  llama   - local GGUF model via llama.cpp (build with -tags llama)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(configFlag)
		if err != nil {
			return err
		}
		cfg = loaded
		if logLevelFlag != "" {
			cfg.Log.Level = logLevelFlag
		}
		logger, err = newLogger(cfg.Log, os.Stderr)
		return err
	},
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default: ./config.yaml or ~/.config/pangu/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(askCmd, chatCmd, batchCmd, toolsCmd, forecastCmd, historyCmd)
}

// newLogger builds the process logger and installs it as the global
// zerolog logger used by the db package.
func newLogger(lc config.LogConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	w := out
	if lc.Pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	log.Logger = l
	return l, nil
}
