// Command piatto is the terminal client for the Piatto recipe assistant.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"piatto/internal/app"
	"piatto/internal/config"
	"piatto/internal/logger"
	"piatto/internal/messages"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	verbose    bool

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "piatto",
	Short: "Piatto - generate, save and cook recipes from the terminal",
	Long: `Piatto turns a short description and the ingredients you have at home
into recipe suggestions. Save the ones you like, sort them into collections
and cook them step by step with the assistant.

The active preparing and cooking sessions are remembered between calls.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		zl, err := logger.New(logger.Config{
			Level:       cfg.LogLevel,
			Format:      cfg.LogFormat,
			Development: cfg.LogDevelopment,
		})
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		application, err = app.New(cfg, zl, app.WithFileStorage())
		return err
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if application != nil {
			_ = application.Logger().Sync()
			application.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $HOME/.piatto/piatto.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log API requests")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if application != nil {
			application.Logger().Debug("command failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, failStyle.Render(errorText(err)))
		os.Exit(1)
	}
}

// errorText prefers the user-facing message and falls back to the error
// itself for problems outside the API, like a missing config value.
func errorText(err error) string {
	if msg := messages.For(err); msg != messages.Unknown {
		return msg
	}
	return err.Error()
}
