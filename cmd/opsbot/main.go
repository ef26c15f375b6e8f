// opsbot is a chat bot for monitoring a Linux host and collecting contact
// details from free text.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ashureev/opsbot/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app carries state shared by subcommands after the root pre-run.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	logFile io.Closer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "opsbot",
		Short:         "Host monitoring and contact extraction chat bot",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.AddCommand(newServeCmd(a), newExecCmd(a), newRecordsCmd(a))
	return root
}

func (a *app) init(stderr io.Writer) error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}

	var out io.Writer = stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		out = io.MultiWriter(stderr, f)
	}

	a.logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
		}
	}
}
