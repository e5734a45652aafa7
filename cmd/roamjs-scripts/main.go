package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	simple "github.com/roamjs/roamjs-scripts/config"
	"github.com/roamjs/roamjs-scripts/internal/logging"
	"github.com/roamjs/roamjs-scripts/internal/setup"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "console"
)

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewConsole(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(exitCode(slog.Default(), err))
	}
}

func exitCode(logger *slog.Logger, err error) int {
	var exitErr *setup.ExitError
	var userErr *setup.UserError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, context.Canceled):
		logger.Warn("command interrupted", "error", err)
		return 130
	case errors.As(err, &userErr):
		logger.Error(userErr.Message)
	default:
		logger.Error("command failed", "error", err)
	}
	return 1
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	setup.SetLogger(logger.With("component", "setup"))

	root := &cobra.Command{
		Use:           "roamjs-scripts",
		Short:         "Build, serve, test and publish Roam Research extensions",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("Command %s is unsupported", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	// Subcommands parse their own tokens; this flag is documented here only.
	root.PersistentFlags().String("log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentFlags().String("log-format", defaultLogFormat, "Set log output format (console, json)")

	root.AddCommand(
		newCommand(logger, levelVar, "build", "Bundle the extension for production", func(ctx context.Context, inv *simple.Invocation) error {
			return simple.Build(ctx, inv)
		}),
		newCommand(logger, levelVar, "dev", "Serve a watched development build", func(ctx context.Context, inv *simple.Invocation) error {
			return simple.Dev(ctx, inv)
		}),
		newCommand(logger, levelVar, "init", "Scaffold a new extension project", func(ctx context.Context, inv *simple.Invocation) error {
			_, err := simple.Init(ctx, inv)
			return err
		}),
		newCommand(logger, levelVar, "lambdas", "Package and deploy the functions under lambdas/", func(ctx context.Context, inv *simple.Invocation) error {
			_, err := simple.Lambdas(ctx, inv)
			return err
		}),
		newCommand(logger, levelVar, "publish", "Upload the build to RoamJS and release it", func(ctx context.Context, inv *simple.Invocation) error {
			_, err := simple.Publish(ctx, inv)
			return err
		}),
		newCommand(logger, levelVar, "test", "Run the end-to-end suite against a depot build", func(ctx context.Context, inv *simple.Invocation) error {
			_, err := simple.Test(ctx, inv)
			return err
		}),
	)
	return root
}

func newCommand(logger *slog.Logger, levelVar *slog.LevelVar, name, short string, run func(context.Context, *simple.Invocation) error) *cobra.Command {
	return &cobra.Command{
		Use:                name + " [--flag [value]]...",
		Short:              short,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, tokens []string) error {
			inv, err := simple.Load(".", tokens)
			if err != nil {
				return err
			}
			level, err := logging.ParseLevel(inv.Options.String("log-level", defaultLogLevel))
			if err != nil {
				return err
			}
			levelVar.Set(level)
			active, err := commandLogger(logger, cmd.ErrOrStderr(), levelVar, inv.Options.String("log-format", defaultLogFormat))
			if err != nil {
				return err
			}

			inv.Out = cmd.OutOrStdout()
			inv.Color = logging.IsTerminal(os.Stdout)
			inv.Logger = active.With("command", name)
			return run(cmd.Context(), inv)
		},
	}
}

// commandLogger returns console unless format selects JSON, in which case a
// JSON logger on w replaces the process and setup defaults.
func commandLogger(console *slog.Logger, w io.Writer, level slog.Leveler, format string) (*slog.Logger, error) {
	mode, err := logging.ParseMode(format)
	if err != nil {
		return nil, err
	}
	if mode == logging.ModeConsole {
		return console, nil
	}
	logger := logging.New(mode, w, level)
	slog.SetDefault(logger)
	setup.SetLogger(logger.With("component", "setup"))
	return logger, nil
}
