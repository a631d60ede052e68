// localchat - a terminal chat window for a locally loaded language model.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ClaytonHin/localchat/internal/backend"
	"github.com/ClaytonHin/localchat/internal/chat"
	"github.com/ClaytonHin/localchat/internal/cli"
	"github.com/ClaytonHin/localchat/internal/config"
	"github.com/ClaytonHin/localchat/internal/logging"
	"github.com/ClaytonHin/localchat/internal/ui/styles"
	"github.com/ClaytonHin/localchat/internal/ui/window"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	// Global flags
	configPath  string
	modelFlag   string
	backendFlag string
	plain       bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "localchat",
	Short: "Chat with a local language model in the terminal",
	Long: `localchat loads a local model once at startup and opens a chat window.

Each message is sent to the model on its own, without earlier turns, and the
reply is appended to the conversation. The model is released when the window
closes.

Backends:
  llamacpp  runs llama-server with the configured GGUF file (default)
  ollama    uses a local Ollama server and a pulled model tag`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := applyFlags(cfg); err != nil {
			return err
		}

		logPath, err := cfg.LogPath()
		if err != nil {
			return err
		}
		logger, err = logging.New(logPath, cfg.LogLevel())
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "localchat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.localchat/config.toml)")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "GGUF file (llamacpp) or model tag (ollama)")
	rootCmd.Flags().StringVar(&backendFlag, "backend", "", "inference backend: llamacpp or ollama")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "line-mode prompt instead of the chat window")

	rootCmd.AddCommand(versionCmd)
}

// applyFlags layers command-line flags over the loaded configuration.
func applyFlags(c *config.Config) error {
	if backendFlag != "" {
		c.Inference.Backend = strings.ToLower(backendFlag)
	}
	if modelFlag != "" {
		c.SetModel(modelFlag)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func modelLabel(c *config.Config) string {
	if c.Inference.Backend == config.BackendOllama {
		return c.Model.Name
	}
	return c.Model.Path
}

// runChat loads the model, runs a front end until the user leaves, then
// releases the model. Failing to load the model is fatal.
func runChat(parent context.Context) (err error) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Loading %s (%s backend)...\n", modelLabel(cfg), cfg.Inference.Backend)
	logger.Info("starting",
		zap.String("version", Version),
		zap.String("backend", cfg.Inference.Backend),
		zap.String("model", modelLabel(cfg)))

	sess, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	ctrl := chat.New(sess,
		chat.WithLogger(logger.Named("chat")),
		chat.WithTimeout(cfg.Inference.Timeout.Duration))

	defer func() {
		if ctrl.Busy() {
			fmt.Fprintln(os.Stderr, "Waiting for the current reply to finish...")
		}
		if closeErr := ctrl.Shutdown(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to release model: %w", closeErr)
		}
	}()

	if plain || !cli.CanRunWindow() {
		return runREPL(ctx, ctrl)
	}

	m := window.New(ctx, ctrl, styles.NewTheme(), window.Options{
		Title:     cfg.UI.Title,
		ModelName: modelLabel(cfg),
		Markdown:  cfg.UI.Markdown,
	})
	return window.Run(ctx, m, cfg.UI.AltScreen, cfg.UI.Mouse)
}

func runREPL(ctx context.Context, ctrl *chat.Controller) error {
	repl := cli.NewREPL(ctrl, cli.NewLiner(), os.Stdout)
	defer repl.Close()

	repl.Title = cfg.UI.Title
	repl.ModelName = modelLabel(cfg)
	repl.EchoInput = !cli.IsTTY()
	return repl.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "localchat:", err)
		os.Exit(1)
	}
}
