// Command knowledge indexes a folder of office documents and answers
// questions about them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teilomillet/knowledge"
	"github.com/teilomillet/knowledge/config"
	"github.com/teilomillet/knowledge/rag"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// Loaded by the root command before any subcommand runs.
	cfg *config.Config

	zapLogger *rag.ZapLogger
)

var rootCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Knowledge Assistant - ask questions about your documents",
	Long: `knowledge extracts text from PDF, Word, Excel, CSV and PowerPoint files,
indexes it in a vector store and answers questions with an LLM using the most
relevant passages as context.

Typical workflow:
  knowledge scan ./docs       # what is in the folder
  knowledge ingest ./docs     # extract, chunk, embed and index
  knowledge ask               # interactive questions
  knowledge serve             # web UI on http://localhost:8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			if err := loaded.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
				return err
			}
		}
		cfg = loaded
		return setupLogging(cfg)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zapLogger != nil {
			_ = zapLogger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: search $KNOWLEDGE_CONFIG, ~/.knowledge, ~/.config/knowledge, ./knowledge.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: off, error, warn, info, debug")

	rootCmd.AddCommand(scanCmd, extractCmd, indexCmd, ingestCmd, askCmd, serveCmd)
}

// setupLogging installs the logger selected by log_format.
func setupLogging(c *config.Config) error {
	if c.LogFormat == "json" {
		z, err := rag.NewZapLogger(c.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		zapLogger = z
		knowledge.SetLogger(z)
		return nil
	}
	knowledge.SetLogger(rag.NewLogger(c.LogLevel))
	return nil
}

// commandContext returns the command's context, or Background when the
// command was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// errorMessage renders err the way the CLI reports it.
func errorMessage(err error) string {
	if errors.Is(err, knowledge.ErrFolderNotFound) {
		return "Error: The specified folder does not exist."
	}
	return "Error: " + err.Error()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorMessage(err))
		os.Exit(1)
	}
}
