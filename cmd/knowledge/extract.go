package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teilomillet/knowledge"
	"github.com/teilomillet/knowledge/rag"
)

var (
	extractOutput      string
	extractIncludeText bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <folder|file|url>",
	Short: "Extract normalized text from documents into a processed texts file",
	Long: `Parses every supported document below the folder (PDF, DOCX, XLSX, CSV,
PPTX and, with --include-text, TXT), normalizes the text and writes it to the
processed texts file that "knowledge index" reads.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Processed texts file (default from config, processed_texts.txt)")
	extractCmd.Flags().BoolVar(&extractIncludeText, "include-text", false, "Also extract plain .txt files")
}

func runExtract(cmd *cobra.Command, args []string) error {
	output := cfg.ProcessedTexts
	if extractOutput != "" {
		output = extractOutput
	}

	texts, err := knowledge.Extract(commandContext(cmd), args[0],
		knowledge.WithConcurrency(cfg.Concurrency),
		knowledge.WithIncludeText(cfg.IncludeText || extractIncludeText),
	)
	if err != nil {
		return err
	}
	if err := rag.SaveProcessedTexts(output, texts); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nProcessed text saved to %s\n", output)
	return nil
}
