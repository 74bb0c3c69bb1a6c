package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teilomillet/knowledge"
)

var (
	indexAppend  bool
	indexChunker string
)

var indexCmd = &cobra.Command{
	Use:   "index [processed-texts-file]",
	Short: "Chunk, embed and store a processed texts file in the vector index",
	Long: `Reads the file written by "knowledge extract" (default processed_texts.txt),
splits it into overlapping chunks, embeds them and replaces the vector index.
Use --append to add to an existing index instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <folder|file|url>",
	Short: "Extract, chunk, embed and index documents in one step",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var ingestIncludeText bool

func init() {
	for _, c := range []*cobra.Command{indexCmd, ingestCmd} {
		c.Flags().BoolVar(&indexAppend, "append", false, "Add to the existing index instead of rebuilding it")
		c.Flags().StringVar(&indexChunker, "chunker", "", "Chunking strategy: recursive or sentence (default from config)")
	}
	ingestCmd.Flags().BoolVar(&ingestIncludeText, "include-text", false, "Also extract plain .txt files")
}

// indexOptions combines the configuration with the index flags.
func indexOptions() []knowledge.RegisterOption {
	opts := registerOptions(cfg)
	if indexChunker != "" {
		opts = append(opts, knowledge.WithChunking(indexChunker, cfg.ChunkSize, cfg.ChunkOverlap))
	}
	return append(opts, knowledge.WithRebuild(!indexAppend))
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := cfg.ProcessedTexts
	if len(args) == 1 {
		path = args[0]
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Loading text file...")
	stats, err := knowledge.Register(commandContext(cmd), path, indexOptions()...)
	if err != nil {
		return err
	}
	printIndexed(cmd, stats)
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	opts := indexOptions()
	if ingestIncludeText {
		opts = append(opts, knowledge.WithIncludeText(true))
	}
	stats, err := knowledge.Ingest(commandContext(cmd), args[0], opts...)
	if err != nil {
		return err
	}
	printIndexed(cmd, stats)
	return nil
}

func printIndexed(cmd *cobra.Command, stats *knowledge.RegisterStats) {
	fmt.Fprintf(cmd.OutOrStdout(), "Processed %d document chunks and saved index successfully!\n", stats.Chunks)
}
