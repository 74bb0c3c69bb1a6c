package main

import (
	"github.com/spf13/cobra"
	"github.com/teilomillet/knowledge/rag"
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Summarize file types and sizes in a folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	report, err := rag.AnalyzeFolder(commandContext(cmd), args[0])
	if err != nil {
		return err
	}
	return rag.WriteReport(cmd.OutOrStdout(), report)
}
