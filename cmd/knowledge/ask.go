package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/teilomillet/knowledge"
	"github.com/teilomillet/knowledge/web"
)

var (
	askTopK   int
	askHybrid bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer questions from the indexed documents",
	Long: `Without arguments, starts an interactive session that keeps the
conversation history until you type "exit" or "quit". With a question as
argument, answers it once.`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "Number of chunks to retrieve (default from config, 3)")
	askCmd.Flags().BoolVar(&askHybrid, "hybrid", false, "Rerank dense results with BM25")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askTopK > 0 {
		cfg.TopK = askTopK
	}
	if askHybrid {
		cfg.Hybrid = true
	}

	assistant, closeIndex, err := newAssistant(cfg)
	if err != nil {
		return err
	}
	defer closeIndex()

	ctx := commandContext(cmd)
	if len(args) > 0 {
		return answerOnce(ctx, cmd.OutOrStdout(), assistant, assistant.NewSession(), strings.Join(args, " "))
	}
	return askLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), assistant)
}

// askLoop prompts for queries until exit, quit or end of input. Errors on a
// single query are printed and the loop continues.
func askLoop(ctx context.Context, in io.Reader, out io.Writer, assistant web.Asker) error {
	sessionID := assistant.NewSession()
	defer assistant.EndSession(sessionID)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Enter your search query: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "exit", "quit":
			fmt.Fprintln(out, "Exiting search.")
			return nil
		case "":
			continue
		}

		if err := answerOnce(ctx, out, assistant, sessionID, query); err != nil {
			fmt.Fprintln(out, errorMessage(err))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// answerOnce prints the answer to one query. Finding no documents is not
// an error.
func answerOnce(ctx context.Context, out io.Writer, assistant web.Asker, sessionID, query string) error {
	answer, err := assistant.Ask(ctx, sessionID, query)
	if errors.Is(err, knowledge.ErrNoRelevantDocuments) {
		fmt.Fprintln(out, "\n"+knowledge.NoRelevantDocumentsMessage)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\nAI Generated Answer:")
	fmt.Fprintln(out, answer.Text)
	if files := answer.SourceFiles(); len(files) > 0 {
		fmt.Fprintln(out, "\nSources: "+strings.Join(files, ", "))
	}
	fmt.Fprintln(out, strings.Repeat("-", 50))
	return nil
}
