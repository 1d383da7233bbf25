package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/pagechat/internal/answer"
)

var (
	queryURLs         []string
	queryModel        string
	queryTopK         int
	queryRetrieveOnly bool
)

var queryCmd = &cobra.Command{
	Use:   "query QUESTION",
	Short: "Answer a question from indexed web pages",
	Long: `Indexes the pages given with --urls, retrieves the chunks closest to the
question and asks the model to answer from them, listing the pages used.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringSliceVar(&queryURLs, "urls", nil, "pages to index before answering")
	queryCmd.Flags().StringVar(&queryModel, "model", "", "model for embeddings and generation (overrides MODEL)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "chunks retrieved per question (overrides TOP_K)")
	queryCmd.Flags().BoolVar(&queryRetrieveOnly, "retrieve-only", false, "print retrieved chunks without generating an answer")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryModel != "" {
		cfg.Model = queryModel
	}
	if queryTopK > 0 {
		cfg.TopK = queryTopK
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	st := newStyles(out)

	if len(queryURLs) > 0 {
		rep, err := a.indexer.ProcessMany(ctx, queryURLs)
		if err != nil {
			printReport(out, st, rep)
			return fmt.Errorf("indexing aborted: %w", err)
		}
		if rep.Failed() > 0 || rep.Partial() > 0 {
			printReport(out, st, rep)
			fmt.Fprintln(out)
		}
	}

	if queryRetrieveOnly {
		hits, err := a.answerer.Retrieve(ctx, args[0])
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Fprintln(out, answer.NoInfoAnswer)
			return nil
		}
		printChunks(out, st, hits)
		return nil
	}

	res, err := a.answerer.Answer(ctx, args[0])
	if errors.Is(err, answer.ErrGenerationFailed) {
		printSources(out, st, res.Sources)
		return &exitError{code: 1, err: err}
	}
	if err != nil {
		return err
	}
	if res.NoInfo {
		fmt.Fprintln(out, res.Answer)
		return nil
	}
	printAnswer(out, st, res.Answer, res.Sources)
	return nil
}
