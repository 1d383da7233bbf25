package main

import (
	"errors"
	"fmt"

	"github.com/dgallion1/pagechat/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	processModel       string
	processConcurrency int
)

var processCmd = &cobra.Command{
	Use:   "process-urls URL...",
	Short: "Fetch, chunk and embed web pages",
	Long: `Fetches each URL, splits its text into overlapping chunks and embeds
them into the vector index. A URL that fails is reported and skipped;
the command fails only when no URL could be indexed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processModel, "model", "", "model used for embeddings (overrides MODEL)")
	processCmd.Flags().IntVar(&processConcurrency, "concurrency", 0, "URLs indexed in parallel (overrides INDEX_CONCURRENCY)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if processModel != "" {
		cfg.Model = processModel
	}
	if processConcurrency > 0 {
		cfg.IndexConcurrency = processConcurrency
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.indexer.ProcessMany(cmd.Context(), args)
	printReport(cmd.OutOrStdout(), newStyles(cmd.OutOrStdout()), rep)
	if err != nil {
		return fmt.Errorf("indexing aborted: %w", err)
	}
	if !rep.AnyIndexed() {
		return &exitError{code: 1, err: errors.Join(pipeline.ErrNoChunksIndexed, rep.Err())}
	}
	return nil
}
