package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var (
		scope   scopeFlags
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ingest <records.jsonl>...",
		Short: "Load pre-chunked records into the chunk store",
		Long: `Ingest reads chunk records produced by the document chunker, either as a
JSON array or as JSON lines. Records without an id get one, records without
an embedding are embedded, and chunks repeating the text of an earlier chunk
in the same file are skipped. The answer cache is cleared afterwards.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			filter, err := scope.filter()
			if err != nil {
				return err
			}

			svc, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			var results []*ingest.IngestionResult
			for _, path := range args {
				records, err := readRecords(path)
				if err != nil {
					return err
				}

				bar := ui.ProgressBar(path, int64(len(records)))
				res, err := svc.Pipeline.Ingest(ctx, ingest.IngestionRequest{
					Records:    records,
					ProjectID:  filter.ProjectID,
					ModuleType: filter.ModuleType,
					DocumentID: filter.DocumentID,
				}, func(done, total int) {
					if bar != nil {
						bar.SetTotal(int64(total), false)
						bar.SetCurrent(int64(done))
					}
				})
				if bar != nil {
					bar.SetTotal(-1, true)
				}
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				results = append(results, res)
			}
			ui.Close()

			if outputJSON {
				return printJSON(results)
			}

			for i, res := range results {
				ui.Section(args[i])
				ui.KeyValue("Job", res.JobID)
				ui.KeyValue("Chunks created", res.ChunksCreated)
				ui.KeyValue("Duplicates", res.Duplicates)
				ui.KeyValue("Skipped", res.Skipped)
				ui.KeyValue("Documents", len(res.Documents))
				ui.KeyValue("Duration", FormatDuration(res.Duration))
				for _, e := range res.Errors {
					ui.Warning("%s", e)
				}
			}
			ui.Success("Ingestion complete")
			return nil
		},
	}

	scope.register(cmd, false)
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "overall ingestion timeout")
	return cmd
}

func readRecords(path string) ([]ingest.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer f.Close()

	records, err := ingest.DecodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}
