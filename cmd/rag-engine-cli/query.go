package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/retrieval"
)

// queryOutput is the --json form of an answer.
type queryOutput struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Source     *string  `json:"source"`
	Language   string   `json:"language"`
	Class      string   `json:"class"`
	Intents    []string `json:"intents,omitempty"`
	Retrieved  int      `json:"retrieved"`
	Selected   int      `json:"selected"`
	Aggregated bool     `json:"aggregated"`
	Fallback   bool     `json:"fallback"`
	Cached     bool     `json:"cached"`
	LatencyMs  int64    `json:"latency_ms"`
}

func newQueryCmd() *cobra.Command {
	var (
		scope   scopeFlags
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the loaded documents",
		Long: `Query retrieves the most relevant chunks for the question, answers in the
question's language (English or Turkish) and cites the source document. When
the documents do not contain the answer the fixed fallback sentence is
returned.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout <= 0 {
				timeout = cfg.Server.RequestTimeout
			}
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
			question := strings.Join(args, " ")

			spin := ui.NewSpinner("Searching documents...")
			resp, err := svc.Engine.Query(ctx, retrieval.QueryRequest{
				Question:   question,
				ProjectID:  filter.ProjectID,
				ModuleType: filter.ModuleType,
				DocumentID: filter.DocumentID,
			})
			spin.Stop()
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			if outputJSON {
				return printJSON(queryOutput{
					Question:   question,
					Answer:     resp.Answer,
					Source:     resp.Source,
					Language:   string(resp.Meta.Language),
					Class:      string(resp.Meta.Class),
					Intents:    resp.Meta.Intents,
					Retrieved:  resp.Meta.Retrieved,
					Selected:   resp.Meta.Selected,
					Aggregated: resp.Meta.Aggregated,
					Fallback:   resp.Meta.Fallback,
					Cached:     resp.Meta.Cached,
					LatencyMs:  resp.Meta.Latency.Milliseconds(),
				})
			}

			ui.Section("Answer")
			fmt.Println(resp.Answer)
			ui.Section("Details")
			source := "none"
			if resp.Source != nil {
				source = *resp.Source
			}
			ui.KeyValue("Source", source)
			ui.KeyValue("Language", resp.Meta.Language)
			ui.KeyValue("Class", resp.Meta.Class)
			if len(resp.Meta.Intents) > 0 {
				ui.KeyValue("Intents", strings.Join(resp.Meta.Intents, ", "))
			}
			ui.KeyValue("Chunks", fmt.Sprintf("%d retrieved, %d selected", resp.Meta.Retrieved, resp.Meta.Selected))
			ui.KeyValue("Latency", FormatDuration(resp.Meta.Latency))

			switch {
			case resp.Meta.Error:
				ui.Error("A model call failed; see the answer text")
			case resp.Meta.Fallback:
				ui.Warning("No supporting evidence found")
			case resp.Meta.Aggregated:
				ui.Success("Answered by deterministic aggregation")
			case resp.Meta.Cached:
				ui.Info("Served from cache")
			}
			return nil
		},
	}

	scope.register(cmd, false)
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "query timeout (default: server.request_timeout)")
	return cmd
}
