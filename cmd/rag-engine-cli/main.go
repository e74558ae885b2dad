// Package main provides the RAG engine CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/app"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/config"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

var (
	cfgFile    string
	outputJSON bool
	noColor    bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rag-engine-cli",
	Short: "Bilingual document question answering over the project corpus",
	Long: `rag-engine-cli answers English and Turkish questions from the project
documents loaded into the chunk store.

Use this tool to:
- Ask questions and see the cited source
- Load pre-chunked JSON or JSONL records into the store
- Remove chunks by document, project or module
- Run a validation set and grade the answers

All commands support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if outputJSON {
			cfg.Observability.LogFormat = "json"
		} else if cfg.Observability.LogFormat == "" {
			cfg.Observability.LogFormat = "console"
		}
		logger = app.NewLogger(cfg, "rag-engine-cli")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path (default: env vars only)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newPurgeCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newEvalCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openServices(ctx context.Context) (*app.Services, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

// scopeFlags are the filter flags shared by query, ingest and purge.
type scopeFlags struct {
	project  string
	module   string
	document string
	docName  string
}

func (s *scopeFlags) register(cmd *cobra.Command, withDocName bool) {
	cmd.Flags().StringVar(&s.project, "project", "", "project id")
	cmd.Flags().StringVar(&s.module, "module", "", "module type (panel, trench, dc_cable, qa, generic)")
	cmd.Flags().StringVar(&s.document, "document", "", "document id")
	if withDocName {
		cmd.Flags().StringVar(&s.docName, "doc-name", "", "document file name")
	}
}

func (s *scopeFlags) filter() (storage.Filter, error) {
	f := storage.Filter{
		ProjectID:  s.project,
		ModuleType: storage.ModuleType(s.module),
		DocumentID: s.document,
		DocName:    s.docName,
	}
	if !f.ModuleType.Valid() {
		return f, fmt.Errorf("unknown module type %q", s.module)
	}
	return f, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
