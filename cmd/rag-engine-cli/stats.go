package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show chunk store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			n, err := svc.Store.Count(ctx)
			if err != nil {
				return fmt.Errorf("count chunks: %w", err)
			}

			if outputJSON {
				return printJSON(map[string]interface{}{
					"chunks":          n,
					"store":           cfg.Store.Driver,
					"cache":           cfg.Cache.Driver,
					"embedding_model": svc.Embedder.Model(),
					"dimension":       svc.Embedder.Dimension(),
				})
			}

			ui := NewUI(false, noColor)
			ui.Section("Store")
			ui.KeyValue("Chunks", n)
			ui.KeyValue("Driver", cfg.Store.Driver)
			ui.KeyValue("Cache", cfg.Cache.Driver)
			ui.KeyValue("Embedding model", svc.Embedder.Model())
			ui.KeyValue("Dimension", svc.Embedder.Dimension())
			return nil
		},
	}
}
