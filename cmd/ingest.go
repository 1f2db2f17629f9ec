package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Crawls the site and loads the graph and the index",
		Long: `Runs one full acquisition: crawls the configured site, writes the normalized
content to the knowledge graph and the full-text index, archives the snapshot
and announces the finished run. Batch failures are reported in the summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := a.Pipeline.IngestFullSite(cmd.Context())
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			a.Logger().Info("ingest command finished",
				zap.String("version", snap.Version),
				zap.Int("items", snap.ItemCount()),
			)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"version": snap.Version,
				"items":   snap.ItemCount(),
				"summary": snap.Summary,
			})
		},
	}
}
