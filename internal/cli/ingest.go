package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/ingest"
)

var ingestRoots []string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion pass over the definition roots",
	Long:  `Discovers template definition files, normalizes them and stores anything new or changed. Prints the run result as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := buildStack(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		if len(ingestRoots) > 0 {
			s.cfg.Ingest.Roots = ingestRoots
			s.pipeline = ingest.NewPipeline(s.svc, s.cfg.Ingest, s.logger)
		}
		if len(s.cfg.Ingest.Roots) == 0 {
			return fmt.Errorf("no ingestion roots configured; pass --root or set CATALOG_INGEST_ROOTS")
		}

		result, err := s.pipeline.Run(ctx)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringArrayVar(&ingestRoots, "root", nil, "Definition root directory (repeatable)")
}
