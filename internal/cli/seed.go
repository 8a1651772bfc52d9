package cli

import (
	"github.com/spf13/cobra"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the built-in category taxonomy",
	Long:  `Writes the embedded category taxonomy into the store. Idempotent; safe to run on every deploy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := buildStack(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		return seed.Seed(ctx, s.db, s.logger)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
