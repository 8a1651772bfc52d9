package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

var (
	searchSemantic   bool
	searchCategory   string
	searchTags       []string
	searchDeprecated bool
	searchLimit      int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalog",
	Long:  `Searches stored templates. The default path ranks lexical matches; --semantic embeds the query and ranks by cosine similarity.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := buildStack(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		query := &models.SearchQuery{
			Query:             args[0],
			Tags:              searchTags,
			IncludeDeprecated: searchDeprecated,
			Limit:             searchLimit,
		}
		if searchCategory != "" {
			query.Category = &searchCategory
		}

		var hits []models.SearchHit
		if searchSemantic {
			hits, err = s.svc.SemanticSearch(ctx, query)
		} else {
			hits, err = s.svc.Search(ctx, query)
		}
		if err != nil {
			return err
		}

		if len(hits) == 0 {
			fmt.Println("No results.")
			return nil
		}
		for _, hit := range hits {
			fmt.Printf("%-40s %-18s %.3f  %s\n", hit.Template.ID, hit.Template.Category, hit.Score, hit.Template.Title)
			for _, highlight := range hit.Highlights {
				fmt.Printf("    %s\n", highlight)
			}
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <template-id>",
	Short: "Show usage statistics for a template",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := buildStack(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		stats, err := s.svc.GetUsageStats(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
	Args: cobra.ExactArgs(1),
}

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	searchCmd.Flags().BoolVar(&searchSemantic, "semantic", false, "Rank by embedding similarity instead of lexical match")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "Restrict to one category")
	searchCmd.Flags().StringArrayVar(&searchTags, "tag", nil, "Require a tag (repeatable)")
	searchCmd.Flags().BoolVar(&searchDeprecated, "include-deprecated", false, "Include deprecated templates")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum number of results")
}
