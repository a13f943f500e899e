package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/substantiate/internal/model"
)

var literatureContext string

var literatureCmd = &cobra.Command{
	Use:   "literature",
	Short: "Search the biomedical literature",
}

var literatureSearchCmd = &cobra.Command{
	Use:   "search <claim text>",
	Short: "Find and rank literature candidates for a claim",
	Long: `Search extracts keywords from the claim, queries PubMed and ranks the
results by relevance. Search failures print no candidates.

Example:
  substantiate literature search "Drug X reduced mortality by 28%" --context "Drug X"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLiteratureSearch,
}

func init() {
	rootCmd.AddCommand(literatureCmd)
	literatureCmd.AddCommand(literatureSearchCmd)
	literatureSearchCmd.Flags().StringVar(&literatureContext, "context", "", "product or document context, e.g. the product name")
}

func runLiteratureSearch(cmd *cobra.Command, args []string) error {
	claim := strings.Join(args, " ")

	return withApp(func(ctx context.Context, a *app) error {
		candidates, err := a.engine.FindLiteratureCandidates(ctx, claim, literatureContext)
		if err != nil {
			return err
		}
		if outputJSON {
			if candidates == nil {
				candidates = []model.LiteratureCandidate{}
			}
			return printJSON(cmd.OutOrStdout(), candidates)
		}

		if len(candidates) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No literature candidates found")
			return nil
		}
		for i, c := range candidates {
			fmt.Fprintf(cmd.OutOrStdout(), "%2d. [%.2f] %s\n", i+1, c.RelevanceScore, c.TitleOrName())
			if c.Journal != "" || c.Year > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "    %s %d\n", c.Journal, c.Year)
			}
			if c.PubMedID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "    https://pubmed.ncbi.nlm.nih.gov/%s/\n", c.PubMedID)
			}
		}
		return nil
	})
}
