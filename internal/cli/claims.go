package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var commandTimeout time.Duration

var linkCmd = &cobra.Command{
	Use:   "link <claim-id> [document-id]",
	Short: "Link a claim to its best reference document",
	Long: `Link matches a claim against its project's documents by word overlap and
falls back to the configured AI provider when no document clears the
threshold. With a document id the link is created directly.

Example:
  substantiate link c1 --fixture project.yaml
  substantiate link c1 d2`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runLink,
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <link-id>",
	Short: "Remove a claim-document link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.engine.Unlink(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed link %s\n", args[0])
			return nil
		})
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <claim-id>",
	Short: "Score how well a claim's linked documents substantiate it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			outcome, err := a.engine.AuditExistingLinks(ctx, args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), outcome)
			}
			review := ""
			if outcome.NeedsReview {
				review = " (needs review)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: confidence %.2f%s\n  %s\n",
				outcome.ClaimID, outcome.ConfidenceScore, review, outcome.AuditReasoning)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().DurationVar(&commandTimeout, "timeout", 5*time.Minute, "overall command timeout")

	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
	rootCmd.AddCommand(auditCmd)
}

func runLink(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if len(args) == 2 {
			link, created, err := a.engine.LinkClaimToDocument(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), link)
			}
			state := "already linked"
			if created {
				state = "linked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s → %s %s (link %s)\n", link.ClaimID, link.DocumentID, state, link.ID)
			return nil
		}

		decision, err := a.engine.LinkClaim(ctx, args[0])
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), decision)
		}
		if !decision.Matched() {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: no document matched (best rule score %.2f)\n", decision.ClaimID, decision.RuleScore)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s → %s via %s (rule score %.2f)\n",
			decision.ClaimID, decision.DocumentID, decision.Method, decision.RuleScore)
		return nil
	})
}

// withApp wires the application, bounds the command by --timeout and
// releases resources afterwards
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
