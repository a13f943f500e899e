package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/substantiate/internal/model"
)

var claimsFile string

var complianceCmd = &cobra.Command{
	Use:   "compliance",
	Short: "Check claim wording against the regulatory rule catalog",
}

var complianceCheckCmd = &cobra.Command{
	Use:   "check [claim text...]",
	Short: "Flag prohibited, warning and informational patterns in claims",
	Long: `Check scans each claim for superlatives, absolute statements,
comparative claims and other patterns from the rule catalog, and reports a
risk level and a 0-100 compliance score per claim.

Claims come from arguments (one claim per argument) or from a YAML/JSON
file holding a list of {id, text} entries.

Example:
  substantiate compliance check "X is the most effective treatment available today"
  substantiate compliance check --file claims.yaml --json`,
	RunE: runComplianceCheck,
}

func init() {
	rootCmd.AddCommand(complianceCmd)
	complianceCmd.AddCommand(complianceCheckCmd)
	complianceCheckCmd.Flags().StringVarP(&claimsFile, "file", "f", "", "YAML or JSON file with a list of {id, text} claims")
}

// readClaims loads claims from path; JSON parses as YAML
func readClaims(path string) ([]model.ClaimText, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read claims file: %w", err)
	}
	var claims []model.ClaimText
	if err := yaml.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("parse claims file: %w", err)
	}
	for i := range claims {
		if claims[i].ID == "" {
			claims[i].ID = strconv.Itoa(i + 1)
		}
	}
	return claims, nil
}

func runComplianceCheck(cmd *cobra.Command, args []string) error {
	var claims []model.ClaimText
	if claimsFile != "" {
		var err error
		if claims, err = readClaims(claimsFile); err != nil {
			return err
		}
	}
	for _, text := range args {
		claims = append(claims, model.ClaimText{ID: strconv.Itoa(len(claims) + 1), Text: text})
	}
	if len(claims) == 0 {
		return fmt.Errorf("no claims given: pass claim text as arguments or use --file")
	}

	return withApp(func(ctx context.Context, a *app) error {
		report := a.engine.RunComplianceCheck(ctx, claims)
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), report)
		}

		out := cmd.OutOrStdout()
		for _, r := range report.Results {
			fmt.Fprintf(out, "%s: %s risk, score %d/100\n", r.ClaimID, r.RiskLevel, r.ComplianceScore)
			for _, issue := range r.Issues {
				fmt.Fprintf(out, "  - [%s] %s: %q", issue.Type, issue.Message, issue.MatchedText)
				if issue.Suggestion != "" {
					fmt.Fprintf(out, " (%s)", issue.Suggestion)
				}
				fmt.Fprintln(out)
			}
		}
		s := report.Summary
		fmt.Fprintf(out, "\n%d claims: %d high, %d medium, %d low, %d compliant, average score %.1f\n",
			s.Total, s.High, s.Medium, s.Low, s.Compliant, s.AverageScore)
		return nil
	})
}
