package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ppiankov/substantiate/internal/worker"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Run batch operations over every claim of a project",
	Long: `Project commands process claims one at a time. A failing claim is
reported and the batch continues; interrupting stops before the next claim.

Example:
  substantiate project relink p1
  substantiate project audit p1 --json
  substantiate project auto-find p1 --timeout 30m`,
}

func newProjectCmd(use, short string, run func(ctx context.Context, a *app, projectID string) (worker.BatchReport, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <project-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				report, err := run(ctx, a, args[0])
				if err != nil {
					return err
				}
				return printReport(cmd.OutOrStdout(), report)
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(projectCmd)

	projectCmd.AddCommand(newProjectCmd("relink", "Re-run linking for every claim",
		func(ctx context.Context, a *app, id string) (worker.BatchReport, error) {
			return a.engine.RelinkProject(ctx, id)
		}))
	projectCmd.AddCommand(newProjectCmd("audit", "Audit the links of every claim",
		func(ctx context.Context, a *app, id string) (worker.BatchReport, error) {
			return a.engine.AuditProject(ctx, id)
		}))
	projectCmd.AddCommand(newProjectCmd("auto-find", "Search the literature and store suggested references",
		func(ctx context.Context, a *app, id string) (worker.BatchReport, error) {
			return a.engine.AutoFindReferences(ctx, id)
		}))
}
