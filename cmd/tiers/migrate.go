package tiers

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stackvista/es-tier-migrator/internal/config"
	"github.com/stackvista/es-tier-migrator/internal/output"
	"github.com/stackvista/es-tier-migrator/internal/tiering"
)

func migrateCmd(cliCtx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Move aging indices to the mid and archive tiers",
		Long: `Run one tier migration pass.

Shard re-allocation is disabled, mid-tier indices are re-tagged and optimized,
archive-tier indices are re-tagged, and re-allocation is enabled again, also
when the pass fails or is interrupted. Failed indices are listed at the end and
make the command exit with status 1.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := runMigrate(cmd.Context(), cliCtx, cmd.OutOrStdout()); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
		},
	}
}

func runMigrate(ctx context.Context, cliCtx *config.Context, out io.Writer) error {
	s, err := connect(ctx, cliCtx)
	if err != nil {
		return err
	}
	defer s.close()

	migrator := tiering.NewMigrator(s.es, migratorConfig(s.cfg), s.log)
	report, runErr := migrator.Run(ctx)

	if report != nil {
		formatter := output.NewFormatter(out, cliCtx.Config.OutputFormat)
		if err := printReport(formatter, report); err != nil {
			return fmt.Errorf("failed to print report: %w", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("migration failed: %w", runErr)
	}
	if report.Skipped {
		return nil
	}

	if failed := report.FailedIndices(); len(failed) > 0 {
		s.log.Println()
		s.log.Warningf("%d index(es) failed to migrate:", len(failed))
		for _, index := range failed {
			s.log.Warningf("  - %s", index)
		}
		return fmt.Errorf("%d index(es) failed to migrate: %s", len(failed), strings.Join(failed, ", "))
	}

	s.log.Println()
	s.log.Successf("Migrated %d index(es) to the mid tier and %d index(es) to the archive tier",
		len(report.Plan.Mid), len(report.Plan.Archive))
	return nil
}

// printReport prints every issued call with its outcome
func printReport(formatter *output.Formatter, report *tiering.Report) error {
	if formatter.IsJSON() {
		return formatter.PrintJSON(report)
	}
	if report.Skipped {
		formatter.PrintMessage("Nothing to migrate")
		return nil
	}

	table := output.Table{
		Headers: []string{"CALL", "INDEX", "TIER", "STATUS", "ERROR"},
		Rows:    make([][]string, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		table.Rows = append(table.Rows, []string{
			string(res.Call),
			orDash(res.Index),
			orDash(res.Tier),
			status(res),
			orDash(res.Error),
		})
	}
	return formatter.PrintTable(table)
}

func status(res tiering.Result) string {
	switch {
	case res.OK():
		return "ok"
	case res.Retryable:
		return "failed (retryable)"
	default:
		return "failed"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
