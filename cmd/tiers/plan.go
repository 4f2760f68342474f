package tiers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/stackvista/es-tier-migrator/internal/config"
	"github.com/stackvista/es-tier-migrator/internal/output"
	"github.com/stackvista/es-tier-migrator/internal/tiering"
)

func planCmd(cliCtx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the tier each index would be moved to",
		Long:  `Show the tier assignment the next migration pass would apply, without changing anything.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := runPlan(cmd.Context(), cliCtx, cmd.OutOrStdout()); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
		},
	}
}

func runPlan(ctx context.Context, cliCtx *config.Context, out io.Writer) error {
	s, err := connect(ctx, cliCtx)
	if err != nil {
		return err
	}
	defer s.close()

	cfg := migratorConfig(s.cfg)
	s.log.Infof("Fetching Elasticsearch indices...")

	plan, err := tiering.NewMigrator(s.es, cfg, s.log).Plan(ctx)
	if errors.Is(err, tiering.ErrNotEnoughIndices) {
		s.log.Infof("Only %d '%s' index(es), nothing would be moved", len(plan.Indices), cfg.IndexPrefix)
	} else if err != nil {
		return err
	}

	formatter := output.NewFormatter(out, cliCtx.Config.OutputFormat)
	if formatter.IsJSON() {
		return formatter.PrintJSON(plan)
	}

	tags := map[string]string{
		tiering.TierMid:     cfg.MidTierTag,
		tiering.TierArchive: cfg.ArchiveTierTag,
		tiering.TierHot:     "-",
	}
	table := output.Table{
		Headers: []string{"INDEX", "TIER", "TAG"},
		Rows:    make([][]string, 0, len(plan.Indices)),
	}
	for _, a := range plan.Assignments() {
		table.Rows = append(table.Rows, []string{a.Index, a.Tier, tags[a.Tier]})
	}
	return formatter.PrintTable(table)
}
