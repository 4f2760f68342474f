package tiers

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/stackvista/es-tier-migrator/internal/config"
	"github.com/stackvista/es-tier-migrator/internal/output"
	"github.com/stackvista/es-tier-migrator/internal/tiering"
)

func listIndicesCmd(cliCtx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "list-indices",
		Short: "List managed indices with their current and planned tier",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := runListIndices(cmd.Context(), cliCtx, cmd.OutOrStdout()); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
		},
	}
}

func runListIndices(ctx context.Context, cliCtx *config.Context, out io.Writer) error {
	s, err := connect(ctx, cliCtx)
	if err != nil {
		return err
	}
	defer s.close()

	t := s.cfg.Tiering
	s.log.Infof("Fetching settings of '%s*' indices...", t.IndexPrefix)

	current, err := s.es.ListIndexTiers(ctx, t.IndexPrefix+"*", t.RoutingAttribute)
	if err != nil {
		return fmt.Errorf("failed to list indices: %w", err)
	}

	names := make([]string, 0, len(current))
	for _, idx := range current {
		names = append(names, idx.Index)
	}
	// A plan without enough indices keeps everything hot, which is what we show
	plan, err := tiering.BuildPlan(names, t.IndexPrefix, t.MidTierAge, t.ArchiveTierAge)
	if plan == nil {
		return err
	}
	planned := make(map[string]string, len(names))
	for _, a := range plan.Assignments() {
		planned[a.Index] = a.Tier
	}

	table := output.Table{
		Headers: []string{"INDEX", "TAG", "REPLICAS", "PLANNED"},
		Rows:    make([][]string, 0, len(current)),
	}
	for _, idx := range current {
		table.Rows = append(table.Rows, []string{idx.Index, orDash(idx.Tier), orDash(idx.Replicas), planned[idx.Index]})
	}
	return output.NewFormatter(out, cliCtx.Config.OutputFormat).PrintTable(table)
}
