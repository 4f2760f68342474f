// Package tiers holds the commands that inspect and change index tiers.
package tiers

import (
	"github.com/spf13/cobra"
	"github.com/stackvista/es-tier-migrator/internal/config"
)

// Commands returns the tiering commands
func Commands(cliCtx *config.Context) []*cobra.Command {
	return []*cobra.Command{
		migrateCmd(cliCtx),
		planCmd(cliCtx),
		listIndicesCmd(cliCtx),
	}
}
