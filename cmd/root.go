package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stackvista/es-tier-migrator/cmd/tiers"
	"github.com/stackvista/es-tier-migrator/cmd/version"
	"github.com/stackvista/es-tier-migrator/internal/config"
)

const defaultConfigName = "es-tier-migrator-config"

var (
	cliCtx *config.Context
)

// addClusterFlags adds the flags needed to reach the cluster and load the tiering policy
// to commands that talk to Elasticsearch
func addClusterFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&cliCtx.Config.URL, "url", "", "Elasticsearch URL, used when --namespace is not set (default: http://localhost:9200)")
	cmd.PersistentFlags().StringVar(&cliCtx.Config.Namespace, "namespace", "", "Kubernetes namespace; when set, config is read from the cluster and Elasticsearch is reached via port-forward")
	cmd.PersistentFlags().StringVar(&cliCtx.Config.Kubeconfig, "kubeconfig", "", "Path to kubeconfig file (default: ~/.kube/config)")
	cmd.PersistentFlags().StringVar(&cliCtx.Config.ConfigMapName, "configmap", defaultConfigName, "ConfigMap name containing tiering configuration")
	cmd.PersistentFlags().StringVar(&cliCtx.Config.SecretName, "secret", defaultConfigName, "Secret name overriding the ConfigMap configuration")
	cmd.PersistentFlags().BoolVar(&cliCtx.Config.Debug, "debug", false, "Enable debug output")
	cmd.PersistentFlags().BoolVarP(&cliCtx.Config.Quiet, "quiet", "q", false, "Suppress operational messages (only show errors and data output)")
	cmd.PersistentFlags().StringVarP(&cliCtx.Config.OutputFormat, "output", "o", "table", "Output format (table, json)")
}

func init() {
	cliCtx = config.NewContext()

	addClusterFlags(rootCmd)
	for _, cmd := range tiers.Commands(cliCtx) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(version.Cmd())
}

var rootCmd = &cobra.Command{
	Use:   "es-tier",
	Short: "Move aging log indices between Elasticsearch storage tiers",
	Long: `A maintenance tool that moves older logstash indices to slower storage tiers.

Indices are ordered by name. The newest ones stay where they are, older ones
are tagged for the mid tier and optimized, the oldest ones are tagged for the
archive tier. Shard re-allocation is paused while indices are re-tagged.`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
