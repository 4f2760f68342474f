package tiers

import (
	"context"
	"fmt"

	"github.com/stackvista/es-tier-migrator/cmd/portforward"
	"github.com/stackvista/es-tier-migrator/internal/config"
	"github.com/stackvista/es-tier-migrator/internal/elasticsearch"
	"github.com/stackvista/es-tier-migrator/internal/k8s"
	"github.com/stackvista/es-tier-migrator/internal/logger"
	"github.com/stackvista/es-tier-migrator/internal/tiering"
)

// session is everything a command needs to talk to the cluster
type session struct {
	cfg   *config.Config
	es    *elasticsearch.Client
	log   *logger.Logger
	close func()
}

// connect resolves the configuration and builds the Elasticsearch client.
// Without a namespace the built-in defaults and --url are used; with one the
// configuration comes from the ConfigMap/Secret and the cluster is reached
// through a port-forward that session.close tears down.
func connect(ctx context.Context, cliCtx *config.Context) (*session, error) {
	log := logger.New(cliCtx.Config.Quiet, cliCtx.Config.Debug)

	if !cliCtx.Config.InCluster() {
		cfg := config.Default()
		if cliCtx.Config.URL != "" {
			cfg.Elasticsearch.URL = cliCtx.Config.URL
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		esClient, err := newESClient(cfg.Elasticsearch.URL, cfg)
		if err != nil {
			return nil, err
		}
		log.Debugf("Using Elasticsearch at %s", cfg.Elasticsearch.URL)
		return &session{cfg: cfg, es: esClient, log: log, close: func() {}}, nil
	}

	k8sClient, err := k8s.NewClient(cliCtx.Config.Kubeconfig, cliCtx.Config.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	cfg, err := config.LoadConfig(ctx, k8sClient.Clientset(), cliCtx.Config.Namespace, cliCtx.Config.ConfigMapName, cliCtx.Config.SecretName)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	svc := cfg.Elasticsearch.Service
	pf, err := portforward.SetupPortForward(ctx, k8sClient, cliCtx.Config.Namespace, svc.Name, svc.LocalPortForwardPort, svc.Port, log)
	if err != nil {
		return nil, err
	}

	esClient, err := newESClient(fmt.Sprintf("http://localhost:%d", pf.LocalPort), cfg)
	if err != nil {
		pf.Close()
		return nil, err
	}
	return &session{cfg: cfg, es: esClient, log: log, close: pf.Close}, nil
}

func newESClient(url string, cfg *config.Config) (*elasticsearch.Client, error) {
	optimize := elasticsearch.OptimizeMode(cfg.Tiering.Optimize)
	if cfg.Tiering.Optimize == config.OptimizeNone {
		// never called, the migrator skips optimizing
		optimize = elasticsearch.OptimizeLegacy
	}

	client, err := elasticsearch.NewClient(url, elasticsearch.Options{
		RequestTimeout: cfg.Elasticsearch.RequestTimeout,
		AllocationMode: elasticsearch.AllocationMode(cfg.Elasticsearch.AllocationMode),
		OptimizeMode:   optimize,
		MaxNumSegments: cfg.Tiering.MaxNumSegments,
		LegacyCluster:  cfg.IsLegacyCluster(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	return client, nil
}

// migratorConfig maps the loaded configuration onto the migrator policy
func migratorConfig(cfg *config.Config) tiering.Config {
	t := cfg.Tiering
	return tiering.Config{
		IndexPrefix:      t.IndexPrefix,
		RoutingAttribute: t.RoutingAttribute,
		Replicas:         t.Replicas,
		MidTierAge:       t.MidTierAge,
		ArchiveTierAge:   t.ArchiveTierAge,
		MidTierTag:       t.MidTierTag,
		ArchiveTierTag:   t.ArchiveTierTag,
		Optimize:         t.Optimize != config.OptimizeNone,
		ReleaseTimeout:   cfg.Elasticsearch.RequestTimeout,
	}
}
