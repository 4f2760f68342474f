// Package config provides configuration management for the tier migrator.
// Built-in defaults can be overridden from a Kubernetes ConfigMap, which in turn
// can be overridden by a Secret. The merged result is validated before use.
package config

import (
	"context"
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	// AllocationModeLegacy toggles cluster.routing.allocation.disable_allocation
	AllocationModeLegacy = "disable_allocation"
	// AllocationModeEnable toggles cluster.routing.allocation.enable between none and all
	AllocationModeEnable = "enable"

	OptimizeLegacy     = "optimize"
	OptimizeForcemerge = "forcemerge"
	OptimizeNone       = "none"

	// configKey is the data key holding the YAML document in ConfigMaps and Secrets
	configKey = "config"
)

// Config represents the merged configuration
type Config struct {
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch" validate:"required"`
	Tiering       TieringConfig       `yaml:"tiering" validate:"required"`
}

// ElasticsearchConfig holds cluster connection settings
type ElasticsearchConfig struct {
	URL            string        `yaml:"url" validate:"omitempty,url"`
	RequestTimeout time.Duration `yaml:"requestTimeout" validate:"required,gt=0"`
	AllocationMode string        `yaml:"allocationMode" validate:"required,oneof=disable_allocation enable"`
	// LegacyCluster accepts responses without the X-Elastic-Product header (clusters before 7.14)
	LegacyCluster bool          `yaml:"legacyCluster"`
	Service       ServiceConfig `yaml:"service" validate:"required"`
}

// ServiceConfig holds service connection details used for port-forwarding
type ServiceConfig struct {
	Name                 string `yaml:"name" validate:"required"`
	Port                 int    `yaml:"port" validate:"required,min=1,max=65535"`
	LocalPortForwardPort int    `yaml:"localPortForwardPort" validate:"required,min=1,max=65535"`
}

// TieringConfig holds the index selection and tier assignment policy.
// Ages are counted in indices from the newest one, not in days.
type TieringConfig struct {
	IndexPrefix      string `yaml:"indexPrefix" validate:"required"`
	RoutingAttribute string `yaml:"routingAttribute" validate:"required"`
	Replicas         int    `yaml:"replicas" validate:"min=0"`
	MidTierAge       int    `yaml:"midTierAge" validate:"required,min=1"`
	ArchiveTierAge   int    `yaml:"archiveTierAge" validate:"required,gtfield=MidTierAge"`
	MidTierTag       string `yaml:"midTierTag" validate:"required"`
	ArchiveTierTag   string `yaml:"archiveTierTag" validate:"required,nefield=MidTierTag"`
	Optimize         string `yaml:"optimize" validate:"required,oneof=optimize forcemerge none"`
	MaxNumSegments   int    `yaml:"maxNumSegments" validate:"min=0"`
}

// Default returns the built-in configuration. It matches the policy the
// migrator has always run with: logstash indices, 4/10 thresholds, one replica.
func Default() *Config {
	return &Config{
		Elasticsearch: ElasticsearchConfig{
			URL:            "http://localhost:9200",
			RequestTimeout: 30 * time.Second,
			AllocationMode: AllocationModeLegacy,
			Service: ServiceConfig{
				Name:                 "elasticsearch-master",
				Port:                 9200,
				LocalPortForwardPort: 9200,
			},
		},
		Tiering: TieringConfig{
			IndexPrefix:      "logstash-",
			RoutingAttribute: "tag",
			Replicas:         1,
			MidTierAge:       4,
			ArchiveTierAge:   10,
			MidTierTag:       "mid",
			ArchiveTierTag:   "archive",
			Optimize:         OptimizeLegacy,
		},
	}
}

// IsLegacyCluster reports whether the cluster predates the product header.
// The legacy allocation flag and _optimize only exist on such clusters, so
// choosing either implies it.
func (c *Config) IsLegacyCluster() bool {
	return c.Elasticsearch.LegacyCluster ||
		c.Elasticsearch.AllocationMode == AllocationModeLegacy ||
		c.Tiering.Optimize == OptimizeLegacy
}

// Validate checks the configuration against its validation tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// LoadConfig loads the configuration, starting from Default().
// The ConfigMap overrides the defaults and the Secret overrides the ConfigMap.
// Only non-zero values override, so a zero replica count cannot be set from YAML.
// Either name may be empty to skip that source; a missing Secret is not an error.
func LoadConfig(ctx context.Context, clientset kubernetes.Interface, namespace, configMapName, secretName string) (*Config, error) {
	config := Default()

	if configMapName != "" {
		cm, err := clientset.CoreV1().ConfigMaps(namespace).Get(ctx, configMapName, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to get ConfigMap '%s': %w", configMapName, err)
		}

		configData, ok := cm.Data[configKey]
		if !ok {
			return nil, fmt.Errorf("ConfigMap '%s' does not contain '%s' key", configMapName, configKey)
		}
		if err := mergeYAML(config, []byte(configData)); err != nil {
			return nil, fmt.Errorf("failed to apply ConfigMap config: %w", err)
		}
	}

	if secretName != "" {
		secret, err := clientset.CoreV1().Secrets(namespace).Get(ctx, secretName, metav1.GetOptions{})
		switch {
		case apierrors.IsNotFound(err):
			// optional, only used for overrides
		case err != nil:
			return nil, fmt.Errorf("failed to get Secret '%s': %w", secretName, err)
		default:
			if configData, ok := secret.Data[configKey]; ok {
				if err := mergeYAML(config, configData); err != nil {
					return nil, fmt.Errorf("failed to apply Secret config: %w", err)
				}
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// mergeYAML parses data and merges its non-zero values into dst
func mergeYAML(dst *Config, data []byte) error {
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := mergo.Merge(dst, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// Context carries the command line settings shared by all commands
type Context struct {
	Config *CLIConfig
}

type CLIConfig struct {
	Namespace     string
	Kubeconfig    string
	Debug         bool
	Quiet         bool
	ConfigMapName string
	SecretName    string
	URL           string
	OutputFormat  string // table, json
}

// InCluster reports whether the cluster must be reached through Kubernetes
func (c *CLIConfig) InCluster() bool {
	return c.Namespace != ""
}

func NewContext() *Context {
	return &Context{
		Config: &CLIConfig{},
	}
}
