// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/telekom/api-catalog/pkg/catalogcache"
	"github.com/telekom/api-catalog/pkg/discovery"
	"github.com/telekom/api-catalog/pkg/tracing"
)

// Config is the complete api-catalog configuration.
type Config struct {
	Discovery      DiscoveryConfig      `koanf:"discovery"`
	Classification ClassificationConfig `koanf:"classification"`
	Cache          catalogcache.Options `koanf:"cache"`
	Tracing        tracing.Config       `koanf:"tracing"`
	Manager        ManagerConfig        `koanf:"manager"`
}

// DiscoveryConfig tunes the discovery scheduler and fetcher.
type DiscoveryConfig struct {
	InitialDelay    time.Duration `koanf:"initial_delay"`
	PollInterval    time.Duration `koanf:"poll_interval"`
	BatchSize       int           `koanf:"batch_size"`
	CycleTimeout    time.Duration `koanf:"cycle_timeout"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	// WatchCRDs triggers a refresh whenever a CustomResourceDefinition changes.
	WatchCRDs bool `koanf:"watch_crds"`
}

// ClassificationConfig holds the rules used to classify discovered resources.
type ClassificationConfig struct {
	AdminResources     []string `koanf:"admin_resources"`
	ConfigAPIGroup     string   `koanf:"config_api_group"`
	OperatorStatusKind string   `koanf:"operator_status_kind"`
	OperatorAPIGroup   string   `koanf:"operator_api_group"`
}

// ManagerConfig configures the controller-runtime manager of the run command.
type ManagerConfig struct {
	MetricsBindAddress     string `koanf:"metrics_bind_address"`
	HealthProbeBindAddress string `koanf:"health_probe_bind_address"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Discovery: DiscoveryConfig{
			InitialDelay:    discovery.DefaultInitialDelay,
			PollInterval:    discovery.DefaultPollInterval,
			BatchSize:       discovery.DefaultBatchSize,
			RefreshInterval: discovery.DefaultRefreshInterval,
			WatchCRDs:       true,
		},
		Classification: ClassificationConfig{
			AdminResources:     discovery.DefaultAdminResources(),
			ConfigAPIGroup:     discovery.DefaultConfigAPIGroup,
			OperatorStatusKind: discovery.DefaultOperatorStatusKind,
			OperatorAPIGroup:   discovery.DefaultOperatorAPIGroup,
		},
		Cache: catalogcache.Options{
			Backend: catalogcache.BackendFile,
			Path:    "/var/cache/api-catalog/catalog.json",
		},
		Tracing: tracing.Config{
			SamplingRate: 1.0,
		},
		Manager: ManagerConfig{
			MetricsBindAddress:     ":8080",
			HealthProbeBindAddress: ":8081",
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs.add(mustBeGreaterThan("discovery.initial_delay", c.Discovery.InitialDelay, 0))
	errs.add(mustBeGreaterThan("discovery.poll_interval", c.Discovery.PollInterval, 0))
	errs.add(mustBeGreaterThan("discovery.batch_size", c.Discovery.BatchSize, 0))
	errs.add(mustBeNonNegative("discovery.cycle_timeout", c.Discovery.CycleTimeout))
	errs.add(mustBeGreaterThan("discovery.refresh_interval", c.Discovery.RefreshInterval, 0))

	for i, name := range c.Classification.AdminResources {
		errs.add(mustNotBeEmpty(fmt.Sprintf("classification.admin_resources[%d]", i), name))
	}

	errs.add(mustBeOneOf("cache.backend", c.Cache.Backend, []string{
		catalogcache.BackendFile, catalogcache.BackendPebble, catalogcache.BackendMemory, catalogcache.BackendNone,
	}))
	if c.Cache.Backend == catalogcache.BackendFile || c.Cache.Backend == catalogcache.BackendPebble {
		errs.add(mustNotBeEmpty("cache.path", c.Cache.Path))
	}

	if err := c.Tracing.Validate(); err != nil {
		errs.add(invalid("tracing", err.Error()))
	}

	return errs.OrNil()
}

// Classifier returns the classification rules of this configuration.
func (c *Config) Classifier() discovery.Classifier {
	return discovery.Classifier{
		AdminResources:     sets.New(c.Classification.AdminResources...),
		ConfigAPIGroup:     c.Classification.ConfigAPIGroup,
		OperatorStatusKind: c.Classification.OperatorStatusKind,
		OperatorAPIGroup:   c.Classification.OperatorAPIGroup,
	}
}

// FetcherOptions returns the fetcher settings of this configuration.
func (c *Config) FetcherOptions() discovery.FetcherOptions {
	classifier := c.Classifier()
	return discovery.FetcherOptions{
		BatchSize:  c.Discovery.BatchSize,
		Classifier: &classifier,
	}
}

// SchedulerOptions returns the scheduler settings of this configuration.
func (c *Config) SchedulerOptions() discovery.SchedulerOptions {
	return discovery.SchedulerOptions{
		InitialDelay:    c.Discovery.InitialDelay,
		PollInterval:    c.Discovery.PollInterval,
		CycleTimeout:    c.Discovery.CycleTimeout,
		RefreshInterval: c.Discovery.RefreshInterval,
	}
}

// FlagMappings maps the command line flags registered by BindFlags to configuration keys.
var FlagMappings = map[string]string{
	"initial-delay":             "discovery.initial_delay",
	"poll-interval":             "discovery.poll_interval",
	"batch-size":                "discovery.batch_size",
	"cycle-timeout":             "discovery.cycle_timeout",
	"watch-crds":                "discovery.watch_crds",
	"admin-resources":           "classification.admin_resources",
	"cache-backend":             "cache.backend",
	"cache-path":                "cache.path",
	"metrics-bind-address":      "manager.metrics_bind_address",
	"health-probe-bind-address": "manager.health_probe_bind_address",
	"tracing-enabled":           "tracing.enabled",
	"tracing-endpoint":          "tracing.endpoint",
}

// BindFlags registers the flags of FlagMappings. Their defaults are only shown in the help text;
// values take effect only when set explicitly.
func BindFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.Duration("initial-delay", d.Discovery.InitialDelay, "Delay before the first cache read and discovery cycle.")
	flags.Duration("poll-interval", d.Discovery.PollInterval, "Time between two discovery cycles.")
	flags.Int("batch-size", d.Discovery.BatchSize, "Number of API resource lists fetched concurrently.")
	flags.Duration("cycle-timeout", d.Discovery.CycleTimeout, "Upper bound of a single discovery cycle. 0 disables the bound.")
	flags.Bool("watch-crds", d.Discovery.WatchCRDs, "Refresh the catalog when CustomResourceDefinitions change.")
	flags.StringSlice("admin-resources", d.Classification.AdminResources, "Resource names classified as administrative.")
	flags.String("cache-backend", d.Cache.Backend, "Catalog cache backend: file, pebble, memory or none.")
	flags.String("cache-path", d.Cache.Path, "Catalog cache file (file backend) or directory (pebble backend).")
	flags.String("metrics-bind-address", d.Manager.MetricsBindAddress, "The address the metric endpoint binds to. Use 0 to disable.")
	flags.String("health-probe-bind-address", d.Manager.HealthProbeBindAddress, "The address the probe endpoint binds to.")
	flags.Bool("tracing-enabled", d.Tracing.Enabled, "Export traces to an OTLP collector.")
	flags.String("tracing-endpoint", d.Tracing.Endpoint, "OTLP gRPC collector endpoint.")
}

// Load builds the configuration from defaults, the optional file at configPath,
// the environment and the explicitly set flags, and validates it.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	loader := NewLoader(EnvPrefix)
	if err := loader.LoadWithDefaults(Defaults(), configPath); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := loader.LoadFlags(flags, FlagMappings); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := loader.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}
