/*
Copyright © 2026 Deutsche Telekom AG
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/telekom/api-catalog/internal/system"
	"github.com/telekom/api-catalog/pkg/catalogcache"
	"github.com/telekom/api-catalog/pkg/discovery"
	"github.com/telekom/api-catalog/pkg/tracing"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the discovery scheduler until terminated",
	Long: `Run starts the discovery scheduler inside a controller-runtime manager. After the initial
delay the cached catalog is published, then the cluster is polled. The readiness probe succeeds
once a catalog has been published.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		setupLog.Info("discovery configuration",
			"initialDelay", cfg.Discovery.InitialDelay,
			"pollInterval", cfg.Discovery.PollInterval,
			"batchSize", cfg.Discovery.BatchSize,
			"cycleTimeout", cfg.Discovery.CycleTimeout,
			"watchCRDs", cfg.Discovery.WatchCRDs,
			"cacheBackend", cfg.Cache.Backend,
		)

		ctx := ctrl.SetupSignalHandler()

		provider, err := tracing.Setup(ctx, cfg.Tracing, system.Version)
		if err != nil {
			return fmt.Errorf("unable to set up tracing: %w", err)
		}
		defer func() {
			if err := provider.Shutdown(ctx); err != nil {
				setupLog.Error(err, "unable to flush traces")
			}
		}()

		restConfig, err := ctrl.GetConfig()
		if err != nil {
			return fmt.Errorf("unable to load kubeconfig: %w", err)
		}

		mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
			Scheme: scheme,
			Metrics: metricsserver.Options{
				BindAddress: cfg.Manager.MetricsBindAddress,
			},
			HealthProbeBindAddress: cfg.Manager.HealthProbeBindAddress,
		})
		if err != nil {
			return fmt.Errorf("unable to start manager: %w", err)
		}

		transport, err := discovery.NewRESTTransportForConfig(restConfig)
		if err != nil {
			return err
		}
		fetcher := discovery.NewFetcher(transport, cfg.FetcherOptions())

		cache, err := catalogcache.New(cfg.Cache)
		if err != nil {
			return fmt.Errorf("unable to open catalog cache: %w", err)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				setupLog.Error(err, "unable to close catalog cache")
			}
		}()

		store := discovery.NewCatalogStore()
		store.Subscribe(func(catalog *discovery.Catalog) {
			setupLog.V(1).Info("catalog published",
				"resources", len(catalog.AllResources),
				"models", len(catalog.Models),
				"failedEndpoints", len(catalog.FailedEndpoints),
			)
		})

		scheduler := discovery.NewScheduler(fetcher, cache, store, cfg.SchedulerOptions())
		if err := mgr.Add(scheduler); err != nil {
			return fmt.Errorf("unable to add discovery scheduler: %w", err)
		}

		if cfg.Discovery.WatchCRDs {
			watcher, err := discovery.NewCRDWatcher(restConfig, scheduler)
			if err != nil {
				return fmt.Errorf("unable to create CRD watcher: %w", err)
			}
			if err := mgr.Add(watcher); err != nil {
				return fmt.Errorf("unable to add CRD watcher: %w", err)
			}
		} else {
			setupLog.Info("CRD watch is disabled")
		}

		if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
			return fmt.Errorf("unable to set up health check: %w", err)
		}
		if err := mgr.AddReadyzCheck("catalog", store.ReadyCheck); err != nil {
			return fmt.Errorf("unable to set up ready check: %w", err)
		}

		setupLog.Info("starting manager")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("problem running manager: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
