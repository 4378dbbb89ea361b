/*
Copyright © 2026 Deutsche Telekom AG
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/yaml"

	"github.com/telekom/api-catalog/pkg/catalogcache"
	"github.com/telekom/api-catalog/pkg/discovery"
)

const (
	outputYAML = "yaml"
	outputJSON = "json"
)

var (
	outputFormat string
	saveToCache  bool
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a single discovery cycle and print the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutputFormat(outputFormat); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		restConfig, err := ctrl.GetConfig()
		if err != nil {
			return fmt.Errorf("unable to load kubeconfig: %w", err)
		}
		transport, err := discovery.NewRESTTransportForConfig(restConfig)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if cfg.Discovery.CycleTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Discovery.CycleTimeout)
			defer cancel()
		}

		catalog, err := discovery.NewFetcher(transport, cfg.FetcherOptions()).Discover(ctx)
		if err != nil {
			return err
		}

		if saveToCache {
			cache, err := catalogcache.New(cfg.Cache)
			if err != nil {
				return fmt.Errorf("unable to open catalog cache: %w", err)
			}
			cache.Save(ctx, catalog)
			if err := cache.Close(); err != nil {
				return err
			}
		}

		return printCatalog(cmd.OutOrStdout(), catalog, outputFormat)
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringVarP(&outputFormat, "output", "o", outputYAML, "Output format: yaml or json.")
	discoverCmd.Flags().BoolVar(&saveToCache, "save", false, "Store the discovered catalog in the configured cache.")
}

func validateOutputFormat(format string) error {
	switch format {
	case outputYAML, outputJSON:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q, must be %q or %q", format, outputYAML, outputJSON)
	}
}

func printCatalog(w io.Writer, catalog *discovery.Catalog, format string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case outputJSON:
		data, err = json.MarshalIndent(catalog, "", "  ")
		data = append(data, '\n')
	default:
		data, err = yaml.Marshal(catalog)
	}
	if err != nil {
		return fmt.Errorf("unable to render catalog: %w", err)
	}
	_, err = w.Write(data)
	return err
}
