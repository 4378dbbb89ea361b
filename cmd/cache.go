/*
Copyright © 2026 Deutsche Telekom AG
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/api-catalog/pkg/catalogcache"
)

var errNoCachedCatalog = errors.New("no cached catalog")

// cacheCmd groups the catalog cache maintenance commands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or remove the persisted catalog",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutputFormat(outputFormat); err != nil {
			return err
		}
		store, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		catalog, ok := store.Load(cmd.Context())
		if !ok {
			return errNoCachedCatalog
		}
		return printCatalog(cmd.OutOrStdout(), catalog, outputFormat)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the persisted catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		if err := store.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("unable to clear catalog cache: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "catalog cache cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheShowCmd, cacheClearCmd)

	cacheShowCmd.Flags().StringVarP(&outputFormat, "output", "o", outputYAML, "Output format: yaml or json.")
}

func openCache(cmd *cobra.Command) (catalogcache.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := catalogcache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("unable to open catalog cache: %w", err)
	}
	return store, nil
}
