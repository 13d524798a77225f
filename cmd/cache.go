package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claudehenchoz/gensi/core/fetch"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the response cache",
}

func openDefaultCache() (*fetch.Cache, error) {
	path, err := fetch.DefaultCachePath()
	if err != nil {
		return nil, err
	}
	return fetch.OpenCache(path, fetch.DefaultTTL)
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and entry count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openDefaultCache()
		if err != nil {
			return err
		}
		defer cache.Close()

		stats, err := cache.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("Path:    %s\n", stats.Path)
		fmt.Printf("Entries: %d\n", stats.Entries)
		fmt.Printf("Size:    %.1f MiB\n", float64(stats.SizeBytes)/(1024*1024))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached responses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openDefaultCache()
		if err != nil {
			return err
		}
		defer cache.Close()

		if err := cache.Clear(); err != nil {
			return err
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
