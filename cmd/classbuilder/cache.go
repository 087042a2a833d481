package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"classbuilder/internal/buildcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the build cache",
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every cached class",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest(cmd)
		if err != nil {
			return err
		}
		cache, err := openCache(m.resolve(m.Config.Build.CacheDir))
		if err != nil {
			return err
		}
		if err := cache.DropAll(); err != nil {
			return err
		}
		if !quiet(cmd) {
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", cache.Dir())
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheCleanCmd)
}

// openCache opens dir, or the per-user cache when dir is empty.
func openCache(dir string) (*buildcache.Cache, error) {
	if dir != "" {
		return buildcache.Open(dir)
	}
	return buildcache.OpenUser("classbuilder")
}
