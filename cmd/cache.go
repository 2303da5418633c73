package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/sentgraph/core/cache"
	"github.com/adalundhe/sentgraph/core/storage"
)

var cacheDirFlag string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the preprocessing cache",
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached stage identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		namespaces, err := store.Namespaces()
		if err != nil {
			return err
		}
		for _, ns := range namespaces {
			fmt.Fprintln(cmd.OutOrStdout(), ns)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <identity>",
	Short: "Delete one cached identity and all its attribute blobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
		return nil
	},
}

func openStore() (*cache.FSStore, error) {
	dir := cacheDirFlag
	if dir == "" {
		resolved, err := storage.ResolveCacheDir()
		if err != nil {
			return nil, err
		}
		dir = resolved
	}
	return cache.NewFSStore(dir)
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheDirFlag, "dir", "", "cache directory (defaults to the platform cache dir)")
	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
