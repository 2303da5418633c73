// Package cmd provides the sentgraph CLI, currently cache inspection and
// clearing over the preprocessing store.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sentgraph",
	Short: "sentgraph - graph-attention sentence classification toolkit",
	Long:  `sentgraph converts sentences into typed graphs and classifies them with a graph-masked attention encoder. This CLI manages its preprocessing cache.`,
}

func Execute() error {
	return rootCmd.Execute()
}
