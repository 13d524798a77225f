// Package cmd implements the CLI commands for gensi using Cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gensi",
	Short: "gensi — build ebooks from websites using recipes",
	Long: `gensi turns websites into EPUB files driven by declarative recipes.

A recipe names one or more index pages, feeds, or APIs, describes how to
find articles on them, and how to extract each article's content. gensi
fetches everything, cleans it up, and packages the result as an EPUB.

Usage:
  gensi build <recipe.gensi> [flags]`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logLevel() string {
	if verbose {
		return "debug"
	}
	return "info"
}
