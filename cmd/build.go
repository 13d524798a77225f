package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudehenchoz/gensi/core/fetch"
	"github.com/claudehenchoz/gensi/core/pipeline"
	"github.com/claudehenchoz/gensi/core/recipe"
	"github.com/claudehenchoz/gensi/internal/logger"
)

var (
	buildOutputDir     string
	buildParallel      int
	buildNoCache       bool
	buildScriptTimeout time.Duration
)

var buildCmd = &cobra.Command{
	Use:   "build <recipe.gensi>",
	Short: "Build an EPUB from a recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.New(logLevel())

		rec, err := recipe.Load(args[0])
		if err != nil {
			return err
		}

		var cache *fetch.Cache
		if !buildNoCache {
			cache, err = openDefaultCache()
			if err != nil {
				log.Warn("continuing without cache", "error", err)
				cache = nil
			} else {
				defer cache.Close()
			}
		}

		fetcher := fetch.New(fetch.Options{
			Cache:       cache,
			MaxParallel: int64(buildParallel),
			Log:         log,
		})
		pipe := pipeline.New(pipeline.Options{
			Fetcher:       fetcher,
			OutputDir:     buildOutputDir,
			Parallelism:   buildParallel,
			ScriptTimeout: buildScriptTimeout,
			Log:           log,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		fmt.Printf("Building %q (%s)\n", rec.Title, fetcher.Describe())

		job := pipe.Submit(ctx, rec)
		for ev := range job.Events() {
			printEvent(ev)
		}

		result, err := job.Wait()
		if err != nil {
			return err
		}

		fmt.Printf("\nWrote %s (%d articles", result.OutputPath, result.Articles)
		if len(result.Skipped) > 0 {
			fmt.Printf(", %d skipped", len(result.Skipped))
		}
		fmt.Println(")")
		return nil
	},
}

func printEvent(ev pipeline.Event) {
	switch {
	case ev.Phase == pipeline.PhaseIndex && ev.Status == pipeline.StatusFetching:
		fmt.Printf("==> %s\n", ev.Item)
	case ev.Phase == pipeline.PhaseArticle && ev.Status == pipeline.StatusDone:
		fmt.Printf("  ✓ %s\n", ev.Item)
	case ev.Status == pipeline.StatusFailed:
		fmt.Printf("  ✗ %s (%v)\n", ev.Item, ev.Err)
	}
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutputDir, "output-dir", "o", ".", "directory for the EPUB file")
	buildCmd.Flags().IntVarP(&buildParallel, "parallel", "p", 5, "maximum simultaneous fetches")
	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "bypass the response cache")
	buildCmd.Flags().DurationVar(&buildScriptTimeout, "script-timeout", 0, "recipe script timeout (default 10s)")
	rootCmd.AddCommand(buildCmd)
}
