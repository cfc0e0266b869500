package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aipulse",
		Short:         "Track trending AI topics, schedule reviews and build a knowledge graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(collectCmd())
	root.AddCommand(trendsCmd())
	root.AddCommand(reviewCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func collectCmd() *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run article collectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), sources)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "specific sources to collect (e.g., hn,arxiv,rss)")
	return cmd
}

func trendsCmd() *cobra.Command {
	var opts trendsOptions

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show trending topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrends(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.hours, "hours", 0, "window size in hours (default: from config)")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "max topics to show")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "recompute instead of serving the cached result")
	return cmd
}

func reviewCmd() *cobra.Command {
	var (
		user, item string
		quality    int
	)

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Record a spaced-repetition review (quality 0-5)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd.Context(), user, item, quality)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&item, "item", "", "learning item id")
	cmd.Flags().IntVar(&quality, "quality", -1, "recall quality 0-5")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("quality")
	return cmd
}

func graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build and browse the knowledge graph",
	}

	var (
		article string
		pending bool
	)
	ingest := &cobra.Command{
		Use:   "ingest",
		Short: "Extract entities and relations from articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphIngest(cmd.Context(), article, pending)
		},
	}
	ingest.Flags().StringVar(&article, "article", "", "article id to ingest")
	ingest.Flags().BoolVar(&pending, "pending", false, "ingest one batch of not yet processed articles")
	ingest.MarkFlagsMutuallyExclusive("article", "pending")
	ingest.MarkFlagsOneRequired("article", "pending")

	var (
		entity string
		depth  int
	)
	neighbors := &cobra.Command{
		Use:   "neighbors",
		Short: "List entities connected to an entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphNeighbors(cmd.Context(), entity, depth)
		},
	}
	neighbors.Flags().StringVar(&entity, "entity", "", "entity id or exact name")
	neighbors.Flags().IntVar(&depth, "depth", 1, "hops to traverse (1-3)")
	_ = neighbors.MarkFlagRequired("entity")

	cmd.AddCommand(ingest, neighbors)
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
