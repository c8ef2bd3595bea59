package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/justestif/converge/internal/graph"
	"github.com/justestif/converge/internal/store"
)

func newCrawlCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "crawl TITLE ARTIST",
		Short: "Fetch a song's similars and the similars of its closest neighbours",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = a.cfg.Crawl.Limit
			}
			lookups, err := a.graph.Crawl(cmd.Context(), args[0], args[1], limit)
			if err != nil {
				return err
			}
			stats, err := a.graph.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Made %d lookups\n", lookups)
			printStats(out, stats)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "neighbours to crawl (default from config)")
	return cmd
}

func newSimilarsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "similars TITLE [ARTIST]",
		Short: "List the stored similars of a song",
		Long:  "List the stored similars of a song, most similar first. Without ARTIST the lowest-id song with TITLE is used.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, artist := args[0], ""
			if len(args) == 2 {
				artist = args[1]
			}

			a, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			song, err := a.graph.Resolve(cmd.Context(), title, artist)
			if notFound(err) {
				return errNoSong(title, artist)
			}
			if err != nil {
				return err
			}
			similars, err := a.graph.SortedSimilars(cmd.Context(), song.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, similars)
			}
			fmt.Fprintf(out, "%d similars of %s\n", len(similars), song)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, s := range similars {
				fmt.Fprintf(tw, "%.4f\t%s\t%s\n", s.Similarity, s.Song.Title, s.Song.Artist)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newTwoHopCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "two-hop TITLE ARTIST",
		Short: "Infer similarity bounds to songs two hops away",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			song, err := a.graph.Resolve(cmd.Context(), args[0], args[1])
			if notFound(err) {
				return errNoSong(args[0], args[1])
			}
			if err != nil {
				return err
			}
			bounds, err := a.graph.TwoHopBounds(cmd.Context(), song.ID)
			if err != nil {
				return err
			}
			if limit > 0 && len(bounds) > limit {
				bounds = bounds[:limit]
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, bounds)
			}
			fmt.Fprintf(out, "%d two-hop neighbours of %s\n", len(bounds), song)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, b := range bounds {
				fmt.Fprintf(tw, "%.4f\t%s\t%s\n", b.Bound, b.Song.Title, b.Song.Artist)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum bounds to print (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the stored graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.graph.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the backend applies pending migrations.
			a, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if s, ok := a.backend.(*store.SQLiteStore); ok {
				v, err := s.SchemaVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s is at schema version %d\n", s.Path(), v)
				return nil
			}
			fmt.Fprintf(out, "%s schema is up to date\n", a.cfg.Database.Driver)
			return nil
		},
	}
}

func printStats(w io.Writer, s *graph.Stats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "songs\t%d\n", s.Songs)
	fmt.Fprintf(tw, "edges\t%d\n", s.Edges)
	fmt.Fprintf(tw, "crawled\t%d\n", s.Crawled)
	fmt.Fprintf(tw, "no similars\t%d\n", s.Empty)
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
