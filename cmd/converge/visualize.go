package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/justestif/converge/internal/auth"
	"github.com/justestif/converge/internal/clustering"
	"github.com/justestif/converge/internal/export"
	"github.com/justestif/converge/internal/graph"
	playlists "github.com/justestif/converge/internal/spotify"
	"github.com/justestif/converge/internal/visualize"
)

// generate lays out (title, artist), crawling first when crawl is set.
func generate(ctx context.Context, v *visualize.Service, title, artist string, crawl bool) (*visualize.Result, error) {
	if crawl {
		return v.GenerateFromAnywhere(ctx, title, artist)
	}
	r, err := v.Generate(ctx, title, artist)
	if notFound(err) {
		return nil, errNoSong(title, artist)
	}
	return r, err
}

func newVisualizeCmd(opts *rootOptions) *cobra.Command {
	var (
		crawl  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "visualize TITLE ARTIST",
		Short: "Cluster a song's neighbourhood and lay it out",
		Long: `Cluster a song's stored neighbourhood and lay the clusters out around it.

The summary goes to stdout, or the export records with --json. With
--export-dir (or export.dirs in the config) the records are also written to
"<title> <artist>.json" in each directory.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), crawl)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := generate(cmd.Context(), a.visualizer(), args[0], args[1], crawl)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return export.Write(out, r.Records)
			}
			fmt.Fprint(out, clustering.FormatSummary(r.Root, r.Clusters))
			printFiles(out, r.Files)
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&crawl, "crawl", false, "crawl Last.fm around the song first")
	f.BoolVar(&asJSON, "json", false, "print the export records as JSON")
	f.IntVarP(&opts.overrides.Clusters, "clusters", "k", 0, "number of clusters (default from config)")
	f.StringSliceVar(&opts.overrides.ExportDirs, "export-dir", nil, "directory to write the export file to (repeatable)")
	return cmd
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Generate many visualizations at once",
	}
	cmd.PersistentFlags().IntVarP(&opts.overrides.Clusters, "clusters", "k", 0, "number of clusters (default from config)")
	cmd.PersistentFlags().StringSliceVar(&opts.overrides.ExportDirs, "export-dir", nil, "directory to write export files to (repeatable)")

	cmd.AddCommand(newBatchArtistCmd(opts), newBatchStoredCmd(opts))
	return cmd
}

func newBatchArtistCmd(opts *rootOptions) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "artist ARTIST",
		Short: "Visualize an artist's most popular songs",
		Long:  "Walk the artist's top tracks, most popular first, crawling and visualizing each until N succeed. Songs with too few similars are skipped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.visualizer().BatchArtist(cmd.Context(), args[0], n)
			printResults(cmd.OutOrStdout(), results)
			return err
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 1, "visualizations to generate (0 for every top track)")
	return cmd
}

func newBatchStoredCmd(opts *rootOptions) *cobra.Command {
	var n, minSimilars int

	cmd := &cobra.Command{
		Use:   "stored",
		Short: "Visualize stored songs that already have enough similars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.visualizer().BatchStored(cmd.Context(), minSimilars, n)
			printResults(cmd.OutOrStdout(), results)
			return err
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 10, "visualizations to generate (0 for all)")
	cmd.Flags().IntVar(&minSimilars, "min-similars", 10, "skip songs with fewer stored similars")
	return cmd
}

func newSeedPopularCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-popular",
		Short: "Crawl around every track on the Last.fm chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			lookups, err := a.visualizer().SeedPopular(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Made %d lookups\n", lookups)
			return err
		},
	}
}

func newPlaylistCmd(opts *rootOptions) *cobra.Command {
	var (
		index   int
		crawl   bool
		relogin bool
	)

	cmd := &cobra.Command{
		Use:   "playlist TITLE ARTIST",
		Short: "Save clusters around a song as Spotify playlists",
		Long: `Lay out the song's neighbourhood and save a cluster as a private Spotify
playlist. Requires SPOTIFY_ID and SPOTIFY_SECRET; the first run opens a login
URL and caches the token (spotify.token_path, default ~/.converge).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), crawl)
			if err != nil {
				return err
			}
			defer a.Close()

			authenticator, err := auth.New(auth.Config{
				ClientID:     a.cfg.Spotify.ClientID,
				ClientSecret: a.cfg.Spotify.ClientSecret,
				RedirectURL:  a.cfg.Spotify.RedirectURL,
				TokenPath:    a.cfg.Spotify.TokenPath,
				Out:          cmd.ErrOrStderr(),
				Logger:       a.logger,
			})
			if err != nil {
				return err
			}
			if relogin {
				if err := authenticator.Logout(); err != nil {
					return err
				}
			}

			r, err := generate(cmd.Context(), a.visualizer(), args[0], args[1], crawl)
			if err != nil {
				return err
			}
			chosen, err := pickClusters(r.Clusters, index)
			if err != nil {
				return err
			}

			client, err := authenticator.Authenticate(cmd.Context())
			if err != nil {
				return fmt.Errorf("authenticating with Spotify: %w", err)
			}
			sp := playlists.New(client)

			out := cmd.OutOrStdout()
			for _, cl := range chosen {
				p, err := sp.PlaylistFromCluster(cmd.Context(), r.Root, cl)
				if err != nil {
					return err
				}
				printPlaylist(out, p)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "cluster", 0, "1-based cluster to save (0 for every cluster)")
	cmd.Flags().BoolVar(&crawl, "crawl", false, "crawl Last.fm around the song first")
	cmd.Flags().BoolVar(&relogin, "relogin", false, "forget the cached Spotify token and log in again")
	cmd.Flags().IntVarP(&opts.overrides.Clusters, "clusters", "k", 0, "number of clusters (default from config)")
	return cmd
}

// pickClusters returns the 1-based cluster index, or all clusters for 0.
func pickClusters(cs []clustering.Cluster, index int) ([]clustering.Cluster, error) {
	if index == 0 {
		return cs, nil
	}
	if index < 0 || index > len(cs) {
		return nil, fmt.Errorf("cluster %d out of range, have %d", index, len(cs))
	}
	return cs[index-1 : index], nil
}

func printFiles(w io.Writer, files []string) {
	for _, f := range files {
		fmt.Fprintf(w, "Wrote %s\n", f)
	}
}

func printResults(w io.Writer, results []*visualize.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "%s: %d clusters (%s)\n", r.Root, len(r.Clusters), r.ID)
		printFiles(w, r.Files)
	}
	fmt.Fprintf(w, "Generated %d visualizations\n", len(results))
}

func printPlaylist(w io.Writer, p *playlists.PlaylistResult) {
	if p.ID == "" {
		fmt.Fprintf(w, "%s: no songs found on Spotify, skipped\n", p.Name)
		return
	}
	fmt.Fprintf(w, "%s: %d tracks (https://open.spotify.com/playlist/%s)\n", p.Name, len(p.Tracks), p.ID)
	for _, s := range p.Missing {
		fmt.Fprintf(w, "  not found: %s\n", songLine(s))
	}
}

func songLine(s graph.Song) string {
	return fmt.Sprintf("%q - %s", s.Title, s.Artist)
}
