package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/justestif/converge/internal/config"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	verbose    bool
	overrides  config.Overrides
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logger: slog.Default()}

	cmd := &cobra.Command{
		Use:   "converge",
		Short: "Map the neighbourhood of a song",
		Long: `converge crawls Last.fm's similar-track graph into a local database,
clusters the neighbourhood of a song and lays the clusters out around it.

Configuration is read from ~/.converge/config.yaml, then environment
variables (LASTFM_API_KEY, CONVERGE_DB_PATH, ...), then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.verbose)
			slog.SetDefault(opts.logger)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "config file (default ~/.converge/config.yaml)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	f.StringVar(&opts.overrides.DBDriver, "driver", "", "graph database driver: sqlite or postgres")
	f.StringVar(&opts.overrides.DBPath, "db", "", "SQLite database file")
	f.StringVar(&opts.overrides.DatabaseURL, "database-url", "", "Postgres connection string (selects the postgres driver)")

	cmd.AddCommand(
		newCrawlCmd(opts),
		newSimilarsCmd(opts),
		newTwoHopCmd(opts),
		newStatsCmd(opts),
		newMigrateCmd(opts),
		newVisualizeCmd(opts),
		newBatchCmd(opts),
		newSeedPopularCmd(opts),
		newPlaylistCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
