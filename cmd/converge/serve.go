package main

import (
	"github.com/spf13/cobra"

	"github.com/justestif/converge/internal/web"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.lastfm == nil {
				a.logger.Warn("no Last.fm API key, only stored songs can be visualized")
			}

			server, err := web.NewServer(web.ServerConfig{
				Addr:       a.cfg.Server.Addr,
				Visualizer: a.visualizer(),
				Graph:      a.graph,
				Logger:     a.logger,
			})
			if err != nil {
				return err
			}
			return server.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&opts.overrides.Addr, "addr", "", "listen address (default from config)")
	return cmd
}
