package main

import (
	"github.com/spf13/cobra"

	"github.com/Geun-Oh/lxring/internal/entry"
	"github.com/Geun-Oh/lxring/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured stores over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Server.Listen = listen
			}
			v, err := entry.ParseVersion(a.cfg.Server.TailVersion)
			if err != nil {
				return err
			}
			reg, err := a.cfg.NewRegistry(a.log)
			if err != nil {
				return err
			}
			srv := server.New(reg, server.Options{
				DefaultCapacity: int(a.cfg.Server.DefaultCapacity),
				TailVersion:     v,
				RequestTimeout:  a.cfg.Server.WriteTimeout,
				Logger:          a.log,
			})
			return srv.ListenAndServe(cmd.Context(), a.cfg.Server.Listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (overrides the config)")
	return cmd
}
