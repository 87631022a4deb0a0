package main

import (
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/radiumlabs/radium/pkg/watch"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the store and log space changes from any process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			w, err := watch.New(root)
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt)
			logger.Info("watching store", "root", root)

			for {
				select {
				case c, ok := <-w.Changes:
					if !ok {
						return nil
					}
					switch c.Kind {
					case watch.SpaceAdded:
						logger.Info("space added", "kind", c.KindDir, "dataId", c.DataID)
					case watch.SpaceUpdated:
						logger.Info("space updated", "kind", c.KindDir, "dataId", c.DataID)
					case watch.SpaceRemoved:
						logger.Info("space removed", "kind", c.KindDir, "dataId", c.DataID)
					}
				case <-stop:
					w.Stop()
					return nil
				}
			}
		},
	}
}
