package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/radiumlabs/radium/pkg/archive"
)

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <kind> [input-json]",
		Short: "Export a space as a zstd-compressed tar archive",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			origin, err := parseOrigin(args[0], optArg(args, 1))
			if err != nil {
				return err
			}
			sp, err := st.Find(cmd.Context(), origin)
			if err != nil {
				return err
			}
			if sp == nil {
				return fmt.Errorf("no space for kind %q with that input", args[0])
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := archive.Export(filepath.Dir(sp.Path), f); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "exported %s to %s\n", sp.DataID[:12], out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "space.tar.zst", "output archive path")
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive>",
		Short: "Import a space archive into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			dataDir, err := archive.Import(root, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "imported into %s\n", dataDir)
			return nil
		},
	}
}
