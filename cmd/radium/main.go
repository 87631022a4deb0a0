package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "radium",
		Short: "Content-addressed filesystem-space cache",
	}

	root.PersistentFlags().StringVar(&flagRoot, "root", "", "store root directory (overrides radium.toml)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to radium.toml")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newHasCmd())
	root.AddCommand(newRemoveCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newWatchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("radium 0.1.0-dev")
		},
	}
}
