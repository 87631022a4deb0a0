package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [kind]",
		Short: "List materialized spaces",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			kind := ""
			if len(args) == 1 {
				kind = args[0]
			}
			spaces, err := st.List(cmd.Context(), kind)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tDATAID\tCOMMANDS\tUPDATED")
			for _, sp := range spaces {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					sp.Kind, sp.DataID[:12], len(sp.Manifest.Commands), sp.Manifest.UpdatedAt)
			}
			return w.Flush()
		},
	}
}
