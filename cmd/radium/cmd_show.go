package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <kind> [input-json]",
		Short: "Show the manifest of a space by its origin",
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
			return printJSON(map[string]any{
				"dataId":   sp.DataID,
				"path":     sp.Path,
				"exports":  sp.Exports,
				"manifest": sp.Manifest,
			})
		},
	}
}

func newHasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "has <kind> [input-json]",
		Short: "Check whether a space exists",
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
			ok, err := st.Has(cmd.Context(), origin)
			if err != nil {
				return err
			}
			fmt.Println(ok)
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <kind> [input-json]",
		Short: "Remove a space and its local dependencies",
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
			return st.Remove(cmd.Context(), origin)
		},
	}
}

func optArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
