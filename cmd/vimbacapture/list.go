package main

import (
	"fmt"

	"github.com/spf13/cobra"

	vimba "github.com/edgeimpulse/vimba-go"
)

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the serial numbers of attached cameras",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serials, err := vimba.ListSerialNumbers(vimba.Default())
			if err != nil {
				return fmt.Errorf("listing cameras: %w", err)
			}
			for _, s := range serials {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}
