package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"usher/internal/ipc"
)

func newUpgradeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <itemId>",
		Short: "Force an item's optimal access READY",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *ipc.Client) error {
				resp, err := c.Promote(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Promoted {
					fmt.Fprintf(out, "Item %s promoted to READY\n", args[0])
				} else {
					fmt.Fprintf(out, "Item %s was already READY\n", args[0])
				}
				return nil
			})
		},
		Args: cobra.ExactArgs(1),
	}
}
