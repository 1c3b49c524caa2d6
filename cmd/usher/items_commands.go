package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"usher/internal/api"
	"usher/internal/ipc"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect the resolution catalog",
	}
	itemsCmd.AddCommand(newItemsListCommand(ctx))
	itemsCmd.AddCommand(newItemsShowCommand(ctx))
	return itemsCmd
}

func newItemsListCommand(ctx *commandContext) *cobra.Command {
	var readiness []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog items",
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []api.Item
			err := ctx.withClient(func(c *ipc.Client) error {
				resp, callErr := c.ItemList(readiness)
				if callErr != nil {
					return callErr
				}
				items = resp.Items
				return nil
			})
			if err != nil {
				return err
			}

			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No items")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					item.ID,
					item.Type,
					item.Title,
					item.Readiness,
					yesNo(item.HasAccess),
					yesNo(item.HasFallback),
					formatEta(item.UpgradeEtaMilli),
				})
			}
			writeRows(cmd.OutOrStdout(),
				[]string{"ID", "Type", "Title", "Readiness", "Access", "Fallback", "ETA"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&readiness, "readiness", nil, "Filter by readiness (PENDING, DEGRADED, READY)")
	return cmd
}

func newItemsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <itemId>",
		Short: "Show one catalog item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var item api.Item
			err := ctx.withClient(func(c *ipc.Client) error {
				resp, callErr := c.ItemDescribe(args[0])
				if callErr != nil {
					return callErr
				}
				item = resp.Item
				return nil
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:        %s\n", item.ID)
			fmt.Fprintf(out, "Type:      %s\n", item.Type)
			fmt.Fprintf(out, "Title:     %s\n", item.Title)
			fmt.Fprintf(out, "Readiness: %s\n", item.Readiness)
			fmt.Fprintf(out, "Access:    %s\n", yesNo(item.HasAccess))
			fmt.Fprintf(out, "Fallback:  %s\n", yesNo(item.HasFallback))
			if item.UpgradeEtaMilli > 0 {
				fmt.Fprintf(out, "ETA:       %s\n", formatEta(item.UpgradeEtaMilli))
			}
			if item.UpdatedAt != "" {
				fmt.Fprintf(out, "Updated:   %s\n", item.UpdatedAt)
			}
			return nil
		},
	}
}

func formatEta(milli int64) string {
	if milli <= 0 {
		return "-"
	}
	return time.Duration(milli * int64(time.Millisecond)).Round(time.Second).String()
}
