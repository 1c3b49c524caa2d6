package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"usher/internal/api"
)

func newReceiptCommand(ctx *commandContext) *cobra.Command {
	receiptCmd := &cobra.Command{
		Use:   "receipt",
		Short: "Consumption receipt utilities",
	}

	var action string
	testCmd := &cobra.Command{
		Use:   "test [itemId]",
		Short: "Submit a test receipt",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			req := &api.ReceiptRequest{
				ItemType: "test",
				Action:   action,
			}
			if len(args) == 1 {
				req.ItemID = args[0]
			}
			reqCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			receiptID, err := apiClient.SendReceipt(reqCtx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Receipt accepted: %s\n", receiptID)
			return nil
		},
	}
	testCmd.Flags().StringVar(&action, "action", "played", "Receipt action to record")

	receiptCmd.AddCommand(testCmd)
	return receiptCmd
}
