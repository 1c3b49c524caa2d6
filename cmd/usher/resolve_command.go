package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"usher/internal/access"
	"usher/internal/client"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var graded bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve <itemId>",
		Short: "Resolve access for one item",
		Long: `Resolve access for one item. By default only the optimal manifest is
accepted; --graded returns whatever is servable right now, tagged with its
readiness grade.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			reqCtx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			out := cmd.OutOrStdout()
			if graded {
				manifest, err := api.FetchGradedManifest(reqCtx, args[0])
				if err != nil {
					return describeResolveError(err, args[0])
				}
				if asJSON {
					return json.NewEncoder(out).Encode(manifest)
				}
				fmt.Fprintf(out, "Item:      %s (%s)\n", manifest.ItemID, manifest.Title)
				fmt.Fprintf(out, "Readiness: %s\n", manifest.Readiness)
				if manifest.Access != nil {
					printPayload(out, "Access", manifest.Access)
				}
				if manifest.Fallback != nil {
					printPayload(out, "Fallback", manifest.Fallback)
				}
				if manifest.UpgradeEtaMilli > 0 {
					fmt.Fprintf(out, "ETA:       %s\n", formatEta(manifest.UpgradeEtaMilli))
				}
				return nil
			}

			manifest, err := api.FetchManifest(reqCtx, args[0])
			if err != nil {
				return describeResolveError(err, args[0])
			}
			if asJSON {
				return json.NewEncoder(out).Encode(manifest)
			}
			fmt.Fprintf(out, "Item:  %s (%s)\n", manifest.ItemID, manifest.Title)
			printPayload(out, "Access", manifest.Access)
			return nil
		},
	}

	cmd.Flags().BoolVar(&graded, "graded", false, "Accept degraded access when the optimal is not ready")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the raw manifest as JSON")
	return cmd
}

func describeResolveError(err error, itemID string) error {
	if errors.Is(err, client.ErrNoResolution) {
		return fmt.Errorf("no resolution for item %q; check `usher items list`", itemID)
	}
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 409 {
		return fmt.Errorf("item %q is not ready; retry with --graded for fallback access", itemID)
	}
	return err
}

func printPayload(out io.Writer, label string, p *access.Payload) {
	if p == nil {
		return
	}
	fmt.Fprintf(out, "%s:\n", label)
	fmt.Fprintf(out, "  Mode:   %s\n", p.Mode)
	if p.Format != "" {
		fmt.Fprintf(out, "  Format: %s\n", p.Format)
	}
	if p.URI != "" {
		fmt.Fprintf(out, "  URI:    %s\n", p.URI)
	}
	if p.Quality != "" {
		fmt.Fprintf(out, "  Quality: %s\n", p.Quality)
	}
}
