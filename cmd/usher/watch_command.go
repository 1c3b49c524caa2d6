package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"usher/internal/access"
	"usher/internal/client"
	"usher/internal/lane"
	"usher/internal/logging"
	"usher/internal/readiness"
)

// printingRenderer is the CLI's render collaborator: it just reports what a
// real surface would mount.
type printingRenderer struct {
	out io.Writer
}

func (r *printingRenderer) Render(manifest access.Manifest, _ access.RenderOptions) (access.RenderResult, error) {
	p := manifest.Payload
	if p == nil {
		return access.PendingResult(), nil
	}
	target := p.URI
	if target == "" {
		target = p.OpenWeb
	}
	fmt.Fprintf(r.out, "%s render %s %s %s\n", timestamp(), manifest.ItemID, p.Mode, target)
	return access.RenderResult{
		Type: string(p.Mode),
		URL:  target,
		Cleanup: func() {
			fmt.Fprintf(r.out, "%s teardown %s\n", timestamp(), manifest.ItemID)
		},
	}, nil
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var manual bool
	var useWS bool

	cmd := &cobra.Command{
		Use:   "watch <itemId>",
		Short: "Watch readiness transitions for an item",
		Long: `Subscribe to the daemon push channel and print every readiness
transition and render decision for the item until interrupted. With --manual
a staged upgrade is reported but not applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			itemID := args[0]
			out := cmd.OutOrStdout()
			logger := logging.NewNop()

			registry := readiness.NewRegistry(readiness.Options{
				Renderer: &printingRenderer{out: out},
				Policy:   readiness.Policy{AutoUpgrade: !manual},
				Hooks: readiness.Hooks{
					ReadinessChanged: func(id string, r access.Readiness) {
						fmt.Fprintf(out, "%s readiness %s -> %s\n", timestamp(), id, r)
					},
					UpgradeAvailable: func(id string, p access.Payload) {
						fmt.Fprintf(out, "%s upgrade available %s (%s %s)\n", timestamp(), id, p.Mode, p.Format)
						if manual {
							fmt.Fprintf(out, "%s run `usher upgrade %s` to apply\n", timestamp(), id)
						}
					},
				},
				MaxFrameAge: cfg.MaxFrameAge(),
				Logger:      logger,
			})
			defer registry.DestroyAll()

			var session lane.Session
			if useWS {
				ws := client.NewWSStream("http://"+cfg.Paths.APIBind, cfg.Paths.APIToken, logger)
				if err := ws.Connect(cmd.Context()); err != nil {
					return err
				}
				defer ws.Close()
				session = ws
			} else {
				api, err := ctx.apiClient()
				if err != nil {
					return err
				}
				stream := client.NewPushStream(api, logger)
				if err := stream.Connect(cmd.Context()); err != nil {
					return err
				}
				defer stream.Close()
				session = stream
			}

			lanes := lane.NewManager(session, registry, lane.Options{
				LaneName:    cfg.Push.Lane,
				MaxFrameAge: cfg.MaxFrameAge(),
				Logger:      logger,
			})
			defer lanes.UnsubscribeAll()

			if _, err := lanes.Subscribe(itemID); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s watching %s (ctrl-c to stop)\n", timestamp(), itemID)

			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&manual, "manual", false, "Stage upgrades without applying them")
	cmd.Flags().BoolVar(&useWS, "ws", false, "Use the websocket push channel instead of SSE")
	return cmd
}
