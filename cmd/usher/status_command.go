package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"usher/internal/daemonctl"
	"usher/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			status, err := fetchStatus(ctx, cmd.Context())
			if err != nil {
				cfg, cfgErr := ctx.ensureConfig()
				if cfgErr != nil {
					return err
				}
				running, pid, probeErr := daemonctl.ProcessInfo(cfg)
				if probeErr == nil && !running {
					fmt.Fprintln(out, "Daemon: not running")
					return nil
				}
				if probeErr == nil {
					fmt.Fprintf(out, "Daemon: unresponsive (pid %d)\n", pid)
					return nil
				}
				return err
			}

			fmt.Fprintf(out, "Running:          %s\n", yesNo(status.Running))
			fmt.Fprintf(out, "PID:              %d\n", status.PID)
			fmt.Fprintf(out, "Database:         %s\n", status.DatabasePath)
			fmt.Fprintf(out, "Lock file:        %s\n", status.LockPath)
			fmt.Fprintf(out, "Push subscribers: %d\n", status.PushSubscribers)
			fmt.Fprintf(out, "Frames published: %d\n", status.FramesPublished)
			if len(status.Lanes) > 0 {
				fmt.Fprintf(out, "Lanes:            %v\n", status.Lanes)
			}
			if len(status.ItemStats) > 0 {
				names := make([]string, 0, len(status.ItemStats))
				for name := range status.ItemStats {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Fprintln(out, "Items:")
				for _, name := range names {
					fmt.Fprintf(out, "  %-9s %d\n", name, status.ItemStats[name])
				}
			}
			return nil
		},
	}
}

// fetchStatus prefers the IPC socket and falls back to the HTTP API.
func fetchStatus(ctx *commandContext, cmdCtx context.Context) (*ipc.StatusResponse, error) {
	var resp *ipc.StatusResponse
	err := ctx.withClient(func(c *ipc.Client) error {
		var callErr error
		resp, callErr = c.Status()
		return callErr
	})
	if err == nil {
		return resp, nil
	}

	api, apiErr := ctx.apiClient()
	if apiErr != nil {
		return nil, errors.Join(err, apiErr)
	}
	reqCtx, cancel := context.WithTimeout(cmdCtx, 5*time.Second)
	defer cancel()
	httpStatus, httpErr := api.FetchStatus(reqCtx)
	if httpErr != nil {
		return nil, err
	}
	return &ipc.StatusResponse{
		Running:         httpStatus.Running,
		PID:             httpStatus.PID,
		DatabasePath:    httpStatus.DatabasePath,
		LockPath:        httpStatus.LockFilePath,
		ItemStats:       httpStatus.ItemStats,
		PushSubscribers: httpStatus.PushSubscribers,
		FramesPublished: httpStatus.FramesPublished,
		Lanes:           httpStatus.Lanes,
	}, nil
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pid, err := daemonctl.Stop(cfg, 10*time.Second)
			if err != nil {
				if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped daemon (pid %d)\n", pid)
			return nil
		},
	}
}
