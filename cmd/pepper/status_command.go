package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pepper/internal/daemon"
	"pepper/internal/ipc"
)

const watchPollTimeout = 30 * time.Second

type statusSnapshot struct {
	Status         string   `json:"status"`
	PID            int      `json:"pid"`
	Version        string   `json:"version"`
	Source         string   `json:"source"`
	LockPath       string   `json:"lock_path"`
	Drives         []string `json:"drives"`
	UsercodeDrive  string   `json:"usercode_drive,omitempty"`
	UsercodeDriver string   `json:"usercode_driver,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var watch bool
	var maxChanges int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				snapshot, err := fetchStatus(client)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					if err := writeJSON(cmd, snapshot); err != nil {
						return err
					}
				} else {
					renderStatus(out, snapshot, shouldColorize(out))
				}
				if !watch {
					return nil
				}
				return watchStatus(cmd, client, snapshot.Status, maxChanges)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Print each status change until interrupted")
	cmd.Flags().IntVar(&maxChanges, "max-changes", 0, "Stop watching after this many changes (0 watches forever)")
	return cmd
}

func fetchStatus(client *ipc.Client) (statusSnapshot, error) {
	var snap statusSnapshot
	status, err := client.Status()
	if err != nil {
		return snap, err
	}
	snap.Status = status.Status
	snap.PID = status.PID
	snap.Source = status.Source
	snap.LockPath = status.LockPath

	if snap.Version, err = client.Version(); err != nil {
		return snap, err
	}
	if snap.Drives, err = client.DriveList(); err != nil {
		return snap, err
	}
	if snap.UsercodeDrive, err = client.UsercodeDrive(); err != nil {
		return snap, err
	}
	if snap.UsercodeDriver, err = client.UsercodeDriverName(); err != nil {
		return snap, err
	}
	return snap, nil
}

func renderStatus(out io.Writer, snap statusSnapshot, colorize bool) {
	for _, line := range renderSectionHeader("Pepper Status", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", daemonStatusKind(snap.Status), humanStatus(snap.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Version", statusInfo, snap.Version, colorize))
	fmt.Fprintln(out, renderStatusLine("PID", statusInfo, strconv.Itoa(snap.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("Device Source", statusInfo, snap.Source, colorize))
	fmt.Fprintln(out, renderStatusLine("Drives", statusInfo, fmt.Sprintf("%d registered", len(snap.Drives)), colorize))
	if snap.UsercodeDrive == "" {
		fmt.Fprintln(out, renderStatusLine("Usercode", statusInfo, "No usercode drive", colorize))
		return
	}
	fmt.Fprintln(out, renderStatusLine("Usercode", statusOK, fmt.Sprintf("%s (%s)", snap.UsercodeDrive, snap.UsercodeDriver), colorize))
}

func watchStatus(cmd *cobra.Command, client *ipc.Client, last string, maxChanges int) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	changes := 0
	for {
		if err := cmd.Context().Err(); err != nil {
			return nil
		}
		resp, err := client.WaitStatus(last, watchPollTimeout)
		if err != nil {
			return err
		}
		if !resp.Changed {
			continue
		}
		last = resp.Status
		fmt.Fprintln(out, renderStatusLine(time.Now().Format(time.TimeOnly), daemonStatusKind(last), humanStatus(last), colorize))
		changes++
		if maxChanges > 0 && changes >= maxChanges {
			return nil
		}
		if daemon.Status(last) == daemon.StatusStopping {
			return nil
		}
	}
}
