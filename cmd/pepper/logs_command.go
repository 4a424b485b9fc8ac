package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pepper/internal/ipc"
	"pepper/internal/logstream"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var usercode bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon or usercode logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			source := ipc.LogSourceDaemon
			if usercode {
				source = ipc.LogSourceUsercode
			}
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				printed, err := logstream.Stream(cmd.Context(), client, logstream.Options{
					Source: source,
					Lines:  lines,
					Follow: follow,
				}, func(line string) {
					fmt.Fprintln(out, line)
				})
				if err != nil {
					return err
				}
				if !printed && !follow {
					fmt.Fprintln(out, "No log entries available")
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show (0 for the whole log)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().BoolVar(&usercode, "usercode", false, "Show the usercode log on the usercode drive")
	return cmd
}
