package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pepper/internal/ipc"
)

func newUsercodeCommand(ctx *commandContext) *cobra.Command {
	usercodeCmd := &cobra.Command{
		Use:   "usercode",
		Short: "Control the usercode process",
	}

	usercodeCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start usercode on the registered usercode drive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StartUsercode()
				if err != nil {
					return err
				}
				if !resp.Started {
					return errors.New(resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Usercode started")
				return nil
			})
		},
	})

	usercodeCmd.AddCommand(&cobra.Command{
		Use:   "kill",
		Short: "Terminate the running usercode process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.KillUsercode()
				if err != nil {
					return err
				}
				if !resp.Killed {
					return errors.New(resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Usercode killed")
				return nil
			})
		},
	})

	usercodeCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the usercode drive, driver and state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				driveID, err := client.UsercodeDrive()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				if driveID == "" {
					fmt.Fprintln(out, renderStatusLine("Usercode", statusInfo, "No usercode drive", colorize))
					return nil
				}
				driver, err := client.UsercodeDriverName()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderStatusLine("Drive", statusInfo, driveID, colorize))
				fmt.Fprintln(out, renderStatusLine("Driver", statusInfo, driver, colorize))
				fmt.Fprintln(out, renderStatusLine("State", daemonStatusKind(status.Status), humanStatus(status.Status), colorize))
				return nil
			})
		},
	})

	return usercodeCmd
}
