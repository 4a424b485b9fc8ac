package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand(ctx *commandContext) *cobra.Command {
	var clientOnly bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI and daemon versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pepper %s\n", version)
			if clientOnly {
				return nil
			}
			client, err := ctx.dialClient()
			if errors.Is(err, errDaemonUnavailable) {
				fmt.Fprintln(out, "daemon: not running")
				return nil
			}
			if err != nil {
				return err
			}
			defer client.Close()
			daemonVersion, err := client.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "daemon %s\n", daemonVersion)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clientOnly, "client", false, "Only print the CLI version")
	return cmd
}
