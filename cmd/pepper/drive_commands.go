package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pepper/internal/ipc"
)

func newDrivesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "drives",
		Short: "List registered drives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				ids, err := client.DriveList()
				if err != nil {
					return err
				}
				drives := make([]*ipc.DriveResponse, 0, len(ids))
				for _, id := range ids {
					d, err := client.Drive(id)
					if err != nil {
						return err
					}
					// Removed between the list and the lookup.
					if !d.Found {
						continue
					}
					drives = append(drives, d)
				}
				if jsonOutput {
					return writeJSON(cmd, drives)
				}
				out := cmd.OutOrStdout()
				if len(drives) == 0 {
					fmt.Fprintln(out, "No drives registered")
					return nil
				}
				rows := make([][]string, 0, len(drives))
				for _, d := range drives {
					rows = append(rows, []string{d.ID, d.TypeName, strconv.Itoa(d.TypeIndex), d.MountPath})
				}
				fmt.Fprint(out, renderTable([]string{"ID", "Type", "Index", "Mount Path"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newDriveCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "drive <id>",
		Short: "Show one registered drive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				d, err := client.Drive(id)
				if err != nil {
					return err
				}
				if !d.Found {
					return fmt.Errorf("drive %s is not registered", id)
				}
				if jsonOutput {
					return writeJSON(cmd, d)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:         %s\n", d.ID)
				fmt.Fprintf(out, "Mount path: %s\n", d.MountPath)
				fmt.Fprintf(out, "Type:       %s (index %d)\n", d.TypeName, d.TypeIndex)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newTypesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List drive types in classification order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				names, err := client.DriveTypes()
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(names))
				for i, name := range names {
					rows = append(rows, []string{strconv.Itoa(i), name})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Index", "Type"}, rows, []columnAlignment{alignRight, alignLeft}))
				return nil
			})
		},
	}
}
