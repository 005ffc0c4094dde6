package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var ids identityFlags
	cmd := &cobra.Command{
		Use:   "status --workspace <id>",
		Short: "Show the machines and servers of a running workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			id := ids.identity()
			return withOrchestrator(func(o runtimeOrchestrator) error {
				rt, err := o.Status(cmd.Context(), id)
				if err != nil {
					return notRunning(id, err)
				}
				return printer.Runtime(rt)
			})
		},
	}
	ids.register(cmd)
	registerOutputFlag(cmd)
	return cmd
}

func newStopCmd() *cobra.Command {
	var ids identityFlags
	cmd := &cobra.Command{
		Use:   "stop --workspace <id>",
		Short: "Stop a running workspace and delete its objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ids.identity()
			return withOrchestrator(func(o runtimeOrchestrator) error {
				if err := o.Stop(cmd.Context(), id); err != nil {
					return notRunning(id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped workspace %s\n", id.WorkspaceID)
				return nil
			})
		},
	}
	ids.register(cmd)
	return cmd
}
