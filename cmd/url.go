package cmd

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

// For mocking in tests
var writeClipboard = clipboard.WriteAll

func newURLCmd() *cobra.Command {
	var (
		ids     identityFlags
		copyURL bool
	)
	cmd := &cobra.Command{
		Use:   "url <machine> <server> --workspace <id>",
		Short: "Print the URL of a server",
		Long: `Prints the URL under which a server of a running workspace is reachable.

Internal servers are reported with their in-network address.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			machineName, serverName := args[0], args[1]
			id := ids.identity()
			return withOrchestrator(func(o runtimeOrchestrator) error {
				rt, err := o.Status(cmd.Context(), id)
				if err != nil {
					return notRunning(id, err)
				}
				machine, ok := rt.Machines[machineName]
				if !ok {
					return fmt.Errorf("workspace %s has no machine %q (machines: %v)", id.WorkspaceID, machineName, rt.MachineNames())
				}
				server, ok := machine.Servers[serverName]
				if !ok {
					return fmt.Errorf("machine %q has no server %q (servers: %v)", machineName, serverName, machine.ServerNames())
				}
				if server.URL == "" {
					return fmt.Errorf("server %q of machine %q has no URL", serverName, machineName)
				}

				fmt.Fprintln(cmd.OutOrStdout(), server.URL)
				if copyURL {
					if err := writeClipboard(server.URL); err != nil {
						return fmt.Errorf("failed to copy URL to clipboard: %w", err)
					}
					cmd.PrintErrln("URL copied to clipboard")
				}
				return nil
			})
		},
	}
	ids.register(cmd)
	cmd.Flags().BoolVar(&copyURL, "copy", false, "Copy the URL to the clipboard")
	return cmd
}
