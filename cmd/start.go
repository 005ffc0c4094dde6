package cmd

import (
	"github.com/spf13/cobra"

	"wsruntime/internal/model"
)

func newStartCmd() *cobra.Command {
	var (
		ids  identityFlags
		file string
	)
	cmd := &cobra.Command{
		Use:   "start -f <workspace.yaml> --workspace <id>",
		Short: "Start a workspace environment",
		Long: `Provisions a workspace definition and starts it on the configured
infrastructure, then prints every machine with its servers and URLs.

If a declared public server ends up without a URL the runtime is torn
down again and the command fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			env, err := model.LoadEnvironment(file)
			if err != nil {
				return err
			}
			return withOrchestrator(func(o runtimeOrchestrator) error {
				rt, err := o.Start(cmd.Context(), ids.identity(), env)
				if err != nil {
					return err
				}
				return printer.Runtime(rt)
			})
		},
	}
	ids.register(cmd)
	registerOutputFlag(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "Workspace definition file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
