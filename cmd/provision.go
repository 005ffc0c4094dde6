package cmd

import (
	"github.com/spf13/cobra"

	"wsruntime/internal/cli"
	"wsruntime/internal/model"
)

func newProvisionCmd() *cobra.Command {
	var (
		ids  identityFlags
		file string
	)
	cmd := &cobra.Command{
		Use:   "provision -f <workspace.yaml> --workspace <id>",
		Short: "Run the provisioning pipeline and print the result",
		Long: `Runs the provisioning pipeline of the configured infrastructure over a
workspace definition and prints the resulting environment as YAML.

Nothing is created on the infrastructure. Use this to inspect the labels,
entry points, memory limits and ports a start would apply.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := model.LoadEnvironment(file)
			if err != nil {
				return err
			}
			return withOrchestrator(func(o runtimeOrchestrator) error {
				provisioned, err := o.Provision(ids.identity(), env)
				if err != nil {
					return err
				}
				p := &cli.Printer{Format: cli.OutputFormatYAML, Out: cmd.OutOrStdout()}
				return p.YAML(provisioned)
			})
		},
	}
	ids.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "Workspace definition file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
