package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"wsruntime/internal/app"
	"wsruntime/internal/cli"
	"wsruntime/internal/model"
	"wsruntime/internal/runtime"
)

// runtimeOrchestrator is the part of runtime.Orchestrator the commands use.
type runtimeOrchestrator interface {
	Provision(id model.RuntimeIdentity, env model.InternalEnvironment) (model.InternalEnvironment, error)
	Start(ctx context.Context, id model.RuntimeIdentity, env model.InternalEnvironment) (*runtime.Runtime, error)
	Status(ctx context.Context, id model.RuntimeIdentity) (*runtime.Runtime, error)
	Stop(ctx context.Context, id model.RuntimeIdentity) error
}

// openOrchestrator bootstraps the application. Replaced in tests.
var openOrchestrator = func() (runtimeOrchestrator, func(), error) {
	application, err := app.NewApplication(app.NewConfig(configPath, debug, logFormat))
	if err != nil {
		return nil, nil, err
	}
	return application.Orchestrator(), func() { _ = application.Close() }, nil
}

// identityFlags binds the runtime identity flags shared by every runtime command.
type identityFlags struct {
	workspace string
	env       string
	owner     string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.workspace, "workspace", "w", "", "Workspace id (required)")
	cmd.Flags().StringVar(&f.env, "env", "default", "Environment name")
	cmd.Flags().StringVar(&f.owner, "owner", "", "Owner id")
	_ = cmd.MarkFlagRequired("workspace")
}

func (f *identityFlags) identity() model.RuntimeIdentity {
	return model.RuntimeIdentity{WorkspaceID: f.workspace, EnvName: f.env, OwnerID: f.owner}
}

func registerOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")
}

func newPrinter(cmd *cobra.Command) (*cli.Printer, error) {
	return cli.NewPrinter(outputFormat, cmd.OutOrStdout())
}

// withOrchestrator opens the orchestrator, runs fn and releases backend
// connections afterwards.
func withOrchestrator(fn func(o runtimeOrchestrator) error) error {
	o, closeFn, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(o)
}

// notRunning rewrites ErrRuntimeNotFound into a message naming the workspace.
func notRunning(id model.RuntimeIdentity, err error) error {
	if errors.Is(err, runtime.ErrRuntimeNotFound) {
		return fmt.Errorf("workspace %s is not running: %w", id.WorkspaceID, err)
	}
	return err
}
