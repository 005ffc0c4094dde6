// Package provision turns a declared workspace environment into
// backend-ready container recipes.
//
// A Pipeline runs an explicit, ordered list of provisioners. Each provisioner
// receives its own deep copy of the environment and returns the modified
// value, which is threaded into the next step. Later steps depend on earlier
// ones (the exposure labels need the ports normalized before them), so the
// order is declared by the composition root, never discovered.
//
// If any step fails the pipeline returns the caller's environment unchanged
// together with an *Error naming the provisioner, machine and server. Nothing
// must be submitted to an infrastructure client in that case.
package provision

import (
	"errors"
	"fmt"
	"strings"

	"wsruntime/internal/model"
	"wsruntime/pkg/logging"
)

// Provisioner is a single transformation step.
type Provisioner interface {
	Name() string
	Provision(env model.InternalEnvironment, id model.RuntimeIdentity) (model.InternalEnvironment, error)
}

// Error is returned when a provisioner cannot complete. It unwraps to the
// underlying cause, e.g. an *entrypoint.ParseError.
type Error struct {
	Provisioner string
	Machine     string
	Server      string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "provisioner %q failed", e.Provisioner)
	if e.Machine != "" {
		fmt.Fprintf(&b, " for machine %q", e.Machine)
	}
	if e.Server != "" {
		fmt.Fprintf(&b, " server %q", e.Server)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func machineError(provisioner, machine string, err error) *Error {
	return &Error{Provisioner: provisioner, Machine: machine, Err: err}
}

func serverError(provisioner, machine, server string, err error) *Error {
	return &Error{Provisioner: provisioner, Machine: machine, Server: server, Err: err}
}

// Pipeline is an ordered list of provisioners.
type Pipeline struct {
	steps []Provisioner
}

// NewPipeline returns a pipeline that runs steps in the given order.
func NewPipeline(steps ...Provisioner) Pipeline {
	return Pipeline{steps: append([]Provisioner(nil), steps...)}
}

// Names lists the provisioners in execution order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Run applies every provisioner to a copy of env. On success the fully
// provisioned environment is returned. On failure env is returned as it was
// passed in.
func (p Pipeline) Run(env model.InternalEnvironment, id model.RuntimeIdentity) (model.InternalEnvironment, error) {
	if err := id.Validate(); err != nil {
		return env, err
	}

	current := env.Clone()
	for _, name := range current.MachineNames() {
		if _, ok := current.Containers[name]; !ok {
			current.Containers[name] = model.ContainerConfig{}
		}
	}

	for _, step := range p.steps {
		logging.Debug("Pipeline", "Running provisioner %s for runtime %s", step.Name(), id)

		next, err := step.Provision(current.Clone(), id)
		if err != nil {
			var perr *Error
			if !errors.As(err, &perr) {
				err = &Error{Provisioner: step.Name(), Err: err}
			}
			logging.Error("Pipeline", err, "Provisioning of runtime %s aborted", id)
			return env, err
		}
		current = next
	}

	logging.Info("Pipeline", "Provisioned %d machine(s) for runtime %s", len(current.Machines), id)
	return current, nil
}
