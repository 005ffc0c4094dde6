package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wsruntime/internal/model"
	"wsruntime/pkg/logging"
)

// Orchestrator starts, queries and stops workspace runtimes on a single
// infrastructure.
type Orchestrator struct {
	infra Infrastructure

	mu      sync.Mutex
	running map[string]model.RuntimeIdentity
}

// New returns an Orchestrator for infra.
func New(infra Infrastructure) *Orchestrator {
	return &Orchestrator{
		infra:   infra,
		running: make(map[string]model.RuntimeIdentity),
	}
}

// Infrastructure returns the backend the orchestrator drives.
func (o *Orchestrator) Infrastructure() Infrastructure {
	return o.infra
}

// Provision runs the backend's pipeline without touching the infrastructure.
func (o *Orchestrator) Provision(id model.RuntimeIdentity, env model.InternalEnvironment) (model.InternalEnvironment, error) {
	if err := id.Validate(); err != nil {
		return env, err
	}
	if err := env.Validate(); err != nil {
		return env, err
	}
	return o.infra.Pipeline().Run(env, id)
}

// Start provisions env and submits it to the infrastructure. If provisioning
// fails the infrastructure is never called. If the started runtime does not
// account for every declared server, it is torn down again.
func (o *Orchestrator) Start(ctx context.Context, id model.RuntimeIdentity, env model.InternalEnvironment) (*Runtime, error) {
	provisioned, err := o.Provision(id, env)
	if err != nil {
		return nil, fmt.Errorf("failed to provision runtime %s: %w", id, err)
	}

	if err := o.reserve(ctx, id); err != nil {
		return nil, err
	}

	logging.Info("Orchestrator", "Starting runtime %s with %d machine(s) on %s", id, len(provisioned.Machines), o.infra.Name())
	refs, err := o.infra.Create(ctx, id, provisioned)
	if err != nil {
		o.release(id)
		return nil, fmt.Errorf("failed to start runtime %s: %w", id, err)
	}

	rt, err := o.Status(ctx, id)
	if err == nil {
		err = checkServers(provisioned, rt)
	}
	if err != nil {
		logging.Error("Orchestrator", err, "Runtime %s did not come up as declared, removing it", id)
		if derr := o.infra.Delete(context.WithoutCancel(ctx), id); derr != nil {
			logging.Error("Orchestrator", derr, "Failed to clean up runtime %s", id)
		}
		o.release(id)
		return nil, fmt.Errorf("failed to start runtime %s: %w", id, err)
	}

	rt.Refs = refs
	logging.Info("Orchestrator", "Runtime %s started", id)
	return rt, nil
}

// Status reads the runtime back from the infrastructure.
func (o *Orchestrator) Status(ctx context.Context, id model.RuntimeIdentity) (*Runtime, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	machines, err := o.infra.Servers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query runtime %s: %w", id, err)
	}
	if len(machines) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRuntimeNotFound, id.WorkspaceID)
	}

	rt := &Runtime{
		Identity:       id,
		Infrastructure: o.infra.Name(),
		Machines:       make(map[string]Machine, len(machines)),
	}
	for _, m := range machines {
		rt.Machines[m.Name] = m
	}
	return rt, nil
}

// Stop removes every machine of the runtime.
func (o *Orchestrator) Stop(ctx context.Context, id model.RuntimeIdentity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	machines, err := o.infra.Servers(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to query runtime %s: %w", id, err)
	}
	if len(machines) == 0 {
		o.release(id)
		return fmt.Errorf("%w: %s", ErrRuntimeNotFound, id.WorkspaceID)
	}

	logging.Info("Orchestrator", "Stopping runtime %s", id)
	if err := o.infra.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to stop runtime %s: %w", id, err)
	}
	o.release(id)
	return nil
}

// reserve marks id as running unless this orchestrator or the infrastructure
// already has it.
func (o *Orchestrator) reserve(ctx context.Context, id model.RuntimeIdentity) error {
	o.mu.Lock()
	if _, ok := o.running[id.WorkspaceID]; ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id.WorkspaceID)
	}
	o.running[id.WorkspaceID] = id
	o.mu.Unlock()

	machines, err := o.infra.Servers(ctx, id)
	if err != nil {
		o.release(id)
		return fmt.Errorf("failed to query runtime %s: %w", id, err)
	}
	if len(machines) > 0 {
		o.release(id)
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id.WorkspaceID)
	}
	return nil
}

func (o *Orchestrator) release(id model.RuntimeIdentity) {
	o.mu.Lock()
	delete(o.running, id.WorkspaceID)
	o.mu.Unlock()
}

// checkServers verifies that every declared server of every machine is
// either reachable through a URL or explicitly internal.
func checkServers(env model.InternalEnvironment, rt *Runtime) error {
	var errs []error
	for _, name := range env.MachineNames() {
		m, ok := rt.Machines[name]
		if !ok {
			errs = append(errs, fmt.Errorf("machine %q is missing from the runtime", name))
			continue
		}
		for _, serverName := range env.Machines[name].ServerNames() {
			s, ok := m.Servers[serverName]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("server %q of machine %q is missing from the runtime", serverName, name))
			case s.URL == "" && !s.Internal:
				errs = append(errs, fmt.Errorf("server %q of machine %q has no URL", serverName, name))
			}
		}
	}
	return errors.Join(errs...)
}
