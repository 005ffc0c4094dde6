// Package runtime is the facade that takes a declared workspace environment
// to running, reachable machines on one infrastructure, and back.
//
// The Orchestrator owns the environment for the duration of a start: it runs
// the backend's provisioning pipeline, hands the result to the backend and
// then reads the runtime back through the same backend, so that the reported
// servers and URLs always reflect what the infrastructure actually holds.
package runtime

import (
	"context"
	"errors"
	"sort"

	"wsruntime/internal/model"
	"wsruntime/internal/provision"
)

var (
	// ErrRuntimeNotFound is returned when no machine of the runtime exists on
	// the infrastructure.
	ErrRuntimeNotFound = errors.New("runtime not found")

	// ErrAlreadyRunning is returned when a runtime with the same workspace id
	// is already running.
	ErrAlreadyRunning = errors.New("runtime is already running")
)

// Ref identifies one backend-native object created for a runtime.
type Ref struct {
	Kind string `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
}

func (r Ref) String() string {
	return r.Kind + "/" + r.Name
}

// Server is a declared server as observed on the infrastructure.
type Server struct {
	Name     string `json:"name" yaml:"name"`
	Port     int    `json:"port" yaml:"port"`
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	// URL is the externally reachable address, or the in-network address for
	// internal servers.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Internal servers are deliberately not exposed publicly.
	Internal bool `json:"internal,omitempty" yaml:"internal,omitempty"`
}

// Machine is a running machine as reported by the infrastructure.
type Machine struct {
	Name        string            `json:"name" yaml:"name"`
	Image       string            `json:"image,omitempty" yaml:"image,omitempty"`
	Status      string            `json:"status,omitempty" yaml:"status,omitempty"`
	MemoryLimit int64             `json:"memoryLimit,omitempty" yaml:"memoryLimit,omitempty"`
	Servers     map[string]Server `json:"servers,omitempty" yaml:"servers,omitempty"`
}

// ServerNames returns the machine's server names in sorted order.
func (m Machine) ServerNames() []string {
	names := make([]string, 0, len(m.Servers))
	for name := range m.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Runtime is the observed state of a started workspace environment.
type Runtime struct {
	Identity       model.RuntimeIdentity `json:"identity" yaml:"identity"`
	Infrastructure string                `json:"infrastructure" yaml:"infrastructure"`
	Machines       map[string]Machine    `json:"machines" yaml:"machines"`
	Refs           []Ref                 `json:"refs,omitempty" yaml:"refs,omitempty"`
}

// MachineNames returns the runtime's machine names in sorted order.
func (r *Runtime) MachineNames() []string {
	names := make([]string, 0, len(r.Machines))
	for name := range r.Machines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Infrastructure is the client of one backend (container engine or cluster).
// It accepts fully provisioned environments and reads runtimes back.
type Infrastructure interface {
	// Name identifies the backend, e.g. "kubernetes".
	Name() string

	// Pipeline returns the provisioners, in order, that prepare an
	// environment for this backend.
	Pipeline() provision.Pipeline

	// Create submits every machine of env and waits until all of them have
	// been accepted by the backend.
	Create(ctx context.Context, id model.RuntimeIdentity, env model.InternalEnvironment) ([]Ref, error)

	// Servers reconstructs the runtime's machines from the backend-native
	// objects. An empty result means nothing is running.
	Servers(ctx context.Context, id model.RuntimeIdentity) ([]Machine, error)

	// Delete removes every object of the runtime. Deleting a runtime that
	// does not exist is not an error.
	Delete(ctx context.Context, id model.RuntimeIdentity) error
}
