package provision

import (
	"fmt"
	"sort"

	"wsruntime/internal/entrypoint"
	"wsruntime/internal/model"
	"wsruntime/internal/size"
)

// EntryPoint parses the command and args attributes into the container
// recipe. Absent attributes keep the image defaults; malformed ones abort
// the start.
type EntryPoint struct{}

func (EntryPoint) Name() string { return "entrypoint" }

func (p EntryPoint) Provision(env model.InternalEnvironment, _ model.RuntimeIdentity) (model.InternalEnvironment, error) {
	for _, name := range env.MachineNames() {
		ep, err := entrypoint.Parse(env.Machines[name].Attributes)
		if err != nil {
			return env, machineError(p.Name(), name, err)
		}
		c := env.Containers[name]
		if cmd := ep.Command(); len(cmd) > 0 {
			c.Command = cmd
		}
		if args := ep.Arguments(); len(args) > 0 {
			c.Args = args
		}
		env.Containers[name] = c
	}
	return env, nil
}

// MemoryLimit sets the container memory limit from the memoryLimitBytes
// attribute, or from Default when the machine declares none.
type MemoryLimit struct {
	// Default is applied in bytes; zero leaves the container unlimited.
	Default int64
}

func (MemoryLimit) Name() string { return "memory-limit" }

func (p MemoryLimit) Provision(env model.InternalEnvironment, _ model.RuntimeIdentity) (model.InternalEnvironment, error) {
	for _, name := range env.MachineNames() {
		c := env.Containers[name]
		raw, ok := env.Machines[name].Attributes[model.AttrMemoryLimit]
		switch {
		case ok:
			limit, err := size.ParseMemory(raw)
			if err != nil {
				return env, machineError(p.Name(), name, fmt.Errorf("attribute %q: %w", model.AttrMemoryLimit, err))
			}
			c.MemoryLimit = limit
		case c.MemoryLimit == 0:
			c.MemoryLimit = p.Default
		}
		env.Containers[name] = c
	}
	return env, nil
}

// EnvVars copies the machine environment into the container recipe.
type EnvVars struct{}

func (EnvVars) Name() string { return "env-vars" }

func (EnvVars) Provision(env model.InternalEnvironment, _ model.RuntimeIdentity) (model.InternalEnvironment, error) {
	for _, name := range env.MachineNames() {
		m := env.Machines[name]
		if len(m.Env) == 0 {
			continue
		}
		c := env.Containers[name]
		if c.Env == nil {
			c.Env = make(map[string]string, len(m.Env))
		}
		for k, v := range m.Env {
			c.Env[k] = v
		}
		env.Containers[name] = c
	}
	return env, nil
}

// Volumes copies declared volumes into the container recipe after checking
// that each one has a name and an absolute mount path.
type Volumes struct{}

func (Volumes) Name() string { return "volumes" }

func (p Volumes) Provision(env model.InternalEnvironment, _ model.RuntimeIdentity) (model.InternalEnvironment, error) {
	for _, name := range env.MachineNames() {
		m := env.Machines[name]
		if len(m.Volumes) == 0 {
			continue
		}
		seen := make(map[string]bool, len(m.Volumes))
		for _, v := range m.Volumes {
			if v.Name == "" || len(v.Path) == 0 || v.Path[0] != '/' {
				return env, machineError(p.Name(), name, fmt.Errorf("invalid volume %q mounted at %q", v.Name, v.Path))
			}
			if seen[v.Name] {
				return env, machineError(p.Name(), name, fmt.Errorf("volume %q declared twice", v.Name))
			}
			seen[v.Name] = true
		}
		c := env.Containers[name]
		c.Volumes = append([]model.Volume(nil), m.Volumes...)
		env.Containers[name] = c
	}
	return env, nil
}

// ServerPorts exposes every declared server port on the container as a
// normalized "port/proto" entry.
type ServerPorts struct{}

func (ServerPorts) Name() string { return "server-ports" }

func (p ServerPorts) Provision(env model.InternalEnvironment, _ model.RuntimeIdentity) (model.InternalEnvironment, error) {
	for _, name := range env.MachineNames() {
		m := env.Machines[name]
		c := env.Containers[name]

		ports := make(map[string]bool, len(c.Ports)+len(m.Servers))
		for _, existing := range c.Ports {
			ports[existing] = true
		}
		for _, serverName := range m.ServerNames() {
			port, err := m.Servers[serverName].NormalizedPort()
			if err != nil {
				return env, serverError(p.Name(), name, serverName, err)
			}
			ports[string(port)] = true
		}

		c.Ports = make([]string, 0, len(ports))
		for port := range ports {
			c.Ports = append(c.Ports, port)
		}
		sort.Strings(c.Ports)
		env.Containers[name] = c
	}
	return env, nil
}
