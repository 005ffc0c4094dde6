package provision

import (
	"errors"

	"wsruntime/internal/exposure"
	"wsruntime/internal/labels"
	"wsruntime/internal/model"
)

// consumedAttributes are machine attributes turned into container settings
// by other provisioners; they are configuration, not metadata.
var consumedAttributes = map[string]bool{
	model.AttrCommand:     true,
	model.AttrArgs:        true,
	model.AttrMemoryLimit: true,
}

// RuntimeIdentityLabels attaches the canonical identity labels, merged with
// the machine's metadata attributes, to every container.
type RuntimeIdentityLabels struct {
	// Normalize maps attributes onto backend label keys. Nil keeps them as is.
	Normalize labels.KeyNormalizer
	// Validate checks the reserved label values against backend rules. Nil
	// accepts everything.
	Validate func(key, value string) error
}

func (RuntimeIdentityLabels) Name() string { return "runtime-identity-labels" }

func (p RuntimeIdentityLabels) Provision(env model.InternalEnvironment, id model.RuntimeIdentity) (model.InternalEnvironment, error) {
	for _, name := range env.MachineNames() {
		attrs := make(map[string]string)
		for k, v := range env.Machines[name].Attributes {
			if !consumedAttributes[k] {
				attrs[k] = v
			}
		}

		l := labels.New().
			Machine(name).
			Attributes(attrs).
			Runtime(id).
			KeyNormalizer(p.Normalize).
			Labels()

		if p.Validate != nil {
			for _, key := range labels.ReservedKeys() {
				if err := p.Validate(key, l[key]); err != nil {
					return env, machineError(p.Name(), name, err)
				}
			}
		}

		c := env.Containers[name]
		if c.Labels == nil {
			c.Labels = make(map[string]string, len(l))
		}
		for k, v := range l {
			c.Labels[k] = v
		}
		env.Containers[name] = c
	}
	return env, nil
}

// ExposureLabels attaches proxy routing labels for every public server, as
// computed by the exposure strategy. Internal servers get no route.
type ExposureLabels struct {
	Strategy exposure.Strategy
}

func (ExposureLabels) Name() string { return "exposure-labels" }

func (p ExposureLabels) Provision(env model.InternalEnvironment, id model.RuntimeIdentity) (model.InternalEnvironment, error) {
	if p.Strategy == nil {
		return env, &Error{Provisioner: p.Name(), Err: errors.New("no exposure strategy configured")}
	}
	for _, name := range env.MachineNames() {
		m := env.Machines[name]
		c := env.Containers[name]
		for _, serverName := range m.ServerNames() {
			server := m.Servers[serverName]
			if server.Internal() {
				continue
			}
			rule, err := p.Strategy.Rule(id, name, serverName, server)
			if err != nil {
				return env, serverError(p.Name(), name, serverName, err)
			}
			if c.Labels == nil {
				c.Labels = make(map[string]string)
			}
			for k, v := range exposure.TraefikLabels(rule) {
				c.Labels[k] = v
			}
		}
		env.Containers[name] = c
	}
	return env, nil
}
