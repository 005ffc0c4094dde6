package kube

import (
	"encoding/json"
	"fmt"

	"wsruntime/internal/labels"
	"wsruntime/internal/model"
)

// AnnotationServers holds the machine's declared servers as JSON.
const AnnotationServers = "wsruntime.io/servers"

// ServerAnnotations records what labels cannot carry: the raw runtime
// identity and the declared servers, which are needed to rebuild server URLs
// when the runtime is read back.
type ServerAnnotations struct{}

func (ServerAnnotations) Name() string { return "server-annotations" }

func (p ServerAnnotations) Provision(env model.InternalEnvironment, id model.RuntimeIdentity) (model.InternalEnvironment, error) {
	for _, name := range env.MachineNames() {
		c := env.Containers[name]
		if c.Annotations == nil {
			c.Annotations = make(map[string]string)
		}
		c.Annotations[labels.WorkspaceID] = id.WorkspaceID
		c.Annotations[labels.Environment] = id.EnvName
		c.Annotations[labels.Owner] = id.OwnerID
		c.Annotations[labels.Machine] = name

		servers := env.Machines[name].Servers
		if len(servers) > 0 {
			data, err := json.Marshal(servers)
			if err != nil {
				return env, fmt.Errorf("machine %q: failed to encode servers: %w", name, err)
			}
			c.Annotations[AnnotationServers] = string(data)
		}
		env.Containers[name] = c
	}
	return env, nil
}

func decodeServers(annotations map[string]string) (map[string]model.ServerConfig, error) {
	raw, ok := annotations[AnnotationServers]
	if !ok {
		return nil, nil
	}
	var servers map[string]model.ServerConfig
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		return nil, fmt.Errorf("invalid %s annotation: %w", AnnotationServers, err)
	}
	return servers, nil
}
