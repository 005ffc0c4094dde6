package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// workspaceDefinition is the on-disk YAML shape of a workspace environment.
//
//	machines:
//	  dev:
//	    image: quay.io/example/dev:latest
//	    attributes:
//	      command: '["/bin/sh", "-c"]'
//	      args: '["tail -f /dev/null"]'
//	      memoryLimitBytes: 2Gi
//	    servers:
//	      ide: {port: "3100/tcp", protocol: http, path: /}
//	    installers:
//	      - id: exec-agent
//	        properties: {environment: "AGENT_PORT=4412"}
//	        servers:
//	          exec: {port: "4412/tcp", protocol: http}
//	    env: {HOME: /home/user}
type workspaceDefinition struct {
	Machines map[string]machineDefinition `yaml:"machines"`
}

type machineDefinition struct {
	Image                 string `yaml:"image"`
	InternalMachineConfig `yaml:",inline"`
}

// ParseEnvironment decodes a workspace definition into an InternalEnvironment.
// Only the image is copied into the container recipe; everything else is
// filled in by the provisioning pipeline.
func ParseEnvironment(data []byte) (InternalEnvironment, error) {
	var def workspaceDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return InternalEnvironment{}, fmt.Errorf("failed to parse workspace definition: %w", err)
	}

	env := NewInternalEnvironment()
	for name, m := range def.Machines {
		if name == "" {
			return InternalEnvironment{}, fmt.Errorf("workspace definition contains a machine without a name")
		}
		env.Machines[name] = m.InternalMachineConfig
		env.Containers[name] = ContainerConfig{Image: m.Image}
	}
	if err := env.Validate(); err != nil {
		return InternalEnvironment{}, err
	}
	return env, nil
}

// LoadEnvironment reads and parses a workspace definition file.
func LoadEnvironment(path string) (InternalEnvironment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return InternalEnvironment{}, fmt.Errorf("failed to read workspace definition %s: %w", path, err)
	}
	env, err := ParseEnvironment(data)
	if err != nil {
		return InternalEnvironment{}, fmt.Errorf("%s: %w", path, err)
	}
	return env, nil
}
