package model

import (
	"fmt"
	"sort"

	"github.com/docker/go-connections/nat"
)

// Machine attribute keys understood by the provisioners. Attributes are
// free-form; a missing key means "use the backend default".
const (
	AttrCommand     = "command"
	AttrArgs        = "args"
	AttrMemoryLimit = "memoryLimitBytes"
)

// ServerAttrInternal marks a server that must not be exposed publicly.
const ServerAttrInternal = "internal"

// InstallerEnvProperty is the installer property holding contributed
// environment variables as key1=value1,key2=value2.
const InstallerEnvProperty = "environment"

// ServerConfig declares a logical server of a machine.
type ServerConfig struct {
	// Port is the container port, optionally with a transport suffix: "8080/tcp".
	Port       string            `json:"port" yaml:"port"`
	Protocol   string            `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Path       string            `json:"path,omitempty" yaml:"path,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Internal reports whether the server is declared internal-only.
func (s ServerConfig) Internal() bool {
	return s.Attributes[ServerAttrInternal] == "true"
}

// NormalizedPort parses Port into a nat.Port, defaulting the transport to tcp.
func (s ServerConfig) NormalizedPort() (nat.Port, error) {
	proto, port := nat.SplitProtoPort(s.Port)
	n, err := nat.ParsePort(port)
	if err != nil {
		return "", fmt.Errorf("invalid server port %q: %w", s.Port, err)
	}
	if n <= 0 {
		return "", fmt.Errorf("invalid server port %q", s.Port)
	}
	return nat.NewPort(proto, port)
}

// PortNumber returns the numeric port with any transport suffix stripped.
func (s ServerConfig) PortNumber() (int, error) {
	p, err := s.NormalizedPort()
	if err != nil {
		return 0, err
	}
	return p.Int(), nil
}

// Clone returns a deep copy of the server config.
func (s ServerConfig) Clone() ServerConfig {
	s.Attributes = cloneStrings(s.Attributes)
	return s
}

// Installer is a declarative bundle attached to a machine that contributes
// environment variables and servers at provisioning time.
type Installer struct {
	ID         string                  `json:"id" yaml:"id"`
	Properties map[string]string       `json:"properties,omitempty" yaml:"properties,omitempty"`
	Servers    map[string]ServerConfig `json:"servers,omitempty" yaml:"servers,omitempty"`
}

// Clone returns a deep copy of the installer.
func (i Installer) Clone() Installer {
	i.Properties = cloneStrings(i.Properties)
	i.Servers = cloneServers(i.Servers)
	return i
}

// Volume is a named volume mounted into a machine.
type Volume struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// InternalMachineConfig is the declared configuration of one machine.
type InternalMachineConfig struct {
	Attributes map[string]string       `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Servers    map[string]ServerConfig `json:"servers,omitempty" yaml:"servers,omitempty"`
	Installers []Installer             `json:"installers,omitempty" yaml:"installers,omitempty"`
	Env        map[string]string       `json:"env,omitempty" yaml:"env,omitempty"`
	Volumes    []Volume                `json:"volumes,omitempty" yaml:"volumes,omitempty"`
}

// Clone returns a deep copy of the machine config.
func (m InternalMachineConfig) Clone() InternalMachineConfig {
	out := InternalMachineConfig{
		Attributes: cloneStrings(m.Attributes),
		Servers:    cloneServers(m.Servers),
		Env:        cloneStrings(m.Env),
	}
	if m.Installers != nil {
		out.Installers = make([]Installer, len(m.Installers))
		for i, inst := range m.Installers {
			out.Installers[i] = inst.Clone()
		}
	}
	if m.Volumes != nil {
		out.Volumes = append([]Volume(nil), m.Volumes...)
	}
	return out
}

// ServerNames returns the machine's server names in sorted order.
func (m InternalMachineConfig) ServerNames() []string {
	return sortedKeys(m.Servers)
}

// ContainerConfig is the backend-native recipe for one machine's container
// or pod.
type ContainerConfig struct {
	Image       string            `json:"image" yaml:"image"`
	Command     []string          `json:"command,omitempty" yaml:"command,omitempty"`
	Args        []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Labels      map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
	// MemoryLimit is in bytes; zero means no limit.
	MemoryLimit int64 `json:"memoryLimit,omitempty" yaml:"memoryLimit,omitempty"`
	// Ports holds normalized "port/proto" entries.
	Ports   []string `json:"ports,omitempty" yaml:"ports,omitempty"`
	Volumes []Volume `json:"volumes,omitempty" yaml:"volumes,omitempty"`
}

// Clone returns a deep copy of the container config.
func (c ContainerConfig) Clone() ContainerConfig {
	c.Command = cloneSlice(c.Command)
	c.Args = cloneSlice(c.Args)
	c.Env = cloneStrings(c.Env)
	c.Labels = cloneStrings(c.Labels)
	c.Annotations = cloneStrings(c.Annotations)
	c.Ports = cloneSlice(c.Ports)
	if c.Volumes != nil {
		c.Volumes = append([]Volume(nil), c.Volumes...)
	}
	return c
}

// InternalEnvironment is the in-memory form of a workspace environment before
// it is handed to an infrastructure client.
type InternalEnvironment struct {
	Machines   map[string]InternalMachineConfig `json:"machines" yaml:"machines"`
	Containers map[string]ContainerConfig       `json:"containers" yaml:"containers"`
}

// NewInternalEnvironment returns an empty environment with initialized maps.
func NewInternalEnvironment() InternalEnvironment {
	return InternalEnvironment{
		Machines:   make(map[string]InternalMachineConfig),
		Containers: make(map[string]ContainerConfig),
	}
}

// Clone returns a deep copy of the environment.
func (e InternalEnvironment) Clone() InternalEnvironment {
	out := InternalEnvironment{
		Machines:   make(map[string]InternalMachineConfig, len(e.Machines)),
		Containers: make(map[string]ContainerConfig, len(e.Containers)),
	}
	for name, m := range e.Machines {
		out.Machines[name] = m.Clone()
	}
	for name, c := range e.Containers {
		out.Containers[name] = c.Clone()
	}
	return out
}

// MachineNames returns machine names in sorted order so that provisioners
// and backends walk the environment deterministically.
func (e InternalEnvironment) MachineNames() []string {
	return sortedKeys(e.Machines)
}

// Validate checks that every machine has a container recipe with an image.
func (e InternalEnvironment) Validate() error {
	if len(e.Machines) == 0 {
		return fmt.Errorf("environment has no machines")
	}
	for _, name := range e.MachineNames() {
		c, ok := e.Containers[name]
		if !ok {
			return fmt.Errorf("machine %q has no container configuration", name)
		}
		if c.Image == "" {
			return fmt.Errorf("machine %q has no image", name)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneServers(m map[string]ServerConfig) map[string]ServerConfig {
	if m == nil {
		return nil
	}
	out := make(map[string]ServerConfig, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

func cloneSlice(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
