package config

import (
	"errors"
	"fmt"

	"wsruntime/internal/exposure"
	"wsruntime/internal/size"
)

// Infrastructure names.
const (
	InfrastructureDocker     = "docker"
	InfrastructureKubernetes = "kubernetes"
)

// WsctlConfig is the top-level configuration structure for wsctl.
type WsctlConfig struct {
	// Infrastructure selects the backend runtimes are started on.
	Infrastructure string           `yaml:"infrastructure,omitempty"`
	Exposure       ExposureConfig   `yaml:"exposure"`
	Kubernetes     KubernetesConfig `yaml:"kubernetes"`
	Docker         DockerConfig     `yaml:"docker"`
	Defaults       DefaultsConfig   `yaml:"defaults"`
}

// ExposureConfig selects how public servers are made reachable.
type ExposureConfig struct {
	Strategy string `yaml:"strategy,omitempty"` // "multi-host" or "single-port"
	Domain   string `yaml:"domain,omitempty"`   // wildcard domain for multi-host
	Host     string `yaml:"host,omitempty"`     // shared host for single-port
	Port     int    `yaml:"port,omitempty"`     // external port of the ingress or proxy
	Protocol string `yaml:"protocol,omitempty"` // "http" or "https"
}

// KubernetesConfig configures the cluster backend.
type KubernetesConfig struct {
	Context      string `yaml:"context,omitempty"` // kubeconfig context, empty for current
	Namespace    string `yaml:"namespace,omitempty"`
	IngressClass string `yaml:"ingressClass,omitempty"`
}

// DockerConfig configures the engine backend.
type DockerConfig struct {
	Host    string `yaml:"host,omitempty"` // engine address, empty for DOCKER_HOST or socket discovery
	Network string `yaml:"network,omitempty"`
}

// DefaultsConfig holds values applied to machines that do not set them.
type DefaultsConfig struct {
	MemoryLimit string `yaml:"memoryLimit,omitempty"`
}

// ExposureSettings converts the exposure section for the exposure package.
func (c WsctlConfig) ExposureSettings() exposure.Config {
	return exposure.Config{
		Domain:   c.Exposure.Domain,
		Host:     c.Exposure.Host,
		Port:     c.Exposure.Port,
		Protocol: c.Exposure.Protocol,
	}
}

// MemoryLimitBytes parses the default memory limit. An empty value means no
// limit.
func (c WsctlConfig) MemoryLimitBytes() (int64, error) {
	if c.Defaults.MemoryLimit == "" {
		return 0, nil
	}
	return size.ParseMemory(c.Defaults.MemoryLimit)
}

// Validate reports every invalid setting.
func (c WsctlConfig) Validate() error {
	var errs []error

	switch c.Infrastructure {
	case InfrastructureDocker, InfrastructureKubernetes:
	default:
		errs = append(errs, fmt.Errorf("unknown infrastructure %q", c.Infrastructure))
	}

	if _, err := exposure.New(c.Exposure.Strategy, c.ExposureSettings()); err != nil {
		errs = append(errs, fmt.Errorf("exposure: %w", err))
	}
	if c.Exposure.Port < 0 || c.Exposure.Port > 65535 {
		errs = append(errs, fmt.Errorf("exposure: invalid port %d", c.Exposure.Port))
	}

	if _, err := c.MemoryLimitBytes(); err != nil {
		errs = append(errs, fmt.Errorf("defaults.memoryLimit: %w", err))
	}

	return errors.Join(errs...)
}
