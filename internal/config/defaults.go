package config

import "wsruntime/internal/exposure"

// GetDefaultConfig returns the built-in configuration: a local Docker engine
// with every server on its own nip.io host.
func GetDefaultConfig() WsctlConfig {
	return WsctlConfig{
		Infrastructure: InfrastructureDocker,
		Exposure: ExposureConfig{
			Strategy: exposure.MultiHostName,
			Domain:   "127.0.0.1.nip.io",
			Host:     "localhost",
			Port:     80,
			Protocol: "http",
		},
		Docker: DockerConfig{
			Network: "wsruntime",
		},
		Defaults: DefaultsConfig{
			MemoryLimit: "1Gi",
		},
	}
}
