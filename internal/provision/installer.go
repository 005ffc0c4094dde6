package provision

import (
	"strings"

	"wsruntime/internal/model"
)

// InstallerConfig merges the environment variables and servers contributed by
// each machine's installers into the machine.
//
// The machine's own declarations win over installer contributions. Between
// installers of the same machine the later one in the list wins.
type InstallerConfig struct{}

func (InstallerConfig) Name() string { return "installer-config" }

func (InstallerConfig) Provision(env model.InternalEnvironment, _ model.RuntimeIdentity) (model.InternalEnvironment, error) {
	for _, name := range env.MachineNames() {
		m := env.Machines[name]

		contributedEnv := make(map[string]string)
		contributedServers := make(map[string]model.ServerConfig)
		for _, inst := range m.Installers {
			for k, v := range ParseEnvProperty(inst.Properties[model.InstallerEnvProperty]) {
				contributedEnv[k] = v
			}
			for serverName, s := range inst.Servers {
				contributedServers[serverName] = s.Clone()
			}
		}

		if len(contributedEnv) > 0 && m.Env == nil {
			m.Env = make(map[string]string, len(contributedEnv))
		}
		for k, v := range contributedEnv {
			if _, declared := m.Env[k]; !declared {
				m.Env[k] = v
			}
		}

		if len(contributedServers) > 0 && m.Servers == nil {
			m.Servers = make(map[string]model.ServerConfig, len(contributedServers))
		}
		for serverName, s := range contributedServers {
			if _, declared := m.Servers[serverName]; !declared {
				m.Servers[serverName] = s
			}
		}

		env.Machines[name] = m
	}
	return env, nil
}

// ParseEnvProperty decodes "key1=value1,key2=value2". Values may contain '='
// but not ','. Pairs without '=' or with an empty key are ignored; an empty
// or absent property contributes nothing.
func ParseEnvProperty(s string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return out
	}
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		out[key] = value
	}
	return out
}
