package provision

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsruntime/internal/entrypoint"
	"wsruntime/internal/exposure"
	"wsruntime/internal/labels"
	"wsruntime/internal/model"
)

var testID = model.RuntimeIdentity{WorkspaceID: "ws1", EnvName: "default", OwnerID: "owner1"}

func newTestEnvironment() model.InternalEnvironment {
	env := model.NewInternalEnvironment()
	env.Machines["dev"] = model.InternalMachineConfig{
		Attributes: map[string]string{
			model.AttrCommand:     `["/bin/sh", "-c"]`,
			model.AttrArgs:        `["sleep infinity"]`,
			model.AttrMemoryLimit: "123Mi",
			"team":                "core",
		},
		Servers: map[string]model.ServerConfig{
			"ide":   {Port: "3100/tcp", Protocol: "http", Path: "/"},
			"debug": {Port: "5005", Attributes: map[string]string{model.ServerAttrInternal: "true"}},
		},
		Installers: []model.Installer{{
			ID:         "exec-agent",
			Properties: map[string]string{model.InstallerEnvProperty: "AGENT_PORT=4412"},
			Servers:    map[string]model.ServerConfig{"exec": {Port: "4412/tcp", Protocol: "http"}},
		}},
		Env: map[string]string{"HOME": "/home/user"},
	}
	env.Containers["dev"] = model.ContainerConfig{Image: "quay.io/example/dev"}
	env.Machines["db"] = model.InternalMachineConfig{}
	env.Containers["db"] = model.ContainerConfig{Image: "postgres:16"}
	return env
}

func dockerPipeline(t *testing.T) Pipeline {
	t.Helper()
	strategy, err := exposure.New(exposure.SinglePortName, exposure.Config{Host: "localhost"})
	require.NoError(t, err)
	return NewPipeline(
		InstallerConfig{},
		EntryPoint{},
		MemoryLimit{Default: 1 << 30},
		EnvVars{},
		Volumes{},
		ServerPorts{},
		RuntimeIdentityLabels{},
		ExposureLabels{Strategy: strategy},
	)
}

func TestPipeline_Run(t *testing.T) {
	env := newTestEnvironment()
	out, err := dockerPipeline(t).Run(env, testID)
	require.NoError(t, err)

	dev := out.Containers["dev"]
	assert.Equal(t, []string{"/bin/sh", "-c"}, dev.Command)
	assert.Equal(t, []string{"sleep infinity"}, dev.Args)
	assert.Equal(t, int64(128974848), dev.MemoryLimit)
	assert.Equal(t, map[string]string{"HOME": "/home/user", "AGENT_PORT": "4412"}, dev.Env)
	assert.Equal(t, []string{"3100/tcp", "4412/tcp", "5005/tcp"}, dev.Ports)

	assert.Equal(t, "dev", dev.Labels[labels.Machine])
	assert.Equal(t, "ws1", dev.Labels[labels.WorkspaceID])
	assert.Equal(t, "core", dev.Labels["team"])
	assert.NotContains(t, dev.Labels, model.AttrCommand)
	assert.Equal(t, "Host(`localhost`) && PathPrefix(`/ws1/dev/ide`)", dev.Labels["traefik.http.routers.ide-dev-ws1.rule"])
	assert.Equal(t, "Host(`localhost`) && PathPrefix(`/ws1/dev/exec`)", dev.Labels["traefik.http.routers.exec-dev-ws1.rule"])
	assert.NotContains(t, dev.Labels, "traefik.http.routers.debug-dev-ws1.rule")

	db := out.Containers["db"]
	assert.Equal(t, int64(1<<30), db.MemoryLimit)
	assert.Empty(t, db.Command)
	assert.Equal(t, "db", db.Labels[labels.Machine])

	// The input is never mutated.
	assert.Nil(t, env.Containers["dev"].Labels)
	assert.NotContains(t, env.Machines["dev"].Servers, "exec")
}

func TestPipeline_Names(t *testing.T) {
	assert.Equal(t, []string{
		"installer-config", "entrypoint", "memory-limit", "env-vars",
		"volumes", "server-ports", "runtime-identity-labels", "exposure-labels",
	}, dockerPipeline(t).Names())
}

func TestPipeline_InvalidIdentity(t *testing.T) {
	_, err := dockerPipeline(t).Run(newTestEnvironment(), model.RuntimeIdentity{})
	assert.ErrorIs(t, err, model.ErrMissingWorkspaceID)
}

func TestPipeline_MalformedEntryPoint(t *testing.T) {
	env := newTestEnvironment()
	env.Machines["dev"].Attributes[model.AttrCommand] = "not a list"

	out, err := dockerPipeline(t).Run(env, testID)
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "entrypoint", perr.Provisioner)
	assert.Equal(t, "dev", perr.Machine)

	var parseErr *entrypoint.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "command", parseErr.Attribute)
	assert.Contains(t, err.Error(), `machine "dev"`)

	// Nothing from earlier steps leaks into the returned environment.
	assert.NotContains(t, out.Machines["dev"].Env, "AGENT_PORT")
}

func TestPipeline_IdentityLabelFailureAppliesNothing(t *testing.T) {
	env := newTestEnvironment()
	env.Machines["A"] = model.InternalMachineConfig{}
	env.Containers["A"] = model.ContainerConfig{Image: "busybox"}

	failOnA := RuntimeIdentityLabels{
		Validate: func(key, value string) error {
			if key == labels.Machine && value == "A" {
				return fmt.Errorf("invalid machine label %q", value)
			}
			return nil
		},
	}

	out, err := NewPipeline(failOnA).Run(env, testID)
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "A", perr.Machine)
	for name, c := range out.Containers {
		assert.Nil(t, c.Labels, "machine %s must not be labeled", name)
	}
}

type failingProvisioner struct{}

func (failingProvisioner) Name() string { return "always-fails" }
func (failingProvisioner) Provision(env model.InternalEnvironment, _ model.RuntimeIdentity) (model.InternalEnvironment, error) {
	return env, errors.New("plain failure")
}

func TestPipeline_WrapsPlainErrors(t *testing.T) {
	_, err := NewPipeline(EnvVars{}, failingProvisioner{}).Run(newTestEnvironment(), testID)
	require.Error(t, err)
	assert.EqualError(t, err, `provisioner "always-fails" failed: plain failure`)
}

func TestPipeline_FillsMissingContainers(t *testing.T) {
	env := model.NewInternalEnvironment()
	env.Machines["lonely"] = model.InternalMachineConfig{Env: map[string]string{"A": "1"}}

	out, err := NewPipeline(EnvVars{}).Run(env, testID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1"}, out.Containers["lonely"].Env)
}
