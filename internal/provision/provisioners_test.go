package provision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsruntime/internal/model"
	"wsruntime/internal/size"
)

func TestInstallerConfig_MachineWins(t *testing.T) {
	env := model.NewInternalEnvironment()
	env.Machines["m"] = model.InternalMachineConfig{
		Env: map[string]string{"FOO": "bar"},
		Installers: []model.Installer{{
			ID:         "agent",
			Properties: map[string]string{model.InstallerEnvProperty: "FOO=baz,BAZ=qux"},
		}},
	}

	out, err := InstallerConfig{}.Provision(env, testID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"FOO": "bar", "BAZ": "qux"}, out.Machines["m"].Env)
}

func TestInstallerConfig_LastInstallerWins(t *testing.T) {
	env := model.NewInternalEnvironment()
	env.Machines["m"] = model.InternalMachineConfig{
		Installers: []model.Installer{
			{ID: "first", Properties: map[string]string{model.InstallerEnvProperty: "SHARED=first,ONLY_FIRST=1"}},
			{ID: "second", Properties: map[string]string{model.InstallerEnvProperty: "SHARED=second"}},
		},
	}

	out, err := InstallerConfig{}.Provision(env, testID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"SHARED": "second", "ONLY_FIRST": "1"}, out.Machines["m"].Env)
}

func TestInstallerConfig_Servers(t *testing.T) {
	env := model.NewInternalEnvironment()
	env.Machines["m"] = model.InternalMachineConfig{
		Servers: map[string]model.ServerConfig{"exec": {Port: "9000"}},
		Installers: []model.Installer{{
			ID: "agent",
			Servers: map[string]model.ServerConfig{
				"exec":     {Port: "4412"},
				"terminal": {Port: "4411", Protocol: "ws"},
			},
		}},
	}

	out, err := InstallerConfig{}.Provision(env, testID)
	require.NoError(t, err)
	servers := out.Machines["m"].Servers
	assert.Equal(t, "9000", servers["exec"].Port)
	assert.Equal(t, "4411", servers["terminal"].Port)
}

func TestInstallerConfig_AbsentOrMalformedProperty(t *testing.T) {
	env := model.NewInternalEnvironment()
	env.Machines["m"] = model.InternalMachineConfig{
		Installers: []model.Installer{
			{ID: "absent"},
			{ID: "garbage", Properties: map[string]string{model.InstallerEnvProperty: "no pairs here"}},
		},
	}

	out, err := InstallerConfig{}.Provision(env, testID)
	require.NoError(t, err)
	assert.Empty(t, out.Machines["m"].Env)
}

func TestParseEnvProperty(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"A=1", map[string]string{"A": "1"}},
		{"A=1,B=2", map[string]string{"A": "1", "B": "2"}},
		{"URL=http://x?a=b", map[string]string{"URL": "http://x?a=b"}},
		{"A=,B", map[string]string{"A": ""}},
		{"=orphan,C=3", map[string]string{"C": "3"}},
		{"A=1,A=2", map[string]string{"A": "2"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseEnvProperty(tt.in), "input %q", tt.in)
	}
}

func TestMemoryLimit(t *testing.T) {
	env := model.NewInternalEnvironment()
	env.Machines["declared"] = model.InternalMachineConfig{Attributes: map[string]string{model.AttrMemoryLimit: "129e+6"}}
	env.Containers["declared"] = model.ContainerConfig{}
	env.Machines["default"] = model.InternalMachineConfig{}
	env.Containers["default"] = model.ContainerConfig{}
	env.Machines["preset"] = model.InternalMachineConfig{}
	env.Containers["preset"] = model.ContainerConfig{MemoryLimit: 42}

	out, err := MemoryLimit{Default: 512}.Provision(env, testID)
	require.NoError(t, err)
	assert.Equal(t, int64(129000000), out.Containers["declared"].MemoryLimit)
	assert.Equal(t, int64(512), out.Containers["default"].MemoryLimit)
	assert.Equal(t, int64(42), out.Containers["preset"].MemoryLimit)
}

func TestMemoryLimit_Malformed(t *testing.T) {
	env := model.NewInternalEnvironment()
	env.Machines["m"] = model.InternalMachineConfig{Attributes: map[string]string{model.AttrMemoryLimit: "lots"}}
	env.Containers["m"] = model.ContainerConfig{}

	_, err := MemoryLimit{}.Provision(env, testID)
	require.Error(t, err)

	var serr *size.ParseError
	assert.True(t, errors.As(err, &serr))
	assert.Contains(t, err.Error(), model.AttrMemoryLimit)
	assert.Contains(t, err.Error(), `machine "m"`)
}

func TestServerPorts_InvalidPort(t *testing.T) {
	env := model.NewInternalEnvironment()
	env.Machines["m"] = model.InternalMachineConfig{Servers: map[string]model.ServerConfig{"web": {Port: "http"}}}
	env.Containers["m"] = model.ContainerConfig{}

	_, err := ServerPorts{}.Provision(env, testID)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "web", perr.Server)
	assert.Equal(t, "m", perr.Machine)
}

func TestVolumes(t *testing.T) {
	env := model.NewInternalEnvironment()
	env.Machines["m"] = model.InternalMachineConfig{Volumes: []model.Volume{{Name: "projects", Path: "/projects"}}}
	env.Containers["m"] = model.ContainerConfig{}

	out, err := Volumes{}.Provision(env, testID)
	require.NoError(t, err)
	assert.Equal(t, []model.Volume{{Name: "projects", Path: "/projects"}}, out.Containers["m"].Volumes)

	env.Machines["m"] = model.InternalMachineConfig{Volumes: []model.Volume{{Name: "projects", Path: "relative"}}}
	_, err = Volumes{}.Provision(env, testID)
	assert.Error(t, err)

	env.Machines["m"] = model.InternalMachineConfig{Volumes: []model.Volume{{Name: "a", Path: "/a"}, {Name: "a", Path: "/b"}}}
	_, err = Volumes{}.Provision(env, testID)
	assert.Error(t, err)
}

func TestRuntimeIdentityLabels_Normalizer(t *testing.T) {
	env := model.NewInternalEnvironment()
	env.Machines["m"] = model.InternalMachineConfig{Attributes: map[string]string{"Some Key": "v", "drop": "x"}}
	env.Containers["m"] = model.ContainerConfig{Labels: map[string]string{"preexisting": "yes"}}

	p := RuntimeIdentityLabels{Normalize: func(k, v string) (string, string, bool) {
		if k == "drop" {
			return "", "", false
		}
		return "attr.example.com/some-key", v, true
	}}
	out, err := p.Provision(env, testID)
	require.NoError(t, err)

	l := out.Containers["m"].Labels
	assert.Equal(t, "v", l["attr.example.com/some-key"])
	assert.Equal(t, "yes", l["preexisting"])
	assert.NotContains(t, l, "drop")
	assert.Len(t, l, 6)
}

func TestExposureLabels_RequiresStrategy(t *testing.T) {
	_, err := ExposureLabels{}.Provision(newTestEnvironment(), testID)
	assert.Error(t, err)
}
