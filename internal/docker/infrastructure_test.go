package docker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsruntime/internal/exposure"
	"wsruntime/internal/labels"
	"wsruntime/internal/model"
	"wsruntime/internal/runtime"
)

type fakeContainer struct {
	name       string
	config     *container.Config
	hostConfig *container.HostConfig
	netConfig  *network.NetworkingConfig
	state      string
}

// fakeEngine keeps containers and networks in memory.
type fakeEngine struct {
	mu         sync.Mutex
	nextID     int
	containers map[string]*fakeContainer
	networks   map[string]network.CreateOptions
	startErr   map[string]error
	removed    []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		containers: make(map[string]*fakeContainer),
		networks:   make(map[string]network.CreateOptions),
		startErr:   make(map[string]error),
	}
}

func (f *fakeEngine) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig, netConfig *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("%064d", f.nextID)
	f.containers[id] = &fakeContainer{name: name, config: config, hostConfig: hostConfig, netConfig: netConfig, state: "created"}
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeEngine) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return errdefs.NotFound(errors.New("no such container"))
	}
	if err := f.startErr[c.name]; err != nil {
		return err
	}
	c.state = "running"
	return nil
}

func (f *fakeEngine) ContainerInspect(_ context.Context, id string) (types.ContainerJSON, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return types.ContainerJSON{}, errdefs.NotFound(errors.New("no such container"))
	}
	return types.ContainerJSON{ContainerJSONBase: &types.ContainerJSONBase{ID: id, Name: "/" + c.name, HostConfig: c.hostConfig}}, nil
}

func (f *fakeEngine) ContainerList(_ context.Context, options container.ListOptions) ([]types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Container
	for id, c := range f.containers {
		if !matchesLabels(c.config.Labels, options.Filters.Get("label")) {
			continue
		}
		out = append(out, types.Container{
			ID:     id,
			Names:  []string{"/" + c.name},
			Image:  c.config.Image,
			Labels: c.config.Labels,
			State:  c.state,
		})
	}
	return out, nil
}

func matchesLabels(l map[string]string, selectors []string) bool {
	for _, sel := range selectors {
		k, v, _ := strings.Cut(sel, "=")
		if l[k] != v {
			return false
		}
	}
	return true
}

func (f *fakeEngine) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return errdefs.NotFound(errors.New("no such container"))
	}
	f.removed = append(f.removed, c.name)
	delete(f.containers, id)
	return nil
}

func (f *fakeEngine) NetworkInspect(_ context.Context, name string, _ network.InspectOptions) (network.Inspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.networks[name]; !ok {
		return network.Inspect{}, errdefs.NotFound(fmt.Errorf("network %s not found", name))
	}
	return network.Inspect{Name: name}, nil
}

func (f *fakeEngine) NetworkCreate(_ context.Context, name string, options network.CreateOptions) (network.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks[name] = options
	return network.CreateResponse{ID: name}, nil
}

func (f *fakeEngine) byName(name string) *fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.containers {
		if c.name == name {
			return c
		}
	}
	return nil
}

var testID = model.RuntimeIdentity{WorkspaceID: "ws1", EnvName: "default", OwnerID: "owner1"}

func testEnvironment() model.InternalEnvironment {
	env := model.NewInternalEnvironment()
	env.Machines["dev"] = model.InternalMachineConfig{
		Attributes: map[string]string{
			model.AttrCommand:     `["/bin/sh", "-c"]`,
			model.AttrArgs:        `["sleep infinity"]`,
			model.AttrMemoryLimit: "512Mi",
		},
		Servers: map[string]model.ServerConfig{
			"ide":   {Port: "3100/tcp", Protocol: "http", Path: "/"},
			"debug": {Port: "5005", Attributes: map[string]string{model.ServerAttrInternal: "true"}},
		},
		Env:     map[string]string{"HOME": "/home/user", "EDITOR": "vi"},
		Volumes: []model.Volume{{Name: "projects", Path: "/projects"}},
	}
	env.Containers["dev"] = model.ContainerConfig{Image: "quay.io/example/dev"}
	env.Machines["db"] = model.InternalMachineConfig{
		Servers: map[string]model.ServerConfig{"postgres": {Port: "5432/tcp", Attributes: map[string]string{model.ServerAttrInternal: "true"}}},
	}
	env.Containers["db"] = model.ContainerConfig{Image: "postgres:16"}
	return env
}

func newTestInfrastructure(t *testing.T, engine *fakeEngine) *Infrastructure {
	t.Helper()
	strategy, err := exposure.New(exposure.SinglePortName, exposure.Config{Host: "localhost", Port: 8080})
	require.NoError(t, err)
	return New(engine, strategy, Options{MemoryLimit: 1 << 30})
}

func TestInfrastructure_CreateServersDelete(t *testing.T) {
	engine := newFakeEngine()
	d := newTestInfrastructure(t, engine)
	ctx := context.Background()

	env, err := d.Pipeline().Run(testEnvironment(), testID)
	require.NoError(t, err)

	refs, err := d.Create(ctx, testID, env)
	require.NoError(t, err)
	assert.Equal(t, []runtime.Ref{{Kind: "container", Name: "ws1-db"}, {Kind: "container", Name: "ws1-dev"}}, refs)
	assert.Contains(t, engine.networks, "wsruntime")

	dev := engine.byName("ws1-dev")
	require.NotNil(t, dev)
	assert.Equal(t, "running", dev.state)
	assert.Equal(t, []string{"/bin/sh", "-c"}, []string(dev.config.Entrypoint))
	assert.Equal(t, []string{"sleep infinity"}, []string(dev.config.Cmd))
	assert.Equal(t, []string{"EDITOR=vi", "HOME=/home/user"}, dev.config.Env)
	assert.Equal(t, int64(536870912), dev.hostConfig.Memory)
	assert.Equal(t, container.NetworkMode("wsruntime"), dev.hostConfig.NetworkMode)
	assert.Equal(t, "ws1-projects", dev.hostConfig.Mounts[0].Source)
	assert.Contains(t, dev.config.ExposedPorts, nat.Port("3100/tcp"))
	assert.Equal(t, "dev", dev.config.Labels[labels.Machine])
	assert.Equal(t, "Host(`localhost`) && PathPrefix(`/ws1/dev/ide`)", dev.config.Labels["traefik.http.routers.ide-dev-ws1.rule"])

	db := engine.byName("ws1-db")
	require.NotNil(t, db)
	assert.Nil(t, db.config.Entrypoint)
	assert.Equal(t, int64(1<<30), db.hostConfig.Memory)

	machines, err := d.Servers(ctx, testID)
	require.NoError(t, err)
	require.Len(t, machines, 2)
	assert.Equal(t, "db", machines[0].Name)
	assert.Equal(t, runtime.Server{Name: "postgres", Port: 5432, Internal: true, URL: "tcp://ws1-db:5432"}, machines[0].Servers["postgres"])

	assert.Equal(t, "dev", machines[1].Name)
	assert.Equal(t, "running", machines[1].Status)
	assert.Equal(t, int64(536870912), machines[1].MemoryLimit)
	assert.Equal(t, "http://localhost:8080/ws1/dev/ide/", machines[1].Servers["ide"].URL)
	assert.True(t, machines[1].Servers["debug"].Internal)

	other, err := d.Servers(ctx, model.RuntimeIdentity{WorkspaceID: "ws2"})
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, d.Delete(ctx, testID))
	assert.ElementsMatch(t, []string{"ws1-db", "ws1-dev"}, engine.removed)
	machines, err = d.Servers(ctx, testID)
	require.NoError(t, err)
	assert.Empty(t, machines)
}

func TestInfrastructure_MissingRoutingLabelsLeaveURLEmpty(t *testing.T) {
	engine := newFakeEngine()
	d := newTestInfrastructure(t, engine)
	ctx := context.Background()

	env, err := d.Pipeline().Run(testEnvironment(), testID)
	require.NoError(t, err)
	c := env.Containers["dev"]
	for k := range c.Labels {
		if strings.HasPrefix(k, "traefik.") {
			delete(c.Labels, k)
		}
	}
	env.Containers["dev"] = c

	_, err = d.Create(ctx, testID, env)
	require.NoError(t, err)

	machines, err := d.Servers(ctx, testID)
	require.NoError(t, err)
	assert.Empty(t, machines[1].Servers["ide"].URL)
}

func TestInfrastructure_StartFailureRemovesEverything(t *testing.T) {
	engine := newFakeEngine()
	engine.startErr["ws1-dev"] = errors.New("port is already allocated")
	d := newTestInfrastructure(t, engine)
	ctx := context.Background()

	env, err := d.Pipeline().Run(testEnvironment(), testID)
	require.NoError(t, err)

	_, err = d.Create(ctx, testID, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `machine "dev": start container`)
	assert.Empty(t, engine.containers)
}

func TestInfrastructure_ExistingNetworkIsReused(t *testing.T) {
	engine := newFakeEngine()
	engine.networks["shared"] = network.CreateOptions{Driver: "overlay"}
	strategy, err := exposure.New(exposure.MultiHostName, exposure.Config{Domain: "127.0.0.1.nip.io"})
	require.NoError(t, err)
	d := New(engine, strategy, Options{Network: "shared"})

	env, err := d.Pipeline().Run(testEnvironment(), testID)
	require.NoError(t, err)
	_, err = d.Create(context.Background(), testID, env)
	require.NoError(t, err)
	assert.Equal(t, "overlay", engine.networks["shared"].Driver)

	machines, err := d.Servers(context.Background(), testID)
	require.NoError(t, err)
	assert.Equal(t, "http://ide-dev-ws1.127.0.0.1.nip.io/", machines[1].Servers["ide"].URL)
}

func TestPipelineNames(t *testing.T) {
	d := newTestInfrastructure(t, newFakeEngine())
	assert.Equal(t, []string{
		"installer-config", "entrypoint", "memory-limit", "env-vars", "volumes",
		"server-ports", "runtime-identity-labels", "exposure-labels", "server-labels",
	}, d.Pipeline().Names())
}
