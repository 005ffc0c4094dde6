package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"golang.org/x/sync/errgroup"

	"wsruntime/internal/exposure"
	"wsruntime/internal/labels"
	"wsruntime/internal/model"
	"wsruntime/internal/provision"
	"wsruntime/internal/runtime"
	"wsruntime/pkg/logging"
)

const Name = "docker"

// LabelServers holds the machine's declared servers as JSON.
const LabelServers = "wsruntime.io/servers"

// Options configures the engine backend.
type Options struct {
	// Network is the bridge network shared by all machines and the proxy.
	Network string
	// MemoryLimit is applied to machines that declare none, in bytes.
	MemoryLimit int64
}

// Infrastructure creates and reads back runtimes on a Docker engine.
type Infrastructure struct {
	api      API
	strategy exposure.Strategy
	opts     Options
}

var _ runtime.Infrastructure = (*Infrastructure)(nil)

// New returns an engine backend. Routing labels are computed by strategy.
func New(api API, strategy exposure.Strategy, opts Options) *Infrastructure {
	if opts.Network == "" {
		opts.Network = "wsruntime"
	}
	return &Infrastructure{api: api, strategy: strategy, opts: opts}
}

func (d *Infrastructure) Name() string { return Name }

// Pipeline returns the provisioners for engine containers. Engine labels are
// free-form, so attributes are passed through unchanged.
func (d *Infrastructure) Pipeline() provision.Pipeline {
	return provision.NewPipeline(
		provision.InstallerConfig{},
		provision.EntryPoint{},
		provision.MemoryLimit{Default: d.opts.MemoryLimit},
		provision.EnvVars{},
		provision.Volumes{},
		provision.ServerPorts{},
		provision.RuntimeIdentityLabels{},
		provision.ExposureLabels{Strategy: d.strategy},
		ServerLabels{},
	)
}

// ServerLabels records the declared servers on the container so they can be
// listed when the runtime is read back.
type ServerLabels struct{}

func (ServerLabels) Name() string { return "server-labels" }

func (p ServerLabels) Provision(env model.InternalEnvironment, _ model.RuntimeIdentity) (model.InternalEnvironment, error) {
	for _, name := range env.MachineNames() {
		servers := env.Machines[name].Servers
		if len(servers) == 0 {
			continue
		}
		data, err := json.Marshal(servers)
		if err != nil {
			return env, fmt.Errorf("machine %q: failed to encode servers: %w", name, err)
		}
		c := env.Containers[name]
		if c.Labels == nil {
			c.Labels = make(map[string]string)
		}
		c.Labels[LabelServers] = string(data)
		env.Containers[name] = c
	}
	return env, nil
}

// Create starts one container per machine in parallel. If any machine fails,
// every container of the runtime is removed again.
func (d *Infrastructure) Create(ctx context.Context, id model.RuntimeIdentity, env model.InternalEnvironment) ([]runtime.Ref, error) {
	if err := d.ensureNetwork(ctx); err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		refs []runtime.Ref
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range env.MachineNames() {
		g.Go(func() error {
			ref, err := d.createMachine(gctx, id, name, env.Containers[name])
			if err != nil {
				return err
			}
			mu.Lock()
			refs = append(refs, ref)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logging.Error("Docker", err, "Failed to create runtime %s, cleaning up", id)
		if derr := d.Delete(context.WithoutCancel(ctx), id); derr != nil {
			logging.Error("Docker", derr, "Cleanup of runtime %s failed", id)
		}
		return nil, err
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func (d *Infrastructure) ensureNetwork(ctx context.Context) error {
	_, err := d.api.NetworkInspect(ctx, d.opts.Network, network.InspectOptions{})
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect network %s: %w", d.opts.Network, err)
	}
	if _, err := d.api.NetworkCreate(ctx, d.opts.Network, network.CreateOptions{Driver: "bridge"}); err != nil && !errdefs.IsConflict(err) {
		return fmt.Errorf("failed to create network %s: %w", d.opts.Network, err)
	}
	logging.Info("Docker", "Created network %s", d.opts.Network)
	return nil
}

func (d *Infrastructure) createMachine(ctx context.Context, id model.RuntimeIdentity, machine string, c model.ContainerConfig) (runtime.Ref, error) {
	name := containerName(id, machine)

	exposed := make(nat.PortSet, len(c.Ports))
	for _, p := range c.Ports {
		exposed[nat.Port(p)] = struct{}{}
	}

	config := &container.Config{
		Image:        c.Image,
		Entrypoint:   c.Command,
		Cmd:          c.Args,
		Env:          envSlice(c.Env),
		Labels:       c.Labels,
		ExposedPorts: exposed,
	}

	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(d.opts.Network),
		Resources:   container.Resources{Memory: c.MemoryLimit},
	}
	for _, v := range c.Volumes {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: exposure.DNSLabel(id.WorkspaceID, v.Name),
			Target: v.Path,
		})
	}

	netConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			d.opts.Network: {Aliases: []string{name}},
		},
	}

	resp, err := d.api.ContainerCreate(ctx, config, hostConfig, netConfig, nil, name)
	if err != nil {
		return runtime.Ref{}, fmt.Errorf("machine %q: create container: %w", machine, err)
	}
	if err := d.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return runtime.Ref{}, fmt.Errorf("machine %q: start container: %w", machine, err)
	}

	logging.Info("Docker", "Started container %s (%s) for machine %s", name, shortID(resp.ID), machine)
	return runtime.Ref{Kind: "container", Name: name}, nil
}

// Servers lists the runtime's containers and rebuilds their servers. Public
// URLs are recomputed with the exposure strategy and only reported if the
// container carries the matching routing labels.
func (d *Infrastructure) Servers(ctx context.Context, id model.RuntimeIdentity) ([]runtime.Machine, error) {
	containers, err := d.list(ctx, id)
	if err != nil {
		return nil, err
	}

	var machines []runtime.Machine
	for _, c := range containers {
		machine, _, ok := labels.Parse(c.Labels)
		if !ok {
			continue
		}

		var servers map[string]model.ServerConfig
		if raw, ok := c.Labels[LabelServers]; ok {
			if err := json.Unmarshal([]byte(raw), &servers); err != nil {
				return nil, fmt.Errorf("container %s: invalid %s label: %w", c.ID, LabelServers, err)
			}
		}

		m := runtime.Machine{
			Name:    machine,
			Image:   c.Image,
			Status:  c.State,
			Servers: make(map[string]runtime.Server, len(servers)),
		}
		if info, err := d.api.ContainerInspect(ctx, c.ID); err == nil && info.ContainerJSONBase != nil && info.HostConfig != nil {
			m.MemoryLimit = info.HostConfig.Memory
		}

		for serverName, cfg := range servers {
			port, err := cfg.PortNumber()
			if err != nil {
				logging.Warn("Docker", "Skipping server %s of machine %s: %v", serverName, machine, err)
				continue
			}
			s := runtime.Server{Name: serverName, Port: port, Protocol: cfg.Protocol, Internal: cfg.Internal()}
			if s.Internal {
				s.URL = fmt.Sprintf("%s://%s:%d", schemeOrTCP(cfg.Protocol), containerName(id, machine), port)
			} else if rule, err := d.strategy.Rule(id, machine, serverName, cfg); err == nil {
				if _, routed := c.Labels["traefik.http.routers."+rule.Name+".rule"]; routed {
					s.URL = d.strategy.URL(rule, cfg)
				}
			}
			m.Servers[serverName] = s
		}
		machines = append(machines, m)
	}

	sort.Slice(machines, func(i, j int) bool { return machines[i].Name < machines[j].Name })
	return machines, nil
}

// Delete force-removes every container of the runtime.
func (d *Infrastructure) Delete(ctx context.Context, id model.RuntimeIdentity) error {
	containers, err := d.list(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range containers {
		err := d.api.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
		if err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to remove container %s: %w", shortID(c.ID), err)
		}
	}
	logging.Info("Docker", "Removed %d container(s) of runtime %s", len(containers), id)
	return nil
}

func (d *Infrastructure) list(ctx context.Context, id model.RuntimeIdentity) ([]types.Container, error) {
	args := filters.NewArgs()
	for k, v := range labels.SelectWorkspace(id.WorkspaceID) {
		args.Add("label", k+"="+v)
	}
	list, err := d.api.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return list, nil
}

func containerName(id model.RuntimeIdentity, machine string) string {
	return exposure.DNSLabel(id.WorkspaceID, machine)
}

func envSlice(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func schemeOrTCP(protocol string) string {
	if protocol == "" {
		return "tcp"
	}
	return protocol
}
