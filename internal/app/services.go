package app

import (
	"fmt"
	"io"

	"wsruntime/internal/config"
	"wsruntime/internal/docker"
	"wsruntime/internal/exposure"
	"wsruntime/internal/kube"
	"wsruntime/internal/runtime"
	"wsruntime/pkg/logging"

	"k8s.io/client-go/kubernetes"
)

// Backend constructors, replaced in tests.
var (
	newKubeClientset = kube.NewClientset
	newDockerAPI     = func(host string) (docker.API, io.Closer, error) {
		c, err := docker.NewClient(host)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	}
)

// Services holds the initialized backend and the orchestrator driving it
type Services struct {
	Strategy       exposure.Strategy
	Infrastructure runtime.Infrastructure
	Orchestrator   *runtime.Orchestrator

	closer io.Closer
}

// InitializeServices builds the exposure strategy, the infrastructure backend
// and the orchestrator described by cfg.
func InitializeServices(cfg config.WsctlConfig) (*Services, error) {
	strategy, err := exposure.New(cfg.Exposure.Strategy, cfg.ExposureSettings())
	if err != nil {
		return nil, fmt.Errorf("exposure: %w", err)
	}

	memoryLimit, err := cfg.MemoryLimitBytes()
	if err != nil {
		return nil, fmt.Errorf("defaults.memoryLimit: %w", err)
	}

	s := &Services{Strategy: strategy}

	switch cfg.Infrastructure {
	case config.InfrastructureKubernetes:
		var client kubernetes.Interface
		var namespace string
		client, namespace, err = newKubeClientset(cfg.Kubernetes.Context)
		if err != nil {
			return nil, err
		}
		if cfg.Kubernetes.Namespace != "" {
			namespace = cfg.Kubernetes.Namespace
		}
		s.Infrastructure = kube.New(client, strategy, kube.Options{
			Namespace:    namespace,
			IngressClass: cfg.Kubernetes.IngressClass,
			MemoryLimit:  memoryLimit,
		})
		logging.Debug("Bootstrap", "Using namespace %s with %s exposure", namespace, strategy.Name())

	case config.InfrastructureDocker:
		var api docker.API
		api, s.closer, err = newDockerAPI(cfg.Docker.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to create Docker client: %w", err)
		}
		s.Infrastructure = docker.New(api, strategy, docker.Options{
			Network:     cfg.Docker.Network,
			MemoryLimit: memoryLimit,
		})
		logging.Debug("Bootstrap", "Using Docker network %s with %s exposure", cfg.Docker.Network, strategy.Name())

	default:
		return nil, fmt.Errorf("unknown infrastructure %q", cfg.Infrastructure)
	}

	s.Orchestrator = runtime.New(s.Infrastructure)
	return s, nil
}
