package kube

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/docker/go-connections/nat"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8slabels "k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"

	"wsruntime/internal/exposure"
	"wsruntime/internal/labels"
	"wsruntime/internal/model"
	"wsruntime/internal/provision"
	"wsruntime/internal/runtime"
	"wsruntime/pkg/logging"
)

const Name = "kubernetes"

const annotationServer = "wsruntime.io/server"

// Options configures the cluster backend.
type Options struct {
	Namespace string
	// IngressClass is set on every Ingress when not empty.
	IngressClass string
	// MemoryLimit is applied to machines that declare none, in bytes.
	MemoryLimit int64
}

// Infrastructure creates and reads back runtimes on a Kubernetes cluster.
type Infrastructure struct {
	client   kubernetes.Interface
	strategy exposure.Strategy
	opts     Options
}

var _ runtime.Infrastructure = (*Infrastructure)(nil)

// New returns a cluster backend using client. Ingress hosts and paths are
// computed by strategy.
func New(client kubernetes.Interface, strategy exposure.Strategy, opts Options) *Infrastructure {
	if opts.Namespace == "" {
		opts.Namespace = metav1.NamespaceDefault
	}
	return &Infrastructure{client: client, strategy: strategy, opts: opts}
}

func (k *Infrastructure) Name() string { return Name }

// Namespace is where the runtime's objects are created.
func (k *Infrastructure) Namespace() string { return k.opts.Namespace }

// Pipeline returns the provisioners for cluster objects. Routing is done by
// Ingress objects, so no routing labels are attached.
func (k *Infrastructure) Pipeline() provision.Pipeline {
	return provision.NewPipeline(
		provision.InstallerConfig{},
		provision.EntryPoint{},
		provision.MemoryLimit{Default: k.opts.MemoryLimit},
		provision.EnvVars{},
		provision.Volumes{},
		provision.ServerPorts{},
		provision.RuntimeIdentityLabels{Normalize: NormalizeLabel, Validate: ValidateLabel},
		ServerAnnotations{},
	)
}

// Create submits a Pod, a Service and the Ingresses of every machine in
// parallel. If any machine fails, everything created for the runtime is
// removed again.
func (k *Infrastructure) Create(ctx context.Context, id model.RuntimeIdentity, env model.InternalEnvironment) ([]runtime.Ref, error) {
	var (
		mu   sync.Mutex
		refs []runtime.Ref
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range env.MachineNames() {
		g.Go(func() error {
			created, err := k.createMachine(gctx, id, name, env.Machines[name], env.Containers[name])
			mu.Lock()
			refs = append(refs, created...)
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logging.Error("Kubernetes", err, "Failed to create runtime %s, cleaning up", id)
		if derr := k.Delete(context.WithoutCancel(ctx), id); derr != nil {
			logging.Error("Kubernetes", derr, "Cleanup of runtime %s failed", id)
		}
		return nil, err
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].Name < refs[j].Name
	})
	return refs, nil
}

func (k *Infrastructure) createMachine(ctx context.Context, id model.RuntimeIdentity, machine string, m model.InternalMachineConfig, c model.ContainerConfig) ([]runtime.Ref, error) {
	name := objectName(id, machine)
	ns := k.opts.Namespace
	var refs []runtime.Ref

	// A Service needs at least one port. Machines without servers get none,
	// and so no Ingress either.
	if len(c.Ports) == 0 {
		return k.createPod(ctx, machine, name, c, refs)
	}

	svc := buildService(name, c)
	if _, err := k.client.CoreV1().Services(ns).Create(ctx, svc, metav1.CreateOptions{}); err != nil {
		return refs, fmt.Errorf("machine %q: failed to create service %s: %w", machine, name, err)
	}
	refs = append(refs, runtime.Ref{Kind: "Service", Name: name})
	logging.Debug("Kubernetes", "Created service %s/%s", ns, name)

	for _, serverName := range m.ServerNames() {
		cfg := m.Servers[serverName]
		if cfg.Internal() {
			continue
		}
		ing, err := k.buildIngress(id, machine, serverName, cfg, svc)
		if err != nil {
			return refs, fmt.Errorf("machine %q server %q: %w", machine, serverName, err)
		}
		if _, err := k.client.NetworkingV1().Ingresses(ns).Create(ctx, ing, metav1.CreateOptions{}); err != nil {
			return refs, fmt.Errorf("machine %q: failed to create ingress %s: %w", machine, ing.Name, err)
		}
		refs = append(refs, runtime.Ref{Kind: "Ingress", Name: ing.Name})
		logging.Debug("Kubernetes", "Created ingress %s/%s", ns, ing.Name)
	}

	return k.createPod(ctx, machine, name, c, refs)
}

func (k *Infrastructure) createPod(ctx context.Context, machine, name string, c model.ContainerConfig, refs []runtime.Ref) ([]runtime.Ref, error) {
	ns := k.opts.Namespace
	pod := buildPod(name, machine, c)
	if _, err := k.client.CoreV1().Pods(ns).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return refs, fmt.Errorf("machine %q: failed to create pod %s: %w", machine, name, err)
	}
	refs = append(refs, runtime.Ref{Kind: "Pod", Name: name})
	logging.Info("Kubernetes", "Created pod %s/%s for machine %s", ns, name, machine)
	return refs, nil
}

// Servers lists the runtime's Pods, Services and Ingresses and rebuilds the
// machines and their server URLs from them.
func (k *Infrastructure) Servers(ctx context.Context, id model.RuntimeIdentity) ([]runtime.Machine, error) {
	opts := metav1.ListOptions{LabelSelector: workspaceSelector(id)}
	ns := k.opts.Namespace

	pods, err := k.client.CoreV1().Pods(ns).List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	services, err := k.client.CoreV1().Services(ns).List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	ingresses, err := k.client.NetworkingV1().Ingresses(ns).List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingresses: %w", err)
	}

	svcByMachine := make(map[string]corev1.Service, len(services.Items))
	for _, svc := range services.Items {
		if machine, _, ok := labels.Parse(svc.Labels); ok {
			svcByMachine[machine] = svc
		}
	}

	var machines []runtime.Machine
	for _, pod := range pods.Items {
		machine, _, ok := labels.Parse(pod.Labels)
		if !ok {
			continue
		}
		servers, err := decodeServers(pod.Annotations)
		if err != nil {
			return nil, fmt.Errorf("pod %s: %w", pod.Name, err)
		}

		m := runtime.Machine{
			Name:    machine,
			Status:  string(pod.Status.Phase),
			Servers: make(map[string]runtime.Server, len(servers)),
		}
		if len(pod.Spec.Containers) > 0 {
			container := pod.Spec.Containers[0]
			m.Image = container.Image
			if limit, ok := container.Resources.Limits[corev1.ResourceMemory]; ok {
				m.MemoryLimit = limit.Value()
			}
		}

		svc, hasService := svcByMachine[machine]
		for serverName, cfg := range servers {
			port, err := cfg.PortNumber()
			if err != nil {
				logging.Warn("Kubernetes", "Skipping server %s of machine %s: %v", serverName, machine, err)
				continue
			}
			s := runtime.Server{Name: serverName, Port: port, Protocol: cfg.Protocol, Internal: cfg.Internal()}
			switch {
			case !hasService:
			case s.Internal:
				s.URL = fmt.Sprintf("%s://%s:%d", schemeOrTCP(cfg.Protocol), svc.Name, port)
			default:
				if ing, ok := routeForServer(ingresses.Items, svc, machine, serverName, int32(port)); ok {
					s.URL = k.strategy.URL(ruleFromIngress(ing), cfg)
				}
			}
			m.Servers[serverName] = s
		}
		machines = append(machines, m)
	}

	sort.Slice(machines, func(i, j int) bool { return machines[i].Name < machines[j].Name })
	return machines, nil
}

// Delete removes the runtime's Ingresses, Services and Pods.
func (k *Infrastructure) Delete(ctx context.Context, id model.RuntimeIdentity) error {
	opts := metav1.ListOptions{LabelSelector: workspaceSelector(id)}
	ns := k.opts.Namespace

	ingresses, err := k.client.NetworkingV1().Ingresses(ns).List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list ingresses: %w", err)
	}
	for _, ing := range ingresses.Items {
		if err := ignoreNotFound(k.client.NetworkingV1().Ingresses(ns).Delete(ctx, ing.Name, metav1.DeleteOptions{})); err != nil {
			return fmt.Errorf("failed to delete ingress %s: %w", ing.Name, err)
		}
	}

	services, err := k.client.CoreV1().Services(ns).List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list services: %w", err)
	}
	for _, svc := range services.Items {
		if err := ignoreNotFound(k.client.CoreV1().Services(ns).Delete(ctx, svc.Name, metav1.DeleteOptions{})); err != nil {
			return fmt.Errorf("failed to delete service %s: %w", svc.Name, err)
		}
	}

	pods, err := k.client.CoreV1().Pods(ns).List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list pods: %w", err)
	}
	for _, pod := range pods.Items {
		if err := ignoreNotFound(k.client.CoreV1().Pods(ns).Delete(ctx, pod.Name, metav1.DeleteOptions{})); err != nil {
			return fmt.Errorf("failed to delete pod %s: %w", pod.Name, err)
		}
	}

	logging.Info("Kubernetes", "Deleted %d pod(s) of runtime %s", len(pods.Items), id)
	return nil
}

// routeForServer returns the Ingress created for the server. Servers sharing
// a container port each have their own Ingress, told apart by annotation.
// Ingresses without the annotation are matched by port alone.
func routeForServer(routes []networkingv1.Ingress, svc corev1.Service, machine, server string, port int32) (*networkingv1.Ingress, bool) {
	var annotated []networkingv1.Ingress
	for _, ing := range routes {
		if ing.Annotations[annotationServer] == server && ing.Annotations[labels.Machine] == machine {
			annotated = append(annotated, ing)
		}
	}
	if ing, ok := FindRouteForServicePort(annotated, svc, port); ok {
		return ing, true
	}

	var unannotated []networkingv1.Ingress
	for _, ing := range routes {
		if _, ok := ing.Annotations[annotationServer]; !ok {
			unannotated = append(unannotated, ing)
		}
	}
	return FindRouteForServicePort(unannotated, svc, port)
}

func (k *Infrastructure) buildIngress(id model.RuntimeIdentity, machine, server string, cfg model.ServerConfig, svc *corev1.Service) (*networkingv1.Ingress, error) {
	rule, err := k.strategy.Rule(id, machine, server, cfg)
	if err != nil {
		return nil, err
	}
	port, err := cfg.NormalizedPort()
	if err != nil {
		return nil, err
	}

	pathType := networkingv1.PathTypePrefix
	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:        rule.Name,
			Labels:      identityLabels(svc.Labels),
			Annotations: map[string]string{labels.Machine: machine, annotationServer: server},
		},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{
				Host: rule.Host,
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     rule.PathPrefix,
							PathType: &pathType,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: svc.Name,
									Port: networkingv1.ServiceBackendPort{Name: portName(port)},
								},
							},
						}},
					},
				},
			}},
		},
	}
	if k.opts.IngressClass != "" {
		class := k.opts.IngressClass
		ing.Spec.IngressClassName = &class
	}
	return ing, nil
}

func buildService(name string, c model.ContainerConfig) *corev1.Service {
	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: identityLabels(c.Labels)},
		Spec: corev1.ServiceSpec{
			Selector: identityLabels(c.Labels),
		},
	}
	for _, p := range c.Ports {
		port := nat.Port(p)
		svc.Spec.Ports = append(svc.Spec.Ports, corev1.ServicePort{
			Name:       portName(port),
			Protocol:   corev1.Protocol(strings.ToUpper(port.Proto())),
			Port:       int32(port.Int()),
			TargetPort: intstr.FromInt32(int32(port.Int())),
		})
	}
	return svc
}

func buildPod(name, machine string, c model.ContainerConfig) *corev1.Pod {
	container := corev1.Container{
		Name:    exposure.DNSLabel(machine),
		Image:   c.Image,
		Command: c.Command,
		Args:    c.Args,
	}

	envNames := make([]string, 0, len(c.Env))
	for k := range c.Env {
		envNames = append(envNames, k)
	}
	sort.Strings(envNames)
	for _, k := range envNames {
		container.Env = append(container.Env, corev1.EnvVar{Name: k, Value: c.Env[k]})
	}

	for _, p := range c.Ports {
		port := nat.Port(p)
		container.Ports = append(container.Ports, corev1.ContainerPort{
			Name:          portName(port),
			ContainerPort: int32(port.Int()),
			Protocol:      corev1.Protocol(strings.ToUpper(port.Proto())),
		})
	}

	if c.MemoryLimit > 0 {
		container.Resources.Limits = corev1.ResourceList{
			corev1.ResourceMemory: *resource.NewQuantity(c.MemoryLimit, resource.BinarySI),
		}
	}

	var volumes []corev1.Volume
	for _, v := range c.Volumes {
		volName := exposure.DNSLabel(v.Name)
		volumes = append(volumes, corev1.Volume{
			Name:         volName,
			VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
		})
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{Name: volName, MountPath: v.Path})
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Labels:      c.Labels,
			Annotations: c.Annotations,
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{container},
			Volumes:    volumes,
		},
	}
}

// ruleFromIngress recovers the exposure rule an Ingress was built from.
func ruleFromIngress(ing *networkingv1.Ingress) exposure.Rule {
	rule := exposure.Rule{Name: ing.Name, PathPrefix: "/"}
	if len(ing.Spec.Rules) == 0 {
		return rule
	}
	r := ing.Spec.Rules[0]
	rule.Host = r.Host
	if r.HTTP != nil && len(r.HTTP.Paths) > 0 && r.HTTP.Paths[0].Path != "" {
		rule.PathPrefix = r.HTTP.Paths[0].Path
	}
	return rule
}

// objectName names the Pod and Service of a machine.
func objectName(id model.RuntimeIdentity, machine string) string {
	return exposure.DNSLabel(machine, id.WorkspaceID)
}

// portName names a service port; it stays within the 15 character limit.
func portName(p nat.Port) string {
	return fmt.Sprintf("%s-%d", p.Proto(), p.Int())
}

func identityLabels(all map[string]string) map[string]string {
	out := make(map[string]string, 4)
	for _, key := range labels.ReservedKeys() {
		if v, ok := all[key]; ok {
			out[key] = v
		}
	}
	return out
}

func workspaceSelector(id model.RuntimeIdentity) string {
	return k8slabels.SelectorFromSet(labels.SelectWorkspace(id.WorkspaceID)).String()
}

func schemeOrTCP(protocol string) string {
	if protocol == "" {
		return "tcp"
	}
	return protocol
}

func ignoreNotFound(err error) error {
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}
