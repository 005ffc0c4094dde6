package kube

import (
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// FindRouteForServicePort returns the first Ingress in routes that sends
// traffic to svc on the port whose target is port.
//
// An Ingress backend may reference the service port by name or by number. A
// name is compared with the name of the service port that targets port; a
// number is compared with port itself. A name that merely spells the number
// does not match. Absence of a route is not an error: internal servers have
// none.
func FindRouteForServicePort(routes []networkingv1.Ingress, svc corev1.Service, port int32) (*networkingv1.Ingress, bool) {
	portName, ok := servicePortName(svc, port)
	if !ok {
		return nil, false
	}

	for i := range routes {
		for _, backend := range ingressBackends(&routes[i]) {
			if backend.Name != svc.Name {
				continue
			}
			if backend.Port.Name != "" {
				if backend.Port.Name == portName {
					return &routes[i], true
				}
				continue
			}
			if backend.Port.Number == port {
				return &routes[i], true
			}
		}
	}
	return nil, false
}

func servicePortName(svc corev1.Service, port int32) (string, bool) {
	for _, sp := range svc.Spec.Ports {
		if targetPort(sp) == port {
			return sp.Name, true
		}
	}
	return "", false
}

// targetPort resolves the numeric target of a service port. An unset target
// defaults to the service port; a named target cannot be resolved without
// the pod and yields 0.
func targetPort(sp corev1.ServicePort) int32 {
	switch {
	case sp.TargetPort.Type == intstr.String:
		return 0
	case sp.TargetPort.IntVal == 0:
		return sp.Port
	default:
		return sp.TargetPort.IntVal
	}
}

func ingressBackends(ing *networkingv1.Ingress) []networkingv1.IngressServiceBackend {
	var out []networkingv1.IngressServiceBackend
	if b := ing.Spec.DefaultBackend; b != nil && b.Service != nil {
		out = append(out, *b.Service)
	}
	for _, rule := range ing.Spec.Rules {
		if rule.HTTP == nil {
			continue
		}
		for _, p := range rule.HTTP.Paths {
			if p.Backend.Service != nil {
				out = append(out, *p.Backend.Service)
			}
		}
	}
	return out
}
