package kube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

func webService() corev1.Service {
	return corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "dev-ws1"},
		Spec: corev1.ServiceSpec{
			Ports: []corev1.ServicePort{
				{Name: "web", Port: 8080, TargetPort: intstr.FromInt32(8080)},
				{Name: "debug", Port: 5005},
			},
		},
	}
}

func ingressTo(name, service string, port networkingv1.ServiceBackendPort) networkingv1.Ingress {
	return networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{
				Host: name + ".example.com",
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path: "/",
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{Name: service, Port: port},
							},
						}},
					},
				},
			}},
		},
	}
}

func TestFindRouteForServicePort(t *testing.T) {
	tests := []struct {
		name     string
		routes   []networkingv1.Ingress
		port     int32
		wantName string
	}{
		{
			name:     "numeric backend port equals target port",
			routes:   []networkingv1.Ingress{ingressTo("by-number", "dev-ws1", networkingv1.ServiceBackendPort{Number: 8080})},
			port:     8080,
			wantName: "by-number",
		},
		{
			name:     "named backend port equals resolved port name",
			routes:   []networkingv1.Ingress{ingressTo("by-name", "dev-ws1", networkingv1.ServiceBackendPort{Name: "web"})},
			port:     8080,
			wantName: "by-name",
		},
		{
			name:   "name spelling the number does not match",
			routes: []networkingv1.Ingress{ingressTo("by-digits", "dev-ws1", networkingv1.ServiceBackendPort{Name: "8080"})},
			port:   8080,
		},
		{
			name:   "unrelated port",
			routes: []networkingv1.Ingress{ingressTo("other", "dev-ws1", networkingv1.ServiceBackendPort{Number: 666})},
			port:   8080,
		},
		{
			name:   "target port not exposed by the service",
			routes: []networkingv1.Ingress{ingressTo("by-number", "dev-ws1", networkingv1.ServiceBackendPort{Number: 666})},
			port:   666,
		},
		{
			name:     "unset target port defaults to service port",
			routes:   []networkingv1.Ingress{ingressTo("debug", "dev-ws1", networkingv1.ServiceBackendPort{Name: "debug"})},
			port:     5005,
			wantName: "debug",
		},
		{
			name:   "route to another service",
			routes: []networkingv1.Ingress{ingressTo("foreign", "db-ws1", networkingv1.ServiceBackendPort{Number: 8080})},
			port:   8080,
		},
		{
			name: "first match in input order wins",
			routes: []networkingv1.Ingress{
				ingressTo("miss", "dev-ws1", networkingv1.ServiceBackendPort{Number: 666}),
				ingressTo("first", "dev-ws1", networkingv1.ServiceBackendPort{Name: "web"}),
				ingressTo("second", "dev-ws1", networkingv1.ServiceBackendPort{Number: 8080}),
			},
			port:     8080,
			wantName: "first",
		},
		{
			name: "no routes",
			port: 8080,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindRouteForServicePort(tt.routes, webService(), tt.port)
			if tt.wantName == "" {
				assert.False(t, ok)
				assert.Nil(t, got)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantName, got.Name)
		})
	}
}

func TestFindRouteForServicePort_DefaultBackend(t *testing.T) {
	ing := networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Name: "default"},
		Spec: networkingv1.IngressSpec{
			DefaultBackend: &networkingv1.IngressBackend{
				Service: &networkingv1.IngressServiceBackend{
					Name: "dev-ws1",
					Port: networkingv1.ServiceBackendPort{Number: 8080},
				},
			},
		},
	}

	got, ok := FindRouteForServicePort([]networkingv1.Ingress{ing}, webService(), 8080)
	require.True(t, ok)
	assert.Equal(t, "default", got.Name)
}

func TestFindRouteForServicePort_ReturnsElementOfInput(t *testing.T) {
	routes := []networkingv1.Ingress{ingressTo("by-name", "dev-ws1", networkingv1.ServiceBackendPort{Name: "web"})}
	got, ok := FindRouteForServicePort(routes, webService(), 8080)
	require.True(t, ok)
	assert.Same(t, &routes[0], got)
}
