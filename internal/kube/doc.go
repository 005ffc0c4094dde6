// Package kube runs workspace runtimes on a Kubernetes cluster.
//
// Every machine becomes one Pod and one Service in the configured namespace.
// Each public server additionally gets an Ingress whose host and path come
// from the exposure strategy. All objects carry the reserved identity labels,
// so that a runtime can be listed and torn down by workspace id alone.
//
// Label keys and values must satisfy the API server's syntax rules. Machine
// attributes that cannot be expressed as labels are dropped by
// NormalizeLabel; the raw runtime identity and the declared servers are kept
// as Pod annotations instead, where the syntax is unrestricted.
//
// When the runtime is read back, server URLs are reconstructed from the
// Ingress objects with FindRouteForServicePort rather than recomputed, so the
// reported URL is always the one the cluster serves.
package kube
