package kube

import (
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // auth providers referenced by kubeconfig files
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClientsetFromConfig creates a clientset from a rest.Config.
// Exported to allow overriding in tests.
var NewClientsetFromConfig = func(c *rest.Config) (kubernetes.Interface, error) {
	return kubernetes.NewForConfig(c)
}

// NewDeferredLoadingClientConfig wraps clientcmd.NewNonInteractiveDeferredLoadingClientConfig
// so tests can replace kubeconfig loading.
var NewDeferredLoadingClientConfig = func(loader clientcmd.ClientConfigLoader, overrides *clientcmd.ConfigOverrides) clientcmd.ClientConfig {
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loader, overrides)
}

// NewClientset loads the kubeconfig context kubeContext (the current context
// if empty) and returns a clientset together with the context's namespace.
func NewClientset(kubeContext string) (kubernetes.Interface, string, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	overrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}
	clientConfig := NewDeferredLoadingClientConfig(loadingRules, overrides)

	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get REST config for context %q: %w", kubeContext, err)
	}
	restConfig.Timeout = 30 * time.Second

	namespace, _, err := clientConfig.Namespace()
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve namespace for context %q: %w", kubeContext, err)
	}

	clientset, err := NewClientsetFromConfig(restConfig)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create Kubernetes clientset for context %q: %w", kubeContext, err)
	}
	return clientset, namespace, nil
}
