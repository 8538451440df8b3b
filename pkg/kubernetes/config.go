// Package kubernetes builds Kubernetes clients and publishes game mode configs to a cluster.
package kubernetes

import (
	"fmt"

	apiextensionsclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewRestConfig builds a client config from the kubeconfig at path. An empty path uses the
// default loading rules (KUBECONFIG, then ~/.kube/config), falling back to the in-cluster config.
func NewRestConfig(kubeconfig string) (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err == nil {
		return config, nil
	}
	if kubeconfig != "" {
		return nil, fmt.Errorf("failed to load kubeconfig %s: %w", kubeconfig, err)
	}

	config, inClusterErr := rest.InClusterConfig()
	if inClusterErr != nil {
		return nil, fmt.Errorf("no kubeconfig found (%v) and not running in a cluster: %w", err, inClusterErr)
	}
	return config, nil
}

// Clients groups the Kubernetes clients used by live config.
type Clients struct {
	Clientset     kubernetes.Interface
	Dynamic       dynamic.Interface
	APIExtensions apiextensionsclientset.Interface
}

// NewClients creates every client from one rest config.
func NewClients(config *rest.Config) (*Clients, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	apiextensionsClient, err := apiextensionsclientset.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create apiextensions client: %w", err)
	}

	return &Clients{
		Clientset:     clientset,
		Dynamic:       dynamicClient,
		APIExtensions: apiextensionsClient,
	}, nil
}
