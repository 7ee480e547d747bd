package k8s

import (
	"context"
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client wraps the Kubernetes client
type Client struct {
	clientset *kubernetes.Clientset
}

// NewClient creates a new Kubernetes client, using the in-cluster config when
// running inside a pod and the local kubeconfig otherwise.
func NewClient(inCluster bool, kubeConfigPath string) (*Client, error) {
	var config *rest.Config
	var err error

	if inCluster {
		config, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create in-cluster config: %w", err)
		}
	} else {
		if kubeConfigPath == "" {
			kubeConfigPath = clientcmd.RecommendedHomeFile
		}
		config, err = clientcmd.BuildConfigFromFlags("", kubeConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create kubeconfig: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create K8s clientset: %w", err)
	}

	return &Client{clientset: clientset}, nil
}

// GetClientset returns the underlying K8s clientset
func (c *Client) GetClientset() kubernetes.Interface {
	return c.clientset
}

// Ping verifies the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.clientset.Discovery().RESTClient().Get().AbsPath("/version").DoRaw(ctx)
	return err
}
