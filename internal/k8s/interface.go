package k8s

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
)

// Interface defines the contract for Kubernetes client operations
// This interface allows for easy mocking in tests
type Interface interface {
	// Clientset returns the underlying Kubernetes clientset, used for config loading
	Clientset() kubernetes.Interface

	FindRunningPod(ctx context.Context, namespace, serviceName string) (*corev1.Pod, error)
	PortForwardService(ctx context.Context, namespace, serviceName string, localPort, remotePort int) (*Forward, error)
}

// Ensure *Client implements Interface
var _ Interface = (*Client)(nil)
