// Package k8s provides the Kubernetes access the migrator needs when the
// cluster runs in Kubernetes: clientset construction, service to pod
// resolution and port-forwarding.
package k8s

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

// Client wraps the Kubernetes clientset
type Client struct {
	clientset  kubernetes.Interface
	restConfig *rest.Config
	debug      bool
}

// Clientset returns the underlying Kubernetes clientset
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}

// NewClient creates a new Kubernetes client from a kubeconfig file,
// ~/.kube/config when kubeconfigPath is empty
func NewClient(kubeconfigPath string, debug bool) (*Client, error) {
	if kubeconfigPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		kubeconfigPath = filepath.Join(home, ".kube", "config")
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return &Client{
		clientset:  clientset,
		restConfig: config,
		debug:      debug,
	}, nil
}

// NewTestClient wraps an existing clientset, typically a fake one.
// Port-forwarding is unavailable on such a client.
func NewTestClient(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset}
}

// FindRunningPod returns the first running pod selected by the service
func (c *Client) FindRunningPod(ctx context.Context, namespace, serviceName string) (*corev1.Pod, error) {
	svc, err := c.clientset.CoreV1().Services(namespace).Get(ctx, serviceName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	if len(svc.Spec.Selector) == 0 {
		return nil, fmt.Errorf("service %s has no pod selector", serviceName)
	}

	podList, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: metav1.FormatLabelSelector(&metav1.LabelSelector{
			MatchLabels: svc.Spec.Selector,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	if len(podList.Items) == 0 {
		return nil, fmt.Errorf("no pods found for service %s", serviceName)
	}

	for i := range podList.Items {
		if podList.Items[i].Status.Phase == corev1.PodRunning {
			return &podList.Items[i], nil
		}
	}

	return nil, fmt.Errorf("no running pods found for service %s", serviceName)
}

// Forward is a running port-forward
type Forward struct {
	// Stop ends the forward when closed
	Stop chan struct{}
	// Ready is closed once the local port listens
	Ready chan struct{}
	// Done receives the result of the forward once it ends, nil after Stop
	Done <-chan error
}

// PortForwardService forwards localPort to remotePort on a running pod of the service
func (c *Client) PortForwardService(ctx context.Context, namespace, serviceName string, localPort, remotePort int) (*Forward, error) {
	pod, err := c.FindRunningPod(ctx, namespace, serviceName)
	if err != nil {
		return nil, err
	}
	return c.PortForwardPod(namespace, pod.Name, localPort, remotePort)
}

// PortForwardPod creates a port-forward to a specific pod
func (c *Client) PortForwardPod(namespace, podName string, localPort, remotePort int) (*Forward, error) {
	if c.restConfig == nil {
		return nil, fmt.Errorf("port-forwarding requires a client built from a kubeconfig")
	}

	target, err := url.Parse(c.restConfig.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host: %w", err)
	}
	target.Path = fmt.Sprintf("/api/v1/namespaces/%s/pods/%s/portforward", namespace, podName)

	transport, upgrader, err := spdy.RoundTripperFor(c.restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create round tripper: %w", err)
	}

	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, target)

	stopChan := make(chan struct{}, 1)
	readyChan := make(chan struct{})

	// port-forward chatter only shows up in debug mode
	outWriter, errWriter := io.Discard, io.Discard
	if c.debug {
		outWriter, errWriter = os.Stderr, os.Stderr
	}

	ports := []string{fmt.Sprintf("%d:%d", localPort, remotePort)}
	fw, err := portforward.New(dialer, ports, stopChan, readyChan, outWriter, errWriter)
	if err != nil {
		return nil, fmt.Errorf("failed to create port forwarder: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		err := fw.ForwardPorts()
		if err != nil && c.debug {
			fmt.Fprintf(os.Stderr, "Port forward error: %v\n", err)
		}
		done <- err
	}()

	return &Forward{Stop: stopChan, Ready: readyChan, Done: done}, nil
}
