package portforward

import (
	"context"
	"fmt"
	"time"

	"github.com/stackvista/es-tier-migrator/internal/k8s"
	"github.com/stackvista/es-tier-migrator/internal/logger"
)

// readyTimeout bounds the wait for the local listener
const readyTimeout = 30 * time.Second

// Conn is an established port-forward connection
type Conn struct {
	StopChan  chan struct{}
	LocalPort int
}

// Close stops the port-forward
func (c *Conn) Close() {
	close(c.StopChan)
}

// SetupPortForward establishes a port-forward to a Kubernetes service and waits for it to be ready.
// The caller is responsible for calling Close when done.
func SetupPortForward(
	ctx context.Context,
	k8sClient k8s.Interface,
	namespace string,
	serviceName string,
	localPort int,
	remotePort int,
	log *logger.Logger,
) (*Conn, error) {
	log.Infof("Setting up port-forward to %s:%d in namespace %s...", serviceName, remotePort, namespace)

	fwd, err := k8sClient.PortForwardService(ctx, namespace, serviceName, localPort, remotePort)
	if err != nil {
		return nil, fmt.Errorf("failed to setup port-forward: %w", err)
	}

	select {
	case <-fwd.Ready:
	case err := <-fwd.Done:
		close(fwd.Stop)
		if err == nil {
			return nil, fmt.Errorf("port-forward to %s ended before it was ready", serviceName)
		}
		return nil, fmt.Errorf("port-forward to %s failed: %w", serviceName, err)
	case <-ctx.Done():
		close(fwd.Stop)
		return nil, fmt.Errorf("port-forward to %s cancelled: %w", serviceName, ctx.Err())
	case <-time.After(readyTimeout):
		close(fwd.Stop)
		return nil, fmt.Errorf("port-forward to %s not ready after %s", serviceName, readyTimeout)
	}

	log.Successf("Port-forward established successfully")

	return &Conn{
		StopChan:  fwd.Stop,
		LocalPort: localPort,
	}, nil
}
