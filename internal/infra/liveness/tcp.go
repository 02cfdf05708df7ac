// Package liveness implements the reachability probe that gates cleanup
// phases. A machine that still answers on any probed port is considered in
// service and must not be cleaned.
package liveness

import (
	"context"
	"net"
	"time"

	"github.com/opsforge/mothball/pkg/common/logger"
)

// Default ports probed when none are configured: SSH, RPC, and RDP cover the
// common server estates.
var defaultPorts = []string{"22", "135", "3389"}

// TCPChecker probes a target by dialing a fixed set of TCP ports. The first
// successful connect marks the target reachable.
type TCPChecker struct {
	ports   []string
	timeout time.Duration
	dialer  *net.Dialer
	logger  *logger.Logger
}

// NewTCPChecker creates a TCPChecker probing the given ports. An empty port
// list falls back to the defaults.
func NewTCPChecker(ports []string, timeout time.Duration, log *logger.Logger) *TCPChecker {
	if len(ports) == 0 {
		ports = defaultPorts
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &TCPChecker{
		ports:   ports,
		timeout: timeout,
		dialer:  &net.Dialer{},
		logger:  log.With("component", "liveness_tcp"),
	}
}

// IsReachable implements decom.LivenessChecker. Each port gets a share of
// the probe budget; a refused or timed-out connect on every port means the
// target is treated as offline. Probe errors are deliberately not surfaced:
// an unreachable machine is the expected state here, not a fault.
func (c *TCPChecker) IsReachable(ctx context.Context, name string) bool {
	for _, port := range c.ports {
		dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
		conn, err := c.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(name, port))
		cancel()

		if err != nil {
			continue
		}
		conn.Close()
		c.logger.Debug(ctx, "target answered liveness probe", "target", name, "port", port)
		return true
	}
	return false
}
