package decom

import (
	"context"
	"time"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// CleanDNSAction removes the target's forward A record from the configured
// zone. Unlike the other cleanup actions, DNS removal has no "already
// absent is fine" exception: a not-found or failed removal is reported as a
// failure so stale-record problems stay visible to operators.
type CleanDNSAction struct {
	dns     domain.DnsService
	zone    string
	timeout time.Duration
	out     outcomes
	logger  *logger.Logger
}

// NewCleanDNSAction creates the DNS cleanup action.
func NewCleanDNSAction(
	dns domain.DnsService,
	zone string,
	timeout time.Duration,
	clock domain.TimeProvider,
	log *logger.Logger,
) *CleanDNSAction {
	return &CleanDNSAction{
		dns:     dns,
		zone:    zone,
		timeout: timeout,
		out:     outcomes{phase: domain.PhaseCleanDNS, clock: clock},
		logger:  log.With("component", "clean_dns_action"),
	}
}

// Phase implements PhaseAction.
func (a *CleanDNSAction) Phase() domain.Phase { return domain.PhaseCleanDNS }

// Execute removes the A record.
func (a *CleanDNSAction) Execute(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
	callCtx, cancel := callTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.dns.RemoveARecord(callCtx, a.zone, target.Name()); err != nil {
		return a.out.failure(describeErr("dns record removal", err))
	}

	a.logger.Info(ctx, "dns record removed", "target", target.Name(), "zone", a.zone)
	return a.out.success("a record removed")
}
