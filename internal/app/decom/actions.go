package decom

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/opsforge/mothball/internal/domain/decom"
)

// PhaseAction is a single unit of work: run one phase against one target.
// Implementations delegate to exactly one external collaborator and always
// return a structured outcome; they never panic through the worker pool.
type PhaseAction interface {
	// Phase returns the phase this action implements.
	Phase() domain.Phase

	// Execute runs the phase against the target. The returned outcome is
	// the only channel for reporting failure; errors never propagate out.
	Execute(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome
}

// BackendSet resolves hypervisor manager instances by their configured name.
type BackendSet map[string]domain.HypervisorManager

// NewBackendSet indexes the given managers by name.
func NewBackendSet(backends []domain.HypervisorManager) BackendSet {
	set := make(BackendSet, len(backends))
	for _, b := range backends {
		set[b.Name()] = b
	}
	return set
}

// Resolve returns the manager a BackendRef points at.
func (s BackendSet) Resolve(ref *domain.BackendRef) (domain.HypervisorManager, error) {
	if ref == nil {
		return nil, errors.New("no backend ref")
	}
	backend, ok := s[ref.Manager()]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", ref.Manager())
	}
	return backend, nil
}

// outcomes builds PhaseOutcomes with a shared clock so tests can pin time.
type outcomes struct {
	phase domain.Phase
	clock domain.TimeProvider
}

func (o outcomes) success(msg string) domain.PhaseOutcome {
	return domain.NewPhaseOutcome(o.phase, domain.OutcomeSuccess, msg, o.clock.Now())
}

func (o outcomes) failure(msg string) domain.PhaseOutcome {
	return domain.NewPhaseOutcome(o.phase, domain.OutcomeFailed, msg, o.clock.Now())
}

func (o outcomes) skip(msg string) domain.PhaseOutcome {
	return domain.NewPhaseOutcome(o.phase, domain.OutcomeSkipped, msg, o.clock.Now())
}

// callTimeout bounds one collaborator call so an unresponsive backend cannot
// stall the batch.
func callTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// describeErr renders a collaborator error for an outcome message, marking
// deadline errors so operators can tell a timeout from a hard failure.
func describeErr(op string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s timed out: %v", op, err)
	}
	return fmt.Sprintf("%s failed: %v", op, err)
}
