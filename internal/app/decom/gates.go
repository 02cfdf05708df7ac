package decom

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/opsforge/mothball/internal/config"
	domain "github.com/opsforge/mothball/internal/domain/decom"
)

// GateDecision is the result of one safety gate evaluation.
type GateDecision struct {
	Allowed bool
	Reason  string
}

func allow() GateDecision { return GateDecision{Allowed: true} }

func deny(reason string) GateDecision { return GateDecision{Reason: reason} }

// SafetyGate evaluates the pre-phase checks that can deny an entire phase or
// a single target. Batch-level gates run first; a batch denial means the
// phase runs for nobody and no target state is touched. Per-target gates
// only excuse individual targets.
type SafetyGate struct {
	tokens   config.ConfirmationTokens
	liveness domain.LivenessChecker
	timeout  time.Duration
}

// NewSafetyGate creates a SafetyGate using the configured confirmation
// tokens and liveness checker.
func NewSafetyGate(tokens config.ConfirmationTokens, liveness domain.LivenessChecker, timeout time.Duration) *SafetyGate {
	return &SafetyGate{tokens: tokens, liveness: liveness, timeout: timeout}
}

// BatchConfirmation checks the operator-supplied confirmation token for the
// phase. Clean and Delete each require an exact, case-sensitive match
// against their configured token; Delete deliberately uses a different,
// stronger token so a clean confirmation can never authorize a deletion.
func (g *SafetyGate) BatchConfirmation(phase domain.Phase, confirmation string) GateDecision {
	var expected string
	switch phase.Confirmation() {
	case domain.ConfirmationNone:
		return allow()
	case domain.ConfirmationClean:
		expected = g.tokens.Clean
	case domain.ConfirmationDelete:
		expected = g.tokens.Delete
	}

	if subtle.ConstantTimeCompare([]byte(confirmation), []byte(expected)) != 1 {
		return deny(fmt.Sprintf("confirmation token mismatch for phase %s", phase))
	}
	return allow()
}

// PhysicalProtection denies the deletion phase for physical targets. The
// orchestrator already excludes physical targets from deletion dispatch;
// this check must hold even when called directly because it is the last
// line of defense against destroying physical inventory.
func (g *SafetyGate) PhysicalProtection(target *domain.TargetState, phase domain.Phase) GateDecision {
	if phase == domain.PhaseDeleteVM && target.Classification() == domain.ClassificationPhysical {
		return deny(fmt.Sprintf("%s is physical hardware; deletion denied", target.Name()))
	}
	return allow()
}

// LivenessGate denies cleanup for a target that still responds to a
// reachability probe. A denial here is a skip, not a failure: cleanup must
// never run against a machine still in service.
func (g *SafetyGate) LivenessGate(ctx context.Context, target *domain.TargetState) GateDecision {
	probeCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.liveness.IsReachable(probeCtx, target.Name()) {
		return deny("still online")
	}
	return allow()
}
