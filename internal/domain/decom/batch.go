package decom

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BatchState represents the lifecycle state of a batch run. Discovery gates
// entry into Ready; Stop, Clean, and Delete are operator-triggered
// independently from Ready and return the batch to Ready when they drain.
type BatchState string

const (
	// BatchStateIdle indicates a batch has been created but not discovered.
	BatchStateIdle BatchState = "IDLE"

	// BatchStateDiscovering indicates discovery is in flight.
	BatchStateDiscovering BatchState = "DISCOVERING"

	// BatchStateReady indicates at least one target succeeded discovery and
	// phases may be triggered.
	BatchStateReady BatchState = "READY"

	// BatchStateStopping indicates the stop phase is in flight.
	BatchStateStopping BatchState = "STOPPING"

	// BatchStateCleaning indicates a cleanup phase is in flight.
	BatchStateCleaning BatchState = "CLEANING"

	// BatchStateDeleting indicates the deletion phase is in flight.
	BatchStateDeleting BatchState = "DELETING"
)

// String returns the string representation of the BatchState.
func (s BatchState) String() string { return string(s) }

// ValidateTransition checks if a state transition is valid and returns an
// error if not.
func (s BatchState) ValidateTransition(target BatchState) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid batch state transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition enforces the batch lifecycle rules. Phases are strictly
// sequential: a running phase must drain back to Ready before another may
// start.
func (s BatchState) isValidTransition(target BatchState) bool {
	switch s {
	case BatchStateIdle:
		return target == BatchStateDiscovering
	case BatchStateDiscovering:
		// Discovery either promotes the batch or leaves it idle when no
		// target was found anywhere.
		return target == BatchStateReady || target == BatchStateIdle
	case BatchStateReady:
		return target == BatchStateDiscovering ||
			target == BatchStateStopping ||
			target == BatchStateCleaning ||
			target == BatchStateDeleting
	case BatchStateStopping, BatchStateCleaning, BatchStateDeleting:
		return target == BatchStateReady
	default:
		return false
	}
}

// RunningState returns the batch state that represents the given phase being
// in flight.
func RunningState(phase Phase) BatchState {
	switch {
	case phase == PhaseDiscover:
		return BatchStateDiscovering
	case phase == PhaseStop:
		return BatchStateStopping
	case phase == PhaseDeleteVM:
		return BatchStateDeleting
	case phase.IsClean():
		return BatchStateCleaning
	default:
		return BatchStateIdle
	}
}

// ErrNoTargets is returned when a batch is created without any usable
// target names.
var ErrNoTargets = errors.New("batch requires at least one target")

// BatchRun is the in-memory set of target states for one invocation. It is
// owned exclusively by the orchestrator and discarded at process end; there
// is no persistence across restarts.
type BatchRun struct {
	id             uuid.UUID
	operator       string
	classification Classification
	targets        []*TargetState
	index          map[string]*TargetState
	state          BatchState
	timeline       *Timeline
}

// NewBatchRun creates a batch run for the given target names. Names are
// deduplicated case-insensitively with the order of first occurrence
// preserved; blank entries are dropped. The classification applies to every
// target in the batch.
func NewBatchRun(operator string, names []string, classification Classification, tp TimeProvider) (*BatchRun, error) {
	if tp == nil {
		tp = DefaultTimeProvider()
	}

	b := &BatchRun{
		id:             uuid.New(),
		operator:       operator,
		classification: classification,
		index:          make(map[string]*TargetState, len(names)),
		state:          BatchStateIdle,
		timeline:       NewTimeline(tp),
	}

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, exists := b.index[key]; exists {
			continue
		}
		target := NewTargetState(name, classification)
		b.targets = append(b.targets, target)
		b.index[key] = target
	}

	if len(b.targets) == 0 {
		return nil, ErrNoTargets
	}
	return b, nil
}

// ID returns the unique identifier for this batch run.
func (b *BatchRun) ID() uuid.UUID { return b.id }

// Operator returns the name of the operator driving the run.
func (b *BatchRun) Operator() string { return b.operator }

// Classification returns the batch-wide target classification.
func (b *BatchRun) Classification() Classification { return b.classification }

// State returns the current batch lifecycle state.
func (b *BatchRun) State() BatchState { return b.state }

// SetState transitions the batch to the target state, enforcing the
// lifecycle rules.
func (b *BatchRun) SetState(target BatchState) error {
	if err := b.state.ValidateTransition(target); err != nil {
		return err
	}
	b.state = target
	b.timeline.UpdateLastUpdate()
	return nil
}

// Targets returns the batch's targets in first-occurrence order. The slice
// is a copy; the pointed-to states are the live records.
func (b *BatchRun) Targets() []*TargetState {
	out := make([]*TargetState, len(b.targets))
	copy(out, b.targets)
	return out
}

// Target looks up a target by name, case-insensitively.
func (b *BatchRun) Target(name string) (*TargetState, bool) {
	t, ok := b.index[strings.ToLower(name)]
	return t, ok
}

// EligibleTargets returns the targets currently permitted to receive further
// phase actions, in batch order.
func (b *BatchRun) EligibleTargets() []*TargetState {
	var out []*TargetState
	for _, t := range b.targets {
		if t.Eligible() {
			out = append(out, t)
		}
	}
	return out
}

// HasDiscoveredTarget reports whether at least one target succeeded
// discovery. Discovery promotes the batch to Ready only when this holds.
func (b *BatchRun) HasDiscoveredTarget() bool {
	for _, t := range b.targets {
		if t.Eligible() {
			return true
		}
	}
	return false
}

// Timeline returns the batch run timeline.
func (b *BatchRun) Timeline() *Timeline { return b.timeline }
