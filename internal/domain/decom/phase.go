package decom

import (
	"errors"
	"fmt"
	"strings"
)

// Phase identifies one decommissioning step. Phases are fixed in name and
// order; this is deliberately not a general workflow engine.
type Phase string

const (
	// PhaseDiscover classifies targets and locates their owning backends.
	// It is read-only and always safe to re-run.
	PhaseDiscover Phase = "DISCOVER"

	// PhaseStop powers off virtual machines or issues a remote shutdown to
	// physical hosts.
	PhaseStop Phase = "STOP"

	// PhaseCleanDirectory removes the target's directory service entry.
	PhaseCleanDirectory Phase = "CLEAN_DIRECTORY"

	// PhaseCleanInventory removes the target from the configuration
	// management inventory.
	PhaseCleanInventory Phase = "CLEAN_INVENTORY"

	// PhaseCleanBroker removes the target's virtual desktop broker machine
	// object and its delivery group and catalog associations.
	PhaseCleanBroker Phase = "CLEAN_BROKER"

	// PhaseCleanDNS removes the target's forward A record.
	PhaseCleanDNS Phase = "CLEAN_DNS"

	// PhaseDeleteVM issues the irreversible backend deletion call for a
	// virtual machine.
	PhaseDeleteVM Phase = "DELETE_VM"
)

// ErrPhaseUnknown is returned when a phase string cannot be parsed.
var ErrPhaseUnknown = errors.New("phase unknown")

// phaseSequence defines the fixed ordering of phases within a run. The
// ordering is what PhaseOutcomes entries are sequenced by.
var phaseSequence = []Phase{
	PhaseDiscover,
	PhaseStop,
	PhaseCleanDirectory,
	PhaseCleanInventory,
	PhaseCleanBroker,
	PhaseCleanDNS,
	PhaseDeleteVM,
}

// String returns the string representation of the Phase.
func (p Phase) String() string { return string(p) }

// SequenceIndex returns the position of the phase within the fixed phase
// ordering, or -1 if the phase is unknown.
func (p Phase) SequenceIndex() int {
	for i, candidate := range phaseSequence {
		if p == candidate {
			return i
		}
	}
	return -1
}

// IsClean reports whether the phase is one of the logical cleanup phases.
func (p Phase) IsClean() bool {
	switch p {
	case PhaseCleanDirectory, PhaseCleanInventory, PhaseCleanBroker, PhaseCleanDNS:
		return true
	}
	return false
}

// ConfirmationClass identifies which operator confirmation token, if any, a
// phase requires before it may run against a batch.
type ConfirmationClass int

const (
	// ConfirmationNone applies to read-only or reversible phases.
	ConfirmationNone ConfirmationClass = iota

	// ConfirmationClean applies to the logical cleanup phases.
	ConfirmationClean

	// ConfirmationDelete applies to permanent deletion. It requires a
	// stronger token than cleanup.
	ConfirmationDelete
)

// Confirmation returns the confirmation class required to run the phase.
func (p Phase) Confirmation() ConfirmationClass {
	switch {
	case p == PhaseDeleteVM:
		return ConfirmationDelete
	case p.IsClean():
		return ConfirmationClean
	default:
		return ConfirmationNone
	}
}

// AllPhases returns every phase in its fixed execution order.
func AllPhases() []Phase {
	out := make([]Phase, len(phaseSequence))
	copy(out, phaseSequence)
	return out
}

// CleanPhases returns the cleanup phases in their fixed execution order.
func CleanPhases() []Phase {
	return []Phase{PhaseCleanDirectory, PhaseCleanInventory, PhaseCleanBroker, PhaseCleanDNS}
}

// ParsePhase converts a string to a Phase.
func ParsePhase(s string) (Phase, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, candidate := range phaseSequence {
		if Phase(normalized) == candidate {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrPhaseUnknown, s)
}
