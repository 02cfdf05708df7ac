// Package decom contains the domain model for batch machine decommissioning:
// targets, phases, per-phase outcomes, and the batch run lifecycle.
package decom

import (
	"errors"
	"fmt"
	"strings"
)

// Classification identifies whether a target is physical hardware or a
// virtual machine. It is fixed for the whole batch run: set once from
// operator input before discovery and never changed mid-run.
type Classification string

const (
	// ClassificationPhysical marks a target as physical hardware. Physical
	// targets never map to a hypervisor backend and must never be offered
	// the VM deletion phase.
	ClassificationPhysical Classification = "PHYSICAL"

	// ClassificationVirtual marks a target as a virtual machine owned by one
	// of the configured hypervisor manager instances.
	ClassificationVirtual Classification = "VIRTUAL"
)

// ErrClassificationUnknown is returned when a classification string cannot
// be parsed.
var ErrClassificationUnknown = errors.New("classification unknown")

// String returns the string representation of the Classification.
func (c Classification) String() string { return string(c) }

// ParseClassification converts a string to a Classification.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PHYSICAL":
		return ClassificationPhysical, nil
	case "VIRTUAL":
		return ClassificationVirtual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrClassificationUnknown, s)
	}
}
