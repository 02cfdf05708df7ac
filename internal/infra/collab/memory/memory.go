// Package memory provides in-memory implementations of every external
// collaborator. They back rehearsal runs, where an operator walks a batch
// through all phases against a seeded fixture without touching any real
// system, and double as test collaborators. Every operation is safe for
// concurrent use and every failure mode is injectable.
package memory

import "strings"

func key(name string) string { return strings.ToLower(name) }
