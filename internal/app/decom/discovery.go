// Package decom provides the application services that orchestrate batch
// machine decommissioning: discovery, safety gating, bounded-parallel phase
// execution, and result aggregation.
package decom

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// DiscoveryResult captures what discovery learned about one target. It is
// read-only input for the orchestrator's merge step.
type DiscoveryResult struct {
	Directory   domain.DirectoryLookupState
	DirectoryDN string
	Backend     *domain.BackendRef
	Errors      []string
}

// Found reports whether either the directory or a backend located the
// target.
func (r DiscoveryResult) Found() bool {
	return r.Directory == domain.DirectoryFound || r.Backend != nil
}

// DiscoveryProbe classifies a target and locates which backend owns it. It
// only reads from the external collaborators; it never mutates them.
type DiscoveryProbe struct {
	directory  domain.DirectoryService
	backends   []domain.HypervisorManager
	searchRoot string
	timeout    time.Duration

	logger *logger.Logger
	tracer trace.Tracer
}

// NewDiscoveryProbe creates a DiscoveryProbe. Backends are searched in the
// order given; the first instance that knows the VM wins.
func NewDiscoveryProbe(
	directory domain.DirectoryService,
	backends []domain.HypervisorManager,
	searchRoot string,
	timeout time.Duration,
	log *logger.Logger,
	tracer trace.Tracer,
) *DiscoveryProbe {
	return &DiscoveryProbe{
		directory:  directory,
		backends:   backends,
		searchRoot: searchRoot,
		timeout:    timeout,
		logger:     log.With("component", "discovery_probe"),
		tracer:     tracer,
	}
}

// Discover runs the directory lookup and, for virtual targets, the backend
// search. The two lookups are independent: a failure in one is recorded but
// does not short-circuit the other. Physical targets skip the backend search
// entirely.
func (p *DiscoveryProbe) Discover(ctx context.Context, name string, classification domain.Classification) DiscoveryResult {
	ctx, span := p.tracer.Start(ctx, "discovery_probe.discover",
		trace.WithAttributes(
			attribute.String("target", name),
			attribute.String("classification", classification.String()),
		))
	defer span.End()

	var (
		directoryState domain.DirectoryLookupState
		directoryDN    string
		directoryErr   error

		backend    *domain.BackendRef
		backendErr error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		directoryState, directoryDN, directoryErr = p.lookupDirectory(gctx, name)
		return nil
	})

	if classification == domain.ClassificationVirtual {
		g.Go(func() error {
			backend, backendErr = p.searchBackends(gctx, name)
			return nil
		})
	}

	// Lookup goroutines never return errors; failures are carried in the
	// result so one leg cannot cancel the other.
	_ = g.Wait()

	result := DiscoveryResult{
		Directory:   directoryState,
		DirectoryDN: directoryDN,
		Backend:     backend,
	}
	if directoryErr != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("directory lookup: %v", directoryErr))
	}
	if backendErr != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("backend search: %v", backendErr))
	}

	span.AddEvent("discovery_complete", trace.WithAttributes(
		attribute.String("directory", result.Directory.String()),
		attribute.Bool("backend_found", result.Backend != nil),
		attribute.Int("error_count", len(result.Errors)),
	))

	return result
}

func (p *DiscoveryProbe) lookupDirectory(ctx context.Context, name string) (domain.DirectoryLookupState, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	entry, err := p.directory.FindComputer(callCtx, name, p.searchRoot)
	if err != nil {
		p.logger.Warn(ctx, "directory lookup failed", "target", name, "error", err)
		return domain.DirectoryError, "", err
	}
	if !entry.Found {
		return domain.DirectoryNotFound, "", nil
	}
	return domain.DirectoryFound, entry.DistinguishedName, nil
}

// searchBackends queries every configured hypervisor manager in fixed order
// and returns the first match. The search stops once a backend claims the
// VM. Absence everywhere is a nil ref, not an error; an unreachable backend
// is an error only if no later backend finds the VM.
func (p *DiscoveryProbe) searchBackends(ctx context.Context, name string) (*domain.BackendRef, error) {
	var firstErr error

	for _, backend := range p.backends {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		handle, err := backend.FindVM(callCtx, name)
		cancel()

		if err != nil {
			p.logger.Warn(ctx, "backend lookup failed",
				"target", name, "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", backend.Name(), err)
			}
			continue
		}
		if handle.Found {
			ref := domain.NewBackendRef(backend.Name(), handle.Ref)
			return &ref, nil
		}
	}

	return nil, firstErr
}
