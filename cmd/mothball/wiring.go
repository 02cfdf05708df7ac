package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	appdecom "github.com/opsforge/mothball/internal/app/decom"
	"github.com/opsforge/mothball/internal/config"
	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/internal/domain/events"
	"github.com/opsforge/mothball/internal/infra/collab"
	"github.com/opsforge/mothball/internal/infra/collab/memory"
	tcpliveness "github.com/opsforge/mothball/internal/infra/liveness"
	"github.com/opsforge/mothball/pkg/common"
	"github.com/opsforge/mothball/pkg/common/logger"
)

func newFlagSet(v *viper.Viper) *pflag.FlagSet {
	flags := pflag.NewFlagSet("mothball", pflag.ContinueOnError)
	flags.String("config", v.GetString("config"), "path to the run configuration file")
	flags.String("targets", "", "comma-separated list of machines to decommission")
	flags.String("classification", v.GetString("classification"), "batch classification: physical or virtual")
	flags.String("operator", v.GetString("operator"), "operator name recorded in the audit trail")
	flags.String("audit-log", v.GetString("audit-log"), "path to the append-only audit trail")
	flags.Bool("stop", false, "run the stop phase")
	flags.Bool("clean", false, "run the cleanup phases")
	flags.Bool("delete", false, "run the vm deletion phase")
	flags.String("confirm-clean", "", "confirmation token authorizing cleanup")
	flags.String("confirm-delete", "", "confirmation token authorizing deletion")
	flags.Bool("rehearse", v.GetBool("rehearse"), "run against the seeded in-memory collaborators")
	flags.String("online", "", "rehearsal only: targets that still answer liveness probes")
	flags.Bool("probe-liveness", false, "probe real TCP ports for liveness instead of the rehearsal list")
	flags.String("otel-endpoint", "", "OTLP gRPC endpoint; empty disables export")
	flags.String("debug-addr", "", "address for the runtime debug endpoint; empty disables it")
	return flags
}

// collaborators bundles every external system the phases touch.
type collaborators struct {
	directory  domain.DirectoryService
	backends   []domain.HypervisorManager
	inventory  domain.InventorySystem
	broker     domain.DesktopBrokerService
	dns        domain.DnsService
	liveness   domain.LivenessChecker
	shutdowner domain.RemoteShutdowner
}

// buildCollaborators assembles the external collaborator set. Only the
// rehearsal suite ships in this binary: every real estate needs its own
// connectors, and wiring those is a deployment concern. The rehearsal fixture
// seeds every collaborator with the batch targets so a full run exercises
// each phase end to end.
func buildCollaborators(
	ctx context.Context,
	log *logger.Logger,
	cfg *config.Config,
	v *viper.Viper,
	targets []string,
) (*collaborators, error) {
	if !v.GetBool("rehearse") {
		return nil, fmt.Errorf("no production connectors are built in; run with --rehearse")
	}

	directory := memory.NewDirectory(targets...)
	inventory := memory.NewInventory(targets...)
	rehearsalLiveness := memory.NewLiveness(splitList(v.GetString("online"))...)
	shutdowner := memory.NewShutdowner(rehearsalLiveness)

	// Even a rehearsal can check real reachability so the cleanup gate
	// reflects the actual network instead of the --online list.
	var checker domain.LivenessChecker = rehearsalLiveness
	if v.GetBool("probe-liveness") {
		checker = tcpliveness.NewTCPChecker(nil, time.Duration(cfg.PerCallTimeout), log)
	}

	dns := memory.NewDNS()
	for _, target := range targets {
		dns.AddRecord(cfg.DNSZone, target)
	}

	broker := memory.NewBroker()
	for _, target := range targets {
		broker.AddMachine(target, "rehearsal-catalog", "rehearsal-group")
	}

	var backends []domain.HypervisorManager
	for _, bc := range cfg.Backends {
		backends = append(backends, memory.NewHypervisor(bc.Name, targets...))
	}
	if len(backends) == 0 {
		backends = append(backends, memory.NewHypervisor("rehearsal", targets...))
	}

	c := &collaborators{
		directory:  directory,
		backends:   backends,
		inventory:  inventory,
		broker:     broker,
		dns:        dns,
		liveness:   checker,
		shutdowner: shutdowner,
	}

	probe := func(ctx context.Context) error {
		_, err := c.directory.FindComputer(ctx, targets[0], cfg.DirectorySearchRoot)
		return err
	}
	if err := collab.WaitReady(ctx, log, "directory", probe); err != nil {
		return nil, err
	}

	return c, nil
}

func assembleOrchestrator(
	batch *domain.BatchRun,
	cfg *config.Config,
	c *collaborators,
	limiter *common.RateLimiter,
	publisher events.DomainEventPublisher,
	log *logger.Logger,
	metrics appdecom.DecomMetrics,
	tracer trace.Tracer,
) *appdecom.Orchestrator {
	clock := domain.DefaultTimeProvider()
	backendSet := appdecom.NewBackendSet(c.backends)
	timeout := time.Duration(cfg.PerCallTimeout)

	probe := appdecom.NewDiscoveryProbe(
		c.directory, c.backends, cfg.DirectorySearchRoot, timeout, log, tracer)
	gate := appdecom.NewSafetyGate(cfg.ConfirmationTokens, c.liveness, timeout)
	executor := appdecom.NewPhaseExecutor(cfg.ConcurrencyLimit, limiter, clock, log, metrics, tracer)
	aggregator := appdecom.NewResultAggregator(publisher, clock, log, tracer)

	actions := map[domain.Phase]appdecom.PhaseAction{
		domain.PhaseStop: appdecom.NewStopAction(
			backendSet, c.shutdowner, timeout, clock, log),
		domain.PhaseCleanDirectory: appdecom.NewCleanDirectoryAction(
			c.directory, cfg.DirectorySearchRoot, timeout, clock, log),
		domain.PhaseCleanInventory: appdecom.NewCleanInventoryAction(
			c.inventory, timeout, clock, log),
		domain.PhaseCleanBroker: appdecom.NewCleanBrokerAction(
			c.broker, cfg.BrokerCleanup, timeout, clock, log),
		domain.PhaseCleanDNS: appdecom.NewCleanDNSAction(
			c.dns, cfg.DNSZone, timeout, clock, log),
		domain.PhaseDeleteVM: appdecom.NewDeleteVMAction(
			backendSet, timeout, clock, log),
	}

	return appdecom.NewOrchestrator(
		batch, probe, gate, executor, aggregator, actions, clock, log, metrics, tracer)
}

// printSummary renders the batch rollup as an operator-facing table.
func printSummary(w io.Writer, summary domain.BatchSummary) {
	fmt.Fprintf(w, "\nBatch %s (operator %s)\n", summary.BatchID, summary.Operator)
	fmt.Fprintf(w, "Started %s, report generated %s\n\n",
		summary.StartedAt.Format("2006-01-02 15:04:05"),
		summary.GeneratedAt.Format("2006-01-02 15:04:05"))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PHASE\tOK\tFAILED\tSKIPPED\tCANCELLED")
	for _, tally := range summary.Phases {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n",
			tally.Phase, tally.Succeeded, tally.Failed, tally.Skipped, tally.Cancelled)
	}
	tw.Flush()

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSTATUS\tLAST MESSAGE")
	for _, target := range summary.Targets {
		last := ""
		if n := len(target.Outcomes); n > 0 {
			last = target.Outcomes[n-1].Message()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", target.Name, target.Status, last)
	}
	tw.Flush()

	if summary.HasFailures() {
		fmt.Fprintf(w, "\n%d failure(s); review the audit trail for details\n", summary.FailureCount())
	}
}
