package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/arl/statsviz"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"

	appdecom "github.com/opsforge/mothball/internal/app/decom"
	"github.com/opsforge/mothball/internal/config/fileloader"
	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/internal/infra/audit"
	"github.com/opsforge/mothball/internal/infra/eventfanout"
	"github.com/opsforge/mothball/pkg/common"
	"github.com/opsforge/mothball/pkg/common/logger"
	"github.com/opsforge/mothball/pkg/common/otel"
)

const serviceType = "mothball"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string { return otel.GetTraceID(ctx) }

	svcName := fmt.Sprintf("MOTHBALL-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log := logger.NewWithMetadata(os.Stderr, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	if err := run(log); err != nil {
		ctx := context.Background()
		if errors.Is(err, errRunHadFailures) {
			log.Error(ctx, "run completed with failures")
		} else {
			log.Error(ctx, "startup failed", "error", err)
		}
		os.Exit(1)
	}
}

// errRunHadFailures distinguishes a clean start that ended with failed
// targets from a startup failure. Both exit non-zero.
var errRunHadFailures = errors.New("run had failures")

func run(log *logger.Logger) error {
	v := viper.New()
	v.SetEnvPrefix("MOTHBALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("config", "mothball.yaml")
	v.SetDefault("operator", currentUser())
	v.SetDefault("classification", "virtual")
	v.SetDefault("audit-log", "mothball-audit.jsonl")
	v.SetDefault("rehearse", true)

	flags := newFlagSet(v)
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	targets := splitList(v.GetString("targets"))
	if len(targets) == 0 {
		return errors.New("at least one target is required (--targets host1,host2)")
	}

	classification, err := domain.ParseClassification(v.GetString("classification"))
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := <-sigCh
		log.Info(ctx, "received shutdown signal; letting in-flight work drain", "signal", sig.String())
		cancel()
	}()

	loader := fileloader.NewFileLoader(v.GetString("config"))
	cfg, err := loader.Load(ctx)
	if err != nil {
		return err
	}

	tracer := noop.NewTracerProvider().Tracer(serviceType)
	mp, err := otel.NewMeterProvider(serviceType)
	if err != nil {
		return err
	}
	if endpoint := v.GetString("otel-endpoint"); endpoint != "" {
		tp, teardown, err := otel.InitTelemetry(log, otel.Config{
			ServiceName:      serviceType,
			ExporterEndpoint: endpoint,
			Probability:      1,
			InsecureExporter: true,
		})
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer teardown(context.Background())
		tracer = tp.Tracer(serviceType)
		mp = otel.GetMeterProvider()
	}

	if debugAddr := v.GetString("debug-addr"); debugAddr != "" {
		go func() {
			mux := http.NewServeMux()
			if err := statsviz.Register(mux); err != nil {
				log.Error(ctx, "failed to register statsviz", "error", err)
				return
			}
			mux.HandleFunc("GET /v1/liveness", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			})
			log.Info(ctx, "debug endpoint listening", "addr", debugAddr)
			if err := http.ListenAndServe(debugAddr, mux); err != nil {
				log.Error(ctx, "debug endpoint stopped", "error", err)
			}
		}()
	}

	metrics, err := appdecom.NewDecomMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	auditFile, err := os.OpenFile(v.GetString("audit-log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer auditFile.Close()
	recorder := audit.NewRecorder(auditFile, log)
	publisher := eventfanout.New(log, tracer, recorder)

	batch, err := domain.NewBatchRun(v.GetString("operator"), targets, classification, nil)
	if err != nil {
		return err
	}

	var limiter *common.RateLimiter
	if cfg.RatePerSecond > 0 {
		limiter = common.NewRateLimiter(cfg.RatePerSecond, cfg.RateBurst)
	}

	collabs, err := buildCollaborators(ctx, log, cfg, v, targets)
	if err != nil {
		return err
	}

	orch := assembleOrchestrator(batch, cfg, collabs, limiter, publisher, log, metrics, tracer)

	log.Info(ctx, "batch created",
		"batch_id", batch.ID().String(),
		"operator", batch.Operator(),
		"targets", len(batch.Targets()),
		"classification", classification.String(),
		"rehearse", v.GetBool("rehearse"))

	if err := orch.Discover(ctx); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	if batch.State() != domain.BatchStateReady {
		summary := orch.Summary(ctx)
		printSummary(os.Stdout, summary)
		return errors.New("no target was found in the directory or on any backend")
	}

	if v.GetBool("stop") {
		if err := orch.Stop(ctx); err != nil {
			return fmt.Errorf("stop phase: %w", err)
		}
	}
	if v.GetBool("clean") {
		if err := orch.Clean(ctx, v.GetString("confirm-clean")); err != nil {
			return fmt.Errorf("clean phases: %w", err)
		}
	}
	if v.GetBool("delete") {
		if err := orch.Delete(ctx, v.GetString("confirm-delete")); err != nil {
			return fmt.Errorf("delete phase: %w", err)
		}
	}

	summary := orch.Summary(ctx)
	printSummary(os.Stdout, summary)

	if summary.HasFailures() {
		return errRunHadFailures
	}
	return nil
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
