package decom

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// funcAction runs an arbitrary function as a phase action.
type funcAction struct {
	phase domain.Phase
	fn    func(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome
}

func (a funcAction) Phase() domain.Phase { return a.phase }

func (a funcAction) Execute(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
	return a.fn(ctx, target)
}

func newTestExecutor(concurrency int) *PhaseExecutor {
	return NewPhaseExecutor(
		concurrency, nil, testClock(), logger.Noop(), NoopMetrics(),
		noop.NewTracerProvider().Tracer("test"))
}

func makeTargets(t *testing.T, n int) []*domain.TargetState {
	t.Helper()
	targets := make([]*domain.TargetState, 0, n)
	for i := 0; i < n; i++ {
		targets = append(targets, discoveredVirtual(t, fmt.Sprintf("host-%02d", i), "vcenter-1", fmt.Sprintf("vm-%d", i)))
	}
	return targets
}

func TestPhaseExecutor_OneOutcomePerTarget(t *testing.T) {
	t.Parallel()

	targets := makeTargets(t, 20)
	action := funcAction{phase: domain.PhaseStop, fn: func(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
		return domain.NewPhaseOutcome(domain.PhaseStop, domain.OutcomeSuccess, "ok", testTime)
	}}

	outcomes := newTestExecutor(4).Run(context.Background(), action, targets, nil)

	require.Len(t, outcomes, 20)
	for _, target := range targets {
		outcome, ok := outcomes[target.Key()]
		require.True(t, ok, "missing outcome for %s", target.Name())
		assert.Equal(t, domain.OutcomeSuccess, outcome.Status())
	}
}

func TestPhaseExecutor_BoundsParallelism(t *testing.T) {
	t.Parallel()

	const concurrency = 3

	var active, peak int64
	var mu sync.Mutex

	action := funcAction{phase: domain.PhaseStop, fn: func(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
		cur := atomic.AddInt64(&active, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return domain.NewPhaseOutcome(domain.PhaseStop, domain.OutcomeSuccess, "ok", testTime)
	}}

	newTestExecutor(concurrency).Run(context.Background(), action, makeTargets(t, 12), nil)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(concurrency))
	assert.Greater(t, peak, int64(0))
}

func TestPhaseExecutor_OneFailureDoesNotAffectSiblings(t *testing.T) {
	t.Parallel()

	targets := makeTargets(t, 5)
	action := funcAction{phase: domain.PhaseCleanDNS, fn: func(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
		if target.Name() == "host-02" {
			return domain.NewPhaseOutcome(domain.PhaseCleanDNS, domain.OutcomeFailed, "zone down", testTime)
		}
		return domain.NewPhaseOutcome(domain.PhaseCleanDNS, domain.OutcomeSuccess, "ok", testTime)
	}}

	outcomes := newTestExecutor(2).Run(context.Background(), action, targets, nil)

	require.Len(t, outcomes, 5)
	assert.Equal(t, domain.OutcomeFailed, outcomes["host-02"].Status())
	for _, name := range []string{"host-00", "host-01", "host-03", "host-04"} {
		assert.Equal(t, domain.OutcomeSuccess, outcomes[name].Status())
	}
}

func TestPhaseExecutor_PanicBecomesFailureOutcome(t *testing.T) {
	t.Parallel()

	targets := makeTargets(t, 3)
	action := funcAction{phase: domain.PhaseStop, fn: func(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
		if target.Name() == "host-01" {
			panic("collaborator client bug")
		}
		return domain.NewPhaseOutcome(domain.PhaseStop, domain.OutcomeSuccess, "ok", testTime)
	}}

	outcomes := newTestExecutor(2).Run(context.Background(), action, targets, nil)

	require.Len(t, outcomes, 3)
	assert.Equal(t, domain.OutcomeFailed, outcomes["host-01"].Status())
	assert.Contains(t, outcomes["host-01"].Message(), "collaborator client bug")
	assert.Equal(t, domain.OutcomeSuccess, outcomes["host-00"].Status())
	assert.Equal(t, domain.OutcomeSuccess, outcomes["host-02"].Status())
}

func TestPhaseExecutor_CancellationMarksUndispatchedTargets(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	// One worker, many slow targets: cancelling after the first dispatch
	// leaves the remainder queued.
	action := funcAction{phase: domain.PhaseStop, fn: func(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
		once.Do(func() { close(started) })
		<-release
		return domain.NewPhaseOutcome(domain.PhaseStop, domain.OutcomeSuccess, "ok", testTime)
	}}

	targets := makeTargets(t, 6)

	go func() {
		<-started
		cancel()
		close(release)
	}()

	outcomes := newTestExecutor(1).Run(ctx, action, targets, nil)

	require.Len(t, outcomes, 6)

	var succeeded, cancelled int
	for _, outcome := range outcomes {
		switch outcome.Status() {
		case domain.OutcomeSuccess:
			succeeded++
		case domain.OutcomeCancelled:
			cancelled++
		}
	}

	// In-flight work finishes; queued targets are marked cancelled. The
	// race between cancel and the next dispatch allows one extra success.
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.GreaterOrEqual(t, cancelled, 4)
	assert.Equal(t, 6, succeeded+cancelled)
}

func TestPhaseExecutor_CancellationReachesRateLimitedWorker(t *testing.T) {
	t.Parallel()

	// One token per ~17 minutes with the burst already drained: the next
	// Wait can only end when the phase context does.
	limiter := common.NewRateLimiter(0.001, 1)
	require.NoError(t, limiter.Wait(context.Background()))

	executor := NewPhaseExecutor(1, limiter, testClock(), logger.Noop(), NoopMetrics(),
		noop.NewTracerProvider().Tracer("test"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var dispatched atomic.Bool
	action := funcAction{phase: domain.PhaseStop, fn: func(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
		dispatched.Store(true)
		return domain.NewPhaseOutcome(domain.PhaseStop, domain.OutcomeSuccess, "ok", testTime)
	}}

	targets := makeTargets(t, 1)

	start := time.Now()
	outcomes := executor.Run(ctx, action, targets, nil)

	require.Len(t, outcomes, 1)
	outcome, ok := outcomes[targets[0].Key()]
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeCancelled, outcome.Status())
	assert.Equal(t, "cancelled while rate limited", outcome.Message())
	assert.False(t, dispatched.Load(), "the collaborator call must never start")
	assert.Less(t, time.Since(start), 5*time.Second, "the parked worker must observe cancellation")
}

func TestPhaseExecutor_ProgressCallback(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var calls []int

	action := funcAction{phase: domain.PhaseStop, fn: func(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
		return domain.NewPhaseOutcome(domain.PhaseStop, domain.OutcomeSuccess, "ok", testTime)
	}}

	newTestExecutor(2).Run(context.Background(), action, makeTargets(t, 4), func(completed, total int) {
		mu.Lock()
		calls = append(calls, completed)
		mu.Unlock()
		assert.Equal(t, 4, total)
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4}, calls)
}
