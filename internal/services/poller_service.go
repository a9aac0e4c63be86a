package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/osvaldoandrade/suiterun/internal/metrics"
	"github.com/osvaldoandrade/suiterun/internal/providers"
	"github.com/osvaldoandrade/suiterun/internal/tracing"
	"github.com/osvaldoandrade/suiterun/pkg/domain"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxAttempts = 30
	DefaultWaitPeriod  = 120 * time.Second
)

// StatusFetcher queries the current status of one execution.
type StatusFetcher interface {
	Status(ctx context.Context, projectID string, h domain.ExecutionHandle) (domain.ExecutionStatus, error)
}

// RoundReport describes one finished polling round.
type RoundReport struct {
	Round          int
	MaxAttempts    int
	Queried        int
	Completed      int
	Total          int
	NewlyCompleted []domain.ExecutionStatus
}

type PollerOptions struct {
	ProjectID   string
	WaitPeriod  time.Duration
	MaxAttempts int
	// Concurrency bounds in-flight status requests within a round. Values <= 1 poll
	// handles one at a time.
	Concurrency int
	Sleep       func(ctx context.Context, d time.Duration) error
	OnRound     func(RoundReport)
}

type PollerService interface {
	Poll(ctx context.Context, handles []domain.ExecutionHandle) (domain.PollResult, error)
}

type pollerService struct {
	fetcher StatusFetcher
	store   providers.Uploader
	logger  *slog.Logger
	opts    PollerOptions
}

func NewPollerService(fetcher StatusFetcher, store providers.Uploader, logger *slog.Logger, opts PollerOptions) PollerService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.WaitPeriod < 0 {
		opts.WaitPeriod = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepOrDone
	}
	return &pollerService{fetcher: fetcher, store: store, logger: logger, opts: opts}
}

// Poll runs up to MaxAttempts rounds. A handle is final the first time it is seen
// with running_status "completed"; its response is persisted once and never
// replaced. Any malformed response aborts the whole poll.
func (s *pollerService) Poll(ctx context.Context, handles []domain.ExecutionHandle) (domain.PollResult, error) {
	res := domain.PollResult{
		Handles: handles,
		Final:   make(map[domain.ExecutionHandle]domain.ExecutionStatus, len(handles)),
	}
	if len(handles) == 0 {
		return res, &domain.ProtocolError{Stage: domain.StagePolling, Msg: "no execution ids to poll"}
	}

	for round := 1; round <= s.opts.MaxAttempts; round++ {
		outstanding := pendingHandles(handles, res.Final)
		newly, err := s.pollRound(ctx, round, outstanding, res.Final)
		res.Rounds = round
		metrics.PollRoundsTotal.Inc()
		if err != nil {
			return res, err
		}

		if s.opts.OnRound != nil {
			s.opts.OnRound(RoundReport{
				Round:          round,
				MaxAttempts:    s.opts.MaxAttempts,
				Queried:        len(outstanding),
				Completed:      len(res.Final),
				Total:          len(handles),
				NewlyCompleted: newly,
			})
		}
		s.logger.Info("poll round finished",
			"round", round,
			"max_attempts", s.opts.MaxAttempts,
			"completed", len(res.Final),
			"total", len(handles),
		)

		if len(res.Final) == len(handles) {
			return res, nil
		}
		if round == s.opts.MaxAttempts {
			break
		}
		if err := s.opts.Sleep(ctx, s.opts.WaitPeriod); err != nil {
			return res, fmt.Errorf("%s: interrupted while waiting: %w", domain.StagePolling, err)
		}
	}

	res.TimedOut = true
	res.Pending = pendingHandles(handles, res.Final)
	s.logger.Warn("polling budget exhausted", "rounds", res.Rounds, "pending", len(res.Pending))
	return res, nil
}

// pollRound queries every outstanding handle and records the ones that became
// terminal into final. The per-round observations are discarded afterwards.
func (s *pollerService) pollRound(ctx context.Context, round int, outstanding []domain.ExecutionHandle, final map[domain.ExecutionHandle]domain.ExecutionStatus) ([]domain.ExecutionStatus, error) {
	ctx, span := tracing.Tracer().Start(ctx, "suiterun.poll.round",
		trace.WithAttributes(
			attribute.Int("suiterun.round", round),
			attribute.Int("suiterun.outstanding", len(outstanding)),
		),
	)
	defer span.End()

	statuses, err := s.fetchAll(ctx, outstanding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	observed := make(map[domain.ExecutionHandle]domain.ExecutionStatus, len(statuses))
	for _, st := range statuses {
		observed[st.Handle] = st
	}

	var newly []domain.ExecutionStatus
	for _, h := range outstanding {
		st, ok := observed[h]
		if !ok || !st.Terminal() {
			continue
		}
		if _, done := final[h]; done {
			continue
		}
		if err := s.persist(ctx, st); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return newly, err
		}
		final[h] = st
		newly = append(newly, st)
		metrics.ExecutionsCompletedTotal.WithLabelValues(verdictLabel(st.Status)).Inc()
		s.logger.Info("execution completed", "execution_id", string(h), "status", string(st.Status), "round", round)
	}
	span.SetAttributes(attribute.Int("suiterun.completed", len(final)))
	return newly, nil
}

func (s *pollerService) fetchAll(ctx context.Context, handles []domain.ExecutionHandle) ([]domain.ExecutionStatus, error) {
	if s.opts.Concurrency <= 1 || len(handles) <= 1 {
		out := make([]domain.ExecutionStatus, 0, len(handles))
		for _, h := range handles {
			st, err := s.fetch(ctx, h)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		}
		return out, nil
	}

	p := pool.NewWithResults[domain.ExecutionStatus]().
		WithErrors().
		WithFirstError().
		WithMaxGoroutines(s.opts.Concurrency).
		WithContext(ctx).
		WithCancelOnError()
	for _, h := range handles {
		h := h
		p.Go(func(ctx context.Context) (domain.ExecutionStatus, error) {
			return s.fetch(ctx, h)
		})
	}
	return p.Wait()
}

func (s *pollerService) fetch(ctx context.Context, h domain.ExecutionHandle) (domain.ExecutionStatus, error) {
	start := time.Now()
	st, err := s.fetcher.Status(ctx, s.opts.ProjectID, h)
	metrics.StatusRequestLatencySeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StatusRequestsTotal.WithLabelValues(errorLabel(err)).Inc()
		return st, err
	}
	metrics.StatusRequestsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("execution status",
		"execution_id", string(h),
		"running_status", string(st.RunningStatus),
		"status", string(st.Status),
	)
	if st.Handle == "" {
		st.Handle = h
	}
	return st, nil
}

func (s *pollerService) persist(ctx context.Context, st domain.ExecutionStatus) error {
	if s.store == nil {
		return nil
	}
	loc, err := s.store.UploadBytes(ctx, ExecutionObjectPath(st.Handle), "application/json", st.Raw)
	if err != nil {
		if loc == "" {
			return fmt.Errorf("%s: persist execution %s: %w", domain.StagePolling, st.Handle, err)
		}
		// The primary copy exists; only a mirror failed.
		s.logger.Warn("result mirror failed", "execution_id", string(st.Handle), "err", err)
	}
	s.logger.Debug("execution result persisted", "execution_id", string(st.Handle), "location", loc)
	return nil
}

// ExecutionObjectPath is where the raw terminal response of h is stored. Handles
// that need sanitizing get a hash of the raw id appended, so distinct handles
// never share a file.
func ExecutionObjectPath(h domain.ExecutionHandle) string {
	name := safeName(string(h))
	if name != string(h) {
		sum := fnv.New32a()
		_, _ = sum.Write([]byte(h))
		name = fmt.Sprintf("%s-%08x", name, sum.Sum32())
	}
	return "executions/" + name + ".json"
}

func safeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}

func pendingHandles(handles []domain.ExecutionHandle, final map[domain.ExecutionHandle]domain.ExecutionStatus) []domain.ExecutionHandle {
	out := make([]domain.ExecutionHandle, 0, len(handles))
	for _, h := range handles {
		if _, ok := final[h]; !ok {
			out = append(out, h)
		}
	}
	return out
}

func verdictLabel(v domain.Verdict) string {
	if v == "" {
		return "unknown"
	}
	return string(v)
}

func errorLabel(err error) string {
	var netErr *domain.NetworkError
	var protoErr *domain.ProtocolError
	switch {
	case errors.As(err, &netErr):
		return "network_error"
	case errors.As(err, &protoErr):
		return "protocol_error"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "error"
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
