package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/suiterun/internal/metrics"
	"github.com/osvaldoandrade/suiterun/internal/tracing"
	"github.com/osvaldoandrade/suiterun/pkg/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Submitter interface {
	Submit(ctx context.Context, req domain.ExecutionRequest) ([]domain.ExecutionHandle, error)
}

type RunHooks struct {
	OnSubmitStart func()
	OnSubmitted   func(handles []domain.ExecutionHandle, err error)
}

type RunService interface {
	Run(ctx context.Context) (domain.RunReport, error)
}

type runService struct {
	req        domain.ExecutionRequest
	submitter  Submitter
	poller     PollerService
	aggregator AggregatorService
	logger     *slog.Logger
	now        func() time.Time
	runID      string
	hooks      RunHooks
}

// NewRunService wires the sequential submit → poll → aggregate flow. An empty
// runID gets a random one. The caller's logger is expected to carry run_id.
func NewRunService(req domain.ExecutionRequest, submitter Submitter, poller PollerService, aggregator AggregatorService, logger *slog.Logger, now func() time.Time, runID string, hooks RunHooks) RunService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	return &runService{
		req:        req,
		submitter:  submitter,
		poller:     poller,
		aggregator: aggregator,
		logger:     logger,
		now:        now,
		runID:      runID,
		hooks:      hooks,
	}
}

func (s *runService) Run(ctx context.Context) (domain.RunReport, error) {
	start := s.now()
	report := domain.RunReport{RunID: s.runID, Request: s.req}

	ctx, span := tracing.Tracer().Start(ctx, "suiterun.run",
		trace.WithAttributes(
			attribute.String("suiterun.run_id", s.runID),
			attribute.String("suiterun.project_id", s.req.ProjectID),
			attribute.String("suiterun.suite_id", s.req.SuiteID),
		),
	)
	defer span.End()

	fail := func(err error) (domain.RunReport, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		report.Duration = s.now().Sub(start).Seconds()
		s.logger.Error("run aborted", "stage", string(domain.StageOf(err)), "err", err)
		return report, err
	}

	s.logger.Info("submitting suite", "project_id", s.req.ProjectID, "suite_id", s.req.SuiteID, "browser", s.req.Browser)
	if s.hooks.OnSubmitStart != nil {
		s.hooks.OnSubmitStart()
	}
	handles, err := s.submit(ctx)
	if s.hooks.OnSubmitted != nil {
		s.hooks.OnSubmitted(handles, err)
	}
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(errorLabel(err)).Inc()
		return fail(err)
	}
	metrics.SubmissionsTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("suiterun.executions", len(handles)))
	s.logger.Info("suite queued", "executions", len(handles))

	res, err := s.poller.Poll(ctx, handles)
	report.Result = res
	if err != nil {
		return fail(err)
	}

	outcome, err := s.aggregator.Finalize(ctx, res)
	if err != nil {
		return fail(err)
	}
	report.Outcome = outcome
	report.Duration = s.now().Sub(start).Seconds()
	span.SetAttributes(attribute.String("suiterun.outcome", string(outcome)))
	if outcome != domain.OutcomePassed {
		span.SetStatus(codes.Error, string(outcome))
	}
	metrics.RunsTotal.WithLabelValues(string(outcome)).Inc()
	metrics.RunDurationSeconds.WithLabelValues(string(outcome)).Observe(report.Duration)
	return report, nil
}

func (s *runService) submit(ctx context.Context) ([]domain.ExecutionHandle, error) {
	ctx, span := tracing.Tracer().Start(ctx, "suiterun.submit")
	defer span.End()
	handles, err := s.submitter.Submit(ctx, s.req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("suiterun.executions", len(handles)))
	return handles, nil
}
