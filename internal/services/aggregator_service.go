package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/osvaldoandrade/suiterun/internal/providers"
	"github.com/osvaldoandrade/suiterun/pkg/domain"
)

// SummaryObjectPath holds exactly one of PASSED, FAILED or TIMEOUT.
const SummaryObjectPath = "summary.txt"

type AggregatorService interface {
	Aggregate(res domain.PollResult) domain.Outcome
	// Finalize aggregates res and persists the summary marker.
	Finalize(ctx context.Context, res domain.PollResult) (domain.Outcome, error)
}

type aggregatorService struct {
	store  providers.Uploader
	logger *slog.Logger
}

func NewAggregatorService(store providers.Uploader, logger *slog.Logger) AggregatorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &aggregatorService{store: store, logger: logger}
}

func (s *aggregatorService) Aggregate(res domain.PollResult) domain.Outcome {
	if res.TimedOut {
		return domain.OutcomeTimeout
	}
	for _, st := range res.Final {
		if st.Status == domain.VerdictError {
			return domain.OutcomeFailed
		}
	}
	return domain.OutcomePassed
}

func (s *aggregatorService) Finalize(ctx context.Context, res domain.PollResult) (domain.Outcome, error) {
	outcome := s.Aggregate(res)
	if s.store != nil {
		loc, err := s.store.UploadBytes(ctx, SummaryObjectPath, "text/plain", []byte(outcome))
		if err != nil && loc == "" {
			return outcome, fmt.Errorf("persist summary: %w", err)
		}
		if err != nil {
			s.logger.Warn("summary mirror failed", "err", err)
		}
		s.logger.Debug("summary persisted", "location", loc)
	}
	s.logger.Info("run finished", "outcome", string(outcome), "executions", len(res.Handles), "rounds", res.Rounds)
	return outcome, nil
}
