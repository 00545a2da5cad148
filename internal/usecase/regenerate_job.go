package usecase

import (
	"context"
	"errors"

	"FinFolio/pkg/queue"
)

const RegenerateJobType = "analysis.regenerate"

// RegenerateJob runs queued analysis regenerations.
type RegenerateJob struct {
	uc *AnalysisUseCase
}

func NewRegenerateJob(uc *AnalysisUseCase) *RegenerateJob { return &RegenerateJob{uc: uc} }

func (j *RegenerateJob) Name() string { return "analysis-regenerate" }
func (j *RegenerateJob) Type() string { return RegenerateJobType }

// Handle returns nil for failures retrying cannot fix so the queue drops them.
func (j *RegenerateJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[RegeneratePayload](payload)
	if err != nil {
		return err
	}
	err = j.uc.RunRegeneration(ctx, *p)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInsufficientHistory), errors.Is(err, ErrEmptyPortfolio),
		errors.Is(err, ErrInvalidScope), errors.Is(err, ErrPortfolioNotFound):
		return nil
	default:
		return err
	}
}

var _ queue.Job = (*RegenerateJob)(nil)
