package storage

import (
	"context"

	"armlog/internal/model"
)

// Store defines persistence operations for imported experiment runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveTraces(ctx context.Context, runID string, traces []model.ChannelTrace) error
	GetTraces(ctx context.Context, runID string) ([]model.ChannelTrace, bool, error)
}
