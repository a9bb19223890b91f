package storage

import (
	"context"

	"dgdinfer/internal/model"
)

// Store persists frozen models, inference runs and the representation
// layers those runs produce.
type Store interface {
	Init(ctx context.Context) error
	SaveModel(ctx context.Context, record model.ModelRecord) error
	GetModel(ctx context.Context, id string) (model.ModelRecord, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns runs oldest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	// DeleteRun removes a run and its representations.
	DeleteRun(ctx context.Context, id string) error
	SaveRepresentation(ctx context.Context, rep model.RepresentationRecord) error
	GetRepresentation(ctx context.Context, runID, space string) (model.RepresentationRecord, bool, error)
}
