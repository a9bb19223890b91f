// Package platform owns the store and the inference runs in flight. Callers
// build a run from a loaded model and dataset; the platform executes it,
// persists the outcome and lets other goroutines stop it by id.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"dgdinfer/internal/dataset"
	"dgdinfer/internal/dgd"
	"dgdinfer/internal/evaluate"
	"dgdinfer/internal/inference"
	"dgdinfer/internal/model"
	"dgdinfer/internal/storage"
)

var (
	ErrNotInitialized = errors.New("platform is not initialized")
	ErrRunActive      = errors.New("run already active")
	ErrRunNotActive   = errors.New("run not active")
)

type Config struct {
	Store  storage.Store
	Logger *slog.Logger
}

// InferenceConfig describes one run. The model and dataset are read only.
type InferenceConfig struct {
	RunID        string
	CreatedAtUTC string
	Model        *dgd.Model
	Data         *dataset.FlattenedDataset
	BatchSize    int
	Inference    inference.Config
	// Evaluate scores the fitted samples against the dataset labels when
	// the dataset carries any.
	Evaluate bool
}

type InferenceResult struct {
	Run        model.RunRecord
	Result     inference.Result
	Evaluation *evaluate.Report
}

type Platform struct {
	store storage.Store
	log   *slog.Logger

	mu      sync.RWMutex
	started bool
	runs    map[string]context.CancelFunc
}

func New(cfg Config) *Platform {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Platform{
		store: cfg.Store,
		log:   log,
		runs:  make(map[string]context.CancelFunc),
	}
}

func (p *Platform) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Platform) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// Stop cancels every active run. Init must be called again before new runs.
func (p *Platform) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cancel := range p.runs {
		cancel()
	}
	p.runs = make(map[string]context.CancelFunc)
	p.started = false
}

func (p *Platform) StopRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	cancel, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}
	cancel()
	return nil
}

func (p *Platform) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Platform) RunInference(ctx context.Context, cfg InferenceConfig) (InferenceResult, error) {
	if cfg.Model == nil {
		return InferenceResult{}, fmt.Errorf("model is required")
	}
	if cfg.Data == nil {
		return InferenceResult{}, fmt.Errorf("dataset is required")
	}
	if cfg.RunID == "" {
		return InferenceResult{}, fmt.Errorf("run id is required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.registerRun(cfg.RunID, cancel); err != nil {
		return InferenceResult{}, err
	}
	defer p.unregisterRun(cfg.RunID)

	log := p.log.With("run_id", cfg.RunID, "model_id", cfg.Model.ID)
	if cfg.Inference.Logger == nil {
		cfg.Inference.Logger = log
	}

	if err := p.store.SaveModel(runCtx, cfg.Model.Record()); err != nil {
		return InferenceResult{}, fmt.Errorf("save model %s: %w", cfg.Model.ID, err)
	}
	loader, err := dataset.NewLoader(cfg.Data, cfg.BatchSize)
	if err != nil {
		return InferenceResult{}, err
	}
	pipeline, err := inference.NewPipeline(cfg.Model.Frozen(), cfg.Inference)
	if err != nil {
		return InferenceResult{}, err
	}
	res, err := pipeline.RunContext(runCtx, loader)
	if err != nil {
		return InferenceResult{}, err
	}

	out := InferenceResult{Result: res}
	if cfg.Evaluate && len(cfg.Data.Labels()) > 0 {
		report, err := evaluate.Evaluate(cfg.Model.SampleMixture, res.Samples, cfg.Data.Labels())
		if err != nil {
			return InferenceResult{}, fmt.Errorf("evaluate: %w", err)
		}
		out.Evaluation = &report
	}
	out.Run = runRecord(cfg, res, out.Evaluation)

	if err := p.persist(runCtx, out.Run, res); err != nil {
		return InferenceResult{}, err
	}
	log.Info("inference run complete", "variant", cfg.Inference.Variant, "epochs", len(res.LossHistory), "final_loss", res.FinalLoss())
	return out, nil
}

func runRecord(cfg InferenceConfig, res inference.Result, report *evaluate.Report) model.RunRecord {
	run := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              cfg.RunID,
		ModelID:         cfg.Model.ID,
		Variant: model.Variant{
			Name:              cfg.Inference.Variant,
			InferContextSpace: cfg.Inference.InferContextSpace,
			FeedOneHot:        cfg.Inference.FeedOneHot,
			RefitContextSpace: cfg.Inference.RefitContextSpace,
		},
		CreatedAtUTC:  cfg.CreatedAtUTC,
		Samples:       cfg.Data.NumSamples(),
		Contexts:      cfg.Data.NumContexts(),
		Epochs:        cfg.Inference.Epochs,
		LossHistory:   append([]float64(nil), res.LossHistory...),
		FinalLoss:     res.FinalLoss(),
		SampleChoice:  append([]int(nil), res.SampleChoice...),
		ContextChoice: append([]int(nil), res.ContextChoice...),
	}
	if report != nil {
		ari := report.AdjustedRand
		run.AdjustedRand = &ari
	}
	return run
}

func (p *Platform) persist(ctx context.Context, run model.RunRecord, res inference.Result) error {
	if err := p.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := p.store.SaveRepresentation(ctx, model.RepresentationRecord{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           run.ID,
		Space:           model.SpaceSample,
		Values:          res.Samples.Rows(),
	}); err != nil {
		return fmt.Errorf("save sample representations %s: %w", run.ID, err)
	}
	if res.Contexts == nil {
		return nil
	}
	if err := p.store.SaveRepresentation(ctx, model.RepresentationRecord{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           run.ID,
		Space:           model.SpaceContext,
		Values:          res.Contexts.Rows(),
	}); err != nil {
		return fmt.Errorf("save context representations %s: %w", run.ID, err)
	}
	return nil
}

func (p *Platform) registerRun(runID string, cancel context.CancelFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrNotInitialized
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	p.runs[runID] = cancel
	return nil
}

func (p *Platform) unregisterRun(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}
