package inference

import (
	"context"
	"fmt"
	"math/rand"

	"dgdinfer/internal/gmm"
	"dgdinfer/internal/latent"
)

// Pipeline runs the three phases of a variant in order: candidate
// generation, best-fit selection, then refinement. It never retries.
type Pipeline struct {
	model Model
	cfg   Config
}

func NewPipeline(m Model, cfg Config) (*Pipeline, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if m.Decoder == nil {
		return nil, fmt.Errorf("%w: decoder is required", ErrInvalidConfig)
	}
	if m.Loss == nil {
		return nil, fmt.Errorf("%w: loss is required", ErrInvalidConfig)
	}
	if m.SampleMixture == nil {
		return nil, fmt.Errorf("%w: sample mixture is required", ErrInvalidConfig)
	}
	return &Pipeline{model: m, cfg: cfg}, nil
}

func (p *Pipeline) Config() Config {
	return p.cfg
}

// contextMixture returns the mixture placed over the context space, deriving
// one from the trained context representations when the model has none.
func (p *Pipeline) contextMixture() (Mixture, error) {
	if p.model.ContextMixture != nil {
		return p.model.ContextMixture, nil
	}
	if !p.cfg.RefitContextSpace {
		return nil, nil
	}
	if p.model.ContextReps == nil {
		return nil, fmt.Errorf("%w: refitting contexts needs a context mixture or trained context representations", ErrInvalidConfig)
	}
	rng := rand.New(rand.NewSource(p.cfg.Seed))
	derived, err := gmm.FromKMeans(p.model.ContextReps.Rows(), p.cfg.ContextComponents, rng)
	if err != nil {
		return nil, fmt.Errorf("derive context mixture: %w", err)
	}
	p.cfg.logger().Info("derived context mixture", "components", derived.Components(), "dim", derived.Dim())
	return derived, nil
}

// plan checks the model against the data shape before any batch work.
func (p *Pipeline) plan(data Batches, ctxMixture Mixture) (layout, error) {
	n, m := data.NumSamples(), data.NumContexts()
	if n <= 0 || m <= 0 {
		return layout{}, fmt.Errorf("%w: data must have samples and contexts, got %dx%d", ErrInvalidConfig, n, m)
	}
	lay := layout{sampleDim: p.model.SampleMixture.Dim(), contexts: m}

	if p.cfg.InferContextSpace {
		switch {
		case p.cfg.RefitContextSpace:
			lay.contextDim = ctxMixture.Dim()
		case p.model.ContextReps != nil:
			if p.model.ContextReps.Len() != m {
				return layout{}, fmt.Errorf("%w: model has %d context representations, data has %d contexts", ErrInvalidConfig, p.model.ContextReps.Len(), m)
			}
			lay.contextDim = p.model.ContextReps.Dim()
		default:
			return layout{}, fmt.Errorf("%w: a fixed context space needs trained context representations", ErrInvalidConfig)
		}
		if ctxMixture != nil && ctxMixture.Dim() != lay.contextDim {
			return layout{}, fmt.Errorf("%w: context mixture dimension %d, context representations %d", ErrInvalidConfig, ctxMixture.Dim(), lay.contextDim)
		}
	}
	if p.cfg.FeedOneHot {
		lay.oneHotDim = data.OneHotDim()
	}

	if got := p.model.Decoder.InputDim(); got != lay.inputDim() {
		return layout{}, fmt.Errorf("%w: decoder expects %d inputs, variant assembles %d (sample %d + context %d + one-hot %d)",
			ErrInvalidConfig, got, lay.inputDim(), lay.sampleDim, lay.contextDim, lay.oneHotDim)
	}
	switch out := p.model.Decoder.OutputDim(); out {
	case m:
		lay.perContext = true
	case 1:
	default:
		return layout{}, fmt.Errorf("%w: decoder emits %d values, want 1 or %d", ErrInvalidConfig, out, m)
	}
	return lay, nil
}

func (p *Pipeline) Run(data Batches) (Result, error) {
	return p.RunContext(context.Background(), data)
}

// RunContext is Run with cancellation checked between phases and epochs.
func (p *Pipeline) RunContext(ctx context.Context, data Batches) (Result, error) {
	log := p.cfg.logger()
	ctxMixture, err := p.contextMixture()
	if err != nil {
		return Result{}, err
	}
	lay, err := p.plan(data, ctxMixture)
	if err != nil {
		return Result{}, err
	}

	rng := rand.New(rand.NewSource(p.cfg.Seed))
	sampleCands, err := GenerateCandidates(p.model.SampleMixture, p.cfg.Resampling, rng)
	if err != nil {
		return Result{}, fmt.Errorf("sample candidates: %w", err)
	}
	sel := &selector{
		decoder:   p.model.Decoder,
		loss:      p.model.Loss,
		layout:    lay,
		reduction: p.cfg.SelectionReduction,
		samples:   sampleCands,
	}
	if p.cfg.joint() {
		if sel.contexts, err = GenerateCandidates(ctxMixture, p.cfg.Resampling, rng); err != nil {
			return Result{}, fmt.Errorf("context candidates: %w", err)
		}
	} else if p.cfg.InferContextSpace {
		sel.fixed = p.model.ContextReps
	}
	log.Info("selecting representations", "variant", p.cfg.Variant, "samples", data.NumSamples(), "contexts", data.NumContexts(), "cells", sel.numCells())

	choice, err := sel.Select(data)
	if err != nil {
		return Result{}, fmt.Errorf("select: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	samples, err := seedLayer(sampleCands, choice.SampleChoice)
	if err != nil {
		return Result{}, err
	}
	var contexts *latent.Layer
	switch {
	case p.cfg.joint():
		if contexts, err = seedLayer(sel.contexts, choice.ContextChoice); err != nil {
			return Result{}, err
		}
	case p.cfg.InferContextSpace:
		contexts = p.model.ContextReps.Clone()
	}

	ref := &refiner{
		decoder:        p.model.Decoder,
		loss:           p.model.Loss,
		layout:         lay,
		reduction:      p.cfg.RefineReduction,
		sampleMixture:  p.model.SampleMixture,
		contextMixture: ctxMixture,
		optimizer:      p.cfg.Optimizer,
		log:            log,
	}
	log.Info("refining representations", "epochs", p.cfg.Epochs, "train_contexts", p.cfg.joint())
	history, err := ref.Refine(ctx, data, p.cfg.Epochs, samples, contexts, p.cfg.joint())
	if err != nil {
		return Result{}, fmt.Errorf("refine: %w", err)
	}

	return Result{
		Samples:       samples,
		Contexts:      contexts,
		SampleChoice:  choice.SampleChoice,
		ContextChoice: choice.ContextChoice,
		LossHistory:   history,
	}, nil
}

// seedLayer writes the chosen candidate of every entity into a new layer.
func seedLayer(cands CandidateSet, choice []int) (*latent.Layer, error) {
	layer, err := latent.NewLayer(len(choice), cands.Dim())
	if err != nil {
		return nil, err
	}
	for i, k := range choice {
		if err := layer.Set(i, cands[k]); err != nil {
			return nil, err
		}
	}
	return layer, nil
}
