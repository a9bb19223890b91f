package inference

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"dgdinfer/internal/dataset"
	"dgdinfer/internal/latent"
)

// refiner runs full-pass gradient descent on the representation layers with
// the decoder and mixtures held fixed.
type refiner struct {
	decoder        Decoder
	loss           Loss
	layout         layout
	reduction      Reduction
	sampleMixture  Mixture
	contextMixture Mixture
	optimizer      latent.AdamWConfig
	log            *slog.Logger
}

// Refine trains samples, and contexts when trainContexts is set, for the
// given number of epochs. Each epoch accumulates gradients over every batch
// and takes exactly one optimizer step. It returns the per-epoch loss.
func (r *refiner) Refine(ctx context.Context, data Batches, epochs int, samples, contexts *latent.Layer, trainContexts bool) ([]float64, error) {
	if epochs == 0 {
		return nil, nil
	}
	trainable := []*latent.Layer{samples}
	if trainContexts {
		trainable = append(trainable, contexts)
	}
	opt, err := latent.NewAdamW(r.optimizer, trainable...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	history := make([]float64, 0, epochs)
	buf := make([]float64, r.layout.inputDim())
	outGrad := make([]float64, r.decoderOutputs())
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}
		for _, layer := range trainable {
			layer.ZeroGrad()
		}
		total := 0.0
		err := data.ForEachBatch(func(b dataset.Batch) error {
			factor := 1.0
			if r.reduction == ReductionMean && b.Len() > 0 {
				factor = 1 / float64(b.Len())
			}
			for j := 0; j < b.Len(); j++ {
				l, err := r.row(b, j, samples, contexts, trainContexts, factor, buf, outGrad)
				if err != nil {
					return err
				}
				total += factor * l
			}
			return nil
		})
		if err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		if math.IsNaN(total) || math.IsInf(total, 0) {
			return history, fmt.Errorf("%w: epoch %d loss %v", ErrNumeric, epoch, total)
		}
		opt.Step()
		history = append(history, total)
		r.log.Debug("refinement epoch", "epoch", epoch, "loss", total)
	}
	return history, nil
}

func (r *refiner) decoderOutputs() int {
	return r.decoder.OutputDim()
}

// row adds the gradient of one row's loss to the layers and returns the
// row loss: reconstruction plus the prior terms of its representations.
func (r *refiner) row(b dataset.Batch, j int, samples, contexts *latent.Layer, trainContexts bool, factor float64, buf, outGrad []float64) (float64, error) {
	sample, context := b.Samples[j], b.Contexts[j]
	z, err := samples.View(sample)
	if err != nil {
		return 0, err
	}
	var c []float64
	if r.layout.contextDim > 0 {
		if c, err = contexts.View(context); err != nil {
			return 0, err
		}
	}
	input := r.layout.assemble(buf, z, c, b.OneHots[j])

	out, err := r.decoder.Forward(input)
	if err != nil {
		return 0, fmt.Errorf("decode sample %d context %d: %w", sample, context, err)
	}
	idx := r.layout.outputIndex(context)
	loss := r.loss.Value(out[idx], b.Values[j], b.Scales[j])

	for k := range outGrad {
		outGrad[k] = 0
	}
	outGrad[idx] = r.loss.Gradient(out[idx], b.Values[j], b.Scales[j])
	inGrad, err := r.decoder.InputGradient(input, outGrad)
	if err != nil {
		return 0, fmt.Errorf("backpropagate sample %d context %d: %w", sample, context, err)
	}

	loss += r.sampleMixture.NegLogLikelihood(z)
	sampleGrad := inGrad[:r.layout.sampleDim]
	prior := r.sampleMixture.Gradient(z)
	for d := range prior {
		prior[d] += sampleGrad[d]
	}
	if err := samples.AddGrad(sample, prior, factor); err != nil {
		return 0, err
	}

	if r.layout.contextDim > 0 && r.contextMixture != nil {
		loss += r.contextMixture.NegLogLikelihood(c)
	}
	if trainContexts {
		ctxGrad := inGrad[r.layout.sampleDim : r.layout.sampleDim+r.layout.contextDim]
		prior := r.contextMixture.Gradient(c)
		for d := range prior {
			prior[d] += ctxGrad[d]
		}
		if err := contexts.AddGrad(context, prior, factor); err != nil {
			return 0, err
		}
	}

	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, fmt.Errorf("%w: sample %d context %d", ErrNumeric, sample, context)
	}
	return loss, nil
}
