// Package inference fits latent representations for unseen samples against a
// frozen generative model. A run seeds every sample from the best-fitting
// mixture component and then refines the seeds by gradient descent.
package inference

import (
	"errors"
	"math/rand"

	"dgdinfer/internal/dataset"
	"dgdinfer/internal/latent"
)

var (
	ErrInvalidConfig = errors.New("invalid inference config")
	ErrNumeric       = errors.New("non-finite loss")
)

// Batches is the row source of a run. Rows must cover every (sample,
// context) pair; batches are visited in the same order on every call.
type Batches interface {
	ForEachBatch(fn func(dataset.Batch) error) error
	NumSamples() int
	NumContexts() int
	OneHotDim() int
}

// Decoder maps an assembled latent input to predicted rates.
type Decoder interface {
	InputDim() int
	OutputDim() int
	Forward(input []float64) ([]float64, error)
	// InputGradient maps dLoss/dOutput to dLoss/dInput.
	InputGradient(input, outputGrad []float64) ([]float64, error)
}

// Loss scores one decoder output against an observed count.
type Loss interface {
	Value(output, target, scale float64) float64
	Gradient(output, target, scale float64) float64
}

// Mixture is a frozen prior over a latent space.
type Mixture interface {
	Dim() int
	Components() int
	Representatives(mode string, rng *rand.Rand) ([][]float64, error)
	NegLogLikelihood(z []float64) float64
	Gradient(z []float64) []float64
	Cluster(z []float64) int
}

// Model bundles the frozen parts a run reads. ContextMixture and
// ContextReps are optional; which of them a run needs depends on the
// variant.
type Model struct {
	Decoder        Decoder
	Loss           Loss
	SampleMixture  Mixture
	ContextMixture Mixture
	// ContextReps are the trained context representations, indexed by
	// context position.
	ContextReps *latent.Layer
}

type Result struct {
	Samples *latent.Layer
	// Contexts is nil for variants without a context space.
	Contexts      *latent.Layer
	SampleChoice  []int
	ContextChoice []int
	LossHistory   []float64
}

// FinalLoss is the loss of the last refinement epoch, or 0 without epochs.
func (r Result) FinalLoss() float64 {
	if len(r.LossHistory) == 0 {
		return 0
	}
	return r.LossHistory[len(r.LossHistory)-1]
}

// layout describes how a decoder input is assembled for one row:
// [sample | context | one-hot], with absent parts omitted.
type layout struct {
	sampleDim  int
	contextDim int
	oneHotDim  int
	contexts   int
	// perContext decoders emit one rate per context; others emit one value.
	perContext bool
}

func (l layout) inputDim() int {
	return l.sampleDim + l.contextDim + l.oneHotDim
}

func (l layout) outputIndex(context int) int {
	if l.perContext {
		return context
	}
	return 0
}

// assemble writes the decoder input into dst and returns it.
func (l layout) assemble(dst, z, c, onehot []float64) []float64 {
	n := copy(dst, z)
	if l.contextDim > 0 {
		n += copy(dst[n:], c)
	}
	if l.oneHotDim > 0 {
		copy(dst[n:], onehot)
	}
	return dst
}
