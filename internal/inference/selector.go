package inference

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"dgdinfer/internal/dataset"
	"dgdinfer/internal/latent"
)

// Selection records the chosen candidate per sample and, for joint runs,
// per context.
type Selection struct {
	SampleChoice  []int
	ContextChoice []int
}

// selector scores every candidate (or grid cell) against each sample's rows
// and keeps the argmin. Decoder outputs depend only on (cell, context) and
// are computed once.
type selector struct {
	decoder   Decoder
	loss      Loss
	layout    layout
	reduction Reduction

	samples CandidateSet
	// contexts is set for joint runs; cells then span the sample x context grid.
	contexts CandidateSet
	// fixed supplies the context part for runs that do not refit contexts.
	fixed *latent.Layer
}

func (s *selector) joint() bool {
	return s.contexts != nil
}

func (s *selector) numCells() int {
	if s.joint() {
		return len(s.samples) * len(s.contexts)
	}
	return len(s.samples)
}

// parts returns the sample and context vectors of a cell for a row context.
func (s *selector) parts(cell, context int) ([]float64, []float64) {
	if s.joint() {
		c2 := len(s.contexts)
		return s.samples[cell/c2], s.contexts[cell%c2]
	}
	if s.fixed != nil {
		c, _ := s.fixed.View(context)
		return s.samples[cell], c
	}
	return s.samples[cell], nil
}

type outputCache struct {
	contexts int
	values   []float64
	filled   []bool
}

func newOutputCache(cells, contexts int) *outputCache {
	return &outputCache{
		contexts: contexts,
		values:   make([]float64, cells*contexts),
		filled:   make([]bool, cells*contexts),
	}
}

func (s *selector) output(cache *outputCache, cell, context int, onehot, buf []float64) (float64, error) {
	key := cell*cache.contexts + context
	if cache.filled[key] {
		return cache.values[key], nil
	}
	z, c := s.parts(cell, context)
	out, err := s.decoder.Forward(s.layout.assemble(buf, z, c, onehot))
	if err != nil {
		return 0, fmt.Errorf("decode cell %d context %d: %w", cell, context, err)
	}
	v := out[s.layout.outputIndex(context)]
	cache.values[key] = v
	cache.filled[key] = true
	return v, nil
}

func (s *selector) Select(data Batches) (Selection, error) {
	n, m := data.NumSamples(), data.NumContexts()
	cells := s.numCells()
	if cells == 0 {
		return Selection{}, fmt.Errorf("%w: no candidates to select from", ErrInvalidConfig)
	}

	sampleScores := mat.NewDense(n, cells, nil)
	sampleRows := make([]int, n)
	var contextScores *mat.Dense
	var contextRows []int
	if s.joint() {
		contextScores = mat.NewDense(m, cells, nil)
		contextRows = make([]int, m)
	}

	cache := newOutputCache(cells, m)
	buf := make([]float64, s.layout.inputDim())
	err := data.ForEachBatch(func(b dataset.Batch) error {
		for j := 0; j < b.Len(); j++ {
			sample, context := b.Samples[j], b.Contexts[j]
			if sample < 0 || sample >= n || context < 0 || context >= m {
				return fmt.Errorf("row (%d, %d) outside %dx%d data", sample, context, n, m)
			}
			sampleRows[sample]++
			srow := sampleScores.RawRowView(sample)
			var crow []float64
			if contextScores != nil {
				contextRows[context]++
				crow = contextScores.RawRowView(context)
			}
			for cell := 0; cell < cells; cell++ {
				out, err := s.output(cache, cell, context, b.OneHots[j], buf)
				if err != nil {
					return err
				}
				l := s.loss.Value(out, b.Values[j], b.Scales[j])
				if math.IsNaN(l) || math.IsInf(l, 0) {
					return fmt.Errorf("%w: selection loss for sample %d context %d cell %d", ErrNumeric, sample, context, cell)
				}
				srow[cell] += l
				if crow != nil {
					crow[cell] += l
				}
			}
		}
		return nil
	})
	if err != nil {
		return Selection{}, err
	}

	sel := Selection{SampleChoice: make([]int, n)}
	for i := 0; i < n; i++ {
		best, err := s.argmin(sampleScores.RawRowView(i), sampleRows[i])
		if err != nil {
			return Selection{}, fmt.Errorf("sample %d: %w", i, err)
		}
		if s.joint() {
			best /= len(s.contexts)
		}
		sel.SampleChoice[i] = best
	}
	if s.joint() {
		sel.ContextChoice = make([]int, m)
		for c := 0; c < m; c++ {
			best, err := s.argmin(contextScores.RawRowView(c), contextRows[c])
			if err != nil {
				return Selection{}, fmt.Errorf("context %d: %w", c, err)
			}
			sel.ContextChoice[c] = best % len(s.contexts)
		}
	}
	return sel, nil
}

// argmin returns the first index of the lowest reduced score.
func (s *selector) argmin(scores []float64, rows int) (int, error) {
	if rows == 0 {
		return 0, fmt.Errorf("no rows scored")
	}
	if s.reduction == ReductionMean {
		floats.Scale(1/float64(rows), scores)
	}
	return floats.MinIdx(scores), nil
}
