package inference

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"dgdinfer/internal/dataset"
	"dgdinfer/internal/gmm"
	"dgdinfer/internal/latent"
	"dgdinfer/internal/nn"
)

// gridBatches serves a samples x contexts value grid with unit scales, in
// flattened order, split into batches of batchSize rows.
type gridBatches struct {
	values    [][]float64
	batchSize int
	onehots   [][]float64
}

func (g gridBatches) NumSamples() int  { return len(g.values) }
func (g gridBatches) NumContexts() int { return len(g.values[0]) }
func (g gridBatches) OneHotDim() int   { return dataset.OneHotDim }

func (g gridBatches) ForEachBatch(fn func(dataset.Batch) error) error {
	size := g.batchSize
	if size <= 0 {
		size = 1 << 30
	}
	m := g.NumContexts()
	total := g.NumSamples() * m
	for start := 0; start < total; start += size {
		end := min(start+size, total)
		var b dataset.Batch
		for i := start; i < end; i++ {
			s, c := i/m, i%m
			onehot := dataset.ContextOneHot("")
			if g.onehots != nil {
				onehot = g.onehots[c]
			}
			b.Values = append(b.Values, g.values[s][c])
			b.Scales = append(b.Scales, 1)
			b.Samples = append(b.Samples, s)
			b.Contexts = append(b.Contexts, c)
			b.OneHots = append(b.OneHots, onehot)
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

func linearNetwork(t *testing.T, weights [][]float64) *nn.Network {
	t.Helper()
	rows, cols := len(weights), len(weights[0])
	flat := make([]float64, 0, rows*cols)
	for _, w := range weights {
		flat = append(flat, w...)
	}
	network, err := nn.NewNetwork([]nn.Dense{{
		Weights:    mat.NewDense(rows, cols, flat),
		Bias:       make([]float64, rows),
		Activation: "identity",
	}})
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return network
}

func mixture1D(t *testing.T, stddev float64, means ...float64) *gmm.Mixture {
	t.Helper()
	mu := make([][]float64, len(means))
	sd := make([][]float64, len(means))
	for i, m := range means {
		mu[i] = []float64{m}
		sd[i] = []float64{stddev}
	}
	mix, err := gmm.New(mu, sd, nil)
	if err != nil {
		t.Fatalf("new mixture: %v", err)
	}
	return mix
}

func contextLayer(t *testing.T, rows ...float64) *latent.Layer {
	t.Helper()
	vals := make([][]float64, len(rows))
	for i, v := range rows {
		vals[i] = []float64{v}
	}
	layer, err := latent.NewLayerFrom(vals)
	if err != nil {
		t.Fatalf("new layer: %v", err)
	}
	return layer
}

func configFor(t *testing.T, variant string, epochs int) Config {
	t.Helper()
	cfg, err := Preset(variant)
	if err != nil {
		t.Fatalf("preset %s: %v", variant, err)
	}
	cfg.Epochs = epochs
	return cfg
}

func runPipeline(t *testing.T, m Model, cfg Config, data Batches) Result {
	t.Helper()
	p, err := NewPipeline(m, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	res, err := p.Run(data)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

func row(t *testing.T, layer *latent.Layer, i int) []float64 {
	t.Helper()
	v, err := layer.At(i)
	if err != nil {
		t.Fatalf("layer row %d: %v", i, err)
	}
	return v
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// nanLoss poisons every score.
type nanLoss struct{}

func (nanLoss) Value(float64, float64, float64) float64    { return math.NaN() }
func (nanLoss) Gradient(float64, float64, float64) float64 { return 0 }
