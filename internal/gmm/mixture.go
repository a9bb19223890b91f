// Package gmm implements the diagonal Gaussian mixture priors placed over a
// latent space. Mixtures are frozen: every method is read-only.
package gmm

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	ResampleMean   = "mean"
	ResampleSample = "sample"
)

var ErrResampleMode = errors.New("unsupported resampling mode")

type Mixture struct {
	means      *mat.Dense
	stddevs    *mat.Dense
	logWeights []float64
	// logNorm[c] is the log weight plus the Gaussian normalizer of component c.
	logNorm []float64
}

// New builds a mixture from per-component means and standard deviations.
// Weights are normalized; nil weights mean a uniform mixture.
func New(means, stddevs [][]float64, weights []float64) (*Mixture, error) {
	if len(means) == 0 {
		return nil, errors.New("mixture requires at least one component")
	}
	if len(stddevs) != len(means) {
		return nil, fmt.Errorf("got %d stddev rows for %d components", len(stddevs), len(means))
	}
	dim := len(means[0])
	if dim == 0 {
		return nil, errors.New("mixture dimension must be > 0")
	}
	if weights == nil {
		weights = make([]float64, len(means))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(means) {
		return nil, fmt.Errorf("got %d weights for %d components", len(weights), len(means))
	}

	k := len(means)
	m := &Mixture{
		means:      mat.NewDense(k, dim, nil),
		stddevs:    mat.NewDense(k, dim, nil),
		logWeights: make([]float64, k),
		logNorm:    make([]float64, k),
	}
	total := floats.Sum(weights)
	if total <= 0 {
		return nil, errors.New("mixture weights must sum to > 0")
	}
	for c := 0; c < k; c++ {
		if len(means[c]) != dim || len(stddevs[c]) != dim {
			return nil, fmt.Errorf("component %d: expected dimension %d", c, dim)
		}
		if weights[c] < 0 {
			return nil, fmt.Errorf("component %d: negative weight %f", c, weights[c])
		}
		m.means.SetRow(c, means[c])
		m.stddevs.SetRow(c, stddevs[c])
		m.logWeights[c] = math.Log(weights[c] / total)

		norm := m.logWeights[c]
		for d, s := range stddevs[c] {
			if s <= 0 || math.IsNaN(s) {
				return nil, fmt.Errorf("component %d: stddev[%d] must be > 0", c, d)
			}
			norm -= math.Log(s) + 0.5*math.Log(2*math.Pi)
		}
		m.logNorm[c] = norm
	}
	return m, nil
}

func (m *Mixture) Dim() int {
	_, d := m.means.Dims()
	return d
}

func (m *Mixture) Components() int {
	k, _ := m.means.Dims()
	return k
}

func (m *Mixture) Mean(c int) []float64 {
	return mat.Row(nil, c, m.means)
}

func (m *Mixture) Stddev(c int) []float64 {
	return mat.Row(nil, c, m.stddevs)
}

func (m *Mixture) Weight(c int) float64 {
	return math.Exp(m.logWeights[c])
}

// Representatives returns one point per component, in component order: the
// component mean, or a single draw from the component when mode is "sample".
func (m *Mixture) Representatives(mode string, rng *rand.Rand) ([][]float64, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	k := m.Components()
	out := make([][]float64, k)
	switch mode {
	case "", ResampleMean:
		for c := 0; c < k; c++ {
			out[c] = m.Mean(c)
		}
	case ResampleSample:
		if rng == nil {
			return nil, errors.New("random source is required for sample resampling")
		}
		for c := 0; c < k; c++ {
			point := m.Mean(c)
			std := m.stddevs.RawRowView(c)
			for d := range point {
				point[d] += std[d] * rng.NormFloat64()
			}
			out[c] = point
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrResampleMode, mode)
	}
	return out, nil
}

// componentLogDensities fills dst[c] with log(pi_c) + log N(z | mu_c, sigma_c).
func (m *Mixture) componentLogDensities(z, dst []float64) {
	for c := range dst {
		mu := m.means.RawRowView(c)
		sd := m.stddevs.RawRowView(c)
		acc := m.logNorm[c]
		for d, v := range z {
			u := (v - mu[d]) / sd[d]
			acc -= 0.5 * u * u
		}
		dst[c] = acc
	}
}

// NegLogLikelihood is -log p(z) under the mixture.
func (m *Mixture) NegLogLikelihood(z []float64) float64 {
	logs := make([]float64, m.Components())
	m.componentLogDensities(z, logs)
	return -floats.LogSumExp(logs)
}

// Responsibilities returns the posterior component probabilities of z.
func (m *Mixture) Responsibilities(z []float64) []float64 {
	logs := make([]float64, m.Components())
	m.componentLogDensities(z, logs)
	lse := floats.LogSumExp(logs)
	for c := range logs {
		logs[c] = math.Exp(logs[c] - lse)
	}
	return logs
}

// Gradient is d(-log p(z))/dz.
func (m *Mixture) Gradient(z []float64) []float64 {
	resp := m.Responsibilities(z)
	grad := make([]float64, len(z))
	for c, r := range resp {
		if r == 0 {
			continue
		}
		mu := m.means.RawRowView(c)
		sd := m.stddevs.RawRowView(c)
		for d, v := range z {
			grad[d] += r * (v - mu[d]) / (sd[d] * sd[d])
		}
	}
	return grad
}

// Cluster assigns z to its most responsible component.
func (m *Mixture) Cluster(z []float64) int {
	logs := make([]float64, m.Components())
	m.componentLogDensities(z, logs)
	return floats.MaxIdx(logs)
}
