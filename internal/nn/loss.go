package nn

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	LossNegativeBinomial = "nb"
	LossPoisson          = "poisson"
	LossSquaredError     = "mse"

	// meanFloor keeps log terms finite when a decoder emits zero. Below it
	// the loss is constant and its gradient is zero.
	meanFloor = 1e-10
)

var ErrLossNotFound = errors.New("loss not found")

// Loss scores a single decoder output against an observed count. The
// predicted mean is scale*output.
type Loss interface {
	Name() string
	Value(output, target, scale float64) float64
	// Gradient is dValue/dOutput.
	Gradient(output, target, scale float64) float64
}

func NewLoss(name string, dispersion float64) (Loss, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", LossNegativeBinomial, "negative_binomial":
		if dispersion <= 0 {
			return nil, fmt.Errorf("negative binomial dispersion must be > 0, got %f", dispersion)
		}
		return NegativeBinomial{Dispersion: dispersion}, nil
	case LossPoisson:
		return Poisson{}, nil
	case LossSquaredError, "squared_error":
		return SquaredError{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrLossNotFound, name)
	}
}

// NegativeBinomial is the negative log-likelihood of target under
// NB(mean, dispersion).
type NegativeBinomial struct {
	Dispersion float64
}

func (NegativeBinomial) Name() string { return LossNegativeBinomial }

func (l NegativeBinomial) Value(output, target, scale float64) float64 {
	r := l.Dispersion
	m := math.Max(scale*output, meanFloor)
	lgKR, _ := math.Lgamma(target + r)
	lgR, _ := math.Lgamma(r)
	lgK1, _ := math.Lgamma(target + 1)
	logp := lgKR - lgR - lgK1 + r*math.Log(r/(r+m)) + target*math.Log(m/(r+m))
	return -logp
}

func (l NegativeBinomial) Gradient(output, target, scale float64) float64 {
	r := l.Dispersion
	m := scale * output
	if m < meanFloor {
		return 0
	}
	return scale * ((target+r)/(r+m) - target/m)
}

type Poisson struct{}

func (Poisson) Name() string { return LossPoisson }

func (Poisson) Value(output, target, scale float64) float64 {
	m := math.Max(scale*output, meanFloor)
	lgK1, _ := math.Lgamma(target + 1)
	return m - target*math.Log(m) + lgK1
}

func (Poisson) Gradient(output, target, scale float64) float64 {
	m := scale * output
	if m < meanFloor {
		return 0
	}
	return scale * (1 - target/m)
}

type SquaredError struct{}

func (SquaredError) Name() string { return LossSquaredError }

func (SquaredError) Value(output, target, scale float64) float64 {
	d := target - scale*output
	return d * d
}

func (SquaredError) Gradient(output, target, scale float64) float64 {
	return -2 * scale * (target - scale*output)
}
