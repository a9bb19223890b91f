package latent

import (
	"errors"
	"fmt"
	"math"
)

type AdamWConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdamWConfig matches the settings used when representations are
// refit for new samples.
func DefaultAdamWConfig() AdamWConfig {
	return AdamWConfig{
		LearningRate: 1e-2,
		Beta1:        0.5,
		Beta2:        0.7,
		Epsilon:      1e-8,
		WeightDecay:  0,
	}
}

func (c AdamWConfig) Validate() error {
	if c.LearningRate <= 0 {
		return errors.New("learning rate must be > 0")
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 {
		return fmt.Errorf("beta1 must be in [0, 1), got %f", c.Beta1)
	}
	if c.Beta2 < 0 || c.Beta2 >= 1 {
		return fmt.Errorf("beta2 must be in [0, 1), got %f", c.Beta2)
	}
	if c.Epsilon <= 0 {
		return errors.New("epsilon must be > 0")
	}
	if c.WeightDecay < 0 {
		return errors.New("weight decay must be >= 0")
	}
	return nil
}

type moments struct {
	m []float64
	v []float64
}

// AdamW applies decoupled weight decay Adam updates to a fixed set of layers
// using their accumulated gradients.
type AdamW struct {
	cfg    AdamWConfig
	layers []*Layer
	state  []moments
	t      int
}

func NewAdamW(cfg AdamWConfig, layers ...*Layer) (*AdamW, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opt := &AdamW{cfg: cfg}
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		n := len(layer.values.RawMatrix().Data)
		opt.layers = append(opt.layers, layer)
		opt.state = append(opt.state, moments{m: make([]float64, n), v: make([]float64, n)})
	}
	return opt, nil
}

func (o *AdamW) Steps() int {
	return o.t
}

// Step updates every layer once from its current gradient.
func (o *AdamW) Step() {
	o.t++
	b1, b2 := o.cfg.Beta1, o.cfg.Beta2
	b1Corr := 1.0 - math.Pow(b1, float64(o.t))
	b2Corr := 1.0 - math.Pow(b2, float64(o.t))
	lr := o.cfg.LearningRate

	for i, layer := range o.layers {
		params := layer.values.RawMatrix().Data
		grads := layer.grad.RawMatrix().Data
		st := o.state[i]
		for j := range params {
			g := grads[j]
			params[j] -= lr * o.cfg.WeightDecay * params[j]
			st.m[j] = b1*st.m[j] + (1-b1)*g
			st.v[j] = b2*st.v[j] + (1-b2)*(g*g)
			mhat := st.m[j] / b1Corr
			vhat := st.v[j] / b2Corr
			params[j] -= lr * mhat / (math.Sqrt(vhat) + o.cfg.Epsilon)
		}
	}
}
