package nn

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer computing act(W·x + b).
type Dense struct {
	Weights    *mat.Dense
	Bias       []float64
	Activation string

	fn         ActivationFunc
	derivative ActivationFunc
}

// Network is a frozen feed-forward decoder. It is read-only after
// construction and safe for concurrent use.
type Network struct {
	layers []Dense
}

func NewNetwork(layers []Dense) (*Network, error) {
	if len(layers) == 0 {
		return nil, errors.New("network requires at least one layer")
	}
	out := make([]Dense, len(layers))
	for i, layer := range layers {
		if layer.Weights == nil {
			return nil, fmt.Errorf("layer %d: weights are required", i)
		}
		rows, cols := layer.Weights.Dims()
		if len(layer.Bias) != rows {
			return nil, fmt.Errorf("layer %d: bias length %d does not match %d outputs", i, len(layer.Bias), rows)
		}
		if i > 0 {
			prevRows, _ := out[i-1].Weights.Dims()
			if cols != prevRows {
				return nil, fmt.Errorf("layer %d: expects %d inputs, previous layer emits %d", i, cols, prevRows)
			}
		}
		name := layer.Activation
		if name == "" {
			name = "identity"
		}
		entry, err := lookupActivation(name)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		out[i] = Dense{
			Weights:    mat.DenseCopyOf(layer.Weights),
			Bias:       append([]float64(nil), layer.Bias...),
			Activation: name,
			fn:         entry.fn,
			derivative: entry.derivative,
		}
	}
	return &Network{layers: out}, nil
}

func (n *Network) InputDim() int {
	_, cols := n.layers[0].Weights.Dims()
	return cols
}

func (n *Network) OutputDim() int {
	rows, _ := n.layers[len(n.layers)-1].Weights.Dims()
	return rows
}

func (n *Network) Layers() []Dense {
	return n.layers
}

func (n *Network) Forward(input []float64) ([]float64, error) {
	_, post, err := n.trace(input)
	if err != nil {
		return nil, err
	}
	return post[len(post)-1], nil
}

// InputGradient backpropagates outputGrad (dLoss/dOutput) to dLoss/dInput.
func (n *Network) InputGradient(input, outputGrad []float64) ([]float64, error) {
	if len(outputGrad) != n.OutputDim() {
		return nil, fmt.Errorf("output gradient length %d, network emits %d", len(outputGrad), n.OutputDim())
	}
	pre, _, err := n.trace(input)
	if err != nil {
		return nil, err
	}

	grad := mat.NewVecDense(len(outputGrad), append([]float64(nil), outputGrad...))
	for i := len(n.layers) - 1; i >= 0; i-- {
		layer := n.layers[i]
		z := pre[i]
		delta := mat.NewVecDense(len(z), nil)
		for j, v := range z {
			delta.SetVec(j, grad.AtVec(j)*layer.derivative(v))
		}
		_, cols := layer.Weights.Dims()
		next := mat.NewVecDense(cols, nil)
		next.MulVec(layer.Weights.T(), delta)
		grad = next
	}
	return grad.RawVector().Data, nil
}

// trace returns per-layer pre-activations and activations.
func (n *Network) trace(input []float64) ([][]float64, [][]float64, error) {
	if len(input) != n.InputDim() {
		return nil, nil, fmt.Errorf("input length %d, network expects %d", len(input), n.InputDim())
	}
	pre := make([][]float64, len(n.layers))
	post := make([][]float64, len(n.layers))
	x := mat.NewVecDense(len(input), append([]float64(nil), input...))
	for i, layer := range n.layers {
		rows, _ := layer.Weights.Dims()
		z := mat.NewVecDense(rows, nil)
		z.MulVec(layer.Weights, x)
		z.AddVec(z, mat.NewVecDense(rows, layer.Bias))

		zs := z.RawVector().Data
		a := make([]float64, rows)
		for j, v := range zs {
			a[j] = layer.fn(v)
		}
		pre[i] = zs
		post[i] = a
		x = mat.NewVecDense(rows, a)
	}
	return pre, post, nil
}
