package latent

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var ErrIndexRange = errors.New("representation index out of range")

// Layer holds one latent vector per entity index in [0, Len()). Storage is
// allocated once; values change only through Set or an optimizer step.
type Layer struct {
	values *mat.Dense
	grad   *mat.Dense
}

func NewLayer(count, dim int) (*Layer, error) {
	if count <= 0 || dim <= 0 {
		return nil, fmt.Errorf("layer shape must be positive, got %dx%d", count, dim)
	}
	return &Layer{
		values: mat.NewDense(count, dim, nil),
		grad:   mat.NewDense(count, dim, nil),
	}, nil
}

// NewLayerFrom copies rows into a new layer.
func NewLayerFrom(rows [][]float64) (*Layer, error) {
	if len(rows) == 0 {
		return nil, errors.New("at least one row is required")
	}
	layer, err := NewLayer(len(rows), len(rows[0]))
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err := layer.Set(i, row); err != nil {
			return nil, err
		}
	}
	return layer, nil
}

func (l *Layer) Len() int {
	r, _ := l.values.Dims()
	return r
}

func (l *Layer) Dim() int {
	_, c := l.values.Dims()
	return c
}

func (l *Layer) check(i int) error {
	if i < 0 || i >= l.Len() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexRange, i, l.Len())
	}
	return nil
}

// At returns a copy of the vector at index i.
func (l *Layer) At(i int) ([]float64, error) {
	if err := l.check(i); err != nil {
		return nil, err
	}
	return mat.Row(nil, i, l.values), nil
}

// view aliases the stored row; callers must not retain or mutate it.
func (l *Layer) view(i int) []float64 {
	return l.values.RawRowView(i)
}

// View is the read-only fast path used by the refiner's inner loop.
func (l *Layer) View(i int) ([]float64, error) {
	if err := l.check(i); err != nil {
		return nil, err
	}
	return l.view(i), nil
}

func (l *Layer) Set(i int, v []float64) error {
	if err := l.check(i); err != nil {
		return err
	}
	if len(v) != l.Dim() {
		return fmt.Errorf("vector length %d, layer dimension %d", len(v), l.Dim())
	}
	l.values.SetRow(i, v)
	return nil
}

// Rows copies every vector out of the layer.
func (l *Layer) Rows() [][]float64 {
	out := make([][]float64, l.Len())
	for i := range out {
		out[i] = mat.Row(nil, i, l.values)
	}
	return out
}

func (l *Layer) Clone() *Layer {
	return &Layer{
		values: mat.DenseCopyOf(l.values),
		grad:   mat.NewDense(l.Len(), l.Dim(), nil),
	}
}

func (l *Layer) ZeroGrad() {
	l.grad.Zero()
}

// AddGrad accumulates scale*g into the gradient of index i.
func (l *Layer) AddGrad(i int, g []float64, scale float64) error {
	if err := l.check(i); err != nil {
		return err
	}
	if len(g) != l.Dim() {
		return fmt.Errorf("gradient length %d, layer dimension %d", len(g), l.Dim())
	}
	row := l.grad.RawRowView(i)
	for d, v := range g {
		row[d] += scale * v
	}
	return nil
}

func (l *Layer) Grad(i int) ([]float64, error) {
	if err := l.check(i); err != nil {
		return nil, err
	}
	return mat.Row(nil, i, l.grad), nil
}
