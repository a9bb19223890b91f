package dataset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	ScalingMean = "mean"
	ScalingMax  = "max"
	ScalingSum  = "sum"

	// OneHotDim is the length of a context encoding:
	// [ref A,C,G,T | alt A,C,G,T | unknown].
	OneHotDim  = 9
	unknownBit = 8
)

var (
	ErrScalingType = errors.New("invalid scaling type")
	ErrPairIndex   = errors.New("pair index out of range")
)

var transitionPattern = regexp.MustCompile(`\[([ACGT])>([ACGT])\]`)

// Item is one (sample, context) observation.
type Item struct {
	Value   float64
	Scale   float64
	Sample  int
	Context int
	OneHot  []float64
}

// FlattenedDataset exposes a samples x contexts count matrix as one row per
// (sample, context) pair, context varying fastest.
type FlattenedDataset struct {
	matrix   *mat.Dense
	labels   []string
	contexts []string
	scaling  string
	scales   []float64
	onehots  map[string][]float64
}

// New takes ownership of matrix. labels may be nil.
func New(matrix *mat.Dense, contexts, labels []string, scaling string) (*FlattenedDataset, error) {
	if matrix == nil {
		return nil, errors.New("matrix is required")
	}
	samples, width := matrix.Dims()
	if len(contexts) != width {
		return nil, fmt.Errorf("got %d context names for %d matrix columns", len(contexts), width)
	}
	if labels != nil && len(labels) != samples {
		return nil, fmt.Errorf("got %d labels for %d samples", len(labels), samples)
	}
	scaling = strings.ToLower(strings.TrimSpace(scaling))

	scales := make([]float64, samples)
	for s := 0; s < samples; s++ {
		v, err := ScalingValue(matrix.RawRowView(s), scaling)
		if err != nil {
			return nil, err
		}
		scales[s] = v
	}

	onehots := make(map[string][]float64, len(contexts))
	for _, name := range contexts {
		if _, ok := onehots[name]; ok {
			continue
		}
		onehots[name] = ContextOneHot(name)
	}

	return &FlattenedDataset{
		matrix:   matrix,
		labels:   append([]string(nil), labels...),
		contexts: append([]string(nil), contexts...),
		scaling:  scaling,
		scales:   scales,
		onehots:  onehots,
	}, nil
}

// ScalingValue reduces one sample row to its library-size scale.
func ScalingValue(row []float64, mode string) (float64, error) {
	switch mode {
	case ScalingMean:
		return stat.Mean(row, nil), nil
	case ScalingMax:
		return floats.Max(row), nil
	case ScalingSum:
		return floats.Sum(row), nil
	default:
		return 0, fmt.Errorf("%w: %q (want mean|max|sum)", ErrScalingType, mode)
	}
}

// ContextOneHot encodes the bracketed base change of a context name such as
// "A[C>T]G". Names without one map to the unknown marker.
func ContextOneHot(name string) []float64 {
	out := make([]float64, OneHotDim)
	match := transitionPattern.FindStringSubmatch(strings.ToUpper(name))
	if match == nil {
		out[unknownBit] = 1
		return out
	}
	out[nucleotideIndex(match[1][0])] = 1
	out[4+nucleotideIndex(match[2][0])] = 1
	return out
}

func nucleotideIndex(b byte) int {
	switch b {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	default:
		return 3
	}
}

func (d *FlattenedDataset) NumSamples() int {
	r, _ := d.matrix.Dims()
	return r
}

func (d *FlattenedDataset) NumContexts() int {
	_, c := d.matrix.Dims()
	return c
}

func (d *FlattenedDataset) Len() int {
	return d.NumSamples() * d.NumContexts()
}

func (d *FlattenedDataset) Scaling() string {
	return d.scaling
}

// Decode maps a linear index to its (sample, context) pair.
func (d *FlattenedDataset) Decode(i int) (int, int, error) {
	if i < 0 || i >= d.Len() {
		return 0, 0, fmt.Errorf("%w: %d not in [0, %d)", ErrPairIndex, i, d.Len())
	}
	m := d.NumContexts()
	return i / m, i % m, nil
}

func (d *FlattenedDataset) Encode(sample, context int) (int, error) {
	if sample < 0 || sample >= d.NumSamples() || context < 0 || context >= d.NumContexts() {
		return 0, fmt.Errorf("%w: (%d, %d)", ErrPairIndex, sample, context)
	}
	return sample*d.NumContexts() + context, nil
}

func (d *FlattenedDataset) Get(i int) (Item, error) {
	s, c, err := d.Decode(i)
	if err != nil {
		return Item{}, err
	}
	return Item{
		Value:   d.matrix.At(s, c),
		Scale:   d.scales[s],
		Sample:  s,
		Context: c,
		OneHot:  d.onehots[d.contexts[c]],
	}, nil
}

func (d *FlattenedDataset) Scale(sample int) float64 {
	return d.scales[sample]
}

func (d *FlattenedDataset) Scales() []float64 {
	return append([]float64(nil), d.scales...)
}

// OneHot returns the cached encoding of a context; callers must not mutate it.
func (d *FlattenedDataset) OneHot(context int) []float64 {
	return d.onehots[d.contexts[context]]
}

func (d *FlattenedDataset) ContextNames() []string {
	return append([]string(nil), d.contexts...)
}

func (d *FlattenedDataset) Labels() []string {
	return append([]string(nil), d.labels...)
}

// DistinctContexts is the number of cached context encodings.
func (d *FlattenedDataset) DistinctContexts() int {
	return len(d.onehots)
}
