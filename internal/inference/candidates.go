package inference

import (
	"fmt"
	"math/rand"
)

// CandidateSet holds one latent vector per mixture component, in component
// order.
type CandidateSet [][]float64

func (c CandidateSet) Dim() int {
	if len(c) == 0 {
		return 0
	}
	return len(c[0])
}

// GenerateCandidates draws exactly one representative per component.
func GenerateCandidates(mixture Mixture, mode string, rng *rand.Rand) (CandidateSet, error) {
	if mixture == nil {
		return nil, fmt.Errorf("%w: mixture is required", ErrInvalidConfig)
	}
	points, err := mixture.Representatives(mode, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if len(points) != mixture.Components() {
		return nil, fmt.Errorf("mixture returned %d representatives for %d components", len(points), mixture.Components())
	}
	for i, p := range points {
		if len(p) != mixture.Dim() {
			return nil, fmt.Errorf("representative %d has dimension %d, mixture dimension %d", i, len(p), mixture.Dim())
		}
	}
	return CandidateSet(points), nil
}

// GridCell is one (sample candidate, context candidate) combination.
type GridCell struct {
	SampleIndex  int
	ContextIndex int
	Sample       []float64
	Context      []float64
}

// Grid forms the Cartesian product of two candidate sets, sample index
// major: cell k pairs samples[k/len(contexts)] with contexts[k%len(contexts)].
func Grid(samples, contexts CandidateSet) []GridCell {
	cells := make([]GridCell, 0, len(samples)*len(contexts))
	for i, s := range samples {
		for j, c := range contexts {
			cells = append(cells, GridCell{SampleIndex: i, ContextIndex: j, Sample: s, Context: c})
		}
	}
	return cells
}
