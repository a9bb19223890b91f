// Package evaluate scores fitted sample representations against known
// sample labels.
package evaluate

import (
	"errors"
	"fmt"
	"sort"

	"dgdinfer/internal/latent"
)

// Clusterer assigns a latent vector to a mixture component.
type Clusterer interface {
	Cluster(z []float64) int
}

type Report struct {
	Clusters     []int          `json:"clusters"`
	Mapping      map[int]string `json:"mapping"`
	Predicted    []string       `json:"predicted"`
	AdjustedRand float64        `json:"adjusted_rand"`
	Rand         float64        `json:"rand"`
	Accuracy     float64        `json:"accuracy"`
}

// Clusters assigns every representation in the layer to its most
// responsible component.
func Clusters(mix Clusterer, layer *latent.Layer) []int {
	out := make([]int, layer.Len())
	for i, z := range layer.Rows() {
		out[i] = mix.Cluster(z)
	}
	return out
}

// MajorityLabels maps each cluster to its most frequent label. Ties go to
// the lexicographically smallest label.
func MajorityLabels(clusters []int, labels []string) (map[int]string, error) {
	if len(clusters) != len(labels) {
		return nil, fmt.Errorf("%d cluster assignments for %d labels", len(clusters), len(labels))
	}
	counts := make(map[int]map[string]int)
	for i, c := range clusters {
		if counts[c] == nil {
			counts[c] = make(map[string]int)
		}
		counts[c][labels[i]]++
	}
	mapping := make(map[int]string, len(counts))
	for c, byLabel := range counts {
		names := make([]string, 0, len(byLabel))
		for name := range byLabel {
			names = append(names, name)
		}
		sort.Strings(names)
		best := names[0]
		for _, name := range names[1:] {
			if byLabel[name] > byLabel[best] {
				best = name
			}
		}
		mapping[c] = best
	}
	return mapping, nil
}

func Evaluate(mix Clusterer, samples *latent.Layer, labels []string) (Report, error) {
	if mix == nil || samples == nil {
		return Report{}, errors.New("mixture and sample representations are required")
	}
	if len(labels) != samples.Len() {
		return Report{}, fmt.Errorf("%d labels for %d samples", len(labels), samples.Len())
	}
	clusters := Clusters(mix, samples)
	mapping, err := MajorityLabels(clusters, labels)
	if err != nil {
		return Report{}, err
	}
	predicted := make([]string, len(clusters))
	correct := 0
	for i, c := range clusters {
		predicted[i] = mapping[c]
		if predicted[i] == labels[i] {
			correct++
		}
	}
	ari, err := AdjustedRandIndex(labels, predicted)
	if err != nil {
		return Report{}, err
	}
	ri, err := RandIndex(labels, predicted)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Clusters:     clusters,
		Mapping:      mapping,
		Predicted:    predicted,
		AdjustedRand: ari,
		Rand:         ri,
		Accuracy:     float64(correct) / float64(len(labels)),
	}, nil
}
