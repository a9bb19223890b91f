package gmm

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/muesli/clusters"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// minStddev bounds the per-dimension spread of derived components so that a
// singleton cluster does not collapse to a point mass.
const minStddev = 1e-2

const (
	maxLloydIterations = 96
	// Lloyd stops once fewer than this share of the codes change cluster.
	lloydDeltaThreshold = 0.01
)

// FromKMeans derives a mixture from a set of trained latent codes: each
// non-empty k-means cluster becomes one component whose mean is the centroid,
// whose stddev is the per-dimension spread of its members and whose weight is
// its share of the codes. Components are ordered by decreasing size. All
// randomness comes from rng, so equal seeds give equal mixtures.
func FromKMeans(codes [][]float64, k int, rng *rand.Rand) (*Mixture, error) {
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if len(codes) == 0 {
		return nil, errors.New("at least one code is required")
	}
	if k <= 0 {
		return nil, fmt.Errorf("component count must be > 0, got %d", k)
	}
	dim := len(codes[0])
	dataset := make(clusters.Observations, 0, len(codes))
	for i, code := range codes {
		if len(code) != dim {
			return nil, fmt.Errorf("code %d: expected dimension %d, got %d", i, dim, len(code))
		}
		dataset = append(dataset, clusters.Coordinates(append([]float64(nil), code...)))
	}
	k = min(k, len(codes))

	parts := partition(dataset, k, rng)

	fallback := globalStddev(codes)
	var means, stddevs [][]float64
	var weights []float64
	for _, cluster := range sortedBySize(parts) {
		if len(cluster.Observations) == 0 {
			continue
		}
		means = append(means, append([]float64(nil), cluster.Center...))
		stddevs = append(stddevs, clusterStddev(cluster, dim, fallback))
		weights = append(weights, float64(len(cluster.Observations)))
	}
	return New(means, stddevs, weights)
}

// partition runs Lloyd iterations from a k-means++ seeding. An emptied
// cluster takes a code from a cluster that holds at least two.
func partition(dataset clusters.Observations, k int, rng *rand.Rand) clusters.Clusters {
	cc := seedCenters(dataset, k, rng)
	assigned := make([]int, len(dataset))
	for i := range assigned {
		assigned[i] = -1
	}

	for iter := 0; ; iter++ {
		changes := 0
		cc.Reset()
		for p, point := range dataset {
			ci := cc.Nearest(point)
			cc[ci].Append(point)
			if assigned[p] != ci {
				assigned[p] = ci
				changes++
			}
		}

		for ci := range cc {
			if len(cc[ci].Observations) > 0 {
				continue
			}
			start := rng.Intn(len(dataset))
			for off := 0; off < len(dataset); off++ {
				p := (start + off) % len(dataset)
				from := assigned[p]
				if len(cc[from].Observations) < 2 {
					continue
				}
				cc[from].Observations = removeObservation(cc[from].Observations, dataset[p])
				cc[ci].Append(dataset[p])
				assigned[p] = ci
				changes = len(dataset)
				break
			}
		}

		if changes > 0 {
			cc.Recenter()
		}
		if iter == maxLloydIterations || changes < int(float64(len(dataset))*lloydDeltaThreshold) || changes == 0 {
			return cc
		}
	}
}

// seedCenters picks k starting centers with k-means++: the first uniformly,
// each next one with probability proportional to its squared distance from
// the nearest center already chosen.
func seedCenters(dataset clusters.Observations, k int, rng *rand.Rand) clusters.Clusters {
	cc := make(clusters.Clusters, 0, k)
	first := dataset[rng.Intn(len(dataset))].Coordinates()
	cc = append(cc, clusters.Cluster{Center: append(clusters.Coordinates(nil), first...)})

	dist := make([]float64, len(dataset))
	for len(cc) < k {
		for i, point := range dataset {
			dist[i] = point.Distance(cc[cc.Nearest(point)].Center)
		}
		next := rng.Intn(len(dataset))
		if total := floats.Sum(dist); total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target < 0 {
					next = i
					break
				}
			}
		}
		c := dataset[next].Coordinates()
		cc = append(cc, clusters.Cluster{Center: append(clusters.Coordinates(nil), c...)})
	}
	return cc
}

func removeObservation(obs clusters.Observations, target clusters.Observation) clusters.Observations {
	for i, o := range obs {
		if o.Distance(target.Coordinates()) == 0 {
			return append(obs[:i:i], obs[i+1:]...)
		}
	}
	return obs
}

func sortedBySize(cc clusters.Clusters) clusters.Clusters {
	out := append(clusters.Clusters(nil), cc...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j].Observations) > len(out[j-1].Observations); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func clusterStddev(cluster clusters.Cluster, dim int, fallback []float64) []float64 {
	out := make([]float64, dim)
	if len(cluster.Observations) < 2 {
		copy(out, fallback)
		return out
	}
	column := make([]float64, len(cluster.Observations))
	for d := 0; d < dim; d++ {
		for i, obs := range cluster.Observations {
			column[i] = obs.Coordinates()[d]
		}
		out[d] = math.Max(stat.PopStdDev(column, nil), minStddev)
	}
	return out
}

func globalStddev(codes [][]float64) []float64 {
	dim := len(codes[0])
	out := make([]float64, dim)
	column := make([]float64, len(codes))
	for d := 0; d < dim; d++ {
		for i, code := range codes {
			column[i] = code[d]
		}
		s := stat.PopStdDev(column, nil)
		if s < minStddev {
			s = 1
		}
		out[d] = s
	}
	return out
}
