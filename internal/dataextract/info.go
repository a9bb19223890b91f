package dataextract

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dgdinfer/internal/dataset"
)

type DatasetInfo struct {
	Samples          int      `json:"samples"`
	Contexts         int      `json:"contexts"`
	Pairs            int      `json:"pairs"`
	DistinctContexts int      `json:"distinct_contexts"`
	UnknownContexts  []string `json:"unknown_contexts,omitempty"`
	Labels           []string `json:"labels,omitempty"`
	TotalCount       float64  `json:"total_count"`
	MeanSampleCount  float64  `json:"mean_sample_count"`
	MinScale         float64  `json:"min_scale"`
	MaxScale         float64  `json:"max_scale"`
	ZeroPairs        int      `json:"zero_pairs"`
}

// Describe summarizes a loaded dataset. Labels lists each distinct label
// once in sorted order.
func Describe(d *dataset.FlattenedDataset) (DatasetInfo, error) {
	info := DatasetInfo{
		Samples:          d.NumSamples(),
		Contexts:         d.NumContexts(),
		Pairs:            d.Len(),
		DistinctContexts: d.DistinctContexts(),
	}
	for k, name := range d.ContextNames() {
		if d.OneHot(k)[dataset.OneHotDim-1] == 1 {
			info.UnknownContexts = append(info.UnknownContexts, name)
		}
	}

	perSample := make([]float64, d.NumSamples())
	for i := 0; i < d.Len(); i++ {
		item, err := d.Get(i)
		if err != nil {
			return DatasetInfo{}, err
		}
		perSample[item.Sample] += item.Value
		if item.Value == 0 {
			info.ZeroPairs++
		}
	}
	info.TotalCount = floats.Sum(perSample)
	info.MeanSampleCount = stat.Mean(perSample, nil)

	scales := d.Scales()
	info.MinScale = floats.Min(scales)
	info.MaxScale = floats.Max(scales)

	seen := make(map[string]struct{})
	for _, label := range d.Labels() {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		info.Labels = append(info.Labels, label)
	}
	sort.Strings(info.Labels)
	return info, nil
}
