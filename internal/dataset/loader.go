package dataset

import "fmt"

// Batch is a contiguous run of flattened pairs in linear-index order.
type Batch struct {
	Values   []float64
	Scales   []float64
	Samples  []int
	Contexts []int
	OneHots  [][]float64
}

func (b Batch) Len() int {
	return len(b.Values)
}

// Loader yields a dataset in fixed-size batches. Iteration is synchronous and
// deterministic.
type Loader struct {
	data      *FlattenedDataset
	batchSize int
}

func NewLoader(data *FlattenedDataset, batchSize int) (*Loader, error) {
	if data == nil {
		return nil, fmt.Errorf("dataset is required")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", batchSize)
	}
	return &Loader{data: data, batchSize: batchSize}, nil
}

func (l *Loader) NumSamples() int {
	return l.data.NumSamples()
}

func (l *Loader) NumContexts() int {
	return l.data.NumContexts()
}

func (l *Loader) OneHotDim() int {
	return OneHotDim
}

func (l *Loader) NumBatches() int {
	return (l.data.Len() + l.batchSize - 1) / l.batchSize
}

// ForEachBatch stops at the first error returned by fn.
func (l *Loader) ForEachBatch(fn func(Batch) error) error {
	total := l.data.Len()
	for start := 0; start < total; start += l.batchSize {
		end := min(start+l.batchSize, total)
		n := end - start
		batch := Batch{
			Values:   make([]float64, n),
			Scales:   make([]float64, n),
			Samples:  make([]int, n),
			Contexts: make([]int, n),
			OneHots:  make([][]float64, n),
		}
		for i := start; i < end; i++ {
			item, err := l.data.Get(i)
			if err != nil {
				return err
			}
			j := i - start
			batch.Values[j] = item.Value
			batch.Scales[j] = item.Scale
			batch.Samples[j] = item.Sample
			batch.Contexts[j] = item.Context
			batch.OneHots[j] = item.OneHot
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}
