package evaluate

import (
	"fmt"

	"gonum.org/v1/gonum/stat/combin"
)

// contingency counts co-occurrences of two labelings of the same items.
type contingency struct {
	n     int
	cells map[[2]int]int
	rows  map[int]int
	cols  map[int]int
}

func newContingency[T, U comparable](a []T, b []U) (contingency, error) {
	if len(a) != len(b) {
		return contingency{}, fmt.Errorf("labelings differ in length: %d vs %d", len(a), len(b))
	}
	ai := indexer[T]{}
	bi := indexer[U]{}
	c := contingency{
		n:     len(a),
		cells: make(map[[2]int]int),
		rows:  make(map[int]int),
		cols:  make(map[int]int),
	}
	for i := range a {
		r, k := ai.id(a[i]), bi.id(b[i])
		c.cells[[2]int{r, k}]++
		c.rows[r]++
		c.cols[k]++
	}
	return c, nil
}

type indexer[T comparable] map[T]int

func (ix indexer[T]) id(v T) int {
	if id, ok := ix[v]; ok {
		return id
	}
	id := len(ix)
	ix[v] = id
	return id
}

func pairs(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(combin.Binomial(n, 2))
}

func (c contingency) sums() (index, rowPairs, colPairs float64) {
	for _, v := range c.cells {
		index += pairs(v)
	}
	for _, v := range c.rows {
		rowPairs += pairs(v)
	}
	for _, v := range c.cols {
		colPairs += pairs(v)
	}
	return index, rowPairs, colPairs
}

// AdjustedRandIndex is the chance-corrected agreement of two labelings:
// 1 for identical partitions, around 0 for independent ones.
func AdjustedRandIndex[T, U comparable](a []T, b []U) (float64, error) {
	c, err := newContingency(a, b)
	if err != nil {
		return 0, err
	}
	total := pairs(c.n)
	if total == 0 {
		return 1, nil
	}
	index, rowPairs, colPairs := c.sums()
	expected := rowPairs * colPairs / total
	maximum := (rowPairs + colPairs) / 2
	if maximum == expected {
		return 1, nil
	}
	return (index - expected) / (maximum - expected), nil
}

// RandIndex is the fraction of item pairs on which two labelings agree.
func RandIndex[T, U comparable](a []T, b []U) (float64, error) {
	c, err := newContingency(a, b)
	if err != nil {
		return 0, err
	}
	total := pairs(c.n)
	if total == 0 {
		return 1, nil
	}
	index, rowPairs, colPairs := c.sums()
	return (total + 2*index - rowPairs - colPairs) / total, nil
}
