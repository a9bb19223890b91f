package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

type LoadOptions struct {
	// LabelColumn selects the sample label column; negative values count
	// from the end of the header.
	LabelColumn int
	Scaling     string
}

func DefaultLoadOptions() LoadOptions {
	return LoadOptions{LabelColumn: -1, Scaling: ScalingMean}
}

func LoadCSVFile(path string, opts LoadOptions) (*FlattenedDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCSV(f, opts)
}

// LoadCSV reads a header row of context names plus one label column, then one
// row of counts per sample.
func LoadCSV(in io.Reader, opts LoadOptions) (*FlattenedDataset, error) {
	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("mutation csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read mutation csv header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("mutation csv needs a label column and at least one context, got %d columns", len(header))
	}
	labelCol := opts.LabelColumn
	if labelCol < 0 {
		labelCol += len(header)
	}
	if labelCol < 0 || labelCol >= len(header) {
		return nil, fmt.Errorf("label column %d out of range for %d columns", opts.LabelColumn, len(header))
	}

	contexts := make([]string, 0, len(header)-1)
	for i, name := range header {
		if i == labelCol {
			continue
		}
		contexts = append(contexts, strings.TrimSpace(name))
	}

	var labels []string
	var data []float64
	rowIndex := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mutation csv row %d: %w", rowIndex, err)
		}
		for i, field := range record {
			if i == labelCol {
				labels = append(labels, strings.TrimSpace(field))
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("mutation csv row %d column %q: %w", rowIndex, header[i], err)
			}
			data = append(data, v)
		}
		rowIndex++
	}
	if len(labels) == 0 {
		return nil, errors.New("mutation csv has no sample rows")
	}

	matrix := mat.NewDense(len(labels), len(contexts), data)
	return New(matrix, contexts, labels, opts.Scaling)
}
