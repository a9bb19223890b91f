// Package dataextract turns mutation catalogs into the wide count matrix
// the inference loader reads, and summarizes loaded matrices.
package dataextract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// CatalogOptions names the columns of a long catalog. When CountColumn is
// absent from the header every row counts as one mutation. LabelColumn is
// optional.
type CatalogOptions struct {
	SampleColumn  string
	ContextColumn string
	CountColumn   string
	LabelColumn   string
}

func DefaultCatalogOptions() CatalogOptions {
	return CatalogOptions{
		SampleColumn:  "sample",
		ContextColumn: "context",
		CountColumn:   "count",
		LabelColumn:   "label",
	}
}

// Catalog holds counts per (sample, context) with samples and contexts kept
// in first-seen order.
type Catalog struct {
	Samples  []string
	Contexts []string
	Labels   []string

	sampleIdx  map[string]int
	contextIdx map[string]int
	counts     map[[2]int]float64
}

func ReadCatalog(in io.Reader, opts CatalogOptions) (*Catalog, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("catalog csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog csv header: %w", err)
	}
	sampleCol, err := columnIndexByName(header, opts.SampleColumn)
	if err != nil {
		return nil, err
	}
	contextCol, err := columnIndexByName(header, opts.ContextColumn)
	if err != nil {
		return nil, err
	}
	countCol := optionalColumn(header, opts.CountColumn)
	labelCol := optionalColumn(header, opts.LabelColumn)

	c := &Catalog{
		sampleIdx:  make(map[string]int),
		contextIdx: make(map[string]int),
		counts:     make(map[[2]int]float64),
	}
	rowIndex := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog csv row %d: %w", rowIndex, err)
		}
		if blankRecord(record) {
			continue
		}
		sample, err := field(record, sampleCol, rowIndex)
		if err != nil {
			return nil, err
		}
		context, err := field(record, contextCol, rowIndex)
		if err != nil {
			return nil, err
		}
		count := 1.0
		if countCol >= 0 {
			raw, err := field(record, countCol, rowIndex)
			if err != nil {
				return nil, err
			}
			if count, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, fmt.Errorf("catalog csv row %d count: %w", rowIndex, err)
			}
			if count < 0 {
				return nil, fmt.Errorf("catalog csv row %d: negative count %v", rowIndex, count)
			}
		}
		label := ""
		if labelCol >= 0 && labelCol < len(record) {
			label = strings.TrimSpace(record[labelCol])
		}
		if err := c.add(sample, context, label, count); err != nil {
			return nil, fmt.Errorf("catalog csv row %d: %w", rowIndex, err)
		}
		rowIndex++
	}
	if len(c.Samples) == 0 {
		return nil, fmt.Errorf("catalog csv has no mutation rows")
	}
	return c, nil
}

func (c *Catalog) add(sample, context, label string, count float64) error {
	s, ok := c.sampleIdx[sample]
	if !ok {
		s = len(c.Samples)
		c.sampleIdx[sample] = s
		c.Samples = append(c.Samples, sample)
		c.Labels = append(c.Labels, label)
	} else if label != "" {
		switch c.Labels[s] {
		case "":
			c.Labels[s] = label
		case label:
		default:
			return fmt.Errorf("sample %s has conflicting labels %q and %q", sample, c.Labels[s], label)
		}
	}
	k, ok := c.contextIdx[context]
	if !ok {
		k = len(c.Contexts)
		c.contextIdx[context] = k
		c.Contexts = append(c.Contexts, context)
	}
	c.counts[[2]int{s, k}] += count
	return nil
}

// Matrix returns the samples x contexts count matrix.
func (c *Catalog) Matrix() *mat.Dense {
	m := mat.NewDense(len(c.Samples), len(c.Contexts), nil)
	for key, v := range c.counts {
		m.Set(key[0], key[1], v)
	}
	return m
}

// WriteMatrixCSV writes one column per context followed by a trailing
// label column. Samples without a label get their sample name.
func (c *Catalog) WriteMatrixCSV(out io.Writer) error {
	writer := csv.NewWriter(out)
	header := append(append([]string(nil), c.Contexts...), "label")
	if err := writer.Write(header); err != nil {
		return err
	}
	m := c.Matrix()
	record := make([]string, len(c.Contexts)+1)
	for s := range c.Samples {
		for k := range c.Contexts {
			record[k] = strconv.FormatFloat(m.At(s, k), 'g', -1, 64)
		}
		label := c.Labels[s]
		if label == "" {
			label = c.Samples[s]
		}
		record[len(c.Contexts)] = label
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ConvertCatalogFile(inPath, outPath string, opts CatalogOptions) (*Catalog, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	c, err := ReadCatalog(in, opts)
	if err != nil {
		return nil, err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return nil, err
	}
	if err := c.WriteMatrixCSV(out); err != nil {
		_ = out.Close()
		return nil, err
	}
	return c, out.Close()
}

func field(record []string, idx, row int) (string, error) {
	if idx >= len(record) {
		return "", fmt.Errorf("catalog csv row %d: missing column %d", row, idx)
	}
	v := strings.TrimSpace(record[idx])
	if v == "" {
		return "", fmt.Errorf("catalog csv row %d: empty column %d", row, idx)
	}
	return v, nil
}

func columnIndexByName(header []string, name string) (int, error) {
	want := strings.TrimSpace(strings.ToLower(name))
	for i, field := range header {
		if strings.ToLower(strings.TrimSpace(field)) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("csv column not found: %s", name)
}

func optionalColumn(header []string, name string) int {
	if strings.TrimSpace(name) == "" {
		return -1
	}
	idx, err := columnIndexByName(header, name)
	if err != nil {
		return -1
	}
	return idx
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
