package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dgdinfer/internal/evaluate"
	"dgdinfer/internal/model"
)

const runIndexFile = "run_index.json"

const (
	configFile                = "config.json"
	lossHistoryFile           = "loss_history.json"
	selectionFile             = "selection.json"
	sampleRepresentationsFile = "sample_representations.csv"
	contextRepsFile           = "context_representations.csv"
	evaluationFile            = "evaluation.json"
)

type RunConfig struct {
	RunID              string  `json:"run_id"`
	ModelID            string  `json:"model_id"`
	ModelPath          string  `json:"model_path,omitempty"`
	DataPath           string  `json:"data_path,omitempty"`
	Variant            string  `json:"variant"`
	InferContextSpace  bool    `json:"infer_context_space"`
	FeedOneHot         bool    `json:"feed_onehot"`
	RefitContextSpace  bool    `json:"refit_context_space"`
	Scaling            string  `json:"scaling"`
	BatchSize          int     `json:"batch_size"`
	Epochs             int     `json:"epochs"`
	LearningRate       float64 `json:"learning_rate"`
	Beta1              float64 `json:"beta1"`
	Beta2              float64 `json:"beta2"`
	Epsilon            float64 `json:"epsilon"`
	WeightDecay        float64 `json:"weight_decay"`
	SelectionReduction string  `json:"selection_reduction"`
	RefineReduction    string  `json:"refine_reduction"`
	Resampling         string  `json:"resampling"`
	ContextComponents  int     `json:"context_components,omitempty"`
	Seed               int64   `json:"seed"`
	Samples            int     `json:"samples"`
	Contexts           int     `json:"contexts"`
}

type Selection struct {
	SampleChoice  []int `json:"sample_choice"`
	ContextChoice []int `json:"context_choice,omitempty"`
}

// LossSummary condenses a per-epoch loss curve.
type LossSummary struct {
	Initial     float64 `json:"initial"`
	Final       float64 `json:"final"`
	Min         float64 `json:"min"`
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Improvement float64 `json:"improvement"`
}

func SummarizeLoss(history []float64) LossSummary {
	if len(history) == 0 {
		return LossSummary{}
	}
	mean, std := stat.MeanStdDev(history, nil)
	if len(history) == 1 {
		std = 0
	}
	first, last := history[0], history[len(history)-1]
	return LossSummary{
		Initial:     first,
		Final:       last,
		Min:         floats.Min(history),
		Mean:        mean,
		Std:         std,
		Improvement: first - last,
	}
}

type RunArtifacts struct {
	Config                 RunConfig        `json:"config"`
	LossHistory            []float64        `json:"loss_history"`
	FinalLoss              float64          `json:"final_loss"`
	Selection              Selection        `json:"selection"`
	SampleRepresentations  [][]float64      `json:"-"`
	ContextRepresentations [][]float64      `json:"-"`
	Evaluation             *evaluate.Report `json:"evaluation,omitempty"`
}

type RunIndexEntry struct {
	RunID        string   `json:"run_id"`
	ModelID      string   `json:"model_id"`
	Variant      string   `json:"variant"`
	Samples      int      `json:"samples"`
	Contexts     int      `json:"contexts"`
	Epochs       int      `json:"epochs"`
	Seed         int64    `json:"seed"`
	FinalLoss    float64  `json:"final_loss"`
	AdjustedRand *float64 `json:"adjusted_rand,omitempty"`
	CreatedAtUTC string   `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, lossHistoryFile), map[string]any{
		"loss_history": artifacts.LossHistory,
		"final_loss":   artifacts.FinalLoss,
		"summary":      SummarizeLoss(artifacts.LossHistory),
	}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, selectionFile), artifacts.Selection); err != nil {
		return "", err
	}
	if err := WriteRepresentationsCSV(filepath.Join(runDir, sampleRepresentationsFile), artifacts.SampleRepresentations); err != nil {
		return "", err
	}
	if artifacts.ContextRepresentations != nil {
		if err := WriteRepresentationsCSV(filepath.Join(runDir, contextRepsFile), artifacts.ContextRepresentations); err != nil {
			return "", err
		}
	}
	if artifacts.Evaluation != nil {
		if err := WriteEvaluation(runDir, *artifacts.Evaluation); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Later appends win on equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, lossHistoryFile, selectionFile, sampleRepresentationsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{contextRepsFile, evaluationFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadLossHistory(baseDir, runID string) ([]float64, bool, error) {
	var payload struct {
		LossHistory []float64 `json:"loss_history"`
	}
	ok, err := readJSON(filepath.Join(baseDir, runID, lossHistoryFile), &payload)
	return payload.LossHistory, ok, err
}

func ReadSelection(baseDir, runID string) (Selection, bool, error) {
	var sel Selection
	ok, err := readJSON(filepath.Join(baseDir, runID, selectionFile), &sel)
	return sel, ok, err
}

func WriteEvaluation(runDir string, report evaluate.Report) error {
	return writeJSON(filepath.Join(runDir, evaluationFile), report)
}

func ReadEvaluation(baseDir, runID string) (evaluate.Report, bool, error) {
	var report evaluate.Report
	ok, err := readJSON(filepath.Join(baseDir, runID, evaluationFile), &report)
	return report, ok, err
}

// ReadRepresentations reads the sample or context layer written for a run.
func ReadRepresentations(baseDir, runID, space string) ([][]float64, bool, error) {
	file := sampleRepresentationsFile
	if space == model.SpaceContext {
		file = contextRepsFile
	}
	return ReadRepresentationsCSV(filepath.Join(baseDir, runID, file))
}

// WriteRepresentationsCSV writes one row per entity: its index followed by
// the latent coordinates.
func WriteRepresentationsCSV(path string, rows [][]float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	dim := 0
	if len(rows) > 0 {
		dim = len(rows[0])
	}
	header := make([]string, 0, dim+1)
	header = append(header, "index")
	for d := 0; d < dim; d++ {
		header = append(header, "z"+strconv.Itoa(d))
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	record := make([]string, dim+1)
	for i, row := range rows {
		record[0] = strconv.Itoa(i)
		for d, v := range row {
			record[d+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadRepresentationsCSV(path string) ([][]float64, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return [][]float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 1 || strings.TrimSpace(header[0]) != "index" {
		return nil, false, fmt.Errorf("representation csv must start with an index column")
	}

	rows := make([][]float64, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		row := make([]float64, len(record)-1)
		for d, field := range record[1:] {
			if row[d], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, false, fmt.Errorf("representation row %d: %w", len(rows), err)
			}
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
