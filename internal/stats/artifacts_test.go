package stats

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"dgdinfer/internal/evaluate"
	"dgdinfer/internal/model"
)

func testArtifacts(runID string) RunArtifacts {
	return RunArtifacts{
		Config: RunConfig{
			RunID:    runID,
			ModelID:  "dgd-1",
			Variant:  "joint",
			Epochs:   3,
			Seed:     1,
			Samples:  2,
			Contexts: 3,
		},
		LossHistory:            []float64{9, 6, 5},
		FinalLoss:              5,
		Selection:              Selection{SampleChoice: []int{0, 1}, ContextChoice: []int{1, 0, 1}},
		SampleRepresentations:  [][]float64{{0.25, -1}, {1e-3, 2}},
		ContextRepresentations: [][]float64{{1}, {2}, {3}},
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runDir, err := WriteRunArtifacts(baseDir, testArtifacts("run-123"))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range []string{"config.json", "loss_history.json", "selection.json", "sample_representations.csv", "context_representations.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}
	if _, err := os.Stat(filepath.Join(runDir, "evaluation.json")); !os.IsNotExist(err) {
		t.Fatalf("expected no evaluation file, got %v", err)
	}

	if err := WriteEvaluation(runDir, evaluate.Report{AdjustedRand: 0.5, Rand: 0.75}); err != nil {
		t.Fatalf("write evaluation: %v", err)
	}
	exportedDir, err := ExportRunArtifacts(baseDir, "run-123", outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range []string{"config.json", "loss_history.json", "selection.json", "sample_representations.csv", "context_representations.csv", "evaluation.json"} {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}

	if _, err := ExportRunArtifacts(baseDir, "missing", outDir); err == nil {
		t.Fatal("expected missing run error")
	}
}

func TestReadRunArtifactsBack(t *testing.T) {
	baseDir := t.TempDir()
	if _, err := WriteRunArtifacts(baseDir, testArtifacts("run-1")); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	cfg, ok, err := ReadRunConfig(baseDir, "run-1")
	if err != nil || !ok || cfg.Variant != "joint" {
		t.Fatalf("read config: cfg=%+v ok=%t err=%v", cfg, ok, err)
	}
	history, ok, err := ReadLossHistory(baseDir, "run-1")
	if err != nil || !ok || len(history) != 3 || history[2] != 5 {
		t.Fatalf("read history: %+v ok=%t err=%v", history, ok, err)
	}
	sel, ok, err := ReadSelection(baseDir, "run-1")
	if err != nil || !ok || len(sel.ContextChoice) != 3 {
		t.Fatalf("read selection: %+v ok=%t err=%v", sel, ok, err)
	}
	samples, ok, err := ReadRepresentations(baseDir, "run-1", model.SpaceSample)
	if err != nil || !ok {
		t.Fatalf("read samples: ok=%t err=%v", ok, err)
	}
	if len(samples) != 2 || samples[0][0] != 0.25 || samples[1][0] != 1e-3 {
		t.Fatalf("unexpected sample representations %+v", samples)
	}
	contexts, ok, err := ReadRepresentations(baseDir, "run-1", model.SpaceContext)
	if err != nil || !ok || len(contexts) != 3 {
		t.Fatalf("read contexts: %+v ok=%t err=%v", contexts, ok, err)
	}
	if _, ok, err := ReadEvaluation(baseDir, "run-1"); err != nil || ok {
		t.Fatalf("expected no evaluation, ok=%t err=%v", ok, err)
	}
	if _, ok, err := ReadRunConfig(baseDir, "missing"); err != nil || ok {
		t.Fatalf("expected missing config, ok=%t err=%v", ok, err)
	}
}

func TestRunIndexNewestFirstAndReplace(t *testing.T) {
	baseDir := t.TempDir()
	entries := []RunIndexEntry{
		{RunID: "a", Variant: "single", CreatedAtUTC: "2026-01-01T00:00:00Z", FinalLoss: 3},
		{RunID: "b", Variant: "joint", CreatedAtUTC: "2026-01-02T00:00:00Z", FinalLoss: 2},
		{RunID: "c", Variant: "joint", CreatedAtUTC: "2026-01-02T00:00:00Z", FinalLoss: 1},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", FinalLoss: 0.5}); err != nil {
		t.Fatalf("replace a: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 3 || index[0].RunID != "c" || index[1].RunID != "b" || index[2].RunID != "a" {
		t.Fatalf("unexpected index order: %+v", index)
	}
	if index[2].FinalLoss != 0.5 {
		t.Fatalf("expected replaced entry, got %+v", index[2])
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{}); err == nil {
		t.Fatal("expected run id error")
	}
}

func TestSummarizeLoss(t *testing.T) {
	s := SummarizeLoss([]float64{4, 2, 3})
	if s.Initial != 4 || s.Final != 3 || s.Min != 2 || s.Improvement != 1 || s.Mean != 3 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if math.Abs(s.Std-1) > 1e-12 {
		t.Fatalf("unexpected std %f", s.Std)
	}
	if empty := SummarizeLoss(nil); empty != (LossSummary{}) {
		t.Fatalf("expected zero summary, got %+v", empty)
	}
}
