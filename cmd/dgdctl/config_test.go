package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"dgdinfer/internal/map2rec"
)

func TestLoadInferRequestFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "infer.json")
	payload := map[string]any{
		"model":               "model.json",
		"data":                "counts.csv",
		"label_column":        0,
		"variant":             "joint",
		"feed_onehot":         true,
		"epochs":              12,
		"seed":                7,
		"selection_reduction": "mean",
		"optimizer": map[string]any{
			"learning_rate": 0.05,
			"beta2":         0.9,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadInferRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if req.ModelPath != "model.json" || req.DataPath != "counts.csv" || req.Variant != "joint" {
		t.Fatalf("unexpected paths or variant: %+v", req)
	}
	if req.LabelColumn == nil || *req.LabelColumn != 0 {
		t.Fatalf("expected label column 0, got %v", req.LabelColumn)
	}
	if req.FeedOneHot == nil || !*req.FeedOneHot || req.InferContextSpace != nil {
		t.Fatalf("unexpected variant flags: %+v", req)
	}
	if req.Epochs != 12 || req.Seed != 7 || req.SelectionReduction != "mean" {
		t.Fatalf("unexpected run fields: %+v", req)
	}
	if req.LearningRate != 0.05 || req.Beta2 != 0.9 || req.Beta1 != 0 {
		t.Fatalf("unexpected optimizer fields: %+v", req)
	}
}

func TestLoadInferRequestDefaultsEpochsWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "infer.json")
	if err := os.WriteFile(path, []byte(`{"variant":"single"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	req, err := loadInferRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if req.Epochs != -1 {
		t.Fatalf("absent epochs must request the default, got %d", req.Epochs)
	}
}

func TestLoadInferRequestFromRecordEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "infer.json")
	data, err := map2rec.EncodeRecord(map2rec.KindInfer, map2rec.InferRecord{Variant: "joint-onehot", Epochs: 0, BatchSize: 16})
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	req, err := loadInferRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if req.Variant != "joint-onehot" || req.Epochs != 0 || req.BatchSize != 16 {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestInferFlagsOverrideConfigOnlyWhenSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "infer.json")
	if err := os.WriteFile(path, []byte(`{"variant":"joint","epochs":12,"seed":7}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	fs := flag.NewFlagSet("infer", flag.ContinueOnError)
	inf := addInferFlags(fs)
	if err := fs.Parse([]string{"--config", path, "--seed", "3", "--refit-context=false"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	req, err := inf.request(fs)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Variant != "joint" || req.Epochs != 12 {
		t.Fatalf("config values must survive unset flags: %+v", req)
	}
	if req.Seed != 3 || req.RefitContextSpace == nil || *req.RefitContextSpace {
		t.Fatalf("explicit flags must override config: %+v", req)
	}
}

func TestInferFlagsWithoutConfigKeepPresetFlags(t *testing.T) {
	fs := flag.NewFlagSet("infer", flag.ContinueOnError)
	inf := addInferFlags(fs)
	if err := fs.Parse([]string{"--variant", "fixed-context", "--epochs", "0"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	req, err := inf.request(fs)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.InferContextSpace != nil || req.FeedOneHot != nil || req.RefitContextSpace != nil {
		t.Fatalf("unset variant flags must not override the preset: %+v", req)
	}
	if req.Epochs != 0 || req.LabelColumn == nil || *req.LabelColumn != -1 {
		t.Fatalf("unexpected defaults: %+v", req)
	}
}

func TestNewLoggerRejectsUnknownSettings(t *testing.T) {
	if _, err := newLogger(os.Stderr, "loud", "auto"); err == nil {
		t.Fatal("expected log level error")
	}
	if _, err := newLogger(os.Stderr, "info", "xml"); err == nil {
		t.Fatal("expected log format error")
	}
	if _, err := newLogger(os.Stderr, "debug", "json"); err != nil {
		t.Fatalf("json logger: %v", err)
	}
}
