package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dgdinfer/internal/stats"
)

func fixturePath(t *testing.T, name string) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("..", "..", "testdata", "fixtures", name))
	if err != nil {
		t.Fatalf("abs fixture: %v", err)
	}
	return path
}

func inferArgs(t *testing.T, runs string, extra ...string) []string {
	t.Helper()
	args := []string{
		"infer",
		"--runs-dir", runs,
		"--log-level", "error",
		"--model", fixturePath(t, "minimal_model_v1.json"),
		"--data", fixturePath(t, "mutations_small.csv"),
		"--variant", "fixed-context",
		"--epochs", "3",
		"--scaling", "sum",
	}
	return append(args, extra...)
}

func TestInferCommandWritesArtifactsAndIndex(t *testing.T) {
	runs := filepath.Join(t.TempDir(), "runs")
	out, err := captureStdout(func() error {
		return run(context.Background(), inferArgs(t, runs, "--evaluate"))
	})
	if err != nil {
		t.Fatalf("infer command: %v", err)
	}
	if !strings.Contains(out, "run_id=fixed-context-") || !strings.Contains(out, "adjusted_rand=") {
		t.Fatalf("unexpected infer output: %s", out)
	}

	entries, err := stats.ListRunIndex(runs)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 || entries[0].Epochs != 3 || entries[0].Samples != 4 {
		t.Fatalf("unexpected index: %+v", entries)
	}
	for _, file := range []string{"config.json", "loss_history.json", "selection.json", "sample_representations.csv", "context_representations.csv", "evaluation.json"} {
		if _, err := os.Stat(filepath.Join(runs, entries[0].RunID, file)); err != nil {
			t.Fatalf("expected artifact %s: %v", file, err)
		}
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--runs-dir", runs, "--limit", "1"})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out, "run_id="+entries[0].RunID) {
		t.Fatalf("runs output missing run id %s: %s", entries[0].RunID, out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"show", "--runs-dir", runs, "--latest"})
	})
	if err != nil {
		t.Fatalf("show command: %v", err)
	}
	if !strings.Contains(out, "variant=fixed-context") || !strings.Contains(out, "sample_choice=") {
		t.Fatalf("unexpected show output: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"reps", "--runs-dir", runs, "--latest", "--space", "context"})
	})
	if err != nil {
		t.Fatalf("reps command: %v", err)
	}
	if strings.Count(out, "index=") != 2 {
		t.Fatalf("expected two context rows: %s", out)
	}

	exports := filepath.Join(t.TempDir(), "exports")
	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"export", "--runs-dir", runs, "--latest", "--out", exports})
	})
	if err != nil {
		t.Fatalf("export command: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exports, entries[0].RunID, "config.json")); err != nil {
		t.Fatalf("expected exported config: %v (%s)", err, out)
	}
}

func TestEvaluateCommandUsesRecordedPaths(t *testing.T) {
	runs := filepath.Join(t.TempDir(), "runs")
	if _, err := captureStdout(func() error {
		return run(context.Background(), inferArgs(t, runs))
	}); err != nil {
		t.Fatalf("infer command: %v", err)
	}
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"evaluate", "--runs-dir", runs, "--latest", "--log-level", "error"})
	})
	if err != nil {
		t.Fatalf("evaluate command: %v", err)
	}
	if !strings.Contains(out, "adjusted_rand=") || !strings.Contains(out, "accuracy=") {
		t.Fatalf("unexpected evaluate output: %s", out)
	}
}

func TestCompareCommandRanksVariants(t *testing.T) {
	runs := filepath.Join(t.TempDir(), "runs")
	args := append(inferArgs(t, runs), "--variants", "fixed-context,joint")
	args[0] = "compare"
	out, err := captureStdout(func() error {
		return run(context.Background(), args)
	})
	if err != nil {
		t.Fatalf("compare command: %v", err)
	}
	if !strings.Contains(out, "best_variant=") || strings.Count(out, "rank=") != 2 {
		t.Fatalf("unexpected compare output: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"compare", "--runs-dir", runs, "--log-level", "error", "--list"})
	})
	if err != nil {
		t.Fatalf("compare list: %v", err)
	}
	if strings.Count(out, "comparison_id=") != 1 || !strings.Contains(out, "variants=2") {
		t.Fatalf("unexpected comparison list: %s", out)
	}
}

func TestVariantsCommandListsPresets(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"variants"})
	})
	if err != nil {
		t.Fatalf("variants command: %v", err)
	}
	for _, want := range []string{
		"variant=single infer_context=false feed_onehot=false refit_context=false",
		"variant=joint-onehot infer_context=true feed_onehot=true refit_context=true",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("variants output missing %q: %s", want, out)
		}
	}
}

func TestRunRejectsBadInvocations(t *testing.T) {
	cases := [][]string{
		nil,
		{"train"},
		{"runs", "--limit", "0"},
		{"export"},
		{"export", "--run-id", "x", "--latest"},
		{"data"},
		{"data", "split"},
		{"data", "convert", "--in", "catalog.csv"},
		{"infer", "--log-level", "error", "--variant", "triple", "--model", "m.json", "--data", "d.csv"},
	}
	for _, args := range cases {
		if err := run(context.Background(), args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestDataConvertAndInfoCommands(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog.csv")
	payload := "donor,motif,n,tissue\nd1,A[C>T]G,3,lung\nd1,T[T>A]C,1,lung\nd2,T[T>A]C,2,skin\n"
	if err := os.WriteFile(catalog, []byte(payload), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	matrix := filepath.Join(dir, "matrix.csv")

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"data", "convert",
			"--in", catalog,
			"--out", matrix,
			"--sample-column", "donor",
			"--context-column", "motif",
			"--count-column", "n",
			"--label-column", "tissue",
		})
	})
	if err != nil {
		t.Fatalf("data convert: %v", err)
	}
	if !strings.Contains(out, "samples=2 contexts=2") {
		t.Fatalf("unexpected convert output: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"data", "info", "--data", matrix})
	})
	if err != nil {
		t.Fatalf("data info: %v", err)
	}
	for _, want := range []string{"samples=2 contexts=2 pairs=4", "total_count=6", "zero_pairs=1", "labels=2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("data info output missing %q: %s", want, out)
		}
	}
}

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}
