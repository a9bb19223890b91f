//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"dgdinfer/internal/model"
)

func TestSQLiteStoreRunsAndRepresentations(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "dgdinfer.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	for _, run := range []model.RunRecord{
		testRun("run-2", "2026-02-01T00:00:00Z"),
		testRun("run-1", "2026-01-01T00:00:00Z"),
	} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}
	loaded, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected run-1")
	}
	if loaded.Variant.Name != "joint" || len(loaded.SampleChoice) != 3 {
		t.Fatalf("unexpected run loaded: %+v", loaded)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-1" {
		t.Fatalf("unexpected run order: %+v", runs)
	}

	rep := model.RepresentationRecord{
		VersionedRecord: CurrentVersion(),
		RunID:           "run-1",
		Space:           model.SpaceContext,
		Values:          [][]float64{{1}, {2}},
	}
	if err := store.SaveRepresentation(ctx, rep); err != nil {
		t.Fatalf("save representation: %v", err)
	}
	rep.Values = [][]float64{{3}, {4}}
	if err := store.SaveRepresentation(ctx, rep); err != nil {
		t.Fatalf("overwrite representation: %v", err)
	}
	got, ok, err := store.GetRepresentation(ctx, "run-1", model.SpaceContext)
	if err != nil || !ok {
		t.Fatalf("get representation: ok=%t err=%v", ok, err)
	}
	if got.Values[0][0] != 3 {
		t.Fatalf("expected overwritten representation, got %+v", got.Values)
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if _, ok, _ := store.GetRepresentation(ctx, "run-1", model.SpaceContext); ok {
		t.Fatal("expected representation to be deleted")
	}
}

func TestSQLiteStoreModelRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "models.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = CloseIfSupported(store)
	})

	record := model.ModelRecord{
		VersionedRecord: CurrentVersion(),
		ID:              "dgd-1",
		Loss:            model.LossRecord{Name: "nb", Dispersion: 2},
		SampleMixture:   model.MixtureRecord{Means: [][]float64{{0}}, Stddevs: [][]float64{{1}}, Weights: []float64{1}},
	}
	if err := store.SaveModel(ctx, record); err != nil {
		t.Fatalf("save model: %v", err)
	}
	loaded, ok, err := store.GetModel(ctx, "dgd-1")
	if err != nil || !ok {
		t.Fatalf("get model: ok=%t err=%v", ok, err)
	}
	if loaded.Loss.Dispersion != 2 || len(loaded.SampleMixture.Means) != 1 {
		t.Fatalf("unexpected model loaded: %+v", loaded)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "x.db"))
	if _, _, err := store.GetRun(context.Background(), "x"); err == nil {
		t.Fatal("expected uninitialized store error")
	}
}
