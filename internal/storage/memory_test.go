package storage

import (
	"context"
	"testing"

	"dgdinfer/internal/model"
)

func testRun(id, created string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		ModelID:         "dgd-1",
		Variant:         model.Variant{Name: "joint", InferContextSpace: true, RefitContextSpace: true},
		CreatedAtUTC:    created,
		Samples:         3,
		Contexts:        2,
		Epochs:          2,
		LossHistory:     []float64{4, 3},
		FinalLoss:       3,
		SampleChoice:    []int{0, 1, 0},
		ContextChoice:   []int{1, 1},
	}
}

func TestMemoryStoreRunRoundTripIsCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := testRun("run-1", "2026-01-02T00:00:00Z")
	if err := store.SaveRun(ctx, input); err != nil {
		t.Fatalf("save run: %v", err)
	}
	input.LossHistory[0] = 99

	output, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run")
	}
	if output.LossHistory[0] != 4 || len(output.ContextChoice) != 2 {
		t.Fatalf("unexpected run: %+v", output)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, got ok=%t err=%v", ok, err)
	}
}

func TestMemoryStoreListRunsOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, run := range []model.RunRecord{
		testRun("b", "2026-01-03T00:00:00Z"),
		testRun("a", "2026-01-01T00:00:00Z"),
		testRun("c", "2026-01-03T00:00:00Z"),
	} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "a" || runs[1].ID != "b" || runs[2].ID != "c" {
		t.Fatalf("unexpected order: %+v", runs)
	}
}

func TestMemoryStoreRepresentationsAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.SaveRun(ctx, testRun("run-1", "2026-01-01T00:00:00Z")); err != nil {
		t.Fatalf("save run: %v", err)
	}
	rep := model.RepresentationRecord{
		VersionedRecord: CurrentVersion(),
		RunID:           "run-1",
		Space:           model.SpaceSample,
		Values:          [][]float64{{0.5, 1}, {2, 3}},
	}
	if err := store.SaveRepresentation(ctx, rep); err != nil {
		t.Fatalf("save representation: %v", err)
	}
	loaded, ok, err := store.GetRepresentation(ctx, "run-1", model.SpaceSample)
	if err != nil || !ok {
		t.Fatalf("get representation: ok=%t err=%v", ok, err)
	}
	if len(loaded.Values) != 2 || loaded.Values[1][0] != 2 {
		t.Fatalf("unexpected representation: %+v", loaded)
	}
	if _, ok, _ := store.GetRepresentation(ctx, "run-1", model.SpaceContext); ok {
		t.Fatal("expected no context representation")
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if _, ok, _ := store.GetRun(ctx, "run-1"); ok {
		t.Fatal("expected run to be deleted")
	}
	if _, ok, _ := store.GetRepresentation(ctx, "run-1", model.SpaceSample); ok {
		t.Fatal("expected representations to be deleted with the run")
	}
}

func TestMemoryStoreModelRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	record := model.ModelRecord{VersionedRecord: CurrentVersion(), ID: "dgd-1", Loss: model.LossRecord{Name: "poisson"}}
	if err := store.SaveModel(ctx, record); err != nil {
		t.Fatalf("save model: %v", err)
	}
	loaded, ok, err := store.GetModel(ctx, "dgd-1")
	if err != nil || !ok || loaded.Loss.Name != "poisson" {
		t.Fatalf("unexpected model: %+v ok=%t err=%v", loaded, ok, err)
	}
}
