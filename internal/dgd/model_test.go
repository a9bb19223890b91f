package dgd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"dgdinfer/internal/dataset"
	"dgdinfer/internal/inference"
	"dgdinfer/internal/model"
	"dgdinfer/internal/storage"
)

func fixture(t *testing.T) *Model {
	t.Helper()
	m, err := Load(filepath.Join("..", "..", "testdata", "fixtures", "minimal_model_v1.json"))
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return m
}

func TestLoadFixture(t *testing.T) {
	m := fixture(t)
	if m.ID != "dgd-minimal-1" {
		t.Fatalf("unexpected id %s", m.ID)
	}
	if m.Decoder.InputDim() != 3 || m.Decoder.OutputDim() != 1 {
		t.Fatalf("unexpected decoder shape %dx%d", m.Decoder.InputDim(), m.Decoder.OutputDim())
	}
	if m.SampleMixture.Components() != 2 || m.ContextMixture.Dim() != 1 || m.ContextReps.Len() != 2 {
		t.Fatalf("unexpected model parts: %+v", m)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := fixture(t)
	path := filepath.Join(t.TempDir(), "model.json")
	if err := Save(path, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	in := []float64{0.3, -0.2, 1}
	a, _ := m.Decoder.Forward(in)
	b, _ := loaded.Decoder.Forward(in)
	if a[0] != b[0] {
		t.Fatalf("decoder output changed across save/load: %f vs %f", a[0], b[0])
	}
	rec := loaded.Record()
	if rec.Loss.Name != "nb" || rec.Loss.Dispersion != 5 {
		t.Fatalf("unexpected loss record %+v", rec.Loss)
	}
	if rec.SampleMixture.Weights[0] != 0.5 {
		t.Fatalf("unexpected weights %+v", rec.SampleMixture.Weights)
	}
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	if err := os.WriteFile(path, []byte(`{"schema_version":0,"codec_version":1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, storage.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestFromRecordValidation(t *testing.T) {
	base := fixture(t).Record()

	noLayers := base
	noLayers.Decoder = model.DecoderRecord{}
	if _, err := FromRecord(noLayers); err == nil {
		t.Fatal("expected decoder error")
	}

	badLoss := base
	badLoss.Loss = model.LossRecord{Name: "nb"}
	if _, err := FromRecord(badLoss); err == nil {
		t.Fatal("expected dispersion error")
	}

	badContext := base
	badContext.ContextRepresentations = [][]float64{{1, 2}}
	if _, err := FromRecord(badContext); err == nil {
		t.Fatal("expected context dimension error")
	}
}

func TestFrozenModelRunsFixedContextVariant(t *testing.T) {
	m := fixture(t)
	frozen := m.Frozen()
	if frozen.ContextMixture == nil || frozen.ContextReps == nil {
		t.Fatal("expected context parts on the frozen model")
	}

	matrix := mat.NewDense(3, 2, []float64{3, 1, 0, 4, 2, 2})
	data, err := dataset.New(matrix, []string{"A[C>T]G", "T[T>A]C"}, nil, dataset.ScalingSum)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	loader, err := dataset.NewLoader(data, 4)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	cfg, err := inference.Preset(inference.VariantFixedContext)
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	cfg.Epochs = 3
	p, err := inference.NewPipeline(frozen, cfg)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	res, err := p.Run(loader)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Samples.Len() != 3 || res.Samples.Dim() != 2 || len(res.LossHistory) != 3 {
		t.Fatalf("unexpected result: samples=%dx%d history=%d", res.Samples.Len(), res.Samples.Dim(), len(res.LossHistory))
	}
}

func TestFrozenWithoutContextMixtureKeepsNilInterface(t *testing.T) {
	m := fixture(t)
	m.ContextMixture = nil
	if m.Frozen().ContextMixture != nil {
		t.Fatal("absent context mixture must stay a nil interface")
	}
}
