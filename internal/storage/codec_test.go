package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dgdinfer/internal/model"
)

func TestDecodeModelFixture(t *testing.T) {
	data, err := os.ReadFile(fixturePath("minimal_model_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	record, err := DecodeModel(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if record.ID != "dgd-minimal-1" {
		t.Fatalf("unexpected model id: %s", record.ID)
	}
	if len(record.Decoder.Layers) != 1 || record.ContextMixture == nil || len(record.ContextRepresentations) != 2 {
		t.Fatalf("unexpected model record: %+v", record)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	run := model.RunRecord{VersionedRecord: model.VersionedRecord{SchemaVersion: 2, CodecVersion: 1}, ID: "r"}
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	rep := model.RepresentationRecord{RunID: "r", Space: model.SpaceSample}
	data, err = EncodeRepresentation(rep)
	if err != nil {
		t.Fatalf("encode representation: %v", err)
	}
	if _, err := DecodeRepresentation(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	if _, err := DecodeModel([]byte(`{"schema_version":1,"codec_version":9}`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestRunCodecRoundTrip(t *testing.T) {
	ari := 0.75
	run := testRun("run-1", "2026-01-01T00:00:00Z")
	run.AdjustedRand = &ari
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.AdjustedRand == nil || *decoded.AdjustedRand != ari || decoded.FinalLoss != run.FinalLoss {
		t.Fatalf("unexpected decoded run: %+v", decoded)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	if _, err := DecodeRun([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}
