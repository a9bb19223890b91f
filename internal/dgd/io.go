package dgd

import (
	"fmt"
	"os"

	"dgdinfer/internal/storage"
)

func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec, err := storage.DecodeModel(data)
	if err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	return FromRecord(rec)
}

func Save(path string, m *Model) error {
	data, err := storage.EncodeModel(m.Record())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
