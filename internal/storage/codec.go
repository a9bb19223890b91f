package storage

import (
	"encoding/json"
	"errors"
	"sort"

	"dgdinfer/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion stamps new records.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeModel(m model.ModelRecord) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeModel(data []byte) (model.ModelRecord, error) {
	var record model.ModelRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.ModelRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.ModelRecord{}, err
	}
	return record, nil
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeRepresentation(r model.RepresentationRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRepresentation(data []byte) (model.RepresentationRecord, error) {
	var rep model.RepresentationRecord
	if err := json.Unmarshal(data, &rep); err != nil {
		return model.RepresentationRecord{}, err
	}
	if err := checkVersion(rep.VersionedRecord); err != nil {
		return model.RepresentationRecord{}, err
	}
	return rep, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

func sortRuns(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
}

func cloneRun(r model.RunRecord) model.RunRecord {
	r.LossHistory = append([]float64(nil), r.LossHistory...)
	r.SampleChoice = append([]int(nil), r.SampleChoice...)
	r.ContextChoice = append([]int(nil), r.ContextChoice...)
	if r.AdjustedRand != nil {
		v := *r.AdjustedRand
		r.AdjustedRand = &v
	}
	return r
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
