package map2rec

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

const (
	KindInfer     = "infer"
	KindOptimizer = "optimizer"
)

var ErrRecordVersionMismatch = errors.New("record version mismatch")

type RecordEnvelope struct {
	SchemaVersion int             `json:"schema_version"`
	CodecVersion  int             `json:"codec_version"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
}

func DefaultRecord(kind string) (any, error) {
	switch kind {
	case KindInfer:
		return defaultInferRecord(), nil
	case KindOptimizer:
		return defaultOptimizerRecord(), nil
	default:
		return nil, ErrUnsupportedKind
	}
}

func EncodeRecord(kind string, record any) ([]byte, error) {
	if _, err := DefaultRecord(kind); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	env := RecordEnvelope{
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
		Kind:          kind,
		Payload:       payload,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", kind, err)
	}
	return data, nil
}

// DecodeRecord accepts an envelope written by EncodeRecord. The payload goes
// through the same map conversion as a bare config so unset fields keep
// their defaults.
func DecodeRecord(data []byte) (string, any, error) {
	var env RecordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, err
	}
	if env.SchemaVersion != SupportedSchemaVersion || env.CodecVersion != SupportedCodecVersion {
		return "", nil, fmt.Errorf("%w: schema=%d codec=%d", ErrRecordVersionMismatch, env.SchemaVersion, env.CodecVersion)
	}

	var raw map[string]any
	if err := json.Unmarshal(env.Payload, &raw); err != nil {
		return "", nil, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	record, err := Convert(env.Kind, raw)
	if err != nil {
		return "", nil, err
	}
	return env.Kind, record, nil
}

// DecodeInfer reads either an envelope of kind infer or a bare JSON object.
func DecodeInfer(data []byte) (InferRecord, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return InferRecord{}, err
	}
	if _, ok := raw["payload"]; !ok {
		return ConvertInfer(raw), nil
	}
	kind, record, err := DecodeRecord(data)
	if err != nil {
		return InferRecord{}, err
	}
	rec, ok := record.(InferRecord)
	if !ok {
		return InferRecord{}, fmt.Errorf("%w: expected %s record, got %s", ErrUnsupportedKind, KindInfer, kind)
	}
	return rec, nil
}
