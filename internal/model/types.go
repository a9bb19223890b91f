package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// DenseLayerRecord is one fully connected decoder layer. Weights are stored
// row-major as [outputs][inputs].
type DenseLayerRecord struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

type DecoderRecord struct {
	Layers []DenseLayerRecord `json:"layers"`
}

type LossRecord struct {
	Name       string  `json:"name"`
	Dispersion float64 `json:"dispersion,omitempty"`
}

// MixtureRecord is a diagonal Gaussian mixture over a latent space.
type MixtureRecord struct {
	Means   [][]float64 `json:"means"`
	Stddevs [][]float64 `json:"stddevs"`
	Weights []float64   `json:"weights"`
}

// ModelRecord is the frozen generative model produced by training.
type ModelRecord struct {
	VersionedRecord
	ID                     string         `json:"id"`
	Decoder                DecoderRecord  `json:"decoder"`
	Loss                   LossRecord     `json:"loss"`
	SampleMixture          MixtureRecord  `json:"sample_mixture"`
	ContextMixture         *MixtureRecord `json:"context_mixture,omitempty"`
	ContextRepresentations [][]float64    `json:"context_representations,omitempty"`
}

type Variant struct {
	Name              string `json:"name"`
	InferContextSpace bool   `json:"infer_context_space"`
	FeedOneHot        bool   `json:"feed_onehot"`
	RefitContextSpace bool   `json:"refit_context_space"`
}

// RunRecord summarizes one inference run.
type RunRecord struct {
	VersionedRecord
	ID            string    `json:"id"`
	ModelID       string    `json:"model_id"`
	Variant       Variant   `json:"variant"`
	CreatedAtUTC  string    `json:"created_at_utc"`
	Samples       int       `json:"samples"`
	Contexts      int       `json:"contexts"`
	Epochs        int       `json:"epochs"`
	LossHistory   []float64 `json:"loss_history"`
	FinalLoss     float64   `json:"final_loss"`
	SampleChoice  []int     `json:"sample_choice"`
	ContextChoice []int     `json:"context_choice,omitempty"`
	AdjustedRand  *float64  `json:"adjusted_rand,omitempty"`
}

const (
	SpaceSample  = "sample"
	SpaceContext = "context"
)

// RepresentationRecord is a persisted representation layer.
type RepresentationRecord struct {
	VersionedRecord
	RunID  string      `json:"run_id"`
	Space  string      `json:"space"`
	Values [][]float64 `json:"values"`
}
