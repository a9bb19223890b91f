// Package map2rec converts loosely typed maps, as decoded from JSON config
// files, into typed inference records.
package map2rec

// InferRecord mirrors the infer command flags. Pointer fields stay nil when
// the source map omits them so callers can tell "unset" from "false".
type InferRecord struct {
	Model       string `json:"model,omitempty"`
	Data        string `json:"data,omitempty"`
	LabelColumn *int   `json:"label_column,omitempty"`
	Scaling     string `json:"scaling,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`

	Variant           string `json:"variant,omitempty"`
	InferContextSpace *bool  `json:"infer_context_space,omitempty"`
	FeedOneHot        *bool  `json:"feed_onehot,omitempty"`
	RefitContextSpace *bool  `json:"refit_context_space,omitempty"`

	// Epochs is -1 when unset; zero means no refinement.
	Epochs             int             `json:"epochs"`
	Optimizer          OptimizerRecord `json:"optimizer"`
	SelectionReduction string          `json:"selection_reduction,omitempty"`
	RefineReduction    string          `json:"refine_reduction,omitempty"`
	Resampling         string          `json:"resampling,omitempty"`
	Seed               int64           `json:"seed,omitempty"`
	ContextComponents  int             `json:"context_components,omitempty"`

	Evaluate bool `json:"evaluate,omitempty"`
}

type OptimizerRecord struct {
	LearningRate float64 `json:"learning_rate,omitempty"`
	Beta1        float64 `json:"beta1,omitempty"`
	Beta2        float64 `json:"beta2,omitempty"`
	WeightDecay  float64 `json:"weight_decay,omitempty"`
}

func defaultInferRecord() InferRecord {
	return InferRecord{Epochs: -1}
}

func defaultOptimizerRecord() OptimizerRecord {
	return OptimizerRecord{}
}
