package main

import (
	"fmt"
	"os"

	"dgdinfer/internal/map2rec"
	"dgdinfer/pkg/dgdinfer"
)

// loadInferRequestFromConfig reads an inference request from a JSON object
// whose keys mirror the infer flags in snake case, or from a versioned
// record envelope holding the same object.
func loadInferRequestFromConfig(path string) (dgdinfer.InferRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dgdinfer.InferRequest{}, err
	}
	rec, err := map2rec.DecodeInfer(data)
	if err != nil {
		return dgdinfer.InferRequest{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return dgdinfer.InferRequest{
		ModelPath:          rec.Model,
		DataPath:           rec.Data,
		LabelColumn:        rec.LabelColumn,
		Scaling:            rec.Scaling,
		BatchSize:          rec.BatchSize,
		Variant:            rec.Variant,
		InferContextSpace:  rec.InferContextSpace,
		FeedOneHot:         rec.FeedOneHot,
		RefitContextSpace:  rec.RefitContextSpace,
		Epochs:             rec.Epochs,
		LearningRate:       rec.Optimizer.LearningRate,
		Beta1:              rec.Optimizer.Beta1,
		Beta2:              rec.Optimizer.Beta2,
		WeightDecay:        rec.Optimizer.WeightDecay,
		SelectionReduction: rec.SelectionReduction,
		RefineReduction:    rec.RefineReduction,
		Resampling:         rec.Resampling,
		Seed:               rec.Seed,
		ContextComponents:  rec.ContextComponents,
		Evaluate:           rec.Evaluate,
	}, nil
}

// overrideFromFlags applies only the flags the user set explicitly.
func overrideFromFlags(req *dgdinfer.InferRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "model":
			req.ModelPath = v.(string)
		case "data":
			req.DataPath = v.(string)
		case "label-column":
			col := v.(int)
			req.LabelColumn = &col
		case "scaling":
			req.Scaling = v.(string)
		case "batch-size":
			req.BatchSize = v.(int)
		case "variant":
			req.Variant = v.(string)
		case "infer-context":
			b := v.(bool)
			req.InferContextSpace = &b
		case "feed-onehot":
			b := v.(bool)
			req.FeedOneHot = &b
		case "refit-context":
			b := v.(bool)
			req.RefitContextSpace = &b
		case "epochs":
			req.Epochs = v.(int)
		case "lr":
			req.LearningRate = v.(float64)
		case "beta1":
			req.Beta1 = v.(float64)
		case "beta2":
			req.Beta2 = v.(float64)
		case "weight-decay":
			req.WeightDecay = v.(float64)
		case "selection-reduction":
			req.SelectionReduction = v.(string)
		case "refine-reduction":
			req.RefineReduction = v.(string)
		case "resampling":
			req.Resampling = v.(string)
		case "seed":
			req.Seed = v.(int64)
		case "context-components":
			req.ContextComponents = v.(int)
		case "evaluate":
			req.Evaluate = v.(bool)
		}
	}
}
