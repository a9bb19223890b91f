package map2rec

func Convert(kind string, in map[string]any) (any, error) {
	switch kind {
	case KindInfer:
		return ConvertInfer(in), nil
	case KindOptimizer:
		return ConvertOptimizer(in), nil
	default:
		return nil, ErrUnsupportedKind
	}
}

// ConvertInfer ignores unknown keys and values of the wrong type.
func ConvertInfer(in map[string]any) InferRecord {
	out := defaultInferRecord()
	for key, val := range in {
		switch key {
		case "model":
			if s, ok := asString(val); ok {
				out.Model = s
			}
		case "data":
			if s, ok := asString(val); ok {
				out.Data = s
			}
		case "label_column":
			if n, ok := asInt(val); ok {
				out.LabelColumn = &n
			}
		case "scaling":
			if s, ok := asString(val); ok {
				out.Scaling = s
			}
		case "batch_size":
			if n, ok := asInt(val); ok {
				out.BatchSize = n
			}
		case "variant":
			if s, ok := asString(val); ok {
				out.Variant = s
			}
		case "infer_context_space":
			if b, ok := asBool(val); ok {
				out.InferContextSpace = &b
			}
		case "feed_onehot":
			if b, ok := asBool(val); ok {
				out.FeedOneHot = &b
			}
		case "refit_context_space":
			if b, ok := asBool(val); ok {
				out.RefitContextSpace = &b
			}
		case "epochs":
			if n, ok := asInt(val); ok {
				out.Epochs = n
			}
		case "optimizer":
			if m, ok := val.(map[string]any); ok {
				out.Optimizer = ConvertOptimizer(m)
			}
		case "selection_reduction":
			if s, ok := asString(val); ok {
				out.SelectionReduction = s
			}
		case "refine_reduction":
			if s, ok := asString(val); ok {
				out.RefineReduction = s
			}
		case "resampling":
			if s, ok := asString(val); ok {
				out.Resampling = s
			}
		case "seed":
			if n, ok := asInt64(val); ok {
				out.Seed = n
			}
		case "context_components":
			if n, ok := asInt(val); ok {
				out.ContextComponents = n
			}
		case "evaluate":
			if b, ok := asBool(val); ok {
				out.Evaluate = b
			}
		}
	}
	return out
}

func ConvertOptimizer(in map[string]any) OptimizerRecord {
	out := defaultOptimizerRecord()
	for key, val := range in {
		f, ok := asFloat64(val)
		if !ok {
			continue
		}
		switch key {
		case "learning_rate", "lr":
			out.LearningRate = f
		case "beta1":
			out.Beta1 = f
		case "beta2":
			out.Beta2 = f
		case "weight_decay":
			out.WeightDecay = f
		}
	}
	return out
}
