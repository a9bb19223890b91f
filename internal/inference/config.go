package inference

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"dgdinfer/internal/gmm"
	"dgdinfer/internal/latent"
	"dgdinfer/internal/variantid"
)

type Reduction string

const (
	ReductionSum  Reduction = "sum"
	ReductionMean Reduction = "mean"
)

func ParseReduction(s string) (Reduction, error) {
	switch Reduction(strings.ToLower(strings.TrimSpace(s))) {
	case ReductionSum:
		return ReductionSum, nil
	case ReductionMean:
		return ReductionMean, nil
	default:
		return "", fmt.Errorf("%w: unsupported reduction %q (want sum|mean)", ErrInvalidConfig, s)
	}
}

const (
	VariantSingle       = "single"
	VariantFixedContext = "fixed-context"
	VariantJoint        = "joint"
	VariantJointOneHot  = "joint-onehot"
)

type variantFlags struct {
	infer, onehot, refit bool
}

var presets = map[string]variantFlags{
	VariantSingle:       {},
	VariantFixedContext: {infer: true},
	VariantJoint:        {infer: true, refit: true},
	VariantJointOneHot:  {infer: true, onehot: true, refit: true},
}

// Variants lists the preset names in sorted order.
func Variants() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Config struct {
	Variant           string
	InferContextSpace bool
	FeedOneHot        bool
	RefitContextSpace bool

	Epochs             int
	Optimizer          latent.AdamWConfig
	SelectionReduction Reduction
	RefineReduction    Reduction
	Resampling         string
	Seed               int64
	// ContextComponents bounds the mixture derived from trained context
	// representations when a refit run has no context mixture.
	ContextComponents int

	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Variant:            VariantSingle,
		Epochs:             50,
		Optimizer:          latent.DefaultAdamWConfig(),
		SelectionReduction: ReductionSum,
		RefineReduction:    ReductionSum,
		Resampling:         gmm.ResampleMean,
		Seed:               1,
		ContextComponents:  10,
	}
}

// Preset returns DefaultConfig with the flags of a named variant.
func Preset(name string) (Config, error) {
	key := variantid.Normalize(name)
	flags, ok := presets[key]
	if !ok {
		return Config{}, fmt.Errorf("%w: unknown variant %q (want one of %s)", ErrInvalidConfig, name, strings.Join(Variants(), ", "))
	}
	cfg := DefaultConfig()
	cfg.Variant = key
	cfg.InferContextSpace = flags.infer
	cfg.FeedOneHot = flags.onehot
	cfg.RefitContextSpace = flags.refit
	return cfg, nil
}

// Normalize fills the fields whose empty value stands for a default, so the
// config records the mode that actually runs.
func (c Config) Normalize() Config {
	if c.Resampling == "" {
		c.Resampling = gmm.ResampleMean
	}
	return c
}

func (c Config) Validate() error {
	if c.RefitContextSpace && !c.InferContextSpace {
		return fmt.Errorf("%w: refitting the context space requires inferring it", ErrInvalidConfig)
	}
	if c.Epochs < 0 {
		return fmt.Errorf("%w: epochs must be >= 0, got %d", ErrInvalidConfig, c.Epochs)
	}
	if _, err := ParseReduction(string(c.SelectionReduction)); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	if _, err := ParseReduction(string(c.RefineReduction)); err != nil {
		return fmt.Errorf("refinement: %w", err)
	}
	switch c.Resampling {
	case "", gmm.ResampleMean, gmm.ResampleSample:
	default:
		return fmt.Errorf("%w: unsupported resampling %q (want mean|sample)", ErrInvalidConfig, c.Resampling)
	}
	if err := c.Optimizer.Validate(); err != nil {
		return fmt.Errorf("%w: optimizer: %v", ErrInvalidConfig, err)
	}
	if c.RefitContextSpace && c.ContextComponents <= 0 {
		return fmt.Errorf("%w: context components must be > 0, got %d", ErrInvalidConfig, c.ContextComponents)
	}
	return nil
}

func (c Config) joint() bool {
	return c.InferContextSpace && c.RefitContextSpace
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
