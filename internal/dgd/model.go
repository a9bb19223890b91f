// Package dgd holds the frozen deep generative decoder that inference runs
// fit representations against: an MLP decoder, a reconstruction loss, a
// mixture prior over sample space and, optionally, a context space.
package dgd

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"dgdinfer/internal/gmm"
	"dgdinfer/internal/inference"
	"dgdinfer/internal/latent"
	"dgdinfer/internal/model"
	"dgdinfer/internal/nn"
	"dgdinfer/internal/storage"
)

type Model struct {
	ID             string
	Decoder        *nn.Network
	Loss           nn.Loss
	SampleMixture  *gmm.Mixture
	ContextMixture *gmm.Mixture
	ContextReps    *latent.Layer
}

func FromRecord(rec model.ModelRecord) (*Model, error) {
	decoder, err := decoderFromRecord(rec.Decoder)
	if err != nil {
		return nil, fmt.Errorf("model %s decoder: %w", rec.ID, err)
	}
	loss, err := nn.NewLoss(rec.Loss.Name, rec.Loss.Dispersion)
	if err != nil {
		return nil, fmt.Errorf("model %s loss: %w", rec.ID, err)
	}
	sampleMix, err := mixtureFromRecord(rec.SampleMixture)
	if err != nil {
		return nil, fmt.Errorf("model %s sample mixture: %w", rec.ID, err)
	}
	m := &Model{
		ID:            rec.ID,
		Decoder:       decoder,
		Loss:          loss,
		SampleMixture: sampleMix,
	}
	if rec.ContextMixture != nil {
		if m.ContextMixture, err = mixtureFromRecord(*rec.ContextMixture); err != nil {
			return nil, fmt.Errorf("model %s context mixture: %w", rec.ID, err)
		}
	}
	if len(rec.ContextRepresentations) > 0 {
		if m.ContextReps, err = latent.NewLayerFrom(rec.ContextRepresentations); err != nil {
			return nil, fmt.Errorf("model %s context representations: %w", rec.ID, err)
		}
	}
	if m.ContextMixture != nil && m.ContextReps != nil && m.ContextMixture.Dim() != m.ContextReps.Dim() {
		return nil, fmt.Errorf("model %s: context mixture dimension %d, representations %d", rec.ID, m.ContextMixture.Dim(), m.ContextReps.Dim())
	}
	return m, nil
}

func decoderFromRecord(rec model.DecoderRecord) (*nn.Network, error) {
	if len(rec.Layers) == 0 {
		return nil, errors.New("decoder has no layers")
	}
	layers := make([]nn.Dense, len(rec.Layers))
	for i, l := range rec.Layers {
		if len(l.Weights) == 0 || len(l.Weights[0]) == 0 {
			return nil, fmt.Errorf("layer %d: empty weights", i)
		}
		rows, cols := len(l.Weights), len(l.Weights[0])
		weights := mat.NewDense(rows, cols, nil)
		for r, w := range l.Weights {
			if len(w) != cols {
				return nil, fmt.Errorf("layer %d: ragged weight row %d", i, r)
			}
			weights.SetRow(r, w)
		}
		layers[i] = nn.Dense{Weights: weights, Bias: l.Bias, Activation: l.Activation}
	}
	return nn.NewNetwork(layers)
}

func mixtureFromRecord(rec model.MixtureRecord) (*gmm.Mixture, error) {
	return gmm.New(rec.Means, rec.Stddevs, rec.Weights)
}

func mixtureRecord(m *gmm.Mixture) model.MixtureRecord {
	rec := model.MixtureRecord{
		Means:   make([][]float64, m.Components()),
		Stddevs: make([][]float64, m.Components()),
		Weights: make([]float64, m.Components()),
	}
	for c := 0; c < m.Components(); c++ {
		rec.Means[c] = m.Mean(c)
		rec.Stddevs[c] = m.Stddev(c)
		rec.Weights[c] = m.Weight(c)
	}
	return rec
}

// Record converts the model back to its persistent form.
func (m *Model) Record() model.ModelRecord {
	rec := model.ModelRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:            m.ID,
		Loss:          model.LossRecord{Name: m.Loss.Name()},
		SampleMixture: mixtureRecord(m.SampleMixture),
	}
	if nb, ok := m.Loss.(nn.NegativeBinomial); ok {
		rec.Loss.Dispersion = nb.Dispersion
	}
	for _, layer := range m.Decoder.Layers() {
		rows, _ := layer.Weights.Dims()
		weights := make([][]float64, rows)
		for r := range weights {
			weights[r] = mat.Row(nil, r, layer.Weights)
		}
		rec.Decoder.Layers = append(rec.Decoder.Layers, model.DenseLayerRecord{
			Weights:    weights,
			Bias:       append([]float64(nil), layer.Bias...),
			Activation: layer.Activation,
		})
	}
	if m.ContextMixture != nil {
		ctx := mixtureRecord(m.ContextMixture)
		rec.ContextMixture = &ctx
	}
	if m.ContextReps != nil {
		rec.ContextRepresentations = m.ContextReps.Rows()
	}
	return rec
}

// Frozen exposes the model to the inference pipeline. Absent optional parts
// stay nil interfaces.
func (m *Model) Frozen() inference.Model {
	frozen := inference.Model{
		Decoder:       m.Decoder,
		Loss:          m.Loss,
		SampleMixture: m.SampleMixture,
		ContextReps:   m.ContextReps,
	}
	if m.ContextMixture != nil {
		frozen.ContextMixture = m.ContextMixture
	}
	return frozen
}
