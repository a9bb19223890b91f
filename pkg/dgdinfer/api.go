// Package dgdinfer is the public entry point for fitting latent
// representations of mutation count profiles against a trained deep
// generative decoder, and for browsing the runs it leaves behind.
package dgdinfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"

	"dgdinfer/internal/dataextract"
	"dgdinfer/internal/dataset"
	"dgdinfer/internal/dgd"
	"dgdinfer/internal/evaluate"
	"dgdinfer/internal/inference"
	"dgdinfer/internal/latent"
	"dgdinfer/internal/model"
	"dgdinfer/internal/platform"
	"dgdinfer/internal/stats"
	"dgdinfer/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "dgdinfer.db"
	defaultBatchSize  = 64
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	Logger     *slog.Logger
}

type Client struct {
	store    storage.Store
	platform *platform.Platform
	log      *slog.Logger

	runsDir    string
	exportsDir string

	now func() time.Time
}

// InferRequest configures one inference run. Zero numeric fields take the
// defaults of the chosen variant, except Epochs where only a negative value
// does so and zero skips refinement.
type InferRequest struct {
	ModelPath   string
	DataPath    string
	LabelColumn *int
	Scaling     string
	BatchSize   int

	Variant           string
	InferContextSpace *bool
	FeedOneHot        *bool
	RefitContextSpace *bool

	Epochs             int
	LearningRate       float64
	Beta1              float64
	Beta2              float64
	WeightDecay        float64
	SelectionReduction string
	RefineReduction    string
	Resampling         string
	Seed               int64
	ContextComponents  int

	Evaluate bool
}

type InferSummary struct {
	RunID         string
	ModelID       string
	Variant       string
	ArtifactsDir  string
	Samples       int
	Contexts      int
	LossHistory   []float64
	FinalLoss     float64
	SampleChoice  []int
	ContextChoice []int
	AdjustedRand  *float64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	ModelID      string
	CreatedAtUTC string
	Variant      string
	Samples      int
	Contexts     int
	Epochs       int
	Seed         int64
	FinalLoss    float64
	AdjustedRand *float64
}

type ShowRequest struct {
	RunID  string
	Latest bool
}

type RunDetail struct {
	Config     stats.RunConfig
	Loss       stats.LossSummary
	Selection  stats.Selection
	Evaluation *evaluate.Report
}

type RepresentationRequest struct {
	RunID  string
	Latest bool
	Space  string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// EvaluateRequest scores an existing run. Empty paths fall back to those
// recorded with the run.
type EvaluateRequest struct {
	RunID       string
	Latest      bool
	ModelPath   string
	DataPath    string
	LabelColumn *int
}

type CompareRequest struct {
	Base     InferRequest
	Variants []string
	Notes    string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		log:        log,
		runsDir:    runsDir,
		exportsDir: exportsDir,
		now:        time.Now,
	}, nil
}

func (c *Client) Close() error {
	if c.platform != nil {
		c.platform.Stop()
	}
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePlatform(ctx)
	return err
}

func (c *Client) Infer(ctx context.Context, req InferRequest) (InferSummary, error) {
	if req.ModelPath == "" {
		return InferSummary{}, errors.New("model path is required")
	}
	if req.DataPath == "" {
		return InferSummary{}, errors.New("data path is required")
	}
	cfg, err := materializeConfig(req)
	if err != nil {
		return InferSummary{}, err
	}
	if req.BatchSize <= 0 {
		req.BatchSize = defaultBatchSize
	}
	if req.Scaling == "" {
		req.Scaling = dataset.ScalingMean
	}

	p, err := c.ensurePlatform(ctx)
	if err != nil {
		return InferSummary{}, err
	}
	m, err := dgd.Load(req.ModelPath)
	if err != nil {
		return InferSummary{}, fmt.Errorf("load model: %w", err)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	data, err := dataset.LoadCSVFile(req.DataPath, loadOptions(req.LabelColumn, req.Scaling))
	if err != nil {
		return InferSummary{}, fmt.Errorf("load data: %w", err)
	}

	now := c.now().UTC()
	runID := newRunID(cfg.Variant, now)
	out, err := p.RunInference(ctx, platform.InferenceConfig{
		RunID:        runID,
		CreatedAtUTC: now.Format(time.RFC3339Nano),
		Model:        m,
		Data:         data,
		BatchSize:    req.BatchSize,
		Inference:    cfg,
		Evaluate:     req.Evaluate,
	})
	if err != nil {
		return InferSummary{}, err
	}

	runConfig := stats.RunConfig{
		RunID:              runID,
		ModelID:            m.ID,
		ModelPath:          req.ModelPath,
		DataPath:           req.DataPath,
		Variant:            cfg.Variant,
		InferContextSpace:  cfg.InferContextSpace,
		FeedOneHot:         cfg.FeedOneHot,
		RefitContextSpace:  cfg.RefitContextSpace,
		Scaling:            req.Scaling,
		BatchSize:          req.BatchSize,
		Epochs:             cfg.Epochs,
		LearningRate:       cfg.Optimizer.LearningRate,
		Beta1:              cfg.Optimizer.Beta1,
		Beta2:              cfg.Optimizer.Beta2,
		Epsilon:            cfg.Optimizer.Epsilon,
		WeightDecay:        cfg.Optimizer.WeightDecay,
		SelectionReduction: string(cfg.SelectionReduction),
		RefineReduction:    string(cfg.RefineReduction),
		Resampling:         cfg.Resampling,
		Seed:               cfg.Seed,
		Samples:            data.NumSamples(),
		Contexts:           data.NumContexts(),
	}
	if cfg.RefitContextSpace {
		runConfig.ContextComponents = cfg.ContextComponents
	}
	artifacts := stats.RunArtifacts{
		Config:                runConfig,
		LossHistory:           out.Result.LossHistory,
		FinalLoss:             out.Result.FinalLoss(),
		Selection:             stats.Selection{SampleChoice: out.Result.SampleChoice, ContextChoice: out.Result.ContextChoice},
		SampleRepresentations: out.Result.Samples.Rows(),
		Evaluation:            out.Evaluation,
	}
	if out.Result.Contexts != nil {
		artifacts.ContextRepresentations = out.Result.Contexts.Rows()
	}
	runDir, err := stats.WriteRunArtifacts(c.runsDir, artifacts)
	if err != nil {
		return InferSummary{}, err
	}
	if err := stats.AppendRunIndex(c.runsDir, indexEntry(out.Run, cfg.Seed)); err != nil {
		return InferSummary{}, err
	}

	return InferSummary{
		RunID:         runID,
		ModelID:       m.ID,
		Variant:       cfg.Variant,
		ArtifactsDir:  runDir,
		Samples:       out.Run.Samples,
		Contexts:      out.Run.Contexts,
		LossHistory:   out.Result.LossHistory,
		FinalLoss:     out.Result.FinalLoss(),
		SampleChoice:  out.Result.SampleChoice,
		ContextChoice: out.Result.ContextChoice,
		AdjustedRand:  out.Run.AdjustedRand,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			ModelID:      e.ModelID,
			CreatedAtUTC: e.CreatedAtUTC,
			Variant:      e.Variant,
			Samples:      e.Samples,
			Contexts:     e.Contexts,
			Epochs:       e.Epochs,
			Seed:         e.Seed,
			FinalLoss:    e.FinalLoss,
			AdjustedRand: e.AdjustedRand,
		})
	}
	return out, nil
}

func (c *Client) Show(_ context.Context, req ShowRequest) (RunDetail, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "show")
	if err != nil {
		return RunDetail{}, err
	}
	cfg, ok, err := stats.ReadRunConfig(c.runsDir, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !ok {
		return RunDetail{}, fmt.Errorf("run not found: %s", runID)
	}
	history, _, err := stats.ReadLossHistory(c.runsDir, runID)
	if err != nil {
		return RunDetail{}, err
	}
	selection, _, err := stats.ReadSelection(c.runsDir, runID)
	if err != nil {
		return RunDetail{}, err
	}
	detail := RunDetail{
		Config:    cfg,
		Loss:      stats.SummarizeLoss(history),
		Selection: selection,
	}
	report, ok, err := stats.ReadEvaluation(c.runsDir, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if ok {
		detail.Evaluation = &report
	}
	return detail, nil
}

// Representation returns the fitted representations of one space, preferring
// the store and falling back to the run's artifacts.
func (c *Client) Representation(ctx context.Context, req RepresentationRequest) ([][]float64, error) {
	space := strings.ToLower(strings.TrimSpace(req.Space))
	if space == "" {
		space = model.SpaceSample
	}
	if space != model.SpaceSample && space != model.SpaceContext {
		return nil, fmt.Errorf("unsupported representation space %q (want %s|%s)", req.Space, model.SpaceSample, model.SpaceContext)
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "representation")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensurePlatform(ctx); err != nil {
		return nil, err
	}
	rep, ok, err := c.store.GetRepresentation(ctx, runID, space)
	if err != nil {
		return nil, err
	}
	if ok {
		return rep.Values, nil
	}
	rows, ok, err := stats.ReadRepresentations(c.runsDir, runID, space)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no %s representations for run %s", space, runID)
	}
	return rows, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Evaluate clusters the fitted samples of a finished run with the model's
// sample mixture and scores the clusters against the dataset labels. The
// report is written next to the run's artifacts.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (evaluate.Report, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "evaluate")
	if err != nil {
		return evaluate.Report{}, err
	}
	cfg, ok, err := stats.ReadRunConfig(c.runsDir, runID)
	if err != nil {
		return evaluate.Report{}, err
	}
	if !ok {
		return evaluate.Report{}, fmt.Errorf("run not found: %s", runID)
	}
	if req.ModelPath == "" {
		req.ModelPath = cfg.ModelPath
	}
	if req.DataPath == "" {
		req.DataPath = cfg.DataPath
	}
	if req.ModelPath == "" || req.DataPath == "" {
		return evaluate.Report{}, errors.New("evaluate requires model and data paths")
	}

	m, err := dgd.Load(req.ModelPath)
	if err != nil {
		return evaluate.Report{}, fmt.Errorf("load model: %w", err)
	}
	data, err := dataset.LoadCSVFile(req.DataPath, loadOptions(req.LabelColumn, cfg.Scaling))
	if err != nil {
		return evaluate.Report{}, fmt.Errorf("load data: %w", err)
	}
	rows, err := c.Representation(ctx, RepresentationRequest{RunID: runID, Space: model.SpaceSample})
	if err != nil {
		return evaluate.Report{}, err
	}
	samples, err := latent.NewLayerFrom(rows)
	if err != nil {
		return evaluate.Report{}, err
	}
	report, err := evaluate.Evaluate(m.SampleMixture, samples, data.Labels())
	if err != nil {
		return evaluate.Report{}, err
	}
	if err := stats.WriteEvaluation(filepath.Join(c.runsDir, runID), report); err != nil {
		return evaluate.Report{}, err
	}
	if err := c.recordAdjustedRand(runID, report.AdjustedRand); err != nil {
		return evaluate.Report{}, err
	}
	c.log.Info("evaluated run", "run_id", runID, "adjusted_rand", report.AdjustedRand, "accuracy", report.Accuracy)
	return report, nil
}

// Compare runs every requested variant, all presets when none are given,
// over the same model and data and ranks them by final loss.
func (c *Client) Compare(ctx context.Context, req CompareRequest) (stats.VariantComparison, error) {
	variants := req.Variants
	if len(variants) == 0 {
		variants = inference.Variants()
	}
	started := c.now().UTC()
	cmp := stats.VariantComparison{
		ID:           "cmp-" + strftime.Format("%Y%m%d-%H%M%S", started) + "-" + shortID(),
		Notes:        req.Notes,
		DataPath:     req.Base.DataPath,
		StartedAtUTC: started.Format(time.RFC3339Nano),
	}
	for _, variant := range variants {
		run := req.Base
		run.Variant = variant
		summary, err := c.Infer(ctx, run)
		if err != nil {
			return stats.VariantComparison{}, fmt.Errorf("variant %s: %w", variant, err)
		}
		cmp.ModelID = summary.ModelID
		cmp.RunIDs = append(cmp.RunIDs, summary.RunID)
		cmp.Summaries = append(cmp.Summaries, stats.RunIndexEntry{
			RunID:        summary.RunID,
			ModelID:      summary.ModelID,
			Variant:      summary.Variant,
			Samples:      summary.Samples,
			Contexts:     summary.Contexts,
			Epochs:       len(summary.LossHistory),
			Seed:         run.Seed,
			FinalLoss:    summary.FinalLoss,
			AdjustedRand: summary.AdjustedRand,
		})
	}
	cmp.Rank()
	cmp.CompletedAtUTC = c.now().UTC().Format(time.RFC3339Nano)
	if err := stats.WriteVariantComparison(c.runsDir, cmp); err != nil {
		return stats.VariantComparison{}, err
	}
	return cmp, nil
}

func (c *Client) Comparisons(_ context.Context) ([]stats.VariantComparison, error) {
	return stats.ListVariantComparisons(c.runsDir)
}

type DescribeRequest struct {
	DataPath    string
	LabelColumn *int
	Scaling     string
}

func (c *Client) Describe(_ context.Context, req DescribeRequest) (dataextract.DatasetInfo, error) {
	if req.DataPath == "" {
		return dataextract.DatasetInfo{}, errors.New("data path is required")
	}
	data, err := dataset.LoadCSVFile(req.DataPath, loadOptions(req.LabelColumn, req.Scaling))
	if err != nil {
		return dataextract.DatasetInfo{}, fmt.Errorf("load data: %w", err)
	}
	return dataextract.Describe(data)
}

type ConvertRequest struct {
	CatalogPath string
	OutPath     string
	Options     dataextract.CatalogOptions
}

type ConvertSummary struct {
	OutPath  string
	Samples  int
	Contexts int
}

// ConvertCatalog writes a long mutation catalog as the count matrix CSV that
// Infer reads. Empty column names take the catalog defaults.
func (c *Client) ConvertCatalog(_ context.Context, req ConvertRequest) (ConvertSummary, error) {
	if req.CatalogPath == "" || req.OutPath == "" {
		return ConvertSummary{}, errors.New("convert requires catalog and output paths")
	}
	opts := dataextract.DefaultCatalogOptions()
	if req.Options.SampleColumn != "" {
		opts.SampleColumn = req.Options.SampleColumn
	}
	if req.Options.ContextColumn != "" {
		opts.ContextColumn = req.Options.ContextColumn
	}
	if req.Options.CountColumn != "" {
		opts.CountColumn = req.Options.CountColumn
	}
	if req.Options.LabelColumn != "" {
		opts.LabelColumn = req.Options.LabelColumn
	}
	catalog, err := dataextract.ConvertCatalogFile(req.CatalogPath, req.OutPath, opts)
	if err != nil {
		return ConvertSummary{}, err
	}
	c.log.Info("converted catalog", "in", req.CatalogPath, "out", req.OutPath, "samples", len(catalog.Samples), "contexts", len(catalog.Contexts))
	return ConvertSummary{OutPath: req.OutPath, Samples: len(catalog.Samples), Contexts: len(catalog.Contexts)}, nil
}

func (c *Client) ensurePlatform(ctx context.Context) (*platform.Platform, error) {
	if c.platform != nil {
		return c.platform, nil
	}
	p := platform.New(platform.Config{Store: c.store, Logger: c.log})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.platform = p
	return c.platform, nil
}

func (c *Client) resolveRunID(runID string, latest bool, op string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", fmt.Errorf("%s requires run id or latest", op)
	}
	if !latest {
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no runs available to %s", op)
	}
	return entries[0].RunID, nil
}

func (c *Client) recordAdjustedRand(runID string, ari float64) error {
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.RunID == runID {
			e.AdjustedRand = &ari
			return stats.AppendRunIndex(c.runsDir, e)
		}
	}
	return nil
}

func materializeConfig(req InferRequest) (inference.Config, error) {
	variant := req.Variant
	if variant == "" {
		variant = inference.VariantSingle
	}
	cfg, err := inference.Preset(variant)
	if err != nil {
		return inference.Config{}, err
	}
	if req.InferContextSpace != nil {
		cfg.InferContextSpace = *req.InferContextSpace
	}
	if req.FeedOneHot != nil {
		cfg.FeedOneHot = *req.FeedOneHot
	}
	if req.RefitContextSpace != nil {
		cfg.RefitContextSpace = *req.RefitContextSpace
	}
	if req.Epochs >= 0 {
		cfg.Epochs = req.Epochs
	}
	if req.LearningRate > 0 {
		cfg.Optimizer.LearningRate = req.LearningRate
	}
	if req.Beta1 > 0 {
		cfg.Optimizer.Beta1 = req.Beta1
	}
	if req.Beta2 > 0 {
		cfg.Optimizer.Beta2 = req.Beta2
	}
	if req.WeightDecay > 0 {
		cfg.Optimizer.WeightDecay = req.WeightDecay
	}
	if req.SelectionReduction != "" {
		if cfg.SelectionReduction, err = inference.ParseReduction(req.SelectionReduction); err != nil {
			return inference.Config{}, err
		}
	}
	if req.RefineReduction != "" {
		if cfg.RefineReduction, err = inference.ParseReduction(req.RefineReduction); err != nil {
			return inference.Config{}, err
		}
	}
	if req.Resampling != "" {
		cfg.Resampling = strings.ToLower(strings.TrimSpace(req.Resampling))
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	if req.ContextComponents > 0 {
		cfg.ContextComponents = req.ContextComponents
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return inference.Config{}, err
	}
	return cfg, nil
}

func loadOptions(labelColumn *int, scaling string) dataset.LoadOptions {
	opts := dataset.DefaultLoadOptions()
	if labelColumn != nil {
		opts.LabelColumn = *labelColumn
	}
	if scaling != "" {
		opts.Scaling = scaling
	}
	return opts
}

func indexEntry(run model.RunRecord, seed int64) stats.RunIndexEntry {
	return stats.RunIndexEntry{
		RunID:        run.ID,
		ModelID:      run.ModelID,
		Variant:      run.Variant.Name,
		Samples:      run.Samples,
		Contexts:     run.Contexts,
		Epochs:       run.Epochs,
		Seed:         seed,
		FinalLoss:    run.FinalLoss,
		AdjustedRand: run.AdjustedRand,
		CreatedAtUTC: run.CreatedAtUTC,
	}
}

func newRunID(variant string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", variant, strftime.Format("%Y%m%d-%H%M%S", now), shortID())
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
