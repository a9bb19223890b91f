package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"dgdinfer/internal/dataextract"
	"dgdinfer/internal/dataset"
	"dgdinfer/internal/inference"
	"dgdinfer/internal/model"
	"dgdinfer/internal/storage"
	"dgdinfer/pkg/dgdinfer"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
	dbPath     = "dgdinfer.db"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "infer":
		return runInfer(ctx, args[1:])
	case "compare":
		return runCompare(ctx, args[1:])
	case "variants":
		return runVariants(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "reps":
		return runReps(ctx, args[1:])
	case "evaluate":
		return runEvaluate(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "data":
		return runData(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// clientFlags are shared by every command that opens a client.
type clientFlags struct {
	storeKind *string
	dbPath    *string
	runsDir   *string
	logLevel  *string
	logFormat *string
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind: fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:    fs.String("db-path", dbPath, "sqlite database path"),
		runsDir:   fs.String("runs-dir", runsDir, "run artifacts directory"),
		logLevel:  fs.String("log-level", "info", "log level: debug|info|warn|error"),
		logFormat: fs.String("log-format", "auto", "log format: auto|text|json"),
	}
}

func (f clientFlags) open(ctx context.Context, exports string) (*dgdinfer.Client, error) {
	logger, err := newLogger(os.Stderr, *f.logLevel, *f.logFormat)
	if err != nil {
		return nil, err
	}
	client, err := dgdinfer.New(dgdinfer.Options{
		StoreKind:  *f.storeKind,
		DBPath:     *f.dbPath,
		RunsDir:    *f.runsDir,
		ExportsDir: exports,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open(ctx, exportsDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	fmt.Printf("initialized store=%s\n", *cf.storeKind)
	return nil
}

type inferFlags struct {
	configPath         *string
	modelPath          *string
	dataPath           *string
	labelColumn        *int
	scaling            *string
	batchSize          *int
	variant            *string
	inferContext       *bool
	feedOneHot         *bool
	refitContext       *bool
	epochs             *int
	learningRate       *float64
	beta1              *float64
	beta2              *float64
	weightDecay        *float64
	selectionReduction *string
	refineReduction    *string
	resampling         *string
	seed               *int64
	contextComponents  *int
	evaluate           *bool
}

func addInferFlags(fs *flag.FlagSet) inferFlags {
	def := inference.DefaultConfig()
	return inferFlags{
		configPath:         fs.String("config", "", "optional inference config JSON path"),
		modelPath:          fs.String("model", "", "trained model JSON path"),
		dataPath:           fs.String("data", "", "mutation count CSV path"),
		labelColumn:        fs.Int("label-column", -1, "sample label column; negative counts from the end"),
		scaling:            fs.String("scaling", dataset.ScalingMean, "per-sample scaling: mean|max|sum"),
		batchSize:          fs.Int("batch-size", 64, "rows per batch"),
		variant:            fs.String("variant", inference.VariantSingle, "variant: "+strings.Join(inference.Variants(), "|")),
		inferContext:       fs.Bool("infer-context", false, "feed context representations to the decoder"),
		feedOneHot:         fs.Bool("feed-onehot", false, "feed the context one-hot encoding to the decoder"),
		refitContext:       fs.Bool("refit-context", false, "select and train context representations"),
		epochs:             fs.Int("epochs", def.Epochs, "refinement epochs (0 skips refinement)"),
		learningRate:       fs.Float64("lr", def.Optimizer.LearningRate, "AdamW learning rate"),
		beta1:              fs.Float64("beta1", def.Optimizer.Beta1, "AdamW first moment decay"),
		beta2:              fs.Float64("beta2", def.Optimizer.Beta2, "AdamW second moment decay"),
		weightDecay:        fs.Float64("weight-decay", def.Optimizer.WeightDecay, "AdamW decoupled weight decay"),
		selectionReduction: fs.String("selection-reduction", string(def.SelectionReduction), "selection loss reduction: sum|mean"),
		refineReduction:    fs.String("refine-reduction", string(def.RefineReduction), "refinement loss reduction: sum|mean"),
		resampling:         fs.String("resampling", def.Resampling, "candidate generation: mean|sample"),
		seed:               fs.Int64("seed", def.Seed, "rng seed"),
		contextComponents:  fs.Int("context-components", def.ContextComponents, "components of a derived context mixture"),
		evaluate:           fs.Bool("evaluate", false, "score fitted samples against dataset labels"),
	}
}

func (f inferFlags) request(fs *flag.FlagSet) (dgdinfer.InferRequest, error) {
	setFlags := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) {
		setFlags[fl.Name] = true
	})

	values := map[string]any{
		"model":               *f.modelPath,
		"data":                *f.dataPath,
		"label-column":        *f.labelColumn,
		"scaling":             *f.scaling,
		"batch-size":          *f.batchSize,
		"variant":             *f.variant,
		"infer-context":       *f.inferContext,
		"feed-onehot":         *f.feedOneHot,
		"refit-context":       *f.refitContext,
		"epochs":              *f.epochs,
		"lr":                  *f.learningRate,
		"beta1":               *f.beta1,
		"beta2":               *f.beta2,
		"weight-decay":        *f.weightDecay,
		"selection-reduction": *f.selectionReduction,
		"refine-reduction":    *f.refineReduction,
		"resampling":          *f.resampling,
		"seed":                *f.seed,
		"context-components":  *f.contextComponents,
		"evaluate":            *f.evaluate,
	}

	if *f.configPath == "" {
		labelColumn := *f.labelColumn
		req := dgdinfer.InferRequest{
			ModelPath:          *f.modelPath,
			DataPath:           *f.dataPath,
			LabelColumn:        &labelColumn,
			Scaling:            *f.scaling,
			BatchSize:          *f.batchSize,
			Variant:            *f.variant,
			Epochs:             *f.epochs,
			LearningRate:       *f.learningRate,
			Beta1:              *f.beta1,
			Beta2:              *f.beta2,
			WeightDecay:        *f.weightDecay,
			SelectionReduction: *f.selectionReduction,
			RefineReduction:    *f.refineReduction,
			Resampling:         *f.resampling,
			Seed:               *f.seed,
			ContextComponents:  *f.contextComponents,
			Evaluate:           *f.evaluate,
		}
		// Variant flags only override the preset when given explicitly.
		overrideFromFlags(&req, filterFlags(setFlags, "infer-context", "feed-onehot", "refit-context"), values)
		return req, nil
	}

	req, err := loadInferRequestFromConfig(*f.configPath)
	if err != nil {
		return dgdinfer.InferRequest{}, fmt.Errorf("load config: %w", err)
	}
	overrideFromFlags(&req, setFlags, values)
	return req, nil
}

func runInfer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("infer", flag.ContinueOnError)
	cf := addClientFlags(fs)
	inf := addInferFlags(fs)
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := inf.request(fs)
	if err != nil {
		return err
	}

	client, err := cf.open(ctx, exportsDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Infer(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(summary)
	}

	fmt.Printf("run_id=%s variant=%s samples=%s contexts=%s epochs=%d final_loss=%s\n",
		summary.RunID,
		summary.Variant,
		humanize.Comma(int64(summary.Samples)),
		humanize.Comma(int64(summary.Contexts)),
		len(summary.LossHistory),
		formatLoss(summary.FinalLoss),
	)
	if summary.AdjustedRand != nil {
		fmt.Printf("adjusted_rand=%.4f\n", *summary.AdjustedRand)
	}
	fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runCompare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	cf := addClientFlags(fs)
	inf := addInferFlags(fs)
	variants := fs.String("variants", "", "comma separated variants to compare (default: all)")
	notes := fs.String("notes", "", "free text stored with the comparison")
	list := fs.Bool("list", false, "list stored comparisons instead of running one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *list {
		return listComparisons(ctx, cf)
	}
	base, err := inf.request(fs)
	if err != nil {
		return err
	}
	base.Variant = ""

	client, err := cf.open(ctx, exportsDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	cmp, err := client.Compare(ctx, dgdinfer.CompareRequest{
		Base:     base,
		Variants: splitList(*variants),
		Notes:    *notes,
	})
	if err != nil {
		return err
	}

	fmt.Printf("comparison_id=%s best_variant=%s\n", cmp.ID, cmp.BestVariant)
	for i, s := range cmp.Summaries {
		line := fmt.Sprintf("rank=%d variant=%s run_id=%s final_loss=%s", i+1, s.Variant, s.RunID, formatLoss(s.FinalLoss))
		if s.AdjustedRand != nil {
			line += fmt.Sprintf(" adjusted_rand=%.4f", *s.AdjustedRand)
		}
		fmt.Println(line)
	}
	return nil
}

func listComparisons(ctx context.Context, cf clientFlags) error {
	client, err := cf.open(ctx, exportsDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	comparisons, err := client.Comparisons(ctx)
	if err != nil {
		return err
	}
	for _, cmp := range comparisons {
		fmt.Printf("comparison_id=%s best_variant=%s variants=%d\n", cmp.ID, cmp.BestVariant, len(cmp.Summaries))
	}
	return nil
}

func runVariants(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("variants", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range inference.Variants() {
		cfg, err := inference.Preset(name)
		if err != nil {
			return err
		}
		fmt.Printf("variant=%s infer_context=%t feed_onehot=%t refit_context=%t\n",
			name, cfg.InferContextSpace, cfg.FeedOneHot, cfg.RefitContextSpace)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	cf := addClientFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := cf.open(ctx, exportsDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, dgdinfer.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		line := fmt.Sprintf("run_id=%s variant=%s created=%s samples=%s contexts=%s epochs=%d seed=%d final_loss=%s",
			item.RunID,
			item.Variant,
			createdAge(item.CreatedAtUTC),
			humanize.Comma(int64(item.Samples)),
			humanize.Comma(int64(item.Contexts)),
			item.Epochs,
			item.Seed,
			formatLoss(item.FinalLoss),
		)
		if item.AdjustedRand != nil {
			line += fmt.Sprintf(" adjusted_rand=%.4f", *item.AdjustedRand)
		}
		fmt.Println(line)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run from run index")
	jsonOut := fs.Bool("json", false, "emit run detail as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open(ctx, exportsDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	detail, err := client.Show(ctx, dgdinfer.ShowRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(detail)
	}

	c := detail.Config
	fmt.Printf("run_id=%s model_id=%s variant=%s\n", c.RunID, c.ModelID, c.Variant)
	fmt.Printf("infer_context=%t feed_onehot=%t refit_context=%t scaling=%s batch_size=%d\n",
		c.InferContextSpace, c.FeedOneHot, c.RefitContextSpace, c.Scaling, c.BatchSize)
	fmt.Printf("epochs=%d lr=%g selection_reduction=%s refine_reduction=%s resampling=%s seed=%d\n",
		c.Epochs, c.LearningRate, c.SelectionReduction, c.RefineReduction, c.Resampling, c.Seed)
	fmt.Printf("loss initial=%s final=%s min=%s improvement=%s\n",
		formatLoss(detail.Loss.Initial), formatLoss(detail.Loss.Final), formatLoss(detail.Loss.Min), formatLoss(detail.Loss.Improvement))
	fmt.Printf("sample_choice=%v\n", detail.Selection.SampleChoice)
	if len(detail.Selection.ContextChoice) > 0 {
		fmt.Printf("context_choice=%v\n", detail.Selection.ContextChoice)
	}
	if detail.Evaluation != nil {
		fmt.Printf("adjusted_rand=%.4f rand=%.4f accuracy=%.4f\n",
			detail.Evaluation.AdjustedRand, detail.Evaluation.Rand, detail.Evaluation.Accuracy)
	}
	return nil
}

func runReps(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reps", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from run index")
	space := fs.String("space", model.SpaceSample, "representation space: sample|context")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open(ctx, exportsDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	rows, err := client.Representation(ctx, dgdinfer.RepresentationRequest{RunID: *runID, Latest: *latest, Space: *space})
	if err != nil {
		return err
	}
	for i, row := range rows {
		fmt.Printf("index=%d z=%v\n", i, row)
	}
	return nil
}

func runEvaluate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "evaluate the most recent run from run index")
	modelPath := fs.String("model", "", "trained model JSON path (default: recorded with the run)")
	dataPath := fs.String("data", "", "labelled mutation count CSV path (default: recorded with the run)")
	labelColumn := fs.Int("label-column", -1, "sample label column; negative counts from the end")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open(ctx, exportsDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	report, err := client.Evaluate(ctx, dgdinfer.EvaluateRequest{
		RunID:       *runID,
		Latest:      *latest,
		ModelPath:   *modelPath,
		DataPath:    *dataPath,
		LabelColumn: labelColumn,
	})
	if err != nil {
		return err
	}
	fmt.Printf("adjusted_rand=%.4f rand=%.4f accuracy=%.4f clusters=%d\n",
		report.AdjustedRand, report.Rand, report.Accuracy, len(report.Mapping))
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := cf.open(ctx, *outDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, dgdinfer.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runData(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("data requires a subcommand: convert|info")
	}
	switch args[0] {
	case "convert":
		return runDataConvert(ctx, args[1:])
	case "info":
		return runDataInfo(ctx, args[1:])
	default:
		return fmt.Errorf("unknown data subcommand: %s", args[0])
	}
}

func runDataConvert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("data convert", flag.ContinueOnError)
	in := fs.String("in", "", "long mutation catalog CSV path")
	out := fs.String("out", "", "output count matrix CSV path")
	sampleColumn := fs.String("sample-column", "", "catalog sample column name (default sample)")
	contextColumn := fs.String("context-column", "", "catalog context column name (default context)")
	countColumn := fs.String("count-column", "", "catalog count column name (default count)")
	labelColumn := fs.String("label-column", "", "catalog label column name (default label)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("data convert requires --in and --out")
	}

	client, err := dgdinfer.New(dgdinfer.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.ConvertCatalog(ctx, dgdinfer.ConvertRequest{
		CatalogPath: *in,
		OutPath:     *out,
		Options: dataextract.CatalogOptions{
			SampleColumn:  *sampleColumn,
			ContextColumn: *contextColumn,
			CountColumn:   *countColumn,
			LabelColumn:   *labelColumn,
		},
	})
	if err != nil {
		return err
	}
	fmt.Printf("converted out=%s samples=%s contexts=%s\n",
		summary.OutPath, humanize.Comma(int64(summary.Samples)), humanize.Comma(int64(summary.Contexts)))
	return nil
}

func runDataInfo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("data info", flag.ContinueOnError)
	dataPath := fs.String("data", "", "mutation count CSV path")
	labelColumn := fs.Int("label-column", -1, "sample label column; negative counts from the end")
	scaling := fs.String("scaling", dataset.ScalingMean, "per-sample scaling: mean|max|sum")
	jsonOut := fs.Bool("json", false, "print as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := dgdinfer.New(dgdinfer.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	info, err := client.Describe(ctx, dgdinfer.DescribeRequest{DataPath: *dataPath, LabelColumn: labelColumn, Scaling: *scaling})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(info)
	}
	fmt.Printf("samples=%s contexts=%s pairs=%s distinct_contexts=%d\n",
		humanize.Comma(int64(info.Samples)), humanize.Comma(int64(info.Contexts)),
		humanize.Comma(int64(info.Pairs)), info.DistinctContexts)
	fmt.Printf("total_count=%s mean_sample_count=%s zero_pairs=%s\n",
		humanize.Commaf(info.TotalCount), formatLoss(info.MeanSampleCount), humanize.Comma(int64(info.ZeroPairs)))
	fmt.Printf("scale_min=%s scale_max=%s labels=%d\n",
		formatLoss(info.MinScale), formatLoss(info.MaxScale), len(info.Labels))
	if len(info.UnknownContexts) > 0 {
		fmt.Printf("unknown_contexts=%s\n", strings.Join(info.UnknownContexts, ","))
	}
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: dgdctl <init|infer|compare|variants|runs|show|reps|evaluate|export|data> [flags]", msg)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatLoss(v float64) string {
	return humanize.CommafWithDigits(v, 4)
}

func createdAge(createdAtUTC string) string {
	ts, err := time.Parse(time.RFC3339Nano, createdAtUTC)
	if err != nil {
		return createdAtUTC
	}
	return strings.ReplaceAll(humanize.Time(ts), " ", "_")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func filterFlags(set map[string]bool, names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, name := range names {
		if set[name] {
			out[name] = true
		}
	}
	return out
}
