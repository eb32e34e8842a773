// Package app runs the training workflow shared by the command line
// programs: bootstrap the cloud, parse the training file, build the GBM and
// export it.
package app

import (
	"context"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/config"
	"github.com/mannetroll/analysis/export"
	"github.com/mannetroll/analysis/frame"
	"github.com/mannetroll/analysis/gbm"
	"github.com/mannetroll/analysis/pkg/log"
)

// Result summarises a run that got past the bootstrap.
type Result struct {
	FrameKey cluster.Key
	ModelKey cluster.Key
	Model    *gbm.Model
	Export   *export.Result
	// Aborted is set when ingestion or training failed.
	Aborted bool
}

// Run executes the workflow for cfg on cloud.
//
// Only bootstrap failures are returned: a cloud that does not form in time
// is fatal to the process. Ingestion, training and export failures are
// logged and leave the returned error nil, so the caller exits normally.
func Run(ctx context.Context, cloud *cluster.Cloud, cfg *config.Config, logger log.Logger) (*Result, error) {
	if logger == nil {
		logger = log.GetLoggerWithName("app")
	}
	v := cfg.Variant
	logger = logger.With(log.VariantKey, v.Name)

	if err := cloud.Start(ctx); err != nil {
		return nil, err
	}
	if err := cloud.WaitForCloudSize(ctx, 1, v.CloudTimeout); err != nil {
		return nil, err
	}
	if err := cloud.StartServingREST(cfg.RESTAddr); err != nil {
		return nil, err
	}

	tc := cfg.Training
	logConfig(logger, tc)

	res := &Result{}
	store := cloud.Store()

	frameKey := cluster.RandomKey("frame")
	if v.NamedKeys {
		frameKey = frame.KeyForPath(tc.Train)
	}
	f, err := frame.ParseCSVInto(ctx, store, frameKey, tc.Train)
	if err != nil {
		logger.Error("Error importing file: "+tc.Train, err, log.PathKey, tc.Train)
		res.Aborted = true
		return res, nil
	}
	res.FrameKey = f.Key()
	logger.Info("*** frame_train", log.FrameKeyKey, f.String())

	modelName := v.ModelName(tc)
	modelID := ""
	if v.NamedKeys {
		modelID = modelName
	}
	params := tc.Parameters(modelID, f.Key())
	job := gbm.New(params, store, gbm.WithLogger(logger)).TrainModel(ctx)
	model, err := job.Get(ctx)
	if err != nil {
		logger.Error("Error training model", err, log.JobKeyKey, job.Key().String())
		res.Aborted = true
		return res, nil
	}
	res.Model = model
	res.ModelKey = model.Key

	exporter := &export.Exporter{Dir: cfg.WorkDir, Logger: logger}
	res.Export, err = exporter.Export(ctx, modelName, model, tc.When, export.Options{
		Binary:         v.ExportBinary,
		ScoringHistory: cfg.ScoringHistory,
	})
	if err != nil {
		logger.Error("Error exporting model", err, log.ModelKeyKey, model.Key.String())
	}

	if v.Cleanup {
		store.Remove(model.Key)
		store.Remove(f.Key())
		store.Remove(job.Key())
		logger.Debug("Removed model and frame", log.StoreSizeKey, store.Size())
	}
	return res, nil
}

func logConfig(logger log.Logger, c config.TrainingConfig) {
	logger.Info("*** when", log.RunLabelKey, c.When)
	logger.Info("*** train", log.PathKey, c.Train)
	logger.Info("*** ntrees", log.NTreesKey, c.NTrees)
	logger.Info("*** max_depth", log.MaxDepthKey, c.MaxDepth)
	logger.Info("*** learn_rate", log.LearnRateKey, c.LearnRate)
	logger.Info("*** min_rows", log.MinRowsKey, c.MinRows)
	logger.Info("*** min_split_improvement", log.MinSplitImprovKey, c.MinSplitImprovement)
	logger.Info("*** length", "value", len(c.IgnoredColumns))
	logger.Info("*** ignoredColumns", log.IgnoredColumnsKey, c.IgnoredColumns)
}
