// Package export writes a trained model and its report to disk: the
// parameters as JSON, a MOJO zip archive, a gob binary and optionally the
// scoring history as CSV and PNG.
package export

import (
	"context"
	"os"
	"path/filepath"

	coremodel "github.com/mannetroll/analysis/core/model"
	"github.com/mannetroll/analysis/gbm"
	"github.com/mannetroll/analysis/metrics"
	"github.com/mannetroll/analysis/pkg/errors"
	"github.com/mannetroll/analysis/pkg/log"
)

// Options selects the optional outputs.
type Options struct {
	// Binary writes basename.zip and basename.h2o.
	Binary bool
	// ScoringHistory writes basename_scoring.csv and basename_scoring.png.
	ScoringHistory bool
}

// Exporter writes models below Dir.
type Exporter struct {
	Dir    string
	Logger log.Logger
}

// Result lists the files an export produced.
type Result struct {
	Basename string
	Files    []string
}

// Basename returns <Dir>/<name>_<when>.
func (e *Exporter) Basename(name, when string) string {
	return filepath.Join(e.Dir, name+"_"+when)
}

func (e *Exporter) logger() log.Logger {
	if e.Logger == nil {
		return log.GetLoggerWithName("export")
	}
	return e.Logger
}

// Export writes the report for model. Failing to write the parameter file
// aborts the export and is returned; failures of the archive, binary and
// scoring outputs are logged and the remaining outputs are still written.
func (e *Exporter) Export(ctx context.Context, name string, model *gbm.Model, when string, opts Options) (*Result, error) {
	if model == nil {
		return nil, errors.NewValueError("Export", "nil model")
	}
	logger := e.logger()

	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create export directory %s", e.Dir)
	}
	basename := e.Basename(name, when)
	res := &Result{Basename: basename}

	params, err := model.Params.ToJSON()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(basename+".json", []byte(params), 0o644); err != nil {
		return nil, errors.Wrapf(err, "write parameters %s.json", basename)
	}
	res.Files = append(res.Files, basename+".json")

	logMetrics(logger, name, model, basename)

	if opts.Binary {
		e.write(ctx, res, basename+".zip", func(path string) error { return WriteMojo(model, path) })
		e.write(ctx, res, basename+".h2o", func(path string) error { return coremodel.SaveModel(model, path, true) })
	}
	if opts.ScoringHistory {
		e.write(ctx, res, basename+"_scoring.csv", func(path string) error {
			return WriteScoringHistory(model.Output.ScoringHistory, path)
		})
		e.write(ctx, res, basename+"_scoring.png", func(path string) error {
			return PlotScoringHistory(model, path)
		})
	}
	return res, nil
}

// write runs one optional output and logs its failure.
func (e *Exporter) write(ctx context.Context, res *Result, path string, fn func(string) error) {
	if err := ctx.Err(); err != nil {
		e.logger().Error("Error exporting model", errors.WithStack(err), log.PathKey, path)
		return
	}
	err := errors.SafeExecute("export "+filepath.Base(path), func() error { return fn(path) })
	if err != nil {
		e.logger().Error("Error exporting model", err, log.PathKey, path)
		return
	}
	res.Files = append(res.Files, path)
}

func logMetrics(logger log.Logger, name string, model *gbm.Model, basename string) {
	logger.Info("*** model", log.ModelKeyKey, model.String())

	category := model.Category()
	logger.Info("*** Category", log.CategoryKey, string(category))
	switch category {
	case metrics.Binomial:
		logger.Info("*** AUC", "value", model.AUC())
		logger.Info("*** logloss", "value", model.LogLoss())
		logger.Info("*** mean_per_class_error", "value", model.MeanPerClassError())
	case metrics.Regression:
		logger.Info("*** mae", "value", model.MAE())
	}
	logger.Info("*** loss", "value", model.Loss())
	logger.Info("*** r2", "value", model.R2())
	logger.Info("*** mse", "value", model.MSE())
	logger.Info("*** modelname", "value", name)
	logger.Info("*** basename", log.PathKey, basename)
}
