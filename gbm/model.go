package gbm

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/core/parallel"
	"github.com/mannetroll/analysis/frame"
	"github.com/mannetroll/analysis/metrics"
	"github.com/mannetroll/analysis/pkg/errors"
)

// ScoringEntry is one row of the scoring history. The csv tags name the
// columns of the exported scoring history file.
type ScoringEntry struct {
	Timestamp                   string  `csv:"timestamp"`
	Duration                    string  `csv:"duration"`
	NumberOfTrees               int     `csv:"number_of_trees"`
	TrainingRMSE                float64 `csv:"training_rmse"`
	TrainingMAE                 float64 `csv:"training_mae"`
	TrainingDeviance            float64 `csv:"training_deviance"`
	TrainingLogLoss             float64 `csv:"training_logloss"`
	TrainingAUC                 float64 `csv:"training_auc"`
	TrainingClassificationError float64 `csv:"training_classification_error"`
}

// VariableImportance is the summed split improvement of one predictor.
type VariableImportance struct {
	Variable           string  `json:"variable"`
	RelativeImportance float64 `json:"relative_importance"`
	ScaledImportance   float64 `json:"scaled_importance"`
	Percentage         float64 `json:"percentage"`
}

// Output is everything training produced.
type Output struct {
	// Names are the predictor columns in training order.
	Names []string
	// Domains holds the levels of categorical predictors, nil for numeric.
	Domains        [][]string
	ResponseDomain []string
	Category       metrics.ModelCategory
	Distribution   Distribution
	InitF          []float64
	// Trees holds one slice of class trees per iteration.
	Trees               [][]Tree
	ScoringHistory      []ScoringEntry
	VariableImportances []VariableImportance
	TrainingMetrics     *metrics.ModelMetrics
	Seed                int64
	RunTime             time.Duration
}

// Model is a trained GBM.
type Model struct {
	Key    cluster.Key
	Params Parameters
	Output Output
}

// NTrees is the number of boosting iterations in the ensemble.
func (m *Model) NTrees() int { return len(m.Output.Trees) }

// Category reports whether the model is a regression, binomial or
// multinomial model.
func (m *Model) Category() metrics.ModelCategory { return m.Output.Category }

func (m *Model) trainingMetric(pick func(*metrics.ModelMetrics) float64) float64 {
	if m.Output.TrainingMetrics == nil {
		return math.NaN()
	}
	return pick(m.Output.TrainingMetrics)
}

// AUC on the training frame; NaN unless binomial.
func (m *Model) AUC() float64 {
	return m.trainingMetric(func(mm *metrics.ModelMetrics) float64 { return mm.AUC })
}

// LogLoss on the training frame; NaN for regression.
func (m *Model) LogLoss() float64 {
	return m.trainingMetric(func(mm *metrics.ModelMetrics) float64 { return mm.LogLoss })
}

// MeanPerClassError on the training frame; NaN for regression.
func (m *Model) MeanPerClassError() float64 {
	return m.trainingMetric(func(mm *metrics.ModelMetrics) float64 { return mm.MeanPerClassError })
}

// MAE on the training frame; NaN for classifiers.
func (m *Model) MAE() float64 {
	return m.trainingMetric(func(mm *metrics.ModelMetrics) float64 { return mm.MAE })
}

// Loss is the training log loss for classifiers and the mean residual
// deviance for regression.
func (m *Model) Loss() float64 {
	return m.trainingMetric(func(mm *metrics.ModelMetrics) float64 { return mm.Loss() })
}

// R2 on the training frame.
func (m *Model) R2() float64 {
	return m.trainingMetric(func(mm *metrics.ModelMetrics) float64 { return mm.R2 })
}

// MSE on the training frame.
func (m *Model) MSE() float64 {
	return m.trainingMetric(func(mm *metrics.ModelMetrics) float64 { return mm.MSE })
}

// RMSE on the training frame.
func (m *Model) RMSE() float64 {
	return m.trainingMetric(func(mm *metrics.ModelMetrics) float64 { return mm.RMSE })
}

// ScoreRow returns the prediction for one row of predictor values in
// Output.Names order: a single value for regression, class probabilities
// otherwise.
func (m *Model) ScoreRow(row []float64) []float64 {
	k := len(m.Output.InitF)
	dist := newDistribution(m.Output.Distribution, len(m.Output.ResponseDomain))
	f := append(make([]float64, 0, k), m.Output.InitF...)
	for _, iter := range m.Output.Trees {
		for c := range iter {
			f[iter[c].Class] = dist.clamp(f[iter[c].Class] + iter[c].Score(row))
		}
	}
	return dist.predict(f)
}

// predictSerialRows is the frame size up to which Predict scores on the
// calling goroutine.
const predictSerialRows = 2048

// Predict scores every row of f. Predictor columns are matched by name;
// categorical levels unseen during training and missing columns score as NA.
func (m *Model) Predict(f *frame.Frame) ([][]float64, error) {
	if f == nil {
		return nil, errors.NewValueError("Predict", "nil frame")
	}
	if len(m.Output.Trees) == 0 {
		return nil, errors.NewNotFittedError("GBM", "Predict")
	}

	cols := make([][]float64, len(m.Output.Names))
	for j, name := range m.Output.Names {
		col, err := m.adaptColumn(f, j, name)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}

	out := make([][]float64, f.NumRows())
	parallel.ParallelizeWithThreshold(len(out), predictSerialRows, func(start, end int) {
		row := make([]float64, len(cols))
		for i := start; i < end; i++ {
			for j := range cols {
				row[j] = cols[j][i]
			}
			out[i] = m.ScoreRow(row)
		}
	})
	return out, nil
}

// adaptColumn returns column name of f encoded the way the model was
// trained: categorical values as indices into the training domain.
func (m *Model) adaptColumn(f *frame.Frame, j int, name string) ([]float64, error) {
	n := f.NumRows()
	col := make([]float64, n)
	v := f.Vec(name)
	if v == nil {
		errors.Warn(errors.NewDataConversionWarning(name, "NA", "column missing from scoring frame"))
		for i := range col {
			col[i] = math.NaN()
		}
		return col, nil
	}

	domain := m.Output.Domains[j]
	if len(domain) == 0 {
		if v.IsCategorical() {
			return nil, errors.NewValidationError(name, "numeric predictor given as categorical column", v.Type().String())
		}
		copy(col, v.Values())
		return col, nil
	}

	index := make(map[string]float64, len(domain))
	for i, level := range domain {
		index[level] = float64(i)
	}
	for i := 0; i < n; i++ {
		col[i] = math.NaN()
		if v.IsNA(i) {
			continue
		}
		var level string
		if v.IsCategorical() {
			level = v.Domain()[int(v.At(i))]
		} else {
			level = strconv.FormatFloat(v.At(i), 'f', -1, 64)
		}
		if code, ok := index[level]; ok {
			col[i] = code
		}
	}
	return col, nil
}

func (m *Model) String() string {
	return fmt.Sprintf("GBM %s (%s, %d trees, response %q)",
		m.Key, m.Output.Category, m.NTrees(), m.Params.ResponseColumn)
}

// Describe implements cluster.Describer.
func (m *Model) Describe() cluster.Description {
	return cluster.Description{
		Key:  m.Key,
		Kind: "model",
		Summary: map[string]interface{}{
			"algo":           "gbm",
			"category":       string(m.Output.Category),
			"ntrees":         m.NTrees(),
			"response":       m.Params.ResponseColumn,
			"training_frame": m.Params.TrainingFrame,
		},
	}
}
