package export

import (
	"math"
	"os"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/mannetroll/analysis/gbm"
	"github.com/mannetroll/analysis/metrics"
	"github.com/mannetroll/analysis/pkg/errors"
)

// WriteScoringHistory writes the entries as CSV with a header row.
func WriteScoringHistory(history []gbm.ScoringEntry, path string) error {
	if len(history) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "scoring history")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	if err := gocsv.Marshal(&history, f); err != nil {
		return errors.Wrap(err, "marshal scoring history")
	}
	return errors.WithStack(f.Close())
}

// PlotScoringHistory draws the training loss against the number of trees:
// deviance for regression, log loss for classifiers.
func PlotScoringHistory(model *gbm.Model, path string) error {
	history := model.Output.ScoringHistory
	if len(history) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "scoring history")
	}

	label := "training_logloss"
	value := func(e gbm.ScoringEntry) float64 { return e.TrainingLogLoss }
	if model.Category() == metrics.Regression {
		label = "training_deviance"
		value = func(e gbm.ScoringEntry) float64 { return e.TrainingDeviance }
	}

	pts := make(plotter.XYs, 0, len(history))
	for _, e := range history {
		if v := value(e); !math.IsNaN(v) && !math.IsInf(v, 0) {
			pts = append(pts, plotter.XY{X: float64(e.NumberOfTrees), Y: v})
		}
	}
	if len(pts) == 0 {
		return errors.Newf("scoring history has no finite %s values", label)
	}

	p := plot.New()
	p.Title.Text = "Scoring history " + string(model.Key)
	p.X.Label.Text = "number_of_trees"
	p.Y.Label.Text = label

	line, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "scoring history line")
	}
	line.LineStyle.Width = vg.Points(2)
	p.Add(line, plotter.NewGrid())
	p.Legend.Add(label, line)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
