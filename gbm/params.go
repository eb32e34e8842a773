package gbm

import (
	"encoding/json"
	"fmt"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/frame"
	"github.com/mannetroll/analysis/pkg/errors"
)

// Distribution selects the loss the trees are fitted to.
type Distribution string

const (
	DistributionAUTO        Distribution = "AUTO"
	DistributionGaussian    Distribution = "gaussian"
	DistributionBernoulli   Distribution = "bernoulli"
	DistributionMultinomial Distribution = "multinomial"
)

// Parameters configures a GBM build. JSON names match the exported
// parameter file.
type Parameters struct {
	ModelID             string       `json:"model_id"`
	TrainingFrame       cluster.Key  `json:"training_frame"`
	ResponseColumn      string       `json:"response_column"`
	IgnoredColumns      []string     `json:"ignored_columns"`
	NTrees              int          `json:"ntrees"`
	MaxDepth            int          `json:"max_depth"`
	LearnRate           float64      `json:"learn_rate"`
	MinRows             float64      `json:"min_rows"`
	MinSplitImprovement float64      `json:"min_split_improvement"`
	NBins               int          `json:"nbins"`
	Seed                int64        `json:"seed"`
	SampleRate          float64      `json:"sample_rate"`
	ColSampleRate       float64      `json:"col_sample_rate"`
	Distribution        Distribution `json:"distribution"`
	ScoreTreeInterval   int          `json:"score_tree_interval"`
	StoppingMetric      string       `json:"stopping_metric"`

	// Workers bounds the split-search fan-out; 0 uses every CPU.
	Workers int `json:"-"`
}

// DefaultParameters returns the trainer defaults. Seed -1 draws a random
// seed when training starts.
func DefaultParameters() Parameters {
	return Parameters{
		NTrees:              50,
		MaxDepth:            5,
		LearnRate:           0.1,
		MinRows:             10,
		MinSplitImprovement: 1e-5,
		NBins:               20,
		Seed:                -1,
		SampleRate:          1.0,
		ColSampleRate:       1.0,
		Distribution:        DistributionAUTO,
		ScoreTreeInterval:   1,
		StoppingMetric:      "AUTO",
	}
}

// ToJSON renders the parameters as indented JSON.
func (p Parameters) ToJSON() (string, error) {
	if p.IgnoredColumns == nil {
		p.IgnoredColumns = []string{}
	}
	buf, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal GBM parameters")
	}
	return string(buf), nil
}

// Validate checks the parameters on their own, without a frame.
func (p Parameters) Validate() error {
	switch {
	case p.ResponseColumn == "":
		return errors.NewValidationError("response_column", "must be set", p.ResponseColumn)
	case p.NTrees <= 0:
		return errors.NewValidationError("ntrees", "must be positive", p.NTrees)
	case p.MaxDepth <= 0:
		return errors.NewValidationError("max_depth", "must be positive", p.MaxDepth)
	case p.LearnRate <= 0 || p.LearnRate > 1:
		return errors.NewValidationError("learn_rate", "must be in (0, 1]", p.LearnRate)
	case p.MinRows < 0:
		return errors.NewValidationError("min_rows", "must not be negative", p.MinRows)
	case p.MinSplitImprovement < 0:
		return errors.NewValidationError("min_split_improvement", "must not be negative", p.MinSplitImprovement)
	case p.NBins < 2:
		return errors.NewValidationError("nbins", "must be at least 2", p.NBins)
	case p.SampleRate <= 0 || p.SampleRate > 1:
		return errors.NewValidationError("sample_rate", "must be in (0, 1]", p.SampleRate)
	case p.ColSampleRate <= 0 || p.ColSampleRate > 1:
		return errors.NewValidationError("col_sample_rate", "must be in (0, 1]", p.ColSampleRate)
	case p.ScoreTreeInterval < 0:
		return errors.NewValidationError("score_tree_interval", "must not be negative", p.ScoreTreeInterval)
	}

	switch p.Distribution {
	case "", DistributionAUTO, DistributionGaussian, DistributionBernoulli, DistributionMultinomial:
	default:
		return errors.NewValidationError("distribution", "unsupported distribution", p.Distribution)
	}

	for _, c := range p.IgnoredColumns {
		if c == p.ResponseColumn {
			return errors.NewValidationError("ignored_columns",
				fmt.Sprintf("response column %q is also ignored", c), p.IgnoredColumns)
		}
	}
	return nil
}

// Predictors returns the columns of f used for training: every column
// except the ignored ones and the response, in frame order.
func Predictors(f *frame.Frame, p Parameters) ([]string, error) {
	if f.Vec(p.ResponseColumn) == nil {
		return nil, errors.NewValidationError("response_column",
			"column not found in training frame", p.ResponseColumn)
	}

	ignored := make(map[string]struct{}, len(p.IgnoredColumns))
	for _, c := range p.IgnoredColumns {
		ignored[c] = struct{}{}
	}

	var out []string
	for _, name := range f.Names() {
		if name == p.ResponseColumn {
			continue
		}
		if _, skip := ignored[name]; skip {
			continue
		}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, errors.NewValidationError("ignored_columns", "no predictor columns left", p.IgnoredColumns)
	}
	return out, nil
}
