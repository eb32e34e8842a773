package gbm

import (
	"math"
	"sort"

	"github.com/mannetroll/analysis/frame"
	"github.com/mannetroll/analysis/metrics"
	"github.com/mannetroll/analysis/pkg/errors"
)

// trainingData is the binned, row-filtered view of a frame the trainer
// works on. Rows with a missing response are dropped.
type trainingData struct {
	names       []string
	cols        [][]float64
	categorical []bool
	domains     [][]string
	bins        [][]int32 // -1 is the NA bin
	edges       [][]float64
	nbins       []int

	y              []float64
	responseDomain []string
	category       metrics.ModelCategory
	distribution   Distribution
}

func (d *trainingData) rows() int { return len(d.y) }

func prepare(f *frame.Frame, p Parameters) (*trainingData, error) {
	predictors, err := Predictors(f, p)
	if err != nil {
		return nil, err
	}
	resp := f.Vec(p.ResponseColumn)

	keep := make([]int, 0, resp.Len())
	for i := 0; i < resp.Len(); i++ {
		if !resp.IsNA(i) {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "response column %q has no values", p.ResponseColumn)
	}

	d := &trainingData{names: predictors}
	if err := d.setResponse(resp, keep, p.Distribution); err != nil {
		return nil, err
	}

	for _, name := range predictors {
		v := f.Vec(name)
		col := make([]float64, len(keep))
		for i, r := range keep {
			col[i] = v.At(r)
		}
		d.cols = append(d.cols, col)
		d.categorical = append(d.categorical, v.IsCategorical())
		d.domains = append(d.domains, v.Domain())
	}
	d.bin(p.NBins)
	return d, nil
}

// setResponse resolves the distribution and encodes y as values or class
// indices.
func (d *trainingData) setResponse(resp *frame.Vec, keep []int, want Distribution) error {
	d.y = make([]float64, len(keep))
	for i, r := range keep {
		d.y[i] = resp.At(r)
	}

	if resp.IsCategorical() {
		d.responseDomain = resp.Domain()
		levels := len(d.responseDomain)
		switch {
		case want == DistributionGaussian:
			return errors.NewValidationError("distribution", "gaussian needs a numeric response", want)
		case levels < 2:
			return errors.NewValidationError("response_column", "categorical response needs at least two levels", levels)
		case want == DistributionBernoulli && levels != 2:
			return errors.NewValidationError("distribution", "bernoulli needs a two-level response", levels)
		case levels == 2 && want != DistributionMultinomial:
			d.distribution, d.category = DistributionBernoulli, metrics.Binomial
		default:
			d.distribution, d.category = DistributionMultinomial, metrics.Multinomial
		}
		return nil
	}

	switch want {
	case DistributionMultinomial:
		return errors.NewValidationError("distribution", "multinomial needs a categorical response", want)
	case DistributionBernoulli:
		for _, v := range d.y {
			if v != 0 && v != 1 {
				return errors.NewValidationError("distribution", "bernoulli needs a 0/1 response", v)
			}
		}
		d.responseDomain = []string{"0", "1"}
		d.distribution, d.category = DistributionBernoulli, metrics.Binomial
	default:
		d.distribution, d.category = DistributionGaussian, metrics.Regression
	}
	return nil
}

// bin precomputes per-row bin indices. Numeric columns get up to nbins
// quantile bins split at edges (x <= edges[b] falls in bins 0..b);
// categorical columns use one bin per level.
func (d *trainingData) bin(nbins int) {
	d.bins = make([][]int32, len(d.cols))
	d.edges = make([][]float64, len(d.cols))
	d.nbins = make([]int, len(d.cols))

	for j, col := range d.cols {
		b := make([]int32, len(col))
		if d.categorical[j] {
			d.nbins[j] = len(d.domains[j])
			for i, x := range col {
				if math.IsNaN(x) {
					b[i] = -1
				} else {
					b[i] = int32(x)
				}
			}
			d.bins[j] = b
			continue
		}

		edges := quantileEdges(col, nbins)
		d.edges[j] = edges
		d.nbins[j] = len(edges) + 1
		for i, x := range col {
			if math.IsNaN(x) {
				b[i] = -1
			} else {
				b[i] = int32(sort.SearchFloat64s(edges, x))
			}
		}
		d.bins[j] = b
	}
}

func quantileEdges(col []float64, nbins int) []float64 {
	sorted := make([]float64, 0, len(col))
	for _, x := range col {
		if !math.IsNaN(x) {
			sorted = append(sorted, x)
		}
	}
	if len(sorted) < 2 {
		return nil
	}
	sort.Float64s(sorted)

	unique := sorted[:1:1]
	for _, x := range sorted[1:] {
		if x != unique[len(unique)-1] {
			unique = append(unique, x)
		}
	}

	var edges []float64
	if len(unique) <= nbins {
		for i := 0; i+1 < len(unique); i++ {
			edges = append(edges, (unique[i]+unique[i+1])/2)
		}
		return edges
	}

	maxVal := unique[len(unique)-1]
	for q := 1; q < nbins; q++ {
		e := sorted[q*len(sorted)/nbins]
		if e >= maxVal {
			break
		}
		if len(edges) == 0 || e > edges[len(edges)-1] {
			edges = append(edges, e)
		}
	}
	return edges
}
