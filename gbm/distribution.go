package gbm

import (
	"math"
)

// maxLink bounds logit-scale leaf values and scores to keep exp() finite.
const maxLink = 19.0

// distribution supplies the initial score, gradients and hessians for one
// loss. k is the number of trees grown per iteration.
type distribution interface {
	name() Distribution
	k() int
	// initScores returns one initial link value per tree class.
	initScores(y []float64) []float64
	// gradients fills g and h for class c given link values f (n x k).
	gradients(y []float64, f [][]float64, c int, g, h []float64)
	// leafScale multiplies every Newton step.
	leafScale() float64
	// clamp bounds a link value. The identity for gaussian, whose link is
	// the prediction itself.
	clamp(x float64) float64
	// link converts link values into predictions (value or probabilities).
	predict(f []float64) []float64
}

type gaussian struct{}

func (gaussian) name() Distribution      { return DistributionGaussian }
func (gaussian) k() int                  { return 1 }
func (gaussian) leafScale() float64      { return 1 }
func (gaussian) clamp(x float64) float64 { return x }

func (gaussian) initScores(y []float64) []float64 {
	var sum float64
	for _, v := range y {
		sum += v
	}
	return []float64{sum / float64(len(y))}
}

func (gaussian) gradients(y []float64, f [][]float64, _ int, g, h []float64) {
	for i := range y {
		g[i] = f[i][0] - y[i]
		h[i] = 1
	}
}

func (gaussian) predict(f []float64) []float64 {
	return []float64{f[0]}
}

type bernoulli struct{}

func (bernoulli) name() Distribution      { return DistributionBernoulli }
func (bernoulli) k() int                  { return 1 }
func (bernoulli) leafScale() float64      { return 1 }
func (bernoulli) clamp(x float64) float64 { return clampLink(x) }

func (bernoulli) initScores(y []float64) []float64 {
	var pos float64
	for _, v := range y {
		pos += v
	}
	p := clampProb(pos / float64(len(y)))
	return []float64{math.Log(p / (1 - p))}
}

func (bernoulli) gradients(y []float64, f [][]float64, _ int, g, h []float64) {
	for i := range y {
		p := sigmoid(f[i][0])
		g[i] = p - y[i]
		h[i] = p * (1 - p)
	}
}

// predict returns [P(class 0), P(class 1)].
func (bernoulli) predict(f []float64) []float64 {
	p := sigmoid(f[0])
	return []float64{1 - p, p}
}

type multinomial struct {
	classes int
}

func (m multinomial) name() Distribution      { return DistributionMultinomial }
func (m multinomial) k() int                  { return m.classes }
func (m multinomial) clamp(x float64) float64 { return clampLink(x) }

func (m multinomial) leafScale() float64 {
	return float64(m.classes-1) / float64(m.classes)
}

// initScores uses log class priors.
func (m multinomial) initScores(y []float64) []float64 {
	counts := make([]float64, m.classes)
	for _, v := range y {
		counts[int(v)]++
	}
	out := make([]float64, m.classes)
	for c := range out {
		out[c] = math.Log(clampProb(counts[c] / float64(len(y))))
	}
	return out
}

func (m multinomial) gradients(y []float64, f [][]float64, c int, g, h []float64) {
	for i := range y {
		p := softmax(f[i])[c]
		target := 0.0
		if int(y[i]) == c {
			target = 1
		}
		g[i] = p - target
		h[i] = p * (1 - p)
	}
}

func (m multinomial) predict(f []float64) []float64 {
	return softmax(f)
}

func newDistribution(d Distribution, classes int) distribution {
	switch d {
	case DistributionBernoulli:
		return bernoulli{}
	case DistributionMultinomial:
		return multinomial{classes: classes}
	default:
		return gaussian{}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-clampLink(x)))
}

func softmax(f []float64) []float64 {
	maxF := math.Inf(-1)
	for _, v := range f {
		if v > maxF {
			maxF = v
		}
	}
	out := make([]float64, len(f))
	var sum float64
	for i, v := range f {
		out[i] = math.Exp(v - maxF)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func clampProb(p float64) float64 {
	return math.Max(1e-10, math.Min(1-1e-10, p))
}

func clampLink(x float64) float64 {
	return math.Max(-maxLink, math.Min(maxLink, x))
}
