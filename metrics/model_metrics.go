package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mannetroll/analysis/pkg/errors"
)

// ModelCategory は学習済みモデルの種類
type ModelCategory string

const (
	Regression  ModelCategory = "Regression"
	Binomial    ModelCategory = "Binomial"
	Multinomial ModelCategory = "Multinomial"
)

// ModelMetrics は一つのフレームに対するモデルの評価結果をまとめたもの。
// 該当しない指標はNaNになる。
type ModelMetrics struct {
	Category             ModelCategory
	NObs                 int
	MSE                  float64
	RMSE                 float64
	MAE                  float64
	R2                   float64
	MeanResidualDeviance float64
	AUC                  float64
	LogLoss              float64
	MeanPerClassError    float64
	Threshold            float64
}

func emptyMetrics(c ModelCategory, n int) *ModelMetrics {
	nan := math.NaN()
	return &ModelMetrics{
		Category: c, NObs: n,
		MSE: nan, RMSE: nan, MAE: nan, R2: nan, MeanResidualDeviance: nan,
		AUC: nan, LogLoss: nan, MeanPerClassError: nan, Threshold: nan,
	}
}

// Loss はカテゴリに応じた損失を返す。分類はlogloss、回帰は平均残差逸脱度。
func (m *ModelMetrics) Loss() float64 {
	if m.Category == Regression {
		return m.MeanResidualDeviance
	}
	return m.LogLoss
}

// ComputeRegression は回帰モデルの評価指標を計算する
func ComputeRegression(yTrue, yPred []float64) (*ModelMetrics, error) {
	if len(yTrue) == 0 {
		return nil, errors.ErrEmptyData
	}
	if len(yTrue) != len(yPred) {
		return nil, errors.NewDimensionError("ComputeRegression", len(yTrue), len(yPred), 0)
	}
	t := mat.NewVecDense(len(yTrue), yTrue)
	p := mat.NewVecDense(len(yPred), yPred)

	m := emptyMetrics(Regression, len(yTrue))
	var err error
	if m.MSE, err = MSE(t, p); err != nil {
		return nil, err
	}
	m.RMSE = math.Sqrt(m.MSE)
	if m.MAE, err = MAE(t, p); err != nil {
		return nil, err
	}
	if m.R2, err = R2Score(t, p); err != nil {
		return nil, err
	}
	if m.MeanResidualDeviance, err = MeanResidualDeviance(t, p); err != nil {
		return nil, err
	}
	return m, nil
}

// ComputeClassification は分類モデルの評価指標を計算する
//
// yTrueはクラス番号、probsはn×Kのクラス確率行列。K=2ならBinomial、
// それ以上ならMultinomialとして扱う。MSEは正解クラスの確率に対する
// 二乗誤差 (1-p)² の平均。
func ComputeClassification(yTrue []float64, probs *mat.Dense) (*ModelMetrics, error) {
	n := len(yTrue)
	if n == 0 {
		return nil, errors.ErrEmptyData
	}
	r, k := probs.Dims()
	if r != n {
		return nil, errors.NewDimensionError("ComputeClassification", n, r, 0)
	}

	category := Multinomial
	if k == 2 {
		category = Binomial
	}
	m := emptyMetrics(category, n)
	t := mat.NewVecDense(n, yTrue)

	var sse, sum, sumSq float64
	for i := 0; i < n; i++ {
		c := int(yTrue[i])
		if c < 0 || c >= k {
			return nil, errors.NewValueError("ComputeClassification", "class index out of range")
		}
		e := 1 - probs.At(i, c)
		sse += e * e
		sum += yTrue[i]
		sumSq += yTrue[i] * yTrue[i]
	}
	m.MSE = sse / float64(n)
	m.RMSE = math.Sqrt(m.MSE)
	mean := sum / float64(n)
	if variance := sumSq/float64(n) - mean*mean; variance > 0 {
		m.R2 = 1 - m.MSE/variance
	} else {
		m.R2 = 0
	}

	var err error
	if m.LogLoss, err = MultinomialLogLoss(t, probs); err != nil {
		return nil, err
	}
	if m.MeanPerClassError, err = MeanPerClassError(t, probs); err != nil {
		return nil, err
	}

	if category == Binomial {
		p1 := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			p1.SetVec(i, probs.At(i, 1))
		}
		if m.AUC, err = AUC(t, p1); err != nil {
			return nil, err
		}
		if m.Threshold, err = MaxF1Threshold(t, p1); err != nil {
			return nil, err
		}
	}
	return m, nil
}
