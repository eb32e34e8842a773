package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mannetroll/analysis/pkg/errors"
)

// checkPair は評価指標の入力ベクトルを検証し、要素数を返す
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "nil vector")
	}
	if yTrue.IsEmpty() || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.IsEmpty() || yPred.Len() != n {
		got := 0
		if !yPred.IsEmpty() {
			got = yPred.Len()
		}
		return 0, errors.NewDimensionError(op, n, got, 0)
	}
	return n, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}

	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MAE = (1/n) * Σ|yTrue - yPred|
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}

	return sum / float64(n), nil
}

// R2Score は決定係数（R²）を計算する
//
// 応答の分散が0の場合は定義できないため、UndefinedMetricWarningを出して0を返す。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var yMean float64
	for i := 0; i < n; i++ {
		yMean += yTrue.AtVec(i)
	}
	yMean /= float64(n)

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := 0; i < n; i++ {
		yt := yTrue.AtVec(i)
		yp := yPred.AtVec(i)
		tss += (yt - yMean) * (yt - yMean)
		rss += (yt - yp) * (yt - yp)
	}

	if tss == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("r2", "no variance in the response", 0))
		return 0, nil
	}

	// R² = 1 - RSS/TSS
	return 1 - rss/tss, nil
}

// MeanResidualDeviance はガウス分布の平均残差逸脱度を計算する。
// ガウス分布では逸脱度は二乗誤差に一致するため、MSEと同じ値になる。
func MeanResidualDeviance(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MeanResidualDeviance", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var dev float64
	for i := 0; i < n; i++ {
		r := yTrue.AtVec(i) - yPred.AtVec(i)
		dev += r * r
	}
	return dev / float64(n), nil
}
