package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/mannetroll/analysis/pkg/errors"
)

// logLossEpsilon は log(0) を避けるための確率のクリッピング幅
const logLossEpsilon = 1e-15

func checkBinaryLabels(op string, yTrue *mat.VecDense) (pos, neg int, err error) {
	for i := 0; i < yTrue.Len(); i++ {
		switch yTrue.AtVec(i) {
		case 1:
			pos++
		case 0:
			neg++
		default:
			return 0, 0, errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return pos, neg, nil
}

// AUC はROC曲線下面積を計算する
//
// 同順位のスコアには平均順位を与える（Mann-Whitney U統計量と等価）。
// yTrueが一つのクラスしか含まない場合はUndefinedMetricWarningを出して0.5を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	pos, neg, err := checkBinaryLabels("AUC", yTrue)
	if err != nil {
		return 0, err
	}
	if pos == 0 || neg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("auc", "only one class present in the response", 0.5))
		return 0.5, nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b]) })

	// 平均順位の合計（正例のみ）
	var rankSum float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(idx[j+1]) == yScore.AtVec(idx[i]) {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				rankSum += avgRank
			}
		}
		i = j + 1
	}

	p, q := float64(pos), float64(neg)
	return (rankSum - p*(p+1)/2) / (p * q), nil
}

// AUCMatrix は行列入力の先頭列に対してAUCを計算する
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	t, err := firstColumn("AUCMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	s, err := firstColumn("AUCMatrix", yScore)
	if err != nil {
		return 0, err
	}
	return AUC(t, s)
}

func firstColumn(op string, m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewValueError(op, "nil matrix")
	}
	if d, ok := m.(*mat.Dense); ok && d.IsEmpty() {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v, nil
}

// BinaryLogLoss は二値分類の対数損失を計算する。yProbは正例の確率。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if _, _, err := checkBinaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		p := clip(yProb.AtVec(i))
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// MultinomialLogLoss は多クラス分類の対数損失を計算する
//
// yTrueはクラス番号（0..K-1）、probsはn×Kのクラス確率行列。
func MultinomialLogLoss(yTrue *mat.VecDense, probs mat.Matrix) (float64, error) {
	if yTrue == nil || probs == nil {
		return 0, errors.NewValueError("MultinomialLogLoss", "nil input")
	}
	if yTrue.IsEmpty() {
		return 0, errors.NewValueError("MultinomialLogLoss", "empty vector")
	}
	n := yTrue.Len()
	r, k := probs.Dims()
	if r != n {
		return 0, errors.NewDimensionError("MultinomialLogLoss", n, r, 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		c := int(yTrue.AtVec(i))
		if c < 0 || c >= k {
			return 0, errors.NewValueError("MultinomialLogLoss", "class index out of range")
		}
		sum -= math.Log(clip(probs.At(i, c)))
	}
	return sum / float64(n), nil
}

func clip(p float64) float64 {
	return math.Max(logLossEpsilon, math.Min(1-logLossEpsilon, p))
}

// ClassificationError は誤分類率を計算する。yPredは予測クラス番号。
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := accuracy("ClassificationError", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	return accuracy("Accuracy", yTrue, yPred)
}

func accuracy(op string, yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair(op, yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// MaxF1Threshold はF1スコアを最大にする正例確率の閾値を返す。
// 候補は観測された確率値で、p >= 閾値 を正例と予測する。
func MaxF1Threshold(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("MaxF1Threshold", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	pos, _, err := checkBinaryLabels("MaxF1Threshold", yTrue)
	if err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	// 確率の降順に並べ、閾値を下げながらTP/FPを累積する
	sort.Slice(idx, func(a, b int) bool { return yProb.AtVec(idx[a]) > yProb.AtVec(idx[b]) })

	best, bestF1 := 0.5, -1.0
	tp, fp := 0, 0
	for i := 0; i < n; {
		th := yProb.AtVec(idx[i])
		for i < n && yProb.AtVec(idx[i]) == th {
			if yTrue.AtVec(idx[i]) == 1 {
				tp++
			} else {
				fp++
			}
			i++
		}
		fn := pos - tp
		f1 := 0.0
		if tp > 0 {
			f1 = 2 * float64(tp) / float64(2*tp+fp+fn)
		}
		if f1 > bestF1 {
			best, bestF1 = th, f1
		}
	}
	return best, nil
}

// MeanPerClassError はクラスごとの誤分類率の平均を計算する
//
// probsはn×Kのクラス確率行列。K=2の場合はMaxF1Thresholdの閾値で、
// それ以外は確率最大のクラスで予測クラスを決める。
func MeanPerClassError(yTrue *mat.VecDense, probs mat.Matrix) (float64, error) {
	if yTrue == nil || probs == nil {
		return 0, errors.NewValueError("MeanPerClassError", "nil input")
	}
	if yTrue.IsEmpty() {
		return 0, errors.NewValueError("MeanPerClassError", "empty vector")
	}
	n := yTrue.Len()
	r, k := probs.Dims()
	if r != n {
		return 0, errors.NewDimensionError("MeanPerClassError", n, r, 0)
	}
	if k < 2 {
		return 0, errors.NewValueError("MeanPerClassError", "need at least two classes")
	}

	predict := func(i int) int {
		best := 0
		for c := 1; c < k; c++ {
			if probs.At(i, c) > probs.At(i, best) {
				best = c
			}
		}
		return best
	}
	if k == 2 {
		p1 := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			p1.SetVec(i, probs.At(i, 1))
		}
		th, err := MaxF1Threshold(yTrue, p1)
		if err != nil {
			return 0, err
		}
		predict = func(i int) int {
			if p1.AtVec(i) >= th {
				return 1
			}
			return 0
		}
	}

	total := make([]int, k)
	wrong := make([]int, k)
	for i := 0; i < n; i++ {
		c := int(yTrue.AtVec(i))
		if c < 0 || c >= k {
			return 0, errors.NewValueError("MeanPerClassError", "class index out of range")
		}
		total[c]++
		if predict(i) != c {
			wrong[c]++
		}
	}

	var sum float64
	classes := 0
	for c := 0; c < k; c++ {
		if total[c] == 0 {
			continue
		}
		sum += float64(wrong[c]) / float64(total[c])
		classes++
	}
	return sum / float64(classes), nil
}
