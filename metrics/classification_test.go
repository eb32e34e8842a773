package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/mannetroll/analysis/pkg/errors"
)

func vec(xs ...float64) *mat.VecDense {
	if len(xs) == 0 {
		return nil
	}
	return mat.NewVecDense(len(xs), xs)
}

func TestAUC(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yScore  []float64
		want    float64
		wantErr bool
	}{
		{name: "separated", yTrue: []float64{0, 0, 1, 1}, yScore: []float64{0.1, 0.2, 0.7, 0.9}, want: 1},
		{name: "inverted", yTrue: []float64{0, 0, 1, 1}, yScore: []float64{0.9, 0.7, 0.2, 0.1}, want: 0},
		{name: "one swapped pair", yTrue: []float64{0, 0, 1, 1}, yScore: []float64{0.1, 0.4, 0.35, 0.8}, want: 0.75},
		{name: "ties count half", yTrue: []float64{0, 1, 0, 1}, yScore: []float64{0.2, 0.5, 0.5, 0.9}, want: 0.875},
		{name: "all tied", yTrue: []float64{1, 0, 1, 0}, yScore: []float64{0.3, 0.3, 0.3, 0.3}, want: 0.5},
		{name: "labels not 0/1", yTrue: []float64{0, 2, 1}, yScore: []float64{0.1, 0.5, 0.9}, wantErr: true},
		{name: "length mismatch", yTrue: []float64{0, 1}, yScore: []float64{0.5}, wantErr: true},
		{name: "nil input", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(vec(tt.yTrue...), vec(tt.yScore...))
			if (err != nil) != tt.wantErr {
				t.Fatalf("AUC() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AUC() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAUCSingleClassWarns(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	t.Cleanup(func() { errors.SetWarningHandler(nil) })

	got, err := AUC(vec(1, 1, 1), vec(0.2, 0.6, 0.9))
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.5 {
		t.Errorf("AUC() = %v, want 0.5", got)
	}
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
	var w *errors.UndefinedMetricWarning
	if !errors.As(warnings[0], &w) || w.Metric != "auc" || w.Result != 0.5 {
		t.Errorf("warning = %v", warnings[0])
	}
}

func TestAUCMatrix(t *testing.T) {
	got, err := AUCMatrix(
		mat.NewDense(4, 2, []float64{0, 7, 0, 7, 1, 7, 1, 7}),
		mat.NewDense(4, 2, []float64{0.1, 0, 0.4, 0, 0.35, 0, 0.8, 0}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-0.75) > 1e-9 {
		t.Errorf("AUCMatrix() = %v, want 0.75 from the first column", got)
	}

	if _, err := AUCMatrix(nil, mat.NewDense(1, 1, []float64{0.5})); err == nil {
		t.Error("nil matrix should fail")
	}
	if _, err := AUCMatrix(&mat.Dense{}, &mat.Dense{}); err == nil {
		t.Error("empty matrix should fail")
	}
}

func TestBinaryLogLoss(t *testing.T) {
	got, err := BinaryLogLoss(vec(1, 0), vec(0.8, 0.4))
	if err != nil {
		t.Fatal(err)
	}
	want := -(math.Log(0.8) + math.Log(0.6)) / 2
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("BinaryLogLoss() = %v, want %v", got, want)
	}

	// a confident wrong answer is clipped rather than infinite
	got, err = BinaryLogLoss(vec(0), vec(1))
	if err != nil {
		t.Fatal(err)
	}
	if math.IsInf(got, 0) || got < 30 {
		t.Errorf("clipped loss = %v", got)
	}

	if _, err := BinaryLogLoss(vec(0.5), vec(0.5)); err == nil {
		t.Error("fractional label should fail")
	}
}

func TestMultinomialLogLoss(t *testing.T) {
	probs := mat.NewDense(2, 3, []float64{
		0.5, 0.25, 0.25,
		0.1, 0.1, 0.8,
	})
	got, err := MultinomialLogLoss(vec(0, 2), probs)
	if err != nil {
		t.Fatal(err)
	}
	want := -(math.Log(0.5) + math.Log(0.8)) / 2
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("MultinomialLogLoss() = %v, want %v", got, want)
	}

	if _, err := MultinomialLogLoss(vec(0, 3), probs); err == nil {
		t.Error("class index past K should fail")
	}
	if _, err := MultinomialLogLoss(vec(0), probs); !errors.As(err, new(*errors.DimensionError)) {
		t.Errorf("row mismatch error = %v, want DimensionError", err)
	}
}

func TestAccuracyAndClassificationError(t *testing.T) {
	yTrue := vec(0, 1, 2, 1)
	yPred := vec(0, 2, 2, 1)

	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		t.Fatal(err)
	}
	ce, err := ClassificationError(yTrue, yPred)
	if err != nil {
		t.Fatal(err)
	}
	if acc != 0.75 || ce != 0.25 {
		t.Errorf("accuracy = %v, error = %v", acc, ce)
	}
	if _, err := Accuracy(yTrue, vec(0)); err == nil {
		t.Error("length mismatch should fail")
	}
}

func TestMaxF1Threshold(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []float64
		yProb []float64
		want  float64
	}{
		{name: "picks lowest positive", yTrue: []float64{0, 0, 1, 1}, yProb: []float64{0.1, 0.4, 0.35, 0.8}, want: 0.35},
		{name: "separated", yTrue: []float64{0, 0, 1, 1}, yProb: []float64{0.1, 0.2, 0.6, 0.9}, want: 0.6},
		{name: "tied probabilities move together", yTrue: []float64{1, 0, 1}, yProb: []float64{0.7, 0.7, 0.2}, want: 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MaxF1Threshold(vec(tt.yTrue...), vec(tt.yProb...))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("MaxF1Threshold() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMeanPerClassError(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []float64
		probs *mat.Dense
		want  float64
	}{
		{
			name:  "binomial uses max F1 threshold",
			yTrue: []float64{0, 0, 1, 1},
			probs: mat.NewDense(4, 2, []float64{0.9, 0.1, 0.6, 0.4, 0.65, 0.35, 0.2, 0.8}),
			want:  0.25,
		},
		{
			name:  "multinomial uses argmax",
			yTrue: []float64{0, 1, 2, 2},
			probs: mat.NewDense(4, 3, []float64{
				0.8, 0.1, 0.1,
				0.1, 0.8, 0.1,
				0.2, 0.5, 0.3,
				0.1, 0.1, 0.8,
			}),
			want: 0.5 / 3,
		},
		{
			name:  "absent class is skipped",
			yTrue: []float64{0, 1},
			probs: mat.NewDense(2, 3, []float64{0.1, 0.8, 0.1, 0.1, 0.8, 0.1}),
			want:  0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MeanPerClassError(vec(tt.yTrue...), tt.probs)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("MeanPerClassError() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := MeanPerClassError(vec(0, 1), mat.NewDense(2, 1, []float64{1, 1})); err == nil {
		t.Error("single column should fail")
	}
}

func BenchmarkAUC(b *testing.B) {
	n := 10000
	yTrue := mat.NewVecDense(n, nil)
	yScore := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		yTrue.SetVec(i, float64(i%2))
		yScore.SetVec(i, float64(i%97)/97)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = AUC(yTrue, yScore)
	}
}
