package gbm

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/mannetroll/analysis/core/parallel"
	"github.com/mannetroll/analysis/metrics"
	"github.com/mannetroll/analysis/pkg/errors"
	"github.com/mannetroll/analysis/pkg/log"
)

// trainer grows the boosted ensemble on a prepared trainingData.
type trainer struct {
	params Parameters
	data   *trainingData
	dist   distribution
	rng    *rand.Rand
	logger log.Logger

	f      [][]float64 // link values, rows x k
	g, h   []float64
	varimp []float64

	start    time.Time
	progress func(float64)
}

// splitCandidate is the best split found on one column.
type splitCandidate struct {
	ok          bool
	feature     int
	nodeType    NodeType
	threshold   float64
	leftLevels  []int
	naLeft      bool
	improvement float64
}

type binStats struct {
	n      float64
	sz     float64 // sum of negative gradients
	level  int
	sortBy float64
}

func newTrainer(p Parameters, d *trainingData, seed int64, logger log.Logger) *trainer {
	classes := len(d.responseDomain)
	dist := newDistribution(d.distribution, classes)

	init := dist.initScores(d.y)
	f := make([][]float64, d.rows())
	for i := range f {
		f[i] = append([]float64(nil), init...)
	}

	return &trainer{
		params: p,
		data:   d,
		dist:   dist,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
		f:      f,
		g:      make([]float64, d.rows()),
		h:      make([]float64, d.rows()),
		varimp: make([]float64, len(d.cols)),
	}
}

// train runs the boosting loop and fills out.
func (t *trainer) train(ctx context.Context, out *Output) error {
	t.start = time.Now()
	out.InitF = t.dist.initScores(t.data.y)

	if err := t.score(out, 0); err != nil {
		return err
	}

	k := t.dist.k()
	for iter := 0; iter < t.params.NTrees; iter++ {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}

		rows := t.sampleRows()
		trees := make([]Tree, k)
		for c := 0; c < k; c++ {
			t.dist.gradients(t.data.y, t.f, c, t.g, t.h)
			trees[c] = t.buildTree(c, rows)
		}
		// every class tree of an iteration sees the same link values
		for c := range trees {
			for i := range t.f {
				t.f[i][c] = t.dist.clamp(t.f[i][c] + t.scoreRow(&trees[c], i))
			}
		}
		out.Trees = append(out.Trees, trees)

		done := iter + 1
		interval := t.params.ScoreTreeInterval
		if (interval > 0 && done%interval == 0) || done == t.params.NTrees {
			if err := t.score(out, done); err != nil {
				return err
			}
		}
		if t.progress != nil {
			t.progress(float64(done) / float64(t.params.NTrees))
		}
	}

	out.VariableImportances = t.variableImportances()
	return nil
}

func (t *trainer) sampleRows() []int {
	n := t.data.rows()
	rows := make([]int, 0, n)
	if t.params.SampleRate >= 1 {
		for i := 0; i < n; i++ {
			rows = append(rows, i)
		}
		return rows
	}
	for i := 0; i < n; i++ {
		if t.rng.Float64() < t.params.SampleRate {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, t.rng.Intn(n))
	}
	return rows
}

func (t *trainer) buildTree(class int, rows []int) Tree {
	tree := Tree{Class: class}
	t.grow(&tree, rows, 0)
	return tree
}

func (t *trainer) grow(tree *Tree, rows []int, depth int) int {
	id := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, Node{ID: id, Left: -1, Right: -1, Count: len(rows)})

	if depth >= t.params.MaxDepth || float64(len(rows)) < 2*t.params.MinRows || len(rows) < 2 {
		tree.Nodes[id].Value = t.leafValue(rows)
		return id
	}

	best := t.bestSplit(rows)
	if !best.ok {
		tree.Nodes[id].Value = t.leafValue(rows)
		return id
	}

	left, right := t.partition(rows, best)
	tree.Nodes[id] = Node{
		ID:          id,
		Type:        best.nodeType,
		Feature:     best.feature,
		Threshold:   best.threshold,
		LeftLevels:  best.leftLevels,
		NALeft:      best.naLeft,
		Count:       len(rows),
		Improvement: best.improvement,
	}
	t.varimp[best.feature] += best.improvement

	l := t.grow(tree, left, depth+1)
	r := t.grow(tree, right, depth+1)
	tree.Nodes[id].Left = l
	tree.Nodes[id].Right = r
	return id
}

// leafValue is the shrunk Newton step -Σg/Σh over rows.
func (t *trainer) leafValue(rows []int) float64 {
	var sg, sh float64
	for _, i := range rows {
		sg += t.g[i]
		sh += t.h[i]
	}
	if sh < 1e-10 {
		sh = 1e-10
	}
	step := t.dist.clamp(-sg / sh * t.dist.leafScale())
	return t.params.LearnRate * step
}

// bestSplit searches the (sampled) columns in parallel and keeps the split
// with the largest squared-error reduction of the negative gradient. The
// split is rejected unless that reduction relative to the node's error
// exceeds min_split_improvement.
func (t *trainer) bestSplit(rows []int) splitCandidate {
	var sz, sz2 float64
	for _, i := range rows {
		z := -t.g[i]
		sz += z
		sz2 += z * z
	}
	n := float64(len(rows))
	nodeSE := sz2 - sz*sz/n
	if nodeSE <= 0 {
		return splitCandidate{}
	}

	cols := t.sampleColumns()
	candidates := parallel.Map(len(cols), t.params.Workers, func(i int) splitCandidate {
		if t.data.categorical[cols[i]] {
			return t.categoricalSplit(rows, cols[i], sz, n)
		}
		return t.numericSplit(rows, cols[i], sz, n)
	})

	var best splitCandidate
	for _, c := range candidates {
		if c.ok && (!best.ok || c.improvement > best.improvement) {
			best = c
		}
	}
	if !best.ok || best.improvement <= 0 || best.improvement/nodeSE <= t.params.MinSplitImprovement {
		return splitCandidate{}
	}
	return best
}

func (t *trainer) sampleColumns() []int {
	p := len(t.data.cols)
	all := make([]int, p)
	for j := range all {
		all[j] = j
	}
	if t.params.ColSampleRate >= 1 {
		return all
	}
	m := int(math.Ceil(t.params.ColSampleRate * float64(p)))
	if m < 1 {
		m = 1
	}
	t.rng.Shuffle(p, func(a, b int) { all[a], all[b] = all[b], all[a] })
	picked := all[:m]
	sort.Ints(picked)
	return picked
}

// gainOf returns the squared-error reduction of splitting a node with sum
// sz over n rows into a left part (szL, nL) and the rest.
func gainOf(szL, nL, sz, n float64) float64 {
	szR, nR := sz-szL, n-nL
	return szL*szL/nL + szR*szR/nR - sz*sz/n
}

// evaluate tries both NA directions for a left part and returns the better
// one that respects min_rows.
func (t *trainer) evaluate(szL, nL, szNA, nNA, sz, n float64) (gain float64, naLeft, ok bool) {
	minRows := math.Max(t.params.MinRows, 1)
	gain = math.Inf(-1)
	for _, withNA := range []bool{false, true} {
		l, nl := szL, nL
		if withNA {
			if nNA == 0 {
				continue
			}
			l, nl = szL+szNA, nL+nNA
		}
		if nl < minRows || n-nl < minRows {
			continue
		}
		if g := gainOf(l, nl, sz, n); g > gain {
			gain, naLeft, ok = g, withNA, true
		}
	}
	if ok && nNA == 0 {
		// no missing values seen here; send them to the larger child
		naLeft = nL >= n-nL
	}
	return gain, naLeft, ok
}

func (t *trainer) numericSplit(rows []int, j int, sz, n float64) splitCandidate {
	nb := t.data.nbins[j]
	if nb < 2 {
		return splitCandidate{}
	}
	hist := make([]binStats, nb)
	var na binStats
	bins := t.data.bins[j]
	for _, i := range rows {
		b := bins[i]
		if b < 0 {
			na.n++
			na.sz -= t.g[i]
			continue
		}
		hist[b].n++
		hist[b].sz -= t.g[i]
	}

	best := splitCandidate{feature: j, nodeType: NumericNode}
	var szL, nL float64
	for b := 0; b < nb-1; b++ {
		szL += hist[b].sz
		nL += hist[b].n
		if hist[b].n == 0 {
			continue
		}
		gain, naLeft, ok := t.evaluate(szL, nL, na.sz, na.n, sz, n)
		if ok && (!best.ok || gain > best.improvement) {
			best.ok = true
			best.improvement = gain
			best.threshold = t.data.edges[j][b]
			best.naLeft = naLeft
		}
	}
	return best
}

func (t *trainer) categoricalSplit(rows []int, j int, sz, n float64) splitCandidate {
	nb := t.data.nbins[j]
	if nb < 2 {
		return splitCandidate{}
	}
	hist := make([]binStats, nb)
	var na binStats
	bins := t.data.bins[j]
	for _, i := range rows {
		b := bins[i]
		if b < 0 || int(b) >= nb {
			na.n++
			na.sz -= t.g[i]
			continue
		}
		hist[b].n++
		hist[b].sz -= t.g[i]
	}

	// order the levels present in the node by mean negative gradient
	var present []binStats
	for level, s := range hist {
		if s.n > 0 {
			s.level = level
			s.sortBy = s.sz / s.n
			present = append(present, s)
		}
	}
	if len(present) < 2 {
		return splitCandidate{}
	}
	sort.SliceStable(present, func(a, b int) bool { return present[a].sortBy < present[b].sortBy })

	best := splitCandidate{feature: j, nodeType: CategoricalNode}
	bestAt := -1
	var szL, nL float64
	for m := 0; m < len(present)-1; m++ {
		szL += present[m].sz
		nL += present[m].n
		gain, naLeft, ok := t.evaluate(szL, nL, na.sz, na.n, sz, n)
		if ok && (!best.ok || gain > best.improvement) {
			best.ok = true
			best.improvement = gain
			best.naLeft = naLeft
			bestAt = m
		}
	}
	if best.ok {
		for _, s := range present[:bestAt+1] {
			best.leftLevels = append(best.leftLevels, s.level)
		}
		sort.Ints(best.leftLevels)
	}
	return best
}

func (t *trainer) partition(rows []int, s splitCandidate) (left, right []int) {
	node := Node{
		Type:       s.nodeType,
		Threshold:  s.threshold,
		LeftLevels: s.leftLevels,
		NALeft:     s.naLeft,
	}
	col := t.data.cols[s.feature]
	for _, i := range rows {
		if node.goesLeft(col[i]) {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

// scoreRow walks tree for training row i.
func (t *trainer) scoreRow(tree *Tree, i int) float64 {
	id := 0
	for {
		n := &tree.Nodes[id]
		if n.IsLeaf() {
			return n.Value
		}
		if n.goesLeft(t.data.cols[n.Feature][i]) {
			id = n.Left
		} else {
			id = n.Right
		}
	}
}

// score appends a scoring history entry for the current ensemble and keeps
// the metrics as the model's training metrics.
func (t *trainer) score(out *Output, ntrees int) error {
	mm, err := t.trainingMetrics()
	if err != nil {
		return err
	}
	out.TrainingMetrics = mm

	entry := ScoringEntry{
		Timestamp:                   time.Now().Format(time.RFC3339),
		Duration:                    time.Since(t.start).Round(time.Millisecond).String(),
		NumberOfTrees:               ntrees,
		TrainingRMSE:                mm.RMSE,
		TrainingMAE:                 mm.MAE,
		TrainingDeviance:            mm.MeanResidualDeviance,
		TrainingLogLoss:             mm.LogLoss,
		TrainingAUC:                 mm.AUC,
		TrainingClassificationError: mm.MeanPerClassError,
	}
	out.ScoringHistory = append(out.ScoringHistory, entry)

	t.logger.Debug("Scored ensemble",
		log.IterationKey, ntrees,
		log.LossKey, mm.Loss(),
	)
	return nil
}

func (t *trainer) trainingMetrics() (*metrics.ModelMetrics, error) {
	n := t.data.rows()
	if t.data.category == metrics.Regression {
		preds := make([]float64, n)
		for i := range preds {
			preds[i] = t.dist.predict(t.f[i])[0]
		}
		return metrics.ComputeRegression(t.data.y, preds)
	}

	classes := len(t.data.responseDomain)
	probs := mat.NewDense(n, classes, nil)
	for i := 0; i < n; i++ {
		probs.SetRow(i, t.dist.predict(t.f[i]))
	}
	return metrics.ComputeClassification(t.data.y, probs)
}

func (t *trainer) variableImportances() []VariableImportance {
	var maxImp, total float64
	for _, v := range t.varimp {
		total += v
		if v > maxImp {
			maxImp = v
		}
	}
	out := make([]VariableImportance, len(t.varimp))
	for j, v := range t.varimp {
		vi := VariableImportance{Variable: t.data.names[j], RelativeImportance: v}
		if maxImp > 0 {
			vi.ScaledImportance = v / maxImp
		}
		if total > 0 {
			vi.Percentage = v / total
		}
		out[j] = vi
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].RelativeImportance > out[b].RelativeImportance })
	return out
}
