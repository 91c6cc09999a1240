package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"taxifare/data"
)

const KindBoostedTreeRegression = "BoostedTreeRegression"

const minSplitGain = 1e-12

type BoostedTreeOptions struct {
	NumberOfTrees              int
	NumberOfLeaves             int
	MinimumExampleCountPerLeaf int
	LearningRate               float64
	MaximumBinCountPerFeature  int
	// RowFraction and FeatureFraction below 1 sample rows and features per
	// tree using Seed.
	RowFraction     float64
	FeatureFraction float64
	Seed            int64
	// Parallelism bounds the split-search goroutines; 0 means GOMAXPROCS.
	Parallelism int
}

func DefaultBoostedTreeOptions() BoostedTreeOptions {
	return BoostedTreeOptions{
		NumberOfTrees:              100,
		NumberOfLeaves:             20,
		MinimumExampleCountPerLeaf: 10,
		LearningRate:               0.2,
		MaximumBinCountPerFeature:  255,
		RowFraction:                1,
		FeatureFraction:            1,
	}
}

func (o BoostedTreeOptions) validate() error {
	switch {
	case o.NumberOfTrees <= 0:
		return errors.New("number of trees must be positive")
	case o.NumberOfLeaves < 2:
		return errors.New("number of leaves must be at least 2")
	case o.MinimumExampleCountPerLeaf <= 0:
		return errors.New("minimum example count per leaf must be positive")
	case o.LearningRate <= 0:
		return errors.New("learning rate must be positive")
	case o.MaximumBinCountPerFeature < 2 || o.MaximumBinCountPerFeature > 256:
		return errors.New("maximum bin count must be within [2, 256]")
	case o.RowFraction <= 0 || o.RowFraction > 1:
		return errors.New("row fraction must be within (0, 1]")
	case o.FeatureFraction <= 0 || o.FeatureFraction > 1:
		return errors.New("feature fraction must be within (0, 1]")
	}
	return nil
}

// BoostedTreeRegressor fits a gradient-boosted ensemble of regression trees
// with squared loss. Trees grow leaf-wise on binned features.
type BoostedTreeRegressor struct {
	LabelColumn   string
	FeatureColumn string
	ScoreColumn   string
	Options       BoostedTreeOptions
	Logger        *zap.Logger
}

func NewBoostedTreeRegressor(label, features string, opts BoostedTreeOptions) *BoostedTreeRegressor {
	return &BoostedTreeRegressor{
		LabelColumn:   label,
		FeatureColumn: features,
		ScoreColumn:   "Score",
		Options:       opts,
		Logger:        zap.NewNop(),
	}
}

func (r *BoostedTreeRegressor) Fit(ctx context.Context, t *data.Table) (Transformer, error) {
	opts := r.Options
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	labelCol, err := t.TypedColumn(r.LabelColumn, data.Float32)
	if err != nil {
		return nil, err
	}
	featureCol, err := t.TypedColumn(r.FeatureColumn, data.Vector)
	if err != nil {
		return nil, err
	}
	n, featureCount := featureCol.Vectors.Dims()
	if n == 0 || featureCount == 0 {
		return nil, errors.New("no training rows or features")
	}
	if n < 2*opts.MinimumExampleCountPerLeaf {
		logger.Warn("training set too small to split", zap.Int("rows", n))
	}

	start := time.Now()
	labels := make([]float64, n)
	for i, v := range labelCol.Floats {
		labels[i] = float64(v)
	}
	if !allFinite(labels) {
		return nil, fmt.Errorf("label column %q contains NaN or infinite values", r.LabelColumn)
	}
	columns := make([][]float64, featureCount)
	bounds := make([][]float64, featureCount)
	bins := make([][]uint8, featureCount)
	for f := 0; f < featureCount; f++ {
		columns[f] = mat.Col(nil, f, featureCol.Vectors)
		if !allFinite(columns[f]) {
			return nil, fmt.Errorf("feature column %q slot %d contains NaN or infinite values", r.FeatureColumn, f)
		}
		bounds[f], bins[f] = binFeature(columns[f], opts.MaximumBinCountPerFeature)
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	grower := &treeGrower{
		opts:        opts,
		bounds:      bounds,
		bins:        bins,
		parallelism: parallelism,
	}

	ensemble := TreeEnsemble{
		BaseScore:    stat.Mean(labels, nil),
		FeatureCount: featureCount,
		Trees:        make([]RegressionTree, 0, opts.NumberOfTrees),
	}
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = ensemble.BaseScore
	}
	residual := make([]float64, n)
	rng := rand.New(rand.NewSource(opts.Seed))
	row := make([]float64, featureCount)

	for iter := 0; iter < opts.NumberOfTrees; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range residual {
			residual[i] = labels[i] - pred[i]
		}
		grower.residual = residual
		grower.features = sampleIndexes(rng, featureCount, opts.FeatureFraction)

		tree, err := grower.grow(ctx, sampleRows(rng, n, opts.RowFraction))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", iter, err)
		}
		for i := 0; i < n; i++ {
			for f := range row {
				row[f] = columns[f][i]
			}
			pred[i] += tree.Evaluate(row)
		}
		ensemble.Trees = append(ensemble.Trees, tree)

		if (iter+1)%25 == 0 {
			logger.Debug("boosting progress",
				zap.Int("trees", iter+1),
				zap.Float64("train_rmse", rootMeanSquare(labels, pred)))
		}
	}

	logger.Info("boosted trees fitted",
		zap.Int("rows", n),
		zap.Int("features", featureCount),
		zap.Int("trees", len(ensemble.Trees)),
		zap.Int("leaves", ensemble.LeafCount()),
		zap.Duration("elapsed", time.Since(start)))

	return &BoostedTreePredictor{
		FeatureColumn: r.FeatureColumn,
		ScoreColumn:   r.ScoreColumn,
		Ensemble:      ensemble,
	}, nil
}

// BoostedTreePredictor writes the ensemble score of each feature vector to
// a Float32 score column.
type BoostedTreePredictor struct {
	FeatureColumn string       `json:"feature_column"`
	ScoreColumn   string       `json:"score_column"`
	Ensemble      TreeEnsemble `json:"ensemble"`
}

func (p *BoostedTreePredictor) Kind() string { return KindBoostedTreeRegression }

func (p *BoostedTreePredictor) Transform(t *data.Table) (*data.Table, error) {
	col, err := t.TypedColumn(p.FeatureColumn, data.Vector)
	if err != nil {
		return nil, err
	}
	if w := col.Width(); w != p.Ensemble.FeatureCount {
		return nil, fmt.Errorf("feature vector has %d slots, model expects %d", w, p.Ensemble.FeatureCount)
	}
	rows := t.Rows()
	scores := make([]float32, rows)
	row := make([]float64, p.Ensemble.FeatureCount)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, col.Vectors)
		scores[i] = float32(p.Ensemble.Evaluate(row))
	}
	return t.With(data.NewFloat32Column(p.ScoreColumn, scores))
}

type histBin struct {
	sum   float64
	count int
}

type splitInfo struct {
	feature int
	bin     int
	gain    float64
	ok      bool
}

type growingLeaf struct {
	rows   []int32
	sum    float64
	hist   [][]histBin
	split  splitInfo
	parent int
	isLeft bool
}

type treeGrower struct {
	opts        BoostedTreeOptions
	bounds      [][]float64
	bins        [][]uint8
	residual    []float64
	features    []int
	parallelism int
}

func (g *treeGrower) grow(ctx context.Context, rows []int32) (RegressionTree, error) {
	root := &growingLeaf{rows: rows, parent: -1, hist: make([][]histBin, len(g.bounds))}
	for _, r := range rows {
		root.sum += g.residual[r]
	}
	if err := g.scanLeaves(ctx, root, nil, nil); err != nil {
		return RegressionTree{}, err
	}

	var nodes []TreeNode
	leaves := []*growingLeaf{root}
	for len(leaves) < g.opts.NumberOfLeaves {
		best := -1
		for i, leaf := range leaves {
			if leaf.split.ok && (best < 0 || leaf.split.gain > leaves[best].split.gain) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		leaf := leaves[best]
		f, b := leaf.split.feature, leaf.split.bin

		nodeIdx := len(nodes)
		nodes = append(nodes, TreeNode{Feature: f, Threshold: g.bounds[f][b]})
		if leaf.parent >= 0 {
			if leaf.isLeft {
				nodes[leaf.parent].Left = nodeIdx
			} else {
				nodes[leaf.parent].Right = nodeIdx
			}
		}

		left := &growingLeaf{parent: nodeIdx, isLeft: true, hist: make([][]histBin, len(g.bounds))}
		right := &growingLeaf{parent: nodeIdx, hist: make([][]histBin, len(g.bounds))}
		for _, r := range leaf.rows {
			if int(g.bins[f][r]) <= b {
				left.rows = append(left.rows, r)
				left.sum += g.residual[r]
			} else {
				right.rows = append(right.rows, r)
				right.sum += g.residual[r]
			}
		}

		small, large := left, right
		if len(right.rows) < len(left.rows) {
			small, large = right, left
		}
		if err := g.scanLeaves(ctx, small, large, leaf); err != nil {
			return RegressionTree{}, err
		}
		leaf.hist = nil

		leaves[best] = left
		leaves = append(leaves, right)
	}

	outputs := make([]float64, len(leaves))
	for i, leaf := range leaves {
		if len(leaf.rows) > 0 {
			outputs[i] = g.opts.LearningRate * leaf.sum / float64(len(leaf.rows))
		}
		if leaf.parent < 0 {
			continue
		}
		if leaf.isLeft {
			nodes[leaf.parent].Left = i
			nodes[leaf.parent].LeftIsLeaf = true
		} else {
			nodes[leaf.parent].Right = i
			nodes[leaf.parent].RightIsLeaf = true
		}
	}
	return RegressionTree{Nodes: nodes, Outputs: outputs}, nil
}

// scanLeaves fills histograms and finds the best split for small and, when
// given, large. The large histogram is derived as parent minus small.
func (g *treeGrower) scanLeaves(ctx context.Context, small, large, parent *growingLeaf) error {
	smallBest := make([]splitInfo, len(g.bounds))
	largeBest := make([]splitInfo, len(g.bounds))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelism)
	for _, f := range g.features {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			small.hist[f] = g.histogram(f, small.rows)
			smallBest[f] = g.bestSplit(f, small.hist[f], small.sum, len(small.rows))
			if large != nil {
				large.hist[f] = subtractHistogram(parent.hist[f], small.hist[f])
				largeBest[f] = g.bestSplit(f, large.hist[f], large.sum, len(large.rows))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	small.split = pickSplit(smallBest)
	if large != nil {
		large.split = pickSplit(largeBest)
	}
	return nil
}

func (g *treeGrower) histogram(f int, rows []int32) []histBin {
	hist := make([]histBin, len(g.bounds[f])+1)
	bins := g.bins[f]
	for _, r := range rows {
		h := &hist[bins[r]]
		h.sum += g.residual[r]
		h.count++
	}
	return hist
}

// bestSplit scans bin boundaries; splitting at bin b sends bins <= b left.
func (g *treeGrower) bestSplit(f int, hist []histBin, sum float64, count int) splitInfo {
	best := splitInfo{feature: f}
	minLeaf := g.opts.MinimumExampleCountPerLeaf
	if count < 2*minLeaf || len(hist) < 2 {
		return best
	}
	parentScore := sum * sum / float64(count)
	leftSum, leftCount := 0.0, 0
	for b := 0; b < len(hist)-1; b++ {
		leftSum += hist[b].sum
		leftCount += hist[b].count
		if leftCount < minLeaf || hist[b].count == 0 {
			continue
		}
		rightCount := count - leftCount
		if rightCount < minLeaf {
			break
		}
		rightSum := sum - leftSum
		gain := leftSum*leftSum/float64(leftCount) + rightSum*rightSum/float64(rightCount) - parentScore
		if gain > minSplitGain && gain > best.gain {
			best = splitInfo{feature: f, bin: b, gain: gain, ok: true}
		}
	}
	return best
}

func pickSplit(candidates []splitInfo) splitInfo {
	var best splitInfo
	for _, c := range candidates {
		if c.ok && (!best.ok || c.gain > best.gain) {
			best = c
		}
	}
	return best
}

func subtractHistogram(parent, child []histBin) []histBin {
	out := make([]histBin, len(parent))
	for i := range parent {
		out[i] = histBin{sum: parent[i].sum - child[i].sum, count: parent[i].count - child[i].count}
	}
	return out
}

// binFeature buckets values into at most maxBins bins. Boundaries are
// midpoints between adjacent distinct values, chosen so bins hold roughly
// equal row counts. A value x lands in the bin equal to the number of
// boundaries <= x, so bin <= b is equivalent to x < bounds[b].
func binFeature(values []float64, maxBins int) ([]float64, []uint8) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var distinct []float64
	var counts []int
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
			counts = append(counts, 0)
		}
		counts[len(counts)-1]++
	}

	var bounds []float64
	if len(distinct) <= maxBins {
		for i := 0; i+1 < len(distinct); i++ {
			bounds = append(bounds, (distinct[i]+distinct[i+1])/2)
		}
	} else {
		target := float64(len(values)) / float64(maxBins)
		next := target
		cum := 0
		for i := 0; i+1 < len(distinct) && len(bounds) < maxBins-1; i++ {
			cum += counts[i]
			if float64(cum) >= next {
				bounds = append(bounds, (distinct[i]+distinct[i+1])/2)
				for next <= float64(cum) {
					next += target
				}
			}
		}
	}

	bins := make([]uint8, len(values))
	for i, v := range values {
		bins[i] = uint8(sort.Search(len(bounds), func(j int) bool { return bounds[j] > v }))
	}
	return bounds, bins
}

func sampleRows(rng *rand.Rand, n int, fraction float64) []int32 {
	idx := sampleIndexes(rng, n, fraction)
	rows := make([]int32, len(idx))
	for i, v := range idx {
		rows[i] = int32(v)
	}
	return rows
}

// sampleIndexes returns a sorted subset of [0, n). The random source is only
// consumed when fraction < 1.
func sampleIndexes(rng *rand.Rand, n int, fraction float64) []int {
	if fraction >= 1 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	k := int(float64(n) * fraction)
	if k < 1 {
		k = 1
	}
	idx := rng.Perm(n)[:k]
	sort.Ints(idx)
	return idx
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
