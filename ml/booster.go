package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// TrainConfig holds the boosting hyperparameters.
type TrainConfig struct {
	Boosting        string  `yaml:"boosting"`
	Objective       string  `yaml:"objective"`
	Metric          string  `yaml:"metric"`
	Threads         int     `yaml:"threads"`
	LearningRate    float64 `yaml:"learning_rate"`
	NumLeaves       int     `yaml:"num_leaves"`
	FeatureFraction float64 `yaml:"feature_fraction"`
	LambdaL2        float64 `yaml:"lambda_l2"`
	MaxRounds       int     `yaml:"max_rounds"`
	// EvalFrequency is the round interval between validation checks.
	EvalFrequency int `yaml:"eval_frequency"`
	// Patience is the number of rounds without validation improvement
	// before training halts. 0 disables early stopping.
	Patience    int   `yaml:"patience"`
	MaxBin      int   `yaml:"max_bin"`
	MinLeafRows int   `yaml:"min_leaf_rows"`
	Seed        int64 `yaml:"seed"`
}

// ApplyDefaults fills unset fields with working values.
func (c *TrainConfig) ApplyDefaults() {
	if c.Boosting == "" {
		c.Boosting = "gbdt"
	}
	if c.Objective == "" {
		c.Objective = "regression"
	}
	if c.Metric == "" {
		c.Metric = "rmse"
	}
	if c.Threads == 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.05
	}
	if c.NumLeaves == 0 {
		c.NumLeaves = 31
	}
	if c.FeatureFraction == 0 {
		c.FeatureFraction = 0.9
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = 500
	}
	if c.EvalFrequency == 0 {
		c.EvalFrequency = 25
	}
	if c.MaxBin == 0 {
		c.MaxBin = 255
	}
	if c.MinLeafRows == 0 {
		c.MinLeafRows = 20
	}
}

// Validate fails on configuration errors.
func (c *TrainConfig) Validate() error {
	if c.Boosting != "gbdt" {
		return fmt.Errorf("train: unsupported boosting %q (want gbdt)", c.Boosting)
	}
	if c.Objective != "regression" {
		return fmt.Errorf("train: unsupported objective %q (want regression)", c.Objective)
	}
	if c.Metric != "rmse" {
		return fmt.Errorf("train: unsupported metric %q (want rmse)", c.Metric)
	}
	if c.Threads < 0 {
		return fmt.Errorf("train: threads must not be negative, got %d", c.Threads)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("train: learning rate must be positive, got %v", c.LearningRate)
	}
	if c.NumLeaves < 2 {
		return fmt.Errorf("train: num_leaves must be at least 2, got %d", c.NumLeaves)
	}
	if c.FeatureFraction <= 0 || c.FeatureFraction > 1 {
		return fmt.Errorf("train: feature_fraction %v outside (0,1]", c.FeatureFraction)
	}
	if c.LambdaL2 < 0 {
		return fmt.Errorf("train: lambda_l2 must not be negative, got %v", c.LambdaL2)
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("train: max_rounds must be at least 1, got %d", c.MaxRounds)
	}
	if c.EvalFrequency < 1 {
		return fmt.Errorf("train: eval_frequency must be at least 1, got %d", c.EvalFrequency)
	}
	if c.Patience < 0 {
		return fmt.Errorf("train: patience must not be negative, got %d", c.Patience)
	}
	if c.MaxBin < 4 || c.MaxBin > 255 {
		return fmt.Errorf("train: max_bin %d outside [4,255]", c.MaxBin)
	}
	if c.MinLeafRows < 1 {
		return fmt.Errorf("train: min_leaf_rows must be at least 1, got %d", c.MinLeafRows)
	}
	return nil
}

// Evaluation is one validation checkpoint during training.
type Evaluation struct {
	Round     int
	TrainRMSE float64
	ValRMSE   float64
}

// ImportanceEntry is one feature's share of total split gain.
type ImportanceEntry struct {
	Feature string  `json:"feature"`
	Gain    float64 `json:"gain"`
}

// Booster is a gradient-boosted regression tree model. Trees are fit
// against squared-error residuals on histogram-binned features, grown
// leaf-wise to the configured leaf count. A validation set drives
// early stopping; the fitted model keeps only the trees up to the
// best validation round.
type Booster struct {
	cfg        TrainConfig
	base       float64
	trees      []regTree
	treeGain   [][]float64
	importance []float64
	names      []string
	history    []Evaluation
	bestRound  int

	// Progress, when set, receives every evaluation during Fit.
	Progress func(Evaluation)

	// training buffers, dropped by ReleaseTrainingBuffers
	binned [][]uint8
	nBins  []int
	edges  [][]float64
}

// NewBooster creates an untrained model from validated config.
func NewBooster(cfg TrainConfig) *Booster {
	return &Booster{cfg: cfg}
}

// maxBinSample caps the number of values used to estimate histogram
// bin edges on very large columns. Sampling is strided, so edge
// estimation stays deterministic.
const maxBinSample = 1 << 17

// Fit trains the model. valX and valY may be nil to train without
// early stopping. categorical names are validated against the feature
// columns; their codes are split as ordered integers, with the
// unknown code -1 grouping on the missing side.
func (b *Booster) Fit(X *mat.Dense, y []float64, valX *mat.Dense, valY []float64, featureNames, categorical []string) error {
	if X == nil {
		return errors.New("train: nil feature matrix")
	}
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return fmt.Errorf("train: empty feature matrix %dx%d", n, d)
	}
	if n >= math.MaxInt32 {
		return fmt.Errorf("train: %d rows exceeds supported size", n)
	}
	if len(y) != n {
		return fmt.Errorf("train: %d rows but %d targets", n, len(y))
	}
	if len(featureNames) != d {
		return fmt.Errorf("train: %d columns but %d feature names", d, len(featureNames))
	}
	for _, name := range categorical {
		found := false
		for _, have := range featureNames {
			if have == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("train: categorical column %s not in feature matrix", name)
		}
	}
	for i, v := range y {
		if math.IsNaN(v) {
			return fmt.Errorf("train: target contains NaN at row %d", i)
		}
	}
	hasVal := valX != nil && valY != nil
	var nv int
	if hasVal {
		var dv int
		nv, dv = valX.Dims()
		if dv != d {
			return fmt.Errorf("train: validation has %d columns, want %d", dv, d)
		}
		if len(valY) != nv {
			return fmt.Errorf("train: validation has %d rows but %d targets", nv, len(valY))
		}
		if nv == 0 {
			hasVal = false
		}
	}

	b.names = append([]string(nil), featureNames...)
	b.fitBins(X)
	b.applyBins(X)

	b.base = mean(y)
	pred := make([]float64, n)
	grads := make([]float64, n)
	for i := range pred {
		pred[i] = b.base
		grads[i] = y[i] - b.base
	}

	var valPred, valRow []float64
	if hasVal {
		valPred = make([]float64, nv)
		for i := range valPred {
			valPred[i] = b.base
		}
		valRow = make([]float64, d)
	}

	rng := rand.New(rand.NewSource(b.cfg.Seed))
	b.trees = nil
	b.treeGain = nil
	b.history = nil
	b.bestRound = 0
	bestVal := math.Inf(1)

	for round := 1; round <= b.cfg.MaxRounds; round++ {
		feats := b.featureSubset(rng, d)
		gains := make([]float64, d)
		tree := b.growTree(grads, pred, y, feats, gains)
		b.trees = append(b.trees, tree)
		b.treeGain = append(b.treeGain, gains)

		if hasVal {
			for i := 0; i < nv; i++ {
				mat.Row(valRow, i, valX)
				valPred[i] += tree.predictRow(valRow)
			}
		}

		stalled := len(tree.Nodes) == 1 && tree.Nodes[0].Value == 0
		evalNow := round%b.cfg.EvalFrequency == 0 || round == b.cfg.MaxRounds || stalled

		if !hasVal {
			b.bestRound = round
			if evalNow {
				b.report(Evaluation{Round: round, TrainRMSE: rmseOf(grads), ValRMSE: math.NaN()})
			}
			if stalled {
				break
			}
			continue
		}

		if evalNow {
			valRMSE, err := RMSE(valY, valPred)
			if err != nil {
				return fmt.Errorf("train: validation metric: %w", err)
			}
			b.report(Evaluation{Round: round, TrainRMSE: rmseOf(grads), ValRMSE: valRMSE})
			if valRMSE < bestVal-1e-9 {
				bestVal = valRMSE
				b.bestRound = round
			} else if b.cfg.Patience > 0 && round-b.bestRound >= b.cfg.Patience {
				break
			}
		}
		if stalled {
			break
		}
	}

	if b.bestRound == 0 {
		b.bestRound = len(b.trees)
	}
	b.trees = b.trees[:b.bestRound]
	b.treeGain = b.treeGain[:b.bestRound]
	b.finalizeImportance()
	return nil
}

func (b *Booster) report(ev Evaluation) {
	b.history = append(b.history, ev)
	if b.Progress != nil {
		b.Progress(ev)
	}
}

// fitBins estimates per-feature bin edges. Low-cardinality features
// get one bin per distinct value; the rest use empirical quantiles.
// Bin 0 is reserved for missing values.
func (b *Booster) fitBins(X *mat.Dense) {
	n, d := X.Dims()
	rm := X.RawMatrix()
	quota := b.cfg.MaxBin - 2
	step := 1
	if n > maxBinSample {
		step = n / maxBinSample
	}
	b.edges = make([][]float64, d)
	b.nBins = make([]int, d)
	sample := make([]float64, 0, maxBinSample+1)
	for j := 0; j < d; j++ {
		sample = sample[:0]
		for i := 0; i < n; i += step {
			v := rm.Data[i*rm.Stride+j]
			if !math.IsNaN(v) {
				sample = append(sample, v)
			}
		}
		sort.Float64s(sample)
		uniq := make([]float64, 0, len(sample))
		for i, v := range sample {
			if i == 0 || v != uniq[len(uniq)-1] {
				uniq = append(uniq, v)
			}
		}
		var edges []float64
		if len(uniq) <= quota {
			edges = uniq
		} else {
			edges = make([]float64, 0, quota)
			for k := 1; k <= quota; k++ {
				q := stat.Quantile(float64(k)/float64(quota+1), stat.Empirical, sample, nil)
				if len(edges) == 0 || q > edges[len(edges)-1] {
					edges = append(edges, q)
				}
			}
		}
		b.edges[j] = edges
		b.nBins[j] = len(edges) + 2
	}
}

func (b *Booster) applyBins(X *mat.Dense) {
	n, d := X.Dims()
	rm := X.RawMatrix()
	b.binned = make([][]uint8, d)
	for j := 0; j < d; j++ {
		col := make([]uint8, n)
		edges := b.edges[j]
		for i := 0; i < n; i++ {
			v := rm.Data[i*rm.Stride+j]
			if math.IsNaN(v) {
				continue
			}
			col[i] = uint8(1 + sort.SearchFloat64s(edges, v))
		}
		b.binned[j] = col
	}
}

func (b *Booster) featureSubset(rng *rand.Rand, d int) []int {
	k := int(math.Ceil(b.cfg.FeatureFraction * float64(d)))
	if k >= d {
		all := make([]int, d)
		for j := range all {
			all[j] = j
		}
		return all
	}
	feats := rng.Perm(d)[:k]
	sort.Ints(feats)
	return feats
}

// leafCand is a growable leaf with its cached best split.
type leafCand struct {
	node int
	rows []int32
	sumG float64
	gain float64
	feat int
	bin  int
}

type featSplit struct {
	gain float64
	bin  int
}

// growTree fits one tree against the current residuals, applies its
// shrunk leaf values to pred and refreshes grads. Split gains are
// accumulated into gains by feature index.
func (b *Booster) growTree(grads, pred, y []float64, feats []int, gains []float64) regTree {
	n := len(grads)
	rows := make([]int32, n)
	sum := 0.0
	for i := range rows {
		rows[i] = int32(i)
		sum += grads[i]
	}

	nodes := []treeNode{{Leaf: true}}
	cands := []leafCand{{node: 0, rows: rows, sumG: sum}}
	b.bestSplit(&cands[0], feats, grads)

	for len(cands) < b.cfg.NumLeaves {
		best := -1
		for i := range cands {
			if cands[i].gain > 0 && (best < 0 || cands[i].gain > cands[best].gain) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		c := cands[best]

		col := b.binned[c.feat]
		splitBin := uint8(c.bin)
		left := make([]int32, 0, len(c.rows)/2)
		right := make([]int32, 0, len(c.rows)/2)
		var sumL float64
		for _, i := range c.rows {
			if col[i] <= splitBin {
				left = append(left, i)
				sumL += grads[i]
			} else {
				right = append(right, i)
			}
		}

		thr := negInfThreshold
		if c.bin >= 1 {
			thr = b.edges[c.feat][c.bin-1]
		}
		leftIdx := len(nodes)
		nodes = append(nodes, treeNode{Leaf: true}, treeNode{Leaf: true})
		nodes[c.node] = treeNode{Feature: c.feat, Threshold: thr, Left: leftIdx, Right: leftIdx + 1}
		gains[c.feat] += c.gain

		lc := leafCand{node: leftIdx, rows: left, sumG: sumL}
		rc := leafCand{node: leftIdx + 1, rows: right, sumG: c.sumG - sumL}
		b.bestSplit(&lc, feats, grads)
		b.bestSplit(&rc, feats, grads)
		cands[best] = lc
		cands = append(cands, rc)
	}

	lr := b.cfg.LearningRate
	lam := b.cfg.LambdaL2
	for _, c := range cands {
		v := lr * c.sumG / (float64(len(c.rows)) + lam)
		nodes[c.node].Value = v
		for _, i := range c.rows {
			pred[i] += v
			grads[i] = y[i] - pred[i]
		}
	}
	return regTree{Nodes: nodes}
}

// bestSplit finds the highest-gain histogram split for one leaf. The
// per-feature search runs on the configured worker count.
func (b *Booster) bestSplit(c *leafCand, feats []int, grads []float64) {
	c.gain, c.feat, c.bin = 0, -1, 0
	n := len(c.rows)
	minRows := b.cfg.MinLeafRows
	if n < 2*minRows {
		return
	}
	lam := b.cfg.LambdaL2
	parent := c.sumG * c.sumG / (float64(n) + lam)

	results := make([]featSplit, len(feats))
	b.parallelFeatures(len(feats), func(slot int) {
		j := feats[slot]
		col := b.binned[j]
		nb := b.nBins[j]
		var sums [256]float64
		var cnts [256]int32
		for _, i := range c.rows {
			bn := col[i]
			sums[bn] += grads[i]
			cnts[bn]++
		}
		bestGain := 0.0
		bestBin := -1
		var sl float64
		var nl int32
		for bin := 0; bin < nb-1; bin++ {
			sl += sums[bin]
			nl += cnts[bin]
			nr := int32(n) - nl
			if int(nl) < minRows || int(nr) < minRows {
				continue
			}
			sr := c.sumG - sl
			gain := sl*sl/(float64(nl)+lam) + sr*sr/(float64(nr)+lam) - parent
			if gain > bestGain {
				bestGain = gain
				bestBin = bin
			}
		}
		results[slot] = featSplit{gain: bestGain, bin: bestBin}
	})

	for slot, r := range results {
		if r.bin >= 0 && r.gain > c.gain {
			c.gain, c.feat, c.bin = r.gain, feats[slot], r.bin
		}
	}
}

func (b *Booster) parallelFeatures(n int, fn func(slot int)) {
	workers := b.cfg.Threads
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	var wg sync.WaitGroup
	ch := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for slot := range ch {
				fn(slot)
			}
		}()
	}
	for i := 0; i < n; i++ {
		ch <- i
	}
	close(ch)
	wg.Wait()
}

// PredictRow returns the raw model output for one feature row, on the
// training target scale.
func (b *Booster) PredictRow(row []float64) float64 {
	v := b.base
	for ti := range b.trees {
		v += b.trees[ti].predictRow(row)
	}
	return v
}

// Predict returns raw model outputs for every row of X.
func (b *Booster) Predict(X mat.Matrix) []float64 {
	n, d := X.Dims()
	out := make([]float64, n)
	row := make([]float64, d)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		out[i] = b.PredictRow(row)
	}
	return out
}

func (b *Booster) finalizeImportance() {
	imp := make([]float64, len(b.names))
	for _, gains := range b.treeGain {
		for j, g := range gains {
			imp[j] += g
		}
	}
	b.importance = imp
}

// FeatureImportance returns the normalized gain share per feature,
// highest first. Scores sum to 1 when any split happened.
func (b *Booster) FeatureImportance() []ImportanceEntry {
	total := 0.0
	for _, v := range b.importance {
		total += v
	}
	entries := make([]ImportanceEntry, len(b.names))
	for j, name := range b.names {
		g := 0.0
		if total > 0 {
			g = b.importance[j] / total
		}
		entries[j] = ImportanceEntry{Feature: name, Gain: g}
	}
	sort.SliceStable(entries, func(i, k int) bool { return entries[i].Gain > entries[k].Gain })
	return entries
}

// History returns the recorded evaluations.
func (b *Booster) History() []Evaluation { return b.history }

// BestRound returns the round the model was truncated to.
func (b *Booster) BestRound() int { return b.bestRound }

// NumTrees returns the kept tree count.
func (b *Booster) NumTrees() int { return len(b.trees) }

// MaxDepth returns the deepest tree's depth, for logging.
func (b *Booster) MaxDepth() int {
	max := 0
	for ti := range b.trees {
		if d := b.trees[ti].depth(); d > max {
			max = d
		}
	}
	return max
}

// FeatureNames returns the training column names.
func (b *Booster) FeatureNames() []string { return b.names }

// ReleaseTrainingBuffers drops the binned feature matrices and
// per-tree gain buffers once training is done, freeing memory for
// prediction over the large test set.
func (b *Booster) ReleaseTrainingBuffers() {
	b.binned = nil
	b.nBins = nil
	b.edges = nil
	b.treeGain = nil
}

type boosterArtifact struct {
	BaseScore    float64   `json:"base_score"`
	BestRound    int       `json:"best_round"`
	FeatureNames []string  `json:"feature_names"`
	Importance   []float64 `json:"importance"`
	Trees        []regTree `json:"trees"`
}

// Save writes the trained model as JSON.
func (b *Booster) Save(path string) error {
	payload, err := json.Marshal(boosterArtifact{
		BaseScore:    b.base,
		BestRound:    b.bestRound,
		FeatureNames: b.names,
		Importance:   b.importance,
		Trees:        b.trees,
	})
	if err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

// LoadBooster restores a saved model for prediction.
func LoadBooster(path string) (*Booster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	var art boosterArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Booster{
		base:       art.BaseScore,
		bestRound:  art.BestRound,
		names:      art.FeatureNames,
		importance: art.Importance,
		trees:      art.Trees,
	}, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

func rmseOf(residuals []float64) float64 {
	if len(residuals) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range residuals {
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(residuals)))
}
