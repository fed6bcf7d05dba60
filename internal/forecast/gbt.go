package forecast

import (
	"encoding/json"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	defaultEstimators     = 100
	defaultMaxDepth       = 6
	defaultLearningRate   = 0.3
	defaultMinChildWeight = 1.0
	defaultLambda         = 1.0

	// minSplitGain is the smallest loss reduction worth a split.
	minSplitGain = 1e-6
)

// TreeNode is one node of a regression tree. Left < 0 marks a leaf.
type TreeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a regression tree stored as a flat node list rooted at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

func (t Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// BoostedTreesModel is squared-error gradient boosting over depth-limited
// trees grown with exact greedy splits and L2-regularized leaf weights.
// Fitting is deterministic for a fixed Seed.
type BoostedTreesModel struct {
	NEstimators    int     `json:"n_estimators"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	MinChildWeight float64 `json:"min_child_weight"`
	Subsample      float64 `json:"subsample"`
	Lambda         float64 `json:"lambda"`
	Seed           int64   `json:"seed"`
	BaseScore      float64 `json:"base_score"`
	Width          int     `json:"n_features"`
	Trees          []Tree  `json:"trees"`
}

func newBoostedTrees(s ModelSpec) *BoostedTreesModel {
	m := &BoostedTreesModel{
		NEstimators:    s.NEstimators,
		MaxDepth:       s.MaxDepth,
		LearningRate:   paramOr(s.LearningRate, defaultLearningRate),
		MinChildWeight: paramOr(s.MinChildWeight, defaultMinChildWeight),
		Subsample:      paramOr(s.Subsample, 1),
		Lambda:         defaultLambda,
		Seed:           s.Seed,
	}
	if m.NEstimators == 0 {
		m.NEstimators = defaultEstimators
	}
	if m.MaxDepth == 0 {
		m.MaxDepth = defaultMaxDepth
	}
	return m
}

func (m *BoostedTreesModel) Kind() ModelKind { return KindGradientBoostedTrees }

func (m *BoostedTreesModel) Fit(X [][]float64, y []float64) error {
	cols, err := checkFitInput(X, y)
	if err != nil {
		return err
	}
	n := len(X)
	m.Width = cols
	m.BaseScore = stat.Mean(y, nil)
	m.Trees = make([]Tree, 0, m.NEstimators)

	b := &treeBuilder{
		X:        X,
		order:    presort(X, cols),
		lambda:   m.Lambda,
		minChild: m.MinChildWeight,
		maxDepth: m.MaxDepth,
		lr:       m.LearningRate,
	}
	rng := rand.New(rand.NewSource(m.Seed))

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = m.BaseScore
	}
	grad := make([]float64, n)
	inSample := make([]bool, n)
	for round := 0; round < m.NEstimators; round++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
			inSample[i] = m.Subsample >= 1 || rng.Float64() < m.Subsample
		}
		tree := b.build(grad, inSample)
		for i, row := range X {
			pred[i] += tree.predict(row)
		}
		m.Trees = append(m.Trees, tree)
	}
	return nil
}

func (m *BoostedTreesModel) Predict(X [][]float64) ([]float64, error) {
	if m.Trees == nil {
		return nil, ErrNotFitted
	}
	if err := checkPredictInput(X, m.Width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		v := m.BaseScore
		for _, t := range m.Trees {
			v += t.predict(row)
		}
		out[i] = v
	}
	return out, nil
}

func (m *BoostedTreesModel) MarshalJSON() ([]byte, error) {
	type plain BoostedTreesModel
	return json.Marshal(envelope{Kind: KindGradientBoostedTrees, Model: (*plain)(m)})
}

// presort returns, per feature, the row indices ordered by that feature.
func presort(X [][]float64, cols int) [][]int {
	order := make([][]int, cols)
	for j := range order {
		idx := make([]int, len(X))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return X[idx[a]][j] < X[idx[b]][j] })
		order[j] = idx
	}
	return order
}

type treeBuilder struct {
	X        [][]float64
	order    [][]int
	lambda   float64
	minChild float64
	maxDepth int
	lr       float64
}

type candidateSplit struct {
	feature   int
	threshold float64
	gain      float64
	gl, hl    float64
}

type splitScan struct {
	g, h float64
	n    int
	last float64
}

// build grows one tree level by level. With squared error every hessian is
// 1, so a node's hessian sum is its row count.
func (b *treeBuilder) build(grad []float64, inSample []bool) Tree {
	pos := make([]int, len(grad))
	var g0, h0 float64
	for i := range pos {
		if !inSample[i] {
			pos[i] = -1
			continue
		}
		g0 += grad[i]
		h0++
	}
	tree := Tree{Nodes: []TreeNode{{Left: -1}}}
	nodeG := []float64{g0}
	nodeH := []float64{h0}

	active := []int{0}
	for depth := 0; depth < b.maxDepth && len(active) > 0; depth++ {
		best := b.findSplits(active, pos, grad, nodeG, nodeH)
		var next []int
		for _, id := range active {
			sp, ok := best[id]
			if !ok {
				continue
			}
			l := len(tree.Nodes)
			tree.Nodes = append(tree.Nodes, TreeNode{Left: -1}, TreeNode{Left: -1})
			tree.Nodes[id] = TreeNode{Feature: sp.feature, Threshold: sp.threshold, Left: l, Right: l + 1}
			nodeG = append(nodeG, sp.gl, nodeG[id]-sp.gl)
			nodeH = append(nodeH, sp.hl, nodeH[id]-sp.hl)
			next = append(next, l, l+1)
		}
		for i, p := range pos {
			if p < 0 || tree.Nodes[p].Left < 0 {
				continue
			}
			nd := tree.Nodes[p]
			if b.X[i][nd.Feature] < nd.Threshold {
				pos[i] = nd.Left
			} else {
				pos[i] = nd.Right
			}
		}
		active = next
	}

	for id := range tree.Nodes {
		if tree.Nodes[id].Left < 0 {
			tree.Nodes[id].Value = -nodeG[id] / (nodeH[id] + b.lambda) * b.lr
		}
	}
	return tree
}

func (b *treeBuilder) findSplits(active, pos []int, grad, nodeG, nodeH []float64) map[int]candidateSplit {
	slot := make(map[int]int, len(active))
	for k, id := range active {
		slot[id] = k
	}
	scans := make([]splitScan, len(active))
	best := make(map[int]candidateSplit)

	for j, order := range b.order {
		for k := range scans {
			scans[k] = splitScan{}
		}
		for _, i := range order {
			p := pos[i]
			if p < 0 {
				continue
			}
			k, ok := slot[p]
			if !ok {
				continue
			}
			v := b.X[i][j]
			s := &scans[k]
			if s.n > 0 && v > s.last {
				gl, hl := s.g, s.h
				gr, hr := nodeG[p]-gl, nodeH[p]-hl
				if hl >= b.minChild && hr >= b.minChild {
					gain := gl*gl/(hl+b.lambda) + gr*gr/(hr+b.lambda) - nodeG[p]*nodeG[p]/(nodeH[p]+b.lambda)
					if cur, seen := best[p]; gain > minSplitGain && (!seen || gain > cur.gain) {
						t := (s.last + v) / 2
						if t <= s.last {
							t = v
						}
						best[p] = candidateSplit{feature: j, threshold: t, gain: gain, gl: gl, hl: hl}
					}
				}
			}
			s.g += grad[i]
			s.h++
			s.n++
			s.last = v
		}
	}
	return best
}
