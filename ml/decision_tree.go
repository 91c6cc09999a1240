package ml

import (
	"errors"
	"fmt"
)

// TreeNode is a split "x[Feature] < Threshold ?". Children are indexes into
// the tree's Nodes, or into Outputs when the matching IsLeaf flag is set.
type TreeNode struct {
	Feature     int     `json:"feature"`
	Threshold   float64 `json:"threshold"`
	Left        int     `json:"left"`
	LeftIsLeaf  bool    `json:"left_is_leaf"`
	Right       int     `json:"right"`
	RightIsLeaf bool    `json:"right_is_leaf"`
}

// RegressionTree stores nodes flat with the root at index 0. A tree without
// nodes is a single leaf, Outputs[0].
type RegressionTree struct {
	Nodes   []TreeNode `json:"nodes"`
	Outputs []float64  `json:"outputs"`
}

// Leaf returns the index of the output bin that x falls into.
func (rt *RegressionTree) Leaf(x []float64) int {
	if len(rt.Nodes) == 0 {
		return 0
	}
	idx := 0
	for {
		node := rt.Nodes[idx]
		if x[node.Feature] < node.Threshold {
			if node.LeftIsLeaf {
				return node.Left
			}
			idx = node.Left
		} else {
			if node.RightIsLeaf {
				return node.Right
			}
			idx = node.Right
		}
	}
}

func (rt *RegressionTree) Evaluate(x []float64) float64 {
	return rt.Outputs[rt.Leaf(x)]
}

// validate checks index bounds and that every child node comes after its
// parent, which guarantees traversal terminates.
func (rt *RegressionTree) validate(featureCount int) error {
	if len(rt.Outputs) == 0 {
		return errors.New("tree has no outputs")
	}
	if len(rt.Nodes) == 0 {
		if len(rt.Outputs) != 1 {
			return fmt.Errorf("leaf-only tree has %d outputs", len(rt.Outputs))
		}
		return nil
	}
	check := func(parent, child int, isLeaf bool) error {
		if isLeaf {
			if child < 0 || child >= len(rt.Outputs) {
				return fmt.Errorf("node %d: leaf index %d out of range", parent, child)
			}
			return nil
		}
		if child <= parent || child >= len(rt.Nodes) {
			return fmt.Errorf("node %d: child index %d invalid", parent, child)
		}
		return nil
	}
	for i, node := range rt.Nodes {
		if node.Feature < 0 || node.Feature >= featureCount {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.Feature)
		}
		if err := check(i, node.Left, node.LeftIsLeaf); err != nil {
			return err
		}
		if err := check(i, node.Right, node.RightIsLeaf); err != nil {
			return err
		}
	}
	return nil
}

// TreeEnsemble scores a feature vector as BaseScore plus the sum of its trees.
type TreeEnsemble struct {
	BaseScore    float64          `json:"base_score"`
	FeatureCount int              `json:"feature_count"`
	Trees        []RegressionTree `json:"trees"`
}

func (e *TreeEnsemble) Evaluate(x []float64) float64 {
	sum := e.BaseScore
	for i := range e.Trees {
		sum += e.Trees[i].Evaluate(x)
	}
	return sum
}

func (e *TreeEnsemble) Validate() error {
	if e.FeatureCount <= 0 {
		return errors.New("ensemble has no features")
	}
	for i := range e.Trees {
		if err := e.Trees[i].validate(e.FeatureCount); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// LeafCount is the total number of leaves across all trees.
func (e *TreeEnsemble) LeafCount() int {
	n := 0
	for i := range e.Trees {
		n += len(e.Trees[i].Outputs)
	}
	return n
}
