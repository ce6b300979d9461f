package acf

import (
	"github.com/pkg/errors"
)

// Classifier is a pretrained ensemble of binary decision trees stored as
// parallel arrays indexed by tree*TreeNodes+node. A Child value of 0 marks a
// leaf; otherwise the left child of node k lives at Child[k]-1 and the right
// child at Child[k] within the same tree. Hs holds the half log-odds output
// of every node (only leaf entries are read during evaluation).
type Classifier struct {
	Fids    []uint32  `json:"fids"`
	Thrs    []float32 `json:"thrs"`
	Child   []uint32  `json:"child"`
	Hs      []float32 `json:"hs"`
	Weights []float32 `json:"weights,omitempty"`
	Depth   []uint32  `json:"depth,omitempty"`
	Errs    []float64 `json:"errs,omitempty"`
	Losses  []float64 `json:"losses,omitempty"`

	// TreeDepth is the uniform depth of all leaves, or 0 when depth varies.
	TreeDepth int `json:"treeDepth"`
	// NTrees and TreeNodes give the ensemble geometry: NTrees trees of
	// TreeNodes node slots each.
	NTrees    int `json:"nTrees"`
	TreeNodes int `json:"treeNodes"`
}

// Validate checks the structural invariants of the ensemble against the
// window feature count implied by the channel configuration.
func (c *Classifier) Validate(nFeatures int) error {
	n := c.NTrees * c.TreeNodes
	if c.NTrees <= 0 || c.TreeNodes <= 0 {
		return errors.Wrapf(ErrInvalidInput, "classifier: bad geometry %dx%d", c.NTrees, c.TreeNodes)
	}
	if len(c.Fids) != n || len(c.Thrs) != n || len(c.Child) != n || len(c.Hs) != n {
		return errors.Wrapf(ErrInvalidInput,
			"classifier: column lengths %d/%d/%d/%d do not match %d nodes",
			len(c.Fids), len(c.Thrs), len(c.Child), len(c.Hs), n)
	}
	for i, child := range c.Child {
		if child == 0 {
			continue
		}
		// the left child lives at Child[i]-1, so it must land strictly after
		// the node itself or traversal never leaves it
		node := i % c.TreeNodes
		if int(child) >= c.TreeNodes || int(child) <= node+1 {
			return errors.Wrapf(ErrInvalidInput, "classifier: node %d has out of range child %d", i, child)
		}
		if int(c.Fids[i]) >= nFeatures {
			return errors.Wrapf(ErrInvalidInput,
				"classifier: node %d reads feature %d, window only has %d", i, c.Fids[i], nFeatures)
		}
	}
	return nil
}

// ScaledThresholds returns the threshold table prescaled by 255 for
// evaluating quantized channel tensors.
func (c *Classifier) ScaledThresholds() []float32 {
	thrs := make([]float32, len(c.Thrs))
	for i, t := range c.Thrs {
		thrs[i] = t * 255
	}
	return thrs
}

// calibrated returns a copy of the leaf scores with the calibration constant
// folded in, so the cascade comparison needs no per node arithmetic.
func (c *Classifier) calibrated(cascCal float64) []float32 {
	hs := make([]float32, len(c.Hs))
	cal := float32(cascCal)
	for i, v := range c.Hs {
		hs[i] = v + cal
	}
	return hs
}
