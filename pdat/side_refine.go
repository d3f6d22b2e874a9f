package pdat

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/mblkcomm/hier"
)

// RefineOperator prolongs coarse side data onto a finer index space.
type RefineOperator interface {
	Name() string
	// StencilWidth is the number of coarse cells needed beyond the
	// coarsened fine box.
	StencilWidth() int
	// Refine sets every stored fine face of the cells in fineBox.
	Refine(fine, coarse *SideData, fineBox hier.Box, ratio hier.IntVector) error
}

const (
	ConstantRefineName = "CONSTANT_REFINE"
	LinearRefineName   = "LINEAR_REFINE"
)

var refineOperators = map[string]RefineOperator{
	ConstantRefineName: ConstantRefine{},
	LinearRefineName:   LinearRefine{},
}

func LookupRefineOperator(name string) (op RefineOperator, ok bool) {
	op, ok = refineOperators[name]
	return
}

func RefineOperatorNames() (names []string) {
	for name := range refineOperators {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// ConstantRefine copies the coarse face at or below each fine face.
type ConstantRefine struct{}

func (ConstantRefine) Name() string      { return ConstantRefineName }
func (ConstantRefine) StencilWidth() int { return 1 }

func (ConstantRefine) Refine(fine, coarse *SideData, fineBox hier.Box, ratio hier.IntVector) (err error) {
	dim := fine.Dim()
	c := make(hier.IntVector, dim)
	for axis := 0; axis < dim && err == nil; axis++ {
		cBox := coarse.GhostSideBox(axis)
		fine.ForEachFace(axis, fineBox, func(f hier.IntVector) {
			if err != nil {
				return
			}
			for k := range f {
				c[k] = hier.FloorDiv(f[k], ratio[k])
			}
			if !cBox.Contains(c) {
				err = fmt.Errorf("%s: coarse face %v axis %d outside %v", ConstantRefineName, c, axis, cBox)
				return
			}
			for d := 0; d < fine.Depth(); d++ {
				fine.Set(axis, f, d, coarse.Get(axis, c, d))
			}
		})
	}
	return
}

// LinearRefine interpolates in tensor-product fashion between the nearest
// coarse faces, extrapolating at the edge of the coarse data. Linear fields
// are reproduced exactly.
type LinearRefine struct{}

func (LinearRefine) Name() string      { return LinearRefineName }
func (LinearRefine) StencilWidth() int { return 1 }

func (LinearRefine) Refine(fine, coarse *SideData, fineBox hier.Box, ratio hier.IntVector) (err error) {
	var (
		dim     = fine.Dim()
		base    = make(hier.IntVector, dim)
		weight  = make([]float64, dim)
		corner  = make(hier.IntVector, dim)
		corners = 1 << dim
	)
	for axis := 0; axis < dim && err == nil; axis++ {
		cBox := coarse.GhostSideBox(axis)
		fine.ForEachFace(axis, fineBox, func(f hier.IntVector) {
			if err != nil {
				return
			}
			for k := range f {
				var t float64
				if k == axis {
					t = float64(f[k]) / float64(ratio[k])
				} else {
					t = (float64(f[k])+0.5)/float64(ratio[k]) - 0.5
				}
				if cBox.Hi[k] <= cBox.Lo[k] {
					err = fmt.Errorf("%s: coarse side box %v too narrow along axis %d", LinearRefineName, cBox, k)
					return
				}
				j := int(math.Floor(t))
				j = max(cBox.Lo[k], min(j, cBox.Hi[k]-1))
				base[k], weight[k] = j, t-float64(j)
			}
			for d := 0; d < fine.Depth(); d++ {
				var val float64
				for n := 0; n < corners; n++ {
					w := 1.
					for k := 0; k < dim; k++ {
						if n&(1<<k) != 0 {
							corner[k] = base[k] + 1
							w *= weight[k]
						} else {
							corner[k] = base[k]
							w *= 1 - weight[k]
						}
					}
					if w != 0 {
						val += w * coarse.Get(axis, corner, d)
					}
				}
				fine.Set(axis, f, d, val)
			}
		})
	}
	return
}
