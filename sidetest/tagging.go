package sidetest

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/mblkcomm/hier"
	"github.com/notargets/mblkcomm/pdat"
	"github.com/notargets/mblkcomm/tester"
)

// TagCellsToRefine sets the tag of each cell whose criterion exceeds the
// threshold, or that lies in a configured tag box. Nothing is tagged on the
// finest level or beyond.
func (smt *SideMultiblockTest) TagCellsToRefine(patch *hier.Patch, hierarchy *hier.PatchHierarchy,
	levelNumber, tagIndex int) (err error) {
	var (
		tags *pdat.CellData[int]
		ok   bool
	)
	if patch.HasData(tagIndex) {
		tags, ok = patch.Data(tagIndex).(*pdat.CellData[int])
	}
	if !ok {
		return fmt.Errorf("%w: %s: no tag data at index %d on patch %v",
			ErrConfiguration, smt.ObjectName, tagIndex, patch.ID)
	}
	if levelNumber >= smt.finestLevel {
		return
	}
	if smt.criterion == TagBoxes {
		for _, tb := range smt.tagBoxes {
			if tb.level == levelNumber && tb.block == patch.Block {
				patch.Box.Intersect(tb.box).ForEach(func(c hier.IntVector) { tags.Set(c, 1) })
			}
		}
		return
	}
	srcs := make([]*pdat.SideData, len(smt.variables))
	for i, v := range smt.variables {
		if srcs[i], err = smt.sideData(patch, v, tester.SOURCE); err != nil {
			return
		}
	}
	var (
		vals []float64
		hi   = make(hier.IntVector, patch.Dim())
	)
	patch.Box.ForEach(func(c hier.IntVector) {
		vals = vals[:0]
		for _, sd := range srcs {
			for axis := 0; axis < sd.Dim(); axis++ {
				copy(hi, c)
				hi[axis]++
				width := patch.Geometry.CellWidth(axis)
				for d := 0; d < sd.Depth(); d++ {
					lo, up := sd.Get(axis, c, d), sd.Get(axis, hi, d)
					switch smt.criterion {
					case TagMagnitude:
						vals = append(vals, math.Abs(0.5*(lo+up)))
					case TagGradient:
						vals = append(vals, math.Abs(up-lo)/width)
					}
				}
			}
		}
		if floats.Max(vals) > smt.threshold {
			tags.Set(c, 1)
		}
	})
	return
}
