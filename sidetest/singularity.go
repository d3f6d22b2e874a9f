package sidetest

import (
	"fmt"
	"slices"

	"github.com/notargets/mblkcomm/hier"
	"github.com/notargets/mblkcomm/pdat"
	"github.com/notargets/mblkcomm/tester"
)

// FillSingularityBoundaryConditions fills the destination ghost faces in
// fillBox from the source data of the encon patches related to patch by
// dstToEncon. Each face is mapped into each neighbor's index space in
// connector order, block id then patch index, and the first neighbor that
// holds the face supplies it. A face no neighbor holds, or a neighbor outside
// the blocks meeting patch's block at a singularity, is a geometry contract
// violation.
func (smt *SideMultiblockTest) FillSingularityBoundaryConditions(patch *hier.Patch, enconLevel *hier.PatchLevel,
	dstToEncon *hier.Connector, fillBox hier.Box, bbox hier.BoundaryBox, gg hier.GridGeometry) (err error) {
	var (
		nbrs    = dstToEncon.Neighbors(patch.ID)
		allowed = gg.SingularityNeighbors(patch.Block)
	)
	if !bbox.IsSingularity() {
		return fmt.Errorf("%w: %s: patch %v boundary box %v at %v is %v, not a singularity",
			ErrGeometryContract, smt.ObjectName, patch.ID, bbox.Box, bbox.Location, bbox.Kind)
	}
	for _, n := range nbrs {
		if !slices.Contains(allowed, n.Block) {
			return fmt.Errorf("%w: %s: encon patch %v is in block %d, not a singularity neighbor of block %d %v",
				ErrGeometryContract, smt.ObjectName, n.Patch.ID, n.Block, patch.Block, allowed)
		}
	}
	for _, v := range smt.variables {
		dst, err := smt.sideData(patch, v, tester.DESTINATION)
		if err != nil {
			return err
		}
		srcs := make([]*pdat.SideData, len(nbrs))
		for i, n := range nbrs {
			if srcs[i], err = smt.sideData(n.Patch, v, tester.SOURCE); err != nil {
				return err
			}
		}
		for axis := 0; axis < dst.Dim() && err == nil; axis++ {
			dst.ForEachGhostFace(axis, fillBox, func(f hier.IntVector) {
				if err != nil {
					return
				}
				i, srcAxis, g, sign := firstHolder(nbrs, axis, f)
				if i >= 0 {
					for d := 0; d < dst.Depth(); d++ {
						dst.Set(axis, f, d, float64(sign)*srcs[i].Get(srcAxis, g, d))
					}
					return
				}
				err = fmt.Errorf("%w: %s: patch %v variable %q: no encon patch on level %d holds face %v normal to axis %d",
					ErrGeometryContract, smt.ObjectName, patch.ID, v.side.Name(), enconLevel.Number, f, axis)
			})
		}
		if err != nil {
			return err
		}
	}
	return
}

// firstHolder is the index of the first of nbrs whose patch holds the face
// normal to axis at f, with that face in its index space, or -1.
func firstHolder(nbrs []hier.Neighbor, axis int, f hier.IntVector) (int, int, hier.IntVector, int) {
	for i, n := range nbrs {
		srcAxis, g, sign := n.Transform.TransformSide(axis, f)
		if n.Patch.Box.SideBox(srcAxis).Contains(g) {
			return i, srcAxis, g, sign
		}
	}
	return -1, 0, nil, 0
}
