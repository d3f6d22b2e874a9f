package tester

import (
	"context"
	"fmt"

	"github.com/notargets/mblkcomm/hier"
	"github.com/notargets/mblkcomm/pdat"
)

// PerformTests fills destination data on every level, coarsest first:
// prolongation from the coarser level, interior and same-block ghost copies,
// inter-block copies, physical boundary conditions and finally singularity
// fills. Errors from the strategy abort the pass.
func (mbt *MultiblockTester) PerformTests(ctx context.Context) (err error) {
	ph := mbt.hierarchy
	if ph == nil {
		return fmt.Errorf("%s: hierarchy not built", mbt.Name)
	}
	for ln := 0; ln < ph.NumberLevels(); ln++ {
		for _, p := range ph.Level(ln).Patches {
			if err = ctx.Err(); err != nil {
				return
			}
			if err = mbt.fillPatch(ph, ln, p); err != nil {
				return fmt.Errorf("fill patch %v block %d: %w", p.ID, p.Block, err)
			}
		}
		mbt.Logger.Debug("level filled", "run", mbt.RunID, "level", ln)
	}
	return
}

func (mbt *MultiblockTester) fillPatch(ph *hier.PatchHierarchy, ln int, p *hier.Patch) (err error) {
	level := ph.Level(ln)
	if ln > 0 {
		if err = mbt.prolong(ph, ln, p); err != nil {
			return
		}
	}
	var (
		identity = hier.IdentityTransformation(p.Dim())
		own      = mbt.geometry.DomainBox(p.Block, level.Ratio[0])
		conn     = mbt.neighborConnector(level, p)
		nbrs     = conn.Neighbors(p.ID)
	)
	for _, r := range mbt.variables {
		dst := p.Data(r.dstIndex).(*pdat.SideData)
		if ln == 0 || mbt.Config.RefineOption == InteriorFromSameLevel {
			dst.CopyInterior(p.Data(r.srcIndex).(*pdat.SideData), p.Box)
		}
		for _, q := range level.PatchesInBlock(p.Block) {
			if q != p {
				dst.CopyTransformed(q.Data(r.srcIndex).(*pdat.SideData), dst.GhostBox(), identity, hier.Box{})
			}
		}
		regions := []hier.Box{dst.GhostBox()}
		for _, bb := range p.Geometry.SingularityBoundaryBoxes() {
			regions = hier.RemoveBoxes(regions, bb.GhostRegion(dst.Ghosts()))
		}
		// later copies overwrite earlier ones, so the first neighbor in
		// connector order holding a face supplies it
		for i := len(nbrs) - 1; i >= 0; i-- {
			src := nbrs[i].Patch.Data(r.srcIndex).(*pdat.SideData)
			for _, region := range regions {
				dst.CopyTransformed(src, region, nbrs[i].Transform, own)
			}
		}
	}
	gcw := mbt.maxDestinationGhosts()
	if err = mbt.strategy.SetPhysicalBoundaryConditions(p, 0, gcw); err != nil {
		return
	}
	return mbt.fillSingularities(level, p, gcw)
}

// neighborConnector relates p to the patches of its neighbor blocks on the
// same level that reach its widest ghost box.
func (mbt *MultiblockTester) neighborConnector(level *hier.PatchLevel, p *hier.Patch) (conn *hier.Connector) {
	var (
		ones  = hier.NewIntVector(p.Dim(), 1)
		ghost = p.Box.Grow(mbt.maxDestinationGhosts())
	)
	conn = hier.NewConnector()
	for _, nb := range mbt.geometry.Neighbors(p.Block, level.Ratio[0]) {
		inv := nb.Transform.Inverse()
		for _, q := range level.PatchesInBlock(nb.Block) {
			if inv.TransformBox(q.Box).Grow(ones).Intersects(ghost) {
				conn.Add(p.ID, hier.Neighbor{Patch: q, Block: q.Block, Transform: nb.Transform})
			}
		}
	}
	return
}

// fillSingularities calls the strategy once for each patch of a block
// diagonally across a singularity that covers part of its ghost region.
// Every call sees all such patches touching the region, ordered by block
// then patch, so faces shared by several of them resolve the same way each
// time.
func (mbt *MultiblockTester) fillSingularities(level *hier.PatchLevel, p *hier.Patch, gcw hier.IntVector) (err error) {
	ones := hier.NewIntVector(p.Dim(), 1)
	for _, bb := range p.Geometry.SingularityBoundaryBoxes() {
		var (
			region = bb.GhostRegion(gcw)
			conn   = hier.NewConnector()
		)
		for _, nb := range bb.Encon {
			inv := nb.Transform.Inverse()
			for _, q := range level.PatchesInBlock(nb.Block) {
				if inv.TransformBox(q.Box).Grow(ones).Intersects(region) {
					conn.Add(p.ID, hier.Neighbor{Patch: q, Block: q.Block, Transform: nb.Transform})
				}
			}
		}
		for _, n := range conn.Neighbors(p.ID) {
			fillBox := region.Intersect(n.Transform.Inverse().TransformBox(n.Patch.Box))
			if fillBox.Empty() {
				continue
			}
			if err = mbt.strategy.FillSingularityBoundaryConditions(p, level, conn, fillBox, bb, mbt.geometry); err != nil {
				return
			}
		}
	}
	return
}

// prolong refines the parent's source data, ghosts included, over the whole
// destination ghost box of a fine patch and lets the strategy adjust it.
func (mbt *MultiblockTester) prolong(ph *hier.PatchHierarchy, ln int, p *hier.Patch) (err error) {
	var (
		parent = mbt.parents[p.ID]
		coarse = ph.Level(ln - 1)
		ratio  = hier.NewIntVector(p.Dim(), mbt.Config.RefinementRatio)
		zero   = hier.NewIntVector(p.Dim(), 0)
		boxes  = make([]hier.Box, len(mbt.variables))
	)
	if parent == nil {
		return fmt.Errorf("fine patch %v has no parent", p.ID)
	}
	for i, v := range mbt.variables {
		fine := p.Data(v.dstIndex).(*pdat.SideData)
		boxes[i] = fine.GhostBox().Coarsen(ratio).Grow(mbt.vdb.Ghosts(v.scratchIndex))
	}
	cbox := hier.BoundingBox(boxes)
	cp := hier.NewPatch(hier.GlobalID{Level: ln - 1, Index: -1}, cbox, p.Block,
		mbt.geometry.PatchGeometry(p.Block, cbox, coarse.Ratio[0]))
	for i, v := range mbt.variables {
		var (
			fine    = p.Data(v.dstIndex).(*pdat.SideData)
			scratch = pdat.NewSideData(boxes[i], v.dst.Depth(), zero)
		)
		scratch.Copy(parent.Data(v.srcIndex).(*pdat.SideData), boxes[i])
		cp.SetData(v.scratchIndex, scratch)
		if err = v.op.Refine(fine, scratch, fine.GhostBox(), ratio); err != nil {
			return
		}
	}
	return mbt.strategy.PostprocessRefine(p, cp, mbt.contexts[DESTINATION],
		p.Box.Grow(mbt.maxDestinationGhosts()), ratio)
}
