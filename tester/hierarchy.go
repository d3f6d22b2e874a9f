package tester

import (
	"context"
	"fmt"

	"github.com/notargets/mblkcomm/hier"
	"github.com/notargets/mblkcomm/pdat"
	"github.com/notargets/mblkcomm/utils"
)

// BuildHierarchy creates level zero from the blocks, then refines tagged
// regions until the finest configured level or until nothing is tagged.
// Every patch gets SOURCE and DESTINATION data initialized by the strategy.
func (mbt *MultiblockTester) BuildHierarchy(ctx context.Context) (err error) {
	var (
		dim   = mbt.geometry.Dim()
		ph    = hier.NewPatchHierarchy(mbt.geometry)
		level = hier.NewPatchLevel(0, hier.NewIntVector(dim, 1))
	)
	for b := 0; b < mbt.geometry.NumberBlocks(); b++ {
		block := hier.BlockID(b)
		for _, box := range mbt.geometry.DomainBox(block, 1).Chop(mbt.Config.MaxPatchSize) {
			level.AddPatch(box, block, mbt.geometry.PatchGeometry(block, box, 1))
		}
	}
	ph.AddLevel(level)
	mbt.hierarchy = ph
	for ln := 0; ; ln++ {
		level = ph.Level(ln)
		mbt.allocate(level)
		if err = mbt.forEachPatch(ctx, level.Patches, func(p *hier.Patch) error {
			for _, role := range []Role{SOURCE, DESTINATION} {
				if err := mbt.strategy.InitializeDataOnPatch(p, ph, ln, p.Block, role); err != nil {
					return fmt.Errorf("initialize %v patch %v: %w", role, p.ID, err)
				}
			}
			return nil
		}); err != nil {
			return
		}
		mbt.Logger.Info("level initialized", "run", mbt.RunID, "level", ln, "patches", len(level.Patches))
		if ln >= mbt.Config.FinestLevel {
			break
		}
		var fine *hier.PatchLevel
		if fine, err = mbt.refine(ctx, ph, ln); err != nil {
			return
		}
		if fine == nil {
			mbt.Logger.Info("no cells tagged", "run", mbt.RunID, "level", ln)
			break
		}
		ph.AddLevel(fine)
	}
	return
}

func (mbt *MultiblockTester) allocate(level *hier.PatchLevel) {
	dim := mbt.geometry.Dim()
	for _, p := range level.Patches {
		for _, r := range mbt.variables {
			p.SetData(r.srcIndex, pdat.NewSideData(p.Box, r.src.Depth(), mbt.vdb.Ghosts(r.srcIndex)))
			p.SetData(r.dstIndex, pdat.NewSideData(p.Box, r.dst.Depth(), mbt.vdb.Ghosts(r.dstIndex)))
		}
		p.SetData(mbt.tagIndex, pdat.NewCellData[int](p.Box, hier.NewIntVector(dim, 0)))
	}
}

// refine tags level ln and builds the next finer level from the bounding box
// of the tags on each coarse patch. It returns nil when nothing is tagged.
func (mbt *MultiblockTester) refine(ctx context.Context, ph *hier.PatchHierarchy, ln int) (fine *hier.PatchLevel, err error) {
	level := ph.Level(ln)
	if err = mbt.forEachPatch(ctx, level.Patches, func(p *hier.Patch) error {
		p.Data(mbt.tagIndex).(*pdat.CellData[int]).Fill(0)
		if err := mbt.strategy.TagCellsToRefine(p, ph, ln, mbt.tagIndex); err != nil {
			return fmt.Errorf("tag patch %v: %w", p.ID, err)
		}
		return nil
	}); err != nil {
		return
	}
	var (
		r     = mbt.Config.RefinementRatio
		ratio = hier.NewIntVector(mbt.geometry.Dim(), r)
	)
	fine = hier.NewPatchLevel(ln+1, level.Ratio.Scale(r))
	for _, p := range level.Patches {
		cells := p.Data(mbt.tagIndex).(*pdat.CellData[int]).Cells(1)
		if len(cells) == 0 {
			continue
		}
		boxes := make([]hier.Box, len(cells))
		for i, c := range cells {
			boxes[i] = hier.NewBox(c, c)
		}
		for _, box := range hier.BoundingBox(boxes).Refine(ratio).Chop(mbt.Config.MaxPatchSize) {
			fp := fine.AddPatch(box, p.Block, mbt.geometry.PatchGeometry(p.Block, box, fine.Ratio[0]))
			mbt.parents[fp.ID] = p
		}
	}
	if len(fine.Patches) == 0 {
		return nil, nil
	}
	return
}

// forEachPatch shards patches over the worker pool.
func (mbt *MultiblockTester) forEachPatch(ctx context.Context, patches []*hier.Patch, fn func(p *hier.Patch) error) error {
	pm := utils.NewPartitionMap(mbt.workers(), len(patches))
	return pm.ForEachBucket(ctx, func(ctx context.Context, _, kMin, kMax int) error {
		for k := kMin; k < kMax; k++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(patches[k]); err != nil {
				return err
			}
		}
		return nil
	})
}
