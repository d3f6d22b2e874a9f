package sidetest

import (
	"fmt"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/notargets/mblkcomm/hier"
	"github.com/notargets/mblkcomm/tester"
)

// PostprocessRefine replaces prolonged values on the faces of fineBox with
// the exact source field for variables whose refine operator is treated as
// exact. Fine face positions are located through the coarse patch geometry.
func (smt *SideMultiblockTest) PostprocessRefine(fine, coarse *hier.Patch, ctx *hier.VariableContext,
	fineBox hier.Box, ratio hier.IntVector) (err error) {
	if smt.vdb == nil {
		return fmt.Errorf("%w: %s: variables not registered", ErrConfiguration, smt.ObjectName)
	}
	for _, v := range smt.variables {
		if !v.exact {
			continue
		}
		index, ok := smt.vdb.MapVariableAndContextToIndex(v.side, ctx)
		if !ok {
			return fmt.Errorf("%w: %s: variable %q not registered in context %s",
				ErrConfiguration, smt.ObjectName, v.side.Name(), ctx.Name)
		}
		sd, err := smt.sideDataAt(fine, v, index, ctx.Name)
		if err != nil {
			return err
		}
		for axis := 0; axis < sd.Dim(); axis++ {
			sd.ForEachFace(axis, fineBox, func(f hier.IntVector) {
				p := faceCenter(axis, f)
				for k := range p {
					p[k] /= float64(ratio[k])
				}
				for d := 0; d < sd.Depth(); d++ {
					sd.Set(axis, f, d, faceValue(coarse.Geometry, tester.SOURCE, axis, p, d))
				}
			})
		}
	}
	return
}

// VerifyResults compares every destination face of the patch, ghosts
// included, with the source value the fill should have left there: the
// patch's own field inside its block and on physical boundaries, otherwise
// the value held by the first neighbor patch covering the face. Each mismatch
// is logged; the result is false if there was any.
func (smt *SideMultiblockTest) VerifyResults(patch *hier.Patch, hierarchy *hier.PatchHierarchy,
	levelNumber int, block hier.BlockID) (ok bool, err error) {
	if block != patch.Block {
		return false, fmt.Errorf("%w: %s: patch %v belongs to block %d, not %d",
			ErrGeometryContract, smt.ObjectName, patch.ID, patch.Block, block)
	}
	level := hierarchy.Level(levelNumber)
	if level == nil {
		return false, fmt.Errorf("%w: %s: hierarchy has no level %d", ErrGeometryContract, smt.ObjectName, levelNumber)
	}
	ok = true
	var mismatches int
	for _, v := range smt.variables {
		sd, err := smt.sideData(patch, v, tester.DESTINATION)
		if err != nil {
			return false, err
		}
		e := smt.newExpectation(patch, level, hierarchy.Geometry, sd.Ghosts())
		for axis := 0; axis < sd.Dim(); axis++ {
			sd.GhostSideBox(axis).ForEach(func(f hier.IntVector) {
				for d := 0; d < sd.Depth(); d++ {
					expected := e.value(axis, f, d)
					actual := sd.Get(axis, f, d)
					if scalar.EqualWithinAbsOrRel(expected, actual, smt.tolerance, smt.tolerance) {
						continue
					}
					mismatches++
					smt.Logger.Warn("face mismatch", "patch", patch.ID, "block", block, "level", levelNumber,
						"variable", v.side.Name(), "axis", axis, "face", f.String(), "depth", d,
						"expected", expected, "actual", actual)
				}
			})
		}
	}
	if mismatches > 0 {
		ok = false
		smt.Logger.Warn("patch failed", "object", smt.ObjectName, "patch", patch.ID, "block", block,
			"level", levelNumber, "mismatches", mismatches)
	}
	return
}

// expectation says which source supplies each destination face of a patch.
// Glued blocks need not agree on a frame around a singularity, so a ghost face
// is checked against the neighbor that actually holds it.
type expectation struct {
	patch    *hier.Patch
	own      hier.Box        // the patch's block domain
	regular  []hier.Neighbor // face and edge neighbors, connector order
	regions  []hier.Box      // ghost box outside every singularity region
	physical []hier.Box
	singular []singularRegion // last filled first
}

type singularRegion struct {
	region hier.Box
	nbrs   []hier.Neighbor
}

// newExpectation lays out the fill of patch for a variable with ghosts
// cells. Physical and singularity regions span the widest destination ghost
// width of the test's variables.
func (smt *SideMultiblockTest) newExpectation(patch *hier.Patch, level *hier.PatchLevel,
	gg hier.GridGeometry, ghosts hier.IntVector) (e *expectation) {
	var (
		ratio = level.Ratio[0]
		gcw   = smt.maxGhosts()
	)
	e = &expectation{
		patch:   patch,
		own:     gg.DomainBox(patch.Block, ratio),
		regular: relatedPatches(level, patch, gg.Neighbors(patch.Block, ratio)),
		regions: []hier.Box{patch.Box.Grow(ghosts)},
	}
	for _, bb := range patch.Geometry.BoundaryBoxes {
		switch bb.Kind {
		case hier.PhysicalBoundary:
			e.physical = append(e.physical, bb.GhostRegion(gcw))
		case hier.SingularityBoundary:
			e.regions = hier.RemoveBoxes(e.regions, bb.GhostRegion(ghosts))
			e.singular = append([]singularRegion{{
				region: bb.GhostRegion(gcw),
				nbrs:   relatedPatches(level, patch, bb.Encon),
			}}, e.singular...)
		}
	}
	return
}

func (smt *SideMultiblockTest) maxGhosts() (gcw hier.IntVector) {
	gcw = hier.NewIntVector(smt.dim, 0)
	for _, v := range smt.variables {
		gcw = gcw.Max(smt.vdb.Ghosts(v.dstIndex))
	}
	return
}

// value is the expected depth d component on the face normal to axis at f.
func (e *expectation) value(axis int, f hier.IntVector, d int) float64 {
	own := faceValue(e.patch.Geometry, tester.SOURCE, axis, faceCenter(axis, f), d)
	if e.own.SideBox(axis).Contains(f) {
		return own
	}
	for _, s := range e.singular {
		if s.fills(axis, f) {
			if v, ok := heldValue(s.nbrs, axis, f, d); ok {
				return v
			}
		}
	}
	if inSideBoxes(e.physical, axis, f) {
		return own
	}
	if inSideBoxes(e.regions, axis, f) {
		if v, ok := heldValue(e.regular, axis, f, d); ok {
			return v
		}
	}
	return own
}

// fills is true when the face bounds a cell of the region that one of the
// encon patches covers.
func (s singularRegion) fills(axis int, f hier.IntVector) bool {
	for _, n := range s.nbrs {
		fill := s.region.Intersect(n.Transform.Inverse().TransformBox(n.Patch.Box))
		if !fill.Empty() && fill.SideBox(axis).Contains(f) {
			return true
		}
	}
	return false
}

// heldValue is the source value of the first of nbrs holding the face.
func heldValue(nbrs []hier.Neighbor, axis int, f hier.IntVector, d int) (float64, bool) {
	i, srcAxis, g, sign := firstHolder(nbrs, axis, f)
	if i < 0 {
		return 0, false
	}
	q := nbrs[i].Patch
	return float64(sign) * faceValue(q.Geometry, tester.SOURCE, srcAxis, faceCenter(srcAxis, g), d), true
}

func inSideBoxes(boxes []hier.Box, axis int, f hier.IntVector) bool {
	for _, b := range boxes {
		if !b.Empty() && b.SideBox(axis).Contains(f) {
			return true
		}
	}
	return false
}

// relatedPatches lists the level's patches in the blocks of nbrs, each with
// its block's transformation, ordered by block then patch.
func relatedPatches(level *hier.PatchLevel, patch *hier.Patch, nbrs []hier.BlockNeighbor) []hier.Neighbor {
	conn := hier.NewConnector()
	for _, nb := range nbrs {
		for _, q := range level.PatchesInBlock(nb.Block) {
			conn.Add(patch.ID, hier.Neighbor{Patch: q, Block: q.Block, Transform: nb.Transform})
		}
	}
	return conn.Neighbors(patch.ID)
}
