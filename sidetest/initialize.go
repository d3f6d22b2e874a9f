package sidetest

import (
	"fmt"

	"github.com/notargets/mblkcomm/hier"
	"github.com/notargets/mblkcomm/tester"
)

// InitializeDataOnPatch writes the role's field on every face of the
// patch, ghosts included, for every variable.
func (smt *SideMultiblockTest) InitializeDataOnPatch(patch *hier.Patch, hierarchy *hier.PatchHierarchy,
	levelNumber int, block hier.BlockID, role tester.Role) (err error) {
	if block != patch.Block {
		return fmt.Errorf("%w: %s: patch %v belongs to block %d, not %d",
			ErrGeometryContract, smt.ObjectName, patch.ID, patch.Block, block)
	}
	for _, v := range smt.variables {
		sd, err := smt.sideData(patch, v, role)
		if err != nil {
			return err
		}
		setFaces(sd, patch.Geometry, role, sd.GhostBox(), false)
	}
	smt.Logger.Debug("initialized patch", "object", smt.ObjectName, "patch", patch.ID,
		"level", levelNumber, "block", block, "role", role)
	return
}

// SetPhysicalBoundaryConditions writes the source field into the destination
// ghost faces lying outside the physical domain, up to gcw cells out.
func (smt *SideMultiblockTest) SetPhysicalBoundaryConditions(patch *hier.Patch, time float64,
	gcw hier.IntVector) (err error) {
	bboxes := patch.Geometry.PhysicalBoundaryBoxes()
	for _, v := range smt.variables {
		sd, err := smt.sideData(patch, v, tester.DESTINATION)
		if err != nil {
			return err
		}
		for _, bb := range bboxes {
			setFaces(sd, patch.Geometry, tester.SOURCE, bb.GhostRegion(gcw), true)
		}
	}
	return
}
