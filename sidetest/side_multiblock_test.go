package sidetest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/notargets/mblkcomm/InputParameters"
	"github.com/notargets/mblkcomm/hier"
	"github.com/notargets/mblkcomm/pdat"
	"github.com/notargets/mblkcomm/tester"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(tint.NewHandler(io.Discard, nil))

func twoBlockParameters() *InputParameters.MultiblockTestParameters {
	return &InputParameters.MultiblockTestParameters{
		Title:           "two blocks",
		Dim:             2,
		RefineOption:    tester.InteriorFromSameLevel,
		FinestLevel:     1,
		RefinementRatio: 2,
		MaxPatchSize:    2,
		Tolerance:       1.e-10,
		Workers:         3,
		Geometry: InputParameters.GeometryParameters{
			XLo: []float64{0, 0},
			Dx:  []float64{0.25, 0.25},
			Blocks: []InputParameters.BlockParameters{
				{Name: "left", Lo: []int{0, 0}, Hi: []int{3, 3}},
				{Name: "right", Lo: []int{0, 0}, Hi: []int{3, 3}, Rotation: 2, Offset: []int{8, 4}},
			},
		},
		Variables: []InputParameters.VariableParameters{
			{Name: "u", Depth: 1, DstGhosts: []int{2, 2}, RefineOperator: pdat.LinearRefineName},
			{Name: "w", Depth: 2, RefineOperator: pdat.ConstantRefineName},
		},
		Refinement: InputParameters.RefinementParameters{
			Criterion: TagBoxes,
			TagBoxes: []InputParameters.TagBoxSetting{
				{Level: 0, Block: 0, Lo: []int{2, 1}, Hi: []int{3, 2}},
				{Level: 0, Block: 1, Lo: []int{2, 1}, Hi: []int{3, 2}},
			},
		},
	}
}

// tJunctionParameters has blocks A and B below block C, which is turned a
// quarter turn; the three meet at reference vertex (4,4).
func tJunctionParameters() *InputParameters.MultiblockTestParameters {
	ip := twoBlockParameters()
	ip.Title = "T junction"
	ip.MaxPatchSize = 0
	ip.Geometry = InputParameters.GeometryParameters{
		XLo: []float64{0, 0},
		Dx:  []float64{0.125, 0.125},
		Blocks: []InputParameters.BlockParameters{
			{Name: "A", Lo: []int{0, 0}, Hi: []int{3, 3}},
			{Name: "B", Lo: []int{0, 0}, Hi: []int{3, 3}, Offset: []int{4, 0}},
			{Name: "C", Lo: []int{0, 0}, Hi: []int{3, 7}, Rotation: 1, Offset: []int{8, 4}},
		},
	}
	ip.Refinement.TagBoxes = []InputParameters.TagBoxSetting{
		{Level: 0, Block: 0, Lo: []int{2, 2}, Hi: []int{3, 3}},
		{Level: 0, Block: 1, Lo: []int{0, 2}, Hi: []int{1, 3}},
		{Level: 0, Block: 2, Lo: []int{0, 2}, Hi: []int{1, 3}},
	}
	return ip
}

// threeBlockVertexParameters has blocks A, B and C around reference vertex
// (4,4) with the upper right quadrant empty. B's top face is glued to C's
// right face, so only three cells meet at the vertex and the frames do not
// close around it.
func threeBlockVertexParameters() *InputParameters.MultiblockTestParameters {
	ip := twoBlockParameters()
	ip.Title = "three block vertex"
	ip.Geometry = InputParameters.GeometryParameters{
		XLo: []float64{0, 0},
		Dx:  []float64{0.125, 0.125},
		Blocks: []InputParameters.BlockParameters{
			{Name: "A", Lo: []int{0, 0}, Hi: []int{3, 3}},
			{Name: "B", Lo: []int{0, 0}, Hi: []int{3, 3}, Offset: []int{4, 0}},
			{Name: "C", Lo: []int{0, 0}, Hi: []int{3, 3}, Offset: []int{0, 4}},
		},
		Neighbors: []InputParameters.GluingParameters{
			{Blocks: []int{1, 2}, Rotation: 1, Offset: []int{8, 0}},
		},
	}
	ip.Refinement.TagBoxes = []InputParameters.TagBoxSetting{
		{Level: 0, Block: 0, Lo: []int{2, 2}, Hi: []int{3, 3}},
		{Level: 0, Block: 1, Lo: []int{0, 2}, Hi: []int{1, 3}},
		{Level: 0, Block: 2, Lo: []int{2, 0}, Hi: []int{3, 1}},
	}
	return ip
}

// tEdgeParameters has 3D blocks a and b side by side under block c. b's
// index space is permuted and reversed against the reference frame; the
// three meet along the reference edge x=4, z=4.
func tEdgeParameters() *InputParameters.MultiblockTestParameters {
	ip := twoBlockParameters()
	ip.Title = "T edge"
	ip.Dim = 3
	ip.Geometry = InputParameters.GeometryParameters{
		XLo: []float64{0, 0, 0},
		Dx:  []float64{0.125, 0.125, 0.125},
		Blocks: []InputParameters.BlockParameters{
			{Name: "a", Lo: []int{0, 0, 0}, Hi: []int{3, 3, 3}},
			{Name: "b", Lo: []int{0, 0, 0}, Hi: []int{3, 3, 3},
				Perm: []int{1, 2, 0}, Sign: []int{-1, 1, -1}, Offset: []int{8, 0, 4}},
			{Name: "c", Lo: []int{0, 0, 0}, Hi: []int{7, 3, 3}, Offset: []int{0, 0, 4}},
		},
	}
	ip.Variables = []InputParameters.VariableParameters{
		{Name: "u", Depth: 1, DstGhosts: []int{2, 2, 2}, RefineOperator: pdat.LinearRefineName},
		{Name: "w", Depth: 2, RefineOperator: pdat.ConstantRefineName},
	}
	ip.Refinement.TagBoxes = []InputParameters.TagBoxSetting{
		{Level: 0, Block: 0, Lo: []int{2, 0, 2}, Hi: []int{3, 3, 3}},
		{Level: 0, Block: 1, Lo: []int{0, 2, 0}, Hi: []int{1, 3, 3}},
		{Level: 0, Block: 2, Lo: []int{2, 0, 0}, Hi: []int{5, 3, 1}},
	}
	return ip
}

func newRun(t *testing.T, ip *InputParameters.MultiblockTestParameters, finest int) (*SideMultiblockTest, *tester.MultiblockTester) {
	g, err := ip.NewGeometry()
	require.NoError(t, err)
	smt, err := NewSideMultiblockTest("SideMultiblockTest", ip.Dim, ip, ip.RefineOption)
	require.NoError(t, err)
	smt.Logger = quiet
	mbt, err := tester.NewMultiblockTester("MultiblockTester", tester.Config{
		RefineOption:    ip.RefineOption,
		FinestLevel:     finest,
		RefinementRatio: ip.RefinementRatio,
		MaxPatchSize:    ip.MaxPatchSize,
		Workers:         ip.Workers,
	}, g, smt)
	require.NoError(t, err)
	mbt.Logger = quiet
	return smt, mbt
}

func patchAt(t *testing.T, level *hier.PatchLevel, block hier.BlockID, cell hier.IntVector) *hier.Patch {
	for _, p := range level.PatchesInBlock(block) {
		if p.Box.Contains(cell) {
			return p
		}
	}
	t.Fatalf("no patch of block %d on level %d holds %v", block, level.Number, cell)
	return nil
}

func TestNewSideMultiblockTest(t *testing.T) {
	{ // Every bad key is reported under the object name
		ip := twoBlockParameters()
		ip.Dim = 3
		ip.Tolerance = -1
		ip.Refinement.Criterion = "CURVATURE"
		ip.Variables = append(ip.Variables,
			InputParameters.VariableParameters{Name: "u"},
			InputParameters.VariableParameters{Name: "v", RefineOperator: "CUBIC_REFINE", DstGhosts: []int{1}},
		)
		_, err := NewSideMultiblockTest("smt", 2, ip, "INTERIOR_FROM_NOWHERE")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfiguration))
		for _, key := range []string{"smt: Dim 3", "Tolerance", "Criterion", "duplicate Name \"u\"",
			"CUBIC_REFINE", "DstGhosts", "RefineOption"} {
			assert.Contains(t, err.Error(), key)
		}
	}
	{ // Missing variables
		ip := twoBlockParameters()
		ip.Variables = nil
		_, err := NewSideMultiblockTest("smt", 2, ip, tester.InteriorFromSameLevel)
		assert.ErrorIs(t, err, ErrConfiguration)
		_, err = NewSideMultiblockTest("smt", 2, nil, tester.InteriorFromSameLevel)
		assert.ErrorIs(t, err, ErrConfiguration)
	}
	{ // Defaults
		ip := twoBlockParameters()
		ip.Tolerance = 0
		ip.Variables = []InputParameters.VariableParameters{{Name: "u"}}
		smt, err := NewSideMultiblockTest("smt", 2, ip, tester.InteriorFromSameLevel)
		require.NoError(t, err)
		require.Len(t, smt.variables, 1)
		v := smt.variables[0]
		assert.Equal(t, 1.e-10, smt.tolerance)
		assert.Equal(t, pdat.ConstantRefineName, v.refineOperator)
		assert.True(t, v.exact)
		assert.Equal(t, 1, v.side.Depth())
		assert.Equal(t, hier.IntVector{1, 1}, v.dstGhosts)
	}
}

func TestRegisterVariables(t *testing.T) {
	ip := twoBlockParameters()
	ip.RefineOption = tester.InteriorFromCoarserLevel
	ip.Variables[1].DstGhosts = []int{0, 0}
	smt, mbt := newRun(t, ip, 1)
	vdb := mbt.VariableDatabase()
	{ // Coarser-level interiors widen destination ghosts to the stencil
		w := smt.variables[1]
		assert.Equal(t, hier.IntVector{1, 1}, vdb.Ghosts(w.dstIndex))
		// source ghosts cover the coarse stencil of the widest fine ghost box
		u := smt.variables[0]
		assert.Equal(t, hier.IntVector{2, 2}, vdb.Ghosts(u.srcIndex))
		assert.NotEqual(t, u.srcIndex, u.dstIndex)
	}
	{ // The registry is frozen once the tester is built
		err := smt.RegisterVariables(mbt)
		assert.ErrorIs(t, err, tester.ErrRegistration)
	}
	{ // A variable missing from the database is a registration error, not index 0
		err := smt.bindIndices(hier.NewVariableDatabase(), mbt.Context(tester.SOURCE), mbt.Context(tester.DESTINATION))
		assert.ErrorIs(t, err, tester.ErrRegistration)
		assert.Contains(t, err.Error(), `variable "u" has no SOURCE or DESTINATION data index`)
	}
}

func TestVerifyAfterInitialize(t *testing.T) {
	ctx := context.Background()
	smt, mbt := newRun(t, tJunctionParameters(), 0)
	require.NoError(t, mbt.BuildHierarchy(ctx))
	ph := mbt.Hierarchy()
	for _, p := range ph.Level(0).Patches {
		// destination data still holds its own field
		ok, err := smt.VerifyResults(p, ph, 0, p.Block)
		require.NoError(t, err)
		assert.False(t, ok, "patch %v", p.ID)
		// the source field, moved unchanged into destination storage, verifies
		require.NoError(t, smt.InitializeDataOnPatch(p, ph, 0, p.Block, tester.SOURCE))
		for _, v := range smt.variables {
			dst := p.Data(v.dstIndex).(*pdat.SideData)
			dst.Copy(p.Data(v.srcIndex).(*pdat.SideData), dst.GhostBox())
		}
		ok, err = smt.VerifyResults(p, ph, 0, p.Block)
		require.NoError(t, err)
		assert.True(t, ok, "patch %v", p.ID)
	}
	{ // Contract and configuration failures are errors, not results
		p := ph.Level(0).Patches[0]
		_, err := smt.VerifyResults(p, ph, 0, p.Block+1)
		assert.ErrorIs(t, err, ErrGeometryContract)
		err = smt.InitializeDataOnPatch(p, ph, 0, p.Block+1, tester.SOURCE)
		assert.ErrorIs(t, err, ErrGeometryContract)
		bare := hier.NewPatch(hier.GlobalID{}, p.Box, p.Block, p.Geometry)
		err = smt.InitializeDataOnPatch(bare, ph, 0, p.Block, tester.DESTINATION)
		assert.ErrorIs(t, err, ErrConfiguration)
		_, err = smt.VerifyResults(bare, ph, 0, p.Block)
		assert.ErrorIs(t, err, ErrConfiguration)
	}
}

func TestPhysicalBoundary(t *testing.T) {
	ctx := context.Background()
	smt, mbt := newRun(t, twoBlockParameters(), 0)
	require.NoError(t, mbt.BuildHierarchy(ctx))
	var checked int
	for _, p := range mbt.Hierarchy().Level(0).Patches {
		gcw := hier.IntVector{2, 2}
		require.NoError(t, smt.SetPhysicalBoundaryConditions(p, 0, gcw))
		for _, v := range smt.variables {
			sd := p.Data(v.dstIndex).(*pdat.SideData)
			for _, bb := range p.Geometry.PhysicalBoundaryBoxes() {
				for axis := 0; axis < 2; axis++ {
					sd.ForEachGhostFace(axis, bb.GhostRegion(gcw), func(f hier.IntVector) {
						for d := 0; d < sd.Depth(); d++ {
							want := faceValue(p.Geometry, tester.SOURCE, axis, faceCenter(axis, f), d)
							assert.InDelta(t, want, sd.Get(axis, f, d), 1.e-12)
							checked++
						}
					})
				}
			}
			// interior faces are left alone
			f := p.Box.Lo
			assert.InDelta(t, faceValue(p.Geometry, tester.DESTINATION, 0, faceCenter(0, f), 0),
				sd.Get(0, f, 0), 1.e-12)
		}
	}
	assert.Greater(t, checked, 0)
}

func TestTwoBlockEndToEnd(t *testing.T) {
	ctx := context.Background()
	for _, option := range []string{tester.InteriorFromSameLevel, tester.InteriorFromCoarserLevel} {
		ip := twoBlockParameters()
		ip.RefineOption = option
		smt, mbt := newRun(t, ip, 1)
		report, err := mbt.Run(ctx)
		require.NoError(t, err, option)
		assert.True(t, report.Passed, "%s: %v", option, report)
		ph := mbt.Hierarchy()
		require.Equal(t, 2, ph.NumberLevels())
		assert.NotEmpty(t, ph.Level(1).PatchesInBlock(0))
		assert.NotEmpty(t, ph.Level(1).PatchesInBlock(1))
		{ // Both sides of the interface see the field at the shared location
			u := smt.variables[0]
			left := patchAt(t, ph.Level(0), 0, hier.IntVector{3, 0})
			// x = 5*0.25, y = 0.5*0.25, component 0
			assert.InDelta(t, 1.5, left.Data(u.dstIndex).(*pdat.SideData).Get(0, hier.IntVector{5, 0}, 0), 1.e-12)
			// the rotated block's axis 0 is reversed: ghost face 5 sits at x = 3*0.25
			right := patchAt(t, ph.Level(0), 1, hier.IntVector{3, 3})
			assert.InDelta(t, -1.0, right.Data(u.dstIndex).(*pdat.SideData).Get(0, hier.IntVector{5, 3}, 0), 1.e-12)
		}
	}
	{ // Inexact constant refinement of coarser interiors is caught
		ip := twoBlockParameters()
		ip.RefineOption = tester.InteriorFromCoarserLevel
		exact := false
		ip.Variables[1].ExactRefine = &exact
		_, mbt := newRun(t, ip, 1)
		report, err := mbt.Run(ctx)
		require.NoError(t, err)
		assert.False(t, report.Passed)
		for _, pr := range report.Failures() {
			assert.Equal(t, 1, pr.Patch.Level)
		}
	}
}

func TestTJunctionEndToEnd(t *testing.T) {
	ctx := context.Background()
	smt, mbt := newRun(t, tJunctionParameters(), 1)
	report, err := mbt.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Passed, "%v", report)
	ph := mbt.Hierarchy()
	require.Equal(t, 2, ph.NumberLevels())
	a := patchAt(t, ph.Level(0), 0, hier.IntVector{3, 3})
	require.Len(t, a.Geometry.SingularityBoundaryBoxes(), 1)
	u := smt.variables[0].dstIndex
	dst := a.Data(u).(*pdat.SideData)
	// x-face at the vertex row: only C holds it; x = 0.5, y = 0.5625
	assert.InDelta(t, 1.625, dst.Get(0, hier.IntVector{4, 4}, 0), 1.e-12)
	// y-face at the vertex: B and C both hold it; x = 0.5625, y = 0.5, component 1
	assert.InDelta(t, 2.5625, dst.Get(1, hier.IntVector{4, 4}, 0), 1.e-12)
	fine := patchAt(t, ph.Level(1), 0, hier.IntVector{7, 7})
	assert.Len(t, fine.Geometry.SingularityBoundaryBoxes(), 1)
}

func TestThreeBlockVertexEndToEnd(t *testing.T) {
	ctx := context.Background()
	for _, option := range []string{tester.InteriorFromSameLevel, tester.InteriorFromCoarserLevel} {
		ip := threeBlockVertexParameters()
		ip.RefineOption = option
		smt, mbt := newRun(t, ip, 1)
		report, err := mbt.Run(ctx)
		require.NoError(t, err, option)
		assert.True(t, report.Passed, "%s: %v", option, report)
		ph := mbt.Hierarchy()
		require.Equal(t, 2, ph.NumberLevels())
		var singular int
		for _, p := range ph.Level(0).Patches {
			singular += len(p.Geometry.SingularityBoundaryBoxes())
		}
		// one corner patch per block
		assert.Equal(t, 3, singular, option)
		u := smt.variables[0].dstIndex
		a := patchAt(t, ph.Level(0), 0, hier.IntVector{3, 3})
		// A's x-face at the vertex comes from B, where it is the y-face at
		// x = 0.5625, y = 0.5 with B's axis 1 reversed against A's axis 0;
		// A's own field there would be 1.625
		assert.InDelta(t, -2.5625, a.Data(u).(*pdat.SideData).Get(0, hier.IntVector{4, 4}, 0), 1.e-12, option)
		// C's corner at the vertex is singular in its own frame too
		c := patchAt(t, ph.Level(0), 2, hier.IntVector{3, 0})
		assert.Len(t, c.Geometry.SingularityBoundaryBoxes(), 1)
		fine := patchAt(t, ph.Level(1), 0, hier.IntVector{7, 7})
		require.Len(t, fine.Geometry.SingularityBoundaryBoxes(), 1)
		assert.Len(t, fine.Geometry.SingularityBoundaryBoxes()[0].Encon, 2)
	}
	{ // A's own field across the vertex is not what the fill leaves there
		ip := threeBlockVertexParameters()
		smt, mbt := newRun(t, ip, 0)
		require.NoError(t, mbt.BuildHierarchy(ctx))
		ph := mbt.Hierarchy()
		a := patchAt(t, ph.Level(0), 0, hier.IntVector{3, 3})
		for _, v := range smt.variables {
			dst := a.Data(v.dstIndex).(*pdat.SideData)
			dst.Copy(a.Data(v.srcIndex).(*pdat.SideData), dst.GhostBox())
		}
		ok, err := smt.VerifyResults(a, ph, 0, 0)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestTEdgeEndToEnd(t *testing.T) {
	ctx := context.Background()
	for _, option := range []string{tester.InteriorFromSameLevel, tester.InteriorFromCoarserLevel} {
		ip := tEdgeParameters()
		ip.RefineOption = option
		smt, mbt := newRun(t, ip, 1)
		report, err := mbt.Run(ctx)
		require.NoError(t, err, option)
		assert.True(t, report.Passed, "%s: %v", option, report)
		ph := mbt.Hierarchy()
		require.Equal(t, 2, ph.NumberLevels())
		var singular int
		for _, p := range ph.Level(0).Patches {
			for _, bb := range p.Geometry.SingularityBoundaryBoxes() {
				assert.Equal(t, 2, bb.Codim)
				require.Len(t, bb.Encon, 1)
				assert.Equal(t, hier.BlockID(2), bb.Encon[0].Block)
				singular++
			}
		}
		// two patches each of a and b run along the edge
		assert.Equal(t, 4, singular, option)
		assert.NotEmpty(t, ph.Level(1).PatchesInBlock(1))
		// b's reversed axis 0 is the reference -z: its ghost face at (-1,4,1)
		// sits at x = 0.4375, y = 0.1875, z = 0.625 in c, component 2
		u := smt.variables[0].dstIndex
		b := patchAt(t, ph.Level(0), 1, hier.IntVector{0, 3, 0})
		assert.InDelta(t, -4.6875, b.Data(u).(*pdat.SideData).Get(0, hier.IntVector{-1, 4, 1}, 0), 1.e-12, option)
	}
}

// enconConnector relates patch to the level's patches in the given blocks,
// each through its block's transformation.
func enconConnector(level *hier.PatchLevel, patch *hier.Patch, encon ...hier.BlockNeighbor) *hier.Connector {
	conn := hier.NewConnector()
	for _, nb := range encon {
		for _, q := range level.PatchesInBlock(nb.Block) {
			conn.Add(patch.ID, hier.Neighbor{Patch: q, Block: q.Block, Transform: nb.Transform})
		}
	}
	return conn
}

func TestSingularityFill(t *testing.T) {
	ctx := context.Background()
	ip := tJunctionParameters()
	g, err := ip.NewGeometry()
	require.NoError(t, err)
	smt, mbt := newRun(t, ip, 0)
	require.NoError(t, mbt.BuildHierarchy(ctx))
	var (
		level = mbt.Hierarchy().Level(0)
		a     = level.PatchesInBlock(0)[0]
		c     = level.PatchesInBlock(2)[0]
		bb    = a.Geometry.SingularityBoundaryBoxes()[0]
		fill  = bb.GhostRegion(hier.IntVector{2, 2})
		v     = smt.variables[0]
	)
	{ // C, diagonally across the vertex, reproduces the destination-frame field
		require.Len(t, bb.Encon, 1)
		conn := enconConnector(level, a, bb.Encon...)
		require.NoError(t, smt.FillSingularityBoundaryConditions(a, level, conn, fill, bb, g))
		dst := a.Data(v.dstIndex).(*pdat.SideData)
		for axis := 0; axis < 2; axis++ {
			dst.ForEachGhostFace(axis, fill, func(f hier.IntVector) {
				want := faceValue(a.Geometry, tester.SOURCE, axis, faceCenter(axis, f), 0)
				assert.InDelta(t, want, dst.Get(axis, f, 0), 1.e-10, "axis %d face %v", axis, f)
			})
		}
	}
	{ // A face nobody holds aborts the fill: across its face relation B
		// holds only the bottom row of the corner
		var toB hier.BlockNeighbor
		for _, nb := range g.Neighbors(0, 1) {
			if nb.Block == 1 {
				toB = nb
			}
		}
		conn := enconConnector(level, a, toB)
		err := smt.FillSingularityBoundaryConditions(a, level, conn, fill, bb, g)
		assert.ErrorIs(t, err, ErrGeometryContract)
		assert.Contains(t, err.Error(), "holds face")
	}
	{ // Neighbors must share a singularity with the destination block
		conn := enconConnector(level, c, hier.BlockNeighbor{Block: 0, Transform: hier.IdentityTransformation(2)})
		err := smt.FillSingularityBoundaryConditions(c, level, conn, fill, bb, g)
		assert.ErrorIs(t, err, ErrGeometryContract)
		assert.Contains(t, err.Error(), "not a singularity neighbor")
	}
	{ // Only singularity boundary boxes are filled
		phys := a.Geometry.PhysicalBoundaryBoxes()[0]
		err := smt.FillSingularityBoundaryConditions(a, level, enconConnector(level, a, bb.Encon...), fill, phys, g)
		assert.ErrorIs(t, err, ErrGeometryContract)
	}
}

func TestSingularityFillPrecedence(t *testing.T) {
	ctx := context.Background()
	ip := threeBlockVertexParameters()
	ip.MaxPatchSize = 0
	g, err := ip.NewGeometry()
	require.NoError(t, err)
	smt, mbt := newRun(t, ip, 0)
	require.NoError(t, mbt.BuildHierarchy(ctx))
	var (
		level = mbt.Hierarchy().Level(0)
		a     = level.PatchesInBlock(0)[0]
		bb    = a.Geometry.SingularityBoundaryBoxes()[0]
		v     = smt.variables[0]
		face  = hier.IntVector{4, 4}
	)
	conn := enconConnector(level, a, bb.Encon...)
	nbrs := conn.Neighbors(a.ID)
	require.Len(t, nbrs, 2)
	assert.Equal(t, []hier.BlockID{1, 2}, []hier.BlockID{nbrs[0].Block, nbrs[1].Block})
	poke := func(n hier.Neighbor, val float64) {
		axis, f, _ := n.Transform.TransformSide(1, face)
		n.Patch.Data(v.srcIndex).(*pdat.SideData).Set(axis, f, 0, val)
	}
	// B and C both hold the face, C with the normal reversed
	poke(nbrs[0], 42)
	poke(nbrs[1], 99)
	require.NoError(t, smt.FillSingularityBoundaryConditions(a, level, conn, bb.GhostRegion(hier.IntVector{2, 2}), bb, g))
	assert.Equal(t, 42., a.Data(v.dstIndex).(*pdat.SideData).Get(1, face, 0))
	// with C alone the face takes C's value, its normal reversed
	require.NoError(t, smt.FillSingularityBoundaryConditions(a, level, enconConnector(level, a, bb.Encon[1]),
		bb.GhostRegion(hier.IntVector{2, 2}), bb, g))
	assert.Equal(t, -99., a.Data(v.dstIndex).(*pdat.SideData).Get(1, face, 0))
}

func tagged(t *testing.T, smt *SideMultiblockTest, p *hier.Patch, ph *hier.PatchHierarchy, ln, tagIndex int) []hier.IntVector {
	tags := p.Data(tagIndex).(*pdat.CellData[int])
	tags.Fill(0)
	require.NoError(t, smt.TagCellsToRefine(p, ph, ln, tagIndex))
	return tags.Cells(1)
}

func TestTagCellsToRefine(t *testing.T) {
	ctx := context.Background()
	smt, mbt := newRun(t, tJunctionParameters(), 0)
	require.NoError(t, mbt.BuildHierarchy(ctx))
	var (
		ph  = mbt.Hierarchy()
		p   = ph.Level(0).PatchesInBlock(0)[0]
		tag = mbt.TagIndex()
	)
	{ // Boxes
		want := []hier.IntVector{{2, 2}, {3, 2}, {2, 3}, {3, 3}}
		if diff := cmp.Diff(want, tagged(t, smt, p, ph, 0, tag)); diff != "" {
			t.Errorf("tagged cells (-want +got):\n%s", diff)
		}
		assert.Empty(t, tagged(t, smt, p, ph, 1, tag))
	}
	for _, criterion := range []string{TagMagnitude, TagGradient} {
		smt.criterion = criterion
		var prev map[string]bool
		for _, threshold := range []float64{-1, 0.5, 1, 1.5, 2, 2.5, 100, 1000} {
			smt.threshold = threshold
			cells := tagged(t, smt, p, ph, 0, tag)
			set := make(map[string]bool)
			for _, c := range cells {
				set[c.String()] = true
				if prev != nil {
					assert.True(t, prev[c.String()], "%s threshold %g tagged %v", criterion, threshold, c)
				}
			}
			if threshold < 0 {
				assert.Len(t, cells, p.Box.Size())
			}
			if threshold >= 1000 {
				assert.Empty(t, cells)
			}
			prev = set
			// the finest level is never tagged
			assert.Empty(t, tagged(t, smt, p, ph, smt.FinestLevel(), tag))
		}
	}
	{ // Tags need storage
		bare := hier.NewPatch(hier.GlobalID{}, p.Box, p.Block, p.Geometry)
		assert.ErrorIs(t, smt.TagCellsToRefine(bare, ph, 0, tag), ErrConfiguration)
	}
}

func TestPostprocessRefine(t *testing.T) {
	ctx := context.Background()
	ip := twoBlockParameters()
	g, err := ip.NewGeometry()
	require.NoError(t, err)
	smt, mbt := newRun(t, ip, 0)
	require.NoError(t, mbt.BuildHierarchy(ctx))
	var (
		ratio     = hier.IntVector{2, 2}
		fineBox   = hier.NewBox(hier.IntVector{4, 2}, hier.IntVector{7, 5})
		coarseBox = fineBox.Coarsen(ratio)
		fine      = hier.NewPatch(hier.GlobalID{Level: 1}, fineBox, 1, g.PatchGeometry(1, fineBox, 2))
		coarse    = hier.NewPatch(hier.GlobalID{Index: -1}, coarseBox, 1, g.PatchGeometry(1, coarseBox, 1))
		u, w      = smt.variables[0], smt.variables[1]
	)
	vdb := mbt.VariableDatabase()
	for _, v := range smt.variables {
		fine.SetData(v.dstIndex, pdat.NewSideData(fineBox, v.side.Depth(), vdb.Ghosts(v.dstIndex)))
	}
	require.NoError(t, smt.PostprocessRefine(fine, coarse, mbt.Context(tester.DESTINATION), fineBox, ratio))
	sdw := fine.Data(w.dstIndex).(*pdat.SideData)
	for axis := 0; axis < 2; axis++ {
		sdw.ForEachFace(axis, fineBox, func(f hier.IntVector) {
			for d := 0; d < 2; d++ {
				want := faceValue(fine.Geometry, tester.SOURCE, axis, faceCenter(axis, f), d)
				assert.InDelta(t, want, sdw.Get(axis, f, d), 1.e-12)
			}
		})
	}
	// linear refinement is not overwritten
	assert.Equal(t, 0., fine.Data(u.dstIndex).(*pdat.SideData).Get(0, fineBox.Lo, 0))
	// faces outside fineBox are untouched
	assert.Equal(t, 0., sdw.Get(0, fineBox.Lo.Sub(hier.IntVector{1, 0}), 0))
	assert.ErrorIs(t, smt.PostprocessRefine(fine, coarse, mbt.ScratchContext(), fineBox, ratio), ErrConfiguration)
}
