package sidetest

import (
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/notargets/mblkcomm/InputParameters"
	"github.com/notargets/mblkcomm/hier"
	"github.com/notargets/mblkcomm/pdat"
	"github.com/notargets/mblkcomm/tester"
	"github.com/notargets/mblkcomm/utils"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrGeometryContract = errors.New("geometry contract violation")
)

// Refinement criteria
const (
	TagMagnitude = "MAGNITUDE"
	TagGradient  = "GRADIENT"
	TagBoxes     = "BOXES"
)

type variable struct {
	side                 *pdat.SideVariable
	srcGhosts, dstGhosts hier.IntVector
	refineOperator       string
	exact                bool
	srcIndex, dstIndex   int
}

func (v *variable) index(role tester.Role) int {
	if role == tester.DESTINATION {
		return v.dstIndex
	}
	return v.srcIndex
}

type tagBox struct {
	level int
	block hier.BlockID
	box   hier.Box
}

// SideMultiblockTest checks the transfer of face-normal data across the
// blocks of a multiblock hierarchy. Source patches hold one linear field,
// destination patches another; after a fill pass every destination face must
// hold the source field.
type SideMultiblockTest struct {
	ObjectName string
	Logger     *slog.Logger

	dim          int
	refineOption string
	finestLevel  int
	tolerance    float64
	criterion    string
	threshold    float64
	tagBoxes     []tagBox
	variables    []*variable
	vdb          *hier.VariableDatabase
}

func NewSideMultiblockTest(objectName string, dim int, ip *InputParameters.MultiblockTestParameters,
	refineOption string) (smt *SideMultiblockTest, err error) {
	if ip == nil {
		return nil, fmt.Errorf("%w: %s: no input parameters", ErrConfiguration, objectName)
	}
	bad := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%s: "+format, append([]any{objectName}, args...)...))
	}
	smt = &SideMultiblockTest{
		ObjectName:   objectName,
		Logger:       slog.Default(),
		dim:          dim,
		refineOption: refineOption,
		finestLevel:  ip.FinestLevel,
		tolerance:    ip.Tolerance,
		criterion:    ip.Refinement.Criterion,
		threshold:    ip.Refinement.Threshold,
	}
	if dim < 1 || dim > 3 {
		bad("dimension %d not in 1..3", dim)
	}
	if ip.Dim != 0 && ip.Dim != dim {
		bad("Dim %d inconsistent with dimension %d", ip.Dim, dim)
	}
	switch refineOption {
	case tester.InteriorFromSameLevel, tester.InteriorFromCoarserLevel:
	default:
		bad("RefineOption %q must be %s or %s", refineOption, tester.InteriorFromSameLevel,
			tester.InteriorFromCoarserLevel)
	}
	if ip.FinestLevel < 0 {
		bad("FinestLevel %d is negative", ip.FinestLevel)
	}
	if smt.tolerance == 0 {
		smt.tolerance = utils.VERIFYTOL
	} else if smt.tolerance < 0 {
		bad("Tolerance %g is negative", ip.Tolerance)
	}
	switch smt.criterion {
	case "":
		smt.criterion = TagBoxes
	case TagMagnitude, TagGradient, TagBoxes:
	default:
		bad("Refinement.Criterion %q must be %s, %s or %s", smt.criterion, TagMagnitude, TagGradient, TagBoxes)
	}
	for i, tb := range ip.Refinement.TagBoxes {
		if len(tb.Lo) != dim || len(tb.Hi) != dim {
			bad("Refinement.TagBoxes[%d]: Lo %v and Hi %v must have %d entries", i, tb.Lo, tb.Hi, dim)
			continue
		}
		smt.tagBoxes = append(smt.tagBoxes, tagBox{
			level: tb.Level,
			block: hier.BlockID(tb.Block),
			box:   hier.NewBox(tb.Lo, tb.Hi),
		})
	}
	if len(ip.Variables) == 0 {
		bad("Variables: at least one variable is required")
	}
	names := make(map[string]bool)
	for i, vp := range ip.Variables {
		if vp.Name == "" {
			bad("Variables[%d]: missing Name", i)
			continue
		}
		if names[vp.Name] {
			bad("Variables[%d]: duplicate Name %q", i, vp.Name)
			continue
		}
		names[vp.Name] = true
		v := &variable{refineOperator: vp.RefineOperator}
		depth := vp.Depth
		if depth == 0 {
			depth = 1
		} else if depth < 0 {
			bad("Variables[%d] (%s): Depth %d is negative", i, vp.Name, depth)
		}
		if v.refineOperator == "" {
			v.refineOperator = pdat.ConstantRefineName
		}
		if _, ok := pdat.LookupRefineOperator(v.refineOperator); !ok {
			bad("Variables[%d] (%s): RefineOperator %q must be one of %v", i, vp.Name, v.refineOperator,
				pdat.RefineOperatorNames())
		}
		v.exact = v.refineOperator == pdat.ConstantRefineName
		if vp.ExactRefine != nil {
			v.exact = *vp.ExactRefine
		}
		var e error
		if v.srcGhosts, e = ghostWidth(vp.SrcGhosts, dim); e != nil {
			bad("Variables[%d] (%s): SrcGhosts %v", i, vp.Name, e)
		}
		if v.dstGhosts, e = ghostWidth(vp.DstGhosts, dim); e != nil {
			bad("Variables[%d] (%s): DstGhosts %v", i, vp.Name, e)
		}
		v.side = pdat.NewSideVariable(vp.Name, dim, depth)
		smt.variables = append(smt.variables, v)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return
}

// ghostWidth defaults an absent width to one cell on every axis.
func ghostWidth(w []int, dim int) (g hier.IntVector, err error) {
	if len(w) == 0 {
		return hier.NewIntVector(dim, 1), nil
	}
	if len(w) != dim {
		return nil, fmt.Errorf("%v must have %d entries", w, dim)
	}
	for _, x := range w {
		if x < 0 {
			return nil, fmt.Errorf("%v is negative", w)
		}
	}
	return hier.IntVector(w).Clone(), nil
}

func (smt *SideMultiblockTest) Dim() int             { return smt.dim }
func (smt *SideMultiblockTest) RefineOption() string { return smt.refineOption }
func (smt *SideMultiblockTest) FinestLevel() int     { return smt.finestLevel }

// RegisterVariables declares each variable for both roles. When fine
// interiors come from the coarser level the destination ghosts are widened
// to the refine operator stencil.
func (smt *SideMultiblockTest) RegisterVariables(mbt *tester.MultiblockTester) (err error) {
	vdb := mbt.VariableDatabase()
	for _, v := range smt.variables {
		dst := v.dstGhosts
		if smt.refineOption == tester.InteriorFromCoarserLevel {
			op, _ := pdat.LookupRefineOperator(v.refineOperator)
			dst = dst.Max(hier.NewIntVector(smt.dim, op.StencilWidth()))
		}
		if err = mbt.RegisterVariable(v.side, v.side, v.srcGhosts, dst, v.refineOperator); err != nil {
			return
		}
	}
	if err = smt.bindIndices(vdb, mbt.Context(tester.SOURCE), mbt.Context(tester.DESTINATION)); err != nil {
		return
	}
	smt.vdb = vdb
	return
}

// bindIndices looks up each variable's source and destination data indices.
func (smt *SideMultiblockTest) bindIndices(vdb *hier.VariableDatabase, src, dst *hier.VariableContext) error {
	for _, v := range smt.variables {
		var srcOK, dstOK bool
		v.srcIndex, srcOK = vdb.MapVariableAndContextToIndex(v.side, src)
		v.dstIndex, dstOK = vdb.MapVariableAndContextToIndex(v.side, dst)
		if !srcOK || !dstOK {
			return fmt.Errorf("%w: %s: variable %q has no %s or %s data index",
				tester.ErrRegistration, smt.ObjectName, v.side.Name(), src.Name, dst.Name)
		}
	}
	return nil
}

// sideData returns the variable's data for role on patch.
func (smt *SideMultiblockTest) sideData(patch *hier.Patch, v *variable, role tester.Role) (sd *pdat.SideData, err error) {
	return smt.sideDataAt(patch, v, v.index(role), role.String())
}

func (smt *SideMultiblockTest) sideDataAt(patch *hier.Patch, v *variable, index int, what string) (sd *pdat.SideData, err error) {
	var ok bool
	if patch.HasData(index) {
		sd, ok = patch.Data(index).(*pdat.SideData)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s: variable %q has no %s side data on patch %v",
			ErrConfiguration, smt.ObjectName, v.side.Name(), what, patch.ID)
	}
	return
}
