package tester

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/google/uuid"

	"github.com/notargets/mblkcomm/hier"
	"github.com/notargets/mblkcomm/pdat"
)

// Role selects which analytic field a patch is initialized with.
type Role uint8

const (
	SOURCE Role = iota
	DESTINATION
)

func (r Role) String() string {
	switch r {
	case SOURCE:
		return "SOURCE"
	case DESTINATION:
		return "DESTINATION"
	}
	return fmt.Sprintf("Role(%d)", r)
}

// Refine options: where fine destination interiors come from.
const (
	InteriorFromSameLevel    = "INTERIOR_FROM_SAME_LEVEL"
	InteriorFromCoarserLevel = "INTERIOR_FROM_COARSER_LEVEL"
)

var ErrRegistration = errors.New("variable registration")

// Strategy is the set of callbacks a MultiblockTester drives. Every method
// runs on the calling goroutine; per-patch calls may run concurrently for
// distinct patches.
type Strategy interface {
	RegisterVariables(mbt *MultiblockTester) error
	InitializeDataOnPatch(patch *hier.Patch, hierarchy *hier.PatchHierarchy, levelNumber int,
		block hier.BlockID, role Role) error
	SetPhysicalBoundaryConditions(patch *hier.Patch, time float64, gcw hier.IntVector) error
	// FillSingularityBoundaryConditions fills the ghost faces of fillBox, a
	// piece of the ghost region at the singular boundary box bbox, from the
	// patches of enconLevel related to patch by dstToEncon.
	FillSingularityBoundaryConditions(patch *hier.Patch, enconLevel *hier.PatchLevel,
		dstToEncon *hier.Connector, fillBox hier.Box, bbox hier.BoundaryBox, gg hier.GridGeometry) error
	TagCellsToRefine(patch *hier.Patch, hierarchy *hier.PatchHierarchy, levelNumber, tagIndex int) error
	PostprocessRefine(fine, coarse *hier.Patch, ctx *hier.VariableContext, fineBox hier.Box,
		ratio hier.IntVector) error
	VerifyResults(patch *hier.Patch, hierarchy *hier.PatchHierarchy, levelNumber int,
		block hier.BlockID) (bool, error)
}

// Geometry is what the tester needs from a multiblock grid geometry.
type Geometry interface {
	hier.GridGeometry
	PatchGeometry(block hier.BlockID, box hier.Box, ratio int) *hier.PatchGeometry
}

type Config struct {
	RefineOption    string
	FinestLevel     int
	RefinementRatio int
	MaxPatchSize    int // zero leaves blocks whole
	Workers         int // zero uses every CPU
}

type registration struct {
	src, dst                           *pdat.SideVariable
	srcGhosts, dstGhosts               hier.IntVector
	op                                 pdat.RefineOperator
	srcIndex, dstIndex, scratchIndex int
}

// MultiblockTester builds a hierarchy over a multiblock geometry, fills
// destination data from source data through same-block, inter-block,
// singularity and coarse-fine transfers, and asks a Strategy to verify it.
type MultiblockTester struct {
	Name   string
	Config Config
	Logger *slog.Logger
	RunID  uuid.UUID

	geometry  Geometry
	strategy  Strategy
	vdb       *hier.VariableDatabase
	contexts  map[Role]*hier.VariableContext
	scratch   *hier.VariableContext
	tagIndex  int
	variables []*registration
	frozen    bool
	hierarchy *hier.PatchHierarchy
	parents   map[hier.GlobalID]*hier.Patch
}

func NewMultiblockTester(name string, cfg Config, gg Geometry, strategy Strategy) (mbt *MultiblockTester, err error) {
	switch cfg.RefineOption {
	case InteriorFromSameLevel, InteriorFromCoarserLevel:
	default:
		return nil, fmt.Errorf("%s: unknown refine option %q", name, cfg.RefineOption)
	}
	if cfg.RefinementRatio < 2 {
		return nil, fmt.Errorf("%s: refinement ratio %d must be at least 2", name, cfg.RefinementRatio)
	}
	mbt = &MultiblockTester{
		Name:     name,
		Config:   cfg,
		Logger:   slog.Default(),
		RunID:    uuid.New(),
		geometry: gg,
		strategy: strategy,
		vdb:      hier.NewVariableDatabase(),
		parents:  make(map[hier.GlobalID]*hier.Patch),
	}
	mbt.contexts = map[Role]*hier.VariableContext{
		SOURCE:      mbt.vdb.GetContext("SOURCE"),
		DESTINATION: mbt.vdb.GetContext("DESTINATION"),
	}
	mbt.scratch = mbt.vdb.GetContext("SCRATCH")
	tag := pdat.NewCellVariable("TAG", gg.Dim())
	if mbt.tagIndex, err = mbt.vdb.RegisterVariableAndContext(tag, mbt.vdb.GetContext("TAG"),
		hier.NewIntVector(gg.Dim(), 0)); err != nil {
		return nil, err
	}
	if err = strategy.RegisterVariables(mbt); err != nil {
		return nil, err
	}
	if len(mbt.variables) == 0 {
		return nil, fmt.Errorf("%w: %s: strategy registered no variables", ErrRegistration, name)
	}
	mbt.frozen = true
	return
}

func (mbt *MultiblockTester) VariableDatabase() *hier.VariableDatabase { return mbt.vdb }
func (mbt *MultiblockTester) Context(role Role) *hier.VariableContext  { return mbt.contexts[role] }
func (mbt *MultiblockTester) ScratchContext() *hier.VariableContext    { return mbt.scratch }
func (mbt *MultiblockTester) RefineOption() string                     { return mbt.Config.RefineOption }
func (mbt *MultiblockTester) Hierarchy() *hier.PatchHierarchy          { return mbt.hierarchy }
func (mbt *MultiblockTester) TagIndex() int                            { return mbt.tagIndex }

// RegisterVariable declares a variable whose destination data, registered
// with dstGhosts, is filled from its source data. The source ghost width is
// widened as needed to feed refineOp on finer levels. Registering the same
// variable again with the same parameters does nothing.
func (mbt *MultiblockTester) RegisterVariable(src, dst *pdat.SideVariable, srcGhosts, dstGhosts hier.IntVector,
	refineOp string) (err error) {
	if mbt.frozen {
		return fmt.Errorf("%w: %s: variable %q registered after setup", ErrRegistration, mbt.Name, src.Name())
	}
	op, ok := pdat.LookupRefineOperator(refineOp)
	if !ok {
		return fmt.Errorf("%w: %s: variable %q: unknown refine operator %q, have %v",
			ErrRegistration, mbt.Name, src.Name(), refineOp, pdat.RefineOperatorNames())
	}
	dim := mbt.geometry.Dim()
	if src.Dim() != dim || dst.Dim() != dim || len(srcGhosts) != dim || len(dstGhosts) != dim {
		return fmt.Errorf("%w: %s: variable %q is not %dD", ErrRegistration, mbt.Name, src.Name(), dim)
	}
	if src.Depth() != dst.Depth() {
		return fmt.Errorf("%w: %s: variable %q: source depth %d, destination depth %d",
			ErrRegistration, mbt.Name, src.Name(), src.Depth(), dst.Depth())
	}
	for _, r := range mbt.variables {
		if r.src.Name() != src.Name() && r.dst.Name() != dst.Name() {
			continue
		}
		if r.src == src && r.dst == dst && r.srcGhosts.Equal(srcGhosts) && r.dstGhosts.Equal(dstGhosts) &&
			r.op.Name() == op.Name() {
			return nil
		}
		return fmt.Errorf("%w: %s: variable %q conflicts with an earlier registration",
			ErrRegistration, mbt.Name, src.Name())
	}
	var (
		ratio   = mbt.Config.RefinementRatio
		stencil = hier.NewIntVector(dim, op.StencilWidth())
		need    = make(hier.IntVector, dim)
	)
	for k := range need {
		need[k] = (dstGhosts[k]+ratio-1)/ratio + stencil[k]
	}
	r := &registration{
		src: src, dst: dst,
		srcGhosts: srcGhosts.Clone(), dstGhosts: dstGhosts.Clone(),
		op: op,
	}
	if r.srcIndex, err = mbt.vdb.RegisterVariableAndContext(src, mbt.contexts[SOURCE], srcGhosts.Max(need)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRegistration, mbt.Name, err)
	}
	if r.dstIndex, err = mbt.vdb.RegisterVariableAndContext(dst, mbt.contexts[DESTINATION], dstGhosts); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRegistration, mbt.Name, err)
	}
	if r.scratchIndex, err = mbt.vdb.RegisterVariableAndContext(dst, mbt.scratch, stencil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRegistration, mbt.Name, err)
	}
	mbt.variables = append(mbt.variables, r)
	mbt.Logger.Debug("registered variable", "tester", mbt.Name, "variable", src.Name(),
		"operator", op.Name(), "srcGhosts", mbt.vdb.Ghosts(r.srcIndex), "dstGhosts", dstGhosts)
	return nil
}

func (mbt *MultiblockTester) workers() int {
	if mbt.Config.Workers > 0 {
		return mbt.Config.Workers
	}
	return runtime.NumCPU()
}

// maxDestinationGhosts is the widest destination ghost width of any variable.
func (mbt *MultiblockTester) maxDestinationGhosts() (gcw hier.IntVector) {
	gcw = hier.NewIntVector(mbt.geometry.Dim(), 0)
	for _, r := range mbt.variables {
		gcw = gcw.Max(mbt.vdb.Ghosts(r.dstIndex))
	}
	return
}
