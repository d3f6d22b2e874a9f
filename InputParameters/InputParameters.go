package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"

	"github.com/notargets/mblkcomm/geom"
	"github.com/notargets/mblkcomm/hier"
	"github.com/notargets/mblkcomm/utils"
)

// Parameters obtained from the YAML input file
type MultiblockTestParameters struct {
	Title           string               `json:"Title"`
	Dim             int                  `json:"Dim"`
	RefineOption    string               `json:"RefineOption"`
	FinestLevel     int                  `json:"FinestLevel"`
	RefinementRatio int                  `json:"RefinementRatio"`
	MaxPatchSize    int                  `json:"MaxPatchSize"`
	Tolerance       float64              `json:"Tolerance"`
	Workers         int                  `json:"Workers"`
	Geometry        GeometryParameters   `json:"Geometry"`
	Variables       []VariableParameters `json:"Variables"`
	Refinement      RefinementParameters `json:"Refinement"`
}

type GeometryParameters struct {
	XLo       []float64          `json:"XLo"`
	Dx        []float64          `json:"Dx"`
	Blocks    []BlockParameters  `json:"Blocks"`
	Neighbors []GluingParameters `json:"Neighbors"`
}

// BlockParameters places a block in the reference index space either by a
// quarter-turn Rotation (2D) or by an explicit Perm and Sign, then Offset.
type BlockParameters struct {
	Name     string `json:"Name"`
	Lo       []int  `json:"Lo"`
	Hi       []int  `json:"Hi"`
	Rotation int    `json:"Rotation"`
	Perm     []int  `json:"Perm"`
	Sign     []int  `json:"Sign"`
	Offset   []int  `json:"Offset"`
}

// GluingParameters joins a face of Blocks[0] to a face of Blocks[1], overriding
// what their placements imply. The transformation maps the first block's index
// space into the second's.
type GluingParameters struct {
	Blocks   []int `json:"Blocks"`
	Rotation int   `json:"Rotation"`
	Perm     []int `json:"Perm"`
	Sign     []int `json:"Sign"`
	Offset   []int `json:"Offset"`
}

type VariableParameters struct {
	Name           string `json:"Name"`
	Depth          int    `json:"Depth"`
	SrcGhosts      []int  `json:"SrcGhosts"`
	DstGhosts      []int  `json:"DstGhosts"`
	RefineOperator string `json:"RefineOperator"`
	ExactRefine    *bool  `json:"ExactRefine"` // defaults by operator when absent
}

type RefinementParameters struct {
	Criterion string          `json:"Criterion"`
	Threshold float64         `json:"Threshold"`
	TagBoxes  []TagBoxSetting `json:"TagBoxes"`
}

type TagBoxSetting struct {
	Level int   `json:"Level"`
	Block int   `json:"Block"`
	Lo    []int `json:"Lo"`
	Hi    []int `json:"Hi"`
}

func (ip *MultiblockTestParameters) Parse(data []byte) (err error) {
	if err = yaml.Unmarshal(data, ip); err != nil {
		return
	}
	ip.setDefaults()
	return
}

func (ip *MultiblockTestParameters) setDefaults() {
	if ip.RefineOption == "" {
		ip.RefineOption = "INTERIOR_FROM_SAME_LEVEL"
	}
	if ip.RefinementRatio == 0 {
		ip.RefinementRatio = 2
	}
	if ip.Tolerance == 0 {
		ip.Tolerance = utils.VERIFYTOL
	}
	if ip.Refinement.Criterion == "" {
		ip.Refinement.Criterion = "BOXES"
	}
}

func (ip *MultiblockTestParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d]\t\t\t\t= Dimension\n", ip.Dim)
	fmt.Printf("[%s]\t= RefineOption\n", ip.RefineOption)
	fmt.Printf("[%d]\t\t\t\t= Finest Level\n", ip.FinestLevel)
	fmt.Printf("[%d]\t\t\t\t= Refinement Ratio\n", ip.RefinementRatio)
	fmt.Printf("%8.2e\t\t= Tolerance\n", ip.Tolerance)
	fmt.Printf("[%s %g]\t\t= Tag Criterion, Threshold\n", ip.Refinement.Criterion, ip.Refinement.Threshold)
	for b, blk := range ip.Geometry.Blocks {
		fmt.Printf("Block[%d] %s = %v..%v\n", b, blk.Name, blk.Lo, blk.Hi)
	}
	for _, n := range ip.Geometry.Neighbors {
		fmt.Printf("Neighbors%v = rotation %d, perm %v, sign %v, offset %v\n", n.Blocks, n.Rotation, n.Perm,
			n.Sign, n.Offset)
	}
	for _, v := range ip.Variables {
		fmt.Printf("Variable[%s] = depth %d, ghosts %v/%v, %s\n", v.Name, v.Depth, v.SrcGhosts, v.DstGhosts,
			v.RefineOperator)
	}
}

// NewGeometry builds the multiblock geometry described by the parameters.
func (ip *MultiblockTestParameters) NewGeometry() (g *geom.MultiblockGeometry, err error) {
	var (
		dim     = ip.Dim
		blocks  = make([]geom.Block, len(ip.Geometry.Blocks))
		gluings = make([]geom.Gluing, len(ip.Geometry.Neighbors))
	)
	for b, bp := range ip.Geometry.Blocks {
		if len(bp.Lo) != dim || len(bp.Hi) != dim {
			return nil, fmt.Errorf("%w: block %d (%s): Lo %v and Hi %v must have %d entries",
				geom.ErrGeometry, b, bp.Name, bp.Lo, bp.Hi, dim)
		}
		tr, err := transformation(dim, bp.Rotation, bp.Perm, bp.Sign, bp.Offset)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d (%s): %v", geom.ErrGeometry, b, bp.Name, err)
		}
		blocks[b] = geom.Block{
			Name:        bp.Name,
			Domain:      hier.NewBox(bp.Lo, bp.Hi),
			ToReference: tr,
		}
	}
	for i, np := range ip.Geometry.Neighbors {
		if len(np.Blocks) != 2 {
			return nil, fmt.Errorf("%w: neighbors %d: Blocks %v must name two blocks", geom.ErrGeometry, i, np.Blocks)
		}
		tr, err := transformation(dim, np.Rotation, np.Perm, np.Sign, np.Offset)
		if err != nil {
			return nil, fmt.Errorf("%w: neighbors %d: %v", geom.ErrGeometry, i, err)
		}
		gluings[i] = geom.Gluing{A: hier.BlockID(np.Blocks[0]), B: hier.BlockID(np.Blocks[1]), Transform: tr}
	}
	return geom.NewMultiblockGeometry(dim, ip.Geometry.XLo, ip.Geometry.Dx, blocks, gluings...)
}

// transformation is an explicit Perm and Sign, or a 2D quarter-turn
// Rotation, followed by Offset.
func transformation(dim, rotation int, perm, sign, offset []int) (tr hier.Transformation, err error) {
	off := hier.NewIntVector(dim, 0)
	if len(offset) != 0 {
		off = hier.IntVector(offset)
	}
	switch {
	case len(perm) != 0:
		tr = hier.Transformation{Perm: perm, Sign: sign, Offset: off}
	case rotation != 0:
		if dim != 2 {
			return tr, fmt.Errorf("Rotation needs a 2D geometry")
		}
		tr = hier.Rotation2D(rotation, off)
	default:
		tr = hier.IdentityTransformation(dim)
		tr.Offset = off
	}
	return
}
