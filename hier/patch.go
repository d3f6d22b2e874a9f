package hier

import (
	"fmt"
	"sort"
)

// PatchData is storage for one variable on one patch.
type PatchData interface {
	Box() Box
	GhostBox() Box
	Ghosts() IntVector
}

type BoundaryKind uint8

const (
	PhysicalBoundary BoundaryKind = iota
	SingularityBoundary
)

func (bk BoundaryKind) String() string {
	switch bk {
	case PhysicalBoundary:
		return "physical"
	case SingularityBoundary:
		return "singularity"
	}
	return fmt.Sprintf("BoundaryKind(%d)", bk)
}

// BoundaryBox is the width-one layer of cells just outside a patch at one
// location. Location holds -1, 0 or +1 per axis, Codim counts the nonzeros.
type BoundaryBox struct {
	Box      Box
	Location IntVector
	Codim    int
	Kind     BoundaryKind
	Blocks   []BlockID // other blocks meeting at a singularity, ascending
	// Encon holds the junction blocks whose cells lie diagonally across a
	// singularity, each with the map from the patch's index space into its
	// own. Ordered by block.
	Encon []BlockNeighbor
}

func (bb BoundaryBox) IsSingularity() bool { return bb.Kind == SingularityBoundary }

// GhostRegion extends the boundary box outward by gcw along its normal axes.
func (bb BoundaryBox) GhostRegion(gcw IntVector) (r Box) {
	r = NewBox(bb.Box.Lo, bb.Box.Hi)
	for k, o := range bb.Location {
		switch {
		case o < 0:
			r.Lo[k] = bb.Box.Hi[k] - gcw[k] + 1
		case o > 0:
			r.Hi[k] = bb.Box.Lo[k] + gcw[k] - 1
		}
	}
	return
}

// BlockMapping places a block's index space in physical space:
// x = XLo + Dx * ToReference(p).
type BlockMapping struct {
	XLo, Dx     []float64
	ToReference Transformation
}

// PatchGeometry carries the physical mapping and boundary boxes of a patch.
type PatchGeometry struct {
	Mapping       BlockMapping
	Ratio         IntVector // to level zero
	BoundaryBoxes []BoundaryBox
}

func (pg *PatchGeometry) Coordinates(p []float64) (x []float64) {
	ref := pg.Mapping.ToReference.ApplyPoint(p)
	x = make([]float64, len(ref))
	for k := range ref {
		x[k] = pg.Mapping.XLo[k] + pg.Mapping.Dx[k]*ref[k]
	}
	return
}

// FaceCoordinates is the physical center of the face normal to axis at f.
func (pg *PatchGeometry) FaceCoordinates(axis int, f IntVector) []float64 {
	p := make([]float64, len(f))
	for k := range f {
		p[k] = float64(f[k])
		if k != axis {
			p[k] += 0.5
		}
	}
	return pg.Coordinates(p)
}

func (pg *PatchGeometry) CellCoordinates(c IntVector) []float64 {
	p := make([]float64, len(c))
	for k := range c {
		p[k] = float64(c[k]) + 0.5
	}
	return pg.Coordinates(p)
}

// Direction is the reference axis and sign of a local axis.
func (pg *PatchGeometry) Direction(axis int) (refAxis, sign int) {
	return pg.Mapping.ToReference.NormalAxis(axis)
}

// CellWidth is the physical width of a cell along a local axis.
func (pg *PatchGeometry) CellWidth(axis int) float64 {
	refAxis, _ := pg.Direction(axis)
	return pg.Mapping.Dx[refAxis]
}

func (pg *PatchGeometry) boundaries(kind BoundaryKind) (bbs []BoundaryBox) {
	for _, bb := range pg.BoundaryBoxes {
		if bb.Kind == kind {
			bbs = append(bbs, bb)
		}
	}
	return
}

func (pg *PatchGeometry) PhysicalBoundaryBoxes() []BoundaryBox {
	return pg.boundaries(PhysicalBoundary)
}

func (pg *PatchGeometry) SingularityBoundaryBoxes() []BoundaryBox {
	return pg.boundaries(SingularityBoundary)
}

// GlobalID identifies a patch within a hierarchy.
type GlobalID struct {
	Level, Index int
}

func (g GlobalID) String() string { return fmt.Sprintf("L%d:P%d", g.Level, g.Index) }

type Patch struct {
	ID       GlobalID
	Box      Box
	Block    BlockID
	Geometry *PatchGeometry
	data     map[int]PatchData
}

func NewPatch(id GlobalID, box Box, block BlockID, pg *PatchGeometry) *Patch {
	return &Patch{
		ID:       id,
		Box:      box,
		Block:    block,
		Geometry: pg,
		data:     make(map[int]PatchData),
	}
}

func (p *Patch) Dim() int { return p.Box.Dim() }

func (p *Patch) SetData(index int, pd PatchData) { p.data[index] = pd }

func (p *Patch) Data(index int) PatchData { return p.data[index] }

func (p *Patch) HasData(index int) bool {
	_, ok := p.data[index]
	return ok
}

type PatchLevel struct {
	Number  int
	Ratio   IntVector // to level zero
	Patches []*Patch
}

func NewPatchLevel(number int, ratio IntVector) *PatchLevel {
	return &PatchLevel{Number: number, Ratio: ratio.Clone()}
}

func (pl *PatchLevel) AddPatch(box Box, block BlockID, pg *PatchGeometry) (p *Patch) {
	p = NewPatch(GlobalID{Level: pl.Number, Index: len(pl.Patches)}, box, block, pg)
	pl.Patches = append(pl.Patches, p)
	return
}

func (pl *PatchLevel) PatchesInBlock(block BlockID) (ps []*Patch) {
	for _, p := range pl.Patches {
		if p.Block == block {
			ps = append(ps, p)
		}
	}
	return
}

// BlockNeighbor is another block as seen from a block. Transform maps the
// block's index space into the neighbor's.
type BlockNeighbor struct {
	Block     BlockID
	Transform Transformation
}

// GridGeometry is what patch strategies may ask of the multiblock geometry.
type GridGeometry interface {
	Dim() int
	NumberBlocks() int
	SingularityNeighbors(block BlockID) []BlockID
	// DomainBox is the block's cell box at the given ratio to level zero.
	DomainBox(block BlockID, ratio int) Box
	// Neighbors lists the blocks that fill ghost cells of block outside its
	// singularities, ordered by block.
	Neighbors(block BlockID, ratio int) []BlockNeighbor
}

type PatchHierarchy struct {
	Geometry GridGeometry
	Levels   []*PatchLevel
}

func NewPatchHierarchy(gg GridGeometry) *PatchHierarchy {
	return &PatchHierarchy{Geometry: gg}
}

func (ph *PatchHierarchy) Dim() int { return ph.Geometry.Dim() }

func (ph *PatchHierarchy) NumberLevels() int { return len(ph.Levels) }

func (ph *PatchHierarchy) Level(ln int) *PatchLevel {
	if ln < 0 || ln >= len(ph.Levels) {
		return nil
	}
	return ph.Levels[ln]
}

func (ph *PatchHierarchy) AddLevel(pl *PatchLevel) {
	pl.Number = len(ph.Levels)
	ph.Levels = append(ph.Levels, pl)
}

// Neighbor is one patch related to a base patch, with the transformation
// from the base patch's index space into the neighbor's.
type Neighbor struct {
	Patch     *Patch
	Block     BlockID
	Transform Transformation
}

// Connector relates patches on a base level to patches on a head level.
// Neighbors of a base patch are kept ordered by block id then patch index.
type Connector struct {
	neighbors map[GlobalID][]Neighbor
}

func NewConnector() *Connector {
	return &Connector{neighbors: make(map[GlobalID][]Neighbor)}
}

func (c *Connector) Add(base GlobalID, n Neighbor) {
	nbrs := append(c.neighbors[base], n)
	sort.SliceStable(nbrs, func(i, j int) bool {
		if nbrs[i].Block != nbrs[j].Block {
			return nbrs[i].Block < nbrs[j].Block
		}
		return nbrs[i].Patch.ID.Index < nbrs[j].Patch.ID.Index
	})
	c.neighbors[base] = nbrs
}

func (c *Connector) Neighbors(base GlobalID) []Neighbor {
	return c.neighbors[base]
}
