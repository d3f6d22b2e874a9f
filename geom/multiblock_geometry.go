package geom

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/notargets/mblkcomm/hier"
)

var ErrGeometry = errors.New("invalid multiblock geometry")

// Block is one logically rectangular piece of the mesh. Domain is its
// level-zero cell box in its own index space. ToReference places that index
// space in physical space; blocks whose placed boxes share a face are
// neighbors through their placements unless a Gluing joins them.
type Block struct {
	Name        string
	Domain      hier.Box
	ToReference hier.Transformation
}

// Gluing joins a face of block A to a face of block B. Transform maps A's
// level-zero index space into B's.
type Gluing struct {
	A, B      hier.BlockID
	Transform hier.Transformation
}

// relation is a face neighbor as seen from one block at level zero.
type relation struct {
	block hier.BlockID
	tr    hier.Transformation // this block's index space into the neighbor's
	box   hier.Box            // the neighbor's domain in this block's index space
}

// MultiblockGeometry describes blocks joined face to face by rotations,
// reflections and shifts of their index spaces. Frames need only agree
// across each shared face, so the blocks around a junction may close up
// with more or fewer cells than a flat mesh would; such junctions are
// singularities.
type MultiblockGeometry struct {
	XLo, Dx []float64
	Blocks  []Block
	Gluings []Gluing
	dim     int
	refBox  []hier.Box
	faces   [][]relation
	nbrs    [][]hier.BlockNeighbor
	singNbr [][]hier.BlockID
}

func NewMultiblockGeometry(dim int, XLo, Dx []float64, blocks []Block, gluings ...Gluing) (g *MultiblockGeometry, err error) {
	if dim < 1 || dim > 3 {
		return nil, fmt.Errorf("%w: dimension %d not in 1..3", ErrGeometry, dim)
	}
	if len(XLo) != dim || len(Dx) != dim {
		return nil, fmt.Errorf("%w: XLo %v and Dx %v must have %d entries", ErrGeometry, XLo, Dx, dim)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no blocks", ErrGeometry)
	}
	g = &MultiblockGeometry{
		XLo:     append([]float64(nil), XLo...),
		Dx:      append([]float64(nil), Dx...),
		Blocks:  blocks,
		Gluings: gluings,
		dim:     dim,
		refBox:  make([]hier.Box, len(blocks)),
		faces:   make([][]relation, len(blocks)),
	}
	for b, blk := range blocks {
		if blk.Domain.Dim() != dim || blk.Domain.Empty() {
			err = multierr.Append(err, fmt.Errorf("block %d (%s): domain %v is empty or not %dD", b, blk.Name, blk.Domain, dim))
			continue
		}
		if e := blk.ToReference.Validate(); e != nil || blk.ToReference.Dim() != dim {
			err = multierr.Append(err, fmt.Errorf("block %d (%s): bad transformation %v: %v", b, blk.Name, blk.ToReference, e))
			continue
		}
		g.refBox[b] = blk.ToReference.TransformBox(blk.Domain)
	}
	for i, gl := range gluings {
		switch {
		case gl.A < 0 || int(gl.A) >= len(blocks) || gl.B < 0 || int(gl.B) >= len(blocks):
			err = multierr.Append(err, fmt.Errorf("gluing %d: blocks %d and %d not in 0..%d", i, gl.A, gl.B, len(blocks)-1))
		case gl.A == gl.B:
			err = multierr.Append(err, fmt.Errorf("gluing %d: block %d glued to itself", i, gl.A))
		default:
			if e := gl.Transform.Validate(); e != nil || gl.Transform.Dim() != dim {
				err = multierr.Append(err, fmt.Errorf("gluing %d: bad transformation %v: %v", i, gl.Transform, e))
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeometry, err)
	}
	for b := range blocks {
		for o := b + 1; o < len(blocks); o++ {
			if g.refBox[b].Intersects(g.refBox[o]) {
				err = multierr.Append(err, fmt.Errorf("blocks %d and %d overlap in the reference frame", b, o))
			}
		}
	}
	if err == nil {
		err = g.connect()
	}
	if err == nil {
		err = g.checkConforming()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeometry, err)
	}
	g.findNeighbors()
	return
}

func (g *MultiblockGeometry) Dim() int          { return g.dim }
func (g *MultiblockGeometry) NumberBlocks() int { return len(g.Blocks) }

// SingularityNeighbors lists the blocks sharing a singular junction with block.
func (g *MultiblockGeometry) SingularityNeighbors(block hier.BlockID) []hier.BlockID {
	return g.singNbr[block]
}

func (g *MultiblockGeometry) ratioVector(ratio int) hier.IntVector {
	return hier.NewIntVector(g.dim, ratio)
}

// DomainBox is the block's cell box refined by ratio.
func (g *MultiblockGeometry) DomainBox(block hier.BlockID, ratio int) hier.Box {
	return g.Blocks[block].Domain.Refine(g.ratioVector(ratio))
}

func (g *MultiblockGeometry) ToReference(block hier.BlockID, ratio int) hier.Transformation {
	return g.Blocks[block].ToReference.Refine(ratio)
}

// Neighbors lists the face neighbors of block and the blocks diagonally
// across its regular edges and vertices, at the given ratio.
func (g *MultiblockGeometry) Neighbors(block hier.BlockID, ratio int) (nbrs []hier.BlockNeighbor) {
	nbrs = make([]hier.BlockNeighbor, len(g.nbrs[block]))
	for i, n := range g.nbrs[block] {
		nbrs[i] = hier.BlockNeighbor{Block: n.Block, Transform: n.Transform.Refine(ratio)}
	}
	return
}

// connect records the face relations: each gluing, and each pair of
// unglued blocks whose placed boxes share a face.
func (g *MultiblockGeometry) connect() (err error) {
	type pair struct{ a, b hier.BlockID }
	glued := make(map[pair]bool)
	add := func(a, b hier.BlockID, tr hier.Transformation) {
		g.faces[a] = append(g.faces[a], relation{
			block: b,
			tr:    tr,
			box:   tr.Inverse().TransformBox(g.Blocks[b].Domain),
		})
	}
	for i, gl := range g.Gluings {
		key := pair{min(gl.A, gl.B), max(gl.A, gl.B)}
		if glued[key] {
			err = multierr.Append(err, fmt.Errorf("gluing %d: blocks %d and %d are already glued", i, gl.A, gl.B))
			continue
		}
		glued[key] = true
		add(gl.A, gl.B, gl.Transform)
		add(gl.B, gl.A, gl.Transform.Inverse())
		r := g.faces[gl.A][len(g.faces[gl.A])-1]
		switch domain := g.Blocks[gl.A].Domain; {
		case r.box.Intersects(domain):
			err = multierr.Append(err, fmt.Errorf("gluing %d: block %d overlaps block %d", i, gl.B, gl.A))
		case !faceAdjacent(domain, r.box):
			err = multierr.Append(err, fmt.Errorf("gluing %d: blocks %d and %d do not share a face", i, gl.A, gl.B))
		}
	}
	for a := range g.Blocks {
		for b := a + 1; b < len(g.Blocks); b++ {
			ia, ib := hier.BlockID(a), hier.BlockID(b)
			if glued[pair{ia, ib}] || !faceAdjacent(g.refBox[a], g.refBox[b]) {
				continue
			}
			tr := g.Blocks[b].ToReference.Inverse().Compose(g.Blocks[a].ToReference)
			add(ia, ib, tr)
			add(ib, ia, tr.Inverse())
		}
	}
	return
}

// faceAdjacent reports whether b lies against a face of a.
func faceAdjacent(a, b hier.Box) bool {
	for axis := 0; axis < a.Dim(); axis++ {
		if a.Grow(unit(a.Dim(), axis)).Intersects(b) {
			return true
		}
	}
	return false
}

func unit(dim, axis int) (v hier.IntVector) {
	v = hier.NewIntVector(dim, 0)
	v[axis] = 1
	return
}

// checkConforming requires every block face to be covered entirely or not
// at all, by neighbors that do not overlap.
func (g *MultiblockGeometry) checkConforming() (err error) {
	for b, blk := range g.Blocks {
		for axis := 0; axis < g.dim; axis++ {
			for _, side := range []int{-1, 1} {
				var (
					strip   = faceStrip(blk.Domain, axis, side)
					covered int
					overlap bool
				)
				strip.ForEach(func(c hier.IntVector) {
					var n int
					for _, r := range g.faces[b] {
						if r.box.Contains(c) {
							n++
						}
					}
					if n > 0 {
						covered++
					}
					overlap = overlap || n > 1
				})
				if overlap {
					err = multierr.Append(err, fmt.Errorf("block %d (%s): neighbors overlap beyond face %+d along axis %d",
						b, blk.Name, side, axis))
				}
				if covered != 0 && covered != strip.Size() {
					err = multierr.Append(err, fmt.Errorf("block %d (%s): face %+d along axis %d is partially shared",
						b, blk.Name, side, axis))
				}
			}
		}
	}
	return
}

// faceStrip is the layer of cells just outside box on one side along axis.
func faceStrip(box hier.Box, axis, side int) (strip hier.Box) {
	strip = hier.NewBox(box.Lo, box.Hi)
	if side < 0 {
		strip.Lo[axis]--
		strip.Hi[axis] = strip.Lo[axis]
	} else {
		strip.Hi[axis]++
		strip.Lo[axis] = strip.Hi[axis]
	}
	return
}

// findNeighbors walks every edge and vertex junction of every block. Blocks
// met at regular junctions become neighbors; blocks met at singular ones
// become singularity neighbors.
func (g *MultiblockGeometry) findNeighbors() {
	g.nbrs = make([][]hier.BlockNeighbor, len(g.Blocks))
	g.singNbr = make([][]hier.BlockID, len(g.Blocks))
	for b, blk := range g.Blocks {
		var (
			id       = hier.BlockID(b)
			nbrs     []hier.BlockNeighbor
			singular = make(map[hier.BlockID]bool)
		)
		for _, r := range g.faces[b] {
			nbrs = addNeighbor(nbrs, r.block, r.tr)
		}
		forEachLocation(g.dim, func(loc hier.IntVector) {
			codim := codimension(loc)
			if codim < 2 {
				return
			}
			junctionCells(blk.Domain, loc).ForEach(func(c hier.IntVector) {
				f := g.walk(id, c, loc)
				if f.singular(codim) {
					for _, o := range f.blocks {
						singular[o] = true
					}
					return
				}
				for _, n := range f.around {
					nbrs = addNeighbor(nbrs, n.Block, n.Transform)
				}
			})
		})
		sort.SliceStable(nbrs, func(i, j int) bool { return nbrs[i].Block < nbrs[j].Block })
		g.nbrs[b] = nbrs
		for o := range singular {
			g.singNbr[b] = append(g.singNbr[b], o)
		}
		sort.Slice(g.singNbr[b], func(i, j int) bool { return g.singNbr[b][i] < g.singNbr[b][j] })
	}
}

func addNeighbor(nbrs []hier.BlockNeighbor, block hier.BlockID, tr hier.Transformation) []hier.BlockNeighbor {
	for _, n := range nbrs {
		if n.Block == block && n.Transform.Equal(tr) {
			return nbrs
		}
	}
	return append(nbrs, hier.BlockNeighbor{Block: block, Transform: tr})
}

// junctionCells are the cells of box along its edge or vertex at loc.
func junctionCells(box hier.Box, loc hier.IntVector) (jc hier.Box) {
	jc = hier.NewBox(box.Lo, box.Hi)
	for k, o := range loc {
		switch {
		case o < 0:
			jc.Hi[k] = jc.Lo[k]
		case o > 0:
			jc.Lo[k] = jc.Hi[k]
		}
	}
	return
}

func codimension(loc hier.IntVector) (codim int) {
	for _, o := range loc {
		if o != 0 {
			codim++
		}
	}
	return
}

// PatchGeometry builds the mapping and boundary boxes for a patch of block
// covering box at the given ratio to level zero.
func (g *MultiblockGeometry) PatchGeometry(block hier.BlockID, box hier.Box, ratio int) (pg *hier.PatchGeometry) {
	dx := make([]float64, g.dim)
	for k := range dx {
		dx[k] = g.Dx[k] / float64(ratio)
	}
	pg = &hier.PatchGeometry{
		Mapping: hier.BlockMapping{
			XLo:         g.XLo,
			Dx:          dx,
			ToReference: g.ToReference(block, ratio),
		},
		Ratio: g.ratioVector(ratio),
	}
	var (
		domain = g.DomainBox(block, ratio)
		nbrs   = g.Neighbors(block, ratio)
	)
	forEachLocation(g.dim, func(loc hier.IntVector) {
		var (
			codim    int
			touching = true
			bbox     = hier.NewBox(box.Lo, box.Hi)
			cell     = make(hier.IntVector, g.dim) // level-zero cell of the patch at loc
		)
		for k, o := range loc {
			cell[k] = hier.FloorDiv(box.Lo[k], ratio)
			switch {
			case o < 0:
				touching = touching && box.Lo[k] == domain.Lo[k]
				bbox.Lo[k], bbox.Hi[k] = box.Lo[k]-1, box.Lo[k]-1
			case o > 0:
				touching = touching && box.Hi[k] == domain.Hi[k]
				bbox.Lo[k], bbox.Hi[k] = box.Hi[k]+1, box.Hi[k]+1
				cell[k] = hier.FloorDiv(box.Hi[k], ratio)
			default:
				continue
			}
			codim++
		}
		// a corner of a patch inside the block along some axis still bounds
		// the domain when the cells beyond it are outside every block
		if domain.Intersects(bbox) {
			return
		}
		bb := hier.BoundaryBox{Box: bbox, Location: loc.Clone(), Codim: codim}
		if touching && codim > 1 {
			if f := g.walk(block, cell, loc); f.singular(codim) {
				bb.Kind, bb.Blocks = hier.SingularityBoundary, f.blocks
				for _, n := range f.encon {
					bb.Encon = append(bb.Encon, hier.BlockNeighbor{Block: n.Block, Transform: n.Transform.Refine(ratio)})
				}
				pg.BoundaryBoxes = append(pg.BoundaryBoxes, bb)
				return
			}
		}
		for _, n := range nbrs {
			if n.Transform.Inverse().TransformBox(g.DomainBox(n.Block, ratio)).Intersects(bbox) {
				return
			}
		}
		bb.Kind = hier.PhysicalBoundary
		pg.BoundaryBoxes = append(pg.BoundaryBoxes, bb)
	})
	return
}

// forEachLocation visits every nonzero vector in {-1,0,1}^dim.
func forEachLocation(dim int, fn func(loc hier.IntVector)) {
	lo, hi := hier.NewIntVector(dim, -1), hier.NewIntVector(dim, 1)
	hier.NewBox(lo, hi).ForEach(func(loc hier.IntVector) {
		for _, o := range loc {
			if o != 0 {
				fn(loc)
				return
			}
		}
	})
}
