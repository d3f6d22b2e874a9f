package geom

import (
	"fmt"
	"sort"

	"github.com/notargets/mblkcomm/hier"
)

// fanCell is one cell around a junction, reached from the starting cell by
// crossing faces that touch the junction.
type fanCell struct {
	block hier.BlockID
	cell  hier.IntVector
	// side holds, per axis of block, the side of cell the junction lies on:
	// +1 above, -1 below, 0 along the junction.
	side hier.IntVector
	// pos has bit i set when the path crossed the starting block's i-th
	// junction axis an odd number of times.
	pos int
	tr  hier.Transformation // starting block's index space into block's
}

func (fc fanCell) key() string { return fmt.Sprintf("%d:%s:%d", fc.block, fc.cell, fc.pos) }

// fan is what a walk around one junction found.
type fan struct {
	closed bool // every face crossing led into a block
	cells  int  // distinct cells, the starting cell included
	nblock int  // distinct blocks, the starting block included
	blocks []hier.BlockID
	// around holds every cell's block with the first transformation found
	around []hier.BlockNeighbor
	// encon holds the cells reached by crossing every junction axis once,
	// ordered by block
	encon []hier.BlockNeighbor
}

// singular is true for a closed fan whose cells or blocks differ in number
// from the 2^codim of a flat mesh.
func (f fan) singular(codim int) bool {
	n := 1 << codim
	return f.closed && (f.cells != n || f.nblock != n)
}

// walk visits the cells around the junction of block at loc, starting from
// cell, its level-zero cell touching the junction. The walk never passes
// back through the starting cell.
func (g *MultiblockGeometry) walk(block hier.BlockID, cell, loc hier.IntVector) (f fan) {
	var (
		bit    = make(map[int]int)
		start  = fanCell{block: block, cell: cell.Clone(), side: loc.Clone(), tr: hier.IdentityTransformation(g.dim)}
		seen   = map[string]bool{start.key(): true}
		cells  = map[string]bool{start.key(): true}
		blocks = map[hier.BlockID]bool{block: true}
		queue  = []fanCell{start}
	)
	for k, o := range loc {
		if o != 0 {
			bit[k] = 1 << len(bit)
		}
	}
	all := 1<<len(bit) - 1
	f.closed = true
	for len(queue) > 0 {
		fc := queue[0]
		queue = queue[1:]
		for m, s := range fc.side {
			if s == 0 {
				continue
			}
			next, ok := g.cross(fc, m)
			if !ok {
				f.closed = false
				continue
			}
			next.pos = fc.pos ^ bit[fc.tr.Perm[m]]
			cells[fmt.Sprintf("%d:%s:0", next.block, next.cell)] = true
			blocks[next.block] = true
			if seen[next.key()] {
				continue
			}
			seen[next.key()] = true
			if next.block == block && next.cell.Equal(cell) {
				continue
			}
			f.around = addNeighbor(f.around, next.block, next.tr)
			if next.pos == all {
				f.encon = addNeighbor(f.encon, next.block, next.tr)
			}
			queue = append(queue, next)
		}
	}
	f.cells, f.nblock = len(cells), len(blocks)
	for b := range blocks {
		if b != block {
			f.blocks = append(f.blocks, b)
		}
	}
	sort.Slice(f.blocks, func(i, j int) bool { return f.blocks[i] < f.blocks[j] })
	sort.SliceStable(f.encon, func(i, j int) bool { return f.encon[i].Block < f.encon[j].Block })
	return
}

// cross steps from fc over its face along axis m that touches the junction,
// into the same block or a face neighbor. It fails at a physical boundary.
func (g *MultiblockGeometry) cross(fc fanCell, m int) (next fanCell, ok bool) {
	c := fc.cell.Clone()
	c[m] += fc.side[m]
	side := fc.side.Clone()
	side[m] = -side[m]
	if g.Blocks[fc.block].Domain.Contains(c) {
		return fanCell{block: fc.block, cell: c, side: side, tr: fc.tr}, true
	}
	for _, r := range g.faces[fc.block] {
		if !r.box.Contains(c) {
			continue
		}
		ns := make(hier.IntVector, len(side))
		for k := range ns {
			ns[k] = r.tr.Sign[k] * side[r.tr.Perm[k]]
		}
		return fanCell{block: r.block, cell: r.tr.TransformCell(c), side: ns, tr: r.tr.Compose(fc.tr)}, true
	}
	return fanCell{}, false
}
