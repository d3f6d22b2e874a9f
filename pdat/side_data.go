package pdat

import (
	"fmt"

	"github.com/notargets/mblkcomm/hier"
)

// SideVariable is a face-normal quantity: one value per face per component,
// on faces normal to every axis.
type SideVariable struct {
	name       string
	dim, depth int
}

func NewSideVariable(name string, dim, depth int) *SideVariable {
	return &SideVariable{name: name, dim: dim, depth: depth}
}

func (v *SideVariable) Name() string { return v.name }
func (v *SideVariable) Dim() int     { return v.dim }
func (v *SideVariable) Depth() int   { return v.depth }

// SideData stores a SideVariable on one patch. Faces normal to axis a live in
// the ghost box with its upper bound along a extended by one.
type SideData struct {
	box    hier.Box
	ghosts hier.IntVector
	depth  int
	data   [][]float64 // [axis][depth*faces]
}

func NewSideData(box hier.Box, depth int, ghosts hier.IntVector) (sd *SideData) {
	sd = &SideData{
		box:    box,
		ghosts: ghosts.Clone(),
		depth:  depth,
		data:   make([][]float64, box.Dim()),
	}
	for axis := range sd.data {
		sd.data[axis] = make([]float64, depth*sd.GhostSideBox(axis).Size())
	}
	return
}

func (sd *SideData) Box() hier.Box          { return sd.box }
func (sd *SideData) GhostBox() hier.Box     { return sd.box.Grow(sd.ghosts) }
func (sd *SideData) Ghosts() hier.IntVector { return sd.ghosts }
func (sd *SideData) Depth() int             { return sd.depth }
func (sd *SideData) Dim() int               { return sd.box.Dim() }

func (sd *SideData) SideBox(axis int) hier.Box      { return sd.box.SideBox(axis) }
func (sd *SideData) GhostSideBox(axis int) hier.Box { return sd.GhostBox().SideBox(axis) }

func (sd *SideData) index(axis int, f hier.IntVector, d int) int {
	gb := sd.GhostSideBox(axis)
	if !gb.Contains(f) || d < 0 || d >= sd.depth {
		panic(fmt.Sprintf("face %v depth %d outside side box %v axis %d", f, d, gb, axis))
	}
	return d*gb.Size() + gb.Offset(f)
}

func (sd *SideData) Get(axis int, f hier.IntVector, d int) float64 {
	return sd.data[axis][sd.index(axis, f, d)]
}

func (sd *SideData) Set(axis int, f hier.IntVector, d int, val float64) {
	sd.data[axis][sd.index(axis, f, d)] = val
}

// Array exposes one component of the faces normal to axis, ordered as
// GhostSideBox(axis).ForEach visits them.
func (sd *SideData) Array(axis, d int) []float64 {
	n := sd.GhostSideBox(axis).Size()
	return sd.data[axis][d*n : (d+1)*n]
}

func (sd *SideData) Fill(val float64) {
	for axis := range sd.data {
		for i := range sd.data[axis] {
			sd.data[axis][i] = val
		}
	}
}

// ForEachFace visits the faces normal to axis of the cells in region that
// are stored here.
func (sd *SideData) ForEachFace(axis int, region hier.Box, fn func(f hier.IntVector)) {
	region.SideBox(axis).Intersect(sd.GhostSideBox(axis)).ForEach(fn)
}

// ForEachGhostFace is ForEachFace restricted to faces outside the interior.
func (sd *SideData) ForEachGhostFace(axis int, region hier.Box, fn func(f hier.IntVector)) {
	interior := sd.SideBox(axis)
	sd.ForEachFace(axis, region, func(f hier.IntVector) {
		if !interior.Contains(f) {
			fn(f)
		}
	})
}

// CopyInterior copies src's interior faces that fall inside region.
func (sd *SideData) CopyInterior(src *SideData, region hier.Box) {
	for axis := 0; axis < sd.Dim(); axis++ {
		box := region.SideBox(axis).Intersect(src.SideBox(axis)).Intersect(sd.GhostSideBox(axis))
		box.ForEach(func(f hier.IntVector) {
			for d := 0; d < sd.depth; d++ {
				sd.Set(axis, f, d, src.Get(axis, f, d))
			}
		})
	}
}

// Copy copies every face of src, ghosts included, that this data also
// stores within region.
func (sd *SideData) Copy(src *SideData, region hier.Box) {
	for axis := 0; axis < sd.Dim(); axis++ {
		box := region.SideBox(axis).Intersect(src.GhostSideBox(axis)).Intersect(sd.GhostSideBox(axis))
		box.ForEach(func(f hier.IntVector) {
			for d := 0; d < sd.depth; d++ {
				sd.Set(axis, f, d, src.Get(axis, f, d))
			}
		})
	}
}

// CopyTransformed fills ghost faces of region from the interior faces of
// src, which lives in another block. dstToSrc maps this index space into
// src's. Face-normal values change sign where the normal axis is reversed.
// Faces of the cells in keep are left alone; an empty keep skips nothing.
func (sd *SideData) CopyTransformed(src *SideData, region hier.Box, dstToSrc hier.Transformation, keep hier.Box) {
	for axis := 0; axis < sd.Dim(); axis++ {
		var kept hier.Box
		if !keep.Empty() {
			kept = keep.SideBox(axis)
		}
		sd.ForEachGhostFace(axis, region, func(f hier.IntVector) {
			if !kept.Empty() && kept.Contains(f) {
				return
			}
			srcAxis, g, sign := dstToSrc.TransformSide(axis, f)
			if !src.SideBox(srcAxis).Contains(g) {
				return
			}
			for d := 0; d < sd.depth; d++ {
				sd.Set(axis, f, d, float64(sign)*src.Get(srcAxis, g, d))
			}
		})
	}
}
