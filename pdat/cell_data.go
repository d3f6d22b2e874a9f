package pdat

import (
	"github.com/notargets/mblkcomm/hier"
)

type CellVariable struct {
	name string
	dim  int
}

func NewCellVariable(name string, dim int) *CellVariable {
	return &CellVariable{name: name, dim: dim}
}

func (v *CellVariable) Name() string { return v.name }
func (v *CellVariable) Dim() int     { return v.dim }

// CellData holds one value per cell, used for refinement tags.
type CellData[T int | float64] struct {
	box    hier.Box
	ghosts hier.IntVector
	data   []T
}

func NewCellData[T int | float64](box hier.Box, ghosts hier.IntVector) *CellData[T] {
	cd := &CellData[T]{box: box, ghosts: ghosts.Clone()}
	cd.data = make([]T, cd.GhostBox().Size())
	return cd
}

func (cd *CellData[T]) Box() hier.Box          { return cd.box }
func (cd *CellData[T]) GhostBox() hier.Box     { return cd.box.Grow(cd.ghosts) }
func (cd *CellData[T]) Ghosts() hier.IntVector { return cd.ghosts }

func (cd *CellData[T]) Get(c hier.IntVector) T {
	return cd.data[cd.GhostBox().Offset(c)]
}

func (cd *CellData[T]) Set(c hier.IntVector, val T) {
	cd.data[cd.GhostBox().Offset(c)] = val
}

func (cd *CellData[T]) Fill(val T) {
	for i := range cd.data {
		cd.data[i] = val
	}
}

// Cells returns the interior cells whose value equals val.
func (cd *CellData[T]) Cells(val T) (cells []hier.IntVector) {
	cd.box.ForEach(func(c hier.IntVector) {
		if cd.Get(c) == val {
			cells = append(cells, c.Clone())
		}
	})
	return
}
