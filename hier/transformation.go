package hier

import (
	"fmt"
)

// BlockID names one logically rectangular block of a multiblock mesh.
type BlockID int

// Transformation maps index space of one block into another.
//
// On continuous index coordinates, output axis k is
//
//	out[k] = Sign[k]*in[Perm[k]] + Offset[k]
//
// Cells and faces are transformed through their centers, so a reversed
// axis maps cell i to Offset-i-1 and face i to Offset-i.
type Transformation struct {
	Perm   []int
	Sign   []int
	Offset IntVector
}

func IdentityTransformation(dim int) (t Transformation) {
	t = Transformation{
		Perm:   make([]int, dim),
		Sign:   make([]int, dim),
		Offset: NewIntVector(dim, 0),
	}
	for k := 0; k < dim; k++ {
		t.Perm[k] = k
		t.Sign[k] = 1
	}
	return
}

// Rotation2D rotates counter-clockwise by quarterTurns*90 degrees, then shifts.
func Rotation2D(quarterTurns int, offset IntVector) (t Transformation) {
	t = Transformation{Offset: offset.Clone()}
	switch ((quarterTurns % 4) + 4) % 4 {
	case 0:
		t.Perm, t.Sign = []int{0, 1}, []int{1, 1}
	case 1: // (x,y) -> (-y,x)
		t.Perm, t.Sign = []int{1, 0}, []int{-1, 1}
	case 2:
		t.Perm, t.Sign = []int{0, 1}, []int{-1, -1}
	case 3: // (x,y) -> (y,-x)
		t.Perm, t.Sign = []int{1, 0}, []int{1, -1}
	}
	return
}

func (t Transformation) Dim() int { return len(t.Perm) }

func (t Transformation) Validate() error {
	dim := len(t.Perm)
	if dim == 0 {
		return fmt.Errorf("empty transformation")
	}
	if len(t.Sign) != dim || len(t.Offset) != dim {
		return fmt.Errorf("transformation arrays differ in length: perm %d, sign %d, offset %d",
			dim, len(t.Sign), len(t.Offset))
	}
	seen := make([]bool, dim)
	for k, p := range t.Perm {
		if p < 0 || p >= dim || seen[p] {
			return fmt.Errorf("perm %v is not a permutation of 0..%d", t.Perm, dim-1)
		}
		seen[p] = true
		if t.Sign[k] != 1 && t.Sign[k] != -1 {
			return fmt.Errorf("sign %v must hold only +1 or -1", t.Sign)
		}
	}
	return nil
}

func (t Transformation) Inverse() (inv Transformation) {
	dim := t.Dim()
	inv = Transformation{
		Perm:   make([]int, dim),
		Sign:   make([]int, dim),
		Offset: make(IntVector, dim),
	}
	for k := 0; k < dim; k++ {
		j := t.Perm[k]
		inv.Perm[j] = k
		inv.Sign[j] = t.Sign[k]
		inv.Offset[j] = -t.Sign[k] * t.Offset[k]
	}
	return
}

// Compose returns t applied after inner.
func (t Transformation) Compose(inner Transformation) (r Transformation) {
	dim := t.Dim()
	r = Transformation{
		Perm:   make([]int, dim),
		Sign:   make([]int, dim),
		Offset: make(IntVector, dim),
	}
	for k := 0; k < dim; k++ {
		m := t.Perm[k]
		r.Perm[k] = inner.Perm[m]
		r.Sign[k] = t.Sign[k] * inner.Sign[m]
		r.Offset[k] = t.Sign[k]*inner.Offset[m] + t.Offset[k]
	}
	return
}

// Refine rescales the transformation to an index space refined by ratio.
func (t Transformation) Refine(ratio int) (r Transformation) {
	r = Transformation{
		Perm:   append([]int(nil), t.Perm...),
		Sign:   append([]int(nil), t.Sign...),
		Offset: t.Offset.Scale(ratio),
	}
	return
}

func (t Transformation) Equal(o Transformation) bool {
	if t.Dim() != o.Dim() {
		return false
	}
	for k := range t.Perm {
		if t.Perm[k] != o.Perm[k] || t.Sign[k] != o.Sign[k] {
			return false
		}
	}
	return t.Offset.Equal(o.Offset)
}

func (t Transformation) ApplyPoint(p []float64) (q []float64) {
	q = make([]float64, len(p))
	for k := range t.Perm {
		q[k] = float64(t.Sign[k])*p[t.Perm[k]] + float64(t.Offset[k])
	}
	return
}

func (t Transformation) TransformCell(c IntVector) (r IntVector) {
	r = make(IntVector, len(c))
	for k := range t.Perm {
		r[k] = t.mapCell(k, c[t.Perm[k]])
	}
	return
}

func (t Transformation) mapCell(k, i int) int {
	if t.Sign[k] > 0 {
		return i + t.Offset[k]
	}
	return t.Offset[k] - i - 1
}

func (t Transformation) TransformBox(b Box) (r Box) {
	if b.Empty() {
		return Box{Lo: NewIntVector(t.Dim(), 0), Hi: NewIntVector(t.Dim(), -1)}
	}
	lo, hi := t.TransformCell(b.Lo), t.TransformCell(b.Hi)
	r = Box{Lo: make(IntVector, len(lo)), Hi: make(IntVector, len(lo))}
	for k := range lo {
		r.Lo[k], r.Hi[k] = min(lo[k], hi[k]), max(lo[k], hi[k])
	}
	return
}

// NormalAxis is the output axis that input axis maps onto, with its sign.
func (t Transformation) NormalAxis(axis int) (outAxis, sign int) {
	for k, p := range t.Perm {
		if p == axis {
			return k, t.Sign[k]
		}
	}
	panic(fmt.Sprintf("axis %d not in perm %v", axis, t.Perm))
}

// TransformSide maps the face normal to axis at index f. The returned sign
// converts a face-normal component from the input frame to the output frame.
func (t Transformation) TransformSide(axis int, f IntVector) (outAxis int, g IntVector, sign int) {
	outAxis, sign = t.NormalAxis(axis)
	g = make(IntVector, len(f))
	for k := range t.Perm {
		i := f[t.Perm[k]]
		if k == outAxis {
			if t.Sign[k] > 0 {
				g[k] = i + t.Offset[k]
			} else {
				g[k] = t.Offset[k] - i
			}
			continue
		}
		g[k] = t.mapCell(k, i)
	}
	return
}

func (t Transformation) String() string {
	return fmt.Sprintf("perm%v sign%v offset%v", t.Perm, t.Sign, t.Offset)
}
