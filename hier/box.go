package hier

import (
	"fmt"
	"strings"
)

// IntVector is an index or width in a mesh of any dimension.
type IntVector []int

func NewIntVector(dim, val int) (v IntVector) {
	v = make(IntVector, dim)
	for i := range v {
		v[i] = val
	}
	return
}

func (v IntVector) Dim() int { return len(v) }

func (v IntVector) Clone() (c IntVector) {
	c = make(IntVector, len(v))
	copy(c, v)
	return
}

func (v IntVector) Add(o IntVector) (r IntVector) {
	checkDim(v, o)
	r = make(IntVector, len(v))
	for i := range v {
		r[i] = v[i] + o[i]
	}
	return
}

func (v IntVector) Sub(o IntVector) (r IntVector) {
	checkDim(v, o)
	r = make(IntVector, len(v))
	for i := range v {
		r[i] = v[i] - o[i]
	}
	return
}

func (v IntVector) Scale(s int) (r IntVector) {
	r = make(IntVector, len(v))
	for i := range v {
		r[i] = v[i] * s
	}
	return
}

func (v IntVector) Max(o IntVector) (r IntVector) {
	checkDim(v, o)
	r = make(IntVector, len(v))
	for i := range v {
		r[i] = max(v[i], o[i])
	}
	return
}

func (v IntVector) Equal(o IntVector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Uniform reports whether every component equals the first one.
func (v IntVector) Uniform() bool {
	for i := range v {
		if v[i] != v[0] {
			return false
		}
	}
	return true
}

func (v IntVector) String() string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = fmt.Sprint(x)
	}
	return "(" + strings.Join(s, ",") + ")"
}

func checkDim(a, b IntVector) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("dimension mismatch: %v vs %v", a, b))
	}
}

// FloorDiv rounds toward negative infinity, needed for ghost indices below zero.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Box is an inclusive range of cell indices [Lo, Hi].
type Box struct {
	Lo, Hi IntVector
}

func NewBox(lo, hi IntVector) Box {
	checkDim(lo, hi)
	return Box{Lo: lo.Clone(), Hi: hi.Clone()}
}

func (b Box) Dim() int { return len(b.Lo) }

func (b Box) Empty() bool {
	if len(b.Lo) == 0 {
		return true
	}
	for i := range b.Lo {
		if b.Hi[i] < b.Lo[i] {
			return true
		}
	}
	return false
}

func (b Box) Shape() (s IntVector) {
	s = make(IntVector, len(b.Lo))
	for i := range b.Lo {
		s[i] = max(0, b.Hi[i]-b.Lo[i]+1)
	}
	return
}

func (b Box) Size() (n int) {
	if b.Empty() {
		return 0
	}
	n = 1
	for _, s := range b.Shape() {
		n *= s
	}
	return
}

func (b Box) Contains(p IntVector) bool {
	checkDim(b.Lo, p)
	for i := range p {
		if p[i] < b.Lo[i] || p[i] > b.Hi[i] {
			return false
		}
	}
	return true
}

func (b Box) ContainsBox(o Box) bool {
	if o.Empty() {
		return true
	}
	return b.Contains(o.Lo) && b.Contains(o.Hi)
}

func (b Box) Intersect(o Box) (r Box) {
	checkDim(b.Lo, o.Lo)
	r = Box{Lo: make(IntVector, len(b.Lo)), Hi: make(IntVector, len(b.Lo))}
	for i := range b.Lo {
		r.Lo[i] = max(b.Lo[i], o.Lo[i])
		r.Hi[i] = min(b.Hi[i], o.Hi[i])
	}
	return
}

func (b Box) Intersects(o Box) bool {
	return !b.Intersect(o).Empty()
}

func (b Box) Grow(g IntVector) Box {
	return Box{Lo: b.Lo.Sub(g), Hi: b.Hi.Add(g)}
}

func (b Box) Shift(s IntVector) Box {
	return Box{Lo: b.Lo.Add(s), Hi: b.Hi.Add(s)}
}

func (b Box) Refine(ratio IntVector) (r Box) {
	checkDim(b.Lo, ratio)
	r = Box{Lo: make(IntVector, len(b.Lo)), Hi: make(IntVector, len(b.Lo))}
	for i := range b.Lo {
		r.Lo[i] = b.Lo[i] * ratio[i]
		r.Hi[i] = (b.Hi[i]+1)*ratio[i] - 1
	}
	return
}

func (b Box) Coarsen(ratio IntVector) (r Box) {
	checkDim(b.Lo, ratio)
	r = Box{Lo: make(IntVector, len(b.Lo)), Hi: make(IntVector, len(b.Lo))}
	for i := range b.Lo {
		r.Lo[i] = FloorDiv(b.Lo[i], ratio[i])
		r.Hi[i] = FloorDiv(b.Hi[i], ratio[i])
	}
	return
}

// SideBox is the box of face indices normal to axis for the cells in b.
func (b Box) SideBox(axis int) (r Box) {
	r = Box{Lo: b.Lo.Clone(), Hi: b.Hi.Clone()}
	r.Hi[axis]++
	return
}

// Remove returns disjoint boxes covering b minus o.
func (b Box) Remove(o Box) (pieces []Box) {
	isect := b.Intersect(o)
	if isect.Empty() {
		return []Box{b}
	}
	rem := Box{Lo: b.Lo.Clone(), Hi: b.Hi.Clone()}
	for i := range b.Lo {
		if rem.Lo[i] < isect.Lo[i] {
			p := Box{Lo: rem.Lo.Clone(), Hi: rem.Hi.Clone()}
			p.Hi[i] = isect.Lo[i] - 1
			pieces = append(pieces, p)
			rem.Lo[i] = isect.Lo[i]
		}
		if rem.Hi[i] > isect.Hi[i] {
			p := Box{Lo: rem.Lo.Clone(), Hi: rem.Hi.Clone()}
			p.Lo[i] = isect.Hi[i] + 1
			pieces = append(pieces, p)
			rem.Hi[i] = isect.Hi[i]
		}
	}
	return
}

// RemoveBoxes returns disjoint boxes covering boxes minus o.
func RemoveBoxes(boxes []Box, o Box) (out []Box) {
	for _, b := range boxes {
		out = append(out, b.Remove(o)...)
	}
	return
}

// ForEach visits every index in the box, axis 0 fastest.
func (b Box) ForEach(fn func(p IntVector)) {
	if b.Empty() {
		return
	}
	p := b.Lo.Clone()
	for {
		fn(p)
		i := 0
		for ; i < len(p); i++ {
			p[i]++
			if p[i] <= b.Hi[i] {
				break
			}
			p[i] = b.Lo[i]
		}
		if i == len(p) {
			return
		}
	}
}

// Offset is the linear position of p in the box, axis 0 fastest.
func (b Box) Offset(p IntVector) (ind int) {
	stride := 1
	for i := range p {
		ind += (p[i] - b.Lo[i]) * stride
		stride *= b.Hi[i] - b.Lo[i] + 1
	}
	return
}

func (b Box) Equal(o Box) bool {
	return b.Lo.Equal(o.Lo) && b.Hi.Equal(o.Hi)
}

func (b Box) String() string {
	return fmt.Sprintf("[%v,%v]", b.Lo, b.Hi)
}

func BoundingBox(boxes []Box) (bb Box) {
	for _, b := range boxes {
		if b.Empty() {
			continue
		}
		if bb.Empty() {
			bb = NewBox(b.Lo, b.Hi)
			continue
		}
		for i := range b.Lo {
			bb.Lo[i] = min(bb.Lo[i], b.Lo[i])
			bb.Hi[i] = max(bb.Hi[i], b.Hi[i])
		}
	}
	return
}

// Chop splits b into boxes no larger than maxSize along any axis.
func (b Box) Chop(maxSize int) (boxes []Box) {
	boxes = []Box{b}
	if maxSize <= 0 {
		return
	}
	for axis := 0; axis < b.Dim(); axis++ {
		var next []Box
		for _, bx := range boxes {
			for lo := bx.Lo[axis]; lo <= bx.Hi[axis]; lo += maxSize {
				p := NewBox(bx.Lo, bx.Hi)
				p.Lo[axis] = lo
				p.Hi[axis] = min(lo+maxSize-1, bx.Hi[axis])
				next = append(next, p)
			}
		}
		boxes = next
	}
	return
}
