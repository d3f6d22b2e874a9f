package sidetest

import (
	"github.com/notargets/mblkcomm/hier"
	"github.com/notargets/mblkcomm/pdat"
	"github.com/notargets/mblkcomm/tester"
)

// fieldValue is component k, depth d, of the analytic field for role at the
// physical point x. Components live in the shared reference frame.
//
//	SOURCE:      x + 2y + 3z + k + 100d
//	DESTINATION: -(x + 2y + 3z) - 1000 - k - 100d
func fieldValue(role tester.Role, x []float64, k, d int) float64 {
	var s float64
	for i, xi := range x {
		s += float64(i+1) * xi
	}
	if role == tester.DESTINATION {
		return -s - 1000 - float64(k) - 100*float64(d)
	}
	return s + float64(k) + 100*float64(d)
}

// faceCenter is the continuous index position of the face normal to axis at f.
func faceCenter(axis int, f hier.IntVector) (p []float64) {
	p = make([]float64, len(f))
	for k := range f {
		p[k] = float64(f[k])
		if k != axis {
			p[k] += 0.5
		}
	}
	return
}

// faceValue is what a patch stores on a face: the field component along the
// local face normal, negated where that axis is reversed against the
// reference frame.
func faceValue(pg *hier.PatchGeometry, role tester.Role, axis int, p []float64, d int) float64 {
	k, sign := pg.Direction(axis)
	return float64(sign) * fieldValue(role, pg.Coordinates(p), k, d)
}

// setFaces writes the field for role on the faces of region, ghost faces only
// when ghostOnly is set.
func setFaces(sd *pdat.SideData, pg *hier.PatchGeometry, role tester.Role, region hier.Box, ghostOnly bool) {
	for axis := 0; axis < sd.Dim(); axis++ {
		set := func(f hier.IntVector) {
			p := faceCenter(axis, f)
			for d := 0; d < sd.Depth(); d++ {
				sd.Set(axis, f, d, faceValue(pg, role, axis, p, d))
			}
		}
		if ghostOnly {
			sd.ForEachGhostFace(axis, region, set)
		} else {
			sd.ForEachFace(axis, region, set)
		}
	}
}
