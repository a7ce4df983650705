package geo

import "math"

// Axis is the principal direction of a point cloud.
type Axis struct {
	// Bearing of the long axis, clockwise from north, in [0, 180).
	Bearing float64
	// Elongation is the ratio of the major to the minor second moment. Values
	// close to 1 mean the cloud has no dominant direction.
	Elongation float64
}

// PrincipalAxis computes the major axis of pts from their second central
// moments. It returns false for fewer than two distinct points.
func PrincipalAxis(pts []Point) (Axis, bool) {
	if len(pts) < 2 {
		return Axis{}, false
	}
	var mean Point
	for _, p := range pts {
		mean = mean.Add(p)
	}
	mean = mean.Scale(1 / float64(len(pts)))

	var sxx, syy, sxy float64
	for _, p := range pts {
		d := p.Sub(mean)
		sxx += d.X * d.X
		syy += d.Y * d.Y
		sxy += d.X * d.Y
	}
	n := float64(len(pts))
	sxx, syy, sxy = sxx/n, syy/n, sxy/n
	if sxx+syy == 0 {
		return Axis{}, false
	}

	// Angle of the major axis from +X, counterclockwise.
	theta := 0.5 * math.Atan2(2*sxy, sxx-syy)

	tr := sxx + syy
	disc := math.Sqrt(((sxx-syy)/2)*((sxx-syy)/2) + sxy*sxy)
	major := tr/2 + disc
	minor := tr/2 - disc
	elong := math.Inf(1)
	if minor > 1e-12 {
		elong = major / minor
	}

	bearing := NormalizeBearing(90 - theta*180/math.Pi)
	if bearing >= 180 {
		bearing -= 180
	}
	return Axis{Bearing: bearing, Elongation: elong}, true
}

// NormalizeBearing maps any angle in degrees into [0, 360).
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// BearingDelta returns the absolute angular difference between two bearings,
// in [0, 180].
func BearingDelta(a, b float64) float64 {
	d := math.Abs(NormalizeBearing(a) - NormalizeBearing(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// SouthFacingNormal returns the bearing of the roof face perpendicular to an
// axis that points closest to due south. A gabled roof with its ridge along
// the axis has faces on both normals and panels go on the sunnier one.
func SouthFacingNormal(axisBearing float64) float64 {
	a := NormalizeBearing(axisBearing + 90)
	b := NormalizeBearing(axisBearing - 90)
	if BearingDelta(a, 180) <= BearingDelta(b, 180) {
		return a
	}
	return b
}

// SectorIndex returns the index of the 45° compass sector containing the
// bearing, 0 = N through 7 = NW.
func SectorIndex(bearing float64) int {
	return int(math.Floor(NormalizeBearing(bearing)/45+0.5)) % 8
}
