package climate

import "solarscan/internal/geo"

// Territory is a coverage area made of outer rings minus holes. Coordinates
// are longitude in X and latitude in Y.
type Territory struct {
	Outer []geo.Polygon
	Holes []geo.Polygon
}

// Contains reports whether the coordinate lies in the territory.
func (t Territory) Contains(lat, lon float64) bool {
	pt := geo.Pt(lon, lat)
	for _, h := range t.Holes {
		if h.Contains(pt) {
			return false
		}
	}
	for _, o := range t.Outer {
		if o.Contains(pt) {
			return true
		}
	}
	return false
}

// GyeonggiTerritory is a coarse outline of Gyeonggi province with Seoul cut
// out. It is only consulted when the geocoder returns no region tag, so a
// few kilometres of error along the border is acceptable.
func GyeonggiTerritory() Territory {
	return Territory{
		Outer: []geo.Polygon{geo.NewPolygon(
			geo.Pt(126.55, 37.78), geo.Pt(126.68, 37.95), geo.Pt(126.85, 38.10), geo.Pt(127.05, 38.28),
			geo.Pt(127.30, 38.30), geo.Pt(127.55, 38.10), geo.Pt(127.65, 37.85), geo.Pt(127.75, 37.60),
			geo.Pt(127.85, 37.35), geo.Pt(127.60, 37.15), geo.Pt(127.50, 37.05), geo.Pt(127.30, 36.95),
			geo.Pt(127.05, 36.90), geo.Pt(126.85, 36.90), geo.Pt(126.70, 36.95), geo.Pt(126.60, 37.08),
			geo.Pt(126.55, 37.25), geo.Pt(126.70, 37.35), geo.Pt(126.75, 37.55), geo.Pt(126.60, 37.65),
		)},
		Holes: []geo.Polygon{geo.NewPolygon(
			geo.Pt(126.80, 37.57), geo.Pt(126.87, 37.68), geo.Pt(127.00, 37.70), geo.Pt(127.12, 37.69),
			geo.Pt(127.18, 37.58), geo.Pt(127.14, 37.45), geo.Pt(127.00, 37.43), geo.Pt(126.86, 37.47),
			geo.Pt(126.80, 37.52),
		)},
	}
}
