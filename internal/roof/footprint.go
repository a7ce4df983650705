package roof

import (
	"solarscan/internal/external"
	"solarscan/internal/geo"
)

// footprint is the connected building component picked from a segmentation
// raster.
type footprint struct {
	cells       []geo.Point
	obstruction int
}

// extractFootprint flood-fills the non-background component containing the
// raster centre, or the component nearest to it when the centre pixel is
// background. It returns false when the raster holds no building at all.
func extractFootprint(g *geo.Grid) (footprint, bool) {
	cx, cy := g.Width/2, g.Height/2
	seed := -1
	if g.At(cx, cy) != external.MaskBackground {
		seed = cy*g.Width + cx
	} else {
		best := -1
		for i, c := range g.Cells {
			if c == external.MaskBackground {
				continue
			}
			dx, dy := i%g.Width-cx, i/g.Width-cy
			if d := dx*dx + dy*dy; best < 0 || d < best {
				best, seed = d, i
			}
		}
	}
	if seed < 0 {
		return footprint{}, false
	}

	var fp footprint
	seen := make([]bool, len(g.Cells))
	seen[seed] = true
	queue := []int{seed}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		x, y := i%g.Width, i/g.Width
		fp.cells = append(fp.cells, g.CellCenter(x, y))
		if g.Cells[i] == external.MaskObstruction {
			fp.obstruction++
		}
		for _, n := range [4][2]int{{x + 1, y}, {x - 1, y}, {x, y + 1}, {x, y - 1}} {
			nx, ny := n[0], n[1]
			if nx < 0 || ny < 0 || nx >= g.Width || ny >= g.Height {
				continue
			}
			j := ny*g.Width + nx
			if seen[j] || g.Cells[j] == external.MaskBackground {
				continue
			}
			seen[j] = true
			queue = append(queue, j)
		}
	}
	return fp, true
}
