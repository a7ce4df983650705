package geo

// Grid is a row-major raster of class labels. Row 0 is the northern edge.
type Grid struct {
	Width  int
	Height int
	Cells  []uint8
}

// NewGrid allocates a zero-filled grid.
func NewGrid(w, h int) *Grid {
	return &Grid{Width: w, Height: h, Cells: make([]uint8, w*h)}
}

// At returns the label at column x, row y, or 0 outside the grid.
func (g *Grid) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0
	}
	return g.Cells[y*g.Width+x]
}

// Set writes a label at column x, row y. Writes outside the grid are ignored.
func (g *Grid) Set(x, y int, v uint8) {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return
	}
	g.Cells[y*g.Width+x] = v
}

// CellCenter returns the planar coordinate of a cell centre with the grid
// centre at the origin and one unit per cell.
func (g *Grid) CellCenter(x, y int) Point {
	return Point{
		X: float64(x) + 0.5 - float64(g.Width)/2,
		Y: float64(g.Height)/2 - (float64(y) + 0.5),
	}
}

// Fill labels every cell whose centre lies inside poly. Polygon coordinates
// are in the CellCenter frame.
func (g *Grid) Fill(poly Polygon, v uint8) int {
	lo, hi := poly.BoundingBox()
	n := 0
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := g.CellCenter(x, y)
			if c.X < lo.X || c.X > hi.X || c.Y < lo.Y || c.Y > hi.Y {
				continue
			}
			if poly.Contains(c) {
				g.Set(x, y, v)
				n++
			}
		}
	}
	return n
}
