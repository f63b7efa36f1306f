// Package raster provides the row-major grid type backing all simulation state.
package raster

// Value constrains the cell types a Grid can hold.
type Value interface {
	~int | ~int64 | ~float64
}

// Grid stores a 2D raster of cell values in row-major order.
type Grid[T Value] struct {
	Rows, Cols int
	data       []T
}

// New allocates a zeroed grid with the given dimensions.
func New[T Value](rows, cols int) *Grid[T] {
	if rows <= 0 {
		rows = 1
	}
	if cols <= 0 {
		cols = 1
	}
	return &Grid[T]{Rows: rows, Cols: cols, data: make([]T, rows*cols)}
}

// Like allocates a zeroed grid with the same dimensions as g.
func Like[T Value, U Value](g *Grid[U]) *Grid[T] {
	return New[T](g.Rows, g.Cols)
}

// Cells exposes the backing slice so callers can read/write values directly.
func (g *Grid[T]) Cells() []T { return g.data }

// Index returns the linear slice index for (row, col).
func (g *Grid[T]) Index(row, col int) int { return row*g.Cols + col }

// In reports whether (row, col) lies inside the grid.
func (g *Grid[T]) In(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// At returns the value at (row, col).
func (g *Grid[T]) At(row, col int) T { return g.data[row*g.Cols+col] }

// Set stores v at (row, col).
func (g *Grid[T]) Set(row, col int, v T) { g.data[row*g.Cols+col] = v }

// Clone returns a deep copy of g.
func (g *Grid[T]) Clone() *Grid[T] {
	c := &Grid[T]{Rows: g.Rows, Cols: g.Cols, data: make([]T, len(g.data))}
	copy(c.data, g.data)
	return c
}

// CopyFrom overwrites g's cells with o's. Dimensions must match.
func (g *Grid[T]) CopyFrom(o *Grid[T]) {
	if g.Rows != o.Rows || g.Cols != o.Cols {
		panic("raster: copy between grids of different dimensions")
	}
	copy(g.data, o.data)
}

// Fill sets every cell to v.
func (g *Grid[T]) Fill(v T) {
	for i := range g.data {
		g.data[i] = v
	}
}

// Zero fills the grid with zeros.
func (g *Grid[T]) Zero() {
	var zero T
	g.Fill(zero)
}

// Add adds o to g elementwise in place.
func (g *Grid[T]) Add(o *Grid[T]) {
	for i, v := range o.data {
		g.data[i] += v
	}
}

// Sub subtracts o from g elementwise in place.
func (g *Grid[T]) Sub(o *Grid[T]) {
	for i, v := range o.data {
		g.data[i] -= v
	}
}

// Mul multiplies g by o elementwise in place.
func (g *Grid[T]) Mul(o *Grid[T]) {
	for i, v := range o.data {
		g.data[i] *= v
	}
}

// Sum returns the sum of all cells.
func (g *Grid[T]) Sum() T {
	var s T
	for _, v := range g.data {
		s += v
	}
	return s
}

// CountPositive returns the number of cells with a value greater than zero.
func (g *Grid[T]) CountPositive() int {
	n := 0
	for _, v := range g.data {
		if v > 0 {
			n++
		}
	}
	return n
}

// Equal reports whether g and o have identical dimensions and cells.
func (g *Grid[T]) Equal(o *Grid[T]) bool {
	if g.Rows != o.Rows || g.Cols != o.Cols {
		return false
	}
	for i, v := range g.data {
		if o.data[i] != v {
			return false
		}
	}
	return true
}
