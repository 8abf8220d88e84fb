package grid

// GetGridCoords converts a linear, row-major index into (x, y) for a grid
// that is cols wide.
func GetGridCoords(index, cols int) (x, y int) {
	return index % cols, index / cols
}

// Index is the inverse of GetGridCoords.
func Index(x, y, cols int) int {
	return y*cols + x
}
