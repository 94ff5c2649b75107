package types

import "fmt"

// Area is an axis-aligned closed rectangle of grid cells.
// The origin is inclusive; SizeX and SizeY must be at least 1.
type Area struct {
	PosX  int `json:"posX"`
	PosY  int `json:"posY"`
	SizeX int `json:"sizeX"`
	SizeY int `json:"sizeY"`
}

// Validate returns ErrInvalidArea if either extent is not positive.
func (a Area) Validate() error {
	if a.SizeX < 1 || a.SizeY < 1 {
		return fmt.Errorf("%w: %s", ErrInvalidArea, a)
	}
	return nil
}

// Cells returns the number of grid cells covered by the area.
func (a Area) Cells() int {
	return a.SizeX * a.SizeY
}

// Unit reports whether the area is a single 1x1 cell.
func (a Area) Unit() bool {
	return a.SizeX == 1 && a.SizeY == 1
}

// Contains reports whether the cell (x, y) lies inside the area.
func (a Area) Contains(x, y int) bool {
	return x >= a.PosX && x < a.PosX+a.SizeX && y >= a.PosY && y < a.PosY+a.SizeY
}

// Overlaps reports whether a and b share at least one cell.
func (a Area) Overlaps(b Area) bool {
	return a.PosX < b.PosX+b.SizeX && b.PosX < a.PosX+a.SizeX &&
		a.PosY < b.PosY+b.SizeY && b.PosY < a.PosY+a.SizeY
}

func (a Area) String() string {
	return fmt.Sprintf("{%d,%d %dx%d}", a.PosX, a.PosY, a.SizeX, a.SizeY)
}

// Explore is the result of probing an area: the server's count of treasures
// hidden somewhere inside it.
type Explore struct {
	Area   Area `json:"area"`
	Amount int  `json:"amount"`
}
