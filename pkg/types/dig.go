package types

import "fmt"

// Depth bounds for a dig. Depth strictly increases per cell.
const (
	MinDepth = 1
	MaxDepth = 10
)

// DigRequest asks the server to dig one cell at the given depth using one
// use of the license.
type DigRequest struct {
	LicenseID int64 `json:"licenseID"`
	PosX      int   `json:"posX"`
	PosY      int   `json:"posY"`
	Depth     int   `json:"depth"`
}

// Validate returns ErrDepthOutOfRange if Depth is outside [MinDepth, MaxDepth].
func (d DigRequest) Validate() error {
	if d.Depth < MinDepth || d.Depth > MaxDepth {
		return fmt.Errorf("%w: %d", ErrDepthOutOfRange, d.Depth)
	}
	return nil
}

// Treasure is a token returned by a successful dig, redeemable exactly once.
// Depth is where it was found; it never goes over the wire.
type Treasure struct {
	Token string
	Depth int
}
