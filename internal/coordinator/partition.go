package coordinator

import "github.com/mesh-intelligence/goldrush/pkg/types"

// Partition tiles grid into partsX*partsY disjoint areas. Part i sits at
// column i%partsX and row i/partsX. Remainders go to the leading columns and
// rows, one extra line each.
func Partition(grid types.Area, partsX, partsY int) []types.Area {
	if partsX < 1 || partsY < 1 {
		return nil
	}
	xs := spans(grid.PosX, grid.SizeX, partsX)
	ys := spans(grid.PosY, grid.SizeY, partsY)

	out := make([]types.Area, 0, partsX*partsY)
	for _, y := range ys {
		for _, x := range xs {
			out = append(out, types.Area{PosX: x.pos, PosY: y.pos, SizeX: x.size, SizeY: y.size})
		}
	}
	return out
}

type span struct{ pos, size int }

func spans(pos, size, parts int) []span {
	out := make([]span, parts)
	base, extra := size/parts, size%parts
	for i := range out {
		n := base
		if i < extra {
			n++
		}
		out[i] = span{pos: pos, size: n}
		pos += n
	}
	return out
}

// Cells covers area with step x step cells, columns outer and rows inner.
// Cells on the far edges are clipped to the area.
func Cells(area types.Area, step int) []types.Area {
	if step < 1 || area.SizeX < 1 || area.SizeY < 1 {
		return nil
	}
	var out []types.Area
	for x := area.PosX; x < area.PosX+area.SizeX; x += step {
		w := min(step, area.PosX+area.SizeX-x)
		for y := area.PosY; y < area.PosY+area.SizeY; y += step {
			h := min(step, area.PosY+area.SizeY-y)
			out = append(out, types.Area{PosX: x, PosY: y, SizeX: w, SizeY: h})
		}
	}
	return out
}
