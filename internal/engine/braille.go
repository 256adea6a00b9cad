package engine

// dotBits maps a dot's column and row inside a cell to its bit in the U+2800 block.
var dotBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

// brailleBuf is a w x h cell canvas addressed in dots, two across and four down per cell.
type brailleBuf struct {
	w, h  int
	masks []uint8 // row-major, one per cell
}

func newBrailleBuf(w, h int) *brailleBuf {
	return &brailleBuf{w: w, h: h, masks: make([]uint8, w*h)}
}

// setPixel lights dot (x, y); dots outside the canvas are dropped.
func (b *brailleBuf) setPixel(x, y int) {
	if x < 0 || y < 0 || x >= b.w*2 || y >= b.h*4 {
		return
	}
	b.masks[(y/4)*b.w+x/2] |= dotBits[x%2][y%4]
}

func (b *brailleBuf) cell(cx, cy int) rune {
	m := b.masks[cy*b.w+cx]
	if m == 0 {
		return ' '
	}
	return 0x2800 + rune(m)
}
