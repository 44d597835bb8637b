package ppu

// Sprite is a snapshot of one OAM entry already adjusted to screen
// coordinates (X, Y are the sprite's top-left screen pixel, i.e. the raw
// OAM byte minus 8/16). Sprites on a scanline are copies, not references
// into OAM, so the composed line is stable even if OAM changes mid-line.
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
	Height   byte // 8 or 16; zero value treated as 8
}

func (s Sprite) height() int {
	if s.Height == 0 {
		return 8
	}
	return int(s.Height)
}

// oamSearch scans raw OAM bytes for up to 10 sprites visible on scanline ly.
// On DMG the list is sorted by screen X ascending then OAM index ascending;
// on CGB insertion (OAM) order alone decides priority, so the list is left
// as scanned. Either way the first opaque pixel in list order wins in
// ComposeSpriteLine's scan.
func oamSearch(oam []byte, ly int, tall, cgb bool) []Sprite {
	height := 8
	if tall {
		height = 16
	}
	var found []Sprite
	for i := 0; i < 40 && len(found) < 10; i++ {
		base := i * 4
		y := int(oam[base+0]) - 16
		x := int(oam[base+1]) - 8
		tile := oam[base+2]
		attr := oam[base+3]
		if ly < y || ly >= y+height {
			continue
		}
		found = append(found, Sprite{X: x, Y: y, Tile: tile, Attr: attr, OAMIndex: i, Height: byte(height)})
	}
	if !cgb {
		for i := 1; i < len(found); i++ {
			for j := i; j > 0; j-- {
				a, b := found[j-1], found[j]
				if a.X < b.X || (a.X == b.X && a.OAMIndex <= b.OAMIndex) {
					break
				}
				found[j-1], found[j] = found[j], found[j-1]
			}
		}
	}
	return found
}

// composeSpriteLineFull renders the OBJ layer for one scanline, returning
// the 2-bit color index per pixel (0 = transparent), the palette selector
// (DMG: 0/1 via OBP0/OBP1; CGB: 0-7 via OCPS palette RAM), and whether the
// matched sprite requested BG priority (attr bit 7).
func composeSpriteLineFull(mem VRAMReader, sprites []Sprite, ly byte, bgci [160]byte, cgb bool) (ci [160]byte, pal [160]byte, behindBG [160]bool) {
	for _, s := range sprites {
		h := s.height()
		row := int(ly) - s.Y
		if row < 0 || row >= h {
			continue
		}
		if s.Attr&0x40 != 0 { // Y flip
			row = h - 1 - row
		}
		tile := s.Tile
		if h == 16 {
			if row < 8 {
				tile = s.Tile &^ 0x01
			} else {
				tile = s.Tile | 0x01
				row -= 8
			}
		}
		var lo, hi byte
		if cgb && s.Attr&0x08 != 0 {
			if bm, ok := mem.(BankedVRAMReader); ok {
				base := uint16(tile)*16 + uint16(row)*2
				lo = bm.ReadBank(1, 0x8000+base)
				hi = bm.ReadBank(1, 0x8000+base+1)
			}
		} else {
			base := uint16(0x8000) + uint16(tile)*16 + uint16(row)*2
			lo = mem.Read(base)
			hi = mem.Read(base + 1)
		}
		xflip := s.Attr&0x20 != 0
		priority := s.Attr&0x80 != 0
		var palSel byte
		if cgb {
			palSel = s.Attr & 0x07
		} else if s.Attr&0x10 != 0 {
			palSel = 1
		}
		for px := 0; px < 8; px++ {
			screenX := s.X + px
			if screenX < 0 || screenX >= 160 {
				continue
			}
			if ci[screenX] != 0 {
				continue // an earlier (higher-priority) sprite already drew here
			}
			bit := 7 - px
			if xflip {
				bit = px
			}
			px2 := ((hi>>uint(bit))&1)<<1 | ((lo >> uint(bit)) & 1)
			if px2 == 0 {
				continue
			}
			ci[screenX] = px2
			pal[screenX] = palSel
			behindBG[screenX] = priority
		}
	}
	// Apply BG-priority masking against the supplied background color indices.
	for x := 0; x < 160; x++ {
		if ci[x] != 0 && behindBG[x] && bgci[x] != 0 {
			ci[x] = 0
		}
	}
	return ci, pal, behindBG
}

// ComposeSpriteLine is the color-index-only view of composeSpriteLineFull,
// used where palette/priority detail isn't needed (e.g. transparency tests).
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, ly byte, bgci [160]byte, cgb bool) [160]byte {
	ci, _, _ := composeSpriteLineFull(mem, sprites, ly, bgci, cgb)
	return ci
}
