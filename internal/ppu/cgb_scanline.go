package ppu

// BankedVRAMReader extends VRAMReader with explicit-bank access, used for
// CGB tile data/map reads where tile numbers live in bank 0 and the
// parallel attribute byte lives in bank 1 at the same map address.
type BankedVRAMReader interface {
	VRAMReader
	ReadBank(bank int, addr uint16) byte
}

// RenderBGScanlineCGB renders 160 BG pixels for a CGB frame, returning the
// color index, the BG palette number (0-7, from the attribute byte), and
// whether the tile requested BG-over-OBJ priority.
func RenderBGScanlineCGB(mem BankedVRAMReader, mapBase, attrBase uint16, tileData8000 bool, scx, scy, ly byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	bgY := uint16(ly) + uint16(scy)
	mapY := (bgY >> 3) & 31
	startX := uint16(scx)
	tileX := (startX >> 3) & 31
	fineX := int(startX & 7)

	x := -fineX
	for x < 160 {
		off := mapY*32 + tileX
		tileNum := mem.ReadBank(0, mapBase+off)
		attr := mem.ReadBank(1, attrBase+off)
		row8 := fetchCGBTileRow(mem, tileNum, attr, uint16(bgY&7), tileData8000)
		for i := 0; i < 8; i++ {
			px := x + i
			if px >= 0 && px < 160 {
				ci[px] = row8[i]
				pal[px] = attr & 0x07
				pri[px] = attr&0x80 != 0
			}
		}
		x += 8
		tileX = (tileX + 1) & 31
	}
	return ci, pal, pri
}

// RenderWindowScanlineCGB renders the window layer starting at screen column
// wxStart, for the given internal window line.
func RenderWindowScanlineCGB(mem BankedVRAMReader, mapBase, attrBase uint16, tileData8000 bool, wxStart int, winLine byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	if wxStart >= 160 {
		return ci, pal, pri
	}
	if wxStart < 0 {
		wxStart = 0
	}
	mapY := (uint16(winLine) >> 3) & 31
	fineY := uint16(winLine & 7)
	tileX := uint16(0)

	x := wxStart
	for x < 160 {
		off := mapY*32 + tileX
		tileNum := mem.ReadBank(0, mapBase+off)
		attr := mem.ReadBank(1, attrBase+off)
		row8 := fetchCGBTileRow(mem, tileNum, attr, fineY, tileData8000)
		for i := 0; i < 8 && x+i < 160; i++ {
			px := x + i
			ci[px] = row8[i]
			pal[px] = attr & 0x07
			pri[px] = attr&0x80 != 0
		}
		x += 8
		tileX = (tileX + 1) & 31
	}
	return ci, pal, pri
}

// fetchCGBTileRow returns the 8 color indices for one tile row, honoring
// the attribute byte's VRAM bank (bit3) and X/Y flip bits (bits 5/6).
func fetchCGBTileRow(mem BankedVRAMReader, tileNum, attr byte, fineY uint16, tileData8000 bool) [8]byte {
	row := fineY & 7
	if attr&0x40 != 0 { // Y flip
		row = 7 - row
	}
	var base uint16
	if tileData8000 {
		base = uint16(tileNum)*16 + row*2
	} else {
		base = uint16(0x1000+int(int8(tileNum))*16) + row*2
	}
	bank := 0
	if attr&0x08 != 0 {
		bank = 1
	}
	lo := mem.ReadBank(bank, 0x8000+base)
	hi := mem.ReadBank(bank, 0x8000+base+1)
	xflip := attr&0x20 != 0
	var out [8]byte
	for px := 0; px < 8; px++ {
		bit := 7 - px
		if xflip {
			bit = px
		}
		out[px] = ((hi>>uint(bit))&1)<<1 | ((lo >> uint(bit)) & 1)
	}
	return out
}
