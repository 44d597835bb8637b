package ppu

import (
	"bytes"
	"encoding/gob"
)

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT, etc.).
type InterruptRequester func(bit int)

// LineSnapshot captures the registers a scanline was rendered with, mainly
// for tests that need to observe the window's internal line counter.
type LineSnapshot struct {
	WinLine                     byte
	SCX, SCY, WX, WY            byte
	LCDC, BGP, OBP0, OBP1       byte
}

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, timing, and pixel output for
// both DMG (2bpp indexed) and CGB (15-bit BGR palette RAM) hardware.
type PPU struct {
	cgb bool

	// memory: two 8KiB VRAM banks on CGB, only bank 0 used on DMG.
	vram [2][0x2000]byte
	oam  [0xA0]byte // 0xFE00-0xFE9F
	vbk  byte       // FF4F: active VRAM bank (bit0)

	// CGB BG/OBJ palette RAM, 8 palettes x 4 colors x 2 bytes each.
	bgPalRAM  [64]byte
	objPalRAM [64]byte
	bcps      byte // FF68
	ocps      byte // FF69

	// regs
	lcdc byte // FF40
	stat byte // FF41 (mode bits 0-1, coincidence flag bit2, enables bits3-6)
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot int // dots within current line [0..455]

	// window internal line counter, reset each frame the LCD is (re)enabled
	winLine          int
	winTriggeredThis bool

	lineRegs [154]LineSnapshot

	// double framebuffers; Front is swapped in at VBlank entry so a host can
	// read a stable frame whenever it likes.
	backDMG   [144][160]byte
	frontDMG  [144][160]byte
	backCGB   [144][160][3]byte
	frontCGB  [144][160][3]byte

	req InterruptRequester
}

func New(req InterruptRequester) *PPU { return &PPU{req: req} }

// NewCGB constructs a PPU in Game Boy Color mode.
func NewCGB(req InterruptRequester) *PPU { return &PPU{req: req, cgb: true} }

func (p *PPU) activeBank() int { return int(p.vbk & 0x01) }

// Read implements VRAMReader against the currently selected VRAM bank.
func (p *PPU) Read(addr uint16) byte { return p.ReadBank(p.activeBank(), addr) }

// ReadBank implements BankedVRAMReader.
func (p *PPU) ReadBank(bank int, addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	bank &= 0x01
	return p.vram[bank][addr-0x8000]
}

// CPURead returns bytes for VRAM, OAM, and PPU IO registers. Returns 0xFF for others.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return 0xFF
		}
		return p.vram[p.activeBank()][addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	case addr == 0xFF4F:
		if !p.cgb {
			return 0xFF
		}
		return 0xFE | p.vbk
	case addr == 0xFF68:
		if !p.cgb {
			return 0xFF
		}
		return p.bcps
	case addr == 0xFF69:
		if !p.cgb {
			return 0xFF
		}
		return p.bgPalRAM[p.bcps&0x3F]
	case addr == 0xFF6A:
		if !p.cgb {
			return 0xFF
		}
		return p.ocps
	case addr == 0xFF6B:
		if !p.cgb {
			return 0xFF
		}
		return p.objPalRAM[p.ocps&0x3F]
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO regs. Others are ignored here.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return
		}
		p.vram[p.activeBank()][addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			p.ly = 0
			p.dot = 0
			p.setMode(0)
			p.updateLYC()
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			p.ly = 0
			p.dot = 0
			p.winLine = 0
			p.winTriggeredThis = false
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		// Real hardware ignores writes to the current-scanline counter.
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	case addr == 0xFF4F:
		if p.cgb {
			p.vbk = value & 0x01
		}
	case addr == 0xFF68:
		if p.cgb {
			p.bcps = value & 0xBF
		}
	case addr == 0xFF69:
		if p.cgb {
			p.bgPalRAM[p.bcps&0x3F] = value
			if p.bcps&0x80 != 0 {
				p.bcps = 0x80 | ((p.bcps + 1) & 0x3F)
			}
		}
	case addr == 0xFF6A:
		if p.cgb {
			p.ocps = value & 0xBF
		}
	case addr == 0xFF6B:
		if p.cgb {
			p.objPalRAM[p.ocps&0x3F] = value
			if p.ocps&0x80 != 0 {
				p.ocps = 0x80 | ((p.ocps + 1) & 0x3F)
			}
		}
	}
}

// WriteOAMDMA stores one byte delivered by the OAM DMA engine. Unlike
// CPUWrite, it is not subject to the mode-2/3 OAM access lock.
func (p *PPU) WriteOAMDMA(index int, value byte) {
	if index >= 0 && index < len(p.oam) {
		p.oam[index] = value
	}
}

// LineRegs returns the register snapshot captured when pixel-transfer began
// for scanline ly (0..153); zero value if that line hasn't been rendered yet.
func (p *PPU) LineRegs(ly int) LineSnapshot {
	if ly < 0 || ly >= len(p.lineRegs) {
		return LineSnapshot{}
	}
	return p.lineRegs[ly]
}

// FrameDMG returns the last fully-rendered DMG frame (2-bit palette indices).
func (p *PPU) FrameDMG() *[144][160]byte { return &p.frontDMG }

// FrameCGB returns the last fully-rendered CGB frame (8-bit RGB triples).
func (p *PPU) FrameCGB() *[144][160][3]byte { return &p.frontCGB }

// Tick advances PPU state by the given number of dots (CPU cycles).
func (p *PPU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		if (p.lcdc & 0x80) == 0 { // LCD off
			continue
		}
		p.dot++
		var mode byte
		if p.ly >= 144 {
			mode = 1
		} else {
			switch {
			case p.dot < 80:
				mode = 2
			case p.dot < 80+172:
				mode = 3
			default:
				mode = 0
			}
		}
		entering3 := mode == 3 && (p.stat&0x03) != 3
		p.setMode(mode)
		if entering3 && p.ly < 144 {
			p.renderScanline(p.ly)
		}

		if p.dot >= 456 {
			p.dot = 0
			p.ly++
			if p.ly == 144 {
				p.frontDMG = p.backDMG
				p.frontCGB = p.backCGB
				if p.req != nil {
					p.req(0)
				}
				if (p.stat & (1 << 4)) != 0 {
					if p.req != nil {
						p.req(1)
					}
				}
			} else if p.ly > 153 {
				p.ly = 0
				p.winLine = 0
				p.winTriggeredThis = false
			}
			p.updateLYC()
			if p.ly >= 144 {
				p.setMode(1)
			} else {
				p.setMode(2)
			}
		}
	}
}

func (p *PPU) setMode(mode byte) {
	prev := p.stat & 0x03
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case 0: // HBlank
		if (p.stat & (1 << 3)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 2: // OAM
		if (p.stat & (1 << 5)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if (p.stat & (1 << 6)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	} else {
		p.stat &^= 1 << 2
	}
}

type ppuState struct {
	CGB                          bool
	VRAM                         [2][0x2000]byte
	OAM                          [0xA0]byte
	VBK                          byte
	BGPalRAM, OBJPalRAM          [64]byte
	BCPS, OCPS                   byte
	LCDC, STAT, SCY, SCX, LY, LYC byte
	BGP, OBP0, OBP1, WY, WX      byte
	Dot                          int
	WinLine                      int
	WinTriggeredThis             bool
	BackDMG                      [144][160]byte
	FrontDMG                     [144][160]byte
	BackCGB                      [144][160][3]byte
	FrontCGB                     [144][160][3]byte
}

// SaveState serializes all PPU state, including both framebuffers so a
// restored snapshot can be displayed immediately without waiting for the
// next VBlank.
func (p *PPU) SaveState() []byte {
	s := ppuState{
		CGB: p.cgb, VRAM: p.vram, OAM: p.oam, VBK: p.vbk,
		BGPalRAM: p.bgPalRAM, OBJPalRAM: p.objPalRAM, BCPS: p.bcps, OCPS: p.ocps,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1, WY: p.wy, WX: p.wx,
		Dot: p.dot, WinLine: p.winLine, WinTriggeredThis: p.winTriggeredThis,
		BackDMG: p.backDMG, FrontDMG: p.frontDMG, BackCGB: p.backCGB, FrontCGB: p.frontCGB,
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores state previously returned by SaveState. A decode error
// (e.g. empty or foreign data) leaves the PPU unchanged.
func (p *PPU) LoadState(data []byte) {
	var s ppuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	p.cgb = s.CGB
	p.vram = s.VRAM
	p.oam = s.OAM
	p.vbk = s.VBK
	p.bgPalRAM, p.objPalRAM = s.BGPalRAM, s.OBJPalRAM
	p.bcps, p.ocps = s.BCPS, s.OCPS
	p.lcdc, p.stat, p.scy, p.scx, p.ly, p.lyc = s.LCDC, s.STAT, s.SCY, s.SCX, s.LY, s.LYC
	p.bgp, p.obp0, p.obp1, p.wy, p.wx = s.BGP, s.OBP0, s.OBP1, s.WY, s.WX
	p.dot, p.winLine, p.winTriggeredThis = s.Dot, s.WinLine, s.WinTriggeredThis
	p.backDMG, p.frontDMG, p.backCGB, p.frontCGB = s.BackDMG, s.FrontDMG, s.BackCGB, s.FrontCGB
}

// Expose palettes and scroll for renderer convenience (optional helpers)
func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }
