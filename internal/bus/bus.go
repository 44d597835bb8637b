package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/FabianRolfMatthiasNoll/gbemu/internal/apu"
	"github.com/FabianRolfMatthiasNoll/gbemu/internal/cart"
	"github.com/FabianRolfMatthiasNoll/gbemu/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/gbemu/internal/timer"
)

// Bus wires the CPU-visible 16-bit address space to the cartridge, WRAM,
// HRAM, the PPU, the APU, the timer, OAM DMA, and the CGB banking/palette
// registers. It owns every device's single-T-state Tick in the fixed order
// the spec requires: timer, then OAM DMA, then APU, then PPU.
type Bus struct {
	cart cart.Cartridge

	cgb bool

	// Work RAM: 8 banks of 4 KiB each on CGB (bank 0 fixed at C000-CFFF,
	// SVBK selects the D000-DFFF bank; DMG only ever uses banks 0 and 1).
	wram [8][0x1000]byte
	svbk byte // FF70 bits 0..2 (0 aliases to 1)

	// High RAM (HRAM) 0xFF80-0xFFFE (127 bytes)
	hram [0x7F]byte

	ppu *ppu.PPU
	apu *apu.APU

	// Interrupt registers
	ie    byte // IE at 0xFFFF
	ifReg byte // IF at 0xFF0F (lower 5 bits used)

	// JOYP
	joypSelect byte
	joypad     byte
	joypLower4 byte

	timer *timer.Timer

	// Serial
	sb byte
	sc byte
	sw io.Writer

	// OAM DMA
	dma       byte
	dmaActive bool
	dmaSrc    uint16
	dmaIndex  int

	// HDMA (FF51-FF55): stub per spec - records the request and reports
	// "transfer complete" immediately without copying VRAM.
	hdmaSrc  uint16
	hdmaDst  uint16
	hdma5    byte

	// CGB-only banking/speed registers
	key0 byte // FF4C: DMG-compatibility flag, writable only pre-boot-lock
	key1 byte // FF4D: bit0 armed, bit7 current speed (stubbed: no actual doubling)

	// Boot ROM
	bootROM     []byte
	bootEnabled bool
}

// New constructs a DMG Bus with a ROM-only cartridge for convenience.
func New(rom []byte) *Bus {
	return NewWithCartridge(cart.NewCartridge(rom))
}

// NewWithCartridge wires a provided cartridge implementation in DMG mode.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c, timer: timer.New()}
	b.ppu = ppu.New(func(bit int) { b.ifReg |= 1 << bit })
	b.apu = apu.New(44100)
	return b
}

// NewCGBWithCartridge wires a provided cartridge implementation in CGB mode.
func NewCGBWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c, timer: timer.New(), cgb: true}
	b.ppu = ppu.NewCGB(func(bit int) { b.ifReg |= 1 << bit })
	b.apu = apu.New(44100)
	return b
}

// PPU returns the internal PPU for host-facing framebuffer access.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// APU returns the internal APU for host-facing audio pulls.
func (b *Bus) APU() *apu.APU { return b.apu }

// Cart returns the underlying cartridge for optional battery operations.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

func (b *Bus) wramBank() int {
	bank := int(b.svbk & 0x07)
	if bank == 0 {
		bank = 1
	}
	return bank
}

// dmaAccessible reports whether the CPU may touch addr while OAM DMA is
// running: HRAM, IE, and a small I/O whitelist (JOYP, timer, IF, DMA
// itself, and the LCD register block) stay reachable; everything else
// reads 0xFF and drops writes.
func dmaAccessible(addr uint16) bool {
	switch {
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return true
	case addr == 0xFFFF:
		return true
	case addr == 0xFF00:
		return true
	case addr >= 0xFF04 && addr <= 0xFF07:
		return true
	case addr == 0xFF0F:
		return true
	case addr == 0xFF46:
		return true
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return true
	}
	return false
}

// Read services a CPU read. While OAM DMA is active, everything outside
// dmaAccessible returns 0xFF; the DMA engine itself reads via readInternal.
func (b *Bus) Read(addr uint16) byte {
	if b.dmaActive && !dmaAccessible(addr) {
		return 0xFF
	}
	return b.readInternal(addr)
}

func (b *Bus) readInternal(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)

	case addr >= 0xC000 && addr <= 0xCFFF:
		return b.wram[0][addr-0xC000]
	case addr >= 0xD000 && addr <= 0xDFFF:
		return b.wram[b.wramBank()][addr-0xD000]

	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		if mirror <= 0xCFFF {
			return b.wram[0][mirror-0xC000]
		}
		return b.wram[b.wramBank()][mirror-0xD000]

	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF
	case addr == 0xFF00:
		res := byte(0xC0 | (b.joypSelect & 0x30) | 0x0F)
		if (b.joypSelect & 0x10) == 0 {
			if b.joypad&JoypRight != 0 {
				res &^= 0x01
			}
			if b.joypad&JoypLeft != 0 {
				res &^= 0x02
			}
			if b.joypad&JoypUp != 0 {
				res &^= 0x04
			}
			if b.joypad&JoypDown != 0 {
				res &^= 0x08
			}
		}
		if (b.joypSelect & 0x20) == 0 {
			if b.joypad&JoypA != 0 {
				res &^= 0x01
			}
			if b.joypad&JoypB != 0 {
				res &^= 0x02
			}
			if b.joypad&JoypSelectBtn != 0 {
				res &^= 0x04
			}
			if b.joypad&JoypStart != 0 {
				res &^= 0x08
			}
		}
		return res
	case addr == 0xFF04:
		return b.timer.DIV()
	case addr == 0xFF05:
		return b.timer.TIMA()
	case addr == 0xFF06:
		return b.timer.TMA()
	case addr == 0xFF07:
		return 0xF8 | b.timer.TAC()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B,
		addr == 0xFF4F, addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return b.dma
	case addr == 0xFF4C:
		if !b.cgb {
			return 0xFF
		}
		return b.key0
	case addr == 0xFF4D:
		if !b.cgb {
			return 0xFF
		}
		return b.key1
	case addr == 0xFF50:
		return 0xFF
	case addr >= 0xFF51 && addr <= 0xFF54:
		if !b.cgb {
			return 0xFF
		}
		return 0xFF
	case addr == 0xFF55:
		if !b.cgb {
			return 0xFF
		}
		return b.hdma5
	case addr == 0xFF70:
		if !b.cgb {
			return 0xFF
		}
		return 0xF8 | b.svbk
	case addr == 0xFFFF:
		return b.ie
	}
	return 0xFF
}

// Write services a CPU write. While OAM DMA is active, writes outside
// dmaAccessible are dropped.
func (b *Bus) Write(addr uint16, value byte) {
	if b.dmaActive && !dmaAccessible(addr) {
		return
	}
	b.writeInternal(addr, value)
}

func (b *Bus) writeInternal(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
		return
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
		return
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
		return

	case addr >= 0xC000 && addr <= 0xCFFF:
		b.wram[0][addr-0xC000] = value
		return
	case addr >= 0xD000 && addr <= 0xDFFF:
		b.wram[b.wramBank()][addr-0xD000] = value
		return

	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		if mirror <= 0xCFFF {
			b.wram[0][mirror-0xC000] = value
		} else {
			b.wram[b.wramBank()][mirror-0xD000] = value
		}
		return

	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
		return
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return
		}
		b.ppu.CPUWrite(addr, value)
		return
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return
	case addr == 0xFF00:
		b.joypSelect = value & 0x30
		b.updateJoypadIRQ()
		return
	case addr == 0xFF04:
		b.timer.WriteDIV()
		return
	case addr == 0xFF05:
		b.timer.WriteTIMA(value)
		return
	case addr == 0xFF06:
		b.timer.WriteTMA(value)
		return
	case addr == 0xFF07:
		b.timer.WriteTAC(value)
		return
	case addr == 0xFF01:
		b.sb = value
		return
	case addr == 0xFF02:
		b.sc = value & 0x81
		if (b.sc & 0x80) != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.ifReg |= 1 << 3
			b.sc &^= 0x80
		}
		return
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
		return
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
		return
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B,
		addr == 0xFF4F, addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		b.ppu.CPUWrite(addr, value)
		return
	case addr == 0xFF46:
		b.dma = value
		b.dmaActive = true
		b.dmaSrc = uint16(value) << 8
		b.dmaIndex = 0
		return
	case addr == 0xFF4C:
		// Writable only while the boot ROM has not yet locked it out.
		if b.cgb && b.bootEnabled {
			b.key0 = value
		}
		return
	case addr == 0xFF4D:
		if b.cgb {
			b.key1 = (b.key1 & 0x80) | (value & 0x01)
		}
		return
	case addr == 0xFF50:
		if value != 0x00 {
			b.bootEnabled = false
		}
		return
	case addr >= 0xFF51 && addr <= 0xFF52:
		if b.cgb {
			if addr == 0xFF51 {
				b.hdmaSrc = (b.hdmaSrc & 0x00FF) | (uint16(value) << 8)
			} else {
				b.hdmaSrc = (b.hdmaSrc & 0xFF00) | uint16(value&0xF0)
			}
		}
		return
	case addr >= 0xFF53 && addr <= 0xFF54:
		if b.cgb {
			if addr == 0xFF53 {
				b.hdmaDst = (b.hdmaDst & 0x00FF) | (uint16(value&0x1F) << 8)
			} else {
				b.hdmaDst = (b.hdmaDst & 0xFF00) | uint16(value&0xF0)
			}
		}
		return
	case addr == 0xFF55:
		if b.cgb {
			// Stub HDMA engine: report the transfer as already complete
			// (reads 0xFF: bit 7 set, no transfer active) without copying VRAM.
			b.hdma5 = 0xFF
		}
		return
	case addr == 0xFF70:
		if b.cgb {
			b.svbk = value & 0x07
		}
		return
	case addr == 0xFFFF:
		b.ie = value
		return
	}
}

// Joypad button bitmasks for SetJoypadState. Bits set mean "pressed".
const (
	JoypRight     = 1 << 0
	JoypLeft      = 1 << 1
	JoypUp        = 1 << 2
	JoypDown      = 1 << 3
	JoypA         = 1 << 4
	JoypB         = 1 << 5
	JoypSelectBtn = 1 << 6
	JoypStart     = 1 << 7
)

// SetJoypadState sets which buttons are currently pressed.
func (b *Bus) SetJoypadState(mask byte) {
	b.joypad = mask
	b.updateJoypadIRQ()
}

// SetSerialWriter sets a sink that receives bytes written via the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// SetBootROM loads a DMG boot ROM mapped at 0x0000-0x00FF until FF50 disables it.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// Tick advances every sub-device by the given number of T-states, in the
// fixed order the spec requires: timer, then OAM DMA, then APU, then PPU.
func (b *Bus) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		if b.timer.Tick() {
			b.ifReg |= 1 << 2
		}

		if b.dmaActive {
			if b.dmaIndex < 0xA0 {
				// The engine's own source read is never DMA-blocked, and
				// its OAM store bypasses the PPU's mode-2/3 access lock.
				v := b.readInternal(b.dmaSrc + uint16(b.dmaIndex))
				b.ppu.WriteOAMDMA(b.dmaIndex, v)
				b.dmaIndex++
			}
			if b.dmaIndex >= 0xA0 {
				b.dmaActive = false
			}
		}

		if b.apu != nil {
			b.apu.Tick(1)
		}

		if b.ppu != nil {
			b.ppu.Tick(1)
		}
	}
}

// updateJoypadIRQ recomputes JOYP lower 4 bits (active-low) and raises IF
// bit 4 on any 1->0 transition.
func (b *Bus) updateJoypadIRQ() {
	newLower := byte(0x0F)
	if (b.joypSelect & 0x10) == 0 {
		if b.joypad&JoypRight != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			newLower &^= 0x08
		}
	}
	if (b.joypSelect & 0x20) == 0 {
		if b.joypad&JoypA != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			newLower &^= 0x08
		}
	}
	falling := b.joypLower4 &^ newLower
	if falling != 0 {
		b.ifReg |= 1 << 4
	}
	b.joypLower4 = newLower
}

// RequestIF sets an interrupt-flag bit directly (used by the GB aggregate
// when illegal-opcode handling or other host-level logic needs to raise one).
func (b *Bus) RequestIF(bit int) { b.ifReg |= 1 << uint(bit) }

// --- Save/Load state ---

type busState struct {
	CGB       bool
	WRAM      [8][0x1000]byte
	SVBK      byte
	HRAM      [0x7F]byte
	IE, IF    byte
	JoypSel   byte
	Joypad    byte
	JoypL4    byte
	Timer     timer.State
	SB, SC    byte
	DMA       byte
	DMAActive bool
	DMASrc    uint16
	DMAIdx    int
	HDMASrc   uint16
	HDMADst   uint16
	HDMA5     byte
	KEY0      byte
	KEY1      byte
	BootEn    bool
}

// SaveState serializes bus-owned registers plus the PPU/APU/cartridge
// sub-states, each length-prefixed via gob so LoadState can restore them
// independently.
func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		CGB: b.cgb, WRAM: b.wram, SVBK: b.svbk, HRAM: b.hram,
		IE: b.ie, IF: b.ifReg,
		JoypSel: b.joypSelect, Joypad: b.joypad, JoypL4: b.joypLower4,
		Timer: b.timer.Save(),
		SB:    b.sb, SC: b.sc,
		DMA: b.dma, DMAActive: b.dmaActive, DMASrc: b.dmaSrc, DMAIdx: b.dmaIndex,
		HDMASrc: b.hdmaSrc, HDMADst: b.hdmaDst, HDMA5: b.hdma5,
		KEY0: b.key0, KEY1: b.key1,
		BootEn: b.bootEnabled,
	}
	_ = enc.Encode(s)
	if b.ppu != nil {
		_ = enc.Encode(b.ppu.SaveState())
	} else {
		_ = enc.Encode([]byte(nil))
	}
	if b.apu != nil {
		_ = enc.Encode(b.apu.SaveState())
	} else {
		_ = enc.Encode([]byte(nil))
	}
	if bb, ok := b.cart.(interface{ SaveState() []byte }); ok {
		_ = enc.Encode(bb.SaveState())
	} else {
		_ = enc.Encode([]byte(nil))
	}
	return buf.Bytes()
}

// LoadState restores state previously returned by SaveState. A decode error
// leaves the bus unchanged.
func (b *Bus) LoadState(data []byte) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s busState
	if err := dec.Decode(&s); err != nil {
		return
	}
	b.cgb = s.CGB
	b.wram = s.WRAM
	b.svbk = s.SVBK
	b.hram = s.HRAM
	b.ie, b.ifReg = s.IE, s.IF
	b.joypSelect, b.joypad, b.joypLower4 = s.JoypSel, s.Joypad, s.JoypL4
	b.timer.Load(s.Timer)
	b.sb, b.sc = s.SB, s.SC
	b.dma, b.dmaActive, b.dmaSrc, b.dmaIndex = s.DMA, s.DMAActive, s.DMASrc, s.DMAIdx
	b.hdmaSrc, b.hdmaDst, b.hdma5 = s.HDMASrc, s.HDMADst, s.HDMA5
	b.key0, b.key1 = s.KEY0, s.KEY1
	b.bootEnabled = s.BootEn

	var ps []byte
	if err := dec.Decode(&ps); err == nil && b.ppu != nil {
		b.ppu.LoadState(ps)
	}
	var as []byte
	if err := dec.Decode(&as); err == nil && b.apu != nil {
		b.apu.LoadState(as)
	}
	var cs []byte
	if err := dec.Decode(&cs); err == nil {
		if bb, ok := b.cart.(interface{ LoadState([]byte) }); ok {
			bb.LoadState(cs)
		}
	}
}
