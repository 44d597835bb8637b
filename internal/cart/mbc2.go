package cart

// MBC2 implements ROM banking (4 bits, up to 256KB) and the built-in
// 512x4-bit RAM addressed by the low nibble of each byte. The RAM-enable
// and ROM-bank-select writes share the 0x0000-0x3FFF range, distinguished
// by address bit 8: bit8=0 selects RAM enable, bit8=1 selects ROM bank.
type MBC2 struct {
	rom []byte
	ram [512]byte // only the low nibble of each byte is meaningful

	ramEnabled bool
	romBank    byte // 4 bits (1..15)
}

func NewMBC2(rom []byte) *MBC2 {
	return &MBC2{rom: rom, romBank: 1}
}

func (m *MBC2) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x0F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		return 0xF0 | (m.ram[addr&0x1FF] & 0x0F)
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value byte) {
	switch {
	case addr < 0x4000:
		if addr&0x0100 == 0 {
			// RAM enable: low 4 bits must be 0x0A
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			bank := value & 0x0F
			if bank == 0 {
				bank = 1
			}
			m.romBank = bank
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		m.ram[addr&0x1FF] = value & 0x0F
	}
}

func (m *MBC2) SaveRAM() []byte {
	out := make([]byte, len(m.ram))
	copy(out, m.ram[:])
	return out
}

func (m *MBC2) LoadRAM(data []byte) {
	n := copy(m.ram[:], data)
	_ = n
}

func (m *MBC2) SaveState() []byte {
	out := make([]byte, 0, 2+len(m.ram))
	out = append(out, boolByte(m.ramEnabled), m.romBank)
	out = append(out, m.ram[:]...)
	return out
}

func (m *MBC2) LoadState(data []byte) {
	if len(data) < 2 {
		return
	}
	m.ramEnabled = data[0] != 0
	m.romBank = data[1]
	if len(data) >= 2+len(m.ram) {
		copy(m.ram[:], data[2:2+len(m.ram)])
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
