package emu

import (
	"encoding/binary"
	"testing"
)

// buildROMOnlyROM makes a synthetic 32KiB ROM-only cartridge with a valid
// header and the given code bytes placed at 0x0100 (the post-boot entry
// point), matching the header fixture style used by internal/cart's tests.
func buildROMOnlyROM(code ...byte) []byte {
	rom := make([]byte, 32*1024)
	copy(rom[0x0134:0x0144], []byte("TESTROM"))
	rom[0x0143] = 0x00 // CGB flag: DMG only
	rom[0x0147] = 0x00 // ROM ONLY
	rom[0x0148] = 0x00 // 32 KiB
	rom[0x0149] = 0x00 // no RAM
	rom[0x014B] = 0x33

	copy(rom[0x0100:], code)

	var hsum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		hsum = hsum - rom[addr] - 1
	}
	rom[0x014D] = hsum

	var gsum uint16
	for i := range rom {
		if i == 0x014E || i == 0x014F {
			continue
		}
		gsum += uint16(rom[i])
	}
	binary.BigEndian.PutUint16(rom[0x014E:0x0150], gsum)
	return rom
}

func TestLoadCartridgeResetsToPostBootPC(t *testing.T) {
	m := New(Config{})
	rom := buildROMOnlyROM(0x00, 0x00, 0x00) // NOP NOP NOP
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if m.cpu.PC != 0x0100 {
		t.Fatalf("PC after LoadCartridge = %#04x, want 0x0100", m.cpu.PC)
	}
	if m.ROMTitle() != "TESTROM" {
		t.Fatalf("ROMTitle = %q, want %q", m.ROMTitle(), "TESTROM")
	}
}

func TestStepInstructionAdvancesPC(t *testing.T) {
	m := New(Config{})
	rom := buildROMOnlyROM(0x00, 0x00) // NOP NOP
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	cyc, err := m.StepInstruction()
	if err != nil {
		t.Fatalf("StepInstruction: %v", err)
	}
	if cyc != 4 {
		t.Fatalf("NOP cycles = %d, want 4", cyc)
	}
	if m.cpu.PC != 0x0101 {
		t.Fatalf("PC after one NOP = %#04x, want 0x0101", m.cpu.PC)
	}
}

func TestStepInstructionIllegalOpcode(t *testing.T) {
	m := New(Config{})
	rom := buildROMOnlyROM(0xD3) // undefined opcode
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if _, err := m.StepInstruction(); err != ErrIllegalInstruction {
		t.Fatalf("StepInstruction err = %v, want ErrIllegalInstruction", err)
	}
	// The machine stays latched on subsequent steps.
	if _, err := m.StepInstruction(); err != ErrIllegalInstruction {
		t.Fatalf("StepInstruction err on second call = %v, want ErrIllegalInstruction", err)
	}
}

func TestBreakpointStopsBeforeExecuting(t *testing.T) {
	m := New(Config{})
	rom := buildROMOnlyROM(0x00, 0x00, 0x00)
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.AddBreakpoint(0x0101)
	if _, err := m.StepInstruction(); err != nil {
		t.Fatalf("first step: %v", err)
	}
	if m.cpu.PC != 0x0101 {
		t.Fatalf("PC = %#04x, want 0x0101", m.cpu.PC)
	}
	if _, err := m.StepInstruction(); err != ErrBreakpoint {
		t.Fatalf("StepInstruction err = %v, want ErrBreakpoint", err)
	}
	// PC must not have advanced past the breakpoint.
	if m.cpu.PC != 0x0101 {
		t.Fatalf("PC after breakpoint hit = %#04x, want unchanged 0x0101", m.cpu.PC)
	}
	m.ClearBreakpoints()
	if _, err := m.StepInstruction(); err != nil {
		t.Fatalf("step after ClearBreakpoints: %v", err)
	}
}

func TestSetButtonsAppliesToJoypad(t *testing.T) {
	m := New(Config{})
	rom := buildROMOnlyROM(0x00)
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	// Select the action-button row (bit5=0) and confirm A reads low once pressed.
	m.bus.Write(0xFF00, 0x10)
	m.SetButtons(Buttons{A: true})
	if v := m.bus.Read(0xFF00); v&0x01 != 0 {
		t.Fatalf("JOYP = %#02x, want bit0 (A) low when A is held", v)
	}
	m.SetButtons(Buttons{})
	if v := m.bus.Read(0xFF00); v&0x01 == 0 {
		t.Fatalf("JOYP = %#02x, want bit0 (A) high when no buttons held", v)
	}
}

func TestSaveStateLoadStateRoundTrip(t *testing.T) {
	m := New(Config{})
	rom := buildROMOnlyROM(0x3E, 0x42, 0x00) // LD A,0x42; NOP
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if _, err := m.StepInstruction(); err != nil {
		t.Fatalf("step LD A,0x42: %v", err)
	}
	if m.cpu.A != 0x42 {
		t.Fatalf("A = %#02x, want 0x42", m.cpu.A)
	}
	snap := m.SaveState()
	if snap == nil {
		t.Fatalf("SaveState returned nil")
	}

	// Mutate further, then restore and confirm the mutation is undone.
	if _, err := m.StepInstruction(); err != nil {
		t.Fatalf("step NOP: %v", err)
	}
	m.cpu.A = 0x00
	if err := m.LoadState(snap); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if m.cpu.A != 0x42 {
		t.Fatalf("A after LoadState = %#02x, want restored 0x42", m.cpu.A)
	}
	if m.cpu.PC != 0x0102 {
		t.Fatalf("PC after LoadState = %#04x, want restored 0x0102", m.cpu.PC)
	}
}

func TestCompatPaletteCycling(t *testing.T) {
	m := New(Config{})
	rom := buildROMOnlyROM(0x00)
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.ResetCGBPostBoot(true)
	if !m.IsCGBCompat() {
		t.Fatalf("IsCGBCompat() = false after ResetCGBPostBoot(true) on a DMG-only cart")
	}
	start := m.CurrentCompatPalette()
	m.CycleCompatPalette(1)
	if m.CurrentCompatPalette() == start {
		t.Fatalf("CycleCompatPalette(1) did not change palette from %d", start)
	}
	// Cycling all the way around (n total steps) returns to the start palette.
	n := len(cgbCompatSetNames)
	for i := 0; i < n-1; i++ {
		m.CycleCompatPalette(1)
	}
	if m.CurrentCompatPalette() != start {
		t.Fatalf("CycleCompatPalette did not wrap back to %d after a full cycle, got %d", start, m.CurrentCompatPalette())
	}
	if name := m.CompatPaletteName(0); name != cgbCompatSetNames[0] {
		t.Fatalf("CompatPaletteName(0) = %q, want %q", name, cgbCompatSetNames[0])
	}
}

func TestResetPostBootClearsCompatMode(t *testing.T) {
	m := New(Config{})
	rom := buildROMOnlyROM(0x00)
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.ResetCGBPostBoot(true)
	if !m.IsCGBCompat() {
		t.Fatalf("expected compat mode engaged before ResetPostBoot")
	}
	m.ResetPostBoot()
	if m.IsCGBCompat() {
		t.Fatalf("ResetPostBoot() left IsCGBCompat() true, want a hard reset to plain mode")
	}
	if m.UseCGBBG() {
		t.Fatalf("ResetPostBoot() left UseCGBBG() true on a DMG-only cart")
	}
}
