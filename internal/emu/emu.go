package emu

import (
	"bytes"
	"encoding/gob"
	"errors"
	"io"
	"os"

	"github.com/FabianRolfMatthiasNoll/gbemu/internal/bus"
	"github.com/FabianRolfMatthiasNoll/gbemu/internal/cart"
	"github.com/FabianRolfMatthiasNoll/gbemu/internal/cpu"
)

const (
	screenW = 160
	screenH = 144
	// cyclesPerFrame is the DMG/CGB-single-speed T-state budget for one
	// 154-line (70224 dot) video frame.
	cyclesPerFrame = 70224
)

// ErrIllegalInstruction is returned once the CPU latches an undefined
// opcode or STOP; the machine stops advancing until reset or reloaded.
var ErrIllegalInstruction = errors.New("emu: illegal instruction")

// ErrBreakpoint is returned when PC matches a registered breakpoint, before
// the instruction at that address executes.
var ErrBreakpoint = errors.New("emu: breakpoint hit")

// ErrNoCartridge is returned by operations that require a loaded cartridge.
var ErrNoCartridge = errors.New("emu: no cartridge loaded")

// Buttons is the instantaneous state of the eight Game Boy input lines.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Machine wires together the CPU, bus, PPU, APU and cartridge into the
// host-facing Game Boy/Game Boy Color emulator surface used by cmd/gbemu
// and internal/ui.
type Machine struct {
	cfg Config

	bus  *bus.Bus
	cpu  *cpu.CPU
	cart cart.Cartridge

	header  *cart.Header
	rom     []byte
	bootROM []byte
	romPath string

	// cgbNative is true when the cartridge header itself requests CGB
	// hardware (or Config.ForceCGB overrides it). useCGBBG is the engaged,
	// live rendering mode for the current session; wantCGBBG is the
	// persisted user preference that survives a ResetPostBoot/LoadCartridge
	// until re-applied via ResetCGBPostBoot.
	cgbNative  bool
	useCGBBG   bool
	wantCGBBG  bool
	compatMode bool
	compatID   int

	buttons      Buttons
	serialWriter io.Writer
	breakpoints  map[uint16]bool

	lastErr error
	fb      []byte // RGBA, screenW*screenH*4
}

// New creates an unloaded Machine; call LoadCartridge or LoadROMFromFile
// before stepping it.
func New(cfg Config) *Machine {
	return &Machine{
		cfg:         cfg,
		fb:          make([]byte, screenW*screenH*4),
		breakpoints: make(map[uint16]bool),
	}
}

// LoadCartridge parses rom's header, builds the matching MBC, wires a fresh
// Bus/CPU pair, and resets to the post-boot state (or PC 0 if a boot ROM of
// at least 256 bytes is supplied).
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return err
	}
	m.rom = rom
	m.header = h
	m.cart = cart.NewCartridge(rom)
	m.cgbNative = m.cfg.ForceCGB || h.CGBFlag&0x80 != 0
	if len(boot) >= 0x100 {
		m.bootROM = boot
	}
	m.useCGBBG = m.cgbNative
	m.compatMode = false
	m.compatID = 0
	m.resetCore(len(m.bootROM) >= 0x100)
	return nil
}

// LoadROMFromFile reads path (transparently unzipping if it's a zip archive
// via cart.LoadROM) and loads it, reusing any previously set boot ROM.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rom, err := cart.LoadROM(data)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(rom, m.bootROM); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// SetBootROM stores the DMG boot ROM image. If a cartridge is already
// loaded, it's applied immediately; otherwise it's picked up by the next
// LoadCartridge/LoadROMFromFile call.
func (m *Machine) SetBootROM(data []byte) {
	m.bootROM = data
	if m.bus != nil && len(data) >= 0x100 {
		m.bus.SetBootROM(data)
	}
}

// ErrBootROMSize is returned by LoadBootROM for images that are not the
// 256 bytes the DMG boot overlay occupies.
var ErrBootROMSize = errors.New("emu: boot ROM must be exactly 256 bytes")

// LoadBootROM validates and stores a boot ROM image. Unlike SetBootROM it
// rejects images of the wrong size instead of ignoring them.
func (m *Machine) LoadBootROM(data []byte) error {
	if len(data) != 0x100 {
		return ErrBootROMSize
	}
	m.SetBootROM(data)
	return nil
}

// rebuildBus constructs a fresh Bus/CPU pair for the currently loaded
// cartridge, honoring cgbNative for VRAM/WRAM banking and the CGB register
// set, and reattaches the serial writer and current button state.
func (m *Machine) rebuildBus() {
	if m.cgbNative {
		m.bus = bus.NewCGBWithCartridge(m.cart)
	} else {
		m.bus = bus.NewWithCartridge(m.cart)
	}
	if m.serialWriter != nil {
		m.bus.SetSerialWriter(m.serialWriter)
	}
	m.cpu = cpu.New(m.bus)
	m.applyButtons()
}

// resetCore rebuilds the bus/CPU and places PC either at 0x0000 (boot ROM
// runs first) or 0x0100 with typical post-boot register values.
func (m *Machine) resetCore(useBoot bool) {
	m.rebuildBus()
	if useBoot && len(m.bootROM) >= 0x100 {
		m.bus.SetBootROM(m.bootROM)
		m.cpu.SetPC(0x0000)
	} else {
		m.cpu.ResetNoBoot()
		m.cpu.SetPC(0x0100)
	}
	m.lastErr = nil
}

// ResetPostBoot performs a hard reset back to plain DMG/CGB-native
// rendering, skipping the boot ROM.
func (m *Machine) ResetPostBoot() {
	m.useCGBBG = m.cgbNative
	m.compatMode = false
	m.resetCore(false)
}

// ResetWithBoot resets and re-runs the boot ROM from PC 0, preserving the
// current CGB-compatibility mode.
func (m *Machine) ResetWithBoot() {
	m.resetCore(true)
}

// ResetCGBPostBoot engages CGB-style rendering. For a DMG-only cartridge
// with compat=true, it also enters DMG-compatibility colorization using the
// title/checksum heuristic in compat_tables.go, replacing any palette ID set
// earlier via SetCompatPalette. Native CGB cartridges always render their
// own palette RAM regardless of compat.
func (m *Machine) ResetCGBPostBoot(compat bool) {
	m.useCGBBG = true
	if compat && !m.cgbNative {
		m.compatMode = true
		if id, ok := autoCompatPaletteFromHeader(m.header); ok {
			m.compatID = clampPaletteID(id)
		}
	} else {
		m.compatMode = false
	}
	m.resetCore(false)
}

// SetUseCGBBG records the user's desired CGB-colorization preference,
// reported by WantCGBColors. Neither reset reads it; the host applies it
// by calling ResetCGBPostBoot or ResetPostBoot itself.
func (m *Machine) SetUseCGBBG(v bool) { m.wantCGBBG = v }

// WantCGBColors reports the persisted user preference set by SetUseCGBBG.
func (m *Machine) WantCGBColors() bool { return m.wantCGBBG }

// UseCGBBG reports whether the current session is actually rendering in
// CGB mode (native CGB cartridge, or DMG compat-colorization engaged).
func (m *Machine) UseCGBBG() bool { return m.useCGBBG }

// IsCGBCompat reports whether the running DMG-only cartridge is being
// colorized via a compat palette rather than its own CGB palette RAM.
func (m *Machine) IsCGBCompat() bool { return m.compatMode }

// CurrentCompatPalette returns the active compat palette ID.
func (m *Machine) CurrentCompatPalette() int { return m.compatID }

// SetCompatPalette pins the compat palette ID, clamped to the available set.
func (m *Machine) SetCompatPalette(id int) { m.compatID = clampPaletteID(id) }

// CycleCompatPalette advances the compat palette by delta, wrapping around.
func (m *Machine) CycleCompatPalette(delta int) {
	n := len(cgbCompatSets)
	m.compatID = ((m.compatID+delta)%n + n) % n
}

// CompatPaletteName returns the display name for a compat palette ID.
func (m *Machine) CompatPaletteName(id int) string {
	return cgbCompatSetNames[clampPaletteID(id)]
}

// SetUseFetcherBG stores the BG-rendering preference; the PPU has a single
// fetcher-based scanline renderer, so the value does not change output.
func (m *Machine) SetUseFetcherBG(v bool) { m.cfg.UseFetcherBG = v }

// SetSerialWriter attaches w as the destination for bytes shifted out over
// the serial port (used by blargg-style test ROMs to report pass/fail).
func (m *Machine) SetSerialWriter(w io.Writer) {
	m.serialWriter = w
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// SetButtons updates the instantaneous joypad state applied on the next
// JOYP read.
func (m *Machine) SetButtons(b Buttons) {
	m.buttons = b
	m.applyButtons()
}

func (m *Machine) applyButtons() {
	if m.bus == nil {
		return
	}
	var mask byte
	if m.buttons.Right {
		mask |= bus.JoypRight
	}
	if m.buttons.Left {
		mask |= bus.JoypLeft
	}
	if m.buttons.Up {
		mask |= bus.JoypUp
	}
	if m.buttons.Down {
		mask |= bus.JoypDown
	}
	if m.buttons.A {
		mask |= bus.JoypA
	}
	if m.buttons.B {
		mask |= bus.JoypB
	}
	if m.buttons.Select {
		mask |= bus.JoypSelectBtn
	}
	if m.buttons.Start {
		mask |= bus.JoypStart
	}
	m.bus.SetJoypadState(mask)
}

// SetBreakpoints replaces the set of PCs that halt RunUntilFrame/StepFrame.
func (m *Machine) SetBreakpoints(pcs []uint16) {
	m.breakpoints = make(map[uint16]bool, len(pcs))
	for _, pc := range pcs {
		m.breakpoints[pc] = true
	}
}

// AddBreakpoint registers a single breakpoint address.
func (m *Machine) AddBreakpoint(pc uint16) { m.breakpoints[pc] = true }

// ClearBreakpoints removes all registered breakpoints.
func (m *Machine) ClearBreakpoints() { m.breakpoints = make(map[uint16]bool) }

// StepInstruction executes exactly one CPU instruction (or interrupt
// dispatch), returning the T-states it consumed. It returns ErrBreakpoint
// if PC matches a registered breakpoint before executing, or
// ErrIllegalInstruction if the CPU has latched an undefined opcode.
func (m *Machine) StepInstruction() (int, error) {
	if m.cpu == nil {
		return 0, ErrNoCartridge
	}
	if _, illegal := m.cpu.IllegalOpcode(); illegal {
		return 0, ErrIllegalInstruction
	}
	if len(m.breakpoints) > 0 && m.breakpoints[m.cpu.PC] {
		return 0, ErrBreakpoint
	}
	cyc := m.cpu.Step()
	if _, illegal := m.cpu.IllegalOpcode(); illegal {
		return cyc, ErrIllegalInstruction
	}
	return cyc, nil
}

// RunUntilFrame steps instructions until at least one full frame's worth of
// T-states (70224) has elapsed, or until a breakpoint/illegal instruction
// stops execution early.
func (m *Machine) RunUntilFrame() error {
	if m.cpu == nil {
		return ErrNoCartridge
	}
	total := 0
	for total < cyclesPerFrame {
		cyc, err := m.StepInstruction()
		total += cyc
		if err != nil {
			m.lastErr = err
			return err
		}
	}
	return nil
}

// StepFrame runs one frame and refreshes the RGBA framebuffer. If the frame
// stops early (breakpoint/illegal instruction), the last rendered
// framebuffer is left untouched; callers can inspect Err() for the cause.
func (m *Machine) StepFrame() {
	if err := m.RunUntilFrame(); err != nil {
		return
	}
	m.renderFramebuffer()
}

// StepFrameNoRender runs one frame without touching the framebuffer, for
// headless serial-output-driven test harnesses.
func (m *Machine) StepFrameNoRender() {
	_ = m.RunUntilFrame()
}

// Err returns the error (if any) that stopped the most recent
// RunUntilFrame/StepFrame/StepFrameNoRender call early.
func (m *Machine) Err() error { return m.lastErr }

// Framebuffer returns the current RGBA frame, 160x144x4 bytes, row-major.
func (m *Machine) Framebuffer() []byte { return m.fb }

// FrameDMG exposes the PPU's raw 2-bit-shade DMG framebuffer.
func (m *Machine) FrameDMG() *[144][160]byte {
	if m.bus == nil {
		return nil
	}
	return m.bus.PPU().FrameDMG()
}

// FrameCGB exposes the PPU's 24-bit CGB framebuffer.
func (m *Machine) FrameCGB() *[144][160][3]byte {
	if m.bus == nil {
		return nil
	}
	return m.bus.PPU().FrameCGB()
}

var dmgGray = [4]byte{0xFF, 0xAA, 0x55, 0x00}

// renderFramebuffer copies the PPU's internal frame into the RGBA host
// buffer, applying either straight DMG grayscale, a DMG-compat color
// palette, or the native CGB 15-bit-derived RGB frame.
func (m *Machine) renderFramebuffer() {
	if m.bus == nil {
		return
	}
	ppu := m.bus.PPU()
	if m.useCGBBG && m.cgbNative {
		frame := ppu.FrameCGB()
		for y := 0; y < screenH; y++ {
			for x := 0; x < screenW; x++ {
				rgb := frame[y][x]
				i := (y*screenW + x) * 4
				m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = rgb[0], rgb[1], rgb[2], 0xFF
			}
		}
		return
	}
	frame := ppu.FrameDMG()
	var pal *compatPalette
	if m.compatMode {
		pal = &cgbCompatSets[clampPaletteID(m.compatID)]
	}
	for y := 0; y < screenH; y++ {
		for x := 0; x < screenW; x++ {
			shade := frame[y][x] & 0x03
			i := (y*screenW + x) * 4
			if pal != nil {
				rgb := pal.BG[shade]
				m.fb[i+0], m.fb[i+1], m.fb[i+2] = rgb[0], rgb[1], rgb[2]
			} else {
				g := dmgGray[shade]
				m.fb[i+0], m.fb[i+1], m.fb[i+2] = g, g, g
			}
			m.fb[i+3] = 0xFF
		}
	}
}

// PullAudio drains up to max stereo frames (interleaved L,R int16) from the
// APU's output buffer.
func (m *Machine) PullAudio(max int) []int16 { return m.APUPullStereo(max) }

// APUPullStereo drains up to max stereo frames from the APU.
func (m *Machine) APUPullStereo(max int) []int16 {
	if m.bus == nil || m.bus.APU() == nil {
		return nil
	}
	return m.bus.APU().PullStereo(max)
}

// APUBufferedStereo reports how many stereo frames are currently buffered.
func (m *Machine) APUBufferedStereo() int {
	if m.bus == nil || m.bus.APU() == nil {
		return 0
	}
	return m.bus.APU().StereoAvailable()
}

// APUCapBufferedStereo trims the APU's buffered audio down to max frames,
// used when entering fast-forward to bound latency.
func (m *Machine) APUCapBufferedStereo(max int) {
	if m.bus != nil && m.bus.APU() != nil {
		m.bus.APU().CapStereoBuffered(max)
	}
}

// APUClearAudioLatency discards all buffered audio, used when pausing,
// muting, or resyncing after fast-forward.
func (m *Machine) APUClearAudioLatency() {
	if m.bus != nil && m.bus.APU() != nil {
		m.bus.APU().ClearStereoBuffer()
	}
}

// ROMPath returns the path LoadROMFromFile was last called with, or "" if
// the machine was loaded via LoadCartridge directly or not at all.
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header's title, or "" if none is loaded.
func (m *Machine) ROMTitle() string {
	if m.header == nil {
		return ""
	}
	return m.header.Title
}

// LoadBattery restores external cartridge RAM from a prior .sav payload.
// Returns false only for cartridges without RAM persistence support
// (ROM-only and unsupported types); MBC1, MBC2 and MBC3 cartridges return
// true whether or not their header declares a battery.
func (m *Machine) LoadBattery(data []byte) bool {
	bb, ok := m.cart.(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// SaveBattery returns a copy of the cartridge's external RAM for persisting
// to a .sav file. Returns false only for cartridges without RAM persistence
// support; MBC1, MBC2 and MBC3 cartridges return true (possibly with empty
// data) whether or not their header declares a battery.
func (m *Machine) SaveBattery() ([]byte, bool) {
	bb, ok := m.cart.(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	return bb.SaveRAM(), true
}

type machineState struct {
	CGBNative, UseCGBBG, CompatMode bool
	CompatID                        int
	CPU                             []byte
	Bus                             []byte
}

// SaveState serializes the CPU and bus (which in turn serializes the PPU,
// APU, timer, and cartridge) into a single opaque blob. The ROM image
// itself is not included; the caller must reload the same cartridge before
// calling LoadState.
func (m *Machine) SaveState() []byte {
	if m.cpu == nil || m.bus == nil {
		return nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	_ = enc.Encode(machineState{
		CGBNative: m.cgbNative, UseCGBBG: m.useCGBBG, CompatMode: m.compatMode, CompatID: m.compatID,
		CPU: m.cpu.SaveState(), Bus: m.bus.SaveState(),
	})
	return buf.Bytes()
}

// LoadState restores a blob previously returned by SaveState.
func (m *Machine) LoadState(data []byte) error {
	if m.cpu == nil || m.bus == nil {
		return ErrNoCartridge
	}
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s machineState
	if err := dec.Decode(&s); err != nil {
		return err
	}
	m.cgbNative, m.useCGBBG, m.compatMode, m.compatID = s.CGBNative, s.UseCGBBG, s.CompatMode, s.CompatID
	m.cpu.LoadState(s.CPU)
	m.bus.LoadState(s.Bus)
	m.lastErr = nil
	return nil
}

// SaveStateToFile writes SaveState's output to path.
func (m *Machine) SaveStateToFile(path string) error {
	return os.WriteFile(path, m.SaveState(), 0644)
}

// LoadStateFromFile reads path and applies it via LoadState.
func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}
