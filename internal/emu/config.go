package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace        bool // stored only; Machine does not read it and logs nothing
	LimitFPS     bool // stored only; Machine does not throttle
	UseFetcherBG bool // BG-renderer preference; the PPU always uses the fetcher path

	// ForceCGB runs the cartridge on CGB hardware even if its header only
	// advertises DMG support, entering DMG-compatibility colorization.
	ForceCGB bool
	// Later: fast-forward, debugger flags, etc.
}
