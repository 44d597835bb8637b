package emu

// compatPalette maps the 2-bit DMG shade values (0=lightest..3=darkest)
// produced by the background/object palette registers to RGB colors, the
// same substitution the CGB boot ROM performs for DMG carts lacking a CGB
// flag. Index order matches compatTitleExact/compatTitleContains in
// compat_tables.go.
type compatPalette struct {
	BG, OBJ0, OBJ1 [4][3]byte
}

var cgbCompatSetNames = []string{
	"Green",
	"Sepia",
	"Blue",
	"Red",
	"Pastel",
	"Classic Gray",
}

var cgbCompatSets = []compatPalette{
	{ // 0: Green - original Game Boy tint
		BG:   [4][3]byte{{0xE0, 0xF8, 0xD0}, {0x88, 0xC0, 0x70}, {0x34, 0x68, 0x56}, {0x08, 0x18, 0x20}},
		OBJ0: [4][3]byte{{0xE0, 0xF8, 0xD0}, {0x88, 0xC0, 0x70}, {0x34, 0x68, 0x56}, {0x08, 0x18, 0x20}},
		OBJ1: [4][3]byte{{0xE0, 0xF8, 0xD0}, {0x88, 0xC0, 0x70}, {0x34, 0x68, 0x56}, {0x08, 0x18, 0x20}},
	},
	{ // 1: Sepia
		BG:   [4][3]byte{{0xF8, 0xEC, 0xD8}, {0xD0, 0xA0, 0x68}, {0x8C, 0x5C, 0x34}, {0x30, 0x1C, 0x10}},
		OBJ0: [4][3]byte{{0xF8, 0xEC, 0xD8}, {0xD0, 0xA0, 0x68}, {0x8C, 0x5C, 0x34}, {0x30, 0x1C, 0x10}},
		OBJ1: [4][3]byte{{0xF8, 0xEC, 0xD8}, {0xC8, 0x98, 0x60}, {0x80, 0x50, 0x2C}, {0x28, 0x18, 0x0C}},
	},
	{ // 2: Blue
		BG:   [4][3]byte{{0xF8, 0xF8, 0xF8}, {0xA0, 0xC0, 0xF8}, {0x50, 0x70, 0xC0}, {0x08, 0x10, 0x40}},
		OBJ0: [4][3]byte{{0xF8, 0xF8, 0xF8}, {0xF8, 0xA8, 0xA8}, {0xC0, 0x50, 0x50}, {0x40, 0x08, 0x08}},
		OBJ1: [4][3]byte{{0xF8, 0xF8, 0xF8}, {0xA0, 0xC0, 0xF8}, {0x50, 0x70, 0xC0}, {0x08, 0x10, 0x40}},
	},
	{ // 3: Red
		BG:   [4][3]byte{{0xF8, 0xF8, 0xF8}, {0xF8, 0xB0, 0x88}, {0xD8, 0x58, 0x48}, {0x40, 0x10, 0x10}},
		OBJ0: [4][3]byte{{0xF8, 0xF8, 0xF8}, {0xF8, 0xB0, 0x88}, {0xD8, 0x58, 0x48}, {0x40, 0x10, 0x10}},
		OBJ1: [4][3]byte{{0xF8, 0xF8, 0xF8}, {0xA0, 0xC0, 0xF8}, {0x50, 0x70, 0xC0}, {0x08, 0x10, 0x40}},
	},
	{ // 4: Pastel
		BG:   [4][3]byte{{0xFF, 0xFF, 0xE0}, {0xC8, 0xE8, 0xB8}, {0x98, 0xA8, 0xE0}, {0x38, 0x38, 0x70}},
		OBJ0: [4][3]byte{{0xFF, 0xFF, 0xE0}, {0xF8, 0xC0, 0xD8}, {0xD0, 0x78, 0x98}, {0x50, 0x18, 0x38}},
		OBJ1: [4][3]byte{{0xFF, 0xFF, 0xE0}, {0xC8, 0xE8, 0xB8}, {0x98, 0xA8, 0xE0}, {0x38, 0x38, 0x70}},
	},
	{ // 5: Classic Gray - neutral fallback for the checksum-modulo bucket
		BG:   [4][3]byte{{0xFF, 0xFF, 0xFF}, {0xAA, 0xAA, 0xAA}, {0x55, 0x55, 0x55}, {0x00, 0x00, 0x00}},
		OBJ0: [4][3]byte{{0xFF, 0xFF, 0xFF}, {0xAA, 0xAA, 0xAA}, {0x55, 0x55, 0x55}, {0x00, 0x00, 0x00}},
		OBJ1: [4][3]byte{{0xFF, 0xFF, 0xFF}, {0xAA, 0xAA, 0xAA}, {0x55, 0x55, 0x55}, {0x00, 0x00, 0x00}},
	},
}

func clampPaletteID(id int) int {
	if id < 0 {
		return 0
	}
	if id >= len(cgbCompatSets) {
		return len(cgbCompatSets) - 1
	}
	return id
}
