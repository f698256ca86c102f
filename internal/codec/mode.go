package codec

import (
	"fmt"
	"regexp"
	"strconv"
)

// Mode is the canonical WxHxBxC display-mode descriptor shared by the
// HTTP and socket protocols.
type Mode struct {
	Width  int
	Height int
	Bits   int
	Char   byte // 'B', 'G', 'R', or 'C'
}

var modeRe = regexp.MustCompile(`^(\d+)x(\d+)x(1|2|8|24)x([BGRC])$`)

// bitsForChar enforces the bits<->mode_char consistency rule.
var bitsForChar = map[byte]int{
	'B': 1,
	'R': 2,
	'G': 8,
	'C': 24,
}

// ParseMode parses a string like "800x480x1xB" into a Mode.
func ParseMode(s string) (Mode, error) {
	m := modeRe.FindStringSubmatch(s)
	if m == nil {
		return Mode{}, fmt.Errorf("codec: %w: %q", ErrInvalidMode, s)
	}

	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	bits, _ := strconv.Atoi(m[3])
	char := m[4][0]

	if want := bitsForChar[char]; want != bits {
		return Mode{}, fmt.Errorf("codec: %w: %q has bits=%d, mode %c requires %d", ErrInvalidMode, s, bits, char, want)
	}
	if w <= 0 || h <= 0 {
		return Mode{}, fmt.Errorf("codec: %w: %q has non-positive dimension", ErrInvalidMode, s)
	}

	return Mode{Width: w, Height: h, Bits: bits, Char: char}, nil
}

// String renders the canonical WxHxBxC form.
func (m Mode) String() string {
	return fmt.Sprintf("%dx%dx%dx%c", m.Width, m.Height, m.Bits, m.Char)
}

// ContentType returns the media type for the PNM family this mode encodes to.
func (m Mode) ContentType() string {
	switch m.Char {
	case 'B':
		return "image/x-portable-bitmap"
	case 'G', 'R':
		return "image/x-portable-graymap"
	case 'C':
		return "image/x-portable-pixmap"
	default:
		return "application/octet-stream"
	}
}
