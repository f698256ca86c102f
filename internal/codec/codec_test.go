package codec

import (
	"bytes"
	"testing"
)

func solidRGB(w, h int, r, g, b byte) []byte {
	buf := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		buf[i*3] = r
		buf[i*3+1] = g
		buf[i*3+2] = b
	}
	return buf
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"800x480x1xB", false},
		{"800x480x8xG", false},
		{"800x480x2xR", false},
		{"800x480x24xC", false},
		{"800x480x2xB", true},  // bits/char mismatch
		{"800x480x1xG", true},  // bits/char mismatch
		{"0x480x1xB", true},    // non-positive dimension
		{"800x480x1x", true},   // malformed
		{"800x480x1xZ", true},  // unknown mode char
	}
	for _, c := range cases {
		_, err := ParseMode(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
		}
	}
}

func TestModeRoundTrip(t *testing.T) {
	m, err := ParseMode("800x480x1xB")
	if err != nil {
		t.Fatal(err)
	}
	if got := m.String(); got != "800x480x1xB" {
		t.Errorf("String() = %q, want %q", got, "800x480x1xB")
	}
}

func TestEncodeGrayHeaderAndSize(t *testing.T) {
	mode, _ := ParseMode("4x4x8xG")
	src := solidRGB(4, 4, 128, 128, 128)
	plane, err := EncodePlane(src, 4, 4, mode)
	if err != nil {
		t.Fatal(err)
	}
	tile, err := ExtractTile(plane, Rect{0, 0, 4, 4})
	if err != nil {
		t.Fatal(err)
	}
	wantHeader := []byte("P5\n4 4\n255\n")
	if !bytes.HasPrefix(tile, wantHeader) {
		t.Fatalf("tile header = %q, want prefix %q", tile[:len(wantHeader)], wantHeader)
	}
	if len(tile) != len(wantHeader)+16 {
		t.Errorf("tile length = %d, want %d", len(tile), len(wantHeader)+16)
	}
}

func TestEncodeRGBPassthrough(t *testing.T) {
	mode, _ := ParseMode("2x2x24xC")
	src := []byte{
		10, 20, 30, 40, 50, 60,
		70, 80, 90, 100, 110, 120,
	}
	plane, err := EncodePlane(src, 2, 2, mode)
	if err != nil {
		t.Fatal(err)
	}
	tile, err := ExtractTile(plane, Rect{0, 0, 2, 2})
	if err != nil {
		t.Fatal(err)
	}
	body := tile[len("P6\n2 2\n255\n"):]
	if !bytes.Equal(body, src) {
		t.Errorf("RGB body = %v, want %v", body, src)
	}
}

func TestMonoHeaderAndStride(t *testing.T) {
	mode, _ := ParseMode("10x2x1xB")
	src := solidRGB(10, 2, 255, 255, 255) // all white -> no bits set
	plane, err := EncodePlane(src, 10, 2, mode)
	if err != nil {
		t.Fatal(err)
	}
	tile, err := ExtractTile(plane, Rect{0, 0, 10, 2})
	if err != nil {
		t.Fatal(err)
	}
	header := []byte("P4\n10 2\n")
	if !bytes.HasPrefix(tile, header) {
		t.Fatalf("got header %q", tile[:len(header)])
	}
	stride := (10 + 7) / 8
	if len(tile) != len(header)+stride*2 {
		t.Errorf("tile length = %d, want %d", len(tile), len(header)+stride*2)
	}
}

func TestPaletteQuantizesToExactColors(t *testing.T) {
	mode, _ := ParseMode("2x1x2xR")
	src := append(solidRGB(1, 1, 0, 0, 0), solidRGB(1, 1, 255, 0, 0)...)
	plane, err := EncodePlane(src, 2, 1, mode)
	if err != nil {
		t.Fatal(err)
	}
	if plane.Pixels[0] != 0 { // black
		t.Errorf("pixel 0 index = %d, want 0 (black)", plane.Pixels[0])
	}
	if plane.Pixels[1] != 2 { // red
		t.Errorf("pixel 1 index = %d, want 2 (red)", plane.Pixels[1])
	}
}

func TestTileStitchingGray(t *testing.T) {
	w, h := 16, 4
	src := make([]byte, w*h*3)
	for i := range src {
		src[i] = byte(i % 256)
	}
	mode, _ := ParseMode("16x4x8xG")
	plane, err := EncodePlane(src, w, h, mode)
	if err != nil {
		t.Fatal(err)
	}

	full, err := ExtractTile(plane, Rect{0, 0, w, h})
	if err != nil {
		t.Fatal(err)
	}

	left, err := ExtractTile(plane, Rect{0, 0, w / 2, h})
	if err != nil {
		t.Fatal(err)
	}
	right, err := ExtractTile(plane, Rect{w / 2, 0, w / 2, h})
	if err != nil {
		t.Fatal(err)
	}

	fullBody := full[len("P5\n16 4\n255\n"):]
	leftBody := left[len("P5\n8 4\n255\n"):]
	rightBody := right[len("P5\n8 4\n255\n"):]

	// Stitch row by row since each tile's body is row-major within
	// its own width, not the union's.
	stitched := make([]byte, 0, len(fullBody))
	for y := 0; y < h; y++ {
		stitched = append(stitched, leftBody[y*8:(y+1)*8]...)
		stitched = append(stitched, rightBody[y*8:(y+1)*8]...)
	}
	if !bytes.Equal(stitched, fullBody) {
		t.Errorf("stitched tiles != full tile body")
	}
}

func TestMonoTileStitchingAtByteBoundary(t *testing.T) {
	w, h := 16, 1
	src := make([]byte, w*h*3)
	for x := 0; x < w; x++ {
		v := byte(255)
		if x%2 == 0 {
			v = 0
		}
		src[x*3], src[x*3+1], src[x*3+2] = v, v, v
	}
	mode, _ := ParseMode("16x1x1xB")
	plane, err := EncodePlane(src, w, h, mode)
	if err != nil {
		t.Fatal(err)
	}

	full, err := ExtractTile(plane, Rect{0, 0, 16, 1})
	if err != nil {
		t.Fatal(err)
	}
	left, err := ExtractTile(plane, Rect{0, 0, 8, 1})
	if err != nil {
		t.Fatal(err)
	}
	right, err := ExtractTile(plane, Rect{8, 0, 8, 1})
	if err != nil {
		t.Fatal(err)
	}

	fullBody := full[len("P4\n16 1\n"):]
	leftBody := left[len("P4\n8 1\n"):]
	rightBody := right[len("P4\n8 1\n"):]

	stitched := append(append([]byte{}, leftBody...), rightBody...)
	if !bytes.Equal(stitched, fullBody) {
		t.Errorf("stitched mono tiles != full tile body: got %v want %v", stitched, fullBody)
	}
}

func TestExtractTileInvalidRect(t *testing.T) {
	mode, _ := ParseMode("4x4x8xG")
	plane, _ := EncodePlane(solidRGB(4, 4, 0, 0, 0), 4, 4, mode)

	cases := []Rect{
		{-1, 0, 2, 2},
		{0, 0, 5, 4},
		{0, 0, 0, 4},
		{3, 3, 2, 2},
	}
	for _, r := range cases {
		if _, err := ExtractTile(plane, r); err == nil {
			t.Errorf("ExtractTile(%+v) expected error, got nil", r)
		}
	}
}
