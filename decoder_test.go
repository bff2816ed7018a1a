package pcd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testFile describes a synthetic PCD file. The delta streams use a single
// 1-bit Huffman code decoding to +42, with all-ones payloads, so every delta
// plane is uniformly 42.
type testFile struct {
	sig        string // sector 0 signature, e.g. "PCD_OPA"
	ipiSig     string // signature at byte 2048, normally "PCD_IPI"
	attributes byte
	interleave byte
	size       int // override the computed file size

	with4Base  bool
	with16Base bool

	baseY, baseC1, baseC2 byte

	mutate func(buf []byte) // final tweaks before writing
}

const testDeltaSymbol = 0x2a // +42

func putPCD16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

// buildPCD writes a synthetic PCD file and returns its path.
func buildPCD(t *testing.T, o testFile) string {
	t.Helper()

	buf := make([]byte, 8<<20)
	copy(buf, o.sig)
	copy(buf[sectorSize:], o.ipiSig)

	ica := buf[icaOffset:]
	ica[2] = o.attributes
	ica[9] = o.interleave

	end := 0

	// Uncompressed base planes in the interleaved row layout: two luma rows,
	// then one row of each chroma.
	writeBase := func(sector int, scene Resolution) {
		pos := sector * sectorSize
		lw, cw, ch := lumaWidth[scene], chromaWidth[scene], chromaHeight[scene]
		for y := 0; y < ch; y++ {
			pos = fillBytes(buf, pos, lw, o.baseY)
			pos = fillBytes(buf, pos, lw, o.baseY)
			pos = fillBytes(buf, pos, cw, o.baseC1)
			pos = fillBytes(buf, pos, cw, o.baseC2)
		}
		if pos > end {
			end = pos
		}
	}

	huffTableBytes := []byte{0x00, 0x00, 0x80, 0x00, testDeltaSymbol}

	writeBase(4, Base16)
	if o.with4Base || o.with16Base {
		writeBase(23, Base4)
		writeBase(96, Base)

		copy(buf[388*sectorSize:], huffTableBytes)

		pos := 389 * sectorSize
		for row := 0; row < lumaHeight[FourBase]; row++ {
			pos = putSeqHeader(buf, pos, 0, row)
			pos = fillBytes(buf, pos, lumaWidth[FourBase]/8, 0xff)
		}
		pos = putSeqHeader(buf, pos, 0, 0x1fff)
		pos = fillBytes(buf, pos, 8, 0xff)
		if pos > end {
			end = pos
		}

		stop := (pos + sectorSize - 1) / sectorSize
		putPCD16(ica[3:], uint16(stop))

		if o.with16Base {
			pos = (stop + 12) * sectorSize
			for i := 0; i < 3; i++ {
				pos += copy(buf[pos:], huffTableBytes)
			}

			pos = (stop + 14) * sectorSize
			for row := 0; row < lumaHeight[SixteenBase]; row++ {
				pos = putSeqHeader(buf, pos, 0, row)
				pos = fillBytes(buf, pos, lumaWidth[SixteenBase]/8, 0xff)
			}
			for plane := 2; plane <= 3; plane++ {
				for y := 0; y < chromaHeight[SixteenBase]; y++ {
					pos = putSeqHeader(buf, pos, plane, 2*y)
					pos = fillBytes(buf, pos, chromaWidth[SixteenBase]/8, 0xff)
				}
			}
			pos = putSeqHeader(buf, pos, 0, 0x1fff)
			pos = fillBytes(buf, pos, 8, 0xff)
			if pos > end {
				end = pos
			}
		}
	}

	end = (end/sectorSize+3)*sectorSize
	if o.size > 0 {
		end = o.size
	}

	if o.mutate != nil {
		o.mutate(buf)
	}

	path := filepath.Join(t.TempDir(), "img0001.pcd")
	if err := os.WriteFile(path, buf[:end], 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	return path
}

func TestParseFileMinimal(t *testing.T) {
	// A header-only file: valid signature, zeroed image data. The requested
	// Base falls back to Base16, the only readable tier.
	path := buildPCD(t, testFile{ipiSig: "PCD_IPI", interleave: 1})

	d := NewDecoder()
	if err := d.ParseFile(path, "", Base); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if d.Resolution() != Base16 {
		t.Errorf("Resolution = %v, want Base16", d.Resolution())
	}
	if d.Orientation() != 0 {
		t.Errorf("Orientation = %d, want 0", d.Orientation())
	}
	if d.Width() != 192 || d.Height() != 128 {
		t.Errorf("dimensions = %dx%d, want 192x128", d.Width(), d.Height())
	}
	if s := d.ErrorString(); s != "" {
		t.Errorf("ErrorString = %q, want empty", s)
	}
}

func TestParseFileInterleavedAudio(t *testing.T) {
	path := buildPCD(t, testFile{ipiSig: "PCD_IPI", interleave: 2})

	d := NewDecoder()
	err := d.ParseFile(path, "", Base)
	if !errors.Is(err, ErrInterleavedAudio) {
		t.Fatalf("err = %v, want ErrInterleavedAudio", err)
	}
	if !strings.Contains(d.ErrorString(), "interleaved audio") {
		t.Errorf("ErrorString = %q, want mention of interleaved audio", d.ErrorString())
	}
}

func TestParseFileRotationReporting(t *testing.T) {
	path := buildPCD(t, testFile{ipiSig: "PCD_IPI", interleave: 1, attributes: 0x01})

	d := NewDecoder()
	if err := d.ParseFile(path, "", Base); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if d.Orientation() != 1 {
		t.Errorf("Orientation = %d, want 1", d.Orientation())
	}
	// After a 90 degree rotation the reported width is the stored luma
	// height.
	if d.Width() != 128 || d.Height() != 192 {
		t.Errorf("dimensions = %dx%d, want 128x192", d.Width(), d.Height())
	}
}

func TestParseFileTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.pcd")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDecoder()
	if err := d.ParseFile(path, "", Base); !errors.Is(err, ErrTooSmall) {
		t.Fatalf("err = %v, want ErrTooSmall", err)
	}
}

func TestParseFileBadSignature(t *testing.T) {
	path := buildPCD(t, testFile{ipiSig: "NOT_APCD", interleave: 1})

	d := NewDecoder()
	if err := d.ParseFile(path, "", Base); !errors.Is(err, ErrNotPCD) {
		t.Fatalf("err = %v, want ErrNotPCD", err)
	}
}

func TestParseFileMissing(t *testing.T) {
	d := NewDecoder()
	err := d.ParseFile(filepath.Join(t.TempDir(), "nope.pcd"), "", Base)
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
}

func TestParseFileOverview(t *testing.T) {
	// Overview packs carry the PCD_OPA signature and no IPI header. The
	// parser accepts them; metadata reads as missing.
	path := buildPCD(t, testFile{sig: "PCD_OPA", interleave: 1})

	d := NewDecoder()
	if err := d.ParseFile(path, "", Base16); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if _, value := d.Metadata(MetaProductType); value != "-" {
		t.Errorf("product type = %q, want -", value)
	}
}

func TestParseFile4Base(t *testing.T) {
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1, attributes: 0x04, with4Base: true,
	})

	d := NewDecoder()
	if err := d.ParseFile(path, "", FourBase); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if d.Resolution() != FourBase {
		t.Fatalf("Resolution = %v, want FourBase (%q)", d.Resolution(), d.ErrorString())
	}

	d.PostParse()

	if len(d.luma) != lumaWidth[FourBase]*lumaHeight[FourBase] {
		t.Fatalf("luma size = %d", len(d.luma))
	}
	// Zero base plus a uniform +42 delta plane.
	for _, idx := range []int{0, 1000, len(d.luma) / 2, len(d.luma) - 1} {
		if d.luma[idx] != 42 {
			t.Errorf("luma[%d] = %d, want 42", idx, d.luma[idx])
		}
	}
}

func TestParseFileFallsBackToBase4(t *testing.T) {
	// Truncate the file after the Base4 data: Base cannot be read, Base4
	// can, and the decode settles there with no deltas.
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1, attributes: 0x04, with4Base: true,
		size: 300000,
	})

	d := NewDecoder()
	if err := d.ParseFile(path, "", FourBase); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if d.Resolution() != Base4 {
		t.Errorf("Resolution = %v, want Base4", d.Resolution())
	}
	if d.Width() != 384 || d.Height() != 256 {
		t.Errorf("dimensions = %dx%d, want 384x256", d.Width(), d.Height())
	}
}

func TestParseFile4BaseFallbackOnBadTables(t *testing.T) {
	// A Huffman table entry with a 17-bit codeword poisons the 4Base tier;
	// the decode settles on Base with a warning.
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1, attributes: 0x04, with4Base: true,
		mutate: func(buf []byte) {
			buf[388*sectorSize+1] = 0x10
		},
	})

	d := NewDecoder()
	if err := d.ParseFile(path, "", FourBase); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if d.Resolution() != Base {
		t.Errorf("Resolution = %v, want Base", d.Resolution())
	}
	if !strings.Contains(d.ErrorString(), "4Base") {
		t.Errorf("ErrorString = %q, want mention of 4Base", d.ErrorString())
	}
}

func TestParseFile16BaseWith64BaseFallback(t *testing.T) {
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1, attributes: 0x08, with16Base: true,
	})

	// A companion file of zeros is structurally invalid; the 64Base tier
	// must downgrade to SixteenBase without failing the parse.
	ipePath := filepath.Join(t.TempDir(), "64base.ipe")
	if err := os.WriteFile(ipePath, make([]byte, sectorSize), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDecoder()
	if err := d.ParseFile(path, ipePath, SixtyFourBase); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if d.Resolution() != SixteenBase {
		t.Fatalf("Resolution = %v, want SixteenBase (%q)", d.Resolution(), d.ErrorString())
	}
	if !strings.Contains(d.ErrorString(), "64Base") {
		t.Errorf("ErrorString = %q, want mention of 64Base", d.ErrorString())
	}

	d.PostParse()

	// Two +42 luma tiers stack; chroma carries the SixteenBase delta only.
	if d.luma[0] != 84 {
		t.Errorf("luma[0] = %d, want 84", d.luma[0])
	}
	if d.chroma1[0] != 42 {
		t.Errorf("chroma1[0] = %d, want 42", d.chroma1[0])
	}
}

func TestParseFile16BaseClean(t *testing.T) {
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1, attributes: 0x08, with16Base: true,
	})

	d := NewDecoder()
	if err := d.ParseFile(path, "", SixteenBase); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if d.Resolution() != SixteenBase {
		t.Fatalf("Resolution = %v, want SixteenBase (%q)", d.Resolution(), d.ErrorString())
	}
	if s := d.ErrorString(); s != "" {
		t.Errorf("ErrorString = %q, want empty", s)
	}
}

func TestPostParseIdempotent(t *testing.T) {
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1, attributes: 0x04, with4Base: true,
	})

	d := NewDecoder()
	if err := d.ParseFile(path, "", FourBase); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	d.PostParse()
	want := bytes.Clone(d.luma[:4096])

	d.PostParse()
	if !bytes.Equal(d.luma[:4096], want) {
		t.Fatal("second PostParse changed the image")
	}
}

func TestPopulateNeutralGray(t *testing.T) {
	// A neutral-chroma mid-luma image through the full sRGB pipeline: every
	// output pixel is the same gray at about 0.786 of full scale.
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1,
		baseY: 196, baseC1: 156, baseC2: 137,
	})

	d := NewDecoder()
	if err := d.ParseFile(path, "", Base16); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	d.PostParse()
	d.SetColorSpace(SRGBColorSpace)

	n := d.Width() * d.Height()
	r := make([]float32, n)
	g := make([]float32, n)
	b := make([]float32, n)
	d.PopulateFloat(r, g, b, nil, 1)

	for i := 0; i < n; i++ {
		if r[i] != g[i] || g[i] != b[i] {
			t.Fatalf("pixel %d = (%v, %v, %v), want equal channels", i, r[i], g[i], b[i])
		}
		if r[i] < 0.78 || r[i] > 0.79 {
			t.Fatalf("pixel %d = %v, want about 0.786", i, r[i])
		}
	}
}

func TestPopulateIdempotent(t *testing.T) {
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1,
		baseY: 120, baseC1: 170, baseC2: 140,
	})

	d := NewDecoder()
	if err := d.ParseFile(path, "", Base16); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	d.PostParse()
	d.SetColorSpace(SRGBColorSpace)

	n := d.Width() * d.Height()
	first := make([]uint8, 3*n)
	d.PopulateUint8(first[0:n], first[n:2*n], first[2*n:], nil, 1)

	second := make([]uint8, 3*n)
	d.PopulateUint8(second[0:n], second[n:2*n], second[2*n:], nil, 1)

	if !bytes.Equal(first, second) {
		t.Fatal("repeated PopulateUint8 calls disagree")
	}
}

func TestMonochromeToggle(t *testing.T) {
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1,
		baseY: 120, baseC1: 200, baseC2: 137,
	})

	d := NewDecoder()
	if err := d.ParseFile(path, "", Base16); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	d.PostParse()
	d.SetColorSpace(SRGBColorSpace)

	n := d.Width() * d.Height()
	populate := func() []uint8 {
		out := make([]uint8, 3*n)
		d.PopulateUint8(out[0:n], out[n:2*n], out[2*n:], nil, 1)

		return out
	}

	color := populate()

	d.SetMonochrome(true)
	if !d.IsMonochrome() {
		t.Fatal("IsMonochrome = false after SetMonochrome(true)")
	}
	mono := populate()
	if bytes.Equal(color, mono) {
		t.Fatal("monochrome output equals color output for a colored image")
	}

	// The chroma planes are retained, so switching back restores the exact
	// color output.
	d.SetMonochrome(false)
	if !bytes.Equal(populate(), color) {
		t.Fatal("color output not restored after clearing monochrome")
	}
}

func TestDecodeImage(t *testing.T) {
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1,
		baseY: 196, baseC1: 156, baseC2: 137,
	})

	img, err := Decode(path, &Options{Resolution: Base16, ColorSpace: SRGBColorSpace})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 192 || bounds.Dy() != 128 {
		t.Fatalf("bounds = %v, want 192x128", bounds)
	}

	r, g, b, a := img.At(50, 50).RGBA()
	if r != g || g != b {
		t.Errorf("pixel = (%d, %d, %d), want gray", r>>8, g>>8, b>>8)
	}
	if r>>8 < 195 || r>>8 > 205 {
		t.Errorf("pixel = %d, want about 200", r>>8)
	}
	if a != 0xffff {
		t.Errorf("alpha = %d, want opaque", a)
	}
}

func TestDecodeConfig(t *testing.T) {
	tests := []struct {
		attributes byte
		w, h       int
	}{
		{0x04, 1536, 1024},       // 4Base class, no rotation
		{0x04 | 0x01, 1024, 1536}, // 4Base class, rotated 90
	}

	for _, tt := range tests {
		path := buildPCD(t, testFile{ipiSig: "PCD_IPI", interleave: 1, attributes: tt.attributes})

		cfg, err := DecodeConfig(path)
		if err != nil {
			t.Fatalf("DecodeConfig: %v", err)
		}
		if cfg.Width != tt.w || cfg.Height != tt.h {
			t.Errorf("attributes %#x: config = %dx%d, want %dx%d",
				tt.attributes, cfg.Width, cfg.Height, tt.w, tt.h)
		}
	}
}

func TestDigitisationTime(t *testing.T) {
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1,
		mutate: func(buf []byte) {
			// 1995-06-15ish in seconds since the epoch.
			copy(buf[sectorSize+ipiScanningTime:], []byte{0x2f, 0xe0, 0x01, 0x00})
		},
	})

	d := NewDecoder()
	if err := d.ParseFile(path, "", Base16); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if got := d.DigitisationTime(); got != 0x2fe00100 {
		t.Errorf("DigitisationTime = %d, want %d", got, 0x2fe00100)
	}
}

func TestFilmTermData(t *testing.T) {
	path := buildPCD(t, testFile{
		ipiSig: "PCD_IPI", interleave: 1,
		mutate: func(buf []byte) {
			copy(buf[sectorSize+ipiSBASignature:], "SBA")
			putPCD16(buf[sectorSize+ipiSBAFilmTerm:], 567) // KODAK PORTRA 160NC
		},
	})

	d := NewDecoder()
	if err := d.ParseFile(path, "", Base16); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	ftn, pc, gc := d.FilmTermData()
	if ftn != 567 || pc != 79 || gc != 11 {
		t.Errorf("FilmTermData = (%d, %d, %d), want (567, 79, 11)", ftn, pc, gc)
	}

	if _, value := d.Metadata(MetaSBAFilm); value != "KODAK PORTRA 160NC" {
		t.Errorf("SBA film = %q, want KODAK PORTRA 160NC", value)
	}
}
