package pcd

import (
	"errors"
	"strings"
	"testing"
)

// newHeaderBuf returns a minimal valid header region that mutate may adjust
// before parsing.
func newHeaderBuf(mutate func(buf []byte)) []byte {
	buf := make([]byte, fileHeaderSize)
	copy(buf[ipiOffset:], "PCD_IPI")
	buf[icaOffset+9] = 1 // interleave ratio

	if mutate != nil {
		mutate(buf)
	}

	return buf
}

func TestParseFileHeaderSignature(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(buf []byte)
		err    error
	}{
		{"ipi", nil, nil},
		{"overview", func(buf []byte) {
			copy(buf[ipiOffset:], "XXXXXXX")
			copy(buf, "PCD_OPA")
		}, nil},
		{"garbage", func(buf []byte) {
			copy(buf[ipiOffset:], "XXXXXXX")
		}, ErrNotPCD},
		{"audio", func(buf []byte) {
			buf[icaOffset+9] = 2
		}, ErrInterleavedAudio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFileHeader(newHeaderBuf(tt.mutate))
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestParseFileHeaderAttributes(t *testing.T) {
	tests := []struct {
		attr       byte
		rotate     int
		resolution Resolution
		ipe        bool
		class      int
	}{
		{0x00, 0, Base, false, 0},
		{0x01, 1, Base, false, 0},
		{0x03, 3, Base, false, 0},
		{0x04, 0, FourBase, false, 0},
		{0x08, 0, SixteenBase, false, 0},
		{0x10, 0, Base, true, 0},
		{0x25, 1, FourBase, false, 1},
	}

	for _, tt := range tests {
		h, err := parseFileHeader(newHeaderBuf(func(buf []byte) {
			buf[icaOffset+2] = tt.attr
		}))
		if err != nil {
			t.Fatalf("attr %#x: %v", tt.attr, err)
		}

		if h.imageRotate != tt.rotate {
			t.Errorf("attr %#x: rotate = %d, want %d", tt.attr, h.imageRotate, tt.rotate)
		}
		if h.imageResolution != tt.resolution {
			t.Errorf("attr %#x: resolution = %v, want %v", tt.attr, h.imageResolution, tt.resolution)
		}
		if h.ipeAvailable != tt.ipe {
			t.Errorf("attr %#x: ipeAvailable = %v, want %v", tt.attr, h.ipeAvailable, tt.ipe)
		}
		if h.huffmanClass != tt.class {
			t.Errorf("attr %#x: huffmanClass = %d, want %d", tt.attr, h.huffmanClass, tt.class)
		}
	}
}

func TestParseFileHeaderSectorStop(t *testing.T) {
	h, err := parseFileHeader(newHeaderBuf(func(buf []byte) {
		buf[icaOffset+3] = 0x01
		buf[icaOffset+4] = 0xe8
	}))
	if err != nil {
		t.Fatal(err)
	}

	if h.sectorStop4Base != 488 {
		t.Fatalf("sectorStop4Base = %d, want 488", h.sectorStop4Base)
	}
}

func TestMetadataValues(t *testing.T) {
	ipi := func(buf []byte) []byte { return buf[ipiOffset:] }

	tests := []struct {
		name   string
		index  MetadataIndex
		mutate func(buf []byte)
		want   string
	}{
		{"spec version", MetaSpecificationVersion, func(buf []byte) {
			ipi(buf)[ipiSpecVersion] = 1
			ipi(buf)[ipiSpecVersion+1] = 2
		}, "1.2"},
		{"product type trimmed", MetaProductType, func(buf []byte) {
			copy(ipi(buf)[ipiProductType:], "KODAK TEST          ")
		}, "KODAK TEST"},
		{"medium", MetaImageMedium, func(buf []byte) {
			ipi(buf)[ipiImageMedium] = 1
		}, "color reversal"},
		{"medium out of range", MetaImageMedium, func(buf []byte) {
			ipi(buf)[ipiImageMedium] = 200
		}, "-"},
		{"pixel size BCD", MetaScannerPixelSize, func(buf []byte) {
			ipi(buf)[ipiScannerPixelSize] = 0x21
			ipi(buf)[ipiScannerPixelSize+1] = 0x34
		}, "21.34"},
		{"sba command", MetaSBACommand, func(buf []byte) {
			copy(ipi(buf)[ipiSBASignature:], "SBA")
			ipi(buf)[ipiSBACommand] = 2
		}, "neutral SBA on, color SBA off"},
		{"sba command without sba", MetaSBACommand, nil, "-"},
		{"sba film known", MetaSBAFilm, func(buf []byte) {
			copy(ipi(buf)[ipiSBASignature:], "SBA")
			ipi(buf)[ipiSBAFilmTerm] = 0x02
			ipi(buf)[ipiSBAFilmTerm+1] = 0x37 // 567
		}, "KODAK PORTRA 160NC"},
		{"sba film unknown", MetaSBAFilm, func(buf []byte) {
			copy(ipi(buf)[ipiSBASignature:], "SBA")
			ipi(buf)[ipiSBAFilmTerm] = 0x27
			ipi(buf)[ipiSBAFilmTerm+1] = 0x0f // 9999
		}, "Unknown film"},
		{"copyright applies", MetaCopyrightFile, func(buf []byte) {
			ipi(buf)[ipiCopyrightStatus] = 0x1
			copy(ipi(buf)[ipiCopyrightFile:], "ABC.RGT     ")
		}, "ABC.RGT"},
		{"copyright unspecified", MetaCopyrightStatus, func(buf []byte) {
			ipi(buf)[ipiCopyrightStatus] = 0xff
		}, "Copyright restrictions not specified"},
		{"scanning time missing", MetaImageScanningTime, func(buf []byte) {
			ipi(buf)[ipiScanningTime+2] = 0xff
			ipi(buf)[ipiScanningTime+3] = 0xff
		}, "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := parseFileHeader(newHeaderBuf(tt.mutate))
			if err != nil {
				t.Fatal(err)
			}

			if got := h.metadataValue(tt.index, 0); got != tt.want {
				t.Errorf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetadataScanningTime(t *testing.T) {
	h, err := parseFileHeader(newHeaderBuf(func(buf []byte) {
		copy(buf[ipiOffset+ipiScanningTime:], []byte{0x2f, 0xe0, 0x01, 0x00})
	}))
	if err != nil {
		t.Fatal(err)
	}

	got := h.metadataValue(MetaImageScanningTime, 0)
	if got == "-" || !strings.Contains(got, "199") {
		t.Errorf("scanning time = %q, want a formatted 1990s date", got)
	}
}

func TestMetadataCompressionClass(t *testing.T) {
	h, err := parseFileHeader(newHeaderBuf(nil))
	if err != nil {
		t.Fatal(err)
	}

	if got := h.metadataValue(MetaCompressionClass, 1); got != huffmanClasses[1] {
		t.Errorf("compression class = %q, want %q", got, huffmanClasses[1])
	}
}

func TestLookupFilmTerm(t *testing.T) {
	ft := lookupFilmTerm(1)
	if ft == nil || ft.name != "3M ScotchColor AT 100" || ft.pc != 18 || ft.gc != 7 {
		t.Fatalf("film term 1 = %+v", ft)
	}

	if lookupFilmTerm(99999) != nil {
		t.Fatal("unknown film term should return nil")
	}
}

func TestVersionString(t *testing.T) {
	if got := versionString([]byte{0xff, 0xff}); got != "-" {
		t.Errorf("sentinel = %q, want -", got)
	}
	if got := versionString([]byte{3, 14}); got != "3.14" {
		t.Errorf("version = %q, want 3.14", got)
	}
}
