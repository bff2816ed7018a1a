package pcd

import (
	"testing"
)

// putSeqHeader appends a 24-bit sequence header for the tiers up to
// SixteenBase: a sync marker followed by the plane and row fields.
func putSeqHeader(buf []byte, pos, plane, row int) int {
	buf[pos] = 0xff
	buf[pos+1] = 0xff
	buf[pos+2] = 0xfe
	buf[pos+3] = byte(plane<<6 | (row>>7)&0x3f)
	buf[pos+4] = byte((row & 0x7f) << 1)

	return pos + 5
}

// fillBytes sets buf[pos:pos+n] to v and returns the new position.
func fillBytes(buf []byte, pos, n int, v byte) int {
	for i := 0; i < n; i++ {
		buf[pos+i] = v
	}

	return pos + n
}

// oneBitTables builds a table set where every plane decodes one symbol per
// one bit.
func oneBitTables(t *testing.T, symbol byte) *huffTables {
	t.Helper()

	tables := &huffTables{}
	for i := range tables.ht {
		tables.ht[i] = new(huffTable)
		if _, err := parseHuffTable([]byte{0x00, 0x00, 0x80, 0x00, symbol}, tables.ht[i]); err != nil {
			t.Fatalf("parseHuffTable: %v", err)
		}
	}

	return tables
}

func TestReadDeltasLumaRow(t *testing.T) {
	// One FourBase luma sequence for row 2, followed by an out-of-range
	// terminator row.
	stream := make([]byte, 2*sectorSize)
	pos := putSeqHeader(stream, 0, 0, 2)
	pos = fillBytes(stream, pos, lumaWidth[FourBase]/8, 0xff)
	pos = putSeqHeader(stream, pos, 0, 0x1fff)
	fillBytes(stream, pos, len(stream)-pos, 0xff)

	b := newBitReader(writeTempFile(t, stream))
	data := [3][]byte{make([]byte, lumaWidth[FourBase]*lumaHeight[FourBase]), nil, nil}

	readDeltas(b, oneBitTables(t, 0x2a), FourBase, 0, 0, &data, 0)

	row2 := data[0][2*lumaWidth[FourBase] : 3*lumaWidth[FourBase]]
	for i, v := range row2 {
		if v != 0x2a {
			t.Fatalf("row 2 col %d = %#x, want 0x2a", i, v)
		}
	}
	for i, v := range data[0][:lumaWidth[FourBase]] {
		if v != 0 {
			t.Fatalf("row 0 col %d = %#x, want untouched 0", i, v)
		}
	}
}

func TestReadDeltasChromaRow(t *testing.T) {
	// A SixteenBase chroma1 sequence: plane 2, header row 4, which lands in
	// chroma row 2.
	stream := make([]byte, 2*sectorSize)
	pos := putSeqHeader(stream, 0, 2, 4)
	pos = fillBytes(stream, pos, chromaWidth[SixteenBase]/8, 0xff)
	pos = putSeqHeader(stream, pos, 0, 0x1fff)
	fillBytes(stream, pos, len(stream)-pos, 0xff)

	b := newBitReader(writeTempFile(t, stream))
	data := [3][]byte{nil, make([]byte, chromaWidth[SixteenBase]*chromaHeight[SixteenBase]), nil}

	readDeltas(b, oneBitTables(t, 0x05), SixteenBase, 0, 0, &data, 0)

	cw := chromaWidth[SixteenBase]
	for i, v := range data[1][2*cw : 3*cw] {
		if v != 0x05 {
			t.Fatalf("chroma row 2 col %d = %#x, want 0x05", i, v)
		}
	}
	for i, v := range data[1][:cw] {
		if v != 0 {
			t.Fatalf("chroma row 0 col %d = %#x, want untouched 0", i, v)
		}
	}
}

func TestReadDeltasSkipsStaleRows(t *testing.T) {
	// A sequence addressing a row past the plane must be skipped without
	// touching the buffers, then the next valid sequence decodes normally.
	stream := make([]byte, 2*sectorSize)
	pos := putSeqHeader(stream, 0, 0, 0x1400) // beyond the 1024 luma rows
	pos = putSeqHeader(stream, pos, 0, 1)
	pos = fillBytes(stream, pos, lumaWidth[FourBase]/8, 0xff)
	pos = putSeqHeader(stream, pos, 0, 0x1fff)
	fillBytes(stream, pos, len(stream)-pos, 0xff)

	b := newBitReader(writeTempFile(t, stream))
	data := [3][]byte{make([]byte, lumaWidth[FourBase]*lumaHeight[FourBase]), nil, nil}

	readDeltas(b, oneBitTables(t, 0x2a), FourBase, 0, 0, &data, 0)

	for i, v := range data[0][lumaWidth[FourBase] : 2*lumaWidth[FourBase]] {
		if v != 0x2a {
			t.Fatalf("row 1 col %d = %#x, want 0x2a", i, v)
		}
	}
}

func TestReadDeltasInvalidPlane(t *testing.T) {
	stream := make([]byte, 2*sectorSize)
	pos := putSeqHeader(stream, 0, 1, 0) // plane 1 does not exist
	fillBytes(stream, pos, len(stream)-pos, 0xff)

	b := newBitReader(writeTempFile(t, stream))
	data := [3][]byte{make([]byte, lumaWidth[FourBase]*lumaHeight[FourBase]), nil, nil}

	err := decodeLevel(func() error {
		readDeltas(b, oneBitTables(t, 0x2a), FourBase, 0, 0, &data, 0)

		return nil
	})
	if err != ErrCorrupt {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestReadDeltasSequenceBudget(t *testing.T) {
	// With an explicit budget of one, only the first sequence is consumed
	// even though the plane has not been completed.
	stream := make([]byte, 2*sectorSize)
	pos := putSeqHeader(stream, 0, 0, 0)
	pos = fillBytes(stream, pos, lumaWidth[FourBase]/8, 0xff)
	pos = putSeqHeader(stream, pos, 0, 1)
	pos = fillBytes(stream, pos, lumaWidth[FourBase]/8, 0xff)
	fillBytes(stream, pos, len(stream)-pos, 0xff)

	b := newBitReader(writeTempFile(t, stream))
	data := [3][]byte{make([]byte, lumaWidth[FourBase]*lumaHeight[FourBase]), nil, nil}

	readDeltas(b, oneBitTables(t, 0x2a), FourBase, 0, 1, &data, 0)

	if data[0][0] != 0x2a {
		t.Fatalf("row 0 not decoded")
	}
	if data[0][lumaWidth[FourBase]] != 0 {
		t.Fatalf("row 1 decoded past the sequence budget")
	}
}
