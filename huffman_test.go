package pcd

import (
	"os"
	"path/filepath"
	"testing"
)

// writeTempFile writes data to a file in a test temp dir and opens it.
func writeTempFile(t *testing.T, data []byte) *os.File {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stream.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { f.Close() })

	return f
}

func TestParseHuffTable(t *testing.T) {
	// One entry: a 1-bit codeword 0x8000 decoding to symbol 0x2A. It must
	// expand into every index whose top bit is set.
	buf := []byte{0x00, 0x00, 0x80, 0x00, 0x2a}

	table := new(huffTable)
	n, err := parseHuffTable(buf, table)
	if err != nil {
		t.Fatalf("parseHuffTable: %v", err)
	}
	if n != 1 {
		t.Fatalf("entries = %d, want 1", n)
	}

	for _, idx := range []int{0x8000, 0x8001, 0xbeef, 0xffff} {
		if table.key[idx] != 0x2a || table.length[idx] != 1 {
			t.Errorf("index %#x = (%#x, %d), want (0x2a, 1)", idx, table.key[idx], table.length[idx])
		}
	}
	for _, idx := range []int{0x0000, 0x7fff, 0x1234} {
		if table.length[idx] != huffErrorLen {
			t.Errorf("index %#x length = %d, want error sentinel", idx, table.length[idx])
		}
	}
}

func TestParseHuffTableBadLength(t *testing.T) {
	// length-1 byte of 16 means a 17-bit codeword, which the format does
	// not allow.
	buf := []byte{0x00, 0x10, 0x80, 0x00, 0x2a}

	if _, err := parseHuffTable(buf, new(huffTable)); err != ErrHuffman {
		t.Fatalf("err = %v, want ErrHuffman", err)
	}
}

func TestReadHuffTablesReusesPrevious(t *testing.T) {
	// Two tables: the first with four entries, the second a stub with a
	// single entry, which means "reuse the previous table".
	region := make([]byte, 2*sectorSize)
	pos := 0
	region[pos] = 3 // four entries
	pos++
	for _, entry := range [][4]byte{
		{1, 0x80, 0x00, 0x11}, // 10...
		{1, 0xc0, 0x00, 0x22}, // 11...
		{1, 0x00, 0x00, 0x33}, // 00...
		{1, 0x40, 0x00, 0x44}, // 01...
	} {
		copy(region[pos:], entry[:])
		pos += 4
	}
	region[pos] = 0 // second table: one entry
	pos++
	copy(region[pos:], []byte{0x00, 0x80, 0x00, 0x55})

	f := writeTempFile(t, region)
	tables, err := readHuffTables(f, 0, 2)
	if err != nil {
		t.Fatalf("readHuffTables: %v", err)
	}

	if got := tables.ht[0].key[0x8000]; got != 0x11 {
		t.Errorf("table 0 key[0x8000] = %#x, want 0x11", got)
	}
	if got := tables.ht[1].key[0x8000]; got != 0x11 {
		t.Errorf("table 1 key[0x8000] = %#x, want 0x11 (reused table)", got)
	}
	if got := tables.ht[1].key[0x4000]; got != 0x44 {
		t.Errorf("table 1 key[0x4000] = %#x, want 0x44 (reused table)", got)
	}
}

func TestBitReader(t *testing.T) {
	data := make([]byte, 16)
	copy(data, []byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc})

	b := newBitReader(writeTempFile(t, data))
	if b.sum != 0x12345678 {
		t.Fatalf("initial sum = %#x, want 0x12345678", b.sum)
	}

	b.getBits(8)
	if b.sum != 0x3456789a {
		t.Fatalf("sum after 8 bits = %#x, want 0x3456789a", b.sum)
	}

	b.getBits(4)
	if b.sum>>4 != 0x0456789a {
		t.Fatalf("sum after 12 bits = %#x, want top bits 0x456789a", b.sum)
	}
}

func TestBitReaderEOF(t *testing.T) {
	b := newBitReader(writeTempFile(t, make([]byte, 8)))

	defer func() {
		r := recover()
		de, ok := r.(errDecode)
		if !ok || de.error != ErrUnexpectedEOF {
			t.Fatalf("recover = %v, want errDecode(ErrUnexpectedEOF)", r)
		}
	}()

	// The refill pads the sector buffer with stale bytes on a short read,
	// so the end of file only surfaces once a full sector has been
	// consumed.
	for i := 0; i < 2*sectorSize; i++ {
		b.getBits(8)
	}
}

func TestSync(t *testing.T) {
	data := make([]byte, 16)
	copy(data, []byte{0x12, 0x00, 0xff, 0xff, 0xfe, 0xab})
	for i := 6; i < len(data); i++ {
		data[i] = 0xab
	}

	b := newBitReader(writeTempFile(t, data))
	b.sync()

	if b.sum&0xffffff00 != 0xfffffe00 {
		t.Fatalf("sum after sync = %#x, want top bits 0xfffffe", b.sum)
	}
}

func TestDecodeHuffman(t *testing.T) {
	// A 1-bit codeword table over an all-ones stream yields the symbol once
	// per bit.
	table := new(huffTable)
	buf := []byte{0x00, 0x00, 0x80, 0x00, 0x2a}
	if _, err := parseHuffTable(buf, table); err != nil {
		t.Fatalf("parseHuffTable: %v", err)
	}

	data := make([]byte, 32)
	for i := range data {
		data[i] = 0xff
	}

	b := newBitReader(writeTempFile(t, data))
	dest := make([]byte, 16)
	b.decodeHuffman(table, dest)

	for i, v := range dest {
		if v != 0x2a {
			t.Fatalf("symbol %d = %#x, want 0x2a", i, v)
		}
	}
}

func TestDecodeHuffmanRecovery(t *testing.T) {
	// The table covers only codewords starting with a one bit. A zero bit
	// mid-sequence is an unknown symbol: the remaining symbols must be
	// zeroed and the reader resynchronised to the next marker.
	table := new(huffTable)
	if _, err := parseHuffTable([]byte{0x00, 0x00, 0x80, 0x00, 0x2a}, table); err != nil {
		t.Fatalf("parseHuffTable: %v", err)
	}

	data := make([]byte, 32)
	data[0] = 0xc0                               // two good bits, then zeros
	copy(data[4:], []byte{0xff, 0xff, 0xfe, 0x00}) // next sync marker
	for i := 8; i < len(data); i++ {
		data[i] = 0x55
	}

	b := newBitReader(writeTempFile(t, data))
	dest := []byte{9, 9, 9, 9, 9, 9, 9, 9}
	b.decodeHuffman(table, dest)

	want := []byte{0x2a, 0x2a, 0, 0, 0, 0, 0, 0}
	for i := range dest {
		if dest[i] != want[i] {
			t.Fatalf("dest = %v, want %v", dest, want)
		}
	}

	if b.sum&0xffffff00 != 0xfffffe00 {
		t.Fatalf("reader not resynchronised, sum = %#x", b.sum)
	}
}
