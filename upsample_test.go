package pcd

import (
	"bytes"
	"sync/atomic"
	"testing"
)

func TestUpResInterpolate(t *testing.T) {
	base := []byte{10, 20, 30, 40}
	dest := make([]byte, 16)

	upResBuffer(base, dest, 4, 4, InterpBilinear, false)

	want := []byte{
		10, 15, 20, 20,
		20, 25, 30, 30,
		30, 35, 40, 40,
		30, 35, 40, 40,
	}
	if !bytes.Equal(dest, want) {
		t.Fatalf("dest = %v, want %v", dest, want)
	}
}

func TestUpResInterpolateDeltas(t *testing.T) {
	negTen := int8(-10)
	tests := []struct {
		name  string
		base  byte
		delta byte
		want  byte
	}{
		{"add", 100, 0x0a, 110},
		{"subtract", 100, byte(negTen), 90},
		{"saturate high", 250, 0x20, 255},
		{"saturate low", 10, 0x80, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := []byte{tt.base, tt.base, tt.base, tt.base}
			dest := make([]byte, 16)
			for i := range dest {
				dest[i] = tt.delta
			}

			upResBuffer(base, dest, 4, 4, InterpBilinear, true)

			for i, v := range dest {
				if v != tt.want {
					t.Fatalf("pixel %d = %d, want %d", i, v, tt.want)
				}
			}
		})
	}
}

func TestUpResNearest(t *testing.T) {
	base := []byte{10, 20, 30, 40}
	dest := make([]byte, 16)

	upResBuffer(base, dest, 4, 4, InterpNearest, false)

	want := []byte{
		10, 10, 20, 20,
		10, 10, 20, 20,
		30, 30, 40, 40,
		30, 30, 40, 40,
	}
	if !bytes.Equal(dest, want) {
		t.Fatalf("dest = %v, want %v", dest, want)
	}
}

func TestBandParallelCoversAllRows(t *testing.T) {
	const rows = 1024
	var hits [rows]int32

	bandParallel(rows, func(start, end int) {
		for r := start; r < end; r++ {
			atomic.AddInt32(&hits[r], 1)
		}
	})

	for r, n := range hits {
		if n != 1 {
			t.Fatalf("row %d visited %d times, want once", r, n)
		}
	}
}

func TestBandParallelSmallImage(t *testing.T) {
	var calls int
	bandParallel(8, func(start, end int) {
		calls++
		if start != 0 || end != 8 {
			t.Fatalf("band = [%d, %d), want [0, 8)", start, end)
		}
	})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 serial call", calls)
	}
}
