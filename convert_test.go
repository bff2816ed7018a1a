package pcd

import (
	"math"
	"testing"
)

// fillPlane returns an n-byte plane holding v throughout.
func fillPlane(n int, v byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = v
	}

	return p
}

func TestConvertNeutralSRGB(t *testing.T) {
	// A neutral-chroma mid-luma pixel through the sRGB pipeline must come
	// out gray: all channels equal, at about 0.786 of full scale.
	const w, h = 4, 4
	job := convertJob{
		size:       floatSize,
		rf:         make([]float32, w*h),
		gf:         make([]float32, w*h),
		bf:         make([]float32, w*h),
		stride:     1,
		columns:    w,
		rows:       h,
		lp:         fillPlane(w*h, 196),
		c1p:        fillPlane(w*h, 156),
		c2p:        fillPlane(w*h, 137),
		colorSpace: SRGBColorSpace,
	}

	job.run(0, h)

	for i := 0; i < w*h; i++ {
		r, g, b := job.rf[i], job.gf[i], job.bf[i]
		if r != g || g != b {
			t.Fatalf("pixel %d = (%v, %v, %v), want equal channels", i, r, g, b)
		}
		// Y=196 maps to index 1066, linearises to 807 and re-encodes to
		// sRGB index 1091.
		if math.Abs(float64(r)-0.786023) > 0.001 {
			t.Fatalf("pixel %d = %v, want about 0.786", i, r)
		}
	}
}

func TestConvertRotation(t *testing.T) {
	// A single bright pixel at source (0, 0) must land at the rotated
	// destination index.
	const w, h = 4, 2

	tests := []struct {
		rotate int
		want   int
	}{
		{0, 0},
		{1, (w - 1) * h}, // (row + (W-1-col)*H)
		{2, w - 1 + (h-1)*w},
		{3, h - 1},
	}

	for _, tt := range tests {
		lp := make([]byte, w*h)
		lp[0] = 255

		job := convertJob{
			size:       byteSize,
			r8:         make([]uint8, w*h),
			g8:         make([]uint8, w*h),
			b8:         make([]uint8, w*h),
			stride:     1,
			columns:    w,
			rows:       h,
			lp:         lp,
			rotate:     tt.rotate,
			colorSpace: RawColorSpace,
		}

		job.run(0, h)

		for i, v := range job.r8 {
			bright := v > 200
			if bright != (i == tt.want) {
				t.Fatalf("rotate %d: bright pixel at %d, want only at %d (r8=%v)",
					tt.rotate, i, tt.want, job.r8)
			}
		}
	}
}

func TestConvertFormatsConsistent(t *testing.T) {
	// The three output depths are LUT mappings of the same 0..1388 index, so
	// they must agree after rescaling.
	const w, h = 8, 4
	lp := make([]byte, w*h)
	for i := range lp {
		lp[i] = byte(i * 7)
	}

	base := convertJob{
		stride:     1,
		columns:    w,
		rows:       h,
		lp:         lp,
		colorSpace: RawColorSpace,
	}

	j8 := base
	j8.size = byteSize
	j8.r8 = make([]uint8, w*h)
	j8.g8 = make([]uint8, w*h)
	j8.b8 = make([]uint8, w*h)
	j8.run(0, h)

	j16 := base
	j16.size = int16Size
	j16.r16 = make([]uint16, w*h)
	j16.g16 = make([]uint16, w*h)
	j16.b16 = make([]uint16, w*h)
	j16.run(0, h)

	jf := base
	jf.size = floatSize
	jf.rf = make([]float32, w*h)
	jf.gf = make([]float32, w*h)
	jf.bf = make([]float32, w*h)
	jf.run(0, h)

	for i := 0; i < w*h; i++ {
		if diff := int(j16.r16[i]/257) - int(j8.r8[i]); diff < -1 || diff > 1 {
			t.Fatalf("pixel %d: u16 %d vs u8 %d disagree", i, j16.r16[i], j8.r8[i])
		}
		if diff := float64(jf.rf[i]) - float64(j16.r16[i])/65535; math.Abs(diff) > 0.01 {
			t.Fatalf("pixel %d: float %v vs u16 %d disagree", i, jf.rf[i], j16.r16[i])
		}
	}
}

func TestConvertMonochrome(t *testing.T) {
	// Nil chroma planes: the RGB path treats chroma as neutral, the YCC
	// path replicates the processed luma.
	const w, h = 4, 4

	for _, cs := range []ColorSpace{RawColorSpace, YCCColorSpace, SRGBColorSpace} {
		job := convertJob{
			size:       byteSize,
			r8:         make([]uint8, w*h),
			g8:         make([]uint8, w*h),
			b8:         make([]uint8, w*h),
			stride:     1,
			columns:    w,
			rows:       h,
			lp:         fillPlane(w*h, 180),
			colorSpace: cs,
		}

		job.run(0, h)

		if cs == YCCColorSpace {
			for i := 0; i < w*h; i++ {
				if job.r8[i] != job.g8[i] || job.g8[i] != job.b8[i] {
					t.Fatalf("colorspace %d pixel %d = (%d, %d, %d), want equal",
						cs, i, job.r8[i], job.g8[i], job.b8[i])
				}
			}
		}

		if job.r8[0] == 0 {
			t.Fatalf("colorspace %d produced a black pixel from luma 180", cs)
		}
	}
}

func TestConvertAlpha(t *testing.T) {
	const w, h = 2, 2
	job := convertJob{
		size:    byteSize,
		r8:      make([]uint8, w*h),
		g8:      make([]uint8, w*h),
		b8:      make([]uint8, w*h),
		a8:      make([]uint8, w*h),
		stride:  1,
		columns: w,
		rows:    h,
		lp:      make([]byte, w*h),
	}

	job.run(0, h)

	for i, v := range job.a8 {
		if v != 0xff {
			t.Fatalf("alpha %d = %d, want 0xff", i, v)
		}
	}
}
