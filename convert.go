package pcd

// The micro CMM. Instead of handing the YCC data to a full color management
// module, the conversion to RGB, linear light and sRGB is done with a few
// LUTs and one matrix, all in integer math, multithreaded over row bands.
// Channel values travel as fixed-point indices in 0..1388 until the final
// output LUT quantises them to the caller's pixel format.

type outputSize int

const (
	byteSize outputSize = iota
	int16Size
	floatSize
)

// convertJob describes one Populate* request; run converts one row band.
type convertJob struct {
	size outputSize

	r8, g8, b8, a8     []uint8
	r16, g16, b16, a16 []uint16
	rf, gf, bf, af     []float32

	stride        int
	columns, rows int

	lp, c1p, c2p []byte
	resFactor    uint
	rotate       int

	colorSpace   ColorSpace
	whiteBalance WhiteBalance
}

// pin clamps a channel value to the LUT index range.
func pin(v int32) int32 {
	if v < 0 {
		return 0
	}
	if v > 1388 {
		return 1388
	}

	return v
}

// run converts the rows [startRow, endRow). Rotation happens during address
// generation: each source pixel is written to the destination index of its
// rotated position, so the caller buffers always receive the natural
// orientation.
func (j *convertJob) run(startRow, endRow int) {
	for row := startRow; row < endRow; row++ {
		for col := 0; col < j.columns; col++ {
			var destIndex int
			switch j.rotate {
			case 1:
				destIndex = (row + (j.columns-1-col)*j.rows) * j.stride
			case 2:
				destIndex = (j.columns - 1 - col + (j.rows-1-row)*j.columns) * j.stride
			case 3:
				destIndex = (j.rows - 1 - row + col*j.rows) * j.stride
			default:
				destIndex = (col + row*j.columns) * j.stride
			}

			lumaIndex := col + row*j.columns
			chromaIndex := (col >> j.resFactor) + (row>>j.resFactor)*(j.columns>>j.resFactor)

			var ri, gi, bi int32
			if j.colorSpace == YCCColorSpace {
				// The original photo YCC values, scaled to the output range.
				ri = pin((int32(j.lp[lumaIndex]) << 10) / 188)
				gi, bi = ri, ri
				if j.c1p != nil {
					gi = pin((int32(j.c1p[chromaIndex]) << 10) / 188)
				}
				if j.c2p != nil {
					bi = pin((int32(j.c2p[chromaIndex]) << 10) / 188)
				}
			} else {
				li := int32(j.lp[lumaIndex]) * 5573 // 0 to 1,421,115
				var c1i, c2i int32
				if j.c1p != nil {
					c1i = (int32(j.c1p[chromaIndex]) - 156) * 9085 // -1,417,260 to 899,415
				}
				if j.c2p != nil {
					c2i = (int32(j.c2p[chromaIndex]) - 137) * 7461 // -1,022,157 to 880,398
				}

				ri = pin((li + c2i) >> 10)
				gi = pin((li >> 10) - c1i/5278 - c2i/2012)
				bi = pin((li + c1i) >> 10)

				// This is RGB in the original photo CD space: either pass it
				// back raw, or linearise for CCIR 709, optionally adapt the
				// white point, and recompress for sRGB.
				if j.colorSpace == LinearCCIR709ColorSpace || j.colorSpace == SRGBColorSpace {
					ri = int32(toLinearLight[ri])
					gi = int32(toLinearLight[gi])
					bi = int32(toLinearLight[bi])

					if j.whiteBalance == D50White {
						// Bradford D65 to D50 adaptation, scaled by 1/8192.
						rt, gt, bt := ri, gi, bi
						ri = (5930*rt - 143*gt + 393*bt) >> 13
						gi = (-176*rt + 6268*gt + 131*bt) >> 13
						bi = (76*rt - 128*gt + 8256*bt) >> 13
					}
				}

				if j.colorSpace == SRGBColorSpace {
					ri = int32(ccir709ToSRGB[pin(ri)])
					gi = int32(ccir709ToSRGB[pin(gi)])
					bi = int32(ccir709ToSRGB[pin(bi)])
				} else {
					ri = pin(ri)
					gi = pin(gi)
					bi = pin(bi)
				}
			}

			switch j.size {
			case floatSize:
				j.rf[destIndex] = floatOutput[ri]
				j.gf[destIndex] = floatOutput[gi]
				j.bf[destIndex] = floatOutput[bi]
				if j.af != nil {
					j.af[destIndex] = 1.0
				}
			case int16Size:
				j.r16[destIndex] = uint16Output[ri]
				j.g16[destIndex] = uint16Output[gi]
				j.b16[destIndex] = uint16Output[bi]
				if j.a16 != nil {
					j.a16[destIndex] = 0xffff
				}
			default:
				j.r8[destIndex] = uint8Output[ri]
				j.g8[destIndex] = uint8Output[gi]
				j.b8[destIndex] = uint8Output[bi]
				if j.a8 != nil {
					j.a8[destIndex] = 0xff
				}
			}
		}
	}
}

// interpolateChroma brings the chroma planes to luma resolution into scratch
// buffers, by one doubling pass per factor of two. The decoder's own planes
// stay untouched.
func (d *Decoder) interpolateChroma(resFactor *uint) (c1, c2 []byte) {
	scene := d.scene
	w, h := lumaWidth[scene], lumaHeight[scene]

	c1 = make([]byte, w*h)
	c2 = make([]byte, w*h)

	c1p, c2p := d.chroma1, d.chroma2
	if *resFactor == 2 {
		intermediate := make([]byte, (w>>1)*(h>>1))
		upResBuffer(c1p, intermediate, w>>1, h>>1, d.upResMethod, false)
		upResBuffer(intermediate, c1, w, h, d.upResMethod, false)
		upResBuffer(c2p, intermediate, w>>1, h>>1, d.upResMethod, false)
		upResBuffer(intermediate, c2, w, h, d.upResMethod, false)
	} else {
		upResBuffer(c1p, c1, w, h, d.upResMethod, false)
		upResBuffer(c2p, c2, w, h, d.upResMethod, false)
	}
	*resFactor = 0

	return c1, c2
}

// populateBuffers fills the caller buffers from the assembled planes. It can
// run any number of times; settings take effect per call.
func (d *Decoder) populateBuffers(job convertJob) {
	if d.header == nil || d.luma == nil {
		return
	}

	scene := d.scene
	job.columns = lumaWidth[scene]
	job.rows = lumaHeight[scene]
	job.rotate = d.header.imageRotate
	job.colorSpace = d.colorSpace
	job.whiteBalance = d.whiteBalance
	job.lp = d.luma
	job.resFactor = chromaResFactor[scene]

	c1p, c2p := d.chroma1, d.chroma2
	if d.upResMethod >= InterpBilinear && c1p != nil {
		c1p, c2p = d.interpolateChroma(&job.resFactor)
	}
	if d.monochrome {
		// Chroma is ignored but retained, so monochrome can be switched
		// back off before the next call.
		c1p, c2p = nil, nil
	}
	job.c1p, job.c2p = c1p, c2p

	bandParallel(job.rows, job.run)
}

// PopulateUint8 fills the caller-owned channel buffers with 8-bit RGB data
// in the natural orientation. Alpha is set to 0xff throughout and may be
// nil. stride is the per-pixel increment in each buffer, allowing either
// interleaved or separate channel buffers. Valid after ParseFile succeeded
// and PostParse ran.
func (d *Decoder) PopulateUint8(r, g, b, a []uint8, stride int) {
	d.populateBuffers(convertJob{size: byteSize, r8: r, g8: g, b8: b, a8: a, stride: stride})
}

// PopulateUint16 is PopulateUint8 for 16-bit buffers; alpha is 0xffff.
func (d *Decoder) PopulateUint16(r, g, b, a []uint16, stride int) {
	d.populateBuffers(convertJob{size: int16Size, r16: r, g16: g, b16: b, a16: a, stride: stride})
}

// PopulateFloat is PopulateUint8 for float32 buffers in [0, 1]; alpha is 1.
func (d *Decoder) PopulateFloat(r, g, b, a []float32, stride int) {
	d.populateBuffers(convertJob{size: floatSize, rf: r, gf: g, bf: b, af: a, stride: stride})
}
