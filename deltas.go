package pcd

// Per-tier geometry and sequence header layout. Chroma is subsampled 2:1 in
// both directions at every tier except FourBase, where it stays at Base
// resolution. The shift/mask pairs locate the plane, row and sequence fields
// inside the bits that follow a sync marker; their placement differs between
// the 24-bit headers (tiers up to SixteenBase) and the 32-bit SixtyFourBase
// headers.
var (
	lumaWidth    = [maxScenes]int{192, 192 << 1, 192 << 2, 192 << 3, 192 << 4, 192 << 5}
	lumaHeight   = [maxScenes]int{128, 128 << 1, 128 << 2, 128 << 3, 128 << 4, 128 << 5}
	chromaWidth  = [maxScenes]int{96, 96 << 1, 96 << 2, 96 << 2, 96 << 4, 96 << 5}
	chromaHeight = [maxScenes]int{64, 64 << 1, 64 << 2, 64 << 2, 64 << 4, 64 << 5}

	chromaResFactor = [maxScenes]uint{1, 1, 1, 1, 1, 1}

	rowShift       = [maxScenes]uint{0, 0, 0, 9, 9, 6}
	rowMask        = [maxScenes]uint32{0, 0, 0, 0x1fff, 0x1fff, 0x3fff}
	rowSubSample   = [maxScenes]int{1, 1, 1, 1, 1, 2}
	sequenceShift  = [maxScenes]uint{0, 0, 0, 0, 0, 1}
	sequenceMask   = [maxScenes]uint32{0, 0, 0, 0, 0, 0xf}
	planeShift     = [maxScenes]uint{0, 0, 0, 22, 22, 19}
	planeMask      = [maxScenes]uint32{0, 0, 0, 0x3, 0x3, 0x6}
	huffHeaderSize = [maxScenes]int{0, 0, 0, 3, 3, 4}
)

// planeSlice bounds-checks a sequence destination. Rows are validated by the
// caller, but a corrupt sequence index or column offset could still address
// past the plane, which must surface as a corrupt image rather than a
// runtime fault.
func planeSlice(plane []byte, offset, length int) []byte {
	if offset < 0 || length < 0 || offset+length > len(plane) {
		panic(errDecode{ErrCorrupt})
	}

	return plane[offset : offset+length]
}

// readDeltas consumes one resolution tier's worth of Huffman sequences,
// dispatching each decoded run into the delta plane named by its sequence
// header. data holds the luma, chroma1 and chroma2 delta planes; nil planes
// are skipped (FourBase carries luma only, monochrome decodes skip chroma).
// sequenceSize is the fixed run length in symbols, 0 for full rows.
// sequencesToProcess limits the number of sequences; 0 selects the tier
// default of one sequence per stored plane row, or a single sequence at
// SixtyFourBase. colOffset is the column of
// the destination sub-tile, used by the SixtyFourBase layers.
//
// Errors unwind as errDecode panics; the caller recovers them at the tier
// boundary.
func readDeltas(b *bitReader, huf *huffTables, scene Resolution, sequenceSize, sequencesToProcess int, data *[3][]byte, colOffset int) {
	planeTrack := 0
	if data[0] != nil {
		planeTrack |= 0x1
	}
	if data[1] != nil {
		planeTrack |= 0x2
	}
	if data[2] != nil {
		planeTrack |= 0x4
	}

	if sequencesToProcess == 0 {
		if scene == SixtyFourBase {
			sequencesToProcess = 1
		} else {
			// One sequence per luma row plus one per row of each chroma.
			sequencesToProcess = lumaHeight[scene] + 2*chromaHeight[scene]
		}
	}

	row := 0
	for (planeTrack != 0 || row < lumaHeight[scene]) && sequencesToProcess > 0 {
		b.sync()

		// Pull the header fields past the marker into the shift register.
		b.getBits(16)
		row = int((b.sum >> rowShift[scene]) & rowMask[scene])
		sequence := int((b.sum >> sequenceShift[scene]) & sequenceMask[scene])
		plane := int((b.sum >> planeShift[scene]) & planeMask[scene])
		if plane != 0 {
			row *= rowSubSample[scene]
		}

		// Skip the rest of the header bytes.
		for i := 0; i < huffHeaderSize[scene]; i++ {
			b.getBits(8)
		}

		// Out-of-range rows are stale sequences left by the writer; skip
		// them silently.
		if row < lumaHeight[scene] {
			switch plane {
			case 0:
				length := sequenceSize
				if length == 0 {
					length = lumaWidth[scene]
				}
				offset := row*lumaWidth[scene] + sequence*sequenceSize + colOffset
				b.decodeHuffman(huf.ht[0], planeSlice(data[0], offset, length))
				planeTrack &= 0x6
			case 2:
				if data[1] != nil {
					length := sequenceSize
					if length == 0 {
						length = chromaWidth[scene]
					}
					offset := (row>>1)*chromaWidth[scene] + sequence*sequenceSize + colOffset>>1
					b.decodeHuffman(huf.ht[1], planeSlice(data[1], offset, length))
				}
				planeTrack &= 0x5
			case 3, 4:
				// Plane 4 is the legacy IPE numbering for chroma2.
				if data[2] != nil {
					length := sequenceSize
					if length == 0 {
						length = chromaWidth[scene]
					}
					offset := (row>>1)*chromaWidth[scene] + sequence*sequenceSize + colOffset>>1
					b.decodeHuffman(huf.ht[2], planeSlice(data[2], offset, length))
				}
				planeTrack &= 0x3
			default:
				panic(errDecode{ErrCorrupt})
			}
		}

		sequencesToProcess--
	}
}
