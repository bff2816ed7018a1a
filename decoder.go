package pcd

import (
	"fmt"
	"io"
	"os"
)

// Decoder decodes one PCD image pack. The pipeline is strictly staged:
// ParseFile reads metadata, the base planes and the raw delta planes;
// PostParse folds the deltas into the pyramid; Populate* converts the result
// into caller buffers and may be called repeatedly with different settings.
// A Decoder must not be used from multiple goroutines concurrently; distinct
// Decoders are independent.
type Decoder struct {
	header *fileHeader

	// YCC planes of the current tier. Chroma is held at half luma
	// resolution and only brought to full resolution into scratch buffers
	// during Populate*, so monochrome can be toggled between calls.
	luma    []byte
	chroma1 []byte
	chroma2 []byte

	// Raw delta planes per tier (FourBase..SixtyFourBase) and plane,
	// consumed by PostParse.
	deltas [3][3][]byte

	scene     Resolution // tier the decoder settled on
	baseScene Resolution // tier the uncompressed base was read at

	upResMethod  Interpolation
	colorSpace   ColorSpace
	whiteBalance WhiteBalance
	monochrome   bool

	ipeLayers int
	ipeFiles  int

	parseErr error
	warning  string
}

// NewDecoder returns an empty decoder with the PCD defaults: raw color
// space, D65 white balance, bilinear interpolation.
func NewDecoder() *Decoder {
	return &Decoder{
		upResMethod:  InterpBilinear,
		colorSpace:   RawColorSpace,
		whiteBalance: D65White,
	}
}

// free drops all plane buffers from a previous conversion.
func (d *Decoder) free() {
	d.header = nil
	d.luma, d.chroma1, d.chroma2 = nil, nil, nil
	d.deltas = [3][3][]byte{}
	d.parseErr = nil
	d.warning = ""
}

// decodeLevel runs one tier's decode stage, converting errDecode panics from
// the bit stream and sequence dispatch back into errors so the caller can
// downgrade instead of failing.
func decodeLevel(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(errDecode); ok {
				err = de.error
			} else {
				panic(r)
			}
		}
	}()

	return fn()
}

// ParseFile reads the PCD file at path up to the requested resolution,
// together with the companion IPE file at ipePath (empty for none) when
// SixtyFourBase is requested. It fills metadata and the image planes but
// produces no pixel data; call PostParse and then Populate*.
//
// A missing tier or a decode failure above Base is not an error: the decoder
// falls back to the best fully decodable tier and ParseFile still succeeds.
// A failed delta tier (4Base and up) records a warning retrievable through
// ErrorString; an unreadable base tier is dropped without one. Of the tiers,
// only failing to read even the Base16 thumbnail is an error.
func (d *Decoder) ParseFile(path, ipePath string, res Resolution) error {
	d.free()

	f, err := os.Open(path)
	if err != nil {
		d.parseErr = fmt.Errorf("%w: %v", ErrOpen, err)
		return d.parseErr
	}
	defer f.Close()

	buf := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		d.parseErr = ErrTooSmall
		return d.parseErr
	}

	h, err := parseFileHeader(buf)
	if err != nil {
		d.parseErr = err
		return d.parseErr
	}
	d.header = h
	if h.overview {
		// Overview packs carry no decodable image; only the header is kept.
		d.scene = Base16
		return nil
	}

	// Sector offsets of the per-tier data regions. The 16Base locations
	// float behind the variable-size 4Base data.
	icdOffset := [maxScenes]int64{4, 23, 96, 389, 0, 0}
	hctOffset := [maxScenes]int64{0, 0, 0, 388, 0, 0}
	hctOffset[SixteenBase] = int64(h.sectorStop4Base) + 12
	icdOffset[SixteenBase] = int64(h.sectorStop4Base) + 14

	if res < Base16 {
		res = Base16
	}
	if res > SixtyFourBase {
		res = SixtyFourBase
	}
	d.scene = res
	if h.imageResolution < SixteenBase && d.scene > h.imageResolution {
		d.scene = h.imageResolution
	}

	baseScene, planes, err := readBaseImage(f, d.scene, &icdOffset)
	if err != nil {
		d.parseErr = err
		return d.parseErr
	}
	d.baseScene = baseScene
	d.luma, d.chroma1, d.chroma2 = planes[0], planes[1], planes[2]
	if d.baseScene < Base {
		// Less than Base resolution was readable, so no deltas apply.
		d.scene = d.baseScene
	}

	if d.scene >= FourBase {
		d.readDeltaLevels(f, ipePath, &hctOffset, &icdOffset)
	}

	return nil
}

// readDeltaLevels reads the Huffman-coded delta tiers in order. Each tier
// failure frees that tier's partial planes, records a warning and settles on
// the previous tier.
func (d *Decoder) readDeltaLevels(f *os.File, ipePath string, hctOffset, icdOffset *[maxScenes]int64) {
	err := decodeLevel(func() error {
		// The 1536x1024 tier carries luma deltas only, so the image keeps
		// chroma subsampled from the Base planes.
		tables, err := readHuffTables(f, sectorSize*hctOffset[FourBase], 1)
		if err != nil {
			return err
		}

		d.deltas[0][0] = make([]byte, lumaWidth[FourBase]*lumaHeight[FourBase])
		if _, err := f.Seek(sectorSize*icdOffset[FourBase], io.SeekStart); err != nil {
			return err
		}

		readDeltas(newBitReader(f), tables, FourBase, 0, 0, &d.deltas[0], 0)

		return nil
	})
	if err != nil {
		d.scene = Base
		d.deltas[0] = [3][]byte{}
		d.warning = fmt.Sprintf("%v while processing 4Base image", err)

		return
	}
	if d.scene < SixteenBase {
		return
	}

	err = decodeLevel(func() error {
		// The 3072x2048 tier has luma and chroma deltas; chroma is
		// subsampled by two.
		numTables := 3
		if d.monochrome {
			numTables = 1
		}
		tables, err := readHuffTables(f, sectorSize*hctOffset[SixteenBase], numTables)
		if err != nil {
			return err
		}

		d.deltas[1][0] = make([]byte, lumaWidth[SixteenBase]*lumaHeight[SixteenBase])
		if !d.monochrome {
			d.deltas[1][1] = make([]byte, chromaWidth[SixteenBase]*chromaHeight[SixteenBase])
			d.deltas[1][2] = make([]byte, chromaWidth[SixteenBase]*chromaHeight[SixteenBase])
		}
		if _, err := f.Seek(sectorSize*icdOffset[SixteenBase], io.SeekStart); err != nil {
			return err
		}

		readDeltas(newBitReader(f), tables, SixteenBase, 0, 0, &d.deltas[1], 0)

		return nil
	})
	if err != nil {
		d.scene = FourBase
		d.deltas[1] = [3][]byte{}
		d.warning = fmt.Sprintf("%v while processing 16Base image", err)

		return
	}
	if d.scene < SixtyFourBase {
		return
	}

	if err := decodeLevel(func() error { return d.parseICFile(ipePath) }); err != nil {
		d.scene = SixteenBase
		d.deltas[2] = [3][]byte{}
		d.warning = fmt.Sprintf("%v while processing 64Base image", err)
	}
}

// PostParse folds the delta tiers into a coherent YCC image: for every tier
// with deltas, the luma plane is bilinearly doubled with the signed deltas
// added in place, and the chroma planes are doubled to follow (with their
// own deltas at SixteenBase and above). The delta buffers become the new
// planes. Idempotent once the deltas are consumed; a no-op if no file is
// loaded.
func (d *Decoder) PostParse() {
	if d.header == nil {
		return
	}

	// Delta assembly never uses the adaptive method.
	method := d.upResMethod
	if method > InterpBilinear {
		method = InterpBilinear
	}

	for scene := FourBase; scene <= SixtyFourBase; scene++ {
		i := int(scene - FourBase)
		if d.deltas[i][0] == nil {
			continue
		}

		w, h := lumaWidth[scene], lumaHeight[scene]
		upResBuffer(d.luma, d.deltas[i][0], w, h, method, true)
		d.luma = d.deltas[i][0]
		d.deltas[i][0] = nil

		// With the luma doubled, chroma has to follow to stay at half luma
		// resolution, whether or not this tier carried chroma deltas.
		haveDeltas := d.deltas[i][1] != nil
		if !haveDeltas {
			d.deltas[i][1] = make([]byte, (w>>1)*(h>>1))
		}
		upResBuffer(d.chroma1, d.deltas[i][1], w>>1, h>>1, method, haveDeltas)
		d.chroma1 = d.deltas[i][1]
		d.deltas[i][1] = nil

		haveDeltas = d.deltas[i][2] != nil
		if !haveDeltas {
			d.deltas[i][2] = make([]byte, (w>>1)*(h>>1))
		}
		upResBuffer(d.chroma2, d.deltas[i][2], w>>1, h>>1, method, haveDeltas)
		d.chroma2 = d.deltas[i][2]
		d.deltas[i][2] = nil
	}
}

// Width returns the image width after rotation to the natural orientation.
func (d *Decoder) Width() int {
	if d.header != nil && d.header.imageRotate&1 != 0 {
		return lumaHeight[d.scene]
	}

	return lumaWidth[d.scene]
}

// Height returns the image height after rotation to the natural orientation.
func (d *Decoder) Height() int {
	if d.header != nil && d.header.imageRotate&1 != 0 {
		return lumaWidth[d.scene]
	}

	return lumaHeight[d.scene]
}

// Orientation returns the stored orientation of the image: 0 through 3 for
// 0, 90, 180 and 270 degrees counter-clockwise. Populate* output is always
// rotated to orientation 0.
func (d *Decoder) Orientation() int {
	if d.header == nil {
		return 0
	}

	return d.header.imageRotate
}

// Resolution returns the tier the decoder settled on, which may be lower
// than requested.
func (d *Decoder) Resolution() Resolution {
	return d.scene
}

// SetInterpolation selects the chroma up-resolution method for subsequent
// Populate* calls.
func (d *Decoder) SetInterpolation(method Interpolation) {
	d.upResMethod = method
}

// SetColorSpace selects the output color space for subsequent Populate*
// calls.
func (d *Decoder) SetColorSpace(space ColorSpace) {
	d.colorSpace = space
}

// ColorSpace returns the color space set by SetColorSpace.
func (d *Decoder) ColorSpace() ColorSpace {
	return d.colorSpace
}

// SetWhiteBalance selects the adaptation white point for the CCIR 709 and
// sRGB color spaces.
func (d *Decoder) SetWhiteBalance(wb WhiteBalance) {
	d.whiteBalance = wb
}

// SetMonochrome controls whether the chroma planes are ignored. The planes
// are retained, so turning monochrome off restores color output.
func (d *Decoder) SetMonochrome(v bool) {
	d.monochrome = v
}

// IsMonochrome reports whether the decoder processes the image as
// monochrome.
func (d *Decoder) IsMonochrome() bool {
	return d.monochrome
}

// DigitisationTime returns the scan time in seconds since 1970-01-01 UTC,
// or 0 if no file is loaded.
func (d *Decoder) DigitisationTime() int64 {
	if d.header == nil {
		return 0
	}

	return int64(getPCD32(d.header.ipi(ipiScanningTime, 4)))
}

// FilmTermData returns the film term number and the PC and GC codes of the
// scanned medium, per Kodak document PCD067. A GC of -1 means no GC value
// exists; all zeros means no film term data is available.
func (d *Decoder) FilmTermData() (ftn, pc, gc int) {
	if d.header == nil || !d.header.hasSBA() {
		return 0, 0, 0
	}

	ft := lookupFilmTerm(int(getPCD16(d.header.ipi(ipiSBAFilmTerm, 2))))
	if ft == nil {
		return 0, 0, 0
	}

	return ft.ftn, ft.pc, ft.gc
}

// Metadata returns the human readable description and value of one entry of
// the metadata dictionary. Missing fields render as "-".
func (d *Decoder) Metadata(index MetadataIndex) (description, value string) {
	if index < 0 || index >= maxMetadata || d.header == nil {
		return "Error", "Error"
	}

	return metadataDescriptions[index], d.header.metadataValue(index, d.header.huffmanClass)
}

// ErrorString returns the error message when ParseFile failed, the most
// recent downgrade warning when it succeeded, or "" when the decode was
// clean.
func (d *Decoder) ErrorString() string {
	if d.parseErr != nil {
		return d.parseErr.Error()
	}

	return d.warning
}
