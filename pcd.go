// Package pcd implements a decoder for Kodak Photo CD (PCD) image files.
//
// A PCD image pack stores one photograph at six resolutions, from a 192x128
// thumbnail up to the optional 6144x4096 64Base image. The three lowest
// resolutions are stored as raw subsampled YCC planes; the higher ones are
// Huffman-coded delta corrections applied on top of a bilinearly upscaled
// copy of the next lower resolution. The decoder reassembles the pyramid up
// to a requested resolution, converts the result through a small integer
// color pipeline, and rotates it to the natural orientation.
package pcd

import (
	"errors"
	"image"
	"image/color"
)

// Standard error types for PCD decoding. ParseFile wraps these with context
// where useful; match with errors.Is.
var (
	ErrOpen             = errors.New("could not open PCD file")
	ErrTooSmall         = errors.New("PCD file is too small to be valid")
	ErrNotPCD           = errors.New("not a valid PCD file")
	ErrInterleavedAudio = errors.New("the file contains interleaved audio")
	ErrNoImage          = errors.New("no valid base image could be found")
	ErrHuffman          = errors.New("huffman code error")
	ErrUnexpectedEOF    = errors.New("unexpected end of file in huffman sequence")
	ErrCorrupt          = errors.New("corrupt image")
)

// Resolution identifies one tier of the PCD image pyramid. The luma plane of
// tier n measures (192<<n)x(128<<n) pixels.
type Resolution int

const (
	// Base16 is the 192x128 index-print thumbnail.
	Base16 Resolution = iota
	// Base4 is the 384x256 preview image.
	Base4
	// Base is the 768x512 screen-resolution image.
	Base
	// FourBase is the 1536x1024 image (luma deltas only).
	FourBase
	// SixteenBase is the 3072x2048 image.
	SixteenBase
	// SixtyFourBase is the optional 6144x4096 image stored in a companion
	// IPE file set.
	SixtyFourBase

	maxScenes = int(SixtyFourBase) + 1
)

// ColorSpace selects the color space that Populate* buffers are returned in.
type ColorSpace int

const (
	// RawColorSpace returns PCD photo YCC data converted to RGB primaries but
	// otherwise untouched (still gamma compressed, no white balance).
	RawColorSpace ColorSpace = iota
	// LinearCCIR709ColorSpace is a CCIR 709 linear-light (gamma 1.0) space.
	LinearCCIR709ColorSpace
	// SRGBColorSpace applies the sRGB transfer curve after linearisation.
	SRGBColorSpace
	// YCCColorSpace returns the unconverted luma and chroma planes scaled to
	// the output range.
	YCCColorSpace
)

// WhiteBalance selects the adaptation white point for the processed color
// spaces. PCD images are scanned for D65.
type WhiteBalance int

const (
	// D65White is the 6500K scan illuminant (no adaptation).
	D65White WhiteBalance = iota
	// D50White adapts the output to a 5000K white point.
	D50White
)

// Interpolation selects the chroma up-resolution method.
type Interpolation int

const (
	// InterpNearest replicates chroma samples. Debugging quality only.
	InterpNearest Interpolation = iota
	// InterpBilinear is the Kodak-standard bilinear interpolator.
	InterpBilinear
	// InterpAdaptive is accepted for compatibility and decodes with the
	// bilinear interpolator.
	InterpAdaptive
)

// MetadataIndex identifies one entry of the fixed IPI metadata dictionary.
type MetadataIndex int

const (
	MetaSpecificationVersion MetadataIndex = iota
	MetaAuthoringSoftwareRelease
	MetaImageScanningTime
	MetaImageModificationTime
	MetaImageMedium
	MetaProductType
	MetaScannerVendor
	MetaScannerProduct
	MetaScannerFirmwareRevision
	MetaScannerFirmwareDate
	MetaScannerSerialNumber
	MetaScannerPixelSize
	MetaPIWEquipmentManufacturer
	MetaPhotoFinisherName
	MetaSBARevision
	MetaSBACommand
	MetaSBAFilm
	MetaCopyrightStatus
	MetaCopyrightFile
	MetaCompressionClass

	maxMetadata
)

// Options specifies decoding parameters for the convenience Decode path.
type Options struct {
	// Resolution is the maximum resolution to decode. The decoder falls back
	// to the best fully decodable tier when the file has less.
	Resolution Resolution
	// IPEFile is the path of the companion 64Base IPE file, empty for none.
	// It is only consulted when Resolution is SixtyFourBase.
	IPEFile string
	// ColorSpace for the returned image. A nil Options decodes in sRGB; the
	// zero value of this field is RawColorSpace.
	ColorSpace ColorSpace
	// WhiteBalance for the processed color spaces.
	WhiteBalance WhiteBalance
	// Interpolation method for chroma up-resolution.
	Interpolation Interpolation
	// Monochrome ignores the chroma planes.
	Monochrome bool
}

// Decode reads the PCD image pack at path and returns the assembled image as
// an [image.RGBA] in the natural orientation. A nil opts decodes the Base
// resolution in sRGB.
func Decode(path string, opts *Options) (image.Image, error) {
	if opts == nil {
		opts = &Options{Resolution: Base, ColorSpace: SRGBColorSpace, Interpolation: InterpBilinear}
	}

	d := NewDecoder()
	d.SetColorSpace(opts.ColorSpace)
	d.SetWhiteBalance(opts.WhiteBalance)
	d.SetInterpolation(opts.Interpolation)
	d.SetMonochrome(opts.Monochrome)

	if err := d.ParseFile(path, opts.IPEFile, opts.Resolution); err != nil {
		return nil, err
	}
	d.PostParse()

	img := image.NewRGBA(image.Rect(0, 0, d.Width(), d.Height()))
	// The populate buffers are planar views into the interleaved RGBA pixel
	// slice: one slice per channel, advancing four bytes per pixel.
	d.PopulateUint8(img.Pix[0:], img.Pix[1:], img.Pix[2:], img.Pix[3:], 4)

	return img, nil
}

// DecodeConfig returns the color model and dimensions of the image pack at
// path without decoding pixel data. The dimensions are those of the highest
// resolution the pack header advertises, after rotation to the natural
// orientation.
func DecodeConfig(path string) (image.Config, error) {
	h, err := readFileHeader(path)
	if err != nil {
		return image.Config{}, err
	}

	w, h2 := lumaWidth[h.imageResolution], lumaHeight[h.imageResolution]
	if h.imageRotate == 1 || h.imageRotate == 3 {
		w, h2 = h2, w
	}

	return image.Config{
		ColorModel: color.RGBAModel,
		Width:      w,
		Height:     h2,
	}, nil
}
