package pcd

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
)

// The 64Base image lives outside the primary file, in an IPE file set: an IC
// (image component) descriptor file plus up to ten extension files holding
// the Huffman streams. The IC header carries four offsets; the descriptor
// region describes one layer per plane as a grid of fixed-length sequences,
// and a pointer array records in which extension file, at which byte offset,
// each run of sequences starts.
//
// IC file structures (all integers big-endian):
//
//	header:      name[40] val1[2] val2[2] descr[4] fnames[4] pointers[4] huffman[4]
//	descriptor:  len[2] color[1] fill[1] width[2] height[2] offset[2]
//	             length[4] pointers[4] huffman[4] fill[6]
//	filename:    name[12] size[4]
//	pointer:     file[2] offset[4]
const (
	icOffDescr    = 44
	icOffFnames   = 48
	icOffHuffman  = 56
	icDescrSize   = 28
	icFnameSize   = 16
	icPointerSize = 6
)

var (
	errIPEName     = errors.New("IPE filename too short to be valid")
	errIPEOpen     = errors.New("could not open 64Base IPE file")
	errIPETooSmall = errors.New("IC file too small")
	errIPELayers   = errors.New("invalid number of layers")
	errIPEFiles    = errors.New("invalid number of IPE files")
	errIPEExtOpen  = errors.New("could not open 64Base extension image")
)

// icField bounds-checks a slice of the IC file buffer.
func icField(buf []byte, offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset > len(buf)-length {
		return nil, errIPETooSmall
	}

	return buf[offset : offset+length], nil
}

// parseICFile decodes the 64Base deltas described by the IC file at
// ipePath. The extension files are expected alongside it; their recorded
// names are uppercase ASCII and are lowercased when the IC path itself uses
// a lowercase "64base" suffix. Any failure leaves the 64Base delta planes
// for the caller to discard.
func (d *Decoder) parseICFile(ipePath string) error {
	if len(ipePath) < 10 {
		return errIPEName
	}
	// The E of 64BASE tells us whether this is a lowercase environment.
	lowerCase := ipePath[len(ipePath)-9] == 'e'

	buf, err := os.ReadFile(ipePath)
	if err != nil {
		return errIPEOpen
	}
	if len(buf) < sectorSize {
		return errIPETooSmall
	}

	field, err := icField(buf, int(getPCD32(buf[icOffDescr:])), 2)
	if err != nil {
		return err
	}
	layers := int(getPCD16(field))
	if layers != 1 && layers != 3 {
		return errIPELayers
	}
	if d.monochrome {
		layers = 1
	}
	d.ipeLayers = layers

	// The three descriptor records chain through their length field.
	var descr [3][]byte
	pos := int(getPCD32(buf[icOffDescr:])) + 2
	for i := 0; i < layers; i++ {
		rec, err := icField(buf, pos, icDescrSize)
		if err != nil {
			return err
		}
		descr[i] = rec
		pos += int(getPCD16(rec[0:2]))
	}

	offFnames := int(getPCD32(buf[icOffFnames:]))
	field, err = icField(buf, offFnames, 2)
	if err != nil {
		return err
	}
	files := int(getPCD16(field))
	if files < 1 || files > 10 || files < layers {
		return errIPEFiles
	}
	d.ipeFiles = files

	names := make([]string, files)
	for i := range names {
		rec, err := icField(buf, offFnames+2+icFnameSize*i, icFnameSize)
		if err != nil {
			return err
		}

		name := rec[:12]
		if idx := bytes.IndexByte(name, 0); idx >= 0 {
			name = name[:idx]
		}
		names[i] = string(name)
		if lowerCase {
			names[i] = strings.ToLower(names[i])
		}
	}

	ic, err := os.Open(ipePath)
	if err != nil {
		return errIPEOpen
	}
	tables, err := readHuffTables(ic, int64(getPCD32(buf[icOffHuffman:])), layers)
	ic.Close()
	if err != nil {
		return err
	}

	d.deltas[2][0] = make([]byte, lumaWidth[SixtyFourBase]*lumaHeight[SixtyFourBase])
	if layers == 3 {
		d.deltas[2][1] = make([]byte, chromaWidth[SixtyFourBase]*chromaHeight[SixtyFourBase])
		d.deltas[2][2] = make([]byte, chromaWidth[SixtyFourBase]*chromaHeight[SixtyFourBase])
	}

	// The extension files live next to the IC file; strip the IC file's own
	// seven-character name (INFO.IC) but keep the path separator.
	dir := ipePath[:len(ipePath)-7]

	for layer := 0; layer < layers; layer++ {
		rec := descr[layer]
		sequenceSize := int(getPCD32(rec[10:14]))
		if sequenceSize <= 0 {
			return ErrCorrupt
		}
		colOffset := int(getPCD16(rec[8:10]))
		numSequences := int(getPCD16(rec[4:6])) * int(getPCD16(rec[6:8])) / sequenceSize

		// Walk the pointer array; whenever the file index changes (or the
		// run is the last), decode the accumulated run from its recorded
		// start offset. All row and plane addressing comes out of the
		// sequence headers themselves.
		entryOff := int(getPCD32(rec[14:18]))
		entry, err := icField(buf, entryOff, icPointerSize)
		if err != nil {
			return err
		}
		currentFile := int(getPCD16(entry[0:2]))
		startPoint := int64(getPCD32(entry[2:6]))
		sequence := 0

		for numSequences > 0 {
			numSequences--
			sequence++

			entry, err = icField(buf, entryOff, icPointerSize)
			if err != nil {
				return err
			}

			if currentFile != int(getPCD16(entry[0:2])) || numSequences == 0 {
				if currentFile >= files {
					return ErrCorrupt
				}
				err := d.decode64Run(dir+names[currentFile], startPoint, tables, sequenceSize, sequence-1, colOffset)
				if err != nil {
					return err
				}

				currentFile = int(getPCD16(entry[0:2]))
				startPoint = int64(getPCD32(entry[2:6]))
				sequence = 0
			}

			entryOff += icPointerSize
		}
	}

	return nil
}

// decode64Run decodes one run of sequences from an extension file into the
// 64Base delta planes.
func (d *Decoder) decode64Run(path string, offset int64, tables *huffTables, sequenceSize, sequences, colOffset int) error {
	f, err := os.Open(path)
	if err != nil {
		return errIPEExtOpen
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	readDeltas(newBitReader(f), tables, SixtyFourBase, sequenceSize, sequences, &d.deltas[2], colOffset)

	return nil
}
