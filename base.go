package pcd

import (
	"bufio"
	"io"
	"os"
)

// readBaseImage reads the uncompressed YCC planes of the best available tier
// at or below Base. The on-disk layout interleaves rows in 2:1 vertical
// groups: for every chroma row y, two luma rows (2y, 2y+1) precede the
// chroma1 and chroma2 rows y. A tier that cannot be read completely makes
// the reader fall back one tier; only failing at Base16 is an error.
func readBaseImage(f *os.File, scene Resolution, icdOffset *[maxScenes]int64) (Resolution, [3][]byte, error) {
	if scene > Base {
		scene = Base
	}

	for ; scene >= Base16; scene-- {
		planes, err := readBasePlanes(f, scene, icdOffset[scene])
		if err == nil {
			return scene, planes, nil
		}
	}

	return scene, [3][]byte{}, ErrNoImage
}

func readBasePlanes(f *os.File, scene Resolution, icdSector int64) ([3][]byte, error) {
	lw, lh := lumaWidth[scene], lumaHeight[scene]
	cw, ch := chromaWidth[scene], chromaHeight[scene]

	luma := make([]byte, lw*lh)
	chroma1 := make([]byte, cw*ch)
	chroma2 := make([]byte, cw*ch)

	if _, err := f.Seek(sectorSize*icdSector, io.SeekStart); err != nil {
		return [3][]byte{}, err
	}

	r := bufio.NewReaderSize(f, sectorSize)
	for y := 0; y < ch; y++ {
		if _, err := io.ReadFull(r, luma[y*2*lw:(y*2+1)*lw]); err != nil {
			return [3][]byte{}, err
		}
		if _, err := io.ReadFull(r, luma[(y*2+1)*lw:(y*2+2)*lw]); err != nil {
			return [3][]byte{}, err
		}
		if _, err := io.ReadFull(r, chroma1[y*cw:(y+1)*cw]); err != nil {
			return [3][]byte{}, err
		}
		if _, err := io.ReadFull(r, chroma2[y*cw:(y+1)*cw]); err != nil {
			return [3][]byte{}, err
		}
	}

	return [3][]byte{luma, chroma1, chroma2}, nil
}
