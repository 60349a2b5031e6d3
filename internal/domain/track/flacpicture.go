package track

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
)

// ErrNoPicture is returned when a FLAC stream carries no PICTURE block.
var ErrNoPicture = errors.New("track: no picture block")

const flacPictureBlockType = 6

// readFLACPicture walks the FLAC metadata blocks of the file at path and
// returns the image data of the first PICTURE block. FLAC stores embedded
// artwork in a well-known block layout, so this dedicated parse is attempted
// before the general tag reader and its result takes priority.
func readFLACPicture(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return nil, err
	}
	if string(magic[:]) != "fLaC" {
		return nil, errors.New("track: not a FLAC stream")
	}

	for {
		var header [4]byte
		if _, err := io.ReadFull(f, header[:]); err != nil {
			return nil, ErrNoPicture
		}

		last := header[0]&0x80 != 0
		blockType := header[0] & 0x7F
		length := int64(header[1])<<16 | int64(header[2])<<8 | int64(header[3])

		if blockType == flacPictureBlockType {
			return parsePictureBlock(io.LimitReader(f, length))
		}

		if _, err := f.Seek(length, io.SeekCurrent); err != nil {
			return nil, err
		}
		if last {
			return nil, ErrNoPicture
		}
	}
}

// parsePictureBlock decodes the body of a METADATA_BLOCK_PICTURE:
// picture type, MIME string, description string, four dimension fields,
// then the length-prefixed image data.
func parsePictureBlock(r io.Reader) ([]byte, error) {
	if err := skipBytes(r, 4); err != nil { // picture type
		return nil, err
	}
	if err := skipLengthPrefixed(r); err != nil { // MIME type
		return nil, err
	}
	if err := skipLengthPrefixed(r); err != nil { // description
		return nil, err
	}
	if err := skipBytes(r, 16); err != nil { // width, height, depth, colors
		return nil, err
	}

	var dataLen uint32
	if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
		return nil, err
	}
	if dataLen == 0 {
		return nil, ErrNoPicture
	}

	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func skipBytes(r io.Reader, n int64) error {
	_, err := io.CopyN(io.Discard, r, n)
	return err
}

func skipLengthPrefixed(r io.Reader) error {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return err
	}
	return skipBytes(r, int64(n))
}
