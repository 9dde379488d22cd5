package render

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// JPEG markers.
const (
	markerSOI   = 0xD8
	markerEOI   = 0xD9
	markerSOS   = 0xDA
	markerAPP0  = 0xE0
	markerAPP1  = 0xE1
	markerAPP2  = 0xE2
	markerAPP13 = 0xED
)

const (
	tagOrientation = 0x0112
	typeShort      = 3

	// maxHeaderBytes bounds how much of a file is read looking for EXIF.
	maxHeaderBytes = 256 << 10
)

var (
	errNotJPEG   = errors.New("jpeg: missing SOI marker")
	errTruncated = errors.New("jpeg: truncated header")

	exifHeader = []byte("Exif\x00\x00")
)

// segment is a JPEG marker segment: marker, length and payload.
type segment struct {
	marker byte
	raw    []byte
}

func (s segment) payload() []byte { return s.raw[4:] }

func (s segment) isExif() bool {
	return s.marker == markerAPP1 && bytes.HasPrefix(s.payload(), exifHeader)
}

// headerSegments returns the segments between SOI and the first scan.
// On a truncated header it returns the segments parsed so far with errTruncated.
func headerSegments(data []byte) ([]segment, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, errNotJPEG
	}

	var segs []segment
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			return segs, fmt.Errorf("jpeg: expected marker at offset %d", i)
		}
		marker := data[i+1]
		if marker == 0xFF { // fill byte
			i++
			continue
		}
		if marker == markerSOS || marker == markerEOI {
			return segs, nil
		}
		n := int(binary.BigEndian.Uint16(data[i+2:]))
		if n < 2 || i+2+n > len(data) {
			return segs, errTruncated
		}
		segs = append(segs, segment{marker: marker, raw: data[i : i+2+n]})
		i += 2 + n
	}
	return segs, errTruncated
}

// exifOrientation locates the IFD0 orientation tag in an EXIF payload.
// offset is the position of the tag's value within the payload.
func exifOrientation(payload []byte) (value int, offset int, order binary.ByteOrder, ok bool) {
	if !bytes.HasPrefix(payload, exifHeader) {
		return 0, 0, nil, false
	}
	tiff := payload[len(exifHeader):]
	if len(tiff) < 8 {
		return 0, 0, nil, false
	}

	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, 0, nil, false
	}
	if order.Uint16(tiff[2:]) != 42 {
		return 0, 0, nil, false
	}

	ifd := int(order.Uint32(tiff[4:]))
	if ifd < 8 || ifd+2 > len(tiff) {
		return 0, 0, nil, false
	}
	count := int(order.Uint16(tiff[ifd:]))
	for k := 0; k < count; k++ {
		e := ifd + 2 + 12*k
		if e+12 > len(tiff) {
			break
		}
		if order.Uint16(tiff[e:]) != tagOrientation {
			continue
		}
		if order.Uint16(tiff[e+2:]) != typeShort {
			return 0, 0, nil, false
		}
		return int(order.Uint16(tiff[e+8:])), len(exifHeader) + e + 8, order, true
	}
	return 0, 0, nil, false
}

// readOrientation returns the EXIF orientation of a JPEG stream, or 1.
func readOrientation(r io.Reader) int {
	head, err := io.ReadAll(io.LimitReader(r, maxHeaderBytes))
	if err != nil {
		return 1
	}
	segs, _ := headerSegments(head)
	for _, s := range segs {
		if !s.isExif() {
			continue
		}
		if v, _, _, ok := exifOrientation(s.payload()); ok && v >= 1 && v <= 8 {
			return v
		}
	}
	return 1
}

// spliceJPEGMetadata copies the EXIF, ICC and IPTC segments of src into the
// freshly encoded JPEG. With resetOrientation the copied orientation tag is set
// to 1, since the pixels are already upright.
func spliceJPEGMetadata(src, encoded []byte, resetOrientation bool) ([]byte, error) {
	// A source that is not JPEG carries nothing to copy; a damaged header
	// still yields the segments read before the damage.
	srcSegs, _ := headerSegments(src)

	var keep [][]byte
	for _, s := range srcSegs {
		switch {
		case s.isExif():
			raw := s.raw
			if resetOrientation {
				raw = withOrientation(raw, 1)
			}
			keep = append(keep, raw)
		case s.marker == markerAPP1, s.marker == markerAPP2, s.marker == markerAPP13:
			keep = append(keep, s.raw)
		}
	}
	if len(keep) == 0 {
		return encoded, nil
	}

	outSegs, err := headerSegments(encoded)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	at := 2
	if len(outSegs) > 0 && outSegs[0].marker == markerAPP0 {
		at += len(outSegs[0].raw)
	}

	var buf bytes.Buffer
	buf.Grow(len(encoded))
	buf.Write(encoded[:at])
	for _, raw := range keep {
		buf.Write(raw)
	}
	buf.Write(encoded[at:])
	return buf.Bytes(), nil
}

// withOrientation returns a copy of an EXIF segment with its orientation set to v.
func withOrientation(raw []byte, v uint16) []byte {
	_, off, order, ok := exifOrientation(raw[4:])
	if !ok {
		return raw
	}
	cp := bytes.Clone(raw)
	order.PutUint16(cp[4+off:], v)
	return cp
}
