package record

import (
	"bytes"
	"encoding/binary"
)

// byteOrder is the on-disk byte order for every integer and float field.
var byteOrder = binary.LittleEndian

// Encode serializes a record struct to its fixed slot layout. The struct's
// declared field order is the wire order; encoding/binary emits no padding,
// so the output length equals the record's slot size.
func Encode(v any) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, binary.Size(v)))
	if err := binary.Write(buf, byteOrder, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode fills a record struct from slot bytes.
func Decode(data []byte, v any) error {
	return binary.Read(bytes.NewReader(data), byteOrder, v)
}

// Text decodes a null-padded fixed-width field. Bytes at and after the
// first NUL are dropped.
func Text(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// SetText writes s into a null-padded fixed-width field, truncating to the
// field width minus one so a NUL terminator always survives. Longer input
// is never an error.
func SetText(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(dst) - 1
	if n < 0 {
		return
	}
	copy(dst[:n], s)
}
