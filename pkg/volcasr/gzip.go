package volcasr

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// gzipCompress gzip 压缩
//
// Empty input still produces a syntactically valid gzip stream (header plus an
// empty deflate block and a CRC=0/ISIZE=0 trailer); the protocol terminator
// relies on this.
func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gzipDecompress gzip 解压
//
// The ISIZE trailer (uncompressed length mod 2^32, little-endian) presizes the
// output buffer. compress/gzip tolerates the optional header fields (FEXTRA,
// FNAME, FCOMMENT, FHCRC) and verifies the CRC-32 trailer against the
// reflected-polynomial table in hash/crc32.
func gzipDecompress(data []byte) ([]byte, error) {
	if len(data) < 18 { // 10-byte header + minimal deflate + 8-byte trailer
		return nil, fmt.Errorf("gzip stream too short: %d bytes", len(data))
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	size := binary.LittleEndian.Uint32(data[len(data)-4:])
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
