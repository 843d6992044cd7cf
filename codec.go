// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/klauspost/compress/zlib"
)

// Errors raised by the byte codec (spec §4.1, §7).
var (
	// ErrOutsideBoundary is returned when a read or write would cross the
	// bounds of the buffer it operates on.
	ErrOutsideBoundary = errors.New("espkit: read outside buffer boundary")

	// ErrDecompress is returned when an inflated payload's length doesn't
	// match the uncompressed length recorded ahead of the zlib stream.
	ErrDecompress = errors.New("espkit: decompressed length mismatch")

	// ErrCompress is returned when deflating a payload fails at runtime.
	ErrCompress = errors.New("espkit: compression failed")
)

// readUint16 reads a little-endian uint16 at offset, bounds-checked against
// the length of buf. Mirrors the teacher's ReadUint16 in helper.go.
func readUint16(buf []byte, offset int) (uint16, error) {
	if offset < 0 || offset+2 > len(buf) {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint16(buf[offset:]), nil
}

// readUint32 reads a little-endian uint32 at offset, bounds-checked.
func readUint32(buf []byte, offset int) (uint32, error) {
	if offset < 0 || offset+4 > len(buf) {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint32(buf[offset:]), nil
}

// structUnpack reads a fixed-layout little-endian struct from buf[offset:offset+size]
// into iface. Bounds are checked before the read is attempted, the same
// defensive shape as the teacher's structUnpack in helper.go.
func structUnpack(buf []byte, iface interface{}, offset, size int) error {
	total := offset + size
	if offset < 0 || total < offset || total > len(buf) {
		return ErrOutsideBoundary
	}
	r := bytes.NewReader(buf[offset:total])
	return binary.Read(r, binary.LittleEndian, iface)
}

// inflate decompresses a zlib stream, failing with ErrDecompress unless the
// output is exactly expectedLen bytes (spec §4.1).
func inflate(src []byte, expectedLen uint32) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, ErrDecompress
	}
	defer zr.Close()

	out := make([]byte, 0, expectedLen)
	buf := bytes.NewBuffer(out)
	if _, err := buf.ReadFrom(zr); err != nil {
		return nil, ErrDecompress
	}
	if uint32(buf.Len()) != expectedLen {
		return nil, ErrDecompress
	}
	return buf.Bytes(), nil
}

// deflate compresses src at the maximum compression level, failing with
// ErrCompress on runtime error (spec §4.1, §7).
func deflate(src []byte) ([]byte, error) {
	var out bytes.Buffer
	zw, err := zlib.NewWriterLevel(&out, zlib.BestCompression)
	if err != nil {
		return nil, ErrCompress
	}
	if _, err := zw.Write(src); err != nil {
		zw.Close()
		return nil, ErrCompress
	}
	if err := zw.Close(); err != nil {
		return nil, ErrCompress
	}
	return out.Bytes(), nil
}
