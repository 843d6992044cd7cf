// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zlib"
)

func TestReadUint16(t *testing.T) {
	tests := []struct {
		name    string
		buf     []byte
		offset  int
		want    uint16
		wantErr bool
	}{
		{"in bounds", []byte{0x01, 0x02, 0x03}, 0, 0x0201, false},
		{"offset at tail", []byte{0x01, 0x02, 0x03}, 1, 0x0302, false},
		{"out of bounds", []byte{0x01}, 0, 0, true},
		{"negative offset", []byte{0x01, 0x02}, -1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readUint16(tt.buf, tt.offset)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readUint16() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("readUint16() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestReadUint32(t *testing.T) {
	buf := []byte{0x78, 0x56, 0x34, 0x12}
	got, err := readUint32(buf, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0x12345678 {
		t.Errorf("readUint32() = %#x, want 0x12345678", got)
	}
	if _, err := readUint32(buf, 1); err != ErrOutsideBoundary {
		t.Errorf("readUint32() error = %v, want ErrOutsideBoundary", err)
	}
}

func TestStructUnpack(t *testing.T) {
	var hdr recordHeaderLayout
	buf := make([]byte, 20)
	buf[0] = 0x10 // DataSize low byte

	if err := structUnpack(buf, &hdr, 0, 20); err != nil {
		t.Fatalf("structUnpack() error = %v", err)
	}
	if hdr.DataSize != 0x10 {
		t.Errorf("DataSize = %#x, want 0x10", hdr.DataSize)
	}

	if err := structUnpack(buf, &hdr, 0, 21); err != ErrOutsideBoundary {
		t.Errorf("structUnpack() error = %v, want ErrOutsideBoundary", err)
	}
}

func TestInflateDeflateRoundTrip(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog, repeated, repeated, repeated")

	compressed, err := deflate(original)
	if err != nil {
		t.Fatalf("deflate() error = %v", err)
	}

	decompressed, err := inflate(compressed, uint32(len(original)))
	if err != nil {
		t.Fatalf("inflate() error = %v", err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Errorf("inflate(deflate(x)) = %q, want %q", decompressed, original)
	}
}

func TestInflateLengthMismatch(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write([]byte("short"))
	zw.Close()

	if _, err := inflate(buf.Bytes(), 999); err != ErrDecompress {
		t.Errorf("inflate() error = %v, want ErrDecompress", err)
	}
}

func TestInflateCorruptStream(t *testing.T) {
	if _, err := inflate([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 4); err != ErrDecompress {
		t.Errorf("inflate() error = %v, want ErrDecompress", err)
	}
}
