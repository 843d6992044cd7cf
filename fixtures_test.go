// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

import "encoding/binary"

// buildSubrecord encodes a single subrecord: 4-byte signature, u16 size,
// then body.
func buildSubrecord(sig string, body []byte) []byte {
	hdr := make([]byte, subrecordHeaderSize)
	copy(hdr[0:4], sig)
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(len(body)))
	return append(hdr, body...)
}

// buildRecord encodes a full record (header + subrecord bytes already
// concatenated by the caller via buildSubrecord).
func buildRecord(sig string, formID, flags uint32, body []byte) []byte {
	hdr := make([]byte, recordHeaderSize)
	copy(hdr[0:4], sig)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(body)))
	binary.LittleEndian.PutUint32(hdr[8:12], flags)
	binary.LittleEndian.PutUint32(hdr[12:16], formID)
	// VersionCtrl, Version, Unknown left zero.
	return append(hdr, body...)
}

// buildGroup encodes a top-level (or nested) group: "GRUP" + size + label +
// groupType + stamp + unknown, followed by content. size covers the whole
// group including its own 24-byte header.
func buildGroup(label string, groupType uint32, content []byte) []byte {
	hdr := make([]byte, groupHeaderSize)
	copy(hdr[0:4], grupSignature)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(groupHeaderSize+len(content)))
	copy(hdr[8:12], label)
	binary.LittleEndian.PutUint32(hdr[12:16], groupType)
	return append(hdr, content...)
}
