// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

// recordHeaderSize is the on-wire size of a Record header (spec §4.1).
const recordHeaderSize = 24

// groupHeaderSize is the on-wire size of a Group header (spec §4.1).
const groupHeaderSize = 24

// subrecordHeaderSize is the on-wire size of a Subrecord header (spec §4.1).
const subrecordHeaderSize = 6

// recordFlagLocalized marks a record's designated subrecords as carrying a
// 4-byte string identifier rather than inline text (spec §3, §6).
const recordFlagLocalized = 0x00000080

// recordFlagCompressed marks a record's payload as a zlib stream prefixed
// by its uncompressed length (spec §3, §6).
const recordFlagCompressed = 0x00040000

// grupSignature is the literal 4-byte signature of a Group (spec §3).
const grupSignature = "GRUP"

// tes4Signature is the mandatory first record of every plugin (spec §3).
const tes4Signature = "TES4"

// recordHeaderLayout is the packed, little-endian layout of a Record header.
// Matches spec §4.1: sig[4], data_size u32, flags u32, form_id u32,
// version_ctrl u32, version u16, unknown u16.
type recordHeaderLayout struct {
	DataSize    uint32
	Flags       uint32
	FormID      uint32
	VersionCtrl uint32
	Version     uint16
	Unknown     uint16
}

// groupHeaderLayout is the packed, little-endian layout of a Group header
// following the 4-byte "GRUP" signature. Matches spec §4.1: size u32,
// label[4], type u32, stamp u32, unknown u32.
type groupHeaderLayout struct {
	Size      uint32
	Label     [4]byte
	GroupType uint32
	Stamp     uint32
	Unknown   uint32
}

// subrecordHeaderLayout is the packed, little-endian layout of a Subrecord
// header following its 4-byte signature: size u16.
type subrecordHeaderLayout struct {
	Size uint16
}
