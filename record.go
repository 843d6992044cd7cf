// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

import "fmt"

// SubRecord is a named payload within a Record (spec §3). The parser stays
// oblivious to per-signature semantics: it keeps the raw bytes plus a
// localized flag and, when set, a string identifier, and defers decoding to
// GetString (spec §9, "duck-typed subrecords → tagged variants").
type SubRecord struct {
	Sig        string
	Raw        []byte
	Localized  bool
	StringID   uint32
	Occurrence int

	doc *Document
}

// GetString returns the subrecord's value as UTF-8 text (spec §3):
//   - if Localized and the identifier resolves against the Document's
//     attached StringTable, the resolved string;
//   - otherwise the raw bytes decoded through the encoding normalizer;
//   - otherwise (Localized but unresolved) the placeholder "<StringID:N>".
func (s *SubRecord) GetString() string {
	if s.Localized {
		if s.doc != nil {
			if text, ok := s.doc.strings.Lookup(s.StringID); ok {
				return text
			}
		}
		return fmt.Sprintf("<StringID:%d>", s.StringID)
	}
	return decodeText(s.Raw)
}

// Record is a leaf container: a 4-byte signature, a 32-bit form identifier,
// flags, version metadata, and an ordered sequence of SubRecords (spec §3).
type Record struct {
	Sig         string
	FormID      uint32
	Flags       uint32
	VersionCtrl uint32
	Version     uint16
	Unknown     uint16
	Subrecords  []*SubRecord

	// EditorID caches the first EDID subrecord's decoded text, or "" if
	// the record carries none — callers must tolerate that (spec §9).
	EditorID string

	// edits holds staged subrecord replacements keyed by signature then
	// occurrence index, applied by the rewriter at Save time.
	edits    map[string]map[int][]byte
	modified bool
}

// RecordKey is the unique indexing key for a Record: its signature paired
// with its form identifier (spec §3).
type RecordKey struct {
	Sig    string
	FormID uint32
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s:%08X", k.Sig, k.FormID)
}

// Key returns this Record's unique indexing key.
func (r *Record) Key() RecordKey {
	return RecordKey{Sig: r.Sig, FormID: r.FormID}
}

// IsLocalized reports whether flags & 0x00000080 is set (spec §3, §6).
func (r *Record) IsLocalized() bool {
	return r.Flags&recordFlagLocalized != 0
}

// IsCompressed reports whether flags & 0x00040000 is set (spec §3).
func (r *Record) IsCompressed() bool {
	return r.Flags&recordFlagCompressed != 0
}

// Subrecord returns the subrecord at zero-based occurrence idx for the
// given signature within this record, or nil if there's no such occurrence
// (spec §3, "occurrence indices are dense and zero-based").
func (r *Record) Subrecord(sig string, idx int) *SubRecord {
	seen := 0
	for _, s := range r.Subrecords {
		if s.Sig != sig {
			continue
		}
		if seen == idx {
			return s
		}
		seen++
	}
	return nil
}

// FirstSubrecord returns the first subrecord of the given signature, or
// nil.
func (r *Record) FirstSubrecord(sig string) *SubRecord {
	return r.Subrecord(sig, 0)
}
