// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

import (
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	mmap "github.com/edsrzf/mmap-go"

	"github.com/greywrenmods/espkit/internal/elog"
)

// Document is the parsed, filtered projection of a plugin file (spec §3).
// It owns its Records and SubRecords exclusively; everything Search*/Find*
// hands back is a borrowed view whose lifetime may not exceed the
// Document's (spec §5).
type Document struct {
	Records     []*Record
	CellRecords []*Record
	GroupCount  int
	HasTES4     bool
	Anomalies   []string

	filter  Filter
	strings *StringTable
	logger  *elog.Helper

	bySigForm  map[RecordKey]int
	cellByForm map[uint32]int
	cellByName map[uint64][]int // xxhash.Sum64String(editorID) -> CellRecords indices

	sourcePath string
	data       mmap.MMap
	f          *os.File
}

// newDocument allocates a Document ready to receive parsed records.
func newDocument(filter Filter, logger *elog.Helper) *Document {
	return &Document{
		filter:     filter,
		logger:     logger,
		bySigForm:  make(map[RecordKey]int),
		cellByForm: make(map[uint32]int),
		cellByName: make(map[uint64][]int),
	}
}

// Close releases the Document's memory-mapped source file, if any. Safe to
// call on a Document built from ParseBytes (a no-op in that case).
func (d *Document) Close() error {
	if d.data != nil {
		_ = d.data.Unmap()
		d.data = nil
	}
	if d.f != nil {
		err := d.f.Close()
		d.f = nil
		return err
	}
	return nil
}

// addRecord inserts r into the main record list and its primary index,
// warning (not aborting) on a duplicate signature:form_id key — the index
// keeps the first occurrence (spec §4.5, §7 DuplicateKey).
func (d *Document) addRecord(r *Record) {
	key := r.Key()
	if _, exists := d.bySigForm[key]; exists {
		d.logger.Warnf("duplicate record key %s, keeping first occurrence", key)
		d.Anomalies = append(d.Anomalies, "duplicate key: "+key.String())
		return
	}
	d.bySigForm[key] = len(d.Records)
	d.Records = append(d.Records, r)
}

// addCellRecord inserts r into the CELL-family list and its secondary
// indices (spec §3, §4.5).
func (d *Document) addCellRecord(r *Record) {
	idx := len(d.CellRecords)
	d.CellRecords = append(d.CellRecords, r)

	if _, exists := d.cellByForm[r.FormID]; exists {
		d.logger.Warnf("duplicate form id 0x%08X across cell records", r.FormID)
		d.Anomalies = append(d.Anomalies, "duplicate form id across cells")
	} else {
		d.cellByForm[r.FormID] = idx
	}

	if r.EditorID != "" {
		h := xxhash.Sum64String(r.EditorID)
		d.cellByName[h] = append(d.cellByName[h], idx)
	}
}

// LoadStrings attaches a StringTable loaded from pluginPath's sibling
// Strings/ files to this Document, so that subsequent GetString calls on
// localized subrecords can resolve identifiers (spec §4.3, §6).
func (d *Document) LoadStrings(pluginPath, language string) error {
	st, err := LoadStringTable(pluginPath, language)
	if err != nil {
		return err
	}
	d.strings = st
	d.attachStringTable()
	return nil
}

// attachStringTable re-points every already-parsed SubRecord at the
// Document's current StringTable.
func (d *Document) attachStringTable() {
	for _, r := range d.Records {
		for _, s := range r.Subrecords {
			s.doc = d
		}
	}
	for _, r := range d.CellRecords {
		for _, s := range r.Subrecords {
			s.doc = d
		}
	}
}

// SearchBySig scans both record lists for records whose signature matches
// parentSig (or any family when parentSig is "ALL") and, if childSig is
// non-empty and not "ALL", that carry at least one subrecord with that
// signature (spec §4.6).
func (d *Document) SearchBySig(parentSig, childSig string) []*Record {
	var out []*Record
	match := func(r *Record) bool {
		if parentSig != "ALL" && r.Sig != parentSig {
			return false
		}
		if childSig == "" || childSig == "ALL" {
			return true
		}
		return r.FirstSubrecord(childSig) != nil
	}
	for _, r := range d.Records {
		if match(r) {
			out = append(out, r)
		}
	}
	for _, r := range d.CellRecords {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

// SearchText scans every retained subrecord's decoded text across both
// record lists for a case-insensitive substring (or exact) match against
// query (spec §4.6).
func (d *Document) SearchText(query string, exact bool) []*Record {
	var out []*Record
	lowerQuery := strings.ToLower(query)

	matches := func(r *Record) bool {
		for _, s := range r.Subrecords {
			text := s.GetString()
			lowerText := strings.ToLower(text)
			if exact {
				if lowerText == lowerQuery {
					return true
				}
			} else if strings.Contains(lowerText, lowerQuery) {
				return true
			}
		}
		return false
	}

	for _, r := range d.Records {
		if matches(r) {
			out = append(out, r)
		}
	}
	for _, r := range d.CellRecords {
		if matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// FindByUniqueKey looks up a Record by its signature:form_id key via the
// primary index (spec §4.6).
func (d *Document) FindByUniqueKey(key RecordKey) (*Record, bool) {
	idx, ok := d.bySigForm[key]
	if !ok {
		return nil, false
	}
	return d.Records[idx], true
}

// FindCellByFormID looks up a CELL-family record by form identifier
// (spec §4.6).
func (d *Document) FindCellByFormID(formID uint32) (*Record, bool) {
	idx, ok := d.cellByForm[formID]
	if !ok {
		return nil, false
	}
	return d.CellRecords[idx], true
}

// FindCellByEditorID looks up a CELL-family record by its EDID text
// (spec §4.6). Hash collisions are disambiguated by comparing EditorID.
func (d *Document) FindCellByEditorID(editorID string) (*Record, bool) {
	h := xxhash.Sum64String(editorID)
	for _, idx := range d.cellByName[h] {
		if d.CellRecords[idx].EditorID == editorID {
			return d.CellRecords[idx], true
		}
	}
	return nil, false
}

// openSource memory-maps path read-only, scoping the handle to the
// Document's lifetime (spec §5), matching the teacher's pe.New.
func openSource(path string) (mmap.MMap, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return data, f, nil
}

var _ io.Closer = (*Document)(nil)
