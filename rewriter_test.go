// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// memWriteSeeker adapts a growable byte slice to io.WriteSeeker for
// RewriteTo, since the rewriter needs to seek back to patch group sizes.
type memWriteSeeker struct {
	buf []byte
	pos int64
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		m.pos = offset
	case 1:
		m.pos += offset
	case 2:
		m.pos = int64(len(m.buf)) + offset
	}
	return m.pos, nil
}

func TestRewriteToUnmodifiedIsByteIdentical(t *testing.T) {
	tes4 := buildRecord("TES4", 0, 0, buildSubrecord("HEDR", []byte{0, 0, 0, 0}))
	npc := buildRecord("NPC_", 0x01, 0, buildSubrecord("EDID", []byte("Guard\x00")))
	group := buildGroup("NPC_", GroupTypeTop, npc)
	original := append(append([]byte{}, tes4...), group...)

	doc, err := ParseBytes(original, AllowAllFilter(), nil)
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	defer doc.Close()

	dst := &memWriteSeeker{}
	if err := RewriteTo(doc, bytes.NewReader(original), dst); err != nil {
		t.Fatalf("RewriteTo() error = %v", err)
	}

	if !bytes.Equal(dst.buf, original) {
		t.Errorf("RewriteTo() produced %d bytes, want byte-identical %d bytes", len(dst.buf), len(original))
	}
}

func TestRewriteToSplicesModifiedSubrecord(t *testing.T) {
	body := append(buildSubrecord("EDID", []byte("Guard\x00")), buildSubrecord("FULL", []byte("Old Name\x00"))...)
	npc := buildRecord("NPC_", 0x01, 0, body)
	original := append([]byte{}, npc...)

	doc, err := ParseBytes(original, AllowAllFilter(), nil)
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	defer doc.Close()

	rec, ok := doc.FindByUniqueKey(RecordKey{Sig: "NPC_", FormID: 0x01})
	if !ok {
		t.Fatal("NPC_:01 not found")
	}
	rec.SetSubrecordText("FULL", 0, "New Name\x00")

	dst := &memWriteSeeker{}
	if err := RewriteTo(doc, bytes.NewReader(original), dst); err != nil {
		t.Fatalf("RewriteTo() error = %v", err)
	}

	rewritten, err := ParseBytes(dst.buf, AllowAllFilter(), nil)
	if err != nil {
		t.Fatalf("ParseBytes(rewritten) error = %v", err)
	}
	defer rewritten.Close()

	got, ok := rewritten.FindByUniqueKey(RecordKey{Sig: "NPC_", FormID: 0x01})
	if !ok {
		t.Fatal("rewritten NPC_:01 not found")
	}
	if got.EditorID != "Guard" {
		t.Errorf("EditorID = %q, want %q (unmodified subrecord should survive)", got.EditorID, "Guard")
	}
	full := got.FirstSubrecord("FULL")
	if full == nil {
		t.Fatal("FULL subrecord missing after rewrite")
	}
	if text := full.GetString(); text != "New Name" {
		t.Errorf("FULL text = %q, want %q", text, "New Name")
	}
}

func TestRewriteToPatchesGroupSize(t *testing.T) {
	body := buildSubrecord("FULL", []byte("Short\x00"))
	npc := buildRecord("NPC_", 0x01, 0, body)
	group := buildGroup("NPC_", GroupTypeTop, npc)
	original := append([]byte{}, group...)

	doc, err := ParseBytes(original, AllowAllFilter(), nil)
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	defer doc.Close()

	rec, _ := doc.FindByUniqueKey(RecordKey{Sig: "NPC_", FormID: 0x01})
	rec.SetSubrecordText("FULL", 0, "A Considerably Longer Replacement Name\x00")

	dst := &memWriteSeeker{}
	if err := RewriteTo(doc, bytes.NewReader(original), dst); err != nil {
		t.Fatalf("RewriteTo() error = %v", err)
	}

	rewritten, err := ParseBytes(dst.buf, AllowAllFilter(), nil)
	if err != nil {
		t.Fatalf("ParseBytes(rewritten) error = %v", err)
	}
	defer rewritten.Close()

	if rewritten.GroupCount != 1 {
		t.Fatalf("GroupCount = %d, want 1 (group size patch must keep the group parseable)", rewritten.GroupCount)
	}
	got, ok := rewritten.FindByUniqueKey(RecordKey{Sig: "NPC_", FormID: 0x01})
	if !ok {
		t.Fatal("rewritten NPC_:01 not found")
	}
	if text := got.FirstSubrecord("FULL").GetString(); text != "A Considerably Longer Replacement Name" {
		t.Errorf("FULL text = %q", text)
	}
}

func TestModifySubrecordsTooLarge(t *testing.T) {
	original := buildSubrecord("FULL", []byte("short"))
	edits := map[string]map[int][]byte{
		"FULL": {0: make([]byte, 0x10000)},
	}
	if _, err := modifySubrecords(original, edits); err != ErrSubrecordTooLarge {
		t.Errorf("modifySubrecords() error = %v, want ErrSubrecordTooLarge", err)
	}
}

func TestRewriteToRejectsMalformedGroupSize(t *testing.T) {
	npc := buildRecord("NPC_", 0x01, 0, buildSubrecord("EDID", []byte("Guard\x00")))
	group := buildGroup("NPC_", GroupTypeTop, npc)
	// Corrupt the declared size to less than the 24-byte group header
	// itself, the same bound the parser's readGroupHeader enforces.
	binary.LittleEndian.PutUint32(group[4:8], 4)
	original := append([]byte{}, group...)

	doc, err := ParseBytes(original, AllowAllFilter(), nil)
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	defer doc.Close()

	dst := &memWriteSeeker{}
	if err := RewriteTo(doc, bytes.NewReader(original), dst); err != ErrMalformedGroup {
		t.Errorf("RewriteTo() error = %v, want ErrMalformedGroup", err)
	}
}

func TestRewriteToDuplicateKeySplicesOnlyFirstOccurrence(t *testing.T) {
	first := buildRecord("NPC_", 0x01, 0, buildSubrecord("FULL", []byte("Old Name\x00")))
	second := buildRecord("NPC_", 0x01, 0, buildSubrecord("FULL", []byte("Old Name\x00")))
	original := append(append([]byte{}, first...), second...)

	doc, err := ParseBytes(original, AllowAllFilter(), nil)
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	defer doc.Close()

	if len(doc.Anomalies) == 0 {
		t.Fatal("expected a duplicate-key anomaly to set up this scenario")
	}
	rec, ok := doc.FindByUniqueKey(RecordKey{Sig: "NPC_", FormID: 0x01})
	if !ok {
		t.Fatal("NPC_:01 not found")
	}
	rec.SetSubrecordText("FULL", 0, "New Name\x00")

	dst := &memWriteSeeker{}
	if err := RewriteTo(doc, bytes.NewReader(original), dst); err != nil {
		t.Fatalf("RewriteTo() error = %v", err)
	}

	if len(dst.buf) != len(original) {
		t.Fatalf("rewritten length = %d, want %d (same-length replacement text)", len(dst.buf), len(original))
	}
	firstOut := dst.buf[:len(first)]
	secondOut := dst.buf[len(first):]

	if bytes.Equal(firstOut, first) {
		t.Error("first physical occurrence was not spliced with the edit")
	}
	if !bytes.Equal(secondOut, second) {
		t.Error("second physical occurrence (duplicate key) should be copied verbatim, not re-spliced")
	}
}

func TestSaveWithoutSourceFails(t *testing.T) {
	doc, err := ParseBytes([]byte{}, AllowAllFilter(), nil)
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	defer doc.Close()

	if err := Save(doc, "/tmp/should-not-be-created.esp"); err != ErrNoSourceAvailable {
		t.Errorf("Save() error = %v, want ErrNoSourceAvailable", err)
	}
}
