// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
)

// Errors raised while saving a Document (spec §4.7, §7).
var (
	// ErrNoSourceAvailable is returned when Save is called on a Document
	// that wasn't parsed from a file path (e.g. one built via ParseBytes).
	ErrNoSourceAvailable = errors.New("espkit: document has no source file to rewrite")

	// ErrSubrecordTooLarge is returned when an edited subrecord's byte
	// length exceeds the 16-bit size field limit (spec §4.7, §7).
	ErrSubrecordTooLarge = errors.New("espkit: edited subrecord exceeds 65535 bytes")

	// ErrMalformedGroup is returned when a group header declares a size
	// smaller than its own 24-byte header, the same bound the parser
	// enforces in readGroupHeader.
	ErrMalformedGroup = errors.New("espkit: group declares size smaller than its header")
)

// SetSubrecordBytes stages a replacement for the occurrence-th instance of
// sig within rec (spec §4.6 "occurrence index ... disambiguates repeated
// keys"). The edit is only applied when Save walks this record; it has no
// effect on rec's already-decoded Subrecords slice.
func (r *Record) SetSubrecordBytes(sig string, occurrence int, value []byte) {
	if r.edits == nil {
		r.edits = make(map[string]map[int][]byte)
	}
	if r.edits[sig] == nil {
		r.edits[sig] = make(map[int][]byte)
	}
	r.edits[sig][occurrence] = append([]byte(nil), value...)
	r.modified = true
}

// SetSubrecordText is SetSubrecordBytes for UTF-8 text, written out as-is
// with no implicit NUL terminator — callers that need one append it
// themselves, matching the literal byte lengths in spec §8 scenario 3.
func (r *Record) SetSubrecordText(sig string, occurrence int, text string) {
	r.SetSubrecordBytes(sig, occurrence, []byte(text))
}

// Save streams doc's source file to outPath, splicing in replacement
// payloads for every modified Record and copying everything else
// byte-for-byte (spec §4.7). Unmodified Documents reproduce their source
// exactly (spec §8 "byte-identity").
func Save(doc *Document, outPath string) error {
	if doc.sourcePath == "" {
		return ErrNoSourceAvailable
	}

	in, err := os.Open(doc.sourcePath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}

	if err := RewriteTo(doc, in, out); err != nil {
		out.Close()
		os.Remove(outPath)
		return err
	}
	if err := flushFile(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// RewriteTo runs the rewrite pass against an explicit source reader and
// destination, for callers (and tests) that already hold the bytes rather
// than a path on disk.
func RewriteTo(doc *Document, src io.Reader, dst io.WriteSeeker) error {
	fin := &countingReader{r: bufio.NewReader(src)}
	st := &rewriteState{doc: doc, spliced: make(map[*Record]bool)}
	return processFile(fin, dst, st, -1)
}

// rewriteState is the bookkeeping threaded through one rewrite pass.
// spliced tracks which modified Records have already had their edits
// written to the output stream, since a duplicate-keyed source (spec §7
// DuplicateKey) can have more than one physical occurrence resolve to the
// same *Record via findForRewrite — only the first such occurrence gets
// the edit; later ones are copied verbatim.
type rewriteState struct {
	doc     *Document
	spliced map[*Record]bool
}

// countingReader wraps an io.Reader and tracks the cumulative number of
// bytes read, so the rewriter can measure "bytes consumed" by comparing
// positions before and after each child the same way the source tool
// compares stream positions (spec §4.7, design note on bytes_read).
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func readExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// processFile consumes either the entire stream (limit < 0) or exactly
// limit bytes of a group's content, dispatching each child to
// processGroup or processRecord (spec §4.7).
func processFile(fin *countingReader, fout io.WriteSeeker, st *rewriteState, limit int64) error {
	var consumed int64
	for limit < 0 || consumed < limit {
		before := fin.n
		sig, err := readExact(fin, 4)
		if err != nil {
			break
		}

		var procErr error
		if string(sig) == grupSignature {
			procErr = processGroup(fin, fout, st, sig)
		} else {
			procErr = processRecord(fin, fout, st, sig)
		}
		if procErr != nil {
			return procErr
		}
		consumed += fin.n - before
	}
	return nil
}

// processGroup copies a group's header, recurses into its content via
// processFile, and patches the size field in place if the rewritten
// content length differs from the declared size (spec §4.7).
func processGroup(fin *countingReader, fout io.WriteSeeker, st *rewriteState, sig []byte) error {
	tail, err := readExact(fin, groupHeaderSize-4)
	if err != nil {
		return err
	}
	declaredSize := binary.LittleEndian.Uint32(tail[0:4])
	if declaredSize < groupHeaderSize {
		return ErrMalformedGroup
	}

	headerPos, err := fout.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := fout.Write(sig); err != nil {
		return err
	}
	if _, err := fout.Write(tail); err != nil {
		return err
	}
	contentStart, err := fout.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	if err := processFile(fin, fout, st, int64(declaredSize)-groupHeaderSize); err != nil {
		return err
	}

	contentEnd, err := fout.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	actualLen := contentEnd - contentStart
	if actualLen != int64(declaredSize)-groupHeaderSize {
		var sizeBuf [4]byte
		binary.LittleEndian.PutUint32(sizeBuf[:], uint32(actualLen+groupHeaderSize))
		if _, err := fout.Seek(headerPos+4, io.SeekStart); err != nil {
			return err
		}
		if _, err := fout.Write(sizeBuf[:]); err != nil {
			return err
		}
		if _, err := fout.Seek(contentEnd, io.SeekStart); err != nil {
			return err
		}
	}
	return nil
}

// processRecord copies a record verbatim when it's absent from the
// Document, unmodified, or a duplicate-keyed occurrence whose edit was
// already spliced into an earlier physical record; otherwise it re-encodes
// the payload by splicing staged subrecord edits into the original byte
// sequence (spec §4.7).
func processRecord(fin *countingReader, fout io.WriteSeeker, st *rewriteState, sig []byte) error {
	tail, err := readExact(fin, recordHeaderSize-4)
	if err != nil {
		return err
	}
	dataSize := binary.LittleEndian.Uint32(tail[0:4])
	flags := binary.LittleEndian.Uint32(tail[4:8])
	formID := binary.LittleEndian.Uint32(tail[8:12])

	rec := st.doc.findForRewrite(string(sig), formID)
	if rec == nil || !rec.modified || st.spliced[rec] {
		if _, err := fout.Write(sig); err != nil {
			return err
		}
		if _, err := fout.Write(tail); err != nil {
			return err
		}
		_, err := io.CopyN(fout, fin, int64(dataSize))
		return err
	}
	st.spliced[rec] = true

	payload, err := readExact(fin, int(dataSize))
	if err != nil {
		return err
	}

	compressed := flags&recordFlagCompressed != 0
	var original []byte
	if compressed {
		if len(payload) < 4 {
			if _, err := fout.Write(sig); err != nil {
				return err
			}
			if _, err := fout.Write(tail); err != nil {
				return err
			}
			_, err := fout.Write(payload)
			return err
		}
		uncompressedLen := binary.LittleEndian.Uint32(payload[0:4])
		original, err = inflate(payload[4:], uncompressedLen)
		if err != nil {
			return err
		}
	} else {
		original = payload
	}

	modifiedBody, err := modifySubrecords(original, rec.edits)
	if err != nil {
		return err
	}

	var newPayload []byte
	if compressed {
		deflated, err := deflate(modifiedBody)
		if err != nil {
			return err
		}
		newPayload = make([]byte, 4+len(deflated))
		binary.LittleEndian.PutUint32(newPayload[0:4], uint32(len(modifiedBody)))
		copy(newPayload[4:], deflated)
	} else {
		newPayload = modifiedBody
	}

	newTail := make([]byte, recordHeaderSize-4)
	binary.LittleEndian.PutUint32(newTail[0:4], uint32(len(newPayload)))
	copy(newTail[4:], tail[4:])

	if _, err := fout.Write(sig); err != nil {
		return err
	}
	if _, err := fout.Write(newTail); err != nil {
		return err
	}
	_, err = fout.Write(newPayload)
	return err
}

// findForRewrite looks a record up across both the main and cell-record
// lists by signature:form_id, regardless of which list it was filed under.
func (d *Document) findForRewrite(sig string, formID uint32) *Record {
	if rec, ok := d.FindByUniqueKey(RecordKey{Sig: sig, FormID: formID}); ok {
		return rec
	}
	if sig == "CELL" {
		if rec, ok := d.FindCellByFormID(formID); ok {
			return rec
		}
	}
	return nil
}

// modifySubrecords walks original in subrecord order, writing the Nth
// edited value for signature S in place of the Nth on-wire occurrence,
// and copying every other subrecord's header and body unchanged
// (spec §4.7). Occurrence alignment (spec §8) depends on this counting
// being dense and in original stream order.
func modifySubrecords(original []byte, edits map[string]map[int][]byte) ([]byte, error) {
	var out []byte
	occurrences := make(map[string]int)
	pos := 0

	for pos < len(original) {
		if pos+subrecordHeaderSize > len(original) {
			out = append(out, original[pos:]...)
			break
		}
		sig := string(original[pos : pos+4])
		size := binary.LittleEndian.Uint16(original[pos+4 : pos+6])
		bodyEnd := pos + subrecordHeaderSize + int(size)
		if bodyEnd > len(original) {
			out = append(out, original[pos:]...)
			break
		}

		occ := occurrences[sig]
		occurrences[sig]++

		if newVal, ok := lookupEdit(edits, sig, occ); ok {
			if len(newVal) > 0xFFFF {
				return nil, ErrSubrecordTooLarge
			}
			var hdr [subrecordHeaderSize]byte
			copy(hdr[0:4], sig)
			binary.LittleEndian.PutUint16(hdr[4:6], uint16(len(newVal)))
			out = append(out, hdr[:]...)
			out = append(out, newVal...)
		} else {
			out = append(out, original[pos:bodyEnd]...)
		}
		pos = bodyEnd
	}
	return out, nil
}

func lookupEdit(edits map[string]map[int][]byte, sig string, occ int) ([]byte, bool) {
	bySig, ok := edits[sig]
	if !ok {
		return nil, false
	}
	val, ok := bySig[occ]
	return val, ok
}
