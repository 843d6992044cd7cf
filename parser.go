// Copyright 2024 Greywren Mods. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package espkit

import (
	"os"

	"github.com/greywrenmods/espkit/internal/elog"
)

// Options configures a Parse call (spec §3's "ambient configuration",
// matching the shape of the teacher's *pe.Options passed to pe.New).
type Options struct {
	// Logger receives parse-time diagnostics (truncated streams, duplicate
	// keys, corrupt subrecords). Defaults to a stderr logger filtered at
	// Warn when nil.
	Logger elog.Logger
}

// Parse memory-maps path and walks its container tree, producing a
// Document filtered by filter (spec §2, §4.5). The file handle is released
// on every exit path via Document.Close, which callers must invoke.
func Parse(path string, filter Filter, opts *Options) (*Document, error) {
	data, f, err := openSource(path)
	if err != nil {
		return nil, err
	}

	doc, _ := parseBytes([]byte(data), filter, opts)
	doc.sourcePath = path
	doc.data = data
	doc.f = f
	return doc, nil
}

// ParseBytes walks an in-memory plugin buffer, for callers who already have
// the file contents (e.g. tests, or a caller receiving bytes over the
// wire). The returned Document owns no file handle.
func ParseBytes(data []byte, filter Filter, opts *Options) (*Document, error) {
	return parseBytes(data, filter, opts)
}

func parseBytes(data []byte, filter Filter, opts *Options) (*Document, error) {
	logger := newHelper(opts)
	doc := newDocument(filter, logger)

	p := &walker{data: data, doc: doc, filter: filter, logger: logger}
	p.run()

	return doc, nil
}

func newHelper(opts *Options) *elog.Helper {
	var base elog.Logger
	if opts != nil && opts.Logger != nil {
		base = opts.Logger
	} else {
		base = elog.NewFilter(elog.NewStdLogger(os.Stderr), elog.FilterLevel(elog.LevelWarn))
	}
	return elog.NewHelper(base)
}

// frame is the per-group bookkeeping the iterative walker threads on an
// explicit stack, tracking how many bytes remain unconsumed in the current
// group's content (spec §4.5, §9 "explicit stack of {remaining_bytes}
// frames for arbitrary depth"). end is the absolute offset where this
// frame's declared span terminates, regardless of how much of it the
// walker actually managed to parse — abandoning a frame jumps w.pos there
// so the parent resumes at its true next sibling (spec §4.5, §7).
type frame struct {
	remaining int
	end       int
}

// walker is the parser's mutable state for one Parse call.
type walker struct {
	data   []byte
	pos    int
	doc    *Document
	filter Filter
	logger *elog.Helper

	// localized tracks the plugin-wide LOCALIZED flag, inherited from the
	// first TES4 record's flags (spec §3, §6), and used to decide whether
	// a retained subrecord carries inline text or a 4-byte string id.
	localized bool
	seenTES4  bool
}

// run drives the top-level, arbitrary-depth walk over w.data (spec §4.5).
func (w *walker) run() {
	stack := []frame{{remaining: len(w.data), end: len(w.data)}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.remaining <= 0 {
			w.pos = top.end
			stack = stack[:len(stack)-1]
			continue
		}
		if top.remaining < 4 {
			w.pos = top.end
			stack = stack[:len(stack)-1]
			continue
		}
		if w.pos+4 > len(w.data) {
			w.pos = top.end
			stack = stack[:len(stack)-1]
			continue
		}

		sig := string(w.data[w.pos : w.pos+4])

		if sig == grupSignature {
			consumed, nested, ok := w.readGroupHeader(top.remaining)
			if !ok {
				w.logger.Warnf("truncated or oversized group header at offset %d, abandoning frame", w.pos)
				w.doc.Anomalies = append(w.doc.Anomalies, "truncated stream: group header")
				w.pos = top.end
				stack = stack[:len(stack)-1]
				continue
			}
			top.remaining -= consumed

			if nested.GroupType == GroupTypeTop {
				bodySize := int(nested.Size) - groupHeaderSize
				stack = append(stack, frame{remaining: bodySize, end: w.pos + bodySize})
			} else {
				// Bounded cell subtree: descend recursively (spec §4.5,
				// §9 "only the bounded cell-group subtree may use true
				// recursion").
				bodyStart := w.pos
				bodySize := int(nested.Size) - groupHeaderSize
				w.parseCellSubtree(bodyStart, bodySize)
				w.pos = bodyStart + bodySize
			}
			continue
		}

		consumed, ok := w.parseRecordAt(top.remaining)
		if !ok {
			w.logger.Warnf("truncated or oversized record at offset %d, abandoning frame", w.pos)
			w.doc.Anomalies = append(w.doc.Anomalies, "truncated stream: record header")
			w.pos = top.end
			stack = stack[:len(stack)-1]
			continue
		}
		top.remaining -= consumed
	}
}

// readGroupHeader reads a GRUP signature's trailing 20 header bytes at
// w.pos (the 4-byte signature itself was already peeked by the caller),
// validates nested.size against limit, and on success advances w.pos past
// the 24-byte header. It reports the nested group's full declared size
// (header plus content), which is what the group takes out of limit, and
// the decoded header.
func (w *walker) readGroupHeader(limit int) (consumed int, hdr groupHeaderLayout, ok bool) {
	if limit < groupHeaderSize || w.pos+groupHeaderSize > len(w.data) {
		return 0, hdr, false
	}
	if err := structUnpack(w.data, &hdr, w.pos+4, groupHeaderSize-4); err != nil {
		return 0, hdr, false
	}
	if int(hdr.Size) < groupHeaderSize || int(hdr.Size) > limit {
		return 0, hdr, false
	}
	w.doc.GroupCount++
	w.pos += groupHeaderSize
	return int(hdr.Size), hdr, true
}

// parseRecordAt reads a record header at w.pos (its 4-byte signature was
// already peeked), validates it against limit, and — if the record's
// signature passes the filter — materializes it into the Document. It
// always advances w.pos by the full on-wire record size on success, even
// when the record is filtered out at the stream level (spec §4.4, §4.5).
func (w *walker) parseRecordAt(limit int) (consumed int, ok bool) {
	if limit < recordHeaderSize || w.pos+recordHeaderSize > len(w.data) {
		return 0, false
	}
	sig := string(w.data[w.pos : w.pos+4])
	var hdr recordHeaderLayout
	if err := structUnpack(w.data, &hdr, w.pos+4, recordHeaderSize-4); err != nil {
		return 0, false
	}
	total := recordHeaderSize + int(hdr.DataSize)
	if total < recordHeaderSize || total > limit || w.pos+total > len(w.data) {
		return 0, false
	}

	payloadStart := w.pos + recordHeaderSize
	payload := w.data[payloadStart : payloadStart+int(hdr.DataSize)]

	if sig == tes4Signature && !w.seenTES4 {
		w.seenTES4 = true
		w.localized = hdr.Flags&recordFlagLocalized != 0
		w.doc.HasTES4 = true
	}

	w.pos += total

	if !w.filter.shouldKeepRecord(sig) {
		return total, true
	}

	rec := &Record{
		Sig:         sig,
		FormID:      hdr.FormID,
		Flags:       hdr.Flags,
		VersionCtrl: hdr.VersionCtrl,
		Version:     hdr.Version,
		Unknown:     hdr.Unknown,
	}
	w.materializeRecord(rec, payload, hdr)

	if sig == "CELL" {
		w.doc.addCellRecord(rec)
	} else {
		w.doc.addRecord(rec)
	}
	return total, true
}

// materializeRecord fills rec.Subrecords from payload, transparently
// inflating a compressed payload first (spec §4.5 step 4).
func (w *walker) materializeRecord(rec *Record, payload []byte, hdr recordHeaderLayout) {
	compressed := hdr.Flags&recordFlagCompressed != 0

	body := payload
	if compressed {
		if len(payload) < 4 {
			// Degenerate case: nothing usable to decompress (spec §4.5
			// step 4, §8).
			return
		}
		uncompressedLen, err := readUint32(payload, 0)
		if err != nil {
			return
		}
		decoded, err := inflate(payload[4:], uncompressedLen)
		if err != nil {
			w.logger.Warnf("record %s:%08X failed to decompress: %v", rec.Sig, rec.FormID, err)
			w.doc.Anomalies = append(w.doc.Anomalies, "decompress failed: "+rec.Key().String())
			return
		}
		body = decoded
	}

	w.walkSubrecords(rec, body)
}

// walkSubrecords materializes retained subrecords from body (already
// decompressed if needed), stopping — not failing — on a truncated
// trailing entry (spec §4.5 step 5, §7 CorruptSubrecord).
func (w *walker) walkSubrecords(rec *Record, body []byte) {
	occurrences := make(map[string]int)
	pos := 0

	for pos < len(body) {
		if pos+subrecordHeaderSize > len(body) {
			break
		}
		sig := string(body[pos : pos+4])
		size, err := readUint16(body, pos+4)
		if err != nil {
			break
		}
		headerEnd := pos + subrecordHeaderSize
		if headerEnd+int(size) > len(body) {
			w.logger.Warnf("corrupt subrecord %s in record %s:%08X, stopping subrecord walk", sig, rec.Sig, rec.FormID)
			w.doc.Anomalies = append(w.doc.Anomalies, "corrupt subrecord: "+sig)
			break
		}

		raw := body[headerEnd : headerEnd+int(size)]
		pos = headerEnd + int(size)

		if !w.filter.shouldKeepSubrecord(rec.Sig, sig) {
			continue
		}

		sub := &SubRecord{Sig: sig, Occurrence: occurrences[sig]}
		occurrences[sig]++

		if w.localized && len(raw) == 4 {
			sub.Localized = true
			sub.StringID, _ = readUint32(raw, 0)
		} else {
			sub.Raw = raw
		}

		rec.Subrecords = append(rec.Subrecords, sub)
		if sig == "EDID" && rec.EditorID == "" {
			rec.EditorID = decodeText(raw)
		}
	}
}

// parseCellSubtree recursively descends a bounded cell-group subtree
// (group types 1-9: world children, interior/exterior cell blocks and
// sub-blocks, and cell children), routing CELL-signature records to the
// Document's dedicated cell list while every other signature (WRLD, REFR,
// ACHR, NAVM, ...) lands in the main record list (spec §4.5 "cell-group
// specialization").
func (w *walker) parseCellSubtree(start, size int) {
	end := start + size
	if end > len(w.data) {
		end = len(w.data)
	}
	pos := start

	for pos < end {
		if end-pos < 4 {
			break
		}
		if pos+4 > len(w.data) {
			break
		}
		sig := string(w.data[pos : pos+4])

		if sig == grupSignature {
			if pos+groupHeaderSize > len(w.data) {
				break
			}
			var hdr groupHeaderLayout
			if err := structUnpack(w.data, &hdr, pos+4, groupHeaderSize-4); err != nil {
				break
			}
			limit := end - pos
			if int(hdr.Size) < groupHeaderSize || int(hdr.Size) > limit {
				break
			}
			w.doc.GroupCount++
			childStart := pos + groupHeaderSize
			childSize := int(hdr.Size) - groupHeaderSize
			w.parseCellSubtree(childStart, childSize)
			pos += int(hdr.Size)
			continue
		}

		consumed, ok := w.parseCellRecordAt(pos, end-pos)
		if !ok {
			break
		}
		pos += consumed
	}
}

// parseCellRecordAt is parseRecordAt specialized for use inside a
// recursive cell-subtree descent, where w.pos isn't the parser's shared
// cursor.
func (w *walker) parseCellRecordAt(pos, limit int) (consumed int, ok bool) {
	if limit < recordHeaderSize || pos+recordHeaderSize > len(w.data) {
		return 0, false
	}
	sig := string(w.data[pos : pos+4])
	var hdr recordHeaderLayout
	if err := structUnpack(w.data, &hdr, pos+4, recordHeaderSize-4); err != nil {
		return 0, false
	}
	total := recordHeaderSize + int(hdr.DataSize)
	if total < recordHeaderSize || total > limit || pos+total > len(w.data) {
		return 0, false
	}

	payloadStart := pos + recordHeaderSize
	payload := w.data[payloadStart : payloadStart+int(hdr.DataSize)]

	if !w.filter.shouldKeepRecord(sig) {
		return total, true
	}

	rec := &Record{
		Sig:         sig,
		FormID:      hdr.FormID,
		Flags:       hdr.Flags,
		VersionCtrl: hdr.VersionCtrl,
		Version:     hdr.Version,
		Unknown:     hdr.Unknown,
	}
	w.materializeRecord(rec, payload, hdr)

	if sig == "CELL" {
		w.doc.addCellRecord(rec)
	} else {
		w.doc.addRecord(rec)
	}
	return total, true
}
